// Package config loads the parleyd configuration from file and
// environment via viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the turn-routing service.
type Config struct {
	General    GeneralConfig   `mapstructure:"general"`
	Server     ServerConfig    `mapstructure:"server"`
	Model      ModelConfig     `mapstructure:"model"`
	Memory     MemoryConfig    `mapstructure:"memory"`
	Knowledge  KnowledgeConfig `mapstructure:"knowledge"`
	Collab     CollabConfig    `mapstructure:"collab"`
	Responders []ResponderSpec `mapstructure:"responders"`
}

// GeneralConfig contains general application settings.
type GeneralConfig struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"` // text or json
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Address        string `mapstructure:"address"`
	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
}

// ModelConfig selects the chat model backend.
type ModelConfig struct {
	// Provider is openai, anthropic or mock.
	Provider    string  `mapstructure:"provider"`
	Name        string  `mapstructure:"name"`
	APIKey      string  `mapstructure:"api_key"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// MemoryConfig selects the transcript store.
type MemoryConfig struct {
	// Backend is inmemory or redis.
	Backend    string `mapstructure:"backend"`
	RedisAddr  string `mapstructure:"redis_addr"`
	RedisDB    int    `mapstructure:"redis_db"`
	WindowSize int    `mapstructure:"window_size"`
}

// KnowledgeConfig selects the snippet retriever.
type KnowledgeConfig struct {
	// Backend is inmemory, chromem or none.
	Backend string `mapstructure:"backend"`
	// Path makes the chromem store persistent when set.
	Path       string `mapstructure:"path"`
	RetrievalK int    `mapstructure:"retrieval_k"`
}

// CollabConfig tunes collaborative sessions.
type CollabConfig struct {
	ResponderTimeout time.Duration `mapstructure:"responder_timeout"`
	TotalTimeout     time.Duration `mapstructure:"total_timeout"`
	SynthesisTimeout time.Duration `mapstructure:"synthesis_timeout"`
	HistoryLimit     int           `mapstructure:"history_limit"`
}

// ResponderSpec declares one responder template made available to every
// conversation.
type ResponderSpec struct {
	Name        string `mapstructure:"name"`
	Description string `mapstructure:"description"`
	Instruction string `mapstructure:"instruction"`
	Observer    bool   `mapstructure:"observer"`
}

// Validate checks the parts that would otherwise fail deep inside wiring.
func (c *Config) Validate() error {
	switch c.Model.Provider {
	case "openai", "anthropic", "mock":
	default:
		return fmt.Errorf("model.provider must be openai, anthropic or mock, got %q", c.Model.Provider)
	}
	switch c.Memory.Backend {
	case "inmemory", "redis":
	default:
		return fmt.Errorf("memory.backend must be inmemory or redis, got %q", c.Memory.Backend)
	}
	switch c.Knowledge.Backend {
	case "inmemory", "chromem", "none":
	default:
		return fmt.Errorf("knowledge.backend must be inmemory, chromem or none, got %q", c.Knowledge.Backend)
	}
	if c.Memory.Backend == "redis" && c.Memory.RedisAddr == "" {
		return fmt.Errorf("memory.redis_addr is required when memory.backend is redis")
	}
	return nil
}

// Load reads the configuration from the given file (optional) plus
// PARLEY_* environment variables, applying defaults for everything else.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("parley")
	v.SetConfigType("yaml")

	v.SetDefault("general.log_level", "info")
	v.SetDefault("general.log_format", "text")
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.metrics_enabled", true)
	v.SetDefault("model.provider", "openai")
	v.SetDefault("model.temperature", 0.7)
	v.SetDefault("memory.backend", "inmemory")
	v.SetDefault("memory.window_size", 20)
	v.SetDefault("knowledge.backend", "none")
	v.SetDefault("knowledge.retrieval_k", 4)
	v.SetDefault("collab.responder_timeout", 45*time.Second)
	v.SetDefault("collab.total_timeout", 90*time.Second)
	v.SetDefault("collab.synthesis_timeout", 30*time.Second)
	v.SetDefault("collab.history_limit", 256)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("PARLEY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// A missing file is fine when no explicit path was given; the
		// defaults plus environment carry the full configuration.
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
