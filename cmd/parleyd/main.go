// Command parleyd runs the turn-routing HTTP service.
package main

import (
	"fmt"
	"log/slog"
	"os"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/parleyhq/parley"
	"github.com/parleyhq/parley/config"
	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/knowledge"
	knowledgechromem "github.com/parleyhq/parley/knowledge/chromem"
	"github.com/parleyhq/parley/logging"
	"github.com/parleyhq/parley/memory"
	memoryredis "github.com/parleyhq/parley/memory/redis"
	"github.com/parleyhq/parley/metrics"
	"github.com/parleyhq/parley/model"
	anthropicmodel "github.com/parleyhq/parley/model/anthropic"
	openaimodel "github.com/parleyhq/parley/model/openai"
	"github.com/parleyhq/parley/responder"
	"github.com/parleyhq/parley/server"
)

func main() {
	root := &cobra.Command{Use: "parleyd", Short: "Multi-responder turn router"}

	var configPath string
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return runServe(cfg)
		},
	}

	root.AddCommand(serve)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cfg *config.Config) error {
	logger := buildLogger(cfg.General)

	llm, err := buildModel(cfg.Model)
	if err != nil {
		return err
	}

	mem, err := buildMemory(cfg.Memory)
	if err != nil {
		return err
	}

	retriever, err := buildRetriever(cfg.Knowledge)
	if err != nil {
		return err
	}

	var m *metrics.Metrics
	if cfg.Server.MetricsEnabled {
		m = metrics.New(prometheus.DefaultRegisterer)
	}

	app, err := parley.New(llm, func(o *parley.Options) {
		o.CollabConfig.ResponderTimeout = cfg.Collab.ResponderTimeout
		o.CollabConfig.TotalTimeout = cfg.Collab.TotalTimeout
		o.CollabConfig.SynthesisTimeout = cfg.Collab.SynthesisTimeout
		o.CollabConfig.HistoryLimit = cfg.Collab.HistoryLimit
		o.OrchestratorConfig.RetrievalK = cfg.Knowledge.RetrievalK
		o.Retriever = retriever
		o.Memory = mem
		o.Logger = logger
		o.Metrics = m
	})
	if err != nil {
		return err
	}

	for _, spec := range cfg.Responders {
		instruction := spec.Instruction
		observer := spec.Observer
		err := app.RegisterResponder(spec.Name, spec.Description, func(o *responder.Options) {
			o.Instruction = instruction
			o.Observer = observer
		})
		if err != nil {
			return fmt.Errorf("registering responder %s: %w", spec.Name, err)
		}
	}

	srv := server.New(app, func(o *server.Options) {
		o.MetricsEnabled = cfg.Server.MetricsEnabled
		o.Logger = logger
	})

	logger.Info("starting server", "address", cfg.Server.Address, "model", cfg.Model.Provider)
	return srv.Start(cfg.Server.Address)
}

func buildLogger(cfg config.GeneralConfig) logging.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if cfg.LogFormat == "json" {
		return logging.NewJSONLogger(os.Stderr, level)
	}
	return logging.NewTextLogger(os.Stderr, level)
}

func buildModel(cfg config.ModelConfig) (model.Model, error) {
	switch cfg.Provider {
	case "openai":
		return openaimodel.NewModel(func(o *openaimodel.Options) {
			if cfg.Name != "" {
				o.Model = cfg.Name
			}
			o.Temperature = cfg.Temperature
			if cfg.MaxTokens > 0 {
				o.MaxCompletionTokens = int64(cfg.MaxTokens)
			}
		}), nil
	case "anthropic":
		return anthropicmodel.NewModel(func(o *anthropicmodel.Options) {
			if cfg.Name != "" {
				o.Model = anthropicsdk.Model(cfg.Name)
			}
			o.Temperature = cfg.Temperature
			if cfg.MaxTokens > 0 {
				o.MaxTokens = int64(cfg.MaxTokens)
			}
			o.APIKey = cfg.APIKey
		}), nil
	case "mock":
		return model.NewMockModel("mock"), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}

func buildMemory(cfg config.MemoryConfig) (core.MemoryStore, error) {
	switch cfg.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		return memoryredis.NewStore(client, func(o *memoryredis.Options) {
			if cfg.WindowSize > 0 {
				o.WindowSize = cfg.WindowSize
			}
		}), nil
	case "inmemory":
		return memory.NewInMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown memory backend %q", cfg.Backend)
	}
}

func buildRetriever(cfg config.KnowledgeConfig) (core.Retriever, error) {
	switch cfg.Backend {
	case "chromem":
		return knowledgechromem.NewRetriever(func(o *knowledgechromem.Options) {
			o.Path = cfg.Path
		})
	case "inmemory":
		return knowledge.NewInMemoryRetriever(), nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown knowledge backend %q", cfg.Backend)
	}
}
