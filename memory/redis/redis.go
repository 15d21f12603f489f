// Package redis backs the core.MemoryStore contract with a Redis list per
// conversation, letting several frontend processes share the short-term
// window while the routing core stays in-process.
package redis

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Options configures the store.
type Options struct {
	// WindowSize is the number of most recent utterances kept and
	// formatted.
	WindowSize int
	// KeyPrefix namespaces the conversation keys.
	KeyPrefix string
}

// Store is a Redis-backed transcript store.
type Store struct {
	client     *redis.Client
	windowSize int
	keyPrefix  string
}

// NewStore wraps an existing Redis client.
func NewStore(client *redis.Client, optFns ...func(o *Options)) *Store {
	opts := Options{WindowSize: 20, KeyPrefix: "parley:memory:"}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Store{client: client, windowSize: opts.WindowSize, keyPrefix: opts.KeyPrefix}
}

func (s *Store) key(conversationID string) string {
	return s.keyPrefix + conversationID
}

// Window implements core.MemoryStore.
func (s *Store) Window(ctx context.Context, conversationID string) (string, error) {
	lines, err := s.client.LRange(ctx, s.key(conversationID), int64(-s.windowSize), -1).Result()
	if err != nil {
		return "", fmt.Errorf("reading memory window: %w", err)
	}
	return strings.Join(lines, "\n"), nil
}

// Append implements core.MemoryStore. The list is trimmed so a long
// conversation never grows unbounded.
func (s *Store) Append(ctx context.Context, conversationID, role, text string) error {
	key := s.key(conversationID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, fmt.Sprintf("%s: %s", role, text))
	pipe.LTrim(ctx, key, int64(-s.windowSize), -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("appending to memory window: %w", err)
	}
	return nil
}

// Clear drops a conversation's transcript. Idempotent.
func (s *Store) Clear(ctx context.Context, conversationID string) error {
	if err := s.client.Del(ctx, s.key(conversationID)).Err(); err != nil {
		return fmt.Errorf("clearing memory window: %w", err)
	}
	return nil
}
