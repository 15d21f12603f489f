// Package memory provides implementations of the core.MemoryStore
// contract: a process-local transcript store and, in the redis
// subpackage, a Redis-backed one for deployments with several frontends.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// DefaultWindowSize is the number of most recent utterances included in
// the formatted window.
const DefaultWindowSize = 20

type entry struct {
	role string
	text string
}

// InMemoryStore keeps per-conversation transcripts in a process-local
// map. Safe for concurrent use.
type InMemoryStore struct {
	mu         sync.RWMutex
	entries    map[string][]entry
	windowSize int
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[string][]entry), windowSize: DefaultWindowSize}
}

// Window implements core.MemoryStore: the last entries formatted as
// "role: text" lines, oldest first.
func (s *InMemoryStore) Window(_ context.Context, conversationID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.entries[conversationID]
	if len(all) > s.windowSize {
		all = all[len(all)-s.windowSize:]
	}

	lines := make([]string, 0, len(all))
	for _, e := range all {
		lines = append(lines, fmt.Sprintf("%s: %s", e.role, e.text))
	}
	return strings.Join(lines, "\n"), nil
}

// Append implements core.MemoryStore.
func (s *InMemoryStore) Append(_ context.Context, conversationID, role, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[conversationID] = append(s.entries[conversationID], entry{role: role, text: text})
	return nil
}

// Clear drops a conversation's transcript. Idempotent.
func (s *InMemoryStore) Clear(_ context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, conversationID)
	return nil
}
