// Package knowledge provides implementations of the core.Retriever
// contract. InMemoryRetriever is a naive substring index suitable for
// tests and demos; the chromem subpackage backs retrieval with an embedded
// vector store.
package knowledge

import (
	"context"
	"strings"
	"sync"

	"github.com/parleyhq/parley/core"
)

type storedDoc struct {
	content string
	source  map[string]any
}

// InMemoryRetriever is a process-local Retriever using case-insensitive
// word matching. Every hit receives a score proportional to the number of
// query words it contains. Swap for the chromem-backed store when real
// semantic retrieval is needed.
type InMemoryRetriever struct {
	mu   sync.RWMutex
	docs map[string][]storedDoc // ownerID -> documents
}

var _ core.Retriever = (*InMemoryRetriever)(nil)

// NewInMemoryRetriever creates an empty retriever.
func NewInMemoryRetriever() *InMemoryRetriever {
	return &InMemoryRetriever{docs: make(map[string][]storedDoc)}
}

// Add indexes a document for an owner.
func (r *InMemoryRetriever) Add(ownerID, content string, source map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[ownerID] = append(r.docs[ownerID], storedDoc{content: content, source: source})
}

// Query implements core.Retriever. It never fails; unknown owners get an
// empty result set.
func (r *InMemoryRetriever) Query(_ context.Context, ownerID, text string, k int) ([]core.Snippet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if k <= 0 {
		return []core.Snippet{}, nil
	}

	words := strings.Fields(strings.ToLower(text))
	var hits []core.Snippet
	for _, doc := range r.docs[ownerID] {
		lower := strings.ToLower(doc.content)
		matched := 0
		for _, w := range words {
			if strings.Contains(lower, w) {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		hits = append(hits, core.Snippet{
			Content: doc.content,
			Score:   float64(matched) / float64(len(words)),
			Source:  doc.source,
		})
	}

	// Insertion order is fine for a demo index; just cap at k.
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}
