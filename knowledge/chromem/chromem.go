// Package chromem backs the core.Retriever contract with chromem-go, an
// embedded vector store, giving real similarity-ranked snippets without an
// external service.
package chromem

import (
	"context"
	"fmt"
	"sync"

	"github.com/philippgille/chromem-go"

	"github.com/parleyhq/parley/core"
)

// Options configures the retriever.
type Options struct {
	// Embedding computes document/query embeddings. Defaults to the
	// chromem default (OpenAI, keyed by OPENAI_API_KEY).
	Embedding chromem.EmbeddingFunc
	// Path, when non-empty, makes the store persistent on disk.
	Path string
}

// Retriever stores one collection per owner and answers ranked
// similarity queries over it.
type Retriever struct {
	db        *chromem.DB
	embedding chromem.EmbeddingFunc

	mu          sync.Mutex
	collections map[string]*chromem.Collection
}

var _ core.Retriever = (*Retriever)(nil)

// NewRetriever creates a chromem-backed retriever.
func NewRetriever(optFns ...func(o *Options)) (*Retriever, error) {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}

	var db *chromem.DB
	if opts.Path != "" {
		var err error
		db, err = chromem.NewPersistentDB(opts.Path, false)
		if err != nil {
			return nil, fmt.Errorf("opening persistent store: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	return &Retriever{
		db:          db,
		embedding:   opts.Embedding,
		collections: make(map[string]*chromem.Collection),
	}, nil
}

// Add indexes one document for an owner. Source metadata values are
// stored stringified since chromem metadata is string-valued.
func (r *Retriever) Add(ctx context.Context, ownerID, id, content string, source map[string]any) error {
	c, err := r.collection(ownerID)
	if err != nil {
		return err
	}

	metadata := make(map[string]string, len(source))
	for k, v := range source {
		metadata[k] = fmt.Sprintf("%v", v)
	}
	return c.AddDocument(ctx, chromem.Document{ID: id, Content: content, Metadata: metadata})
}

// Query implements core.Retriever. k is clamped to the collection size;
// an owner with no documents yields an empty result set, not an error.
func (r *Retriever) Query(ctx context.Context, ownerID, text string, k int) ([]core.Snippet, error) {
	c, err := r.collection(ownerID)
	if err != nil {
		return nil, err
	}

	count := c.Count()
	if count == 0 || k <= 0 {
		return []core.Snippet{}, nil
	}
	if k > count {
		k = count
	}

	results, err := c.Query(ctx, text, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("similarity query: %w", err)
	}

	snippets := make([]core.Snippet, 0, len(results))
	for _, res := range results {
		source := make(map[string]any, len(res.Metadata))
		for key, value := range res.Metadata {
			source[key] = value
		}
		snippets = append(snippets, core.Snippet{
			Content: res.Content,
			Score:   float64(res.Similarity),
			Source:  source,
		})
	}
	return snippets, nil
}

func (r *Retriever) collection(ownerID string) (*chromem.Collection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.collections[ownerID]; ok {
		return c, nil
	}
	c, err := r.db.GetOrCreateCollection("knowledge-"+ownerID, nil, r.embedding)
	if err != nil {
		return nil, fmt.Errorf("collection for owner %s: %w", ownerID, err)
	}
	r.collections[ownerID] = c
	return c, nil
}
