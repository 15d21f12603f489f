package knowledge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuery_ScoresByMatchedWords(t *testing.T) {
	r := NewInMemoryRetriever()
	r.Add("owner-1", "go channels and goroutines", map[string]any{"doc": "a"})
	r.Add("owner-1", "python asyncio", map[string]any{"doc": "b"})

	snippets, err := r.Query(context.Background(), "owner-1", "go goroutines", 5)
	assert.NoError(t, err)
	assert.Len(t, snippets, 1)
	assert.Equal(t, "go channels and goroutines", snippets[0].Content)
	assert.Equal(t, 1.0, snippets[0].Score)
	assert.Equal(t, "a", snippets[0].Source["doc"])
}

func TestQuery_UnknownOwnerIsEmpty(t *testing.T) {
	r := NewInMemoryRetriever()

	snippets, err := r.Query(context.Background(), "nobody", "anything", 3)
	assert.NoError(t, err)
	assert.Empty(t, snippets)
}

func TestQuery_OwnersAreIsolated(t *testing.T) {
	r := NewInMemoryRetriever()
	r.Add("owner-1", "private fact", nil)

	snippets, err := r.Query(context.Background(), "owner-2", "private fact", 3)
	assert.NoError(t, err)
	assert.Empty(t, snippets)
}

func TestQuery_CapsAtK(t *testing.T) {
	r := NewInMemoryRetriever()
	for i := 0; i < 5; i++ {
		r.Add("owner-1", "repeated fact", nil)
	}

	snippets, err := r.Query(context.Background(), "owner-1", "fact", 2)
	assert.NoError(t, err)
	assert.Len(t, snippets, 2)

	snippets, err = r.Query(context.Background(), "owner-1", "fact", 0)
	assert.NoError(t, err)
	assert.Empty(t, snippets)
}
