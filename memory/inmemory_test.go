package memory

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWindow_FormatsRoleTaggedLines(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	assert.NoError(t, s.Append(ctx, "conv-1", "user", "hello"))
	assert.NoError(t, s.Append(ctx, "conv-1", "HELPER", "hi there"))

	window, err := s.Window(ctx, "conv-1")
	assert.NoError(t, err)
	assert.Equal(t, "user: hello\nHELPER: hi there", window)
}

func TestWindow_IsBounded(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	for i := 0; i < DefaultWindowSize+5; i++ {
		assert.NoError(t, s.Append(ctx, "conv-1", "user", fmt.Sprintf("message %d", i)))
	}

	window, err := s.Window(ctx, "conv-1")
	assert.NoError(t, err)

	lines := strings.Split(window, "\n")
	assert.Len(t, lines, DefaultWindowSize)
	assert.Equal(t, "user: message 5", lines[0])
	assert.Equal(t, fmt.Sprintf("user: message %d", DefaultWindowSize+4), lines[len(lines)-1])
}

func TestWindow_ConversationsAreIsolated(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	assert.NoError(t, s.Append(ctx, "conv-1", "user", "secret"))

	window, err := s.Window(ctx, "conv-2")
	assert.NoError(t, err)
	assert.Empty(t, window)
}

func TestClear(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	assert.NoError(t, s.Append(ctx, "conv-1", "user", "hello"))
	assert.NoError(t, s.Clear(ctx, "conv-1"))
	assert.NoError(t, s.Clear(ctx, "conv-1"))

	window, err := s.Window(ctx, "conv-1")
	assert.NoError(t, err)
	assert.Empty(t, window)
}
