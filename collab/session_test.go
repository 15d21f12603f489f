package collab

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/parleyhq/parley/core"
)

func TestStatus_Terminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusRunning.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusTimeout.Terminal())
}

func TestSession_FinishIsExactlyOnce(t *testing.T) {
	s := newSession("s-1", "conv-1", "q", "HELPER", nil)

	assert.True(t, s.finish(StatusCompleted, "answer", nil))
	assert.False(t, s.finish(StatusFailed, "", errors.New("late")))

	final, err := s.Result()
	assert.NoError(t, err)
	assert.Equal(t, "answer", final)
	assert.Equal(t, StatusCompleted, s.Status())

	select {
	case <-s.Done():
	default:
		t.Fatal("done future not resolved")
	}
}

func TestSession_PartialsAfterTerminalAreDropped(t *testing.T) {
	s := newSession("s-1", "conv-1", "q", "HELPER", nil)
	s.setRunning()
	s.appendPartial(core.Partial{Responder: "HELPER", Text: "early"})

	s.finish(StatusTimeout, "", errors.New("deadline"))
	s.appendPartial(core.Partial{Responder: "STRAGGLER", Text: "late"})

	partials := s.Partials()
	assert.Len(t, partials, 1)
	assert.Equal(t, "HELPER", partials[0].Responder)
}

func TestSession_SetRunningOnlyFromPending(t *testing.T) {
	s := newSession("s-1", "conv-1", "q", "HELPER", nil)
	assert.Equal(t, StatusPending, s.Status())

	s.setRunning()
	assert.Equal(t, StatusRunning, s.Status())

	s.finish(StatusFailed, "", errors.New("boom"))
	s.setRunning()
	assert.Equal(t, StatusFailed, s.Status())
}
