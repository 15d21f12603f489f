package collab

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/parleyhq/parley/core"
)

// fakeResponder answers after an optional delay, respecting cancellation.
type fakeResponder struct {
	name  string
	reply string
	delay time.Duration
	err   error
}

func (f *fakeResponder) Name() string        { return f.name }
func (f *fakeResponder) Description() string { return f.name + " for tests" }
func (f *fakeResponder) Observer() bool      { return false }

func (f *fakeResponder) Respond(ctx context.Context, _ *core.TurnContext, _ string) (string, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.reply, f.err
}

func (f *fakeResponder) RespondStream(ctx context.Context, tc *core.TurnContext, input string) (<-chan string, <-chan error) {
	out := make(chan string, 1)
	errs := make(chan error, 1)
	text, err := f.Respond(ctx, tc, input)
	if err != nil {
		errs <- err
	} else {
		out <- text
	}
	close(out)
	close(errs)
	return out, errs
}

// fakeCoordinator adds synthesis on top of fakeResponder.
type fakeCoordinator struct {
	fakeResponder
	synthesisErr error
}

func (f *fakeCoordinator) SelectTeam(_ context.Context, _ string, _ []string) (core.Selection, error) {
	return core.Selection{Primary: f.name}, nil
}

func (f *fakeCoordinator) Synthesize(_ context.Context, _ string, partials []core.Partial) (string, error) {
	if f.synthesisErr != nil {
		return "", f.synthesisErr
	}
	texts := make([]string, 0, len(partials))
	for _, p := range partials {
		texts = append(texts, p.Text)
	}
	return "merged: " + strings.Join(texts, " | "), nil
}

// fakeSource serves the same responder set to every conversation.
type fakeSource struct {
	responders map[string]core.Responder
}

func (f *fakeSource) Get(_ string, name string) (core.Responder, bool) {
	r, ok := f.responders[name]
	return r, ok
}

func newSource(responders ...core.Responder) *fakeSource {
	s := &fakeSource{responders: make(map[string]core.Responder)}
	for _, r := range responders {
		s.responders[r.Name()] = r
	}
	return s
}

func turnContext() *core.TurnContext {
	return &core.TurnContext{ConversationID: "conv-1", Message: "question"}
}

func TestInitiate_CompletedWithSynthesis(t *testing.T) {
	coord := &fakeCoordinator{fakeResponder: fakeResponder{name: "MODERATOR", reply: "from moderator"}}
	eng := NewEngine(newSource(
		coord,
		&fakeResponder{name: "HELPER", reply: "from helper"},
		&fakeResponder{name: "CRITIC", reply: "from critic"},
	))

	id := eng.Initiate(context.Background(), turnContext(), "question", "HELPER", []string{"CRITIC"}, nil)
	text, err := eng.AwaitResult(context.Background(), id)

	assert.NoError(t, err)
	assert.Contains(t, text, "merged:")
	assert.Contains(t, text, "from helper")
	assert.Contains(t, text, "from critic")

	s, ok := eng.Session(id)
	assert.True(t, ok)
	assert.Equal(t, StatusCompleted, s.Status())
}

func TestRun_PartialsArriveInCompletionOrder(t *testing.T) {
	eng := NewEngine(newSource(
		&fakeResponder{name: "SLOW", reply: "slow answer", delay: 80 * time.Millisecond},
		&fakeResponder{name: "FAST", reply: "fast answer", delay: 5 * time.Millisecond},
	))

	id := eng.Initiate(context.Background(), turnContext(), "question", "SLOW", []string{"FAST"}, nil)
	_, err := eng.AwaitResult(context.Background(), id)
	assert.NoError(t, err)

	s, _ := eng.Session(id)
	partials := s.Partials()
	assert.Len(t, partials, 2)
	assert.Equal(t, "FAST", partials[0].Responder)
	assert.Equal(t, "SLOW", partials[1].Responder)
}

func TestRun_SlowResponderOmittedOthersUnaffected(t *testing.T) {
	eng := NewEngine(newSource(
		&fakeResponder{name: "HELPER", reply: "on time"},
		&fakeResponder{name: "STUCK", reply: "never", delay: time.Second},
	), func(o *Options) {
		o.Config.ResponderTimeout = 50 * time.Millisecond
		o.Config.TotalTimeout = 5 * time.Second
	})

	id := eng.Initiate(context.Background(), turnContext(), "question", "HELPER", []string{"STUCK"}, nil)
	text, err := eng.AwaitResult(context.Background(), id)

	assert.NoError(t, err)
	assert.Contains(t, text, "on time")
	assert.NotContains(t, text, "never")

	s, _ := eng.Session(id)
	assert.Equal(t, StatusCompleted, s.Status())
	assert.Len(t, s.Partials(), 1)
}

func TestRun_TotalTimeoutWithNoResultsIsTimeout(t *testing.T) {
	eng := NewEngine(newSource(
		&fakeResponder{name: "SLOW1", reply: "a", delay: time.Second},
		&fakeResponder{name: "SLOW2", reply: "b", delay: time.Second},
	), func(o *Options) {
		o.Config.ResponderTimeout = 5 * time.Second
		o.Config.TotalTimeout = 40 * time.Millisecond
	})

	id := eng.Initiate(context.Background(), turnContext(), "question", "SLOW1", []string{"SLOW2"}, nil)
	_, err := eng.AwaitResult(context.Background(), id)

	assert.Error(t, err)
	s, _ := eng.Session(id)
	assert.Equal(t, StatusTimeout, s.Status())
}

func TestRun_TotalTimeoutWithPartialsStillCompletes(t *testing.T) {
	eng := NewEngine(newSource(
		&fakeResponder{name: "FAST", reply: "quick result", delay: 5 * time.Millisecond},
		&fakeResponder{name: "SLOW", reply: "late result", delay: time.Second},
	), func(o *Options) {
		o.Config.ResponderTimeout = 5 * time.Second
		o.Config.TotalTimeout = 60 * time.Millisecond
	})

	// The primary itself is the one that never finishes; the surviving
	// collaborator's partial result still yields a COMPLETED session.
	id := eng.Initiate(context.Background(), turnContext(), "question", "SLOW", []string{"FAST"}, nil)
	text, err := eng.AwaitResult(context.Background(), id)

	assert.NoError(t, err)
	assert.Contains(t, text, "quick result")
	assert.NotContains(t, text, "late result")

	s, _ := eng.Session(id)
	assert.Equal(t, StatusCompleted, s.Status())
	assert.Len(t, s.Partials(), 1)
}

func TestRun_AllFailedIsFailed(t *testing.T) {
	eng := NewEngine(newSource(
		&fakeResponder{name: "BROKEN", err: errors.New("boom")},
	))

	id := eng.Initiate(context.Background(), turnContext(), "question", "BROKEN", nil, nil)
	_, err := eng.AwaitResult(context.Background(), id)

	assert.Error(t, err)
	s, _ := eng.Session(id)
	assert.Equal(t, StatusFailed, s.Status())
}

func TestInitiate_MissingConversationIDFails(t *testing.T) {
	eng := NewEngine(newSource(&fakeResponder{name: "HELPER", reply: "x"}))

	id := eng.Initiate(context.Background(), &core.TurnContext{}, "question", "HELPER", nil, nil)
	assert.NotEmpty(t, id)

	_, err := eng.AwaitResult(context.Background(), id)
	assert.Error(t, err)

	s, ok := eng.Session(id)
	assert.True(t, ok)
	assert.Equal(t, StatusFailed, s.Status())
}

func TestInitiate_DeduplicatesPrimaryFromCollaborators(t *testing.T) {
	eng := NewEngine(newSource(&fakeResponder{name: "HELPER", reply: "once"}))

	id := eng.Initiate(context.Background(), turnContext(), "question", "HELPER", []string{"helper", "HELPER"}, nil)
	_, err := eng.AwaitResult(context.Background(), id)
	assert.NoError(t, err)

	s, _ := eng.Session(id)
	assert.Empty(t, s.Collaborators)
	assert.Len(t, s.Partials(), 1)
}

func TestSynthesize_FallsBackToConcatenation(t *testing.T) {
	coord := &fakeCoordinator{
		fakeResponder: fakeResponder{name: "MODERATOR", reply: "m"},
		synthesisErr:  errors.New("synthesis broke"),
	}
	eng := NewEngine(newSource(
		coord,
		&fakeResponder{name: "HELPER", reply: "helper text"},
	))

	id := eng.Initiate(context.Background(), turnContext(), "question", "HELPER", nil, nil)
	text, err := eng.AwaitResult(context.Background(), id)

	assert.NoError(t, err)
	assert.Contains(t, text, "### HELPER")
	assert.Contains(t, text, "helper text")

	s, _ := eng.Session(id)
	assert.Equal(t, StatusCompleted, s.Status())
}

func TestSynthesize_NoCoordinatorConcatenates(t *testing.T) {
	eng := NewEngine(newSource(
		&fakeResponder{name: "HELPER", reply: "alpha"},
		&fakeResponder{name: "CRITIC", reply: "beta"},
	))

	id := eng.Initiate(context.Background(), turnContext(), "question", "HELPER", []string{"CRITIC"}, nil)
	text, err := eng.AwaitResult(context.Background(), id)

	assert.NoError(t, err)
	assert.Contains(t, text, "### HELPER")
	assert.Contains(t, text, "### CRITIC")
}

func TestAwaitResult_SupportsMultipleWaiters(t *testing.T) {
	eng := NewEngine(newSource(
		&fakeResponder{name: "HELPER", reply: "shared answer", delay: 20 * time.Millisecond},
	))

	id := eng.Initiate(context.Background(), turnContext(), "question", "HELPER", nil, nil)

	var wg sync.WaitGroup
	results := make([]string, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			text, err := eng.AwaitResult(context.Background(), id)
			assert.NoError(t, err)
			results[i] = text
		}(i)
	}
	wg.Wait()

	assert.Equal(t, results[0], results[1])
	assert.Equal(t, results[1], results[2])
	assert.Contains(t, results[0], "shared answer")
}

func TestAwaitResult_UnknownSession(t *testing.T) {
	eng := NewEngine(newSource())
	_, err := eng.AwaitResult(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestStats_TotalEqualsOutcomeSum(t *testing.T) {
	eng := NewEngine(newSource(
		&fakeResponder{name: "HELPER", reply: "fine"},
		&fakeResponder{name: "BROKEN", err: errors.New("boom")},
	), func(o *Options) {
		o.Config.ResponderTimeout = 5 * time.Second
		o.Config.TotalTimeout = 40 * time.Millisecond
	})

	ids := []string{
		eng.Initiate(context.Background(), turnContext(), "q", "HELPER", nil, nil),
		eng.Initiate(context.Background(), turnContext(), "q", "BROKEN", nil, nil),
		eng.Initiate(context.Background(), &core.TurnContext{}, "q", "HELPER", nil, nil),
	}
	for _, id := range ids {
		_, _ = eng.AwaitResult(context.Background(), id)
	}

	stats := eng.Stats()
	assert.Equal(t, stats.Completed+stats.Failed+stats.TimedOut, stats.Total)
	assert.Equal(t, uint64(3), stats.Total)
	assert.Equal(t, uint64(1), stats.Completed)
	assert.Equal(t, uint64(2), stats.Failed)
	assert.Equal(t, 0, stats.Active)
}

func TestRun_SinkReceivesConsultingNotice(t *testing.T) {
	eng := NewEngine(newSource(
		&fakeResponder{name: "HELPER", reply: "a"},
		&fakeResponder{name: "CRITIC", reply: "b"},
	))

	var mu sync.Mutex
	var notices []string
	sink := func(text string) {
		mu.Lock()
		notices = append(notices, text)
		mu.Unlock()
	}

	id := eng.Initiate(context.Background(), turnContext(), "question", "HELPER", []string{"CRITIC"}, sink)
	_, err := eng.AwaitResult(context.Background(), id)
	assert.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.NotEmpty(t, notices)
	assert.Contains(t, notices[0], "HELPER")
	assert.Contains(t, notices[0], "CRITIC")
}

func TestHistory_EvictsBeyondLimit(t *testing.T) {
	eng := NewEngine(newSource(&fakeResponder{name: "HELPER", reply: "x"}), func(o *Options) {
		o.Config.HistoryLimit = 2
	})

	var ids []string
	for i := 0; i < 4; i++ {
		id := eng.Initiate(context.Background(), turnContext(), "q", "HELPER", nil, nil)
		_, err := eng.AwaitResult(context.Background(), id)
		assert.NoError(t, err)
		ids = append(ids, id)
	}

	_, ok := eng.Session(ids[0])
	assert.False(t, ok)
	_, ok = eng.Session(ids[3])
	assert.True(t, ok)
}
