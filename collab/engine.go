// Package collab runs a primary responder and zero or more collaborators
// concurrently under a layered timeout policy, then synthesizes one
// coherent answer. Sessions move PENDING -> RUNNING -> one of
// {COMPLETED, FAILED, TIMEOUT}; terminal sessions are immutable and live
// in a bounded history log used for statistics only.
package collab

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/logging"
	"github.com/parleyhq/parley/metrics"
	"github.com/parleyhq/parley/registry"
)

// ErrSessionNotFound is returned by AwaitResult when the session id is
// neither active nor retained in history.
var ErrSessionNotFound = errors.New("collaboration session not found")

// ResponderSource resolves per-conversation responder instances. The
// registry satisfies it; tests supply fakes.
type ResponderSource interface {
	Get(conversationID, name string) (core.Responder, bool)
}

// Config defines the engine's layered timeout policy and history bound.
// The three budgets are independent: a responder exceeding its individual
// budget only loses its own slot, the aggregate budget caps the whole
// fan-out, and the synthesis budget caps the merge call.
type Config struct {
	// ResponderTimeout bounds each individual responder invocation.
	ResponderTimeout time.Duration
	// TotalTimeout bounds the whole fan-out.
	TotalTimeout time.Duration
	// SynthesisTimeout bounds the synthesis call.
	SynthesisTimeout time.Duration
	// HistoryLimit caps the terminal-session history log.
	HistoryLimit int
}

// DefaultConfig provides conservative production defaults.
var DefaultConfig = Config{
	ResponderTimeout: 45 * time.Second,
	TotalTimeout:     90 * time.Second,
	SynthesisTimeout: 30 * time.Second,
	HistoryLimit:     256,
}

// Options configures an Engine.
type Options struct {
	Config Config
	// CoordinatorName is the responder consulted for synthesis.
	CoordinatorName string
	Logger          logging.Logger
	Metrics         *metrics.Metrics
}

// Stats aggregates counters over session history plus the current active
// set. Total always equals Completed + Failed + TimedOut.
type Stats struct {
	Total     uint64 `json:"total"`
	Completed uint64 `json:"completed"`
	Failed    uint64 `json:"failed"`
	TimedOut  uint64 `json:"timed_out"`
	Active    int    `json:"active"`
}

// Engine owns the active-session table and history log. Each session is
// mutated only by its own run loop; the engine lock guards only table
// membership and counters.
type Engine struct {
	cfg             Config
	source          ResponderSource
	coordinatorName string
	logger          logging.Logger
	metrics         *metrics.Metrics

	mu        sync.Mutex
	active    map[string]*Session
	history   []*Session
	completed uint64
	failed    uint64
	timedOut  uint64
}

// NewEngine constructs a collaboration engine over the given responder
// source.
func NewEngine(source ResponderSource, optFns ...func(o *Options)) *Engine {
	opts := Options{
		Config:          DefaultConfig,
		CoordinatorName: "MODERATOR",
		Logger:          logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Engine{
		cfg:             opts.Config,
		source:          source,
		coordinatorName: registry.Canonical(opts.CoordinatorName),
		logger:          opts.Logger,
		metrics:         opts.Metrics,
		active:          make(map[string]*Session),
	}
}

// Initiate creates a session for the turn and schedules its run loop; it
// returns the session id before the run loop finishes. A collaborator
// equal to the primary (case-insensitive) is dropped so a responder never
// runs twice within one session. A missing conversation id is a fatal
// precondition for the session itself: it is recorded as FAILED rather
// than raised to the initiator.
func (e *Engine) Initiate(ctx context.Context, tc *core.TurnContext, query, primary string, collaborators []string, sink core.StreamSink) string {
	primary = registry.Canonical(primary)

	seen := map[string]bool{primary: true}
	team := make([]string, 0, len(collaborators))
	for _, name := range collaborators {
		canonical := registry.Canonical(name)
		if canonical == "" || seen[canonical] {
			continue
		}
		seen[canonical] = true
		team = append(team, canonical)
	}

	var conversationID string
	if tc != nil {
		conversationID = tc.ConversationID
	}

	s := newSession(uuid.NewString(), conversationID, query, primary, team)

	if conversationID == "" {
		e.register(s)
		e.logger.Error("collaboration session missing conversation id", "session_id", s.ID)
		e.finish(s, StatusFailed, "", errors.New("collaboration requires a conversation id"))
		return s.ID
	}

	e.register(s)
	go e.run(ctx, s, tc, sink)
	return s.ID
}

// AwaitResult blocks until the session's completion future resolves and
// returns the final text or terminal error. It is safe to call multiple
// times and from multiple waiters.
func (e *Engine) AwaitResult(ctx context.Context, sessionID string) (string, error) {
	s, ok := e.Session(sessionID)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-s.Done():
		return s.Result()
	}
}

// Session returns the session by id, searching the active table then the
// history log.
func (e *Engine) Session(sessionID string) (*Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.active[sessionID]; ok {
		return s, true
	}
	for _, s := range e.history {
		if s.ID == sessionID {
			return s, true
		}
	}
	return nil, false
}

// Stats returns aggregate counters over history plus the active set size.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		Total:     e.completed + e.failed + e.timedOut,
		Completed: e.completed,
		Failed:    e.failed,
		TimedOut:  e.timedOut,
		Active:    len(e.active),
	}
}

// run is the per-session run loop: fan-out, then synthesis, then exactly
// one terminal transition. It is the session's single writer.
func (e *Engine) run(ctx context.Context, s *Session, tc *core.TurnContext, sink core.StreamSink) {
	s.setRunning()

	if sink != nil && len(s.Collaborators) > 0 {
		sink(fmt.Sprintf("Consulting %s together with %s...\n", s.Primary, strings.Join(s.Collaborators, ", ")))
	}

	fanCtx, cancel := context.WithTimeout(ctx, e.cfg.TotalTimeout)
	defer cancel()

	team := append([]string{s.Primary}, s.Collaborators...)
	results := make(chan core.Partial, len(team))
	var wg sync.WaitGroup

	for _, name := range team {
		inst, ok := e.source.Get(s.ConversationID, name)
		if !ok {
			e.logger.Warn("responder unavailable, omitting from fan-out", "responder", name, "session_id", s.ID)
			continue
		}

		wg.Add(1)
		go func(name string, r core.Responder) {
			defer wg.Done()

			memberCtx, memberCancel := context.WithTimeout(fanCtx, e.cfg.ResponderTimeout)
			defer memberCancel()

			text, err := invokeResponder(memberCtx, r, tc, s.Query)
			if err != nil {
				// A cancelled or failed responder contributes nothing;
				// its siblings are unaffected.
				e.logger.Warn("responder omitted", "responder", name, "session_id", s.ID, "error", err)
				return
			}
			results <- core.Partial{Responder: name, Text: text}
		}(name, inst)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	// Receive order is completion order; that ordering is the only
	// guarantee partial results carry.
	for p := range results {
		s.appendPartial(p)
	}

	timedOut := errors.Is(fanCtx.Err(), context.DeadlineExceeded)
	partials := s.Partials()

	if len(partials) == 0 {
		status := StatusFailed
		err := errors.New("no responders produced a result")
		if timedOut {
			status = StatusTimeout
			err = fmt.Errorf("collaboration timed out after %s with no results", e.cfg.TotalTimeout)
		}
		e.finish(s, status, "", err)
		return
	}

	final := e.synthesize(ctx, s, partials)
	e.finish(s, StatusCompleted, final, nil)
}

// synthesize issues one delegated synthesis call under its own budget,
// falling back to deterministic name-headed concatenation so partial work
// is never lost.
func (e *Engine) synthesize(ctx context.Context, s *Session, partials []core.Partial) string {
	coord, ok := e.coordinator(s.ConversationID)
	if !ok {
		e.logger.Warn("no synthesis coordinator available, concatenating", "session_id", s.ID)
		return concatenate(partials)
	}

	synthCtx, cancel := context.WithTimeout(ctx, e.cfg.SynthesisTimeout)
	defer cancel()

	text, err := coord.Synthesize(synthCtx, s.Query, partials)
	if err != nil {
		e.logger.Warn("synthesis failed, concatenating partial results", "session_id", s.ID, "error", err)
		return concatenate(partials)
	}
	return text
}

func (e *Engine) coordinator(conversationID string) (core.Coordinator, bool) {
	inst, ok := e.source.Get(conversationID, e.coordinatorName)
	if !ok {
		return nil, false
	}
	coord, ok := inst.(core.Coordinator)
	return coord, ok
}

// register puts the session into the active table.
func (e *Engine) register(s *Session) {
	e.mu.Lock()
	e.active[s.ID] = s
	e.mu.Unlock()
	e.metrics.SessionStarted()
}

// finish performs the exactly-once terminal transition: resolve the
// future, move the session from the active table to the bounded history
// log, and bump the outcome counters.
func (e *Engine) finish(s *Session, status Status, final string, err error) {
	if !s.finish(status, final, err) {
		return
	}

	e.mu.Lock()
	delete(e.active, s.ID)
	e.history = append(e.history, s)
	if e.cfg.HistoryLimit > 0 && len(e.history) > e.cfg.HistoryLimit {
		e.history = e.history[len(e.history)-e.cfg.HistoryLimit:]
	}
	switch status {
	case StatusCompleted:
		e.completed++
	case StatusTimeout:
		e.timedOut++
	default:
		e.failed++
	}
	e.mu.Unlock()

	e.metrics.SessionFinished()
	e.metrics.RecordSession(string(status))
	e.logger.Info("collaboration session finished",
		"session_id", s.ID, "status", string(status), "partials", len(s.Partials()))
}

// invokeResponder runs one responder under ctx, returning as soon as the
// context expires even if the responder ignores cancellation. A stuck
// responder can therefore delay garbage collection of its goroutine but
// never the session.
func invokeResponder(ctx context.Context, r core.Responder, tc *core.TurnContext, query string) (string, error) {
	type result struct {
		text string
		err  error
	}
	ch := make(chan result, 1)

	go func() {
		text, err := r.Respond(ctx, tc, query)
		ch <- result{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		return res.text, res.err
	}
}

// concatenate is the synthesis fallback: partial results joined under
// responder-name headers, in completion order.
func concatenate(partials []core.Partial) string {
	var sb strings.Builder
	for i, p := range partials {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "### %s\n%s", p.Responder, p.Text)
	}
	return sb.String()
}
