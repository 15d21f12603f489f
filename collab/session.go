package collab

import (
	"sync"
	"time"

	"github.com/parleyhq/parley/core"
)

// Status is the lifecycle state of a collaboration session.
type Status string

const (
	// StatusPending is the state between creation and the run loop start.
	StatusPending Status = "PENDING"
	// StatusRunning covers fan-out and synthesis.
	StatusRunning Status = "RUNNING"
	// StatusCompleted is terminal: a final answer exists.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed is terminal: no usable result could be produced.
	StatusFailed Status = "FAILED"
	// StatusTimeout is terminal: the aggregate budget expired with no
	// usable result.
	StatusTimeout Status = "TIMEOUT"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusTimeout
}

// Session is the unit of concurrent work for one collaborative turn.
// Fields are mutated only by the engine run loop that owns the session;
// accessors take the session lock so concurrent readers (waiters, stats)
// always see a consistent view. Once the status is terminal the session
// is immutable.
type Session struct {
	ID             string
	ConversationID string
	Query          string
	Primary        string
	Collaborators  []string
	Created        time.Time

	mu       sync.Mutex
	status   Status
	partials []core.Partial // insertion order = completion order
	final    string
	err      error

	// done is the completion future: closed exactly once when the
	// session reaches a terminal state. Safe for any number of waiters.
	done chan struct{}
}

func newSession(id, conversationID, query, primary string, collaborators []string) *Session {
	return &Session{
		ID:             id,
		ConversationID: conversationID,
		Query:          query,
		Primary:        primary,
		Collaborators:  collaborators,
		Created:        time.Now().UTC(),
		status:         StatusPending,
		done:           make(chan struct{}),
	}
}

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Partials returns a copy of the partial results in completion order.
func (s *Session) Partials() []core.Partial {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Partial, len(s.partials))
	copy(out, s.partials)
	return out
}

// Result returns the final text or terminal error. Only meaningful after
// Done() is closed.
func (s *Session) Result() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.final, s.err
}

// Done returns the completion future channel.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) setRunning() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusPending {
		s.status = StatusRunning
	}
}

// appendPartial records one completed responder contribution. Writes after
// a terminal transition are dropped, preserving terminal immutability even
// if a straggler result races the timeout path.
func (s *Session) appendPartial(p core.Partial) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return
	}
	s.partials = append(s.partials, p)
}

// finish moves the session to a terminal state exactly once and resolves
// the completion future. The first call wins; later calls are no-ops.
func (s *Session) finish(status Status, final string, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return false
	}
	s.status = status
	s.final = final
	s.err = err
	close(s.done)
	return true
}
