package core

import "context"

// StreamSink receives incremental output as soon as it is produced. The
// orchestrator forwards token deltas through it during a streamed single
// run; the collaboration engine uses it for advisory progress notices.
// Implementations must be fast and must not block.
type StreamSink func(text string)

// Responder is a per-conversation instance of a registered template. Its
// capability surface is a fixed, typed set of operations rather than a
// runtime-discovered tool list; distinct instances must be invocable
// concurrently without shared mutable state.
type Responder interface {
	// Name returns the canonical (upper-case) responder name.
	Name() string

	// Description returns the human-readable capability description used
	// in the selection catalog.
	Description() string

	// Observer reports whether the responder silently observes instead
	// of actively replying.
	Observer() bool

	// Respond produces the full answer for input within the given turn.
	Respond(ctx context.Context, tc *TurnContext, input string) (string, error)

	// RespondStream produces the answer incrementally. The text channel
	// carries token deltas in order and is closed when the answer is
	// complete; the error channel (buffered, size 1) carries at most one
	// terminal error. Concatenating all deltas yields exactly the text
	// Respond would have returned for the same inputs.
	RespondStream(ctx context.Context, tc *TurnContext, input string) (<-chan string, <-chan error)
}

// Selection is the outcome of a delegated selection call.
type Selection struct {
	Primary    string   `json:"primary_agent"`
	Supporting []string `json:"supporting_agents"`
}

// Partial is one responder's contribution to a collaboration session.
type Partial struct {
	Responder string `json:"responder"`
	Text      string `json:"text"`
}

// Coordinator extends Responder with the delegated selection and synthesis
// capabilities. Both are backed by externally rate- and latency-variable
// calls and must always be invoked under a timeout by the caller.
type Coordinator interface {
	Responder

	// SelectTeam picks a primary responder plus zero or more supporting
	// responders for the query, given the available catalog names.
	SelectTeam(ctx context.Context, query string, names []string) (Selection, error)

	// Synthesize merges partial answers into one coherent answer for the
	// original query.
	Synthesize(ctx context.Context, query string, partials []Partial) (string, error)
}
