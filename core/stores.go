package core

import "context"

// Retriever is the knowledge-retrieval collaborator: a keyed similarity
// search returning ranked text snippets. Callers treat any error as an
// empty result set — knowledge context is best effort and must never
// abort a turn.
type Retriever interface {
	Query(ctx context.Context, ownerID, text string, k int) ([]Snippet, error)
}

// MemoryStore formats the short-term conversational window for a
// conversation and records completed turns. Window is a pure read.
type MemoryStore interface {
	// Window returns the formatted short-term memory window for the
	// conversation, empty when nothing has been recorded.
	Window(ctx context.Context, conversationID string) (string, error)

	// Append records one utterance (role is "user" or a responder name).
	Append(ctx context.Context, conversationID, role, text string) error
}
