package core

// Snippet is one ranked knowledge-retrieval hit attached to a turn.
type Snippet struct {
	Content string         `json:"content"`
	Score   float64        `json:"score"`
	Source  map[string]any `json:"source,omitempty"`
}

// TurnContext is the per-invocation value object assembled by the
// orchestrator before dispatch. It is created once per turn and discarded
// when the turn completes; nothing here is persisted.
//
// Invariant: Catalog is never empty by the time responder selection runs —
// at minimum the default coordinating responder is present.
type TurnContext struct {
	// ConversationID scopes responder instances and memory lookups.
	ConversationID string
	// OwnerID keys knowledge retrieval.
	OwnerID string
	// Message is the raw user message for this turn.
	Message string

	// MemoryWindow is the formatted short-term conversation window.
	// Empty when the memory store is unavailable (best effort).
	MemoryWindow string
	// Snippets holds ranked knowledge hits, best first. Empty on
	// retrieval failure (best effort).
	Snippets []Snippet

	// Catalog maps canonical responder names to their descriptions for
	// this conversation.
	Catalog map[string]string

	// Resolved is the primary responder chosen for this turn.
	Resolved string
	// Collaborators lists additional responders selected to contribute,
	// excluding the primary.
	Collaborators []string
	// Delegated records that selection went through the coordinator's
	// delegated selection call rather than an explicit mention. It is
	// informational only.
	Delegated bool
}

// CatalogNames returns the catalog keys in lexicographic-free map order.
// Callers that need determinism must sort.
func (tc *TurnContext) CatalogNames() []string {
	names := make([]string, 0, len(tc.Catalog))
	for name := range tc.Catalog {
		names = append(names, name)
	}
	return names
}
