// Package model defines the minimal text-generation contract consumed by
// responders, plus a deterministic MockModel for tests and examples.
// Provider adapters live in the openai and anthropic subpackages.
package model

import (
	"context"
	"fmt"
	"strings"
)

// Message is a single role-tagged message in a generation request.
type Message struct {
	Role string `json:"role"` // "user" or "assistant"
	Text string `json:"text"`
}

// Request captures the normalized model input produced by responders.
type Request struct {
	// Instructions is the system prompt.
	Instructions string `json:"instructions"`
	// Messages is the ordered conversation handed to the provider.
	Messages []Message `json:"messages"`
	// Stream requests incremental delivery of the completion.
	Stream bool `json:"stream,omitempty"`
	// JSONOutput constrains the completion to a single JSON object where
	// the provider supports it. Used by delegated selection.
	JSONOutput bool `json:"json_output,omitempty"`
}

// Response is a (partial or final) chunk emitted by a model. For partial
// chunks Text holds only the delta; the final chunk carries the full
// accumulated text.
type Response struct {
	Partial      bool   `json:"partial"`
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "mock", ...
}

// Model is the minimal interface required to drive generation. Generate
// returns a response channel (closed after the final chunk) and a terminal
// error channel (buffered, size 1). Implementations must respect context
// cancellation between chunks.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// MockModel is a lightweight in-memory Model useful for tests & examples.
// Canned completions are keyed by the text of the last message; unmatched
// inputs get a deterministic echo response.
type MockModel struct {
	info      Info
	responses map[string]string
	errors    map[string]error
}

// NewMockModel constructs an empty MockModel.
func NewMockModel(name string) *MockModel {
	return &MockModel{
		info:      Info{Name: name, Provider: "mock"},
		responses: make(map[string]string),
		errors:    make(map[string]error),
	}
}

// AddResponse registers a deterministic canned completion for an input prompt.
func (m *MockModel) AddResponse(prompt, response string) { m.responses[prompt] = response }

// AddError registers a terminal error returned for an input prompt.
func (m *MockModel) AddError(prompt string, err error) { m.errors[prompt] = err }

// Generate implements Model; emits optional streaming word chunks then the
// final accumulated response.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(respCh)
		defer close(errCh)

		if len(req.Messages) == 0 {
			errCh <- fmt.Errorf("no messages provided")
			return
		}
		input := req.Messages[len(req.Messages)-1].Text

		if err, ok := m.errors[input]; ok {
			errCh <- err
			return
		}

		full := m.responses[input]
		if full == "" {
			full = fmt.Sprintf("Mock response to: %s", input)
		}

		if req.Stream {
			for _, word := range strings.SplitAfter(full, " ") {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{Partial: true, Text: word}:
				}
			}
		}

		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case respCh <- Response{Text: full, FinishReason: "stop"}:
		}
	}()

	return respCh, errCh
}

// Info implements Model.
func (m *MockModel) Info() Info { return m.info }
