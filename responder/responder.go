// Package responder provides the model-backed implementations of the core
// responder capability interfaces: ModelResponder for ordinary
// participants and Coordinator for the responder that additionally owns
// delegated selection and synthesis.
package responder

import (
	"context"
	"fmt"
	"strings"

	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/model"
	"github.com/parleyhq/parley/registry"
)

// Options configures a ModelResponder.
type Options struct {
	// Instruction is the persona system prompt. Defaults to a generic
	// assistant prompt built from the responder name.
	Instruction string
	// Observer marks the responder as silently observing instead of
	// actively replying.
	Observer bool
}

// ModelResponder answers turns by driving a text-generation model with the
// turn context folded into the system prompt. Each instance is owned by
// exactly one conversation; the model client itself is stateless and may
// be shared.
type ModelResponder struct {
	name        string
	description string
	observer    bool
	instruction string
	llm         model.Model
}

var _ core.Responder = (*ModelResponder)(nil)

// New creates a ModelResponder with the given canonical name.
func New(name, description string, llm model.Model, optFns ...func(o *Options)) *ModelResponder {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}

	canonical := registry.Canonical(name)
	if opts.Instruction == "" {
		opts.Instruction = fmt.Sprintf("You are %s, a helpful assistant. Answer the user directly and concisely.", canonical)
	}

	return &ModelResponder{
		name:        canonical,
		description: description,
		observer:    opts.Observer,
		instruction: opts.Instruction,
		llm:         llm,
	}
}

// Name returns the canonical responder name.
func (r *ModelResponder) Name() string { return r.name }

// Description returns the catalog description.
func (r *ModelResponder) Description() string { return r.description }

// Observer reports whether the responder silently observes.
func (r *ModelResponder) Observer() bool { return r.observer }

// Respond implements core.Responder in buffered mode.
func (r *ModelResponder) Respond(ctx context.Context, tc *core.TurnContext, input string) (string, error) {
	respCh, errCh := r.llm.Generate(ctx, r.buildRequest(tc, input, false))
	return drain(ctx, respCh, errCh)
}

// RespondStream implements core.Responder in streamed mode. Only partial
// chunks are forwarded; concatenating them yields the full answer.
func (r *ModelResponder) RespondStream(ctx context.Context, tc *core.TurnContext, input string) (<-chan string, <-chan error) {
	out := make(chan string, 32)
	errOut := make(chan error, 1)

	respCh, errCh := r.llm.Generate(ctx, r.buildRequest(tc, input, true))

	go func() {
		defer close(out)
		defer close(errOut)
		for resp := range respCh {
			if !resp.Partial {
				continue
			}
			select {
			case <-ctx.Done():
				errOut <- ctx.Err()
				return
			case out <- resp.Text:
			}
		}
		if err := <-errCh; err != nil {
			errOut <- err
		}
	}()

	return out, errOut
}

// buildRequest folds the turn context into the system prompt. The memory
// window and knowledge snippets are advisory; absence of either leaves the
// prompt shorter, never invalid.
func (r *ModelResponder) buildRequest(tc *core.TurnContext, input string, stream bool) model.Request {
	var sb strings.Builder
	sb.WriteString(r.instruction)

	if tc != nil && tc.MemoryWindow != "" {
		sb.WriteString("\n\nRecent conversation:\n")
		sb.WriteString(tc.MemoryWindow)
	}
	if tc != nil && len(tc.Snippets) > 0 {
		sb.WriteString("\n\nRelevant knowledge:\n")
		for _, s := range tc.Snippets {
			sb.WriteString("- ")
			sb.WriteString(s.Content)
			sb.WriteString("\n")
		}
	}

	return model.Request{
		Instructions: sb.String(),
		Messages:     []model.Message{{Role: "user", Text: input}},
		Stream:       stream,
	}
}

// drain consumes a generation stream and returns the final text.
func drain(ctx context.Context, respCh <-chan model.Response, errCh <-chan error) (string, error) {
	var final string
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case resp, ok := <-respCh:
			if !ok {
				if err := <-errCh; err != nil {
					return "", err
				}
				return final, nil
			}
			if !resp.Partial {
				final = resp.Text
			}
		}
	}
}
