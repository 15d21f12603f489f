package responder

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/model"
	"github.com/parleyhq/parley/registry"
)

// Coordinator is a ModelResponder that additionally implements the
// delegated selection and synthesis capabilities. One coordinator template
// is registered per deployment; the orchestrator falls back to it whenever
// selection or resolution fails.
type Coordinator struct {
	*ModelResponder
}

var _ core.Coordinator = (*Coordinator)(nil)

// NewCoordinator creates a coordinator responder.
func NewCoordinator(name, description string, llm model.Model, optFns ...func(o *Options)) *Coordinator {
	return &Coordinator{ModelResponder: New(name, description, llm, optFns...)}
}

// SelectTeam implements core.Coordinator. The model is asked for a single
// JSON object naming a primary responder and zero or more supporting ones;
// anything unparseable is an error the caller recovers from by falling
// back to the coordinator itself.
func (c *Coordinator) SelectTeam(ctx context.Context, query string, names []string) (core.Selection, error) {
	if len(names) == 0 {
		return core.Selection{}, fmt.Errorf("selection requires a non-empty catalog")
	}

	prompt := fmt.Sprintf(
		"Pick the agent best suited to answer the query, plus any agents whose perspective would improve the answer.\n"+
			"Query: %s\n"+
			"Available agents: %s\n"+
			"Respond with a JSON object of the form {\"primary_agent\": \"NAME\", \"supporting_agents\": [\"NAME\", ...]}.",
		query, strings.Join(names, ", "),
	)

	respCh, errCh := c.llm.Generate(ctx, model.Request{
		Instructions: "You route conversational turns between specialized agents.",
		Messages:     []model.Message{{Role: "user", Text: prompt}},
		JSONOutput:   true,
	})
	raw, err := drain(ctx, respCh, errCh)
	if err != nil {
		return core.Selection{}, fmt.Errorf("delegated selection call: %w", err)
	}

	var sel core.Selection
	if err := json.Unmarshal([]byte(raw), &sel); err != nil {
		return core.Selection{}, fmt.Errorf("malformed selection output %q: %w", raw, err)
	}
	if sel.Primary == "" {
		return core.Selection{}, fmt.Errorf("selection output %q names no primary agent", raw)
	}

	sel.Primary = registry.Canonical(sel.Primary)
	for i, name := range sel.Supporting {
		sel.Supporting[i] = registry.Canonical(name)
	}
	return sel, nil
}

// Synthesize implements core.Coordinator, merging partial answers into one
// coherent reply to the original query.
func (c *Coordinator) Synthesize(ctx context.Context, query string, partials []core.Partial) (string, error) {
	if len(partials) == 0 {
		return "", fmt.Errorf("nothing to synthesize")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Several agents answered the query below. Merge their answers into one coherent reply. Do not mention the agents.\n\nQuery: %s\n", query)
	for _, p := range partials {
		fmt.Fprintf(&sb, "\n## %s\n%s\n", p.Responder, p.Text)
	}

	respCh, errCh := c.llm.Generate(ctx, model.Request{
		Instructions: "You merge multiple draft answers into a single final answer.",
		Messages:     []model.Message{{Role: "user", Text: sb.String()}},
	})
	return drain(ctx, respCh, errCh)
}
