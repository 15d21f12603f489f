package responder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/model"
)

// scriptModel returns one fixed completion regardless of input.
type scriptModel struct {
	text string
	err  error
}

func (s *scriptModel) Generate(_ context.Context, _ model.Request) (<-chan model.Response, <-chan error) {
	respCh := make(chan model.Response, 1)
	errCh := make(chan error, 1)
	if s.err != nil {
		errCh <- s.err
	} else {
		respCh <- model.Response{Text: s.text, FinishReason: "stop"}
	}
	close(respCh)
	close(errCh)
	return respCh, errCh
}

func (s *scriptModel) Info() model.Info { return model.Info{Name: "script", Provider: "mock"} }

func TestSelectTeam_ParsesSelection(t *testing.T) {
	llm := &scriptModel{text: `{"primary_agent": "helper", "supporting_agents": ["critic"]}`}
	c := NewCoordinator("moderator", "", llm)

	sel, err := c.SelectTeam(context.Background(), "query", []string{"MODERATOR", "HELPER", "CRITIC"})
	assert.NoError(t, err)
	assert.Equal(t, "HELPER", sel.Primary)
	assert.Equal(t, []string{"CRITIC"}, sel.Supporting)
}

func TestSelectTeam_EmptyCatalogErrors(t *testing.T) {
	c := NewCoordinator("moderator", "", &scriptModel{text: "{}"})

	_, err := c.SelectTeam(context.Background(), "query", nil)
	assert.Error(t, err)
}

func TestSelectTeam_MalformedOutputErrors(t *testing.T) {
	c := NewCoordinator("moderator", "", &scriptModel{text: "sure, I pick HELPER"})

	_, err := c.SelectTeam(context.Background(), "query", []string{"HELPER"})
	assert.Error(t, err)
}

func TestSelectTeam_MissingPrimaryErrors(t *testing.T) {
	c := NewCoordinator("moderator", "", &scriptModel{text: `{"supporting_agents": ["HELPER"]}`})

	_, err := c.SelectTeam(context.Background(), "query", []string{"HELPER"})
	assert.Error(t, err)
}

func TestSynthesize_MergesPartials(t *testing.T) {
	llm := &scriptModel{text: "one merged answer"}
	c := NewCoordinator("moderator", "", llm)

	text, err := c.Synthesize(context.Background(), "query", []core.Partial{
		{Responder: "HELPER", Text: "draft a"},
		{Responder: "CRITIC", Text: "draft b"},
	})
	assert.NoError(t, err)
	assert.Equal(t, "one merged answer", text)
}

func TestSynthesize_EmptyPartialsErrors(t *testing.T) {
	c := NewCoordinator("moderator", "", &scriptModel{text: "x"})

	_, err := c.Synthesize(context.Background(), "query", nil)
	assert.Error(t, err)
}
