// Package parley provides a high-level façade over the registry, the
// collaboration engine and the turn orchestrator, enabling rapid
// construction of multi-responder conversational routers. Most
// applications interact with this package by:
//  1. Creating a Parley via New() with a chat model
//  2. Registering responder templates (RegisterResponder)
//  3. Processing turns (ProcessTurn) buffered or with a streaming sink
//
// The façade delegates routing to orchestrator.Orchestrator while keeping
// setup ergonomics concise. All defaults are safe for local development;
// production deployments typically supply a Redis memory store, a chromem
// retriever and a structured logger.
package parley

import (
	"context"
	"fmt"

	"github.com/parleyhq/parley/collab"
	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/logging"
	"github.com/parleyhq/parley/metrics"
	"github.com/parleyhq/parley/model"
	"github.com/parleyhq/parley/orchestrator"
	"github.com/parleyhq/parley/registry"
	"github.com/parleyhq/parley/responder"
)

// DefaultCoordinatorName is the responder every fallback path resolves to.
const DefaultCoordinatorName = "MODERATOR"

// Options configures the Parley instance.
type Options struct {
	// CollabConfig tunes the collaboration engine (timeouts, history).
	CollabConfig collab.Config
	// OrchestratorConfig tunes turn processing (retrieval, timeouts).
	OrchestratorConfig orchestrator.Config

	// CoordinatorName overrides the default coordinating responder name.
	CoordinatorName string
	// CoordinatorDescription is shown in the responder catalog.
	CoordinatorDescription string
	// CoordinatorInstruction overrides the coordinator persona prompt.
	CoordinatorInstruction string

	// Retriever supplies knowledge snippets (defaults to none).
	Retriever core.Retriever
	// Memory supplies the short-term transcript window (defaults to none).
	Memory core.MemoryStore

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
	// Metrics (defaults to nil, which disables recording)
	Metrics *metrics.Metrics
}

// Parley is the high-level façade aggregating the registry, the
// collaboration engine and the orchestrator.
type Parley struct {
	opts Options
	llm  model.Model
	reg  *registry.Registry
	orch *orchestrator.Orchestrator
	eng  *collab.Engine
}

// New creates a Parley instance over the given chat model. The
// coordinating responder template is registered automatically.
func New(llm model.Model, optFns ...func(o *Options)) (*Parley, error) {
	opts := Options{
		CollabConfig:           collab.DefaultConfig,
		OrchestratorConfig:     orchestrator.DefaultConfig,
		CoordinatorName:        DefaultCoordinatorName,
		CoordinatorDescription: "Coordinates the conversation, delegates to specialists and merges their answers",
		Logger:                 logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	reg := registry.New(func(o *registry.Options) {
		o.Logger = opts.Logger
	})

	coordName := registry.Canonical(opts.CoordinatorName)
	err := reg.RegisterTemplate(coordName, registry.Template{
		Name:        coordName,
		Description: opts.CoordinatorDescription,
		New: func() core.Responder {
			return responder.NewCoordinator(coordName, opts.CoordinatorDescription, llm, func(o *responder.Options) {
				o.Instruction = opts.CoordinatorInstruction
			})
		},
	})
	if err != nil {
		return nil, fmt.Errorf("registering coordinator: %w", err)
	}

	eng := collab.NewEngine(reg, func(o *collab.Options) {
		o.Config = opts.CollabConfig
		o.CoordinatorName = coordName
		o.Logger = opts.Logger
		o.Metrics = opts.Metrics
	})

	orch := orchestrator.New(reg, eng, func(o *orchestrator.Options) {
		o.Config = opts.OrchestratorConfig
		o.DefaultResponder = coordName
		o.Retriever = opts.Retriever
		o.Memory = opts.Memory
		o.Logger = opts.Logger
		o.Metrics = opts.Metrics
	})

	return &Parley{opts: opts, llm: llm, reg: reg, orch: orch, eng: eng}, nil
}

// RegisterResponder adds a responder template backed by the façade's
// model. Every conversation that activates the name gets its own
// instance.
func (p *Parley) RegisterResponder(name, description string, optFns ...func(o *responder.Options)) error {
	canonical := registry.Canonical(name)
	return p.reg.RegisterTemplate(canonical, registry.Template{
		Name:        canonical,
		Description: description,
		New: func() core.Responder {
			return responder.New(canonical, description, p.llm, optFns...)
		},
	})
}

// RegisterTemplate adds an arbitrary responder template, for responders
// not backed by the façade's model.
func (p *Parley) RegisterTemplate(t registry.Template) error {
	return p.reg.RegisterTemplate(t.Name, t)
}

// ProcessTurn routes one conversational turn. It never returns an error;
// failures are folded into the returned text.
func (p *Parley) ProcessTurn(ctx context.Context, req orchestrator.TurnRequest) (name, text string) {
	return p.orch.ProcessTurn(ctx, req)
}

// Registry exposes the underlying responder registry.
func (p *Parley) Registry() *registry.Registry { return p.reg }

// Stats reports collaboration-session counters.
func (p *Parley) Stats() collab.Stats { return p.eng.Stats() }

// Release drops a conversation's responder instances.
func (p *Parley) Release(conversationID string) { p.reg.Release(conversationID) }
