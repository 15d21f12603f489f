// Package orchestrator turns a raw conversational message into a final
// answer: it assembles the turn context, selects a responder (or responder
// set), and drives either a single-responder run or a collaborative run
// through the collab engine. Its public entry point never returns an
// error — every failure is folded into the returned text.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/parleyhq/parley/collab"
	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/logging"
	"github.com/parleyhq/parley/metrics"
	"github.com/parleyhq/parley/registry"
)

// Config defines the orchestrator's tuning parameters.
type Config struct {
	// RetrievalK bounds the knowledge-retrieval call.
	RetrievalK int
	// SelectionTimeout bounds the delegated selection call.
	SelectionTimeout time.Duration
	// ResponseTimeout bounds a single-responder run.
	ResponseTimeout time.Duration
}

// DefaultConfig provides sensible defaults.
var DefaultConfig = Config{
	RetrievalK:       4,
	SelectionTimeout: 15 * time.Second,
	ResponseTimeout:  60 * time.Second,
}

// Options configures an Orchestrator.
type Options struct {
	Config Config
	// DefaultResponder is the coordinating responder every fallback path
	// resolves to.
	DefaultResponder string
	Retriever        core.Retriever
	Memory           core.MemoryStore
	Logger           logging.Logger
	Metrics          *metrics.Metrics
}

// TurnRequest is one turn-processing request.
type TurnRequest struct {
	Message        string
	ConversationID string
	OwnerID        string
	// Participants lists the responder names available for this turn;
	// unknown names are ignored.
	Participants []string
	// Mention is an optional explicit responder override.
	Mention string
	// Sink, when non-nil, receives token increments (single run) and
	// progress notices (collaborative run) as they are produced.
	Sink core.StreamSink
}

// Orchestrator composes the registry, the collaboration engine and the
// external collaborators into the turn-processing entry point.
type Orchestrator struct {
	reg         *registry.Registry
	engine      *collab.Engine
	retriever   core.Retriever
	memory      core.MemoryStore
	defaultName string
	cfg         Config
	logger      logging.Logger
	metrics     *metrics.Metrics
}

// New constructs an Orchestrator.
func New(reg *registry.Registry, engine *collab.Engine, optFns ...func(o *Options)) *Orchestrator {
	opts := Options{
		Config:           DefaultConfig,
		DefaultResponder: "MODERATOR",
		Logger:           logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Orchestrator{
		reg:         reg,
		engine:      engine,
		retriever:   opts.Retriever,
		memory:      opts.Memory,
		defaultName: registry.Canonical(opts.DefaultResponder),
		cfg:         opts.Config,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
	}
}

// ProcessTurn is the single public entry point. It always returns a
// responder name and a text; failures are encoded into the text, never
// raised. The worst-case text explains the underlying error.
func (o *Orchestrator) ProcessTurn(ctx context.Context, req TurnRequest) (name, text string) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("panic while processing turn", "conversation_id", req.ConversationID, "panic", r)
			o.metrics.RecordTurn("error")
			name = o.defaultName
			text = fmt.Sprintf("I could not process that message (%v).", r)
		}
	}()

	tc := o.PrepareContext(ctx, req)
	o.SelectResponder(ctx, tc, req.Mention)

	if len(tc.Collaborators) > 0 {
		return o.runCollaboration(ctx, tc, req)
	}
	return o.runSingle(ctx, tc, req)
}

// PrepareContext assembles the per-turn context: the short-term memory
// window, a bounded-k knowledge-retrieval call, and the responder catalog
// scoped to the conversation. Retrieval and memory failures degrade to
// empty results; the catalog always contains the default responder when
// its template is registered.
func (o *Orchestrator) PrepareContext(ctx context.Context, req TurnRequest) *core.TurnContext {
	o.reg.Activate(req.ConversationID, req.Participants)

	tc := &core.TurnContext{
		ConversationID: req.ConversationID,
		OwnerID:        req.OwnerID,
		Message:        req.Message,
	}

	if o.memory != nil {
		window, err := o.memory.Window(ctx, req.ConversationID)
		if err != nil {
			o.logger.Warn("memory window unavailable", "conversation_id", req.ConversationID, "error", err)
		} else {
			tc.MemoryWindow = window
		}
	}

	if o.retriever != nil {
		snippets, err := o.retriever.Query(ctx, req.OwnerID, req.Message, o.cfg.RetrievalK)
		if err != nil {
			o.logger.Warn("knowledge retrieval unavailable", "owner_id", req.OwnerID, "error", err)
		} else {
			tc.Snippets = snippets
		}
	}

	descriptions := o.reg.Descriptions()
	tc.Catalog = make(map[string]string)
	for _, name := range o.reg.ListNames(req.ConversationID) {
		desc, ok := descriptions[name]
		if !ok {
			desc = fmt.Sprintf("%s agent", name)
		}
		tc.Catalog[name] = desc
	}
	if _, ok := tc.Catalog[o.defaultName]; !ok {
		if desc, ok := descriptions[o.defaultName]; ok {
			tc.Catalog[o.defaultName] = desc
		}
	}

	return tc
}

// SelectResponder resolves the primary responder (and collaborator set)
// for the turn. An explicit mention short-circuits delegated selection
// entirely; otherwise the coordinator's selection capability is consulted
// under a timeout, and any failure falls back to the default responder
// with no collaborators.
func (o *Orchestrator) SelectResponder(ctx context.Context, tc *core.TurnContext, mention string) {
	names := catalogNames(tc)

	if strings.TrimSpace(mention) != "" {
		tc.Resolved = ResolveMention(mention, names, o.defaultName)
		return
	}

	coord, ok := o.coordinator(tc.ConversationID)
	if !ok {
		tc.Resolved = o.defaultName
		return
	}

	tc.Delegated = true

	selCtx, cancel := context.WithTimeout(ctx, o.cfg.SelectionTimeout)
	defer cancel()

	sel, err := coord.SelectTeam(selCtx, tc.Message, names)
	if err != nil {
		o.logger.Warn("delegated selection failed, using default responder",
			"conversation_id", tc.ConversationID, "error", err)
		tc.Resolved = o.defaultName
		tc.Collaborators = nil
		return
	}

	if containsName(names, sel.Primary) {
		tc.Resolved = sel.Primary
	} else {
		o.logger.Warn("selection named an unknown primary", "primary", sel.Primary)
		tc.Resolved = o.defaultName
	}

	seen := map[string]bool{tc.Resolved: true}
	for _, name := range sel.Supporting {
		if !containsName(names, name) || seen[name] {
			continue
		}
		seen[name] = true
		tc.Collaborators = append(tc.Collaborators, name)
	}
}

// runSingle executes the resolved responder alone, buffered or streamed
// depending on whether the request carries a sink. Both modes return the
// identical final text; only delivery cadence differs.
func (o *Orchestrator) runSingle(ctx context.Context, tc *core.TurnContext, req TurnRequest) (string, string) {
	resolved := tc.Resolved
	inst, ok := o.reg.Get(tc.ConversationID, resolved)
	if !ok {
		resolved = o.defaultName
		inst, ok = o.reg.Get(tc.ConversationID, resolved)
	}
	if !ok {
		o.metrics.RecordTurn("error")
		return o.defaultName, fmt.Sprintf("No responder is available to answer (unknown responder %q).", tc.Resolved)
	}

	runCtx, cancel := context.WithTimeout(ctx, o.cfg.ResponseTimeout)
	defer cancel()

	var text string
	var err error
	if req.Sink == nil {
		text, err = inst.Respond(runCtx, tc, req.Message)
	} else {
		text, err = streamRun(runCtx, inst, tc, req.Message, req.Sink)
	}
	if err != nil {
		o.logger.Error("responder run failed", "responder", resolved, "conversation_id", tc.ConversationID, "error", err)
		o.metrics.RecordTurn("error")
		return o.defaultName, fmt.Sprintf("I could not produce an answer: %v", err)
	}

	o.remember(ctx, tc, resolved, text)
	o.metrics.RecordTurn("ok")
	return resolved, text
}

// runCollaboration hands the turn to the collaboration engine and awaits
// its completion future.
func (o *Orchestrator) runCollaboration(ctx context.Context, tc *core.TurnContext, req TurnRequest) (string, string) {
	o.logger.Info("dispatching collaborative turn",
		"conversation_id", tc.ConversationID, "primary", tc.Resolved,
		"collaborators", strings.Join(tc.Collaborators, ","), "delegated", tc.Delegated)

	sessionID := o.engine.Initiate(ctx, tc, req.Message, tc.Resolved, tc.Collaborators, req.Sink)
	text, err := o.engine.AwaitResult(ctx, sessionID)
	if err != nil {
		o.metrics.RecordTurn("error")
		return tc.Resolved, fmt.Sprintf("The collaboration could not produce an answer: %v", err)
	}

	o.remember(ctx, tc, tc.Resolved, text)
	o.metrics.RecordTurn("ok")
	return tc.Resolved, text
}

// streamRun forwards token increments to the sink as soon as they arrive
// and returns the concatenated final text.
func streamRun(ctx context.Context, r core.Responder, tc *core.TurnContext, input string, sink core.StreamSink) (string, error) {
	tokens, errs := r.RespondStream(ctx, tc, input)

	var sb strings.Builder
	for token := range tokens {
		sink(token)
		sb.WriteString(token)
	}
	if err := <-errs; err != nil {
		return "", err
	}
	return sb.String(), nil
}

// remember records the turn in the short-term memory store, best effort.
func (o *Orchestrator) remember(ctx context.Context, tc *core.TurnContext, responder, text string) {
	if o.memory == nil {
		return
	}
	if err := o.memory.Append(ctx, tc.ConversationID, "user", tc.Message); err != nil {
		o.logger.Warn("failed to record user message", "conversation_id", tc.ConversationID, "error", err)
		return
	}
	if err := o.memory.Append(ctx, tc.ConversationID, responder, text); err != nil {
		o.logger.Warn("failed to record responder reply", "conversation_id", tc.ConversationID, "error", err)
	}
}

func (o *Orchestrator) coordinator(conversationID string) (core.Coordinator, bool) {
	inst, ok := o.reg.Get(conversationID, o.defaultName)
	if !ok {
		return nil, false
	}
	coord, ok := inst.(core.Coordinator)
	return coord, ok
}

// catalogNames returns the turn's catalog names sorted for deterministic
// resolution.
func catalogNames(tc *core.TurnContext) []string {
	names := tc.CatalogNames()
	sort.Strings(names)
	return names
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
