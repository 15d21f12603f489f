// Package registry isolates responder instances per conversation. Two
// conversations never observe or mutate the same instance, and a
// conversation never instantiates the same template twice.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/logging"
)

// Template is the immutable, registered definition of a responder. New is
// the per-conversation factory: it must return a fresh instance with no
// state shared with any previously built instance.
type Template struct {
	Name        string
	Description string
	Observer    bool
	New         func() core.Responder
}

// Options configures a Registry.
type Options struct {
	Logger logging.Logger
}

// Registry holds the template catalog and the per-conversation instance
// maps. Mutation is confined to RegisterTemplate, Activate and Release;
// per-conversation maps are independent, so concurrent calls for different
// conversations only contend on the outer map lock.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]Template                   // canonical name -> template
	instances map[string]map[string]core.Responder // conversation -> canonical name -> instance
	logger    logging.Logger
}

// New constructs an empty Registry.
func New(optFns ...func(o *Options)) *Registry {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Registry{
		templates: make(map[string]Template),
		instances: make(map[string]map[string]core.Responder),
		logger:    opts.Logger,
	}
}

// Canonical returns the canonical form of a responder name. Name
// comparison throughout the registry is case-insensitive; names are stored
// upper-cased.
func Canonical(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// RegisterTemplate adds or overwrites a named template. The template name
// field wins over the map key the caller may have used elsewhere.
func (r *Registry) RegisterTemplate(name string, t Template) error {
	canonical := Canonical(name)
	if canonical == "" {
		return fmt.Errorf("template name must not be empty")
	}
	if t.New == nil {
		return fmt.Errorf("template %s has no factory", canonical)
	}
	t.Name = canonical

	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[canonical] = t
	return nil
}

// Activate ensures the conversation has an instance for each requested
// name, building missing ones from their templates. Unknown names are
// skipped with a log line, never an error: the orchestrator treats a
// missing instance as unavailable, not fatal. Already-built instances are
// left untouched, so Activate is idempotent.
func (r *Registry) Activate(conversationID string, names []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	convInstances, ok := r.instances[conversationID]
	if !ok {
		convInstances = make(map[string]core.Responder)
		r.instances[conversationID] = convInstances
	}

	for _, name := range names {
		canonical := Canonical(name)
		if _, exists := convInstances[canonical]; exists {
			continue
		}
		t, ok := r.templates[canonical]
		if !ok {
			r.logger.Warn("skipping unknown responder template", "name", canonical, "conversation_id", conversationID)
			continue
		}
		convInstances[canonical] = t.New()
	}
}

// Get returns the conversation's instance for name, instantiating it on
// demand when the template exists — callers never need a separate "ensure
// activated" step. The boolean is false only when no template matches.
func (r *Registry) Get(conversationID, name string) (core.Responder, bool) {
	canonical := Canonical(name)

	r.mu.RLock()
	if convInstances, ok := r.instances[conversationID]; ok {
		if inst, ok := convInstances[canonical]; ok {
			r.mu.RUnlock()
			return inst, true
		}
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	convInstances, ok := r.instances[conversationID]
	if !ok {
		convInstances = make(map[string]core.Responder)
		r.instances[conversationID] = convInstances
	}
	if inst, ok := convInstances[canonical]; ok {
		return inst, true
	}
	t, ok := r.templates[canonical]
	if !ok {
		return nil, false
	}
	inst := t.New()
	convInstances[canonical] = inst
	return inst, true
}

// ListNames returns the catalog scoped to the conversation when it is
// known, otherwise the full template catalog. Names are sorted for
// deterministic iteration.
func (r *Registry) ListNames(conversationID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	if convInstances, ok := r.instances[conversationID]; ok && len(convInstances) > 0 {
		for name := range convInstances {
			names = append(names, name)
		}
	} else {
		for name := range r.templates {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Descriptions returns the name -> description catalog, defaulting to
// "<NAME> agent" when a template supplies no description.
func (r *Registry) Descriptions() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]string, len(r.templates))
	for name, t := range r.templates {
		desc := t.Description
		if desc == "" {
			desc = fmt.Sprintf("%s agent", name)
		}
		out[name] = desc
	}
	return out
}

// Template returns the registered template for name.
func (r *Registry) Template(name string) (Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[Canonical(name)]
	return t, ok
}

// Release drops all instances for a conversation. It is idempotent;
// releasing an unknown conversation is a no-op.
func (r *Registry) Release(conversationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.instances, conversationID)
}
