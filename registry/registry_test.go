package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/parleyhq/parley/core"
)

// testResponder is a minimal concrete responder used to observe
// per-conversation instantiation.
type testResponder struct {
	name  string
	notes []string
}

func (t *testResponder) Name() string        { return t.name }
func (t *testResponder) Description() string { return "test responder" }
func (t *testResponder) Observer() bool      { return false }

func (t *testResponder) Respond(_ context.Context, _ *core.TurnContext, input string) (string, error) {
	t.notes = append(t.notes, input)
	return "ok", nil
}

func (t *testResponder) RespondStream(_ context.Context, _ *core.TurnContext, _ string) (<-chan string, <-chan error) {
	out := make(chan string)
	errs := make(chan error, 1)
	close(out)
	close(errs)
	return out, errs
}

func testTemplate(name string) Template {
	return Template{
		Name:        name,
		Description: name + " for tests",
		New:         func() core.Responder { return &testResponder{name: name} },
	}
}

func TestCanonical(t *testing.T) {
	assert.Equal(t, "MODERATOR", Canonical(" moderator "))
	assert.Equal(t, "SPECIALIST", Canonical("Specialist"))
	assert.Equal(t, "", Canonical("   "))
}

func TestRegisterTemplate_Validation(t *testing.T) {
	r := New()

	err := r.RegisterTemplate("", testTemplate("X"))
	assert.Error(t, err)

	err = r.RegisterTemplate("X", Template{Name: "X"})
	assert.Error(t, err)

	err = r.RegisterTemplate("helper", testTemplate("HELPER"))
	assert.NoError(t, err)

	tmpl, ok := r.Template("Helper")
	assert.True(t, ok)
	assert.Equal(t, "HELPER", tmpl.Name)
}

func TestGet_InstancesAreIsolatedPerConversation(t *testing.T) {
	r := New()
	assert.NoError(t, r.RegisterTemplate("HELPER", testTemplate("HELPER")))

	a, ok := r.Get("conv-a", "helper")
	assert.True(t, ok)
	b, ok := r.Get("conv-b", "helper")
	assert.True(t, ok)
	assert.NotSame(t, a, b)

	// Mutating one conversation's instance must not leak into the other.
	_, err := a.Respond(context.Background(), nil, "hello from a")
	assert.NoError(t, err)
	assert.Len(t, a.(*testResponder).notes, 1)
	assert.Empty(t, b.(*testResponder).notes)

	// Same conversation gets the same instance back.
	a2, ok := r.Get("conv-a", "HELPER")
	assert.True(t, ok)
	assert.Same(t, a, a2)
}

func TestGet_UnknownTemplate(t *testing.T) {
	r := New()
	inst, ok := r.Get("conv-a", "GHOST")
	assert.False(t, ok)
	assert.Nil(t, inst)
}

func TestActivate_IsIdempotentAndSkipsUnknown(t *testing.T) {
	r := New()
	assert.NoError(t, r.RegisterTemplate("HELPER", testTemplate("HELPER")))
	assert.NoError(t, r.RegisterTemplate("CRITIC", testTemplate("CRITIC")))

	r.Activate("conv-a", []string{"helper", "ghost"})
	first, ok := r.Get("conv-a", "HELPER")
	assert.True(t, ok)

	r.Activate("conv-a", []string{"helper", "critic"})
	second, ok := r.Get("conv-a", "HELPER")
	assert.True(t, ok)
	assert.Same(t, first, second)

	assert.Equal(t, []string{"CRITIC", "HELPER"}, r.ListNames("conv-a"))
}

func TestListNames_FallsBackToFullCatalog(t *testing.T) {
	r := New()
	assert.NoError(t, r.RegisterTemplate("HELPER", testTemplate("HELPER")))
	assert.NoError(t, r.RegisterTemplate("CRITIC", testTemplate("CRITIC")))

	assert.Equal(t, []string{"CRITIC", "HELPER"}, r.ListNames("unknown-conv"))
}

func TestDescriptions_DefaultsWhenEmpty(t *testing.T) {
	r := New()
	assert.NoError(t, r.RegisterTemplate("HELPER", Template{
		New: func() core.Responder { return &testResponder{name: "HELPER"} },
	}))

	descs := r.Descriptions()
	assert.Equal(t, "HELPER agent", descs["HELPER"])
}

func TestRelease_IsIdempotent(t *testing.T) {
	r := New()
	assert.NoError(t, r.RegisterTemplate("HELPER", testTemplate("HELPER")))

	first, ok := r.Get("conv-a", "HELPER")
	assert.True(t, ok)

	r.Release("conv-a")
	r.Release("conv-a")
	r.Release("never-seen")

	second, ok := r.Get("conv-a", "HELPER")
	assert.True(t, ok)
	assert.NotSame(t, first, second)
}
