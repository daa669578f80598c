package generic_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/order-engine/generic"
)

// =============================================================================
// FIXTURE
// =============================================================================

// transitionFixture holds a transitioner whose persisted statuses live in a
// map and whose strategies count their calls.
type transitionFixture struct {
	tr        *generic.Transitioner[*widget]
	persisted map[string]generic.StatusID
	calls     map[generic.StatusCode]int
}

func newTestTransitioner(t *testing.T) *transitionFixture {
	t.Helper()
	f := &transitionFixture{
		persisted: make(map[string]generic.StatusID),
		calls:     make(map[generic.StatusCode]int),
	}
	counting := func(code generic.StatusCode) generic.Strategy[*widget] {
		return generic.StrategyFunc[*widget](func(context.Context, *widget) error {
			f.calls[code]++
			return nil
		})
	}
	strategies := generic.NewStrategies[*widget](widgetFamily).
		Register("new", generic.Noop[*widget]()).
		Register("paid", counting("paid")).
		Register("refunded", counting("refunded"))

	graph := newTestGraph(t)
	require.NoError(t, strategies.Validate(graph, widgetGroup))

	f.tr = &generic.Transitioner[*widget]{
		Graph:      graph,
		Group:      widgetGroup,
		Strategies: strategies,
		PriorStatus: func(_ context.Context, w *widget) (generic.StatusID, error) {
			id, ok := f.persisted[w.id]
			if !ok {
				return "", &generic.NotFoundError{Entity: "widget", ID: w.id}
			}
			return id, nil
		},
	}
	return f
}

// save mirrors what a service does after a successful Process.
func (f *transitionFixture) save(w *widget) {
	w.saved = true
	f.persisted[w.id] = w.status
}

func (f *transitionFixture) stored(t *testing.T, status generic.StatusID) *widget {
	t.Helper()
	w := &widget{id: "w-1", status: status}
	f.save(w)
	return w
}

// =============================================================================
// NEW ENTITIES
// =============================================================================

func TestTransition_NewEntity_GetsDefault(t *testing.T) {
	f := newTestTransitioner(t)
	w := &widget{id: "w-1"}

	changed, err := f.tr.Process(context.Background(), w, false)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, generic.StatusID("st-new"), w.status)
	assert.Empty(t, f.calls)
}

func TestTransition_NewEntity_ExplicitDefaultAccepted(t *testing.T) {
	f := newTestTransitioner(t)
	w := &widget{id: "w-1", status: "st-new"}

	changed, err := f.tr.Process(context.Background(), w, false)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestTransition_NewEntity_NonDefaultRejected(t *testing.T) {
	// GIVEN: A new widget created directly as paid
	// WHEN: Processing it
	// THEN: It is rejected and no strategy runs

	f := newTestTransitioner(t)
	w := &widget{id: "w-1", status: "st-paid"}

	_, err := f.tr.Process(context.Background(), w, false)
	assert.ErrorIs(t, err, generic.ErrValidation)
	assert.Empty(t, f.calls)
}

// =============================================================================
// EXISTING ENTITIES
// =============================================================================

func TestTransition_Allowed_RunsStrategyOnce(t *testing.T) {
	// GIVEN: A persisted widget in "new"
	// WHEN: It is moved to "paid" and the same save is repeated
	// THEN: The paid strategy ran exactly once

	f := newTestTransitioner(t)
	ctx := context.Background()
	w := f.stored(t, "st-new")

	w.status = "st-paid"
	changed, err := f.tr.Process(ctx, w, false)
	require.NoError(t, err)
	assert.True(t, changed)
	f.save(w)

	changed, err = f.tr.Process(ctx, w, false)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 1, f.calls["paid"])
}

func TestTransition_EmptyRequestKeepsPrior(t *testing.T) {
	f := newTestTransitioner(t)
	w := f.stored(t, "st-paid")

	w.status = ""
	changed, err := f.tr.Process(context.Background(), w, false)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, generic.StatusID("st-paid"), w.status)
}

func TestTransition_Disallowed(t *testing.T) {
	f := newTestTransitioner(t)
	w := f.stored(t, "st-new")

	w.status = "st-refunded"
	changed, err := f.tr.Process(context.Background(), w, false)
	assert.False(t, changed)

	var te *generic.TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, generic.StatusCode("new"), te.From)
	assert.Equal(t, generic.StatusCode("refunded"), te.To)
	assert.Equal(t, widgetGroup, te.Group)
	assert.ErrorIs(t, err, generic.ErrTransitionNotAllowed)
	assert.Empty(t, f.calls)
}

func TestTransition_Skip_AcceptsWithoutSideEffect(t *testing.T) {
	f := newTestTransitioner(t)
	w := f.stored(t, "st-new")

	w.status = "st-paid"
	changed, err := f.tr.Process(context.Background(), w, true)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Zero(t, f.calls["paid"])
}

func TestTransition_Skip_StillChecksGraph(t *testing.T) {
	f := newTestTransitioner(t)
	w := f.stored(t, "st-new")

	w.status = "st-refunded"
	_, err := f.tr.Process(context.Background(), w, true)
	assert.ErrorIs(t, err, generic.ErrTransitionNotAllowed)
}

func TestTransition_UnknownOrForeignStatus(t *testing.T) {
	tests := []struct {
		name   string
		status generic.StatusID
	}{
		{"unknown id", "st-missing"},
		{"other group", "st-other"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTestTransitioner(t)
			w := f.stored(t, "st-new")

			w.status = tt.status
			_, err := f.tr.Process(context.Background(), w, false)
			var ve *generic.ValidationError
			assert.ErrorAs(t, err, &ve)
		})
	}
}

func TestTransition_StrategyFailurePropagates(t *testing.T) {
	f := newTestTransitioner(t)
	boom := errors.New("ledger unavailable")
	f.tr.Strategies.Register("paid", generic.StrategyFunc[*widget](func(context.Context, *widget) error {
		return boom
	}))
	w := f.stored(t, "st-new")

	w.status = "st-paid"
	changed, err := f.tr.Process(context.Background(), w, false)
	assert.ErrorIs(t, err, boom)
	assert.False(t, changed)
}

func TestTransition_RefundCycle(t *testing.T) {
	// GIVEN: new -> paid -> refunded -> paid
	// THEN: Each entered status ran its strategy once per entry

	f := newTestTransitioner(t)
	ctx := context.Background()
	w := f.stored(t, "st-new")

	for _, next := range []generic.StatusID{"st-paid", "st-refunded", "st-paid"} {
		w.status = next
		changed, err := f.tr.Process(ctx, w, false)
		require.NoError(t, err)
		require.True(t, changed)
		f.save(w)
	}
	assert.Equal(t, 2, f.calls["paid"])
	assert.Equal(t, 1, f.calls["refunded"])
}
