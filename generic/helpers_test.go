package generic_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/warp/order-engine/generic"
	"github.com/warp/order-engine/generic/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var testNow = time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// newTestLedger returns a ledger over a memory store holding one user with
// an empty balance.
func newTestLedger(t *testing.T) (*generic.Ledger, *store.Memory, generic.BalanceID) {
	t.Helper()
	mem := store.NewMemory()
	accounts := &generic.Accounts{Store: mem, Clock: generic.FixedClock{At: testNow}}
	_, b, err := accounts.CreateUser(context.Background(), generic.User{ID: "user-1", Email: "anna@example.com"})
	require.NoError(t, err)

	ledger := generic.NewLedger(mem, nil)
	ledger.Clock = generic.FixedClock{At: testNow}
	return ledger, mem, b.ID
}

func request(t generic.TransactionType, euro, rub string) generic.Request {
	return generic.Request{Type: t, AmountEuro: dec(euro), AmountRub: dec(rub)}
}

// =============================================================================
// WIDGET - A minimal stateful entity for transition tests
// =============================================================================

const (
	widgetFamily generic.Family    = "widget"
	widgetGroup  generic.GroupCode = "widgets"
)

type widget struct {
	id     string
	status generic.StatusID
	saved  bool
}

func (w *widget) EntityID() string                { return w.id }
func (w *widget) StatusID() generic.StatusID      { return w.status }
func (w *widget) SetStatusID(id generic.StatusID) { w.status = id }
func (w *widget) IsNew() bool                     { return !w.saved }

func widgetStatuses() []generic.Status {
	return []generic.Status{
		{ID: "st-new", Group: widgetGroup, Code: "new", Name: "New", IsDefault: true, Order: 1},
		{ID: "st-paid", Group: widgetGroup, Code: "paid", Name: "Paid", Order: 2},
		{ID: "st-refunded", Group: widgetGroup, Code: "refunded", Name: "Refunded", Order: 3},
	}
}

func widgetGroupDef() generic.StatusGroup {
	return generic.StatusGroup{
		ID:     "grp-widgets",
		Code:   widgetGroup,
		Name:   "Widget statuses",
		Family: widgetFamily,
		AllowedTransitions: map[generic.StatusCode][]generic.StatusCode{
			"new":      {"paid"},
			"paid":     {"refunded"},
			"refunded": {"paid", "new"},
		},
		TransactionTypes: map[generic.StatusCode]generic.TransactionType{
			"paid":     generic.TxExpense,
			"refunded": generic.TxPayback,
		},
	}
}

// otherGroup lets tests hand a widget a status from a foreign group.
func otherGroup() (generic.StatusGroup, []generic.Status) {
	g := generic.StatusGroup{ID: "grp-other", Code: "other", Name: "Other", Family: "other"}
	return g, []generic.Status{{ID: "st-other", Group: "other", Code: "open", IsDefault: true, Order: 1}}
}

func newTestGraph(t *testing.T) *generic.StatusGraph {
	t.Helper()
	og, ostatuses := otherGroup()
	graph, err := generic.NewStatusGraph(
		[]generic.StatusGroup{widgetGroupDef(), og},
		append(widgetStatuses(), ostatuses...),
	)
	require.NoError(t, err)
	return graph
}
