package orders

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/order-engine/generic"
)

// =============================================================================
// STRATEGIES - Side effects of entering an order status
// =============================================================================

// Deps are what order strategies need to bill a balance.
type Deps struct {
	Balances generic.BalanceReader
	Ledger   *generic.Ledger
	Graph    *generic.StatusGraph
	Clock    generic.Clock
}

// NewStrategies maps every order status to its side effect.
func NewStrategies(d Deps) *generic.Strategies[*Order] {
	if d.Clock == nil {
		d.Clock = generic.SystemClock{}
	}
	return generic.NewStrategies[*Order](Family).
		Register(StatusNew, generic.Noop[*Order]()).
		Register(StatusPaid, &PaidStrategy{Deps: d}).
		Register(StatusRefunded, &RefundedStrategy{Deps: d})
}

// PaidStrategy charges the order to the owner's balance:
//
//	expense = round(amount_euro * rate, 2)
//	profit  = amount_rub - expense
//
// and stamps PaidAt once the ledger accepted the expense.
type PaidStrategy struct {
	Deps
}

func (s *PaidStrategy) Execute(ctx context.Context, o *Order) error {
	if o.PaidAt != nil {
		return generic.Invalid("status", "order %s is already paid", o.Label())
	}
	txType, err := s.Graph.RequireTransactionType(Group, StatusPaid)
	if err != nil {
		return err
	}
	balance, err := s.Balances.GetBalanceByUser(ctx, o.UserID)
	if err != nil {
		return err
	}

	o.Expense = generic.ConvertToRub(o.AmountEuro, balance.AverageExchangeRate)
	o.Profit = generic.Round2(o.AmountRub.Sub(o.Expense))

	_, err = s.Ledger.Apply(ctx, balance.ID, generic.Request{
		Type:       txType,
		AmountEuro: o.AmountEuro,
		AmountRub:  o.AmountRub,
		Comment:    fmt.Sprintf("Order %s paid", o.Label()),
	})
	if err != nil {
		return err
	}

	now := s.Clock.Now()
	o.PaidAt = &now
	return nil
}

// RefundedStrategy zeroes the derived fields and gives the order amounts
// back to the balance.
type RefundedStrategy struct {
	Deps
}

func (s *RefundedStrategy) Execute(ctx context.Context, o *Order) error {
	txType, err := s.Graph.RequireTransactionType(Group, StatusRefunded)
	if err != nil {
		return err
	}
	balance, err := s.Balances.GetBalanceByUser(ctx, o.UserID)
	if err != nil {
		return err
	}

	o.Expense = decimal.Zero
	o.Profit = decimal.Zero
	o.PaidAt = nil

	_, err = s.Ledger.Apply(ctx, balance.ID, generic.Request{
		Type:       txType,
		AmountEuro: o.AmountEuro,
		AmountRub:  o.AmountRub,
		Comment:    fmt.Sprintf("Order %s refunded", o.Label()),
	})
	return err
}
