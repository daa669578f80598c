package delivery

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/order-engine/generic"
)

// =============================================================================
// STRATEGIES - Side effects of entering a delivery status
// =============================================================================

// Deps are what delivery strategies need to bill a balance.
type Deps struct {
	Packages interface {
		GetPackage(ctx context.Context, id PackageID) (*Package, error)
	}
	Balances generic.BalanceReader
	Ledger   *generic.Ledger
	Graph    *generic.StatusGraph
	Clock    generic.Clock
}

// NewStrategies maps every delivery status to its side effect.
func NewStrategies(d Deps) *generic.Strategies[*PackageDelivery] {
	if d.Clock == nil {
		d.Clock = generic.SystemClock{}
	}
	return generic.NewStrategies[*PackageDelivery](Family).
		Register(StatusNew, generic.Noop[*PackageDelivery]()).
		Register(StatusPaid, &PaidStrategy{Deps: d}).
		Register(StatusCancelled, &CancelledStrategy{Deps: d})
}

// PaidStrategy charges the package total to the owner's balance:
//
//	shipping_cost_rub = round(package.total_cost_eur * rate, 2)
//	price_rub_for_kg  = round(shipping_cost_rub / weight, 2)
type PaidStrategy struct {
	Deps
}

func (s *PaidStrategy) Execute(ctx context.Context, d *PackageDelivery) error {
	txType, err := s.Graph.RequireTransactionType(Group, StatusPaid)
	if err != nil {
		return err
	}
	pkg, err := s.Packages.GetPackage(ctx, d.PackageID)
	if err != nil {
		return err
	}
	if !pkg.TotalCostEur.IsPositive() {
		return generic.Invalid("package", "set package %s costs first", pkg.Number)
	}
	balance, err := s.Balances.GetBalanceByUser(ctx, pkg.UserID)
	if err != nil {
		return err
	}

	d.ShippingCostRub = generic.ConvertToRub(pkg.TotalCostEur, balance.AverageExchangeRate)
	d.PriceRubForKg = generic.Round2(d.ShippingCostRub.Div(d.Weight))
	if d.PaidAt == nil {
		now := s.Clock.Now()
		d.PaidAt = &now
	}

	_, err = s.Ledger.Apply(ctx, balance.ID, generic.Request{
		Type:       txType,
		AmountEuro: pkg.TotalCostEur,
		AmountRub:  d.ShippingCostRub,
		Comment:    fmt.Sprintf("Delivery of package %s paid", pkg.Number),
	})
	return err
}

// CancelledStrategy resets the derived fields and returns what paid
// charged. The payback request is built from the fields before they are
// zeroed. A delivery that was never charged only has its fields reset.
type CancelledStrategy struct {
	Deps
}

func (s *CancelledStrategy) Execute(ctx context.Context, d *PackageDelivery) error {
	txType, err := s.Graph.RequireTransactionType(Group, StatusCancelled)
	if err != nil {
		return err
	}
	pkg, err := s.Packages.GetPackage(ctx, d.PackageID)
	if err != nil {
		return err
	}

	charged := d.PaidAt != nil && d.ShippingCostRub.IsPositive()
	req := generic.Request{
		Type:       txType,
		AmountEuro: pkg.TotalCostEur,
		AmountRub:  d.ShippingCostRub,
		Comment:    fmt.Sprintf("Delivery of package %s cancelled", pkg.Number),
	}

	d.ShippingCostRub = decimal.Zero
	d.PriceRubForKg = decimal.Zero
	d.PaidAt = nil

	if !charged {
		return nil
	}
	balance, err := s.Balances.GetBalanceByUser(ctx, pkg.UserID)
	if err != nil {
		return err
	}
	_, err = s.Ledger.Apply(ctx, balance.ID, req)
	return err
}
