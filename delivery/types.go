/*
Package delivery provides transport companies, packages and package
deliveries.

PURPOSE:
  A Package groups a user's paid orders for shipping. Its euro costs
  (shipping + fee) are entered by an operator. A PackageDelivery ships one
  package through a TransportCompany; paying it charges the package total
  to the user's balance at the balance's current average rate.

STATUS FLOW (group "deliveries"):
  new -> {paid, cancelled}
  paid -> {cancelled}
  cancelled -> {new}

  paid:      expense (package total EUR, derived RUB)
  cancelled: payback of what paid charged, if anything

INVARIANTS:
  - One delivery per package
  - At most one default transport company
  - Weight > 0, tracking number required (trimmed)
  - Weight frozen once paid; package costs frozen while its delivery is paid
  - A paid delivery and a package with a delivery cannot be deleted

SEE ALSO:
  - strategies.go: paid / cancelled side effects
  - generic/transition.go: Status change processing
*/
package delivery

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/order-engine/generic"
)

// =============================================================================
// STATUS GROUP
// =============================================================================

const (
	Family generic.Family    = "package_delivery"
	Group  generic.GroupCode = "deliveries"
)

const (
	StatusNew       generic.StatusCode = "new"
	StatusPaid      generic.StatusCode = "paid"
	StatusCancelled generic.StatusCode = "cancelled"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type TransportCompanyID string
type PackageID string
type DeliveryID string

// =============================================================================
// TRANSPORT COMPANY
// =============================================================================

type TransportCompany struct {
	ID        TransportCompanyID
	Name      string
	IsDefault bool
	CreatedAt time.Time
}

func (c *TransportCompany) Validate() error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return generic.Invalid("name", "is required")
	}
	return nil
}

// =============================================================================
// PACKAGE
// =============================================================================

type Package struct {
	ID              PackageID
	UserID          generic.UserID
	Number          string
	ShippingCostEur decimal.Decimal
	FeeCostEur      decimal.Decimal
	TotalCostEur    decimal.Decimal // ShippingCostEur + FeeCostEur
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Validate checks the costs and recomputes the total.
func (p *Package) Validate() error {
	p.Number = strings.TrimSpace(p.Number)
	if p.UserID == "" {
		return generic.Invalid("user_id", "is required")
	}
	if p.Number == "" {
		return generic.Invalid("number", "is required")
	}
	if err := validateCost("shipping_cost_eur", p.ShippingCostEur); err != nil {
		return err
	}
	if err := validateCost("fee_cost_eur", p.FeeCostEur); err != nil {
		return err
	}
	p.TotalCostEur = generic.Round2(p.ShippingCostEur.Add(p.FeeCostEur))
	return nil
}

// SameCosts reports whether the euro costs are unchanged.
func (p Package) SameCosts(other Package) bool {
	return p.ShippingCostEur.Equal(other.ShippingCostEur) && p.FeeCostEur.Equal(other.FeeCostEur)
}

func validateCost(field string, d decimal.Decimal) error {
	if d.IsNegative() {
		return generic.Invalid(field, "must not be negative, got %s", d)
	}
	if !d.Equal(generic.Round2(d)) {
		return generic.Invalid(field, "at most %d decimal places allowed, got %s", generic.MoneyPlaces, d)
	}
	return nil
}

// =============================================================================
// PACKAGE DELIVERY
// =============================================================================

type PackageDelivery struct {
	ID                 DeliveryID
	PackageID          PackageID
	TransportCompanyID TransportCompanyID
	Status             generic.StatusID
	Weight             decimal.Decimal // kg, > 0

	// Derived by the paid strategy, zeroed by cancelled.
	ShippingCostRub decimal.Decimal
	PriceRubForKg   decimal.Decimal
	PaidAt          *time.Time

	TrackingNumber string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PackageDelivery is a generic.Stateful entity.
var _ generic.Stateful = (*PackageDelivery)(nil)

func (d *PackageDelivery) EntityID() string                { return string(d.ID) }
func (d *PackageDelivery) StatusID() generic.StatusID      { return d.Status }
func (d *PackageDelivery) SetStatusID(id generic.StatusID) { d.Status = id }
func (d *PackageDelivery) IsNew() bool                     { return d.CreatedAt.IsZero() }

// IsPaid reports whether the delivery has been charged and not cancelled.
func (d *PackageDelivery) IsPaid() bool { return d.PaidAt != nil }

// Validate checks the client-editable fields.
func (d *PackageDelivery) Validate() error {
	d.TrackingNumber = strings.TrimSpace(d.TrackingNumber)
	if d.PackageID == "" {
		return generic.Invalid("package_id", "is required")
	}
	if d.TrackingNumber == "" {
		return generic.Invalid("tracking_number", "is required")
	}
	if !d.Weight.IsPositive() {
		return generic.Invalid("weight", "must be greater than zero, got %s", d.Weight)
	}
	return nil
}
