/*
Package orders provides sites, orders and package-order links.

PURPOSE:
  An Order is a purchase a user asked the operator to make on an external
  Site. Paying an order charges its euro and rub amounts to the user's
  balance; refunding gives them back. Paid orders are later grouped into
  packages for shipping (see delivery).

STATUS FLOW (group "orders"):
  new -> {paid}
  paid -> {refunded}
  refunded -> {paid, new}

  paid:     expense (amount_euro, amount_rub)
  refunded: payback (amount_euro, amount_rub)

DERIVED FIELDS:
  expense = round(amount_euro * balance.average_exchange_rate, 2)
  profit  = amount_rub - expense

INVARIANTS:
  - The user of an order never changes
  - Amounts are frozen while the order is paid (edits revert silently)
  - A paid order, or one linked to a package, cannot be deleted
  - A site with orders cannot be deleted
  - Only paid orders of the package owner can be linked to a package

SEE ALSO:
  - strategies.go: paid / refunded side effects
  - service.go: Create, save, delete, bulk status update
*/
package orders

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/order-engine/delivery"
	"github.com/warp/order-engine/generic"
)

// =============================================================================
// STATUS GROUP
// =============================================================================

const (
	Family generic.Family    = "order"
	Group  generic.GroupCode = "orders"
)

const (
	StatusNew      generic.StatusCode = "new"
	StatusPaid     generic.StatusCode = "paid"
	StatusRefunded generic.StatusCode = "refunded"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type SiteID string
type OrderID string
type PackageOrderID string

// =============================================================================
// SITE
// =============================================================================

type Site struct {
	ID                     SiteID
	Name                   string
	URL                    string
	OrganizerFeePercentage decimal.Decimal // 0..100
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

var hundred = decimal.NewFromInt(100)

func (s *Site) Validate() error {
	s.Name = strings.TrimSpace(s.Name)
	s.URL = strings.TrimSpace(s.URL)
	if s.Name == "" {
		return generic.Invalid("name", "is required")
	}
	if s.URL == "" {
		return generic.Invalid("url", "is required")
	}
	if s.OrganizerFeePercentage.IsNegative() || s.OrganizerFeePercentage.GreaterThan(hundred) {
		return generic.Invalid("organizer_fee_percentage", "must be between 0 and 100, got %s", s.OrganizerFeePercentage)
	}
	return nil
}

// =============================================================================
// ORDER
// =============================================================================

type Order struct {
	ID         OrderID
	UserID     generic.UserID
	SiteID     SiteID
	Status     generic.StatusID
	AmountEuro decimal.Decimal
	AmountRub  decimal.Decimal

	// Derived by the paid strategy, zeroed by refunded.
	Expense decimal.Decimal
	Profit  decimal.Decimal
	PaidAt  *time.Time

	InternalNumber string // unique when set
	ExternalNumber string // unique when set
	Comment        string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Order is a generic.Stateful entity.
var _ generic.Stateful = (*Order)(nil)

func (o *Order) EntityID() string                { return string(o.ID) }
func (o *Order) StatusID() generic.StatusID      { return o.Status }
func (o *Order) SetStatusID(id generic.StatusID) { o.Status = id }
func (o *Order) IsNew() bool                     { return o.CreatedAt.IsZero() }

// Label is how ledger comments refer to the order.
func (o *Order) Label() string {
	if o.InternalNumber != "" {
		return o.InternalNumber
	}
	return string(o.ID)
}

// Validate checks the client-editable fields.
func (o *Order) Validate() error {
	o.InternalNumber = strings.TrimSpace(o.InternalNumber)
	o.ExternalNumber = strings.TrimSpace(o.ExternalNumber)
	if o.UserID == "" {
		return generic.Invalid("user_id", "is required")
	}
	if o.SiteID == "" {
		return generic.Invalid("site_id", "is required")
	}
	if err := validateAmount("amount_euro", o.AmountEuro); err != nil {
		return err
	}
	return validateAmount("amount_rub", o.AmountRub)
}

func validateAmount(field string, d decimal.Decimal) error {
	if !d.IsPositive() {
		return generic.Invalid(field, "must be greater than zero, got %s", d)
	}
	if !d.Equal(generic.Round2(d)) {
		return generic.Invalid(field, "at most %d decimal places allowed, got %s", generic.MoneyPlaces, d)
	}
	return nil
}

// =============================================================================
// PACKAGE ORDER - Order shipped inside a package
// =============================================================================

type PackageOrder struct {
	ID        PackageOrderID
	PackageID delivery.PackageID
	OrderID   OrderID
	CreatedAt time.Time
}
