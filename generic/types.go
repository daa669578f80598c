/*
Package generic provides the core back-office engine.

PURPOSE:
  This package contains the domain-agnostic pieces every entity family
  shares: two-currency money, the balance ledger, the status graph and the
  status transition service that dispatches status-triggered side effects.
  Domain packages (orders, delivery) plug their entities and strategies
  into it.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money helpers: decimal rounding and the derived average exchange rate
  - TransactionType: replenishment, expense, payback
  - Identifiers: type-safe IDs for users, balances, statuses, groups

DESIGN PRINCIPLES:
  1. Precision: all currency math uses decimal.Decimal, rounded half-up to 2 places
  2. Euro is the source of truth; rub amounts are derived through the balance rate
  3. Type Safety: distinct ID types prevent mixing users, balances and statuses
  4. Auditability: every balance change leaves a transaction and a history record

USAGE:
  rate := generic.AverageRate(generic.MustParseDecimal("100"), generic.MustParseDecimal("10000"))
  // rate == 100.00

SEE ALSO:
  - ledger.go: Apply operation over balances
  - status.go: Status groups and the transition graph
  - transition.go: Status change processing
*/
package generic

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Two-currency decimal amounts
// =============================================================================

// MoneyPlaces is the number of decimal places every stored amount carries.
const MoneyPlaces = 2

// Round2 rounds half away from zero to two places. All amounts in this system
// are non-negative, so this is the half-up rounding the books are kept in.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// AverageRate is rub/euro rounded to 2 places, or zero when there are no euros.
func AverageRate(euro, rub decimal.Decimal) decimal.Decimal {
	if euro.IsZero() {
		return decimal.Zero.Round(MoneyPlaces)
	}
	return Round2(rub.Div(euro))
}

// ConvertToRub derives a rub amount from euros at the given rate.
func ConvertToRub(euro, rate decimal.Decimal) decimal.Decimal {
	return Round2(euro.Mul(rate))
}

func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID string
type BalanceID string
type TransactionID string
type StatusID string

// StatusCode is the stable machine name of a status inside its group
// ("new", "paid", ...). Transition maps are keyed by code, never by ID.
type StatusCode string

// GroupCode identifies a status group ("orders", "deliveries").
type GroupCode string

// Family is the kind of entity a status group governs. Strategies are
// registered per (Family, StatusCode).
type Family string

// =============================================================================
// TRANSACTION TYPE
// =============================================================================

type TransactionType string

const (
	TxReplenishment TransactionType = "replenishment" // Funds added by an operator
	TxExpense       TransactionType = "expense"       // Funds spent on an order or delivery
	TxPayback       TransactionType = "payback"       // Funds returned by a refund or cancellation
)

// Valid reports whether t is one of the known ledger transaction types.
func (t TransactionType) Valid() bool {
	switch t {
	case TxReplenishment, TxExpense, TxPayback:
		return true
	}
	return false
}

// Sign is -1 for money leaving the balance and +1 otherwise.
func (t TransactionType) Sign() int {
	if t == TxExpense {
		return -1
	}
	return 1
}
