/*
balance.go - Balance, transaction and history records

PURPOSE:
  A user owns exactly one Balance holding euros and rubles side by side.
  The balance is a stored value (not replayed from the ledger) and carries
  a derived average exchange rate: rub / euro. Every mutation goes through
  Ledger.Apply, which records an immutable Transaction and a
  HistoryRecord snapshot of the balance after the change.

INVARIANTS:
  1. Euro >= 0 and Rub >= 0, always
  2. AverageExchangeRate == round(Rub / Euro, 2), or 0 when Euro == 0
  3. Transactions and history records are append-only
  4. Balances and transactions are never deleted

EXAMPLE:
  Balance 0 / 0, replenishment 100 EUR / 10000 RUB:
    Euro = 100.00, Rub = 10000.00, rate = 100.00

SEE ALSO:
  - ledger.go: The only writer of balances
  - store.go: Read/write interfaces
*/
package generic

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// BALANCE - Per-user two-currency funds
// =============================================================================

type Balance struct {
	ID                  BalanceID
	UserID              UserID
	Euro                decimal.Decimal
	Rub                 decimal.Decimal
	AverageExchangeRate decimal.Decimal
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// NewBalance returns an empty balance for a freshly created user.
func NewBalance(id BalanceID, userID UserID, at time.Time) Balance {
	return Balance{
		ID:                  id,
		UserID:              userID,
		Euro:                decimal.Zero,
		Rub:                 decimal.Zero,
		AverageExchangeRate: decimal.Zero,
		CreatedAt:           at,
		UpdatedAt:           at,
	}
}

// Covers reports whether both currencies hold at least the given amounts.
func (b Balance) Covers(euro, rub decimal.Decimal) bool {
	return b.Euro.GreaterThanOrEqual(euro) && b.Rub.GreaterThanOrEqual(rub)
}

// applied returns the balance after t, with the rate recomputed.
// Callers are responsible for checking funds first.
func (b Balance) applied(t TransactionType, euro, rub decimal.Decimal, at time.Time) Balance {
	if t == TxExpense {
		b.Euro = b.Euro.Sub(euro)
		b.Rub = b.Rub.Sub(rub)
	} else {
		b.Euro = b.Euro.Add(euro)
		b.Rub = b.Rub.Add(rub)
	}
	b.Euro = Round2(b.Euro)
	b.Rub = Round2(b.Rub)
	b.AverageExchangeRate = AverageRate(b.Euro, b.Rub)
	b.UpdatedAt = at
	return b
}

// =============================================================================
// TRANSACTION - Immutable ledger entry
// =============================================================================

type Transaction struct {
	ID              TransactionID
	BalanceID       BalanceID
	Type            TransactionType
	AmountEuro      decimal.Decimal // always > 0; the type carries the direction
	AmountRub       decimal.Decimal // always > 0
	Comment         string
	TransactionDate time.Time
	CreatedAt       time.Time
}

// SignedEuro returns the euro amount with the direction applied.
func (t Transaction) SignedEuro() decimal.Decimal {
	return t.AmountEuro.Mul(decimal.NewFromInt(int64(t.Type.Sign())))
}

// SignedRub returns the rub amount with the direction applied.
func (t Transaction) SignedRub() decimal.Decimal {
	return t.AmountRub.Mul(decimal.NewFromInt(int64(t.Type.Sign())))
}

// =============================================================================
// HISTORY RECORD - Audit snapshot written next to every transaction
// =============================================================================

type HistoryRecord struct {
	ID               string
	BalanceID        BalanceID
	TransactionID    TransactionID
	Type             TransactionType
	AmountEuro       decimal.Decimal
	AmountRub        decimal.Decimal
	BalanceEuroAfter decimal.Decimal
	BalanceRubAfter  decimal.Decimal
	RateAfter        decimal.Decimal
	CreatedAt        time.Time
}
