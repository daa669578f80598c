/*
ledger.go - The only writer of balances

PURPOSE:
  Ledger.Apply is the single business operation that changes money. It
  validates the request, checks funds for expenses, updates both currency
  fields and the derived rate, and appends a Transaction and a
  HistoryRecord - all inside one database transaction.

CRITICAL INVARIANTS:
  1. ATOMIC: balance, transaction and history commit together or not at all
  2. NON-NEGATIVE: an expense larger than either currency is rejected
  3. APPEND-ONLY: transactions and history are never updated or deleted
  4. EXACT: amounts carry at most 2 decimal places; nothing is silently rounded

DIRECTION:
  expense        subtracts from both currencies
  replenishment  adds to both currencies
  payback        adds to both currencies

EXAMPLE FLOW:
  1. Operator tops up: replenishment 100 EUR / 10000 RUB  -> 100 / 10000, rate 100
  2. Order paid:       expense 50 EUR / 5000 RUB          -> 50 / 5000,   rate 100
  3. Order refunded:   payback 50 EUR / 5000 RUB          -> 100 / 10000, rate 100

SEE ALSO:
  - balance.go: Balance/Transaction/HistoryRecord types
  - store.go: LedgerStore
*/
package generic

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// =============================================================================
// REQUEST - What a strategy or operator asks the ledger to do
// =============================================================================

type Request struct {
	Type       TransactionType
	AmountEuro decimal.Decimal
	AmountRub  decimal.Decimal
	Comment    string
}

// Validate checks the request before any database work happens.
func (r Request) Validate() error {
	if !r.Type.Valid() {
		return Invalid("transaction_type", "unknown transaction type %q", r.Type)
	}
	if !r.AmountEuro.IsPositive() {
		return Invalid("amount_euro", "must be greater than zero, got %s", r.AmountEuro)
	}
	if !r.AmountRub.IsPositive() {
		return Invalid("amount_rub", "must be greater than zero, got %s", r.AmountRub)
	}
	if !r.AmountEuro.Equal(Round2(r.AmountEuro)) {
		return Invalid("amount_euro", "at most %d decimal places allowed, got %s", MoneyPlaces, r.AmountEuro)
	}
	if !r.AmountRub.Equal(Round2(r.AmountRub)) {
		return Invalid("amount_rub", "at most %d decimal places allowed, got %s", MoneyPlaces, r.AmountRub)
	}
	return nil
}

// =============================================================================
// LEDGER
// =============================================================================

type Ledger struct {
	store LedgerStore
	log   logrus.FieldLogger

	// Clock stamps transaction dates. Defaults to SystemClock.
	Clock Clock
}

// NewLedger creates a ledger over the given store. log may be nil.
func NewLedger(store LedgerStore, log logrus.FieldLogger) *Ledger {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Ledger{store: store, log: log, Clock: SystemClock{}}
}

// Apply validates req and applies it to the balance atomically.
func (l *Ledger) Apply(ctx context.Context, balanceID BalanceID, req Request) (*Transaction, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var (
		result Transaction
		after  Balance
	)
	err := l.store.RunInTx(ctx, func(ctx context.Context) error {
		current, err := l.store.GetBalanceForUpdate(ctx, balanceID)
		if err != nil {
			return err
		}

		if req.Type == TxExpense && !current.Covers(req.AmountEuro, req.AmountRub) {
			return &InsufficientFundsError{
				BalanceID:     current.ID,
				AvailableEuro: current.Euro,
				AvailableRub:  current.Rub,
				RequiredEuro:  req.AmountEuro,
				RequiredRub:   req.AmountRub,
			}
		}

		now := clockOrSystem(l.Clock).Now()
		after = current.applied(req.Type, req.AmountEuro, req.AmountRub, now)
		if after.Euro.IsNegative() || after.Rub.IsNegative() {
			return Invalid("balance", "would become negative")
		}

		if err := l.store.WriteBalance(ctx, after); err != nil {
			return fmt.Errorf("failed to write balance: %w", err)
		}

		result = Transaction{
			ID:              TransactionID(uuid.NewString()),
			BalanceID:       current.ID,
			Type:            req.Type,
			AmountEuro:      req.AmountEuro,
			AmountRub:       req.AmountRub,
			Comment:         req.Comment,
			TransactionDate: now,
			CreatedAt:       now,
		}
		if err := l.store.AppendTransaction(ctx, result); err != nil {
			return fmt.Errorf("failed to append transaction: %w", err)
		}

		history := HistoryRecord{
			ID:               uuid.NewString(),
			BalanceID:        current.ID,
			TransactionID:    result.ID,
			Type:             req.Type,
			AmountEuro:       req.AmountEuro,
			AmountRub:        req.AmountRub,
			BalanceEuroAfter: after.Euro,
			BalanceRubAfter:  after.Rub,
			RateAfter:        after.AverageExchangeRate,
			CreatedAt:        now,
		}
		if err := l.store.AppendHistory(ctx, history); err != nil {
			return fmt.Errorf("failed to append history: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.log.WithFields(logrus.Fields{
		"balance_id":   balanceID,
		"type":         req.Type,
		"amount_euro":  req.AmountEuro.StringFixed(MoneyPlaces),
		"amount_rub":   req.AmountRub.StringFixed(MoneyPlaces),
		"balance_euro": after.Euro.StringFixed(MoneyPlaces),
		"balance_rub":  after.Rub.StringFixed(MoneyPlaces),
	}).Info("ledger transaction applied")

	return &result, nil
}

// ApplyForUser resolves the user's balance and applies req to it.
func (l *Ledger) ApplyForUser(ctx context.Context, userID UserID, req Request) (*Transaction, error) {
	b, err := l.store.GetBalanceByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return l.Apply(ctx, b.ID, req)
}

// Replenish adds funds to a balance.
func (l *Ledger) Replenish(ctx context.Context, balanceID BalanceID, euro, rub decimal.Decimal, comment string) (*Transaction, error) {
	return l.Apply(ctx, balanceID, Request{
		Type:       TxReplenishment,
		AmountEuro: euro,
		AmountRub:  rub,
		Comment:    comment,
	})
}

// =============================================================================
// REFUSED OPERATIONS
// =============================================================================

// DeleteBalance always refuses: balances live as long as their user.
func (l *Ledger) DeleteBalance(ctx context.Context, id BalanceID) error {
	if _, err := l.store.GetBalance(ctx, id); err != nil {
		return err
	}
	n, err := l.store.CountTransactions(ctx, id)
	if err != nil {
		return err
	}
	reason := "balances are never deleted"
	if n > 0 {
		reason = fmt.Sprintf("balance has %d transactions", n)
	}
	return &ProtectedDeletionError{Entity: "balance", ID: string(id), Reason: reason}
}

// DeleteTransaction always refuses: corrections are new transactions.
func (l *Ledger) DeleteTransaction(_ context.Context, id TransactionID) error {
	return &ProtectedDeletionError{
		Entity: "transaction",
		ID:     string(id),
		Reason: "ledger entries are immutable",
	}
}
