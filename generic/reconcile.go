/*
reconcile.go - Balance versus ledger audit

PURPOSE:
  Recomputes every balance from its transactions and reports balances
  whose stored amounts differ from the sum of their ledger entries. The
  check is read-only: nothing is corrected automatically.

RULE:
  balance.euro == sum(signed amount_euro of all transactions)
  balance.rub  == sum(signed amount_rub of all transactions)
  where expense counts negative, replenishment and payback positive.

CONSISTENCY:
  The balance and its transactions are read inside one Snapshot: a
  concurrent Ledger.Apply is seen either completely or not at all.

SEE ALSO:
  - ledger.go: The only writer, which keeps the rule true
  - api/scheduler.go: Periodic runs
*/
package generic

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// UserLister is the part of UserStore the reconciler needs.
type UserLister interface {
	ListUsers(ctx context.Context) ([]User, error)
}

// Discrepancy is one balance whose amounts disagree with its ledger.
type Discrepancy struct {
	BalanceID   BalanceID
	UserID      UserID
	BalanceEuro decimal.Decimal
	BalanceRub  decimal.Decimal
	LedgerEuro  decimal.Decimal
	LedgerRub   decimal.Decimal
}

func (d Discrepancy) String() string {
	return fmt.Sprintf("balance %s: stored %s EUR / %s RUB, ledger %s EUR / %s RUB",
		d.BalanceID,
		d.BalanceEuro.StringFixed(MoneyPlaces), d.BalanceRub.StringFixed(MoneyPlaces),
		d.LedgerEuro.StringFixed(MoneyPlaces), d.LedgerRub.StringFixed(MoneyPlaces))
}

// ReconciliationReport is the outcome of one run.
type ReconciliationReport struct {
	CheckedAt     time.Time
	Balances      int
	Discrepancies []Discrepancy
}

// Consistent reports whether every checked balance matched its ledger.
func (r ReconciliationReport) Consistent() bool {
	return len(r.Discrepancies) == 0
}

type Reconciler struct {
	Users    UserLister
	Balances BalanceReader
	Snapshot Snapshot
	Clock    Clock
	Log      logrus.FieldLogger
}

// Run checks the balance of every user. Each discrepancy is logged at
// Error; a store failure aborts the run.
func (r *Reconciler) Run(ctx context.Context) (*ReconciliationReport, error) {
	users, err := r.Users.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	report := &ReconciliationReport{CheckedAt: clockOrSystem(r.Clock).Now()}
	for _, u := range users {
		b, euro, rub, err := r.read(ctx, u.ID)
		if err != nil {
			return nil, err
		}
		report.Balances++
		if euro.Equal(b.Euro) && rub.Equal(b.Rub) {
			continue
		}

		d := Discrepancy{
			BalanceID:   b.ID,
			UserID:      u.ID,
			BalanceEuro: b.Euro,
			BalanceRub:  b.Rub,
			LedgerEuro:  euro,
			LedgerRub:   rub,
		}
		report.Discrepancies = append(report.Discrepancies, d)
		if r.Log != nil {
			r.Log.WithFields(logrus.Fields{"balance_id": b.ID, "user_id": u.ID}).Error(d.String())
		}
	}
	return report, nil
}

// read loads the balance of userID and sums its ledger within one snapshot.
func (r *Reconciler) read(ctx context.Context, userID UserID) (b *Balance, euro, rub decimal.Decimal, err error) {
	err = r.Snapshot.RunInSnapshot(ctx, func(ctx context.Context) error {
		var err error
		if b, err = r.Balances.GetBalanceByUser(ctx, userID); err != nil {
			return err
		}
		txs, err := r.Balances.Transactions(ctx, b.ID, All)
		if err != nil {
			return err
		}
		euro, rub = decimal.Zero, decimal.Zero
		for _, tx := range txs {
			euro = euro.Add(tx.SignedEuro())
			rub = rub.Add(tx.SignedRub())
		}
		return nil
	})
	return b, euro, rub, err
}
