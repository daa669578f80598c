package generic_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/order-engine/generic"
	"github.com/warp/order-engine/generic/store"
)

func TestReconciler_ConsistentLedger(t *testing.T) {
	ctx := context.Background()
	ledger, mem, id := newTestLedger(t)

	_, err := ledger.Apply(ctx, id, request(generic.TxReplenishment, "100", "10000"))
	require.NoError(t, err)
	_, err = ledger.Apply(ctx, id, request(generic.TxExpense, "30", "3000"))
	require.NoError(t, err)
	_, err = ledger.Apply(ctx, id, request(generic.TxPayback, "10", "1000"))
	require.NoError(t, err)

	r := &generic.Reconciler{Users: mem, Balances: mem, Snapshot: mem, Clock: generic.FixedClock{At: testNow}}
	report, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Balances)
	assert.True(t, report.Consistent())
	assert.Equal(t, testNow, report.CheckedAt)
}

func TestReconciler_ReportsDrift(t *testing.T) {
	// GIVEN: A balance written behind the ledger's back
	// WHEN: Reconciling
	// THEN: The balance is reported with both stored and ledger amounts

	ctx := context.Background()
	ledger, mem, id := newTestLedger(t)
	_, err := ledger.Apply(ctx, id, request(generic.TxReplenishment, "100", "10000"))
	require.NoError(t, err)

	b, err := mem.GetBalance(ctx, id)
	require.NoError(t, err)
	b.Euro = dec("90")
	require.NoError(t, mem.WriteBalance(ctx, *b))

	r := &generic.Reconciler{Users: mem, Balances: mem, Snapshot: mem}
	report, err := r.Run(ctx)
	require.NoError(t, err)
	require.Len(t, report.Discrepancies, 1)

	d := report.Discrepancies[0]
	assert.Equal(t, id, d.BalanceID)
	assert.Equal(t, generic.UserID("user-1"), d.UserID)
	assert.Equal(t, "90.00", d.BalanceEuro.StringFixed(2))
	assert.Equal(t, "100.00", d.LedgerEuro.StringFixed(2))
	assert.Contains(t, d.String(), "ledger 100.00 EUR / 10000.00 RUB")
}

// applyingReader starts a replenishment the first time transactions are
// read, between the balance read and the ledger read of a reconciliation.
type applyingReader struct {
	*store.Memory
	ledger *generic.Ledger
	id     generic.BalanceID
	once   sync.Once
	done   chan error
}

func (a *applyingReader) Transactions(ctx context.Context, id generic.BalanceID, r generic.Range) ([]generic.Transaction, error) {
	a.once.Do(func() {
		go func() {
			_, err := a.ledger.Apply(context.Background(), a.id, request(generic.TxReplenishment, "5", "500"))
			a.done <- err
		}()
		select {
		case err := <-a.done:
			a.done <- err
		case <-time.After(50 * time.Millisecond):
		}
	})
	return a.Memory.Transactions(ctx, id, r)
}

func TestReconciler_ConcurrentApply(t *testing.T) {
	// GIVEN: A replenishment committed while a reconciliation is reading
	// WHEN: Reconciling
	// THEN: The run sees the balance and the ledger from the same moment
	// AND: The next run sees the replenishment on both sides

	ctx := context.Background()
	ledger, mem, id := newTestLedger(t)
	_, err := ledger.Apply(ctx, id, request(generic.TxReplenishment, "100", "10000"))
	require.NoError(t, err)

	reader := &applyingReader{Memory: mem, ledger: ledger, id: id, done: make(chan error, 1)}
	r := &generic.Reconciler{Users: mem, Balances: reader, Snapshot: mem}

	report, err := r.Run(ctx)
	require.NoError(t, err)
	assert.True(t, report.Consistent(), "%v", report.Discrepancies)

	require.NoError(t, <-reader.done)

	report, err = r.Run(ctx)
	require.NoError(t, err)
	assert.True(t, report.Consistent())

	b, err := mem.GetBalance(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "105.00", b.Euro.StringFixed(2))
	assert.Equal(t, "10500.00", b.Rub.StringFixed(2))
}
