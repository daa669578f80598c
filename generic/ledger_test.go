package generic_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/order-engine/generic"
)

// =============================================================================
// APPLY
// =============================================================================

func TestLedger_Replenish_SetsRate(t *testing.T) {
	// GIVEN: An empty balance
	// WHEN: Replenishing 100 EUR / 10000 RUB
	// THEN: Balance is 100 / 10000 at rate 100, one transaction and one history record

	ledger, mem, id := newTestLedger(t)
	ctx := context.Background()

	tx, err := ledger.Replenish(ctx, id, dec("100"), dec("10000"), "top-up")
	require.NoError(t, err)
	assert.Equal(t, generic.TxReplenishment, tx.Type)
	assert.Equal(t, testNow, tx.TransactionDate)

	b, err := mem.GetBalance(ctx, id)
	require.NoError(t, err)
	assert.True(t, b.Euro.Equal(dec("100")))
	assert.True(t, b.Rub.Equal(dec("10000")))
	assert.True(t, b.AverageExchangeRate.Equal(dec("100")))

	txs, err := mem.Transactions(ctx, id, generic.All)
	require.NoError(t, err)
	assert.Len(t, txs, 1)

	history, err := mem.History(ctx, id, generic.All)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, tx.ID, history[0].TransactionID)
	assert.True(t, history[0].BalanceEuroAfter.Equal(dec("100")))
	assert.True(t, history[0].BalanceRubAfter.Equal(dec("10000")))
	assert.True(t, history[0].RateAfter.Equal(dec("100")))
}

func TestLedger_Expense_Subtracts(t *testing.T) {
	ledger, mem, id := newTestLedger(t)
	ctx := context.Background()

	_, err := ledger.Replenish(ctx, id, dec("100"), dec("9000"), "")
	require.NoError(t, err)
	_, err = ledger.Apply(ctx, id, request(generic.TxExpense, "40", "3600"))
	require.NoError(t, err)

	b, err := mem.GetBalance(ctx, id)
	require.NoError(t, err)
	assert.True(t, b.Euro.Equal(dec("60")))
	assert.True(t, b.Rub.Equal(dec("5400")))
	assert.True(t, b.AverageExchangeRate.Equal(dec("90")))
}

func TestLedger_InsufficientFunds_LeavesStateUnchanged(t *testing.T) {
	// GIVEN: A balance of 10 EUR / 1000 RUB
	// WHEN: An expense of 10 EUR / 1000.01 RUB is applied
	// THEN: It fails with InsufficientFundsError and nothing is written

	ledger, mem, id := newTestLedger(t)
	ctx := context.Background()

	_, err := ledger.Replenish(ctx, id, dec("10"), dec("1000"), "")
	require.NoError(t, err)

	_, err = ledger.Apply(ctx, id, request(generic.TxExpense, "10", "1000.01"))
	require.Error(t, err)

	var funds *generic.InsufficientFundsError
	require.ErrorAs(t, err, &funds)
	assert.True(t, funds.AvailableRub.Equal(dec("1000")))
	assert.True(t, funds.RequiredRub.Equal(dec("1000.01")))
	assert.ErrorIs(t, err, generic.ErrInsufficientFunds)
	assert.ErrorIs(t, err, generic.ErrValidation)
	assert.Contains(t, err.Error(), "1000.00")
	assert.Contains(t, err.Error(), "1000.01")

	b, err := mem.GetBalance(ctx, id)
	require.NoError(t, err)
	assert.True(t, b.Euro.Equal(dec("10")))
	assert.True(t, b.Rub.Equal(dec("1000")))

	n, err := mem.CountTransactions(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	history, err := mem.History(ctx, id, generic.All)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestLedger_InsufficientFunds_EitherCurrency(t *testing.T) {
	ledger, _, id := newTestLedger(t)
	ctx := context.Background()

	_, err := ledger.Replenish(ctx, id, dec("10"), dec("1000"), "")
	require.NoError(t, err)

	_, err = ledger.Apply(ctx, id, request(generic.TxExpense, "10.01", "1"))
	assert.ErrorIs(t, err, generic.ErrInsufficientFunds)
}

func TestLedger_RejectsInvalidRequests(t *testing.T) {
	ledger, _, id := newTestLedger(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  generic.Request
	}{
		{"zero euro", request(generic.TxReplenishment, "0", "100")},
		{"zero rub", request(generic.TxReplenishment, "1", "0")},
		{"negative euro", request(generic.TxReplenishment, "-1", "100")},
		{"three decimals", request(generic.TxReplenishment, "1.005", "100")},
		{"unknown type", request("bonus", "1", "100")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ledger.Apply(ctx, id, tt.req)
			var ve *generic.ValidationError
			assert.ErrorAs(t, err, &ve)
		})
	}
}

func TestLedger_UnknownBalance(t *testing.T) {
	ledger, _, _ := newTestLedger(t)
	_, err := ledger.Apply(context.Background(), "missing", request(generic.TxReplenishment, "1", "1"))
	assert.True(t, generic.IsNotFound(err))
}

func TestLedger_ExpenseThenPayback_RestoresBalance(t *testing.T) {
	// GIVEN: A balance at rate 92.5
	// WHEN: An expense is followed by a payback of the same amounts
	// THEN: The balance and rate are back where they started

	ledger, mem, id := newTestLedger(t)
	ctx := context.Background()

	_, err := ledger.Replenish(ctx, id, dec("200"), dec("18500"), "")
	require.NoError(t, err)

	_, err = ledger.Apply(ctx, id, request(generic.TxExpense, "33.33", "3083.03"))
	require.NoError(t, err)
	_, err = ledger.Apply(ctx, id, request(generic.TxPayback, "33.33", "3083.03"))
	require.NoError(t, err)

	b, err := mem.GetBalance(ctx, id)
	require.NoError(t, err)
	assert.True(t, b.Euro.Equal(dec("200")))
	assert.True(t, b.Rub.Equal(dec("18500")))
	assert.True(t, b.AverageExchangeRate.Equal(dec("92.5")))
}

func TestLedger_BalanceEqualsSumOfTransactions(t *testing.T) {
	ledger, mem, id := newTestLedger(t)
	ctx := context.Background()

	steps := []generic.Request{
		request(generic.TxReplenishment, "100", "9000"),
		request(generic.TxReplenishment, "50", "5500"),
		request(generic.TxExpense, "20", "1940"),
		request(generic.TxPayback, "5", "485"),
		request(generic.TxExpense, "0.01", "0.97"),
	}
	for _, req := range steps {
		_, err := ledger.Apply(ctx, id, req)
		require.NoError(t, err)
	}

	txs, err := mem.Transactions(ctx, id, generic.All)
	require.NoError(t, err)
	euro, rub := dec("0"), dec("0")
	for _, tx := range txs {
		euro = euro.Add(tx.SignedEuro())
		rub = rub.Add(tx.SignedRub())
	}

	b, err := mem.GetBalance(ctx, id)
	require.NoError(t, err)
	assert.True(t, b.Euro.Equal(euro), "euro %s != %s", b.Euro, euro)
	assert.True(t, b.Rub.Equal(rub), "rub %s != %s", b.Rub, rub)
	assert.True(t, b.AverageExchangeRate.Equal(generic.AverageRate(b.Euro, b.Rub)))
}

func TestLedger_FailureInsideOuterTransaction_RollsBack(t *testing.T) {
	// GIVEN: A ledger apply inside a larger transaction
	// WHEN: The outer work fails after the apply succeeded
	// THEN: The balance change is rolled back with it

	ledger, mem, id := newTestLedger(t)
	ctx := context.Background()

	boom := errors.New("row write failed")
	err := mem.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := ledger.Replenish(ctx, id, dec("10"), dec("1000"), ""); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	b, err := mem.GetBalance(ctx, id)
	require.NoError(t, err)
	assert.True(t, b.Euro.IsZero())
	n, err := mem.CountTransactions(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLedger_ApplyForUser(t *testing.T) {
	ledger, mem, id := newTestLedger(t)
	ctx := context.Background()

	_, err := ledger.ApplyForUser(ctx, "user-1", request(generic.TxReplenishment, "1", "95"))
	require.NoError(t, err)

	b, err := mem.GetBalance(ctx, id)
	require.NoError(t, err)
	assert.True(t, b.Rub.Equal(dec("95")))
}

// =============================================================================
// REFUSED DELETES
// =============================================================================

func TestLedger_DeletesAreRefused(t *testing.T) {
	ledger, _, id := newTestLedger(t)
	ctx := context.Background()

	tx, err := ledger.Replenish(ctx, id, dec("1"), dec("100"), "")
	require.NoError(t, err)

	err = ledger.DeleteBalance(ctx, id)
	var pd *generic.ProtectedDeletionError
	require.ErrorAs(t, err, &pd)
	assert.Contains(t, pd.Reason, "1 transactions")

	err = ledger.DeleteTransaction(ctx, tx.ID)
	assert.ErrorIs(t, err, generic.ErrProtectedDeletion)
	assert.True(t, generic.IsConflict(err))
}

// =============================================================================
// RATE
// =============================================================================

func TestAverageRate(t *testing.T) {
	assert.True(t, generic.AverageRate(dec("100"), dec("10000")).Equal(dec("100")))
	assert.True(t, generic.AverageRate(dec("3"), dec("100")).Equal(dec("33.33")))
	assert.True(t, generic.AverageRate(dec("3"), dec("200")).Equal(dec("66.67")))
	assert.True(t, generic.AverageRate(dec("0"), dec("500")).IsZero())
	assert.True(t, generic.ConvertToRub(dec("12.34"), dec("91.5")).Equal(dec("1129.11")))
}
