package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/order-engine/generic"
	"github.com/warp/order-engine/generic/store"
)

func newTestMemory(t *testing.T) (*store.Memory, generic.Balance) {
	t.Helper()
	mem := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, mem.CreateUser(ctx, generic.User{ID: "u1", Email: "u1@example.com"}))
	b := generic.NewBalance("b1", "u1", time.Now())
	require.NoError(t, mem.CreateBalance(ctx, b))
	return mem, b
}

func TestMemory_RollbackRestoresEverything(t *testing.T) {
	mem, b := newTestMemory(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := mem.RunInTx(ctx, func(ctx context.Context) error {
		b.Euro = decimal.NewFromInt(5)
		require.NoError(t, mem.WriteBalance(ctx, b))
		require.NoError(t, mem.AppendTransaction(ctx, generic.Transaction{ID: "t1", BalanceID: b.ID}))
		require.NoError(t, mem.CreateUser(ctx, generic.User{ID: "u2", Email: "u2@example.com"}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := mem.GetBalance(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, got.Euro.IsZero())

	n, err := mem.CountTransactions(ctx, b.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = mem.GetUser(ctx, "u2")
	assert.True(t, generic.IsNotFound(err))
}

func TestMemory_NestedTxJoinsOuter(t *testing.T) {
	// GIVEN: A nested RunInTx that succeeds
	// WHEN: The outer function then fails
	// THEN: The inner writes are rolled back too

	mem, b := newTestMemory(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := mem.RunInTx(ctx, func(ctx context.Context) error {
		inner := mem.RunInTx(ctx, func(ctx context.Context) error {
			return mem.AppendTransaction(ctx, generic.Transaction{ID: "t1", BalanceID: b.ID})
		})
		require.NoError(t, inner)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	n, err := mem.CountTransactions(ctx, b.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMemory_RejectsNegativeBalance(t *testing.T) {
	mem, b := newTestMemory(t)

	b.Rub = decimal.NewFromInt(-1)
	err := mem.WriteBalance(context.Background(), b)
	assert.ErrorIs(t, err, generic.ErrValidation)
}

func TestMemory_TransactionsSortedAndFiltered(t *testing.T) {
	mem, b := newTestMemory(t)
	ctx := context.Background()
	day := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)

	for i, at := range []time.Time{day.Add(2 * time.Hour), day.Add(-time.Hour), day.Add(time.Hour)} {
		require.NoError(t, mem.AppendTransaction(ctx, generic.Transaction{
			ID:              generic.TransactionID(string(rune('a' + i))),
			BalanceID:       b.ID,
			TransactionDate: at,
		}))
	}

	all, err := mem.Transactions(ctx, b.ID, generic.All)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, generic.TransactionID("b"), all[0].ID)
	assert.Equal(t, generic.TransactionID("c"), all[1].ID)
	assert.Equal(t, generic.TransactionID("a"), all[2].ID)

	inDay, err := mem.Transactions(ctx, b.ID, generic.Day(day))
	require.NoError(t, err)
	assert.Len(t, inDay, 2)
}

func TestMemory_StatusDuplicates(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	g := generic.StatusGroup{ID: "g1", Code: "orders", Family: "order"}
	require.NoError(t, mem.CreateStatusGroup(ctx, g))
	assert.ErrorIs(t, mem.CreateStatusGroup(ctx, g), generic.ErrDuplicate)

	s := generic.Status{ID: "s1", Group: "orders", Code: "new"}
	require.NoError(t, mem.CreateStatus(ctx, s))
	s.ID = "s2"
	assert.ErrorIs(t, mem.CreateStatus(ctx, s), generic.ErrDuplicate)
}
