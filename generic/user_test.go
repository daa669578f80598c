package generic_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/order-engine/generic"
	"github.com/warp/order-engine/generic/store"
)

func TestAccounts_CreateUser_WithEmptyBalance(t *testing.T) {
	mem := store.NewMemory()
	accounts := &generic.Accounts{Store: mem, Clock: generic.FixedClock{At: testNow}}
	ctx := context.Background()

	u, b, err := accounts.CreateUser(ctx, generic.User{Email: "  ivan@example.com ", Name: "Ivan"})
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "ivan@example.com", u.Email)
	assert.Equal(t, testNow, u.CreatedAt)

	assert.Equal(t, u.ID, b.UserID)
	assert.True(t, b.Euro.IsZero())
	assert.True(t, b.Rub.IsZero())
	assert.True(t, b.AverageExchangeRate.IsZero())

	stored, err := mem.GetBalanceByUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, stored.ID)
}

func TestAccounts_CreateUser_Validation(t *testing.T) {
	accounts := &generic.Accounts{Store: store.NewMemory()}

	for _, email := range []string{"", "not-an-address"} {
		_, _, err := accounts.CreateUser(context.Background(), generic.User{Email: email})
		assert.ErrorIs(t, err, generic.ErrValidation, email)
	}
}

func TestAccounts_CreateUser_DuplicateEmail(t *testing.T) {
	// GIVEN: A user with an email
	// WHEN: Creating another user with the same email in other case
	// THEN: ErrDuplicate, and no orphan balance is left behind

	mem := store.NewMemory()
	accounts := &generic.Accounts{Store: mem}
	ctx := context.Background()

	_, _, err := accounts.CreateUser(ctx, generic.User{Email: "olga@example.com"})
	require.NoError(t, err)

	_, _, err = accounts.CreateUser(ctx, generic.User{ID: "second", Email: "OLGA@example.com"})
	assert.ErrorIs(t, err, generic.ErrDuplicate)
	assert.True(t, generic.IsClientError(err))

	_, err = mem.GetBalanceByUser(ctx, "second")
	assert.True(t, generic.IsNotFound(err))

	users, err := mem.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}
