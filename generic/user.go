package generic

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// User is an account holder. Every user owns exactly one Balance, created
// together with the user by Accounts.CreateUser.
type User struct {
	ID        UserID
	Email     string
	Name      string
	CreatedAt time.Time
}

// Accounts creates users and their balances as one unit.
type Accounts struct {
	Store UserStore
	Clock Clock
	Log   logrus.FieldLogger
}

// CreateUser validates u, assigns an ID when missing and inserts the user
// together with an empty balance.
func (a *Accounts) CreateUser(ctx context.Context, u User) (*User, *Balance, error) {
	u.Email = strings.TrimSpace(u.Email)
	u.Name = strings.TrimSpace(u.Name)
	if u.Email == "" {
		return nil, nil, Invalid("email", "is required")
	}
	if _, err := mail.ParseAddress(u.Email); err != nil {
		return nil, nil, Invalid("email", "%q is not a valid address", u.Email)
	}
	if u.ID == "" {
		u.ID = UserID(uuid.NewString())
	}
	now := clockOrSystem(a.Clock).Now()
	u.CreatedAt = now
	b := NewBalance(BalanceID(uuid.NewString()), u.ID, now)

	err := a.Store.RunInTx(ctx, func(ctx context.Context) error {
		if err := a.Store.CreateUser(ctx, u); err != nil {
			return err
		}
		return a.Store.CreateBalance(ctx, b)
	})
	if err != nil {
		return nil, nil, err
	}

	if a.Log != nil {
		a.Log.WithFields(logrus.Fields{"user_id": u.ID, "balance_id": b.ID}).Info("user created")
	}
	return &u, &b, nil
}
