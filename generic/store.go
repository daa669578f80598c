/*
store.go - Persistence interfaces for balances, users and statuses

PURPOSE:
  Defines the interface between the engine and the database. Interfaces
  are split by who is allowed to hold them:

KEY INTERFACES:
  Atomic:        RunInTx - one database transaction carried in the context
  Snapshot:      RunInSnapshot - read-only transaction, one consistent view
  BalanceReader: Read-only balance, transaction and history queries
  LedgerStore:   Raw balance writes + append-only inserts. Held ONLY by Ledger.
  UserStore:     Users plus the initial empty balance
  StatusStore:   Status groups and statuses (seeded once, read-only afterwards)

WRITE DISCIPLINE:
  Nothing outside Ledger receives a LedgerStore. Domain services get a
  BalanceReader for rates and a *Ledger for changes, so a direct balance
  write does not compile rather than being caught by a runtime flag.

TRANSACTIONS IN CONTEXT:
  RunInTx stores the open transaction in the context it passes to fn.
  Every store method called with that context joins the transaction;
  nested RunInTx calls join the outer one instead of opening a new one.
  A non-nil error from fn rolls everything back.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite or PostgreSQL via sqlx
  - generic/store/memory.go: In-memory ledger store for testing

SEE ALSO:
  - ledger.go: Uses LedgerStore
  - status.go: Uses StatusStore
*/
package generic

import "context"

// =============================================================================
// ATOMIC - Transaction boundary
// =============================================================================

type Atomic interface {
	// RunInTx executes fn within one transaction. If fn returns an error
	// the transaction is rolled back, otherwise it is committed.
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Snapshot runs a group of reads against one consistent view of the data.
// A ledger write cannot commit between two reads made inside fn.
type Snapshot interface {
	RunInSnapshot(ctx context.Context, fn func(ctx context.Context) error) error
}

// =============================================================================
// BALANCE READER - Read side of the ledger
// =============================================================================

type BalanceReader interface {
	// GetBalance returns a *NotFoundError when the balance does not exist.
	GetBalance(ctx context.Context, id BalanceID) (*Balance, error)

	// GetBalanceByUser returns the single balance owned by a user.
	GetBalanceByUser(ctx context.Context, userID UserID) (*Balance, error)

	// Transactions returns entries whose TransactionDate is in r, chronologically.
	Transactions(ctx context.Context, id BalanceID, r Range) ([]Transaction, error)

	// History returns history records created in r, chronologically.
	History(ctx context.Context, id BalanceID, r Range) ([]HistoryRecord, error)

	// CountTransactions returns how many entries the balance has.
	CountTransactions(ctx context.Context, id BalanceID) (int, error)
}

// =============================================================================
// LEDGER STORE - Write side, for the Ledger only
// =============================================================================

type LedgerStore interface {
	Atomic
	BalanceReader

	// GetBalanceForUpdate reads the balance and locks its row until the
	// surrounding transaction ends (where the database supports it).
	GetBalanceForUpdate(ctx context.Context, id BalanceID) (*Balance, error)

	// WriteBalance persists the currency fields and rate as given.
	WriteBalance(ctx context.Context, b Balance) error

	// AppendTransaction inserts an immutable ledger entry.
	AppendTransaction(ctx context.Context, tx Transaction) error

	// AppendHistory inserts an immutable history record.
	AppendHistory(ctx context.Context, h HistoryRecord) error
}

// =============================================================================
// USER STORE
// =============================================================================

type UserStore interface {
	Atomic

	// CreateUser returns ErrDuplicate when the email is taken.
	CreateUser(ctx context.Context, u User) error
	GetUser(ctx context.Context, id UserID) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)

	// CreateBalance inserts the initial (empty) balance of a new user.
	CreateBalance(ctx context.Context, b Balance) error
}

// =============================================================================
// STATUS STORE
// =============================================================================

type StatusStore interface {
	ListStatusGroups(ctx context.Context) ([]StatusGroup, error)
	ListStatuses(ctx context.Context) ([]Status, error)

	// CreateStatusGroup and CreateStatus are used by bootstrap seeding only.
	// There are no update or delete counterparts.
	CreateStatusGroup(ctx context.Context, g StatusGroup) error
	CreateStatus(ctx context.Context, s Status) error
}
