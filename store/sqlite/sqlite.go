/*
Package sqlite provides a SQL-backed implementation of the storage interfaces.

PURPOSE:
  Implements every persistence interface of the engine (ledger, users,
  statuses, orders, deliveries) with sqlx over database/sql. SQLite is the
  default driver; PostgreSQL (lib/pq) runs the same schema and queries.
  Placeholders are written as "?" and rebound per driver.

INTERFACES IMPLEMENTED:
  generic.LedgerStore:  Balances, transactions, history (write side for Ledger)
  generic.UserStore:    Users and their initial balance
  generic.StatusStore:  Status groups and statuses
  orders.Store:         Sites, orders, package links
  delivery.Store:       Transport companies, packages, deliveries

TRANSACTIONS:
  RunInTx opens one *sqlx.Tx and carries it in the context. Every method
  called with that context runs on the transaction; nested RunInTx calls
  join it. Any error from fn rolls the whole unit back.

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE statements on transactions or balance_history
  - CHECK constraints keep balances non-negative and amounts positive as
    a second line of defence behind Ledger.Apply

LOCKING:
  On PostgreSQL the *ForUpdate reads append FOR UPDATE. SQLite has no row
  locks; the store opens a single connection, so transactions serialize.

USAGE:
  store, err := sqlite.New("./data/orders.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := generic.NewLedger(store, log)

MIGRATION:
  Schema is auto-migrated on open with CREATE ... IF NOT EXISTS.

SEE ALSO:
  - generic/store.go: Interface definitions
  - generic/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/warp/order-engine/delivery"
	"github.com/warp/order-engine/generic"
	"github.com/warp/order-engine/orders"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Store implements all storage interfaces.
type Store struct {
	db     *sqlx.DB
	driver string
}

var (
	_ generic.LedgerStore = (*Store)(nil)
	_ generic.UserStore   = (*Store)(nil)
	_ generic.StatusStore = (*Store)(nil)
	_ orders.Store        = (*Store)(nil)
	_ delivery.Store      = (*Store)(nil)
)

// New opens a SQLite database at path. Use ":memory:" for an in-memory
// database.
func New(path string) (*Store, error) {
	return Open(DriverSQLite, path)
}

// Open connects with the given driver ("sqlite3" or "postgres") and
// migrates the schema.
func Open(driver, dsn string) (*Store, error) {
	switch driver {
	case DriverSQLite:
		if !strings.Contains(dsn, "?") {
			dsn += "?_foreign_keys=on&_journal_mode=WAL"
		}
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == DriverSQLite {
		// One connection: ":memory:" databases are per connection and
		// SQLite allows a single writer anyway.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := &Store{db: db, driver: driver}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Driver returns the database driver name.
func (s *Store) Driver() string {
	return s.driver
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email_lower ON users (lower(email));

	-- One balance per user, never negative
	CREATE TABLE IF NOT EXISTS balances (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL UNIQUE REFERENCES users(id),
		euro TEXT NOT NULL DEFAULT '0',
		rub TEXT NOT NULL DEFAULT '0',
		average_exchange_rate TEXT NOT NULL DEFAULT '0',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		CHECK (CAST(euro AS REAL) >= 0),
		CHECK (CAST(rub AS REAL) >= 0)
	);

	-- Transactions (append-only ledger)
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		balance_id TEXT NOT NULL REFERENCES balances(id),
		transaction_type TEXT NOT NULL,
		amount_euro TEXT NOT NULL,
		amount_rub TEXT NOT NULL,
		comment TEXT NOT NULL DEFAULT '',
		transaction_date TIMESTAMP NOT NULL,
		created_at TIMESTAMP NOT NULL,
		CHECK (transaction_type IN ('replenishment', 'expense', 'payback')),
		CHECK (CAST(amount_euro AS REAL) > 0),
		CHECK (CAST(amount_rub AS REAL) > 0)
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_balance_date
		ON transactions(balance_id, transaction_date);

	-- Balance history (append-only, one row per transaction)
	CREATE TABLE IF NOT EXISTS balance_history (
		id TEXT PRIMARY KEY,
		balance_id TEXT NOT NULL REFERENCES balances(id),
		transaction_id TEXT NOT NULL UNIQUE REFERENCES transactions(id),
		transaction_type TEXT NOT NULL,
		amount_euro TEXT NOT NULL,
		amount_rub TEXT NOT NULL,
		balance_euro_after TEXT NOT NULL,
		balance_rub_after TEXT NOT NULL,
		rate_after TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_balance_history_balance_date
		ON balance_history(balance_id, created_at);

	-- Status groups and statuses (seeded at bootstrap, read-only afterwards)
	CREATE TABLE IF NOT EXISTS status_groups (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		family TEXT NOT NULL,
		allowed_transitions TEXT NOT NULL,
		transaction_types TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS statuses (
		id TEXT PRIMARY KEY,
		group_code TEXT NOT NULL REFERENCES status_groups(code),
		code TEXT NOT NULL,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		is_default BOOLEAN NOT NULL DEFAULT FALSE,
		sort_order INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		UNIQUE (group_code, code)
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_statuses_one_default
		ON statuses(group_code) WHERE is_default;

	-- Sites and orders
	CREATE TABLE IF NOT EXISTS sites (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		url TEXT NOT NULL UNIQUE,
		organizer_fee_percentage TEXT NOT NULL DEFAULT '0',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		site_id TEXT NOT NULL REFERENCES sites(id),
		status_id TEXT NOT NULL REFERENCES statuses(id),
		amount_euro TEXT NOT NULL,
		amount_rub TEXT NOT NULL,
		expense TEXT NOT NULL DEFAULT '0',
		profit TEXT NOT NULL DEFAULT '0',
		internal_number TEXT UNIQUE,
		external_number TEXT UNIQUE,
		paid_at TIMESTAMP,
		comment TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		CHECK (CAST(amount_euro AS REAL) > 0),
		CHECK (CAST(amount_rub AS REAL) > 0)
	);

	CREATE INDEX IF NOT EXISTS idx_orders_user ON orders(user_id);
	CREATE INDEX IF NOT EXISTS idx_orders_site ON orders(site_id);

	-- Transport companies, packages and deliveries
	CREATE TABLE IF NOT EXISTS transport_companies (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		is_default BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_transport_companies_one_default
		ON transport_companies(is_default) WHERE is_default;

	CREATE TABLE IF NOT EXISTS packages (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		number TEXT NOT NULL,
		shipping_cost_eur TEXT NOT NULL DEFAULT '0',
		fee_cost_eur TEXT NOT NULL DEFAULT '0',
		total_cost_eur TEXT NOT NULL DEFAULT '0',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		UNIQUE (user_id, number),
		CHECK (CAST(shipping_cost_eur AS REAL) >= 0),
		CHECK (CAST(fee_cost_eur AS REAL) >= 0)
	);

	CREATE TABLE IF NOT EXISTS package_deliveries (
		id TEXT PRIMARY KEY,
		package_id TEXT NOT NULL UNIQUE REFERENCES packages(id),
		transport_company_id TEXT NOT NULL REFERENCES transport_companies(id),
		status_id TEXT NOT NULL REFERENCES statuses(id),
		weight TEXT NOT NULL,
		shipping_cost_rub TEXT NOT NULL DEFAULT '0',
		price_rub_for_kg TEXT NOT NULL DEFAULT '0',
		paid_at TIMESTAMP,
		tracking_number TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		CHECK (CAST(weight AS REAL) > 0),
		CHECK (tracking_number <> '')
	);

	CREATE TABLE IF NOT EXISTS package_orders (
		id TEXT PRIMARY KEY,
		package_id TEXT NOT NULL REFERENCES packages(id),
		order_id TEXT NOT NULL REFERENCES orders(id),
		created_at TIMESTAMP NOT NULL,
		UNIQUE (package_id, order_id)
	);

	CREATE INDEX IF NOT EXISTS idx_package_orders_order ON package_orders(order_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Reset deletes all business data but keeps the seeded status groups.
// Used by the demo scenarios only.
func (s *Store) Reset(ctx context.Context) error {
	return s.RunInTx(ctx, func(ctx context.Context) error {
		for _, table := range []string{
			"package_orders", "package_deliveries", "packages", "transport_companies",
			"orders", "sites", "balance_history", "transactions", "balances", "users",
		} {
			if _, err := s.exec(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("failed to reset %s: %w", table, err)
			}
		}
		return nil
	})
}

// =============================================================================
// TRANSACTIONS - Carried in the context
// =============================================================================

type txKey struct{}

// queryer is what *sqlx.DB and *sqlx.Tx have in common.
type queryer interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

// RunInTx executes fn within a database transaction. Nested calls join the
// outer transaction.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RunInSnapshot runs fn in a read-only transaction. On postgres it is
// REPEATABLE READ, so every statement sees the snapshot taken by the
// first one. sqlite has a single connection, which serializes writers
// behind the open transaction. Inside an outer transaction fn joins it.
func (s *Store) RunInSnapshot(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}

	var opts *sql.TxOptions
	if s.driver == DriverPostgres {
		opts = &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	}
	tx, err := s.db.BeginTxx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin snapshot: %w", err)
	}
	defer tx.Rollback()

	return fn(context.WithValue(ctx, txKey{}, tx))
}

func (s *Store) q(ctx context.Context) queryer {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return s.db
}

func (s *Store) get(ctx context.Context, dest any, query string, args ...any) error {
	q := s.q(ctx)
	return q.GetContext(ctx, dest, q.Rebind(query), args...)
}

func (s *Store) selectAll(ctx context.Context, dest any, query string, args ...any) error {
	q := s.q(ctx)
	return q.SelectContext(ctx, dest, q.Rebind(query), args...)
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	q := s.q(ctx)
	res, err := q.ExecContext(ctx, q.Rebind(query), args...)
	if err != nil {
		return nil, translate(err)
	}
	return res, nil
}

// forUpdate appends a row lock where the driver supports one.
func (s *Store) forUpdate(query string) string {
	if s.driver == DriverPostgres {
		return query + " FOR UPDATE"
	}
	return query
}

func (s *Store) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := s.get(ctx, &n, query, args...); err != nil {
		return 0, err
	}
	return n, nil
}

// getOne runs a single-row query and maps sql.ErrNoRows to NotFoundError.
func (s *Store) getOne(ctx context.Context, dest any, entity, id, query string, args ...any) error {
	err := s.get(ctx, dest, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return &generic.NotFoundError{Entity: entity, ID: id}
	}
	if err != nil {
		return fmt.Errorf("failed to load %s %s: %w", entity, id, err)
	}
	return nil
}

// mustAffect turns a zero-row update or delete into NotFoundError.
func mustAffect(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &generic.NotFoundError{Entity: entity, ID: id}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// translate maps constraint violations of either driver to engine errors.
func translate(err error) error {
	if isUniqueConstraintError(err) {
		return fmt.Errorf("%w: %v", generic.ErrDuplicate, err)
	}
	if isCheckConstraintError(err) {
		return &generic.ValidationError{Message: err.Error()}
	}
	return err
}

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pe *pq.Error
	if errors.As(err, &pe) {
		return pe.Code == "23505"
	}
	return false
}

func isCheckConstraintError(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintCheck
	}
	var pe *pq.Error
	if errors.As(err, &pe) {
		return pe.Code == "23514"
	}
	return false
}
