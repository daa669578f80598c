package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/order-engine/generic"
)

// =============================================================================
// USERS (generic.UserStore)
// =============================================================================

type userRow struct {
	ID        string    `db:"id"`
	Email     string    `db:"email"`
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"created_at"`
}

func (r userRow) user() generic.User {
	return generic.User{ID: generic.UserID(r.ID), Email: r.Email, Name: r.Name, CreatedAt: r.CreatedAt}
}

func (s *Store) CreateUser(ctx context.Context, u generic.User) error {
	_, err := s.exec(ctx,
		`INSERT INTO users (id, email, name, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, u.Email, u.Name, u.CreatedAt)
	return err
}

func (s *Store) GetUser(ctx context.Context, id generic.UserID) (*generic.User, error) {
	var row userRow
	if err := s.getOne(ctx, &row, "user", string(id),
		`SELECT id, email, name, created_at FROM users WHERE id = ?`, id); err != nil {
		return nil, err
	}
	u := row.user()
	return &u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]generic.User, error) {
	var rows []userRow
	if err := s.selectAll(ctx, &rows,
		`SELECT id, email, name, created_at FROM users ORDER BY email`); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	out := make([]generic.User, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.user())
	}
	return out, nil
}

func (s *Store) CreateBalance(ctx context.Context, b generic.Balance) error {
	_, err := s.exec(ctx, `
		INSERT INTO balances (id, user_id, euro, rub, average_exchange_rate, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.UserID, b.Euro, b.Rub, b.AverageExchangeRate, b.CreatedAt, b.UpdatedAt)
	return err
}

// =============================================================================
// BALANCES (generic.BalanceReader + generic.LedgerStore)
// =============================================================================

type balanceRow struct {
	ID                  string          `db:"id"`
	UserID              string          `db:"user_id"`
	Euro                decimal.Decimal `db:"euro"`
	Rub                 decimal.Decimal `db:"rub"`
	AverageExchangeRate decimal.Decimal `db:"average_exchange_rate"`
	CreatedAt           time.Time       `db:"created_at"`
	UpdatedAt           time.Time       `db:"updated_at"`
}

func (r balanceRow) balance() *generic.Balance {
	return &generic.Balance{
		ID:                  generic.BalanceID(r.ID),
		UserID:              generic.UserID(r.UserID),
		Euro:                r.Euro,
		Rub:                 r.Rub,
		AverageExchangeRate: r.AverageExchangeRate,
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
	}
}

const balanceColumns = `id, user_id, euro, rub, average_exchange_rate, created_at, updated_at`

func (s *Store) GetBalance(ctx context.Context, id generic.BalanceID) (*generic.Balance, error) {
	var row balanceRow
	if err := s.getOne(ctx, &row, "balance", string(id),
		`SELECT `+balanceColumns+` FROM balances WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return row.balance(), nil
}

func (s *Store) GetBalanceByUser(ctx context.Context, userID generic.UserID) (*generic.Balance, error) {
	var row balanceRow
	if err := s.getOne(ctx, &row, "balance", "user "+string(userID),
		`SELECT `+balanceColumns+` FROM balances WHERE user_id = ?`, userID); err != nil {
		return nil, err
	}
	return row.balance(), nil
}

func (s *Store) GetBalanceForUpdate(ctx context.Context, id generic.BalanceID) (*generic.Balance, error) {
	var row balanceRow
	if err := s.getOne(ctx, &row, "balance", string(id),
		s.forUpdate(`SELECT `+balanceColumns+` FROM balances WHERE id = ?`), id); err != nil {
		return nil, err
	}
	return row.balance(), nil
}

// WriteBalance is reachable only through generic.LedgerStore.
func (s *Store) WriteBalance(ctx context.Context, b generic.Balance) error {
	res, err := s.exec(ctx, `
		UPDATE balances SET euro = ?, rub = ?, average_exchange_rate = ?, updated_at = ?
		WHERE id = ?`,
		b.Euro, b.Rub, b.AverageExchangeRate, b.UpdatedAt, b.ID)
	if err != nil {
		return err
	}
	return mustAffect(res, "balance", string(b.ID))
}

func (s *Store) CountTransactions(ctx context.Context, id generic.BalanceID) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM transactions WHERE balance_id = ?`, id)
}

// =============================================================================
// TRANSACTIONS + HISTORY (append-only)
// =============================================================================

type transactionRow struct {
	ID              string          `db:"id"`
	BalanceID       string          `db:"balance_id"`
	Type            string          `db:"transaction_type"`
	AmountEuro      decimal.Decimal `db:"amount_euro"`
	AmountRub       decimal.Decimal `db:"amount_rub"`
	Comment         string          `db:"comment"`
	TransactionDate time.Time       `db:"transaction_date"`
	CreatedAt       time.Time       `db:"created_at"`
}

func (s *Store) AppendTransaction(ctx context.Context, tx generic.Transaction) error {
	_, err := s.exec(ctx, `
		INSERT INTO transactions
		(id, balance_id, transaction_type, amount_euro, amount_rub, comment, transaction_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.BalanceID, tx.Type, tx.AmountEuro, tx.AmountRub, tx.Comment, tx.TransactionDate.UTC(), tx.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

func (s *Store) Transactions(ctx context.Context, id generic.BalanceID, r generic.Range) ([]generic.Transaction, error) {
	where, args := rangeClause("transaction_date", r)
	var rows []transactionRow
	err := s.selectAll(ctx, &rows, `
		SELECT id, balance_id, transaction_type, amount_euro, amount_rub, comment, transaction_date, created_at
		FROM transactions
		WHERE balance_id = ?`+where+`
		ORDER BY transaction_date ASC, created_at ASC`,
		append([]any{id}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}

	out := make([]generic.Transaction, 0, len(rows))
	for _, row := range rows {
		out = append(out, generic.Transaction{
			ID:              generic.TransactionID(row.ID),
			BalanceID:       generic.BalanceID(row.BalanceID),
			Type:            generic.TransactionType(row.Type),
			AmountEuro:      row.AmountEuro,
			AmountRub:       row.AmountRub,
			Comment:         row.Comment,
			TransactionDate: row.TransactionDate,
			CreatedAt:       row.CreatedAt,
		})
	}
	return out, nil
}

type historyRow struct {
	ID               string          `db:"id"`
	BalanceID        string          `db:"balance_id"`
	TransactionID    string          `db:"transaction_id"`
	Type             string          `db:"transaction_type"`
	AmountEuro       decimal.Decimal `db:"amount_euro"`
	AmountRub        decimal.Decimal `db:"amount_rub"`
	BalanceEuroAfter decimal.Decimal `db:"balance_euro_after"`
	BalanceRubAfter  decimal.Decimal `db:"balance_rub_after"`
	RateAfter        decimal.Decimal `db:"rate_after"`
	CreatedAt        time.Time       `db:"created_at"`
}

func (s *Store) AppendHistory(ctx context.Context, h generic.HistoryRecord) error {
	_, err := s.exec(ctx, `
		INSERT INTO balance_history
		(id, balance_id, transaction_id, transaction_type, amount_euro, amount_rub,
		 balance_euro_after, balance_rub_after, rate_after, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ID, h.BalanceID, h.TransactionID, h.Type, h.AmountEuro, h.AmountRub,
		h.BalanceEuroAfter, h.BalanceRubAfter, h.RateAfter, h.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

func (s *Store) History(ctx context.Context, id generic.BalanceID, r generic.Range) ([]generic.HistoryRecord, error) {
	where, args := rangeClause("created_at", r)
	var rows []historyRow
	err := s.selectAll(ctx, &rows, `
		SELECT id, balance_id, transaction_id, transaction_type, amount_euro, amount_rub,
		       balance_euro_after, balance_rub_after, rate_after, created_at
		FROM balance_history
		WHERE balance_id = ?`+where+`
		ORDER BY created_at ASC`,
		append([]any{id}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}

	out := make([]generic.HistoryRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, generic.HistoryRecord{
			ID:               row.ID,
			BalanceID:        generic.BalanceID(row.BalanceID),
			TransactionID:    generic.TransactionID(row.TransactionID),
			Type:             generic.TransactionType(row.Type),
			AmountEuro:       row.AmountEuro,
			AmountRub:        row.AmountRub,
			BalanceEuroAfter: row.BalanceEuroAfter,
			BalanceRubAfter:  row.BalanceRubAfter,
			RateAfter:        row.RateAfter,
			CreatedAt:        row.CreatedAt,
		})
	}
	return out, nil
}

// rangeClause renders the non-zero bounds of r as extra AND conditions.
// Stored timestamps are UTC and compare as text, so the bounds are too.
func rangeClause(column string, r generic.Range) (string, []any) {
	var (
		clause string
		args   []any
	)
	if !r.From.IsZero() {
		clause += " AND " + column + " >= ?"
		args = append(args, r.From.UTC())
	}
	if !r.To.IsZero() {
		clause += " AND " + column + " <= ?"
		args = append(args, r.To.UTC())
	}
	return clause, args
}
