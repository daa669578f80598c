package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/order-engine/delivery"
	"github.com/warp/order-engine/generic"
	"github.com/warp/order-engine/orders"
)

// =============================================================================
// SITES (orders.Store)
// =============================================================================

type siteRow struct {
	ID                     string          `db:"id"`
	Name                   string          `db:"name"`
	URL                    string          `db:"url"`
	OrganizerFeePercentage decimal.Decimal `db:"organizer_fee_percentage"`
	CreatedAt              time.Time       `db:"created_at"`
	UpdatedAt              time.Time       `db:"updated_at"`
}

func (r siteRow) site() orders.Site {
	return orders.Site{
		ID:                     orders.SiteID(r.ID),
		Name:                   r.Name,
		URL:                    r.URL,
		OrganizerFeePercentage: r.OrganizerFeePercentage,
		CreatedAt:              r.CreatedAt,
		UpdatedAt:              r.UpdatedAt,
	}
}

func (s *Store) CreateSite(ctx context.Context, site orders.Site) error {
	_, err := s.exec(ctx, `
		INSERT INTO sites (id, name, url, organizer_fee_percentage, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		site.ID, site.Name, site.URL, site.OrganizerFeePercentage, site.CreatedAt, site.UpdatedAt)
	return err
}

func (s *Store) UpdateSite(ctx context.Context, site orders.Site) error {
	res, err := s.exec(ctx, `
		UPDATE sites SET name = ?, url = ?, organizer_fee_percentage = ?, updated_at = ?
		WHERE id = ?`,
		site.Name, site.URL, site.OrganizerFeePercentage, site.UpdatedAt, site.ID)
	if err != nil {
		return err
	}
	return mustAffect(res, "site", string(site.ID))
}

func (s *Store) GetSite(ctx context.Context, id orders.SiteID) (*orders.Site, error) {
	var row siteRow
	if err := s.getOne(ctx, &row, "site", string(id), `
		SELECT id, name, url, organizer_fee_percentage, created_at, updated_at
		FROM sites WHERE id = ?`, id); err != nil {
		return nil, err
	}
	site := row.site()
	return &site, nil
}

func (s *Store) ListSites(ctx context.Context) ([]orders.Site, error) {
	var rows []siteRow
	if err := s.selectAll(ctx, &rows, `
		SELECT id, name, url, organizer_fee_percentage, created_at, updated_at
		FROM sites ORDER BY name`); err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}
	out := make([]orders.Site, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.site())
	}
	return out, nil
}

func (s *Store) DeleteSite(ctx context.Context, id orders.SiteID) error {
	res, err := s.exec(ctx, `DELETE FROM sites WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return mustAffect(res, "site", string(id))
}

func (s *Store) CountOrdersBySite(ctx context.Context, id orders.SiteID) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM orders WHERE site_id = ?`, id)
}

// =============================================================================
// ORDERS
// =============================================================================

type orderRow struct {
	ID             string          `db:"id"`
	UserID         string          `db:"user_id"`
	SiteID         string          `db:"site_id"`
	StatusID       string          `db:"status_id"`
	AmountEuro     decimal.Decimal `db:"amount_euro"`
	AmountRub      decimal.Decimal `db:"amount_rub"`
	Expense        decimal.Decimal `db:"expense"`
	Profit         decimal.Decimal `db:"profit"`
	InternalNumber sql.NullString  `db:"internal_number"`
	ExternalNumber sql.NullString  `db:"external_number"`
	PaidAt         *time.Time      `db:"paid_at"`
	Comment        string          `db:"comment"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

func (r orderRow) order() *orders.Order {
	return &orders.Order{
		ID:             orders.OrderID(r.ID),
		UserID:         generic.UserID(r.UserID),
		SiteID:         orders.SiteID(r.SiteID),
		Status:         generic.StatusID(r.StatusID),
		AmountEuro:     r.AmountEuro,
		AmountRub:      r.AmountRub,
		Expense:        r.Expense,
		Profit:         r.Profit,
		InternalNumber: r.InternalNumber.String,
		ExternalNumber: r.ExternalNumber.String,
		PaidAt:         r.PaidAt,
		Comment:        r.Comment,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

const orderColumns = `id, user_id, site_id, status_id, amount_euro, amount_rub, expense, profit,
	internal_number, external_number, paid_at, comment, created_at, updated_at`

func (s *Store) CreateOrder(ctx context.Context, o orders.Order) error {
	_, err := s.exec(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.UserID, o.SiteID, o.Status, o.AmountEuro, o.AmountRub, o.Expense, o.Profit,
		nullString(o.InternalNumber), nullString(o.ExternalNumber), utcPtr(o.PaidAt), o.Comment,
		o.CreatedAt, o.UpdatedAt)
	return err
}

func (s *Store) UpdateOrder(ctx context.Context, o orders.Order) error {
	res, err := s.exec(ctx, `
		UPDATE orders SET site_id = ?, status_id = ?, amount_euro = ?, amount_rub = ?,
		       expense = ?, profit = ?, internal_number = ?, external_number = ?,
		       paid_at = ?, comment = ?, updated_at = ?
		WHERE id = ?`,
		o.SiteID, o.Status, o.AmountEuro, o.AmountRub, o.Expense, o.Profit,
		nullString(o.InternalNumber), nullString(o.ExternalNumber), utcPtr(o.PaidAt), o.Comment,
		o.UpdatedAt, o.ID)
	if err != nil {
		return err
	}
	return mustAffect(res, "order", string(o.ID))
}

func (s *Store) GetOrder(ctx context.Context, id orders.OrderID) (*orders.Order, error) {
	var row orderRow
	if err := s.getOne(ctx, &row, "order", string(id),
		`SELECT `+orderColumns+` FROM orders WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return row.order(), nil
}

func (s *Store) GetOrderForUpdate(ctx context.Context, id orders.OrderID) (*orders.Order, error) {
	var row orderRow
	if err := s.getOne(ctx, &row, "order", string(id),
		s.forUpdate(`SELECT `+orderColumns+` FROM orders WHERE id = ?`), id); err != nil {
		return nil, err
	}
	return row.order(), nil
}

// ListOrders returns the user's orders, or every order when userID is empty.
func (s *Store) ListOrders(ctx context.Context, userID generic.UserID) ([]orders.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders`
	var args []any
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at ASC`

	var rows []orderRow
	if err := s.selectAll(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	out := make([]orders.Order, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r.order())
	}
	return out, nil
}

func (s *Store) DeleteOrder(ctx context.Context, id orders.OrderID) error {
	res, err := s.exec(ctx, `DELETE FROM orders WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return mustAffect(res, "order", string(id))
}

// =============================================================================
// PACKAGE ORDERS
// =============================================================================

type packageOrderRow struct {
	ID        string    `db:"id"`
	PackageID string    `db:"package_id"`
	OrderID   string    `db:"order_id"`
	CreatedAt time.Time `db:"created_at"`
}

func (s *Store) CreatePackageOrder(ctx context.Context, po orders.PackageOrder) error {
	_, err := s.exec(ctx, `
		INSERT INTO package_orders (id, package_id, order_id, created_at) VALUES (?, ?, ?, ?)`,
		po.ID, po.PackageID, po.OrderID, po.CreatedAt)
	return err
}

func (s *Store) ListPackageOrders(ctx context.Context, packageID delivery.PackageID) ([]orders.PackageOrder, error) {
	var rows []packageOrderRow
	if err := s.selectAll(ctx, &rows, `
		SELECT id, package_id, order_id, created_at
		FROM package_orders WHERE package_id = ? ORDER BY created_at ASC`, packageID); err != nil {
		return nil, fmt.Errorf("failed to list package orders: %w", err)
	}
	out := make([]orders.PackageOrder, 0, len(rows))
	for _, r := range rows {
		out = append(out, orders.PackageOrder{
			ID:        orders.PackageOrderID(r.ID),
			PackageID: delivery.PackageID(r.PackageID),
			OrderID:   orders.OrderID(r.OrderID),
			CreatedAt: r.CreatedAt,
		})
	}
	return out, nil
}

func (s *Store) CountPackageOrdersByOrder(ctx context.Context, id orders.OrderID) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM package_orders WHERE order_id = ?`, id)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
