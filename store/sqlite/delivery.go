package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/order-engine/delivery"
	"github.com/warp/order-engine/generic"
)

// =============================================================================
// TRANSPORT COMPANIES (delivery.Store)
// =============================================================================

type transportCompanyRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	IsDefault bool      `db:"is_default"`
	CreatedAt time.Time `db:"created_at"`
}

func (r transportCompanyRow) company() *delivery.TransportCompany {
	return &delivery.TransportCompany{
		ID:        delivery.TransportCompanyID(r.ID),
		Name:      r.Name,
		IsDefault: r.IsDefault,
		CreatedAt: r.CreatedAt,
	}
}

func (s *Store) CreateTransportCompany(ctx context.Context, c delivery.TransportCompany) error {
	_, err := s.exec(ctx, `
		INSERT INTO transport_companies (id, name, is_default, created_at) VALUES (?, ?, ?, ?)`,
		c.ID, c.Name, c.IsDefault, c.CreatedAt)
	return err
}

func (s *Store) GetTransportCompany(ctx context.Context, id delivery.TransportCompanyID) (*delivery.TransportCompany, error) {
	var row transportCompanyRow
	if err := s.getOne(ctx, &row, "transport company", string(id),
		`SELECT id, name, is_default, created_at FROM transport_companies WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return row.company(), nil
}

func (s *Store) GetDefaultTransportCompany(ctx context.Context) (*delivery.TransportCompany, error) {
	var row transportCompanyRow
	if err := s.getOne(ctx, &row, "transport company", "default",
		`SELECT id, name, is_default, created_at FROM transport_companies WHERE is_default = ?`, true); err != nil {
		return nil, err
	}
	return row.company(), nil
}

func (s *Store) ListTransportCompanies(ctx context.Context) ([]delivery.TransportCompany, error) {
	var rows []transportCompanyRow
	if err := s.selectAll(ctx, &rows,
		`SELECT id, name, is_default, created_at FROM transport_companies ORDER BY name`); err != nil {
		return nil, fmt.Errorf("failed to list transport companies: %w", err)
	}
	out := make([]delivery.TransportCompany, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r.company())
	}
	return out, nil
}

func (s *Store) SetDefaultTransportCompany(ctx context.Context, id delivery.TransportCompanyID) error {
	res, err := s.exec(ctx, `UPDATE transport_companies SET is_default = ? WHERE id = ?`, true, id)
	if err != nil {
		return err
	}
	return mustAffect(res, "transport company", string(id))
}

func (s *Store) ClearDefaultTransportCompany(ctx context.Context) error {
	_, err := s.exec(ctx, `UPDATE transport_companies SET is_default = ? WHERE is_default = ?`, false, true)
	return err
}

func (s *Store) DeleteTransportCompany(ctx context.Context, id delivery.TransportCompanyID) error {
	res, err := s.exec(ctx, `DELETE FROM transport_companies WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return mustAffect(res, "transport company", string(id))
}

func (s *Store) CountDeliveriesByTransportCompany(ctx context.Context, id delivery.TransportCompanyID) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM package_deliveries WHERE transport_company_id = ?`, id)
}

// =============================================================================
// PACKAGES
// =============================================================================

type packageRow struct {
	ID              string          `db:"id"`
	UserID          string          `db:"user_id"`
	Number          string          `db:"number"`
	ShippingCostEur decimal.Decimal `db:"shipping_cost_eur"`
	FeeCostEur      decimal.Decimal `db:"fee_cost_eur"`
	TotalCostEur    decimal.Decimal `db:"total_cost_eur"`
	CreatedAt       time.Time       `db:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at"`
}

func (r packageRow) pkg() *delivery.Package {
	return &delivery.Package{
		ID:              delivery.PackageID(r.ID),
		UserID:          generic.UserID(r.UserID),
		Number:          r.Number,
		ShippingCostEur: r.ShippingCostEur,
		FeeCostEur:      r.FeeCostEur,
		TotalCostEur:    r.TotalCostEur,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

const packageColumns = `id, user_id, number, shipping_cost_eur, fee_cost_eur, total_cost_eur, created_at, updated_at`

func (s *Store) CreatePackage(ctx context.Context, p delivery.Package) error {
	_, err := s.exec(ctx, `
		INSERT INTO packages (`+packageColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.Number, p.ShippingCostEur, p.FeeCostEur, p.TotalCostEur, p.CreatedAt, p.UpdatedAt)
	return err
}

func (s *Store) UpdatePackage(ctx context.Context, p delivery.Package) error {
	res, err := s.exec(ctx, `
		UPDATE packages SET number = ?, shipping_cost_eur = ?, fee_cost_eur = ?, total_cost_eur = ?, updated_at = ?
		WHERE id = ?`,
		p.Number, p.ShippingCostEur, p.FeeCostEur, p.TotalCostEur, p.UpdatedAt, p.ID)
	if err != nil {
		return err
	}
	return mustAffect(res, "package", string(p.ID))
}

// GetPackage serves both delivery.Store and orders.Store.
func (s *Store) GetPackage(ctx context.Context, id delivery.PackageID) (*delivery.Package, error) {
	var row packageRow
	if err := s.getOne(ctx, &row, "package", string(id),
		`SELECT `+packageColumns+` FROM packages WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return row.pkg(), nil
}

// ListPackages returns the user's packages, or every package when userID is empty.
func (s *Store) ListPackages(ctx context.Context, userID generic.UserID) ([]delivery.Package, error) {
	query := `SELECT ` + packageColumns + ` FROM packages`
	var args []any
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at ASC`

	var rows []packageRow
	if err := s.selectAll(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list packages: %w", err)
	}
	out := make([]delivery.Package, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r.pkg())
	}
	return out, nil
}

func (s *Store) DeletePackage(ctx context.Context, id delivery.PackageID) error {
	res, err := s.exec(ctx, `DELETE FROM packages WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return mustAffect(res, "package", string(id))
}

// =============================================================================
// DELIVERIES
// =============================================================================

type deliveryRow struct {
	ID                 string          `db:"id"`
	PackageID          string          `db:"package_id"`
	TransportCompanyID string          `db:"transport_company_id"`
	StatusID           string          `db:"status_id"`
	Weight             decimal.Decimal `db:"weight"`
	ShippingCostRub    decimal.Decimal `db:"shipping_cost_rub"`
	PriceRubForKg      decimal.Decimal `db:"price_rub_for_kg"`
	PaidAt             *time.Time      `db:"paid_at"`
	TrackingNumber     string          `db:"tracking_number"`
	CreatedAt          time.Time       `db:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at"`
}

func (r deliveryRow) toDelivery() *delivery.PackageDelivery {
	return &delivery.PackageDelivery{
		ID:                 delivery.DeliveryID(r.ID),
		PackageID:          delivery.PackageID(r.PackageID),
		TransportCompanyID: delivery.TransportCompanyID(r.TransportCompanyID),
		Status:             generic.StatusID(r.StatusID),
		Weight:             r.Weight,
		ShippingCostRub:    r.ShippingCostRub,
		PriceRubForKg:      r.PriceRubForKg,
		PaidAt:             r.PaidAt,
		TrackingNumber:     r.TrackingNumber,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

const deliveryColumns = `id, package_id, transport_company_id, status_id, weight, shipping_cost_rub,
	price_rub_for_kg, paid_at, tracking_number, created_at, updated_at`

func (s *Store) CreateDelivery(ctx context.Context, d delivery.PackageDelivery) error {
	_, err := s.exec(ctx, `
		INSERT INTO package_deliveries (`+deliveryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.PackageID, d.TransportCompanyID, d.Status, d.Weight, d.ShippingCostRub,
		d.PriceRubForKg, utcPtr(d.PaidAt), d.TrackingNumber, d.CreatedAt, d.UpdatedAt)
	return err
}

func (s *Store) UpdateDelivery(ctx context.Context, d delivery.PackageDelivery) error {
	res, err := s.exec(ctx, `
		UPDATE package_deliveries SET transport_company_id = ?, status_id = ?, weight = ?,
		       shipping_cost_rub = ?, price_rub_for_kg = ?, paid_at = ?, tracking_number = ?, updated_at = ?
		WHERE id = ?`,
		d.TransportCompanyID, d.Status, d.Weight, d.ShippingCostRub, d.PriceRubForKg,
		utcPtr(d.PaidAt), d.TrackingNumber, d.UpdatedAt, d.ID)
	if err != nil {
		return err
	}
	return mustAffect(res, "delivery", string(d.ID))
}

func (s *Store) GetDelivery(ctx context.Context, id delivery.DeliveryID) (*delivery.PackageDelivery, error) {
	var row deliveryRow
	if err := s.getOne(ctx, &row, "delivery", string(id),
		`SELECT `+deliveryColumns+` FROM package_deliveries WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return row.toDelivery(), nil
}

func (s *Store) GetDeliveryForUpdate(ctx context.Context, id delivery.DeliveryID) (*delivery.PackageDelivery, error) {
	var row deliveryRow
	if err := s.getOne(ctx, &row, "delivery", string(id),
		s.forUpdate(`SELECT `+deliveryColumns+` FROM package_deliveries WHERE id = ?`), id); err != nil {
		return nil, err
	}
	return row.toDelivery(), nil
}

func (s *Store) GetDeliveryByPackage(ctx context.Context, id delivery.PackageID) (*delivery.PackageDelivery, error) {
	var row deliveryRow
	if err := s.getOne(ctx, &row, "delivery", "package "+string(id),
		`SELECT `+deliveryColumns+` FROM package_deliveries WHERE package_id = ?`, id); err != nil {
		return nil, err
	}
	return row.toDelivery(), nil
}

// ListDeliveries returns the deliveries of the user's packages, or every
// delivery when userID is empty.
func (s *Store) ListDeliveries(ctx context.Context, userID generic.UserID) ([]delivery.PackageDelivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM package_deliveries`
	var args []any
	if userID != "" {
		query += ` WHERE package_id IN (SELECT id FROM packages WHERE user_id = ?)`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at ASC`

	var rows []deliveryRow
	if err := s.selectAll(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list deliveries: %w", err)
	}
	out := make([]delivery.PackageDelivery, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r.toDelivery())
	}
	return out, nil
}

func (s *Store) DeleteDelivery(ctx context.Context, id delivery.DeliveryID) error {
	res, err := s.exec(ctx, `DELETE FROM package_deliveries WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return mustAffect(res, "delivery", string(id))
}
