/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Amounts are decoded with shopspring/decimal (JSON numbers or strings are
  both accepted) and always encoded as strings with two decimals, so
  "10.50" never turns into 10.5 on the way out.

STATUSES:
  Clients send and receive status codes ("paid"), never status ids. The
  handlers resolve codes through the status graph.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/statusgroup.go: Status group JSON schema
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/order-engine/delivery"
	"github.com/warp/order-engine/generic"
	"github.com/warp/order-engine/orders"
)

// =============================================================================
// USERS & LEDGER
// =============================================================================

type UserDTO struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

type CreateUserRequest struct {
	ID    string `json:"id,omitempty"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type CreateUserResponse struct {
	User    UserDTO    `json:"user"`
	Balance BalanceDTO `json:"balance"`
}

type BalanceDTO struct {
	ID                  string `json:"id"`
	UserID              string `json:"user_id"`
	Euro                string `json:"euro"`
	Rub                 string `json:"rub"`
	AverageExchangeRate string `json:"average_exchange_rate"`
	UpdatedAt           string `json:"updated_at,omitempty"`
}

type ReplenishRequest struct {
	AmountEuro decimal.Decimal `json:"amount_euro"`
	AmountRub  decimal.Decimal `json:"amount_rub"`
	Comment    string          `json:"comment,omitempty"`
}

type TransactionDTO struct {
	ID              string `json:"id"`
	BalanceID       string `json:"balance_id"`
	Type            string `json:"type"`
	AmountEuro      string `json:"amount_euro"`
	AmountRub       string `json:"amount_rub"`
	Comment         string `json:"comment,omitempty"`
	TransactionDate string `json:"transaction_date"`
}

type HistoryDTO struct {
	ID               string `json:"id"`
	TransactionID    string `json:"transaction_id"`
	Type             string `json:"type"`
	AmountEuro       string `json:"amount_euro"`
	AmountRub        string `json:"amount_rub"`
	BalanceEuroAfter string `json:"balance_euro_after"`
	BalanceRubAfter  string `json:"balance_rub_after"`
	RateAfter        string `json:"rate_after"`
	CreatedAt        string `json:"created_at"`
}

// =============================================================================
// STATUSES
// =============================================================================

type StatusDTO struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	IsDefault   bool   `json:"is_default"`
	Order       int    `json:"order"`
}

type StatusGroupDTO struct {
	Code               string              `json:"code"`
	Name               string              `json:"name"`
	Family             string              `json:"family"`
	AllowedTransitions map[string][]string `json:"allowed_transitions"`
	TransactionTypes   map[string]string   `json:"transaction_types"`
	Statuses           []StatusDTO         `json:"statuses"`
}

// StatusChangeRequest moves one entity. Skip accepts the change without
// touching the ledger.
type StatusChangeRequest struct {
	Status string `json:"status"`
	Skip   bool   `json:"skip,omitempty"`
}

type BulkStatusRequest struct {
	IDs    []string `json:"ids"`
	Status string   `json:"status"`
	Skip   bool     `json:"skip,omitempty"`
}

// =============================================================================
// SITES & ORDERS
// =============================================================================

type SiteDTO struct {
	ID                     string `json:"id"`
	Name                   string `json:"name"`
	URL                    string `json:"url"`
	OrganizerFeePercentage string `json:"organizer_fee_percentage"`
}

type SiteRequest struct {
	Name                   string          `json:"name"`
	URL                    string          `json:"url"`
	OrganizerFeePercentage decimal.Decimal `json:"organizer_fee_percentage"`
}

type OrderDTO struct {
	ID             string  `json:"id"`
	UserID         string  `json:"user_id"`
	SiteID         string  `json:"site_id"`
	Status         string  `json:"status"`
	AmountEuro     string  `json:"amount_euro"`
	AmountRub      string  `json:"amount_rub"`
	Expense        string  `json:"expense"`
	Profit         string  `json:"profit"`
	PaidAt         *string `json:"paid_at,omitempty"`
	InternalNumber string  `json:"internal_number,omitempty"`
	ExternalNumber string  `json:"external_number,omitempty"`
	Comment        string  `json:"comment,omitempty"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`
}

// OrderRequest creates (POST) or replaces (PUT) an order. Status is a
// code; empty keeps the current status. Skip applies to the status change.
type OrderRequest struct {
	UserID         string          `json:"user_id"`
	SiteID         string          `json:"site_id"`
	Status         string          `json:"status,omitempty"`
	AmountEuro     decimal.Decimal `json:"amount_euro"`
	AmountRub      decimal.Decimal `json:"amount_rub"`
	InternalNumber string          `json:"internal_number,omitempty"`
	ExternalNumber string          `json:"external_number,omitempty"`
	Comment        string          `json:"comment,omitempty"`
	Skip           bool            `json:"skip,omitempty"`
}

// =============================================================================
// PACKAGES & DELIVERIES
// =============================================================================

type TransportCompanyDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsDefault bool   `json:"is_default"`
}

type TransportCompanyRequest struct {
	Name      string `json:"name"`
	IsDefault bool   `json:"is_default"`
}

type PackageDTO struct {
	ID              string `json:"id"`
	UserID          string `json:"user_id"`
	Number          string `json:"number"`
	ShippingCostEur string `json:"shipping_cost_eur"`
	FeeCostEur      string `json:"fee_cost_eur"`
	TotalCostEur    string `json:"total_cost_eur"`
	CreatedAt       string `json:"created_at"`
}

type PackageRequest struct {
	UserID          string          `json:"user_id"`
	Number          string          `json:"number"`
	ShippingCostEur decimal.Decimal `json:"shipping_cost_eur"`
	FeeCostEur      decimal.Decimal `json:"fee_cost_eur"`
}

type PackageOrderDTO struct {
	ID        string `json:"id"`
	PackageID string `json:"package_id"`
	OrderID   string `json:"order_id"`
	CreatedAt string `json:"created_at"`
}

type LinkOrderRequest struct {
	OrderID string `json:"order_id"`
}

type DeliveryDTO struct {
	ID                 string  `json:"id"`
	PackageID          string  `json:"package_id"`
	TransportCompanyID string  `json:"transport_company_id"`
	Status             string  `json:"status"`
	Weight             string  `json:"weight"`
	ShippingCostRub    string  `json:"shipping_cost_rub"`
	PriceRubForKg      string  `json:"price_rub_for_kg"`
	PaidAt             *string `json:"paid_at,omitempty"`
	TrackingNumber     string  `json:"tracking_number"`
	CreatedAt          string  `json:"created_at"`
	UpdatedAt          string  `json:"updated_at"`
}

type DeliveryRequest struct {
	PackageID          string          `json:"package_id"`
	TransportCompanyID string          `json:"transport_company_id,omitempty"`
	Status             string          `json:"status,omitempty"`
	Weight             decimal.Decimal `json:"weight"`
	TrackingNumber     string          `json:"tracking_number"`
	Skip               bool            `json:"skip,omitempty"`
}

// =============================================================================
// MISC
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

type DiscrepancyDTO struct {
	BalanceID   string `json:"balance_id"`
	UserID      string `json:"user_id"`
	BalanceEuro string `json:"balance_euro"`
	BalanceRub  string `json:"balance_rub"`
	LedgerEuro  string `json:"ledger_euro"`
	LedgerRub   string `json:"ledger_rub"`
}

// ReconciliationDTO is the outcome of one balance audit.
type ReconciliationDTO struct {
	CheckedAt     string           `json:"checked_at"`
	Balances      int              `json:"balances"`
	Consistent    bool             `json:"consistent"`
	Discrepancies []DiscrepancyDTO `json:"discrepancies"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func money(d decimal.Decimal) string {
	return d.StringFixed(generic.MoneyPlaces)
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func optionalTimestamp(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := timestamp(*t)
	return &s
}

func toUserDTO(u generic.User) UserDTO {
	return UserDTO{ID: string(u.ID), Email: u.Email, Name: u.Name, CreatedAt: timestamp(u.CreatedAt)}
}

func toBalanceDTO(b generic.Balance) BalanceDTO {
	return BalanceDTO{
		ID:                  string(b.ID),
		UserID:              string(b.UserID),
		Euro:                money(b.Euro),
		Rub:                 money(b.Rub),
		AverageExchangeRate: money(b.AverageExchangeRate),
		UpdatedAt:           timestamp(b.UpdatedAt),
	}
}

func toTransactionDTO(tx generic.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:              string(tx.ID),
		BalanceID:       string(tx.BalanceID),
		Type:            string(tx.Type),
		AmountEuro:      money(tx.AmountEuro),
		AmountRub:       money(tx.AmountRub),
		Comment:         tx.Comment,
		TransactionDate: timestamp(tx.TransactionDate),
	}
}

func toHistoryDTO(h generic.HistoryRecord) HistoryDTO {
	return HistoryDTO{
		ID:               h.ID,
		TransactionID:    string(h.TransactionID),
		Type:             string(h.Type),
		AmountEuro:       money(h.AmountEuro),
		AmountRub:        money(h.AmountRub),
		BalanceEuroAfter: money(h.BalanceEuroAfter),
		BalanceRubAfter:  money(h.BalanceRubAfter),
		RateAfter:        money(h.RateAfter),
		CreatedAt:        timestamp(h.CreatedAt),
	}
}

func toStatusGroupDTO(g generic.StatusGroup, statuses []generic.Status) StatusGroupDTO {
	dto := StatusGroupDTO{
		Code:               string(g.Code),
		Name:               g.Name,
		Family:             string(g.Family),
		AllowedTransitions: make(map[string][]string, len(g.AllowedTransitions)),
		TransactionTypes:   make(map[string]string, len(g.TransactionTypes)),
		Statuses:           make([]StatusDTO, 0, len(statuses)),
	}
	for from, targets := range g.AllowedTransitions {
		codes := make([]string, len(targets))
		for i, to := range targets {
			codes[i] = string(to)
		}
		dto.AllowedTransitions[string(from)] = codes
	}
	for code, t := range g.TransactionTypes {
		dto.TransactionTypes[string(code)] = string(t)
	}
	for _, s := range statuses {
		dto.Statuses = append(dto.Statuses, StatusDTO{
			ID:          string(s.ID),
			Code:        string(s.Code),
			Name:        s.Name,
			Description: s.Description,
			IsDefault:   s.IsDefault,
			Order:       s.Order,
		})
	}
	return dto
}

func toSiteDTO(s orders.Site) SiteDTO {
	return SiteDTO{
		ID:                     string(s.ID),
		Name:                   s.Name,
		URL:                    s.URL,
		OrganizerFeePercentage: money(s.OrganizerFeePercentage),
	}
}

func toOrderDTO(o orders.Order, status generic.StatusCode) OrderDTO {
	return OrderDTO{
		ID:             string(o.ID),
		UserID:         string(o.UserID),
		SiteID:         string(o.SiteID),
		Status:         string(status),
		AmountEuro:     money(o.AmountEuro),
		AmountRub:      money(o.AmountRub),
		Expense:        money(o.Expense),
		Profit:         money(o.Profit),
		PaidAt:         optionalTimestamp(o.PaidAt),
		InternalNumber: o.InternalNumber,
		ExternalNumber: o.ExternalNumber,
		Comment:        o.Comment,
		CreatedAt:      timestamp(o.CreatedAt),
		UpdatedAt:      timestamp(o.UpdatedAt),
	}
}

func toTransportCompanyDTO(c delivery.TransportCompany) TransportCompanyDTO {
	return TransportCompanyDTO{ID: string(c.ID), Name: c.Name, IsDefault: c.IsDefault}
}

func toPackageDTO(p delivery.Package) PackageDTO {
	return PackageDTO{
		ID:              string(p.ID),
		UserID:          string(p.UserID),
		Number:          p.Number,
		ShippingCostEur: money(p.ShippingCostEur),
		FeeCostEur:      money(p.FeeCostEur),
		TotalCostEur:    money(p.TotalCostEur),
		CreatedAt:       timestamp(p.CreatedAt),
	}
}

func toPackageOrderDTO(po orders.PackageOrder) PackageOrderDTO {
	return PackageOrderDTO{
		ID:        string(po.ID),
		PackageID: string(po.PackageID),
		OrderID:   string(po.OrderID),
		CreatedAt: timestamp(po.CreatedAt),
	}
}

func toDeliveryDTO(d delivery.PackageDelivery, status generic.StatusCode) DeliveryDTO {
	return DeliveryDTO{
		ID:                 string(d.ID),
		PackageID:          string(d.PackageID),
		TransportCompanyID: string(d.TransportCompanyID),
		Status:             string(status),
		Weight:             d.Weight.String(),
		ShippingCostRub:    money(d.ShippingCostRub),
		PriceRubForKg:      money(d.PriceRubForKg),
		PaidAt:             optionalTimestamp(d.PaidAt),
		TrackingNumber:     d.TrackingNumber,
		CreatedAt:          timestamp(d.CreatedAt),
		UpdatedAt:          timestamp(d.UpdatedAt),
	}
}

func toReconciliationDTO(r generic.ReconciliationReport) ReconciliationDTO {
	dto := ReconciliationDTO{
		CheckedAt:     timestamp(r.CheckedAt),
		Balances:      r.Balances,
		Consistent:    r.Consistent(),
		Discrepancies: make([]DiscrepancyDTO, len(r.Discrepancies)),
	}
	for i, d := range r.Discrepancies {
		dto.Discrepancies[i] = DiscrepancyDTO{
			BalanceID:   string(d.BalanceID),
			UserID:      string(d.UserID),
			BalanceEuro: money(d.BalanceEuro),
			BalanceRub:  money(d.BalanceRub),
			LedgerEuro:  money(d.LedgerEuro),
			LedgerRub:   money(d.LedgerRub),
		}
	}
	return dto
}
