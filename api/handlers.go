/*
handlers.go - HTTP API handlers for the order back-office

PURPOSE:
  Exposes the engine via REST API. Handles HTTP request/response, JSON
  serialization, caller scoping, and delegates to the domain services.
  Handlers never touch balances directly: money moves through the
  services and the ledger only.

ENDPOINTS:
  Self (any authenticated caller):
    GET    /api/me/balance                  Caller's balance
    GET    /api/me/transactions?from&to     Caller's ledger entries
    GET    /api/me/history?from&to          Caller's balance history

  Ledger (admin):
    GET    /api/users                       List users
    POST   /api/users                       Create user + empty balance
    GET    /api/balances/{user}             Balance of a user
    POST   /api/balances/{user}/replenish   Operator top-up
    GET    /api/balances/{user}/transactions
    GET    /api/reconciliation              Last balance audit
    POST   /api/reconciliation/run          Audit now

  Orders:
    GET    /api/orders                      Own orders (all for admin)
    GET    /api/orders/{id}
    POST   /api/orders                      (admin)
    PUT    /api/orders/{id}                 (admin) edit + status change
    DELETE /api/orders/{id}                 (admin)
    POST   /api/orders/{id}/status          (admin)
    POST   /api/orders/status               (admin) bulk, all-or-nothing

  Packages, deliveries, sites and transport companies follow the same
  pattern; see server.go for the full route table.

SCOPING:
  Non-admin callers only ever see rows of their own user. A row of another
  user answers 404, not 403, so ids cannot be probed.

ERROR HANDLING:
  Domain errors are translated by statusFor:
  - 404: NotFoundError
  - 409: TransitionError, ProtectedDeletionError, duplicates
  - 400: ValidationError (including insufficient funds)
  - 500: ConfigurationError and everything else

SEE ALSO:
  - dto.go: Request/response data structures
  - auth.go: Principal and JWT middleware
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/warp/order-engine/delivery"
	"github.com/warp/order-engine/factory"
	"github.com/warp/order-engine/generic"
	"github.com/warp/order-engine/orders"
	"github.com/warp/order-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store  *sqlite.Store
	Engine *factory.Engine
	Log    logrus.FieldLogger

	// Scheduler, when set, answers reconciliation requests from its last
	// report instead of running the audit on every call.
	Scheduler *ReconciliationScheduler

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler over an already bootstrapped engine.
func NewHandler(store *sqlite.Store, engine *factory.Engine, log logrus.FieldLogger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{Store: store, Engine: engine, Log: log.WithField("component", "api")}
}

// Health reports that the process is up and the database answers.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if _, err := h.Store.ListStatusGroups(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Database unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// SELF
// =============================================================================

func (h *Handler) MyBalance(w http.ResponseWriter, r *http.Request) {
	b, ok := h.callerBalance(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(*b))
}

func (h *Handler) MyTransactions(w http.ResponseWriter, r *http.Request) {
	b, ok := h.callerBalance(w, r)
	if !ok {
		return
	}
	h.writeTransactions(w, r, b.ID)
}

func (h *Handler) MyHistory(w http.ResponseWriter, r *http.Request) {
	b, ok := h.callerBalance(w, r)
	if !ok {
		return
	}
	rng, err := parseRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date range", err)
		return
	}
	records, err := h.Engine.Balances.History(r.Context(), b.ID, rng)
	if err != nil {
		h.writeDomainError(w, "Failed to load history", err)
		return
	}
	dtos := make([]HistoryDTO, len(records))
	for i, rec := range records {
		dtos[i] = toHistoryDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) callerBalance(w http.ResponseWriter, r *http.Request) (*generic.Balance, bool) {
	p, _ := PrincipalFrom(r.Context())
	if p.UserID == "" {
		writeError(w, http.StatusBadRequest, "No user associated with the caller", nil)
		return nil, false
	}
	b, err := h.Engine.Balances.GetBalanceByUser(r.Context(), p.UserID)
	if err != nil {
		h.writeDomainError(w, "Failed to load balance", err)
		return nil, false
	}
	return b, true
}

func (h *Handler) writeTransactions(w http.ResponseWriter, r *http.Request, id generic.BalanceID) {
	rng, err := parseRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date range", err)
		return
	}
	txs, err := h.Engine.Balances.Transactions(r.Context(), id, rng)
	if err != nil {
		h.writeDomainError(w, "Failed to load transactions", err)
		return
	}
	dtos := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = toTransactionDTO(tx)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// USERS & BALANCES (admin)
// =============================================================================

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Store.ListUsers(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to list users", err)
		return
	}
	dtos := make([]UserDTO, len(users))
	for i, u := range users {
		dtos[i] = toUserDTO(u)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateUser creates a user together with an empty balance.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if !decode(w, r, &req) {
		return
	}
	u, b, err := h.Engine.Accounts.CreateUser(r.Context(), generic.User{
		ID:    generic.UserID(req.ID),
		Email: req.Email,
		Name:  req.Name,
	})
	if err != nil {
		h.writeDomainError(w, "Failed to create user", err)
		return
	}
	writeJSON(w, http.StatusCreated, CreateUserResponse{User: toUserDTO(*u), Balance: toBalanceDTO(*b)})
}

func (h *Handler) GetUserBalance(w http.ResponseWriter, r *http.Request) {
	b, err := h.Engine.Balances.GetBalanceByUser(r.Context(), generic.UserID(chi.URLParam(r, "user")))
	if err != nil {
		h.writeDomainError(w, "Failed to load balance", err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(*b))
}

// Replenish tops up a user's balance. The new average rate follows from
// the amounts.
func (h *Handler) Replenish(w http.ResponseWriter, r *http.Request) {
	var req ReplenishRequest
	if !decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	b, err := h.Engine.Balances.GetBalanceByUser(ctx, generic.UserID(chi.URLParam(r, "user")))
	if err != nil {
		h.writeDomainError(w, "Failed to load balance", err)
		return
	}
	tx, err := h.Engine.Ledger.Replenish(ctx, b.ID, req.AmountEuro, req.AmountRub, req.Comment)
	if err != nil {
		h.writeDomainError(w, "Failed to replenish balance", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(*tx))
}

func (h *Handler) UserTransactions(w http.ResponseWriter, r *http.Request) {
	b, err := h.Engine.Balances.GetBalanceByUser(r.Context(), generic.UserID(chi.URLParam(r, "user")))
	if err != nil {
		h.writeDomainError(w, "Failed to load balance", err)
		return
	}
	h.writeTransactions(w, r, b.ID)
}

// =============================================================================
// STATUS GROUPS
// =============================================================================

func (h *Handler) ListStatusGroups(w http.ResponseWriter, r *http.Request) {
	groups := h.Engine.Graph.Groups()
	dtos := make([]StatusGroupDTO, len(groups))
	for i, g := range groups {
		dtos[i] = toStatusGroupDTO(g, h.Engine.Graph.Statuses(g.Code))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// SITES
// =============================================================================

func (h *Handler) ListSites(w http.ResponseWriter, r *http.Request) {
	sites, err := h.Engine.Orders.ListSites(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to list sites", err)
		return
	}
	dtos := make([]SiteDTO, len(sites))
	for i, s := range sites {
		dtos[i] = toSiteDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateSite(w http.ResponseWriter, r *http.Request) {
	var req SiteRequest
	if !decode(w, r, &req) {
		return
	}
	site, err := h.Engine.Orders.CreateSite(r.Context(), orders.Site{
		Name:                   req.Name,
		URL:                    req.URL,
		OrganizerFeePercentage: req.OrganizerFeePercentage,
	})
	if err != nil {
		h.writeDomainError(w, "Failed to create site", err)
		return
	}
	writeJSON(w, http.StatusCreated, toSiteDTO(*site))
}

func (h *Handler) UpdateSite(w http.ResponseWriter, r *http.Request) {
	var req SiteRequest
	if !decode(w, r, &req) {
		return
	}
	site, err := h.Engine.Orders.UpdateSite(r.Context(), orders.Site{
		ID:                     orders.SiteID(chi.URLParam(r, "id")),
		Name:                   req.Name,
		URL:                    req.URL,
		OrganizerFeePercentage: req.OrganizerFeePercentage,
	})
	if err != nil {
		h.writeDomainError(w, "Failed to update site", err)
		return
	}
	writeJSON(w, http.StatusOK, toSiteDTO(*site))
}

func (h *Handler) DeleteSite(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.Orders.DeleteSite(r.Context(), orders.SiteID(chi.URLParam(r, "id"))); err != nil {
		h.writeDomainError(w, "Failed to delete site", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// ORDERS
// =============================================================================

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	list, err := h.Engine.Orders.ListOrders(r.Context(), scope(r))
	if err != nil {
		h.writeDomainError(w, "Failed to list orders", err)
		return
	}
	dtos := make([]OrderDTO, len(list))
	for i := range list {
		dtos[i] = h.orderDTO(&list[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Engine.Orders.GetOrder(r.Context(), orders.OrderID(chi.URLParam(r, "id")))
	if err == nil && !visible(r, o.UserID) {
		err = &generic.NotFoundError{Entity: "order", ID: string(o.ID)}
	}
	if err != nil {
		h.writeDomainError(w, "Failed to get order", err)
		return
	}
	writeJSON(w, http.StatusOK, h.orderDTO(o))
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req OrderRequest
	if !decode(w, r, &req) {
		return
	}
	o, ok := h.orderFromRequest(w, req, "")
	if !ok {
		return
	}
	created, err := h.Engine.Orders.CreateOrder(r.Context(), o)
	if err != nil {
		h.writeDomainError(w, "Failed to create order", err)
		return
	}
	writeJSON(w, http.StatusCreated, h.orderDTO(created))
}

// UpdateOrder replaces the editable fields and, when status is given,
// processes the status change in the same transaction.
func (h *Handler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	var req OrderRequest
	if !decode(w, r, &req) {
		return
	}
	o, ok := h.orderFromRequest(w, req, orders.OrderID(chi.URLParam(r, "id")))
	if !ok {
		return
	}
	saved, err := h.Engine.Orders.SaveOrder(r.Context(), o, req.Skip)
	if err != nil {
		h.writeDomainError(w, "Failed to save order", err)
		return
	}
	writeJSON(w, http.StatusOK, h.orderDTO(saved))
}

func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.Orders.DeleteOrder(r.Context(), orders.OrderID(chi.URLParam(r, "id"))); err != nil {
		h.writeDomainError(w, "Failed to delete order", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ChangeOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusChangeRequest
	if !decode(w, r, &req) {
		return
	}
	o, err := h.Engine.Orders.ChangeStatus(r.Context(), orders.OrderID(chi.URLParam(r, "id")),
		generic.StatusCode(req.Status), req.Skip)
	if err != nil {
		h.writeDomainError(w, "Failed to change order status", err)
		return
	}
	writeJSON(w, http.StatusOK, h.orderDTO(o))
}

// BulkOrderStatus moves several orders at once; one failure rolls back all.
func (h *Handler) BulkOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req BulkStatusRequest
	if !decode(w, r, &req) {
		return
	}
	ids := make([]orders.OrderID, len(req.IDs))
	for i, id := range req.IDs {
		ids[i] = orders.OrderID(id)
	}
	updated, err := h.Engine.Orders.BulkUpdateStatus(r.Context(), ids, generic.StatusCode(req.Status), req.Skip)
	if err != nil {
		h.writeDomainError(w, "Failed to update order statuses", err)
		return
	}
	dtos := make([]OrderDTO, len(updated))
	for i := range updated {
		dtos[i] = h.orderDTO(&updated[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) orderFromRequest(w http.ResponseWriter, req OrderRequest, id orders.OrderID) (orders.Order, bool) {
	status, err := h.statusID(orders.Group, req.Status)
	if err != nil {
		h.writeDomainError(w, "Invalid status", err)
		return orders.Order{}, false
	}
	return orders.Order{
		ID:             id,
		UserID:         generic.UserID(req.UserID),
		SiteID:         orders.SiteID(req.SiteID),
		Status:         status,
		AmountEuro:     req.AmountEuro,
		AmountRub:      req.AmountRub,
		InternalNumber: req.InternalNumber,
		ExternalNumber: req.ExternalNumber,
		Comment:        req.Comment,
	}, true
}

func (h *Handler) orderDTO(o *orders.Order) OrderDTO {
	return toOrderDTO(*o, h.Engine.Orders.StatusCode(o))
}

// =============================================================================
// RECONCILIATION
// =============================================================================

// Reconciliation returns the latest balance audit, running one when none
// exists yet.
func (h *Handler) Reconciliation(w http.ResponseWriter, r *http.Request) {
	if h.Scheduler != nil {
		if last := h.Scheduler.Last(); last != nil {
			writeJSON(w, http.StatusOK, toReconciliationDTO(*last))
			return
		}
	}
	h.RunReconciliation(w, r)
}

func (h *Handler) RunReconciliation(w http.ResponseWriter, r *http.Request) {
	var report *generic.ReconciliationReport
	if h.Scheduler != nil {
		report = h.Scheduler.RunNow(r.Context())
	} else {
		var err error
		if report, err = h.Engine.Reconciler.Run(r.Context()); err != nil {
			h.writeDomainError(w, "Failed to reconcile balances", err)
			return
		}
	}
	if report == nil {
		writeError(w, http.StatusInternalServerError, "Failed to reconcile balances", nil)
		return
	}
	writeJSON(w, http.StatusOK, toReconciliationDTO(*report))
}

// =============================================================================
// TRANSPORT COMPANIES
// =============================================================================

func (h *Handler) ListTransportCompanies(w http.ResponseWriter, r *http.Request) {
	list, err := h.Engine.Delivery.ListTransportCompanies(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to list transport companies", err)
		return
	}
	dtos := make([]TransportCompanyDTO, len(list))
	for i, c := range list {
		dtos[i] = toTransportCompanyDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateTransportCompany(w http.ResponseWriter, r *http.Request) {
	var req TransportCompanyRequest
	if !decode(w, r, &req) {
		return
	}
	c, err := h.Engine.Delivery.CreateTransportCompany(r.Context(), delivery.TransportCompany{
		Name:      req.Name,
		IsDefault: req.IsDefault,
	})
	if err != nil {
		h.writeDomainError(w, "Failed to create transport company", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransportCompanyDTO(*c))
}

func (h *Handler) SetDefaultTransportCompany(w http.ResponseWriter, r *http.Request) {
	c, err := h.Engine.Delivery.SetDefaultTransportCompany(r.Context(),
		delivery.TransportCompanyID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, "Failed to set default transport company", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransportCompanyDTO(*c))
}

func (h *Handler) DeleteTransportCompany(w http.ResponseWriter, r *http.Request) {
	err := h.Engine.Delivery.DeleteTransportCompany(r.Context(), delivery.TransportCompanyID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, "Failed to delete transport company", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// PACKAGES
// =============================================================================

func (h *Handler) ListPackages(w http.ResponseWriter, r *http.Request) {
	list, err := h.Engine.Delivery.ListPackages(r.Context(), scope(r))
	if err != nil {
		h.writeDomainError(w, "Failed to list packages", err)
		return
	}
	dtos := make([]PackageDTO, len(list))
	for i, p := range list {
		dtos[i] = toPackageDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetPackage(w http.ResponseWriter, r *http.Request) {
	p, ok := h.visiblePackage(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toPackageDTO(*p))
}

func (h *Handler) CreatePackage(w http.ResponseWriter, r *http.Request) {
	var req PackageRequest
	if !decode(w, r, &req) {
		return
	}
	p, err := h.Engine.Delivery.CreatePackage(r.Context(), delivery.Package{
		UserID:          generic.UserID(req.UserID),
		Number:          req.Number,
		ShippingCostEur: req.ShippingCostEur,
		FeeCostEur:      req.FeeCostEur,
	})
	if err != nil {
		h.writeDomainError(w, "Failed to create package", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPackageDTO(*p))
}

func (h *Handler) UpdatePackage(w http.ResponseWriter, r *http.Request) {
	var req PackageRequest
	if !decode(w, r, &req) {
		return
	}
	p, err := h.Engine.Delivery.UpdatePackage(r.Context(), delivery.Package{
		ID:              delivery.PackageID(chi.URLParam(r, "id")),
		UserID:          generic.UserID(req.UserID),
		Number:          req.Number,
		ShippingCostEur: req.ShippingCostEur,
		FeeCostEur:      req.FeeCostEur,
	})
	if err != nil {
		h.writeDomainError(w, "Failed to update package", err)
		return
	}
	writeJSON(w, http.StatusOK, toPackageDTO(*p))
}

func (h *Handler) DeletePackage(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.Delivery.DeletePackage(r.Context(), delivery.PackageID(chi.URLParam(r, "id"))); err != nil {
		h.writeDomainError(w, "Failed to delete package", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListPackageOrders(w http.ResponseWriter, r *http.Request) {
	p, ok := h.visiblePackage(w, r)
	if !ok {
		return
	}
	links, err := h.Engine.Orders.PackageOrders(r.Context(), p.ID)
	if err != nil {
		h.writeDomainError(w, "Failed to list package orders", err)
		return
	}
	dtos := make([]PackageOrderDTO, len(links))
	for i, l := range links {
		dtos[i] = toPackageOrderDTO(l)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// LinkPackageOrder puts a paid order of the package owner into the package.
func (h *Handler) LinkPackageOrder(w http.ResponseWriter, r *http.Request) {
	var req LinkOrderRequest
	if !decode(w, r, &req) {
		return
	}
	link, err := h.Engine.Orders.LinkToPackage(r.Context(),
		delivery.PackageID(chi.URLParam(r, "id")), orders.OrderID(req.OrderID))
	if err != nil {
		h.writeDomainError(w, "Failed to link order", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPackageOrderDTO(*link))
}

func (h *Handler) visiblePackage(w http.ResponseWriter, r *http.Request) (*delivery.Package, bool) {
	p, err := h.Engine.Delivery.GetPackage(r.Context(), delivery.PackageID(chi.URLParam(r, "id")))
	if err == nil && !visible(r, p.UserID) {
		err = &generic.NotFoundError{Entity: "package", ID: string(p.ID)}
	}
	if err != nil {
		h.writeDomainError(w, "Failed to get package", err)
		return nil, false
	}
	return p, true
}

// =============================================================================
// DELIVERIES
// =============================================================================

func (h *Handler) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	list, err := h.Engine.Delivery.ListDeliveries(r.Context(), scope(r))
	if err != nil {
		h.writeDomainError(w, "Failed to list deliveries", err)
		return
	}
	dtos := make([]DeliveryDTO, len(list))
	for i := range list {
		dtos[i] = h.deliveryDTO(&list[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetDelivery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	d, err := h.Engine.Delivery.GetDelivery(ctx, delivery.DeliveryID(chi.URLParam(r, "id")))
	if err == nil {
		var p *delivery.Package
		if p, err = h.Engine.Delivery.GetPackage(ctx, d.PackageID); err == nil && !visible(r, p.UserID) {
			err = &generic.NotFoundError{Entity: "delivery", ID: string(d.ID)}
		}
	}
	if err != nil {
		h.writeDomainError(w, "Failed to get delivery", err)
		return
	}
	writeJSON(w, http.StatusOK, h.deliveryDTO(d))
}

func (h *Handler) CreateDelivery(w http.ResponseWriter, r *http.Request) {
	var req DeliveryRequest
	if !decode(w, r, &req) {
		return
	}
	d, ok := h.deliveryFromRequest(w, req, "")
	if !ok {
		return
	}
	created, err := h.Engine.Delivery.CreateDelivery(r.Context(), d)
	if err != nil {
		h.writeDomainError(w, "Failed to create delivery", err)
		return
	}
	writeJSON(w, http.StatusCreated, h.deliveryDTO(created))
}

func (h *Handler) UpdateDelivery(w http.ResponseWriter, r *http.Request) {
	var req DeliveryRequest
	if !decode(w, r, &req) {
		return
	}
	d, ok := h.deliveryFromRequest(w, req, delivery.DeliveryID(chi.URLParam(r, "id")))
	if !ok {
		return
	}
	saved, err := h.Engine.Delivery.SaveDelivery(r.Context(), d, req.Skip)
	if err != nil {
		h.writeDomainError(w, "Failed to save delivery", err)
		return
	}
	writeJSON(w, http.StatusOK, h.deliveryDTO(saved))
}

func (h *Handler) DeleteDelivery(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.Delivery.DeleteDelivery(r.Context(), delivery.DeliveryID(chi.URLParam(r, "id"))); err != nil {
		h.writeDomainError(w, "Failed to delete delivery", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ChangeDeliveryStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusChangeRequest
	if !decode(w, r, &req) {
		return
	}
	d, err := h.Engine.Delivery.ChangeStatus(r.Context(), delivery.DeliveryID(chi.URLParam(r, "id")),
		generic.StatusCode(req.Status), req.Skip)
	if err != nil {
		h.writeDomainError(w, "Failed to change delivery status", err)
		return
	}
	writeJSON(w, http.StatusOK, h.deliveryDTO(d))
}

func (h *Handler) BulkDeliveryStatus(w http.ResponseWriter, r *http.Request) {
	var req BulkStatusRequest
	if !decode(w, r, &req) {
		return
	}
	ids := make([]delivery.DeliveryID, len(req.IDs))
	for i, id := range req.IDs {
		ids[i] = delivery.DeliveryID(id)
	}
	updated, err := h.Engine.Delivery.BulkUpdateStatus(r.Context(), ids, generic.StatusCode(req.Status), req.Skip)
	if err != nil {
		h.writeDomainError(w, "Failed to update delivery statuses", err)
		return
	}
	dtos := make([]DeliveryDTO, len(updated))
	for i := range updated {
		dtos[i] = h.deliveryDTO(&updated[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) deliveryFromRequest(w http.ResponseWriter, req DeliveryRequest, id delivery.DeliveryID) (delivery.PackageDelivery, bool) {
	status, err := h.statusID(delivery.Group, req.Status)
	if err != nil {
		h.writeDomainError(w, "Invalid status", err)
		return delivery.PackageDelivery{}, false
	}
	return delivery.PackageDelivery{
		ID:                 id,
		PackageID:          delivery.PackageID(req.PackageID),
		TransportCompanyID: delivery.TransportCompanyID(req.TransportCompanyID),
		Status:             status,
		Weight:             req.Weight,
		TrackingNumber:     req.TrackingNumber,
	}, true
}

func (h *Handler) deliveryDTO(d *delivery.PackageDelivery) DeliveryDTO {
	return toDeliveryDTO(*d, h.Engine.Delivery.StatusCode(d))
}

// =============================================================================
// HELPERS
// =============================================================================

// statusID resolves a status code of group. An empty code stays empty,
// which keeps the current status on save.
func (h *Handler) statusID(group generic.GroupCode, code string) (generic.StatusID, error) {
	if code == "" {
		return "", nil
	}
	st, err := h.Engine.Graph.StatusByCode(group, generic.StatusCode(code))
	if err != nil {
		return "", generic.Invalid("status", "unknown status %q in group %q", code, group)
	}
	return st.ID, nil
}

// scope is the user filter for list endpoints: everything for admins,
// the caller's own rows otherwise. Verified tokens always carry a subject.
func scope(r *http.Request) generic.UserID {
	p, _ := PrincipalFrom(r.Context())
	if p.Admin {
		return ""
	}
	return p.UserID
}

func visible(r *http.Request, owner generic.UserID) bool {
	p, _ := PrincipalFrom(r.Context())
	return p.Admin || (p.UserID != "" && p.UserID == owner)
}

// parseRange reads optional from/to query parameters as RFC 3339 instants
// or YYYY-MM-DD dates. A date in "to" covers the whole day.
func parseRange(r *http.Request) (generic.Range, error) {
	var rng generic.Range
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := parseInstant(v)
		if err != nil {
			return rng, generic.Invalid("from", "%v", err)
		}
		rng.From = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := parseInstant(v)
		if err != nil {
			return rng, generic.Invalid("to", "%v", err)
		}
		if len(v) == len(time.DateOnly) {
			t = generic.Day(t).To
		}
		rng.To = t
	}
	if !rng.Valid() {
		return rng, generic.Invalid("to", "must not be before from")
	}
	return rng, nil
}

func parseInstant(v string) (time.Time, error) {
	if len(v) == len(time.DateOnly) {
		return time.Parse(time.DateOnly, v)
	}
	return time.Parse(time.RFC3339, v)
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError picks the HTTP status from the error category.
func (h *Handler) writeDomainError(w http.ResponseWriter, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.Log.WithError(err).Error(message)
	}
	writeError(w, status, message, err)
}

func statusFor(err error) int {
	switch {
	case generic.IsNotFound(err):
		return http.StatusNotFound
	case generic.IsConflict(err):
		return http.StatusConflict
	case generic.IsClientError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
