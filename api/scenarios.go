/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for demos. Each scenario goes through the same services the API
	uses, so every balance in a scenario is backed by ledger entries.

AVAILABLE SCENARIOS:

	first-order:   Top-up, one site, one paid order
	refund:        Paid order refunded, money back on the balance
	delivery:      Paid orders packed and shipped, delivery paid
	mixed-rates:   Two top-ups at different rates, orders paid at the average

HOW SCENARIOS WORK:
 1. Reset database (status groups are kept)
 2. Create user + balance through Accounts
 3. Replenish through the Ledger
 4. Create sites, orders, packages, deliveries through the services
 5. Change statuses so the strategies post the ledger entries

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "delivery"}

NOTE:

	Scenarios reset the database. The routes exist only with demo.enabled.

SEE ALSO:
  - handlers.go: Shared helpers
  - factory/bootstrap.go: Engine wiring
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/warp/order-engine/delivery"
	"github.com/warp/order-engine/generic"
	"github.com/warp/order-engine/orders"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "first-order",
		Name:        "First Order",
		Description: "Balance topped up at rate 100, one order paid from it",
	},
	{
		ID:          "refund",
		Name:        "Refund",
		Description: "A paid order refunded, balance restored by a payback",
	},
	{
		ID:          "delivery",
		Name:        "Package Delivery",
		Description: "Two paid orders packed, delivery paid by weight",
	},
	{
		ID:          "mixed-rates",
		Name:        "Mixed Rates",
		Description: "Two top-ups at different rates, orders paid at the average rate",
	},
}

var scenarioLoaders = map[string]func(h *Handler, ctx context.Context) error{
	"first-order": (*Handler).loadFirstOrderScenario,
	"refund":      (*Handler).loadRefundScenario,
	"delivery":    (*Handler).loadDeliveryScenario,
	"mixed-rates": (*Handler).loadMixedRatesScenario,
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the database and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decode(w, r, &req) {
		return
	}
	load, ok := scenarioLoaders[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""

	if err := load(h, ctx); err != nil {
		h.writeDomainError(w, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}
	h.currentScenario = req.ScenarioID
	h.Log.WithField("scenario", req.ScenarioID).Info("scenario loaded")

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadFirstOrderScenario(ctx context.Context) error {
	user, err := h.scenarioUser(ctx, "anna@example.com", "Anna", "100", "10000")
	if err != nil {
		return err
	}
	site, err := h.Engine.Orders.CreateSite(ctx, orders.Site{Name: "Zalando", URL: "https://zalando.de"})
	if err != nil {
		return err
	}
	// 50 EUR at rate 100 costs 5000 RUB; the client pays 6000.
	_, err = h.scenarioOrder(ctx, user.ID, site.ID, "50", "6000", "Z-1", orders.StatusPaid)
	return err
}

func (h *Handler) loadRefundScenario(ctx context.Context) error {
	user, err := h.scenarioUser(ctx, "boris@example.com", "Boris", "200", "18000")
	if err != nil {
		return err
	}
	site, err := h.Engine.Orders.CreateSite(ctx, orders.Site{Name: "Amazon", URL: "https://amazon.de"})
	if err != nil {
		return err
	}
	if _, err := h.scenarioOrder(ctx, user.ID, site.ID, "40", "4500", "A-1", orders.StatusPaid); err != nil {
		return err
	}
	_, err = h.scenarioOrder(ctx, user.ID, site.ID, "60", "6500", "A-2", orders.StatusPaid, orders.StatusRefunded)
	return err
}

func (h *Handler) loadDeliveryScenario(ctx context.Context) error {
	user, err := h.scenarioUser(ctx, "vera@example.com", "Vera", "300", "30000")
	if err != nil {
		return err
	}
	site, err := h.Engine.Orders.CreateSite(ctx, orders.Site{Name: "Otto", URL: "https://otto.de"})
	if err != nil {
		return err
	}
	if _, err := h.Engine.Delivery.CreateTransportCompany(ctx, delivery.TransportCompany{Name: "DHL", IsDefault: true}); err != nil {
		return err
	}

	pkg, err := h.Engine.Delivery.CreatePackage(ctx, delivery.Package{
		UserID:          user.ID,
		Number:          "PKG-1",
		ShippingCostEur: generic.MustParseDecimal("20"),
		FeeCostEur:      generic.MustParseDecimal("5"),
	})
	if err != nil {
		return err
	}
	for i, amounts := range [][2]string{{"30", "3500"}, {"45", "5200"}} {
		o, err := h.scenarioOrder(ctx, user.ID, site.ID, amounts[0], amounts[1], fmt.Sprintf("O-%d", i+1), orders.StatusPaid)
		if err != nil {
			return err
		}
		if _, err := h.Engine.Orders.LinkToPackage(ctx, pkg.ID, o.ID); err != nil {
			return err
		}
	}

	d, err := h.Engine.Delivery.CreateDelivery(ctx, delivery.PackageDelivery{
		PackageID:      pkg.ID,
		Weight:         generic.MustParseDecimal("2.5"),
		TrackingNumber: "JJD000390007",
	})
	if err != nil {
		return err
	}
	_, err = h.Engine.Delivery.ChangeStatus(ctx, d.ID, delivery.StatusPaid, false)
	return err
}

func (h *Handler) loadMixedRatesScenario(ctx context.Context) error {
	user, err := h.scenarioUser(ctx, "gleb@example.com", "Gleb", "100", "9000")
	if err != nil {
		return err
	}
	b, err := h.Engine.Balances.GetBalanceByUser(ctx, user.ID)
	if err != nil {
		return err
	}
	// 100/9000 + 100/11000 averages to rate 100.
	if _, err := h.Engine.Ledger.Replenish(ctx, b.ID, generic.MustParseDecimal("100"), generic.MustParseDecimal("11000"), "second top-up"); err != nil {
		return err
	}
	site, err := h.Engine.Orders.CreateSite(ctx, orders.Site{Name: "Asos", URL: "https://asos.com"})
	if err != nil {
		return err
	}
	if _, err := h.scenarioOrder(ctx, user.ID, site.ID, "25.50", "2900", "M-1", orders.StatusPaid); err != nil {
		return err
	}
	_, err = h.scenarioOrder(ctx, user.ID, site.ID, "10", "1100", "M-2")
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) scenarioUser(ctx context.Context, email, name, euro, rub string) (*generic.User, error) {
	u, b, err := h.Engine.Accounts.CreateUser(ctx, generic.User{Email: email, Name: name})
	if err != nil {
		return nil, err
	}
	if _, err := h.Engine.Ledger.Replenish(ctx, b.ID, generic.MustParseDecimal(euro), generic.MustParseDecimal(rub), "initial top-up"); err != nil {
		return nil, err
	}
	return u, nil
}

// scenarioOrder creates an order and walks it through the given statuses.
func (h *Handler) scenarioOrder(ctx context.Context, userID generic.UserID, siteID orders.SiteID, euro, rub, number string, path ...generic.StatusCode) (*orders.Order, error) {
	o, err := h.Engine.Orders.CreateOrder(ctx, orders.Order{
		UserID:         userID,
		SiteID:         siteID,
		AmountEuro:     generic.MustParseDecimal(euro),
		AmountRub:      generic.MustParseDecimal(rub),
		InternalNumber: number,
	})
	if err != nil {
		return nil, err
	}
	for _, code := range path {
		if o, err = h.Engine.Orders.ChangeStatus(ctx, o.ID, code, false); err != nil {
			return nil, err
		}
	}
	return o, nil
}
