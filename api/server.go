/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     logrus request log with method, path, status, duration
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests, origins from config
  5. Auth:       Bearer JWT on everything except /api/health
  6. Admin:      role=admin on back-office routes

ROUTE GROUPS:
  /api/health              Liveness + database ping (public)
  /api/me/*                Caller's own balance and ledger
  /api/status-groups       Status graph (read-only)
  reads                    orders, packages, deliveries, sites, companies
  admin writes             users, balances, every create/update/delete
  /api/reconciliation      Balance audit against the ledger (admin)
  /api/scenarios/*         Demo scenarios, only with demo enabled

SEE ALSO:
  - handlers.go: Handler implementations
  - auth.go: JWT verification
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	Auth           *Authenticator
	AllowedOrigins []string
	Demo           bool
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.Log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-ID"},
		AllowCredentials: true,
	}))

	auth := opts.Auth
	if auth == nil {
		auth = &Authenticator{Disabled: true}
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware)

			// Self
			r.Get("/me/balance", h.MyBalance)
			r.Get("/me/transactions", h.MyTransactions)
			r.Get("/me/history", h.MyHistory)

			// Reads, scoped to the caller unless admin
			r.Get("/status-groups", h.ListStatusGroups)
			r.Get("/sites", h.ListSites)
			r.Get("/transport-companies", h.ListTransportCompanies)
			r.Get("/orders", h.ListOrders)
			r.Get("/orders/{id}", h.GetOrder)
			r.Get("/packages", h.ListPackages)
			r.Get("/packages/{id}", h.GetPackage)
			r.Get("/packages/{id}/orders", h.ListPackageOrders)
			r.Get("/deliveries", h.ListDeliveries)
			r.Get("/deliveries/{id}", h.GetDelivery)

			r.Group(func(r chi.Router) {
				r.Use(RequireAdmin)

				// Users & balances
				r.Get("/users", h.ListUsers)
				r.Post("/users", h.CreateUser)
				r.Get("/balances/{user}", h.GetUserBalance)
				r.Post("/balances/{user}/replenish", h.Replenish)
				r.Get("/balances/{user}/transactions", h.UserTransactions)
				r.Get("/reconciliation", h.Reconciliation)
				r.Post("/reconciliation/run", h.RunReconciliation)

				// Sites
				r.Post("/sites", h.CreateSite)
				r.Put("/sites/{id}", h.UpdateSite)
				r.Delete("/sites/{id}", h.DeleteSite)

				// Orders
				r.Post("/orders", h.CreateOrder)
				r.Post("/orders/status", h.BulkOrderStatus)
				r.Put("/orders/{id}", h.UpdateOrder)
				r.Delete("/orders/{id}", h.DeleteOrder)
				r.Post("/orders/{id}/status", h.ChangeOrderStatus)

				// Transport companies
				r.Post("/transport-companies", h.CreateTransportCompany)
				r.Post("/transport-companies/{id}/default", h.SetDefaultTransportCompany)
				r.Delete("/transport-companies/{id}", h.DeleteTransportCompany)

				// Packages
				r.Post("/packages", h.CreatePackage)
				r.Put("/packages/{id}", h.UpdatePackage)
				r.Delete("/packages/{id}", h.DeletePackage)
				r.Post("/packages/{id}/orders", h.LinkPackageOrder)

				// Deliveries
				r.Post("/deliveries", h.CreateDelivery)
				r.Post("/deliveries/status", h.BulkDeliveryStatus)
				r.Put("/deliveries/{id}", h.UpdateDelivery)
				r.Delete("/deliveries/{id}", h.DeleteDelivery)
				r.Post("/deliveries/{id}/status", h.ChangeDeliveryStatus)

				if opts.Demo {
					r.Get("/scenarios", h.ListScenarios)
					r.Get("/scenarios/current", h.GetCurrentScenario)
					r.Post("/scenarios/load", h.LoadScenario)
				}
			})
		})
	})

	return r
}

// requestLogger logs one line per request at Info.
func requestLogger(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.WithFields(logrus.Fields{
					"method":     r.Method,
					"path":       r.URL.Path,
					"status":     ww.Status(),
					"duration":   time.Since(start),
					"request_id": middleware.GetReqID(r.Context()),
				}).Info("request")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
