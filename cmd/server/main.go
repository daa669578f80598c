/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the order back-office server.
  Handles configuration, bootstrap, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load config (flags > env > config.toml > defaults)
  2. Configure logrus
  3. Open the store (sqlite3 or postgres)
  4. Bootstrap: seed status groups, load the graph, validate strategies
  5. Configure HTTP router
  6. Start the reconciliation scheduler (reconciliation.enabled)
  7. Serve until SIGINT/SIGTERM

COMMAND-LINE FLAGS:
  --config     Path to a config.toml
  --port       HTTP server port (default: 8080)
  --db-driver  sqlite3 | postgres
  --db         Database DSN; ":memory:" for an in-memory sqlite database
  --log-level  Log level
  --demo       Enable demo scenario endpoints

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests (server.shutdown_timeout)
  3. Close database connection

EXAMPLES:
  ORDERENGINE_AUTH_JWT_SECRET=dev ./server --db ./data/orders.db
  ORDERENGINE_AUTH_ENABLED=false ./server --db ":memory:" --demo

SEE ALSO:
  - config/config.go: Configuration keys
  - factory/bootstrap.go: Engine wiring
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/warp/order-engine/api"
	"github.com/warp/order-engine/config"
	"github.com/warp/order-engine/factory"
	"github.com/warp/order-engine/store/sqlite"
	"golang.org/x/sync/errgroup"
)

func main() {
	fs := config.Flags()
	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}

	cfg, err := config.Load(fs)
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	log := cfg.NewLogger()
	log.Info("config parsed")

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("server stopped with error")
	}
	log.Info("server stopped")
}

func run(cfg *config.Config, log *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := sqlite.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer store.Close()

	defs, err := factory.LoadGroups(cfg.StatusGroups.File)
	if err != nil {
		return err
	}
	engine, err := factory.Bootstrap(ctx, store, defs, nil, log)
	if err != nil {
		return err
	}

	handler := api.NewHandler(store, engine, log)
	if cfg.Reconciliation.Enabled {
		handler.Scheduler = api.NewReconciliationScheduler(engine.Reconciler, cfg.Reconciliation.Interval, log)
	}
	router := api.NewRouter(handler, api.RouterOptions{
		Auth:           &api.Authenticator{Secret: []byte(cfg.Auth.JWTSecret), Disabled: !cfg.Auth.Enabled},
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Demo:           cfg.Demo.Enabled,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithFields(logrus.Fields{
			"addr":   server.Addr,
			"driver": store.Driver(),
			"auth":   cfg.Auth.Enabled,
			"demo":   cfg.Demo.Enabled,
		}).Info("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if handler.Scheduler != nil {
		g.Go(func() error { return handler.Scheduler.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
