package factory

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/warp/order-engine/delivery"
	"github.com/warp/order-engine/generic"
	"github.com/warp/order-engine/orders"
)

// =============================================================================
// BOOTSTRAP - Explicit startup wiring
// =============================================================================

// EngineStore is everything the engine needs from one database.
type EngineStore interface {
	generic.LedgerStore
	generic.Snapshot
	generic.UserStore
	generic.StatusStore
	orders.Store
	delivery.Store
}

// Engine holds the services built at startup. Only Ledger has write
// access to balances; everything else reads them through Balances.
type Engine struct {
	Graph    *generic.StatusGraph
	Balances generic.BalanceReader
	Ledger   *generic.Ledger
	Accounts *generic.Accounts
	Orders   *orders.Service
	Delivery *delivery.Service

	// Reconciler audits balances against their ledgers.
	Reconciler *generic.Reconciler
}

// Bootstrap seeds defs (DefaultGroups when nil), loads the status graph
// and builds the services. A status without a strategy fails here.
func Bootstrap(ctx context.Context, store EngineStore, defs []GroupDefinition, clock generic.Clock, log logrus.FieldLogger) (*Engine, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if clock == nil {
		clock = generic.SystemClock{}
	}
	if defs == nil {
		var err error
		if defs, err = DefaultGroups(); err != nil {
			return nil, err
		}
	}

	if err := Seed(ctx, store, defs, log); err != nil {
		return nil, err
	}
	graph, err := generic.LoadStatusGraph(ctx, store)
	if err != nil {
		return nil, err
	}

	ledger := generic.NewLedger(store, log.WithField("component", "ledger"))
	ledger.Clock = clock

	orderService, err := orders.NewService(store, store, ledger, graph, clock, log)
	if err != nil {
		return nil, err
	}
	deliveryService, err := delivery.NewService(store, store, ledger, graph, clock, log)
	if err != nil {
		return nil, err
	}

	return &Engine{
		Graph:    graph,
		Balances: store,
		Ledger:   ledger,
		Accounts: &generic.Accounts{Store: store, Clock: clock, Log: log},
		Orders:   orderService,
		Delivery: deliveryService,
		Reconciler: &generic.Reconciler{
			Users:    store,
			Balances: store,
			Snapshot: store,
			Clock:    clock,
			Log:      log.WithField("component", "reconciler"),
		},
	}, nil
}

// LoadGroups returns the groups in path, or the built-in ones when path
// is empty.
func LoadGroups(path string) ([]GroupDefinition, error) {
	if path == "" {
		return DefaultGroups()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read status groups %s: %w", path, err)
	}
	return ParseStatusGroups(data)
}
