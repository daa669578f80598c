package factory_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/order-engine/delivery"
	"github.com/warp/order-engine/factory"
	"github.com/warp/order-engine/generic"
	"github.com/warp/order-engine/generic/store"
	"github.com/warp/order-engine/orders"
	"github.com/warp/order-engine/store/sqlite"
)

const parcelGroupJSON = `{
  "code": "parcels",
  "name": "Parcel statuses",
  "family": "parcel",
  "allowed_transitions": {
    "open": ["closed"]
  },
  "transaction_types": {
    "closed": "expense"
  },
  "statuses": [
    {"code": "open", "name": "Open", "is_default": true},
    {"code": "closed", "name": "Closed"}
  ]
}`

// =============================================================================
// PARSING
// =============================================================================

func TestParseStatusGroups_SingleObject(t *testing.T) {
	defs, err := factory.ParseStatusGroups([]byte(parcelGroupJSON))
	require.NoError(t, err)
	require.Len(t, defs, 1)

	def := defs[0]
	assert.Equal(t, generic.GroupCode("parcels"), def.Code)
	assert.Equal(t, generic.Family("parcel"), def.Family)
	assert.Equal(t, generic.TxExpense, def.TransactionTypes["closed"])

	statuses := def.StatusList()
	require.Len(t, statuses, 2)
	assert.Equal(t, 1, statuses[0].Order)
	assert.Equal(t, 2, statuses[1].Order)
	assert.True(t, statuses[0].IsDefault)
}

func TestParseStatusGroups_Array(t *testing.T) {
	defs, err := factory.ParseStatusGroups([]byte("[" + orders.StatusGroupJSON() + "," + delivery.StatusGroupJSON() + "]"))
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, orders.Group, defs[0].Code)
	assert.Equal(t, delivery.Group, defs[1].Code)
}

func TestParseStatusGroups_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty", "   "},
		{"malformed", `{"code": `},
		{"duplicate group", "[" + parcelGroupJSON + "," + parcelGroupJSON + "]"},
		{"no default", `{"code": "g", "family": "f", "statuses": [{"code": "a"}]}`},
		{"unknown transition target", `{"code": "g", "family": "f", "allowed_transitions": {"a": ["b"]}, "statuses": [{"code": "a", "is_default": true}]}`},
		{"unknown transaction type", `{"code": "g", "family": "f", "transaction_types": {"a": "gift"}, "statuses": [{"code": "a", "is_default": true}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := factory.ParseStatusGroups([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestDefaultGroups(t *testing.T) {
	defs, err := factory.DefaultGroups()
	require.NoError(t, err)
	require.Len(t, defs, 2)

	byCode := map[generic.GroupCode]factory.GroupDefinition{}
	for _, d := range defs {
		byCode[d.Code] = d
	}
	assert.Equal(t, orders.Family, byCode[orders.Group].Family)
	assert.Equal(t, []generic.StatusCode{orders.StatusPaid, orders.StatusNew}, byCode[orders.Group].AllowedTransitions[orders.StatusRefunded])
	assert.Equal(t, generic.TxPayback, byCode[delivery.Group].TransactionTypes[delivery.StatusCancelled])
}

// =============================================================================
// SEEDING
// =============================================================================

func TestSeed_IsIdempotent(t *testing.T) {
	// GIVEN: An empty store
	// WHEN: Seeding the built-in groups twice
	// THEN: Each group and status exists exactly once

	ctx := context.Background()
	mem := store.NewMemory()
	defs, err := factory.DefaultGroups()
	require.NoError(t, err)

	require.NoError(t, factory.Seed(ctx, mem, defs, nil))
	require.NoError(t, factory.Seed(ctx, mem, defs, nil))

	groups, err := mem.ListStatusGroups(ctx)
	require.NoError(t, err)
	assert.Len(t, groups, 2)

	statuses, err := mem.ListStatuses(ctx)
	require.NoError(t, err)
	assert.Len(t, statuses, 6)

	graph, err := generic.LoadStatusGraph(ctx, mem)
	require.NoError(t, err)
	assert.True(t, graph.IsTransitionAllowed(delivery.Group, delivery.StatusNew, delivery.StatusCancelled))
}

func TestSeed_AddsMissingStatuses(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	defs, err := factory.ParseStatusGroups([]byte(parcelGroupJSON))
	require.NoError(t, err)
	require.NoError(t, factory.Seed(ctx, mem, defs, nil))

	defs[0].Statuses = append(defs[0].Statuses, factory.StatusDefinition{Code: "lost", Name: "Lost", Order: 3})
	require.NoError(t, factory.Seed(ctx, mem, defs, nil))

	statuses, err := mem.ListStatuses(ctx)
	require.NoError(t, err)
	assert.Len(t, statuses, 3)
}

// =============================================================================
// BOOTSTRAP
// =============================================================================

func TestBootstrap_BuildsEngine(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	engine, err := factory.Bootstrap(ctx, db, nil, nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, engine.Orders)
	assert.NotNil(t, engine.Delivery)

	def, err := engine.Graph.DefaultStatus(orders.Group)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusNew, def.Code)

	// A second start on the same database seeds nothing new.
	_, err = factory.Bootstrap(ctx, db, nil, nil, nil)
	require.NoError(t, err)
	groups, err := db.ListStatusGroups(ctx)
	require.NoError(t, err)
	assert.Len(t, groups, 2)
}

func TestBootstrap_MissingGroupFails(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	defs, err := factory.ParseStatusGroups([]byte(orders.StatusGroupJSON()))
	require.NoError(t, err)

	_, err = factory.Bootstrap(ctx, db, defs, nil, nil)
	assert.ErrorIs(t, err, generic.ErrStatusGroupNotFound)
}

func TestBootstrap_StatusWithoutStrategyFails(t *testing.T) {
	// GIVEN: An orders group with an extra "disputed" status no strategy handles
	// WHEN: Bootstrapping
	// THEN: Startup fails with a configuration error

	ctx := context.Background()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	defs, err := factory.DefaultGroups()
	require.NoError(t, err)
	for i := range defs {
		if defs[i].Code == orders.Group {
			defs[i].Statuses = append(defs[i].Statuses, factory.StatusDefinition{Code: "disputed", Order: 4})
		}
	}

	_, err = factory.Bootstrap(ctx, db, defs, nil, nil)
	assert.ErrorIs(t, err, generic.ErrStrategyNotFound)
}

func TestLoadGroups(t *testing.T) {
	defs, err := factory.LoadGroups("")
	require.NoError(t, err)
	assert.Len(t, defs, 2)

	path := filepath.Join(t.TempDir(), "groups.json")
	require.NoError(t, os.WriteFile(path, []byte(parcelGroupJSON), 0o600))
	defs, err = factory.LoadGroups(path)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, generic.GroupCode("parcels"), defs[0].Code)

	_, err = factory.LoadGroups(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
