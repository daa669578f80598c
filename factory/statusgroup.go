/*
Package factory provides JSON to Go status group conversion and seeding.

PURPOSE:
  Converts JSON status group definitions into generic.StatusGroup and
  generic.Status values, validates them, and seeds them into the store at
  bootstrap. Groups are immutable once seeded: Seed inserts what is
  missing and never rewrites what exists.

JSON SCHEMA:
  {
    "code": "orders",
    "name": "Order statuses",
    "family": "order",
    "allowed_transitions": {
      "new": ["paid"],
      "paid": ["refunded"],
      "refunded": ["paid", "new"]
    },
    "transaction_types": {
      "paid": "expense",
      "refunded": "payback"
    },
    "statuses": [
      {"code": "new", "name": "New", "is_default": true, "order": 1},
      {"code": "paid", "name": "Paid", "order": 2},
      {"code": "refunded", "name": "Refunded", "order": 3}
    ]
  }

  A document may hold one group object or an array of them.

USAGE:
  defs, err := factory.ParseStatusGroups([]byte(orders.StatusGroupJSON()))
  err = factory.Seed(ctx, store, defs, log)
  graph, err := generic.LoadStatusGraph(ctx, store)

SEE ALSO:
  - generic/status.go: StatusGroup, Status, StatusGraph
  - orders/preset.go, delivery/preset.go: Built-in groups
*/
package factory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/warp/order-engine/delivery"
	"github.com/warp/order-engine/generic"
	"github.com/warp/order-engine/orders"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// GroupDefinition is the JSON representation of a status group.
type GroupDefinition struct {
	Code               generic.GroupCode                              `json:"code"`
	Name               string                                         `json:"name"`
	Family             generic.Family                                 `json:"family"`
	AllowedTransitions map[generic.StatusCode][]generic.StatusCode    `json:"allowed_transitions"`
	TransactionTypes   map[generic.StatusCode]generic.TransactionType `json:"transaction_types,omitempty"`
	Statuses           []StatusDefinition                             `json:"statuses"`
}

// StatusDefinition is the JSON representation of a status.
type StatusDefinition struct {
	Code        generic.StatusCode `json:"code"`
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	IsDefault   bool               `json:"is_default,omitempty"`
	Order       int                `json:"order"`
}

// Group converts the definition to the engine type. ID and CreatedAt are
// left for Seed to fill.
func (d GroupDefinition) Group() generic.StatusGroup {
	name := d.Name
	if name == "" {
		name = string(d.Code)
	}
	return generic.StatusGroup{
		Code:               d.Code,
		Name:               name,
		Family:             d.Family,
		AllowedTransitions: d.AllowedTransitions,
		TransactionTypes:   d.TransactionTypes,
	}
}

// StatusList converts the status definitions to engine statuses.
func (d GroupDefinition) StatusList() []generic.Status {
	out := make([]generic.Status, 0, len(d.Statuses))
	for i, s := range d.Statuses {
		name := s.Name
		if name == "" {
			name = string(s.Code)
		}
		order := s.Order
		if order == 0 {
			order = i + 1
		}
		out = append(out, generic.Status{
			Group:       d.Code,
			Code:        s.Code,
			Name:        name,
			Description: s.Description,
			IsDefault:   s.IsDefault,
			Order:       order,
		})
	}
	return out
}

// =============================================================================
// PARSING
// =============================================================================

// ParseStatusGroups parses and validates one group object or an array.
func ParseStatusGroups(data []byte) ([]GroupDefinition, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, generic.Invalid("status_groups", "empty document")
	}

	var defs []GroupDefinition
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &defs); err != nil {
			return nil, fmt.Errorf("invalid status group JSON: %w", err)
		}
	} else {
		var def GroupDefinition
		if err := json.Unmarshal(trimmed, &def); err != nil {
			return nil, fmt.Errorf("invalid status group JSON: %w", err)
		}
		defs = []GroupDefinition{def}
	}

	seen := make(map[generic.GroupCode]bool, len(defs))
	for _, def := range defs {
		if seen[def.Code] {
			return nil, generic.Invalid("code", "status group %q defined twice", def.Code)
		}
		seen[def.Code] = true
		if err := generic.ValidateGroup(def.Group(), def.StatusList()); err != nil {
			return nil, err
		}
	}
	return defs, nil
}

// DefaultGroups returns the built-in order and delivery groups.
func DefaultGroups() ([]GroupDefinition, error) {
	var all []GroupDefinition
	for _, doc := range []string{orders.StatusGroupJSON(), delivery.StatusGroupJSON()} {
		defs, err := ParseStatusGroups([]byte(doc))
		if err != nil {
			return nil, err
		}
		all = append(all, defs...)
	}
	return all, nil
}

// =============================================================================
// SEEDING
// =============================================================================

// SeedStore is what Seed needs from the store.
type SeedStore interface {
	generic.Atomic
	generic.StatusStore
}

// Seed inserts the groups and statuses that are not in the store yet.
// Existing rows are left as they are, so running it on every start is safe.
func Seed(ctx context.Context, store SeedStore, defs []GroupDefinition, log logrus.FieldLogger) error {
	if log == nil {
		log = logrus.StandardLogger()
	}
	now := time.Now().UTC()

	return store.RunInTx(ctx, func(ctx context.Context) error {
		groups, err := store.ListStatusGroups(ctx)
		if err != nil {
			return err
		}
		statuses, err := store.ListStatuses(ctx)
		if err != nil {
			return err
		}

		haveGroup := make(map[generic.GroupCode]bool, len(groups))
		for _, g := range groups {
			haveGroup[g.Code] = true
		}
		haveStatus := make(map[string]bool, len(statuses))
		for _, s := range statuses {
			haveStatus[string(s.Group)+"/"+string(s.Code)] = true
		}

		for _, def := range defs {
			if !haveGroup[def.Code] {
				g := def.Group()
				g.ID = uuid.NewString()
				g.CreatedAt = now
				if err := store.CreateStatusGroup(ctx, g); err != nil {
					return fmt.Errorf("failed to seed status group %q: %w", def.Code, err)
				}
				log.WithField("group", def.Code).Info("status group seeded")
			}
			for _, s := range def.StatusList() {
				if haveStatus[string(s.Group)+"/"+string(s.Code)] {
					continue
				}
				s.ID = generic.StatusID(uuid.NewString())
				s.CreatedAt = now
				if err := store.CreateStatus(ctx, s); err != nil {
					return fmt.Errorf("failed to seed status %s/%s: %w", s.Group, s.Code, err)
				}
			}
		}
		return nil
	})
}
