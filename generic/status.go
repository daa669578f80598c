/*
status.go - Status groups and the allowed-transition graph

PURPOSE:
  A StatusGroup is a named directed graph of status codes for one entity
  family. It answers two questions:
    1. Is old -> new an allowed transition?
    2. Which ledger transaction type (if any) does a status trigger?

  Groups and their statuses are seeded once at bootstrap from static
  configuration (see factory) and never change afterwards. StatusGraph is
  the immutable in-memory index the rest of the engine reads.

LOOKUP RULES:
  - Unknown codes are not errors: IsTransitionAllowed returns false
  - TransactionTypeFor has no default: a status without an entry triggers nothing
  - A group code that was never seeded IS an error (ConfigurationError)

EXAMPLE:
  orders: new -> {paid}, paid -> {refunded}, refunded -> {paid, new}
  graph.IsTransitionAllowed("orders", "new", "paid")      // true
  graph.IsTransitionAllowed("orders", "new", "refunded")  // false
  graph.TransactionTypeFor("orders", "paid")              // expense, true

SEE ALSO:
  - transition.go: Uses the graph to validate status changes
  - factory/statusgroup.go: JSON configuration and seeding
*/
package generic

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// =============================================================================
// STATUS GROUP
// =============================================================================

type StatusGroup struct {
	ID     string
	Code   GroupCode
	Name   string
	Family Family

	// AllowedTransitions maps a status code to the codes it may move to.
	AllowedTransitions map[StatusCode][]StatusCode

	// TransactionTypes maps a status code to the ledger transaction it requires.
	TransactionTypes map[StatusCode]TransactionType

	CreatedAt time.Time
}

// IsTransitionAllowed reports whether to is listed under from.
func (g StatusGroup) IsTransitionAllowed(from, to StatusCode) bool {
	for _, next := range g.AllowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TransactionTypeFor returns the ledger transaction type a status triggers.
func (g StatusGroup) TransactionTypeFor(code StatusCode) (TransactionType, bool) {
	t, ok := g.TransactionTypes[code]
	return t, ok
}

// =============================================================================
// STATUS
// =============================================================================

type Status struct {
	ID          StatusID
	Group       GroupCode
	Code        StatusCode
	Name        string
	Description string
	IsDefault   bool
	Order       int
	CreatedAt   time.Time
}

// ValidateGroup checks a group definition against its statuses.
func ValidateGroup(g StatusGroup, statuses []Status) error {
	if g.Code == "" {
		return Invalid("code", "status group code is required")
	}
	if g.Family == "" {
		return Invalid("family", "status group %q has no family", g.Code)
	}

	declared := make(map[StatusCode]bool, len(statuses))
	defaults := 0
	for _, s := range statuses {
		if s.Code == "" {
			return Invalid("statuses", "group %q has a status without code", g.Code)
		}
		if declared[s.Code] {
			return Invalid("statuses", "group %q declares %q twice", g.Code, s.Code)
		}
		declared[s.Code] = true
		if s.IsDefault {
			defaults++
		}
	}
	if defaults != 1 {
		return Invalid("statuses", "group %q must have exactly one default status, has %d", g.Code, defaults)
	}

	for from, targets := range g.AllowedTransitions {
		if !declared[from] {
			return Invalid("allowed_transitions", "group %q: unknown status %q", g.Code, from)
		}
		for _, to := range targets {
			if !declared[to] {
				return Invalid("allowed_transitions", "group %q: %q -> unknown status %q", g.Code, from, to)
			}
		}
	}
	for code, t := range g.TransactionTypes {
		if !declared[code] {
			return Invalid("transaction_types", "group %q: unknown status %q", g.Code, code)
		}
		if !t.Valid() {
			return Invalid("transaction_types", "group %q: status %q has unknown type %q", g.Code, code, t)
		}
	}
	return nil
}

// =============================================================================
// STATUS GRAPH - Read-only index over all groups
// =============================================================================

type StatusGraph struct {
	groups  map[GroupCode]StatusGroup
	byID    map[StatusID]Status
	byCode  map[GroupCode]map[StatusCode]Status
	ordered map[GroupCode][]Status
}

// NewStatusGraph indexes and validates groups and statuses.
func NewStatusGraph(groups []StatusGroup, statuses []Status) (*StatusGraph, error) {
	g := &StatusGraph{
		groups:  make(map[GroupCode]StatusGroup, len(groups)),
		byID:    make(map[StatusID]Status, len(statuses)),
		byCode:  make(map[GroupCode]map[StatusCode]Status, len(groups)),
		ordered: make(map[GroupCode][]Status, len(groups)),
	}
	for _, grp := range groups {
		g.groups[grp.Code] = grp
		g.byCode[grp.Code] = make(map[StatusCode]Status)
	}
	for _, s := range statuses {
		if _, ok := g.groups[s.Group]; !ok {
			return nil, &ConfigurationError{Kind: ErrStatusGroupNotFound, Key: string(s.Group)}
		}
		g.byID[s.ID] = s
		g.byCode[s.Group][s.Code] = s
		g.ordered[s.Group] = append(g.ordered[s.Group], s)
	}
	for code, grp := range g.groups {
		sort.SliceStable(g.ordered[code], func(i, j int) bool {
			return g.ordered[code][i].Order < g.ordered[code][j].Order
		})
		if err := ValidateGroup(grp, g.ordered[code]); err != nil {
			return nil, fmt.Errorf("invalid status group %q: %w", code, err)
		}
	}
	return g, nil
}

// LoadStatusGraph builds the graph from the store.
func LoadStatusGraph(ctx context.Context, store StatusStore) (*StatusGraph, error) {
	groups, err := store.ListStatusGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load status groups: %w", err)
	}
	statuses, err := store.ListStatuses(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load statuses: %w", err)
	}
	return NewStatusGraph(groups, statuses)
}

// Group returns a ConfigurationError when the group was never seeded.
func (g *StatusGraph) Group(code GroupCode) (StatusGroup, error) {
	grp, ok := g.groups[code]
	if !ok {
		return StatusGroup{}, &ConfigurationError{Kind: ErrStatusGroupNotFound, Key: string(code)}
	}
	return grp, nil
}

// Groups returns every group ordered by code.
func (g *StatusGraph) Groups() []StatusGroup {
	out := make([]StatusGroup, 0, len(g.groups))
	for _, grp := range g.groups {
		out = append(out, grp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// IsTransitionAllowed is false for unknown groups and codes.
func (g *StatusGraph) IsTransitionAllowed(group GroupCode, from, to StatusCode) bool {
	grp, ok := g.groups[group]
	if !ok {
		return false
	}
	return grp.IsTransitionAllowed(from, to)
}

// TransactionTypeFor is a direct lookup with no default.
func (g *StatusGraph) TransactionTypeFor(group GroupCode, code StatusCode) (TransactionType, bool) {
	grp, ok := g.groups[group]
	if !ok {
		return "", false
	}
	return grp.TransactionTypeFor(code)
}

// RequireTransactionType is TransactionTypeFor for strategies that cannot
// run without a ledger type. A missing entry is a ConfigurationError.
func (g *StatusGraph) RequireTransactionType(group GroupCode, code StatusCode) (TransactionType, error) {
	t, ok := g.TransactionTypeFor(group, code)
	if !ok {
		return "", &ConfigurationError{
			Kind: ErrTransactionTypeMissing,
			Key:  fmt.Sprintf("%s/%s", group, code),
		}
	}
	return t, nil
}

func (g *StatusGraph) Status(id StatusID) (Status, error) {
	s, ok := g.byID[id]
	if !ok {
		return Status{}, &NotFoundError{Entity: "status", ID: string(id)}
	}
	return s, nil
}

func (g *StatusGraph) StatusByCode(group GroupCode, code StatusCode) (Status, error) {
	if _, err := g.Group(group); err != nil {
		return Status{}, err
	}
	s, ok := g.byCode[group][code]
	if !ok {
		return Status{}, &NotFoundError{Entity: "status", ID: fmt.Sprintf("%s/%s", group, code)}
	}
	return s, nil
}

// DefaultStatus returns the status new entities of the group start in.
func (g *StatusGraph) DefaultStatus(group GroupCode) (Status, error) {
	if _, err := g.Group(group); err != nil {
		return Status{}, err
	}
	for _, s := range g.ordered[group] {
		if s.IsDefault {
			return s, nil
		}
	}
	return Status{}, &ConfigurationError{Kind: ErrStatusGroupNotFound, Key: string(group) + ": no default status"}
}

// Statuses returns the group's statuses sorted by Order.
func (g *StatusGraph) Statuses(group GroupCode) []Status {
	out := make([]Status, len(g.ordered[group]))
	copy(out, g.ordered[group])
	return out
}
