package generic

import (
	"context"
	"fmt"
	"sort"
)

// =============================================================================
// STRATEGY - Side effect triggered by entering a status
// =============================================================================

// Strategy performs the side effect of an entity entering a status:
// derived amount computation and ledger submission. Strategies mutate the
// entity in place; the caller persists it in the same transaction.
type Strategy[E any] interface {
	Execute(ctx context.Context, entity E) error
}

// StrategyFunc adapts a function to Strategy.
type StrategyFunc[E any] func(ctx context.Context, entity E) error

func (f StrategyFunc[E]) Execute(ctx context.Context, entity E) error { return f(ctx, entity) }

// Noop is the placeholder for statuses without side effects ("new").
func Noop[E any]() Strategy[E] {
	return StrategyFunc[E](func(context.Context, E) error { return nil })
}

// =============================================================================
// STRATEGIES - Registry for one entity family, keyed by status code
// =============================================================================

type Strategies[E any] struct {
	family Family
	byCode map[StatusCode]Strategy[E]
}

func NewStrategies[E any](family Family) *Strategies[E] {
	return &Strategies[E]{family: family, byCode: make(map[StatusCode]Strategy[E])}
}

// Register maps a status code to its strategy. Returns s for chaining.
func (s *Strategies[E]) Register(code StatusCode, strategy Strategy[E]) *Strategies[E] {
	s.byCode[code] = strategy
	return s
}

func (s *Strategies[E]) Family() Family { return s.family }

// For returns a ConfigurationError for an unmapped code.
func (s *Strategies[E]) For(code StatusCode) (Strategy[E], error) {
	st, ok := s.byCode[code]
	if !ok {
		return nil, &ConfigurationError{
			Kind: ErrStrategyNotFound,
			Key:  fmt.Sprintf("%s/%s", s.family, code),
		}
	}
	return st, nil
}

// Codes returns the registered status codes, sorted.
func (s *Strategies[E]) Codes() []StatusCode {
	out := make([]StatusCode, 0, len(s.byCode))
	for code := range s.byCode {
		out = append(out, code)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Validate is the startup check that every status of the group has a
// strategy and that the group governs this family.
func (s *Strategies[E]) Validate(graph *StatusGraph, group GroupCode) error {
	grp, err := graph.Group(group)
	if err != nil {
		return err
	}
	if grp.Family != s.family {
		return &ConfigurationError{
			Kind: ErrStatusGroupNotFound,
			Key:  fmt.Sprintf("group %s governs %q, not %q", group, grp.Family, s.family),
		}
	}
	for _, st := range graph.Statuses(group) {
		if _, err := s.For(st.Code); err != nil {
			return err
		}
	}
	return nil
}
