/*
transition.go - Status change processing

PURPOSE:
  Transitioner decides what a save means for an entity's status and runs
  the matching side effect:

  ┌───────────────────────────────────────────────────────────────────┐
  │ new entity, no status      -> assign group default, changed=false │
  │ status equals persisted    -> no-op,                changed=false │
  │ old -> new not in graph    -> *TransitionError                    │
  │ allowed, skip=false        -> run strategy(new),    changed=true  │
  │ allowed, skip=true         -> accept silently,      changed=true  │
  └───────────────────────────────────────────────────────────────────┘

CONCURRENCY:
  The check-then-act sequence is not locked here. Callers run it inside
  the same database transaction as the entity write; bulk updates lock
  the rows first (SELECT ... FOR UPDATE where supported).

IDEMPOTENCE:
  Once the new status is persisted, a second Process with the same target
  sees persisted == requested and does nothing, so the side effect runs
  at most once.

SEE ALSO:
  - status.go: StatusGraph
  - strategy.go: Strategies registry
*/
package generic

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Stateful is an entity that owns a status reference.
type Stateful interface {
	EntityID() string
	StatusID() StatusID
	SetStatusID(id StatusID)

	// IsNew is true until the entity has been persisted once.
	IsNew() bool
}

// Transitioner validates and dispatches status changes for one group.
type Transitioner[E Stateful] struct {
	Graph      *StatusGraph
	Group      GroupCode
	Strategies *Strategies[E]

	// PriorStatus returns the status currently persisted for the entity.
	PriorStatus func(ctx context.Context, entity E) (StatusID, error)

	Log logrus.FieldLogger
}

// Process applies the rules in the table above. It reports whether the
// entity's status effectively changed.
func (t *Transitioner[E]) Process(ctx context.Context, entity E, skip bool) (bool, error) {
	if entity.IsNew() {
		return false, t.initial(entity)
	}

	prior, err := t.PriorStatus(ctx, entity)
	if err != nil {
		return false, err
	}
	requested := entity.StatusID()
	if requested == "" {
		entity.SetStatusID(prior)
		return false, nil
	}
	if requested == prior {
		return false, nil
	}

	from, err := t.Graph.Status(prior)
	if err != nil {
		return false, err
	}
	to, err := t.member(requested)
	if err != nil {
		return false, err
	}

	if !t.Graph.IsTransitionAllowed(t.Group, from.Code, to.Code) {
		t.logger().WithFields(logrus.Fields{
			"group":     t.Group,
			"entity_id": entity.EntityID(),
			"from":      from.Code,
			"to":        to.Code,
		}).Warn("status transition rejected")
		return false, &TransitionError{Group: t.Group, From: from.Code, To: to.Code}
	}

	if !skip {
		strategy, err := t.Strategies.For(to.Code)
		if err != nil {
			return false, err
		}
		if err := strategy.Execute(ctx, entity); err != nil {
			return false, err
		}
	}

	t.logger().WithFields(logrus.Fields{
		"family":    t.Strategies.Family(),
		"entity_id": entity.EntityID(),
		"from":      from.Code,
		"to":        to.Code,
		"skip":      skip,
	}).Info("status transition accepted")
	return true, nil
}

// initial assigns the default status to a new entity. A new entity may
// only start in the default status: anything else would skip the side
// effects of the statuses in between.
func (t *Transitioner[E]) initial(entity E) error {
	def, err := t.Graph.DefaultStatus(t.Group)
	if err != nil {
		return err
	}
	if entity.StatusID() == "" {
		entity.SetStatusID(def.ID)
		return nil
	}
	st, err := t.member(entity.StatusID())
	if err != nil {
		return err
	}
	if st.ID != def.ID {
		return Invalid("status", "new entities start in %q, got %q", def.Code, st.Code)
	}
	return nil
}

// member resolves a status and checks it belongs to this group.
func (t *Transitioner[E]) member(id StatusID) (Status, error) {
	st, err := t.Graph.Status(id)
	if err != nil {
		return Status{}, Invalid("status", "unknown status %q", id)
	}
	if st.Group != t.Group {
		return Status{}, Invalid("status", "status %q belongs to group %q, not %q", st.Code, st.Group, t.Group)
	}
	return st, nil
}

func (t *Transitioner[E]) logger() logrus.FieldLogger {
	if t.Log == nil {
		return logrus.StandardLogger()
	}
	return t.Log
}
