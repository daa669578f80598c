package orders

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/warp/order-engine/delivery"
	"github.com/warp/order-engine/generic"
)

// Service is the entry point for every order, site and package-link
// change. Status changes run the transitioner, the strategy, the ledger
// apply and the row write in one store transaction.
type Service struct {
	store       Store
	balances    generic.BalanceReader
	graph       *generic.StatusGraph
	transitions *generic.Transitioner[*Order]
	clock       generic.Clock
	log         logrus.FieldLogger
}

// NewService wires the order strategies and checks them against the
// "orders" status group. A missing strategy fails here, not at the first
// status change.
func NewService(store Store, balances generic.BalanceReader, ledger *generic.Ledger, graph *generic.StatusGraph, clock generic.Clock, log logrus.FieldLogger) (*Service, error) {
	if clock == nil {
		clock = generic.SystemClock{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("component", "orders")

	strategies := NewStrategies(Deps{Balances: balances, Ledger: ledger, Graph: graph, Clock: clock})
	if err := strategies.Validate(graph, Group); err != nil {
		return nil, err
	}

	s := &Service{store: store, balances: balances, graph: graph, clock: clock, log: log}
	s.transitions = &generic.Transitioner[*Order]{
		Graph:       graph,
		Group:       Group,
		Strategies:  strategies,
		PriorStatus: s.priorStatus,
		Log:         log,
	}
	return s, nil
}

func (s *Service) priorStatus(ctx context.Context, o *Order) (generic.StatusID, error) {
	persisted, err := s.store.GetOrder(ctx, o.ID)
	if err != nil {
		return "", err
	}
	return persisted.Status, nil
}

// =============================================================================
// SITES
// =============================================================================

func (s *Service) CreateSite(ctx context.Context, site Site) (*Site, error) {
	if err := site.Validate(); err != nil {
		return nil, err
	}
	site.ID = SiteID(uuid.NewString())
	site.CreatedAt = s.clock.Now()
	site.UpdatedAt = site.CreatedAt
	if err := s.store.CreateSite(ctx, site); err != nil {
		return nil, err
	}
	return &site, nil
}

func (s *Service) UpdateSite(ctx context.Context, site Site) (*Site, error) {
	if err := site.Validate(); err != nil {
		return nil, err
	}
	current, err := s.store.GetSite(ctx, site.ID)
	if err != nil {
		return nil, err
	}
	site.CreatedAt = current.CreatedAt
	site.UpdatedAt = s.clock.Now()
	if err := s.store.UpdateSite(ctx, site); err != nil {
		return nil, err
	}
	return &site, nil
}

func (s *Service) GetSite(ctx context.Context, id SiteID) (*Site, error) {
	return s.store.GetSite(ctx, id)
}

func (s *Service) ListSites(ctx context.Context) ([]Site, error) {
	return s.store.ListSites(ctx)
}

// DeleteSite refuses while any order references the site.
func (s *Service) DeleteSite(ctx context.Context, id SiteID) error {
	return s.store.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.store.GetSite(ctx, id); err != nil {
			return err
		}
		n, err := s.store.CountOrdersBySite(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return &generic.ProtectedDeletionError{Entity: "site", ID: string(id), Reason: "site has orders"}
		}
		return s.store.DeleteSite(ctx, id)
	})
}

// =============================================================================
// ORDERS
// =============================================================================

// CreateOrder inserts a new order in the default status. Derived fields
// always start at zero.
func (s *Service) CreateOrder(ctx context.Context, o Order) (*Order, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	o.ID = OrderID(uuid.NewString())
	o.Expense = decimal.Zero
	o.Profit = decimal.Zero
	o.PaidAt = nil

	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.balances.GetBalanceByUser(ctx, o.UserID); err != nil {
			return invalidReference("user_id", err)
		}
		if _, err := s.store.GetSite(ctx, o.SiteID); err != nil {
			return invalidReference("site_id", err)
		}
		if _, err := s.transitions.Process(ctx, &o, false); err != nil {
			return err
		}
		o.CreatedAt = s.clock.Now()
		o.UpdatedAt = o.CreatedAt
		return s.store.CreateOrder(ctx, o)
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"order_id": o.ID, "user_id": o.UserID}).Info("order created")
	return &o, nil
}

// SaveOrder persists client edits and processes a status change.
//
//   - changing the user is a ValidationError
//   - while the order is paid, amount edits revert to the stored values
//   - derived fields are owned by the strategies and never taken from o
//
// skip accepts the status change without its side effect.
func (s *Service) SaveOrder(ctx context.Context, o Order, skip bool) (*Order, error) {
	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		current, err := s.store.GetOrderForUpdate(ctx, o.ID)
		if err != nil {
			return err
		}
		if o.UserID == "" {
			o.UserID = current.UserID
		}
		if o.UserID != current.UserID {
			return generic.Invalid("user_id", "cannot be changed after creation")
		}
		if s.isPaid(current) {
			o.AmountEuro = current.AmountEuro
			o.AmountRub = current.AmountRub
		}
		o.Expense, o.Profit, o.PaidAt = current.Expense, current.Profit, current.PaidAt
		o.CreatedAt = current.CreatedAt

		if err := o.Validate(); err != nil {
			return err
		}
		if o.SiteID != current.SiteID {
			if _, err := s.store.GetSite(ctx, o.SiteID); err != nil {
				return invalidReference("site_id", err)
			}
		}
		return s.save(ctx, &o, skip)
	})
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// save runs the transition and writes the row. Callers hold a transaction.
func (s *Service) save(ctx context.Context, o *Order, skip bool) error {
	if _, err := s.transitions.Process(ctx, o, skip); err != nil {
		return err
	}
	o.UpdatedAt = s.clock.Now()
	return s.store.UpdateOrder(ctx, *o)
}

// ChangeStatus moves one order to the status with the given code.
func (s *Service) ChangeStatus(ctx context.Context, id OrderID, code generic.StatusCode, skip bool) (*Order, error) {
	updated, err := s.BulkUpdateStatus(ctx, []OrderID{id}, code, skip)
	if err != nil {
		return nil, err
	}
	return &updated[0], nil
}

// BulkUpdateStatus moves every order to code in one transaction. Each row
// is locked before it changes; one rejected transition rolls back all of
// them.
func (s *Service) BulkUpdateStatus(ctx context.Context, ids []OrderID, code generic.StatusCode, skip bool) ([]Order, error) {
	if len(ids) == 0 {
		return nil, generic.Invalid("ids", "at least one order is required")
	}
	target, err := s.graph.StatusByCode(Group, code)
	if err != nil {
		return nil, generic.Invalid("status", "unknown order status %q", code)
	}

	updated := make([]Order, 0, len(ids))
	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		for _, id := range ids {
			o, err := s.store.GetOrderForUpdate(ctx, id)
			if err != nil {
				return err
			}
			o.Status = target.ID
			if err := s.save(ctx, o, skip); err != nil {
				return err
			}
			updated = append(updated, *o)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"count": len(updated), "status": code, "skip": skip}).Info("order statuses updated")
	return updated, nil
}

func (s *Service) GetOrder(ctx context.Context, id OrderID) (*Order, error) {
	return s.store.GetOrder(ctx, id)
}

func (s *Service) ListOrders(ctx context.Context, userID generic.UserID) ([]Order, error) {
	return s.store.ListOrders(ctx, userID)
}

// DeleteOrder refuses paid orders and orders linked to a package.
func (s *Service) DeleteOrder(ctx context.Context, id OrderID) error {
	return s.store.RunInTx(ctx, func(ctx context.Context) error {
		o, err := s.store.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if s.isPaid(o) {
			return &generic.ProtectedDeletionError{Entity: "order", ID: string(id), Reason: "order is paid"}
		}
		n, err := s.store.CountPackageOrdersByOrder(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return &generic.ProtectedDeletionError{Entity: "order", ID: string(id), Reason: "order is in a package"}
		}
		return s.store.DeleteOrder(ctx, id)
	})
}

// StatusCode returns the code of the order's current status.
func (s *Service) StatusCode(o *Order) generic.StatusCode {
	st, err := s.graph.Status(o.Status)
	if err != nil {
		return ""
	}
	return st.Code
}

func (s *Service) isPaid(o *Order) bool {
	return o.PaidAt != nil || s.StatusCode(o) == StatusPaid
}

// =============================================================================
// PACKAGE LINKS
// =============================================================================

// LinkToPackage puts a paid order into a package of the same user.
func (s *Service) LinkToPackage(ctx context.Context, packageID delivery.PackageID, orderID OrderID) (*PackageOrder, error) {
	link := PackageOrder{
		ID:        PackageOrderID(uuid.NewString()),
		PackageID: packageID,
		OrderID:   orderID,
	}
	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		pkg, err := s.store.GetPackage(ctx, packageID)
		if err != nil {
			return err
		}
		o, err := s.store.GetOrder(ctx, orderID)
		if err != nil {
			return invalidReference("order_id", err)
		}
		if s.StatusCode(o) != StatusPaid {
			return generic.Invalid("order_id", "only paid orders can be packed, order %s is %q", o.Label(), s.StatusCode(o))
		}
		if o.UserID != pkg.UserID {
			return generic.Invalid("order_id", "order %s belongs to another user", o.Label())
		}
		link.CreatedAt = s.clock.Now()
		return s.store.CreatePackageOrder(ctx, link)
	})
	if err != nil {
		return nil, err
	}
	return &link, nil
}

func (s *Service) PackageOrders(ctx context.Context, packageID delivery.PackageID) ([]PackageOrder, error) {
	return s.store.ListPackageOrders(ctx, packageID)
}

// invalidReference turns a missing referenced entity into a validation
// error on the referencing field.
func invalidReference(field string, err error) error {
	var nf *generic.NotFoundError
	if errors.As(err, &nf) {
		return generic.Invalid(field, "%s %s does not exist", nf.Entity, nf.ID)
	}
	return err
}
