package delivery

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/warp/order-engine/generic"
)

// Service is the entry point for transport companies, packages and
// deliveries. Status changes run the transitioner, the strategy, the
// ledger apply and the row write in one store transaction.
type Service struct {
	store       Store
	balances    generic.BalanceReader
	graph       *generic.StatusGraph
	transitions *generic.Transitioner[*PackageDelivery]
	clock       generic.Clock
	log         logrus.FieldLogger
}

// NewService wires the delivery strategies and checks them against the
// "deliveries" status group.
func NewService(store Store, balances generic.BalanceReader, ledger *generic.Ledger, graph *generic.StatusGraph, clock generic.Clock, log logrus.FieldLogger) (*Service, error) {
	if clock == nil {
		clock = generic.SystemClock{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("component", "delivery")

	strategies := NewStrategies(Deps{Packages: store, Balances: balances, Ledger: ledger, Graph: graph, Clock: clock})
	if err := strategies.Validate(graph, Group); err != nil {
		return nil, err
	}

	s := &Service{store: store, balances: balances, graph: graph, clock: clock, log: log}
	s.transitions = &generic.Transitioner[*PackageDelivery]{
		Graph:       graph,
		Group:       Group,
		Strategies:  strategies,
		PriorStatus: s.priorStatus,
		Log:         log,
	}
	return s, nil
}

func (s *Service) priorStatus(ctx context.Context, d *PackageDelivery) (generic.StatusID, error) {
	persisted, err := s.store.GetDelivery(ctx, d.ID)
	if err != nil {
		return "", err
	}
	return persisted.Status, nil
}

// =============================================================================
// TRANSPORT COMPANIES
// =============================================================================

// CreateTransportCompany inserts a company. A new default replaces the
// previous one.
func (s *Service) CreateTransportCompany(ctx context.Context, c TransportCompany) (*TransportCompany, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	c.ID = TransportCompanyID(uuid.NewString())
	c.CreatedAt = s.clock.Now()
	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		if c.IsDefault {
			if err := s.store.ClearDefaultTransportCompany(ctx); err != nil {
				return err
			}
		}
		return s.store.CreateTransportCompany(ctx, c)
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// SetDefaultTransportCompany makes id the only default company.
func (s *Service) SetDefaultTransportCompany(ctx context.Context, id TransportCompanyID) (*TransportCompany, error) {
	var c *TransportCompany
	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		if c, err = s.store.GetTransportCompany(ctx, id); err != nil {
			return err
		}
		if err := s.store.ClearDefaultTransportCompany(ctx); err != nil {
			return err
		}
		c.IsDefault = true
		return s.store.SetDefaultTransportCompany(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) ListTransportCompanies(ctx context.Context) ([]TransportCompany, error) {
	return s.store.ListTransportCompanies(ctx)
}

// DeleteTransportCompany refuses while deliveries reference the company.
func (s *Service) DeleteTransportCompany(ctx context.Context, id TransportCompanyID) error {
	return s.store.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.store.GetTransportCompany(ctx, id); err != nil {
			return err
		}
		n, err := s.store.CountDeliveriesByTransportCompany(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return &generic.ProtectedDeletionError{Entity: "transport company", ID: string(id), Reason: "company has deliveries"}
		}
		return s.store.DeleteTransportCompany(ctx, id)
	})
}

// =============================================================================
// PACKAGES
// =============================================================================

func (s *Service) CreatePackage(ctx context.Context, p Package) (*Package, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	p.ID = PackageID(uuid.NewString())
	p.CreatedAt = s.clock.Now()
	p.UpdatedAt = p.CreatedAt
	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.balances.GetBalanceByUser(ctx, p.UserID); err != nil {
			return invalidReference("user_id", err)
		}
		return s.store.CreatePackage(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdatePackage changes the number or costs. Costs cannot change while the
// package's delivery is paid: the charge was computed from them.
func (s *Service) UpdatePackage(ctx context.Context, p Package) (*Package, error) {
	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		current, err := s.store.GetPackage(ctx, p.ID)
		if err != nil {
			return err
		}
		if p.UserID == "" {
			p.UserID = current.UserID
		}
		if p.UserID != current.UserID {
			return generic.Invalid("user_id", "cannot be changed after creation")
		}
		if err := p.Validate(); err != nil {
			return err
		}
		if !p.SameCosts(*current) {
			d, err := s.store.GetDeliveryByPackage(ctx, p.ID)
			if err != nil && !generic.IsNotFound(err) {
				return err
			}
			if d != nil && s.isPaid(d) {
				return generic.Invalid("costs", "package %s has a paid delivery", current.Number)
			}
		}
		p.CreatedAt = current.CreatedAt
		p.UpdatedAt = s.clock.Now()
		return s.store.UpdatePackage(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Service) GetPackage(ctx context.Context, id PackageID) (*Package, error) {
	return s.store.GetPackage(ctx, id)
}

func (s *Service) ListPackages(ctx context.Context, userID generic.UserID) ([]Package, error) {
	return s.store.ListPackages(ctx, userID)
}

// DeletePackage refuses while a delivery exists for the package.
func (s *Service) DeletePackage(ctx context.Context, id PackageID) error {
	return s.store.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.store.GetPackage(ctx, id); err != nil {
			return err
		}
		_, err := s.store.GetDeliveryByPackage(ctx, id)
		switch {
		case err == nil:
			return &generic.ProtectedDeletionError{Entity: "package", ID: string(id), Reason: "package has a delivery"}
		case !generic.IsNotFound(err):
			return err
		}
		return s.store.DeletePackage(ctx, id)
	})
}

// =============================================================================
// DELIVERIES
// =============================================================================

// CreateDelivery registers the delivery of a package in the default
// status, with the default transport company when none is given.
func (s *Service) CreateDelivery(ctx context.Context, d PackageDelivery) (*PackageDelivery, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	d.ID = DeliveryID(uuid.NewString())
	d.ShippingCostRub = decimal.Zero
	d.PriceRubForKg = decimal.Zero
	d.PaidAt = nil

	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.store.GetPackage(ctx, d.PackageID); err != nil {
			return invalidReference("package_id", err)
		}
		if err := s.resolveTransportCompany(ctx, &d); err != nil {
			return err
		}
		if _, err := s.transitions.Process(ctx, &d, false); err != nil {
			return err
		}
		d.CreatedAt = s.clock.Now()
		d.UpdatedAt = d.CreatedAt
		return s.store.CreateDelivery(ctx, d)
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"delivery_id": d.ID, "package_id": d.PackageID}).Info("delivery created")
	return &d, nil
}

func (s *Service) resolveTransportCompany(ctx context.Context, d *PackageDelivery) error {
	if d.TransportCompanyID == "" {
		c, err := s.store.GetDefaultTransportCompany(ctx)
		if err != nil {
			if generic.IsNotFound(err) {
				return generic.Invalid("transport_company_id", "is required: no default transport company")
			}
			return err
		}
		d.TransportCompanyID = c.ID
		return nil
	}
	if _, err := s.store.GetTransportCompany(ctx, d.TransportCompanyID); err != nil {
		return invalidReference("transport_company_id", err)
	}
	return nil
}

// SaveDelivery persists client edits and processes a status change.
// Weight cannot change while the delivery is paid; derived costs are owned
// by the strategies and never taken from d.
func (s *Service) SaveDelivery(ctx context.Context, d PackageDelivery, skip bool) (*PackageDelivery, error) {
	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		current, err := s.store.GetDeliveryForUpdate(ctx, d.ID)
		if err != nil {
			return err
		}
		if d.PackageID == "" {
			d.PackageID = current.PackageID
		}
		if d.PackageID != current.PackageID {
			return generic.Invalid("package_id", "cannot be changed after creation")
		}
		if s.isPaid(current) && !d.Weight.Equal(current.Weight) {
			return generic.Invalid("weight", "cannot be changed once the delivery is paid")
		}
		d.ShippingCostRub, d.PriceRubForKg, d.PaidAt = current.ShippingCostRub, current.PriceRubForKg, current.PaidAt
		d.CreatedAt = current.CreatedAt

		if err := d.Validate(); err != nil {
			return err
		}
		if err := s.resolveTransportCompany(ctx, &d); err != nil {
			return err
		}
		return s.save(ctx, &d, skip)
	})
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *Service) save(ctx context.Context, d *PackageDelivery, skip bool) error {
	if _, err := s.transitions.Process(ctx, d, skip); err != nil {
		return err
	}
	d.UpdatedAt = s.clock.Now()
	return s.store.UpdateDelivery(ctx, *d)
}

// ChangeStatus moves one delivery to the status with the given code.
func (s *Service) ChangeStatus(ctx context.Context, id DeliveryID, code generic.StatusCode, skip bool) (*PackageDelivery, error) {
	updated, err := s.BulkUpdateStatus(ctx, []DeliveryID{id}, code, skip)
	if err != nil {
		return nil, err
	}
	return &updated[0], nil
}

// BulkUpdateStatus moves every delivery to code in one transaction,
// all-or-nothing.
func (s *Service) BulkUpdateStatus(ctx context.Context, ids []DeliveryID, code generic.StatusCode, skip bool) ([]PackageDelivery, error) {
	if len(ids) == 0 {
		return nil, generic.Invalid("ids", "at least one delivery is required")
	}
	target, err := s.graph.StatusByCode(Group, code)
	if err != nil {
		return nil, generic.Invalid("status", "unknown delivery status %q", code)
	}

	updated := make([]PackageDelivery, 0, len(ids))
	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		for _, id := range ids {
			d, err := s.store.GetDeliveryForUpdate(ctx, id)
			if err != nil {
				return err
			}
			d.Status = target.ID
			if err := s.save(ctx, d, skip); err != nil {
				return err
			}
			updated = append(updated, *d)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"count": len(updated), "status": code, "skip": skip}).Info("delivery statuses updated")
	return updated, nil
}

func (s *Service) GetDelivery(ctx context.Context, id DeliveryID) (*PackageDelivery, error) {
	return s.store.GetDelivery(ctx, id)
}

func (s *Service) ListDeliveries(ctx context.Context, userID generic.UserID) ([]PackageDelivery, error) {
	return s.store.ListDeliveries(ctx, userID)
}

// DeleteDelivery refuses once the delivery is paid.
func (s *Service) DeleteDelivery(ctx context.Context, id DeliveryID) error {
	return s.store.RunInTx(ctx, func(ctx context.Context) error {
		d, err := s.store.GetDeliveryForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if s.isPaid(d) {
			return &generic.ProtectedDeletionError{Entity: "delivery", ID: string(id), Reason: "delivery is paid"}
		}
		return s.store.DeleteDelivery(ctx, id)
	})
}

// StatusCode returns the code of the delivery's current status.
func (s *Service) StatusCode(d *PackageDelivery) generic.StatusCode {
	st, err := s.graph.Status(d.Status)
	if err != nil {
		return ""
	}
	return st.Code
}

func (s *Service) isPaid(d *PackageDelivery) bool {
	return d.IsPaid() || s.StatusCode(d) == StatusPaid
}

func invalidReference(field string, err error) error {
	var nf *generic.NotFoundError
	if errors.As(err, &nf) {
		return generic.Invalid(field, "%s %s does not exist", nf.Entity, nf.ID)
	}
	return err
}
