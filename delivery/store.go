package delivery

import (
	"context"

	"github.com/warp/order-engine/generic"
)

// Store persists transport companies, packages and deliveries.
// Implemented by store/sqlite.
type Store interface {
	generic.Atomic

	// Transport companies. At most one row has IsDefault set; the store
	// rejects a second one with generic.ErrDuplicate.
	CreateTransportCompany(ctx context.Context, c TransportCompany) error
	GetTransportCompany(ctx context.Context, id TransportCompanyID) (*TransportCompany, error)
	GetDefaultTransportCompany(ctx context.Context) (*TransportCompany, error)
	ListTransportCompanies(ctx context.Context) ([]TransportCompany, error)
	SetDefaultTransportCompany(ctx context.Context, id TransportCompanyID) error
	ClearDefaultTransportCompany(ctx context.Context) error
	DeleteTransportCompany(ctx context.Context, id TransportCompanyID) error
	CountDeliveriesByTransportCompany(ctx context.Context, id TransportCompanyID) (int, error)

	// Packages. Create and Update return generic.ErrDuplicate on a taken
	// (user, number).
	CreatePackage(ctx context.Context, p Package) error
	UpdatePackage(ctx context.Context, p Package) error
	GetPackage(ctx context.Context, id PackageID) (*Package, error)
	ListPackages(ctx context.Context, userID generic.UserID) ([]Package, error)
	DeletePackage(ctx context.Context, id PackageID) error

	// Deliveries. CreateDelivery returns generic.ErrDuplicate when the
	// package already has one.
	CreateDelivery(ctx context.Context, d PackageDelivery) error
	UpdateDelivery(ctx context.Context, d PackageDelivery) error
	GetDelivery(ctx context.Context, id DeliveryID) (*PackageDelivery, error)
	GetDeliveryForUpdate(ctx context.Context, id DeliveryID) (*PackageDelivery, error)

	// GetDeliveryByPackage returns a *generic.NotFoundError when the
	// package has no delivery.
	GetDeliveryByPackage(ctx context.Context, id PackageID) (*PackageDelivery, error)
	ListDeliveries(ctx context.Context, userID generic.UserID) ([]PackageDelivery, error)
	DeleteDelivery(ctx context.Context, id DeliveryID) error
}
