package orders

import (
	"context"

	"github.com/warp/order-engine/delivery"
	"github.com/warp/order-engine/generic"
)

// Store persists sites, orders and package links. Implemented by
// store/sqlite.
type Store interface {
	generic.Atomic

	// Sites. Create and Update return generic.ErrDuplicate on a taken name or URL.
	CreateSite(ctx context.Context, s Site) error
	UpdateSite(ctx context.Context, s Site) error
	GetSite(ctx context.Context, id SiteID) (*Site, error)
	ListSites(ctx context.Context) ([]Site, error)
	DeleteSite(ctx context.Context, id SiteID) error
	CountOrdersBySite(ctx context.Context, id SiteID) (int, error)

	// Orders. Create and Update return generic.ErrDuplicate on a taken number.
	CreateOrder(ctx context.Context, o Order) error
	UpdateOrder(ctx context.Context, o Order) error
	GetOrder(ctx context.Context, id OrderID) (*Order, error)

	// GetOrderForUpdate locks the row until the transaction ends where
	// the database supports it.
	GetOrderForUpdate(ctx context.Context, id OrderID) (*Order, error)
	ListOrders(ctx context.Context, userID generic.UserID) ([]Order, error)
	DeleteOrder(ctx context.Context, id OrderID) error

	// Package links. CreatePackageOrder returns generic.ErrDuplicate when
	// the order is already in the package.
	GetPackage(ctx context.Context, id delivery.PackageID) (*delivery.Package, error)
	CreatePackageOrder(ctx context.Context, po PackageOrder) error
	ListPackageOrders(ctx context.Context, packageID delivery.PackageID) ([]PackageOrder, error)
	CountPackageOrdersByOrder(ctx context.Context, id OrderID) (int, error)
}
