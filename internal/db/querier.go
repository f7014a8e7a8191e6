// Package db is the storefront repository: models, the Querier contract, and its PostgreSQL
// and in-memory implementations.
package db

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("db: not found")
	// ErrConflict is returned when a write violates a uniqueness constraint.
	ErrConflict = errors.New("db: conflict")
)

// Querier is the full set of repository operations. Both implementations honour the same
// semantics, including the ForUpdate variants which lock the row for the enclosing transaction.
type Querier interface {
	ListProducts(ctx context.Context) ([]Product, error)
	GetProductsByNames(ctx context.Context, names []string) (map[string]Product, error)
	UpsertProduct(ctx context.Context, p Product) (Product, error)
	ReplaceProducts(ctx context.Context, products []Product) error
	DeleteProduct(ctx context.Context, name string) error
	ListCategories(ctx context.Context) ([]Category, error)
	ReplaceCategories(ctx context.Context, categories []Category) error

	ListCoupons(ctx context.Context) ([]Coupon, error)
	GetCouponByCode(ctx context.Context, code string) (Coupon, error)
	GetCouponByCodeForUpdate(ctx context.Context, code string) (Coupon, error)
	UpsertCoupon(ctx context.Context, c Coupon) (Coupon, error)
	ReplaceCoupons(ctx context.Context, coupons []Coupon) error
	IncrementCouponUsage(ctx context.Context, code string) error
	CountOrdersByUserAndCoupon(ctx context.Context, userID, code string) (int64, error)

	GetMember(ctx context.Context, userID string) (Member, error)
	GetMemberForUpdate(ctx context.Context, userID string) (Member, error)
	InsertMember(ctx context.Context, m Member) (Member, error)
	UpdateMember(ctx context.Context, m Member) (Member, error)
	ListMembers(ctx context.Context) ([]Member, error)

	InsertOrder(ctx context.Context, o Order) (Order, error)
	GetOrder(ctx context.Context, id int64) (Order, error)
	GetOrderForUpdate(ctx context.Context, id int64) (Order, error)
	UpdateOrder(ctx context.Context, o Order) (Order, error)
	ListOrders(ctx context.Context, f OrderFilter) ([]Order, error)
	ListOrdersCreatedBetween(ctx context.Context, from, to time.Time) ([]Order, error)

	GetStoreConfig(ctx context.Context) (StoreConfig, error)
	SaveStoreConfig(ctx context.Context, cfg StoreConfig) error
	IncrementProductPageViews(ctx context.Context, seed StoreConfig) (int64, error)
	GetAdminSettings(ctx context.Context) (AdminSettings, error)
	SaveAdminSettings(ctx context.Context, s AdminSettings) error

	SaveCart(ctx context.Context, userID string, items map[string]int) error
	InsertDomainEvent(ctx context.Context, e DomainEvent) error
}

// Store is a Querier that can also run a function inside one transaction. The Querier handed to
// fn must be used for every read and write that belongs to the unit of work.
type Store interface {
	Querier
	InTx(ctx context.Context, fn func(q Querier) error) error
	Ping(ctx context.Context) error
}
