package inventory

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrRowNotFound is returned by Store adapters when a keyed row is absent.
	ErrRowNotFound = errors.New("row not found")
	// ErrDuplicateKey is returned when an insert collides with an existing key.
	// Adapters must leave the surrounding transaction usable.
	ErrDuplicateKey = errors.New("duplicate key")
)

// Store is the durable, transactional key-addressable store the core runs on.
type Store interface {
	// WithTx runs fn as one atomic unit. Row locks taken through Tx are held
	// until fn returns; a non-nil error rolls every write back.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	FindProduct(ctx context.Context, sku string) (*Product, error)
	// FindProductsFold returns every product whose SKU equals sku ignoring case.
	FindProductsFold(ctx context.Context, sku string) ([]Product, error)
	ListProducts(ctx context.Context) ([]Product, error)

	FindReservation(ctx context.Context, id string) (*Reservation, error)
	// StaleReservations lists reservations with the given status and expiresAt < cutoff.
	StaleReservations(ctx context.Context, status ReservationStatus, cutoff time.Time) ([]Reservation, error)

	FindOrder(ctx context.Context, id string) (*Order, error)
	ListOrders(ctx context.Context) ([]Order, error)
	ListOrdersByUser(ctx context.Context, userRef string) ([]Order, error)
	StaleOrders(ctx context.Context, status OrderStatus, cutoff time.Time) ([]Order, error)
}

// Tx is the view of the store inside one atomic unit.
type Tx interface {
	// LockProduct reads the product row holding an exclusive lock on it.
	LockProduct(ctx context.Context, sku string) (*Product, error)
	InsertProduct(ctx context.Context, p *Product) error
	UpdateProduct(ctx context.Context, p *Product) error
	DeleteProduct(ctx context.Context, sku string) error
	CountOrderLines(ctx context.Context, sku string) (int, error)

	LockReservation(ctx context.Context, id string) (*Reservation, error)
	InsertReservation(ctx context.Context, r *Reservation) error
	UpdateReservationStatus(ctx context.Context, id string, status ReservationStatus) error
	DeleteReservationsBySKU(ctx context.Context, sku string) (int, error)

	LockOrder(ctx context.Context, id string) (*Order, error)
	InsertOrder(ctx context.Context, o *Order) error
	UpdateOrderStatus(ctx context.Context, id string, status OrderStatus) error
}
