// Package memstore is an in-process inventory.Store. Row locks are per-key
// semaphores held until the unit ends; writes are staged and applied to the
// shared maps in one critical section at commit.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ariefcatur/go-inventory-holds/internal/inventory"
)

type Store struct {
	mu           sync.RWMutex
	products     map[string]inventory.Product
	reservations map[string]inventory.Reservation
	orders       map[string]inventory.Order
	locks        *keyedLocks
}

func New() *Store {
	return &Store{
		products:     make(map[string]inventory.Product),
		reservations: make(map[string]inventory.Reservation),
		orders:       make(map[string]inventory.Order),
		locks:        newKeyedLocks(),
	}
}

func (s *Store) WithTx(ctx context.Context, fn func(tx inventory.Tx) error) error {
	t := newTx(s)
	defer t.releaseLocks()
	if err := fn(t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	t.commit()
	return nil
}

func (s *Store) FindProduct(_ context.Context, sku string) (*inventory.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[sku]
	if !ok {
		return nil, inventory.ErrRowNotFound
	}
	return &p, nil
}

func (s *Store) FindProductsFold(_ context.Context, sku string) ([]inventory.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []inventory.Product
	for key, p := range s.products {
		if strings.EqualFold(key, sku) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out, nil
}

func (s *Store) ListProducts(_ context.Context) ([]inventory.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]inventory.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out, nil
}

func (s *Store) FindReservation(_ context.Context, id string) (*inventory.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reservations[id]
	if !ok {
		return nil, inventory.ErrRowNotFound
	}
	return &r, nil
}

func (s *Store) StaleReservations(_ context.Context, status inventory.ReservationStatus, cutoff time.Time) ([]inventory.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []inventory.Reservation
	for _, r := range s.reservations {
		if r.Status == status && r.ExpiresAt.Before(cutoff) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return out, nil
}

func (s *Store) FindOrder(_ context.Context, id string) (*inventory.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, inventory.ErrRowNotFound
	}
	out := o.Clone()
	return &out, nil
}

func (s *Store) ListOrders(_ context.Context) ([]inventory.Order, error) {
	return s.filterOrders(func(inventory.Order) bool { return true }, newestFirst), nil
}

func (s *Store) ListOrdersByUser(_ context.Context, userRef string) ([]inventory.Order, error) {
	return s.filterOrders(func(o inventory.Order) bool { return o.UserRef == userRef }, newestFirst), nil
}

func (s *Store) StaleOrders(_ context.Context, status inventory.OrderStatus, cutoff time.Time) ([]inventory.Order, error) {
	return s.filterOrders(func(o inventory.Order) bool {
		return o.Status == status && o.ExpiresAt.Before(cutoff)
	}, func(a, b inventory.Order) bool { return a.ExpiresAt.Before(b.ExpiresAt) }), nil
}

func (s *Store) filterOrders(keep func(inventory.Order) bool, less func(a, b inventory.Order) bool) []inventory.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []inventory.Order
	for _, o := range s.orders {
		if keep(o) {
			out = append(out, o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func newestFirst(a, b inventory.Order) bool {
	if a.OrderDate.Equal(b.OrderDate) {
		return a.ID < b.ID
	}
	return a.OrderDate.After(b.OrderDate)
}

func (s *Store) hasReservation(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.reservations[id]
	return ok
}

func (s *Store) hasOrder(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.orders[id]
	return ok
}
