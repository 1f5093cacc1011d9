package memstore

import (
	"context"
	"strings"

	"github.com/ariefcatur/go-inventory-holds/internal/inventory"
)

const (
	productKey     = "product:"
	skuFoldKey     = "sku-fold:"
	reservationKey = "reservation:"
	orderKey       = "order:"
)

// tx stages writes; a nil map value marks a deletion.
type tx struct {
	s    *Store
	held []string
	has  map[string]bool

	products     map[string]*inventory.Product
	reservations map[string]*inventory.Reservation
	orders       map[string]*inventory.Order
	dropBySKU    []string
}

func newTx(s *Store) *tx {
	return &tx{
		s:            s,
		has:          make(map[string]bool),
		products:     make(map[string]*inventory.Product),
		reservations: make(map[string]*inventory.Reservation),
		orders:       make(map[string]*inventory.Order),
	}
}

// lock is re-entrant within one unit.
func (t *tx) lock(ctx context.Context, key string) error {
	if t.has[key] {
		return nil
	}
	if err := t.s.locks.acquire(ctx, key); err != nil {
		return err
	}
	t.has[key] = true
	t.held = append(t.held, key)
	return nil
}

func (t *tx) releaseLocks() {
	for i := len(t.held) - 1; i >= 0; i-- {
		t.s.locks.release(t.held[i])
	}
	t.held = nil
}

func (t *tx) commit() {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, sku := range t.dropBySKU {
		for id, r := range t.s.reservations {
			if r.SKU == sku {
				delete(t.s.reservations, id)
			}
		}
	}
	for sku, p := range t.products {
		if p == nil {
			delete(t.s.products, sku)
			continue
		}
		t.s.products[sku] = *p
	}
	for id, r := range t.reservations {
		if r == nil {
			delete(t.s.reservations, id)
			continue
		}
		t.s.reservations[id] = *r
	}
	for id, o := range t.orders {
		t.s.orders[id] = o.Clone()
	}
}

// ---- products ----

func (t *tx) LockProduct(ctx context.Context, sku string) (*inventory.Product, error) {
	if err := t.lock(ctx, productKey+sku); err != nil {
		return nil, err
	}
	if p, ok := t.products[sku]; ok {
		if p == nil {
			return nil, inventory.ErrRowNotFound
		}
		cp := *p
		return &cp, nil
	}
	t.s.mu.RLock()
	p, ok := t.s.products[sku]
	t.s.mu.RUnlock()
	if !ok {
		return nil, inventory.ErrRowNotFound
	}
	return &p, nil
}

// InsertProduct keeps SKUs unique ignoring case. Inserts serialize on the
// folded SKU so two case variants cannot both pass the check.
func (t *tx) InsertProduct(ctx context.Context, p *inventory.Product) error {
	if err := t.lock(ctx, skuFoldKey+strings.ToLower(p.SKU)); err != nil {
		return err
	}
	if err := t.lock(ctx, productKey+p.SKU); err != nil {
		return err
	}
	for sku, staged := range t.products {
		if staged != nil && strings.EqualFold(sku, p.SKU) {
			return inventory.ErrDuplicateKey
		}
	}
	t.s.mu.RLock()
	exists := false
	for sku := range t.s.products {
		if strings.EqualFold(sku, p.SKU) {
			if staged, ok := t.products[sku]; ok && staged == nil {
				continue
			}
			exists = true
			break
		}
	}
	t.s.mu.RUnlock()
	if exists {
		return inventory.ErrDuplicateKey
	}
	cp := *p
	t.products[p.SKU] = &cp
	return nil
}

func (t *tx) UpdateProduct(ctx context.Context, p *inventory.Product) error {
	if _, err := t.LockProduct(ctx, p.SKU); err != nil {
		return err
	}
	cp := *p
	t.products[p.SKU] = &cp
	return nil
}

func (t *tx) DeleteProduct(ctx context.Context, sku string) error {
	if _, err := t.LockProduct(ctx, sku); err != nil {
		return err
	}
	t.products[sku] = nil
	return nil
}

func (t *tx) CountOrderLines(_ context.Context, sku string) (int, error) {
	count := 0
	t.s.mu.RLock()
	for id, o := range t.s.orders {
		if _, staged := t.orders[id]; staged {
			continue
		}
		count += linesFor(o, sku)
	}
	t.s.mu.RUnlock()
	for _, o := range t.orders {
		count += linesFor(*o, sku)
	}
	return count, nil
}

func linesFor(o inventory.Order, sku string) int {
	n := 0
	for _, it := range o.Items {
		if it.SKU == sku {
			n++
		}
	}
	return n
}

// ---- reservations ----

func (t *tx) LockReservation(ctx context.Context, id string) (*inventory.Reservation, error) {
	if err := t.lock(ctx, reservationKey+id); err != nil {
		return nil, err
	}
	if r, ok := t.reservations[id]; ok {
		if r == nil {
			return nil, inventory.ErrRowNotFound
		}
		cp := *r
		return &cp, nil
	}
	t.s.mu.RLock()
	r, ok := t.s.reservations[id]
	t.s.mu.RUnlock()
	if !ok || t.dropped(r.SKU) {
		return nil, inventory.ErrRowNotFound
	}
	return &r, nil
}

// InsertReservation checks for the key before locking it so a collision with
// a row another unit holds never waits.
func (t *tx) InsertReservation(ctx context.Context, r *inventory.Reservation) error {
	if staged, ok := t.reservations[r.ID]; ok && staged != nil {
		return inventory.ErrDuplicateKey
	}
	if t.s.hasReservation(r.ID) {
		return inventory.ErrDuplicateKey
	}
	if err := t.lock(ctx, reservationKey+r.ID); err != nil {
		return err
	}
	if t.s.hasReservation(r.ID) {
		return inventory.ErrDuplicateKey
	}
	cp := *r
	t.reservations[r.ID] = &cp
	return nil
}

func (t *tx) UpdateReservationStatus(ctx context.Context, id string, status inventory.ReservationStatus) error {
	r, err := t.LockReservation(ctx, id)
	if err != nil {
		return err
	}
	r.Status = status
	t.reservations[id] = r
	return nil
}

func (t *tx) DeleteReservationsBySKU(_ context.Context, sku string) (int, error) {
	count := 0
	t.s.mu.RLock()
	for id, r := range t.s.reservations {
		if r.SKU != sku {
			continue
		}
		if _, staged := t.reservations[id]; !staged {
			count++
		}
	}
	t.s.mu.RUnlock()
	for id, r := range t.reservations {
		if r != nil && r.SKU == sku {
			t.reservations[id] = nil
			count++
		}
	}
	if !t.dropped(sku) {
		t.dropBySKU = append(t.dropBySKU, sku)
	}
	return count, nil
}

func (t *tx) dropped(sku string) bool {
	for _, s := range t.dropBySKU {
		if s == sku {
			return true
		}
	}
	return false
}

// ---- orders ----

func (t *tx) LockOrder(ctx context.Context, id string) (*inventory.Order, error) {
	if err := t.lock(ctx, orderKey+id); err != nil {
		return nil, err
	}
	if o, ok := t.orders[id]; ok {
		cp := o.Clone()
		return &cp, nil
	}
	t.s.mu.RLock()
	o, ok := t.s.orders[id]
	t.s.mu.RUnlock()
	if !ok {
		return nil, inventory.ErrRowNotFound
	}
	cp := o.Clone()
	return &cp, nil
}

func (t *tx) InsertOrder(ctx context.Context, o *inventory.Order) error {
	if _, ok := t.orders[o.ID]; ok {
		return inventory.ErrDuplicateKey
	}
	if t.s.hasOrder(o.ID) {
		return inventory.ErrDuplicateKey
	}
	if err := t.lock(ctx, orderKey+o.ID); err != nil {
		return err
	}
	if t.s.hasOrder(o.ID) {
		return inventory.ErrDuplicateKey
	}
	cp := o.Clone()
	t.orders[o.ID] = &cp
	return nil
}

func (t *tx) UpdateOrderStatus(ctx context.Context, id string, status inventory.OrderStatus) error {
	o, err := t.LockOrder(ctx, id)
	if err != nil {
		return err
	}
	o.Status = status
	t.orders[id] = o
	return nil
}
