package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/ariefcatur/go-inventory-holds/internal/errors"
)

// Ledger owns the per-SKU quantity counters. Every mutation runs inside the
// caller's Tx after taking the SKU's exclusive row lock, so reservations and
// orders share one implementation of the available-quantity invariant.
type Ledger struct {
	store Store
	now   func() time.Time
}

func NewLedger(store Store, now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{store: store, now: now}
}

// ResolveSku maps caller-supplied SKU text to the stored SKU: exact match
// first, then a single case-insensitive match of the trimmed input. It runs
// before any lock is taken.
func (l *Ledger) ResolveSku(ctx context.Context, raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", pkgerrors.New(pkgerrors.CodeNotFound, "product not found: empty sku")
	}
	p, err := l.store.FindProduct(ctx, raw)
	switch {
	case err == nil:
		return p.SKU, nil
	case !errors.Is(err, ErrRowNotFound):
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolve sku")
	}

	matches, err := l.store.FindProductsFold(ctx, trimmed)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolve sku")
	}
	switch len(matches) {
	case 1:
		return matches[0].SKU, nil
	case 0:
		return "", pkgerrors.Newf(pkgerrors.CodeNotFound, "product not found: %s", raw)
	default:
		return "", pkgerrors.Newf(pkgerrors.CodeNotFound, "product not found: %s matches %d skus", raw, len(matches))
	}
}

// Reserve increments reservedQuantity by qty.
func (l *Ledger) Reserve(ctx context.Context, tx Tx, sku string, qty int) (*Product, error) {
	if qty <= 0 {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "quantity must be positive, got %d", qty)
	}
	p, err := l.lock(ctx, tx, sku)
	if err != nil {
		return nil, err
	}
	if available := p.Available(); available < qty {
		return nil, pkgerrors.Newf(pkgerrors.CodeInsufficientStock, "insufficient stock for %s", sku).
			WithDetails(map[string]any{"sku": sku, "requested": qty, "available": available})
	}
	p.ReservedQuantity += qty
	if err := l.save(ctx, tx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Release decrements reservedQuantity by qty and returns how much was
// actually released. A hold larger than reservedQuantity (possible only after
// an administrative stock reset) is clamped at zero.
func (l *Ledger) Release(ctx context.Context, tx Tx, sku string, qty int) (int, error) {
	p, err := l.lock(ctx, tx, sku)
	if err != nil {
		return 0, err
	}
	released := min(qty, p.ReservedQuantity)
	if released < 0 {
		released = 0
	}
	p.ReservedQuantity -= released
	if err := l.save(ctx, tx, p); err != nil {
		return 0, err
	}
	return released, nil
}

// CommitSale converts a hold into a sale: total and reserved drop by qty,
// sold grows by qty. It is the only operation that permanently removes stock.
func (l *Ledger) CommitSale(ctx context.Context, tx Tx, sku string, qty int) (*Product, error) {
	p, err := l.lock(ctx, tx, sku)
	if err != nil {
		return nil, err
	}
	if p.TotalQuantity < qty {
		return nil, pkgerrors.Newf(pkgerrors.CodeInsufficientStock, "insufficient stock for %s", sku).
			WithDetails(map[string]any{"sku": sku, "requested": qty, "total": p.TotalQuantity})
	}
	p.TotalQuantity -= qty
	p.ReservedQuantity -= min(qty, p.ReservedQuantity)
	p.SoldQuantity += qty
	if err := l.save(ctx, tx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// ReverseSale undoes a confirmed sale (refund path).
func (l *Ledger) ReverseSale(ctx context.Context, tx Tx, sku string, qty int) (*Product, error) {
	p, err := l.lock(ctx, tx, sku)
	if err != nil {
		return nil, err
	}
	if p.SoldQuantity < qty {
		return nil, pkgerrors.Newf(pkgerrors.CodeInternal, "sold quantity underflow for %s: sold=%d refund=%d", sku, p.SoldQuantity, qty)
	}
	p.TotalQuantity += qty
	p.SoldQuantity -= qty
	if err := l.save(ctx, tx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// AdjustStock is the administrative hard reset: totalQuantity becomes
// in.TotalQuantity, reservedQuantity drops to zero and every reservation row
// for the SKU is discarded. In-flight holds are intentionally not honoured;
// pending order lines for the SKU keep their status and later release into
// a clamped counter.
func (l *Ledger) AdjustStock(ctx context.Context, tx Tx, sku string, in ProductInput) (*Product, int, error) {
	if in.TotalQuantity < 0 {
		return nil, 0, pkgerrors.Newf(pkgerrors.CodeValidation, "total quantity must not be negative, got %d", in.TotalQuantity)
	}
	if err := validatePrice(in.Price); err != nil {
		return nil, 0, err
	}
	p, err := l.lock(ctx, tx, sku)
	if err != nil {
		return nil, 0, err
	}
	p.TotalQuantity = in.TotalQuantity
	p.ReservedQuantity = 0
	discarded, err := tx.DeleteReservationsBySKU(ctx, sku)
	if err != nil {
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "discard reservations")
	}
	if in.ImageURL != "" {
		p.ImageURL = in.ImageURL
	}
	if in.Price.Valid {
		p.Price = in.Price
	}
	if in.Unit != "" {
		p.Unit = in.Unit
	}
	if err := l.save(ctx, tx, p); err != nil {
		return nil, 0, err
	}
	return p, discarded, nil
}

// validatePrice accepts nil or a non-negative price with at most PriceScale
// decimal places, the precision the durable store keeps.
func validatePrice(price decimal.NullDecimal) error {
	if !price.Valid {
		return nil
	}
	if price.Decimal.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "price must not be negative")
	}
	if !price.Decimal.Equal(price.Decimal.Round(PriceScale)) {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "price must have at most %d decimal places, got %s", PriceScale, price.Decimal)
	}
	return nil
}

func (l *Ledger) lock(ctx context.Context, tx Tx, sku string) (*Product, error) {
	p, err := tx.LockProduct(ctx, sku)
	if err != nil {
		if errors.Is(err, ErrRowNotFound) {
			return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "product not found: %s", sku)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, fmt.Sprintf("lock product %s", sku))
	}
	return p, nil
}

func (l *Ledger) save(ctx context.Context, tx Tx, p *Product) error {
	if p.ReservedQuantity < 0 || p.ReservedQuantity > p.TotalQuantity || p.SoldQuantity < 0 {
		return pkgerrors.Newf(pkgerrors.CodeInternal, "ledger invariant violated for %s: total=%d reserved=%d sold=%d",
			p.SKU, p.TotalQuantity, p.ReservedQuantity, p.SoldQuantity)
	}
	p.UpdatedAt = l.now().UTC()
	if err := tx.UpdateProduct(ctx, p); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, fmt.Sprintf("update product %s", p.SKU))
	}
	return nil
}
