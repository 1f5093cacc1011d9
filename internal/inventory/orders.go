package inventory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/ariefcatur/go-inventory-holds/internal/errors"
	"github.com/ariefcatur/go-inventory-holds/internal/logger"
)

// OrderManager is the multi-SKU checkout aggregate built on the same Ledger
// as ReservationManager.
type OrderManager struct {
	store     Store
	ledger    *Ledger
	publisher Publisher
	recorder  TransitionRecorder
	logg      *logger.Logger
	now       func() time.Time
	ttl       time.Duration
}

// Checkout holds stock for every line in one atomic unit. If any line fails
// the unit rolls back, so no partial holds and no order survive.
func (m *OrderManager) Checkout(ctx context.Context, userRef string, lines []LineRequest) (*Order, error) {
	userRef = strings.TrimSpace(userRef)
	if userRef == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user reference is required")
	}
	if len(lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order must contain at least one line")
	}
	resolved := make([]LineRequest, len(lines))
	for i, line := range lines {
		if line.Quantity <= 0 {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "quantity must be positive for %s, got %d", line.SKU, line.Quantity)
		}
		sku, err := m.ledger.ResolveSku(ctx, line.SKU)
		if err != nil {
			return nil, err
		}
		resolved[i] = LineRequest{SKU: sku, Quantity: line.Quantity}
	}

	now := m.now().UTC()
	var created Order
	err := m.store.WithTx(ctx, func(tx Tx) error {
		items := make([]OrderLine, len(resolved))
		for _, i := range lockOrder(resolved) {
			p, err := m.ledger.Reserve(ctx, tx, resolved[i].SKU, resolved[i].Quantity)
			if err != nil {
				return err
			}
			items[i] = OrderLine{
				SKU:             p.SKU,
				Quantity:        resolved[i].Quantity,
				PriceAtPurchase: p.UnitPrice(),
			}
		}
		total := decimal.Zero
		for _, it := range items {
			total = total.Add(it.LineTotal())
		}
		_, err := insertWithCode(func(code string) error {
			created = Order{
				ID:          code,
				UserRef:     userRef,
				Items:       items,
				TotalAmount: total,
				OrderDate:   now,
				ExpiresAt:   now.Add(m.ttl),
				Status:      OrderPending,
			}
			return tx.InsertOrder(ctx, &created)
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	m.emit(ctx, EventOrderCreated, created)
	return &created, nil
}

// Confirm commits the sale of every line of a PENDING order. An order past
// its deadline fails with EXPIRED and is left for cancel or the sweeper.
func (m *OrderManager) Confirm(ctx context.Context, id string) (*Order, error) {
	now := m.now().UTC()
	var out Order
	err := m.store.WithTx(ctx, func(tx Tx) error {
		o, err := lockOrderRow(ctx, tx, id)
		if err != nil {
			return err
		}
		if o.Status != OrderPending {
			return pkgerrors.Newf(pkgerrors.CodeInvalidState, "order %s is %s, not %s", o.ID, o.Status, OrderPending).
				WithDetails(map[string]string{"status": string(o.Status)})
		}
		if o.Expired(now) {
			return pkgerrors.Newf(pkgerrors.CodeExpired, "order %s expired at %s", o.ID, o.ExpiresAt.Format(time.RFC3339))
		}
		for _, i := range lockOrder(linesOf(o)) {
			if _, err := m.ledger.CommitSale(ctx, tx, o.Items[i].SKU, o.Items[i].Quantity); err != nil {
				return err
			}
		}
		if err := o.transition(OrderCompleted); err != nil {
			return err
		}
		if err := tx.UpdateOrderStatus(ctx, o.ID, o.Status); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update order")
		}
		out = *o
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.emit(ctx, EventOrderCompleted, out)
	return &out, nil
}

// Cancel releases every line of a PENDING order. Any other status is a no-op.
func (m *OrderManager) Cancel(ctx context.Context, id string) error {
	return m.release(ctx, id, OrderCancelled, false)
}

// Expire is Cancel for stale orders, ending in EXPIRED. Orders that are no
// longer PENDING or not yet past their deadline fail with INVALID_STATE.
func (m *OrderManager) Expire(ctx context.Context, id string) error {
	return m.release(ctx, id, OrderExpired, true)
}

func (m *OrderManager) release(ctx context.Context, id string, to OrderStatus, strict bool) error {
	now := m.now().UTC()
	var (
		out  Order
		noop bool
	)
	err := m.store.WithTx(ctx, func(tx Tx) error {
		o, err := lockOrderRow(ctx, tx, id)
		if err != nil {
			return err
		}
		if o.Status != OrderPending && !strict {
			noop = true
			return nil
		}
		if strict && o.Status == OrderPending && !o.Expired(now) {
			return pkgerrors.Newf(pkgerrors.CodeInvalidState, "order %s has not expired yet", o.ID)
		}
		if err := o.transition(to); err != nil {
			return err
		}
		for _, i := range lockOrder(linesOf(o)) {
			line := o.Items[i]
			released, err := m.ledger.Release(ctx, tx, line.SKU, line.Quantity)
			if err != nil {
				return err
			}
			if released < line.Quantity {
				logCtx := m.logg.WithFields(ctx, map[string]any{"order_id": o.ID, "sku": line.SKU, "released": released})
				m.logg.Warn(logCtx, "order line released less than its hold")
			}
		}
		if err := tx.UpdateOrderStatus(ctx, o.ID, o.Status); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update order")
		}
		out = *o
		return nil
	})
	if err != nil || noop {
		return err
	}
	eventType := EventOrderCancelled
	if to == OrderExpired {
		eventType = EventOrderExpired
	}
	m.emit(ctx, eventType, out)
	return nil
}

func (m *OrderManager) Get(ctx context.Context, id string) (*Order, error) {
	o, err := m.store.FindOrder(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "order", id)
	}
	return o, nil
}

func (m *OrderManager) List(ctx context.Context) ([]Order, error) {
	out, err := m.store.ListOrders(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}
	return out, nil
}

func (m *OrderManager) ListByUser(ctx context.Context, userRef string) ([]Order, error) {
	out, err := m.store.ListOrdersByUser(ctx, strings.TrimSpace(userRef))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders by user")
	}
	return out, nil
}

// Stale lists PENDING orders whose deadline is before now.
func (m *OrderManager) Stale(ctx context.Context) ([]Order, error) {
	out, err := m.store.StaleOrders(ctx, OrderPending, m.now().UTC())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "query stale orders")
	}
	return out, nil
}

func (m *OrderManager) emit(ctx context.Context, eventType string, o Order) {
	m.recorder.RecordTransition(AggregateOrder, string(o.Status))
	logCtx := m.logg.WithFields(ctx, map[string]any{
		"order_id": o.ID,
		"user_ref": o.UserRef,
		"lines":    len(o.Items),
		"status":   o.Status,
	})
	m.logg.Info(logCtx, "order "+string(o.Status))
	m.publisher.Publish(ctx, Event{
		Type:          eventType,
		AggregateType: AggregateOrder,
		AggregateID:   o.ID,
		OccurredAt:    m.now().UTC(),
		Payload:       orderPayload(o),
	})
}

func lockOrderRow(ctx context.Context, tx Tx, id string) (*Order, error) {
	o, err := tx.LockOrder(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "order", id)
	}
	return o, nil
}

func linesOf(o *Order) []LineRequest {
	out := make([]LineRequest, len(o.Items))
	for i, it := range o.Items {
		out[i] = LineRequest{SKU: it.SKU, Quantity: it.Quantity}
	}
	return out
}

// lockOrder returns line indices sorted by SKU. Every multi-line unit takes
// its row locks in this order so two of them can never wait on each other.
func lockOrder(lines []LineRequest) []int {
	idx := make([]int, len(lines))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return lines[idx[a]].SKU < lines[idx[b]].SKU
	})
	return idx
}
