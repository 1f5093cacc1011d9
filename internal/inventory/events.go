package inventory

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventReservationCreated   = "ReservationCreated"
	EventReservationConfirmed = "ReservationConfirmed"
	EventReservationCancelled = "ReservationCancelled"
	EventReservationExpired   = "ReservationExpired"
	EventOrderCreated         = "OrderCreated"
	EventOrderCompleted       = "OrderCompleted"
	EventOrderCancelled       = "OrderCancelled"
	EventOrderExpired         = "OrderExpired"
	EventStockAdjusted        = "StockAdjusted"
	EventProductCreated       = "ProductCreated"
	EventProductDeleted       = "ProductDeleted"
)

const (
	AggregateReservation = "reservation"
	AggregateOrder       = "order"
	AggregateProduct     = "product"
)

// Event is a domain fact emitted after its atomic unit has committed.
type Event struct {
	Type          string
	AggregateType string
	AggregateID   string
	OccurredAt    time.Time
	Payload       any
}

// Publisher fans events out to downstream consumers. Failures are the
// publisher's concern; the committed operation is never undone.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

// TransitionRecorder observes state-machine transitions for metrics.
type TransitionRecorder interface {
	RecordTransition(aggregate, status string)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) {}

type nopRecorder struct{}

func (nopRecorder) RecordTransition(string, string) {}

// ---- payloads ----

type ReservationPayload struct {
	ReservationID string            `json:"reservation_id"`
	SKU           string            `json:"sku"`
	Quantity      int               `json:"quantity"`
	Status        ReservationStatus `json:"status"`
	ExpiresAt     time.Time         `json:"expires_at"`
}

type OrderLinePayload struct {
	SKU             string          `json:"sku"`
	Quantity        int             `json:"quantity"`
	PriceAtPurchase decimal.Decimal `json:"price_at_purchase"`
}

type OrderPayload struct {
	OrderID     string             `json:"order_id"`
	UserRef     string             `json:"user_ref"`
	Status      OrderStatus        `json:"status"`
	TotalAmount decimal.Decimal    `json:"total_amount"`
	Items       []OrderLinePayload `json:"items,omitempty"`
}

type StockPayload struct {
	SKU                  string `json:"sku"`
	TotalQuantity        int    `json:"total_quantity"`
	ReservedQuantity     int    `json:"reserved_quantity"`
	SoldQuantity         int    `json:"sold_quantity"`
	DiscardedReservation int    `json:"discarded_reservations,omitempty"`
}

func reservationPayload(r Reservation) ReservationPayload {
	return ReservationPayload{
		ReservationID: r.ID,
		SKU:           r.SKU,
		Quantity:      r.Quantity,
		Status:        r.Status,
		ExpiresAt:     r.ExpiresAt,
	}
}

func orderPayload(o Order) OrderPayload {
	items := make([]OrderLinePayload, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, OrderLinePayload{SKU: it.SKU, Quantity: it.Quantity, PriceAtPurchase: it.PriceAtPurchase})
	}
	return OrderPayload{
		OrderID:     o.ID,
		UserRef:     o.UserRef,
		Status:      o.Status,
		TotalAmount: o.TotalAmount,
		Items:       items,
	}
}

func stockPayload(p Product) StockPayload {
	return StockPayload{
		SKU:              p.SKU,
		TotalQuantity:    p.TotalQuantity,
		ReservedQuantity: p.ReservedQuantity,
		SoldQuantity:     p.SoldQuantity,
	}
}
