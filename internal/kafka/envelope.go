package kafka

import (
	"encoding/json"
	"time"

	"github.com/ariefcatur/go-inventory-holds/internal/inventory"
)

const (
	TopicReservations = "inventory.reservations"
	TopicOrders       = "inventory.orders"
	TopicStock        = "inventory.stock"
)

const EventVersion = 1

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// TopicFor routes an aggregate to its topic. Unknown aggregates go to the
// stock topic.
func TopicFor(aggregate string) string {
	switch aggregate {
	case inventory.AggregateReservation:
		return TopicReservations
	case inventory.AggregateOrder:
		return TopicOrders
	default:
		return TopicStock
	}
}

// PartitionKey keeps every event of one aggregate on one partition, in order.
func PartitionKey(aggregateID string) []byte { return []byte(aggregateID) }
