package kafka

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/ariefcatur/go-inventory-holds/internal/inventory"
	"github.com/ariefcatur/go-inventory-holds/internal/logger"
)

// EventPublisher turns inventory events into versioned envelopes on the
// aggregate's topic.
type EventPublisher struct {
	producer *Producer
	service  string
	logg     *logger.Logger
}

func NewEventPublisher(producer *Producer, service string, logg *logger.Logger) *EventPublisher {
	if logg == nil {
		logg = logger.Nop()
	}
	return &EventPublisher{producer: producer, service: service, logg: logg}
}

func (p *EventPublisher) Publish(ctx context.Context, ev inventory.Event) {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		p.logg.Error(p.logg.WithField(ctx, "event_type", ev.Type), "encode event payload", err)
		return
	}
	env := Envelope{
		EventID:       uuid.NewString(),
		EventType:     ev.Type,
		EventVersion:  EventVersion,
		OccurredAt:    ev.OccurredAt.UTC(),
		Producer:      p.service,
		TraceID:       middleware.GetReqID(ctx),
		CorrelationID: ev.AggregateID,
		Payload:       payload,
	}
	value, err := json.Marshal(env)
	if err != nil {
		p.logg.Error(p.logg.WithField(ctx, "event_type", ev.Type), "encode event envelope", err)
		return
	}
	p.producer.Publish(ctx, TopicFor(ev.AggregateType), PartitionKey(ev.AggregateID), value,
		kafka.Header{Key: "x-event-type", Value: []byte(ev.Type)},
		kafka.Header{Key: "x-event-version", Value: []byte(strconv.Itoa(EventVersion))},
	)
}
