package kafka

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ariefcatur/go-inventory-holds/internal/logger"
)

const writeTimeout = 10 * time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer buffers messages in an inbox and writes them from a single
// goroutine, so callers on the request path never wait on the broker.
type Producer struct {
	w    messageWriter
	logg *logger.Logger

	mu     sync.RWMutex
	closed bool
	inbox  chan kafka.Message
	done   chan struct{}
}

// NewProducer writes to whatever topic each message names.
func NewProducer(brokers []string, buf int, logg *logger.Logger) *Producer {
	return newProducer(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}, buf, logg)
}

func newProducer(w messageWriter, buf int, logg *logger.Logger) *Producer {
	if buf <= 0 {
		buf = 1
	}
	if logg == nil {
		logg = logger.Nop()
	}
	p := &Producer{
		w:     w,
		logg:  logg,
		inbox: make(chan kafka.Message, buf),
		done:  make(chan struct{}),
	}
	go p.loop()
	return p
}

func (p *Producer) loop() {
	defer close(p.done)
	for m := range p.inbox {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := p.w.WriteMessages(ctx, m)
		cancel()
		if err != nil {
			logCtx := p.logg.WithFields(context.Background(), map[string]any{
				"topic": m.Topic,
				"key":   string(m.Key),
			})
			p.logg.Error(logCtx, "kafka write failed", err)
		}
	}
	if err := p.w.Close(); err != nil {
		p.logg.Error(context.Background(), "kafka writer close failed", err)
	}
}

// Publish enqueues a message. It reports false when the producer is closed
// or the inbox is full; the message is dropped in both cases.
func (p *Producer) Publish(ctx context.Context, topic string, key, value []byte, headers ...kafka.Header) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	msg := kafka.Message{
		Topic:   topic,
		Key:     key,
		Value:   value,
		Time:    time.Now(),
		Headers: headers,
	}
	select {
	case p.inbox <- msg:
		return true
	default:
		p.logg.Warn(p.logg.WithField(ctx, "topic", topic), "kafka inbox full; event dropped")
		return false
	}
}

// Close stops accepting messages, flushes the inbox and waits for the
// writer to shut down.
func (p *Producer) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.inbox)
	}
	p.mu.Unlock()
	<-p.done
}
