package inventory_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/ariefcatur/go-inventory-holds/internal/errors"
	"github.com/ariefcatur/go-inventory-holds/internal/inventory"
	"github.com/ariefcatur/go-inventory-holds/internal/memstore"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []inventory.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev inventory.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

func (p *recordingPublisher) last() inventory.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events[len(p.events)-1]
}

type harness struct {
	t     *testing.T
	ctx   context.Context
	store *memstore.Store
	clock *clock
	pub   *recordingPublisher
	svc   *inventory.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:     t,
		ctx:   context.Background(),
		store: memstore.New(),
		clock: &clock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)},
		pub:   &recordingPublisher{},
	}
	svc, err := inventory.NewService(inventory.ServiceParams{
		Store:     h.store,
		Publisher: h.pub,
		Now:       h.clock.Now,
	})
	require.NoError(t, err)
	h.svc = svc
	return h
}

func (h *harness) product(sku string, total int, price string) {
	h.t.Helper()
	in := inventory.ProductInput{SKU: sku, TotalQuantity: total}
	if price != "" {
		in.Price = decimal.NewNullDecimal(decimal.RequireFromString(price))
	}
	_, err := h.svc.CreateProduct(h.ctx, in)
	require.NoError(h.t, err)
}

// ledger asserts total/reserved/sold for sku.
func (h *harness) ledger(sku string, total, reserved, sold int) {
	h.t.Helper()
	p, err := h.store.FindProduct(h.ctx, sku)
	require.NoError(h.t, err)
	require.Equal(h.t, total, p.TotalQuantity, "total %s", sku)
	require.Equal(h.t, reserved, p.ReservedQuantity, "reserved %s", sku)
	require.Equal(h.t, sold, p.SoldQuantity, "sold %s", sku)
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	require.True(t, pkgerrors.IsCode(err, code), "want %s, got %v", code, err)
}
