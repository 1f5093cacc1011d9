package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	pkgerrors "github.com/ariefcatur/go-inventory-holds/internal/errors"
	"github.com/ariefcatur/go-inventory-holds/internal/logger"
)

const DefaultHoldTTL = 5 * time.Minute

// ServiceParams configure the inventory core.
type ServiceParams struct {
	Store     Store
	Logger    *logger.Logger
	Publisher Publisher
	Recorder  TransitionRecorder
	HoldTTL   time.Duration
	Now       func() time.Time
}

// Service is the surface upstream callers (HTTP layer, sweeper host) use.
type Service struct {
	store        Store
	logg         *logger.Logger
	publisher    Publisher
	now          func() time.Time
	ledger       *Ledger
	reservations *ReservationManager
	orders       *OrderManager
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("store required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	var publisher Publisher = nopPublisher{}
	if params.Publisher != nil {
		publisher = params.Publisher
	}
	var recorder TransitionRecorder = nopRecorder{}
	if params.Recorder != nil {
		recorder = params.Recorder
	}
	ttl := params.HoldTTL
	if ttl <= 0 {
		ttl = DefaultHoldTTL
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}

	ledger := NewLedger(params.Store, now)
	return &Service{
		store:     params.Store,
		logg:      logg,
		publisher: publisher,
		now:       now,
		ledger:    ledger,
		reservations: &ReservationManager{
			store:     params.Store,
			ledger:    ledger,
			publisher: publisher,
			recorder:  recorder,
			logg:      logg,
			now:       now,
			ttl:       ttl,
		},
		orders: &OrderManager{
			store:     params.Store,
			ledger:    ledger,
			publisher: publisher,
			recorder:  recorder,
			logg:      logg,
			now:       now,
			ttl:       ttl,
		},
	}, nil
}

func (s *Service) Ledger() *Ledger                   { return s.ledger }
func (s *Service) Reservations() *ReservationManager { return s.reservations }
func (s *Service) Orders() *OrderManager             { return s.orders }

// ---- reservations ----

func (s *Service) Reserve(ctx context.Context, rawSku string, qty int) (*Reservation, error) {
	return s.reservations.Reserve(ctx, rawSku, qty)
}

func (s *Service) ConfirmReservation(ctx context.Context, id string) (*Reservation, error) {
	return s.reservations.Confirm(ctx, id)
}

func (s *Service) CancelReservation(ctx context.Context, id string) error {
	return s.reservations.Cancel(ctx, id)
}

func (s *Service) GetReservation(ctx context.Context, id string) (*Reservation, error) {
	return s.reservations.Get(ctx, id)
}

// ---- orders ----

func (s *Service) Checkout(ctx context.Context, userRef string, lines []LineRequest) (*Order, error) {
	return s.orders.Checkout(ctx, userRef, lines)
}

func (s *Service) ConfirmOrder(ctx context.Context, id string) (*Order, error) {
	return s.orders.Confirm(ctx, id)
}

func (s *Service) CancelOrder(ctx context.Context, id string) error {
	return s.orders.Cancel(ctx, id)
}

func (s *Service) GetOrder(ctx context.Context, id string) (*Order, error) {
	return s.orders.Get(ctx, id)
}

func (s *Service) ListOrders(ctx context.Context) ([]Order, error) {
	return s.orders.List(ctx)
}

func (s *Service) ListOrdersByUser(ctx context.Context, userRef string) ([]Order, error) {
	return s.orders.ListByUser(ctx, userRef)
}

// ---- sweeper hooks ----

func (s *Service) StaleReservations(ctx context.Context) ([]Reservation, error) {
	return s.reservations.Stale(ctx)
}

func (s *Service) ExpireReservation(ctx context.Context, id string) error {
	return s.reservations.Expire(ctx, id)
}

func (s *Service) StaleOrders(ctx context.Context) ([]Order, error) {
	return s.orders.Stale(ctx)
}

func (s *Service) ExpireOrder(ctx context.Context, id string) error {
	return s.orders.Expire(ctx, id)
}

// ---- products ----

func (s *Service) GetProduct(ctx context.Context, rawSku string) (*Product, error) {
	sku, err := s.ledger.ResolveSku(ctx, rawSku)
	if err != nil {
		return nil, err
	}
	p, err := s.store.FindProduct(ctx, sku)
	if err != nil {
		return nil, notFoundOr(err, "product", sku)
	}
	return p, nil
}

func (s *Service) ListProducts(ctx context.Context) ([]Product, error) {
	out, err := s.store.ListProducts(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list products")
	}
	return out, nil
}

// CreateProduct adds a ledger row with nothing reserved or sold. SKUs are
// unique ignoring case.
func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (*Product, error) {
	sku := strings.TrimSpace(in.SKU)
	if sku == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sku is required")
	}
	if in.TotalQuantity < 0 {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "total quantity must not be negative, got %d", in.TotalQuantity)
	}
	if err := validatePrice(in.Price); err != nil {
		return nil, err
	}
	existing, err := s.store.FindProductsFold(ctx, sku)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check sku")
	}
	if len(existing) > 0 {
		return nil, pkgerrors.Newf(pkgerrors.CodeConflict, "product %s already exists", existing[0].SKU)
	}

	unit := strings.TrimSpace(in.Unit)
	if unit == "" {
		unit = DefaultUnit
	}
	now := s.now().UTC()
	p := Product{
		SKU:           sku,
		TotalQuantity: in.TotalQuantity,
		Price:         in.Price,
		Unit:          unit,
		ImageURL:      strings.TrimSpace(in.ImageURL),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err = s.store.WithTx(ctx, func(tx Tx) error {
		return tx.InsertProduct(ctx, &p)
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateKey) {
			return nil, pkgerrors.Newf(pkgerrors.CodeConflict, "product %s already exists", sku)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create product")
	}

	s.publishStock(ctx, EventProductCreated, p, 0)
	return &p, nil
}

// UpdateProduct is the administrative hard reset described on
// Ledger.AdjustStock.
func (s *Service) UpdateProduct(ctx context.Context, rawSku string, in ProductInput) (*Product, error) {
	sku, err := s.ledger.ResolveSku(ctx, rawSku)
	if err != nil {
		return nil, err
	}
	var (
		out       Product
		discarded int
	)
	err = s.store.WithTx(ctx, func(tx Tx) error {
		p, n, err := s.ledger.AdjustStock(ctx, tx, sku, in)
		if err != nil {
			return err
		}
		out, discarded = *p, n
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"sku":                    out.SKU,
		"total_quantity":         out.TotalQuantity,
		"discarded_reservations": discarded,
	})
	s.logg.Warn(logCtx, "stock adjusted; reserved quantity reset")
	s.publishStock(ctx, EventStockAdjusted, out, discarded)
	return &out, nil
}

// DeleteProduct removes the SKU together with its reservations. Products
// referenced by any order line fail with HAS_SALES_HISTORY and nothing changes.
func (s *Service) DeleteProduct(ctx context.Context, rawSku string) error {
	sku, err := s.ledger.ResolveSku(ctx, rawSku)
	if err != nil {
		return err
	}
	var out Product
	err = s.store.WithTx(ctx, func(tx Tx) error {
		p, err := s.ledger.lock(ctx, tx, sku)
		if err != nil {
			return err
		}
		if _, err := tx.DeleteReservationsBySKU(ctx, sku); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete reservations")
		}
		lines, err := tx.CountOrderLines(ctx, sku)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count order lines")
		}
		if lines > 0 {
			return pkgerrors.Newf(pkgerrors.CodeHasSalesHistory,
				"cannot delete product %s: it has existing sales history, mark it out of stock instead", sku)
		}
		if err := tx.DeleteProduct(ctx, sku); err != nil {
			return notFoundOr(err, "product", sku)
		}
		out = *p
		return nil
	})
	if err != nil {
		return err
	}
	s.publishStock(ctx, EventProductDeleted, out, 0)
	return nil
}

func (s *Service) publishStock(ctx context.Context, eventType string, p Product, discarded int) {
	payload := stockPayload(p)
	payload.DiscardedReservation = discarded
	s.publisher.Publish(ctx, Event{
		Type:          eventType,
		AggregateType: AggregateProduct,
		AggregateID:   p.SKU,
		OccurredAt:    s.now().UTC(),
		Payload:       payload,
	})
}
