package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	pkgerrors "github.com/ariefcatur/go-inventory-holds/internal/errors"
	"github.com/ariefcatur/go-inventory-holds/internal/logger"
)

// ReservationManager brokers single-SKU holds with a fixed time-to-live.
type ReservationManager struct {
	store     Store
	ledger    *Ledger
	publisher Publisher
	recorder  TransitionRecorder
	logg      *logger.Logger
	now       func() time.Time
	ttl       time.Duration
}

// Reserve places a hold of qty units on the SKU named by rawSku.
func (m *ReservationManager) Reserve(ctx context.Context, rawSku string, qty int) (*Reservation, error) {
	if qty <= 0 {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "quantity must be positive, got %d", qty)
	}
	sku, err := m.ledger.ResolveSku(ctx, rawSku)
	if err != nil {
		return nil, err
	}

	now := m.now().UTC()
	var created Reservation
	err = m.store.WithTx(ctx, func(tx Tx) error {
		if _, err := m.ledger.Reserve(ctx, tx, sku, qty); err != nil {
			return err
		}
		_, err := insertWithCode(func(code string) error {
			created = Reservation{
				ID:         code,
				SKU:        sku,
				Quantity:   qty,
				ReservedAt: now,
				ExpiresAt:  now.Add(m.ttl),
				Status:     ReservationInProcess,
			}
			return tx.InsertReservation(ctx, &created)
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	m.emit(ctx, EventReservationCreated, created)
	return &created, nil
}

// Confirm turns an IN_PROCESS hold into a sale. A hold found past its
// deadline is cancelled (stock released) and reported as EXPIRED.
func (m *ReservationManager) Confirm(ctx context.Context, id string) (*Reservation, error) {
	now := m.now().UTC()
	sku, err := m.skuOf(ctx, id)
	if err != nil {
		return nil, err
	}
	var (
		out     Reservation
		expired bool
	)
	err = m.store.WithTx(ctx, func(tx Tx) error {
		r, err := lockHold(ctx, tx, id, sku)
		if err != nil {
			return err
		}
		if r.Status != ReservationInProcess {
			return pkgerrors.Newf(pkgerrors.CodeInvalidState, "reservation %s is %s, not %s", r.ID, r.Status, ReservationInProcess).
				WithDetails(map[string]string{"status": string(r.Status)})
		}
		if r.Expired(now) {
			if _, err := m.ledger.Release(ctx, tx, r.SKU, r.Quantity); err != nil {
				return err
			}
			if err := r.transition(ReservationCancelled); err != nil {
				return err
			}
			expired = true
		} else {
			if _, err := m.ledger.CommitSale(ctx, tx, r.SKU, r.Quantity); err != nil {
				return err
			}
			if err := r.transition(ReservationConfirmed); err != nil {
				return err
			}
		}
		if err := tx.UpdateReservationStatus(ctx, r.ID, r.Status); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update reservation")
		}
		out = *r
		return nil
	})
	if err != nil {
		return nil, err
	}
	if expired {
		m.emit(ctx, EventReservationCancelled, out)
		return nil, pkgerrors.Newf(pkgerrors.CodeExpired, "reservation %s expired at %s", out.ID, out.ExpiresAt.Format(time.RFC3339))
	}
	m.emit(ctx, EventReservationConfirmed, out)
	return &out, nil
}

// Cancel releases an IN_PROCESS hold or refunds a CONFIRMED sale. Cancelling
// a CANCELLED or EXPIRED reservation is a no-op.
func (m *ReservationManager) Cancel(ctx context.Context, id string) error {
	sku, err := m.skuOf(ctx, id)
	if err != nil {
		return err
	}
	var (
		out  Reservation
		noop bool
	)
	err = m.store.WithTx(ctx, func(tx Tx) error {
		r, err := lockHold(ctx, tx, id, sku)
		if err != nil {
			return err
		}
		switch r.Status {
		case ReservationCancelled, ReservationExpired:
			noop = true
			return nil
		case ReservationConfirmed:
			if _, err := m.ledger.ReverseSale(ctx, tx, r.SKU, r.Quantity); err != nil {
				return err
			}
		default:
			if _, err := m.ledger.Release(ctx, tx, r.SKU, r.Quantity); err != nil {
				return err
			}
		}
		if err := r.transition(ReservationCancelled); err != nil {
			return err
		}
		if err := tx.UpdateReservationStatus(ctx, r.ID, r.Status); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update reservation")
		}
		out = *r
		return nil
	})
	if err != nil || noop {
		return err
	}
	m.emit(ctx, EventReservationCancelled, out)
	return nil
}

// Expire forces a stale IN_PROCESS hold to EXPIRED, releasing its stock.
// Holds that changed state or are not yet past their deadline fail with
// INVALID_STATE so a racing confirm/cancel always wins cleanly.
func (m *ReservationManager) Expire(ctx context.Context, id string) error {
	now := m.now().UTC()
	sku, err := m.skuOf(ctx, id)
	if err != nil {
		return err
	}
	var out Reservation
	err = m.store.WithTx(ctx, func(tx Tx) error {
		r, err := lockHold(ctx, tx, id, sku)
		if err != nil {
			return err
		}
		if r.Status == ReservationInProcess && !r.Expired(now) {
			return pkgerrors.Newf(pkgerrors.CodeInvalidState, "reservation %s has not expired yet", r.ID)
		}
		if err := r.transition(ReservationExpired); err != nil {
			return err
		}
		released, err := m.ledger.Release(ctx, tx, r.SKU, r.Quantity)
		if err != nil {
			return err
		}
		if released < r.Quantity {
			logCtx := m.logg.WithFields(ctx, map[string]any{"reservation_id": r.ID, "sku": r.SKU, "released": released})
			m.logg.Warn(logCtx, "expired reservation released less than its hold")
		}
		if err := tx.UpdateReservationStatus(ctx, r.ID, r.Status); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update reservation")
		}
		out = *r
		return nil
	})
	if err != nil {
		return err
	}
	m.emit(ctx, EventReservationExpired, out)
	return nil
}

func (m *ReservationManager) Get(ctx context.Context, id string) (*Reservation, error) {
	r, err := m.store.FindReservation(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "reservation", id)
	}
	return r, nil
}

// Stale lists IN_PROCESS reservations whose deadline is before now.
func (m *ReservationManager) Stale(ctx context.Context) ([]Reservation, error) {
	out, err := m.store.StaleReservations(ctx, ReservationInProcess, m.now().UTC())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "query stale reservations")
	}
	return out, nil
}

func (m *ReservationManager) emit(ctx context.Context, eventType string, r Reservation) {
	m.recorder.RecordTransition(AggregateReservation, string(r.Status))
	logCtx := m.logg.WithFields(ctx, map[string]any{
		"reservation_id": r.ID,
		"sku":            r.SKU,
		"quantity":       r.Quantity,
		"status":         r.Status,
	})
	m.logg.Info(logCtx, "reservation "+string(r.Status))
	m.publisher.Publish(ctx, Event{
		Type:          eventType,
		AggregateType: AggregateReservation,
		AggregateID:   r.ID,
		OccurredAt:    m.now().UTC(),
		Payload:       reservationPayload(r),
	})
}

// skuOf reads the reservation's SKU ahead of the unit. A reservation never
// changes SKU, so the value stays valid once its row is locked.
func (m *ReservationManager) skuOf(ctx context.Context, id string) (string, error) {
	r, err := m.store.FindReservation(ctx, id)
	if err != nil {
		return "", notFoundOr(err, "reservation", id)
	}
	return r.SKU, nil
}

// lockHold locks the product row before the reservation row. AdjustStock and
// DeleteProduct take the product first and then the SKU's reservations, so
// every unit touching a reservation acquires locks in the same order.
func lockHold(ctx context.Context, tx Tx, id, sku string) (*Reservation, error) {
	if _, err := tx.LockProduct(ctx, sku); err != nil {
		if errors.Is(err, ErrRowNotFound) {
			return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "reservation not found: %s", id)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, fmt.Sprintf("lock product %s", sku))
	}
	r, err := tx.LockReservation(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "reservation", id)
	}
	return r, nil
}

// insertWithCode retries insert with a fresh code on key collision.
func insertWithCode(insert func(code string) error) (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code := NewCode()
		err := insert(code)
		if err == nil {
			return code, nil
		}
		if !errors.Is(err, ErrDuplicateKey) {
			return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "insert")
		}
	}
	return "", pkgerrors.New(pkgerrors.CodeInternal, "could not mint a unique id")
}

func notFoundOr(err error, kind, id string) error {
	if errors.Is(err, ErrRowNotFound) {
		return pkgerrors.Newf(pkgerrors.CodeNotFound, "%s not found: %s", kind, id)
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load "+kind)
}
