package inventory_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	pkgerrors "github.com/ariefcatur/go-inventory-holds/internal/errors"
	"github.com/ariefcatur/go-inventory-holds/internal/inventory"
)

func TestWidgetScenario(t *testing.T) {
	h := newHarness(t)
	h.product("WIDGET", 10, "")

	r, err := h.svc.Reserve(h.ctx, "WIDGET", 4)
	require.NoError(t, err)
	require.Equal(t, 4, r.Quantity)
	require.Equal(t, inventory.ReservationInProcess, r.Status)
	require.Regexp(t, `^[A-Z0-9]{8}$`, r.ID)
	require.Equal(t, r.ReservedAt.Add(inventory.DefaultHoldTTL), r.ExpiresAt)
	h.ledger("WIDGET", 10, 4, 0)

	p, err := h.svc.GetProduct(h.ctx, "WIDGET")
	require.NoError(t, err)
	require.Equal(t, 6, p.Available())

	confirmed, err := h.svc.ConfirmReservation(h.ctx, r.ID)
	require.NoError(t, err)
	require.Equal(t, inventory.ReservationConfirmed, confirmed.Status)
	h.ledger("WIDGET", 6, 0, 4)
}

func TestReserveFailures(t *testing.T) {
	h := newHarness(t)
	h.product("WIDGET", 3, "")

	_, err := h.svc.Reserve(h.ctx, "GADGET", 1)
	requireCode(t, err, pkgerrors.CodeNotFound)

	_, err = h.svc.Reserve(h.ctx, "WIDGET", 4)
	requireCode(t, err, pkgerrors.CodeInsufficientStock)
	details, ok := pkgerrors.As(err).Details().(map[string]any)
	require.True(t, ok)
	require.Equal(t, 3, details["available"])

	_, err = h.svc.Reserve(h.ctx, "WIDGET", 0)
	requireCode(t, err, pkgerrors.CodeValidation)

	h.ledger("WIDGET", 3, 0, 0)
}

func TestNoOversellUnderConcurrency(t *testing.T) {
	h := newHarness(t)
	h.product("WIDGET", 10, "")

	const callers = 50
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.Reserve(h.ctx, "WIDGET", 1)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
				return
			}
			if pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock) {
				rejected++
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 10, succeeded)
	require.Equal(t, callers-10, rejected)
	h.ledger("WIDGET", 10, 10, 0)
}

func TestRoundTripConfirmThenRefund(t *testing.T) {
	h := newHarness(t)
	h.product("WIDGET", 10, "")

	r, err := h.svc.Reserve(h.ctx, "WIDGET", 5)
	require.NoError(t, err)
	_, err = h.svc.ConfirmReservation(h.ctx, r.ID)
	require.NoError(t, err)
	h.ledger("WIDGET", 5, 0, 5)

	require.NoError(t, h.svc.CancelReservation(h.ctx, r.ID))
	h.ledger("WIDGET", 10, 0, 0)

	got, err := h.svc.GetReservation(h.ctx, r.ID)
	require.NoError(t, err)
	require.Equal(t, inventory.ReservationCancelled, got.Status)
}

func TestCancelReservationIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.product("WIDGET", 10, "")

	r, err := h.svc.Reserve(h.ctx, "WIDGET", 3)
	require.NoError(t, err)

	require.NoError(t, h.svc.CancelReservation(h.ctx, r.ID))
	h.ledger("WIDGET", 10, 0, 0)
	require.NoError(t, h.svc.CancelReservation(h.ctx, r.ID))
	h.ledger("WIDGET", 10, 0, 0)

	require.Equal(t, []string{
		inventory.EventProductCreated,
		inventory.EventReservationCreated,
		inventory.EventReservationCancelled,
	}, h.pub.types())

	err = h.svc.CancelReservation(h.ctx, "MISSING0")
	requireCode(t, err, pkgerrors.CodeNotFound)
}

func TestConfirmAfterDeadlineCancelsHold(t *testing.T) {
	h := newHarness(t)
	h.product("WIDGET", 10, "")

	r, err := h.svc.Reserve(h.ctx, "WIDGET", 3)
	require.NoError(t, err)
	h.clock.Advance(inventory.DefaultHoldTTL + time.Second)

	_, err = h.svc.ConfirmReservation(h.ctx, r.ID)
	requireCode(t, err, pkgerrors.CodeExpired)
	h.ledger("WIDGET", 10, 0, 0)

	got, err := h.svc.GetReservation(h.ctx, r.ID)
	require.NoError(t, err)
	require.Equal(t, inventory.ReservationCancelled, got.Status)

	// The sweeper finds nothing; the hold is already released.
	stale, err := h.svc.StaleReservations(h.ctx)
	require.NoError(t, err)
	require.Empty(t, stale)
}

func TestConfirmExactlyAtDeadlineSucceeds(t *testing.T) {
	h := newHarness(t)
	h.product("WIDGET", 10, "")

	r, err := h.svc.Reserve(h.ctx, "WIDGET", 1)
	require.NoError(t, err)
	h.clock.Advance(inventory.DefaultHoldTTL)

	_, err = h.svc.ConfirmReservation(h.ctx, r.ID)
	require.NoError(t, err)
}

func TestExpiryReclaim(t *testing.T) {
	h := newHarness(t)
	h.product("WIDGET", 10, "")

	r, err := h.svc.Reserve(h.ctx, "WIDGET", 3)
	require.NoError(t, err)

	err = h.svc.ExpireReservation(h.ctx, r.ID)
	requireCode(t, err, pkgerrors.CodeInvalidState)

	h.clock.Advance(6 * time.Minute)
	stale, err := h.svc.StaleReservations(h.ctx)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	require.Equal(t, r.ID, stale[0].ID)

	require.NoError(t, h.svc.ExpireReservation(h.ctx, r.ID))
	h.ledger("WIDGET", 10, 0, 0)

	got, err := h.svc.GetReservation(h.ctx, r.ID)
	require.NoError(t, err)
	require.Equal(t, inventory.ReservationExpired, got.Status)

	_, err = h.svc.ConfirmReservation(h.ctx, r.ID)
	requireCode(t, err, pkgerrors.CodeInvalidState)

	// Expiring twice never releases twice.
	err = h.svc.ExpireReservation(h.ctx, r.ID)
	requireCode(t, err, pkgerrors.CodeInvalidState)
	h.ledger("WIDGET", 10, 0, 0)

	require.NoError(t, h.svc.CancelReservation(h.ctx, r.ID))
	require.Equal(t, inventory.EventReservationExpired, h.pub.last().Type)
}

func TestExpireConfirmedReservationRejected(t *testing.T) {
	h := newHarness(t)
	h.product("WIDGET", 10, "")

	r, err := h.svc.Reserve(h.ctx, "WIDGET", 2)
	require.NoError(t, err)
	_, err = h.svc.ConfirmReservation(h.ctx, r.ID)
	require.NoError(t, err)

	h.clock.Advance(time.Hour)
	err = h.svc.ExpireReservation(h.ctx, r.ID)
	requireCode(t, err, pkgerrors.CodeInvalidState)
	h.ledger("WIDGET", 8, 0, 2)
}

func TestConfirmRacingExpiryReleasesOnce(t *testing.T) {
	h := newHarness(t)
	h.product("WIDGET", 10, "")

	r, err := h.svc.Reserve(h.ctx, "WIDGET", 4)
	require.NoError(t, err)
	h.clock.Advance(10 * time.Minute)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = h.svc.ConfirmReservation(h.ctx, r.ID)
	}()
	go func() {
		defer wg.Done()
		_ = h.svc.ExpireReservation(h.ctx, r.ID)
	}()
	wg.Wait()

	h.ledger("WIDGET", 10, 0, 0)
	got, err := h.svc.GetReservation(h.ctx, r.ID)
	require.NoError(t, err)
	require.Contains(t, []inventory.ReservationStatus{inventory.ReservationCancelled, inventory.ReservationExpired}, got.Status)
}
