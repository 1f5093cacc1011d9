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
)

func lines(pairs ...any) []inventory.LineRequest {
	out := make([]inventory.LineRequest, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, inventory.LineRequest{SKU: pairs[i].(string), Quantity: pairs[i+1].(int)})
	}
	return out
}

func TestCheckoutAndConfirm(t *testing.T) {
	h := newHarness(t)
	h.product("A", 5, "2.50")
	h.product("B", 5, "10")

	o, err := h.svc.Checkout(h.ctx, "user-1", lines("a", 2, "B", 1))
	require.NoError(t, err)
	require.Equal(t, inventory.OrderPending, o.Status)
	require.Len(t, o.Items, 2)
	require.Equal(t, "A", o.Items[0].SKU)
	require.True(t, decimal.RequireFromString("15").Equal(o.TotalAmount), o.TotalAmount.String())
	require.Equal(t, o.OrderDate.Add(inventory.DefaultHoldTTL), o.ExpiresAt)
	h.ledger("A", 5, 2, 0)
	h.ledger("B", 5, 1, 0)

	done, err := h.svc.ConfirmOrder(h.ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, inventory.OrderCompleted, done.Status)
	h.ledger("A", 3, 0, 2)
	h.ledger("B", 4, 0, 1)

	_, err = h.svc.ConfirmOrder(h.ctx, o.ID)
	requireCode(t, err, pkgerrors.CodeInvalidState)

	// Cancelling a completed order does not refund it.
	require.NoError(t, h.svc.CancelOrder(h.ctx, o.ID))
	got, err := h.svc.GetOrder(h.ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, inventory.OrderCompleted, got.Status)
	h.ledger("A", 3, 0, 2)
}

func TestCheckoutIsAtomic(t *testing.T) {
	h := newHarness(t)
	h.product("A", 5, "")
	h.product("B", 1, "")

	_, err := h.svc.Checkout(h.ctx, "user-1", lines("A", 2, "B", 3))
	requireCode(t, err, pkgerrors.CodeInsufficientStock)
	h.ledger("A", 5, 0, 0)
	h.ledger("B", 1, 0, 0)

	_, err = h.svc.Checkout(h.ctx, "user-1", lines("A", 2, "NOPE", 1))
	requireCode(t, err, pkgerrors.CodeNotFound)
	h.ledger("A", 5, 0, 0)

	_, err = h.svc.Checkout(h.ctx, "user-1", lines("B", 3, "A", 2))
	requireCode(t, err, pkgerrors.CodeInsufficientStock)
	h.ledger("A", 5, 0, 0)
	h.ledger("B", 1, 0, 0)

	_, err = h.svc.Checkout(h.ctx, "user-1", lines("NOPE", 1, "A", 2))
	requireCode(t, err, pkgerrors.CodeNotFound)
	h.ledger("A", 5, 0, 0)

	orders, err := h.svc.ListOrders(h.ctx)
	require.NoError(t, err)
	require.Empty(t, orders)
	require.Equal(t, []string{inventory.EventProductCreated, inventory.EventProductCreated}, h.pub.types())
}

func TestCheckoutValidation(t *testing.T) {
	h := newHarness(t)
	h.product("A", 5, "")

	_, err := h.svc.Checkout(h.ctx, " ", lines("A", 1))
	requireCode(t, err, pkgerrors.CodeValidation)
	_, err = h.svc.Checkout(h.ctx, "user-1", nil)
	requireCode(t, err, pkgerrors.CodeValidation)
	_, err = h.svc.Checkout(h.ctx, "user-1", lines("A", 0))
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestCheckoutSnapshotsPrice(t *testing.T) {
	h := newHarness(t)
	h.product("A", 5, "3")

	o, err := h.svc.Checkout(h.ctx, "user-1", lines("A", 1))
	require.NoError(t, err)

	_, err = h.svc.UpdateProduct(h.ctx, "A", inventory.ProductInput{
		TotalQuantity: 5,
		Price:         decimal.NewNullDecimal(decimal.RequireFromString("9")),
	})
	require.NoError(t, err)

	got, err := h.svc.GetOrder(h.ctx, o.ID)
	require.NoError(t, err)
	require.True(t, decimal.RequireFromString("3").Equal(got.Items[0].PriceAtPurchase))
	require.True(t, decimal.RequireFromString("3").Equal(got.TotalAmount))
}

func TestCheckoutWithoutPriceTotalsZero(t *testing.T) {
	h := newHarness(t)
	h.product("A", 5, "")

	o, err := h.svc.Checkout(h.ctx, "user-1", lines("A", 2))
	require.NoError(t, err)
	require.True(t, o.TotalAmount.IsZero())
}

func TestOpposingCheckoutsDoNotDeadlock(t *testing.T) {
	h := newHarness(t)
	h.product("A", 1000, "")
	h.product("B", 1000, "")

	ctx, cancel := context.WithTimeout(h.ctx, 10*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	errs := make(chan error, 100)
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := h.svc.Checkout(ctx, "user-ab", lines("A", 1, "B", 1))
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := h.svc.Checkout(ctx, "user-ba", lines("B", 1, "A", 1))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	h.ledger("A", 1000, 100, 0)
	h.ledger("B", 1000, 100, 0)
}

func TestCancelOrderIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.product("A", 5, "")
	h.product("B", 5, "")

	o, err := h.svc.Checkout(h.ctx, "user-1", lines("B", 2, "A", 1))
	require.NoError(t, err)

	require.NoError(t, h.svc.CancelOrder(h.ctx, o.ID))
	require.NoError(t, h.svc.CancelOrder(h.ctx, o.ID))
	h.ledger("A", 5, 0, 0)
	h.ledger("B", 5, 0, 0)

	got, err := h.svc.GetOrder(h.ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, inventory.OrderCancelled, got.Status)

	err = h.svc.CancelOrder(h.ctx, "MISSING0")
	requireCode(t, err, pkgerrors.CodeNotFound)
}

func TestExpiredOrder(t *testing.T) {
	h := newHarness(t)
	h.product("A", 5, "")

	o, err := h.svc.Checkout(h.ctx, "user-1", lines("A", 3))
	require.NoError(t, err)

	err = h.svc.ExpireOrder(h.ctx, o.ID)
	requireCode(t, err, pkgerrors.CodeInvalidState)

	h.clock.Advance(inventory.DefaultHoldTTL + time.Second)

	_, err = h.svc.ConfirmOrder(h.ctx, o.ID)
	requireCode(t, err, pkgerrors.CodeExpired)
	got, err := h.svc.GetOrder(h.ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, inventory.OrderPending, got.Status)
	h.ledger("A", 5, 3, 0)

	stale, err := h.svc.StaleOrders(h.ctx)
	require.NoError(t, err)
	require.Len(t, stale, 1)

	require.NoError(t, h.svc.ExpireOrder(h.ctx, o.ID))
	h.ledger("A", 5, 0, 0)
	got, err = h.svc.GetOrder(h.ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, inventory.OrderExpired, got.Status)
	require.Equal(t, inventory.EventOrderExpired, h.pub.last().Type)

	err = h.svc.ExpireOrder(h.ctx, o.ID)
	requireCode(t, err, pkgerrors.CodeInvalidState)
	h.ledger("A", 5, 0, 0)
}

func TestListOrdersByUserNewestFirst(t *testing.T) {
	h := newHarness(t)
	h.product("A", 10, "")

	first, err := h.svc.Checkout(h.ctx, "user-1", lines("A", 1))
	require.NoError(t, err)
	h.clock.Advance(time.Second)
	_, err = h.svc.Checkout(h.ctx, "user-2", lines("A", 1))
	require.NoError(t, err)
	h.clock.Advance(time.Second)
	second, err := h.svc.Checkout(h.ctx, "user-1", lines("A", 1))
	require.NoError(t, err)

	mine, err := h.svc.ListOrdersByUser(h.ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	require.Equal(t, second.ID, mine[0].ID)
	require.Equal(t, first.ID, mine[1].ID)

	all, err := h.svc.ListOrders(h.ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
}
