package httpx

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	pkgerrors "github.com/ariefcatur/go-inventory-holds/internal/errors"
	"github.com/ariefcatur/go-inventory-holds/internal/inventory"
	"github.com/ariefcatur/go-inventory-holds/internal/logger"
	"github.com/ariefcatur/go-inventory-holds/internal/redisx"
)

const (
	HeaderUserRef        = "X-User-Ref"
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderReplay         = "Idempotent-Replay"
)

// IdempotencyStore remembers which order a checkout key produced.
type IdempotencyStore interface {
	Exists(ctx context.Context, key string) (string, bool, error)
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
}

type CheckoutItem struct {
	SKU      string `json:"sku" validate:"required"`
	Quantity int    `json:"quantity" validate:"required,min=1"`
}

type CheckoutReq struct {
	Items []CheckoutItem `json:"items" validate:"required,min=1,dive"`
}

type OrdersHandler struct {
	Service     *inventory.Service
	Idempotency IdempotencyStore
	Logger      *logger.Logger
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Get("/", h.listOrders)
		r.Post("/checkout", h.checkout)
		r.Get("/mine", h.listMine)
		r.Get("/{id}", h.getOrder)
		r.Post("/{id}/confirm", h.confirm)
		r.Post("/{id}/cancel", h.cancel)
	})
}

func userRef(r *http.Request) (string, error) {
	ref := strings.TrimSpace(r.Header.Get(HeaderUserRef))
	if ref == "" {
		return "", pkgerrors.Newf(pkgerrors.CodeValidation, "%s header is required", HeaderUserRef)
	}
	return ref, nil
}

func (h *OrdersHandler) checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ref, err := userRef(r)
	if err != nil {
		writeError(ctx, h.Logger, w, err)
		return
	}
	ctx = h.Logger.WithUserRef(ctx, ref)

	var req CheckoutReq
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(ctx, h.Logger, w, err)
		return
	}

	// Redis is a shortcut for replays; the order table stays the source of truth.
	idemKey := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
	var storeKey string
	if idemKey != "" && h.Idempotency != nil {
		storeKey = redisx.IdemCheckoutKey(ref, idemKey)
		if orderID, ok, err := h.Idempotency.Exists(ctx, storeKey); err != nil {
			h.Logger.Warn(h.Logger.WithField(ctx, "error", err.Error()), "idempotency lookup failed")
		} else if ok {
			if o, err := h.Service.GetOrder(ctx, orderID); err == nil {
				w.Header().Set(HeaderReplay, "true")
				writeData(w, http.StatusOK, o)
				return
			}
		}
	}

	lines := make([]inventory.LineRequest, 0, len(req.Items))
	for _, it := range req.Items {
		lines = append(lines, inventory.LineRequest{SKU: it.SKU, Quantity: it.Quantity})
	}
	o, err := h.Service.Checkout(ctx, ref, lines)
	if err != nil {
		writeError(ctx, h.Logger, w, err)
		return
	}

	if storeKey != "" {
		if _, err := h.Idempotency.SetNX(ctx, storeKey, o.ID, redisx.TTLIdempotency); err != nil {
			h.Logger.Warn(h.Logger.WithField(ctx, "error", err.Error()), "idempotency record not stored")
		}
	}
	writeData(w, http.StatusCreated, o)
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.Service.ListOrders(r.Context())
	if err != nil {
		writeError(r.Context(), h.Logger, w, err)
		return
	}
	writeData(w, http.StatusOK, nonNil(orders))
}

func (h *OrdersHandler) listMine(w http.ResponseWriter, r *http.Request) {
	ref, err := userRef(r)
	if err != nil {
		writeError(r.Context(), h.Logger, w, err)
		return
	}
	orders, err := h.Service.ListOrdersByUser(r.Context(), ref)
	if err != nil {
		writeError(r.Context(), h.Logger, w, err)
		return
	}
	writeData(w, http.StatusOK, nonNil(orders))
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Service.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(r.Context(), h.Logger, w, err)
		return
	}
	writeData(w, http.StatusOK, o)
}

func (h *OrdersHandler) confirm(w http.ResponseWriter, r *http.Request) {
	o, err := h.Service.ConfirmOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(r.Context(), h.Logger, w, err)
		return
	}
	writeData(w, http.StatusOK, o)
}

func (h *OrdersHandler) cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.CancelOrder(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(r.Context(), h.Logger, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func nonNil(orders []inventory.Order) []inventory.Order {
	if orders == nil {
		return []inventory.Order{}
	}
	return orders
}
