package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/go-inventory-holds/internal/inventory"
	"github.com/ariefcatur/go-inventory-holds/internal/logger"
)

type ReserveReq struct {
	SKU      string `json:"sku" validate:"required"`
	Quantity int    `json:"quantity" validate:"required,min=1"`
}

type ReservationsHandler struct {
	Service *inventory.Service
	Logger  *logger.Logger
}

func (h *ReservationsHandler) Register(r chi.Router) {
	r.Route("/reservations", func(r chi.Router) {
		r.Post("/", h.reserve)
		r.Get("/{id}", h.get)
		r.Post("/{id}/confirm", h.confirm)
		r.Post("/{id}/cancel", h.cancel)
	})
}

func (h *ReservationsHandler) reserve(w http.ResponseWriter, r *http.Request) {
	var req ReserveReq
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(r.Context(), h.Logger, w, err)
		return
	}
	res, err := h.Service.Reserve(r.Context(), req.SKU, req.Quantity)
	if err != nil {
		writeError(r.Context(), h.Logger, w, err)
		return
	}
	writeData(w, http.StatusCreated, res)
}

func (h *ReservationsHandler) get(w http.ResponseWriter, r *http.Request) {
	res, err := h.Service.GetReservation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(r.Context(), h.Logger, w, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

func (h *ReservationsHandler) confirm(w http.ResponseWriter, r *http.Request) {
	res, err := h.Service.ConfirmReservation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(r.Context(), h.Logger, w, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

func (h *ReservationsHandler) cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.CancelReservation(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(r.Context(), h.Logger, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
