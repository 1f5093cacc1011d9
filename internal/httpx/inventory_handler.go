package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-inventory-holds/internal/inventory"
	"github.com/ariefcatur/go-inventory-holds/internal/logger"
)

// ProductView is a ledger row plus its derived available quantity.
type ProductView struct {
	inventory.Product
	Available int `json:"available"`
}

func productView(p inventory.Product) ProductView {
	return ProductView{Product: p, Available: p.Available()}
}

type CreateProductReq struct {
	SKU           string              `json:"sku" validate:"required,max=64"`
	TotalQuantity int                 `json:"totalQuantity" validate:"min=0"`
	ImageURL      string              `json:"imageUrl" validate:"omitempty,url"`
	Price         decimal.NullDecimal `json:"price"`
	Unit          string              `json:"unit" validate:"max=32"`
}

type UpdateProductReq struct {
	TotalQuantity *int                `json:"totalQuantity" validate:"required,min=0"`
	ImageURL      string              `json:"imageUrl" validate:"omitempty,url"`
	Price         decimal.NullDecimal `json:"price"`
	Unit          string              `json:"unit" validate:"max=32"`
}

type InventoryHandler struct {
	Service *inventory.Service
	Logger  *logger.Logger
}

func (h *InventoryHandler) Register(r chi.Router) {
	r.Route("/inventory/products", func(r chi.Router) {
		r.Get("/", h.listProducts)
		r.Post("/", h.createProduct)
		r.Get("/{sku}", h.getProduct)
		r.Put("/{sku}", h.updateProduct)
		r.Delete("/{sku}", h.deleteProduct)
	})
}

func (h *InventoryHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ps, err := h.Service.ListProducts(r.Context())
	if err != nil {
		writeError(r.Context(), h.Logger, w, err)
		return
	}
	out := make([]ProductView, 0, len(ps))
	for _, p := range ps {
		out = append(out, productView(p))
	}
	writeData(w, http.StatusOK, out)
}

func (h *InventoryHandler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.Service.GetProduct(r.Context(), chi.URLParam(r, "sku"))
	if err != nil {
		writeError(r.Context(), h.Logger, w, err)
		return
	}
	writeData(w, http.StatusOK, productView(*p))
}

func (h *InventoryHandler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductReq
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(r.Context(), h.Logger, w, err)
		return
	}
	p, err := h.Service.CreateProduct(r.Context(), inventory.ProductInput{
		SKU:           req.SKU,
		TotalQuantity: req.TotalQuantity,
		ImageURL:      req.ImageURL,
		Price:         req.Price,
		Unit:          req.Unit,
	})
	if err != nil {
		writeError(r.Context(), h.Logger, w, err)
		return
	}
	writeData(w, http.StatusCreated, productView(*p))
}

// updateProduct is the administrative stock reset: reserved quantity drops
// to zero and the SKU's reservations are discarded.
func (h *InventoryHandler) updateProduct(w http.ResponseWriter, r *http.Request) {
	var req UpdateProductReq
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(r.Context(), h.Logger, w, err)
		return
	}
	p, err := h.Service.UpdateProduct(r.Context(), chi.URLParam(r, "sku"), inventory.ProductInput{
		TotalQuantity: *req.TotalQuantity,
		ImageURL:      req.ImageURL,
		Price:         req.Price,
		Unit:          req.Unit,
	})
	if err != nil {
		writeError(r.Context(), h.Logger, w, err)
		return
	}
	writeData(w, http.StatusOK, productView(*p))
}

func (h *InventoryHandler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.DeleteProduct(r.Context(), chi.URLParam(r, "sku")); err != nil {
		writeError(r.Context(), h.Logger, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
