package httpx

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ariefcatur/go-inventory-holds/internal/inventory"
	"github.com/ariefcatur/go-inventory-holds/internal/logger"
)

const requestTimeout = 15 * time.Second

// RouterParams wire the HTTP surface.
type RouterParams struct {
	Logger      *logger.Logger
	Service     *inventory.Service
	Idempotency IdempotencyStore
	// Metrics serves /metrics when set.
	Metrics http.Handler
}

func NewRouter(p RouterParams) *chi.Mux {
	logg := p.Logger
	if logg == nil {
		logg = logger.Nop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger(logg), recoverer(logg))
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if p.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", p.Metrics)
	}

	(&InventoryHandler{Service: p.Service, Logger: logg}).Register(r)
	(&ReservationsHandler{Service: p.Service, Logger: logg}).Register(r)
	(&OrdersHandler{Service: p.Service, Idempotency: p.Idempotency, Logger: logg}).Register(r)
	return r
}
