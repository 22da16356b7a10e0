package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"pharmacy-retail/internal/core"
	"pharmacy-retail/internal/idempotency"
)

const maxBodyBytes = 1 << 20 // 1 MB

// Config carries the adapter's collaborators beyond the core services.
type Config struct {
	JWTSecret      string
	AllowedOrigins []string
	Logger         *zap.Logger
	// Idempotency backs Idempotency-Key replay on order creation. Nil disables it.
	Idempotency    idempotency.Store
	IdempotencyTTL time.Duration
}

// Handler serves the order and stock API.
type Handler struct {
	orders    core.OrderService
	inventory core.InventoryService
	jwtSecret string
	logger    *zap.Logger
}

// NewHandler creates and wires the chi router with all routes.
func NewHandler(orders core.OrderService, inventory core.InventoryService, cfg Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		orders:    orders,
		inventory: inventory,
		jwtSecret: cfg.JWTSecret,
		logger:    logger,
	}

	idem := idempotency.Middleware(cfg.Idempotency,
		idempotency.WithTTL(cfg.IdempotencyTTL),
		idempotency.WithLogger(logger),
		idempotency.WithIdentity(requesterIdentity),
	)

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(logger))
	r.Use(Recoverer)
	r.Use(CORS(cfg.AllowedOrigins))

	// ── Health (public) ───────────────────────────────────────────────────────
	r.Get("/api/health", h.health)

	// ── Protected API routes (return 401 JSON if unauthenticated) ────────────
	r.Group(func(r chi.Router) {
		r.Use(h.RequireAuth)
		r.Use(RequestBodyLimit(maxBodyBytes))

		r.With(idem).Post("/api/orders", h.apiCreateOrder)
		r.Get("/api/orders", h.apiListOrders)
		r.Post("/api/orders/scan", h.apiScanOrder)
		r.Post("/api/orders/scan/{barcode}", h.apiScanOrderByPath)
		r.Get("/api/orders/{id}", h.apiGetOrder)
		r.Delete("/api/orders/{id}", h.apiCancelOrder)

		r.Get("/api/branches/{id}/stock", h.apiBranchStock)
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// decodeJSON decodes the request body into v and returns false + writes an appropriate
// error response on failure. Returns HTTP 413 when the body exceeds the size limit set
// by RequestBodyLimit middleware; HTTP 400 for all other decode errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, r, "request body too large", "REQUEST_TOO_LARGE", http.StatusRequestEntityTooLarge)
			return false
		}
		writeInvalid(w, r, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}
