package web

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"pharmacy-retail/internal/core"
)

// scanResponse is the body returned by both scan endpoints.
type scanResponse struct {
	ID          int64            `json:"id"`
	OrderNumber string           `json:"order_number"`
	Barcode     string           `json:"barcode"`
	Status      core.OrderStatus `json:"status"`
	TotalAmount decimal.Decimal  `json:"total_amount"`
	ConfirmedAt *time.Time       `json:"confirmed_at"`
	Message     string           `json:"message"`
}

// principal returns the authenticated principal or writes 401.
func principal(w http.ResponseWriter, r *http.Request) (core.Principal, bool) {
	p, ok := principalFromContext(r.Context())
	if !ok {
		writeError(w, r, "authentication required", "UNAUTHORIZED", http.StatusUnauthorized)
	}
	return p, ok
}

// apiCreateOrder handles POST /api/orders.
func (h *Handler) apiCreateOrder(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var body core.CreateOrderRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.BranchID <= 0 {
		writeInvalid(w, r, "branch_id is required")
		return
	}

	order, err := h.orders.CreateOrder(r.Context(), p, body)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, order)
}

// apiScanOrder handles POST /api/orders/scan with {"barcode": "..."}.
func (h *Handler) apiScanOrder(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Barcode string `json:"barcode"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	h.scan(w, r, body.Barcode)
}

// apiScanOrderByPath handles POST /api/orders/scan/{barcode}.
func (h *Handler) apiScanOrderByPath(w http.ResponseWriter, r *http.Request) {
	h.scan(w, r, chi.URLParam(r, "barcode"))
}

func (h *Handler) scan(w http.ResponseWriter, r *http.Request, code string) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	if strings.TrimSpace(code) == "" {
		writeInvalid(w, r, "barcode is required")
		return
	}

	res, err := h.orders.ScanOrder(r.Context(), p, code)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	o := res.Order
	writeJSON(w, scanResponse{
		ID:          o.ID,
		OrderNumber: o.OrderNumber,
		Barcode:     o.Barcode,
		Status:      o.Status,
		TotalAmount: o.TotalAmount,
		ConfirmedAt: o.ConfirmedAt,
		Message:     res.Message,
	})
}

// apiGetOrder handles GET /api/orders/{id}.
func (h *Handler) apiGetOrder(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(r.Context(), p, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, order)
}

// apiCancelOrder handles DELETE /api/orders/{id}.
func (h *Handler) apiCancelOrder(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if _, err := h.orders.CancelOrder(r.Context(), p, id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// apiListOrders handles GET /api/orders?skip&limit&status&branch_id&user_id.
func (h *Handler) apiListOrders(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	var f core.OrderFilter
	var err error
	if f.Skip, err = intParam(q.Get("skip")); err != nil {
		writeInvalid(w, r, "skip must be an integer")
		return
	}
	if s := q.Get("limit"); s != "" {
		// An explicit limit must be in range; only an absent one defaults.
		if f.Limit, err = strconv.Atoi(s); err != nil || f.Limit < 1 {
			writeInvalid(w, r, "limit must be an integer between 1 and "+strconv.Itoa(core.MaxListLimit))
			return
		}
	} else {
		f.Limit = core.DefaultListLimit
	}
	if s := strings.TrimSpace(q.Get("status")); s != "" {
		status := core.OrderStatus(strings.ToUpper(s))
		f.Status = &status
	}
	if f.BranchID, err = optionalID(q.Get("branch_id")); err != nil {
		writeInvalid(w, r, "branch_id must be an integer")
		return
	}
	if f.UserID, err = optionalID(q.Get("user_id")); err != nil {
		writeInvalid(w, r, "user_id must be an integer")
		return
	}

	orders, err := h.orders.ListOrders(r.Context(), p, f)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, orders)
}

// apiBranchStock handles GET /api/branches/{id}/stock.
func (h *Handler) apiBranchStock(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	levels, err := h.inventory.BranchStock(r.Context(), p, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, levels)
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeInvalid(w, r, "invalid "+name)
		return 0, false
	}
	return id, true
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

func optionalID(s string) (*int64, error) {
	if s == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
