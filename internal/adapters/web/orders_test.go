package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmacy-retail/internal/core"
	"pharmacy-retail/internal/idempotency"
	"pharmacy-retail/internal/memstore"
)

const testSecret = "test-secret"

type testEnv struct {
	handler http.Handler
	store   *memstore.Store
	branch  core.Branch
	other   core.Branch
	drug    core.Drug

	customerToken string
	cashierToken  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st := memstore.New()
	env := &testEnv{store: st}
	env.branch = st.AddBranch(1, "Central")
	env.other = st.AddBranch(1, "Riverside")
	env.drug = st.AddDrug("Paracetamol", decimal.RequireFromString("2.50"))
	st.SetStock(core.StockKey{BranchID: env.branch.ID, DrugID: env.drug.ID}, 5, 2)

	orders := core.NewOrderService(st, core.NewCodeGenerator(0, 0), nil)
	env.handler = NewHandler(orders, core.NewInventoryService(st), Config{
		JWTSecret:   testSecret,
		Idempotency: idempotency.NewMemoryStore(),
	})

	env.customerToken = env.token(t, core.Principal{ID: 11, Role: core.RoleUser})
	branchID, pharmacyID := env.branch.ID, int64(1)
	env.cashierToken = env.token(t, core.Principal{ID: 21, Role: core.RoleCashier, BranchID: &branchID, PharmacyID: &pharmacyID})
	return env
}

func (e *testEnv) token(t *testing.T, p core.Principal) string {
	t.Helper()
	tok, err := SignToken(testSecret, p, time.Hour)
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) createOrder(t *testing.T, qty int) core.Order {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/api/orders", e.customerToken, map[string]any{
		"branch_id": e.branch.ID,
		"items":     []map[string]any{{"drug_id": e.drug.ID, "qty": qty}},
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var o core.Order
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &o))
	return o
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp), rr.Body.String())
	return resp
}

func TestHealthIsPublic(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/orders", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "UNAUTHORIZED", decodeError(t, rr).Code)

	forged, err := SignToken("other-secret", core.Principal{ID: 1, Role: core.RoleSuperadmin}, time.Hour)
	require.NoError(t, err)
	rr = env.do(t, http.MethodGet, "/api/orders", forged, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	expired, err := SignToken(testSecret, core.Principal{ID: 1, Role: core.RoleUser}, -time.Minute)
	require.NoError(t, err)
	rr = env.do(t, http.MethodGet, "/api/orders", expired, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	req.AddCookie(&http.Cookie{Name: "auth_token", Value: env.customerToken})
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateScanAndRescan(t *testing.T) {
	env := newTestEnv(t)
	o := env.createOrder(t, 3)
	assert.Equal(t, core.OrderStatusPending, o.Status)
	assert.True(t, decimal.RequireFromString("7.50").Equal(o.TotalAmount))

	rr := env.do(t, http.MethodPost, "/api/orders/scan", env.cashierToken, map[string]string{"barcode": o.Barcode})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var scan scanResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &scan))
	assert.Equal(t, core.OrderStatusConfirmed, scan.Status)
	assert.Equal(t, core.ScanConfirmedMessage, scan.Message)
	assert.NotNil(t, scan.ConfirmedAt)

	qty, _ := env.store.Stock(core.StockKey{BranchID: env.branch.ID, DrugID: env.drug.ID})
	assert.Equal(t, 2, qty)

	rr = env.do(t, http.MethodPost, "/api/orders/scan/"+o.Barcode, env.cashierToken, nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "ALREADY_CONFIRMED", decodeError(t, rr).Code)
}

func TestCreateInsufficientStockDetails(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodPost, "/api/orders", env.customerToken, map[string]any{
		"branch_id": env.branch.ID,
		"items":     []map[string]any{{"drug_id": env.drug.ID, "qty": 9}},
	})
	require.Equal(t, http.StatusConflict, rr.Code)
	resp := decodeError(t, rr)
	assert.Equal(t, "INSUFFICIENT_STOCK", resp.Code)
	require.NotNil(t, resp.Details)
	assert.Equal(t, 5, resp.Details.Available)
	assert.Equal(t, 9, resp.Details.Required)
}

func TestCreateValidation(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/api/orders", env.customerToken, map[string]any{"items": []any{}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "INVALID_REQUEST", decodeError(t, rr).Code)

	rr = env.do(t, http.MethodPost, "/api/orders", env.customerToken, map[string]any{"branch_id": env.branch.ID, "items": []any{}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "INVALID_REQUEST", decodeError(t, rr).Code)

	req := httptest.NewRequest(http.MethodPost, "/api/orders", bytes.NewBufferString("{not json"))
	req.Header.Set("Authorization", "Bearer "+env.customerToken)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_REQUEST", decodeError(t, rec).Code)
}

func TestCreateIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	body := map[string]any{
		"branch_id": env.branch.ID,
		"items":     []map[string]any{{"drug_id": env.drug.ID, "qty": 1}},
	}

	rr1 := env.do(t, http.MethodPost, "/api/orders", env.customerToken, body, idempotency.HeaderName, "checkout-42")
	require.Equal(t, http.StatusCreated, rr1.Code)
	rr2 := env.do(t, http.MethodPost, "/api/orders", env.customerToken, body, idempotency.HeaderName, "checkout-42")
	require.Equal(t, http.StatusCreated, rr2.Code)

	assert.Equal(t, "true", rr2.Header().Get(idempotency.ReplayHeaderName))
	assert.JSONEq(t, rr1.Body.String(), rr2.Body.String())

	rr := env.do(t, http.MethodGet, "/api/orders", env.customerToken, nil)
	var list []core.OrderSummary
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	assert.Len(t, list, 1)
}

func TestScanForbiddenForCustomer(t *testing.T) {
	env := newTestEnv(t)
	o := env.createOrder(t, 1)

	rr := env.do(t, http.MethodPost, "/api/orders/scan/"+o.Barcode, env.customerToken, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "FORBIDDEN", decodeError(t, rr).Code)

	rr = env.do(t, http.MethodPost, "/api/orders/scan", env.cashierToken, map[string]string{"barcode": "  "})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, http.MethodPost, "/api/orders/scan/NOPE-1", env.cashierToken, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "INVALID_REQUEST", decodeError(t, rr).Code)
}

func TestGetAndCancel(t *testing.T) {
	env := newTestEnv(t)
	o := env.createOrder(t, 1)
	path := fmt.Sprintf("/api/orders/%d", o.ID)

	rr := env.do(t, http.MethodGet, path, env.customerToken, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var got core.Order
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, o.Barcode, got.Barcode)
	require.Len(t, got.Items, 1)

	stranger := env.token(t, core.Principal{ID: 99, Role: core.RoleUser})
	rr = env.do(t, http.MethodGet, path, stranger, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/orders/abc", env.customerToken, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = env.do(t, http.MethodGet, "/api/orders/424242", env.customerToken, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = env.do(t, http.MethodDelete, path, env.customerToken, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = env.do(t, http.MethodDelete, path, env.customerToken, nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "INVALID_STATE", decodeError(t, rr).Code)
}

func TestListQueryParams(t *testing.T) {
	env := newTestEnv(t)
	env.createOrder(t, 1)
	env.createOrder(t, 1)

	rr := env.do(t, http.MethodGet, "/api/orders?limit=1&status=pending", env.cashierToken, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var list []core.OrderSummary
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	for _, limit := range []string{"abc", "0", "-3", "5000"} {
		rr = env.do(t, http.MethodGet, "/api/orders?limit="+limit, env.cashierToken, nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code, "limit=%s", limit)
		assert.Equal(t, "INVALID_REQUEST", decodeError(t, rr).Code, "limit=%s", limit)
	}
	rr = env.do(t, http.MethodGet, "/api/orders?skip=x", env.cashierToken, nil)
	assert.Equal(t, "INVALID_REQUEST", decodeError(t, rr).Code)
	rr = env.do(t, http.MethodGet, "/api/orders?limit=1000", env.cashierToken, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	rr = env.do(t, http.MethodGet, fmt.Sprintf("/api/orders?branch_id=%d", env.other.ID), env.cashierToken, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestBranchStock(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, fmt.Sprintf("/api/branches/%d/stock", env.branch.ID), env.cashierToken, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var levels []core.StockLevel
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &levels))
	require.Len(t, levels, 1)
	assert.Equal(t, 5, levels[0].Quantity)
	assert.False(t, levels[0].LowStock)

	rr = env.do(t, http.MethodGet, fmt.Sprintf("/api/branches/%d/stock", env.other.ID), env.cashierToken, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}
