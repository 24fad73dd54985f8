package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fjod/grocery-cart/internal/cart"
	"github.com/fjod/grocery-cart/internal/checkout"
	"github.com/fjod/grocery-cart/internal/domain"
	"github.com/fjod/grocery-cart/internal/orderapi"
	"github.com/fjod/grocery-cart/internal/storage"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPlacer struct {
	calls int
	err   error
}

func (s *stubPlacer) PlaceOrders(_ context.Context, orders []domain.PlaceOrder) (orderapi.Placement, error) {
	s.calls++
	if s.err != nil {
		return orderapi.Placement{}, s.err
	}
	return orderapi.Placement{Count: len(orders)}, nil
}

type testServer struct {
	handler http.Handler
	placer  *stubPlacer
	storage *storage.MemoryStorage
}

func setupServer(t *testing.T) *testServer {
	t.Helper()
	st := storage.NewMemoryStorage()
	sessions := cart.NewSessions(st, 100, 0)
	t.Cleanup(sessions.Close)
	profiles := checkout.NewProfiles(st)
	placer := &stubPlacer{}
	svc := checkout.NewService(placer, profiles, zerolog.Nop())

	h := NewRouter(RouterConfig{
		RequestTimeout: 5 * time.Second,
		MaxRequestBody: 1 << 20,
	}, zerolog.Nop(), sessions, svc, profiles)

	return &testServer{handler: h, placer: placer, storage: st}
}

func (s *testServer) do(t *testing.T, method, path, session string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if session != "" {
		req.Header.Set(SessionHeader, session)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func appleJSON() string {
	return `{"id":1,"productName":"Apple","price":"100","discount":10,"quantity":2,"shopId":7}`
}

func TestHealth(t *testing.T) {
	s := setupServer(t)
	rec := s.do(t, http.MethodGet, "/health", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestSession_MintedAndReused(t *testing.T) {
	s := setupServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/cart/items", "", appleJSON())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	session := rec.Header().Get(SessionHeader)
	require.NotEmpty(t, session)

	rec = s.do(t, http.MethodGet, "/api/v1/cart", session, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, session, rec.Header().Get(SessionHeader))
	assert.Equal(t, 2, decode[CartResponseDTO](t, rec).Count)

	rec = s.do(t, http.MethodGet, "/api/v1/cart", "someone-else", nil)
	assert.Equal(t, 0, decode[CartResponseDTO](t, rec).Count)
}

func TestSession_InvalidID(t *testing.T) {
	s := setupServer(t)
	rec := s.do(t, http.MethodGet, "/api/v1/cart", "bad id with spaces", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_session", decode[ErrorResponse](t, rec).Code)
}

func TestCart_AddItem(t *testing.T) {
	s := setupServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/cart/items", "s1", appleJSON())
	require.Equal(t, http.StatusCreated, rec.Code)

	resp := decode[CartResponseDTO](t, rec)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "Apple", resp.Items[0].Name)
	assert.Equal(t, "100", resp.Items[0].UnitPrice)
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, "180.00", resp.Subtotal.String())

	// numeric price and default quantity
	rec = s.do(t, http.MethodPost, "/api/v1/cart/items", "s1", `{"id":2,"productName":"Milk","price":25.5}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	resp = decode[CartResponseDTO](t, rec)
	require.Len(t, resp.Items, 2)
	assert.Equal(t, "25.5", resp.Items[1].UnitPrice)
	assert.Equal(t, 1, resp.Items[1].Quantity)
	assert.Nil(t, resp.Items[1].SellerID)
	assert.Equal(t, "205.50", resp.Subtotal.String())

	// stored under the session origin
	data, err := s.storage.Get(context.Background(), "cart:s1")
	require.NoError(t, err)
	assert.Contains(t, string(data), `"productName":"Milk"`)
}

func TestCart_AddItemValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		code string
	}{
		{name: "bad json", body: `{`, code: "invalid_request"},
		{name: "missing id", body: `{"productName":"x","price":"1"}`, code: "invalid_product_id"},
		{name: "negative quantity", body: `{"id":1,"price":"1","quantity":-1}`, code: "invalid_quantity"},
		{name: "quantity too large", body: `{"id":1,"price":"1","quantity":100}`, code: "invalid_quantity"},
		{name: "discount out of range", body: `{"id":1,"price":"1","discount":120}`, code: "invalid_discount"},
		{name: "price object", body: `{"id":1,"price":{"amount":1}}`, code: "invalid_price"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := setupServer(t)
			rec := s.do(t, http.MethodPost, "/api/v1/cart/items", "s1", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.code, decode[ErrorResponse](t, rec).Code)
		})
	}
}

func TestCart_UpdateRemoveClear(t *testing.T) {
	s := setupServer(t)
	s.do(t, http.MethodPost, "/api/v1/cart/items", "s1", appleJSON())
	s.do(t, http.MethodPost, "/api/v1/cart/items", "s1", `{"id":2,"productName":"Milk","price":"30","shopId":8}`)

	rec := s.do(t, http.MethodPut, "/api/v1/cart/items/1", "s1", `{"quantity":5}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 6, decode[CartResponseDTO](t, rec).Count)

	rec = s.do(t, http.MethodPut, "/api/v1/cart/items/1", "s1", `{"quantity":0}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decode[CartResponseDTO](t, rec).Count)

	rec = s.do(t, http.MethodDelete, "/api/v1/cart/items/2", "s1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[CartResponseDTO](t, rec)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, int64(1), resp.Items[0].ProductID)

	rec = s.do(t, http.MethodDelete, "/api/v1/cart", "s1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decode[CartResponseDTO](t, rec)
	assert.Empty(t, resp.Items)
	assert.Equal(t, "0.00", resp.Subtotal.String())
}

func TestCart_InvalidProductIDParam(t *testing.T) {
	s := setupServer(t)
	for _, path := range []string{"/api/v1/cart/items/abc", "/api/v1/cart/items/0"} {
		rec := s.do(t, http.MethodDelete, path, "s1", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
		assert.Equal(t, "invalid_product_id", decode[ErrorResponse](t, rec).Code)
	}
}

func TestProfile(t *testing.T) {
	s := setupServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/profile", "s1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPut, "/api/v1/profile", "s1", `{"name":"Asha"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_customer_id", decode[ErrorResponse](t, rec).Code)

	rec = s.do(t, http.MethodPut, "/api/v1/profile", "s1", `{"customerId":42,"name":"Asha","pincode":560001}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/profile", "s1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	prof := decode[checkout.Profile](t, rec)
	assert.Equal(t, int64(42), prof.BuyerID())
	assert.Equal(t, checkout.FlexString("560001"), prof.PostalCode)

	rec = s.do(t, http.MethodDelete, "/api/v1/profile", "s1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(t, http.MethodGet, "/api/v1/profile", "s1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckout_PaymentModes(t *testing.T) {
	s := setupServer(t)
	rec := s.do(t, http.MethodGet, "/api/v1/checkout/payment-modes", "s1", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	modes := decode[[]domain.PaymentOption](t, rec)
	require.Len(t, modes, 4)
	assert.Equal(t, domain.PaymentModeCOD, modes[0].Mode)
	assert.True(t, modes[0].Enabled)
	assert.False(t, modes[1].Enabled)
}

func TestCheckout_Summary(t *testing.T) {
	s := setupServer(t)
	s.do(t, http.MethodPut, "/api/v1/profile", "s1", `{"id":42,"name":"Asha","addressLine1":"12 MG Road","pincode":"560001"}`)
	s.do(t, http.MethodPost, "/api/v1/cart/items", "s1", appleJSON())

	rec := s.do(t, http.MethodGet, "/api/v1/checkout", "s1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	summary := decode[CheckoutSummaryDTO](t, rec)
	assert.Equal(t, "Asha", summary.Address.Name)
	assert.Equal(t, "560001", summary.Address.PostalCode)
	assert.Equal(t, 2, summary.Cart.Count)
	assert.Len(t, summary.PaymentModes, 4)
}

func TestCheckout_PlaceOrder(t *testing.T) {
	s := setupServer(t)
	s.do(t, http.MethodPut, "/api/v1/profile", "s1", `{"id":42}`)
	s.do(t, http.MethodPost, "/api/v1/cart/items", "s1", appleJSON())
	s.do(t, http.MethodPost, "/api/v1/cart/items", "s1", `{"id":2,"productName":"Milk","price":"30","shopId":8}`)

	rec := s.do(t, http.MethodPost, "/api/v1/checkout", "s1", `{
		"name":"Asha","phoneNumber":9876543210,"addressLine1":"12 MG Road","pincode":"560001","paymentMode":"cod"
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	resp := decode[CheckoutResponseDTO](t, rec)
	assert.Equal(t, 2, resp.OrdersCreated)
	assert.Equal(t, "2 order(s) created.", resp.Message)

	rec = s.do(t, http.MethodGet, "/api/v1/cart", "s1", nil)
	assert.Equal(t, 0, decode[CartResponseDTO](t, rec).Count)
}

func TestCheckout_Errors(t *testing.T) {
	tests := []struct {
		name    string
		profile string
		addItem bool
		body    string
		status  int
		code    string
	}{
		{name: "empty cart", profile: `{"id":42}`, body: `{"name":"A","addressLine1":"B","pincode":"1"}`, status: http.StatusBadRequest, code: "empty_cart"},
		{name: "missing address", profile: `{"id":42}`, addItem: true, body: `{"name":"A"}`, status: http.StatusBadRequest, code: "missing_address"},
		{name: "no buyer", addItem: true, body: `{"name":"A","addressLine1":"B","pincode":"1"}`, status: http.StatusUnauthorized, code: "user_not_identified"},
		{name: "card", profile: `{"id":42}`, addItem: true, body: `{"name":"A","addressLine1":"B","pincode":"1","paymentMode":"UPI"}`, status: http.StatusBadRequest, code: "payment_mode_unavailable"},
		{name: "unknown mode", profile: `{"id":42}`, addItem: true, body: `{"paymentMode":"CHEQUE"}`, status: http.StatusBadRequest, code: "invalid_payment_mode"},
		{name: "bad pincode", profile: `{"id":42}`, addItem: true, body: `{"name":"A","addressLine1":"B","pincode":"abc"}`, status: http.StatusBadRequest, code: "invalid_pincode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := setupServer(t)
			if tt.profile != "" {
				s.do(t, http.MethodPut, "/api/v1/profile", "s1", tt.profile)
			}
			if tt.addItem {
				s.do(t, http.MethodPost, "/api/v1/cart/items", "s1", appleJSON())
			}

			rec := s.do(t, http.MethodPost, "/api/v1/checkout", "s1", tt.body)

			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decode[ErrorResponse](t, rec).Code)
			assert.Equal(t, 0, s.placer.calls)
		})
	}
}

func TestCheckout_PlacementFailureKeepsCart(t *testing.T) {
	s := setupServer(t)
	s.placer.err = &orderapi.StatusError{Status: http.StatusBadRequest, Message: "Shop 7 is closed"}
	s.do(t, http.MethodPut, "/api/v1/profile", "s1", `{"id":42}`)
	s.do(t, http.MethodPost, "/api/v1/cart/items", "s1", appleJSON())

	rec := s.do(t, http.MethodPost, "/api/v1/checkout", "s1", `{"name":"A","addressLine1":"B","pincode":"1"}`)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	errResp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "order_placement_failed", errResp.Code)
	assert.Equal(t, "Failed to place order", errResp.Error)
	assert.Equal(t, "Shop 7 is closed", errResp.Details)

	rec = s.do(t, http.MethodGet, "/api/v1/cart", "s1", nil)
	assert.Equal(t, 2, decode[CartResponseDTO](t, rec).Count)
}

func TestCheckout_OrderServiceUnavailable(t *testing.T) {
	s := setupServer(t)
	s.placer.err = orderapi.ErrUnavailable
	s.do(t, http.MethodPut, "/api/v1/profile", "s1", `{"id":42}`)
	s.do(t, http.MethodPost, "/api/v1/cart/items", "s1", appleJSON())

	rec := s.do(t, http.MethodPost, "/api/v1/checkout", "s1", `{"name":"A","addressLine1":"B","pincode":"1"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCORS_Preflight(t *testing.T) {
	s := setupServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/cart", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", SessionHeader)
	rec := httptest.NewRecorder()

	s.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
