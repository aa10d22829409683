package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/example/campusmart/pkg/config"
	"github.com/example/campusmart/pkg/models"
	"github.com/example/campusmart/pkg/payments"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubCheckout struct {
	result *payments.CheckoutResult
	err    error
}

func (s *stubCheckout) Initiate(ctx context.Context, userID, email string, option models.DeliveryOption) (*payments.CheckoutResult, error) {
	return s.result, s.err
}

type stubReconciler struct {
	outcome    *payments.Outcome
	err        error
	references []string
}

func (s *stubReconciler) Reconcile(ctx context.Context, reference string) (*payments.Outcome, error) {
	s.references = append(s.references, reference)
	return s.outcome, s.err
}

type stubOrders struct {
	order        *models.Order
	vendorOrders []models.VendorOrder
	err          error
}

func (s *stubOrders) FindByPaymentReference(ctx context.Context, reference string) (*models.Order, error) {
	return s.order, s.err
}

func (s *stubOrders) FindVendorOrder(ctx context.Context, id string) (*models.VendorOrder, error) {
	if len(s.vendorOrders) == 0 {
		return nil, fmt.Errorf("vendor order %s: %w", id, models.ErrNotFound)
	}
	return &s.vendorOrders[0], s.err
}

func (s *stubOrders) ListVendorOrders(ctx context.Context, orderID string) ([]models.VendorOrder, error) {
	return s.vendorOrders, nil
}

type stubRepairer struct {
	order *models.Order
	err   error
}

func (s *stubRepairer) Repair(ctx context.Context, reference string) (*models.Order, error) {
	return s.order, s.err
}

type stubDelivery struct {
	vendorOrder *models.VendorOrder
	handover    *models.PostOfficeHandover
	err         error
	cancelledTo models.VendorOrderStatus
}

func (s *stubDelivery) Transition(ctx context.Context, id string, to models.VendorOrderStatus) (*models.VendorOrder, error) {
	return s.vendorOrder, s.err
}

func (s *stubDelivery) Cancel(ctx context.Context, id string, to models.VendorOrderStatus) (*models.VendorOrder, error) {
	s.cancelledTo = to
	return s.vendorOrder, s.err
}

func (s *stubDelivery) HandOver(ctx context.Context, id string) (*models.PostOfficeHandover, error) {
	return s.handover, s.err
}

func (s *stubDelivery) Collect(ctx context.Context, id, qr string, fb models.HandoverFeedback) (*models.PostOfficeHandover, error) {
	return s.handover, s.err
}

func (s *stubDelivery) ResolveQR(ctx context.Context, token string) (*models.PostOfficeHandover, error) {
	return s.handover, s.err
}

type stubCarts struct {
	lines []models.CartLine
	err   error
}

func (s *stubCarts) AddLine(ctx context.Context, line *models.CartLine) error {
	s.lines = append(s.lines, *line)
	return s.err
}

func (s *stubCarts) ListByUser(ctx context.Context, userID string) ([]models.CartLine, error) {
	return s.lines, s.err
}

type stubs struct {
	checkout *stubCheckout
	payments *stubReconciler
	orders   *stubOrders
	repairer *stubRepairer
	delivery *stubDelivery
	carts    *stubCarts
}

func newTestServer(t *testing.T, secretKey string) (*Server, *stubs) {
	t.Helper()
	st := &stubs{
		checkout: &stubCheckout{},
		payments: &stubReconciler{},
		orders:   &stubOrders{},
		repairer: &stubRepairer{},
		delivery: &stubDelivery{},
		carts:    &stubCarts{},
	}
	cfg := &config.Config{
		Server:   config.ServerConfig{Host: "127.0.0.1", Port: 0},
		Paystack: config.PaystackConfig{SecretKey: secretKey},
	}
	srv := New(cfg, zap.NewNop(), st.checkout, st.payments, st.orders, st.repairer, st.delivery, st.carts, nil)
	return srv, st
}

func doRequest(srv *Server, method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, "")
	w := doRequest(srv, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCheckoutCreated(t *testing.T) {
	srv, st := newTestServer(t, "")
	st.checkout.result = &payments.CheckoutResult{
		Reference:        "ref-1",
		AuthorizationURL: "https://pay.example.com/ref-1",
		Amount:           540000,
	}

	body := []byte(`{"user_id":"u1","email":"buyer@school.edu","delivery_option":"school_post"}`)
	w := doRequest(srv, http.MethodPost, "/api/v1/checkout", body, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	var got payments.CheckoutResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "ref-1", got.Reference)
	assert.Equal(t, int64(540000), got.Amount)
}

func TestCheckoutMissingFields(t *testing.T) {
	srv, _ := newTestServer(t, "")
	w := doRequest(srv, http.MethodPost, "/api/v1/checkout", []byte(`{"email":"x@y.z"}`), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("bad: %w", models.ErrValidation), http.StatusBadRequest},
		{fmt.Errorf("missing: %w", models.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("dup: %w", models.ErrConflict), http.StatusConflict},
		{fmt.Errorf("stock: %w", models.ErrInsufficientStock), http.StatusConflict},
		{fmt.Errorf("gw: %w", models.ErrUpstream), http.StatusBadGateway},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		srv, st := newTestServer(t, "")
		st.payments.err = tc.err
		w := doRequest(srv, http.MethodGet, "/api/v1/payments/verify/ref-1", nil, nil)
		assert.Equal(t, tc.want, w.Code, "for %v", tc.err)
	}
}

func TestVerifyPayment(t *testing.T) {
	srv, st := newTestServer(t, "")
	st.payments.outcome = &payments.Outcome{
		Payment: &models.Payment{Reference: "ref-1", Status: models.PaymentSuccess},
		Order:   &models.Order{ID: "o1", PaymentReference: "ref-1"},
	}

	w := doRequest(srv, http.MethodGet, "/api/v1/payments/verify/ref-1", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"ref-1"}, st.payments.references)

	var got payments.Outcome
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, models.PaymentSuccess, got.Payment.Status)
	require.NotNil(t, got.Order)
	assert.Equal(t, "o1", got.Order.ID)
}

func signWebhook(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestWebhookValidSignature(t *testing.T) {
	srv, st := newTestServer(t, "sk_test_secret")
	st.payments.outcome = &payments.Outcome{
		Payment: &models.Payment{Reference: "ref-9", Status: models.PaymentSuccess},
	}

	body := []byte(`{"event":"charge.success","data":{"reference":"ref-9"}}`)
	w := doRequest(srv, http.MethodPost, "/api/v1/payments/webhook", body, map[string]string{
		"x-paystack-signature": signWebhook("sk_test_secret", body),
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"ref-9"}, st.payments.references)
}

func TestWebhookBadSignatureDropped(t *testing.T) {
	srv, st := newTestServer(t, "sk_test_secret")

	body := []byte(`{"event":"charge.success","data":{"reference":"ref-9"}}`)
	w := doRequest(srv, http.MethodPost, "/api/v1/payments/webhook", body, map[string]string{
		"x-paystack-signature": "forged",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, st.payments.references, "unverified event must not reach reconciliation")
}

func TestWebhookMalformedBody(t *testing.T) {
	srv, _ := newTestServer(t, "")
	w := doRequest(srv, http.MethodPost, "/api/v1/payments/webhook", []byte(`{"event":"x"}`), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetOrderWithVendorOrders(t *testing.T) {
	srv, st := newTestServer(t, "")
	st.orders.order = &models.Order{ID: "o1", PaymentReference: "ref-1"}
	st.orders.vendorOrders = []models.VendorOrder{
		{ID: "vo1", OrderID: "o1", StoreID: "store-a"},
		{ID: "vo2", OrderID: "o1", StoreID: "store-b"},
	}

	w := doRequest(srv, http.MethodGet, "/api/v1/orders/ref-1", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var got struct {
		Order        models.Order         `json:"order"`
		VendorOrders []models.VendorOrder `json:"vendor_orders"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "o1", got.Order.ID)
	assert.Len(t, got.VendorOrders, 2)
}

func TestRefundRoutesToCancel(t *testing.T) {
	srv, st := newTestServer(t, "")
	st.delivery.vendorOrder = &models.VendorOrder{ID: "vo1", Status: models.VendorOrderRefunded}

	w := doRequest(srv, http.MethodPost, "/api/v1/vendor-orders/vo1/refund", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.VendorOrderRefunded, st.delivery.cancelledTo)
}

func TestCollectHandover(t *testing.T) {
	srv, st := newTestServer(t, "")
	st.delivery.handover = &models.PostOfficeHandover{ID: "h1", Status: models.HandoverCollected}

	body := []byte(`{"qr_code":"token-1","feedback":"thumbs_up"}`)
	w := doRequest(srv, http.MethodPost, "/api/v1/handovers/h1/collect", body, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var got models.PostOfficeHandover
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, models.HandoverCollected, got.Status)
}

func TestAddCartLine(t *testing.T) {
	srv, st := newTestServer(t, "")
	body := []byte(`{"user_id":"u1","product_id":"p1","store_id":"store-a","quantity":2,"unit_price":150000}`)
	w := doRequest(srv, http.MethodPost, "/api/v1/cart", body, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, st.carts.lines, 1)
	assert.NotEmpty(t, st.carts.lines[0].ID)
	assert.Equal(t, 2, st.carts.lines[0].Quantity)
}

func TestListCartRequiresUser(t *testing.T) {
	srv, _ := newTestServer(t, "")
	w := doRequest(srv, http.MethodGet, "/api/v1/cart", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
