package handler_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/settlement/internal/callback"
	"github.com/josh-kwaku/settlement/internal/config"
	"github.com/josh-kwaku/settlement/internal/domain"
	"github.com/josh-kwaku/settlement/internal/handler"
	"github.com/josh-kwaku/settlement/internal/middleware"
	"github.com/josh-kwaku/settlement/internal/outbox"
	"github.com/josh-kwaku/settlement/internal/provider"
	"github.com/josh-kwaku/settlement/internal/repository"
	"github.com/josh-kwaku/settlement/internal/service/order"
	"github.com/josh-kwaku/settlement/internal/service/payment"
	"github.com/josh-kwaku/settlement/internal/testutil"
)

const e2eSecret = "e2e-shared-secret"

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   json.RawMessage `json:"error"`
}

type stack struct {
	db       *sql.DB
	orderAPI *httptest.Server
	payAPI   *httptest.Server
	notifier *callback.Notifier
}

func newStack(t *testing.T) *stack {
	t.Helper()
	db := testutil.SetupTestDB(t)

	orders := order.NewService(
		repository.NewCartRepository(db),
		repository.NewOrderRepository(db),
		callback.NewVerifier(e2eSecret, time.Minute),
		db,
		nil,
	)
	orderHandler := handler.NewOrderHandler(orders)
	orderMux := http.NewServeMux()
	orderMux.HandleFunc("POST /api/orders/payment/callback", orderHandler.PaymentCallback)
	orderMux.Handle("POST /api/orders/checkout",
		middleware.Idempotency(repository.NewIdempotencyRepository(db))(http.HandlerFunc(orderHandler.Checkout)))
	orderMux.HandleFunc("GET /api/orders/{orderNo}", orderHandler.Get)
	orderAPI := httptest.NewServer(middleware.Chain(orderMux, middleware.Tracing, middleware.Logging, middleware.Recovery))
	t.Cleanup(orderAPI.Close)

	reg, err := provider.NewRegistry(provider.NewFake(e2eSecret, ""))
	require.NoError(t, err)
	notifier := callback.NewNotifier(orderAPI.URL, e2eSecret, 2*time.Second)
	payments := payment.NewService(
		repository.NewPaymentRepository(db),
		repository.NewOutboxRepository(db),
		reg,
		notifier,
		db,
		nil,
		&config.Payment{ProviderTimeout: 2 * time.Second},
	)
	paymentHandler := handler.NewPaymentHandler(payments)
	webhookHandler := handler.NewWebhookHandler(payments)
	payMux := http.NewServeMux()
	payMux.HandleFunc("POST /api/payments", paymentHandler.Create)
	payMux.HandleFunc("POST /api/payments/webhook/{provider}", webhookHandler.Receive)
	payAPI := httptest.NewServer(middleware.Chain(payMux, middleware.Tracing, middleware.Logging, middleware.Recovery))
	t.Cleanup(payAPI.Close)

	return &stack{db: db, orderAPI: orderAPI, payAPI: payAPI, notifier: notifier}
}

func postJSON(t *testing.T, url string, body any, headers map[string]string) (*http.Response, envelope) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp, env
}

// postWebhook sends a fake provider webhook signed with key.
func postWebhook(t *testing.T, s *stack, body map[string]string, key string) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, s.payAPI.URL+"/api/payments/webhook/fake", bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(provider.SignatureHeader, provider.Sign(key, raw))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp
}

func checkoutCart(t *testing.T, s *stack, cartKey string) string {
	t.Helper()
	testutil.SeedCart(t, s.db, cartKey,
		testutil.CartLine{SKU: "TEE-M", Quantity: 2, UnitPrice: "120000"},
	)

	resp, env := postJSON(t, s.orderAPI.URL+"/api/orders/checkout", map[string]any{
		"cartKey":       cartKey,
		"shippingFee":   "30000",
		"paymentMethod": "FAKE",
	}, map[string]string{handler.HeaderIdempotencyKey: "checkout-" + cartKey})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var o struct {
		OrderNo string          `json:"orderNo"`
		Total   decimal.Decimal `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &o))
	assert.True(t, decimal.NewFromInt(270000).Equal(o.Total), "total %s", o.Total)
	return o.OrderNo
}

func createPayment(t *testing.T, s *stack, orderNo, key string) (int, string) {
	t.Helper()
	resp, env := postJSON(t, s.payAPI.URL+"/api/payments", map[string]any{
		"method":    "FAKE",
		"amount":    "270000",
		"orderCode": orderNo,
	}, map[string]string{handler.HeaderIdempotencyKey: key})

	var p struct {
		ProviderRef string `json:"providerRef"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &p))
	return resp.StatusCode, p.ProviderRef
}

func TestSettlementFlow_WebhookPaysOrder(t *testing.T) {
	s := newStack(t)
	orderNo := checkoutCart(t, s, "e2e-cart-1")
	assert.Equal(t, domain.OrderStatusPending, testutil.GetOrderStatus(t, s.db, orderNo))

	status, ref := createPayment(t, s, orderNo, "pay-1")
	require.Equal(t, http.StatusCreated, status)
	require.NotEmpty(t, ref)

	replayStatus, replayRef := createPayment(t, s, orderNo, "pay-1")
	assert.Equal(t, http.StatusOK, replayStatus)
	assert.Equal(t, ref, replayRef)

	webhook := map[string]string{"event": "payment.succeeded", "reference": ref}
	resp := postWebhook(t, s, webhook, "not-the-secret")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, domain.OrderStatusPending, testutil.GetOrderStatus(t, s.db, orderNo))

	resp = postWebhook(t, s, webhook, e2eSecret)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, domain.OrderStatusPaid, testutil.GetOrderStatus(t, s.db, orderNo))

	// A provider retry changes nothing on either side.
	resp = postWebhook(t, s, webhook, e2eSecret)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, domain.OrderStatusPaid, testutil.GetOrderStatus(t, s.db, orderNo))
}

func TestSettlementFlow_OutboxRedeliveryIsHarmless(t *testing.T) {
	s := newStack(t)
	orderNo := checkoutCart(t, s, "e2e-cart-2")

	_, ref := createPayment(t, s, orderNo, "pay-2")
	resp := postWebhook(t, s,
		map[string]string{"event": "payment.failed", "reference": ref, "reason": "card_declined"}, e2eSecret)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, domain.OrderStatusCancelled, testutil.GetOrderStatus(t, s.db, orderNo))

	dispatcher := outbox.NewDispatcher(
		repository.NewOutboxRepository(s.db),
		outbox.NewCallbackPublisher(s.notifier),
		nil,
		slog.Default(),
		outbox.Config{BatchSize: 10, MaxAttempts: 3},
	)
	n, err := dispatcher.DispatchOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var dispatched int
	require.NoError(t, s.db.QueryRow(
		`SELECT count(*) FROM outbox_messages WHERE status = $1`, domain.OutboxStatusDispatched,
	).Scan(&dispatched))
	assert.Equal(t, 1, dispatched)
	assert.Equal(t, domain.OrderStatusCancelled, testutil.GetOrderStatus(t, s.db, orderNo))
}

func TestSettlementFlow_ForgedCallbackRejected(t *testing.T) {
	s := newStack(t)
	orderNo := checkoutCart(t, s, "e2e-cart-3")

	forged := callback.NewNotifier(s.orderAPI.URL, "wrong-secret", time.Second)
	err := forged.Notify(context.Background(), callback.Body{OrderCode: orderNo, Status: "succeeded"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), fmt.Sprintf("%d", http.StatusUnauthorized))
	assert.Equal(t, domain.OrderStatusPending, testutil.GetOrderStatus(t, s.db, orderNo))
}
