package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/settlement/internal/domain"
	"github.com/josh-kwaku/settlement/internal/provider"
)

type receivedWebhook struct {
	headers http.Header
	body    []byte
}

func TestGateway_SessionSettlesThroughSandbox(t *testing.T) {
	tests := []struct {
		name        string
		amount      string
		wantOutcome domain.PaymentStatus
		wantReason  string
	}{
		{name: "approved", amount: "150000.00", wantOutcome: domain.PaymentStatusSucceeded},
		{name: "declined", amount: "150000.13", wantOutcome: domain.PaymentStatusFailed, wantReason: "insufficient_funds"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			received := make(chan receivedWebhook, 1)
			receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/webhook/vnpay", r.URL.Path)
				body, _ := io.ReadAll(r.Body)
				received <- receivedWebhook{headers: r.Header.Clone(), body: body}
				w.WriteHeader(http.StatusOK)
			}))
			defer receiver.Close()

			gw := newGateway("http://mock.local", "sandbox-secret", 0)
			srv := httptest.NewServer(gw.routes())
			defer srv.Close()

			sandbox := provider.NewSandbox("vnpay", srv.URL, receiver.URL+"/webhook", "sandbox-secret", 2*time.Second)
			p := &domain.Payment{
				ID:        uuid.New(),
				OrderCode: "OD1",
				Amount:    decimal.RequireFromString(tc.amount),
				Currency:  "VND",
			}

			session, err := sandbox.Create(context.Background(), p)
			require.NoError(t, err)
			assert.Contains(t, session.Reference, "vnpay_")
			assert.Equal(t, "http://mock.local/pay/"+session.Reference, session.RedirectURL)

			var wh receivedWebhook
			select {
			case wh = <-received:
			case <-time.After(5 * time.Second):
				t.Fatal("webhook not delivered")
			}
			gw.wait()

			res, err := sandbox.VerifyWebhook(context.Background(), wh.headers, wh.body)
			require.NoError(t, err)
			require.True(t, res.OK)
			assert.Equal(t, session.Reference, res.ExternalRef)
			assert.Equal(t, tc.wantOutcome, res.Outcome)
			assert.Equal(t, tc.wantReason, res.Reason)
		})
	}
}

func TestGateway_SessionReplayedForSamePayment(t *testing.T) {
	gw := newGateway("http://mock.local", "s", time.Hour)
	srv := httptest.NewServer(gw.routes())
	defer srv.Close()

	sandbox := provider.NewSandbox("momo", srv.URL, "http://payment.local/webhook", "s", 2*time.Second)
	p := &domain.Payment{ID: uuid.New(), OrderCode: "OD1", Amount: decimal.NewFromInt(100), Currency: "VND"}

	first, err := sandbox.Create(context.Background(), p)
	require.NoError(t, err)
	second, err := sandbox.Create(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, first.Reference, second.Reference)
	assert.Len(t, gw.sessions, 1)
}

func TestGateway_GetSession(t *testing.T) {
	gw := newGateway("http://mock.local", "s", time.Hour)
	gw.sessions["mock_1"] = &session{Reference: "mock_1", Status: "pending"}

	req := httptest.NewRequest(http.MethodGet, "/pay/mock_1", nil)
	rec := httptest.NewRecorder()
	gw.routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"pending"`)

	req = httptest.NewRequest(http.MethodGet, "/pay/missing", nil)
	rec = httptest.NewRecorder()
	gw.routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGateway_CreateSessionValidation(t *testing.T) {
	gw := newGateway("http://mock.local", "s", time.Hour)

	tests := []struct {
		name string
		body string
	}{
		{name: "malformed", body: `{`},
		{name: "missing callback", body: `{"payment_id":"p1","amount":"10.00"}`},
		{name: "missing amount", body: `{"payment_id":"p1","callback_url":"http://x"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/sessions", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			gw.routes().ServeHTTP(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
	assert.Empty(t, gw.sessions)
}

func TestOutcomeFor(t *testing.T) {
	assert.Equal(t, "succeeded", outcomeFor("r", "10.00").Status)
	assert.Equal(t, "succeeded", outcomeFor("r", "10.31").Status)
	declined := outcomeFor("r", "99.13")
	assert.Equal(t, "failed", declined.Status)
	assert.Equal(t, "insufficient_funds", declined.Reason)
}
