package payment_test

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/settlement/internal/callback"
	"github.com/josh-kwaku/settlement/internal/config"
	"github.com/josh-kwaku/settlement/internal/domain"
	"github.com/josh-kwaku/settlement/internal/provider"
	"github.com/josh-kwaku/settlement/internal/repository"
	"github.com/josh-kwaku/settlement/internal/service/payment"
	"github.com/josh-kwaku/settlement/internal/testutil"
)

const fakeSecret = "fake-webhook-secret"

func signedHeader(body []byte) http.Header {
	h := http.Header{}
	h.Set(provider.SignatureHeader, provider.Sign(fakeSecret, body))
	return h
}

func setupPaymentService(t *testing.T, db *sql.DB, orderBaseURL string) *payment.Service {
	t.Helper()

	reg, err := provider.NewRegistry(provider.NewFake(fakeSecret, ""))
	require.NoError(t, err)

	return payment.NewService(
		repository.NewPaymentRepository(db),
		repository.NewOutboxRepository(db),
		reg,
		callback.NewNotifier(orderBaseURL, "shared-secret", time.Second),
		db,
		nil,
		&config.Payment{ProviderTimeout: 2 * time.Second},
	)
}

func fakeRequest(orderCode, key string) payment.CreateRequest {
	return payment.CreateRequest{
		Method:         "FAKE",
		Amount:         decimal.NewFromInt(100),
		OrderCode:      orderCode,
		IdempotencyKey: key,
	}
}

func countPayments(t *testing.T, db *sql.DB, orderCode string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT count(*) FROM payments WHERE order_code = $1`, orderCode).Scan(&n))
	return n
}

func TestCreate_Idempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupPaymentService(t, db, "http://127.0.0.1:1")
	ctx := context.Background()

	first, err := svc.Create(ctx, fakeRequest("OD1", "k1"))
	require.NoError(t, err)
	assert.False(t, first.Replayed)
	assert.Equal(t, domain.PaymentStatusProcessing, first.Payment.Status)

	second, err := svc.Create(ctx, fakeRequest("OD1", "k1"))
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Payment.ID, second.Payment.ID)

	assert.Equal(t, 1, countPayments(t, db, "OD1"))
}

func TestCreate_ConcurrentSameKey(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupPaymentService(t, db, "http://127.0.0.1:1")
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	results := make(chan *payment.CreateResult, workers)
	errs := make(chan error, workers)

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Create(ctx, fakeRequest("OD-RACE", "k1"))
			if err != nil {
				errs <- err
				return
			}
			results <- res
		}()
	}
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		t.Errorf("unexpected error: %v", err)
	}

	var created int
	ids := map[string]bool{}
	for res := range results {
		ids[res.Payment.ID.String()] = true
		if !res.Replayed {
			created++
		}
	}
	assert.Len(t, ids, 1, "all callers must see the same payment")
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, countPayments(t, db, "OD-RACE"))
}

func TestCreate_FailedAttemptFreesKey(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupPaymentService(t, db, "http://127.0.0.1:1")
	ctx := context.Background()

	_, err := svc.Create(ctx, fakeRequest("FAIL-OD2", "k1"))
	require.ErrorIs(t, err, domain.ErrProviderUnavailable)

	// Same key again: the failed row does not hold the unique index.
	_, err = svc.Create(ctx, fakeRequest("FAIL-OD2", "k1"))
	require.ErrorIs(t, err, domain.ErrProviderUnavailable)

	var failed int
	require.NoError(t, db.QueryRow(
		`SELECT count(*) FROM payments WHERE order_code = 'FAIL-OD2' AND status = 'failed' AND failure_reason IS NOT NULL`,
	).Scan(&failed))
	assert.Equal(t, 2, failed)
}

func TestSettle_ConcurrentOutcomes(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupPaymentService(t, db, "http://127.0.0.1:1")
	ctx := context.Background()

	created, err := svc.Create(ctx, fakeRequest("OD3", "k1"))
	require.NoError(t, err)
	id := created.Payment.ID

	var wg sync.WaitGroup
	results := make(chan *payment.SettleResult, 2)
	for _, outcome := range []domain.PaymentStatus{domain.PaymentStatusSucceeded, domain.PaymentStatusFailed} {
		wg.Add(1)
		go func(o domain.PaymentStatus) {
			defer wg.Done()
			res, err := svc.Settle(ctx, payment.SettleRequest{PaymentID: id, Outcome: o, Actor: "test"})
			if assert.NoError(t, err) {
				results <- res
			}
		}(outcome)
	}
	wg.Wait()
	close(results)

	var changed int
	var winner domain.PaymentStatus
	for res := range results {
		if res.Changed {
			changed++
			winner = res.Payment.Status
		}
	}
	assert.Equal(t, 1, changed, "exactly one settle call may transition the payment")

	final, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, winner, final.Status)

	msgs, err := repository.NewOutboxRepository(db).ListByAggregate(ctx, id)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestSettle_OutboxSurvivesCallbackFailure(t *testing.T) {
	db := testutil.SetupTestDB(t)

	var hits int
	var mu sync.Mutex
	orderAPI := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer orderAPI.Close()

	svc := setupPaymentService(t, db, orderAPI.URL)
	ctx := context.Background()

	created, err := svc.Create(ctx, fakeRequest("OD4", "k1"))
	require.NoError(t, err)

	res, err := svc.Settle(ctx, payment.SettleRequest{
		PaymentID:   created.Payment.ID,
		Outcome:     domain.PaymentStatusSucceeded,
		ExternalRef: "ext_OD4",
	})
	require.NoError(t, err)
	assert.True(t, res.Changed)

	mu.Lock()
	assert.Equal(t, 1, hits)
	mu.Unlock()

	assert.Equal(t, 1, testutil.CountOutbox(t, db, created.Payment.ID, domain.OutboxEventPaymentSucceeded))

	// Replaying the settlement neither changes the row nor adds a message.
	again, err := svc.Settle(ctx, payment.SettleRequest{PaymentID: created.Payment.ID, Outcome: domain.PaymentStatusSucceeded})
	require.NoError(t, err)
	assert.False(t, again.Changed)
	assert.Equal(t, 1, testutil.CountOutbox(t, db, created.Payment.ID, domain.OutboxEventPaymentSucceeded))
}

func TestHandleWebhook_FakeProvider(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupPaymentService(t, db, "http://127.0.0.1:1")
	ctx := context.Background()

	created, err := svc.Create(ctx, fakeRequest("OD5", "k1"))
	require.NoError(t, err)
	ref := *created.Payment.ProviderReference

	body := []byte(`{"event":"payment.failed","reference":"` + ref + `","reason":"card_declined"}`)
	_, err = svc.HandleWebhook(ctx, "fake", http.Header{}, body)
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)

	res, err := svc.HandleWebhook(ctx, "fake", signedHeader(body), body)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, domain.PaymentStatusFailed, res.Payment.Status)

	stored, err := svc.Get(ctx, created.Payment.ID)
	require.NoError(t, err)
	assert.JSONEq(t, string(body), string(stored.RawPayload))
	require.NotNil(t, stored.FailureReason)
	assert.Equal(t, "card_declined", *stored.FailureReason)
	assert.Equal(t, 1, testutil.CountOutbox(t, db, created.Payment.ID, domain.OutboxEventPaymentFailed))

	// Provider retries the same webhook.
	res, err = svc.HandleWebhook(ctx, "fake", signedHeader(body), body)
	require.NoError(t, err)
	assert.False(t, res.Changed)
}
