package payment

import (
	"context"
	"database/sql"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/settlement/internal/callback"
	"github.com/josh-kwaku/settlement/internal/config"
	"github.com/josh-kwaku/settlement/internal/domain"
	"github.com/josh-kwaku/settlement/internal/provider"
	"github.com/josh-kwaku/settlement/internal/repository"
)

type memPayments struct {
	mu    sync.Mutex
	rows  []*domain.Payment
	fails map[string]error
}

func newMemPayments() *memPayments {
	return &memPayments{fails: map[string]error{}}
}

func clone(p *domain.Payment) *domain.Payment {
	c := *p
	return &c
}

func (m *memPayments) Create(_ context.Context, _ *sql.Tx, p *domain.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fails["Create"]; err != nil {
		return err
	}
	for _, r := range m.rows {
		if r.OrderCode == p.OrderCode && r.IdempotencyKey != nil && p.IdempotencyKey != nil &&
			*r.IdempotencyKey == *p.IdempotencyKey && !isFreed(r.Status) {
			return &pq.Error{Code: "23505", Constraint: repository.PaymentIdempotencyIndex}
		}
	}
	m.rows = append(m.rows, clone(p))
	return nil
}

func isFreed(s domain.PaymentStatus) bool {
	return s == domain.PaymentStatusFailed || s == domain.PaymentStatusCanceled
}

func (m *memPayments) GetByID(_ context.Context, id uuid.UUID) (*domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.ID == id {
			return clone(r), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memPayments) GetLatestByOrderCode(_ context.Context, orderCode string) (*domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.rows) - 1; i >= 0; i-- {
		if m.rows[i].OrderCode == orderCode {
			return clone(m.rows[i]), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memPayments) GetByIdempotencyKey(_ context.Context, orderCode, key string) (*domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.OrderCode == orderCode && r.MatchesKey(key) && !isFreed(r.Status) {
			return clone(r), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memPayments) GetByProviderReference(_ context.Context, ref string) (*domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.ProviderReference != nil && *r.ProviderReference == ref {
			return clone(r), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memPayments) GetForUpdate(ctx context.Context, _ *sql.Tx, id uuid.UUID) (*domain.Payment, error) {
	return m.GetByID(ctx, id)
}

func (m *memPayments) Update(_ context.Context, _ *sql.Tx, p *domain.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fails["Update"]; err != nil {
		return err
	}
	for i, r := range m.rows {
		if r.ID == p.ID {
			m.rows[i] = clone(p)
			return nil
		}
	}
	return domain.ErrNotFound
}

// put stores p as is, bypassing uniqueness checks.
func (m *memPayments) put(p *domain.Payment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, clone(p))
}

type memOutbox struct {
	mu   sync.Mutex
	msgs []domain.OutboxMessage
	err  error
}

func (m *memOutbox) Enqueue(_ context.Context, _ *sql.Tx, msg *domain.OutboxMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.msgs = append(m.msgs, *msg)
	return nil
}

type stubProvider struct {
	name    string
	session provider.Session
	err     error
	block   bool
	calls   int
	result  provider.WebhookResult
	verrErr error
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Create(ctx context.Context, _ *domain.Payment) (provider.Session, error) {
	p.calls++
	if p.block {
		<-ctx.Done()
		return provider.Session{}, ctx.Err()
	}
	return p.session, p.err
}

func (p *stubProvider) VerifyWebhook(context.Context, http.Header, []byte) (provider.WebhookResult, error) {
	return p.result, p.verrErr
}

type stubNotifier struct {
	mu    sync.Mutex
	err   error
	calls []callback.Body
}

func (n *stubNotifier) Notify(_ context.Context, b callback.Body) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, b)
	return n.err
}

type testEnv struct {
	svc      *Service
	mock     sqlmock.Sqlmock
	payments *memPayments
	outbox   *memOutbox
	provider *stubProvider
	notifier *stubNotifier
}

// newTestEnv wires a Service to in-memory repositories. Transactions still go
// through a sqlmock database so tests can assert commit and rollback.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Close()
	})

	env := &testEnv{
		mock:     mock,
		payments: newMemPayments(),
		outbox:   &memOutbox{},
		provider: &stubProvider{name: "fake", session: provider.Session{Reference: "ref-1", RedirectURL: "http://pay/ref-1"}},
		notifier: &stubNotifier{},
	}
	reg, err := provider.NewRegistry(env.provider)
	require.NoError(t, err)

	env.svc = NewService(env.payments, env.outbox, reg, env.notifier, db, nil,
		&config.Payment{ProviderTimeout: 50 * time.Millisecond})
	return env
}

func (e *testEnv) expectCommits(n int) {
	for range n {
		e.mock.ExpectBegin()
		e.mock.ExpectCommit()
	}
}

func (e *testEnv) assertMock(t *testing.T) {
	t.Helper()
	require.NoError(t, e.mock.ExpectationsWereMet())
}
