package payment

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/settlement/internal/callback"
	"github.com/josh-kwaku/settlement/internal/config"
	"github.com/josh-kwaku/settlement/internal/domain"
	"github.com/josh-kwaku/settlement/internal/metrics"
	"github.com/josh-kwaku/settlement/internal/provider"
)

type paymentRepo interface {
	Create(ctx context.Context, tx *sql.Tx, p *domain.Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	GetLatestByOrderCode(ctx context.Context, orderCode string) (*domain.Payment, error)
	GetByIdempotencyKey(ctx context.Context, orderCode, key string) (*domain.Payment, error)
	GetByProviderReference(ctx context.Context, ref string) (*domain.Payment, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Payment, error)
	Update(ctx context.Context, tx *sql.Tx, p *domain.Payment) error
}

type outboxRepo interface {
	Enqueue(ctx context.Context, tx *sql.Tx, msg *domain.OutboxMessage) error
}

type providerRegistry interface {
	Resolve(name string) (provider.Provider, error)
}

type orderNotifier interface {
	Notify(ctx context.Context, b callback.Body) error
}

type Service struct {
	payments  paymentRepo
	outbox    outboxRepo
	providers providerRegistry
	notifier  orderNotifier
	db        *sql.DB
	metrics   *metrics.Metrics
	config    *config.Payment
	now       func() time.Time
}

func NewService(
	payments paymentRepo,
	outbox outboxRepo,
	providers providerRegistry,
	notifier orderNotifier,
	db *sql.DB,
	m *metrics.Metrics,
	cfg *config.Payment,
) *Service {
	return &Service{
		payments:  payments,
		outbox:    outbox,
		providers: providers,
		notifier:  notifier,
		db:        db,
		metrics:   m,
		config:    cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	p, err := s.payments.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return p, nil
}

func (s *Service) providerTimeout() time.Duration {
	if s.config == nil || s.config.ProviderTimeout <= 0 {
		return 10 * time.Second
	}
	return s.config.ProviderTimeout
}
