package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/settlement/internal/domain"
	"github.com/josh-kwaku/settlement/internal/logging"
	"github.com/josh-kwaku/settlement/internal/metrics"
)

const maxBackoff = 10 * time.Minute

type store interface {
	ClaimDue(ctx context.Context, limit int, lease time.Duration) ([]domain.OutboxMessage, error)
	MarkDispatched(ctx context.Context, id uuid.UUID) error
	ScheduleRetry(ctx context.Context, id uuid.UUID, next time.Time, lastErr string) error
	MarkFailed(ctx context.Context, id uuid.UUID, lastErr string) error
}

type Config struct {
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
	BaseBackoff time.Duration
	// Lease is how long a claimed message stays invisible to other
	// dispatchers. It must exceed the slowest publish.
	Lease time.Duration
}

type Dispatcher struct {
	store     store
	publisher Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	cfg       Config
	now       func() time.Time
}

func NewDispatcher(s store, p Publisher, m *metrics.Metrics, logger *slog.Logger, cfg Config) *Dispatcher {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 5 * time.Second
	}
	if cfg.Lease <= 0 {
		cfg.Lease = 30 * time.Second
	}
	return &Dispatcher{
		store:     s,
		publisher: p,
		metrics:   m,
		logger:    logger,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("outbox dispatcher started",
		"interval", d.cfg.Interval,
		"publisher", d.publisher.Name(),
	)

	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("outbox dispatcher stopped")
			return
		case <-ticker.C:
			if _, err := d.DispatchOnce(ctx); err != nil {
				d.logger.Error("outbox dispatch failed", "error", err)
			}
		}
	}
}

// DispatchOnce publishes one batch of due messages and returns how many were
// delivered. Per-message failures are recorded on the row, not returned.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (int, error) {
	msgs, err := d.store.ClaimDue(ctx, d.cfg.BatchSize, d.cfg.Lease)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, msg := range msgs {
		if d.dispatch(ctx, msg) {
			delivered++
		}
	}
	return delivered, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, msg domain.OutboxMessage) bool {
	log := d.logger.With(
		"outbox_id", msg.ID,
		"event_type", msg.EventType,
		"aggregate_id", msg.AggregateID,
		"attempt", msg.Attempts+1,
	)
	ctx = logging.WithLogger(ctx, log)
	eventType := string(msg.EventType)

	pubErr := d.publisher.Publish(ctx, msg)
	if pubErr == nil {
		if err := d.store.MarkDispatched(ctx, msg.ID); err != nil {
			log.Error("failed to mark outbox message dispatched", "error", err)
			return false
		}
		d.metrics.OutboxDispatched(eventType, metrics.ResultOK)
		log.Info("outbox message dispatched")
		return true
	}

	if msg.Attempts+1 >= d.cfg.MaxAttempts {
		if err := d.store.MarkFailed(ctx, msg.ID, pubErr.Error()); err != nil {
			log.Error("failed to mark outbox message failed", "error", err)
			return false
		}
		d.metrics.OutboxDispatched(eventType, metrics.ResultFailed)
		log.Error("outbox message gave up", "error", pubErr)
		return false
	}

	next := d.now().Add(backoff(d.cfg.BaseBackoff, msg.Attempts))
	if err := d.store.ScheduleRetry(ctx, msg.ID, next, pubErr.Error()); err != nil {
		log.Error("failed to schedule outbox retry", "error", err)
		return false
	}
	d.metrics.OutboxDispatched(eventType, metrics.ResultRetried)
	log.Warn("outbox publish failed, will retry", "next_attempt_at", next, "error", pubErr)
	return false
}

// backoff returns base * 2^attempts, capped at maxBackoff.
func backoff(base time.Duration, attempts int) time.Duration {
	d := base
	for i := 0; i < attempts; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return min(d, maxBackoff)
}
