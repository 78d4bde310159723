package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/settlement/internal/domain"
)

const outboxColumns = `id, aggregate_id, event_type, payload, status,
	attempts, last_error, next_attempt_at, created_at, dispatched_at`

type OutboxRepository struct {
	db *sql.DB
}

func NewOutboxRepository(db *sql.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// Enqueue only accepts a tx: the message must commit or roll back together
// with the state change it describes.
func (r *OutboxRepository) Enqueue(ctx context.Context, tx *sql.Tx, msg *domain.OutboxMessage) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO outbox_messages (
			id, aggregate_id, event_type, payload, status, attempts, next_attempt_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		msg.ID, msg.AggregateID, msg.EventType, string(msg.Payload), msg.Status,
		msg.Attempts, msg.NextAttemptAt, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Enqueue: %w", err)
	}
	return nil
}

// ClaimDue leases up to limit due messages by pushing next_attempt_at forward
// by lease. SKIP LOCKED keeps concurrent dispatchers off each other's rows and
// the lease keeps them off rows that are still being published.
func (r *OutboxRepository) ClaimDue(ctx context.Context, limit int, lease time.Duration) ([]domain.OutboxMessage, error) {
	rows, err := r.db.QueryContext(ctx,
		`WITH due AS (
			SELECT id FROM outbox_messages
			WHERE status = $1 AND next_attempt_at <= now()
			ORDER BY next_attempt_at, created_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE outbox_messages o
		SET next_attempt_at = now() + make_interval(secs => $3)
		FROM due WHERE o.id = due.id
		RETURNING `+prefixColumns("o.", outboxColumns),
		domain.OutboxStatusPending, limit, lease.Seconds(),
	)
	if err != nil {
		return nil, fmt.Errorf("ClaimDue: %w", err)
	}
	defer rows.Close()

	var msgs []domain.OutboxMessage
	for rows.Next() {
		m, err := scanOutboxMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("ClaimDue: scan: %w", err)
		}
		msgs = append(msgs, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ClaimDue: rows: %w", err)
	}
	return msgs, nil
}

func (r *OutboxRepository) MarkDispatched(ctx context.Context, id uuid.UUID) error {
	return r.update(ctx, "MarkDispatched",
		`UPDATE outbox_messages SET status = $1, attempts = attempts + 1, last_error = NULL, dispatched_at = now()
		WHERE id = $2 AND status = $3`,
		domain.OutboxStatusDispatched, id, domain.OutboxStatusPending,
	)
}

func (r *OutboxRepository) ScheduleRetry(ctx context.Context, id uuid.UUID, next time.Time, lastErr string) error {
	return r.update(ctx, "ScheduleRetry",
		`UPDATE outbox_messages SET attempts = attempts + 1, last_error = $1, next_attempt_at = $2
		WHERE id = $3 AND status = $4`,
		lastErr, next, id, domain.OutboxStatusPending,
	)
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, lastErr string) error {
	return r.update(ctx, "MarkFailed",
		`UPDATE outbox_messages SET status = $1, attempts = attempts + 1, last_error = $2
		WHERE id = $3 AND status = $4`,
		domain.OutboxStatusFailed, lastErr, id, domain.OutboxStatusPending,
	)
}

func (r *OutboxRepository) ListByAggregate(ctx context.Context, aggregateID uuid.UUID) ([]domain.OutboxMessage, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+outboxColumns+` FROM outbox_messages WHERE aggregate_id = $1 ORDER BY created_at`,
		aggregateID,
	)
	if err != nil {
		return nil, fmt.Errorf("ListByAggregate: %w", err)
	}
	defer rows.Close()

	var msgs []domain.OutboxMessage
	for rows.Next() {
		m, err := scanOutboxMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("ListByAggregate: scan: %w", err)
		}
		msgs = append(msgs, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListByAggregate: rows: %w", err)
	}
	return msgs, nil
}

func (r *OutboxRepository) update(ctx context.Context, op, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	return nil
}

func scanOutboxMessage(s scanner) (*domain.OutboxMessage, error) {
	var m domain.OutboxMessage
	var payload []byte
	err := s.Scan(
		&m.ID, &m.AggregateID, &m.EventType, &payload, &m.Status,
		&m.Attempts, &m.LastError, &m.NextAttemptAt, &m.CreatedAt, &m.DispatchedAt,
	)
	if err != nil {
		return nil, err
	}
	m.Payload = payload
	return &m, nil
}
