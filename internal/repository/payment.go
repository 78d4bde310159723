package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/settlement/internal/domain"
)

// Index backing the (order_code, idempotency_key) dedupe for live payments.
const PaymentIdempotencyIndex = "uq_payments_order_code_idempotency_key"

const paymentColumns = `id, order_code, method, amount, currency, status,
	idempotency_key, provider_reference, redirect_url, return_url, failure_reason,
	raw_payload, created_at, updated_at, completed_at`

type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, tx *sql.Tx, p *domain.Payment) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO payments (
			id, order_code, method, amount, currency, status,
			idempotency_key, provider_reference, redirect_url, return_url, failure_reason,
			raw_payload, created_at, updated_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		p.ID, p.OrderCode, p.Method, p.Amount, p.Currency, p.Status,
		p.IdempotencyKey, p.ProviderReference, p.RedirectURL, p.ReturnURL, p.FailureReason,
		nullJSON(p.RawPayload), p.CreatedAt, p.UpdatedAt, p.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id,
	)
	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return p, nil
}

// GetLatestByOrderCode returns the most recently created payment for the order.
func (r *PaymentRepository) GetLatestByOrderCode(ctx context.Context, orderCode string) (*domain.Payment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments
		WHERE order_code = $1 ORDER BY created_at DESC, id DESC LIMIT 1`, orderCode,
	)
	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetLatestByOrderCode: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetLatestByOrderCode: %w", err)
	}
	return p, nil
}

// GetByIdempotencyKey returns the live payment holding key for the order.
// Failed and canceled attempts are ignored, mirroring the unique index.
func (r *PaymentRepository) GetByIdempotencyKey(ctx context.Context, orderCode, key string) (*domain.Payment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments
		WHERE order_code = $1 AND idempotency_key = $2 AND status NOT IN ($3, $4)`,
		orderCode, key, domain.PaymentStatusFailed, domain.PaymentStatusCanceled,
	)
	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByIdempotencyKey: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByIdempotencyKey: %w", err)
	}
	return p, nil
}

func (r *PaymentRepository) GetByProviderReference(ctx context.Context, ref string) (*domain.Payment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE provider_reference = $1`, ref,
	)
	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByProviderReference: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByProviderReference: %w", err)
	}
	return p, nil
}

func (r *PaymentRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Payment, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, id,
	)
	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return p, nil
}

// Update persists the mutable columns of a payment previously locked with
// GetForUpdate in the same tx.
func (r *PaymentRepository) Update(ctx context.Context, tx *sql.Tx, p *domain.Payment) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE payments SET status = $1, provider_reference = $2, redirect_url = $3,
			failure_reason = $4, raw_payload = $5, completed_at = $6, updated_at = $7
		WHERE id = $8`,
		p.Status, p.ProviderReference, p.RedirectURL,
		p.FailureReason, nullJSON(p.RawPayload), p.CompletedAt, p.UpdatedAt,
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("Update: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("Update: %w", domain.ErrNotFound)
	}
	return nil
}

func scanPayment(s scanner) (*domain.Payment, error) {
	var p domain.Payment
	var raw []byte

	err := s.Scan(
		&p.ID, &p.OrderCode, &p.Method, &p.Amount, &p.Currency, &p.Status,
		&p.IdempotencyKey, &p.ProviderReference, &p.RedirectURL, &p.ReturnURL, &p.FailureReason,
		&raw, &p.CreatedAt, &p.UpdatedAt, &p.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(raw) > 0 {
		p.RawPayload = raw
	}
	return &p, nil
}

// lib/pq sends []byte as bytea, which jsonb columns reject.
func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
