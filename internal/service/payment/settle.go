package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/settlement/internal/callback"
	"github.com/josh-kwaku/settlement/internal/domain"
	"github.com/josh-kwaku/settlement/internal/logging"
)

type SettleRequest struct {
	PaymentID   uuid.UUID
	Outcome     domain.PaymentStatus
	ExternalRef string
	RawPayload  []byte
	Reason      string
	// Actor names who reported the outcome, for logs.
	Actor string
}

// SettleResult reports whether this call performed the transition. Changed is
// false when the payment was already terminal.
type SettleResult struct {
	Payment *domain.Payment
	Changed bool
}

// Settle moves a payment to a terminal status and records the matching outbox
// message in the same transaction. Settling a terminal payment is a no-op.
// The synchronous callback runs after commit and never fails the call.
func (s *Service) Settle(ctx context.Context, req SettleRequest) (*SettleResult, error) {
	if !req.Outcome.IsTerminal() {
		return nil, fmt.Errorf("Settle: outcome %q: %w", req.Outcome, domain.ErrInvalidTransition)
	}
	ctx = logging.With(ctx, "payment_id", req.PaymentID)
	log := logging.FromContext(ctx)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("Settle: begin tx: %w", err)
	}
	defer tx.Rollback()

	p, err := s.payments.GetForUpdate(ctx, tx, req.PaymentID)
	if err != nil {
		return nil, fmt.Errorf("Settle: %w", err)
	}

	if p.Status.IsTerminal() {
		log.Info("payment already settled, ignoring",
			"status", p.Status,
			"requested", req.Outcome,
			"actor", req.Actor,
		)
		s.metrics.Settled(string(req.Outcome), false)
		return &SettleResult{Payment: p}, nil
	}
	if !p.Status.CanTransitionTo(req.Outcome) {
		return nil, fmt.Errorf("Settle: %s -> %s: %w", p.Status, req.Outcome, domain.ErrInvalidTransition)
	}

	now := s.now()
	p.Status = req.Outcome
	p.CompletedAt = &now
	p.UpdatedAt = now
	if req.ExternalRef != "" {
		ref := req.ExternalRef
		p.ProviderReference = &ref
	}
	if req.Reason != "" && req.Outcome != domain.PaymentStatusSucceeded {
		reason := req.Reason
		p.FailureReason = &reason
	}
	if len(req.RawPayload) > 0 {
		p.RawPayload = auditPayload(req.RawPayload)
	}

	if err := s.payments.Update(ctx, tx, p); err != nil {
		return nil, fmt.Errorf("Settle: %w", err)
	}

	msg, err := newSettledMessage(p, req.Reason, now)
	if err != nil {
		return nil, fmt.Errorf("Settle: %w", err)
	}
	if err := s.outbox.Enqueue(ctx, tx, msg); err != nil {
		return nil, fmt.Errorf("Settle: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("Settle: commit: %w", err)
	}

	log.Info("payment settled",
		"order_code", p.OrderCode,
		"status", p.Status,
		"actor", req.Actor,
		"outbox_id", msg.ID,
	)
	s.metrics.Settled(string(p.Status), true)

	s.notifyOrder(ctx, p)
	return &SettleResult{Payment: p, Changed: true}, nil
}

// notifyOrder is the fast path to the order service. The outbox message
// written by Settle is the durable path, so failures here are only logged.
func (s *Service) notifyOrder(ctx context.Context, p *domain.Payment) {
	if s.notifier == nil {
		return
	}
	body := callback.Body{OrderCode: p.OrderCode, Status: string(p.Status)}
	if p.ProviderReference != nil {
		body.ProviderRef = *p.ProviderReference
	}

	err := s.notifier.Notify(context.WithoutCancel(ctx), body)
	s.metrics.CallbackSent(err)
	if err != nil {
		logging.FromContext(ctx).Warn("order callback failed, outbox will retry",
			"order_code", p.OrderCode,
			"status", p.Status,
			"error", err,
		)
	}
}

func newSettledMessage(p *domain.Payment, reason string, at time.Time) (*domain.OutboxMessage, error) {
	ev := domain.PaymentSettledEvent{
		PaymentID:  p.ID,
		OrderCode:  p.OrderCode,
		Status:     p.Status,
		Amount:     p.Amount,
		Currency:   p.Currency,
		Reason:     reason,
		OccurredAt: at,
	}
	if p.ProviderReference != nil {
		ev.ProviderRef = *p.ProviderReference
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("newSettledMessage: %w", err)
	}

	return &domain.OutboxMessage{
		ID:            uuid.New(),
		AggregateID:   p.ID,
		EventType:     domain.EventTypeFor(p.Status),
		Payload:       payload,
		Status:        domain.OutboxStatusPending,
		NextAttemptAt: at,
		CreatedAt:     at,
	}, nil
}

// auditPayload keeps the provider body verbatim when it is JSON and wraps it
// as a JSON string otherwise, so it always fits the jsonb column.
func auditPayload(raw []byte) json.RawMessage {
	if json.Valid(raw) {
		return json.RawMessage(raw)
	}
	wrapped, _ := json.Marshal(string(raw))
	return wrapped
}
