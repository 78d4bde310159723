package payment

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/settlement/internal/domain"
	"github.com/josh-kwaku/settlement/internal/logging"
	"github.com/josh-kwaku/settlement/internal/metrics"
	"github.com/josh-kwaku/settlement/internal/repository"
)

type CreateRequest struct {
	Method         string
	Amount         decimal.Decimal
	Currency       string
	OrderCode      string
	ReturnURL      string
	IdempotencyKey string
}

// CreateResult is the payment view returned to the client. Replayed is true
// when the request matched an earlier payment and no provider was called.
type CreateResult struct {
	Payment  *domain.Payment
	Replayed bool
}

func (r *CreateRequest) normalize() error {
	r.IdempotencyKey = strings.TrimSpace(r.IdempotencyKey)
	r.OrderCode = strings.TrimSpace(r.OrderCode)
	r.Method = strings.TrimSpace(r.Method)
	r.Currency = strings.ToUpper(strings.TrimSpace(r.Currency))

	if r.IdempotencyKey == "" {
		return domain.ErrMissingIdempotencyKey
	}
	if r.OrderCode == "" || r.Method == "" {
		return domain.ErrInvalidRequest
	}
	if !r.Amount.IsPositive() {
		return domain.ErrInvalidAmount
	}
	if r.Currency == "" {
		r.Currency = domain.DefaultCurrency
	}
	return nil
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	if err := req.normalize(); err != nil {
		return nil, fmt.Errorf("Create: %w", err)
	}
	ctx = logging.With(ctx, "order_code", req.OrderCode, "provider", req.Method)
	log := logging.FromContext(ctx)

	existing, err := s.checkIdempotency(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Create: %w", err)
	}
	if existing != nil {
		if s.needsSession(existing) {
			return s.resumeSession(ctx, req, existing)
		}
		log.Info("payment request replayed", "payment_id", existing.ID, "status", existing.Status)
		s.metrics.PaymentCreated(req.Method, metrics.ResultReplayed)
		return &CreateResult{Payment: existing, Replayed: true}, nil
	}

	p, err := s.insertPending(ctx, req)
	if err != nil {
		if repository.IsUniqueViolation(err, repository.PaymentIdempotencyIndex) {
			winner, lookupErr := s.payments.GetByIdempotencyKey(ctx, req.OrderCode, req.IdempotencyKey)
			if lookupErr != nil {
				return nil, fmt.Errorf("Create: re-read after conflict: %w", lookupErr)
			}
			log.Info("concurrent payment request replayed", "payment_id", winner.ID)
			s.metrics.PaymentCreated(req.Method, metrics.ResultReplayed)
			return &CreateResult{Payment: winner, Replayed: true}, nil
		}
		return nil, fmt.Errorf("Create: %w", err)
	}

	p, err = s.openSession(ctx, p)
	if err != nil {
		s.metrics.PaymentCreated(req.Method, metrics.ResultError)
		return nil, fmt.Errorf("Create: %w", err)
	}

	s.metrics.PaymentCreated(req.Method, metrics.ResultOK)
	log.Info("payment created", "payment_id", p.ID, "status", p.Status)
	return &CreateResult{Payment: p}, nil
}

// checkIdempotency returns the payment a retried request should see, or nil
// when a new attempt may be created.
func (s *Service) checkIdempotency(ctx context.Context, req CreateRequest) (*domain.Payment, error) {
	latest, err := s.payments.GetLatestByOrderCode(ctx, req.OrderCode)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("checkIdempotency: %w", err)
	}

	switch latest.Status {
	case domain.PaymentStatusPending, domain.PaymentStatusProcessing, domain.PaymentStatusSucceeded:
		if latest.MatchesKey(req.IdempotencyKey) {
			return latest, nil
		}
	}
	if latest.Status == domain.PaymentStatusSucceeded {
		return nil, fmt.Errorf("checkIdempotency: %w", domain.ErrOrderAlreadyPaid)
	}
	return nil, nil
}

// needsSession reports whether a replayed payment never got a provider session,
// which happens when the provider call timed out. Rows younger than the
// provider timeout may still have a call in flight and are left alone.
func (s *Service) needsSession(p *domain.Payment) bool {
	return p.Status == domain.PaymentStatusPending &&
		p.ProviderReference == nil &&
		s.now().Sub(p.UpdatedAt) >= s.providerTimeout()
}

// resumeSession retries the provider call for a payment left pending by a
// timeout. Providers key sessions on the payment id, so a session opened by
// the lost call is not duplicated.
func (s *Service) resumeSession(ctx context.Context, req CreateRequest, p *domain.Payment) (*CreateResult, error) {
	logging.FromContext(ctx).Info("reopening provider session for pending payment", "payment_id", p.ID)

	updated, err := s.openSession(ctx, p)
	if err != nil {
		s.metrics.PaymentCreated(req.Method, metrics.ResultError)
		return nil, fmt.Errorf("Create: %w", err)
	}
	s.metrics.PaymentCreated(req.Method, metrics.ResultReplayed)
	return &CreateResult{Payment: updated, Replayed: true}, nil
}

func (s *Service) insertPending(ctx context.Context, req CreateRequest) (*domain.Payment, error) {
	now := s.now()
	key := req.IdempotencyKey
	p := &domain.Payment{
		ID:             uuid.New(),
		OrderCode:      req.OrderCode,
		Method:         req.Method,
		Amount:         req.Amount,
		Currency:       req.Currency,
		Status:         domain.PaymentStatusPending,
		IdempotencyKey: &key,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if req.ReturnURL != "" {
		ret := req.ReturnURL
		p.ReturnURL = &ret
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("insertPending: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := s.payments.Create(ctx, tx, p); err != nil {
		return nil, fmt.Errorf("insertPending: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("insertPending: commit: %w", err)
	}
	return p, nil
}

// openSession calls the provider outside any transaction. A provider error
// fails the payment; a timeout leaves it pending because the provider may
// still have opened the session.
func (s *Service) openSession(ctx context.Context, p *domain.Payment) (*domain.Payment, error) {
	log := logging.FromContext(ctx).With("payment_id", p.ID)

	prov, err := s.providers.Resolve(p.Method)
	if err != nil {
		log.Warn("payment provider not registered")
		if markErr := s.markFailed(ctx, p.ID, "provider not found: "+p.Method); markErr != nil {
			return nil, fmt.Errorf("openSession: %w", markErr)
		}
		return nil, fmt.Errorf("openSession: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.providerTimeout())
	session, err := prov.Create(callCtx, p)
	cancel()

	if err != nil {
		if isTimeout(err) {
			log.Warn("provider call timed out, payment left pending", "error", err)
			return nil, fmt.Errorf("openSession: %s: %w", prov.Name(), domain.ErrProviderTimeout)
		}
		log.Error("provider rejected session", "error", err)
		if markErr := s.markFailed(ctx, p.ID, err.Error()); markErr != nil {
			return nil, fmt.Errorf("openSession: %w", markErr)
		}
		return nil, fmt.Errorf("openSession: %s: %w: %w", prov.Name(), domain.ErrProviderUnavailable, err)
	}

	updated, err := s.attachSession(ctx, p.ID, session.Reference, session.RedirectURL)
	if err != nil {
		return nil, fmt.Errorf("openSession: %w", err)
	}
	return updated, nil
}

func (s *Service) attachSession(ctx context.Context, id uuid.UUID, ref, redirectURL string) (*domain.Payment, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("attachSession: begin tx: %w", err)
	}
	defer tx.Rollback()

	p, err := s.payments.GetForUpdate(ctx, tx, id)
	if err != nil {
		return nil, fmt.Errorf("attachSession: %w", err)
	}

	// A settlement may already have landed, e.g. through the simulation
	// endpoint. Keep its status but still record the session.
	if p.Status.CanTransitionTo(domain.PaymentStatusProcessing) {
		p.Status = domain.PaymentStatusProcessing
	}
	if ref != "" && p.ProviderReference == nil {
		p.ProviderReference = &ref
	}
	if redirectURL != "" {
		p.RedirectURL = &redirectURL
	}
	p.UpdatedAt = s.now()

	if err := s.payments.Update(ctx, tx, p); err != nil {
		return nil, fmt.Errorf("attachSession: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("attachSession: commit: %w", err)
	}
	return p, nil
}

func (s *Service) markFailed(ctx context.Context, id uuid.UUID, reason string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("markFailed: begin tx: %w", err)
	}
	defer tx.Rollback()

	p, err := s.payments.GetForUpdate(ctx, tx, id)
	if err != nil {
		return fmt.Errorf("markFailed: %w", err)
	}
	if p.Status.IsTerminal() {
		return nil
	}

	now := s.now()
	p.Status = domain.PaymentStatusFailed
	p.FailureReason = &reason
	p.CompletedAt = &now
	p.UpdatedAt = now

	if err := s.payments.Update(ctx, tx, p); err != nil {
		return fmt.Errorf("markFailed: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("markFailed: commit: %w", err)
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
