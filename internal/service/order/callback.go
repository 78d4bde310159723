package order

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/josh-kwaku/settlement/internal/callback"
	"github.com/josh-kwaku/settlement/internal/domain"
	"github.com/josh-kwaku/settlement/internal/logging"
	"github.com/josh-kwaku/settlement/internal/metrics"
)

// CallbackRequest is an inbound payment callback with its auth headers.
type CallbackRequest struct {
	Body      callback.Body
	Timestamp string
	Signature string
}

// ApplyResult reports the order after a callback. Changed is false when the
// callback would not move the order forward.
type ApplyResult struct {
	Order   *domain.Order
	Changed bool
}

// HandleCallback authenticates the callback before touching any order.
func (s *Service) HandleCallback(ctx context.Context, req CallbackRequest) (*ApplyResult, error) {
	ctx = logging.With(ctx, "order_code", req.Body.OrderCode)

	if err := s.verifier.Verify(req.Body.OrderCode, req.Body.Status, req.Timestamp, req.Signature); err != nil {
		logging.FromContext(ctx).Warn("payment callback rejected",
			"status", req.Body.Status,
			"timestamp", req.Timestamp,
			"error", err,
		)
		s.metrics.CallbackReceived(metrics.ResultRejected)
		return nil, fmt.Errorf("HandleCallback: %w", err)
	}

	res, err := s.ApplyPaymentStatus(ctx, req.Body.OrderCode, req.Body.Status, req.Body.ProviderRef)
	switch {
	case err != nil:
		s.metrics.CallbackReceived(metrics.ResultError)
	case res.Changed:
		s.metrics.CallbackReceived(metrics.ResultOK)
	default:
		s.metrics.CallbackReceived(metrics.ResultUnchanged)
	}
	if err != nil {
		return nil, fmt.Errorf("HandleCallback: %w", err)
	}
	return res, nil
}

// ApplyPaymentStatus maps a payment status onto the order. Moves that would
// regress the order are ignored, so redelivered callbacks are harmless.
func (s *Service) ApplyPaymentStatus(ctx context.Context, orderCode, paymentStatus, providerRef string) (*ApplyResult, error) {
	orderCode = strings.TrimSpace(orderCode)
	if orderCode == "" {
		return nil, fmt.Errorf("ApplyPaymentStatus: %w", domain.ErrInvalidRequest)
	}
	log := logging.FromContext(ctx)
	next := domain.OrderStatusFromPayment(paymentStatus)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("ApplyPaymentStatus: begin tx: %w", err)
	}
	defer tx.Rollback()

	o, err := s.orders.GetForUpdateByOrderNo(ctx, tx, orderCode)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Warn("payment callback for unknown order", "status", paymentStatus)
		}
		return nil, fmt.Errorf("ApplyPaymentStatus: %w", err)
	}

	if !o.Status.CanAdvanceTo(next) {
		if o.Status == domain.OrderStatusCancelled && next == domain.OrderStatusPaid {
			log.Warn("payment succeeded for cancelled order, needs manual refund",
				"provider_ref", providerRef,
			)
		} else {
			log.Info("payment callback does not advance order",
				"order_status", o.Status,
				"requested", next,
			)
		}
		return &ApplyResult{Order: o}, nil
	}

	var ref *string
	if providerRef != "" {
		ref = &providerRef
	}
	if err := s.orders.UpdateStatus(ctx, tx, o.ID, next, ref); err != nil {
		return nil, fmt.Errorf("ApplyPaymentStatus: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("ApplyPaymentStatus: commit: %w", err)
	}

	log.Info("order status updated from payment",
		"from", o.Status,
		"to", next,
		"provider_ref", providerRef,
	)
	o.Status = next
	if ref != nil {
		o.PaymentRef = ref
	}
	o.UpdatedAt = s.now()
	return &ApplyResult{Order: o, Changed: true}, nil
}
