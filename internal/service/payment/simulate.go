package payment

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/settlement/internal/domain"
)

type SimulateRequest struct {
	PaymentID uuid.UUID
	Result    string
	Reason    string
	Reference string
}

// Simulate settles a payment as if the provider had reported result. It is
// only reachable when simulation is enabled in config.
func (s *Service) Simulate(ctx context.Context, req SimulateRequest) (*SettleResult, error) {
	outcome, ok := domain.ParseOutcome(req.Result)
	if !ok {
		return nil, fmt.Errorf("Simulate: result %q: %w", req.Result, domain.ErrInvalidRequest)
	}

	raw, err := json.Marshal(map[string]string{
		"source":    "simulation",
		"result":    string(outcome),
		"reason":    req.Reason,
		"reference": req.Reference,
	})
	if err != nil {
		return nil, fmt.Errorf("Simulate: %w", err)
	}

	res, err := s.Settle(ctx, SettleRequest{
		PaymentID:   req.PaymentID,
		Outcome:     outcome,
		ExternalRef: req.Reference,
		RawPayload:  raw,
		Reason:      req.Reason,
		Actor:       "simulation",
	})
	if err != nil {
		return nil, fmt.Errorf("Simulate: %w", err)
	}
	return res, nil
}
