package payment

import (
	"context"
	"fmt"
	"net/http"

	"github.com/josh-kwaku/settlement/internal/domain"
	"github.com/josh-kwaku/settlement/internal/logging"
)

// HandleWebhook verifies a provider notification and settles the payment it
// refers to. Replays of an already applied webhook return Changed=false.
func (s *Service) HandleWebhook(ctx context.Context, providerName string, headers http.Header, body []byte) (*SettleResult, error) {
	ctx = logging.With(ctx, "provider", providerName)
	log := logging.FromContext(ctx)

	prov, err := s.providers.Resolve(providerName)
	if err != nil {
		return nil, fmt.Errorf("HandleWebhook: %w", err)
	}

	res, err := prov.VerifyWebhook(ctx, headers, body)
	if err != nil {
		return nil, fmt.Errorf("HandleWebhook: %w", err)
	}
	if !res.OK {
		log.Warn("provider webhook signature verification failed")
		return nil, fmt.Errorf("HandleWebhook: %w", domain.ErrInvalidSignature)
	}

	p, err := s.payments.GetByProviderReference(ctx, res.ExternalRef)
	if err != nil {
		log.Warn("webhook for unknown provider reference", "provider_ref", res.ExternalRef)
		return nil, fmt.Errorf("HandleWebhook: %w", err)
	}

	settled, err := s.Settle(ctx, SettleRequest{
		PaymentID:   p.ID,
		Outcome:     res.Outcome,
		ExternalRef: res.ExternalRef,
		RawPayload:  body,
		Reason:      res.Reason,
		Actor:       "provider:" + prov.Name(),
	})
	if err != nil {
		return nil, fmt.Errorf("HandleWebhook: %w", err)
	}
	return settled, nil
}
