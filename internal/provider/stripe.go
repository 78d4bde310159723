package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/client"
	"github.com/stripe/stripe-go/v80/webhook"

	"github.com/josh-kwaku/settlement/internal/domain"
	"github.com/josh-kwaku/settlement/internal/logging"
)

type Stripe struct {
	api           *client.API
	webhookSecret string
}

func NewStripe(secretKey, webhookSecret string) *Stripe {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &Stripe{api: api, webhookSecret: webhookSecret}
}

func (s *Stripe) Name() string { return "stripe" }

func (s *Stripe) Create(ctx context.Context, p *domain.Payment) (Session, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(minorUnits(p.Amount, p.Currency)),
		Currency: stripe.String(strings.ToLower(p.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata("payment_id", p.ID.String())
	params.AddMetadata("order_code", p.OrderCode)
	params.SetIdempotencyKey(p.ID.String())

	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return Session{}, fmt.Errorf("stripe.Create: %w", err)
	}

	logging.FromContext(ctx).Info("stripe payment intent created", "payment_id", p.ID, "intent_id", pi.ID)
	return Session{Reference: pi.ID}, nil
}

func (s *Stripe) VerifyWebhook(ctx context.Context, headers http.Header, body []byte) (WebhookResult, error) {
	event, err := webhook.ConstructEventWithOptions(body, headers.Get("Stripe-Signature"), s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		logging.FromContext(ctx).Warn("stripe webhook rejected", "error", err)
		return WebhookResult{}, nil
	}

	var outcome domain.PaymentStatus
	switch string(event.Type) {
	case "payment_intent.succeeded":
		outcome = domain.PaymentStatusSucceeded
	case "payment_intent.payment_failed":
		outcome = domain.PaymentStatusFailed
	case "payment_intent.canceled":
		outcome = domain.PaymentStatusCanceled
	default:
		return WebhookResult{}, fmt.Errorf("stripe: event %s: %w", event.Type, domain.ErrWebhookIgnored)
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return WebhookResult{}, fmt.Errorf("stripe: decode payment intent: %w", domain.ErrInvalidRequest)
	}

	res := WebhookResult{OK: true, ExternalRef: pi.ID, Outcome: outcome}
	switch {
	case pi.LastPaymentError != nil:
		res.Reason = pi.LastPaymentError.Msg
	case pi.CancellationReason != "":
		res.Reason = string(pi.CancellationReason)
	}
	return res, nil
}

var zeroDecimalCurrencies = map[string]bool{
	"bif": true, "clp": true, "djf": true, "gnf": true, "jpy": true, "kmf": true,
	"krw": true, "mga": true, "pyg": true, "rwf": true, "ugx": true, "vnd": true,
	"vuv": true, "xaf": true, "xof": true, "xpf": true,
}

// minorUnits converts an amount to the integer unit Stripe expects.
func minorUnits(amount decimal.Decimal, currency string) int64 {
	if zeroDecimalCurrencies[strings.ToLower(currency)] {
		return amount.Round(0).IntPart()
	}
	return amount.Shift(2).Round(0).IntPart()
}
