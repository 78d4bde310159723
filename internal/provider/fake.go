package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/josh-kwaku/settlement/internal/domain"
)

// FailPrefix makes the fake gateway reject session creation, which lets tests
// and local runs exercise the failure path deterministically.
const FailPrefix = "FAIL-"

// Fake is an in-process gateway. Sessions always succeed unless the order code
// starts with FailPrefix. Webhooks are plain JSON signed in SignatureHeader;
// without a secret every webhook is rejected.
type Fake struct {
	secret      string
	redirectURL string
}

func NewFake(secret, redirectURL string) *Fake {
	return &Fake{secret: secret, redirectURL: strings.TrimRight(redirectURL, "/")}
}

func (f *Fake) Name() string { return "fake" }

func (f *Fake) Create(_ context.Context, p *domain.Payment) (Session, error) {
	if strings.HasPrefix(strings.ToUpper(p.OrderCode), FailPrefix) {
		return Session{}, fmt.Errorf("fake: session declined for order %s", p.OrderCode)
	}
	ref := "fake_" + strings.ReplaceAll(p.ID.String(), "-", "")
	s := Session{Reference: ref}
	if f.redirectURL != "" {
		s.RedirectURL = f.redirectURL + "/" + ref
	}
	return s, nil
}

type fakeWebhook struct {
	Event     string `json:"event"`
	Reference string `json:"reference"`
	Reason    string `json:"reason,omitempty"`
}

func (f *Fake) VerifyWebhook(_ context.Context, headers http.Header, body []byte) (WebhookResult, error) {
	if !verifyHMAC(body, headers.Get(SignatureHeader), f.secret) {
		return WebhookResult{}, nil
	}

	var wh fakeWebhook
	if err := json.Unmarshal(body, &wh); err != nil {
		return WebhookResult{}, fmt.Errorf("fake: decode webhook: %w", domain.ErrInvalidRequest)
	}
	if wh.Reference == "" {
		return WebhookResult{}, fmt.Errorf("fake: webhook without reference: %w", domain.ErrInvalidRequest)
	}

	outcome, ok := domain.ParseOutcome(strings.TrimPrefix(wh.Event, "payment."))
	if !ok {
		return WebhookResult{}, fmt.Errorf("fake: event %q: %w", wh.Event, domain.ErrWebhookIgnored)
	}

	return WebhookResult{
		OK:          true,
		ExternalRef: wh.Reference,
		Outcome:     outcome,
		Reason:      wh.Reason,
	}, nil
}
