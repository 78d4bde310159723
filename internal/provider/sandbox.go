package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/josh-kwaku/settlement/internal/domain"
	"github.com/josh-kwaku/settlement/internal/logging"
)

// Sandbox talks to the redirect-style mock gateway in cmd/mock-provider. The
// VNPay and Momo integrations are both Sandbox instances under different
// names until real adapters exist.
type Sandbox struct {
	name        string
	baseURL     string
	callbackURL string
	secret      string
	httpClient  *http.Client
}

func NewSandbox(name, baseURL, webhookBaseURL, secret string, timeout time.Duration) *Sandbox {
	return &Sandbox{
		name:        strings.ToLower(name),
		baseURL:     strings.TrimRight(baseURL, "/"),
		callbackURL: strings.TrimRight(webhookBaseURL, "/") + "/" + strings.ToLower(name),
		secret:      secret,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (s *Sandbox) Name() string { return s.name }

// SessionRequest is the body accepted by the mock gateway's POST /sessions.
type SessionRequest struct {
	PaymentID   string `json:"payment_id"`
	OrderCode   string `json:"order_code"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Gateway     string `json:"gateway"`
	ReturnURL   string `json:"return_url,omitempty"`
	CallbackURL string `json:"callback_url"`
}

type SessionResponse struct {
	Reference   string `json:"reference"`
	RedirectURL string `json:"redirect_url"`
}

// SandboxWebhook is the body the mock gateway posts back to CallbackURL.
type SandboxWebhook struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
}

func (s *Sandbox) Create(ctx context.Context, p *domain.Payment) (Session, error) {
	log := logging.FromContext(ctx)

	req := SessionRequest{
		PaymentID:   p.ID.String(),
		OrderCode:   p.OrderCode,
		Amount:      p.Amount.StringFixed(2),
		Currency:    p.Currency,
		Gateway:     s.name,
		CallbackURL: s.callbackURL,
	}
	if p.ReturnURL != nil {
		req.ReturnURL = *p.ReturnURL
	}

	body, err := json.Marshal(req)
	if err != nil {
		return Session{}, fmt.Errorf("%s.Create: marshal: %w", s.name, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/sessions", bytes.NewReader(body))
	if err != nil {
		return Session{}, fmt.Errorf("%s.Create: build request: %w", s.name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	log.Info("provider request sent", "provider", s.name, "payment_id", p.ID)

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return Session{}, fmt.Errorf("%s.Create: send: %w", s.name, err)
	}
	defer resp.Body.Close()

	log.Info("provider response received",
		"provider", s.name,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Session{}, fmt.Errorf("%s.Create: unexpected status %d: %s", s.name, resp.StatusCode, string(respBody))
	}

	var out SessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Session{}, fmt.Errorf("%s.Create: decode: %w", s.name, err)
	}
	if out.Reference == "" {
		return Session{}, fmt.Errorf("%s.Create: empty reference", s.name)
	}
	return Session{Reference: out.Reference, RedirectURL: out.RedirectURL}, nil
}

func (s *Sandbox) VerifyWebhook(_ context.Context, headers http.Header, body []byte) (WebhookResult, error) {
	if !verifyHMAC(body, headers.Get(SignatureHeader), s.secret) {
		return WebhookResult{}, nil
	}

	var wh SandboxWebhook
	if err := json.Unmarshal(body, &wh); err != nil {
		return WebhookResult{}, fmt.Errorf("%s: decode webhook: %w", s.name, domain.ErrInvalidRequest)
	}
	if wh.Reference == "" {
		return WebhookResult{}, fmt.Errorf("%s: webhook without reference: %w", s.name, domain.ErrInvalidRequest)
	}

	outcome, ok := domain.ParseOutcome(wh.Status)
	if !ok {
		return WebhookResult{}, fmt.Errorf("%s: status %q: %w", s.name, wh.Status, domain.ErrWebhookIgnored)
	}

	return WebhookResult{
		OK:          true,
		ExternalRef: wh.Reference,
		Outcome:     outcome,
		Reason:      wh.Reason,
	}, nil
}
