// Package provider adapts external payment gateways to a single capability
// used by the payment service: open a session and verify inbound webhooks.
package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"

	"github.com/josh-kwaku/settlement/internal/domain"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw body on webhooks sent
// by the fake and sandbox gateways.
const SignatureHeader = "X-Provider-Signature"

type Session struct {
	Reference   string
	RedirectURL string
}

// WebhookResult is a verified webhook. OK is false when the signature did not
// match; the remaining fields are only meaningful when OK is true.
type WebhookResult struct {
	OK          bool
	ExternalRef string
	Outcome     domain.PaymentStatus
	Reason      string
}

type Provider interface {
	Name() string
	Create(ctx context.Context, p *domain.Payment) (Session, error)
	VerifyWebhook(ctx context.Context, headers http.Header, body []byte) (WebhookResult, error)
}

func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func verifyHMAC(body []byte, signature, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}
	return hmac.Equal([]byte(Sign(secret, body)), []byte(signature))
}
