package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/josh-kwaku/settlement/internal/domain"
	"github.com/josh-kwaku/settlement/internal/logging"
	"github.com/josh-kwaku/settlement/internal/service/payment"
)

const maxWebhookBody = 1 << 20

type webhookService interface {
	HandleWebhook(ctx context.Context, providerName string, headers http.Header, body []byte) (*payment.SettleResult, error)
}

type WebhookHandler struct {
	payments webhookService
}

func NewWebhookHandler(payments webhookService) *WebhookHandler {
	return &WebhookHandler{payments: payments}
}

type webhookAck struct {
	Received bool   `json:"received"`
	Ignored  bool   `json:"ignored,omitempty"`
	Changed  bool   `json:"changed"`
	Status   string `json:"status,omitempty"`
}

// Receive handles POST /api/payments/webhook/{provider}. Redeliveries of an
// already applied event are acknowledged with 200 so the provider stops
// retrying.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	providerName := r.PathValue("provider")
	log := logging.FromContext(r.Context()).With("provider", providerName)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil || len(body) == 0 {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	res, err := h.payments.HandleWebhook(r.Context(), providerName, r.Header, body)
	if err != nil {
		if errors.Is(err, domain.ErrWebhookIgnored) {
			log.Info("webhook event ignored", "error", err)
			RespondSuccess(w, http.StatusOK, webhookAck{Received: true, Ignored: true})
			return
		}
		log.Warn("webhook rejected", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, webhookAck{
		Received: true,
		Changed:  res.Changed,
		Status:   string(res.Payment.Status),
	})
}
