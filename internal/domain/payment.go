package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusSucceeded  PaymentStatus = "succeeded"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusCanceled   PaymentStatus = "canceled"
)

const DefaultCurrency = "VND"

// IsTerminal reports whether no further transition is permitted from s.
func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case PaymentStatusSucceeded, PaymentStatusFailed, PaymentStatusCanceled:
		return true
	default:
		return false
	}
}

// CanTransitionTo enforces Pending -> Processing -> {Succeeded, Failed, Canceled}.
// Pending may also settle directly, which happens when the provider call timed
// out and the outcome arrives later through a webhook.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	switch s {
	case PaymentStatusPending:
		return next == PaymentStatusProcessing || next.IsTerminal()
	case PaymentStatusProcessing:
		return next.IsTerminal()
	default:
		return false
	}
}

// ParseOutcome maps provider and operator vocabulary onto a terminal status.
func ParseOutcome(s string) (PaymentStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "succeeded", "success", "paid", "completed":
		return PaymentStatusSucceeded, true
	case "failed", "failure", "declined":
		return PaymentStatusFailed, true
	case "canceled", "cancelled":
		return PaymentStatusCanceled, true
	default:
		return "", false
	}
}

type Payment struct {
	ID                uuid.UUID
	OrderCode         string
	Method            string
	Amount            decimal.Decimal
	Currency          string
	Status            PaymentStatus
	IdempotencyKey    *string
	ProviderReference *string
	RedirectURL       *string
	ReturnURL         *string
	FailureReason     *string
	RawPayload        json.RawMessage
	CreatedAt         time.Time
	UpdatedAt         time.Time
	CompletedAt       *time.Time
}

// MatchesKey reports whether the payment was created under key.
func (p *Payment) MatchesKey(key string) bool {
	return p.IdempotencyKey != nil && *p.IdempotencyKey == key
}
