package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "pending"
	OutboxStatusDispatched OutboxStatus = "dispatched"
	OutboxStatusFailed     OutboxStatus = "failed"
)

type OutboxEventType string

const (
	OutboxEventPaymentSucceeded OutboxEventType = "PaymentSucceeded"
	OutboxEventPaymentFailed    OutboxEventType = "PaymentFailed"
)

type OutboxMessage struct {
	ID            uuid.UUID
	AggregateID   uuid.UUID
	EventType     OutboxEventType
	Payload       json.RawMessage
	Status        OutboxStatus
	Attempts      int
	LastError     *string
	NextAttemptAt time.Time
	CreatedAt     time.Time
	DispatchedAt  *time.Time
}

// PaymentSettledEvent is the body of PaymentSucceeded and PaymentFailed
// messages. Status carries the precise terminal status, so a canceled payment
// is published as PaymentFailed with status "canceled".
type PaymentSettledEvent struct {
	PaymentID   uuid.UUID       `json:"payment_id"`
	OrderCode   string          `json:"order_code"`
	Status      PaymentStatus   `json:"status"`
	ProviderRef string          `json:"provider_ref,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Reason      string          `json:"reason,omitempty"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

// EventTypeFor returns the outbox event emitted when a payment reaches status.
func EventTypeFor(status PaymentStatus) OutboxEventType {
	if status == PaymentStatusSucceeded {
		return OutboxEventPaymentSucceeded
	}
	return OutboxEventPaymentFailed
}
