package outbox

import (
	"context"

	"github.com/josh-kwaku/settlement/internal/domain"
	"github.com/josh-kwaku/settlement/internal/logging"
)

// LogPublisher writes messages to the service log. Useful in local runs where
// no broker is configured.
type LogPublisher struct{}

func (LogPublisher) Name() string { return "log" }

func (LogPublisher) Publish(ctx context.Context, msg domain.OutboxMessage) error {
	logging.FromContext(ctx).Info("outbox message published",
		"outbox_id", msg.ID,
		"event_type", msg.EventType,
		"aggregate_id", msg.AggregateID,
		"payload", string(msg.Payload),
	)
	return nil
}
