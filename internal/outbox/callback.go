package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/josh-kwaku/settlement/internal/callback"
	"github.com/josh-kwaku/settlement/internal/domain"
)

type orderNotifier interface {
	Notify(ctx context.Context, b callback.Body) error
}

// CallbackPublisher re-sends the signed order callback. The order service
// ignores callbacks that would not advance the order, so repeats are safe.
type CallbackPublisher struct {
	notifier orderNotifier
}

func NewCallbackPublisher(n orderNotifier) *CallbackPublisher {
	return &CallbackPublisher{notifier: n}
}

func (p *CallbackPublisher) Name() string { return "callback" }

func (p *CallbackPublisher) Publish(ctx context.Context, msg domain.OutboxMessage) error {
	var ev domain.PaymentSettledEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return fmt.Errorf("CallbackPublisher: decode %s: %w", msg.ID, err)
	}
	if err := p.notifier.Notify(ctx, callback.Body{
		OrderCode:   ev.OrderCode,
		Status:      string(ev.Status),
		ProviderRef: ev.ProviderRef,
	}); err != nil {
		return fmt.Errorf("CallbackPublisher: %w", err)
	}
	return nil
}
