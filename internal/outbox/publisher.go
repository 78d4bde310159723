// Package outbox delivers committed outbox messages to the configured sinks.
package outbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/josh-kwaku/settlement/internal/domain"
)

// Publisher delivers one message to a sink. Delivery is at-least-once, so a
// publisher may see the same message again after a failed attempt.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, msg domain.OutboxMessage) error
}

// Multi fans a message out to every publisher. Any failure fails the whole
// message and it is retried on every sink.
type Multi []Publisher

func (m Multi) Name() string { return "multi" }

func (m Multi) Publish(ctx context.Context, msg domain.OutboxMessage) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		}
	}
	return errors.Join(errs...)
}
