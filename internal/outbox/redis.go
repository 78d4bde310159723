package outbox

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/josh-kwaku/settlement/internal/domain"
)

type streamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisPublisher appends each message to a Redis stream. Consumers dedupe on
// the message_id field.
type RedisPublisher struct {
	client streamAdder
	stream string
}

func NewRedisPublisher(url, stream string) (*RedisPublisher, *redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, fmt.Errorf("NewRedisPublisher: %w", err)
	}
	client := redis.NewClient(opts)
	return &RedisPublisher{client: client, stream: stream}, client, nil
}

func (p *RedisPublisher) Name() string { return "redis" }

func (p *RedisPublisher) Publish(ctx context.Context, msg domain.OutboxMessage) error {
	err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			"message_id":   msg.ID.String(),
			"event_type":   string(msg.EventType),
			"aggregate_id": msg.AggregateID.String(),
			"payload":      string(msg.Payload),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("RedisPublisher: xadd %s: %w", p.stream, err)
	}
	return nil
}
