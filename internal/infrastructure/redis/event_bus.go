package redis

import (
	"context"
	"encoding/json"

	"go-stepflow/internal/domain"

	"github.com/redis/go-redis/v9"
)

type RedisEventBus struct {
	client             *redis.Client
	channel            string
	terminationChannel string
}

// NewRedisEventBus publishes on <prefix>:completed and <prefix>:terminated.
func NewRedisEventBus(client *redis.Client, prefix string) *RedisEventBus {
	return &RedisEventBus{
		client:             client,
		channel:            prefix + ":completed",
		terminationChannel: prefix + ":terminated",
	}
}

// PublishStepCompleted broadcasts the event to the network
func (b *RedisEventBus) PublishStepCompleted(ctx context.Context, event domain.StepCompletedEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return b.client.Publish(ctx, b.channel, payload).Err()
}

// PublishStepTerminated broadcasts a failed step attempt
func (b *RedisEventBus) PublishStepTerminated(ctx context.Context, event domain.StepTerminatedEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return b.client.Publish(ctx, b.terminationChannel, payload).Err()
}

// SubscribeToCompleted opens a continuous stream of completion events.
// The channel closes when ctx is done.
func (b *RedisEventBus) SubscribeToCompleted(ctx context.Context) (<-chan domain.StepCompletedEvent, error) {
	pubsub := b.client.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	msgChan := make(chan domain.StepCompletedEvent)

	go func() {
		defer close(msgChan)
		defer pubsub.Close()
		for {
			msg, err := pubsub.ReceiveMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				continue
			}
			var event domain.StepCompletedEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				continue
			}
			select {
			case msgChan <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	return msgChan, nil
}
