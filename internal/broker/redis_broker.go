package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Baaaki/component-review/pkg/logger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBroker implements NotificationBroker with one pub/sub channel per recipient
type RedisBroker struct {
	client *redis.Client
}

func NewRedisBroker(client *redis.Client) *RedisBroker {
	return &RedisBroker{client: client}
}

// ChannelName is the pub/sub channel for a recipient's notifications
func ChannelName(recipientID uuid.UUID) string {
	return fmt.Sprintf("user_notifications:%s", recipientID)
}

func (r *RedisBroker) Publish(ctx context.Context, recipientID uuid.UUID, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return r.client.Publish(ctx, ChannelName(recipientID), data).Err()
}

func (r *RedisBroker) Subscribe(ctx context.Context, recipientID uuid.UUID) (<-chan Event, error) {
	pubsub := r.client.Subscribe(ctx, ChannelName(recipientID))

	// Wait for the subscription confirmation so no publish is missed after return
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}

	events := make(chan Event, 16)

	go func() {
		defer close(events)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					logger.Log.Warn("Dropping malformed notification event",
						zap.String("channel", msg.Channel),
						zap.Error(err),
					)
					continue
				}
				select {
				case events <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return events, nil
}

func (r *RedisBroker) Close() error {
	return r.client.Close()
}
