package broker

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is the live payload pushed to a connected recipient.
type Event struct {
	ID        uuid.UUID  `json:"id"`
	Verb      string     `json:"verb"`
	Message   string     `json:"message"`
	ActorID   *uuid.UUID `json:"actor_id,omitempty"`
	TargetID  *uuid.UUID `json:"target_id,omitempty"`
	ReviewID  *uuid.UUID `json:"review_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// NotificationBroker fans notification events out to live subscribers.
// Persistence happens elsewhere; a broker failure never loses a notification.
type NotificationBroker interface {
	Publish(ctx context.Context, recipientID uuid.UUID, event Event) error
	// Subscribe streams events for one recipient until ctx is cancelled.
	Subscribe(ctx context.Context, recipientID uuid.UUID) (<-chan Event, error)
	Close() error
}

// NoopBroker is used when Redis is not configured.
type NoopBroker struct{}

func (NoopBroker) Publish(ctx context.Context, recipientID uuid.UUID, event Event) error {
	return nil
}

func (NoopBroker) Subscribe(ctx context.Context, recipientID uuid.UUID) (<-chan Event, error) {
	ch := make(chan Event)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func (NoopBroker) Close() error { return nil }
