// Package eventbus abstracts the ordered, partitioned, at-least-once message
// broker the pipeline runs on.
package eventbus

import (
	"context"

	"github.com/dukex/flowbox/pkg/events"
)

type Event interface {
	GetType() events.EventType
}

type EventPublisher interface {
	// Publish sends an event keyed by the given partition key. All events
	// sharing a key are delivered in order to a single consumer at a time.
	Publish(ctx context.Context, key string, event Event) error
}

type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

// EventHandler processes one delivered event. Returning an error leaves the
// message unacknowledged, so the broker redelivers it later; returning nil
// commits it.
type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}
