// Package eventbus provides event-driven communication between the API, the
// dispatcher and the state-machine executor.
package eventbus

import (
	"context"

	"github.com/runwayci/runway/pkg/events"
)

type Event interface {
	GetType() events.EventType
}

// EventPublisher is the narrow side handed to the execution service, which
// only emits lifecycle events. The key is the execution id.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}
