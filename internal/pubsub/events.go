// Package pubsub fans typed events out to in-process listeners. The registry
// publishes project records, the template store publishes reloads and the
// logger publishes formatted entries.
package pubsub

import (
	"context"
	"time"
)

// EventType names what happened to the payload.
type EventType string

const (
	// CreatedEvent carries a newly registered project or a new log entry.
	CreatedEvent EventType = "created"
	// UpdatedEvent carries a project after a status, tag, root or
	// description change.
	UpdatedEvent EventType = "updated"
	// DeletedEvent carries the last state of a forgotten project.
	DeletedEvent EventType = "deleted"
	// ReloadedEvent signals that the template snapshot was rebuilt.
	ReloadedEvent EventType = "reloaded"
)

// Event is one delivery. Timestamp is set by the broker at publish time.
type Event[T any] struct {
	Type      EventType
	Payload   T
	Timestamp time.Time
}

// Subscriber hands out a channel that closes when ctx ends.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context) <-chan Event[T]
}

// Publisher delivers payloads to current subscribers.
type Publisher[T any] interface {
	Publish(eventType EventType, payload T)
}
