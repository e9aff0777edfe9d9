package ports

import (
	"context"

	"github.com/transcope/fleet-auth/internal/core/domain"
)

// EventSink accepts auth events for asynchronous delivery. Emit must not block
// the request path.
type EventSink interface {
	Emit(event domain.AuthEvent)
}

// EventPublisher delivers a single event to the message broker.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.AuthEvent) error
}
