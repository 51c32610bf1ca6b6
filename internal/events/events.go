package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is a single notification delivered to every handler of a Registry.
type Event struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Type names what happened, e.g. "connectivity.reconnect"
	Type string `json:"type"`

	// Status is an optional state label attached by the emitter
	Status string `json:"status,omitempty"`

	// CreatedAt is the timestamp when the event was created
	CreatedAt time.Time `json:"created_at"`
}

// NewEvent creates an Event of the given type stamped with a fresh id.
func NewEvent(eventType, status string) Event {
	return Event{
		ID:        uuid.New(),
		Type:      eventType,
		Status:    status,
		CreatedAt: time.Now(),
	}
}

// Handler processes events delivered by a Registry.
type Handler interface {
	HandleEvent(ctx context.Context, event Event) error
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, event Event) error

// HandleEvent calls f.
func (f HandlerFunc) HandleEvent(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Emitter publishes events to registered handlers.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}
