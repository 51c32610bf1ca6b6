package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

type registration struct {
	id      uint64
	handler Handler
}

// Registry stores handlers in registration order and dispatches events to
// them.
type Registry struct {
	name     string
	mu       sync.RWMutex
	handlers []registration
	nextID   uint64
	logger   *slog.Logger
}

var _ Emitter = (*Registry)(nil)

// NewRegistry creates an empty registry. name identifies it in logs.
func NewRegistry(name string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		name:   name,
		logger: logger.With("component", "event_registry", "registry", name),
	}
}

// Register adds a handler and returns a function that removes it again.
func (r *Registry) Register(h Handler) (remove func()) {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.handlers = append(r.handlers, registration{id: id, handler: h})
	count := len(r.handlers)
	r.mu.Unlock()

	r.logger.Debug("registered handler", "handler_count", count)

	var once sync.Once
	return func() {
		once.Do(func() { r.remove(id) })
	}
}

// RegisterFunc is Register for plain functions.
func (r *Registry) RegisterFunc(fn func(ctx context.Context, event Event) error) (remove func()) {
	return r.Register(HandlerFunc(fn))
}

func (r *Registry) remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, reg := range r.handlers {
		if reg.id == id {
			r.handlers = append(r.handlers[:i:i], r.handlers[i+1:]...)
			return
		}
	}
}

// Len reports the number of registered handlers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// Emit delivers the event to every handler in registration order. If any
// handler returns an error or panics, the event is still delivered to all
// other handlers, and the first error encountered is returned.
func (r *Registry) Emit(ctx context.Context, event Event) error {
	r.mu.RLock()
	handlers := make([]registration, len(r.handlers))
	copy(handlers, r.handlers)
	r.mu.RUnlock()

	r.logger.Debug("emitting event",
		"event_id", event.ID,
		"event_type", event.Type,
		"handler_count", len(handlers))

	var firstErr error
	for i, reg := range handlers {
		if err := safeHandle(ctx, reg.handler, event); err != nil {
			r.logger.Error("handler failed to process event",
				"error", err,
				"handler_index", i,
				"event_id", event.ID,
				"event_type", event.Type)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}

func safeHandle(ctx context.Context, h Handler, event Event) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panicked: %v", p)
		}
	}()
	return h.HandleEvent(ctx, event)
}
