package model

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/phrazzld/portal-client/internal/api"
	"github.com/phrazzld/portal-client/internal/events"
	"github.com/phrazzld/portal-client/internal/platform/metrics"
	"github.com/phrazzld/portal-client/internal/platform/storage"
)

// Shape describes how an endpoint's payload maps to entries.
type Shape int

const (
	ShapeList Shape = iota
	ShapePartial
	ShapeSingle
)

func (s Shape) String() string {
	switch s {
	case ShapeList:
		return "list"
	case ShapePartial:
		return "partial"
	case ShapeSingle:
		return "single"
	default:
		return "unknown"
	}
}

// SingleKey is the id under which single-shape models keep their record.
const SingleKey = "0"

// DefaultCoalesceWindow is how long a settled load result is shared with
// later non-forced callers.
const DefaultCoalesceWindow = 3 * time.Second

// CacheKeyPrefix prefixes the storage key of every model cache.
const CacheKeyPrefix = "cache_"

// Parser turns one raw record into T. It must reject payloads that do not
// have the expected shape.
type Parser[T any] func(raw json.RawMessage) (T, error)

// Fetcher issues GET requests. *api.Client satisfies it.
type Fetcher interface {
	Get(ctx context.Context, path string, auth bool) api.Response
}

// Dependency is what a model needs from the models it depends on.
type Dependency interface {
	Path() string
	Cached() bool
	Wait(ctx context.Context) error
}

// ReconnectNotifier lets a model reload when connectivity returns.
type ReconnectNotifier interface {
	AddReconnectListener(h events.Handler) (remove func())
}

// Options configures a model.
type Options struct {
	// Path is the endpoint locator, e.g. "user/grades".
	Path  string
	Shape Shape
	// Cache persists payloads under CacheKeyPrefix+Path.
	Cache bool
	// Auth attaches the bearer token when one is available.
	Auth bool
	// Mutable allows Set.
	Mutable      bool
	Dependencies []Dependency

	Fetcher   Fetcher
	Storage   storage.Store
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	Reconnect ReconnectNotifier

	// ShouldCache decides per raw record whether it may be persisted.
	// Nil persists everything.
	ShouldCache func(raw json.RawMessage) bool

	// CoalesceWindow defaults to DefaultCoalesceWindow.
	CoalesceWindow time.Duration
	// Clock defaults to time.Now.
	Clock func() time.Time
}
