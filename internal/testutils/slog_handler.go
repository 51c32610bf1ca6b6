package testutils

import (
	"context"
	"log/slog"
	"sync"
)

// LogEntry represents a simplified log record for testing
type LogEntry map[string]any

// LogRecorder is a memory-backed slog.Handler for testing
type LogRecorder struct {
	mu      *sync.Mutex
	entries *[]LogEntry
	attrs   []slog.Attr
}

// NewLogRecorder creates a recorder and a logger writing to it.
func NewLogRecorder() (*LogRecorder, *slog.Logger) {
	h := &LogRecorder{mu: &sync.Mutex{}, entries: &[]LogEntry{}}
	return h, slog.New(h)
}

// Enabled satisfies slog.Handler interface
func (h *LogRecorder) Enabled(context.Context, slog.Level) bool { return true }

// Handle satisfies slog.Handler interface
func (h *LogRecorder) Handle(_ context.Context, r slog.Record) error {
	entry := LogEntry{"level": r.Level.String(), "message": r.Message}
	for _, a := range h.attrs {
		entry[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		entry[a.Key] = a.Value.Any()
		return true
	})

	h.mu.Lock()
	defer h.mu.Unlock()
	*h.entries = append(*h.entries, entry)
	return nil
}

// WithAttrs satisfies slog.Handler interface
func (h *LogRecorder) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &LogRecorder{mu: h.mu, entries: h.entries, attrs: merged}
}

// WithGroup satisfies slog.Handler interface. Groups are flattened.
func (h *LogRecorder) WithGroup(string) slog.Handler { return h }

// Entries returns all captured log entries
func (h *LogRecorder) Entries() []LogEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]LogEntry(nil), *h.entries...)
}

// Messages returns the messages logged at level ("WARN", "INFO", ...).
func (h *LogRecorder) Messages(level string) []string {
	var out []string
	for _, e := range h.Entries() {
		if e["level"] == level {
			out = append(out, e["message"].(string))
		}
	}
	return out
}
