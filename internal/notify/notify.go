// Package notify is the user-facing notification side channel. The data layer
// never renders anything itself; it hands Toasts to a Notifier.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Level is the severity of a toast.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Toast is a short-lived user notification. A zero Duration means the toast
// stays until dismissed.
type Toast struct {
	Title    string
	Message  string
	Level    Level
	Duration time.Duration
}

// ToastID identifies a shown toast so it can be dismissed later.
type ToastID uint64

// Notifier shows and dismisses toasts.
type Notifier interface {
	Show(t Toast) ToastID
	Dismiss(id ToastID)
}

var lastID atomic.Uint64

func nextID() ToastID { return ToastID(lastID.Add(1)) }

// LogNotifier writes toasts to a structured logger. It is the notifier used by
// the command line client.
type LogNotifier struct {
	logger *slog.Logger
}

var _ Notifier = (*LogNotifier)(nil)

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With("component", "notify")}
}

func (n *LogNotifier) Show(t Toast) ToastID {
	id := nextID()
	level := slog.LevelInfo
	switch t.Level {
	case LevelWarning:
		level = slog.LevelWarn
	case LevelError:
		level = slog.LevelError
	}
	n.logger.Log(context.Background(), level, t.Title, "message", t.Message, "toast_id", uint64(id), "toast_level", string(t.Level))
	return id
}

func (n *LogNotifier) Dismiss(id ToastID) {
	n.logger.Debug("toast dismissed", "toast_id", uint64(id))
}

// Recorder keeps every toast in memory. Tests use it to assert on
// notifications.
type Recorder struct {
	mu        sync.Mutex
	shown     []Toast
	dismissed []ToastID
}

var _ Notifier = (*Recorder)(nil)

func (r *Recorder) Show(t Toast) ToastID {
	id := nextID()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shown = append(r.shown, t)
	return id
}

func (r *Recorder) Dismiss(id ToastID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dismissed = append(r.dismissed, id)
}

// Shown returns a copy of every toast shown so far.
func (r *Recorder) Shown() []Toast {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Toast(nil), r.shown...)
}

// Titles returns the titles of the shown toasts in order.
func (r *Recorder) Titles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	titles := make([]string, len(r.shown))
	for i, t := range r.shown {
		titles[i] = t.Title
	}
	return titles
}

// Dismissed returns the ids dismissed so far.
func (r *Recorder) Dismissed() []ToastID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ToastID(nil), r.dismissed...)
}

// Count returns how many toasts with the given title were shown.
func (r *Recorder) Count(title string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.shown {
		if t.Title == title {
			n++
		}
	}
	return n
}

// Reset forgets everything recorded.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shown, r.dismissed = nil, nil
}
