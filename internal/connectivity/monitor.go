package connectivity

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/phrazzld/portal-client/internal/api"
	"github.com/phrazzld/portal-client/internal/events"
	"github.com/phrazzld/portal-client/internal/notify"
	"github.com/phrazzld/portal-client/internal/platform/metrics"
)

// Status is the composite connectivity state: the server bit followed by
// the online bit.
type Status string

const (
	StatusOffline    Status = "00"
	StatusServerDown Status = "01"
	StatusAnomalous  Status = "10"
	StatusOnline     Status = "11"
)

// StatusOf composes a Status from its two dimensions.
func StatusOf(server, online bool) Status {
	b := []byte("00")
	if server {
		b[0] = '1'
	}
	if online {
		b[1] = '1'
	}
	return Status(b)
}

// Event types emitted to listeners.
const (
	EventReconnect  = "connectivity.reconnect"
	EventDisconnect = "connectivity.disconnect"
)

// Toast titles.
const (
	TitleNoInternet        = "No internet connection"
	TitleInternetLost      = "Internet connection interrupted"
	TitleServerUnreachable = "Server unreachable"
	TitleServerFailing     = "Connection to the server failed"
	TitleInvalidState      = "Connection state is inconsistent"
	TitleInternetRestored  = "Internet connection restored"
	TitleServerReconnected = "Connection to the server restored"
)

// shortToast is the lifetime of toasts that do not wait for dismissal.
const shortToast = 5 * time.Second

// Poll intervals.
const (
	DefaultInterval      = 60 * time.Second
	revalidatedInterval  = 10 * time.Second
	offlineFirstInterval = 3 * time.Second
	serverDownFirst      = 1 * time.Second
	serverDownRetry      = 2 * time.Second
	slowRetry            = 10 * time.Second
	backoffMax           = 30 * time.Second
)

// Sample is one probe result.
type Sample struct {
	Server bool
	Online bool
	Probe  api.StatusProbe
	At     time.Time
}

// Status returns the sample's composite status.
func (s Sample) Status() Status { return StatusOf(s.Server, s.Online) }

// Prober asks the server for its status. *api.Client satisfies it.
type Prober interface {
	Status(ctx context.Context) (api.StatusProbe, api.Response)
}

// OnlineChecker reports whether the machine believes it has network access.
type OnlineChecker interface {
	Online(ctx context.Context) bool
}

// OnlineFunc adapts a function to OnlineChecker.
type OnlineFunc func(ctx context.Context) bool

func (f OnlineFunc) Online(ctx context.Context) bool { return f(ctx) }

// Revalidator re-checks the session and reports whether it is still logged
// in.
type Revalidator interface {
	Revalidate(ctx context.Context) bool
}

// Options configures a Monitor. Prober is required.
type Options struct {
	Prober   Prober
	Online   OnlineChecker
	Tokens   api.TokenSource
	Session  Revalidator
	Notifier notify.Notifier
	// Host tells the monitor whether the API is local, which makes the
	// anomalous "10" state benign.
	Host    api.HostResolver
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Clock   func() time.Time
}

// Monitor tracks server reachability and network availability and
// notifies listeners on transitions.
type Monitor struct {
	prober   Prober
	online   OnlineChecker
	tokens   api.TokenSource
	notifier notify.Notifier
	host     api.HostResolver
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	reconnect  *events.Registry
	disconnect *events.Registry

	mu         sync.Mutex
	session    Revalidator
	previous   *Sample
	failures   int
	errorToast notify.ToastID
}

// New creates a Monitor. It does nothing until Check or Run is called.
func New(opts Options) *Monitor {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Online == nil {
		opts.Online = InterfaceChecker{}
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.NewLogNotifier(opts.Logger)
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Monitor{
		prober:     opts.Prober,
		online:     opts.Online,
		tokens:     opts.Tokens,
		session:    opts.Session,
		notifier:   opts.Notifier,
		host:       opts.Host,
		logger:     opts.Logger.With("component", "connectivity"),
		metrics:    opts.Metrics,
		now:        opts.Clock,
		reconnect:  events.NewRegistry("reconnect", opts.Logger),
		disconnect: events.NewRegistry("disconnect", opts.Logger),
	}
}

// SetSession installs the session used for revalidation. The session itself
// depends on the monitor's collaborators, so it is wired after construction.
func (m *Monitor) SetSession(s Revalidator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = s
}

// AddReconnectListener registers h for transitions into full connectivity.
func (m *Monitor) AddReconnectListener(h events.Handler) (remove func()) {
	return m.reconnect.Register(h)
}

// AddDisconnectListener registers h for transitions out of it.
func (m *Monitor) AddDisconnectListener(h events.Handler) (remove func()) {
	return m.disconnect.Register(h)
}

// Status returns the status of the latest sample, StatusOffline before the
// first one.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.previous == nil {
		return StatusOffline
	}
	return m.previous.Status()
}

// Last returns the latest sample.
func (m *Monitor) Last() (Sample, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.previous == nil {
		return Sample{}, false
	}
	return *m.previous, true
}

// Run samples until ctx is done, waiting the interval chosen by the policy
// between samples.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("connectivity monitor started")
	for {
		next := m.Check(ctx)
		timer := time.NewTimer(next)
		select {
		case <-ctx.Done():
			timer.Stop()
			m.logger.Info("connectivity monitor stopped")
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Check takes one sample and processes it. It returns the delay before the
// next sample.
func (m *Monitor) Check(ctx context.Context) time.Duration {
	probe, resp := m.prober.Status(ctx)
	sample := Sample{
		Server: resp.Status == http.StatusOK,
		Online: m.online.Online(ctx),
		Probe:  probe,
		At:     m.now(),
	}
	return m.Process(ctx, sample)
}

// effects collects what a sample triggers so it can run without the lock.
type effects struct {
	dismiss    notify.ToastID
	toasts     []notify.Toast
	trackError bool
	emit       string
	revalidate bool
}

// Process applies the polling policy to s and returns the delay before the
// next sample.
func (m *Monitor) Process(ctx context.Context, s Sample) time.Duration {
	m.mu.Lock()
	next, fx := m.decide(s)
	m.failures++
	m.previous = &s
	session := m.session
	m.mu.Unlock()

	m.metrics.SetConnectivity(s.Server, s.Online)
	m.logger.Debug("connectivity sample", "status", string(s.Status()), "next_check", next)

	if fx.dismiss != 0 {
		m.notifier.Dismiss(fx.dismiss)
	}
	for _, t := range fx.toasts {
		id := m.notifier.Show(t)
		if fx.trackError {
			m.mu.Lock()
			m.errorToast = id
			m.mu.Unlock()
		}
	}
	switch fx.emit {
	case EventReconnect:
		m.logger.Info("connection re-established")
		_ = m.reconnect.Emit(ctx, events.NewEvent(EventReconnect, string(s.Status())))
	case EventDisconnect:
		m.logger.Warn("connection lost", "status", string(s.Status()))
		_ = m.disconnect.Emit(ctx, events.NewEvent(EventDisconnect, string(s.Status())))
	}

	if fx.revalidate && session != nil {
		m.logger.Info("server does not recognise the session, revalidating")
		if session.Revalidate(ctx) {
			next = revalidatedInterval
		}
	}
	return next
}

// decide implements the per-status policy. Called with m.mu held.
func (m *Monitor) decide(s Sample) (time.Duration, effects) {
	var fx effects
	prev := m.previous
	status := s.Status()

	replaceError := func(t notify.Toast) {
		fx.dismiss = m.errorToast
		m.errorToast = 0
		fx.toasts = append(fx.toasts, t)
		fx.trackError = true
	}

	switch status {
	case StatusOffline:
		switch {
		case prev == nil:
			replaceError(notify.Toast{Title: TitleNoInternet, Message: "Check your internet connection.", Level: notify.LevelError})
			return offlineFirstInterval, fx
		case prev.Status() != StatusOffline:
			replaceError(notify.Toast{Title: TitleInternetLost, Message: "Check your internet connection.", Level: notify.LevelError})
			fx.emit = EventDisconnect
			switch {
			case m.failures > 6:
				return backoffMax, fx
			case m.failures > 2:
				return 6 * time.Second, fx
			default:
				return serverDownRetry, fx
			}
		default:
			if m.failures > 5 {
				return backoffMax, fx
			}
			return slowRetry, fx
		}

	case StatusServerDown:
		if prev == nil || prev.Status() != StatusServerDown {
			replaceError(notify.Toast{Title: TitleServerUnreachable, Message: "Retrying...", Level: notify.LevelWarning})
			fx.emit = EventDisconnect
			m.failures = 1
			return serverDownFirst, fx
		}
		switch {
		case m.failures == 3:
			replaceError(notify.Toast{Title: TitleServerFailing, Message: "The portal may not work correctly.", Level: notify.LevelError})
			return slowRetry, fx
		case m.failures > 3:
			return slowRetry, fx
		default:
			return serverDownRetry, fx
		}

	case StatusAnomalous:
		if m.localAPI() {
			m.logger.Debug("server reachable while offline, local API host")
			return slowRetry, fx
		}
		if prev == nil || prev.Status() != StatusAnomalous {
			m.logger.Warn("server reachable while the network reports offline")
			replaceError(notify.Toast{
				Title:    TitleInvalidState,
				Message:  "Please report this to an administrator (state IC 10).",
				Level:    notify.LevelWarning,
				Duration: shortToast,
			})
		}
		return slowRetry, fx

	default:
		fx.dismiss = m.errorToast
		m.errorToast = 0
		switch {
		case prev != nil && !prev.Online:
			fx.toasts = append(fx.toasts, notify.Toast{Title: TitleInternetRestored, Level: notify.LevelSuccess, Duration: shortToast})
			fx.emit = EventReconnect
		case prev != nil && !prev.Server:
			fx.toasts = append(fx.toasts, notify.Toast{Title: TitleServerReconnected, Level: notify.LevelSuccess, Duration: shortToast})
			fx.emit = EventReconnect
		}
		m.failures = -1

		if m.tokens != nil {
			if _, ok := m.tokens.Get(); ok {
				if s.Probe.TokenMissing() {
					return revalidatedInterval, fx
				}
				if authenticated, known := s.Probe.IsAuthenticated(); known && !authenticated {
					fx.revalidate = true
				}
			}
		}
		return DefaultInterval, fx
	}
}

func (m *Monitor) localAPI() bool {
	if m.host == nil {
		return false
	}
	u, err := url.Parse(m.host.BaseURL())
	if err != nil {
		return false
	}
	return u.Host == "" || api.IsLocalHost(u.Hostname())
}
