// Package session tracks who is logged in. It owns the transitions between
// anonymous, loading and logged-in states and keeps the token store and
// user-scoped models in step with them.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/phrazzld/portal-client/internal/api"
	"github.com/phrazzld/portal-client/internal/domain"
	"github.com/phrazzld/portal-client/internal/notify"
	"github.com/phrazzld/portal-client/internal/token"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// TitleLoggedOut is the toast shown when revalidation ends a session.
const TitleLoggedOut = "You have been logged out"

// State is an immutable snapshot of the session.
type State struct {
	User     *domain.Profile
	LoggedIn bool
	Loading  bool
}

// UserID returns the logged-in user's id, or "" when anonymous.
func (s State) UserID() string {
	if !s.LoggedIn || s.User == nil {
		return ""
	}
	return string(s.User.ID)
}

// Gateway is the part of the API client the session uses. *api.Client
// satisfies it.
type Gateway interface {
	CurrentUser(ctx context.Context) api.Response
	InvalidateToken(ctx context.Context) api.Response
	InvalidateAllTokens(ctx context.Context) api.Response
}

// Tokens is the token store. *token.Store satisfies it.
type Tokens interface {
	Get() (string, bool)
	SetWithExpiry(token string, expiry time.Time) error
	Clear() error
}

// Classes is the class model the session waits for before resolving the
// user's profile.
type Classes interface {
	domain.Lookup[domain.Class]
	Wait(ctx context.Context) error
}

// Reloader is a model that must be refreshed when the user changes.
type Reloader interface {
	Path() string
	Reload(ctx context.Context) error
}

// Deps are the session's collaborators. Gateway, Tokens and Classes are
// required.
type Deps struct {
	Gateway  Gateway
	Tokens   Tokens
	Classes  Classes
	Grades   domain.Lookup[domain.Grade]
	Notifier notify.Notifier
	Logger   *slog.Logger
	Clock    func() time.Time
}

var _ api.SessionValidator = (*Session)(nil)

type subscriber struct {
	id uint64
	fn func(State)
}

// Session is the session and user state service.
type Session struct {
	gateway  Gateway
	tokens   Tokens
	classes  Classes
	grades   domain.Lookup[domain.Grade]
	notifier notify.Notifier
	logger   *slog.Logger
	now      func() time.Time

	mu          sync.RWMutex
	state       State
	userID      string
	models      []Reloader
	subscribers []subscriber
	nextSub     uint64

	// notifyMu orders deliveries: a state is published and handed to every
	// subscriber before the next one is.
	notifyMu sync.Mutex

	ready     chan struct{}
	readyOnce sync.Once
	startOnce sync.Once

	revalidations singleflight.Group
}

// New creates a session in the loading state. Call Start to settle it.
func New(deps Deps) *Session {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.NewLogNotifier(deps.Logger)
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &Session{
		gateway:  deps.Gateway,
		tokens:   deps.Tokens,
		classes:  deps.Classes,
		grades:   deps.Grades,
		notifier: deps.Notifier,
		logger:   deps.Logger.With("component", "session"),
		now:      deps.Clock,
		state:    State{Loading: true},
		ready:    make(chan struct{}),
	}
}

// Start settles the initial state. Without a token the session is anonymous
// at once; otherwise the user is fetched once the class model has loaded.
func (s *Session) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		if _, ok := s.tokens.Get(); !ok {
			s.logger.Debug("no stored token, starting anonymous")
			s.setState(ctx, State{})
			return
		}
		s.setState(ctx, State{Loading: true})
		go func() {
			if err := s.classes.Wait(ctx); err != nil {
				s.logger.Error("classes failed to load, starting anonymous", "error", err)
				s.setState(ctx, State{})
				return
			}
			s.FetchUser(ctx)
		}()
	})
}

// RegisterModel adds m to the models reloaded when the user changes.
func (s *Session) RegisterModel(m Reloader) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.models = append(s.models, m)
}

// State returns the current snapshot.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// LoggedIn reports whether a user is logged in.
func (s *Session) LoggedIn() bool { return s.State().LoggedIn }

// Subscribe calls fn with the current state and then with every new one.
// fn runs on the goroutine that changed the state. It must not block or
// change the session itself.
func (s *Session) Subscribe(fn func(State)) (unsubscribe func()) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subscribers = append(s.subscribers, subscriber{id: id, fn: fn})
	current := s.state
	s.mu.Unlock()

	fn(current)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.subscribers = slices.DeleteFunc(s.subscribers, func(sub subscriber) bool { return sub.id == id })
	}
}

// Wait blocks until the first settled state and returns it.
func (s *Session) Wait(ctx context.Context) (State, error) {
	select {
	case <-s.ready:
		return s.State(), nil
	case <-ctx.Done():
		return State{}, ctx.Err()
	}
}

func (s *Session) setState(ctx context.Context, next State) {
	s.notifyMu.Lock()
	s.mu.Lock()
	s.state = next
	var reload []Reloader
	if !next.Loading {
		if id := next.UserID(); id != s.userID {
			s.logger.Info("user changed", "previous_user_id", s.userID, "user_id", id)
			s.userID = id
			reload = append(reload, s.models...)
		}
	}
	subs := slices.Clone(s.subscribers)
	s.mu.Unlock()

	if !next.Loading {
		s.readyOnce.Do(func() { close(s.ready) })
	}
	for _, sub := range subs {
		sub.fn(next)
	}
	s.notifyMu.Unlock()

	if len(reload) > 0 {
		s.reloadModels(context.WithoutCancel(ctx), reload)
	}
}

func (s *Session) reloadModels(ctx context.Context, models []Reloader) {
	go func() {
		var g errgroup.Group
		for _, m := range models {
			g.Go(func() error {
				if err := m.Reload(ctx); err != nil {
					return fmt.Errorf("%s: %w", m.Path(), err)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			s.logger.Warn("reload after user change failed", "error", err)
		}
	}()
}

// FetchUser asks the server who the token belongs to and settles the state
// accordingly. A 401 also clears the token.
func (s *Session) FetchUser(ctx context.Context) State {
	loading := s.State()
	loading.Loading = true
	s.setState(ctx, loading)

	resp := s.gateway.CurrentUser(ctx)
	if !resp.OK() {
		s.logger.Warn("failed to fetch current user", "status", resp.Status, "error", resp.Err())
		if resp.Status == http.StatusUnauthorized {
			s.clearToken()
		}
		s.setState(ctx, State{})
		return State{}
	}

	u, err := domain.ParseUser(resp.Data)
	if err != nil {
		s.logger.Error("invalid current user payload", "error", err)
		s.setState(ctx, State{})
		return State{}
	}
	profile := domain.ResolveProfile(u, s.classes, s.grades)
	next := State{User: &profile, LoggedIn: true}
	s.setState(ctx, next)
	return next
}

// Login stores tok and fetches its user. A zero expiry defaults to the
// token's own exp claim when that is sooner than token.DefaultLifetime.
func (s *Session) Login(ctx context.Context, tok string, expiry time.Time) (State, error) {
	if expiry.IsZero() {
		expiry = s.now().Add(token.DefaultLifetime)
		if exp, ok := token.ExpiryFromJWT(tok); ok && exp.Before(expiry) {
			expiry = exp
		}
	}
	if err := s.tokens.SetWithExpiry(tok, expiry); err != nil {
		return s.State(), fmt.Errorf("store token: %w", err)
	}
	s.logger.Info("logging in", "expires_at", expiry)

	st := s.FetchUser(ctx)
	if !st.LoggedIn {
		return st, ErrLoginRejected
	}
	return st, nil
}

// Logout invalidates the token on the server and clears the session. A
// stored token is cleared locally even when the session never settled as
// logged in or the server call fails. Without a token or a user it does
// nothing.
func (s *Session) Logout(ctx context.Context) error {
	return s.logout(ctx, "logout", s.gateway.InvalidateToken)
}

// LogoutAllDevices is Logout that also invalidates the user's other tokens.
func (s *Session) LogoutAllDevices(ctx context.Context) error {
	return s.logout(ctx, "logout all devices", s.gateway.InvalidateAllTokens)
}

func (s *Session) logout(ctx context.Context, op string, invalidate func(context.Context) api.Response) error {
	_, hasToken := s.tokens.Get()
	if !hasToken && !s.LoggedIn() {
		return nil
	}

	var failure error
	if hasToken {
		if resp := invalidate(ctx); !resp.OK() {
			failure = resp.Err()
			s.logger.Error("failed to invalidate token", "op", op, "status", resp.Status, "error", failure)
		}
	} else {
		s.logger.Warn("no access token to invalidate", "op", op)
	}

	s.clearToken()
	s.setState(ctx, State{})
	if failure != nil {
		return fmt.Errorf("%s: %w: %w", op, ErrLogoutFailed, failure)
	}
	s.logger.Info("logged out", "op", op)
	return nil
}

// Revalidate re-fetches the user of a logged-in session and reports whether
// it is still logged in. Concurrent calls share one check.
func (s *Session) Revalidate(ctx context.Context) bool {
	v, _, _ := s.revalidations.Do("revalidate", func() (any, error) {
		if !s.LoggedIn() {
			return false, nil
		}
		s.logger.Info("revalidating session")
		if st := s.FetchUser(ctx); st.LoggedIn {
			return true, nil
		}
		s.notifier.Show(notify.Toast{
			Title:   TitleLoggedOut,
			Message: "Please log in again.",
			Level:   notify.LevelWarning,
		})
		return false, nil
	})
	return v.(bool)
}

// ForceLogout drops the session locally without contacting the server.
func (s *Session) ForceLogout(ctx context.Context) {
	s.logger.Warn("forcing local logout")
	s.clearToken()
	s.setState(ctx, State{})
}

func (s *Session) clearToken() {
	if err := s.tokens.Clear(); err != nil {
		s.logger.Error("failed to clear token", "error", err)
	}
}
