// Package app is the application root. It constructs every service once,
// in dependency order, and wires the late bindings between them.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/phrazzld/portal-client/internal/api"
	"github.com/phrazzld/portal-client/internal/catalog"
	"github.com/phrazzld/portal-client/internal/config"
	"github.com/phrazzld/portal-client/internal/connectivity"
	"github.com/phrazzld/portal-client/internal/notify"
	"github.com/phrazzld/portal-client/internal/platform/logger"
	"github.com/phrazzld/portal-client/internal/platform/metrics"
	"github.com/phrazzld/portal-client/internal/platform/storage"
	"github.com/phrazzld/portal-client/internal/session"
	"github.com/phrazzld/portal-client/internal/token"
)

var (
	_ api.SessionValidator     = (*session.Session)(nil)
	_ connectivity.Revalidator = (*session.Session)(nil)
	_ connectivity.Prober      = (*api.Client)(nil)
	_ catalog.Client           = (*api.Client)(nil)
	_ session.Gateway          = (*api.Client)(nil)
)

// Options overrides collaborators that are otherwise built from the
// configuration. Zero values select the defaults.
type Options struct {
	Logger     *slog.Logger
	Storage    storage.Store
	Notifier   notify.Notifier
	Online     connectivity.OnlineChecker
	HTTPClient *http.Client
}

// App holds the shared services of one client instance.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Storage storage.Store
	Tokens  *token.Store
	Metrics *metrics.Metrics
	API     *api.Client
	Monitor *connectivity.Monitor
	Catalog *catalog.Catalog
	Session *session.Session
}

// New builds the application. Nothing touches the network until Start.
func New(cfg *config.Config, opts Options) (*App, error) {
	a := &App{Config: cfg}

	// Initialize logging
	a.Logger = opts.Logger
	if a.Logger == nil {
		var err error
		if a.Logger, err = logger.Setup(cfg.Log); err != nil {
			return nil, fmt.Errorf("failed to set up logger: %w", err)
		}
	}

	// Initialize client-local storage
	a.Storage = opts.Storage
	if a.Storage == nil {
		st, err := storage.Open(cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("failed to open storage: %w", err)
		}
		a.Storage = st
	}
	a.Logger.Debug("storage ready", "driver", cfg.Storage.Driver)

	a.Tokens = token.New(a.Storage, a.Logger)
	a.Metrics = metrics.New()

	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.NewLogNotifier(a.Logger)
	}

	// Initialize the request gateway
	host := api.ResolverFromConfig(cfg.API)
	a.API = api.NewClient(api.Options{
		Host:       host,
		Tokens:     a.Tokens,
		HTTPClient: opts.HTTPClient,
		Timeout:    cfg.API.RequestTimeout,
		Logger:     a.Logger,
		Metrics:    a.Metrics,
	})

	a.Monitor = connectivity.New(connectivity.Options{
		Prober:   a.API,
		Online:   opts.Online,
		Tokens:   a.Tokens,
		Notifier: notifier,
		Host:     host,
		Logger:   a.Logger,
		Metrics:  a.Metrics,
	})

	// Initialize the data models
	var err error
	a.Catalog, err = catalog.New(catalog.Options{
		Client:    a.API,
		Storage:   a.Storage,
		Logger:    a.Logger,
		Metrics:   a.Metrics,
		Reconnect: a.Monitor,
	})
	if err != nil {
		a.closeStorage()
		return nil, fmt.Errorf("failed to create catalog: %w", err)
	}

	// Initialize the session and bind it where it is needed
	a.Session = session.New(session.Deps{
		Gateway:  a.API,
		Tokens:   a.Tokens,
		Classes:  a.Catalog.Classes,
		Grades:   a.Catalog.Grades,
		Notifier: notifier,
		Logger:   a.Logger,
	})
	for _, m := range a.Catalog.UserScoped() {
		a.Session.RegisterModel(m)
	}
	a.API.SetSessionValidator(a.Session)
	a.Monitor.SetSession(a.Session)

	a.Logger.Info("application initialized", "api", a.API.BaseURL(), "monitor", cfg.Monitor.Enabled)
	return a, nil
}

// Start begins loading the models and settling the session.
func (a *App) Start(ctx context.Context) {
	a.Catalog.Start(ctx)
	a.Session.Start(ctx)
}

// Run starts the application and, when enabled, the connectivity monitor.
// It blocks until ctx is done.
func (a *App) Run(ctx context.Context) error {
	a.Start(ctx)
	if !a.Config.Monitor.Enabled {
		<-ctx.Done()
		return nil
	}
	if err := a.Monitor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("connectivity monitor: %w", err)
	}
	return nil
}

// Close releases the storage.
func (a *App) Close() error {
	if err := a.Storage.Close(); err != nil {
		return fmt.Errorf("failed to close storage: %w", err)
	}
	return nil
}

func (a *App) closeStorage() {
	if err := a.Storage.Close(); err != nil {
		a.Logger.Error("error closing storage", "error", err)
	}
}
