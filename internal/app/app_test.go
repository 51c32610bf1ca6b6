package app_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/phrazzld/portal-client/internal/app"
	"github.com/phrazzld/portal-client/internal/catalog"
	"github.com/phrazzld/portal-client/internal/config"
	"github.com/phrazzld/portal-client/internal/connectivity"
	"github.com/phrazzld/portal-client/internal/notify"
	"github.com/phrazzld/portal-client/internal/platform/logger"
	"github.com/phrazzld/portal-client/internal/platform/storage"
	"github.com/phrazzld/portal-client/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		API:     config.APIConfig{BaseURL: baseURL, RequestTimeout: 5 * time.Second},
		Storage: config.StorageConfig{Driver: "memory"},
		Monitor: config.MonitorConfig{Enabled: true},
		Log:     config.LogConfig{Level: "debug", Format: "text"},
	}
}

func servePortal(srv *testutils.APIServer) {
	list := func(path string, body any) { srv.JSON(http.MethodGet, path, http.StatusOK, body) }
	list(catalog.PathGrades, []map[string]any{{"id": 1, "name": "I."}})
	list(catalog.PathClasses, []map[string]any{{"id": 10, "name": "I.A", "grade": 1}})
	list(catalog.PathCategories, []map[string]any{{"id": 3, "name": "Sport"}})
	list(catalog.PathTags, []map[string]any{{"id": 5, "name": "news"}})
	list(catalog.PathDisciplines, []map[string]any{{"id": 4, "name": "Chess", "date_published": true}})
	list(catalog.PathPosts, []map[string]any{{"id": 1, "title": "Hello", "date": "2024-04-01T10:00:00Z"}})
	list(catalog.PathCiphers, []map[string]any{})
	list(catalog.PathAlerts, []map[string]any{})
	list(catalog.PathCalendar, map[string]any{"id": "auto", "name": "Year", "events": []any{}})
	list("user/me", map[string]any{"id": 7, "username": "jan", "clazz": 10})
	list("status", map[string]any{"status": "ok", "authenticated": true})
}

func newApp(t *testing.T, srv *testutils.APIServer, st storage.Store) (*app.App, *notify.Recorder) {
	t.Helper()
	rec := &notify.Recorder{}
	a, err := app.New(testConfig(srv.BaseURL()), app.Options{
		Logger:   logger.Discard(),
		Storage:  st,
		Notifier: rec,
		Online:   connectivity.OnlineFunc(func(context.Context) bool { return true }),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a, rec
}

func TestStartWithStoredTokenLogsIn(t *testing.T) {
	srv := testutils.NewAPIServer(t)
	servePortal(srv)
	st := storage.NewMemory()
	a, _ := newApp(t, srv, st)
	require.NoError(t, a.Tokens.Set("tok"))
	ctx := context.Background()

	a.Start(ctx)

	require.NoError(t, a.Catalog.Wait(ctx))
	state, err := a.Session.Wait(ctx)
	require.NoError(t, err)
	require.True(t, state.LoggedIn)
	require.NotNil(t, state.User.ClassRecord)
	assert.Equal(t, "I.A", state.User.ClassRecord.Name)

	// Logging in is a user change, so user-scoped models reload.
	require.Eventually(t, func() bool {
		return srv.Count(http.MethodGet, catalog.PathCalendar) >= 2
	}, 2*time.Second, 5*time.Millisecond)

	keys, err := st.Keys(ctx)
	require.NoError(t, err)
	assert.Contains(t, keys, "token")
	assert.Contains(t, keys, "cache_"+catalog.PathGrades)
}

func TestStartWithoutTokenStaysAnonymous(t *testing.T) {
	srv := testutils.NewAPIServer(t)
	servePortal(srv)
	a, _ := newApp(t, srv, nil)
	ctx := context.Background()

	a.Start(ctx)

	state, err := a.Session.Wait(ctx)
	require.NoError(t, err)
	assert.False(t, state.LoggedIn)
	require.NoError(t, a.Catalog.Wait(ctx))
	assert.Zero(t, srv.Count(http.MethodGet, "user/me"))
}

func TestRunSamplesConnectivityUntilCancelled(t *testing.T) {
	srv := testutils.NewAPIServer(t)
	servePortal(srv)
	a, rec := newApp(t, srv, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	require.Eventually(t, func() bool { return a.Monitor.Status() == connectivity.StatusOnline }, 2*time.Second, 5*time.Millisecond)
	cancel()

	require.NoError(t, <-done)
	assert.Empty(t, rec.Shown())
}
