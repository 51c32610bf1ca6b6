package connectivity_test

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/phrazzld/portal-client/internal/api"
	"github.com/phrazzld/portal-client/internal/connectivity"
	"github.com/phrazzld/portal-client/internal/events"
	"github.com/phrazzld/portal-client/internal/notify"
	"github.com/phrazzld/portal-client/internal/platform/logger"
	"github.com/phrazzld/portal-client/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tokens string

func (t tokens) Get() (string, bool) { return string(t), t != "" }

type fakeSession struct {
	calls atomic.Int32
	keep  bool
}

func (f *fakeSession) Revalidate(context.Context) bool {
	f.calls.Add(1)
	return f.keep
}

type counter struct{ n atomic.Int32 }

func (c *counter) HandleEvent(context.Context, events.Event) error {
	c.n.Add(1)
	return nil
}

func sample(status connectivity.Status) connectivity.Sample {
	return connectivity.Sample{
		Server: status[0] == '1',
		Online: status[1] == '1',
		At:     time.Now(),
	}
}

func newMonitor(opts connectivity.Options) (*connectivity.Monitor, *notify.Recorder) {
	rec := &notify.Recorder{}
	opts.Notifier = rec
	opts.Logger = logger.Discard()
	if opts.Host == nil {
		opts.Host = api.StaticHost("https://portal.example.org/api")
	}
	return connectivity.New(opts), rec
}

func TestServerOutageAndRecoveryNotifications(t *testing.T) {
	m, rec := newMonitor(connectivity.Options{})
	reconnects, disconnects := &counter{}, &counter{}
	m.AddReconnectListener(reconnects)
	m.AddDisconnectListener(disconnects)
	ctx := context.Background()

	m.Process(ctx, sample(connectivity.StatusOnline))
	assert.Empty(t, rec.Shown())

	m.Process(ctx, sample(connectivity.StatusServerDown))
	m.Process(ctx, sample(connectivity.StatusServerDown))
	assert.Equal(t, 1, rec.Count(connectivity.TitleServerUnreachable))
	assert.EqualValues(t, 1, disconnects.n.Load())

	m.Process(ctx, sample(connectivity.StatusOnline))
	assert.Equal(t, 1, rec.Count(connectivity.TitleServerReconnected))
	assert.EqualValues(t, 1, reconnects.n.Load())
	assert.Len(t, rec.Shown(), 2)
	assert.Len(t, rec.Dismissed(), 1, "the outage toast is dismissed on recovery")
	assert.Equal(t, connectivity.StatusOnline, m.Status())
}

func TestServerDownEscalation(t *testing.T) {
	m, rec := newMonitor(connectivity.Options{})
	ctx := context.Background()

	m.Process(ctx, sample(connectivity.StatusOnline))
	intervals := []time.Duration{
		m.Process(ctx, sample(connectivity.StatusServerDown)),
		m.Process(ctx, sample(connectivity.StatusServerDown)),
		m.Process(ctx, sample(connectivity.StatusServerDown)),
		m.Process(ctx, sample(connectivity.StatusServerDown)),
	}

	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 10 * time.Second, 10 * time.Second}, intervals)
	assert.Equal(t, []string{connectivity.TitleServerUnreachable, connectivity.TitleServerFailing}, rec.Titles())
	assert.Equal(t, notify.LevelError, rec.Shown()[1].Level)
	assert.Len(t, rec.Dismissed(), 1, "the warning is replaced by the error")
}

func TestServerDownOnFirstSample(t *testing.T) {
	m, rec := newMonitor(connectivity.Options{})
	disconnects := &counter{}
	m.AddDisconnectListener(disconnects)

	next := m.Process(context.Background(), sample(connectivity.StatusServerDown))

	assert.Equal(t, time.Second, next)
	assert.Equal(t, []string{connectivity.TitleServerUnreachable}, rec.Titles())
	assert.EqualValues(t, 1, disconnects.n.Load())
}

func TestOfflineBackoff(t *testing.T) {
	t.Run("first sample", func(t *testing.T) {
		m, rec := newMonitor(connectivity.Options{})
		ctx := context.Background()

		assert.Equal(t, 3*time.Second, m.Process(ctx, sample(connectivity.StatusOffline)))
		assert.Equal(t, []string{connectivity.TitleNoInternet}, rec.Titles())

		var got []time.Duration
		for range 6 {
			got = append(got, m.Process(ctx, sample(connectivity.StatusOffline)))
		}
		assert.Equal(t, []time.Duration{
			10 * time.Second, 10 * time.Second, 10 * time.Second, 10 * time.Second, 10 * time.Second, 30 * time.Second,
		}, got)
		assert.Len(t, rec.Shown(), 1, "repeated offline samples stay quiet")
	})

	t.Run("losing the connection", func(t *testing.T) {
		m, rec := newMonitor(connectivity.Options{})
		disconnects := &counter{}
		m.AddDisconnectListener(disconnects)
		ctx := context.Background()

		m.Process(ctx, sample(connectivity.StatusOnline))
		assert.Equal(t, 2*time.Second, m.Process(ctx, sample(connectivity.StatusOffline)))
		assert.Equal(t, []string{connectivity.TitleInternetLost}, rec.Titles())
		assert.EqualValues(t, 1, disconnects.n.Load())

		m.Process(ctx, sample(connectivity.StatusOnline))
		assert.Equal(t, 1, rec.Count(connectivity.TitleInternetRestored))
	})
}

func TestAnomalousState(t *testing.T) {
	t.Run("remote host warns once", func(t *testing.T) {
		m, rec := newMonitor(connectivity.Options{})
		ctx := context.Background()

		assert.Equal(t, 10*time.Second, m.Process(ctx, sample(connectivity.StatusAnomalous)))
		m.Process(ctx, sample(connectivity.StatusAnomalous))

		assert.Equal(t, 1, rec.Count(connectivity.TitleInvalidState))
	})

	t.Run("local host is benign", func(t *testing.T) {
		m, rec := newMonitor(connectivity.Options{Host: api.StaticHost("http://localhost:8000/api")})

		assert.Equal(t, 10*time.Second, m.Process(context.Background(), sample(connectivity.StatusAnomalous)))
		assert.Empty(t, rec.Shown())
	})
}

func TestRevalidatesWhenServerRejectsToken(t *testing.T) {
	no := false
	yes := true
	testCases := []struct {
		name      string
		token     string
		probe     api.StatusProbe
		keep      bool
		wantCalls int32
		wantNext  time.Duration
	}{
		{name: "authenticated", token: "tok", probe: api.StatusProbe{Authenticated: &yes}, wantNext: connectivity.DefaultInterval},
		{name: "rejected and kept", token: "tok", probe: api.StatusProbe{Authenticated: &no}, keep: true, wantCalls: 1, wantNext: 10 * time.Second},
		{name: "rejected and lost", token: "tok", probe: api.StatusProbe{Authenticated: &no}, wantCalls: 1, wantNext: connectivity.DefaultInterval},
		{name: "legacy expired token", token: "tok", probe: api.StatusProbe{Token: &api.TokenStatus{Present: true, Found: true, Valid: true, Expired: true}}, keep: true, wantCalls: 1, wantNext: 10 * time.Second},
		{name: "no token", probe: api.StatusProbe{Authenticated: &no}, wantNext: connectivity.DefaultInterval},
		{name: "legacy status without the token", token: "tok", probe: api.StatusProbe{Token: &api.TokenStatus{}}, wantNext: 10 * time.Second},
		{name: "probe without auth details", token: "tok", wantNext: connectivity.DefaultInterval},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			session := &fakeSession{keep: tc.keep}
			m, _ := newMonitor(connectivity.Options{Tokens: tokens(tc.token), Session: session})
			s := sample(connectivity.StatusOnline)
			s.Probe = tc.probe

			next := m.Process(context.Background(), s)

			assert.Equal(t, tc.wantNext, next)
			assert.Equal(t, tc.wantCalls, session.calls.Load())
		})
	}
}

func TestListenersRunInOrderDespiteFailures(t *testing.T) {
	m, _ := newMonitor(connectivity.Options{})
	var order []string
	m.AddReconnectListener(events.HandlerFunc(func(context.Context, events.Event) error {
		order = append(order, "failing")
		return errors.New("boom")
	}))
	m.AddReconnectListener(events.HandlerFunc(func(context.Context, events.Event) error {
		order = append(order, "panicking")
		panic("boom")
	}))
	remove := m.AddReconnectListener(events.HandlerFunc(func(context.Context, events.Event) error {
		order = append(order, "removed")
		return nil
	}))
	remove()
	m.AddReconnectListener(events.HandlerFunc(func(_ context.Context, e events.Event) error {
		order = append(order, e.Type)
		return nil
	}))
	ctx := context.Background()

	m.Process(ctx, sample(connectivity.StatusServerDown))
	m.Process(ctx, sample(connectivity.StatusOnline))

	assert.Equal(t, []string{"failing", "panicking", connectivity.EventReconnect}, order)
}

func TestCheckProbesServer(t *testing.T) {
	srv := testutils.NewAPIServer(t)
	srv.Sequence(http.MethodGet, "status",
		testutils.Reply{Body: map[string]any{"status": "ok", "time": "now", "authenticated": true}},
		testutils.Reply{Status: http.StatusServiceUnavailable, Body: map[string]any{"error": "maintenance"}},
	)
	client := api.NewClient(api.Options{Host: api.StaticHost(srv.BaseURL()), Tokens: tokens("tok"), Logger: logger.Discard()})
	online := connectivity.OnlineFunc(func(context.Context) bool { return true })
	m, _ := newMonitor(connectivity.Options{Prober: client, Online: online, Tokens: tokens("tok")})
	ctx := context.Background()

	assert.Equal(t, connectivity.DefaultInterval, m.Check(ctx))
	assert.Equal(t, connectivity.StatusOnline, m.Status())
	last, ok := m.Last()
	require.True(t, ok)
	authenticated, known := last.Probe.IsAuthenticated()
	assert.True(t, known)
	assert.True(t, authenticated)
	assert.Equal(t, "Bearer tok", srv.RequestsTo(http.MethodGet, "status")[0].Authorization)

	m.Check(ctx)
	assert.Equal(t, connectivity.StatusServerDown, m.Status())
}

type cancellingProber struct{ cancel context.CancelFunc }

func (p cancellingProber) Status(context.Context) (api.StatusProbe, api.Response) {
	p.cancel()
	return api.StatusProbe{}, api.Response{Status: http.StatusOK}
}

func TestRunStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	online := connectivity.OnlineFunc(func(context.Context) bool { return true })
	m, _ := newMonitor(connectivity.Options{Prober: cancellingProber{cancel: cancel}, Online: online})

	err := m.Run(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, connectivity.StatusOnline, m.Status())
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, connectivity.StatusOffline, connectivity.StatusOf(false, false))
	assert.Equal(t, connectivity.StatusServerDown, connectivity.StatusOf(false, true))
	assert.Equal(t, connectivity.StatusAnomalous, connectivity.StatusOf(true, false))
	assert.Equal(t, connectivity.StatusOnline, connectivity.StatusOf(true, true))
}
