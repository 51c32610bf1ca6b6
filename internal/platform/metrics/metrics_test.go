package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/phrazzld/portal-client/internal/platform/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetricsExposition(t *testing.T) {
	m := metrics.New()

	m.ObserveRequest("GET", 200, 20*time.Millisecond)
	m.ObserveRequest("GET", 599, time.Millisecond)
	m.SetConnectivity(false, true)
	m.ObserveModelLoad("user/grades", "network", 4)

	out := scrape(t, m.Handler())

	assert.Contains(t, out, `portal_api_requests_total{method="GET",status="200"} 1`)
	assert.Contains(t, out, `portal_api_requests_total{method="GET",status="599"} 1`)
	assert.Contains(t, out, `portal_connectivity_up{dimension="server"} 0`)
	assert.Contains(t, out, `portal_connectivity_up{dimension="online"} 1`)
	assert.Contains(t, out, `portal_model_loads_total{path="user/grades",result="network"} 1`)
	assert.Contains(t, out, `portal_model_entries{path="user/grades"} 4`)
	assert.Contains(t, out, "go_goroutines")
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *metrics.Metrics

	assert.NotPanics(t, func() {
		m.ObserveRequest("GET", 200, time.Second)
		m.SetConnectivity(true, true)
		m.ObserveModelLoad("posts", "error", 0)
	})
	assert.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
