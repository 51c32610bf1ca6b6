// Package metrics exposes Prometheus instrumentation for the client data
// layer: gateway requests, connectivity status and model loads. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "portal"

// Metrics owns a private registry and the collectors registered on it.
type Metrics struct {
	registry        *prometheus.Registry
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	connectivity    *prometheus.GaugeVec
	modelLoads      *prometheus.CounterVec
	modelEntries    *prometheus.GaugeVec
}

// New creates the collectors and registers them, together with the Go
// runtime collector, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Requests issued by the gateway, by method and final status.",
		}, []string{"method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "Gateway round-trip latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		connectivity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "connectivity",
			Name:      "up",
			Help:      "Last sampled connectivity, 1 when the dimension is reachable.",
		}, []string{"dimension"}),
		modelLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "model",
			Name:      "loads_total",
			Help:      "Model loads by path and outcome.",
		}, []string{"path", "result"}),
		modelEntries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "model",
			Name:      "entries",
			Help:      "Entries currently held by a model.",
		}, []string{"path"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		m.requests,
		m.requestDuration,
		m.connectivity,
		m.modelLoads,
		m.modelEntries,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one finished gateway request.
func (m *Metrics) ObserveRequest(method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// SetConnectivity records the latest connectivity sample.
func (m *Metrics) SetConnectivity(server, online bool) {
	if m == nil {
		return
	}
	m.connectivity.WithLabelValues("server").Set(boolToFloat(server))
	m.connectivity.WithLabelValues("online").Set(boolToFloat(online))
}

// ObserveModelLoad records a model load outcome ("cache", "network",
// "error").
func (m *Metrics) ObserveModelLoad(path, result string, entries int) {
	if m == nil {
		return
	}
	m.modelLoads.WithLabelValues(path, result).Inc()
	m.modelEntries.WithLabelValues(path).Set(float64(entries))
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
