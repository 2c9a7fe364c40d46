package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"example.com/blogfeed/internal/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the HTTP and GraphQL collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	httpInFlight        prometheus.Gauge
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	graphqlOps          *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_in_flight_requests",
			Help: "In-flight HTTP requests.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latencies in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		graphqlOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "graphql_operations_total",
				Help: "GraphQL operations by root field and outcome.",
			},
			[]string{"operation", "outcome"},
		),
	}

	m.registry.MustRegister(
		m.httpInFlight,
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.graphqlOps,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Instrument records in-flight count, totals and latency per route.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()

		start := time.Now()
		sw := middleware.NewStatusWriter(w)
		next.ServeHTTP(sw, r)

		path := routeLabel(r.URL.Path)
		status := strconv.Itoa(sw.Code)
		m.httpRequestDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
		m.httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
	})
}

// ObserveGraphQL counts one executed root field. outcome is "ok" or "error".
func (m *Metrics) ObserveGraphQL(operation, outcome string) {
	if operation == "" {
		operation = "unknown"
	}
	m.graphqlOps.WithLabelValues(operation, outcome).Inc()
}

// routeLabel collapses per-file image paths to keep label cardinality bounded.
func routeLabel(path string) string {
	if strings.HasPrefix(path, "/images/") {
		return "/images/"
	}
	switch path {
	case "/graphql", "/post-image", "/ws", "/health", "/metrics":
		return path
	}
	return "other"
}
