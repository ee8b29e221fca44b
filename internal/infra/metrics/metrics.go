// Package metrics exposes Prometheus counters for dispatches, relayed
// results and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/runoshun/termux-tasker/internal/domain"
)

const namespace = "termux_tasker"

// Metrics holds all Prometheus metrics.
type Metrics struct {
	registry *prometheus.Registry

	DispatchedTotal     *prometheus.CounterVec
	RelayedTotal        *prometheus.CounterVec
	PrunedTotal         prometheus.Counter
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// Ensure Metrics implements domain.Metrics.
var _ domain.Metrics = (*Metrics)(nil)

// New creates the metrics and registers them with a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		DispatchedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatched_total",
				Help:      "Total number of dispatched execution requests by outcome",
			},
			[]string{"outcome"},
		),
		RelayedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "relayed_total",
				Help:      "Total number of relayed execution results by outcome",
			},
			[]string{"outcome"},
		),
		PrunedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pruned_callbacks_total",
				Help:      "Total number of expired pending callbacks removed",
			},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	m.registry.MustRegister(
		m.DispatchedTotal,
		m.RelayedTotal,
		m.PrunedTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)

	return m
}

// Dispatched records a dispatch outcome.
func (m *Metrics) Dispatched(outcome string) {
	m.DispatchedTotal.WithLabelValues(outcome).Inc()
}

// Relayed records a relay outcome.
func (m *Metrics) Relayed(outcome string) {
	m.RelayedTotal.WithLabelValues(outcome).Inc()
}

// Pruned records removed pending callbacks.
func (m *Metrics) Pruned(n int) {
	if n > 0 {
		m.PrunedTotal.Add(float64(n))
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware instruments HTTP requests. Routes are labeled by their mux
// template so path parameters do not multiply series.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tmpl, err := cur.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
