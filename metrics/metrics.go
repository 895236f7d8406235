// Package metrics exposes Prometheus metrics for webhook handling and the
// adapters each turn calls.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the phone agent.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Webhook metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Turn metrics
	TurnsTotal     *prometheus.CounterVec
	FallbacksTotal *prometheus.CounterVec

	// Adapter metrics
	AdapterDuration *prometheus.HistogramVec
	AdapterFailures *prometheus.CounterVec
	AdapterRetries  *prometheus.CounterVec
}

// New creates a Metrics instance with all metrics registered on a private
// registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "phonecall"
	}

	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of webhook requests",
		},
		[]string{"route", "status"},
	)

	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Webhook handling duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 15},
		},
		[]string{"route"},
	)

	turnsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total number of handled turns by outcome",
		},
		[]string{"outcome"},
	)

	fallbacksTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Total number of fallback instructions by failure class",
		},
		[]string{"reason"},
	)

	adapterDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "adapter_duration_seconds",
			Help:      "Adapter call duration in seconds, retries included",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"adapter"},
	)

	adapterFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "adapter_failures_total",
			Help:      "Total number of adapter calls that failed after retries",
		},
		[]string{"adapter"},
	)

	adapterRetries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "adapter_retries_total",
			Help:      "Total number of adapter retry attempts",
		},
		[]string{"adapter"},
	)

	registry.MustRegister(
		requestsTotal,
		requestDuration,
		turnsTotal,
		fallbacksTotal,
		adapterDuration,
		adapterFailures,
		adapterRetries,
	)

	return &Metrics{
		registry:        registry,
		RequestsTotal:   requestsTotal,
		RequestDuration: requestDuration,
		TurnsTotal:      turnsTotal,
		FallbacksTotal:  fallbacksTotal,
		AdapterDuration: adapterDuration,
		AdapterFailures: adapterFailures,
		AdapterRetries:  adapterRetries,
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest records a handled webhook.
func (m *Metrics) RecordRequest(route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordTurn records the outcome of one turn ("committed", "reprompt",
// "fallback", "greeting").
func (m *Metrics) RecordTurn(outcome string) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(outcome).Inc()
}

// RecordFallback records a fallback instruction served for reason.
func (m *Metrics) RecordFallback(reason string) {
	if m == nil {
		return
	}
	m.FallbacksTotal.WithLabelValues(reason).Inc()
}

// RecordAdapter records one adapter call.
func (m *Metrics) RecordAdapter(adapter string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.AdapterDuration.WithLabelValues(adapter).Observe(duration.Seconds())
	if err != nil {
		m.AdapterFailures.WithLabelValues(adapter).Inc()
	}
}

// RecordRetry records a retry attempt against adapter.
func (m *Metrics) RecordRetry(adapter string) {
	if m == nil {
		return
	}
	m.AdapterRetries.WithLabelValues(adapter).Inc()
}

// ResponseWriter wraps http.ResponseWriter to capture the status code.
type ResponseWriter struct {
	http.ResponseWriter
	StatusCode int
}

// NewResponseWriter creates a new ResponseWriter.
func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	return &ResponseWriter{
		ResponseWriter: w,
		StatusCode:     http.StatusOK,
	}
}

// WriteHeader captures the status code.
func (rw *ResponseWriter) WriteHeader(code int) {
	rw.StatusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware records request count and latency under route.
func (m *Metrics) Middleware(route string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := NewResponseWriter(w)
		next.ServeHTTP(rw, r)
		m.RecordRequest(route, rw.StatusCode, time.Since(start))
	})
}
