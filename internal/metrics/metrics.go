package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"steam-inventory/internal/services/inventory"
)

const namespace = "steam_inventory"

// Metrics holds the service's prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	CallbacksDispatched *prometheus.CounterVec
	RecordsRejected     *prometheus.CounterVec
	HandlerPanics       *prometheus.CounterVec
	ResultsOutstanding  prometheus.Gauge

	WebAPIRequests *prometheus.CounterVec
	BreakerState   prometheus.Gauge

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

var _ inventory.Recorder = (*Metrics)(nil)

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{registry: registry}

	m.CallbacksDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "callbacks_dispatched_total",
			Help:      "Completion records decoded and fanned out to handlers",
		},
		[]string{"tag"},
	)

	m.RecordsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "callback_records_rejected_total",
			Help:      "Completion records dropped before dispatch",
		},
		[]string{"reason"},
	)

	m.HandlerPanics = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "callback_handler_panics_total",
			Help:      "Handlers that panicked while receiving an event",
		},
		[]string{"tag"},
	)

	m.ResultsOutstanding = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "results_outstanding",
			Help:      "Result handles issued and not yet destroyed",
		},
	)

	m.WebAPIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steam_webapi_requests_total",
			Help:      "Steam Web API requests by endpoint and outcome",
		},
		[]string{"endpoint", "status"},
	)

	m.BreakerState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "steam_webapi_breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)

	m.HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	m.HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	registry.MustRegister(
		m.CallbacksDispatched,
		m.RecordsRejected,
		m.HandlerPanics,
		m.ResultsOutstanding,
		m.WebAPIRequests,
		m.BreakerState,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)

	return m
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) CallbackDispatched(tag int32) {
	m.CallbacksDispatched.WithLabelValues(inventory.CallbackName(tag)).Inc()
}

func (m *Metrics) RecordRejected(reason string) {
	m.RecordsRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) HandlerPanicked(tag int32) {
	m.HandlerPanics.WithLabelValues(inventory.CallbackName(tag)).Inc()
}

func (m *Metrics) OutstandingResults(n int) {
	m.ResultsOutstanding.Set(float64(n))
}

// WebAPIRequest counts one Steam Web API call.
func (m *Metrics) WebAPIRequest(endpoint, status string) {
	m.WebAPIRequests.WithLabelValues(endpoint, status).Inc()
}

func (m *Metrics) SetBreakerState(state int) {
	m.BreakerState.Set(float64(state))
}

// RecordHTTPRequest records an HTTP request against its route template.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
