package monitoring

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector owns the Prometheus registry for one service. Every
// collector gets its own registry so binaries and tests never fight over
// global registration; the service name is stamped on all series as a
// constant label.
type MetricsCollector struct {
	registry *prometheus.Registry

	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	dbConnections   *prometheus.GaugeVec
	dbQueryDuration *prometheus.HistogramVec
	billingCalls    *prometheus.CounterVec
	billingDuration *prometheus.HistogramVec
	eventsPublished *prometheus.CounterVec
	creations       *prometheus.CounterVec
	authAttempts    *prometheus.CounterVec
	systemErrors    *prometheus.CounterVec
}

// NewMetricsCollector builds the metric set for the named service.
func NewMetricsCollector(service string) *MetricsCollector {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(registry)
	constLabels := prometheus.Labels{"service": service}

	return &MetricsCollector{
		registry: registry,

		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "http_requests_total",
			Help:        "Served HTTP requests.",
			ConstLabels: constLabels,
		}, []string{"method", "route", "status"}),

		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "http_request_duration_seconds",
			Help:        "HTTP request latency.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		}, []string{"method", "route"}),

		dbConnections: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "db_connections_open",
			Help:        "Open connections in the database pool.",
			ConstLabels: constLabels,
		}, []string{"database"}),

		dbQueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "db_query_duration_seconds",
			Help:        "Database query latency.",
			Buckets:     []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5},
			ConstLabels: constLabels,
		}, []string{"query"}),

		billingCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "billing_requests_total",
			Help:        "Billing provisioning calls by outcome (ok, transient, rejected).",
			ConstLabels: constLabels,
		}, []string{"outcome"}),

		billingDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "billing_request_duration_seconds",
			Help:        "Billing provisioning call latency by outcome.",
			Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			ConstLabels: constLabels,
		}, []string{"outcome"}),

		eventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "events_published_total",
			Help:        "Event publish attempts by type and status.",
			ConstLabels: constLabels,
		}, []string{"event_type", "status"}),

		creations: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "patient_creations_total",
			Help:        "Patient creation workflows by outcome and billing result.",
			ConstLabels: constLabels,
		}, []string{"outcome", "billing"}),

		authAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "auth_attempts_total",
			Help:        "Authentication attempts by method and status.",
			ConstLabels: constLabels,
		}, []string{"method", "status"}),

		systemErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "system_errors_total",
			Help:        "Internal errors by type and component.",
			ConstLabels: constLabels,
		}, []string{"error_type", "component"}),
	}
}

// RecordHTTPRequest records one served request.
func (m *MetricsCollector) RecordHTTPRequest(method, route, status string, duration time.Duration) {
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordDBConnection updates the pool gauge for a database.
func (m *MetricsCollector) RecordDBConnection(database string, open int) {
	m.dbConnections.WithLabelValues(database).Set(float64(open))
}

// RecordDBQuery records the latency of one repository query.
func (m *MetricsCollector) RecordDBQuery(query string, duration time.Duration) {
	m.dbQueryDuration.WithLabelValues(query).Observe(duration.Seconds())
}

// RecordBillingCall records the outcome and duration of a billing
// provisioning call. Outcome is one of ok, transient or rejected.
func (m *MetricsCollector) RecordBillingCall(outcome string, duration time.Duration) {
	m.billingCalls.WithLabelValues(outcome).Inc()
	m.billingDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordEventPublish records an event publish attempt.
func (m *MetricsCollector) RecordEventPublish(eventType, status string) {
	m.eventsPublished.WithLabelValues(eventType, status).Inc()
}

// RecordPatientCreation records a patient creation workflow outcome.
func (m *MetricsCollector) RecordPatientCreation(outcome, billing string) {
	m.creations.WithLabelValues(outcome, billing).Inc()
}

// RecordAuthAttempt records an authentication attempt.
func (m *MetricsCollector) RecordAuthAttempt(method, status string) {
	m.authAttempts.WithLabelValues(method, status).Inc()
}

// RecordSystemError records an internal error.
func (m *MetricsCollector) RecordSystemError(errorType, component string) {
	m.systemErrors.WithLabelValues(errorType, component).Inc()
}

// Handler serves this collector's registry.
func (m *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// HTTPMiddleware instruments a router with request counts and latency.
func (m *MetricsCollector) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapper := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		m.RecordHTTPRequest(r.Method, routeLabel(r.URL.Path),
			strconv.Itoa(wrapper.statusCode), time.Since(start))
	})
}

// routeLabel collapses a request path to its first two segments so record
// ids do not explode series cardinality: /api/patients/42 and
// /api/patients/43 both count against /api/patients.
func routeLabel(path string) string {
	trimmed := strings.TrimPrefix(path, "/")
	if trimmed == "" {
		return "/"
	}

	segments := strings.SplitN(trimmed, "/", 3)
	if len(segments) > 2 {
		segments = segments[:2]
	}
	return "/" + strings.Join(segments, "/")
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
