// Package metrics exposes Prometheus instrumentation for pinned reads and
// the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	statusSuccess = "success"
	statusError   = "error"

	// Read results recorded by RecordRead.
	ReadFound   = "found"
	ReadAbsent  = "absent"
	ReadFailure = "error"
)

// Metrics holds all Prometheus metrics for one process.
type Metrics struct {
	// Pinned slice metrics
	pinsAcquired      prometheus.Counter
	pinsReleased      prometheus.Counter
	pinsOutstanding   prometheus.Gauge
	pinReleaseErrors  prometheus.Counter
	pinsLeaked        prometheus.Counter
	pinHoldDuration   prometheus.Histogram
	readsTotal        *prometheus.CounterVec
	dbOperationsTotal *prometheus.CounterVec

	// HTTP request metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight *prometheus.GaugeVec
}

// New creates all metrics and registers them with reg. Passing
// prometheus.DefaultRegisterer exposes them on promhttp.Handler().
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		pinsAcquired: factory.NewCounter(prometheus.CounterOpts{
			Name: "pinkv_pins_acquired_total",
			Help: "Total number of pinned slices handed out by engine reads",
		}),
		pinsReleased: factory.NewCounter(prometheus.CounterOpts{
			Name: "pinkv_pins_released_total",
			Help: "Total number of pinned slices released back to their engine",
		}),
		pinsOutstanding: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pinkv_pins_outstanding",
			Help: "Number of pinned slices currently open",
		}),
		pinReleaseErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "pinkv_pin_release_errors_total",
			Help: "Total number of native release failures swallowed at close",
		}),
		pinsLeaked: factory.NewCounter(prometheus.CounterOpts{
			Name: "pinkv_pins_leaked_total",
			Help: "Total number of pinned slices garbage collected without Close",
		}),
		pinHoldDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "pinkv_pin_hold_duration_seconds",
			Help:    "Time between pinning a value and releasing it",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
		readsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pinkv_reads_total",
			Help: "Total number of pinned reads by result",
		}, []string{"backend", "result"}),
		dbOperationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pinkv_db_operations_total",
			Help: "Total number of write operations",
		}, []string{"operation", "status"}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pinkv_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		httpRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pinkv_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		httpRequestsInFlight: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pinkv_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		}, []string{"method", "endpoint"}),
	}
}

// Pinned implements pinned.Observer.
func (m *Metrics) Pinned() {
	m.pinsAcquired.Inc()
	m.pinsOutstanding.Inc()
}

// Released implements pinned.Observer.
func (m *Metrics) Released(held time.Duration) {
	m.pinsReleased.Inc()
	m.pinsOutstanding.Dec()
	m.pinHoldDuration.Observe(held.Seconds())
}

// ReleaseFailed implements pinned.Observer.
func (m *Metrics) ReleaseFailed() {
	m.pinReleaseErrors.Inc()
}

// Leaked implements pinned.Observer.
func (m *Metrics) Leaked() {
	m.pinsLeaked.Inc()
}

// RecordRead records the outcome of one GetPinned call.
func (m *Metrics) RecordRead(backend, result string) {
	m.readsTotal.WithLabelValues(backend, result).Inc()
}

// RecordDBOperation records a write-side database operation
func (m *Metrics) RecordDBOperation(operation string, success bool) {
	status := statusSuccess
	if !success {
		status = statusError
	}
	m.dbOperationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// InstrumentHandler instruments an HTTP handler with metrics
func (m *Metrics) InstrumentHandler(method, endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		gauge := m.httpRequestsInFlight.WithLabelValues(method, endpoint)
		gauge.Inc()
		defer gauge.Dec()

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		handler(rw, r)

		m.RecordHTTPRequest(method, endpoint, rw.statusCode, time.Since(start))
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
