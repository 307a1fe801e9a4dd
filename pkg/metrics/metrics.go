// Package metrics exposes Prometheus collectors for the import engine and the
// HTTP layer.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "expense_importer"

// ImportMetrics records import session activity. A nil *ImportMetrics is
// valid and records nothing.
type ImportMetrics struct {
	operations   *prometheus.CounterVec
	uploadBytes  prometheus.Histogram
	rowsImported prometheus.Counter
	rowsSkipped  prometheus.Counter
	expired      prometheus.Counter
}

// NewImportMetrics creates the import collectors and registers them with reg.
func NewImportMetrics(reg prometheus.Registerer) *ImportMetrics {
	m := &ImportMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_operations_total",
			Help:      "Import session operations by name and result.",
		}, []string{"operation", "result"}),
		uploadBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "import_upload_bytes",
			Help:      "Size of uploaded CSV texts.",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 8),
		}),
		rowsImported: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_rows_imported_total",
			Help:      "Rows turned into expenses by committed imports.",
		}),
		rowsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_rows_skipped_total",
			Help:      "Rows left out of committed imports.",
		}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_sessions_expired_total",
			Help:      "Sessions cancelled by the expiry job.",
		}),
	}
	reg.MustRegister(m.operations, m.uploadBytes, m.rowsImported, m.rowsSkipped, m.expired)
	return m
}

// ObserveOperation counts one call of op, labelled ok or error.
func (m *ImportMetrics) ObserveOperation(op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.operations.WithLabelValues(op, result).Inc()
}

func (m *ImportMetrics) ObserveUpload(size int) {
	if m == nil {
		return
	}
	m.uploadBytes.Observe(float64(size))
}

func (m *ImportMetrics) ObserveCommit(imported, skipped int) {
	if m == nil {
		return
	}
	m.rowsImported.Add(float64(imported))
	m.rowsSkipped.Add(float64(skipped))
}

func (m *ImportMetrics) ObserveExpired(n int64) {
	if m == nil {
		return
	}
	m.expired.Add(float64(n))
}

// HTTPMetrics records request latency by route pattern.
type HTTPMetrics struct {
	duration *prometheus.HistogramVec
}

// NewHTTPMetrics creates the HTTP collectors and registers them with reg.
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	m := &HTTPMetrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method, route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	reg.MustRegister(m.duration)
	return m
}

// Middleware observes every request. The route label is the chi pattern so
// path parameters do not explode cardinality.
func (m *HTTPMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.duration.WithLabelValues(r.Method, route, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
	})
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
