package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the Prometheus metrics for the posting engine and its
// HTTP surface.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	postingsTotal      *prometheus.CounterVec
	cancellationsTotal *prometheus.CounterVec
	postingDuration    prometheus.Histogram
	degradationsTotal  *prometheus.CounterVec
	kardexPending      prometheus.Gauge
}

// NewMetrics initialises the registry and the base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "meridian_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	postings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_postings_total",
		Help: "Posting attempts by document type and outcome.",
	}, []string{"document_type", "outcome"})
	cancellations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_cancellations_total",
		Help: "Cancellation attempts by mode.",
	}, []string{"mode"})
	postingDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "meridian_posting_duration_seconds",
		Help:    "End-to-end duration of committed postings.",
		Buckets: prometheus.DefBuckets,
	})
	degradations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_downstream_degradations_total",
		Help: "Committed documents whose downstream dispatch degraded to pending.",
	}, []string{"target"})
	kardexPending := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "meridian_kardex_dispatch_pending",
		Help: "Kardex batches awaiting dispatch to the inventory sink.",
	})
	registry.MustRegister(requests, duration, postings, cancellations, postingDuration, degradations, kardexPending)
	return &Metrics{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:      requests,
		requestDuration:    duration,
		postingsTotal:      postings,
		cancellationsTotal: cancellations,
		postingDuration:    postingDuration,
		degradationsTotal:  degradations,
		kardexPending:      kardexPending,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// RecordPosting counts one posting attempt.
func (m *Metrics) RecordPosting(documentType, outcome string) {
	if m == nil {
		return
	}
	m.postingsTotal.WithLabelValues(documentType, outcome).Inc()
}

// RecordCancellation counts one cancellation attempt.
func (m *Metrics) RecordCancellation(mode string) {
	if m == nil {
		return
	}
	m.cancellationsTotal.WithLabelValues(mode).Inc()
}

// ObservePostingDuration records the duration of a committed posting.
func (m *Metrics) ObservePostingDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.postingDuration.Observe(d.Seconds())
}

// RecordDownstreamDegradation counts a committed document whose dispatch
// fell back to pending.
func (m *Metrics) RecordDownstreamDegradation(target string) {
	if m == nil {
		return
	}
	m.degradationsTotal.WithLabelValues(target).Inc()
}

// SetKardexPending records the current pending batch backlog.
func (m *Metrics) SetKardexPending(n int) {
	if m == nil {
		return
	}
	m.kardexPending.Set(float64(n))
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
