package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	jobmetrics "github.com/invix-erp/invix/internal/jobs"
)

// Metrics mengumpulkan metrik Prometheus untuk aplikasi.
type Metrics struct {
	registry           *prometheus.Registry
	handler            http.Handler
	requestsTotal      *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	transitions        *prometheus.CounterVec
	transitionDuration prometheus.Histogram
	carriedRecords     prometheus.Counter
	archives           *prometheus.CounterVec
	archivedRecords    prometheus.Counter
	jobs               *jobmetrics.Metrics
}

// NewMetrics menginisialisasi registry dan metrik dasar.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "invix_http_requests_total",
		Help: "Jumlah permintaan HTTP berdasarkan route dan status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "invix_http_request_duration_seconds",
		Help:    "Durasi permintaan HTTP per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "invix_period_transitions_total",
		Help: "Period transitions partitioned by outcome.",
	}, []string{"outcome"})
	transitionDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "invix_period_transition_duration_seconds",
		Help:    "Duration of period transitions including rollover.",
		Buckets: prometheus.DefBuckets,
	})
	carried := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "invix_rollover_records_total",
		Help: "Records carried forward into successor periods.",
	})
	archives := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "invix_archive_runs_total",
		Help: "Year archive runs partitioned by outcome.",
	}, []string{"outcome"})
	archived := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "invix_archived_records_total",
		Help: "Records removed from live storage by archival.",
	})
	registry.MustRegister(requests, duration, transitions, transitionDuration, carried, archives, archived)
	return &Metrics{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:      requests,
		requestDuration:    duration,
		transitions:        transitions,
		transitionDuration: transitionDuration,
		carriedRecords:     carried,
		archives:           archives,
		archivedRecords:    archived,
		jobs:               jobmetrics.NewMetrics(registry),
	}
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
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

// ObserveTransition records one period transition attempt.
func (m *Metrics) ObserveTransition(outcome string, carried int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(outcome).Inc()
	m.transitionDuration.Observe(elapsed.Seconds())
	if carried > 0 {
		m.carriedRecords.Add(float64(carried))
	}
}

// ObserveArchive records one archive run.
func (m *Metrics) ObserveArchive(outcome string, removed int) {
	if m == nil {
		return
	}
	m.archives.WithLabelValues(outcome).Inc()
	if removed > 0 {
		m.archivedRecords.Add(float64(removed))
	}
}

// Jobs mengembalikan kolektor metrik untuk job latar belakang.
func (m *Metrics) Jobs() *jobmetrics.Metrics {
	if m == nil {
		return nil
	}
	return m.jobs
}

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
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
