// Package metrics defines the Prometheus collectors of the learning service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every collector. Build one per registry with New.
type Metrics struct {
	HTTPRequests      *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
	AnalysisDuration  *prometheus.HistogramVec
	CacheLookups      *prometheus.CounterVec
	SessionsCompleted prometheus.Counter
	ReviewsSubmitted  *prometheus.CounterVec
	GenerationJobs    *prometheus.CounterVec
	DueReviews        prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New registers the collectors on reg.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "learning_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"route", "status"},
		),
		HTTPDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "learning_http_request_duration_seconds",
				Help:    "Time spent serving HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		AnalysisDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "learning_analysis_duration_seconds",
				Help:    "Time spent computing analytics, including store reads",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		CacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "learning_cache_lookups_total",
				Help: "Analytics result cache lookups",
			},
			[]string{"result"}, // hit, miss, error
		),
		SessionsCompleted: f.NewCounter(
			prometheus.CounterOpts{
				Name: "learning_sessions_completed_total",
				Help: "Total number of completed practice sessions",
			},
		),
		ReviewsSubmitted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "learning_reviews_submitted_total",
				Help: "Spaced-repetition reviews submitted",
			},
			[]string{"outcome"}, // recalled, forgotten
		),
		GenerationJobs: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "learning_generation_jobs_total",
				Help: "Question generation jobs by outcome",
			},
			[]string{"outcome"}, // scheduled, deduplicated, succeeded, failed
		),
		DueReviews: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "learning_due_reviews_current",
				Help: "Review items due at the last reminder sweep",
			},
		),
		gatherer: reg,
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveAnalysis records the time since start under operation.
func (m *Metrics) ObserveAnalysis(operation string, start time.Time) {
	m.AnalysisDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// Instrument wraps next, counting requests and timing them under route.
func (m *Metrics) Instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		m.HTTPRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		m.HTTPDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
