package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the orchestrator.
type Metrics struct {
	JobsSubmitted prometheus.Counter
	JobsCompleted prometheus.Counter
	JobsFailed    prometheus.Counter
	JobRetries    prometheus.Counter
	JobsInFlight  prometheus.Gauge
	JobDuration   prometheus.Histogram
	BreakerTrips  *prometheus.CounterVec
	HTTPRequests  *prometheus.CounterVec
}

// New creates all metrics and registers them on the given registerer.
// Tests pass a fresh prometheus.NewRegistry() so instances stay isolated.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		JobsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "articleforge_jobs_submitted_total",
			Help: "Total number of jobs accepted for execution",
		}),
		JobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "articleforge_jobs_completed_total",
			Help: "Total number of jobs that reached completed",
		}),
		JobsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "articleforge_jobs_failed_total",
			Help: "Total number of jobs that reached failed",
		}),
		JobRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "articleforge_job_retries_total",
			Help: "Total number of retry attempts scheduled",
		}),
		JobsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "articleforge_jobs_in_flight",
			Help: "Number of jobs currently between submission and a terminal status",
		}),
		JobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "articleforge_job_duration_seconds",
			Help:    "Work function attempt duration in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		BreakerTrips: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "articleforge_breaker_denials_total",
				Help: "Calls refused by an open circuit breaker, by service",
			},
			[]string{"service"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "articleforge_http_requests_total",
				Help: "Total HTTP requests by method, endpoint and status",
			},
			[]string{"method", "endpoint", "status"},
		),
	}

	reg.MustRegister(
		m.JobsSubmitted,
		m.JobsCompleted,
		m.JobsFailed,
		m.JobRetries,
		m.JobsInFlight,
		m.JobDuration,
		m.BreakerTrips,
		m.HTTPRequests,
	)

	return m
}
