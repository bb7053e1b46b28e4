// Package metrics exposes Prometheus collectors for the ingestion service.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	runsTotal             *prometheus.CounterVec
	runDurationSeconds    prometheus.Histogram
	jobsTotal             *prometheus.CounterVec
	retriesTotal          *prometheus.CounterVec
	alertsTotal           *prometheus.CounterVec
	politenessWaitSeconds prometheus.Histogram

	once sync.Once
)

// Init registers the collectors. Safe to call more than once.
func Init() {
	once.Do(func() {
		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sikkimjobs_runs_total",
				Help: "Total scrape runs, labeled by terminal status.",
			},
			[]string{"status"},
		)

		runDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sikkimjobs_run_duration_seconds",
				Help:    "Histogram of scrape run durations.",
				Buckets: []float64{10, 30, 60, 120, 300, 600, 1200, 1800},
			},
		)

		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sikkimjobs_jobs_total",
				Help: "Job records processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		retriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sikkimjobs_retries_total",
				Help: "Retry attempts, labeled by failure kind.",
			},
			[]string{"kind"},
		)

		alertsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sikkimjobs_alerts_total",
				Help: "Outbound alerts, labeled by severity.",
			},
			[]string{"severity"},
		)

		politenessWaitSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sikkimjobs_politeness_wait_seconds",
				Help:    "Histogram of politeness delays between records.",
				Buckets: []float64{0.5, 1, 2, 3, 5, 10},
			},
		)
	})
}

// Handler returns an http.Handler exposing the Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRun records a finished run.
func ObserveRun(status string, durationSeconds int64) {
	if runsTotal == nil {
		return
	}
	runsTotal.WithLabelValues(status).Inc()
	runDurationSeconds.Observe(float64(durationSeconds))
}

// ObserveJob records one processed job record by outcome
// (inserted, skipped, error).
func ObserveJob(outcome string) {
	if jobsTotal == nil {
		return
	}
	jobsTotal.WithLabelValues(outcome).Inc()
}

// ObserveRetry records one retry attempt for a failure kind.
func ObserveRetry(kind string) {
	if retriesTotal == nil {
		return
	}
	retriesTotal.WithLabelValues(kind).Inc()
}

// ObserveAlert records an outbound alert.
func ObserveAlert(severity string) {
	if alertsTotal == nil {
		return
	}
	alertsTotal.WithLabelValues(severity).Inc()
}

// ObservePolitenessWait records the delay inserted between records.
func ObservePolitenessWait(d time.Duration) {
	if politenessWaitSeconds == nil {
		return
	}
	politenessWaitSeconds.Observe(d.Seconds())
}
