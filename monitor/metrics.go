// Package monitor exposes Prometheus metrics for the workflow engine and the
// billing ledger.
package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stageExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "drama",
		Subsystem: "pipeline",
		Name:      "stage_executions_total",
		Help:      "Stage executions by stage and outcome.",
	}, []string{"stage", "outcome"})

	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "drama",
		Subsystem: "pipeline",
		Name:      "stage_duration_seconds",
		Help:      "Wall-clock stage duration by stage.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
	}, []string{"stage"})

	runningProductions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "drama",
		Subsystem: "pipeline",
		Name:      "running_productions",
		Help:      "Productions currently advancing through the pipeline.",
	})

	quotaDebited = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "drama",
		Subsystem: "billing",
		Name:      "quota_minutes_debited_total",
		Help:      "Total quota minutes debited for renders.",
	})

	quotaRefunded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "drama",
		Subsystem: "billing",
		Name:      "quota_minutes_refunded_total",
		Help:      "Total quota minutes refunded after failed renders.",
	})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "drama",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by method, route and status code.",
	}, []string{"method", "route", "status"})
)

// Stage outcomes recorded on stage_executions_total.
const (
	OutcomeCompleted = "completed"
	OutcomeSkipped   = "skipped"
	OutcomeRetried   = "retried"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
	OutcomeTimeout   = "timeout"
)

// ObserveStage records one stage execution attempt and its duration.
func ObserveStage(stage, outcome string, seconds float64) {
	stageExecutions.WithLabelValues(stage, outcome).Inc()
	if seconds > 0 {
		stageDuration.WithLabelValues(stage).Observe(seconds)
	}
}

// ProductionStarted / ProductionStopped track the running-productions gauge.
func ProductionStarted() { runningProductions.Inc() }
func ProductionStopped() { runningProductions.Dec() }

// QuotaDebited / QuotaRefunded track billed quota movement in minutes.
func QuotaDebited(minutes float64)  { quotaDebited.Add(minutes) }
func QuotaRefunded(minutes float64) { quotaRefunded.Add(minutes) }

// ObserveHTTPRequest records one served request. The route is the matched
// pattern, not the raw path, to keep the label cardinality bounded.
func ObserveHTTPRequest(method, route, status string) {
	httpRequests.WithLabelValues(method, route, status).Inc()
}
