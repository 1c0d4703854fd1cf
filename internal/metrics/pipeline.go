package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kailas-cloud/matchd/internal/domain"
)

// Pipeline Prometheus metrics.
var (
	RunsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "matchd",
			Name:      "runs_started_total",
			Help:      "Total number of batch runs started",
		},
	)

	runsCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "matchd",
			Name:      "runs_completed_total",
			Help:      "Total number of batch runs reaching a terminal state",
		},
		[]string{"status"},
	)

	runDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "matchd",
			Name:      "run_duration_seconds",
			Help:      "Batch run duration in seconds",
			Buckets:   []float64{1, 5, 15, 60, 300, 900, 1800, 3600},
		},
	)

	MatchesScored = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "matchd",
			Name:      "matches_scored_total",
			Help:      "Total matches produced above the similarity threshold",
		},
	)

	SubmissionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "matchd",
			Name:      "applications_submitted_total",
			Help:      "Total applications submitted autonomously",
		},
	)

	SubmissionsSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "matchd",
			Name:      "applications_skipped_total",
			Help:      "Total submissions skipped, by reason",
		},
		[]string{"reason"},
	)

	CandidateFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "matchd",
			Name:      "candidate_failures_total",
			Help:      "Candidates skipped due to per-candidate errors",
		},
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers pipeline metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(RunsStarted)
	prometheus.MustRegister(runsCompleted)
	prometheus.MustRegister(runDuration)
	prometheus.MustRegister(MatchesScored)
	prometheus.MustRegister(SubmissionsTotal)
	prometheus.MustRegister(SubmissionsSkipped)
	prometheus.MustRegister(CandidateFailures)
	pipelineMetricsRegistered = true
}

// ObserveRunCompleted records a terminal run with its duration.
func ObserveRunCompleted(status domain.RunStatus, d time.Duration) {
	runsCompleted.WithLabelValues(string(status)).Inc()
	runDuration.Observe(d.Seconds())
}

// SkipLabel maps a skip reason string to a low-cardinality label.
// Threshold skips embed scores, so they collapse to one label.
func SkipLabel(reason string) string {
	switch {
	case reason == domain.SkipAutoApplyDisabled:
		return "disabled"
	case reason == domain.SkipDailyLimitReached:
		return "daily_limit"
	case reason == domain.SkipAlreadyApplied:
		return "already_applied"
	case strings.HasPrefix(reason, "Score below threshold"):
		return "below_threshold"
	default:
		return "error"
	}
}
