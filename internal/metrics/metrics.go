// Package metrics holds the process's Prometheus counters/gauges as
// package-level vars, grounded on the promauto registration convention
// used throughout the pack (e.g. a sibling example repo's
// internal/authz/metrics.go: package-level vars plus Record*/Set*
// setter functions, never threading a *prometheus.Registry through
// call sites).
//
// Split into its own package (rather than living in internal/webapi,
// where the /metrics HTTP handler is mounted) so internal/engine,
// internal/orchestrator, and internal/scheduler can call these
// setters directly without importing the web surface.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nreeb/teamarr/internal/reconcile"
)

var (
	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "teamarr_scheduler_tick_duration_seconds",
		Help:    "Duration of a full scheduler tick",
		Buckets: prometheus.DefBuckets,
	})

	matchOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "teamarr_match_outcomes_total",
		Help: "Matching outcomes by group and result kind",
	}, []string{"group", "outcome"})

	reconcileIssuesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "teamarr_reconcile_issues_total",
		Help: "Reconciliation issues found, by kind",
	}, []string{"kind"})

	channelsManaged = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "teamarr_managed_channels",
		Help: "Current count of managed_channels rows",
	})
)

// RecordTick records one scheduler tick's wall-clock duration.
func RecordTick(seconds float64) {
	tickDuration.Observe(seconds)
}

// RecordMatchOutcome increments the match-outcome counter for one
// group/outcome pair (a matcher.OutcomeKind: "matched", "filtered", "failed").
func RecordMatchOutcome(group, outcome string) {
	matchOutcomesTotal.WithLabelValues(group, outcome).Inc()
}

// RecordReconcileIssues adds per-kind reconciliation issue counts from
// a completed run's summary.
func RecordReconcileIssues(counts map[reconcile.IssueKind]int) {
	for kind, n := range counts {
		reconcileIssuesTotal.WithLabelValues(string(kind)).Add(float64(n))
	}
}

// SetChannelsManaged updates the managed-channel-count gauge.
func SetChannelsManaged(n int) {
	channelsManaged.Set(float64(n))
}
