package pagination

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Run outcomes used as the "outcome" label of RunsTotal.
const (
	outcomeDone      = "done"
	outcomeError     = "error"
	outcomeFailed    = "failed"
	outcomeCancelled = "cancelled"
)

var (
	// PagesFetched tracks fetched pages by the state the backend reported
	PagesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pager_pages_fetched_total",
			Help: "Total number of backend pages fetched by response state",
		},
		[]string{"state"}, // "Streaming", "Done", "Error"
	)

	// FetchDuration tracks the latency of a single page fetch
	FetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pager_fetch_duration_seconds",
			Help:    "Duration of a single backend page fetch in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
	)

	// RunsTotal tracks finished pagination runs by outcome
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pager_runs_total",
			Help: "Total number of pagination runs by outcome",
		},
		[]string{"outcome"}, // "done", "error", "failed", "cancelled"
	)

	// ContinuationTargets tracks targets re-queried with a continuation cursor
	ContinuationTargets = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pager_continuation_targets_total",
			Help: "Total number of targets re-queried with a continuation cursor",
		},
	)
)
