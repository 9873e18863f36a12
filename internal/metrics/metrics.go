// Package metrics provides Prometheus instrumentation for the engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// GapRecordsTotal counts source records excluded during
	// canonicalization, partitioned by gap kind.
	GapRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pnlengine_gap_records_total",
		Help: "Source records excluded during canonicalization",
	}, []string{"kind"})

	// IntegrityIssuesTotal counts per-condition integrity violations
	// queued for operator review.
	IntegrityIssuesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pnlengine_integrity_issues_total",
		Help: "Per-condition integrity violations queued for review",
	})

	// UnpricedPositionsTotal counts open positions whose mark price was
	// missing at compute time.
	UnpricedPositionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pnlengine_unpriced_positions_total",
		Help: "Open positions with no usable mark price",
	})

	// ReconcileRunsTotal counts completed reconciliation runs by outcome.
	ReconcileRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pnlengine_reconcile_runs_total",
		Help: "Completed reconciliation runs",
	}, []string{"status"})

	// ReconcileDuration tracks end-to-end reconciliation run duration.
	ReconcileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pnlengine_reconcile_duration_seconds",
		Help:    "End-to-end reconciliation run duration in seconds",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})

	// WalletsReconciled counts wallets processed in the latest run.
	WalletsReconciled = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pnlengine_wallets_reconciled",
		Help: "Wallets processed in the most recent reconciliation run",
	})

	// PriceCacheUpdates counts mark-price cache writes from the feed.
	PriceCacheUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pnlengine_price_cache_updates_total",
		Help: "Mark-price cache writes from the market feed",
	})
)

// Gap kinds reported to GapRecordsTotal.
const (
	GapInvalidIdentifier = "invalid_identifier"
	GapUnmappedToken     = "unmapped_token"
	GapDuplicate         = "duplicate"
	GapSelfFill          = "self_fill"
	GapSyntheticPair     = "synthetic_pair"
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
