package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/polyledger/pnlengine/internal/domain"
	"github.com/polyledger/pnlengine/internal/metrics"
)

// reconcileLockKey serializes reconciliation runs across engine instances.
const reconcileLockKey = "reconcile"

// Orchestrator drives the scrape-reconcile-archive cycle. Runs are
// serialized through a distributed lock; an instance that finds the lock
// held skips its tick instead of queueing behind it.
type Orchestrator struct {
	scraper    *Scraper
	reconciler *Reconciler
	archiver   domain.SnapshotArchiver
	pruner     domain.SnapshotPruner
	locks      domain.LockManager

	interval time.Duration
	lockTTL  time.Duration
	snapshot bool
	retain   int
	logger   *slog.Logger
}

// NewOrchestrator creates an Orchestrator. The archiver and pruner may be
// nil when snapshots are disabled; retain <= 0 keeps every archived run.
func NewOrchestrator(
	scraper *Scraper,
	reconciler *Reconciler,
	archiver domain.SnapshotArchiver,
	pruner domain.SnapshotPruner,
	locks domain.LockManager,
	interval time.Duration,
	lockTTL time.Duration,
	snapshot bool,
	retain int,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		scraper:    scraper,
		reconciler: reconciler,
		archiver:   archiver,
		pruner:     pruner,
		locks:      locks,
		interval:   interval,
		lockTTL:    lockTTL,
		snapshot:   snapshot && archiver != nil,
		retain:     retain,
		logger:     logger.With(slog.String("component", "orchestrator")),
	}
}

// Run executes the cycle immediately and then on every interval tick until
// ctx is cancelled. A failed cycle is logged and retried on the next tick;
// only context cancellation ends the loop.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("orchestrator starting",
		slog.Duration("interval", o.interval),
		slog.Bool("snapshots", o.snapshot))

	o.runCycle(ctx)

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.logger.Info("orchestrator stopped")
			return ctx.Err()
		case <-ticker.C:
			o.runCycle(ctx)
		}
	}
}

func (o *Orchestrator) runCycle(ctx context.Context) {
	if err := o.RunOnce(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, domain.ErrLockHeld) {
			o.logger.Info("reconciliation already running elsewhere, skipping tick")
			return
		}
		metrics.ReconcileRunsTotal.WithLabelValues("error").Inc()
		o.logger.Error("reconciliation cycle failed", slog.String("error", err.Error()))
	}
}

// RunOnce performs a single scrape-reconcile-archive cycle under the
// distributed lock. Callers running one-shot modes use it directly.
func (o *Orchestrator) RunOnce(ctx context.Context) error {
	unlock, err := o.locks.Acquire(ctx, reconcileLockKey, o.lockTTL)
	if err != nil {
		return fmt.Errorf("pipeline: acquire reconcile lock: %w", err)
	}
	defer unlock()

	started := time.Now()

	if err := o.scraper.Run(ctx); err != nil {
		return err
	}

	result, err := o.reconciler.Run(ctx)
	if err != nil {
		return err
	}

	if o.snapshot {
		if err := o.archive(ctx, result); err != nil {
			// The ledger is already persisted; a failed archive degrades
			// audit, not correctness.
			o.logger.Error("snapshot archive failed",
				slog.Int64("run_version", result.RunVersion),
				slog.String("error", err.Error()))
		}
	}

	metrics.ReconcileRunsTotal.WithLabelValues("ok").Inc()
	metrics.ReconcileDuration.Observe(time.Since(started).Seconds())
	return nil
}

// Archive exports the ledger and gap report of the given run to cold
// storage.
func (o *Orchestrator) archive(ctx context.Context, result RunResult) error {
	rows, err := o.archiver.ArchiveLedger(ctx, result.RunVersion)
	if err != nil {
		return err
	}
	if err := o.archiver.ArchiveGapReport(ctx, result.RunVersion, result.Gaps); err != nil {
		return err
	}
	o.logger.Info("snapshot archived",
		slog.Int64("run_version", result.RunVersion),
		slog.Int64("rows", rows))

	if o.pruner != nil && o.retain > 0 {
		removed, err := o.pruner.PruneSnapshots(ctx, o.retain)
		if err != nil {
			return fmt.Errorf("prune snapshots: %w", err)
		}
		if removed > 0 {
			o.logger.Info("stale snapshots pruned", slog.Int("objects", removed))
		}
	}
	return nil
}
