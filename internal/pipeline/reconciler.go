package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/polyledger/pnlengine/internal/canon"
	"github.com/polyledger/pnlengine/internal/ctf"
	"github.com/polyledger/pnlengine/internal/domain"
	"github.com/polyledger/pnlengine/internal/ledger"
	"github.com/polyledger/pnlengine/internal/metrics"
	"github.com/polyledger/pnlengine/internal/resolution"
)

// Reconciler recomputes the full position ledger and wallet pnl from the
// raw stores. Each run is a complete recompute stamped with a fresh run
// version; wallets partition the work and are reconciled concurrently.
type Reconciler struct {
	fills       domain.RawFillStore
	legs        domain.CTFLegStore
	resolutions domain.ResolutionStore
	tokens      domain.TokenMapStore
	integrity   domain.IntegrityStore
	positions   domain.PositionStore
	summaries   domain.WalletPnLStore
	prices      domain.PriceCache

	classifier ledger.Classifier
	canonOpts  canon.Options
	workers    int
	logger     *slog.Logger
}

// ReconcilerDeps bundles the stores and cache the reconciler reads and
// writes.
type ReconcilerDeps struct {
	Fills       domain.RawFillStore
	Legs        domain.CTFLegStore
	Resolutions domain.ResolutionStore
	Tokens      domain.TokenMapStore
	Integrity   domain.IntegrityStore
	Positions   domain.PositionStore
	Summaries   domain.WalletPnLStore
	Prices      domain.PriceCache
}

// NewReconciler creates a Reconciler.
func NewReconciler(deps ReconcilerDeps, classifier ledger.Classifier, canonOpts canon.Options, workers int, logger *slog.Logger) *Reconciler {
	if workers <= 0 {
		workers = 1
	}
	return &Reconciler{
		fills:       deps.Fills,
		legs:        deps.Legs,
		resolutions: deps.Resolutions,
		tokens:      deps.Tokens,
		integrity:   deps.Integrity,
		positions:   deps.Positions,
		summaries:   deps.Summaries,
		prices:      deps.Prices,
		classifier:  classifier,
		canonOpts:   canonOpts,
		workers:     workers,
		logger:      logger.With(slog.String("component", "reconciler")),
	}
}

// RunResult summarizes one reconciliation run.
type RunResult struct {
	RunVersion   int64
	Wallets      int
	PositionRows int64
	Gaps         domain.GapReport
}

// Run executes one full reconciliation. The run version is the start time
// in unix seconds; position and summary upserts carry it, and stale rows
// from prior runs are deleted per wallet after the fresh rows land. A
// retried run produces the same rows as one that completed on the first
// attempt.
func (r *Reconciler) Run(ctx context.Context) (RunResult, error) {
	started := time.Now().UTC()
	runVersion := started.Unix()

	mappings, err := r.tokens.All(ctx)
	if err != nil {
		return RunResult{}, fmt.Errorf("pipeline: load token map: %w", err)
	}
	mapper := canon.TableMapper(mappings)

	resolved, err := r.resolutions.All(ctx)
	if err != nil {
		return RunResult{}, fmt.Errorf("pipeline: load resolutions: %w", err)
	}
	table := resolution.NewTable(resolved)

	skip, err := r.integrity.OpenConditionIDs(ctx)
	if err != nil {
		return RunResult{}, fmt.Errorf("pipeline: load open integrity issues: %w", err)
	}

	markPrice, err := r.loadMarkPrices(ctx, mappings)
	if err != nil {
		return RunResult{}, err
	}

	wallets, err := r.listAllWallets(ctx)
	if err != nil {
		return RunResult{}, err
	}

	r.logger.Info("reconciliation started",
		slog.Int64("run_version", runVersion),
		slog.Int("wallets", len(wallets)),
		slog.Int("resolutions", len(resolved)),
		slog.Int("skipped_conditions", len(skip)))

	canonicalizer := canon.New(mapper, r.canonOpts, r.logger)
	processor := ctf.NewProcessor(r.logger)
	calculator := ledger.NewCalculator(markPrice, skip, r.logger)

	var (
		positionRows     atomic.Int64
		invalidDropped   atomic.Int64
		unmappedDropped  atomic.Int64
		duplicateDropped atomic.Int64
		selfFillDropped  atomic.Int64
		synthDropped     atomic.Int64
		unpriced         atomic.Int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for _, wallet := range wallets {
		g.Go(func() error {
			rawFills, err := r.fills.ListByWallet(gctx, wallet)
			if err != nil {
				return fmt.Errorf("pipeline: load fills for %s: %w", wallet, err)
			}
			rawLegs, err := r.legs.ListByWallet(gctx, wallet)
			if err != nil {
				return fmt.Errorf("pipeline: load ctf legs for %s: %w", wallet, err)
			}

			canonRes := canonicalizer.Run(rawFills)
			invalidDropped.Add(canonRes.InvalidDropped)
			unmappedDropped.Add(canonRes.UnmappedDropped)
			duplicateDropped.Add(canonRes.DuplicatesDropped)
			selfFillDropped.Add(canonRes.SelfFillsDropped)
			synthDropped.Add(canonRes.SyntheticDropped)

			flowRes := processor.Run(rawLegs)
			invalidDropped.Add(flowRes.InvalidDropped)
			duplicateDropped.Add(flowRes.DuplicatesDropped)

			positions := ledger.AggregatePositions(canonRes.Fills, flowRes.Flows)
			positions = ledger.AttachResolutions(positions, table)

			rows := calculator.WalletConditionPnL(wallet, positions, flowRes.Flows, table)
			for _, row := range rows {
				if !row.Resolved && row.PriceQuality == domain.PriceQualityMissing {
					unpriced.Add(1)
				}
			}

			summary := ledger.RollupWallet(wallet, rows, started)
			summary.Class = r.classifier.Classify(wallet, ledger.CollectStats(canonRes.Fills, flowRes.Flows))

			if err := r.positions.UpsertBatch(gctx, runVersion, positions); err != nil {
				return fmt.Errorf("pipeline: upsert positions for %s: %w", wallet, err)
			}
			if _, err := r.positions.DeleteStale(gctx, wallet, runVersion); err != nil {
				return fmt.Errorf("pipeline: delete stale positions for %s: %w", wallet, err)
			}
			if err := r.summaries.Upsert(gctx, runVersion, summary); err != nil {
				return fmt.Errorf("pipeline: upsert wallet pnl for %s: %w", wallet, err)
			}

			positionRows.Add(int64(len(positions)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return RunResult{}, err
	}

	report := domain.GapReport{
		RunVersion:        runVersion,
		InvalidIdentifier: invalidDropped.Load(),
		UnmappedTokens:    unmappedDropped.Load(),
		DuplicatesDropped: duplicateDropped.Load(),
		SelfFillsDropped:  selfFillDropped.Load(),
		SyntheticDropped:  synthDropped.Load(),
		UnpricedPositions: unpriced.Load(),
	}
	for id := range skip {
		report.IntegrityIssues = append(report.IntegrityIssues, id)
	}
	sort.Strings(report.IntegrityIssues)

	r.publishGapMetrics(report)
	metrics.WalletsReconciled.Set(float64(len(wallets)))

	r.logger.Info("reconciliation finished",
		slog.Int64("run_version", runVersion),
		slog.Int("wallets", len(wallets)),
		slog.Int64("position_rows", positionRows.Load()),
		slog.Duration("elapsed", time.Since(started)))

	return RunResult{
		RunVersion:   runVersion,
		Wallets:      len(wallets),
		PositionRows: positionRows.Load(),
		Gaps:         report,
	}, nil
}

// listAllWallets unions wallets seen on the CLOB with wallets seen only in
// CTF events, so split/merge-only market makers get ledger rows too.
func (r *Reconciler) listAllWallets(ctx context.Context) ([]string, error) {
	clobWallets, err := r.fills.ListWallets(ctx)
	if err != nil {
		return nil, fmt.Errorf("pipeline: list fill wallets: %w", err)
	}
	ctfWallets, err := r.legs.ListWallets(ctx)
	if err != nil {
		return nil, fmt.Errorf("pipeline: list ctf wallets: %w", err)
	}

	seen := make(map[string]bool, len(clobWallets))
	wallets := make([]string, 0, len(clobWallets)+len(ctfWallets))
	for _, w := range clobWallets {
		seen[w] = true
		wallets = append(wallets, w)
	}
	for _, w := range ctfWallets {
		if !seen[w] {
			wallets = append(wallets, w)
		}
	}
	sort.Strings(wallets)
	return wallets, nil
}

// loadMarkPrices snapshots the mark price cache for every mapped token in
// one pipelined read and returns a lookup keyed by condition and outcome.
// Tokens without a fresh mark are simply absent; their positions report a
// missing price instead of a guessed one.
func (r *Reconciler) loadMarkPrices(ctx context.Context, mappings []domain.TokenMapping) (ledger.MarkPriceFunc, error) {
	if len(mappings) == 0 {
		return ledger.NoMarkPrices, nil
	}

	tokenIDs := make([]string, 0, len(mappings))
	tokenByKey := make(map[string]string, len(mappings))
	for _, m := range mappings {
		tokenIDs = append(tokenIDs, m.TokenID)
		tokenByKey[markKey(m.ConditionID, m.OutcomeIndex)] = m.TokenID
	}

	priceByToken, err := r.prices.GetPrices(ctx, tokenIDs)
	if err != nil {
		return nil, fmt.Errorf("pipeline: load mark prices: %w", err)
	}

	return func(conditionID string, outcomeIndex int) (float64, bool) {
		tokenID, ok := tokenByKey[markKey(conditionID, outcomeIndex)]
		if !ok {
			return 0, false
		}
		price, ok := priceByToken[tokenID]
		return price, ok
	}, nil
}

func (r *Reconciler) publishGapMetrics(report domain.GapReport) {
	metrics.GapRecordsTotal.WithLabelValues(metrics.GapInvalidIdentifier).Add(float64(report.InvalidIdentifier))
	metrics.GapRecordsTotal.WithLabelValues(metrics.GapUnmappedToken).Add(float64(report.UnmappedTokens))
	metrics.GapRecordsTotal.WithLabelValues(metrics.GapDuplicate).Add(float64(report.DuplicatesDropped))
	metrics.GapRecordsTotal.WithLabelValues(metrics.GapSelfFill).Add(float64(report.SelfFillsDropped))
	metrics.GapRecordsTotal.WithLabelValues(metrics.GapSyntheticPair).Add(float64(report.SyntheticDropped))
	metrics.UnpricedPositionsTotal.Add(float64(report.UnpricedPositions))
}

func markKey(conditionID string, outcomeIndex int) string {
	return fmt.Sprintf("%s:%d", conditionID, outcomeIndex)
}
