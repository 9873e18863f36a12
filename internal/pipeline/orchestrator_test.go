package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polyledger/pnlengine/internal/canon"
	"github.com/polyledger/pnlengine/internal/domain"
	"github.com/polyledger/pnlengine/internal/ledger"
)

type fakeLockManager struct {
	held     bool
	acquired int
	released int
}

func (l *fakeLockManager) Acquire(context.Context, string, time.Duration) (func(), error) {
	if l.held {
		return nil, domain.ErrLockHeld
	}
	l.acquired++
	return func() { l.released++ }, nil
}

type fakeArchiver struct {
	ledgerRuns []int64
	reports    []domain.GapReport
}

func (a *fakeArchiver) ArchiveLedger(_ context.Context, runVersion int64) (int64, error) {
	a.ledgerRuns = append(a.ledgerRuns, runVersion)
	return 1, nil
}

func (a *fakeArchiver) ArchiveGapReport(_ context.Context, _ int64, report domain.GapReport) error {
	a.reports = append(a.reports, report)
	return nil
}

func newTestOrchestrator(locks domain.LockManager, archiver domain.SnapshotArchiver, snapshot bool) (*Orchestrator, *memFillStore) {
	deps, fills, _, _, _, _, _, _, _ := testEnv()
	source := &fakeSource{
		fills: []domain.RawFill{
			{EventID: "e1:taker", Wallet: walletA, TokenID: "111", Side: domain.SideBuy,
				Role: domain.RoleTaker, TokenAmount: 10, USDCAmount: 6, TradeTime: tradeTime},
		},
		registrations: []domain.TokenMapping{
			{TokenID: "111", ConditionID: condA, OutcomeIndex: 0},
			{TokenID: "222", ConditionID: condA, OutcomeIndex: 1},
		},
	}
	scraper := NewScraper(source, deps.Fills, deps.Legs, deps.Resolutions, deps.Tokens, deps.Integrity, 1000, testLogger())
	reconciler := NewReconciler(deps, ledger.DefaultRatioClassifier(), canon.DefaultOptions(), 2, testLogger())
	o := NewOrchestrator(scraper, reconciler, archiver, nil, locks, time.Minute, time.Minute, snapshot, 0, testLogger())
	return o, fills
}

func TestOrchestrator_RunOnceScrapesReconcilesAndArchives(t *testing.T) {
	locks := &fakeLockManager{}
	archiver := &fakeArchiver{}
	o, fills := newTestOrchestrator(locks, archiver, true)

	require.NoError(t, o.RunOnce(context.Background()))

	stored, err := fills.ListByWallet(context.Background(), walletA)
	require.NoError(t, err)
	assert.Len(t, stored, 1, "scrape ran")

	require.Len(t, archiver.ledgerRuns, 1, "snapshot archived")
	require.Len(t, archiver.reports, 1)
	assert.Equal(t, archiver.ledgerRuns[0], archiver.reports[0].RunVersion)

	assert.Equal(t, 1, locks.acquired)
	assert.Equal(t, 1, locks.released, "lock released after the run")
}

func TestOrchestrator_LockHeldSkipsRun(t *testing.T) {
	locks := &fakeLockManager{held: true}
	archiver := &fakeArchiver{}
	o, fills := newTestOrchestrator(locks, archiver, true)

	err := o.RunOnce(context.Background())
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	stored, err := fills.ListByWallet(context.Background(), walletA)
	require.NoError(t, err)
	assert.Empty(t, stored, "nothing scraped while another instance holds the lock")
	assert.Empty(t, archiver.ledgerRuns)
}

func TestOrchestrator_SnapshotsDisabled(t *testing.T) {
	locks := &fakeLockManager{}
	archiver := &fakeArchiver{}
	o, _ := newTestOrchestrator(locks, archiver, false)

	require.NoError(t, o.RunOnce(context.Background()))
	assert.Empty(t, archiver.ledgerRuns)
}
