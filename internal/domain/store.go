package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// StreamCursor addresses a position in an ascending event stream. Since is
// the high-water timestamp; LastID is the ID of the newest event already
// consumed at that timestamp, so a page boundary inside a busy second
// resumes after the consumed events instead of refetching or skipping them.
// An empty LastID means "everything at or after Since".
type StreamCursor struct {
	Since  time.Time
	LastID string
}

// RawFillStore persists raw party-level fill rows. Inserts are keyed by
// EventID with conflict-ignore semantics so re-ingestion is idempotent.
type RawFillStore interface {
	InsertBatch(ctx context.Context, fills []RawFill) (inserted int64, err error)
	ListByWallet(ctx context.Context, wallet string) ([]RawFill, error)
	ListWallets(ctx context.Context) ([]string, error)
	GetLastTradeTime(ctx context.Context) (time.Time, error)
}

// CTFLegStore persists raw split/merge/redemption outcome legs, keyed by
// (EventID, OutcomeIndex) with conflict-ignore semantics. The high-water
// mark is tracked per flow type because each flow is scraped as its own
// stream with its own cursor.
type CTFLegStore interface {
	InsertBatch(ctx context.Context, legs []CTFLeg) (inserted int64, err error)
	ListByWallet(ctx context.Context, wallet string) ([]CTFLeg, error)
	ListWallets(ctx context.Context) ([]string, error)
	GetLastBlockTime(ctx context.Context, flow FlowType) (time.Time, error)
}

// TokenMapStore persists the token to condition/outcome mapping.
type TokenMapStore interface {
	UpsertBatch(ctx context.Context, mappings []TokenMapping) error
	GetByToken(ctx context.Context, tokenID string) (TokenMapping, error)
	All(ctx context.Context) ([]TokenMapping, error)
}

// ResolutionStore persists condition resolutions. Put rejects a conflicting
// second resolution for the same condition with an IntegrityError; an
// identical re-observation is a no-op.
type ResolutionStore interface {
	Put(ctx context.Context, r Resolution) error
	Get(ctx context.Context, conditionID string) (Resolution, error)
	All(ctx context.Context) ([]Resolution, error)
	GetLastResolvedAt(ctx context.Context) (time.Time, error)
}

// PositionStore persists the computed position ledger. Writes are
// upsert-by-group-key with a monotonically increasing run version; a retried
// partition produces the same rows as one that completed on the first
// attempt.
type PositionStore interface {
	UpsertBatch(ctx context.Context, runVersion int64, positions []Position) error
	ListByWallet(ctx context.Context, wallet string) ([]Position, error)
	ListByCondition(ctx context.Context, conditionID string) ([]Position, error)
	DeleteStale(ctx context.Context, wallet string, runVersion int64) (int64, error)
}

// WalletPnLStore persists the wallet-level rollup.
type WalletPnLStore interface {
	Upsert(ctx context.Context, runVersion int64, summary WalletPnL) error
	Get(ctx context.Context, wallet string) (WalletPnL, error)
	ListTop(ctx context.Context, limit int) ([]WalletPnL, error)
}

// IntegrityIssue is one queued per-condition integrity violation awaiting
// operator review.
type IntegrityIssue struct {
	ID          string
	ConditionID string
	Reason      string
	ObservedAt  time.Time
	Resolved    bool
}

// IntegrityStore persists the operator review queue. Conditions with an
// open issue are skipped by the calculator until the issue is resolved.
type IntegrityStore interface {
	Enqueue(ctx context.Context, issue IntegrityIssue) error
	ListOpen(ctx context.Context) ([]IntegrityIssue, error)
	MarkResolved(ctx context.Context, id string) error
	OpenConditionIDs(ctx context.Context) (map[string]bool, error)
}
