package domain

import (
	"context"
	"io"
)

// BlobWriter uploads objects to cold storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// SnapshotArchiver exports the computed ledger and the gap report of a
// reconciliation run to cold storage for audit.
type SnapshotArchiver interface {
	ArchiveLedger(ctx context.Context, runVersion int64) (rows int64, err error)
	ArchiveGapReport(ctx context.Context, runVersion int64, report GapReport) error
}

// SnapshotPruner applies the snapshot retention policy, deleting archived
// runs beyond the newest keep.
type SnapshotPruner interface {
	PruneSnapshots(ctx context.Context, keep int) (removed int, err error)
}

// GapReport summarizes every record the pipeline excluded or skipped during
// a run. The pipeline makes maximal forward progress and reports gaps
// instead of failing the batch.
type GapReport struct {
	RunVersion        int64    `json:"run_version"`
	InvalidIdentifier int64    `json:"invalid_identifier"`
	UnmappedTokens    int64    `json:"unmapped_tokens"`
	DuplicatesDropped int64    `json:"duplicates_dropped"`
	SelfFillsDropped  int64    `json:"self_fills_dropped"`
	SyntheticDropped  int64    `json:"synthetic_pairs_dropped"`
	UnpricedPositions int64    `json:"unpriced_positions"`
	IntegrityIssues   []string `json:"integrity_issues,omitempty"`
}
