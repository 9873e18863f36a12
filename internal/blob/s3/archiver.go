package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/polyledger/pnlengine/internal/domain"
)

// ---------------------------------------------------------------------------
// Narrow store interfaces required by the archiver. The archiver only needs
// the query methods it actually calls; the Postgres stores satisfy these
// implicitly.
// ---------------------------------------------------------------------------

// WalletSource enumerates the wallets to include in a ledger snapshot.
type WalletSource interface {
	ListWallets(ctx context.Context) ([]string, error)
}

// PositionSource provides read access to a wallet's computed positions.
type PositionSource interface {
	ListByWallet(ctx context.Context, wallet string) ([]domain.Position, error)
}

// SummarySource provides read access to a wallet's pnl rollup.
type SummarySource interface {
	Get(ctx context.Context, wallet string) (domain.WalletPnL, error)
}

// ---------------------------------------------------------------------------
// SnapshotArchiver
// ---------------------------------------------------------------------------

// SnapshotArchiver implements domain.SnapshotArchiver by querying the ledger
// stores, serializing rows to JSONL, and uploading the result to S3 under a
// per-run prefix:
//
//	<prefix>/run-<version>/positions.jsonl
//	<prefix>/run-<version>/wallet_pnl.jsonl
//	<prefix>/run-<version>/gap_report.json
type SnapshotArchiver struct {
	writer    domain.BlobWriter
	wallets   WalletSource
	positions PositionSource
	summaries SummarySource
	prefix    string
}

// NewSnapshotArchiver creates a SnapshotArchiver writing under prefix.
func NewSnapshotArchiver(
	writer domain.BlobWriter,
	wallets WalletSource,
	positions PositionSource,
	summaries SummarySource,
	prefix string,
) *SnapshotArchiver {
	if prefix == "" {
		prefix = "snapshots"
	}
	return &SnapshotArchiver{
		writer:    writer,
		wallets:   wallets,
		positions: positions,
		summaries: summaries,
		prefix:    prefix,
	}
}

// ArchiveLedger exports every wallet's positions and rollup for the given
// run and returns the number of position rows written.
func (a *SnapshotArchiver) ArchiveLedger(ctx context.Context, runVersion int64) (int64, error) {
	wallets, err := a.wallets.ListWallets(ctx)
	if err != nil {
		return 0, fmt.Errorf("s3blob: snapshot wallet list: %w", err)
	}

	var (
		positionBuf bytes.Buffer
		summaryBuf  bytes.Buffer
		rows        int64
	)
	positionEnc := json.NewEncoder(&positionBuf)
	positionEnc.SetEscapeHTML(false)
	summaryEnc := json.NewEncoder(&summaryBuf)
	summaryEnc.SetEscapeHTML(false)

	for _, wallet := range wallets {
		positions, err := a.positions.ListByWallet(ctx, wallet)
		if err != nil {
			return rows, fmt.Errorf("s3blob: snapshot positions for %s: %w", wallet, err)
		}
		for _, p := range positions {
			if err := positionEnc.Encode(p); err != nil {
				return rows, fmt.Errorf("s3blob: snapshot encode position: %w", err)
			}
			rows++
		}

		summary, err := a.summaries.Get(ctx, wallet)
		if err != nil {
			// Rollup deleted between the list and the read; skip the row.
			continue
		}
		if err := summaryEnc.Encode(summary); err != nil {
			return rows, fmt.Errorf("s3blob: snapshot encode summary: %w", err)
		}
	}

	positionsPath := a.runPath(runVersion, "positions.jsonl")
	if err := a.writer.Put(ctx, positionsPath, &positionBuf, "application/x-ndjson"); err != nil {
		return rows, fmt.Errorf("s3blob: snapshot positions upload: %w", err)
	}

	summariesPath := a.runPath(runVersion, "wallet_pnl.jsonl")
	if err := a.writer.Put(ctx, summariesPath, &summaryBuf, "application/x-ndjson"); err != nil {
		return rows, fmt.Errorf("s3blob: snapshot summaries upload: %w", err)
	}

	return rows, nil
}

// ArchiveGapReport uploads the run's gap report as a single JSON document.
func (a *SnapshotArchiver) ArchiveGapReport(ctx context.Context, runVersion int64, report domain.GapReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("s3blob: gap report marshal: %w", err)
	}

	path := a.runPath(runVersion, "gap_report.json")
	if err := a.writer.Put(ctx, path, bytes.NewReader(data), "application/json"); err != nil {
		return fmt.Errorf("s3blob: gap report upload: %w", err)
	}
	return nil
}

func (a *SnapshotArchiver) runPath(runVersion int64, name string) string {
	return fmt.Sprintf("%s/run-%d/%s", a.prefix, runVersion, name)
}

// Compile-time interface check.
var _ domain.SnapshotArchiver = (*SnapshotArchiver)(nil)
