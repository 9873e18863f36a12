package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/polyledger/pnlengine/internal/domain"
)

// WalletPnLStore implements domain.WalletPnLStore using PostgreSQL.
type WalletPnLStore struct {
	pool *pgxpool.Pool
}

// NewWalletPnLStore creates a new WalletPnLStore backed by the given pool.
func NewWalletPnLStore(pool *pgxpool.Pool) *WalletPnLStore {
	return &WalletPnLStore{pool: pool}
}

const walletPnLSelectCols = `wallet, class, realized_pnl, gross_gain, gross_loss,
	unrealized_pnl, resolved_conditions, win_count, loss_count,
	pending_conditions, unpriced_conditions, computed_at`

func scanWalletPnL(row pgx.Row) (domain.WalletPnL, error) {
	var w domain.WalletPnL
	err := row.Scan(
		&w.Wallet, &w.Class, &w.RealizedPnL, &w.GrossGain, &w.GrossLoss,
		&w.UnrealizedPnL, &w.ResolvedConditions, &w.WinCount, &w.LossCount,
		&w.PendingConditions, &w.UnpricedConditions, &w.ComputedAt,
	)
	return w, err
}

// Upsert writes a wallet's rollup, replacing any older run's row.
func (s *WalletPnLStore) Upsert(ctx context.Context, runVersion int64, summary domain.WalletPnL) error {
	const query = `
		INSERT INTO wallet_pnl (
			wallet, class, realized_pnl, gross_gain, gross_loss,
			unrealized_pnl, resolved_conditions, win_count, loss_count,
			pending_conditions, unpriced_conditions, computed_at, run_version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (wallet) DO UPDATE SET
			class = EXCLUDED.class,
			realized_pnl = EXCLUDED.realized_pnl,
			gross_gain = EXCLUDED.gross_gain,
			gross_loss = EXCLUDED.gross_loss,
			unrealized_pnl = EXCLUDED.unrealized_pnl,
			resolved_conditions = EXCLUDED.resolved_conditions,
			win_count = EXCLUDED.win_count,
			loss_count = EXCLUDED.loss_count,
			pending_conditions = EXCLUDED.pending_conditions,
			unpriced_conditions = EXCLUDED.unpriced_conditions,
			computed_at = EXCLUDED.computed_at,
			run_version = EXCLUDED.run_version
		WHERE wallet_pnl.run_version <= EXCLUDED.run_version`

	_, err := s.pool.Exec(ctx, query,
		summary.Wallet, summary.Class, summary.RealizedPnL, summary.GrossGain,
		summary.GrossLoss, summary.UnrealizedPnL, summary.ResolvedConditions,
		summary.WinCount, summary.LossCount, summary.PendingConditions,
		summary.UnpricedConditions, summary.ComputedAt, runVersion,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert wallet pnl: %w", err)
	}
	return nil
}

// Get returns a wallet's rollup, or domain.ErrNotFound.
func (s *WalletPnLStore) Get(ctx context.Context, wallet string) (domain.WalletPnL, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+walletPnLSelectCols+` FROM wallet_pnl WHERE wallet = $1`, wallet)
	w, err := scanWalletPnL(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.WalletPnL{}, fmt.Errorf("postgres: wallet pnl %s: %w", wallet, domain.ErrNotFound)
	}
	if err != nil {
		return domain.WalletPnL{}, fmt.Errorf("postgres: get wallet pnl: %w", err)
	}
	return w, nil
}

// ListTop returns wallets ordered by realized pnl descending.
func (s *WalletPnLStore) ListTop(ctx context.Context, limit int) ([]domain.WalletPnL, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+walletPnLSelectCols+` FROM wallet_pnl ORDER BY realized_pnl DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list top wallet pnl: %w", err)
	}
	defer rows.Close()

	var summaries []domain.WalletPnL
	for rows.Next() {
		w, err := scanWalletPnL(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan wallet pnl: %w", err)
		}
		summaries = append(summaries, w)
	}
	return summaries, rows.Err()
}

// ListWallets returns every reconciled wallet. Used as the snapshot
// archiver's wallet universe: a wallet with only CTF activity still has a
// rollup row here.
func (s *WalletPnLStore) ListWallets(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT wallet FROM wallet_pnl ORDER BY wallet`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list wallet pnl wallets: %w", err)
	}
	defer rows.Close()

	var wallets []string
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, fmt.Errorf("postgres: scan wallet: %w", err)
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}
