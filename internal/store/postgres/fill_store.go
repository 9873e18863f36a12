package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/polyledger/pnlengine/internal/domain"
)

// FillStore implements domain.RawFillStore using PostgreSQL.
type FillStore struct {
	pool *pgxpool.Pool
}

// NewFillStore creates a new FillStore backed by the given connection pool.
func NewFillStore(pool *pgxpool.Pool) *FillStore {
	return &FillStore{pool: pool}
}

const fillSelectCols = `event_id, wallet, token_id, side, role,
	token_amount, usdc_amount, fee_amount, trade_time, tx_hash`

func scanFillRows(rows pgx.Rows) ([]domain.RawFill, error) {
	var fills []domain.RawFill
	for rows.Next() {
		var f domain.RawFill
		if err := rows.Scan(
			&f.EventID, &f.Wallet, &f.TokenID, &f.Side, &f.Role,
			&f.TokenAmount, &f.USDCAmount, &f.FeeAmount, &f.TradeTime, &f.TxHash,
		); err != nil {
			return nil, err
		}
		fills = append(fills, f)
	}
	return fills, rows.Err()
}

// InsertBatch inserts raw fills using pgx Batch. Rows whose event_id was
// already ingested are skipped via ON CONFLICT DO NOTHING, so re-running a
// scrape over an overlapping window is safe. Returns the number of rows
// actually inserted.
func (s *FillStore) InsertBatch(ctx context.Context, fills []domain.RawFill) (int64, error) {
	if len(fills) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO raw_fills (
			event_id, wallet, token_id, side, role,
			token_amount, usdc_amount, fee_amount, trade_time, tx_hash
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (event_id) DO NOTHING`

	for _, f := range fills {
		batch.Queue(query,
			f.EventID, f.Wallet, f.TokenID, f.Side, f.Role,
			f.TokenAmount, f.USDCAmount, f.FeeAmount, f.TradeTime, f.TxHash,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	var inserted int64
	for i := range fills {
		tag, err := br.Exec()
		if err != nil {
			return inserted, fmt.Errorf("postgres: insert fill batch item %d: %w", i, err)
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

// ListByWallet returns every raw fill recorded for a wallet, oldest first.
func (s *FillStore) ListByWallet(ctx context.Context, wallet string) ([]domain.RawFill, error) {
	query := `SELECT ` + fillSelectCols + ` FROM raw_fills WHERE wallet = $1 ORDER BY trade_time ASC, event_id ASC`
	rows, err := s.pool.Query(ctx, query, wallet)
	if err != nil {
		return nil, fmt.Errorf("postgres: list fills by wallet: %w", err)
	}
	defer rows.Close()

	fills, err := scanFillRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan fills by wallet: %w", err)
	}
	return fills, nil
}

// ListWallets returns the distinct wallets with at least one recorded fill.
func (s *FillStore) ListWallets(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT wallet FROM raw_fills ORDER BY wallet`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list fill wallets: %w", err)
	}
	defer rows.Close()

	var wallets []string
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, fmt.Errorf("postgres: scan fill wallet: %w", err)
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

// GetLastTradeTime returns the most recent recorded trade time, or the zero
// time when no fills exist. Used as the scrape cursor.
func (s *FillStore) GetLastTradeTime(ctx context.Context) (time.Time, error) {
	var ts *time.Time
	err := s.pool.QueryRow(ctx, "SELECT MAX(trade_time) FROM raw_fills").Scan(&ts)
	if err != nil {
		return time.Time{}, fmt.Errorf("postgres: get last trade time: %w", err)
	}
	if ts == nil {
		return time.Time{}, nil
	}
	return *ts, nil
}
