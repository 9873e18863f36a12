package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/polyledger/pnlengine/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelectCols = `wallet, condition_id, outcome_index, net_tokens,
	net_cash, fee_paid, trade_count, first_seen, last_seen, status, payout_price`

func scanPositionRows(rows pgx.Rows) ([]domain.Position, error) {
	var positions []domain.Position
	for rows.Next() {
		var p domain.Position
		if err := rows.Scan(
			&p.Wallet, &p.ConditionID, &p.OutcomeIndex, &p.NetTokens,
			&p.NetCash, &p.FeePaid, &p.TradeCount, &p.FirstSeen, &p.LastSeen,
			&p.Status, &p.PayoutPrice,
		); err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// UpsertBatch writes computed positions keyed by
// (wallet, condition_id, outcome_index). Each run recomputes a wallet's
// positions from scratch, so the write is a full replace per key; the run
// version stamps which run produced the row. Retried partitions converge on
// the same rows.
func (s *PositionStore) UpsertBatch(ctx context.Context, runVersion int64, positions []domain.Position) error {
	if len(positions) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO positions (
			wallet, condition_id, outcome_index, net_tokens, net_cash,
			fee_paid, trade_count, first_seen, last_seen, status,
			payout_price, run_version, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
		ON CONFLICT (wallet, condition_id, outcome_index) DO UPDATE SET
			net_tokens = EXCLUDED.net_tokens,
			net_cash = EXCLUDED.net_cash,
			fee_paid = EXCLUDED.fee_paid,
			trade_count = EXCLUDED.trade_count,
			first_seen = EXCLUDED.first_seen,
			last_seen = EXCLUDED.last_seen,
			status = EXCLUDED.status,
			payout_price = EXCLUDED.payout_price,
			run_version = EXCLUDED.run_version,
			updated_at = NOW()
		WHERE positions.run_version <= EXCLUDED.run_version`

	for _, p := range positions {
		batch.Queue(query,
			p.Wallet, p.ConditionID, p.OutcomeIndex, p.NetTokens, p.NetCash,
			p.FeePaid, p.TradeCount, p.FirstSeen, p.LastSeen, p.Status,
			p.PayoutPrice, runVersion,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range positions {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert position batch item %d: %w", i, err)
		}
	}
	return nil
}

// ListByWallet returns a wallet's positions in deterministic key order.
func (s *PositionStore) ListByWallet(ctx context.Context, wallet string) ([]domain.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM positions
		WHERE wallet = $1 ORDER BY condition_id, outcome_index`
	rows, err := s.pool.Query(ctx, query, wallet)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions by wallet: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan positions by wallet: %w", err)
	}
	return positions, nil
}

// ListByCondition returns every wallet's positions on one condition, used by
// the zero-sum audit.
func (s *PositionStore) ListByCondition(ctx context.Context, conditionID string) ([]domain.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM positions
		WHERE condition_id = $1 ORDER BY wallet, outcome_index`
	rows, err := s.pool.Query(ctx, query, conditionID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions by condition: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan positions by condition: %w", err)
	}
	return positions, nil
}

// DeleteStale removes a wallet's rows not refreshed by the given run, i.e.
// keys that no longer aggregate to a position. Returns the number deleted.
func (s *PositionStore) DeleteStale(ctx context.Context, wallet string, runVersion int64) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM positions WHERE wallet = $1 AND run_version < $2`,
		wallet, runVersion,
	)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete stale positions: %w", err)
	}
	return tag.RowsAffected(), nil
}
