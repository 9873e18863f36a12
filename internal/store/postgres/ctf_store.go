package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/polyledger/pnlengine/internal/domain"
)

// CTFStore implements domain.CTFLegStore using PostgreSQL.
type CTFStore struct {
	pool *pgxpool.Pool
}

// NewCTFStore creates a new CTFStore backed by the given connection pool.
func NewCTFStore(pool *pgxpool.Pool) *CTFStore {
	return &CTFStore{pool: pool}
}

// InsertBatch inserts split/merge/redemption legs keyed by
// (event_id, outcome_index) with conflict-ignore semantics. Returns the
// number of rows actually inserted.
func (s *CTFStore) InsertBatch(ctx context.Context, legs []domain.CTFLeg) (int64, error) {
	if len(legs) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO ctf_legs (
			event_id, outcome_index, wallet, condition_id, flow_type,
			token_delta, cash_delta, block_time, tx_hash
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (event_id, outcome_index) DO NOTHING`

	for _, l := range legs {
		batch.Queue(query,
			l.EventID, l.OutcomeIndex, l.Wallet, l.ConditionID, l.Type,
			l.TokenDelta, l.CashDelta, l.BlockTime, l.TxHash,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	var inserted int64
	for i := range legs {
		tag, err := br.Exec()
		if err != nil {
			return inserted, fmt.Errorf("postgres: insert ctf leg batch item %d: %w", i, err)
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

// ListByWallet returns every CTF leg recorded for a wallet, oldest first.
func (s *CTFStore) ListByWallet(ctx context.Context, wallet string) ([]domain.CTFLeg, error) {
	const query = `
		SELECT event_id, outcome_index, wallet, condition_id, flow_type,
			token_delta, cash_delta, block_time, tx_hash
		FROM ctf_legs WHERE wallet = $1
		ORDER BY block_time ASC, event_id ASC, outcome_index ASC`

	rows, err := s.pool.Query(ctx, query, wallet)
	if err != nil {
		return nil, fmt.Errorf("postgres: list ctf legs by wallet: %w", err)
	}
	defer rows.Close()

	var legs []domain.CTFLeg
	for rows.Next() {
		var l domain.CTFLeg
		if err := rows.Scan(
			&l.EventID, &l.OutcomeIndex, &l.Wallet, &l.ConditionID, &l.Type,
			&l.TokenDelta, &l.CashDelta, &l.BlockTime, &l.TxHash,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan ctf leg: %w", err)
		}
		legs = append(legs, l)
	}
	return legs, rows.Err()
}

// ListWallets returns every wallet with at least one CTF leg.
func (s *CTFStore) ListWallets(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, "SELECT DISTINCT wallet FROM ctf_legs ORDER BY wallet")
	if err != nil {
		return nil, fmt.Errorf("postgres: list ctf wallets: %w", err)
	}
	defer rows.Close()

	var wallets []string
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, fmt.Errorf("postgres: scan ctf wallet: %w", err)
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

// GetLastBlockTime returns the most recent recorded block time for one flow
// type, or the zero time when no legs of that flow exist. Splits, merges,
// and redemptions advance at different rates, so each keeps its own scrape
// cursor; a global maximum would let the fastest stream drag the cursor
// past unfetched events in the slower ones.
func (s *CTFStore) GetLastBlockTime(ctx context.Context, flow domain.FlowType) (time.Time, error) {
	var ts *time.Time
	err := s.pool.QueryRow(ctx, "SELECT MAX(block_time) FROM ctf_legs WHERE flow_type = $1", flow).Scan(&ts)
	if err != nil {
		return time.Time{}, fmt.Errorf("postgres: get last ctf block time: %w", err)
	}
	if ts == nil {
		return time.Time{}, nil
	}
	return *ts, nil
}
