package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/polyledger/pnlengine/internal/domain"
)

// TokenMapStore implements domain.TokenMapStore using PostgreSQL.
type TokenMapStore struct {
	pool *pgxpool.Pool
}

// NewTokenMapStore creates a new TokenMapStore backed by the given pool.
func NewTokenMapStore(pool *pgxpool.Pool) *TokenMapStore {
	return &TokenMapStore{pool: pool}
}

// UpsertBatch inserts or updates token mappings. The mapping for a token is
// immutable in practice, but last-writer-wins keeps re-ingestion safe.
func (s *TokenMapStore) UpsertBatch(ctx context.Context, mappings []domain.TokenMapping) error {
	if len(mappings) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO token_map (token_id, condition_id, outcome_index)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_id) DO UPDATE SET
			condition_id = EXCLUDED.condition_id,
			outcome_index = EXCLUDED.outcome_index`

	for _, m := range mappings {
		batch.Queue(query, m.TokenID, m.ConditionID, m.OutcomeIndex)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range mappings {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert token mapping item %d: %w", i, err)
		}
	}
	return nil
}

// GetByToken returns the mapping for a token, or domain.ErrUnmappedToken.
func (s *TokenMapStore) GetByToken(ctx context.Context, tokenID string) (domain.TokenMapping, error) {
	var m domain.TokenMapping
	err := s.pool.QueryRow(ctx,
		`SELECT token_id, condition_id, outcome_index FROM token_map WHERE token_id = $1`,
		tokenID,
	).Scan(&m.TokenID, &m.ConditionID, &m.OutcomeIndex)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.TokenMapping{}, fmt.Errorf("postgres: token %s: %w", tokenID, domain.ErrUnmappedToken)
	}
	if err != nil {
		return domain.TokenMapping{}, fmt.Errorf("postgres: get token mapping: %w", err)
	}
	return m, nil
}

// All returns the full token mapping table, used to build the in-memory
// mapper at the start of a reconciliation run.
func (s *TokenMapStore) All(ctx context.Context) ([]domain.TokenMapping, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT token_id, condition_id, outcome_index FROM token_map ORDER BY token_id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list token mappings: %w", err)
	}
	defer rows.Close()

	var mappings []domain.TokenMapping
	for rows.Next() {
		var m domain.TokenMapping
		if err := rows.Scan(&m.TokenID, &m.ConditionID, &m.OutcomeIndex); err != nil {
			return nil, fmt.Errorf("postgres: scan token mapping: %w", err)
		}
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}
