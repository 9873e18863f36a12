package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/polyledger/pnlengine/internal/domain"
)

// ResolutionStore implements domain.ResolutionStore using PostgreSQL.
type ResolutionStore struct {
	pool *pgxpool.Pool
}

// NewResolutionStore creates a new ResolutionStore backed by the given pool.
func NewResolutionStore(pool *pgxpool.Pool) *ResolutionStore {
	return &ResolutionStore{pool: pool}
}

// Numerators are stored as BIGINT[]; payout numerators in practice are tiny
// (sums equal the denominator), so the int64 conversion is lossless.
func toInt64s(in []uint64) []int64 {
	out := make([]int64, len(in))
	for i, v := range in {
		out[i] = int64(v)
	}
	return out
}

func toUint64s(in []int64) []uint64 {
	out := make([]uint64, len(in))
	for i, v := range in {
		out[i] = uint64(v)
	}
	return out
}

// Put records a resolution. An identical re-observation is a no-op; a
// conflicting payout for an already-resolved condition returns an
// IntegrityError and leaves the recorded resolution untouched.
func (s *ResolutionStore) Put(ctx context.Context, r domain.Resolution) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin resolution tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		numerators  []int64
		denominator int64
	)
	err = tx.QueryRow(ctx,
		`SELECT numerators, denominator FROM resolutions WHERE condition_id = $1 FOR UPDATE`,
		r.ConditionID,
	).Scan(&numerators, &denominator)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		_, err = tx.Exec(ctx,
			`INSERT INTO resolutions (condition_id, numerators, denominator, resolved_at)
			 VALUES ($1, $2, $3, $4)`,
			r.ConditionID, toInt64s(r.Payout.Numerators), int64(r.Payout.Denominator), r.ResolvedAt,
		)
		if err != nil {
			return fmt.Errorf("postgres: insert resolution: %w", err)
		}
	case err != nil:
		return fmt.Errorf("postgres: get resolution for put: %w", err)
	default:
		existing := domain.PayoutVector{
			Numerators:  toUint64s(numerators),
			Denominator: uint64(denominator),
		}
		if !existing.Equal(r.Payout) {
			return &domain.IntegrityError{
				ConditionID: r.ConditionID,
				Reason: fmt.Sprintf("conflicting resolutions: recorded %v/%d, observed %v/%d",
					existing.Numerators, existing.Denominator,
					r.Payout.Numerators, r.Payout.Denominator),
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit resolution: %w", err)
	}
	return nil
}

// Get returns the resolution for a condition, or domain.ErrNotFound.
func (s *ResolutionStore) Get(ctx context.Context, conditionID string) (domain.Resolution, error) {
	var (
		r           domain.Resolution
		numerators  []int64
		denominator int64
	)
	err := s.pool.QueryRow(ctx,
		`SELECT condition_id, numerators, denominator, resolved_at
		 FROM resolutions WHERE condition_id = $1`,
		conditionID,
	).Scan(&r.ConditionID, &numerators, &denominator, &r.ResolvedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Resolution{}, fmt.Errorf("postgres: resolution %s: %w", conditionID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Resolution{}, fmt.Errorf("postgres: get resolution: %w", err)
	}
	r.Payout = domain.PayoutVector{Numerators: toUint64s(numerators), Denominator: uint64(denominator)}
	return r, nil
}

// All returns every recorded resolution.
func (s *ResolutionStore) All(ctx context.Context) ([]domain.Resolution, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT condition_id, numerators, denominator, resolved_at FROM resolutions ORDER BY condition_id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list resolutions: %w", err)
	}
	defer rows.Close()

	var resolutions []domain.Resolution
	for rows.Next() {
		var (
			r           domain.Resolution
			numerators  []int64
			denominator int64
		)
		if err := rows.Scan(&r.ConditionID, &numerators, &denominator, &r.ResolvedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan resolution: %w", err)
		}
		r.Payout = domain.PayoutVector{Numerators: toUint64s(numerators), Denominator: uint64(denominator)}
		resolutions = append(resolutions, r)
	}
	return resolutions, rows.Err()
}

// GetLastResolvedAt returns the most recent resolution time, or the zero
// time when none exist. Used as the scrape cursor.
func (s *ResolutionStore) GetLastResolvedAt(ctx context.Context) (time.Time, error) {
	var ts *time.Time
	err := s.pool.QueryRow(ctx, "SELECT MAX(resolved_at) FROM resolutions").Scan(&ts)
	if err != nil {
		return time.Time{}, fmt.Errorf("postgres: get last resolved at: %w", err)
	}
	if ts == nil {
		return time.Time{}, nil
	}
	return *ts, nil
}
