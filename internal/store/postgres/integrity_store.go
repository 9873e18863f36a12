package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/polyledger/pnlengine/internal/domain"
)

// IntegrityStore implements domain.IntegrityStore using PostgreSQL.
type IntegrityStore struct {
	pool *pgxpool.Pool
}

// NewIntegrityStore creates a new IntegrityStore backed by the given pool.
func NewIntegrityStore(pool *pgxpool.Pool) *IntegrityStore {
	return &IntegrityStore{pool: pool}
}

// Enqueue records a per-condition integrity violation for operator review.
func (s *IntegrityStore) Enqueue(ctx context.Context, issue domain.IntegrityIssue) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO integrity_issues (id, condition_id, reason, observed_at, resolved)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO NOTHING`,
		issue.ID, issue.ConditionID, issue.Reason, issue.ObservedAt, issue.Resolved,
	)
	if err != nil {
		return fmt.Errorf("postgres: enqueue integrity issue: %w", err)
	}
	return nil
}

// ListOpen returns unresolved issues, oldest first.
func (s *IntegrityStore) ListOpen(ctx context.Context) ([]domain.IntegrityIssue, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, condition_id, reason, observed_at, resolved
		 FROM integrity_issues WHERE NOT resolved ORDER BY observed_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open integrity issues: %w", err)
	}
	defer rows.Close()

	var issues []domain.IntegrityIssue
	for rows.Next() {
		var issue domain.IntegrityIssue
		if err := rows.Scan(
			&issue.ID, &issue.ConditionID, &issue.Reason, &issue.ObservedAt, &issue.Resolved,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan integrity issue: %w", err)
		}
		issues = append(issues, issue)
	}
	return issues, rows.Err()
}

// MarkResolved closes an issue after operator review.
func (s *IntegrityStore) MarkResolved(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE integrity_issues SET resolved = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: mark integrity issue resolved: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: integrity issue %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// OpenConditionIDs returns the set of conditions with at least one open
// issue; the calculator withholds pnl for these.
func (s *IntegrityStore) OpenConditionIDs(ctx context.Context) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT condition_id FROM integrity_issues WHERE NOT resolved`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open integrity conditions: %w", err)
	}
	defer rows.Close()

	open := make(map[string]bool)
	for rows.Next() {
		var conditionID string
		if err := rows.Scan(&conditionID); err != nil {
			return nil, fmt.Errorf("postgres: scan open integrity condition: %w", err)
		}
		open[conditionID] = true
	}
	return open, rows.Err()
}
