// Package resolution maps conditions to their validated payout vectors.
package resolution

import (
	"fmt"
	"time"

	"github.com/polyledger/pnlengine/internal/domain"
	"github.com/polyledger/pnlengine/internal/ident"
)

// RawResolution is a settlement observation as reported by the oracle
// stream, before identifier normalization and payout validation.
type RawResolution struct {
	ConditionID       string
	PayoutNumerators  []uint64
	PayoutDenominator uint64
	ResolvedAt        time.Time
}

// Canonicalize normalizes the condition ID and validates the payout vector.
// A vector that does not sum to its denominator yields an IntegrityError;
// it is surfaced for review, never clamped.
func Canonicalize(raw RawResolution) (domain.Resolution, error) {
	conditionID, err := ident.ConditionID(raw.ConditionID)
	if err != nil {
		return domain.Resolution{}, fmt.Errorf("resolution: %w", err)
	}
	payout, err := domain.NewPayoutVector(conditionID, raw.PayoutNumerators, raw.PayoutDenominator)
	if err != nil {
		return domain.Resolution{}, err
	}
	return domain.Resolution{
		ConditionID: conditionID,
		Payout:      payout,
		ResolvedAt:  raw.ResolvedAt,
	}, nil
}

// CheckConflict compares a newly observed resolution against one already
// recorded for the same condition. An identical re-observation is fine; a
// differing payout is an integrity violation that must go to the operator
// queue rather than be resolved by last-write-wins.
func CheckConflict(existing, incoming domain.Resolution) error {
	if existing.ConditionID != incoming.ConditionID {
		return nil
	}
	if existing.Payout.Equal(incoming.Payout) {
		return nil
	}
	return &domain.IntegrityError{
		ConditionID: incoming.ConditionID,
		Reason: fmt.Sprintf("conflicting resolutions: recorded %v/%d, observed %v/%d",
			existing.Payout.Numerators, existing.Payout.Denominator,
			incoming.Payout.Numerators, incoming.Payout.Denominator),
	}
}

// Table is the in-memory resolution lookup used during a reconciliation
// run. Conditions absent from the table are unresolved: their pnl is
// pending, not zero.
type Table struct {
	byCondition map[string]domain.Resolution
}

// NewTable builds a Table from the recorded resolutions.
func NewTable(resolutions []domain.Resolution) *Table {
	m := make(map[string]domain.Resolution, len(resolutions))
	for _, r := range resolutions {
		m[r.ConditionID] = r
	}
	return &Table{byCondition: m}
}

// Resolve returns the resolution for a condition, if one has been observed.
func (t *Table) Resolve(conditionID string) (domain.Resolution, bool) {
	r, ok := t.byCondition[conditionID]
	return r, ok
}

// PayoutPrice returns the settlement price per token for an outcome of a
// resolved condition.
func (t *Table) PayoutPrice(conditionID string, outcomeIndex int) (float64, bool) {
	r, ok := t.byCondition[conditionID]
	if !ok {
		return 0, false
	}
	return r.Payout.Price(outcomeIndex), true
}
