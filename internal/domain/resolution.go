package domain

import (
	"fmt"
	"time"
)

// PayoutVector is the validated payout structure of a resolved condition.
// payout price per outcome = Numerators[i] / Denominator. Constructed only
// through NewPayoutVector so the sum invariant always holds downstream.
type PayoutVector struct {
	Numerators  []uint64
	Denominator uint64
}

// NewPayoutVector validates and builds a PayoutVector. The numerators must
// sum exactly to the denominator; a violation is a data integrity error for
// the condition, never silently clamped.
func NewPayoutVector(conditionID string, numerators []uint64, denominator uint64) (PayoutVector, error) {
	if len(numerators) == 0 {
		return PayoutVector{}, &IntegrityError{ConditionID: conditionID, Reason: "empty payout vector"}
	}
	if denominator == 0 {
		return PayoutVector{}, &IntegrityError{ConditionID: conditionID, Reason: "zero payout denominator"}
	}
	var sum uint64
	for _, n := range numerators {
		sum += n
	}
	if sum != denominator {
		return PayoutVector{}, &IntegrityError{
			ConditionID: conditionID,
			Reason:      fmt.Sprintf("payout numerators sum to %d, denominator is %d", sum, denominator),
		}
	}
	return PayoutVector{Numerators: numerators, Denominator: denominator}, nil
}

// Price returns the payout price per token for the given outcome index.
// Typically 1.0 for the winner and 0.0 otherwise, but fractional payouts
// for partial resolutions are supported.
func (v PayoutVector) Price(outcomeIndex int) float64 {
	if outcomeIndex < 0 || outcomeIndex >= len(v.Numerators) {
		return 0
	}
	return float64(v.Numerators[outcomeIndex]) / float64(v.Denominator)
}

// WinningOutcome returns the index of the outcome with the largest payout
// numerator. For fractional payouts that split evenly the lowest index wins
// the tie, which matters only for reporting, not for pnl.
func (v PayoutVector) WinningOutcome() int {
	best := 0
	for i, n := range v.Numerators {
		if n > v.Numerators[best] {
			best = i
		}
	}
	return best
}

// Equal reports whether two payout vectors are identical.
func (v PayoutVector) Equal(o PayoutVector) bool {
	if v.Denominator != o.Denominator || len(v.Numerators) != len(o.Numerators) {
		return false
	}
	for i := range v.Numerators {
		if v.Numerators[i] != o.Numerators[i] {
			return false
		}
	}
	return true
}

// Resolution records the observed settlement of a condition. Exactly one
// resolution exists per condition; a later conflicting observation is an
// integrity error, not an update.
type Resolution struct {
	ConditionID string
	Payout      PayoutVector
	ResolvedAt  time.Time
}
