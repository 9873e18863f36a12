package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidIdentifier = errors.New("invalid identifier")
	ErrUnmappedToken     = errors.New("token not in condition mapping")
	ErrPriceMissing      = errors.New("mark price missing")
	ErrDataIntegrity     = errors.New("data integrity violation")
	ErrLockHeld          = errors.New("lock already held")
	ErrWSDisconnect      = errors.New("websocket disconnected")
)

// IntegrityError describes a per-condition data integrity violation, such as
// a payout vector that does not sum to its denominator or two resolutions
// observed for the same condition with different payouts. Processing for the
// affected condition halts; the error is queued for manual review instead of
// being resolved by last-write-wins.
type IntegrityError struct {
	ConditionID string
	Reason      string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity violation on condition %s: %s", e.ConditionID, e.Reason)
}

func (e *IntegrityError) Unwrap() error { return ErrDataIntegrity }
