package domain

import "time"

// PositionStatus tracks the resolution state of a position. A position never
// transitions back to open once resolved.
type PositionStatus string

const (
	PositionOpen         PositionStatus = "open"
	PositionResolvedWin  PositionStatus = "resolved_win"
	PositionResolvedLoss PositionStatus = "resolved_loss"
)

// PositionKey identifies the aggregation group a position belongs to.
type PositionKey struct {
	Wallet       string
	ConditionID  string
	OutcomeIndex int
}

// Position is the aggregated net state for one (wallet, condition, outcome)
// group: the sum of all canonical fill token and cash deltas. NetTokens may
// be negative; short exposure is legal and expected for liquidity providers.
// All fields are sums or extrema, so merging two partial aggregations is
// associative and recomputation is idempotent.
//
// Resolution fields are denormalized from the resolutions table and carry no
// independent truth of their own.
type Position struct {
	Wallet       string
	ConditionID  string
	OutcomeIndex int
	NetTokens    float64
	NetCash      float64 // fill cash only; CTF cash joins at condition rollup
	FeePaid      float64
	TradeCount   int
	FirstSeen    time.Time
	LastSeen     time.Time
	Status       PositionStatus
	PayoutPrice  *float64 // set when resolved
}

// Key returns the position's aggregation key.
func (p Position) Key() PositionKey {
	return PositionKey{Wallet: p.Wallet, ConditionID: p.ConditionID, OutcomeIndex: p.OutcomeIndex}
}

// Resolved reports whether the position's condition has resolved.
func (p Position) Resolved() bool {
	return p.Status != PositionOpen
}

// Merge folds another partial aggregation of the same key into p.
func (p *Position) Merge(o Position) {
	p.NetTokens += o.NetTokens
	p.NetCash += o.NetCash
	p.FeePaid += o.FeePaid
	p.TradeCount += o.TradeCount
	if p.FirstSeen.IsZero() || (!o.FirstSeen.IsZero() && o.FirstSeen.Before(p.FirstSeen)) {
		p.FirstSeen = o.FirstSeen
	}
	if o.LastSeen.After(p.LastSeen) {
		p.LastSeen = o.LastSeen
	}
}
