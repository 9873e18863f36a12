package domain

import "time"

// FlowType is the kind of conditional-token-framework operation.
type FlowType string

const (
	FlowSplit  FlowType = "split"
	FlowMerge  FlowType = "merge"
	FlowRedeem FlowType = "redeem"
)

// CTFLeg is one outcome leg of a raw split/merge/redemption event. The
// indexer records the condition-level cash amount once per outcome leg, so
// the same CashDelta appears on every leg of the event; the flow processor
// corrects for this structural duplication.
//
// Sign conventions: a split deposits collateral (CashDelta < 0) and mints
// tokens (TokenDelta > 0); merges and redemptions burn tokens
// (TokenDelta < 0) and pay collateral out (CashDelta > 0).
type CTFLeg struct {
	EventID      string
	Wallet       string
	ConditionID  string
	Type         FlowType
	OutcomeIndex int
	TokenDelta   float64
	CashDelta    float64
	BlockTime    time.Time
	TxHash       string
}

// CTFFlow is the corrected condition-level view of a wallet's CTF activity:
// one net cash figure per (wallet, condition) plus per-outcome token deltas.
// NetCash is a cash-flow fact independent of how the burned tokens were
// acquired; it is kept separate from per-outcome fill cash until the
// condition-level rollup to avoid double counting.
type CTFFlow struct {
	Wallet      string
	ConditionID string
	NetCash     float64
	TokenDeltas map[int]float64
	LegCount    int
	FirstSeen   time.Time
	LastSeen    time.Time
}
