package domain

import "time"

// Side is the direction of a trade leg.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Role identifies which side of the order book a wallet was on for a fill.
type Role string

const (
	RoleMaker Role = "maker"
	RoleTaker Role = "taker"
)

// RawFill is one party-level row of a CLOB order-filled event as ingested
// from the indexer. Each on-chain fill produces two RawFill rows (one per
// party), and the same row may be ingested more than once across pipeline
// runs, so raw fills are duplicate-prone by construction.
type RawFill struct {
	EventID     string // source event identity, e.g. "<txhash>:<logidx>:<role>"
	Wallet      string
	TokenID     string
	Side        Side
	Role        Role
	TokenAmount float64 // token units, always positive
	USDCAmount  float64 // collateral units, always positive
	FeeAmount   float64
	TradeTime   time.Time
	TxHash      string
}

// Price returns the implied per-token price of the fill, or 0 when the
// token amount is zero.
func (f RawFill) Price() float64 {
	if f.TokenAmount == 0 {
		return 0
	}
	return f.USDCAmount / f.TokenAmount
}

// Fill is one canonical economic trade leg after deduplication, self-fill
// collapse, and synthetic-pair exclusion. Sign conventions: a buy has a
// positive TokenDelta and a negative CashDelta (cash out), a sell the
// opposite. There is exactly one Fill per (transaction, wallet, outcome,
// side).
type Fill struct {
	Wallet       string
	ConditionID  string
	OutcomeIndex int
	Side         Side
	TokenDelta   float64
	CashDelta    float64
	FeeAmount    float64
	TradeTime    time.Time
	TxHash       string
}
