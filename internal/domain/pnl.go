package domain

import "time"

// WalletClass categorizes a wallet by its activity profile. Classification
// heuristics are pluggable and expected to evolve; the class is reporting
// metadata and never feeds back into pnl arithmetic.
type WalletClass string

const (
	WalletClassTrader      WalletClass = "trader"
	WalletClassMarketMaker WalletClass = "market_maker"
	WalletClassInfra       WalletClass = "infra"
)

// PriceQuality describes the provenance of the price used for an
// unrealized pnl figure.
type PriceQuality string

const (
	PriceQualityResolved PriceQuality = "resolved" // payout price, authoritative
	PriceQualityMark     PriceQuality = "mark"     // live mark price
	PriceQualityMissing  PriceQuality = "missing"  // no usable price; pnl is null
)

// ConditionPnL is the per-(wallet, condition) profit-and-loss row produced
// by the calculator. Exactly one of RealizedPnL / UnrealizedPnL is set,
// depending on whether the condition has resolved; a nil value means the
// figure is not computable and must be excluded from sums, not defaulted.
type ConditionPnL struct {
	Wallet        string
	ConditionID   string
	Resolved      bool
	RealizedPnL   *float64
	UnrealizedPnL *float64
	PriceQuality  PriceQuality

	// Decomposition for reporting.
	LongWinTokens   float64 // net long tokens held in the winning outcome
	ShortLossTokens float64 // net short tokens owed in the winning outcome

	FillCash   float64
	CTFCash    float64
	FeePaid    float64
	TradeCount int
}

// WalletPnL is the wallet-level rollup across resolved conditions, with
// unresolved exposure reported separately as pending. Derived state only:
// recomputed idempotently from positions and resolutions, never mutated
// independently.
type WalletPnL struct {
	Wallet              string
	Class               WalletClass
	RealizedPnL         float64
	GrossGain           float64
	GrossLoss           float64 // <= 0
	UnrealizedPnL       float64
	ResolvedConditions  int
	WinCount            int
	LossCount           int
	PendingConditions   int
	UnpricedConditions  int
	ComputedAt          time.Time
}

// WinRate returns winning / resolved conditions, or 0 with ok=false when no
// conditions have resolved.
func (w WalletPnL) WinRate() (float64, bool) {
	if w.ResolvedConditions == 0 {
		return 0, false
	}
	return float64(w.WinCount) / float64(w.ResolvedConditions), true
}

// ProfitFactor returns gross gain divided by the magnitude of gross loss.
// Undefined when there are no losses.
func (w WalletPnL) ProfitFactor() (float64, bool) {
	if w.GrossLoss == 0 {
		return 0, false
	}
	return w.GrossGain / -w.GrossLoss, true
}
