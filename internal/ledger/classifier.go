package ledger

import (
	"math"

	"github.com/polyledger/pnlengine/internal/domain"
)

// ActivityStats summarizes a wallet's observed activity for classification.
type ActivityStats struct {
	FillCount     int
	CTFLegCount   int
	CLOBVolume    float64 // gross fill cash volume
	CTFCashVolume float64 // gross CTF cash volume
}

// Classifier assigns a wallet class from its activity profile. Heuristics
// are injected rather than hardcoded because the thresholds are expected to
// evolve independently of the pnl arithmetic.
type Classifier interface {
	Classify(wallet string, stats ActivityStats) domain.WalletClass
}

// ClassifierFunc adapts a function to the Classifier interface.
type ClassifierFunc func(wallet string, stats ActivityStats) domain.WalletClass

// Classify implements Classifier.
func (f ClassifierFunc) Classify(wallet string, stats ActivityStats) domain.WalletClass {
	return f(wallet, stats)
}

// RatioClassifier classifies wallets by their CTF-to-CLOB cash volume
// ratio: wallets sourcing most liquidity from splits and merges rather
// than order-book trading behave like market makers or infrastructure.
type RatioClassifier struct {
	// MarketMakerRatio is the CTF:CLOB volume ratio above which a wallet
	// is classified as a market maker.
	MarketMakerRatio float64
	// InfraFillCount is the fill count above which a high-ratio wallet is
	// classified as infrastructure rather than a market maker.
	InfraFillCount int
}

// DefaultRatioClassifier returns the production thresholds.
func DefaultRatioClassifier() RatioClassifier {
	return RatioClassifier{
		MarketMakerRatio: 2.0,
		InfraFillCount:   100_000,
	}
}

// Classify implements Classifier.
func (c RatioClassifier) Classify(_ string, stats ActivityStats) domain.WalletClass {
	if stats.CLOBVolume == 0 {
		if stats.CTFCashVolume > 0 {
			return domain.WalletClassMarketMaker
		}
		return domain.WalletClassTrader
	}

	ratio := math.Abs(stats.CTFCashVolume) / math.Abs(stats.CLOBVolume)
	if ratio < c.MarketMakerRatio {
		return domain.WalletClassTrader
	}
	if stats.FillCount >= c.InfraFillCount {
		return domain.WalletClassInfra
	}
	return domain.WalletClassMarketMaker
}

// CollectStats derives ActivityStats from a wallet's canonical fills and
// CTF flows.
func CollectStats(fills []domain.Fill, flows []domain.CTFFlow) ActivityStats {
	var stats ActivityStats
	for _, f := range fills {
		stats.FillCount++
		stats.CLOBVolume += math.Abs(f.CashDelta)
	}
	for _, flow := range flows {
		stats.CTFLegCount += flow.LegCount
		stats.CTFCashVolume += math.Abs(flow.NetCash)
	}
	return stats
}
