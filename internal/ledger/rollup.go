package ledger

import (
	"time"

	"github.com/polyledger/pnlengine/internal/domain"
)

// RollupWallet reduces a wallet's per-condition pnl rows to the wallet
// summary. Recomputing over the same rows yields an identical summary.
//
// Win rate counts strictly profitable resolved conditions; a resolved
// condition with zero pnl is neither a win nor a loss but still enters the
// resolved count. Conditions with missing mark prices are counted in
// UnpricedConditions and contribute nothing to the unrealized total.
func RollupWallet(wallet string, rows []domain.ConditionPnL, computedAt time.Time) domain.WalletPnL {
	summary := domain.WalletPnL{
		Wallet:     wallet,
		ComputedAt: computedAt,
	}

	for _, row := range rows {
		if row.Resolved {
			summary.ResolvedConditions++
			if row.RealizedPnL == nil {
				continue
			}
			pnl := *row.RealizedPnL
			summary.RealizedPnL += pnl
			switch {
			case pnl > 0:
				summary.GrossGain += pnl
				summary.WinCount++
			case pnl < 0:
				summary.GrossLoss += pnl
				summary.LossCount++
			}
			continue
		}

		summary.PendingConditions++
		if row.UnrealizedPnL != nil {
			summary.UnrealizedPnL += *row.UnrealizedPnL
		} else if row.PriceQuality == domain.PriceQualityMissing {
			summary.UnpricedConditions++
		}
	}

	return summary
}
