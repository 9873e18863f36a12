package ledger

import (
	"log/slog"
	"sort"

	"github.com/polyledger/pnlengine/internal/domain"
	"github.com/polyledger/pnlengine/internal/resolution"
)

// MarkPriceFunc returns the live mark price for an outcome of an unresolved
// condition, or ok=false when no usable price is available. The pipeline
// prefetches prices before the compute stage so the calculator stays pure.
type MarkPriceFunc func(conditionID string, outcomeIndex int) (price float64, ok bool)

// NoMarkPrices is a MarkPriceFunc for runs without a live price feed; every
// open position is reported with missing price quality.
func NoMarkPrices(string, int) (float64, bool) { return 0, false }

// Calculator combines positions, CTF flows, and resolutions into
// per-(wallet, condition) pnl rows.
//
// Resolved conditions use the settlement formula
//
//	realized = net_cash_flow + net_tokens x payout_price
//
// summed across outcomes, with the condition-level CTF cash attributed
// exactly once. The formula is the economic-value view: unredeemed winning
// tokens are credited at payout price, which is what makes realized pnl sum
// to zero across all wallets of a resolved condition.
type Calculator struct {
	markPrice      MarkPriceFunc
	skipConditions map[string]bool
	logger         *slog.Logger
}

// NewCalculator creates a Calculator. skipConditions lists conditions with
// open integrity issues; their pnl is withheld until an operator clears the
// issue.
func NewCalculator(markPrice MarkPriceFunc, skipConditions map[string]bool, logger *slog.Logger) *Calculator {
	if markPrice == nil {
		markPrice = NoMarkPrices
	}
	return &Calculator{
		markPrice:      markPrice,
		skipConditions: skipConditions,
		logger:         logger.With(slog.String("component", "pnl_calculator")),
	}
}

// WalletConditionPnL computes one pnl row per condition for a single
// wallet's positions and CTF flows. Conditions with open integrity issues
// are skipped entirely.
func (c *Calculator) WalletConditionPnL(
	wallet string,
	positions []domain.Position,
	flows []domain.CTFFlow,
	table *resolution.Table,
) []domain.ConditionPnL {
	byCondition := make(map[string][]domain.Position)
	for _, p := range positions {
		byCondition[p.ConditionID] = append(byCondition[p.ConditionID], p)
	}

	ctfByCondition := make(map[string]domain.CTFFlow, len(flows))
	for _, f := range flows {
		ctfByCondition[f.ConditionID] = f
	}

	// Conditions with CTF cash but no surviving position rows still
	// produce a pnl row; their cash flow is real.
	conditionIDs := make([]string, 0, len(byCondition))
	for id := range byCondition {
		conditionIDs = append(conditionIDs, id)
	}
	for id := range ctfByCondition {
		if _, ok := byCondition[id]; !ok {
			conditionIDs = append(conditionIDs, id)
		}
	}
	sort.Strings(conditionIDs)

	rows := make([]domain.ConditionPnL, 0, len(conditionIDs))
	for _, conditionID := range conditionIDs {
		if c.skipConditions[conditionID] {
			c.logger.Warn("skipping condition with open integrity issue",
				slog.String("wallet", wallet),
				slog.String("condition_id", conditionID),
			)
			continue
		}
		rows = append(rows, c.conditionPnL(wallet, conditionID, byCondition[conditionID], ctfByCondition, table))
	}
	return rows
}

// netOutcomeTokens indexes a condition's positions by outcome. Positions
// already include CTF token deltas from aggregation, so nothing is added
// here.
func netOutcomeTokens(positions []domain.Position) map[int]float64 {
	net := make(map[int]float64, len(positions))
	for _, p := range positions {
		net[p.OutcomeIndex] += p.NetTokens
	}
	return net
}

func (c *Calculator) conditionPnL(
	wallet, conditionID string,
	positions []domain.Position,
	ctfByCondition map[string]domain.CTFFlow,
	table *resolution.Table,
) domain.ConditionPnL {
	row := domain.ConditionPnL{
		Wallet:      wallet,
		ConditionID: conditionID,
	}

	ctf, hasCTF := ctfByCondition[conditionID]
	if hasCTF {
		row.CTFCash = ctf.NetCash
	}
	for _, p := range positions {
		row.FillCash += p.NetCash
		row.FeePaid += p.FeePaid
		row.TradeCount += p.TradeCount
	}

	netTokens := netOutcomeTokens(positions)

	r, resolved := table.Resolve(conditionID)
	if resolved {
		row.Resolved = true
		row.PriceQuality = domain.PriceQualityResolved

		pnl := row.FillCash + row.CTFCash
		for outcome, tokens := range netTokens {
			pnl += tokens * r.Payout.Price(outcome)
		}
		row.RealizedPnL = &pnl

		winner := r.Payout.WinningOutcome()
		if wt := netTokens[winner]; wt > 0 {
			row.LongWinTokens = wt
		} else if wt < 0 {
			row.ShortLossTokens = -wt
		}
		return row
	}

	// Open condition: mark to market. A missing price on any outcome with
	// exposure makes the whole figure unusable; it is reported as null and
	// excluded from aggregates, never defaulted.
	pnl := row.FillCash + row.CTFCash
	outcomes := make([]int, 0, len(netTokens))
	for outcome := range netTokens {
		outcomes = append(outcomes, outcome)
	}
	sort.Ints(outcomes)

	for _, outcome := range outcomes {
		tokens := netTokens[outcome]
		if tokens == 0 {
			continue
		}
		price, ok := c.markPrice(conditionID, outcome)
		if !ok {
			row.PriceQuality = domain.PriceQualityMissing
			c.logger.Debug("no mark price for open position",
				slog.String("wallet", wallet),
				slog.String("condition_id", conditionID),
				slog.Int("outcome", outcome),
			)
			return row
		}
		pnl += tokens * price
	}

	row.PriceQuality = domain.PriceQualityMark
	row.UnrealizedPnL = &pnl
	return row
}
