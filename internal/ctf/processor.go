// Package ctf converts raw split/merge/redemption legs into corrected
// condition-level cash flows and per-outcome token deltas. The indexer
// records each event's cash amount once per outcome leg, so the raw sum
// overstates the economic cash flow by the number of legs; the processor
// halves the aggregated cash to recover the condition-level figure while
// keeping token deltas per outcome, undivided.
package ctf

import (
	"log/slog"
	"sort"
	"strconv"

	"github.com/polyledger/pnlengine/internal/domain"
	"github.com/polyledger/pnlengine/internal/ident"
)

// Result carries the corrected flows of one batch plus exclusion counters.
type Result struct {
	Flows             []domain.CTFFlow
	InvalidDropped    int64
	DuplicatesDropped int64
}

// Processor is a pure batch transformer.
type Processor struct {
	logger *slog.Logger
}

// NewProcessor creates a Processor.
func NewProcessor(logger *slog.Logger) *Processor {
	return &Processor{logger: logger.With(slog.String("component", "ctf_processor"))}
}

// Run aggregates raw legs into one CTFFlow per (wallet, condition). The cash
// correction divides the leg sum by 2: the indexer records the same
// condition-level cash on both outcome legs of the condition. CTF cash is a
// cash-flow fact independent of how the burned tokens were acquired; a
// redemption of CLOB-bought tokens still counts its payout exactly once.
func (p *Processor) Run(legs []domain.CTFLeg) Result {
	var res Result

	seen := make(map[string]bool, len(legs))
	flows := make(map[string]*domain.CTFFlow)
	var order []string

	for _, leg := range legs {
		wallet, err := ident.Wallet(leg.Wallet)
		if err != nil {
			res.InvalidDropped++
			p.logger.Warn("dropping ctf leg with invalid wallet",
				slog.String("wallet", leg.Wallet),
				slog.String("tx_hash", leg.TxHash),
			)
			continue
		}
		conditionID, err := ident.ConditionID(leg.ConditionID)
		if err != nil {
			res.InvalidDropped++
			p.logger.Warn("dropping ctf leg with invalid condition id",
				slog.String("condition_id", leg.ConditionID),
				slog.String("tx_hash", leg.TxHash),
			)
			continue
		}

		dedupKey := leg.EventID + "|" + strconv.Itoa(leg.OutcomeIndex)
		if seen[dedupKey] {
			res.DuplicatesDropped++
			p.logger.Debug("duplicate ctf leg ignored", slog.String("event_id", leg.EventID))
			continue
		}
		seen[dedupKey] = true

		flowKey := wallet + "|" + conditionID
		f, ok := flows[flowKey]
		if !ok {
			f = &domain.CTFFlow{
				Wallet:      wallet,
				ConditionID: conditionID,
				TokenDeltas: make(map[int]float64),
				FirstSeen:   leg.BlockTime,
				LastSeen:    leg.BlockTime,
			}
			flows[flowKey] = f
			order = append(order, flowKey)
		}

		f.NetCash += leg.CashDelta
		f.TokenDeltas[leg.OutcomeIndex] += leg.TokenDelta
		f.LegCount++
		if leg.BlockTime.Before(f.FirstSeen) {
			f.FirstSeen = leg.BlockTime
		}
		if leg.BlockTime.After(f.LastSeen) {
			f.LastSeen = leg.BlockTime
		}
	}

	sort.Strings(order)
	res.Flows = make([]domain.CTFFlow, 0, len(order))
	for _, k := range order {
		f := flows[k]
		f.NetCash /= 2
		res.Flows = append(res.Flows, *f)
	}
	return res
}
