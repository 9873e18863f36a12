// Package ledger builds the authoritative position ledger from canonical
// fills and corrected CTF flows, joins resolutions, and computes realized
// and unrealized pnl. Every function here is a pure transformation over its
// inputs: aggregation uses sums only, so it is associative, idempotent, and
// independent of event ordering.
package ledger

import (
	"sort"
	"time"

	"github.com/polyledger/pnlengine/internal/domain"
	"github.com/polyledger/pnlengine/internal/resolution"
)

// AggregatePositions folds canonical fills and CTF token deltas into one
// Position per (wallet, condition, outcome). Fill cash lands on the
// position; condition-level CTF cash deliberately does not — it stays on
// the CTFFlow and joins only at the condition rollup, so it cannot be
// double counted against resolution payouts. Output order is deterministic.
func AggregatePositions(fills []domain.Fill, flows []domain.CTFFlow) []domain.Position {
	byKey := make(map[domain.PositionKey]*domain.Position, len(fills))

	get := func(k domain.PositionKey) *domain.Position {
		p, ok := byKey[k]
		if !ok {
			p = &domain.Position{
				Wallet:       k.Wallet,
				ConditionID:  k.ConditionID,
				OutcomeIndex: k.OutcomeIndex,
				Status:       domain.PositionOpen,
			}
			byKey[k] = p
		}
		return p
	}

	touch := func(p *domain.Position, t time.Time) {
		if p.FirstSeen.IsZero() || t.Before(p.FirstSeen) {
			p.FirstSeen = t
		}
		if t.After(p.LastSeen) {
			p.LastSeen = t
		}
	}

	for _, f := range fills {
		p := get(domain.PositionKey{Wallet: f.Wallet, ConditionID: f.ConditionID, OutcomeIndex: f.OutcomeIndex})
		p.NetTokens += f.TokenDelta
		p.NetCash += f.CashDelta
		p.FeePaid += f.FeeAmount
		p.TradeCount++
		touch(p, f.TradeTime)
	}

	for _, flow := range flows {
		for outcome, delta := range flow.TokenDeltas {
			if delta == 0 {
				continue
			}
			p := get(domain.PositionKey{Wallet: flow.Wallet, ConditionID: flow.ConditionID, OutcomeIndex: outcome})
			p.NetTokens += delta
			touch(p, flow.FirstSeen)
			touch(p, flow.LastSeen)
		}
	}

	positions := make([]domain.Position, 0, len(byKey))
	for _, p := range byKey {
		positions = append(positions, *p)
	}
	sort.Slice(positions, func(i, j int) bool {
		a, b := positions[i], positions[j]
		if a.Wallet != b.Wallet {
			return a.Wallet < b.Wallet
		}
		if a.ConditionID != b.ConditionID {
			return a.ConditionID < b.ConditionID
		}
		return a.OutcomeIndex < b.OutcomeIndex
	})
	return positions
}

// AttachResolutions denormalizes resolution state onto positions. A
// position whose condition has resolved transitions to resolved_win when
// its outcome carries a payout and resolved_loss otherwise; it never
// transitions back. Positions on unresolved conditions stay open with no
// payout price.
func AttachResolutions(positions []domain.Position, table *resolution.Table) []domain.Position {
	out := make([]domain.Position, len(positions))
	for i, p := range positions {
		r, ok := table.Resolve(p.ConditionID)
		if !ok {
			p.Status = domain.PositionOpen
			p.PayoutPrice = nil
			out[i] = p
			continue
		}
		price := r.Payout.Price(p.OutcomeIndex)
		p.PayoutPrice = &price
		if price > 0 {
			p.Status = domain.PositionResolvedWin
		} else {
			p.Status = domain.PositionResolvedLoss
		}
		out[i] = p
	}
	return out
}
