// Package canon collapses raw, duplicate-prone CLOB fill rows into canonical
// economic fills: exactly one row per (transaction, wallet, outcome, side).
// It removes re-ingestion duplicates, resolves maker/taker self-fills, and
// strips synthetic adapter trade pairs.
package canon

import (
	"log/slog"
	"math"
	"sort"
	"strconv"

	"github.com/polyledger/pnlengine/internal/domain"
	"github.com/polyledger/pnlengine/internal/ident"
)

// Mapper resolves an outcome token to its condition and outcome index. The
// mapping table is the only legitimate source of outcome indices; numeric
// token ID ordering is not consistent in direction across markets.
type Mapper interface {
	Lookup(tokenID string) (domain.TokenMapping, bool)
}

// Options tunes the synthetic-pair classifier.
type Options struct {
	// AmountTolerance is the maximum relative difference between the two
	// legs' token amounts for a pair to be classified synthetic.
	AmountTolerance float64
	// PriceSumTolerance is the maximum distance of the two legs' price sum
	// from 1.0 for a pair to be classified synthetic.
	PriceSumTolerance float64
}

// DefaultOptions returns the production classifier thresholds.
func DefaultOptions() Options {
	return Options{
		AmountTolerance:   0.01,
		PriceSumTolerance: 0.02,
	}
}

// Result carries the canonical fills of one batch along with counters for
// every row the canonicalizer excluded.
type Result struct {
	Fills             []domain.Fill
	InvalidDropped    int64
	UnmappedDropped   int64
	DuplicatesDropped int64
	SelfFillsDropped  int64
	SyntheticDropped  int64
}

// Canonicalizer is a pure batch transformer; all lookups go through the
// injected Mapper and no I/O happens here.
type Canonicalizer struct {
	mapper Mapper
	opts   Options
	logger *slog.Logger
}

// New creates a Canonicalizer.
func New(mapper Mapper, opts Options, logger *slog.Logger) *Canonicalizer {
	return &Canonicalizer{
		mapper: mapper,
		opts:   opts,
		logger: logger.With(slog.String("component", "canonicalizer")),
	}
}

// normalized is a raw fill after identifier normalization and condition
// mapping, before economic collapsing.
type normalized struct {
	domain.RawFill
	conditionID  string
	outcomeIndex int
}

// Run canonicalizes one batch of raw fills. The output is deterministically
// ordered, so feeding identical input twice yields identical output.
func (c *Canonicalizer) Run(raw []domain.RawFill) Result {
	var res Result

	rows := c.normalize(raw, &res)
	rows = c.dropExactDuplicates(rows, &res)
	rows = c.dropSelfFillMakerLegs(rows, &res)
	fills := c.collapseEconomic(rows)
	fills = c.dropSyntheticPairs(fills, &res)

	sort.Slice(fills, func(i, j int) bool {
		a, b := fills[i], fills[j]
		if !a.TradeTime.Equal(b.TradeTime) {
			return a.TradeTime.Before(b.TradeTime)
		}
		if a.TxHash != b.TxHash {
			return a.TxHash < b.TxHash
		}
		if a.Wallet != b.Wallet {
			return a.Wallet < b.Wallet
		}
		if a.ConditionID != b.ConditionID {
			return a.ConditionID < b.ConditionID
		}
		if a.OutcomeIndex != b.OutcomeIndex {
			return a.OutcomeIndex < b.OutcomeIndex
		}
		return a.Side < b.Side
	})

	res.Fills = fills
	return res
}

// normalize canonicalizes identifiers and resolves the outcome index for
// every raw row. Rows with malformed identifiers or unmapped tokens are
// excluded and counted; they are gaps to report, not fatal errors.
func (c *Canonicalizer) normalize(raw []domain.RawFill, res *Result) []normalized {
	rows := make([]normalized, 0, len(raw))
	for _, rf := range raw {
		wallet, err := ident.Wallet(rf.Wallet)
		if err != nil {
			res.InvalidDropped++
			c.logger.Warn("dropping fill with invalid wallet",
				slog.String("wallet", rf.Wallet),
				slog.String("tx_hash", rf.TxHash),
			)
			continue
		}
		tokenID, err := ident.TokenID(rf.TokenID)
		if err != nil {
			res.InvalidDropped++
			c.logger.Warn("dropping fill with invalid token id",
				slog.String("token_id", rf.TokenID),
				slog.String("tx_hash", rf.TxHash),
			)
			continue
		}
		mapping, ok := c.mapper.Lookup(tokenID)
		if !ok {
			res.UnmappedDropped++
			c.logger.Warn("dropping fill on unmapped token",
				slog.String("token_id", tokenID),
				slog.String("tx_hash", rf.TxHash),
			)
			continue
		}

		rf.Wallet = wallet
		rf.TokenID = tokenID
		rows = append(rows, normalized{
			RawFill:      rf,
			conditionID:  mapping.ConditionID,
			outcomeIndex: mapping.OutcomeIndex,
		})
	}
	return rows
}

// dropExactDuplicates removes rows that are identical in every field,
// which occur when the same source partition is ingested twice.
func (c *Canonicalizer) dropExactDuplicates(rows []normalized, res *Result) []normalized {
	seen := make(map[string]bool, len(rows))
	out := rows[:0]
	for _, r := range rows {
		key := r.EventID + "|" + r.Wallet + "|" + r.TokenID + "|" + string(r.Side) + "|" +
			string(r.Role) + "|" + r.TxHash + "|" +
			strconv.FormatInt(r.TradeTime.UnixNano(), 10) + "|" +
			strconv.FormatFloat(r.TokenAmount, 'g', -1, 64) + "|" +
			strconv.FormatFloat(r.USDCAmount, 'g', -1, 64) + "|" +
			strconv.FormatFloat(r.FeeAmount, 'g', -1, 64)
		if seen[key] {
			res.DuplicatesDropped++
			c.logger.Debug("duplicate event ignored",
				slog.String("event_id", r.EventID),
				slog.String("tx_hash", r.TxHash),
			)
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}

// dropSelfFillMakerLegs handles wallets that filled their own order: when a
// wallet appears as both maker and taker of the same token in the same
// transaction, only the taker rows represent the wallet's net position
// change; keeping the maker counter-legs would double count.
func (c *Canonicalizer) dropSelfFillMakerLegs(rows []normalized, res *Result) []normalized {
	type groupKey struct {
		txHash  string
		wallet  string
		tokenID string
	}

	roles := make(map[groupKey]map[domain.Role]bool, len(rows))
	for _, r := range rows {
		k := groupKey{r.TxHash, r.Wallet, r.TokenID}
		if roles[k] == nil {
			roles[k] = make(map[domain.Role]bool, 2)
		}
		roles[k][r.Role] = true
	}

	out := rows[:0]
	for _, r := range rows {
		k := groupKey{r.TxHash, r.Wallet, r.TokenID}
		if r.Role == domain.RoleMaker && roles[k][domain.RoleTaker] {
			res.SelfFillsDropped++
			c.logger.Debug("self-fill maker leg dropped",
				slog.String("wallet", r.Wallet),
				slog.String("tx_hash", r.TxHash),
			)
			continue
		}
		out = append(out, r)
	}
	return out
}

// collapseEconomic merges the surviving rows into one economic fill per
// (transaction, wallet, outcome, side), applying the sign conventions:
// buys add tokens and spend cash, sells the reverse.
func (c *Canonicalizer) collapseEconomic(rows []normalized) []domain.Fill {
	type groupKey struct {
		txHash      string
		wallet      string
		conditionID string
		outcome     int
		side        domain.Side
	}

	groups := make(map[groupKey]*domain.Fill, len(rows))
	order := make([]groupKey, 0, len(rows))

	for _, r := range rows {
		k := groupKey{r.TxHash, r.Wallet, r.conditionID, r.outcomeIndex, r.Side}
		f, ok := groups[k]
		if !ok {
			f = &domain.Fill{
				Wallet:       r.Wallet,
				ConditionID:  r.conditionID,
				OutcomeIndex: r.outcomeIndex,
				Side:         r.Side,
				TradeTime:    r.TradeTime,
				TxHash:       r.TxHash,
			}
			groups[k] = f
			order = append(order, k)
		}

		switch r.Side {
		case domain.SideBuy:
			f.TokenDelta += r.TokenAmount
			f.CashDelta -= r.USDCAmount
		case domain.SideSell:
			f.TokenDelta -= r.TokenAmount
			f.CashDelta += r.USDCAmount
		}
		f.FeeAmount += r.FeeAmount
		if r.TradeTime.Before(f.TradeTime) {
			f.TradeTime = r.TradeTime
		}
	}

	fills := make([]domain.Fill, 0, len(order))
	for _, k := range order {
		fills = append(fills, *groups[k])
	}
	return fills
}

// dropSyntheticPairs strips adapter-internal conversions: within one
// transaction and condition, a wallet holding a buy leg on one outcome and a
// sell leg on a different outcome with matching sizes and prices summing to
// ~1.0 did not take two positions; the sell leg is internal bookkeeping. The
// buy leg (the real new position) is retained.
func (c *Canonicalizer) dropSyntheticPairs(fills []domain.Fill, res *Result) []domain.Fill {
	type groupKey struct {
		txHash      string
		wallet      string
		conditionID string
	}

	byGroup := make(map[groupKey][]int)
	for i, f := range fills {
		k := groupKey{f.TxHash, f.Wallet, f.ConditionID}
		byGroup[k] = append(byGroup[k], i)
	}

	drop := make(map[int]bool)
	for _, idxs := range byGroup {
		for _, bi := range idxs {
			buy := fills[bi]
			if buy.Side != domain.SideBuy {
				continue
			}
			for _, si := range idxs {
				sell := fills[si]
				if sell.Side != domain.SideSell || drop[si] {
					continue
				}
				if sell.OutcomeIndex == buy.OutcomeIndex {
					continue
				}
				if c.isSyntheticPair(buy, sell) {
					drop[si] = true
					res.SyntheticDropped++
					c.logger.Debug("synthetic pair sell leg dropped",
						slog.String("wallet", sell.Wallet),
						slog.String("tx_hash", sell.TxHash),
						slog.Int("buy_outcome", buy.OutcomeIndex),
						slog.Int("sell_outcome", sell.OutcomeIndex),
					)
					break
				}
			}
		}
	}

	if len(drop) == 0 {
		return fills
	}
	out := make([]domain.Fill, 0, len(fills)-len(drop))
	for i, f := range fills {
		if !drop[i] {
			out = append(out, f)
		}
	}
	return out
}

// isSyntheticPair applies the classifier: token amounts equal within the
// amount tolerance and per-token prices summing to 1.0 within the price
// tolerance.
func (c *Canonicalizer) isSyntheticPair(buy, sell domain.Fill) bool {
	buyTokens := buy.TokenDelta
	sellTokens := -sell.TokenDelta
	if buyTokens <= 0 || sellTokens <= 0 {
		return false
	}

	larger := math.Max(buyTokens, sellTokens)
	if math.Abs(buyTokens-sellTokens)/larger > c.opts.AmountTolerance {
		return false
	}

	buyPrice := -buy.CashDelta / buyTokens
	sellPrice := sell.CashDelta / sellTokens
	return math.Abs(buyPrice+sellPrice-1.0) <= c.opts.PriceSumTolerance
}

// MapperFunc adapts a function to the Mapper interface.
type MapperFunc func(tokenID string) (domain.TokenMapping, bool)

// Lookup implements Mapper.
func (f MapperFunc) Lookup(tokenID string) (domain.TokenMapping, bool) { return f(tokenID) }

// TableMapper is an in-memory Mapper backed by a slice of mappings, as
// loaded from the token map store at the start of a run.
func TableMapper(mappings []domain.TokenMapping) Mapper {
	m := make(map[string]domain.TokenMapping, len(mappings))
	for _, tm := range mappings {
		m[tm.TokenID] = tm
	}
	return MapperFunc(func(tokenID string) (domain.TokenMapping, bool) {
		tm, ok := m[tokenID]
		return tm, ok
	})
}
