package canon

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polyledger/pnlengine/internal/domain"
)

const (
	condA   = "1a2b3c4d5e6f7a8b9c0d1e2f3a4b5c6d7e8f9a0b1c2d3e4f5a6b7c8d9e0f1a2b"
	walletA = "0x1111111111111111111111111111111111111111"
	walletB = "0x2222222222222222222222222222222222222222"
)

var tradeTime = time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)

func testMapper() Mapper {
	return TableMapper([]domain.TokenMapping{
		{TokenID: "111", ConditionID: condA, OutcomeIndex: 0},
		{TokenID: "222", ConditionID: condA, OutcomeIndex: 1},
	})
}

func newTestCanonicalizer() *Canonicalizer {
	return New(testMapper(), DefaultOptions(), slog.New(slog.DiscardHandler))
}

func rawFill(eventID, wallet, tokenID string, side domain.Side, role domain.Role, tokens, usdc float64) domain.RawFill {
	return domain.RawFill{
		EventID:     eventID,
		Wallet:      wallet,
		TokenID:     tokenID,
		Side:        side,
		Role:        role,
		TokenAmount: tokens,
		USDCAmount:  usdc,
		TradeTime:   tradeTime,
		TxHash:      "0xt1",
	}
}

func TestRun_SignConventions(t *testing.T) {
	res := newTestCanonicalizer().Run([]domain.RawFill{
		rawFill("e1", walletA, "111", domain.SideBuy, domain.RoleTaker, 100, 40),
		rawFill("e2", walletB, "111", domain.SideSell, domain.RoleMaker, 100, 40),
	})
	require.Len(t, res.Fills, 2)

	var buy, sell domain.Fill
	for _, f := range res.Fills {
		if f.Side == domain.SideBuy {
			buy = f
		} else {
			sell = f
		}
	}
	assert.InDelta(t, 100.0, buy.TokenDelta, 1e-9)
	assert.InDelta(t, -40.0, buy.CashDelta, 1e-9)
	assert.InDelta(t, -100.0, sell.TokenDelta, 1e-9)
	assert.InDelta(t, 40.0, sell.CashDelta, 1e-9)
	assert.Equal(t, condA, buy.ConditionID)
	assert.Equal(t, 0, buy.OutcomeIndex)
}

func TestRun_ExactDuplicatesDropped(t *testing.T) {
	row := rawFill("e1", walletA, "111", domain.SideBuy, domain.RoleTaker, 100, 40)
	res := newTestCanonicalizer().Run([]domain.RawFill{row, row, row})

	require.Len(t, res.Fills, 1)
	assert.Equal(t, int64(2), res.DuplicatesDropped)
	assert.InDelta(t, 100.0, res.Fills[0].TokenDelta, 1e-9)
}

func TestRun_Idempotent(t *testing.T) {
	input := []domain.RawFill{
		rawFill("e1", walletA, "111", domain.SideBuy, domain.RoleTaker, 100, 40),
		rawFill("e2", walletB, "222", domain.SideSell, domain.RoleMaker, 30, 12),
	}
	c := newTestCanonicalizer()
	assert.Equal(t, c.Run(input), c.Run(input))
}

func TestRun_InvalidIdentifiersCounted(t *testing.T) {
	res := newTestCanonicalizer().Run([]domain.RawFill{
		rawFill("e1", "not-a-wallet", "111", domain.SideBuy, domain.RoleTaker, 10, 4),
		rawFill("e2", walletA, "zzz", domain.SideBuy, domain.RoleTaker, 10, 4),
	})
	assert.Empty(t, res.Fills)
	assert.Equal(t, int64(2), res.InvalidDropped)
}

func TestRun_UnmappedTokenCounted(t *testing.T) {
	res := newTestCanonicalizer().Run([]domain.RawFill{
		rawFill("e1", walletA, "999", domain.SideBuy, domain.RoleTaker, 10, 4),
	})
	assert.Empty(t, res.Fills)
	assert.Equal(t, int64(1), res.UnmappedDropped)
}

func TestRun_TokenIDFormsCollapseToSameOutcome(t *testing.T) {
	// 0x6f == 111: hex and decimal forms of a token must map identically.
	mapper := TableMapper([]domain.TokenMapping{
		{TokenID: "111", ConditionID: condA, OutcomeIndex: 0},
	})
	c := New(mapper, DefaultOptions(), slog.New(slog.DiscardHandler))

	res := c.Run([]domain.RawFill{
		rawFill("e1", walletA, "0x6f", domain.SideBuy, domain.RoleTaker, 10, 4),
	})
	require.Len(t, res.Fills, 1)
	assert.Equal(t, 0, res.Fills[0].OutcomeIndex)
}

func TestRun_SelfFillIsNeutral(t *testing.T) {
	// A wallet matching its own orders produces four rows: a maker and a
	// taker leg for each of the two orders. Only the taker legs survive,
	// and they cancel each other out economically.
	res := newTestCanonicalizer().Run([]domain.RawFill{
		rawFill("e1:maker", walletA, "111", domain.SideBuy, domain.RoleMaker, 50, 20),
		rawFill("e1:taker", walletA, "111", domain.SideSell, domain.RoleTaker, 50, 20),
		rawFill("e2:maker", walletA, "111", domain.SideSell, domain.RoleMaker, 50, 20),
		rawFill("e2:taker", walletA, "111", domain.SideBuy, domain.RoleTaker, 50, 20),
	})

	assert.Equal(t, int64(2), res.SelfFillsDropped)
	require.Len(t, res.Fills, 2)

	var tokens, cash float64
	for _, f := range res.Fills {
		tokens += f.TokenDelta
		cash += f.CashDelta
	}
	assert.InDelta(t, 0.0, tokens, 1e-9)
	assert.InDelta(t, 0.0, cash, 1e-9)
}

func TestRun_MakerLegKeptWithoutTakerCounterpart(t *testing.T) {
	res := newTestCanonicalizer().Run([]domain.RawFill{
		rawFill("e1", walletA, "111", domain.SideBuy, domain.RoleMaker, 50, 20),
	})
	require.Len(t, res.Fills, 1)
	assert.Zero(t, res.SelfFillsDropped)
}

func TestRun_SyntheticPairSellLegDropped(t *testing.T) {
	// Buying outcome 0 at 0.60 and selling outcome 1 at 0.40 in the same
	// transaction is one position expressed twice; the sell leg goes.
	res := newTestCanonicalizer().Run([]domain.RawFill{
		rawFill("e1", walletA, "111", domain.SideBuy, domain.RoleTaker, 100, 60),
		rawFill("e2", walletA, "222", domain.SideSell, domain.RoleTaker, 100, 40),
	})

	assert.Equal(t, int64(1), res.SyntheticDropped)
	require.Len(t, res.Fills, 1)
	assert.Equal(t, domain.SideBuy, res.Fills[0].Side)
	assert.Equal(t, 0, res.Fills[0].OutcomeIndex)
}

func TestRun_GenuineCrossOutcomeTradesKept(t *testing.T) {
	// Prices summing well away from 1.0 are two real trades, not a
	// synthetic conversion.
	res := newTestCanonicalizer().Run([]domain.RawFill{
		rawFill("e1", walletA, "111", domain.SideBuy, domain.RoleTaker, 100, 30),
		rawFill("e2", walletA, "222", domain.SideSell, domain.RoleTaker, 100, 30),
	})

	assert.Zero(t, res.SyntheticDropped)
	assert.Len(t, res.Fills, 2)
}

func TestRun_SyntheticPairAmountMismatchKept(t *testing.T) {
	res := newTestCanonicalizer().Run([]domain.RawFill{
		rawFill("e1", walletA, "111", domain.SideBuy, domain.RoleTaker, 100, 60),
		rawFill("e2", walletA, "222", domain.SideSell, domain.RoleTaker, 80, 32),
	})

	assert.Zero(t, res.SyntheticDropped)
	assert.Len(t, res.Fills, 2)
}

func TestRun_WalletCaseNormalized(t *testing.T) {
	res := newTestCanonicalizer().Run([]domain.RawFill{
		rawFill("e1", "0x1111111111111111111111111111111111111111", "111", domain.SideBuy, domain.RoleTaker, 10, 4),
		rawFill("e2", "0X1111111111111111111111111111111111111111", "111", domain.SideBuy, domain.RoleTaker, 10, 4),
	})

	// Same wallet, same tx, same side: collapsed to one economic fill.
	require.Len(t, res.Fills, 1)
	assert.Equal(t, walletA, res.Fills[0].Wallet)
	assert.InDelta(t, 20.0, res.Fills[0].TokenDelta, 1e-9)
}
