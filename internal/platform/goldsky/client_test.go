package goldsky

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polyledger/pnlengine/internal/domain"
)

// stubSubgraph serves a fixed data payload for any query containing the
// given fragment.
func stubSubgraph(t *testing.T, responses map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req graphqlRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		for fragment, data := range responses {
			if strings.Contains(req.Query, fragment) {
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(`{"data":` + data + `}`))
				return
			}
		}
		w.Write([]byte(`{"errors":[{"message":"unexpected query"}]}`))
	}))
}

func TestFetchOrderFills_ExplodesMakerAndTakerRows(t *testing.T) {
	// Maker gives collateral (buys), taker gives tokens (sells). Amounts
	// are 6-decimal fixed-point integers.
	server := stubSubgraph(t, map[string]string{
		"orderFilledEvents": `{"orderFilledEvents":[{
			"id": "0xabc-12",
			"transactionHash": "0xabc",
			"timestamp": "1767225600",
			"maker": "0xaaaa567890abcdef1234567890abcdef12345678",
			"makerAssetId": "0",
			"makerAmountFilled": "60000000",
			"taker": "0xbbbb567890abcdef1234567890abcdef12345678",
			"takerAssetId": "111",
			"takerAmountFilled": "100000000",
			"fee": "150000"
		}]}`,
	})
	defer server.Close()

	client := NewClient(server.URL, "", 5*time.Second)
	fills, next, err := client.FetchOrderFills(context.Background(), domain.StreamCursor{Since: time.Unix(0, 0)}, 100)
	require.NoError(t, err)
	require.Len(t, fills, 2)

	// The returned cursor points at the last event served, not at its rows.
	assert.Equal(t, domain.StreamCursor{Since: time.Unix(1767225600, 0).UTC(), LastID: "0xabc-12"}, next)

	maker, taker := fills[0], fills[1]

	assert.Equal(t, "0xabc-12:maker", maker.EventID)
	assert.Equal(t, "0xaaaa567890abcdef1234567890abcdef12345678", maker.Wallet)
	assert.Equal(t, domain.SideBuy, maker.Side)
	assert.Equal(t, domain.RoleMaker, maker.Role)
	assert.Equal(t, "111", maker.TokenID)
	assert.InDelta(t, 100.0, maker.TokenAmount, 1e-9)
	assert.InDelta(t, 60.0, maker.USDCAmount, 1e-9)
	assert.Equal(t, time.Unix(1767225600, 0).UTC(), maker.TradeTime)
	assert.Equal(t, "0xabc", maker.TxHash)

	assert.Equal(t, "0xabc-12:taker", taker.EventID)
	assert.Equal(t, domain.SideSell, taker.Side)
	assert.Equal(t, domain.RoleTaker, taker.Role)
	assert.Equal(t, "111", taker.TokenID)
	assert.InDelta(t, 0.15, taker.FeeAmount, 1e-9)
}

func TestFetchOrderFills_MakerSellingTokens(t *testing.T) {
	server := stubSubgraph(t, map[string]string{
		"orderFilledEvents": `{"orderFilledEvents":[{
			"id": "0xdef-3",
			"transactionHash": "0xdef",
			"timestamp": "1767225600",
			"maker": "0xaaaa567890abcdef1234567890abcdef12345678",
			"makerAssetId": "222",
			"makerAmountFilled": "50000000",
			"taker": "0xbbbb567890abcdef1234567890abcdef12345678",
			"takerAssetId": "0",
			"takerAmountFilled": "20000000",
			"fee": "0"
		}]}`,
	})
	defer server.Close()

	client := NewClient(server.URL, "", 5*time.Second)
	fills, _, err := client.FetchOrderFills(context.Background(), domain.StreamCursor{Since: time.Unix(0, 0)}, 100)
	require.NoError(t, err)
	require.Len(t, fills, 2)

	assert.Equal(t, domain.SideSell, fills[0].Side)
	assert.Equal(t, domain.SideBuy, fills[1].Side)
	assert.Equal(t, "222", fills[0].TokenID)
	assert.InDelta(t, 50.0, fills[0].TokenAmount, 1e-9)
	assert.InDelta(t, 20.0, fills[0].USDCAmount, 1e-9)
}

func TestFetchSplits_YieldsOneLegPerOutcome(t *testing.T) {
	server := stubSubgraph(t, map[string]string{
		"splits(": `{
			"events":[{
				"id": "0xs1-0",
				"timestamp": "1767225600",
				"stakeholder": "0xaaaa567890abcdef1234567890abcdef12345678",
				"condition": "0x1a2b",
				"amount": "100000000"
			}]
		}`,
	})
	defer server.Close()

	client := NewClient(server.URL, "", 5*time.Second)
	legs, next, err := client.FetchSplits(context.Background(), domain.StreamCursor{Since: time.Unix(0, 0)}, 100)
	require.NoError(t, err)
	require.Len(t, legs, 2)

	for i, leg := range legs {
		assert.Equal(t, "0xs1-0", leg.EventID)
		assert.Equal(t, domain.FlowSplit, leg.Type)
		assert.Equal(t, i, leg.OutcomeIndex)
		assert.InDelta(t, 100.0, leg.TokenDelta, 1e-9)
		assert.InDelta(t, -100.0, leg.CashDelta, 1e-9, "cash duplicated on every leg")
		assert.Equal(t, "0xs1", leg.TxHash)
	}
	assert.Equal(t, domain.StreamCursor{Since: time.Unix(1767225600, 0).UTC(), LastID: "0xs1-0"}, next)
}

func TestFetchMerges_InvertsTheDeltas(t *testing.T) {
	server := stubSubgraph(t, map[string]string{
		"merges(": `{
			"events":[{
				"id": "0xm1-0",
				"timestamp": "1767225600",
				"stakeholder": "0xaaaa567890abcdef1234567890abcdef12345678",
				"condition": "0x1a2b",
				"amount": "25000000"
			}]
		}`,
	})
	defer server.Close()

	client := NewClient(server.URL, "", 5*time.Second)
	legs, _, err := client.FetchMerges(context.Background(), domain.StreamCursor{Since: time.Unix(0, 0)}, 100)
	require.NoError(t, err)
	require.Len(t, legs, 2)

	for _, leg := range legs {
		assert.Equal(t, domain.FlowMerge, leg.Type)
		assert.InDelta(t, -25.0, leg.TokenDelta, 1e-9)
		assert.InDelta(t, 25.0, leg.CashDelta, 1e-9)
	}
}

func TestFetchRedemptions_BurnsOnlyRedeemedSets(t *testing.T) {
	server := stubSubgraph(t, map[string]string{
		"redemptions(": `{
			"events":[{
				"id": "0xr1-0",
				"timestamp": "1767225600",
				"redeemer": "0xaaaa567890abcdef1234567890abcdef12345678",
				"condition": "0x1a2b",
				"indexSets": ["2"],
				"payout": "40000000"
			}]
		}`,
	})
	defer server.Close()

	client := NewClient(server.URL, "", 5*time.Second)
	legs, _, err := client.FetchRedemptions(context.Background(), domain.StreamCursor{Since: time.Unix(0, 0)}, 100)
	require.NoError(t, err)
	require.Len(t, legs, 2)

	assert.InDelta(t, 0.0, legs[0].TokenDelta, 1e-9, "outcome 0 was not redeemed")
	assert.InDelta(t, -40.0, legs[1].TokenDelta, 1e-9, "outcome 1 burns the redeemed tokens")
	for _, leg := range legs {
		assert.Equal(t, domain.FlowRedeem, leg.Type)
		assert.InDelta(t, 40.0, leg.CashDelta, 1e-9)
	}
}

func TestFetchSplits_SendsCursorTiebreak(t *testing.T) {
	// The cursor's last-seen ID must reach the subgraph so a page boundary
	// inside one timestamp resumes after the consumed events.
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req graphqlRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		captured = req.Variables
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"events":[]}}`))
	}))
	defer server.Close()

	cursor := domain.StreamCursor{Since: time.Unix(1767225600, 0).UTC(), LastID: "0xs2-0"}
	client := NewClient(server.URL, "", 5*time.Second)
	legs, next, err := client.FetchSplits(context.Background(), cursor, 50)
	require.NoError(t, err)
	assert.Empty(t, legs)
	assert.Equal(t, cursor, next, "an empty page leaves the cursor in place")

	assert.Equal(t, "1767225600", captured["ts"])
	assert.Equal(t, "0xs2-0", captured["lastId"])
	assert.EqualValues(t, 50, captured["first"])
}

func TestFetchResolutions_ParsesPayoutVector(t *testing.T) {
	server := stubSubgraph(t, map[string]string{
		"conditions": `{"conditions":[{
			"id": "0x1a2b",
			"payoutNumerators": ["1", "0"],
			"payoutDenominator": "1",
			"resolutionTimestamp": "1767225600"
		}]}`,
	})
	defer server.Close()

	client := NewClient(server.URL, "", 5*time.Second)
	resolutions, err := client.FetchResolutions(context.Background(), time.Unix(0, 0), 100)
	require.NoError(t, err)
	require.Len(t, resolutions, 1)

	assert.Equal(t, "0x1a2b", resolutions[0].ConditionID)
	assert.Equal(t, []uint64{1, 0}, resolutions[0].PayoutNumerators)
	assert.EqualValues(t, 1, resolutions[0].PayoutDenominator)
	assert.Equal(t, time.Unix(1767225600, 0).UTC(), resolutions[0].ResolvedAt)
}

func TestFetchTokenRegistrations_TwoMappingsPerEvent(t *testing.T) {
	server := stubSubgraph(t, map[string]string{
		"tokenRegisteredEvents": `{"tokenRegisteredEvents":[{
			"token0": "111",
			"token1": "222",
			"condition": "0x1a2b"
		}]}`,
	})
	defer server.Close()

	client := NewClient(server.URL, "", 5*time.Second)
	mappings, err := client.FetchTokenRegistrations(context.Background(), 0, 100)
	require.NoError(t, err)
	require.Len(t, mappings, 2)

	assert.Equal(t, "111", mappings[0].TokenID)
	assert.Equal(t, 0, mappings[0].OutcomeIndex)
	assert.Equal(t, "222", mappings[1].TokenID)
	assert.Equal(t, 1, mappings[1].OutcomeIndex)
	assert.Equal(t, "0x1a2b", mappings[0].ConditionID)
}

func TestDoQuery_SurfacesGraphQLErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"errors":[{"message":"rate limited"}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "key", 5*time.Second)
	_, err := client.FetchLatestBlock(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}
