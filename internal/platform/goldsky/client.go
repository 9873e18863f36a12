// Package goldsky is a GraphQL client for the Goldsky subgraph indexer. It
// ingests the four source streams of the engine: order-filled events from
// the CTF Exchange, split/merge/redemption events from the Conditional
// Tokens contract, condition resolutions, and token registrations.
package goldsky

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/polyledger/pnlengine/internal/domain"
	"github.com/polyledger/pnlengine/internal/resolution"
)

// onChainDecimals is the fixed-point scale of USDC and outcome token
// amounts on Polygon.
const onChainDecimals = 6

// collateralAssetID is the asset ID the exchange uses for the USDC side of
// a fill.
const collateralAssetID = "0"

// Client queries the Goldsky subgraph endpoint.
type Client struct {
	graphqlURL string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new Goldsky GraphQL client.
func NewClient(graphqlURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		graphqlURL: graphqlURL,
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// graphqlRequest is the standard GraphQL request envelope.
type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// graphqlResponse is the standard GraphQL response envelope.
type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// scaleAmount converts a raw fixed-point integer amount string to USD (or
// token) units. Decimal arithmetic keeps the conversion exact; float drift
// only enters once, at the final division.
func scaleAmount(raw string) (float64, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", raw, err)
	}
	return d.Shift(-onChainDecimals).InexactFloat64(), nil
}

// cursorFilter is the where-clause every paginated stream query shares:
// everything after the cursor timestamp, plus everything at the cursor
// timestamp with an ID past the last one consumed. With an empty LastID the
// second branch matches every event at the timestamp, so a fresh cursor
// behaves as a plain timestamp_gte. graph-node orders equal-timestamp rows
// by ID, which makes the (timestamp, id) pair a total order over the stream.
const cursorFilter = `{ or: [{ timestamp_gt: $ts }, { timestamp: $ts, id_gt: $lastId }] }`

func cursorVariables(cursor domain.StreamCursor, first int) map[string]any {
	return map[string]any{
		"ts":     strconv.FormatInt(cursor.Since.Unix(), 10),
		"lastId": cursor.LastID,
		"first":  first,
	}
}

// FetchOrderFills queries order-filled events past the given cursor,
// exploding each matched order into its maker and taker rows. The maker row
// carries the order owner on the order's side; the taker row carries the
// counterparty on the opposite side. A wallet matching its own order
// therefore appears on both sides of both events. The returned cursor
// points at the last event of the page.
func (c *Client) FetchOrderFills(ctx context.Context, cursor domain.StreamCursor, first int) ([]domain.RawFill, domain.StreamCursor, error) {
	query := `
		query OrderFills($ts: BigInt!, $lastId: ID!, $first: Int!) {
			orderFilledEvents(
				first: $first
				orderBy: timestamp
				orderDirection: asc
				where: ` + cursorFilter + `
			) {
				id
				transactionHash
				timestamp
				maker
				makerAssetId
				makerAmountFilled
				taker
				takerAssetId
				takerAmountFilled
				fee
			}
		}
	`

	respData, err := c.doQuery(ctx, query, cursorVariables(cursor, first))
	if err != nil {
		return nil, cursor, fmt.Errorf("goldsky: fetch order fills: %w", err)
	}

	var result struct {
		OrderFilledEvents []struct {
			ID                string `json:"id"`
			TransactionHash   string `json:"transactionHash"`
			Timestamp         string `json:"timestamp"`
			Maker             string `json:"maker"`
			MakerAssetID      string `json:"makerAssetId"`
			MakerAmountFilled string `json:"makerAmountFilled"`
			Taker             string `json:"taker"`
			TakerAssetID      string `json:"takerAssetId"`
			TakerAmountFilled string `json:"takerAmountFilled"`
			Fee               string `json:"fee"`
		} `json:"orderFilledEvents"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return nil, cursor, fmt.Errorf("goldsky: decode order fills: %w", err)
	}

	next := cursor
	fills := make([]domain.RawFill, 0, 2*len(result.OrderFilledEvents))
	for _, e := range result.OrderFilledEvents {
		ts, err := strconv.ParseInt(e.Timestamp, 10, 64)
		if err != nil {
			return nil, cursor, fmt.Errorf("goldsky: parse fill timestamp %q: %w", e.Timestamp, err)
		}
		tradeTime := time.Unix(ts, 0).UTC()
		next = domain.StreamCursor{Since: tradeTime, LastID: e.ID}

		makerAmt, err := scaleAmount(e.MakerAmountFilled)
		if err != nil {
			return nil, cursor, fmt.Errorf("goldsky: fill %s: %w", e.ID, err)
		}
		takerAmt, err := scaleAmount(e.TakerAmountFilled)
		if err != nil {
			return nil, cursor, fmt.Errorf("goldsky: fill %s: %w", e.ID, err)
		}
		fee, err := scaleAmount(e.Fee)
		if err != nil {
			return nil, cursor, fmt.Errorf("goldsky: fill %s: %w", e.ID, err)
		}

		// The maker gives makerAssetId and receives takerAssetId. A maker
		// giving collateral is buying outcome tokens.
		var (
			makerSide   domain.Side
			tokenID     string
			tokenAmount float64
			usdcAmount  float64
		)
		if e.MakerAssetID == collateralAssetID {
			makerSide = domain.SideBuy
			tokenID = e.TakerAssetID
			usdcAmount = makerAmt
			tokenAmount = takerAmt
		} else {
			makerSide = domain.SideSell
			tokenID = e.MakerAssetID
			tokenAmount = makerAmt
			usdcAmount = takerAmt
		}
		takerSide := domain.SideSell
		if makerSide == domain.SideSell {
			takerSide = domain.SideBuy
		}

		fills = append(fills,
			domain.RawFill{
				EventID:     e.ID + ":maker",
				Wallet:      e.Maker,
				TokenID:     tokenID,
				Side:        makerSide,
				Role:        domain.RoleMaker,
				TokenAmount: tokenAmount,
				USDCAmount:  usdcAmount,
				TradeTime:   tradeTime,
				TxHash:      e.TransactionHash,
			},
			domain.RawFill{
				EventID:     e.ID + ":taker",
				Wallet:      e.Taker,
				TokenID:     tokenID,
				Side:        takerSide,
				Role:        domain.RoleTaker,
				TokenAmount: tokenAmount,
				USDCAmount:  usdcAmount,
				FeeAmount:   fee,
				TradeTime:   tradeTime,
				TxHash:      e.TransactionHash,
			},
		)
	}

	return fills, next, nil
}

// FetchSplits queries position-split events past the given cursor. Each
// event decodes into one leg per outcome, with the event's condition-level
// cash amount recorded on every leg. That duplication matches how the
// indexer reports these events; the flow processor halves the aggregated
// cash downstream.
func (c *Client) FetchSplits(ctx context.Context, cursor domain.StreamCursor, first int) ([]domain.CTFLeg, domain.StreamCursor, error) {
	return c.fetchSplitsOrMerges(ctx, "splits", domain.FlowSplit, cursor, first)
}

// FetchMerges queries positions-merged events past the given cursor. The
// decoded legs mirror splits with the deltas inverted: tokens are burned
// and collateral comes back.
func (c *Client) FetchMerges(ctx context.Context, cursor domain.StreamCursor, first int) ([]domain.CTFLeg, domain.StreamCursor, error) {
	return c.fetchSplitsOrMerges(ctx, "merges", domain.FlowMerge, cursor, first)
}

// splitOrMerge is the shared subgraph shape of split and merge events.
type splitOrMerge struct {
	ID          string `json:"id"`
	Timestamp   string `json:"timestamp"`
	Stakeholder string `json:"stakeholder"`
	Condition   string `json:"condition"`
	Amount      string `json:"amount"`
}

func (c *Client) fetchSplitsOrMerges(ctx context.Context, entity string, flowType domain.FlowType, cursor domain.StreamCursor, first int) ([]domain.CTFLeg, domain.StreamCursor, error) {
	query := fmt.Sprintf(`
		query CTFFlow($ts: BigInt!, $lastId: ID!, $first: Int!) {
			events: %s(
				first: $first
				orderBy: timestamp
				orderDirection: asc
				where: %s
			) {
				id
				timestamp
				stakeholder
				condition
				amount
			}
		}
	`, entity, cursorFilter)

	respData, err := c.doQuery(ctx, query, cursorVariables(cursor, first))
	if err != nil {
		return nil, cursor, fmt.Errorf("goldsky: fetch %s: %w", entity, err)
	}

	var result struct {
		Events []splitOrMerge `json:"events"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return nil, cursor, fmt.Errorf("goldsky: decode %s: %w", entity, err)
	}

	next := cursor
	legs := make([]domain.CTFLeg, 0, 2*len(result.Events))
	for _, e := range result.Events {
		ts, err := strconv.ParseInt(e.Timestamp, 10, 64)
		if err != nil {
			return nil, cursor, fmt.Errorf("goldsky: parse %s timestamp %q: %w", entity, e.Timestamp, err)
		}
		amount, err := scaleAmount(e.Amount)
		if err != nil {
			return nil, cursor, fmt.Errorf("goldsky: %s event %s: %w", entity, e.ID, err)
		}
		blockTime := time.Unix(ts, 0).UTC()
		next = domain.StreamCursor{Since: blockTime, LastID: e.ID}

		tokenDelta, cashDelta := amount, -amount
		if flowType == domain.FlowMerge {
			tokenDelta, cashDelta = -amount, amount
		}
		for outcome := 0; outcome < 2; outcome++ {
			legs = append(legs, domain.CTFLeg{
				EventID:      e.ID,
				Wallet:       e.Stakeholder,
				ConditionID:  e.Condition,
				Type:         flowType,
				OutcomeIndex: outcome,
				TokenDelta:   tokenDelta,
				CashDelta:    cashDelta,
				BlockTime:    blockTime,
				TxHash:       txHashFromEventID(e.ID),
			})
		}
	}

	return legs, next, nil
}

// FetchRedemptions queries payout-redemption events past the given cursor.
func (c *Client) FetchRedemptions(ctx context.Context, cursor domain.StreamCursor, first int) ([]domain.CTFLeg, domain.StreamCursor, error) {
	query := `
		query Redemptions($ts: BigInt!, $lastId: ID!, $first: Int!) {
			events: redemptions(
				first: $first
				orderBy: timestamp
				orderDirection: asc
				where: ` + cursorFilter + `
			) {
				id
				timestamp
				redeemer
				condition
				indexSets
				payout
			}
		}
	`

	respData, err := c.doQuery(ctx, query, cursorVariables(cursor, first))
	if err != nil {
		return nil, cursor, fmt.Errorf("goldsky: fetch redemptions: %w", err)
	}

	var result struct {
		Events []struct {
			ID        string   `json:"id"`
			Timestamp string   `json:"timestamp"`
			Redeemer  string   `json:"redeemer"`
			Condition string   `json:"condition"`
			IndexSets []string `json:"indexSets"`
			Payout    string   `json:"payout"`
		} `json:"events"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return nil, cursor, fmt.Errorf("goldsky: decode redemptions: %w", err)
	}

	next := cursor
	legs := make([]domain.CTFLeg, 0, 2*len(result.Events))
	for _, e := range result.Events {
		ts, err := strconv.ParseInt(e.Timestamp, 10, 64)
		if err != nil {
			return nil, cursor, fmt.Errorf("goldsky: parse redemption timestamp %q: %w", e.Timestamp, err)
		}
		payout, err := scaleAmount(e.Payout)
		if err != nil {
			return nil, cursor, fmt.Errorf("goldsky: redemption %s: %w", e.ID, err)
		}
		blockTime := time.Unix(ts, 0).UTC()
		next = domain.StreamCursor{Since: blockTime, LastID: e.ID}

		// Index sets are bitmasks over outcome slots; binary conditions use
		// 1 (outcome 0) and 2 (outcome 1). The redeemed sets burn tokens;
		// in a binary market only the winning set pays, so the burned
		// amount equals the payout.
		redeemed := make(map[int]bool, len(e.IndexSets))
		for _, set := range e.IndexSets {
			switch set {
			case "1":
				redeemed[0] = true
			case "2":
				redeemed[1] = true
			}
		}
		for outcome := 0; outcome < 2; outcome++ {
			var tokenDelta float64
			if redeemed[outcome] {
				tokenDelta = -payout
			}
			legs = append(legs, domain.CTFLeg{
				EventID:      e.ID,
				Wallet:       e.Redeemer,
				ConditionID:  e.Condition,
				Type:         domain.FlowRedeem,
				OutcomeIndex: outcome,
				TokenDelta:   tokenDelta,
				CashDelta:    payout,
				BlockTime:    blockTime,
				TxHash:       txHashFromEventID(e.ID),
			})
		}
	}

	return legs, next, nil
}

// FetchResolutions queries condition resolutions at or after the given
// timestamp. Payout vectors are returned raw; canonicalization and
// validation happen in the resolution package.
func (c *Client) FetchResolutions(ctx context.Context, since time.Time, first int) ([]resolution.RawResolution, error) {
	query := `
		query Resolutions($since: BigInt!, $first: Int!) {
			conditions(
				first: $first
				orderBy: resolutionTimestamp
				orderDirection: asc
				where: { resolutionTimestamp_gte: $since }
			) {
				id
				payoutNumerators
				payoutDenominator
				resolutionTimestamp
			}
		}
	`

	variables := map[string]any{
		"since": strconv.FormatInt(since.Unix(), 10),
		"first": first,
	}

	respData, err := c.doQuery(ctx, query, variables)
	if err != nil {
		return nil, fmt.Errorf("goldsky: fetch resolutions: %w", err)
	}

	var result struct {
		Conditions []struct {
			ID                  string   `json:"id"`
			PayoutNumerators    []string `json:"payoutNumerators"`
			PayoutDenominator   string   `json:"payoutDenominator"`
			ResolutionTimestamp string   `json:"resolutionTimestamp"`
		} `json:"conditions"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return nil, fmt.Errorf("goldsky: decode resolutions: %w", err)
	}

	resolutions := make([]resolution.RawResolution, 0, len(result.Conditions))
	for _, e := range result.Conditions {
		ts, err := strconv.ParseInt(e.ResolutionTimestamp, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("goldsky: parse resolution timestamp %q: %w", e.ResolutionTimestamp, err)
		}
		denominator, err := strconv.ParseUint(e.PayoutDenominator, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("goldsky: parse payout denominator %q: %w", e.PayoutDenominator, err)
		}
		numerators := make([]uint64, len(e.PayoutNumerators))
		for i, n := range e.PayoutNumerators {
			numerators[i], err = strconv.ParseUint(n, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("goldsky: parse payout numerator %q: %w", n, err)
			}
		}

		resolutions = append(resolutions, resolution.RawResolution{
			ConditionID:       e.ID,
			PayoutNumerators:  numerators,
			PayoutDenominator: denominator,
			ResolvedAt:        time.Unix(ts, 0).UTC(),
		})
	}

	return resolutions, nil
}

// FetchTokenRegistrations queries token-registered events from the exchange
// and returns the token-to-condition mapping rows, two per event.
func (c *Client) FetchTokenRegistrations(ctx context.Context, skip, first int) ([]domain.TokenMapping, error) {
	query := `
		query TokenRegistrations($skip: Int!, $first: Int!) {
			tokenRegisteredEvents(first: $first, skip: $skip, orderBy: id) {
				token0
				token1
				condition
			}
		}
	`

	variables := map[string]any{
		"skip":  skip,
		"first": first,
	}

	respData, err := c.doQuery(ctx, query, variables)
	if err != nil {
		return nil, fmt.Errorf("goldsky: fetch token registrations: %w", err)
	}

	var result struct {
		TokenRegisteredEvents []struct {
			Token0    string `json:"token0"`
			Token1    string `json:"token1"`
			Condition string `json:"condition"`
		} `json:"tokenRegisteredEvents"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return nil, fmt.Errorf("goldsky: decode token registrations: %w", err)
	}

	mappings := make([]domain.TokenMapping, 0, 2*len(result.TokenRegisteredEvents))
	for _, e := range result.TokenRegisteredEvents {
		mappings = append(mappings,
			domain.TokenMapping{TokenID: e.Token0, ConditionID: e.Condition, OutcomeIndex: 0},
			domain.TokenMapping{TokenID: e.Token1, ConditionID: e.Condition, OutcomeIndex: 1},
		)
	}

	return mappings, nil
}

// FetchLatestBlock returns the latest block number indexed by the subgraph,
// used for monitoring indexing lag.
func (c *Client) FetchLatestBlock(ctx context.Context) (int64, error) {
	query := `
		query LatestBlock {
			_meta {
				block {
					number
				}
			}
		}
	`

	respData, err := c.doQuery(ctx, query, nil)
	if err != nil {
		return 0, fmt.Errorf("goldsky: fetch latest block: %w", err)
	}

	var result struct {
		Meta struct {
			Block struct {
				Number int64 `json:"number"`
			} `json:"block"`
		} `json:"_meta"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return 0, fmt.Errorf("goldsky: decode latest block: %w", err)
	}

	return result.Meta.Block.Number, nil
}

// txHashFromEventID extracts the transaction hash from a subgraph event ID
// of the form "<txhash>-<logIndex>". IDs without a separator are returned
// unchanged.
func txHashFromEventID(id string) string {
	if idx := strings.IndexByte(id, '-'); idx > 0 {
		return id[:idx]
	}
	return id
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doQuery executes a GraphQL query against the Goldsky endpoint and returns
// the raw "data" field from the response.
func (c *Client) doQuery(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error) {
	reqBody := graphqlRequest{
		Query:     query,
		Variables: variables,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphqlURL, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var gqlResp graphqlResponse
	if err := json.Unmarshal(body, &gqlResp); err != nil {
		return nil, fmt.Errorf("decode graphql response: %w", err)
	}

	if len(gqlResp.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %s", gqlResp.Errors[0].Message)
	}

	return gqlResp.Data, nil
}
