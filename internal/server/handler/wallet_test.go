package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polyledger/pnlengine/internal/domain"
)

const testWallet = "0xaaaa567890abcdef1234567890abcdef12345678"

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

type fakeSummaryStore struct {
	summaries map[string]domain.WalletPnL
}

func (s *fakeSummaryStore) Upsert(_ context.Context, _ int64, summary domain.WalletPnL) error {
	s.summaries[summary.Wallet] = summary
	return nil
}

func (s *fakeSummaryStore) Get(_ context.Context, wallet string) (domain.WalletPnL, error) {
	summary, ok := s.summaries[wallet]
	if !ok {
		return domain.WalletPnL{}, domain.ErrNotFound
	}
	return summary, nil
}

func (s *fakeSummaryStore) ListTop(_ context.Context, limit int) ([]domain.WalletPnL, error) {
	var out []domain.WalletPnL
	for _, summary := range s.summaries {
		out = append(out, summary)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakePositionStore struct {
	rows map[string][]domain.Position
}

func (s *fakePositionStore) UpsertBatch(_ context.Context, _ int64, positions []domain.Position) error {
	for _, p := range positions {
		s.rows[p.Wallet] = append(s.rows[p.Wallet], p)
	}
	return nil
}

func (s *fakePositionStore) ListByWallet(_ context.Context, wallet string) ([]domain.Position, error) {
	return s.rows[wallet], nil
}

func (s *fakePositionStore) ListByCondition(_ context.Context, conditionID string) ([]domain.Position, error) {
	var out []domain.Position
	for _, rows := range s.rows {
		for _, p := range rows {
			if p.ConditionID == conditionID {
				out = append(out, p)
			}
		}
	}
	return out, nil
}

func (s *fakePositionStore) DeleteStale(_ context.Context, _ string, _ int64) (int64, error) {
	return 0, nil
}

func newWalletHandler(t *testing.T) (*WalletHandler, *fakeSummaryStore, *fakePositionStore) {
	t.Helper()
	summaries := &fakeSummaryStore{summaries: map[string]domain.WalletPnL{}}
	positions := &fakePositionStore{rows: map[string][]domain.Position{}}
	return NewWalletHandler(summaries, positions, testLogger()), summaries, positions
}

func serve(t *testing.T, pattern string, h http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc(pattern, h)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestGetPnL_ReturnsSummary(t *testing.T) {
	h, summaries, _ := newWalletHandler(t)
	summaries.summaries[testWallet] = domain.WalletPnL{
		Wallet:             testWallet,
		Class:              domain.WalletClassTrader,
		RealizedPnL:        40,
		GrossGain:          40,
		ResolvedConditions: 1,
		WinCount:           1,
		ComputedAt:         time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC),
	}

	req := httptest.NewRequest(http.MethodGet, "/api/wallets/"+testWallet+"/pnl", nil)
	rec := serve(t, "GET /api/wallets/{wallet}/pnl", h.GetPnL, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp walletPnLResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, testWallet, resp.Wallet)
	assert.Equal(t, "trader", resp.Class)
	assert.InDelta(t, 40, resp.RealizedPnL, 1e-9)
	require.NotNil(t, resp.WinRate)
	assert.InDelta(t, 1.0, *resp.WinRate, 1e-9)
	assert.Nil(t, resp.ProfitFactor, "no losses, profit factor undefined")
	assert.Equal(t, "2026-04-02T12:00:00Z", resp.ComputedAt)
}

func TestGetPnL_NormalizesWalletCase(t *testing.T) {
	h, summaries, _ := newWalletHandler(t)
	summaries.summaries[testWallet] = domain.WalletPnL{Wallet: testWallet}

	upper := "0xAAAA567890ABCDEF1234567890ABCDEF12345678"
	req := httptest.NewRequest(http.MethodGet, "/api/wallets/"+upper+"/pnl", nil)
	rec := serve(t, "GET /api/wallets/{wallet}/pnl", h.GetPnL, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetPnL_UnknownWalletIs404(t *testing.T) {
	h, _, _ := newWalletHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/wallets/"+testWallet+"/pnl", nil)
	rec := serve(t, "GET /api/wallets/{wallet}/pnl", h.GetPnL, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetPnL_InvalidWalletIs400(t *testing.T) {
	h, _, _ := newWalletHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/wallets/not-an-address/pnl", nil)
	rec := serve(t, "GET /api/wallets/{wallet}/pnl", h.GetPnL, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListPositions_ReturnsLedger(t *testing.T) {
	h, _, positions := newWalletHandler(t)
	payout := 1.0
	positions.rows[testWallet] = []domain.Position{{
		Wallet:       testWallet,
		ConditionID:  "00ff",
		OutcomeIndex: 0,
		NetTokens:    100,
		NetCash:      -60,
		TradeCount:   1,
		Status:       domain.PositionResolvedWin,
		PayoutPrice:  &payout,
		FirstSeen:    time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC),
		LastSeen:     time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC),
	}}

	req := httptest.NewRequest(http.MethodGet, "/api/wallets/"+testWallet+"/positions", nil)
	rec := serve(t, "GET /api/wallets/{wallet}/positions", h.ListPositions, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Wallet    string             `json:"wallet"`
		Positions []positionResponse `json:"positions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Positions, 1)
	assert.Equal(t, "resolved_win", resp.Positions[0].Status)
	require.NotNil(t, resp.Positions[0].PayoutPrice)
	assert.InDelta(t, 1.0, *resp.Positions[0].PayoutPrice, 1e-9)
}

func TestListPositions_EmptyLedgerIsEmptyArray(t *testing.T) {
	h, _, _ := newWalletHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/wallets/"+testWallet+"/positions", nil)
	rec := serve(t, "GET /api/wallets/{wallet}/positions", h.ListPositions, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"positions":[]`)
}

func TestLeaderboard_RespectsLimit(t *testing.T) {
	h, summaries, _ := newWalletHandler(t)
	summaries.summaries["0xaaaa567890abcdef1234567890abcdef12345678"] = domain.WalletPnL{Wallet: testWallet}
	summaries.summaries["0xbbbb567890abcdef1234567890abcdef12345678"] = domain.WalletPnL{}

	req := httptest.NewRequest(http.MethodGet, "/api/leaderboard?limit=1", nil)
	rec := serve(t, "GET /api/leaderboard", h.Leaderboard, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Wallets []walletPnLResponse `json:"wallets"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Wallets, 1)
}
