package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/polyledger/pnlengine/internal/domain"
	"github.com/polyledger/pnlengine/internal/ident"
)

// WalletHandler serves wallet-level pnl summaries and position ledgers.
type WalletHandler struct {
	summaries domain.WalletPnLStore
	positions domain.PositionStore
	logger    *slog.Logger
}

// NewWalletHandler creates a WalletHandler.
func NewWalletHandler(summaries domain.WalletPnLStore, positions domain.PositionStore, logger *slog.Logger) *WalletHandler {
	return &WalletHandler{summaries: summaries, positions: positions, logger: logger}
}

// walletPnLResponse is the wire form of a wallet summary. WinRate and
// ProfitFactor are null when undefined, never zero-filled.
type walletPnLResponse struct {
	Wallet             string   `json:"wallet"`
	Class              string   `json:"class"`
	RealizedPnL        float64  `json:"realized_pnl"`
	GrossGain          float64  `json:"gross_gain"`
	GrossLoss          float64  `json:"gross_loss"`
	UnrealizedPnL      float64  `json:"unrealized_pnl"`
	ResolvedConditions int      `json:"resolved_conditions"`
	WinCount           int      `json:"win_count"`
	LossCount          int      `json:"loss_count"`
	PendingConditions  int      `json:"pending_conditions"`
	UnpricedConditions int      `json:"unpriced_conditions"`
	WinRate            *float64 `json:"win_rate"`
	ProfitFactor       *float64 `json:"profit_factor"`
	ComputedAt         string   `json:"computed_at"`
}

func toWalletPnLResponse(p domain.WalletPnL) walletPnLResponse {
	resp := walletPnLResponse{
		Wallet:             p.Wallet,
		Class:              string(p.Class),
		RealizedPnL:        p.RealizedPnL,
		GrossGain:          p.GrossGain,
		GrossLoss:          p.GrossLoss,
		UnrealizedPnL:      p.UnrealizedPnL,
		ResolvedConditions: p.ResolvedConditions,
		WinCount:           p.WinCount,
		LossCount:          p.LossCount,
		PendingConditions:  p.PendingConditions,
		UnpricedConditions: p.UnpricedConditions,
		ComputedAt:         p.ComputedAt.UTC().Format(time.RFC3339),
	}
	if rate, ok := p.WinRate(); ok {
		resp.WinRate = &rate
	}
	if pf, ok := p.ProfitFactor(); ok {
		resp.ProfitFactor = &pf
	}
	return resp
}

// GetPnL returns the pnl summary for one wallet.
// GET /api/wallets/{wallet}/pnl
func (h *WalletHandler) GetPnL(w http.ResponseWriter, r *http.Request) {
	wallet, err := ident.Wallet(r.PathValue("wallet"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid wallet address")
		return
	}

	summary, err := h.summaries.Get(r.Context(), wallet)
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "wallet not reconciled")
		return
	}
	if err != nil {
		h.logger.Error("get wallet pnl failed", slog.String("wallet", wallet), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, toWalletPnLResponse(summary))
}

type positionResponse struct {
	ConditionID  string   `json:"condition_id"`
	OutcomeIndex int      `json:"outcome_index"`
	NetTokens    float64  `json:"net_tokens"`
	NetCash      float64  `json:"net_cash"`
	FeePaid      float64  `json:"fee_paid"`
	TradeCount   int      `json:"trade_count"`
	Status       string   `json:"status"`
	PayoutPrice  *float64 `json:"payout_price,omitempty"`
	FirstSeen    string   `json:"first_seen"`
	LastSeen     string   `json:"last_seen"`
}

// ListPositions returns the position ledger for one wallet.
// GET /api/wallets/{wallet}/positions
func (h *WalletHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	wallet, err := ident.Wallet(r.PathValue("wallet"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid wallet address")
		return
	}

	rows, err := h.positions.ListByWallet(r.Context(), wallet)
	if err != nil {
		h.logger.Error("list positions failed", slog.String("wallet", wallet), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	out := make([]positionResponse, 0, len(rows))
	for _, p := range rows {
		out = append(out, positionResponse{
			ConditionID:  p.ConditionID,
			OutcomeIndex: p.OutcomeIndex,
			NetTokens:    p.NetTokens,
			NetCash:      p.NetCash,
			FeePaid:      p.FeePaid,
			TradeCount:   p.TradeCount,
			Status:       string(p.Status),
			PayoutPrice:  p.PayoutPrice,
			FirstSeen:    p.FirstSeen.UTC().Format(time.RFC3339),
			LastSeen:     p.LastSeen.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"wallet": wallet, "positions": out})
}

// Leaderboard returns the top wallets by realized pnl.
// GET /api/leaderboard
func (h *WalletHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.summaries.ListTop(r.Context(), parseLimit(r))
	if err != nil {
		h.logger.Error("leaderboard failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	out := make([]walletPnLResponse, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, toWalletPnLResponse(s))
	}
	writeJSON(w, http.StatusOK, map[string]any{"wallets": out})
}
