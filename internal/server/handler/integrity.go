package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/polyledger/pnlengine/internal/domain"
)

// IntegrityHandler serves the operator review queue for per-condition
// integrity violations.
type IntegrityHandler struct {
	store  domain.IntegrityStore
	logger *slog.Logger
}

// NewIntegrityHandler creates an IntegrityHandler.
func NewIntegrityHandler(store domain.IntegrityStore, logger *slog.Logger) *IntegrityHandler {
	return &IntegrityHandler{store: store, logger: logger}
}

type integrityIssueResponse struct {
	ID          string `json:"id"`
	ConditionID string `json:"condition_id"`
	Reason      string `json:"reason"`
	ObservedAt  string `json:"observed_at"`
}

// ListOpen returns every unresolved integrity issue. Conditions listed here
// are excluded from pnl until an operator resolves the issue.
// GET /api/integrity
func (h *IntegrityHandler) ListOpen(w http.ResponseWriter, r *http.Request) {
	issues, err := h.store.ListOpen(r.Context())
	if err != nil {
		h.logger.Error("list integrity issues failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	out := make([]integrityIssueResponse, 0, len(issues))
	for _, issue := range issues {
		out = append(out, integrityIssueResponse{
			ID:          issue.ID,
			ConditionID: issue.ConditionID,
			Reason:      issue.Reason,
			ObservedAt:  issue.ObservedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"issues": out})
}

// Resolve marks an integrity issue as reviewed. The affected condition
// re-enters pnl on the next reconciliation run.
// POST /api/integrity/{id}/resolve
func (h *IntegrityHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing issue id")
		return
	}

	err := h.store.MarkResolved(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "issue not found")
		return
	}
	if err != nil {
		h.logger.Error("resolve integrity issue failed", slog.String("id", id), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("integrity issue resolved", slog.String("id", id))
	writeJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}
