package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/polyledger/pnlengine/internal/domain"
)

// Runner triggers one reconciliation cycle.
type Runner interface {
	RunOnce(ctx context.Context) error
}

// ReconcileHandler exposes a manual reconciliation trigger.
type ReconcileHandler struct {
	runner Runner
	logger *slog.Logger
}

// NewReconcileHandler creates a ReconcileHandler.
func NewReconcileHandler(runner Runner, logger *slog.Logger) *ReconcileHandler {
	return &ReconcileHandler{runner: runner, logger: logger}
}

// Trigger starts a reconciliation cycle in the background and returns
// immediately. A cycle already running elsewhere is reported, not queued.
// POST /api/reconcile/trigger
func (h *ReconcileHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	go func() {
		// Detached from the request; the run outlives the HTTP call.
		if err := h.runner.RunOnce(context.Background()); err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				h.logger.Info("triggered reconciliation skipped, lock held elsewhere")
				return
			}
			h.logger.Error("triggered reconciliation failed", slog.String("error", err.Error()))
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}
