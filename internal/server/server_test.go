package server

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polyledger/pnlengine/internal/domain"
	"github.com/polyledger/pnlengine/internal/server/handler"
)

type emptySummaryStore struct{}

func (emptySummaryStore) Upsert(context.Context, int64, domain.WalletPnL) error { return nil }
func (emptySummaryStore) Get(context.Context, string) (domain.WalletPnL, error) {
	return domain.WalletPnL{}, domain.ErrNotFound
}
func (emptySummaryStore) ListTop(context.Context, int) ([]domain.WalletPnL, error) {
	return nil, nil
}

type emptyPositionStore struct{}

func (emptyPositionStore) UpsertBatch(context.Context, int64, []domain.Position) error { return nil }
func (emptyPositionStore) ListByWallet(context.Context, string) ([]domain.Position, error) {
	return nil, nil
}
func (emptyPositionStore) ListByCondition(context.Context, string) ([]domain.Position, error) {
	return nil, nil
}
func (emptyPositionStore) DeleteStale(context.Context, string, int64) (int64, error) {
	return 0, nil
}

type emptyIntegrityStore struct{}

func (emptyIntegrityStore) Enqueue(context.Context, domain.IntegrityIssue) error { return nil }
func (emptyIntegrityStore) ListOpen(context.Context) ([]domain.IntegrityIssue, error) {
	return nil, nil
}
func (emptyIntegrityStore) MarkResolved(context.Context, string) error { return nil }
func (emptyIntegrityStore) OpenConditionIDs(context.Context) (map[string]bool, error) {
	return nil, nil
}

type noopRunner struct{}

func (noopRunner) RunOnce(context.Context) error { return nil }

func newTestServer(t *testing.T, cfg Config) http.Handler {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	srv := NewServer(cfg, Handlers{
		Health:    handler.NewHealthHandler(nil, logger),
		Wallets:   handler.NewWalletHandler(emptySummaryStore{}, emptyPositionStore{}, logger),
		Integrity: handler.NewIntegrityHandler(emptyIntegrityStore{}, logger),
		Reconcile: handler.NewReconcileHandler(noopRunner{}, logger),
	}, nil, logger)
	return srv.httpServer.Handler
}

func TestServer_AuthProtectsLedgerEndpoints(t *testing.T) {
	h := newTestServer(t, Config{Port: 0, APIKey: "sekrit"})

	req := httptest.NewRequest(http.MethodGet, "/api/leaderboard", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/leaderboard", nil)
	req.Header.Set("X-API-Key", "sekrit")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_HealthAndMetricsAreKeyFree(t *testing.T) {
	h := newTestServer(t, Config{Port: 0, APIKey: "sekrit"})

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_CORSPreflight(t *testing.T) {
	h := newTestServer(t, Config{Port: 0, CORSOrigins: []string{"https://app.example.com"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/leaderboard", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/leaderboard", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
