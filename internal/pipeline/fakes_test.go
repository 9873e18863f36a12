package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/polyledger/pnlengine/internal/domain"
	"github.com/polyledger/pnlengine/internal/resolution"
)

// In-memory store fakes. Each mirrors the conflict semantics of its
// postgres counterpart closely enough for pipeline behavior to be
// observable without a database.

type memFillStore struct {
	mu    sync.Mutex
	fills map[string]domain.RawFill // by EventID
}

func newMemFillStore() *memFillStore {
	return &memFillStore{fills: make(map[string]domain.RawFill)}
}

func (s *memFillStore) InsertBatch(_ context.Context, fills []domain.RawFill) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var inserted int64
	for _, f := range fills {
		if _, ok := s.fills[f.EventID]; ok {
			continue
		}
		s.fills[f.EventID] = f
		inserted++
	}
	return inserted, nil
}

func (s *memFillStore) ListByWallet(_ context.Context, wallet string) ([]domain.RawFill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.RawFill
	for _, f := range s.fills {
		if f.Wallet == wallet {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *memFillStore) ListWallets(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, f := range s.fills {
		if !seen[f.Wallet] {
			seen[f.Wallet] = true
			out = append(out, f.Wallet)
		}
	}
	return out, nil
}

func (s *memFillStore) GetLastTradeTime(_ context.Context) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest time.Time
	for _, f := range s.fills {
		if f.TradeTime.After(latest) {
			latest = f.TradeTime
		}
	}
	return latest, nil
}

type legKey struct {
	eventID string
	outcome int
}

type memLegStore struct {
	mu   sync.Mutex
	legs map[legKey]domain.CTFLeg
}

func newMemLegStore() *memLegStore {
	return &memLegStore{legs: make(map[legKey]domain.CTFLeg)}
}

func (s *memLegStore) InsertBatch(_ context.Context, legs []domain.CTFLeg) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var inserted int64
	for _, l := range legs {
		k := legKey{l.EventID, l.OutcomeIndex}
		if _, ok := s.legs[k]; ok {
			continue
		}
		s.legs[k] = l
		inserted++
	}
	return inserted, nil
}

func (s *memLegStore) ListByWallet(_ context.Context, wallet string) ([]domain.CTFLeg, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.CTFLeg
	for _, l := range s.legs {
		if l.Wallet == wallet {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *memLegStore) ListWallets(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, l := range s.legs {
		if !seen[l.Wallet] {
			seen[l.Wallet] = true
			out = append(out, l.Wallet)
		}
	}
	return out, nil
}

func (s *memLegStore) GetLastBlockTime(_ context.Context, flow domain.FlowType) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest time.Time
	for _, l := range s.legs {
		if l.Type == flow && l.BlockTime.After(latest) {
			latest = l.BlockTime
		}
	}
	return latest, nil
}

type memResolutionStore struct {
	mu          sync.Mutex
	resolutions map[string]domain.Resolution
}

func newMemResolutionStore() *memResolutionStore {
	return &memResolutionStore{resolutions: make(map[string]domain.Resolution)}
}

func (s *memResolutionStore) Put(_ context.Context, r domain.Resolution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.resolutions[r.ConditionID]
	if !ok {
		s.resolutions[r.ConditionID] = r
		return nil
	}
	return resolution.CheckConflict(existing, r)
}

func (s *memResolutionStore) Get(_ context.Context, conditionID string) (domain.Resolution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.resolutions[conditionID]
	if !ok {
		return domain.Resolution{}, domain.ErrNotFound
	}
	return r, nil
}

func (s *memResolutionStore) All(_ context.Context) ([]domain.Resolution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Resolution, 0, len(s.resolutions))
	for _, r := range s.resolutions {
		out = append(out, r)
	}
	return out, nil
}

func (s *memResolutionStore) GetLastResolvedAt(_ context.Context) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest time.Time
	for _, r := range s.resolutions {
		if r.ResolvedAt.After(latest) {
			latest = r.ResolvedAt
		}
	}
	return latest, nil
}

type memTokenStore struct {
	mu       sync.Mutex
	mappings map[string]domain.TokenMapping
}

func newMemTokenStore() *memTokenStore {
	return &memTokenStore{mappings: make(map[string]domain.TokenMapping)}
}

func (s *memTokenStore) UpsertBatch(_ context.Context, mappings []domain.TokenMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range mappings {
		s.mappings[m.TokenID] = m
	}
	return nil
}

func (s *memTokenStore) GetByToken(_ context.Context, tokenID string) (domain.TokenMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mappings[tokenID]
	if !ok {
		return domain.TokenMapping{}, domain.ErrUnmappedToken
	}
	return m, nil
}

func (s *memTokenStore) All(_ context.Context) ([]domain.TokenMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.TokenMapping, 0, len(s.mappings))
	for _, m := range s.mappings {
		out = append(out, m)
	}
	return out, nil
}

type memIntegrityStore struct {
	mu     sync.Mutex
	issues map[string]domain.IntegrityIssue
}

func newMemIntegrityStore() *memIntegrityStore {
	return &memIntegrityStore{issues: make(map[string]domain.IntegrityIssue)}
}

func (s *memIntegrityStore) Enqueue(_ context.Context, issue domain.IntegrityIssue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.issues[issue.ID]; !ok {
		s.issues[issue.ID] = issue
	}
	return nil
}

func (s *memIntegrityStore) ListOpen(_ context.Context) ([]domain.IntegrityIssue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.IntegrityIssue
	for _, i := range s.issues {
		if !i.Resolved {
			out = append(out, i)
		}
	}
	return out, nil
}

func (s *memIntegrityStore) MarkResolved(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	issue, ok := s.issues[id]
	if !ok {
		return domain.ErrNotFound
	}
	issue.Resolved = true
	s.issues[id] = issue
	return nil
}

func (s *memIntegrityStore) OpenConditionIDs(_ context.Context) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool)
	for _, i := range s.issues {
		if !i.Resolved {
			out[i.ConditionID] = true
		}
	}
	return out, nil
}

type memPositionStore struct {
	mu        sync.Mutex
	positions map[domain.PositionKey]domain.Position
	versions  map[domain.PositionKey]int64
}

func newMemPositionStore() *memPositionStore {
	return &memPositionStore{
		positions: make(map[domain.PositionKey]domain.Position),
		versions:  make(map[domain.PositionKey]int64),
	}
}

func (s *memPositionStore) UpsertBatch(_ context.Context, runVersion int64, positions []domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range positions {
		k := p.Key()
		if v, ok := s.versions[k]; ok && v > runVersion {
			continue
		}
		s.positions[k] = p
		s.versions[k] = runVersion
	}
	return nil
}

func (s *memPositionStore) ListByWallet(_ context.Context, wallet string) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Position
	for k, p := range s.positions {
		if k.Wallet == wallet {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memPositionStore) ListByCondition(_ context.Context, conditionID string) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Position
	for k, p := range s.positions {
		if k.ConditionID == conditionID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memPositionStore) DeleteStale(_ context.Context, wallet string, runVersion int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for k := range s.positions {
		if k.Wallet == wallet && s.versions[k] < runVersion {
			delete(s.positions, k)
			delete(s.versions, k)
			deleted++
		}
	}
	return deleted, nil
}

type memSummaryStore struct {
	mu        sync.Mutex
	summaries map[string]domain.WalletPnL
}

func newMemSummaryStore() *memSummaryStore {
	return &memSummaryStore{summaries: make(map[string]domain.WalletPnL)}
}

func (s *memSummaryStore) Upsert(_ context.Context, _ int64, summary domain.WalletPnL) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries[summary.Wallet] = summary
	return nil
}

func (s *memSummaryStore) Get(_ context.Context, wallet string) (domain.WalletPnL, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.summaries[wallet]
	if !ok {
		return domain.WalletPnL{}, domain.ErrNotFound
	}
	return p, nil
}

func (s *memSummaryStore) ListTop(_ context.Context, limit int) ([]domain.WalletPnL, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.WalletPnL, 0, len(s.summaries))
	for _, p := range s.summaries {
		out = append(out, p)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memPriceCache struct {
	mu     sync.Mutex
	prices map[string]float64
	times  map[string]time.Time
}

func newMemPriceCache() *memPriceCache {
	return &memPriceCache{
		prices: make(map[string]float64),
		times:  make(map[string]time.Time),
	}
}

func (c *memPriceCache) SetPrice(_ context.Context, tokenID string, price float64, ts time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[tokenID] = price
	c.times[tokenID] = ts
	return nil
}

func (c *memPriceCache) GetPrice(_ context.Context, tokenID string) (float64, time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.prices[tokenID]
	if !ok {
		return 0, time.Time{}, domain.ErrPriceMissing
	}
	return p, c.times[tokenID], nil
}

func (c *memPriceCache) GetPrices(_ context.Context, tokenIDs []string) (map[string]float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]float64, len(tokenIDs))
	for _, id := range tokenIDs {
		if p, ok := c.prices[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}
