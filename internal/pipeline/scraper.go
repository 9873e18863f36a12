// Package pipeline coordinates the reconciliation engine: scraping the
// four source streams into the raw stores, recomputing the position ledger
// and wallet pnl, and archiving run snapshots to cold storage.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/polyledger/pnlengine/internal/domain"
	"github.com/polyledger/pnlengine/internal/metrics"
	"github.com/polyledger/pnlengine/internal/resolution"
)

// cursorOverlap is re-fetched at every cursor boundary so a partially
// ingested second is never skipped. The raw stores ignore duplicate rows.
const cursorOverlap = time.Second

// EventSource retrieves the raw event streams from the indexer. The
// paginated fetches take a cursor and return the cursor of the last event
// served, so the caller can walk a stream page by page without gaps even
// when many events share one timestamp.
type EventSource interface {
	FetchOrderFills(ctx context.Context, cursor domain.StreamCursor, first int) ([]domain.RawFill, domain.StreamCursor, error)
	FetchSplits(ctx context.Context, cursor domain.StreamCursor, first int) ([]domain.CTFLeg, domain.StreamCursor, error)
	FetchMerges(ctx context.Context, cursor domain.StreamCursor, first int) ([]domain.CTFLeg, domain.StreamCursor, error)
	FetchRedemptions(ctx context.Context, cursor domain.StreamCursor, first int) ([]domain.CTFLeg, domain.StreamCursor, error)
	FetchResolutions(ctx context.Context, since time.Time, first int) ([]resolution.RawResolution, error)
	FetchTokenRegistrations(ctx context.Context, skip, first int) ([]domain.TokenMapping, error)
	FetchLatestBlock(ctx context.Context) (int64, error)
}

// Scraper ingests the four source streams into the raw stores. Each stream
// keeps its own cursor derived from the newest stored row, so a restart
// resumes where the previous run stopped.
type Scraper struct {
	source      EventSource
	fills       domain.RawFillStore
	legs        domain.CTFLegStore
	resolutions domain.ResolutionStore
	tokens      domain.TokenMapStore
	integrity   domain.IntegrityStore
	pageSize    int
	logger      *slog.Logger
}

// NewScraper creates a Scraper.
func NewScraper(
	source EventSource,
	fills domain.RawFillStore,
	legs domain.CTFLegStore,
	resolutions domain.ResolutionStore,
	tokens domain.TokenMapStore,
	integrity domain.IntegrityStore,
	pageSize int,
	logger *slog.Logger,
) *Scraper {
	if pageSize <= 0 {
		pageSize = 1000
	}
	return &Scraper{
		source:      source,
		fills:       fills,
		legs:        legs,
		resolutions: resolutions,
		tokens:      tokens,
		integrity:   integrity,
		pageSize:    pageSize,
		logger:      logger.With(slog.String("component", "scraper")),
	}
}

// Run ingests every stream once, in dependency order: token registrations
// first so new fills can be mapped, then fills, CTF events, and
// resolutions.
func (s *Scraper) Run(ctx context.Context) error {
	if err := s.scrapeTokenRegistrations(ctx); err != nil {
		return fmt.Errorf("pipeline: scrape token registrations: %w", err)
	}
	if err := s.scrapeFills(ctx); err != nil {
		return fmt.Errorf("pipeline: scrape fills: %w", err)
	}
	if err := s.scrapeCTFEvents(ctx); err != nil {
		return fmt.Errorf("pipeline: scrape ctf events: %w", err)
	}
	if err := s.scrapeResolutions(ctx); err != nil {
		return fmt.Errorf("pipeline: scrape resolutions: %w", err)
	}
	return nil
}

func (s *Scraper) scrapeTokenRegistrations(ctx context.Context) error {
	// Registrations are append-only with no timestamp, so the cursor is a
	// plain offset over what the map already holds.
	existing, err := s.tokens.All(ctx)
	if err != nil {
		return err
	}
	// Two mappings per registration event.
	skip := len(existing) / 2

	var total int
	for {
		mappings, err := s.source.FetchTokenRegistrations(ctx, skip, s.pageSize)
		if err != nil {
			return err
		}
		if len(mappings) == 0 {
			break
		}
		if err := s.tokens.UpsertBatch(ctx, mappings); err != nil {
			return err
		}
		total += len(mappings)
		skip += len(mappings) / 2
		if len(mappings) < 2*s.pageSize {
			break
		}
	}

	if total > 0 {
		s.logger.Info("token registrations ingested", slog.Int("mappings", total))
	}
	return nil
}

func (s *Scraper) scrapeFills(ctx context.Context) error {
	last, err := s.fills.GetLastTradeTime(ctx)
	if err != nil {
		return err
	}
	cursor := domain.StreamCursor{Since: cursorSince(last)}

	var total int64
	for {
		fills, next, err := s.source.FetchOrderFills(ctx, cursor, s.pageSize)
		if err != nil {
			return err
		}
		if len(fills) == 0 {
			break
		}

		inserted, err := s.fills.InsertBatch(ctx, fills)
		if err != nil {
			return err
		}
		total += inserted

		// Two rows per event, so a full page is 2*pageSize rows. The ID
		// tiebreak lets the cursor move through a busy second, but a
		// source that stops advancing it would loop forever.
		if len(fills) < 2*s.pageSize || next == cursor {
			break
		}
		cursor = next
	}

	if total > 0 {
		s.logger.Info("fills ingested", slog.Int64("rows", total), slog.Time("since", cursor.Since))
	}
	return nil
}

// scrapeCTFEvents walks the split, merge, and redemption streams. Each
// stream keeps its own cursor: the streams advance at different rates, and
// a shared high-water mark would let a full page on one stream push the
// cursor past events the others have not served yet.
func (s *Scraper) scrapeCTFEvents(ctx context.Context) error {
	streams := []struct {
		name  string
		flow  domain.FlowType
		fetch func(context.Context, domain.StreamCursor, int) ([]domain.CTFLeg, domain.StreamCursor, error)
	}{
		{"splits", domain.FlowSplit, s.source.FetchSplits},
		{"merges", domain.FlowMerge, s.source.FetchMerges},
		{"redemptions", domain.FlowRedeem, s.source.FetchRedemptions},
	}
	for _, stream := range streams {
		if err := s.scrapeCTFStream(ctx, stream.name, stream.flow, stream.fetch); err != nil {
			return fmt.Errorf("%s: %w", stream.name, err)
		}
	}
	return nil
}

func (s *Scraper) scrapeCTFStream(
	ctx context.Context,
	name string,
	flow domain.FlowType,
	fetch func(context.Context, domain.StreamCursor, int) ([]domain.CTFLeg, domain.StreamCursor, error),
) error {
	last, err := s.legs.GetLastBlockTime(ctx, flow)
	if err != nil {
		return err
	}
	cursor := domain.StreamCursor{Since: cursorSince(last)}

	var total int64
	for {
		legs, next, err := fetch(ctx, cursor, s.pageSize)
		if err != nil {
			return err
		}
		if len(legs) == 0 {
			break
		}

		inserted, err := s.legs.InsertBatch(ctx, legs)
		if err != nil {
			return err
		}
		total += inserted

		// Two legs per event, so a full page is 2*pageSize rows.
		if len(legs) < 2*s.pageSize || next == cursor {
			break
		}
		cursor = next
	}

	if total > 0 {
		s.logger.Info("ctf events ingested",
			slog.String("stream", name),
			slog.Int64("rows", total),
			slog.Time("since", cursor.Since))
	}
	return nil
}

func (s *Scraper) scrapeResolutions(ctx context.Context) error {
	last, err := s.resolutions.GetLastResolvedAt(ctx)
	if err != nil {
		return err
	}
	since := cursorSince(last)

	raws, err := s.source.FetchResolutions(ctx, since, s.pageSize)
	if err != nil {
		return err
	}

	var stored int
	for _, raw := range raws {
		res, err := resolution.Canonicalize(raw)
		if err != nil {
			s.recordResolutionFailure(ctx, raw.ConditionID, err)
			continue
		}
		if err := s.resolutions.Put(ctx, res); err != nil {
			s.recordResolutionFailure(ctx, res.ConditionID, err)
			continue
		}
		stored++
	}

	if stored > 0 {
		s.logger.Info("resolutions ingested", slog.Int("count", stored))
	}
	return nil
}

// recordResolutionFailure queues integrity violations for operator review
// and counts everything else as a gap. Either way the run continues; one
// bad condition never blocks the rest of the stream.
func (s *Scraper) recordResolutionFailure(ctx context.Context, conditionID string, cause error) {
	var integrityErr *domain.IntegrityError
	if !errors.As(cause, &integrityErr) {
		metrics.GapRecordsTotal.WithLabelValues(metrics.GapInvalidIdentifier).Inc()
		s.logger.Warn("resolution dropped",
			slog.String("condition_id", conditionID),
			slog.String("error", cause.Error()))
		return
	}

	metrics.IntegrityIssuesTotal.Inc()
	issue := domain.IntegrityIssue{
		ID:          uuid.NewString(),
		ConditionID: integrityErr.ConditionID,
		Reason:      integrityErr.Error(),
		ObservedAt:  time.Now().UTC(),
	}
	if err := s.integrity.Enqueue(ctx, issue); err != nil {
		s.logger.Error("enqueue integrity issue failed",
			slog.String("condition_id", integrityErr.ConditionID),
			slog.String("error", err.Error()))
		return
	}
	s.logger.Warn("integrity issue queued",
		slog.String("condition_id", integrityErr.ConditionID),
		slog.String("reason", integrityErr.Error()))
}

// LatestIndexedBlock reports the newest block the indexer has processed.
// Used for lag monitoring only.
func (s *Scraper) LatestIndexedBlock(ctx context.Context) (int64, error) {
	return s.source.FetchLatestBlock(ctx)
}

// cursorSince rewinds a stored high-water mark by the overlap window. A
// zero mark means nothing is stored yet and the scrape starts from the
// epoch.
func cursorSince(last time.Time) time.Time {
	if last.IsZero() {
		return time.Unix(0, 0).UTC()
	}
	return last.Add(-cursorOverlap)
}
