package feed

import (
	"context"
	"log/slog"
	"time"

	"github.com/polyledger/pnlengine/internal/domain"
	"github.com/polyledger/pnlengine/internal/metrics"
)

const (
	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second

	// resubscribeInterval re-reads the token map so tokens registered after
	// startup get marks too.
	resubscribeInterval = 15 * time.Minute
)

// PriceFeed subscribes to last trade prints for every mapped outcome token
// and writes each print into the mark price cache. It reconnects with
// exponential backoff on disconnect and refreshes its subscription set
// periodically.
type PriceFeed struct {
	wsURL  string
	tokens domain.TokenMapStore
	cache  domain.PriceCache
	logger *slog.Logger
}

// NewPriceFeed creates a feed writing into the given price cache.
func NewPriceFeed(wsURL string, tokens domain.TokenMapStore, cache domain.PriceCache, logger *slog.Logger) *PriceFeed {
	return &PriceFeed{
		wsURL:  wsURL,
		tokens: tokens,
		cache:  cache,
		logger: logger.With(slog.String("component", "price_feed")),
	}
}

// Run connects and consumes trade prints until ctx is cancelled. A feed
// outage degrades mark quality but never fails the engine, so Run only
// returns the context error.
func (f *PriceFeed) Run(ctx context.Context) error {
	delay := reconnectDelay

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := f.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			f.logger.Warn("feed disconnected, reconnecting",
				slog.String("error", err.Error()),
				slog.Duration("delay", delay))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

// runConnection holds one WebSocket session: subscribe to every mapped
// token, store prints as they arrive, and refresh the subscription set on a
// timer. Returns when the connection dies or ctx is cancelled.
func (f *PriceFeed) runConnection(ctx context.Context) error {
	tokenIDs, err := f.tokenIDs(ctx)
	if err != nil {
		return err
	}
	if len(tokenIDs) == 0 {
		f.logger.Info("no mapped tokens yet, waiting")
		return nil
	}

	client := newWSClient(f.wsURL, func(trade LastTrade) {
		f.storeTrade(ctx, trade)
	})
	defer client.close()

	if err := client.connect(ctx); err != nil {
		return err
	}
	if err := client.subscribe(tokenIDs); err != nil {
		return err
	}
	f.logger.Info("subscribed to trade prints", slog.Int("tokens", len(tokenIDs)))

	refresh := time.NewTicker(resubscribeInterval)
	defer refresh.Stop()

	connDone := make(chan struct{})
	go func() {
		client.wait()
		close(connDone)
	}()

	subscribed := len(tokenIDs)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-connDone:
			return domain.ErrWSDisconnect
		case <-refresh.C:
			ids, err := f.tokenIDs(ctx)
			if err != nil {
				f.logger.Warn("token map refresh failed", slog.String("error", err.Error()))
				continue
			}
			if len(ids) == subscribed {
				continue
			}
			if err := client.subscribe(ids); err != nil {
				return err
			}
			subscribed = len(ids)
			f.logger.Info("subscription refreshed", slog.Int("tokens", subscribed))
		}
	}
}

func (f *PriceFeed) tokenIDs(ctx context.Context) ([]string, error) {
	mappings, err := f.tokens.All(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(mappings))
	for _, m := range mappings {
		ids = append(ids, m.TokenID)
	}
	return ids, nil
}

func (f *PriceFeed) storeTrade(ctx context.Context, trade LastTrade) {
	if trade.Price <= 0 || trade.Price > 1 {
		return
	}
	if err := f.cache.SetPrice(ctx, trade.TokenID, trade.Price, trade.TradeAt); err != nil {
		f.logger.Warn("store mark price failed",
			slog.String("token_id", trade.TokenID),
			slog.String("error", err.Error()))
		return
	}
	metrics.PriceCacheUpdates.Inc()
}
