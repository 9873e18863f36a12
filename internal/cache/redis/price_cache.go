package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/polyledger/pnlengine/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes. Each outcome
// token's last trade price is stored at key "mark:{tokenID}" with fields
// "price" and "ts" (Unix nanosecond timestamp).
//
// A maxAge of zero disables staleness filtering; otherwise entries older
// than maxAge are treated as absent, so positions marked against them fall
// back to missing price quality instead of a stale figure.
type PriceCache struct {
	rdb    *redis.Client
	maxAge time.Duration
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client, maxAge time.Duration) *PriceCache {
	return &PriceCache{rdb: c.Underlying(), maxAge: maxAge}
}

func markKey(tokenID string) string {
	return "mark:" + tokenID
}

// SetPrice stores the latest traded price and timestamp for a token.
func (pc *PriceCache) SetPrice(ctx context.Context, tokenID string, price float64, ts time.Time) error {
	fields := map[string]interface{}{
		"price": strconv.FormatFloat(price, 'f', -1, 64),
		"ts":    strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := pc.rdb.HSet(ctx, markKey(tokenID), fields).Err(); err != nil {
		return fmt.Errorf("redis: set mark price %s: %w", tokenID, err)
	}
	return nil
}

// GetPrice retrieves the latest price and timestamp for a token. It returns
// domain.ErrPriceMissing when no usable (present and fresh) price exists.
func (pc *PriceCache) GetPrice(ctx context.Context, tokenID string) (float64, time.Time, error) {
	vals, err := pc.rdb.HGetAll(ctx, markKey(tokenID)).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get mark price %s: %w", tokenID, err)
	}

	price, ts, ok := pc.decode(vals)
	if !ok {
		return 0, time.Time{}, domain.ErrPriceMissing
	}
	return price, ts, nil
}

// GetPrices retrieves fresh prices for multiple tokens using a pipeline.
// Tokens with no usable price are omitted from the result map.
func (pc *PriceCache) GetPrices(ctx context.Context, tokenIDs []string) (map[string]float64, error) {
	if len(tokenIDs) == 0 {
		return map[string]float64{}, nil
	}

	pipe := pc.rdb.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(tokenIDs))
	for _, id := range tokenIDs {
		cmds[id] = pipe.HGetAll(ctx, markKey(id))
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get mark prices pipeline: %w", err)
	}

	result := make(map[string]float64, len(tokenIDs))
	for id, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil {
			continue
		}
		if price, _, ok := pc.decode(vals); ok {
			result[id] = price
		}
	}

	return result, nil
}

// decode parses a price hash and applies the staleness cutoff.
func (pc *PriceCache) decode(vals map[string]string) (float64, time.Time, bool) {
	priceStr, ok := vals["price"]
	if !ok {
		return 0, time.Time{}, false
	}
	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil {
		return 0, time.Time{}, false
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return 0, time.Time{}, false
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return 0, time.Time{}, false
	}
	ts := time.Unix(0, tsNano)

	if pc.maxAge > 0 && time.Since(ts) > pc.maxAge {
		return 0, time.Time{}, false
	}
	return price, ts, true
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
