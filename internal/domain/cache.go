package domain

import (
	"context"
	"time"
)

// PriceCache provides fast access to the latest traded prices, keyed by
// outcome token ID.
type PriceCache interface {
	SetPrice(ctx context.Context, tokenID string, price float64, ts time.Time) error
	// GetPrice returns ErrPriceMissing when no fresh price exists.
	GetPrice(ctx context.Context, tokenID string) (float64, time.Time, error)
	GetPrices(ctx context.Context, tokenIDs []string) (map[string]float64, error)
}

// LockManager provides distributed locking, used to serialize reconciliation
// runs across engine instances.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// RateLimiter limits request rates per key, used to guard the query API.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
