package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/polyledger/pnlengine/internal/blob/s3"
	"github.com/polyledger/pnlengine/internal/cache/redis"
	"github.com/polyledger/pnlengine/internal/canon"
	"github.com/polyledger/pnlengine/internal/config"
	"github.com/polyledger/pnlengine/internal/domain"
	"github.com/polyledger/pnlengine/internal/feed"
	"github.com/polyledger/pnlengine/internal/ledger"
	"github.com/polyledger/pnlengine/internal/pipeline"
	"github.com/polyledger/pnlengine/internal/platform/goldsky"
	"github.com/polyledger/pnlengine/internal/store/postgres"
)

// Dependencies bundles every dependency the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	FillStore       domain.RawFillStore
	CTFStore        domain.CTFLegStore
	ResolutionStore domain.ResolutionStore
	TokenMapStore   domain.TokenMapStore
	PositionStore   domain.PositionStore
	WalletPnLStore  domain.WalletPnLStore
	IntegrityStore  domain.IntegrityStore

	// Caches
	PriceCache  domain.PriceCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager

	// Blob storage
	BlobWriter domain.BlobWriter
	Archiver   domain.SnapshotArchiver
	Pruner     domain.SnapshotPruner

	// Pipeline
	Scraper      *pipeline.Scraper
	Reconciler   *pipeline.Reconciler
	Orchestrator *pipeline.Orchestrator

	// Live price feed, nil when disabled.
	PriceFeed *feed.PriceFeed

	// Health probes by dependency name.
	Pingers map[string]func(ctx context.Context) error
}

// needsS3 returns true for modes that export snapshots.
func needsS3(cfg *config.Config) bool {
	switch cfg.Mode {
	case "snapshot":
		return true
	case "reconcile", "full":
		return cfg.Reconcile.SnapshotToS3
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Pingers: make(map[string]func(ctx context.Context) error),
	}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.PoolMaxConns,
		MinConns: cfg.Database.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Database.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	fillStore := postgres.NewFillStore(pool)
	positionStore := postgres.NewPositionStore(pool)
	summaryStore := postgres.NewWalletPnLStore(pool)
	deps.FillStore = fillStore
	deps.CTFStore = postgres.NewCTFStore(pool)
	deps.ResolutionStore = postgres.NewResolutionStore(pool)
	deps.TokenMapStore = postgres.NewTokenMapStore(pool)
	deps.PositionStore = positionStore
	deps.WalletPnLStore = summaryStore
	deps.IntegrityStore = postgres.NewIntegrityStore(pool)
	deps.Pingers["postgres"] = pool.Ping

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.PriceCache = redis.NewPriceCache(redisClient, cfg.Feed.PriceTTL.Duration)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.Pingers["redis"] = func(ctx context.Context) error {
		return redisClient.Underlying().Ping(ctx).Err()
	}

	// --- S3 blob storage ---
	if needsS3(cfg) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.Archiver = s3blob.NewSnapshotArchiver(
			deps.BlobWriter,
			summaryStore,
			positionStore,
			summaryStore,
			cfg.Reconcile.SnapshotPrefix,
		)
		deps.Pruner = s3blob.NewPruner(s3Client, cfg.Reconcile.SnapshotPrefix)
		deps.Pingers["s3"] = s3Client.Health
	}

	// --- Ingestion + pipeline ---
	source := goldsky.NewClient(cfg.Goldsky.URL, cfg.Goldsky.APIKey, cfg.Goldsky.Timeout.Duration)
	deps.Scraper = pipeline.NewScraper(
		source,
		deps.FillStore,
		deps.CTFStore,
		deps.ResolutionStore,
		deps.TokenMapStore,
		deps.IntegrityStore,
		cfg.Goldsky.PageSize,
		logger,
	)

	classifier := ledger.RatioClassifier{
		MarketMakerRatio: cfg.Engine.MarketMakerRatio,
		InfraFillCount:   cfg.Engine.InfraFillCount,
	}
	canonOpts := canon.Options{
		AmountTolerance:   cfg.Engine.SyntheticAmountTolerance,
		PriceSumTolerance: cfg.Engine.SyntheticPriceSumTolerance,
	}
	deps.Reconciler = pipeline.NewReconciler(
		pipeline.ReconcilerDeps{
			Fills:       deps.FillStore,
			Legs:        deps.CTFStore,
			Resolutions: deps.ResolutionStore,
			Tokens:      deps.TokenMapStore,
			Integrity:   deps.IntegrityStore,
			Positions:   deps.PositionStore,
			Summaries:   deps.WalletPnLStore,
			Prices:      deps.PriceCache,
		},
		classifier,
		canonOpts,
		cfg.Reconcile.WalletWorkers,
		logger,
	)

	deps.Orchestrator = pipeline.NewOrchestrator(
		deps.Scraper,
		deps.Reconciler,
		deps.Archiver,
		deps.Pruner,
		deps.LockManager,
		cfg.Reconcile.Interval.Duration,
		cfg.Reconcile.LockTTL.Duration,
		cfg.Reconcile.SnapshotToS3,
		cfg.Reconcile.SnapshotRetain,
		logger,
	)

	// --- Live price feed ---
	if cfg.Feed.Enabled {
		deps.PriceFeed = feed.NewPriceFeed(cfg.Feed.WsHost, deps.TokenMapStore, deps.PriceCache, logger)
	}

	return deps, cleanup, nil
}
