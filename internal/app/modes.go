package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/polyledger/pnlengine/internal/server"
	"github.com/polyledger/pnlengine/internal/server/handler"
)

// ReconcileMode runs one scrape-reconcile-archive cycle and exits. Intended
// for cron-style scheduling and manual backfills.
func (a *App) ReconcileMode(ctx context.Context, deps *Dependencies) error {
	a.logger.Info("running one-shot reconciliation")
	if err := deps.Orchestrator.RunOnce(ctx); err != nil {
		return fmt.Errorf("app: reconcile: %w", err)
	}
	return nil
}

// SnapshotMode exports the current ledger to cold storage and exits. No
// scraping or recomputation happens; the export reflects whatever the last
// reconciliation persisted.
func (a *App) SnapshotMode(ctx context.Context, deps *Dependencies) error {
	if deps.Archiver == nil {
		return fmt.Errorf("app: snapshot mode requires s3 configuration")
	}

	// The export is stamped with its own timestamp, not a reconciliation
	// run version.
	version := time.Now().UTC().Unix()
	rows, err := deps.Archiver.ArchiveLedger(ctx, version)
	if err != nil {
		return fmt.Errorf("app: snapshot: %w", err)
	}
	a.logger.Info("ledger snapshot exported",
		slog.Int64("version", version),
		slog.Int64("rows", rows))
	return nil
}

// ServeMode runs the query API and the live price feed without the
// periodic reconciliation loop. Reconciliation happens elsewhere (another
// instance, or the manual trigger endpoint).
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)

	a.startServer(ctx, g, deps)
	a.startFeed(ctx, g, deps)

	return waitGroup(g)
}

// FullMode runs everything: the periodic reconciliation loop, the live
// price feed, and the query API.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := deps.Orchestrator.Run(ctx)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return fmt.Errorf("orchestrator: %w", err)
	})

	a.startServer(ctx, g, deps)
	a.startFeed(ctx, g, deps)

	return waitGroup(g)
}

// startServer launches the HTTP API when enabled, wiring shutdown to ctx.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if !a.cfg.Server.Enabled {
		return
	}

	checks := make(map[string]handler.Pinger, len(deps.Pingers))
	for name, ping := range deps.Pingers {
		checks[name] = ping
	}

	srv := server.NewServer(
		server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			APIKey:      a.cfg.Server.APIKey,
			RateLimit:   a.cfg.Server.RateLimit,
			RateWindow:  a.cfg.Server.RateWindow.Duration,
		},
		server.Handlers{
			Health:    handler.NewHealthHandler(checks, a.logger),
			Wallets:   handler.NewWalletHandler(deps.WalletPnLStore, deps.PositionStore, a.logger),
			Integrity: handler.NewIntegrityHandler(deps.IntegrityStore, a.logger),
			Reconcile: handler.NewReconcileHandler(deps.Orchestrator, a.logger),
		},
		deps.RateLimiter,
		a.logger,
	)

	g.Go(func() error {
		if err := srv.Start(); err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// startFeed launches the live price feed when enabled.
func (a *App) startFeed(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.PriceFeed == nil {
		return
	}
	g.Go(func() error {
		err := deps.PriceFeed.Run(ctx)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return fmt.Errorf("price feed: %w", err)
	})
}

// waitGroup waits for the errgroup, treating context cancellation as a
// clean exit.
func waitGroup(g *errgroup.Group) error {
	if err := g.Wait(); err != nil && err != context.Canceled {
		return err
	}
	return nil
}
