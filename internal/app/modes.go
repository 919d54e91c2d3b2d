package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/oddsarb/internal/domain"
	"github.com/alanyoungcy/oddsarb/internal/engine"
	"github.com/alanyoungcy/oddsarb/internal/feed"
	"github.com/alanyoungcy/oddsarb/internal/server"
	"github.com/alanyoungcy/oddsarb/internal/server/handler"
	"github.com/alanyoungcy/oddsarb/internal/server/ws"
)

// archiveLockTTL bounds how long a crashed archival run can block its
// successors on other instances.
const archiveLockTTL = 10 * time.Minute

// EngineMode runs the detection pipeline headless: quote feeder, engine,
// event publisher, sweep loop, and the archival pass when configured.
func (a *App) EngineMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting engine mode")

	g, ctx := errgroup.WithContext(ctx)

	eng := a.buildEngine(a.cfg.Bankroll.DryRun)
	a.startCore(ctx, g, deps, eng, nil)
	a.startArchival(ctx, g, deps)

	return g.Wait()
}

// MonitorMode runs detection in dry-run with the HTTP API attached: plans
// are computed and published but no capital is ever committed. Persistence
// is optional in this mode.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode (dry run)")

	g, ctx := errgroup.WithContext(ctx)

	eng := a.buildEngine(true)
	hub := a.newHub(ctx, g, deps, true)
	a.startCore(ctx, g, deps, eng, hub)
	a.startHTTPServer(ctx, g, deps, eng, hub, true)

	return g.Wait()
}

// ServerMode serves the HTTP API over stored opportunities without running
// the detection pipeline. The WebSocket hub still bridges the quote channel
// so dashboards see live traffic.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)

	hub := a.newHub(ctx, g, deps, false)
	a.startHTTPServer(ctx, g, deps, nil, hub, false)

	return g.Wait()
}

// FullMode runs everything: detection, allocation, the HTTP API, and the
// archival pass.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	eng := a.buildEngine(a.cfg.Bankroll.DryRun)
	hub := a.newHub(ctx, g, deps, a.cfg.Bankroll.DryRun)
	a.startCore(ctx, g, deps, eng, hub)
	a.startHTTPServer(ctx, g, deps, eng, hub, a.cfg.Bankroll.DryRun)
	a.startArchival(ctx, g, deps)

	return g.Wait()
}

// buildEngine constructs the arbitrage engine from configuration. dryRun
// forces plan-only allocation regardless of the configured flag.
func (a *App) buildEngine(dryRun bool) *engine.Engine {
	cfg := a.cfg
	return engine.New(engine.Config{
		QuoteStore: engine.QuoteStoreConfig{
			FreshnessWindow:  cfg.Engine.FreshnessWindow.Duration,
			AuditGracePeriod: cfg.Engine.AuditGracePeriod.Duration,
		},
		Detector: engine.DetectorConfig{
			MinEdge:            cfg.Engine.MinEdge,
			AllowPartialCovers: cfg.Engine.AllowPartialCovers,
			MaxOutcomes:        cfg.Engine.MaxOutcomes,
			MinRiskScore:       cfg.Engine.MinRiskScore,
			Reliability:        cfg.Engine.Reliability,
			DefaultReliability: cfg.Engine.DefaultReliability,
		},
		Allocator: engine.AllocatorConfig{
			MaxFraction:     cfg.Bankroll.MaxFractionPerOpportunity,
			KellyFraction:   cfg.Bankroll.KellyFraction,
			PayoutTolerance: cfg.Bankroll.PayoutTolerance,
			MinTotalStake:   cfg.Bankroll.MinTotalStake,
		},
		Lifecycle: engine.LifecycleConfig{
			StaleGracePeriod: cfg.Engine.StaleGracePeriod.Duration,
		},
		InitialCapital: cfg.Bankroll.InitialCapital,
		ExposureLimits: cfg.Bankroll.BookmakerLimits,
		DryRun:         dryRun,
	}, a.logger)
}

// startCore adds the quote feeder, event publisher, and sweep loop to the
// errgroup. hub may be nil when no WebSocket clients need events.
func (a *App) startCore(ctx context.Context, g *errgroup.Group, deps *Dependencies, eng *engine.Engine, hub *ws.Hub) {
	feeder := feed.NewQuoteFeeder(
		feed.QuoteFeederConfig{
			QuoteChannel:    a.cfg.Feed.QuoteChannel,
			RateLimitPerSec: a.cfg.Feed.RateLimitPerSec,
		},
		deps.QuoteBus,
		eng,
		deps.QuoteHistoryStore,
		deps.QuoteCache,
		deps.RateLimiter,
		a.logger,
	)
	g.Go(func() error {
		return feeder.Run(ctx)
	})

	var broadcaster feed.Broadcaster
	if hub != nil {
		broadcaster = hub
	}
	publisher := feed.NewEventPublisher(
		feed.EventPublisherConfig{EventStream: a.cfg.Feed.EventStream},
		eng.Events(),
		deps.OpportunityStore,
		deps.QuoteBus,
		broadcaster,
		deps.Notifier,
		a.logger,
	)
	g.Go(func() error {
		return publisher.Run(ctx)
	})

	sweepInterval := a.cfg.Engine.SweepInterval.Duration
	if sweepInterval <= 0 {
		sweepInterval = time.Second
	}
	g.Go(func() error {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				eng.Sweep()
			}
		}
	})
}

// startArchival adds the periodic cold-storage pass to the errgroup. Each
// run takes a distributed lock so only one instance archives, uploads
// everything older than the retention horizon, and purges the rows only
// after the upload succeeded.
func (a *App) startArchival(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if !a.cfg.Archive.Enabled || deps.Archiver == nil {
		return
	}

	interval := a.cfg.Archive.Interval.Duration
	if interval <= 0 {
		interval = time.Hour
	}
	retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour

	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				a.runArchivalPass(ctx, deps, retention)
			}
		}
	})
}

// runArchivalPass executes one archive-then-purge cycle. Failures are logged
// and retried on the next tick; rows are never deleted unless their upload
// succeeded.
func (a *App) runArchivalPass(ctx context.Context, deps *Dependencies, retention time.Duration) {
	release, err := deps.LockManager.Acquire(ctx, "archive", archiveLockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			a.logger.DebugContext(ctx, "archival pass skipped, lock held elsewhere")
			return
		}
		a.logger.WarnContext(ctx, "archival lock failed", slog.String("error", err.Error()))
		return
	}
	defer release()

	before := time.Now().UTC().Add(-retention)

	if n, err := deps.Archiver.ArchiveOpportunities(ctx, before); err != nil {
		a.logger.ErrorContext(ctx, "opportunity archive failed", slog.String("error", err.Error()))
	} else if n > 0 {
		deleted, err := deps.OpportunityStore.DeleteClosedBefore(ctx, before)
		if err != nil {
			a.logger.ErrorContext(ctx, "opportunity purge failed", slog.String("error", err.Error()))
		} else {
			a.logger.InfoContext(ctx, "opportunities archived",
				slog.Int64("archived", n),
				slog.Int64("purged", deleted),
			)
		}
	}

	if n, err := deps.Archiver.ArchiveQuoteHistory(ctx, before); err != nil {
		a.logger.ErrorContext(ctx, "quote history archive failed", slog.String("error", err.Error()))
	} else if n > 0 {
		deleted, err := deps.QuoteHistoryStore.DeleteBefore(ctx, before)
		if err != nil {
			a.logger.ErrorContext(ctx, "quote history purge failed", slog.String("error", err.Error()))
		} else {
			a.logger.InfoContext(ctx, "quote history archived",
				slog.Int64("archived", n),
				slog.Int64("purged", deleted),
			)
		}
	}
}

// newHub creates the WebSocket hub and starts its loop on the errgroup.
func (a *App) newHub(ctx context.Context, g *errgroup.Group, deps *Dependencies, dryRun bool) *ws.Hub {
	hub := ws.NewHub(deps.QuoteBus, a.logger, ws.Config{
		Mode:         a.cfg.Mode,
		DryRun:       dryRun,
		QuoteChannel: a.cfg.Feed.QuoteChannel,
		StartedAt:    time.Now().UTC(),
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})
	return hub
}

// startHTTPServer adds the HTTP server to the errgroup. eng may be nil in
// server mode, which leaves the engine-backed routes unregistered.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, eng *engine.Engine, hub *ws.Hub, dryRun bool) {
	if !a.cfg.Server.Enabled {
		return
	}

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(a.logger),
		Status: handler.NewStatusHandler(a.cfg.Mode, dryRun, time.Now().UTC()),
	}
	if eng != nil {
		handlers.Markets = handler.NewMarketHandler(eng, a.logger)
		handlers.Opportunities = handler.NewOpportunityHandler(eng, deps.OpportunityStore, a.logger)
		handlers.Bankroll = handler.NewBankrollHandler(eng, a.logger)
	} else {
		handlers.Opportunities = handler.NewOpportunityHandler(nil, deps.OpportunityStore, a.logger)
	}

	var limiter domain.RateLimiter
	if a.cfg.Server.RateLimitPerSec > 0 {
		limiter = deps.RateLimiter
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimitPerSec: a.cfg.Server.RateLimitPerSec,
	}, handlers, hub, limiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
