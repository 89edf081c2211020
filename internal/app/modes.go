package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/predarb/internal/domain"
	"github.com/alanyoungcy/predarb/internal/feed"
	"github.com/alanyoungcy/predarb/internal/strategy"
)

// exposureReportInterval is how often monitor-style loops log the current
// capital usage.
const exposureReportInterval = time.Minute

// ScanMode runs detection only: the feed keeps the caches current, the
// scanner sweeps the universe and publishes ranked opportunities to the
// signal bus. No orders are placed and no capital is reserved.
func (a *App) ScanMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting scan mode")

	g, ctx := errgroup.WithContext(ctx)

	a.startFeed(ctx, g, deps)

	markets, pairs := a.universe()
	g.Go(func() error {
		return deps.Scanner.Run(ctx, markets, pairs, func(ctx context.Context, ranked []strategy.Ranked) {
			for _, r := range ranked {
				a.logger.InfoContext(ctx, "opportunity",
					slog.String("id", r.Opportunity.ID),
					slog.String("strategy", string(r.Opportunity.Kind)),
					slog.Float64("net_profit_pct", r.Analysis.NetProfitPct),
				)
			}
		})
	})

	return g.Wait()
}

// ExecuteMode runs the full trade loop: scan, authorize, execute. Each
// sweep hands its top-ranked opportunities to the engine in order; the
// executor's cooldown guard keeps a repeated detection from double-trading.
func (a *App) ExecuteMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting execute mode",
		slog.String("unhedged_policy", a.cfg.Engine.UnhedgedPolicy))

	g, ctx := errgroup.WithContext(ctx)

	a.startFeed(ctx, g, deps)
	a.startArchiver(ctx, g, deps)

	markets, pairs := a.universe()
	g.Go(func() error {
		return deps.Scanner.Run(ctx, markets, pairs, func(ctx context.Context, ranked []strategy.Ranked) {
			a.executeRanked(ctx, deps, ranked)
		})
	})

	return g.Wait()
}

// MonitorMode is read-only: it consumes published opportunities, reports
// exposure and PnL on an interval, and surfaces any unhedged executions
// left over from earlier runs. No orders are placed.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	// Unhedged executions are the first thing an operator should see.
	if deps.ExecutionStore != nil {
		unhedged, err := deps.ExecutionStore.ListUnhedged(ctx)
		if err != nil {
			a.logger.WarnContext(ctx, "could not list unhedged executions", slog.Any("error", err))
		}
		for _, exec := range unhedged {
			a.logger.WarnContext(ctx, "unhedged execution on record",
				slog.String("execution_id", exec.ID),
				slog.String("state", string(exec.State)),
				slog.String("market_id", exec.Leg1.MarketID),
			)
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	// Opportunity stream consumer.
	g.Go(func() error {
		ch, stop, err := deps.SignalBus.Subscribe(ctx, strategy.OpportunityChannel)
		if err != nil {
			return fmt.Errorf("monitor mode: subscribe opportunities: %w", err)
		}
		defer stop()

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case payload, ok := <-ch:
				if !ok {
					return nil
				}
				var ranked []strategy.Ranked
				if err := json.Unmarshal(payload, &ranked); err != nil {
					a.logger.DebugContext(ctx, "dropping malformed opportunity payload", slog.Any("error", err))
					continue
				}
				for _, r := range ranked {
					a.logger.InfoContext(ctx, "opportunity observed",
						slog.String("id", r.Opportunity.ID),
						slog.String("strategy", string(r.Opportunity.Kind)),
						slog.Float64("net_profit_pct", r.Analysis.NetProfitPct),
					)
				}
			}
		}
	})

	g.Go(func() error { return a.reportLoop(ctx, deps) })

	return g.Wait()
}

// FullMode runs everything: feed, scanner, engine, archiver, and the
// periodic exposure report.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode",
		slog.String("unhedged_policy", a.cfg.Engine.UnhedgedPolicy))

	g, ctx := errgroup.WithContext(ctx)

	a.startFeed(ctx, g, deps)
	a.startArchiver(ctx, g, deps)

	markets, pairs := a.universe()
	g.Go(func() error {
		return deps.Scanner.Run(ctx, markets, pairs, func(ctx context.Context, ranked []strategy.Ranked) {
			a.executeRanked(ctx, deps, ranked)
		})
	})

	g.Go(func() error { return a.reportLoop(ctx, deps) })

	return g.Wait()
}

// executeRanked hands opportunities to the engine best-first. Rejections
// are routine (capital limits, cooldowns, profitability gates) and logged
// at info; execution failures are already escalated inside the engine.
func (a *App) executeRanked(ctx context.Context, deps *Dependencies, ranked []strategy.Ranked) {
	for _, r := range ranked {
		result, err := deps.Engine.AuthorizeAndExecute(ctx, r.Opportunity)
		if err != nil {
			a.logger.ErrorContext(ctx, "execution error",
				slog.String("opportunity_id", r.Opportunity.ID),
				slog.Any("error", err),
			)
			continue
		}
		switch result.Status {
		case domain.ExecutionSuccess:
			a.logger.InfoContext(ctx, "arbitrage executed",
				slog.String("opportunity_id", result.OpportunityID),
				slog.Float64("pnl_usd", result.PnLUSD),
			)
		case domain.ExecutionRejected:
			a.logger.InfoContext(ctx, "opportunity rejected",
				slog.String("opportunity_id", result.OpportunityID),
				slog.String("reason", result.Reason),
			)
		default:
			a.logger.WarnContext(ctx, "execution did not complete",
				slog.String("opportunity_id", result.OpportunityID),
				slog.String("status", string(result.Status)),
				slog.String("reason", result.Reason),
			)
		}
	}
}

// startFeed adds the market-data feed goroutine when enabled. Without the
// feed the caches must be populated externally.
func (a *App) startFeed(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if !a.cfg.Feed.Enabled {
		a.logger.InfoContext(ctx, "feed disabled, relying on externally populated caches")
		return
	}

	feeder := feed.NewCacheFeeder(deps.QuoteCache, deps.BookCache, a.logger)
	wsFeed := feed.NewWSFeed(a.cfg.Feed.URL, a.marketIDs(), feeder.HandleQuote, feeder.HandleBook, a.logger)
	g.Go(func() error {
		return wsFeed.Run(ctx)
	})
}

// startArchiver adds the periodic state snapshot goroutine when enabled.
func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Archiver == nil {
		return
	}

	interval := a.cfg.Archive.Interval.Duration
	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case now := <-ticker.C:
				if err := deps.Archiver.Archive(ctx, now); err != nil {
					a.logger.WarnContext(ctx, "state snapshot failed", slog.Any("error", err))
				}
			}
		}
	})
}

// reportLoop logs exposure and realized PnL on an interval.
func (a *App) reportLoop(ctx context.Context, deps *Dependencies) error {
	ticker := time.NewTicker(exposureReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			exposure := deps.Ledger.Exposure()
			pnl := deps.Ledger.PnLSummary(domain.PnLFilter{})
			a.logger.InfoContext(ctx, "capital report",
				slog.Float64("total_exposure_usd", exposure.TotalExposureUSD),
				slog.Float64("diversification", exposure.DiversificationScore),
				slog.Float64("realized_pnl_usd", pnl.TotalPnLUSD),
				slog.Int("trades", pnl.TotalTrades),
				slog.Float64("win_rate_pct", pnl.WinRatePct),
			)
		}
	}
}

// universe converts the configured scan universe into scanner types.
func (a *App) universe() ([]strategy.MarketRef, []strategy.Pair) {
	markets := make([]strategy.MarketRef, 0, len(a.cfg.Universe.Markets))
	for _, m := range a.cfg.Universe.Markets {
		markets = append(markets, strategy.MarketRef{
			Venue:    domain.Venue(m.Venue),
			MarketID: m.MarketID,
		})
	}

	pairs := make([]strategy.Pair, 0, len(a.cfg.Universe.Pairs))
	for _, p := range a.cfg.Universe.Pairs {
		pairs = append(pairs, strategy.Pair{
			A: strategy.MarketRef{Venue: domain.Venue(p.A.Venue), MarketID: p.A.MarketID},
			B: strategy.MarketRef{Venue: domain.Venue(p.B.Venue), MarketID: p.B.MarketID},
		})
	}
	return markets, pairs
}

// marketIDs flattens the universe into the market list the feed
// subscribes to.
func (a *App) marketIDs() []string {
	seen := make(map[string]bool)
	var ids []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, m := range a.cfg.Universe.Markets {
		add(m.MarketID)
	}
	for _, p := range a.cfg.Universe.Pairs {
		add(p.A.MarketID)
		add(p.B.MarketID)
	}
	return ids
}
