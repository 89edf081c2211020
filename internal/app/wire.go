package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/predarb/internal/analyzer"
	s3blob "github.com/alanyoungcy/predarb/internal/blob/s3"
	"github.com/alanyoungcy/predarb/internal/cache/redis"
	"github.com/alanyoungcy/predarb/internal/config"
	"github.com/alanyoungcy/predarb/internal/costmodel"
	"github.com/alanyoungcy/predarb/internal/domain"
	"github.com/alanyoungcy/predarb/internal/engine"
	"github.com/alanyoungcy/predarb/internal/executor"
	"github.com/alanyoungcy/predarb/internal/feed"
	"github.com/alanyoungcy/predarb/internal/ledger"
	"github.com/alanyoungcy/predarb/internal/notify"
	"github.com/alanyoungcy/predarb/internal/store/postgres"
	"github.com/alanyoungcy/predarb/internal/strategy"
	"github.com/alanyoungcy/predarb/internal/venue"
)

// Dependencies bundles everything the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	PositionStore   domain.PositionStore
	AllocationStore domain.AllocationStore
	ExecutionStore  domain.ExecutionStore
	AuditStore      domain.AuditStore

	// Caches
	QuoteCache    domain.QuoteCache
	BookCache     domain.OrderbookCache
	RelationCache domain.RelationCache
	SignalBus     domain.SignalBus

	// Blob storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Core components
	DataSource domain.MarketDataSource
	Analyzer   *analyzer.Analyzer
	Ledger     *ledger.Ledger
	Executor   *executor.Executor
	Engine     *engine.Engine
	Scanner    *strategy.Scanner
	Notifier   *notify.Notifier
}

// needsPostgres reports whether the mode persists state.
func needsPostgres(mode string) bool {
	switch mode {
	case "execute", "monitor", "full":
		return true
	default:
		return false
	}
}

// executesTrades reports whether the mode submits orders.
func executesTrades(mode string) bool {
	return mode == "execute" || mode == "full"
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them with a cleanup function to be called on
// shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}
	mode := strings.ToLower(cfg.Mode)

	// --- PostgreSQL ---
	if needsPostgres(mode) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.PositionStore = postgres.NewPositionStore(pool)
		deps.AllocationStore = postgres.NewAllocationStore(pool)
		deps.ExecutionStore = postgres.NewExecutionStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
	}

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

	deps.QuoteCache = redis.NewQuoteCache(redisClient)
	deps.BookCache = redis.NewOrderbookCache(redisClient)
	deps.RelationCache = redis.NewRelationCache(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)
	deps.DataSource = feed.NewCacheSource(deps.QuoteCache, deps.BookCache)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Cost model and analyzer ---
	var pricer costmodel.GasPricer
	if cfg.Gas.RPCURL != "" {
		ethPricer, err := costmodel.NewEthGasPricer(cfg.Gas.RPCURL)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: gas pricer: %w", err)
		}
		closers = append(closers, ethPricer.Close)
		pricer = ethPricer
	}
	fees := costmodel.NewFeeRegistry(feeSchedules(cfg.Fees), logger)
	gas := costmodel.NewGasModel(pricer, cfg.Gas.NativePriceUSD, logger)
	deps.Analyzer = analyzer.New(fees, gas, analyzer.Config{
		MinProfitMarginPct: cfg.Analyzer.MinProfitMarginPct,
	}, logger)

	// --- Ledger ---
	ledgerOpts := []ledger.Option{}
	if deps.PositionStore != nil {
		ledgerOpts = append(ledgerOpts,
			ledger.WithStores(deps.PositionStore, deps.AllocationStore, deps.AuditStore))
	}
	deps.Ledger = ledger.New(ledger.Config{
		TotalCapitalUSD:            cfg.Capital.TotalCapitalUSD,
		MaxPositionSizePct:         cfg.Capital.MaxPositionSizePct,
		MaxSingleMarketExposurePct: cfg.Capital.MaxSingleMarketExposurePct,
		MaxTotalExposurePct:        cfg.Capital.MaxTotalExposurePct,
		AllocationTTL:              cfg.Capital.AllocationTTL.Duration,
		LiquidityCapFraction:       cfg.Capital.LiquidityCapFraction,
	}, logger, ledgerOpts...)

	// --- Scanner ---
	strategyCfg := strategy.Config{
		MinDeviation:     cfg.Strategy.MinDeviation,
		MinSpread:        cfg.Strategy.MinSpread,
		MinConfidence:    cfg.Strategy.MinConfidence,
		MaxQuoteAge:      cfg.Strategy.MaxQuoteAge.Duration,
		ScanInterval:     cfg.Strategy.ScanInterval.Duration,
		MaxOpportunities: cfg.Strategy.MaxOpportunities,
	}
	classifier := strategy.NewStaticClassifier(pairSignals(cfg.Universe.Pairs))
	deps.Scanner = strategy.NewScanner(
		strategyCfg,
		deps.DataSource,
		classifier,
		deps.RelationCache,
		deps.Analyzer,
		deps.Ledger,
		deps.SignalBus,
		logger,
	)

	// --- Executor and engine (trading modes only) ---
	if executesTrades(mode) {
		adapters := simAdapters(cfg.Venues, logger)
		execOpts := []executor.Option{}
		if deps.ExecutionStore != nil {
			execOpts = append(execOpts, executor.WithStore(deps.ExecutionStore))
		}
		deps.Executor = executor.New(adapters, executor.Config{
			LegTimeout: cfg.Executor.LegTimeout.Duration,
			Cooldown:   cfg.Executor.Cooldown.Duration,
		}, logger, execOpts...)

		policy, err := engine.ParsePolicy(cfg.Engine.UnhedgedPolicy)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: %w", err)
		}
		eng, err := engine.New(deps.Analyzer, deps.Ledger, deps.Executor,
			engine.Config{UnhedgedPolicy: policy}, logger,
			engine.WithAlerter(deps.Notifier))
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: engine: %w", err)
		}
		deps.Engine = eng
	}

	// --- S3 blob storage (snapshot archiving) ---
	if cfg.Archive.Enabled {
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
		deps.BlobReader = s3blob.NewReader(s3Client)

		var history s3blob.ExecutionHistory
		if deps.ExecutionStore != nil {
			history = deps.ExecutionStore
		}
		deps.Archiver = s3blob.NewStateArchiver(deps.BlobWriter, deps.Ledger, history, deps.AuditStore, logger)
	}

	return deps, cleanup, nil
}

// feeSchedules converts configured fee tables into the cost model's shape.
// An empty map returns nil, which installs the built-in schedule table.
func feeSchedules(cfg config.FeesConfig) map[domain.Venue]costmodel.FeeSchedule {
	if len(cfg.Schedules) == 0 {
		return nil
	}
	out := make(map[domain.Venue]costmodel.FeeSchedule, len(cfg.Schedules))
	for name, s := range cfg.Schedules {
		out[domain.Venue(name)] = costmodel.FeeSchedule{
			FlatRate:   s.FlatRate,
			WinnerOnly: s.WinnerOnly,
			Bracketed:  s.Bracketed,
			LowRate:    s.LowRate,
			MidRate:    s.MidRate,
			LowCut:     s.LowCut,
			HighCut:    s.HighCut,
		}
	}
	return out
}

// simAdapters builds the simulated venue adapters from configuration.
// Venues without explicit settings get a default profile so an
// opportunity on an unconfigured venue still executes.
func simAdapters(cfg config.VenuesConfig, logger *slog.Logger) map[domain.Venue]domain.VenueAdapter {
	adapters := make(map[domain.Venue]domain.VenueAdapter)
	for name, vc := range cfg.Sim {
		v := domain.Venue(name)
		adapters[v] = venue.NewSim(v, venue.SimConfig{
			Latency:     vc.Latency.Duration,
			SlippageBps: vc.SlippageBps,
		}, logger)
	}
	for _, v := range []domain.Venue{domain.VenuePolymarket, domain.VenueKalshi, domain.VenuePNP} {
		if _, ok := adapters[v]; !ok {
			adapters[v] = venue.NewSim(v, venue.SimConfig{
				Latency:     250 * time.Millisecond,
				SlippageBps: 10,
			}, logger)
		}
	}
	return adapters
}

// pairSignals converts configured pair declarations into classifier
// signals. Pairs without a declared kind are skipped; the scanner will
// rely on cache-seeded verdicts for those.
func pairSignals(pairs []config.PairConfig) []domain.RelationshipSignal {
	var signals []domain.RelationshipSignal
	for _, p := range pairs {
		if p.Kind == "" {
			continue
		}
		confidence := p.Confidence
		if confidence == 0 {
			confidence = 1.0
		}
		direction := domain.RelationDirection(p.Direction)
		if direction == "" {
			direction = domain.DirectionSymmetric
		}
		signals = append(signals, domain.RelationshipSignal{
			MarketAID:  p.A.MarketID,
			MarketBID:  p.B.MarketID,
			Kind:       domain.RelationKind(p.Kind),
			Direction:  direction,
			Confidence: confidence,
			Reasoning:  "declared in configuration",
			CreatedAt:  time.Now().UTC(),
		})
	}
	return signals
}
