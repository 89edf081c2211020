// Package config defines the engine's top-level configuration and
// validation. Values come from a TOML file, overridden by PREDARB_*
// environment variables so operators can inject secrets at deploy time.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/predarb/internal/engine"
)

// Config is the root configuration structure.
type Config struct {
	Capital  CapitalConfig  `toml:"capital"`
	Executor ExecutorConfig `toml:"executor"`
	Strategy StrategyConfig `toml:"strategy"`
	Engine   EngineConfig   `toml:"engine"`
	Analyzer AnalyzerConfig `toml:"analyzer"`
	Fees     FeesConfig     `toml:"fees"`
	Gas      GasConfig      `toml:"gas"`
	Venues   VenuesConfig   `toml:"venues"`
	Universe UniverseConfig `toml:"universe"`
	Feed     FeedConfig     `toml:"feed"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Archive  ArchiveConfig  `toml:"archive"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// CapitalConfig holds the risk ledger limits.
type CapitalConfig struct {
	TotalCapitalUSD            float64  `toml:"total_capital_usd"`
	MaxPositionSizePct         float64  `toml:"max_position_size_pct"`
	MaxSingleMarketExposurePct float64  `toml:"max_single_market_exposure_pct"`
	MaxTotalExposurePct        float64  `toml:"max_total_exposure_pct"`
	AllocationTTL              duration `toml:"allocation_ttl"`
	LiquidityCapFraction       float64  `toml:"liquidity_cap_fraction"`
}

// ExecutorConfig holds two-leg execution timing parameters.
type ExecutorConfig struct {
	LegTimeout duration `toml:"leg_timeout"`
	Cooldown   duration `toml:"cooldown"`
}

// StrategyConfig holds detection thresholds and the scan schedule.
type StrategyConfig struct {
	MinDeviation     float64  `toml:"min_deviation"`
	MinSpread        float64  `toml:"min_spread"`
	MinConfidence    float64  `toml:"min_confidence"`
	MaxQuoteAge      duration `toml:"max_quote_age"`
	ScanInterval     duration `toml:"scan_interval"`
	MaxOpportunities int      `toml:"max_opportunities"`
}

// EngineConfig holds execution policy.
type EngineConfig struct {
	// UnhedgedPolicy must be set explicitly: "alert", "unwind", or
	// "alert_and_unwind". There is no default.
	UnhedgedPolicy string `toml:"unhedged_policy"`
}

// AnalyzerConfig holds profitability thresholds.
type AnalyzerConfig struct {
	MinProfitMarginPct float64 `toml:"min_profit_margin_pct"`
}

// FeeScheduleConfig describes one venue's fee structure. Either flat or
// bracketed by contract price.
type FeeScheduleConfig struct {
	FlatRate   float64 `toml:"flat_rate"`
	WinnerOnly bool    `toml:"winner_only"`
	Bracketed  bool    `toml:"bracketed"`
	LowRate    float64 `toml:"low_rate"`
	MidRate    float64 `toml:"mid_rate"`
	LowCut     float64 `toml:"low_cut"`
	HighCut    float64 `toml:"high_cut"`
}

// FeesConfig maps venue names to fee schedules. An empty map installs the
// built-in schedule table.
type FeesConfig struct {
	Schedules map[string]FeeScheduleConfig `toml:"schedules"`
}

// GasConfig holds the network cost parameters.
type GasConfig struct {
	// RPCURL is an Ethereum-compatible endpoint for live gas prices.
	// Empty disables live fetching; the gas model uses its defaults.
	RPCURL         string  `toml:"rpc_url"`
	NativePriceUSD float64 `toml:"native_price_usd"`
}

// SimVenueConfig holds one simulated venue's fill behavior.
type SimVenueConfig struct {
	Latency     duration `toml:"latency"`
	SlippageBps float64  `toml:"slippage_bps"`
}

// VenuesConfig holds per-venue adapter parameters. All execution runs
// against the simulated adapters; live venue clients are out of scope.
type VenuesConfig struct {
	Sim map[string]SimVenueConfig `toml:"sim"`
}

// MarketRefConfig identifies one market on one venue.
type MarketRefConfig struct {
	Venue    string `toml:"venue"`
	MarketID string `toml:"market_id"`
}

// PairConfig names two markets to watch for combinatorial violations.
// The relation fields declare the pair's known relationship for the static
// classifier; leave Kind empty when a live classifier seeds the relation
// cache instead.
type PairConfig struct {
	A MarketRefConfig `toml:"a"`
	B MarketRefConfig `toml:"b"`

	Kind       string  `toml:"kind"`       // entailment, complementary, mutually_exclusive
	Direction  string  `toml:"direction"`  // a_implies_b, b_implies_a, symmetric
	Confidence float64 `toml:"confidence"` // 0-1; 0 defaults to 1.0
}

// UniverseConfig is the scan universe: single markets for rebalancing
// detection and pairs for combinatorial detection.
type UniverseConfig struct {
	Markets []MarketRefConfig `toml:"markets"`
	Pairs   []PairConfig      `toml:"pairs"`
}

// FeedConfig holds the market-data stream connection.
type FeedConfig struct {
	Enabled bool   `toml:"enabled"`
	URL     string `toml:"url"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig holds the state snapshot schedule.
type ArchiveConfig struct {
	Enabled  bool     `toml:"enabled"`
	Interval duration `toml:"interval"`
}

// NotifyConfig holds notification channel credentials and the event
// filter. Unhedged escalations bypass the filter regardless.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration wraps time.Duration so the TOML decoder accepts strings like
// "5m" or "30s".
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable defaults. The
// unhedged policy is deliberately left empty; operators must choose one.
func Defaults() Config {
	return Config{
		Capital: CapitalConfig{
			TotalCapitalUSD:            10_000,
			MaxPositionSizePct:         10,
			MaxSingleMarketExposurePct: 20,
			MaxTotalExposurePct:        80,
			AllocationTTL:              duration{30 * time.Second},
			LiquidityCapFraction:       0.5,
		},
		Executor: ExecutorConfig{
			LegTimeout: duration{5 * time.Second},
			Cooldown:   duration{2 * time.Minute},
		},
		Strategy: StrategyConfig{
			MinDeviation:     0.02,
			MinSpread:        0.05,
			MinConfidence:    0.7,
			MaxQuoteAge:      duration{10 * time.Second},
			ScanInterval:     duration{15 * time.Second},
			MaxOpportunities: 10,
		},
		Analyzer: AnalyzerConfig{
			MinProfitMarginPct: 0.5,
		},
		Gas: GasConfig{
			NativePriceUSD: 1.0,
		},
		Venues: VenuesConfig{
			Sim: map[string]SimVenueConfig{
				"polymarket": {Latency: duration{200 * time.Millisecond}, SlippageBps: 10},
				"kalshi":     {Latency: duration{300 * time.Millisecond}, SlippageBps: 15},
			},
		},
		Feed: FeedConfig{
			Enabled: false,
			URL:     "ws://localhost:8900/stream",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "predarb",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "predarb-snapshots",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Enabled:  false,
			Interval: duration{time.Hour},
		},
		Notify: NotifyConfig{
			Events: []string{"execution", "unhedged_position"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"scan":    true,
	"execute": true,
	"monitor": true,
	"full":    true,
}

// validRelationKinds enumerates the pair relationship kinds the static
// classifier understands.
var validRelationKinds = map[string]bool{
	"entailment":         true,
	"complementary":      true,
	"mutually_exclusive": true,
	"independent":        true,
	"contradiction":      true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// executesTrades reports whether the mode submits orders, which requires
// the unhedged policy to be chosen.
func (c *Config) executesTrades() bool {
	return c.Mode == "execute" || c.Mode == "full"
}

// Validate checks the Config for invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: scan, execute, monitor, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Capital
	if c.Capital.TotalCapitalUSD <= 0 {
		errs = append(errs, "capital: total_capital_usd must be > 0")
	}
	if c.Capital.MaxPositionSizePct <= 0 || c.Capital.MaxPositionSizePct > 100 {
		errs = append(errs, fmt.Sprintf("capital: max_position_size_pct must be in (0, 100], got %g", c.Capital.MaxPositionSizePct))
	}
	if c.Capital.MaxSingleMarketExposurePct <= 0 || c.Capital.MaxSingleMarketExposurePct > 100 {
		errs = append(errs, fmt.Sprintf("capital: max_single_market_exposure_pct must be in (0, 100], got %g", c.Capital.MaxSingleMarketExposurePct))
	}
	if c.Capital.MaxTotalExposurePct <= 0 || c.Capital.MaxTotalExposurePct > 100 {
		errs = append(errs, fmt.Sprintf("capital: max_total_exposure_pct must be in (0, 100], got %g", c.Capital.MaxTotalExposurePct))
	}
	if c.Capital.AllocationTTL.Duration <= 0 {
		errs = append(errs, "capital: allocation_ttl must be > 0")
	}
	if c.Capital.LiquidityCapFraction <= 0 || c.Capital.LiquidityCapFraction > 1 {
		errs = append(errs, fmt.Sprintf("capital: liquidity_cap_fraction must be in (0, 1], got %g", c.Capital.LiquidityCapFraction))
	}

	// Executor
	if c.Executor.LegTimeout.Duration <= 0 {
		errs = append(errs, "executor: leg_timeout must be > 0")
	}
	if c.Executor.Cooldown.Duration < 0 {
		errs = append(errs, "executor: cooldown must be >= 0")
	}

	// Strategy
	if c.Strategy.MinDeviation <= 0 {
		errs = append(errs, "strategy: min_deviation must be > 0")
	}
	if c.Strategy.MinSpread <= 0 {
		errs = append(errs, "strategy: min_spread must be > 0")
	}
	if c.Strategy.MinConfidence < 0 || c.Strategy.MinConfidence > 1 {
		errs = append(errs, fmt.Sprintf("strategy: min_confidence must be in [0, 1], got %g", c.Strategy.MinConfidence))
	}
	if c.Strategy.ScanInterval.Duration <= 0 {
		errs = append(errs, "strategy: scan_interval must be > 0")
	}
	if c.Strategy.MaxOpportunities < 1 {
		errs = append(errs, "strategy: max_opportunities must be >= 1")
	}

	// Engine: trading modes refuse to start without an explicit choice.
	if c.executesTrades() {
		if _, err := engine.ParsePolicy(c.Engine.UnhedgedPolicy); err != nil {
			errs = append(errs, fmt.Sprintf("engine: %v", err))
		}
	}

	// Fee schedules
	for venue, sched := range c.Fees.Schedules {
		if sched.Bracketed && sched.LowCut >= sched.HighCut {
			errs = append(errs, fmt.Sprintf("fees: %s: low_cut must be below high_cut", venue))
		}
		if sched.FlatRate < 0 || sched.LowRate < 0 || sched.MidRate < 0 {
			errs = append(errs, fmt.Sprintf("fees: %s: rates must be >= 0", venue))
		}
	}

	// Universe
	for i, m := range c.Universe.Markets {
		if m.Venue == "" || m.MarketID == "" {
			errs = append(errs, fmt.Sprintf("universe: markets[%d]: venue and market_id are required", i))
		}
	}
	for i, p := range c.Universe.Pairs {
		if p.A.MarketID == "" || p.B.MarketID == "" {
			errs = append(errs, fmt.Sprintf("universe: pairs[%d]: both markets are required", i))
		}
		if p.Kind != "" && !validRelationKinds[p.Kind] {
			errs = append(errs, fmt.Sprintf("universe: pairs[%d]: unknown kind %q", i, p.Kind))
		}
		if p.Confidence < 0 || p.Confidence > 1 {
			errs = append(errs, fmt.Sprintf("universe: pairs[%d]: confidence must be in [0, 1]", i))
		}
	}

	// Feed
	if c.Feed.Enabled && c.Feed.URL == "" {
		errs = append(errs, "feed: url must not be empty when enabled")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 only matters when archiving is on.
	if c.Archive.Enabled {
		if c.S3.Endpoint == "" && c.S3.Region == "" {
			errs = append(errs, "s3: endpoint or region must be set when archive is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be > 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
