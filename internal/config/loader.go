package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies PREDARB_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PREDARB_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Capital ──
	setFloat64(&cfg.Capital.TotalCapitalUSD, "PREDARB_CAPITAL_TOTAL_USD")
	setFloat64(&cfg.Capital.MaxPositionSizePct, "PREDARB_CAPITAL_MAX_POSITION_SIZE_PCT")
	setFloat64(&cfg.Capital.MaxSingleMarketExposurePct, "PREDARB_CAPITAL_MAX_MARKET_EXPOSURE_PCT")
	setFloat64(&cfg.Capital.MaxTotalExposurePct, "PREDARB_CAPITAL_MAX_TOTAL_EXPOSURE_PCT")
	setDuration(&cfg.Capital.AllocationTTL, "PREDARB_CAPITAL_ALLOCATION_TTL")

	// ── Executor ──
	setDuration(&cfg.Executor.LegTimeout, "PREDARB_EXECUTOR_LEG_TIMEOUT")
	setDuration(&cfg.Executor.Cooldown, "PREDARB_EXECUTOR_COOLDOWN")

	// ── Strategy ──
	setFloat64(&cfg.Strategy.MinDeviation, "PREDARB_STRATEGY_MIN_DEVIATION")
	setFloat64(&cfg.Strategy.MinSpread, "PREDARB_STRATEGY_MIN_SPREAD")
	setFloat64(&cfg.Strategy.MinConfidence, "PREDARB_STRATEGY_MIN_CONFIDENCE")
	setDuration(&cfg.Strategy.MaxQuoteAge, "PREDARB_STRATEGY_MAX_QUOTE_AGE")
	setDuration(&cfg.Strategy.ScanInterval, "PREDARB_STRATEGY_SCAN_INTERVAL")
	setInt(&cfg.Strategy.MaxOpportunities, "PREDARB_STRATEGY_MAX_OPPORTUNITIES")

	// ── Engine ──
	setStr(&cfg.Engine.UnhedgedPolicy, "PREDARB_ENGINE_UNHEDGED_POLICY")

	// ── Analyzer / Gas ──
	setFloat64(&cfg.Analyzer.MinProfitMarginPct, "PREDARB_ANALYZER_MIN_PROFIT_MARGIN_PCT")
	setStr(&cfg.Gas.RPCURL, "PREDARB_GAS_RPC_URL")
	setFloat64(&cfg.Gas.NativePriceUSD, "PREDARB_GAS_NATIVE_PRICE_USD")

	// ── Feed ──
	setBool(&cfg.Feed.Enabled, "PREDARB_FEED_ENABLED")
	setStr(&cfg.Feed.URL, "PREDARB_FEED_URL")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "PREDARB_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "PREDARB_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "PREDARB_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "PREDARB_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "PREDARB_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "PREDARB_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "PREDARB_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "PREDARB_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "PREDARB_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "PREDARB_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "PREDARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PREDARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PREDARB_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PREDARB_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PREDARB_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PREDARB_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "PREDARB_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PREDARB_S3_REGION")
	setStr(&cfg.S3.Bucket, "PREDARB_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "PREDARB_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PREDARB_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PREDARB_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PREDARB_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "PREDARB_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Interval, "PREDARB_ARCHIVE_INTERVAL")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "PREDARB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "PREDARB_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "PREDARB_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "PREDARB_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "PREDARB_MODE")
	setStr(&cfg.LogLevel, "PREDARB_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
