package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsRequireExplicitUnhedgedPolicy(t *testing.T) {
	cfg := Defaults()

	// Trading modes must not start without an operator decision.
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unhedged")

	cfg.Engine.UnhedgedPolicy = "alert"
	assert.NoError(t, cfg.Validate())
}

func TestMonitorModeSkipsPolicyCheck(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "monitor"
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadLimits(t *testing.T) {
	cfg := Defaults()
	cfg.Engine.UnhedgedPolicy = "unwind"
	cfg.Capital.MaxPositionSizePct = 150
	cfg.Capital.LiquidityCapFraction = 0
	cfg.Strategy.MaxOpportunities = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_position_size_pct")
	assert.Contains(t, err.Error(), "liquidity_cap_fraction")
	assert.Contains(t, err.Error(), "max_opportunities")
}

func TestLoadMergesTOMLOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
mode = "scan"

[capital]
total_capital_usd = 25000
allocation_ttl = "45s"

[engine]
unhedged_policy = "alert_and_unwind"

[[universe.markets]]
venue = "polymarket"
market_id = "mkt-1"

[[universe.pairs]]
a = { venue = "polymarket", market_id = "mkt-1" }
b = { venue = "polymarket", market_id = "mkt-2" }
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "scan", cfg.Mode)
	assert.Equal(t, 25_000.0, cfg.Capital.TotalCapitalUSD)
	assert.Equal(t, 45*time.Second, cfg.Capital.AllocationTTL.Duration)
	// Untouched fields keep their defaults.
	assert.Equal(t, 10.0, cfg.Capital.MaxPositionSizePct)
	require.Len(t, cfg.Universe.Markets, 1)
	assert.Equal(t, "mkt-1", cfg.Universe.Markets[0].MarketID)
	require.Len(t, cfg.Universe.Pairs, 1)
	assert.Equal(t, "mkt-2", cfg.Universe.Pairs[0].B.MarketID)

	assert.NoError(t, cfg.Validate())
}

func TestEnvOverridesWinOverTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`mode = "scan"`), 0o600))

	t.Setenv("PREDARB_MODE", "monitor")
	t.Setenv("PREDARB_CAPITAL_TOTAL_USD", "50000")
	t.Setenv("PREDARB_EXECUTOR_LEG_TIMEOUT", "8s")
	t.Setenv("PREDARB_NOTIFY_EVENTS", "execution, unhedged_position")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "monitor", cfg.Mode)
	assert.Equal(t, 50_000.0, cfg.Capital.TotalCapitalUSD)
	assert.Equal(t, 8*time.Second, cfg.Executor.LegTimeout.Duration)
	assert.Equal(t, []string{"execution", "unhedged_position"}, cfg.Notify.Events)
}

func TestRedactedConfigMasksSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "hunter2"
	cfg.Notify.TelegramToken = "123:abc"

	redacted := RedactedConfig(&cfg)
	assert.Equal(t, "***", redacted.Postgres.Password)
	assert.Equal(t, "***", redacted.Notify.TelegramToken)
	// Original untouched.
	assert.Equal(t, "hunter2", cfg.Postgres.Password)
	// Non-secret fields pass through.
	assert.Equal(t, cfg.Redis.Addr, redacted.Redis.Addr)
}
