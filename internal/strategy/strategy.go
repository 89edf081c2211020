// Package strategy turns market quotes and relationship signals into
// candidate arbitrage opportunities. Detectors are pure gates over
// prices; sizing and profitability live elsewhere.
package strategy

import "time"

const (
	defaultMinDeviation    = 0.02
	defaultMinSpread       = 0.05
	defaultMinConfidence   = 0.7
	defaultMaxQuoteAge     = 10 * time.Second
	defaultScanInterval    = 15 * time.Second
	defaultMaxOpportunities = 10
)

// Config holds the detection thresholds shared by the detectors and the
// scanner.
type Config struct {
	// MinDeviation is the minimum |yes+no-1.00| for a rebalancing trade.
	MinDeviation float64
	// MinSpread is the minimum cross-market price gap for a
	// combinatorial trade.
	MinSpread float64
	// MinConfidence gates relationship signals by classifier confidence.
	MinConfidence float64
	// MaxQuoteAge rejects quotes older than this.
	MaxQuoteAge time.Duration
	// ScanInterval is the scanner cadence.
	ScanInterval time.Duration
	// MaxOpportunities bounds how many ranked opportunities one scan
	// reports.
	MaxOpportunities int
}

// DefaultConfig returns the standard thresholds: 2 cent rebalancing
// deviation, 5 cent combinatorial spread, 0.7 confidence, 10s quote
// freshness, 15s scans capped at 10 opportunities.
func DefaultConfig() Config {
	return Config{
		MinDeviation:     defaultMinDeviation,
		MinSpread:        defaultMinSpread,
		MinConfidence:    defaultMinConfidence,
		MaxQuoteAge:      defaultMaxQuoteAge,
		ScanInterval:     defaultScanInterval,
		MaxOpportunities: defaultMaxOpportunities,
	}
}
