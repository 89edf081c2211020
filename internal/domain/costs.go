package domain

import "time"

// GasEstimate is the cost of one on-chain transaction.
type GasEstimate struct {
	GasUnits       int64
	GasPriceGwei   float64
	CostNative     float64 // in the network's native token
	CostUSD        float64
	NativePriceUSD float64
}

// SlippageEstimate is the book-walk result for one leg.
type SlippageEstimate struct {
	BestPrice          float64
	ExecutionPrice     float64 // size-weighted average of consumed levels
	SlippagePct        float64
	SlippageUSD        float64
	AvailableLiquidity float64 // total visible depth consumed side, USD
	BookMissing        bool    // true when the conservative default was used
}

// TransactionCosts is the complete cost breakdown for a two-leg trade.
// Pure derived value, recomputed per opportunity.
type TransactionCosts struct {
	PlatformFeesUSD float64
	GasCostsUSD     float64
	SlippageUSD     float64
	TotalUSD        float64
	TotalPct        float64 // total as percent of position size
}

// ProfitabilityAnalysis is the analyzer's verdict for one opportunity.
// Identical inputs always produce identical output; the timestamp is an
// explicit input, not a wall-clock read.
type ProfitabilityAnalysis struct {
	OpportunityID      string
	GrossSpreadUSD     float64
	GrossSpreadPct     float64
	Costs              TransactionCosts
	NetProfitUSD       float64
	NetProfitPct       float64
	IsProfitable       bool
	BreakEvenSpreadPct float64 // costs as % of position size
	MinRequiredPct     float64 // break-even + configured margin
	RiskFactors        []string
	Timestamp          time.Time
}
