package domain

import (
	"fmt"
	"time"
)

// RejectionReason identifies the first capital check that failed.
type RejectionReason string

const (
	RejectPositionSize   RejectionReason = "position_size_limit"
	RejectTotalExposure  RejectionReason = "total_exposure_limit"
	RejectLiquidityCap   RejectionReason = "liquidity_cap"
	RejectMarketExposure RejectionReason = "market_exposure_limit"
)

// Rejection is returned when the ledger refuses a capital request. No
// partial state is created on rejection.
type Rejection struct {
	OpportunityID string
	Reason        RejectionReason
	RequestedUSD  float64
	AvailableUSD  float64
}

// Error implements the error interface.
func (r *Rejection) Error() string {
	return fmt.Sprintf("capital rejected (%s): requested %.2f, available %.2f",
		r.Reason, r.RequestedUSD, r.AvailableUSD)
}

// CapitalAllocation is created by the ledger on a successful authorization.
// Never mutated after creation; it must be consumed (recordOpen) before
// ExpiresAt or it is void.
type CapitalAllocation struct {
	ID            string
	OpportunityID string
	Strategy      StrategyKind
	RequestedUSD  float64
	ApprovedUSD   float64
	CapitalPct    float64 // percent of total capital
	CreatedAt     time.Time
	ExpiresAt     time.Time
}

// Expired reports whether the allocation is past its TTL at time now.
func (a CapitalAllocation) Expired(now time.Time) bool {
	return !a.ExpiresAt.IsZero() && now.After(a.ExpiresAt)
}

// ExposureMetrics is a read-only view of current capital usage.
type ExposureMetrics struct {
	TotalExposureUSD     float64
	ExposureByMarket     map[string]float64
	ExposureByStrategy   map[StrategyKind]float64
	MaxMarketExposureUSD float64
	MaxMarketExposurePct float64 // percent of total capital
	DiversificationScore float64 // 1 - HHI; 1.0 with no open positions
}

// PnLRecord is one closed-position entry in the PnL history.
type PnLRecord struct {
	PositionID string
	Strategy   StrategyKind
	PnLUSD     float64
	PnLPct     float64
	ClosedAt   time.Time
}

// PnLFilter narrows a PnL summary query. Zero values mean no filter.
type PnLFilter struct {
	Strategy StrategyKind
	Since    time.Time
	Until    time.Time
}

// PnLSummary aggregates realized PnL with strategy attribution.
type PnLSummary struct {
	TotalPnLUSD   float64
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRatePct    float64
	AvgPnLUSD     float64
	Strategy      StrategyKind // empty when unfiltered
}
