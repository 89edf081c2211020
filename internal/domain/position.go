package domain

import "time"

// PositionStatus tracks the position lifecycle. Closed and failed are
// terminal.
type PositionStatus string

const (
	PositionPending PositionStatus = "pending"
	PositionOpen    PositionStatus = "open"
	PositionClosed  PositionStatus = "closed"
	PositionFailed  PositionStatus = "failed"
)

// Position is an open or historical arbitrage position. It is created when
// a leg is authorized and mutated exactly once on close (fill or final
// failure).
type Position struct {
	ID           string
	AllocationID string
	MarketID     string
	MarketBID    string // second market for combinatorial, empty otherwise
	Strategy     StrategyKind
	Side         OrderSide
	SizeUSD      float64
	EntryPrice   float64
	ExitPrice    *float64
	Status       PositionStatus
	OpenedAt     time.Time
	ClosedAt     *time.Time
	PnLUSD       float64
	PnLPct       float64
	FeesPaidUSD  float64
}
