package domain

import "time"

// OrderSide indicates whether a leg buys or sells.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// LegStatus tracks a leg's lifecycle at its venue.
type LegStatus string

const (
	LegPending         LegStatus = "pending"
	LegSubmitted       LegStatus = "submitted"
	LegPartiallyFilled LegStatus = "partially_filled"
	LegFilled          LegStatus = "filled"
	LegCancelled       LegStatus = "cancelled"
	LegFailed          LegStatus = "failed"
)

// Leg is one side of a two-leg arbitrage trade. A Leg is owned exclusively
// by its execution instance for the duration of that execution and is never
// reused across executions.
type Leg struct {
	Venue           Venue
	MarketID        string
	Side            OrderSide
	Price           float64
	SizeUSD         float64
	ExternalOrderID string // assigned by the venue adapter on submit
	Status          LegStatus
	FilledPrice     float64
	FilledAt        *time.Time
}

// Notional returns the leg's USD notional at its limit price.
func (l Leg) Notional() float64 {
	return l.SizeUSD
}
