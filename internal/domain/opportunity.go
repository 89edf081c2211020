package domain

import "time"

// StrategyKind attributes opportunities, allocations and positions to the
// strategy that produced them.
type StrategyKind string

const (
	StrategyRebalancing   StrategyKind = "rebalancing"
	StrategyCombinatorial StrategyKind = "combinatorial"
)

// RebalancingSide says which way a rebalancing trade goes.
type RebalancingSide string

const (
	RebalancingBuyBoth  RebalancingSide = "buy_both"  // YES+NO < 1.00: buy both outcomes
	RebalancingSellBoth RebalancingSide = "sell_both" // YES+NO > 1.00: sell both outcomes
)

// RebalancingOpportunity is a single-market YES+NO mispricing.
type RebalancingOpportunity struct {
	Venue     Venue
	MarketID  string
	YesPrice  float64
	NoPrice   float64
	PriceSum  float64
	Deviation float64 // |yes+no-1.00|
	Side      RebalancingSide
	OrderBook *OrderBookSnapshot
}

// CombinatorialOpportunity is a cross-market mispricing governed by a
// logical relationship between the two markets.
type CombinatorialOpportunity struct {
	MarketA      string
	MarketB      string
	VenueA       Venue
	VenueB       Venue
	PriceA       float64
	PriceB       float64
	Signal       RelationshipSignal
	LongMarket   string // market to buy
	ShortMarket  string // market to sell
	OrderBookA   *OrderBookSnapshot
	OrderBookB   *OrderBookSnapshot
}

// Opportunity is the tagged union consumed by the analyzer and the engine.
// Exactly one of Rebalancing / Combinatorial is non-nil, matching Kind.
// Opportunities are immutable once built and are not persisted unless they
// lead to an execution record.
type Opportunity struct {
	ID            string
	Kind          StrategyKind
	PositionSize  float64 // requested size in USD
	Rebalancing   *RebalancingOpportunity
	Combinatorial *CombinatorialOpportunity
	DetectedAt    time.Time
}

// SpreadUSD returns the gross spread of the opportunity for the given
// position size: |priceA-priceB|*size for combinatorial, |yes+no-1|*size
// for rebalancing.
func (o Opportunity) SpreadUSD() float64 {
	switch o.Kind {
	case StrategyRebalancing:
		if o.Rebalancing == nil {
			return 0
		}
		return o.Rebalancing.Deviation * o.PositionSize
	case StrategyCombinatorial:
		if o.Combinatorial == nil {
			return 0
		}
		d := o.Combinatorial.PriceA - o.Combinatorial.PriceB
		if d < 0 {
			d = -d
		}
		return d * o.PositionSize
	}
	return 0
}

// MarketIDs returns the market(s) the opportunity trades, primary first.
func (o Opportunity) MarketIDs() []string {
	switch o.Kind {
	case StrategyRebalancing:
		if o.Rebalancing != nil {
			return []string{o.Rebalancing.MarketID}
		}
	case StrategyCombinatorial:
		if o.Combinatorial != nil {
			return []string{o.Combinatorial.MarketA, o.Combinatorial.MarketB}
		}
	}
	return nil
}
