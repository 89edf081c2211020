package domain

import "time"

// Venue identifies a trading venue.
type Venue string

const (
	VenuePolymarket Venue = "polymarket"
	VenueKalshi     Venue = "kalshi"
	VenuePNP        Venue = "pnp"
)

// PriceLevel is a single price+size entry in an order book.
type PriceLevel struct {
	Price float64
	Size  float64 // USD notional available at this price
}

// OrderBookSnapshot is a depth snapshot for one market on one venue.
// Bids are sorted best (highest) first, asks best (lowest) first.
type OrderBookSnapshot struct {
	Venue     Venue
	MarketID  string
	Bids      []PriceLevel
	Asks      []PriceLevel
	BestBid   float64
	BestAsk   float64
	Timestamp time.Time
}

// Depth returns the total visible size on the given side in USD.
func (s OrderBookSnapshot) Depth(side OrderSide) float64 {
	levels := s.Asks
	if side == OrderSideSell {
		levels = s.Bids
	}
	var total float64
	for _, l := range levels {
		total += l.Size
	}
	return total
}

// MarketQuote is an immutable, timestamped price snapshot for a binary
// market delivered by the market-data collaborator.
type MarketQuote struct {
	Venue     Venue
	MarketID  string
	YesPrice  float64
	NoPrice   float64
	BestBid   float64
	BestAsk   float64
	Timestamp time.Time
}

// Stale reports whether the quote is older than maxAge relative to now.
func (q MarketQuote) Stale(now time.Time, maxAge time.Duration) bool {
	return now.Sub(q.Timestamp) > maxAge
}
