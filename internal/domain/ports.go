package domain

import (
	"context"
	"time"
)

// MarketDataSource delivers normalized quotes and optional depth from the
// market-data collaborator. Implementations must return ErrNotFound when a
// market is unknown rather than a zero quote.
type MarketDataSource interface {
	Quote(ctx context.Context, venue Venue, marketID string) (MarketQuote, error)
	OrderBook(ctx context.Context, venue Venue, marketID string) (OrderBookSnapshot, error)
}

// RelationshipClassifier delivers the semantic relationship verdict for a
// market pair. The engine consumes signals read-only.
type RelationshipClassifier interface {
	Classify(ctx context.Context, marketA, marketB string) (RelationshipSignal, error)
}

// FillStatus is the outcome of awaiting a fill at a venue.
type FillStatus string

const (
	FillFilled   FillStatus = "filled"
	FillTimedOut FillStatus = "timed_out"
	FillRejected FillStatus = "rejected"
)

// FillResult reports the terminal fate of a submitted order.
type FillResult struct {
	OrderID     string
	Status      FillStatus
	FilledPrice float64
	FilledAt    time.Time
}

// VenueAdapter is the abstract order-submission contract. The executor's
// state machine is agnostic to whether the adapter is a simulator or a
// real exchange client.
type VenueAdapter interface {
	// Submit places the leg and returns the venue-assigned order id.
	Submit(ctx context.Context, leg Leg) (string, error)
	// AwaitFill blocks until the order fills, is rejected, or timeout
	// elapses. It must not return an error on timeout; that is a
	// FillTimedOut result.
	AwaitFill(ctx context.Context, orderID string, timeout time.Duration) (FillResult, error)
	// Cancel makes a single best-effort cancel attempt.
	Cancel(ctx context.Context, orderID string) (bool, error)
}
