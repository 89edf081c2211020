package domain

import (
	"context"
	"time"
)

// QuoteCache caches the latest normalized quote per (venue, market).
type QuoteCache interface {
	SetQuote(ctx context.Context, q MarketQuote) error
	GetQuote(ctx context.Context, venue Venue, marketID string) (MarketQuote, error)
	ListMarkets(ctx context.Context, venue Venue) ([]string, error)
}

// OrderbookCache caches the latest depth snapshot per (venue, market).
type OrderbookCache interface {
	SetBook(ctx context.Context, snap OrderBookSnapshot) error
	GetBook(ctx context.Context, venue Venue, marketID string) (OrderBookSnapshot, error)
}

// RelationCache caches classifier verdicts so the scan loop does not
// re-classify a pair on every cycle.
type RelationCache interface {
	SetSignal(ctx context.Context, sig RelationshipSignal, ttl time.Duration) error
	GetSignal(ctx context.Context, marketA, marketB string) (RelationshipSignal, error)
	ListSignals(ctx context.Context) ([]RelationshipSignal, error)
}

// SignalBus publishes engine events (detections, executions, alerts) to
// downstream observability consumers.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error)
}

// BlobWriter streams an object to blob storage.
type BlobWriter interface {
	Write(ctx context.Context, key string, data []byte, contentType string) error
}

// BlobReader retrieves an object from blob storage.
type BlobReader interface {
	Read(ctx context.Context, key string) ([]byte, error)
}

// Archiver snapshots engine state (ledger, execution history) to blob
// storage on a schedule.
type Archiver interface {
	Archive(ctx context.Context, at time.Time) error
}
