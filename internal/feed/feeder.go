package feed

import (
	"context"
	"log/slog"

	"github.com/alanyoungcy/predarb/internal/domain"
)

// CacheFeeder writes incoming feed events into the quote and orderbook
// caches. Cache write failures are logged, not propagated; a Redis blip
// must not drop the feed connection.
type CacheFeeder struct {
	quotes domain.QuoteCache
	books  domain.OrderbookCache
	logger *slog.Logger
}

// NewCacheFeeder creates a CacheFeeder.
func NewCacheFeeder(quotes domain.QuoteCache, books domain.OrderbookCache, logger *slog.Logger) *CacheFeeder {
	return &CacheFeeder{
		quotes: quotes,
		books:  books,
		logger: logger.With(slog.String("component", "cache_feeder")),
	}
}

// HandleQuote stores a normalized quote. Matches the QuoteHandler signature.
func (f *CacheFeeder) HandleQuote(ctx context.Context, q domain.MarketQuote) {
	if err := f.quotes.SetQuote(ctx, q); err != nil {
		f.logger.WarnContext(ctx, "quote cache write failed",
			slog.String("market_id", q.MarketID),
			slog.Any("error", err))
	}
}

// HandleBook stores a depth snapshot. Matches the BookHandler signature.
func (f *CacheFeeder) HandleBook(ctx context.Context, snap domain.OrderBookSnapshot) {
	if err := f.books.SetBook(ctx, snap); err != nil {
		f.logger.WarnContext(ctx, "book cache write failed",
			slog.String("market_id", snap.MarketID),
			slog.Any("error", err))
	}
}

// CacheSource adapts the caches to the read-side MarketDataSource contract
// consumed by the scanner. The feed writes, the scanner reads; the caches
// are the boundary between the two.
type CacheSource struct {
	quotes domain.QuoteCache
	books  domain.OrderbookCache
}

// NewCacheSource creates a CacheSource over the given caches.
func NewCacheSource(quotes domain.QuoteCache, books domain.OrderbookCache) *CacheSource {
	return &CacheSource{quotes: quotes, books: books}
}

// Quote returns the latest cached quote for the market.
func (s *CacheSource) Quote(ctx context.Context, venue domain.Venue, marketID string) (domain.MarketQuote, error) {
	return s.quotes.GetQuote(ctx, venue, marketID)
}

// OrderBook returns the latest cached depth snapshot for the market.
func (s *CacheSource) OrderBook(ctx context.Context, venue domain.Venue, marketID string) (domain.OrderBookSnapshot, error) {
	return s.books.GetBook(ctx, venue, marketID)
}

var _ domain.MarketDataSource = (*CacheSource)(nil)
