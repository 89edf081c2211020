package feed

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/predarb/internal/domain"
)

func TestDecodeQuoteEvent(t *testing.T) {
	raw := []byte(`{
		"type": "quote",
		"payload": {
			"venue": "polymarket",
			"market_id": "mkt-1",
			"yes_price": 0.62,
			"no_price": 0.40,
			"best_bid": 0.61,
			"best_ask": 0.63,
			"ts": "2025-03-01T10:00:00Z"
		}
	}`)

	quote, book, err := decodeEvent(raw)
	require.NoError(t, err)
	require.NotNil(t, quote)
	assert.Nil(t, book)

	assert.Equal(t, domain.VenuePolymarket, quote.Venue)
	assert.Equal(t, "mkt-1", quote.MarketID)
	assert.Equal(t, 0.62, quote.YesPrice)
	assert.Equal(t, 0.40, quote.NoPrice)
	assert.Equal(t, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), quote.Timestamp)
}

func TestDecodeBookEvent(t *testing.T) {
	raw := []byte(`{
		"type": "book",
		"payload": {
			"venue": "kalshi",
			"market_id": "mkt-2",
			"bids": [[0.58, 400], [0.57, 900]],
			"asks": [[0.60, 300]],
			"ts": "2025-03-01T10:00:01Z"
		}
	}`)

	quote, book, err := decodeEvent(raw)
	require.NoError(t, err)
	require.NotNil(t, book)
	assert.Nil(t, quote)

	assert.Equal(t, domain.VenueKalshi, book.Venue)
	assert.Equal(t, 0.58, book.BestBid)
	assert.Equal(t, 0.60, book.BestAsk)
	assert.Equal(t, 1300.0, book.Depth(domain.OrderSideSell))
	assert.Equal(t, 300.0, book.Depth(domain.OrderSideBuy))
}

func TestDecodeRejectsMalformedEvents(t *testing.T) {
	cases := map[string][]byte{
		"not json":          []byte(`{{`),
		"unknown type":      []byte(`{"type":"trade","payload":{}}`),
		"quote no market":   []byte(`{"type":"quote","payload":{"venue":"pnp"}}`),
		"book no market":    []byte(`{"type":"book","payload":{"venue":"pnp"}}`),
		"bad quote payload": []byte(`{"type":"quote","payload":"nope"}`),
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			quote, book, err := decodeEvent(raw)
			assert.Error(t, err)
			assert.Nil(t, quote)
			assert.Nil(t, book)
		})
	}
}

type memQuoteCache struct {
	quotes map[string]domain.MarketQuote
	err    error
}

func (c *memQuoteCache) SetQuote(_ context.Context, q domain.MarketQuote) error {
	if c.err != nil {
		return c.err
	}
	c.quotes[q.MarketID] = q
	return nil
}

func (c *memQuoteCache) GetQuote(_ context.Context, _ domain.Venue, marketID string) (domain.MarketQuote, error) {
	q, ok := c.quotes[marketID]
	if !ok {
		return domain.MarketQuote{}, domain.ErrNotFound
	}
	return q, nil
}

func (c *memQuoteCache) ListMarkets(context.Context, domain.Venue) ([]string, error) {
	return nil, nil
}

type memBookCache struct {
	books map[string]domain.OrderBookSnapshot
}

func (c *memBookCache) SetBook(_ context.Context, snap domain.OrderBookSnapshot) error {
	c.books[snap.MarketID] = snap
	return nil
}

func (c *memBookCache) GetBook(_ context.Context, _ domain.Venue, marketID string) (domain.OrderBookSnapshot, error) {
	snap, ok := c.books[marketID]
	if !ok {
		return domain.OrderBookSnapshot{}, domain.ErrNotFound
	}
	return snap, nil
}

func testFeedLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestCacheFeederStoresEvents(t *testing.T) {
	quotes := &memQuoteCache{quotes: map[string]domain.MarketQuote{}}
	books := &memBookCache{books: map[string]domain.OrderBookSnapshot{}}
	feeder := NewCacheFeeder(quotes, books, testFeedLogger())
	ctx := context.Background()

	feeder.HandleQuote(ctx, domain.MarketQuote{Venue: domain.VenuePolymarket, MarketID: "mkt-1", YesPrice: 0.5, NoPrice: 0.52})
	feeder.HandleBook(ctx, domain.OrderBookSnapshot{Venue: domain.VenuePolymarket, MarketID: "mkt-1", BestBid: 0.49})

	assert.Contains(t, quotes.quotes, "mkt-1")
	assert.Contains(t, books.books, "mkt-1")
}

func TestCacheFeederSurvivesCacheFailure(t *testing.T) {
	quotes := &memQuoteCache{quotes: map[string]domain.MarketQuote{}, err: domain.ErrNotFound}
	books := &memBookCache{books: map[string]domain.OrderBookSnapshot{}}
	feeder := NewCacheFeeder(quotes, books, testFeedLogger())

	// Must not panic or propagate.
	feeder.HandleQuote(context.Background(), domain.MarketQuote{MarketID: "mkt-1"})
}

func TestCacheSourceReadsThroughCaches(t *testing.T) {
	quotes := &memQuoteCache{quotes: map[string]domain.MarketQuote{
		"mkt-1": {Venue: domain.VenuePolymarket, MarketID: "mkt-1", YesPrice: 0.6},
	}}
	books := &memBookCache{books: map[string]domain.OrderBookSnapshot{}}
	source := NewCacheSource(quotes, books)

	q, err := source.Quote(context.Background(), domain.VenuePolymarket, "mkt-1")
	require.NoError(t, err)
	assert.Equal(t, 0.6, q.YesPrice)

	_, err = source.OrderBook(context.Background(), domain.VenuePolymarket, "mkt-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
