package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/predarb/internal/domain"
)

// quoteTTL expires quotes that stop being refreshed; a dead feed must
// surface as ErrNotFound, not as a stale price.
const quoteTTL = time.Minute

// QuoteCache implements domain.QuoteCache with one hash per (venue,
// market) plus a per-venue set of known market ids.
//
// Key schema:
//
//	quote:{venue}:{marketID}  - hash: yes, no, bid, ask, ts
//	markets:{venue}           - set of market ids seen
type QuoteCache struct {
	rdb *redis.Client
}

// NewQuoteCache creates a QuoteCache backed by the given Client.
func NewQuoteCache(c *Client) *QuoteCache {
	return &QuoteCache{rdb: c.Underlying()}
}

func quoteKey(venue domain.Venue, marketID string) string {
	return "quote:" + string(venue) + ":" + marketID
}

func marketsKey(venue domain.Venue) string {
	return "markets:" + string(venue)
}

// SetQuote stores the latest quote and registers the market id.
func (qc *QuoteCache) SetQuote(ctx context.Context, q domain.MarketQuote) error {
	key := quoteKey(q.Venue, q.MarketID)
	fields := map[string]interface{}{
		"yes": strconv.FormatFloat(q.YesPrice, 'f', -1, 64),
		"no":  strconv.FormatFloat(q.NoPrice, 'f', -1, 64),
		"bid": strconv.FormatFloat(q.BestBid, 'f', -1, 64),
		"ask": strconv.FormatFloat(q.BestAsk, 'f', -1, 64),
		"ts":  strconv.FormatInt(q.Timestamp.UnixNano(), 10),
	}

	pipe := qc.rdb.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, quoteTTL)
	pipe.SAdd(ctx, marketsKey(q.Venue), q.MarketID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set quote %s/%s: %w", q.Venue, q.MarketID, err)
	}
	return nil
}

// GetQuote retrieves the latest quote. Returns domain.ErrNotFound when
// the market has no live quote.
func (qc *QuoteCache) GetQuote(ctx context.Context, venue domain.Venue, marketID string) (domain.MarketQuote, error) {
	vals, err := qc.rdb.HGetAll(ctx, quoteKey(venue, marketID)).Result()
	if err != nil {
		return domain.MarketQuote{}, fmt.Errorf("redis: get quote %s/%s: %w", venue, marketID, err)
	}
	if len(vals) == 0 {
		return domain.MarketQuote{}, domain.ErrNotFound
	}

	q := domain.MarketQuote{Venue: venue, MarketID: marketID}
	q.YesPrice, err = parseField(vals, "yes")
	if err != nil {
		return domain.MarketQuote{}, fmt.Errorf("redis: quote %s/%s: %w", venue, marketID, err)
	}
	q.NoPrice, err = parseField(vals, "no")
	if err != nil {
		return domain.MarketQuote{}, fmt.Errorf("redis: quote %s/%s: %w", venue, marketID, err)
	}
	q.BestBid, _ = parseField(vals, "bid")
	q.BestAsk, _ = parseField(vals, "ask")

	if tsStr, ok := vals["ts"]; ok {
		if tsNano, err := strconv.ParseInt(tsStr, 10, 64); err == nil {
			q.Timestamp = time.Unix(0, tsNano).UTC()
		}
	}
	return q, nil
}

// ListMarkets returns all market ids with quotes seen on the venue.
func (qc *QuoteCache) ListMarkets(ctx context.Context, venue domain.Venue) ([]string, error) {
	ids, err := qc.rdb.SMembers(ctx, marketsKey(venue)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list markets %s: %w", venue, err)
	}
	return ids, nil
}

func parseField(vals map[string]string, field string) (float64, error) {
	s, ok := vals[field]
	if !ok {
		return 0, fmt.Errorf("field %q missing", field)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", field, err)
	}
	return v, nil
}

var _ domain.QuoteCache = (*QuoteCache)(nil)
