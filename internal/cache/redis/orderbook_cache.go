package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/predarb/internal/domain"
)

// bookTTL expires depth that stops being refreshed.
const bookTTL = time.Minute

// OrderbookCache implements domain.OrderbookCache storing the whole
// snapshot as one JSON value per (venue, market). Snapshots are written
// and read whole by the feed and the cost model; there is no incremental
// update path.
type OrderbookCache struct {
	rdb *redis.Client
}

// NewOrderbookCache creates an OrderbookCache backed by the given Client.
func NewOrderbookCache(c *Client) *OrderbookCache {
	return &OrderbookCache{rdb: c.Underlying()}
}

func bookKey(venue domain.Venue, marketID string) string {
	return "book:" + string(venue) + ":" + marketID
}

// SetBook replaces the stored snapshot.
func (oc *OrderbookCache) SetBook(ctx context.Context, snap domain.OrderBookSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal book %s/%s: %w", snap.Venue, snap.MarketID, err)
	}
	if err := oc.rdb.Set(ctx, bookKey(snap.Venue, snap.MarketID), payload, bookTTL).Err(); err != nil {
		return fmt.Errorf("redis: set book %s/%s: %w", snap.Venue, snap.MarketID, err)
	}
	return nil
}

// GetBook retrieves the latest snapshot. Returns domain.ErrNotFound when
// no depth is cached.
func (oc *OrderbookCache) GetBook(ctx context.Context, venue domain.Venue, marketID string) (domain.OrderBookSnapshot, error) {
	payload, err := oc.rdb.Get(ctx, bookKey(venue, marketID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.OrderBookSnapshot{}, domain.ErrNotFound
		}
		return domain.OrderBookSnapshot{}, fmt.Errorf("redis: get book %s/%s: %w", venue, marketID, err)
	}

	var snap domain.OrderBookSnapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return domain.OrderBookSnapshot{}, fmt.Errorf("redis: unmarshal book %s/%s: %w", venue, marketID, err)
	}
	return snap, nil
}

var _ domain.OrderbookCache = (*OrderbookCache)(nil)
