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

// RelationCache implements domain.RelationCache with one JSON value per
// market pair. Keys are normalized so (a,b) and (b,a) hit the same entry;
// the stored signal keeps its original A/B orientation.
type RelationCache struct {
	rdb *redis.Client
}

// NewRelationCache creates a RelationCache backed by the given Client.
func NewRelationCache(c *Client) *RelationCache {
	return &RelationCache{rdb: c.Underlying()}
}

func relationKey(marketA, marketB string) string {
	if marketB < marketA {
		marketA, marketB = marketB, marketA
	}
	return "relation:" + marketA + ":" + marketB
}

// SetSignal caches a classifier verdict for ttl.
func (rc *RelationCache) SetSignal(ctx context.Context, sig domain.RelationshipSignal, ttl time.Duration) error {
	payload, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("redis: marshal relation %s/%s: %w", sig.MarketAID, sig.MarketBID, err)
	}
	key := relationKey(sig.MarketAID, sig.MarketBID)
	if err := rc.rdb.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set relation %s/%s: %w", sig.MarketAID, sig.MarketBID, err)
	}
	return nil
}

// GetSignal retrieves a cached verdict in either pair order. Returns
// domain.ErrNotFound on a miss.
func (rc *RelationCache) GetSignal(ctx context.Context, marketA, marketB string) (domain.RelationshipSignal, error) {
	payload, err := rc.rdb.Get(ctx, relationKey(marketA, marketB)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.RelationshipSignal{}, domain.ErrNotFound
		}
		return domain.RelationshipSignal{}, fmt.Errorf("redis: get relation %s/%s: %w", marketA, marketB, err)
	}

	var sig domain.RelationshipSignal
	if err := json.Unmarshal(payload, &sig); err != nil {
		return domain.RelationshipSignal{}, fmt.Errorf("redis: unmarshal relation %s/%s: %w", marketA, marketB, err)
	}
	return sig, nil
}

// ListSignals scans all cached verdicts. Used by the scan loop to build
// the pair universe without re-classifying.
func (rc *RelationCache) ListSignals(ctx context.Context) ([]domain.RelationshipSignal, error) {
	var signals []domain.RelationshipSignal
	iter := rc.rdb.Scan(ctx, 0, "relation:*", 100).Iterator()
	for iter.Next(ctx) {
		payload, err := rc.rdb.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue // expired between scan and get
			}
			return nil, fmt.Errorf("redis: list relations: %w", err)
		}
		var sig domain.RelationshipSignal
		if err := json.Unmarshal(payload, &sig); err != nil {
			continue
		}
		signals = append(signals, sig)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis: list relations: %w", err)
	}
	return signals, nil
}

var _ domain.RelationCache = (*RelationCache)(nil)
