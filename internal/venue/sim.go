// Package venue provides VenueAdapter implementations. The simulator
// models a venue with configurable matching latency and fill slippage so
// the executor's timeout paths can be exercised end to end without real
// exchange connectivity.
package venue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/predarb/internal/domain"
)

// SimConfig tunes the simulated venue.
type SimConfig struct {
	// Latency is how long an order rests before it fills.
	Latency time.Duration
	// SlippageBps shifts the fill price against the order, in basis
	// points of the limit price.
	SlippageBps float64
}

// Sim is an in-memory venue. Safe for concurrent use.
type Sim struct {
	name   domain.Venue
	cfg    SimConfig
	logger *slog.Logger

	mu     sync.Mutex
	orders map[string]simOrder
	now    func() time.Time
}

type simOrder struct {
	leg       domain.Leg
	placedAt  time.Time
	cancelled bool
}

// NewSim creates a simulator for one venue.
func NewSim(name domain.Venue, cfg SimConfig, logger *slog.Logger) *Sim {
	return &Sim{
		name:   name,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "sim_venue"), slog.String("venue", string(name))),
		orders: make(map[string]simOrder),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Submit accepts the leg and assigns an order id. Orders with a
// non-positive price or size are rejected at the gate, as a real venue
// would.
func (s *Sim) Submit(ctx context.Context, leg domain.Leg) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("sim: submit: %w", err)
	}
	if leg.Price <= 0 || leg.SizeUSD <= 0 {
		return "", fmt.Errorf("sim: submit: price %.4f size %.2f out of range", leg.Price, leg.SizeUSD)
	}

	id := uuid.New().String()
	s.mu.Lock()
	s.orders[id] = simOrder{leg: leg, placedAt: s.now()}
	s.mu.Unlock()

	s.logger.Debug("order accepted",
		slog.String("order_id", id),
		slog.String("market_id", leg.MarketID),
		slog.String("side", string(leg.Side)),
		slog.Float64("price", leg.Price),
	)
	return id, nil
}

// AwaitFill resolves the order after the configured latency. A timeout
// shorter than the remaining latency yields FillTimedOut, never an
// error.
func (s *Sim) AwaitFill(ctx context.Context, orderID string, timeout time.Duration) (domain.FillResult, error) {
	s.mu.Lock()
	order, ok := s.orders[orderID]
	s.mu.Unlock()
	if !ok {
		return domain.FillResult{}, fmt.Errorf("sim: await: order %q: %w", orderID, domain.ErrNotFound)
	}

	fillAt := order.placedAt.Add(s.cfg.Latency)
	wait := fillAt.Sub(s.now())
	if wait > timeout {
		return domain.FillResult{OrderID: orderID, Status: domain.FillTimedOut}, nil
	}
	if wait > 0 {
		select {
		case <-ctx.Done():
			return domain.FillResult{}, fmt.Errorf("sim: await: %w", ctx.Err())
		case <-time.After(wait):
		}
	}

	s.mu.Lock()
	order, ok = s.orders[orderID]
	cancelled := ok && order.cancelled
	if ok && !cancelled {
		delete(s.orders, orderID)
	}
	s.mu.Unlock()

	if !ok || cancelled {
		return domain.FillResult{OrderID: orderID, Status: domain.FillRejected}, nil
	}

	return domain.FillResult{
		OrderID:     orderID,
		Status:      domain.FillFilled,
		FilledPrice: s.fillPrice(order.leg),
		FilledAt:    s.now(),
	}, nil
}

// Cancel marks a resting order cancelled. Returns false when the order
// already filled or is unknown.
func (s *Sim) Cancel(ctx context.Context, orderID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("sim: cancel: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok || order.cancelled {
		return false, nil
	}
	order.cancelled = true
	s.orders[orderID] = order
	return true, nil
}

// fillPrice applies slippage against the order: buys fill higher, sells
// fill lower.
func (s *Sim) fillPrice(leg domain.Leg) float64 {
	shift := leg.Price * s.cfg.SlippageBps / 10_000
	if leg.Side == domain.OrderSideSell {
		return leg.Price - shift
	}
	return leg.Price + shift
}

var _ domain.VenueAdapter = (*Sim)(nil)
