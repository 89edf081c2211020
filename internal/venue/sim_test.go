package venue

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

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func testLeg(side domain.OrderSide, price float64) domain.Leg {
	return domain.Leg{
		Venue:    domain.VenuePolymarket,
		MarketID: "mkt-1",
		Side:     side,
		Price:    price,
		SizeUSD:  100,
		Status:   domain.LegPending,
	}
}

func TestSimFillsWithSlippage(t *testing.T) {
	sim := NewSim(domain.VenuePolymarket, SimConfig{SlippageBps: 50}, testLogger())
	ctx := context.Background()

	id, err := sim.Submit(ctx, testLeg(domain.OrderSideBuy, 0.50))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	fill, err := sim.AwaitFill(ctx, id, time.Second)
	require.NoError(t, err)
	assert.Equal(t, domain.FillFilled, fill.Status)
	// 50bps against a buy: fills above the limit.
	assert.InDelta(t, 0.5025, fill.FilledPrice, 1e-9)
}

func TestSimSellSlippageGoesDown(t *testing.T) {
	sim := NewSim(domain.VenueKalshi, SimConfig{SlippageBps: 100}, testLogger())
	ctx := context.Background()

	id, err := sim.Submit(ctx, testLeg(domain.OrderSideSell, 0.60))
	require.NoError(t, err)

	fill, err := sim.AwaitFill(ctx, id, time.Second)
	require.NoError(t, err)
	assert.InDelta(t, 0.594, fill.FilledPrice, 1e-9)
}

func TestSimLatencyBeyondTimeoutTimesOut(t *testing.T) {
	sim := NewSim(domain.VenuePolymarket, SimConfig{Latency: time.Minute}, testLogger())
	ctx := context.Background()

	id, err := sim.Submit(ctx, testLeg(domain.OrderSideBuy, 0.50))
	require.NoError(t, err)

	fill, err := sim.AwaitFill(ctx, id, 10*time.Millisecond)
	require.NoError(t, err) // timeout is a result, not an error
	assert.Equal(t, domain.FillTimedOut, fill.Status)
}

func TestSimCancelRestingOrder(t *testing.T) {
	sim := NewSim(domain.VenuePolymarket, SimConfig{Latency: time.Minute}, testLogger())
	ctx := context.Background()

	id, err := sim.Submit(ctx, testLeg(domain.OrderSideBuy, 0.50))
	require.NoError(t, err)

	ok, err := sim.Cancel(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	// Second cancel is a no-op.
	ok, err = sim.Cancel(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSimRejectsBadOrders(t *testing.T) {
	sim := NewSim(domain.VenuePolymarket, SimConfig{}, testLogger())
	ctx := context.Background()

	_, err := sim.Submit(ctx, testLeg(domain.OrderSideBuy, 0))
	assert.Error(t, err)

	leg := testLeg(domain.OrderSideBuy, 0.50)
	leg.SizeUSD = 0
	_, err = sim.Submit(ctx, leg)
	assert.Error(t, err)

	_, err = sim.AwaitFill(ctx, "no-such-order", time.Second)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
