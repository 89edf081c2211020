package costmodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/predarb/internal/domain"
)

func TestEstimateSlippageMissingBook(t *testing.T) {
	est := EstimateSlippage(nil, 100, domain.OrderSideBuy)

	assert.True(t, est.BookMissing)
	assert.InDelta(t, DefaultSlippagePct, est.SlippagePct, 1e-9)
	assert.InDelta(t, 0.5, est.SlippageUSD, 1e-9) // 0.5% of $100
	assert.Greater(t, est.SlippageUSD, 0.0, "missing depth must never mean zero slippage")
}

func TestEstimateSlippageEmptySide(t *testing.T) {
	book := &domain.OrderBookSnapshot{BestBid: 0.50}
	est := EstimateSlippage(book, 100, domain.OrderSideBuy)
	assert.True(t, est.BookMissing)
}

func TestEstimateSlippageSingleLevel(t *testing.T) {
	book := &domain.OrderBookSnapshot{
		BestAsk: 0.52,
		Asks:    []domain.PriceLevel{{Price: 0.52, Size: 500}},
	}
	est := EstimateSlippage(book, 100, domain.OrderSideBuy)

	require.False(t, est.BookMissing)
	assert.InDelta(t, 0.52, est.ExecutionPrice, 1e-9)
	assert.InDelta(t, 0.0, est.SlippageUSD, 1e-9)
	assert.InDelta(t, 500, est.AvailableLiquidity, 1e-9)
}

func TestEstimateSlippageWalksDepth(t *testing.T) {
	book := &domain.OrderBookSnapshot{
		BestAsk: 0.50,
		Asks: []domain.PriceLevel{
			{Price: 0.50, Size: 60},
			{Price: 0.55, Size: 100},
		},
	}
	est := EstimateSlippage(book, 100, domain.OrderSideBuy)

	// 60 filled at 0.50, 40 at 0.55: weighted avg = (30+22)/100 = 0.52.
	assert.InDelta(t, 0.52, est.ExecutionPrice, 1e-9)
	assert.InDelta(t, 4.0, est.SlippagePct, 1e-9)
	assert.InDelta(t, 4.0, est.SlippageUSD, 1e-9)
}

func TestEstimateSlippageSellWalksBids(t *testing.T) {
	book := &domain.OrderBookSnapshot{
		BestBid: 0.48,
		Bids: []domain.PriceLevel{
			{Price: 0.48, Size: 50},
			{Price: 0.45, Size: 200},
		},
	}
	est := EstimateSlippage(book, 100, domain.OrderSideSell)

	// 50 at 0.48, 50 at 0.45: weighted avg 0.465.
	assert.InDelta(t, 0.465, est.ExecutionPrice, 1e-9)
	assert.Greater(t, est.SlippageUSD, 0.0)
}

// The execution price must always lie between the best and the worst
// consumed level, never outside book bounds.
func TestExecutionPriceWithinBookBounds(t *testing.T) {
	books := []*domain.OrderBookSnapshot{
		{BestAsk: 0.30, Asks: []domain.PriceLevel{{Price: 0.30, Size: 10}, {Price: 0.35, Size: 10}, {Price: 0.60, Size: 500}}},
		{BestAsk: 0.50, Asks: []domain.PriceLevel{{Price: 0.50, Size: 1000}}},
		{BestAsk: 0.10, Asks: []domain.PriceLevel{{Price: 0.10, Size: 5}, {Price: 0.90, Size: 5}}},
	}
	sizes := []float64{1, 10, 100, 10000}

	for _, book := range books {
		worst := book.Asks[len(book.Asks)-1].Price
		for _, size := range sizes {
			est := EstimateSlippage(book, size, domain.OrderSideBuy)
			assert.GreaterOrEqual(t, est.ExecutionPrice, book.BestAsk)
			assert.LessOrEqual(t, est.ExecutionPrice, worst)
		}
	}
}
