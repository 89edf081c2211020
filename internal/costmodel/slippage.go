package costmodel

import (
	"math"

	"github.com/alanyoungcy/predarb/internal/domain"
)

// DefaultSlippagePct is the conservative slippage assumption applied when
// no depth data is available. Absence of a book must never be treated as
// zero slippage.
const DefaultSlippagePct = 0.5

// defaultSlippage builds the conservative estimate used when the book is
// missing or empty.
func defaultSlippage(orderSizeUSD float64) domain.SlippageEstimate {
	return domain.SlippageEstimate{
		BestPrice:      0.5,
		ExecutionPrice: 0.5 * (1 + DefaultSlippagePct/100),
		SlippagePct:    DefaultSlippagePct,
		SlippageUSD:    orderSizeUSD * DefaultSlippagePct / 100,
		BookMissing:    true,
	}
}

// EstimateSlippage walks the book from the best price outward, accumulating
// size until orderSizeUSD is filled or depth is exhausted. The execution
// price is the size-weighted average of consumed levels; slippage is the
// relative distance from the best quoted price, expressed in USD on the
// order size. Buys consume asks, sells consume bids.
func EstimateSlippage(book *domain.OrderBookSnapshot, orderSizeUSD float64, side domain.OrderSide) domain.SlippageEstimate {
	if book == nil {
		return defaultSlippage(orderSizeUSD)
	}

	levels := book.Asks
	best := book.BestAsk
	if side == domain.OrderSideSell {
		levels = book.Bids
		best = book.BestBid
	}
	if len(levels) == 0 || best <= 0 {
		return defaultSlippage(orderSizeUSD)
	}

	var (
		totalFilled float64
		weightedSum float64
		liquidity   float64
	)
	for _, level := range levels {
		liquidity += level.Size
		if totalFilled >= orderSizeUSD {
			continue
		}
		fill := math.Min(level.Size, orderSizeUSD-totalFilled)
		weightedSum += level.Price * fill
		totalFilled += fill
	}

	if totalFilled == 0 {
		return domain.SlippageEstimate{
			BestPrice:          best,
			ExecutionPrice:     best,
			AvailableLiquidity: liquidity,
		}
	}

	execPrice := weightedSum / totalFilled
	slippagePct := math.Abs(execPrice-best) / best * 100

	return domain.SlippageEstimate{
		BestPrice:          best,
		ExecutionPrice:     execPrice,
		SlippagePct:        slippagePct,
		SlippageUSD:        orderSizeUSD * slippagePct / 100,
		AvailableLiquidity: liquidity,
	}
}
