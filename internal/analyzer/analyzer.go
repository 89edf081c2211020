// Package analyzer combines the cost model with raw price spreads to
// produce a net-profit verdict and break-even threshold per opportunity.
package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/alanyoungcy/predarb/internal/costmodel"
	"github.com/alanyoungcy/predarb/internal/domain"
)

// Config holds the tunable parameters of the analyzer.
type Config struct {
	// MinProfitMarginPct is the minimum net profit (as % of position
	// size) required to call an opportunity profitable.
	MinProfitMarginPct float64
}

// legInput is what the analyzer needs to cost one leg.
type legInput struct {
	venue domain.Venue
	price float64
	side  domain.OrderSide
	book  *domain.OrderBookSnapshot
}

// Analyzer produces a ProfitabilityAnalysis for an opportunity. It holds
// no mutable state; identical inputs always yield identical output (the
// timestamp is an explicit argument, and the gas price can be pinned via
// gasPriceGwei to remove the one I/O dependency).
type Analyzer struct {
	fees   *costmodel.FeeRegistry
	gas    *costmodel.GasModel
	cfg    Config
	logger *slog.Logger
}

// New creates an Analyzer.
func New(fees *costmodel.FeeRegistry, gas *costmodel.GasModel, cfg Config, logger *slog.Logger) *Analyzer {
	return &Analyzer{
		fees:   fees,
		gas:    gas,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "analyzer")),
	}
}

// Analyze computes the full cost and profitability breakdown for the
// opportunity. gasPriceGwei may be nil, in which case the gas model
// fetches or defaults. Risk factors are reported as an auditable list,
// never as errors; the caller decides whether any factor disqualifies.
func (a *Analyzer) Analyze(ctx context.Context, opp domain.Opportunity, gasPriceGwei *float64, now time.Time) (domain.ProfitabilityAnalysis, error) {
	legA, legB, grossPct, err := a.legs(opp)
	if err != nil {
		return domain.ProfitabilityAnalysis{}, err
	}

	size := opp.PositionSize
	grossUSD := opp.SpreadUSD()

	// Platform fees for both legs, assuming both legs settle as winners
	// (the conservative case for winner-fee venues).
	priceA, priceB := legA.price, legB.price
	feeA := a.fees.PlatformFee(legA.venue, size, &priceA, true)
	feeB := a.fees.PlatformFee(legB.venue, size, &priceB, true)

	// One gas unit per leg.
	gasEst := a.gas.Estimate(ctx, 2*costmodel.DefaultGasUnits, gasPriceGwei)

	slipA := costmodel.EstimateSlippage(legA.book, size, legA.side)
	slipB := costmodel.EstimateSlippage(legB.book, size, legB.side)

	costs := domain.TransactionCosts{
		PlatformFeesUSD: feeA + feeB,
		GasCostsUSD:     gasEst.CostUSD,
		SlippageUSD:     slipA.SlippageUSD + slipB.SlippageUSD,
	}
	costs.TotalUSD = costs.PlatformFeesUSD + costs.GasCostsUSD + costs.SlippageUSD
	if size > 0 {
		costs.TotalPct = costs.TotalUSD / size * 100
	}

	netUSD := grossUSD - costs.TotalUSD
	netPct := 0.0
	if size > 0 {
		netPct = netUSD / size * 100
	}

	breakEvenPct := costs.TotalPct
	minRequiredPct := breakEvenPct + a.cfg.MinProfitMarginPct

	analysis := domain.ProfitabilityAnalysis{
		OpportunityID:      opp.ID,
		GrossSpreadUSD:     grossUSD,
		GrossSpreadPct:     grossPct,
		Costs:              costs,
		NetProfitUSD:       netUSD,
		NetProfitPct:       netPct,
		IsProfitable:       netPct >= a.cfg.MinProfitMarginPct,
		BreakEvenSpreadPct: breakEvenPct,
		MinRequiredPct:     minRequiredPct,
		RiskFactors:        riskFactors(grossUSD, grossPct, minRequiredPct, costs, slipA, slipB),
		Timestamp:          now,
	}

	a.logger.DebugContext(ctx, "analyzer: opportunity analyzed",
		slog.String("opp_id", opp.ID),
		slog.Float64("gross_usd", grossUSD),
		slog.Float64("net_pct", netPct),
		slog.Bool("profitable", analysis.IsProfitable),
	)

	return analysis, nil
}

// legs derives the two costed legs and the gross spread percent from the
// opportunity variant.
func (a *Analyzer) legs(opp domain.Opportunity) (legInput, legInput, float64, error) {
	switch opp.Kind {
	case domain.StrategyRebalancing:
		r := opp.Rebalancing
		if r == nil {
			return legInput{}, legInput{}, 0, fmt.Errorf("analyzer: %w: rebalancing variant missing", domain.ErrInvalidOpportunity)
		}
		side := domain.OrderSideBuy
		if r.Side == domain.RebalancingSellBoth {
			side = domain.OrderSideSell
		}
		// Both legs trade the same market's book; depth consumed by the
		// YES leg is not available again for the NO leg, so only the
		// first leg gets the book.
		legA := legInput{venue: r.Venue, price: r.YesPrice, side: side, book: r.OrderBook}
		legB := legInput{venue: r.Venue, price: r.NoPrice, side: side}
		return legA, legB, r.Deviation * 100, nil

	case domain.StrategyCombinatorial:
		c := opp.Combinatorial
		if c == nil {
			return legInput{}, legInput{}, 0, fmt.Errorf("analyzer: %w: combinatorial variant missing", domain.ErrInvalidOpportunity)
		}
		sideA, sideB := domain.OrderSideBuy, domain.OrderSideSell
		if c.ShortMarket == c.MarketA {
			sideA, sideB = domain.OrderSideSell, domain.OrderSideBuy
		}
		legA := legInput{venue: c.VenueA, price: c.PriceA, side: sideA, book: c.OrderBookA}
		legB := legInput{venue: c.VenueB, price: c.PriceB, side: sideB, book: c.OrderBookB}
		grossPct := 0.0
		if m := math.Max(c.PriceA, c.PriceB); m > 0 {
			grossPct = math.Abs(c.PriceA-c.PriceB) / m * 100
		}
		return legA, legB, grossPct, nil
	}
	return legInput{}, legInput{}, 0, fmt.Errorf("analyzer: %w: kind %q", domain.ErrInvalidOpportunity, opp.Kind)
}

// riskFactors builds the qualitative risk list. Thresholds follow the
// break-even model: slippage above 30% of the gross spread or gas above
// 20% of it erodes most of the edge.
func riskFactors(grossUSD, grossPct, minRequiredPct float64, costs domain.TransactionCosts, slipA, slipB domain.SlippageEstimate) []string {
	var factors []string
	if grossUSD > 0 && costs.SlippageUSD > grossUSD*0.3 {
		factors = append(factors, "high slippage risk (>30% of gross spread)")
	}
	if grossUSD > 0 && costs.GasCostsUSD > grossUSD*0.2 {
		factors = append(factors, "high gas costs (>20% of gross spread)")
	}
	if slipA.BookMissing || slipB.BookMissing {
		factors = append(factors, "missing order book data, using conservative estimates")
	}
	if grossPct < minRequiredPct {
		factors = append(factors, fmt.Sprintf("spread (%.2f%%) below minimum required (%.2f%%)", grossPct, minRequiredPct))
	}
	return factors
}
