package analyzer

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/predarb/internal/costmodel"
	"github.com/alanyoungcy/predarb/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newAnalyzer(marginPct float64) *Analyzer {
	logger := testLogger()
	fees := costmodel.NewFeeRegistry(nil, logger)
	gas := costmodel.NewGasModel(nil, 1.0, logger)
	return New(fees, gas, Config{MinProfitMarginPct: marginPct}, logger)
}

func entailmentOpportunity(size float64) domain.Opportunity {
	return domain.Opportunity{
		ID:           "opp-entail-1",
		Kind:         domain.StrategyCombinatorial,
		PositionSize: size,
		Combinatorial: &domain.CombinatorialOpportunity{
			MarketA:     "mkt-a",
			MarketB:     "mkt-b",
			VenueA:      domain.VenuePolymarket,
			VenueB:      domain.VenueKalshi,
			PriceA:      0.65,
			PriceB:      0.52,
			LongMarket:  "mkt-b",
			ShortMarket: "mkt-a",
			Signal: domain.RelationshipSignal{
				MarketAID:  "mkt-a",
				MarketBID:  "mkt-b",
				Kind:       domain.RelationEntailment,
				Direction:  domain.DirectionAImpliesB,
				Confidence: 0.9,
			},
		},
		DetectedAt: time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC),
	}
}

func TestAnalyzeEntailmentPair(t *testing.T) {
	a := newAnalyzer(2.5)
	gwei := 30.0
	now := time.Date(2026, 1, 5, 12, 0, 1, 0, time.UTC)

	analysis, err := a.Analyze(context.Background(), entailmentOpportunity(100), &gwei, now)
	require.NoError(t, err)

	// |0.65-0.52| * $100.
	assert.InDelta(t, 13.00, analysis.GrossSpreadUSD, 1e-9)
	assert.InDelta(t, 20.0, analysis.GrossSpreadPct, 1e-9) // 0.13/0.65

	// Polymarket 2% + Kalshi 1.5% (price 0.52 is mid-bracket).
	assert.InDelta(t, 3.50, analysis.Costs.PlatformFeesUSD, 1e-9)
	// Two legs of 150k gas units at 30 gwei, $1 native token.
	assert.InDelta(t, 0.009, analysis.Costs.GasCostsUSD, 1e-9)
	// No books on either side: 0.5% conservative default per leg.
	assert.InDelta(t, 1.00, analysis.Costs.SlippageUSD, 1e-9)
	assert.InDelta(t, 4.509, analysis.Costs.TotalUSD, 1e-9)

	assert.InDelta(t, 8.491, analysis.NetProfitUSD, 1e-9)
	assert.InDelta(t, 8.491, analysis.NetProfitPct, 1e-9)
	assert.InDelta(t, 4.509, analysis.BreakEvenSpreadPct, 1e-9)
	assert.InDelta(t, 7.009, analysis.MinRequiredPct, 1e-9)

	// Verdict must match the margin rule exactly.
	assert.Equal(t, analysis.NetProfitPct >= 2.5, analysis.IsProfitable)
	assert.Contains(t, analysis.RiskFactors, "missing order book data, using conservative estimates")
	assert.Equal(t, now, analysis.Timestamp)
}

func TestAnalyzeNotProfitableWhenCostsDominate(t *testing.T) {
	// Margin so high the 8.49% net cannot clear it.
	a := newAnalyzer(9.0)
	gwei := 30.0

	analysis, err := a.Analyze(context.Background(), entailmentOpportunity(100), &gwei, time.Now().UTC())
	require.NoError(t, err)

	assert.False(t, analysis.IsProfitable)
}

// Boundary equality counts as profitable.
func TestAnalyzeBoundaryEqualityIsProfitable(t *testing.T) {
	gwei := 30.0
	probe, err := newAnalyzer(0).Analyze(context.Background(), entailmentOpportunity(100), &gwei, time.Now().UTC())
	require.NoError(t, err)

	a := newAnalyzer(probe.NetProfitPct)
	analysis, err := a.Analyze(context.Background(), entailmentOpportunity(100), &gwei, time.Now().UTC())
	require.NoError(t, err)

	assert.True(t, analysis.IsProfitable)
	assert.InDelta(t, a.cfg.MinProfitMarginPct, analysis.NetProfitPct, 1e-9)
}

func TestAnalyzeRebalancing(t *testing.T) {
	a := newAnalyzer(0.5)
	gwei := 30.0

	opp := domain.Opportunity{
		ID:           "opp-rebal-1",
		Kind:         domain.StrategyRebalancing,
		PositionSize: 100,
		Rebalancing: &domain.RebalancingOpportunity{
			Venue:     domain.VenuePolymarket,
			MarketID:  "mkt-1",
			YesPrice:  0.48,
			NoPrice:   0.49,
			PriceSum:  0.97,
			Deviation: 0.03,
			Side:      domain.RebalancingBuyBoth,
		},
	}

	analysis, err := a.Analyze(context.Background(), opp, &gwei, time.Now().UTC())
	require.NoError(t, err)

	assert.InDelta(t, 3.00, analysis.GrossSpreadUSD, 1e-9)
	assert.InDelta(t, 3.00, analysis.GrossSpreadPct, 1e-9)
	// Both legs on Polymarket: 2% + 2% winner fees.
	assert.InDelta(t, 4.00, analysis.Costs.PlatformFeesUSD, 1e-9)
}

func TestAnalyzeRiskFactorHighSlippage(t *testing.T) {
	a := newAnalyzer(2.5)
	gwei := 30.0

	// Thin book forces a large walk: most of the fill lands far from best.
	opp := entailmentOpportunity(100)
	opp.Combinatorial.OrderBookA = &domain.OrderBookSnapshot{
		BestBid: 0.65,
		Bids: []domain.PriceLevel{
			{Price: 0.65, Size: 5},
			{Price: 0.40, Size: 500},
		},
	}

	analysis, err := a.Analyze(context.Background(), opp, &gwei, time.Now().UTC())
	require.NoError(t, err)

	assert.Contains(t, analysis.RiskFactors, "high slippage risk (>30% of gross spread)")
}

func TestAnalyzeDeterministic(t *testing.T) {
	a := newAnalyzer(2.5)
	gwei := 42.0
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	opp := entailmentOpportunity(250)

	first, err := a.Analyze(context.Background(), opp, &gwei, now)
	require.NoError(t, err)
	second, err := a.Analyze(context.Background(), opp, &gwei, now)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestAnalyzeRejectsMalformedOpportunity(t *testing.T) {
	a := newAnalyzer(2.5)

	_, err := a.Analyze(context.Background(), domain.Opportunity{ID: "bad", Kind: domain.StrategyCombinatorial}, nil, time.Now().UTC())
	assert.ErrorIs(t, err, domain.ErrInvalidOpportunity)
}
