package strategy

import (
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

func quote(venue domain.Venue, market string, yes, no float64) domain.MarketQuote {
	return domain.MarketQuote{
		Venue:     venue,
		MarketID:  market,
		YesPrice:  yes,
		NoPrice:   no,
		Timestamp: time.Now().UTC(),
	}
}

func TestRebalancingDetectBuyBoth(t *testing.T) {
	d := NewRebalancingDetector(DefaultConfig(), testLogger())

	opp := d.Detect(quote(domain.VenuePolymarket, "mkt-1", 0.48, 0.49), nil)
	require.NotNil(t, opp)

	assert.Equal(t, domain.StrategyRebalancing, opp.Kind)
	require.NotNil(t, opp.Rebalancing)
	assert.Equal(t, domain.RebalancingBuyBoth, opp.Rebalancing.Side)
	assert.InDelta(t, 0.97, opp.Rebalancing.PriceSum, 1e-9)
	assert.InDelta(t, 0.03, opp.Rebalancing.Deviation, 1e-9)
	assert.NotEmpty(t, opp.ID)
}

func TestRebalancingDetectSellBoth(t *testing.T) {
	d := NewRebalancingDetector(DefaultConfig(), testLogger())

	opp := d.Detect(quote(domain.VenueKalshi, "mkt-1", 0.55, 0.50), nil)
	require.NotNil(t, opp)
	assert.Equal(t, domain.RebalancingSellBoth, opp.Rebalancing.Side)
	assert.InDelta(t, 0.05, opp.Rebalancing.Deviation, 1e-9)
}

func TestRebalancingDetectBelowThreshold(t *testing.T) {
	d := NewRebalancingDetector(DefaultConfig(), testLogger())

	// Sum 0.99: one cent of deviation, threshold is two.
	assert.Nil(t, d.Detect(quote(domain.VenuePolymarket, "mkt-1", 0.49, 0.50), nil))
	// Perfectly priced.
	assert.Nil(t, d.Detect(quote(domain.VenuePolymarket, "mkt-1", 0.50, 0.50), nil))
}

func TestRebalancingDetectRejectsStaleAndIncompleteQuotes(t *testing.T) {
	d := NewRebalancingDetector(DefaultConfig(), testLogger())

	stale := quote(domain.VenuePolymarket, "mkt-1", 0.48, 0.49)
	stale.Timestamp = time.Now().UTC().Add(-time.Minute)
	assert.Nil(t, d.Detect(stale, nil))

	assert.Nil(t, d.Detect(quote(domain.VenuePolymarket, "mkt-1", 0, 0.49), nil))
	assert.Nil(t, d.Detect(quote(domain.VenuePolymarket, "mkt-1", 0.48, 0), nil))
}

func entailmentSignal(direction domain.RelationDirection, confidence float64) domain.RelationshipSignal {
	return domain.RelationshipSignal{
		MarketAID:  "mkt-a",
		MarketBID:  "mkt-b",
		Kind:       domain.RelationEntailment,
		Direction:  direction,
		Confidence: confidence,
		CreatedAt:  time.Now().UTC(),
	}
}

func TestCombinatorialDetectEntailmentAImpliesB(t *testing.T) {
	d := NewCombinatorialDetector(DefaultConfig(), testLogger())

	// A implies B, yet A trades 13 cents over B.
	opp := d.Detect(
		quote(domain.VenuePolymarket, "mkt-a", 0.65, 0.35),
		quote(domain.VenueKalshi, "mkt-b", 0.52, 0.48),
		entailmentSignal(domain.DirectionAImpliesB, 0.9),
		nil, nil,
	)
	require.NotNil(t, opp)

	assert.Equal(t, domain.StrategyCombinatorial, opp.Kind)
	require.NotNil(t, opp.Combinatorial)
	assert.Equal(t, "mkt-a", opp.Combinatorial.ShortMarket)
	assert.Equal(t, "mkt-b", opp.Combinatorial.LongMarket)
	assert.Equal(t, 0.65, opp.Combinatorial.PriceA)
	assert.Equal(t, 0.52, opp.Combinatorial.PriceB)
}

func TestCombinatorialDetectEntailmentBImpliesA(t *testing.T) {
	d := NewCombinatorialDetector(DefaultConfig(), testLogger())

	opp := d.Detect(
		quote(domain.VenuePolymarket, "mkt-a", 0.40, 0.60),
		quote(domain.VenueKalshi, "mkt-b", 0.55, 0.45),
		entailmentSignal(domain.DirectionBImpliesA, 0.85),
		nil, nil,
	)
	require.NotNil(t, opp)
	assert.Equal(t, "mkt-b", opp.Combinatorial.ShortMarket)
	assert.Equal(t, "mkt-a", opp.Combinatorial.LongMarket)
}

func TestCombinatorialDetectEntailmentConsistentPricesNoTrade(t *testing.T) {
	d := NewCombinatorialDetector(DefaultConfig(), testLogger())

	// A implies B and A trades below B: the constraint holds.
	assert.Nil(t, d.Detect(
		quote(domain.VenuePolymarket, "mkt-a", 0.40, 0.60),
		quote(domain.VenueKalshi, "mkt-b", 0.55, 0.45),
		entailmentSignal(domain.DirectionAImpliesB, 0.9),
		nil, nil,
	))
}

func TestCombinatorialDetectComplementary(t *testing.T) {
	d := NewCombinatorialDetector(DefaultConfig(), testLogger())
	sig := domain.RelationshipSignal{
		MarketAID:  "mkt-a",
		MarketBID:  "mkt-b",
		Kind:       domain.RelationComplementary,
		Direction:  domain.DirectionSymmetric,
		Confidence: 0.9,
		CreatedAt:  time.Now().UTC(),
	}

	// Implied A = 1 - 0.40 = 0.60, A trades at 0.70: short A.
	opp := d.Detect(
		quote(domain.VenuePolymarket, "mkt-a", 0.70, 0.30),
		quote(domain.VenueKalshi, "mkt-b", 0.40, 0.60),
		sig, nil, nil,
	)
	require.NotNil(t, opp)
	assert.Equal(t, "mkt-a", opp.Combinatorial.ShortMarket)

	// A trades at 0.50, 10 cents under implied: long A.
	opp = d.Detect(
		quote(domain.VenuePolymarket, "mkt-a", 0.50, 0.50),
		quote(domain.VenueKalshi, "mkt-b", 0.40, 0.60),
		sig, nil, nil,
	)
	require.NotNil(t, opp)
	assert.Equal(t, "mkt-a", opp.Combinatorial.LongMarket)
}

func TestCombinatorialDetectMutuallyExclusive(t *testing.T) {
	d := NewCombinatorialDetector(DefaultConfig(), testLogger())
	sig := domain.RelationshipSignal{
		MarketAID:  "mkt-a",
		MarketBID:  "mkt-b",
		Kind:       domain.RelationMutuallyExclusive,
		Direction:  domain.DirectionSymmetric,
		Confidence: 0.8,
		CreatedAt:  time.Now().UTC(),
	}

	// Sum 1.10 with A the dearer side: short A.
	opp := d.Detect(
		quote(domain.VenuePolymarket, "mkt-a", 0.62, 0.38),
		quote(domain.VenueKalshi, "mkt-b", 0.48, 0.52),
		sig, nil, nil,
	)
	require.NotNil(t, opp)
	assert.Equal(t, "mkt-a", opp.Combinatorial.ShortMarket)
	assert.Equal(t, "mkt-b", opp.Combinatorial.LongMarket)

	// Sum 0.95: constraint holds.
	assert.Nil(t, d.Detect(
		quote(domain.VenuePolymarket, "mkt-a", 0.50, 0.50),
		quote(domain.VenueKalshi, "mkt-b", 0.45, 0.55),
		sig, nil, nil,
	))
}

func TestCombinatorialDetectGates(t *testing.T) {
	d := NewCombinatorialDetector(DefaultConfig(), testLogger())
	qA := quote(domain.VenuePolymarket, "mkt-a", 0.65, 0.35)
	qB := quote(domain.VenueKalshi, "mkt-b", 0.52, 0.48)

	// Confidence below 0.7.
	assert.Nil(t, d.Detect(qA, qB, entailmentSignal(domain.DirectionAImpliesB, 0.5), nil, nil))

	// Independent pairs never trade, regardless of prices.
	indep := entailmentSignal(domain.DirectionAImpliesB, 0.99)
	indep.Kind = domain.RelationIndependent
	assert.Nil(t, d.Detect(qA, qB, indep, nil, nil))

	// Contradiction is not tradeable either: both can resolve NO.
	contra := entailmentSignal(domain.DirectionNone, 0.99)
	contra.Kind = domain.RelationContradiction
	assert.Nil(t, d.Detect(qA, qB, contra, nil, nil))

	// Stale quote on either side.
	staleA := qA
	staleA.Timestamp = time.Now().UTC().Add(-time.Minute)
	assert.Nil(t, d.Detect(staleA, qB, entailmentSignal(domain.DirectionAImpliesB, 0.9), nil, nil))
}
