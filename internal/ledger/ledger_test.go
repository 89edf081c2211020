package ledger

import (
	"context"
	"errors"
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

func testLedger(t *testing.T, opts ...Option) *Ledger {
	t.Helper()
	return New(Defaults(), testLogger(), opts...)
}

func request(usd float64, markets ...string) CapitalRequest {
	if len(markets) == 0 {
		markets = []string{"mkt-1"}
	}
	return CapitalRequest{
		OpportunityID: "opp-1",
		Strategy:      domain.StrategyRebalancing,
		RequestedUSD:  usd,
		MarketIDs:     markets,
	}
}

// openPosition drives authorize + recordOpen in one step for tests that
// only care about resulting exposure.
func openPosition(t *testing.T, l *Ledger, usd float64, markets ...string) domain.Position {
	t.Helper()
	ctx := context.Background()
	alloc, err := l.Authorize(ctx, request(usd, markets...))
	require.NoError(t, err)
	marketB := ""
	if len(markets) > 1 {
		marketB = markets[1]
	}
	market := "mkt-1"
	if len(markets) > 0 {
		market = markets[0]
	}
	pos, err := l.RecordOpen(ctx, alloc, market, marketB, 0.50, domain.OrderSideBuy)
	require.NoError(t, err)
	return pos
}

func TestAuthorizeApprovesWithinLimits(t *testing.T) {
	l := testLedger(t)

	alloc, err := l.Authorize(context.Background(), request(500))
	require.NoError(t, err)

	assert.Equal(t, 500.0, alloc.ApprovedUSD)
	assert.Equal(t, 5.0, alloc.CapitalPct)
	assert.NotEmpty(t, alloc.ID)
	assert.True(t, alloc.ExpiresAt.After(alloc.CreatedAt))
}

func TestAuthorizeRejectsOversizedPosition(t *testing.T) {
	l := testLedger(t)

	// 10% of $10k is the per-position cap.
	_, err := l.Authorize(context.Background(), request(1001))

	var rej *domain.Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, domain.RejectPositionSize, rej.Reason)
	assert.Equal(t, 1000.0, rej.AvailableUSD)
}

func TestAuthorizeRejectsWhenTotalExposureExhausted(t *testing.T) {
	l := testLedger(t)

	// Fill 80% of $10k with eight $1000 positions on distinct markets.
	for i := 0; i < 8; i++ {
		openPosition(t, l, 1000, "mkt-"+string(rune('a'+i)))
	}

	_, err := l.Authorize(context.Background(), request(100, "mkt-z"))

	var rej *domain.Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, domain.RejectTotalExposure, rej.Reason)
}

func TestAuthorizeRejectsLiquidityCap(t *testing.T) {
	l := testLedger(t)

	req := request(600)
	req.AvailableLiquidity = 1000 // cap is 50% = $500

	_, err := l.Authorize(context.Background(), req)

	var rej *domain.Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, domain.RejectLiquidityCap, rej.Reason)
	assert.Equal(t, 500.0, rej.AvailableUSD)
}

func TestAuthorizeSkipsLiquidityCapWhenDepthUnknown(t *testing.T) {
	l := testLedger(t)

	req := request(600)
	req.AvailableLiquidity = 0

	_, err := l.Authorize(context.Background(), req)
	assert.NoError(t, err)
}

func TestAuthorizeRejectsMarketExposureCap(t *testing.T) {
	l := testLedger(t)

	// 20% of $10k = $2000 per-market cap.
	openPosition(t, l, 1000, "mkt-hot")
	openPosition(t, l, 900, "mkt-hot")

	_, err := l.Authorize(context.Background(), request(200, "mkt-hot"))

	var rej *domain.Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, domain.RejectMarketExposure, rej.Reason)
}

func TestAuthorizeCheckOrderPositionSizeFirst(t *testing.T) {
	l := testLedger(t)

	// Oversized AND over the liquidity cap: position-size must win.
	req := request(2000)
	req.AvailableLiquidity = 100

	_, err := l.Authorize(context.Background(), req)

	var rej *domain.Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, domain.RejectPositionSize, rej.Reason)
}

func TestRejectionCreatesNoState(t *testing.T) {
	l := testLedger(t)

	_, err := l.Authorize(context.Background(), request(5000))
	require.Error(t, err)

	assert.Zero(t, l.Exposure().TotalExposureUSD)
	assert.Empty(t, l.OpenPositions())
}

// Exposure never exceeds the total cap no matter what sequence of
// requests is thrown at the ledger.
func TestTotalExposureNeverExceedsCap(t *testing.T) {
	l := testLedger(t)
	maxTotal := 10_000 * 0.80

	sizes := []float64{900, 1000, 400, 1000, 1000, 700, 1000, 1000, 1000, 1000, 600}
	for i, usd := range sizes {
		market := "mkt-" + string(rune('a'+i))
		alloc, err := l.Authorize(context.Background(), request(usd, market))
		if err != nil {
			var rej *domain.Rejection
			require.ErrorAs(t, err, &rej)
			continue
		}
		_, err = l.RecordOpen(context.Background(), alloc, market, "", 0.50, domain.OrderSideBuy)
		require.NoError(t, err)
		assert.LessOrEqual(t, l.Exposure().TotalExposureUSD, maxTotal)
	}
}

func TestRecordOpenRejectsExpiredAllocation(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := &now
	l := New(Defaults(), testLogger(), WithClock(func() time.Time { return *clock }))

	alloc, err := l.Authorize(context.Background(), request(500))
	require.NoError(t, err)

	later := now.Add(time.Minute)
	clock = &later

	_, err = l.RecordOpen(context.Background(), alloc, "mkt-1", "", 0.50, domain.OrderSideBuy)
	assert.ErrorIs(t, err, domain.ErrAllocationExpired)
}

func TestRecordOpenRejectsDoubleConsume(t *testing.T) {
	l := testLedger(t)
	ctx := context.Background()

	alloc, err := l.Authorize(ctx, request(500))
	require.NoError(t, err)

	_, err = l.RecordOpen(ctx, alloc, "mkt-1", "", 0.50, domain.OrderSideBuy)
	require.NoError(t, err)

	_, err = l.RecordOpen(ctx, alloc, "mkt-1", "", 0.50, domain.OrderSideBuy)
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
}

func TestRecordCloseLongPnL(t *testing.T) {
	l := testLedger(t)
	pos := openPosition(t, l, 1000) // long at 0.50

	closed, err := l.RecordClose(context.Background(), pos.ID, 0.55, 2.0)
	require.NoError(t, err)

	// (0.55-0.50)/0.50 = +10%, $100 gross, minus $2 fees.
	assert.InDelta(t, 10.0, closed.PnLPct, 1e-9)
	assert.InDelta(t, 98.0, closed.PnLUSD, 1e-9)
	assert.Equal(t, domain.PositionClosed, closed.Status)
	require.NotNil(t, closed.ExitPrice)
	assert.Equal(t, 0.55, *closed.ExitPrice)
}

func TestRecordCloseShortPnL(t *testing.T) {
	l := testLedger(t)
	ctx := context.Background()

	alloc, err := l.Authorize(ctx, request(1000))
	require.NoError(t, err)
	pos, err := l.RecordOpen(ctx, alloc, "mkt-1", "", 0.60, domain.OrderSideSell)
	require.NoError(t, err)

	// Short entered at 0.60, price fell to 0.45: profit.
	closed, err := l.RecordClose(ctx, pos.ID, 0.45, 0)
	require.NoError(t, err)
	assert.InDelta(t, 25.0, closed.PnLPct, 1e-9)
	assert.InDelta(t, 250.0, closed.PnLUSD, 1e-9)
}

func TestRecordCloseFreesCapital(t *testing.T) {
	l := testLedger(t)
	pos := openPosition(t, l, 1000)
	require.Equal(t, 1000.0, l.Exposure().TotalExposureUSD)

	_, err := l.RecordClose(context.Background(), pos.ID, 0.50, 0)
	require.NoError(t, err)

	assert.Zero(t, l.Exposure().TotalExposureUSD)
}

func TestRecordCloseRejectsNonOpenPosition(t *testing.T) {
	l := testLedger(t)
	pos := openPosition(t, l, 500)

	_, err := l.RecordClose(context.Background(), pos.ID, 0.55, 0)
	require.NoError(t, err)

	_, err = l.RecordClose(context.Background(), pos.ID, 0.60, 0)
	assert.ErrorIs(t, err, domain.ErrPositionNotOpen)

	_, err = l.RecordClose(context.Background(), "no-such-id", 0.60, 0)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRecordSettlementUsesExplicitPnL(t *testing.T) {
	l := testLedger(t)
	pos := openPosition(t, l, 1000)

	closed, err := l.RecordSettlement(context.Background(), pos.ID, 30.0, 4.0)
	require.NoError(t, err)

	assert.InDelta(t, 26.0, closed.PnLUSD, 1e-9)
	assert.InDelta(t, 2.6, closed.PnLPct, 1e-9)
	assert.Equal(t, domain.PositionClosed, closed.Status)
	assert.Zero(t, l.Exposure().TotalExposureUSD)

	sum := l.PnLSummary(domain.PnLFilter{})
	assert.Equal(t, 1, sum.TotalTrades)
	assert.InDelta(t, 26.0, sum.TotalPnLUSD, 1e-9)
}

func TestRecordFailureReleasesCapital(t *testing.T) {
	l := testLedger(t)
	pos := openPosition(t, l, 1000)

	failed, err := l.RecordFailure(context.Background(), pos.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.PositionFailed, failed.Status)
	assert.Zero(t, l.Exposure().TotalExposureUSD)
	// Failed positions produce no PnL record.
	assert.Zero(t, l.PnLSummary(domain.PnLFilter{}).TotalTrades)
}

func TestDiversificationScore(t *testing.T) {
	l := testLedger(t)

	// No positions: perfectly diversified by definition.
	assert.Equal(t, 1.0, l.Exposure().DiversificationScore)

	// Single market: fully concentrated, score 0.
	openPosition(t, l, 1000, "mkt-a")
	assert.InDelta(t, 0.0, l.Exposure().DiversificationScore, 1e-9)

	// Two equal markets: HHI 0.5, score 0.5.
	openPosition(t, l, 1000, "mkt-b")
	assert.InDelta(t, 0.5, l.Exposure().DiversificationScore, 1e-9)
}

func TestExposureGroupsByMarketAndStrategy(t *testing.T) {
	l := testLedger(t)
	ctx := context.Background()

	openPosition(t, l, 1000, "mkt-a")

	alloc, err := l.Authorize(ctx, CapitalRequest{
		OpportunityID: "opp-2",
		Strategy:      domain.StrategyCombinatorial,
		RequestedUSD:  600,
		MarketIDs:     []string{"mkt-b", "mkt-c"},
	})
	require.NoError(t, err)
	_, err = l.RecordOpen(ctx, alloc, "mkt-b", "mkt-c", 0.40, domain.OrderSideBuy)
	require.NoError(t, err)

	m := l.Exposure()
	assert.Equal(t, 1600.0, m.TotalExposureUSD)
	assert.Equal(t, 1000.0, m.ExposureByMarket["mkt-a"])
	// Combinatorial exposure counts toward both legs' markets.
	assert.Equal(t, 600.0, m.ExposureByMarket["mkt-b"])
	assert.Equal(t, 600.0, m.ExposureByMarket["mkt-c"])
	assert.Equal(t, 1000.0, m.ExposureByStrategy[domain.StrategyRebalancing])
	assert.Equal(t, 600.0, m.ExposureByStrategy[domain.StrategyCombinatorial])
}

func TestSuggestPositionSize(t *testing.T) {
	l := testLedger(t)

	// Unconstrained: per-position cap.
	assert.Equal(t, 1000.0, l.SuggestPositionSize(0, 0))

	// Liquidity-bound: half of $800 depth.
	assert.Equal(t, 400.0, l.SuggestPositionSize(800, 0))

	// Caller cap below everything else.
	assert.Equal(t, 250.0, l.SuggestPositionSize(800, 250))

	// Remaining capacity binds once the book is nearly full.
	for i := 0; i < 7; i++ {
		openPosition(t, l, 1000, "mkt-"+string(rune('a'+i)))
	}
	openPosition(t, l, 700, "mkt-z")
	assert.Equal(t, 300.0, l.SuggestPositionSize(0, 0))

	openPosition(t, l, 300, "mkt-y")
	assert.Zero(t, l.SuggestPositionSize(0, 0))
}

func TestPnLSummaryFiltersAndWinRate(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	clock := now
	l := New(Defaults(), testLogger(), WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	open := func(strategy domain.StrategyKind, usd float64, market string) domain.Position {
		alloc, err := l.Authorize(ctx, CapitalRequest{
			OpportunityID: "opp",
			Strategy:      strategy,
			RequestedUSD:  usd,
			MarketIDs:     []string{market},
		})
		require.NoError(t, err)
		pos, err := l.RecordOpen(ctx, alloc, market, "", 0.50, domain.OrderSideBuy)
		require.NoError(t, err)
		return pos
	}

	p1 := open(domain.StrategyRebalancing, 1000, "mkt-a")
	_, err := l.RecordClose(ctx, p1.ID, 0.55, 0) // +$100
	require.NoError(t, err)

	clock = now.Add(time.Hour)
	p2 := open(domain.StrategyCombinatorial, 1000, "mkt-b")
	_, err = l.RecordClose(ctx, p2.ID, 0.45, 0) // -$100
	require.NoError(t, err)

	clock = now.Add(2 * time.Hour)
	p3 := open(domain.StrategyRebalancing, 1000, "mkt-c")
	_, err = l.RecordClose(ctx, p3.ID, 0.51, 0) // +$20
	require.NoError(t, err)

	all := l.PnLSummary(domain.PnLFilter{})
	assert.Equal(t, 3, all.TotalTrades)
	assert.Equal(t, 2, all.WinningTrades)
	assert.Equal(t, 1, all.LosingTrades)
	assert.InDelta(t, 20.0, all.TotalPnLUSD, 1e-9)
	assert.InDelta(t, 66.666, all.WinRatePct, 0.01)

	reb := l.PnLSummary(domain.PnLFilter{Strategy: domain.StrategyRebalancing})
	assert.Equal(t, 2, reb.TotalTrades)
	assert.InDelta(t, 120.0, reb.TotalPnLUSD, 1e-9)

	recent := l.PnLSummary(domain.PnLFilter{Since: now.Add(90 * time.Minute)})
	assert.Equal(t, 1, recent.TotalTrades)
	assert.InDelta(t, 20.0, recent.TotalPnLUSD, 1e-9)
}

// failingPositionStore errors on every write so the test can assert
// persistence failures never block capital accounting.
type failingPositionStore struct{}

func (failingPositionStore) Create(context.Context, domain.Position) error { return errors.New("down") }
func (failingPositionStore) Update(context.Context, domain.Position) error { return errors.New("down") }
func (failingPositionStore) GetByID(context.Context, string) (domain.Position, error) {
	return domain.Position{}, domain.ErrNotFound
}
func (failingPositionStore) ListOpen(context.Context) ([]domain.Position, error) { return nil, nil }
func (failingPositionStore) ListHistory(context.Context, domain.ListOpts) ([]domain.Position, error) {
	return nil, nil
}

func TestStoreFailureDoesNotBlockAccounting(t *testing.T) {
	l := testLedger(t, WithStores(failingPositionStore{}, nil, nil))

	pos := openPosition(t, l, 1000)
	assert.Equal(t, 1000.0, l.Exposure().TotalExposureUSD)

	_, err := l.RecordClose(context.Background(), pos.ID, 0.55, 0)
	assert.NoError(t, err)
}

func TestSnapshotState(t *testing.T) {
	l := testLedger(t)
	ctx := context.Background()

	p1 := openPosition(t, l, 1000, "mkt-a")
	openPosition(t, l, 500, "mkt-b")
	_, err := l.RecordClose(ctx, p1.ID, 0.55, 0)
	require.NoError(t, err)

	snap := l.SnapshotState()
	assert.Equal(t, 10_000.0, snap.TotalCapital)
	assert.Len(t, snap.OpenPositions, 1)
	assert.Len(t, snap.PnLHistory, 1)
	assert.InDelta(t, 100.0, snap.RealizedPnLUSD, 1e-9)
	assert.Equal(t, 500.0, snap.Exposure.TotalExposureUSD)
}
