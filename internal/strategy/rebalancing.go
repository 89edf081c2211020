package strategy

import (
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/predarb/internal/domain"
)

// RebalancingDetector finds single-market YES+NO mispricings. A sum below
// $1.00 means buying both outcomes locks in the deficit at resolution; a
// sum above $1.00 means selling both collects the premium.
type RebalancingDetector struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// NewRebalancingDetector creates a detector with the given thresholds.
func NewRebalancingDetector(cfg Config, logger *slog.Logger) *RebalancingDetector {
	if cfg.MinDeviation <= 0 {
		cfg.MinDeviation = defaultMinDeviation
	}
	if cfg.MaxQuoteAge <= 0 {
		cfg.MaxQuoteAge = defaultMaxQuoteAge
	}
	return &RebalancingDetector{
		cfg:    cfg,
		logger: logger.With(slog.String("strategy", "rebalancing")),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Name returns the strategy identifier.
func (d *RebalancingDetector) Name() string { return string(domain.StrategyRebalancing) }

// Detect checks one quote for a rebalancing opportunity. Returns nil when
// the quote is stale, incomplete, or the deviation is below threshold.
// The returned opportunity is unsized; the caller assigns PositionSize.
func (d *RebalancingDetector) Detect(quote domain.MarketQuote, book *domain.OrderBookSnapshot) *domain.Opportunity {
	if quote.YesPrice <= 0 || quote.NoPrice <= 0 {
		return nil
	}
	if quote.Stale(d.now(), d.cfg.MaxQuoteAge) {
		d.logger.Debug("stale quote skipped",
			slog.String("market_id", quote.MarketID),
			slog.Time("quoted_at", quote.Timestamp),
		)
		return nil
	}

	sum := quote.YesPrice + quote.NoPrice
	deviation := math.Abs(sum - 1.0)
	if deviation < d.cfg.MinDeviation {
		return nil
	}

	side := domain.RebalancingBuyBoth
	if sum > 1.0 {
		side = domain.RebalancingSellBoth
	}

	opp := &domain.Opportunity{
		ID:   uuid.New().String(),
		Kind: domain.StrategyRebalancing,
		Rebalancing: &domain.RebalancingOpportunity{
			Venue:     quote.Venue,
			MarketID:  quote.MarketID,
			YesPrice:  quote.YesPrice,
			NoPrice:   quote.NoPrice,
			PriceSum:  sum,
			Deviation: deviation,
			Side:      side,
			OrderBook: book,
		},
		DetectedAt: d.now(),
	}

	d.logger.Info("rebalancing opportunity detected",
		slog.String("market_id", quote.MarketID),
		slog.String("venue", string(quote.Venue)),
		slog.Float64("price_sum", sum),
		slog.Float64("deviation", deviation),
		slog.String("side", string(side)),
	)
	return opp
}
