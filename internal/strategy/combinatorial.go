package strategy

import (
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/predarb/internal/domain"
)

// CombinatorialDetector finds cross-market mispricings implied by a
// logical relationship between two markets. The relationship constrains
// the joint prices; a violation of the constraint is the trade.
type CombinatorialDetector struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// NewCombinatorialDetector creates a detector with the given thresholds.
func NewCombinatorialDetector(cfg Config, logger *slog.Logger) *CombinatorialDetector {
	if cfg.MinSpread <= 0 {
		cfg.MinSpread = defaultMinSpread
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = defaultMinConfidence
	}
	if cfg.MaxQuoteAge <= 0 {
		cfg.MaxQuoteAge = defaultMaxQuoteAge
	}
	return &CombinatorialDetector{
		cfg:    cfg,
		logger: logger.With(slog.String("strategy", "combinatorial")),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Name returns the strategy identifier.
func (d *CombinatorialDetector) Name() string { return string(domain.StrategyCombinatorial) }

// Detect checks a market pair against its relationship signal. Returns
// nil when the signal kind is not tradeable, confidence is too low,
// quotes are stale, or no pricing constraint is violated by at least
// MinSpread. Books are optional and passed through for slippage costing.
func (d *CombinatorialDetector) Detect(quoteA, quoteB domain.MarketQuote, signal domain.RelationshipSignal, bookA, bookB *domain.OrderBookSnapshot) *domain.Opportunity {
	if !signal.Arbitrageable() {
		return nil
	}
	if signal.Confidence < d.cfg.MinConfidence {
		d.logger.Debug("signal below confidence threshold",
			slog.String("market_a", signal.MarketAID),
			slog.String("market_b", signal.MarketBID),
			slog.Float64("confidence", signal.Confidence),
		)
		return nil
	}
	now := d.now()
	if quoteA.Stale(now, d.cfg.MaxQuoteAge) || quoteB.Stale(now, d.cfg.MaxQuoteAge) {
		return nil
	}
	pA, pB := quoteA.YesPrice, quoteB.YesPrice
	if pA <= 0 || pB <= 0 {
		return nil
	}

	long, short, found := d.violation(signal, pA, pB, quoteA.MarketID, quoteB.MarketID)
	if !found {
		return nil
	}

	opp := &domain.Opportunity{
		ID:   uuid.New().String(),
		Kind: domain.StrategyCombinatorial,
		Combinatorial: &domain.CombinatorialOpportunity{
			MarketA:     quoteA.MarketID,
			MarketB:     quoteB.MarketID,
			VenueA:      quoteA.Venue,
			VenueB:      quoteB.Venue,
			PriceA:      pA,
			PriceB:      pB,
			Signal:      signal,
			LongMarket:  long,
			ShortMarket: short,
			OrderBookA:  bookA,
			OrderBookB:  bookB,
		},
		DetectedAt: now,
	}

	d.logger.Info("combinatorial opportunity detected",
		slog.String("kind", string(signal.Kind)),
		slog.String("long", long),
		slog.String("short", short),
		slog.Float64("price_a", pA),
		slog.Float64("price_b", pB),
		slog.Float64("confidence", signal.Confidence),
	)
	return opp
}

// violation maps a relationship kind to its pricing constraint and
// reports which market to go long and which to short when the constraint
// is broken by at least MinSpread.
//
// entailment A=>B:     P(A) <= P(B); violated when A trades above B.
// complementary:       P(A) + P(B) = 1; the side above its implied price
//                      is shorted against the other.
// mutually exclusive:  P(A) + P(B) <= 1; on violation the dearer side is
//                      the more overpriced one.
func (d *CombinatorialDetector) violation(signal domain.RelationshipSignal, pA, pB float64, marketA, marketB string) (long, short string, found bool) {
	switch signal.Kind {
	case domain.RelationEntailment:
		switch signal.Direction {
		case domain.DirectionAImpliesB:
			if pA-pB >= d.cfg.MinSpread {
				return marketB, marketA, true
			}
		case domain.DirectionBImpliesA:
			if pB-pA >= d.cfg.MinSpread {
				return marketA, marketB, true
			}
		}
		return "", "", false

	case domain.RelationComplementary:
		impliedA := 1.0 - pB
		if pA-impliedA >= d.cfg.MinSpread {
			return marketB, marketA, true
		}
		if impliedA-pA >= d.cfg.MinSpread {
			return marketA, marketB, true
		}
		return "", "", false

	case domain.RelationMutuallyExclusive:
		if pA+pB-1.0 < d.cfg.MinSpread {
			return "", "", false
		}
		if math.Max(pA, pB) == pA {
			return marketB, marketA, true
		}
		return marketA, marketB, true
	}
	return "", "", false
}
