package strategy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/alanyoungcy/predarb/internal/domain"
)

// relationTTL bounds how long a classifier verdict is reused before the
// pair is re-classified.
const relationTTL = time.Hour

// OpportunityChannel is the bus channel scan results are published on.
const OpportunityChannel = "opportunities"

// MarketRef identifies one market on one venue.
type MarketRef struct {
	Venue    domain.Venue `json:"venue"`
	MarketID string       `json:"market_id"`
}

// Pair is a candidate market pair for combinatorial detection.
type Pair struct {
	A MarketRef `json:"a"`
	B MarketRef `json:"b"`
}

// Sizer suggests a position size from visible liquidity and the capital
// limits. Implemented by the ledger.
type Sizer interface {
	SuggestPositionSize(availableLiquidity, maxAllocationUSD float64) float64
}

// Analyzer produces the cost and profitability breakdown for an
// opportunity.
type Analyzer interface {
	Analyze(ctx context.Context, opp domain.Opportunity, gasPriceGwei *float64, now time.Time) (domain.ProfitabilityAnalysis, error)
}

// Ranked pairs an opportunity with its analysis for prioritization.
type Ranked struct {
	Opportunity domain.Opportunity          `json:"opportunity"`
	Analysis    domain.ProfitabilityAnalysis `json:"analysis"`
}

// Scanner sweeps the market universe, runs both detectors, sizes and
// analyzes each candidate, and returns the profitable ones ranked by net
// profit percent.
type Scanner struct {
	cfg        Config
	data       domain.MarketDataSource
	classifier domain.RelationshipClassifier
	relations  domain.RelationCache // optional read-through cache
	rebal      *RebalancingDetector
	combo      *CombinatorialDetector
	analyzer   Analyzer
	sizer      Sizer
	bus        domain.SignalBus // optional
	logger     *slog.Logger
	now        func() time.Time
}

// NewScanner wires a Scanner. relations and bus may be nil.
func NewScanner(
	cfg Config,
	data domain.MarketDataSource,
	classifier domain.RelationshipClassifier,
	relations domain.RelationCache,
	analyzer Analyzer,
	sizer Sizer,
	bus domain.SignalBus,
	logger *slog.Logger,
) *Scanner {
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = defaultScanInterval
	}
	if cfg.MaxOpportunities <= 0 {
		cfg.MaxOpportunities = defaultMaxOpportunities
	}
	return &Scanner{
		cfg:        cfg,
		data:       data,
		classifier: classifier,
		relations:  relations,
		rebal:      NewRebalancingDetector(cfg, logger),
		combo:      NewCombinatorialDetector(cfg, logger),
		analyzer:   analyzer,
		sizer:      sizer,
		bus:        bus,
		logger:     logger.With(slog.String("component", "scanner")),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Scan runs one sweep over the given markets and pairs. Per-market
// failures are logged and skipped; the sweep itself only fails on
// context cancellation. Results are profitable opportunities sorted by
// net profit percent descending, truncated to MaxOpportunities.
func (s *Scanner) Scan(ctx context.Context, markets []MarketRef, pairs []Pair) ([]Ranked, error) {
	var ranked []Ranked

	for _, ref := range markets {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("scanner: %w", domain.ErrContextDone)
		}
		if r, ok := s.scanMarket(ctx, ref); ok {
			ranked = append(ranked, r)
		}
	}
	for _, pair := range pairs {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("scanner: %w", domain.ErrContextDone)
		}
		if r, ok := s.scanPair(ctx, pair); ok {
			ranked = append(ranked, r)
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Analysis.NetProfitPct > ranked[j].Analysis.NetProfitPct
	})
	if len(ranked) > s.cfg.MaxOpportunities {
		ranked = ranked[:s.cfg.MaxOpportunities]
	}

	s.logger.InfoContext(ctx, "scanner: sweep finished",
		slog.Int("markets", len(markets)),
		slog.Int("pairs", len(pairs)),
		slog.Int("opportunities", len(ranked)),
	)
	return ranked, nil
}

// Run sweeps on the configured interval until the context ends, handing
// each non-empty result to emit and publishing it on the bus.
func (s *Scanner) Run(ctx context.Context, markets []MarketRef, pairs []Pair, emit func(context.Context, []Ranked)) error {
	ticker := time.NewTicker(s.cfg.ScanInterval)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "scanner: started",
		slog.Duration("interval", s.cfg.ScanInterval),
	)
	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "scanner: stopped")
			return ctx.Err()
		case <-ticker.C:
			ranked, err := s.Scan(ctx, markets, pairs)
			if err != nil {
				if errors.Is(err, domain.ErrContextDone) {
					return ctx.Err()
				}
				s.logger.WarnContext(ctx, "scanner: sweep failed", slog.String("error", err.Error()))
				continue
			}
			if len(ranked) == 0 {
				continue
			}
			s.publish(ctx, ranked)
			if emit != nil {
				emit(ctx, ranked)
			}
		}
	}
}

func (s *Scanner) scanMarket(ctx context.Context, ref MarketRef) (Ranked, bool) {
	quote, err := s.data.Quote(ctx, ref.Venue, ref.MarketID)
	if err != nil {
		s.logger.WarnContext(ctx, "scanner: quote fetch failed",
			slog.String("market_id", ref.MarketID),
			slog.String("error", err.Error()),
		)
		return Ranked{}, false
	}

	book := s.book(ctx, ref)
	opp := s.rebal.Detect(quote, book)
	if opp == nil {
		return Ranked{}, false
	}
	return s.sizeAndAnalyze(ctx, *opp, bookDepth(book, opp))
}

func (s *Scanner) scanPair(ctx context.Context, pair Pair) (Ranked, bool) {
	signal, err := s.signalFor(ctx, pair)
	if err != nil {
		s.logger.WarnContext(ctx, "scanner: relation lookup failed",
			slog.String("market_a", pair.A.MarketID),
			slog.String("market_b", pair.B.MarketID),
			slog.String("error", err.Error()),
		)
		return Ranked{}, false
	}
	if !signal.Arbitrageable() {
		return Ranked{}, false
	}

	quoteA, errA := s.data.Quote(ctx, pair.A.Venue, pair.A.MarketID)
	quoteB, errB := s.data.Quote(ctx, pair.B.Venue, pair.B.MarketID)
	if errA != nil || errB != nil {
		return Ranked{}, false
	}

	bookA := s.book(ctx, pair.A)
	bookB := s.book(ctx, pair.B)
	opp := s.combo.Detect(quoteA, quoteB, signal, bookA, bookB)
	if opp == nil {
		return Ranked{}, false
	}

	liquidity := legDepthSum(bookA, bookB)
	return s.sizeAndAnalyze(ctx, *opp, liquidity)
}

// signalFor reads the relation cache first and falls back to the
// classifier, caching the fresh verdict.
func (s *Scanner) signalFor(ctx context.Context, pair Pair) (domain.RelationshipSignal, error) {
	if s.relations != nil {
		if sig, err := s.relations.GetSignal(ctx, pair.A.MarketID, pair.B.MarketID); err == nil {
			return sig, nil
		} else if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "scanner: relation cache read failed",
				slog.String("error", err.Error()),
			)
		}
	}
	sig, err := s.classifier.Classify(ctx, pair.A.MarketID, pair.B.MarketID)
	if err != nil {
		return domain.RelationshipSignal{}, err
	}
	if s.relations != nil {
		if err := s.relations.SetSignal(ctx, sig, relationTTL); err != nil {
			s.logger.WarnContext(ctx, "scanner: relation cache write failed",
				slog.String("error", err.Error()),
			)
		}
	}
	return sig, nil
}

func (s *Scanner) sizeAndAnalyze(ctx context.Context, opp domain.Opportunity, liquidity float64) (Ranked, bool) {
	size := s.sizer.SuggestPositionSize(liquidity, 0)
	if size <= 0 {
		s.logger.Debug("scanner: no capital capacity, skipping",
			slog.String("opp_id", opp.ID),
		)
		return Ranked{}, false
	}
	opp.PositionSize = size

	analysis, err := s.analyzer.Analyze(ctx, opp, nil, s.now())
	if err != nil {
		s.logger.WarnContext(ctx, "scanner: analysis failed",
			slog.String("opp_id", opp.ID),
			slog.String("error", err.Error()),
		)
		return Ranked{}, false
	}
	if !analysis.IsProfitable {
		return Ranked{}, false
	}
	return Ranked{Opportunity: opp, Analysis: analysis}, true
}

func (s *Scanner) book(ctx context.Context, ref MarketRef) *domain.OrderBookSnapshot {
	book, err := s.data.OrderBook(ctx, ref.Venue, ref.MarketID)
	if err != nil {
		// Depth is optional; the cost model falls back to conservative
		// slippage.
		return nil
	}
	return &book
}

func (s *Scanner) publish(ctx context.Context, ranked []Ranked) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(ranked)
	if err != nil {
		s.logger.WarnContext(ctx, "scanner: publish marshal failed", slog.String("error", err.Error()))
		return
	}
	if err := s.bus.Publish(ctx, OpportunityChannel, payload); err != nil {
		s.logger.WarnContext(ctx, "scanner: publish failed", slog.String("error", err.Error()))
	}
}

// bookDepth is the depth relevant to a rebalancing opportunity's side.
func bookDepth(book *domain.OrderBookSnapshot, opp *domain.Opportunity) float64 {
	if book == nil || opp.Rebalancing == nil {
		return 0
	}
	side := domain.OrderSideBuy
	if opp.Rebalancing.Side == domain.RebalancingSellBoth {
		side = domain.OrderSideSell
	}
	return book.Depth(side)
}

// legDepthSum treats a pair's tradeable liquidity as the thinner leg's
// full visible depth on each book, summed. With any book missing the
// liquidity is unknown and reported as zero.
func legDepthSum(bookA, bookB *domain.OrderBookSnapshot) float64 {
	if bookA == nil || bookB == nil {
		return 0
	}
	depthA := bookA.Depth(domain.OrderSideBuy) + bookA.Depth(domain.OrderSideSell)
	depthB := bookB.Depth(domain.OrderSideBuy) + bookB.Depth(domain.OrderSideSell)
	if depthA < depthB {
		return depthA
	}
	return depthB
}
