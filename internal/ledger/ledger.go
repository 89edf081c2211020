// Package ledger is the single source of truth for capital usage. Every
// capital-affecting operation (authorize, open, close) serializes through
// one mutex because the exposure invariants span read-then-write; metric
// reads take lock-free-style snapshots under the read lock.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/predarb/internal/domain"
)

// Config holds the capital limits.
type Config struct {
	TotalCapitalUSD            float64
	MaxPositionSizePct         float64 // max % of capital per position
	MaxSingleMarketExposurePct float64 // max % of capital per market
	MaxTotalExposurePct        float64 // max % of capital across all open positions
	AllocationTTL              time.Duration
	// LiquidityCapFraction is the largest share of visible depth a single
	// order may consume. Committing more moves the market against the
	// trade.
	LiquidityCapFraction float64
}

// Defaults returns the standard limit set: $10k capital, 10% per position,
// 20% per market, 80% total, 30s allocation TTL, half of visible depth.
func Defaults() Config {
	return Config{
		TotalCapitalUSD:            10_000,
		MaxPositionSizePct:         10,
		MaxSingleMarketExposurePct: 20,
		MaxTotalExposurePct:        80,
		AllocationTTL:              30 * time.Second,
		LiquidityCapFraction:       0.5,
	}
}

// CapitalRequest asks the ledger to reserve capital for an opportunity.
// MarketIDs drive the per-market cap; AvailableLiquidity of zero means
// depth is unknown and the liquidity cap is skipped.
type CapitalRequest struct {
	OpportunityID      string
	Strategy           domain.StrategyKind
	RequestedUSD       float64
	MarketIDs          []string
	AvailableLiquidity float64
}

// Ledger tracks total capital, per-market and per-strategy exposure, and
// authorizes or rejects capital requests before any order is sent.
type Ledger struct {
	cfg Config

	mu          sync.RWMutex
	positions   map[string]domain.Position
	allocations map[string]domain.CapitalAllocation
	consumed    map[string]bool // allocation id -> already opened
	pnlHistory  []domain.PnLRecord

	positionStore domain.PositionStore   // optional persistence, best-effort
	allocStore    domain.AllocationStore // optional
	audit         domain.AuditStore      // optional

	logger *slog.Logger
	now    func() time.Time
}

// Option customizes a Ledger.
type Option func(*Ledger)

// WithStores attaches persistence. All writes are best-effort: a store
// failure is logged, never blocks a capital decision.
func WithStores(positions domain.PositionStore, allocs domain.AllocationStore, audit domain.AuditStore) Option {
	return func(l *Ledger) {
		l.positionStore = positions
		l.allocStore = allocs
		l.audit = audit
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New creates a Ledger with the given limits.
func New(cfg Config, logger *slog.Logger, opts ...Option) *Ledger {
	l := &Ledger{
		cfg:         cfg,
		positions:   make(map[string]domain.Position),
		allocations: make(map[string]domain.CapitalAllocation),
		consumed:    make(map[string]bool),
		logger:      logger.With(slog.String("component", "ledger")),
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Authorize reserves capital for an opportunity. Checks run in order:
// position-size cap, remaining total-exposure capacity, liquidity cap,
// per-market cap. The first failing check determines the rejection; a
// rejection creates no state.
func (l *Ledger) Authorize(ctx context.Context, req CapitalRequest) (domain.CapitalAllocation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	maxPosition := l.cfg.TotalCapitalUSD * l.cfg.MaxPositionSizePct / 100
	if req.RequestedUSD > maxPosition {
		return domain.CapitalAllocation{}, l.reject(ctx, req, domain.RejectPositionSize, maxPosition)
	}

	maxTotal := l.cfg.TotalCapitalUSD * l.cfg.MaxTotalExposurePct / 100
	remaining := maxTotal - l.openExposureLocked()
	if req.RequestedUSD > remaining {
		return domain.CapitalAllocation{}, l.reject(ctx, req, domain.RejectTotalExposure, remaining)
	}

	if req.AvailableLiquidity > 0 {
		cap := req.AvailableLiquidity * l.cfg.LiquidityCapFraction
		if req.RequestedUSD > cap {
			return domain.CapitalAllocation{}, l.reject(ctx, req, domain.RejectLiquidityCap, cap)
		}
	}

	maxMarket := l.cfg.TotalCapitalUSD * l.cfg.MaxSingleMarketExposurePct / 100
	byMarket := l.exposureByMarketLocked()
	for _, marketID := range req.MarketIDs {
		if byMarket[marketID]+req.RequestedUSD > maxMarket {
			return domain.CapitalAllocation{}, l.reject(ctx, req, domain.RejectMarketExposure, maxMarket-byMarket[marketID])
		}
	}

	now := l.now()
	alloc := domain.CapitalAllocation{
		ID:            uuid.New().String(),
		OpportunityID: req.OpportunityID,
		Strategy:      req.Strategy,
		RequestedUSD:  req.RequestedUSD,
		ApprovedUSD:   req.RequestedUSD,
		CapitalPct:    req.RequestedUSD / l.cfg.TotalCapitalUSD * 100,
		CreatedAt:     now,
		ExpiresAt:     now.Add(l.cfg.AllocationTTL),
	}
	l.allocations[alloc.ID] = alloc

	if l.allocStore != nil {
		if err := l.allocStore.Create(ctx, alloc); err != nil {
			l.logger.WarnContext(ctx, "ledger: allocation persist failed",
				slog.String("allocation_id", alloc.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	l.logger.InfoContext(ctx, "ledger: capital allocated",
		slog.String("opp_id", req.OpportunityID),
		slog.Float64("approved_usd", alloc.ApprovedUSD),
		slog.Float64("capital_pct", alloc.CapitalPct),
	)

	return alloc, nil
}

// reject logs and builds the typed rejection. Caller holds the lock.
func (l *Ledger) reject(ctx context.Context, req CapitalRequest, reason domain.RejectionReason, available float64) error {
	l.logger.WarnContext(ctx, "ledger: capital rejected",
		slog.String("opp_id", req.OpportunityID),
		slog.String("reason", string(reason)),
		slog.Float64("requested_usd", req.RequestedUSD),
		slog.Float64("available_usd", available),
	)
	if l.audit != nil {
		_ = l.audit.Log(ctx, "capital_rejected", map[string]any{
			"opp_id":    req.OpportunityID,
			"reason":    string(reason),
			"requested": req.RequestedUSD,
			"available": available,
		})
	}
	return &domain.Rejection{
		OpportunityID: req.OpportunityID,
		Reason:        reason,
		RequestedUSD:  req.RequestedUSD,
		AvailableUSD:  available,
	}
}

// RecordOpen transitions an allocation into a tracked open position. From
// this point the allocation's capital counts toward exposure. An expired
// or already-consumed allocation is refused.
func (l *Ledger) RecordOpen(ctx context.Context, alloc domain.CapitalAllocation, marketID, marketBID string, entryPrice float64, side domain.OrderSide) (domain.Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.allocations[alloc.ID]; !ok {
		return domain.Position{}, fmt.Errorf("ledger: allocation %q: %w", alloc.ID, domain.ErrNotFound)
	}
	if l.consumed[alloc.ID] {
		return domain.Position{}, fmt.Errorf("ledger: allocation %q: %w", alloc.ID, domain.ErrAlreadyExists)
	}
	if alloc.Expired(l.now()) {
		return domain.Position{}, fmt.Errorf("ledger: allocation %q: %w", alloc.ID, domain.ErrAllocationExpired)
	}

	pos := domain.Position{
		ID:           uuid.New().String(),
		AllocationID: alloc.ID,
		MarketID:     marketID,
		MarketBID:    marketBID,
		Strategy:     alloc.Strategy,
		Side:         side,
		SizeUSD:      alloc.ApprovedUSD,
		EntryPrice:   entryPrice,
		Status:       domain.PositionOpen,
		OpenedAt:     l.now(),
	}
	l.positions[pos.ID] = pos
	l.consumed[alloc.ID] = true

	l.persistPosition(ctx, pos, true)

	l.logger.InfoContext(ctx, "ledger: position opened",
		slog.String("position_id", pos.ID),
		slog.String("market_id", marketID),
		slog.String("strategy", string(pos.Strategy)),
		slog.Float64("size_usd", pos.SizeUSD),
		slog.Float64("entry_price", entryPrice),
	)

	return pos, nil
}

// RecordClose closes an open position, computes realized PnL with
// side-aware sign, appends to the PnL history, and frees the capital back
// into available capacity.
func (l *Ledger) RecordClose(ctx context.Context, positionID string, exitPrice, feesPaidUSD float64) (domain.Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[positionID]
	if !ok {
		return domain.Position{}, fmt.Errorf("ledger: position %q: %w", positionID, domain.ErrNotFound)
	}
	if pos.Status != domain.PositionOpen {
		return domain.Position{}, fmt.Errorf("ledger: position %q (status %s): %w", positionID, pos.Status, domain.ErrPositionNotOpen)
	}

	var pnlPct float64
	if pos.EntryPrice != 0 {
		switch pos.Side {
		case domain.OrderSideBuy:
			pnlPct = (exitPrice - pos.EntryPrice) / pos.EntryPrice * 100
		case domain.OrderSideSell:
			pnlPct = (pos.EntryPrice - exitPrice) / pos.EntryPrice * 100
		}
	}
	pnlUSD := pnlPct/100*pos.SizeUSD - feesPaidUSD

	now := l.now()
	pos.ExitPrice = &exitPrice
	pos.Status = domain.PositionClosed
	pos.ClosedAt = &now
	pos.PnLUSD = pnlUSD
	pos.PnLPct = pnlPct
	pos.FeesPaidUSD = feesPaidUSD
	l.positions[positionID] = pos

	l.pnlHistory = append(l.pnlHistory, domain.PnLRecord{
		PositionID: positionID,
		Strategy:   pos.Strategy,
		PnLUSD:     pnlUSD,
		PnLPct:     pnlPct,
		ClosedAt:   now,
	})

	l.persistPosition(ctx, pos, false)

	l.logger.InfoContext(ctx, "ledger: position closed",
		slog.String("position_id", positionID),
		slog.Float64("pnl_usd", pnlUSD),
		slog.Float64("pnl_pct", pnlPct),
	)

	return pos, nil
}

// RecordSettlement closes an open position with an externally computed
// realized PnL. Used for completed two-leg trades, where the pair's
// spread capture, not a single entry/exit pair, is the true result.
func (l *Ledger) RecordSettlement(ctx context.Context, positionID string, pnlUSD, feesPaidUSD float64) (domain.Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[positionID]
	if !ok {
		return domain.Position{}, fmt.Errorf("ledger: position %q: %w", positionID, domain.ErrNotFound)
	}
	if pos.Status != domain.PositionOpen {
		return domain.Position{}, fmt.Errorf("ledger: position %q (status %s): %w", positionID, pos.Status, domain.ErrPositionNotOpen)
	}

	now := l.now()
	net := pnlUSD - feesPaidUSD
	pos.Status = domain.PositionClosed
	pos.ClosedAt = &now
	pos.PnLUSD = net
	if pos.SizeUSD > 0 {
		pos.PnLPct = net / pos.SizeUSD * 100
	}
	pos.FeesPaidUSD = feesPaidUSD
	l.positions[positionID] = pos

	l.pnlHistory = append(l.pnlHistory, domain.PnLRecord{
		PositionID: positionID,
		Strategy:   pos.Strategy,
		PnLUSD:     net,
		PnLPct:     pos.PnLPct,
		ClosedAt:   now,
	})

	l.persistPosition(ctx, pos, false)

	l.logger.InfoContext(ctx, "ledger: position settled",
		slog.String("position_id", positionID),
		slog.Float64("pnl_usd", net),
	)

	return pos, nil
}

// RecordFailure marks an open position failed without a fill and releases
// its capital. Used on clean aborts where no directional exposure was
// taken.
func (l *Ledger) RecordFailure(ctx context.Context, positionID string) (domain.Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[positionID]
	if !ok {
		return domain.Position{}, fmt.Errorf("ledger: position %q: %w", positionID, domain.ErrNotFound)
	}
	if pos.Status != domain.PositionOpen {
		return domain.Position{}, fmt.Errorf("ledger: position %q (status %s): %w", positionID, pos.Status, domain.ErrPositionNotOpen)
	}

	now := l.now()
	pos.Status = domain.PositionFailed
	pos.ClosedAt = &now
	l.positions[positionID] = pos

	l.persistPosition(ctx, pos, false)

	l.logger.InfoContext(ctx, "ledger: position failed, capital released",
		slog.String("position_id", positionID),
	)

	return pos, nil
}

// SuggestPositionSize computes the largest position the limits allow:
// min(per-position cap, optional caller cap, liquidity cap, remaining
// total capacity). Returns 0 when no capacity remains.
func (l *Ledger) SuggestPositionSize(availableLiquidity, maxAllocationUSD float64) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	size := l.cfg.TotalCapitalUSD * l.cfg.MaxPositionSizePct / 100
	if maxAllocationUSD > 0 && maxAllocationUSD < size {
		size = maxAllocationUSD
	}
	if availableLiquidity > 0 {
		if cap := availableLiquidity * l.cfg.LiquidityCapFraction; cap < size {
			size = cap
		}
	}

	maxTotal := l.cfg.TotalCapitalUSD * l.cfg.MaxTotalExposurePct / 100
	remaining := maxTotal - l.openExposureLocked()
	if remaining <= 0 {
		return 0
	}
	if remaining < size {
		size = remaining
	}
	return size
}

// GetPosition returns a position by id.
func (l *Ledger) GetPosition(positionID string) (domain.Position, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pos, ok := l.positions[positionID]
	if !ok {
		return domain.Position{}, fmt.Errorf("ledger: position %q: %w", positionID, domain.ErrNotFound)
	}
	return pos, nil
}

// OpenPositions returns a snapshot of all open positions.
func (l *Ledger) OpenPositions() []domain.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []domain.Position
	for _, pos := range l.positions {
		if pos.Status == domain.PositionOpen {
			out = append(out, pos)
		}
	}
	return out
}

// TotalCapital returns the configured capital base.
func (l *Ledger) TotalCapital() float64 {
	return l.cfg.TotalCapitalUSD
}

// persistPosition writes through to the optional store. Caller holds the
// lock; failures are logged and swallowed.
func (l *Ledger) persistPosition(ctx context.Context, pos domain.Position, create bool) {
	if l.positionStore == nil {
		return
	}
	var err error
	if create {
		err = l.positionStore.Create(ctx, pos)
	} else {
		err = l.positionStore.Update(ctx, pos)
	}
	if err != nil {
		l.logger.WarnContext(ctx, "ledger: position persist failed",
			slog.String("position_id", pos.ID),
			slog.String("error", err.Error()),
		)
	}
}

// openExposureLocked sums open position sizes. Caller holds a lock.
func (l *Ledger) openExposureLocked() float64 {
	var total float64
	for _, pos := range l.positions {
		if pos.Status == domain.PositionOpen {
			total += pos.SizeUSD
		}
	}
	return total
}

// exposureByMarketLocked groups open exposure by market. Combinatorial
// positions count toward both markets. Caller holds a lock.
func (l *Ledger) exposureByMarketLocked() map[string]float64 {
	byMarket := make(map[string]float64)
	for _, pos := range l.positions {
		if pos.Status != domain.PositionOpen {
			continue
		}
		byMarket[pos.MarketID] += pos.SizeUSD
		if pos.MarketBID != "" {
			byMarket[pos.MarketBID] += pos.SizeUSD
		}
	}
	return byMarket
}
