// Package executor runs two-leg arbitrage trades through an explicit state
// machine. Atomicity is best-effort: legs are sequenced so that a failure
// before the first fill carries no exposure, and any failure after it is
// surfaced as an unhedged terminal state for the caller to escalate.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/predarb/internal/domain"
)

// Config holds executor tuning.
type Config struct {
	// LegTimeout bounds how long a single leg may wait for its fill.
	LegTimeout time.Duration
	// Cooldown blocks re-execution of the same opportunity after a
	// terminal run, so a stale detector re-emit cannot double-trade.
	Cooldown time.Duration
}

// DefaultConfig returns the standard 5s leg timeout with a 2 minute
// per-opportunity cooldown.
func DefaultConfig() Config {
	return Config{
		LegTimeout: 5 * time.Second,
		Cooldown:   2 * time.Minute,
	}
}

// Executor drives one opportunity at a time through the leg1 -> leg2
// sequence. Venue adapters are looked up per leg, so the two legs may
// settle on different venues.
type Executor struct {
	adapters map[domain.Venue]domain.VenueAdapter
	store    domain.ExecutionStore // optional, best-effort
	guard    *Guard
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
}

// Option customizes an Executor.
type Option func(*Executor)

// WithStore attaches execution persistence. Writes are best-effort and
// never fail a trade.
func WithStore(store domain.ExecutionStore) Option {
	return func(e *Executor) { e.store = store }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// New creates an Executor over the given venue adapters.
func New(adapters map[domain.Venue]domain.VenueAdapter, cfg Config, logger *slog.Logger, opts ...Option) *Executor {
	if cfg.LegTimeout <= 0 {
		cfg.LegTimeout = DefaultConfig().LegTimeout
	}
	e := &Executor{
		adapters: adapters,
		guard:    NewGuard(cfg.Cooldown),
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "executor")),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs exactly one leg pair for the opportunity. Legs must already
// be ordered (see OrderedLegs). The returned Execution is always in a
// terminal state; the error is non-nil only when the run could not start
// at all (duplicate opportunity, unknown venue).
func (e *Executor) Execute(ctx context.Context, opp domain.Opportunity, leg1, leg2 domain.Leg) (domain.Execution, error) {
	if err := e.guard.Begin(opp.ID); err != nil {
		return domain.Execution{}, fmt.Errorf("executor: opportunity %q: %w", opp.ID, err)
	}
	defer e.guard.End(opp.ID)

	adapter1, ok := e.adapters[leg1.Venue]
	if !ok {
		return domain.Execution{}, fmt.Errorf("executor: leg1 venue %q: %w", leg1.Venue, domain.ErrUnknownVenue)
	}
	adapter2, ok := e.adapters[leg2.Venue]
	if !ok {
		return domain.Execution{}, fmt.Errorf("executor: leg2 venue %q: %w", leg2.Venue, domain.ErrUnknownVenue)
	}

	exec := domain.Execution{
		ID:            uuid.New().String(),
		OpportunityID: opp.ID,
		Strategy:      opp.Kind,
		Leg1:          leg1,
		Leg2:          leg2,
		State:         domain.ExecCreated,
		StartedAt:     e.now(),
	}
	e.persist(ctx, exec, true)

	log := e.logger.With(
		slog.String("execution_id", exec.ID),
		slog.String("opp_id", opp.ID),
		slog.String("strategy", string(opp.Kind)),
	)

	// Leg 1: failure here is clean, nothing filled yet.
	exec = e.runLeg1(ctx, exec, adapter1, log)
	if exec.State.Terminal() {
		e.finish(ctx, &exec, log)
		return exec, nil
	}

	// Leg 2: from here on a failure leaves leg1's fill unhedged.
	exec = e.runLeg2(ctx, exec, adapter2, log)
	e.finish(ctx, &exec, log)
	return exec, nil
}

func (e *Executor) runLeg1(ctx context.Context, exec domain.Execution, adapter domain.VenueAdapter, log *slog.Logger) domain.Execution {
	orderID, err := adapter.Submit(ctx, exec.Leg1)
	if err != nil {
		log.WarnContext(ctx, "executor: leg1 submit failed", slog.String("error", err.Error()))
		exec.Leg1.Status = domain.LegFailed
		return e.transition(ctx, exec, domain.ExecLeg1Failed, log)
	}
	exec.Leg1.ExternalOrderID = orderID
	exec.Leg1.Status = domain.LegSubmitted
	exec = e.transition(ctx, exec, domain.ExecLeg1Submitted, log)

	fill, err := adapter.AwaitFill(ctx, orderID, e.cfg.LegTimeout)
	if err != nil {
		log.WarnContext(ctx, "executor: leg1 await failed", slog.String("error", err.Error()))
		exec.Leg1.Status = domain.LegFailed
		return e.transition(ctx, exec, domain.ExecLeg1Failed, log)
	}

	switch fill.Status {
	case domain.FillFilled:
		exec.Leg1.Status = domain.LegFilled
		exec.Leg1.FilledPrice = fill.FilledPrice
		filledAt := fill.FilledAt
		exec.Leg1.FilledAt = &filledAt
		return e.transition(ctx, exec, domain.ExecLeg1Filled, log)
	case domain.FillTimedOut:
		e.cancel(ctx, adapter, orderID, log)
		exec.Leg1.Status = domain.LegCancelled
		return e.transition(ctx, exec, domain.ExecLeg1TimedOut, log)
	default:
		exec.Leg1.Status = domain.LegFailed
		return e.transition(ctx, exec, domain.ExecLeg1Failed, log)
	}
}

func (e *Executor) runLeg2(ctx context.Context, exec domain.Execution, adapter domain.VenueAdapter, log *slog.Logger) domain.Execution {
	orderID, err := adapter.Submit(ctx, exec.Leg2)
	if err != nil {
		log.ErrorContext(ctx, "executor: leg2 submit failed, position unhedged",
			slog.String("error", err.Error()),
		)
		exec.Leg2.Status = domain.LegFailed
		return e.transition(ctx, exec, domain.ExecLeg2Failed, log)
	}
	exec.Leg2.ExternalOrderID = orderID
	exec.Leg2.Status = domain.LegSubmitted
	exec = e.transition(ctx, exec, domain.ExecLeg2Submitted, log)

	fill, err := adapter.AwaitFill(ctx, orderID, e.cfg.LegTimeout)
	if err != nil {
		log.ErrorContext(ctx, "executor: leg2 await failed, position unhedged",
			slog.String("error", err.Error()),
		)
		exec.Leg2.Status = domain.LegFailed
		return e.transition(ctx, exec, domain.ExecLeg2Failed, log)
	}

	switch fill.Status {
	case domain.FillFilled:
		exec.Leg2.Status = domain.LegFilled
		exec.Leg2.FilledPrice = fill.FilledPrice
		filledAt := fill.FilledAt
		exec.Leg2.FilledAt = &filledAt
		exec.RealizedPnL = realizedPnL(exec.Leg1, exec.Leg2)
		return e.transition(ctx, exec, domain.ExecComplete, log)
	case domain.FillTimedOut:
		// Single best-effort cancel of the resting leg2 order. Leg1's
		// fill stays on the book regardless.
		e.cancel(ctx, adapter, orderID, log)
		exec.Leg2.Status = domain.LegCancelled
		return e.transition(ctx, exec, domain.ExecLeg2TimedOut, log)
	default:
		exec.Leg2.Status = domain.LegFailed
		return e.transition(ctx, exec, domain.ExecLeg2Failed, log)
	}
}

// transition moves the state machine forward and logs the step. States
// only advance; there are no retry loops inside an execution.
func (e *Executor) transition(ctx context.Context, exec domain.Execution, next domain.ExecutionState, log *slog.Logger) domain.Execution {
	log.InfoContext(ctx, "executor: state transition",
		slog.String("from", string(exec.State)),
		slog.String("to", string(next)),
	)
	exec.State = next
	return exec
}

// finish stamps completion, persists, and raises the unhedged alarm.
func (e *Executor) finish(ctx context.Context, exec *domain.Execution, log *slog.Logger) {
	now := e.now()
	exec.CompletedAt = &now
	e.persist(ctx, *exec, false)

	if exec.State.Unhedged() {
		log.ErrorContext(ctx, "executor: execution terminated unhedged",
			slog.String("state", string(exec.State)),
			slog.String("filled_market", exec.Leg1.MarketID),
			slog.Float64("filled_price", exec.Leg1.FilledPrice),
			slog.Float64("size_usd", exec.Leg1.SizeUSD),
		)
		return
	}
	log.InfoContext(ctx, "executor: execution finished",
		slog.String("state", string(exec.State)),
		slog.Float64("realized_pnl_usd", exec.RealizedPnL),
	)
}

// Unwind submits the opposite of a filled leg to flatten its exposure.
// The limit is pinned to the original fill price; crossing the spread is
// the caller's risk decision, not taken here. A timeout cancels the
// unwind order and returns FillTimedOut.
func (e *Executor) Unwind(ctx context.Context, leg domain.Leg) (domain.FillResult, error) {
	adapter, ok := e.adapters[leg.Venue]
	if !ok {
		return domain.FillResult{}, fmt.Errorf("executor: unwind venue %q: %w", leg.Venue, domain.ErrUnknownVenue)
	}

	reverse := leg
	reverse.Side = domain.OrderSideSell
	if leg.Side == domain.OrderSideSell {
		reverse.Side = domain.OrderSideBuy
	}
	reverse.Price = leg.FilledPrice
	reverse.ExternalOrderID = ""
	reverse.Status = domain.LegPending
	reverse.FilledPrice = 0
	reverse.FilledAt = nil

	log := e.logger.With(
		slog.String("market_id", leg.MarketID),
		slog.String("side", string(reverse.Side)),
	)

	orderID, err := adapter.Submit(ctx, reverse)
	if err != nil {
		return domain.FillResult{}, fmt.Errorf("executor: unwind submit: %w", err)
	}
	fill, err := adapter.AwaitFill(ctx, orderID, e.cfg.LegTimeout)
	if err != nil {
		return domain.FillResult{}, fmt.Errorf("executor: unwind await: %w", err)
	}
	if fill.Status == domain.FillTimedOut {
		e.cancel(ctx, adapter, orderID, log)
	}
	log.InfoContext(ctx, "executor: unwind finished",
		slog.String("status", string(fill.Status)),
		slog.Float64("filled_price", fill.FilledPrice),
	)
	return fill, nil
}

func (e *Executor) cancel(ctx context.Context, adapter domain.VenueAdapter, orderID string, log *slog.Logger) {
	cancelled, err := adapter.Cancel(ctx, orderID)
	if err != nil {
		log.WarnContext(ctx, "executor: cancel failed",
			slog.String("order_id", orderID),
			slog.String("error", err.Error()),
		)
		return
	}
	if !cancelled {
		log.WarnContext(ctx, "executor: cancel not honored, order may still fill",
			slog.String("order_id", orderID),
		)
	}
}

func (e *Executor) persist(ctx context.Context, exec domain.Execution, create bool) {
	if e.store == nil {
		return
	}
	var err error
	if create {
		err = e.store.Create(ctx, exec)
	} else {
		err = e.store.Update(ctx, exec)
	}
	if err != nil {
		e.logger.WarnContext(ctx, "executor: execution persist failed",
			slog.String("execution_id", exec.ID),
			slog.String("error", err.Error()),
		)
	}
}

// realizedPnL computes the spread captured by two filled legs. Sizes are
// converted to contract units at leg1's limit price. Buy-both pairs pay
// out $1 per unit at resolution; sell-both pairs collect the premium over
// $1; opposed legs capture the fill spread directly.
func realizedPnL(leg1, leg2 domain.Leg) float64 {
	if leg1.Price <= 0 {
		return 0
	}
	units := leg1.SizeUSD / leg1.Price

	switch {
	case leg1.Side == domain.OrderSideBuy && leg2.Side == domain.OrderSideBuy:
		return (1 - leg1.FilledPrice - leg2.FilledPrice) * units
	case leg1.Side == domain.OrderSideSell && leg2.Side == domain.OrderSideSell:
		return (leg1.FilledPrice + leg2.FilledPrice - 1) * units
	case leg1.Side == domain.OrderSideSell:
		return (leg1.FilledPrice - leg2.FilledPrice) * units
	default:
		return (leg2.FilledPrice - leg1.FilledPrice) * units
	}
}
