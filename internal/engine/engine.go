// Package engine ties the analyzer, ledger and executor into the single
// entry point that turns a detected opportunity into a settled (or
// escalated) trade.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/predarb/internal/domain"
	"github.com/alanyoungcy/predarb/internal/executor"
	"github.com/alanyoungcy/predarb/internal/ledger"
	"github.com/alanyoungcy/predarb/internal/strategy"
)

// UnhedgedPolicy selects the corrective action when leg2 fails after
// leg1 filled.
type UnhedgedPolicy string

const (
	PolicyAlert          UnhedgedPolicy = "alert"
	PolicyUnwind         UnhedgedPolicy = "unwind"
	PolicyAlertAndUnwind UnhedgedPolicy = "alert_and_unwind"
)

// ParsePolicy validates a policy string. There is no default: an
// unhedged position is a capital-at-risk event and the operator must
// choose how it is handled.
func ParsePolicy(s string) (UnhedgedPolicy, error) {
	switch UnhedgedPolicy(s) {
	case PolicyAlert, PolicyUnwind, PolicyAlertAndUnwind:
		return UnhedgedPolicy(s), nil
	}
	return "", fmt.Errorf("engine: unhedged policy %q: must be one of alert, unwind, alert_and_unwind", s)
}

// Notification event types.
const (
	EventExecution = "execution"
	EventUnhedged  = "unhedged_position"
)

// Alerter delivers operator notifications. Satisfied by notify.Notifier.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
	NotifyAll(ctx context.Context, title, message string) error
}

// Config holds engine settings.
type Config struct {
	UnhedgedPolicy UnhedgedPolicy
}

// Engine is the trade orchestrator.
type Engine struct {
	analyzer strategy.Analyzer
	ledger   *ledger.Ledger
	exec     *executor.Executor
	alerts   Alerter // optional
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
}

// Option customizes an Engine.
type Option func(*Engine)

// WithAlerter attaches operator notifications.
func WithAlerter(a Alerter) Option {
	return func(e *Engine) { e.alerts = a }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine. cfg.UnhedgedPolicy must be valid (see
// ParsePolicy).
func New(analyzer strategy.Analyzer, led *ledger.Ledger, exec *executor.Executor, cfg Config, logger *slog.Logger, opts ...Option) (*Engine, error) {
	if _, err := ParsePolicy(string(cfg.UnhedgedPolicy)); err != nil {
		return nil, err
	}
	e := &Engine{
		analyzer: analyzer,
		ledger:   led,
		exec:     exec,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "engine")),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Evaluate analyzes an opportunity without trading it.
func (e *Engine) Evaluate(ctx context.Context, opp domain.Opportunity) (domain.ProfitabilityAnalysis, error) {
	return e.analyzer.Analyze(ctx, opp, nil, e.now())
}

// Exposure reports current capital usage.
func (e *Engine) Exposure() domain.ExposureMetrics {
	return e.ledger.Exposure()
}

// PnL aggregates realized PnL.
func (e *Engine) PnL(filter domain.PnLFilter) domain.PnLSummary {
	return e.ledger.PnLSummary(filter)
}

// AuthorizeAndExecute runs the full pipeline for one opportunity:
// re-analyze, reserve capital, open the position, execute both legs, then
// settle or escalate. It returns an error only on malformed input or an
// internal failure; every trading outcome, including rejection and
// unhedged failure, is expressed in the ExecutionResult.
func (e *Engine) AuthorizeAndExecute(ctx context.Context, opp domain.Opportunity) (domain.ExecutionResult, error) {
	result := domain.ExecutionResult{OpportunityID: opp.ID}

	// Re-analyze at decision time: the scan-time verdict may be stale.
	analysis, err := e.analyzer.Analyze(ctx, opp, nil, e.now())
	if err != nil {
		return result, fmt.Errorf("engine: analyze: %w", err)
	}
	result.Analysis = &analysis

	if !analysis.IsProfitable {
		result.Status = domain.ExecutionRejected
		result.Reason = rejectionReason(analysis)
		e.logger.InfoContext(ctx, "engine: opportunity rejected",
			slog.String("opp_id", opp.ID),
			slog.String("reason", result.Reason),
		)
		return result, nil
	}

	alloc, err := e.ledger.Authorize(ctx, ledger.CapitalRequest{
		OpportunityID:      opp.ID,
		Strategy:           opp.Kind,
		RequestedUSD:       opp.PositionSize,
		MarketIDs:          opp.MarketIDs(),
		AvailableLiquidity: availableLiquidity(opp),
	})
	if err != nil {
		var rej *domain.Rejection
		if errors.As(err, &rej) {
			result.Status = domain.ExecutionRejected
			result.Reason = rej.Error()
			return result, nil
		}
		return result, fmt.Errorf("engine: authorize: %w", err)
	}
	result.Allocation = &alloc

	leg1, leg2, err := executor.OrderedLegs(opp)
	if err != nil {
		return result, fmt.Errorf("engine: %w", err)
	}

	markets := opp.MarketIDs()
	marketB := ""
	if len(markets) > 1 {
		marketB = markets[1]
	}
	pos, err := e.ledger.RecordOpen(ctx, alloc, markets[0], marketB, leg1.Price, leg1.Side)
	if err != nil {
		if errors.Is(err, domain.ErrAllocationExpired) {
			result.Status = domain.ExecutionRejected
			result.Reason = "capital allocation expired before submission"
			return result, nil
		}
		return result, fmt.Errorf("engine: open position: %w", err)
	}
	result.Position = &pos

	exec, err := e.exec.Execute(ctx, opp, leg1, leg2)
	if err != nil {
		// Nothing was submitted; release the reserved capital.
		if _, ferr := e.ledger.RecordFailure(ctx, pos.ID); ferr != nil {
			e.logger.WarnContext(ctx, "engine: capital release failed",
				slog.String("position_id", pos.ID),
				slog.String("error", ferr.Error()),
			)
		}
		result.Status = domain.ExecutionFailedClean
		result.Reason = err.Error()
		return result, nil
	}
	result.Execution = &exec
	result.State = exec.State

	return e.settle(ctx, opp, analysis, pos, exec, result)
}

// settle maps the executor's terminal state to ledger accounting and the
// caller-facing result.
func (e *Engine) settle(ctx context.Context, opp domain.Opportunity, analysis domain.ProfitabilityAnalysis, pos domain.Position, exec domain.Execution, result domain.ExecutionResult) (domain.ExecutionResult, error) {
	switch {
	case exec.State == domain.ExecComplete:
		settled, err := e.ledger.RecordSettlement(ctx, pos.ID, exec.RealizedPnL, analysis.Costs.PlatformFeesUSD)
		if err != nil {
			return result, fmt.Errorf("engine: settle: %w", err)
		}
		result.Status = domain.ExecutionSuccess
		result.Position = &settled
		result.PnLUSD = settled.PnLUSD
		e.notify(ctx, EventExecution, "Arbitrage executed",
			fmt.Sprintf("%s %s settled: pnl $%.2f", opp.Kind, opp.ID, settled.PnLUSD))
		return result, nil

	case exec.State.Unhedged():
		return e.handleUnhedged(ctx, opp, pos, exec, result)

	default:
		// Leg1 never filled: clean failure, capital comes straight back.
		failed, err := e.ledger.RecordFailure(ctx, pos.ID)
		if err != nil {
			return result, fmt.Errorf("engine: release capital: %w", err)
		}
		result.Status = domain.ExecutionFailedClean
		result.Reason = fmt.Sprintf("first leg did not fill (%s)", exec.State)
		result.Position = &failed
		return result, nil
	}
}

// handleUnhedged applies the configured corrective policy. The position
// stays open unless an unwind fill flattens it; a failed unwind always
// escalates to the alerter.
func (e *Engine) handleUnhedged(ctx context.Context, opp domain.Opportunity, pos domain.Position, exec domain.Execution, result domain.ExecutionResult) (domain.ExecutionResult, error) {
	result.Status = domain.ExecutionFailedUnhedged
	result.Reason = fmt.Sprintf("second leg failed (%s), first leg filled at %.4f", exec.State, exec.Leg1.FilledPrice)

	e.logger.ErrorContext(ctx, "engine: unhedged position",
		slog.String("opp_id", opp.ID),
		slog.String("position_id", pos.ID),
		slog.String("state", string(exec.State)),
		slog.String("policy", string(e.cfg.UnhedgedPolicy)),
	)

	if e.cfg.UnhedgedPolicy == PolicyAlert || e.cfg.UnhedgedPolicy == PolicyAlertAndUnwind {
		e.alertUnhedged(ctx, opp, pos, exec)
	}
	if e.cfg.UnhedgedPolicy == PolicyAlert {
		return result, nil
	}

	fill, err := e.exec.Unwind(ctx, exec.Leg1)
	if err != nil || fill.Status != domain.FillFilled {
		reason := "unwind did not fill"
		if err != nil {
			reason = err.Error()
		}
		result.Reason += "; " + reason + ", position remains open"
		// Failing to flatten is the worst case; alert even under plain
		// unwind policy.
		if e.cfg.UnhedgedPolicy == PolicyUnwind {
			e.alertUnhedged(ctx, opp, pos, exec)
		}
		return result, nil
	}

	closed, err := e.ledger.RecordClose(ctx, pos.ID, fill.FilledPrice, 0)
	if err != nil {
		return result, fmt.Errorf("engine: close unwound position: %w", err)
	}
	result.Position = &closed
	result.PnLUSD = closed.PnLUSD
	result.Reason += fmt.Sprintf("; unwound at %.4f", fill.FilledPrice)
	return result, nil
}

func (e *Engine) alertUnhedged(ctx context.Context, opp domain.Opportunity, pos domain.Position, exec domain.Execution) {
	if e.alerts == nil {
		return
	}
	msg := fmt.Sprintf(
		"opportunity %s (%s)\nmarket %s filled %s at %.4f for $%.2f\nstate %s, manual intervention may be required",
		opp.ID, opp.Kind, exec.Leg1.MarketID, exec.Leg1.Side, exec.Leg1.FilledPrice, pos.SizeUSD, exec.State,
	)
	// Bypasses event filtering: an unhedged position must always reach
	// the operator.
	if err := e.alerts.NotifyAll(ctx, "UNHEDGED POSITION", msg); err != nil {
		e.logger.ErrorContext(ctx, "engine: unhedged alert delivery failed",
			slog.String("error", err.Error()),
		)
	}
}

func (e *Engine) notify(ctx context.Context, event, title, message string) {
	if e.alerts == nil {
		return
	}
	if err := e.alerts.Notify(ctx, event, title, message); err != nil {
		e.logger.WarnContext(ctx, "engine: notification failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// rejectionReason summarizes why the analysis failed the profitability
// gate.
func rejectionReason(analysis domain.ProfitabilityAnalysis) string {
	reason := fmt.Sprintf("net profit %.2f%% below required margin", analysis.NetProfitPct)
	if len(analysis.RiskFactors) > 0 {
		reason += ": " + strings.Join(analysis.RiskFactors, "; ")
	}
	return reason
}

// availableLiquidity is the visible depth backing the opportunity, used
// for the ledger's liquidity cap. Zero means unknown.
func availableLiquidity(opp domain.Opportunity) float64 {
	switch opp.Kind {
	case domain.StrategyRebalancing:
		r := opp.Rebalancing
		if r == nil || r.OrderBook == nil {
			return 0
		}
		side := domain.OrderSideBuy
		if r.Side == domain.RebalancingSellBoth {
			side = domain.OrderSideSell
		}
		return r.OrderBook.Depth(side)
	case domain.StrategyCombinatorial:
		c := opp.Combinatorial
		if c == nil || c.OrderBookA == nil || c.OrderBookB == nil {
			return 0
		}
		depthA := c.OrderBookA.Depth(domain.OrderSideBuy) + c.OrderBookA.Depth(domain.OrderSideSell)
		depthB := c.OrderBookB.Depth(domain.OrderSideBuy) + c.OrderBookB.Depth(domain.OrderSideSell)
		if depthA < depthB {
			return depthA
		}
		return depthB
	}
	return 0
}
