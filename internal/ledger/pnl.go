package ledger

import (
	"github.com/alanyoungcy/predarb/internal/domain"
)

// PnLSummary aggregates realized PnL from closed positions. The filter's
// zero values are ignored; win rate counts strictly positive trades.
func (l *Ledger) PnLSummary(filter domain.PnLFilter) domain.PnLSummary {
	l.mu.RLock()
	defer l.mu.RUnlock()

	summary := domain.PnLSummary{Strategy: filter.Strategy}
	for _, rec := range l.pnlHistory {
		if filter.Strategy != "" && rec.Strategy != filter.Strategy {
			continue
		}
		if !filter.Since.IsZero() && rec.ClosedAt.Before(filter.Since) {
			continue
		}
		if !filter.Until.IsZero() && rec.ClosedAt.After(filter.Until) {
			continue
		}
		summary.TotalTrades++
		summary.TotalPnLUSD += rec.PnLUSD
		if rec.PnLUSD > 0 {
			summary.WinningTrades++
		} else {
			summary.LosingTrades++
		}
	}
	if summary.TotalTrades > 0 {
		summary.WinRatePct = float64(summary.WinningTrades) / float64(summary.TotalTrades) * 100
		summary.AvgPnLUSD = summary.TotalPnLUSD / float64(summary.TotalTrades)
	}
	return summary
}
