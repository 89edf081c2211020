package ledger

import (
	"time"

	"github.com/alanyoungcy/predarb/internal/domain"
)

// Exposure reports current capital usage across open positions. The
// diversification score is 1 minus the Herfindahl index over per-market
// exposure shares: 1.0 with no open positions, approaching 0 as exposure
// concentrates in a single market.
func (l *Ledger) Exposure() domain.ExposureMetrics {
	l.mu.RLock()
	defer l.mu.RUnlock()

	byMarket := l.exposureByMarketLocked()
	byStrategy := make(map[domain.StrategyKind]float64)
	var total float64
	for _, pos := range l.positions {
		if pos.Status != domain.PositionOpen {
			continue
		}
		total += pos.SizeUSD
		byStrategy[pos.Strategy] += pos.SizeUSD
	}

	var maxMarket float64
	for _, usd := range byMarket {
		if usd > maxMarket {
			maxMarket = usd
		}
	}

	var maxMarketPct float64
	if l.cfg.TotalCapitalUSD > 0 {
		maxMarketPct = maxMarket / l.cfg.TotalCapitalUSD * 100
	}

	return domain.ExposureMetrics{
		TotalExposureUSD:     total,
		ExposureByMarket:     byMarket,
		ExposureByStrategy:   byStrategy,
		MaxMarketExposureUSD: maxMarket,
		MaxMarketExposurePct: maxMarketPct,
		DiversificationScore: diversification(byMarket),
	}
}

// diversification computes 1 - HHI over market exposure shares.
func diversification(byMarket map[string]float64) float64 {
	var total float64
	for _, usd := range byMarket {
		total += usd
	}
	if total == 0 {
		return 1.0
	}
	var hhi float64
	for _, usd := range byMarket {
		share := usd / total
		hhi += share * share
	}
	return 1 - hhi
}

// Snapshot is the serializable ledger state written to the archive on
// shutdown and on a periodic schedule.
type Snapshot struct {
	TakenAt        time.Time              `json:"taken_at"`
	TotalCapital   float64                `json:"total_capital_usd"`
	OpenPositions  []domain.Position      `json:"open_positions"`
	Exposure       domain.ExposureMetrics `json:"exposure"`
	PnLHistory     []domain.PnLRecord     `json:"pnl_history"`
	RealizedPnLUSD float64                `json:"realized_pnl_usd"`
}

// SnapshotState captures the current ledger state for archival.
func (l *Ledger) SnapshotState() Snapshot {
	exposure := l.Exposure()

	l.mu.RLock()
	defer l.mu.RUnlock()

	var open []domain.Position
	for _, pos := range l.positions {
		if pos.Status == domain.PositionOpen {
			open = append(open, pos)
		}
	}
	history := make([]domain.PnLRecord, len(l.pnlHistory))
	copy(history, l.pnlHistory)

	var realized float64
	for _, rec := range history {
		realized += rec.PnLUSD
	}

	return Snapshot{
		TakenAt:        l.now(),
		TotalCapital:   l.cfg.TotalCapitalUSD,
		OpenPositions:  open,
		Exposure:       exposure,
		PnLHistory:     history,
		RealizedPnLUSD: realized,
	}
}
