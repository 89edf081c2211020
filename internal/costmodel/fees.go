// Package costmodel provides pure transaction-cost computation: platform
// fees, network gas, and order-book slippage. Everything here is stateless
// after construction and safe for concurrent use without locking.
package costmodel

import (
	"log/slog"
	"sync"

	"github.com/alanyoungcy/predarb/internal/domain"
)

// FeeSchedule describes one venue's fee structure. Either a flat rate or a
// price-bracketed rate (rate depends on how close the contract trades to
// the 50-cent midpoint).
type FeeSchedule struct {
	FlatRate   float64 // fraction of position size, e.g. 0.02
	WinnerOnly bool    // fee charged only on realized winnings
	Bracketed  bool
	LowRate    float64 // rate at price extremes
	MidRate    float64 // rate near the midpoint
	LowCut     float64 // contract price (0-1) below which LowRate applies
	HighCut    float64 // contract price (0-1) above which LowRate applies
}

const (
	// unknownVenueRate is the conservative flat fallback applied when a
	// venue has no registered schedule.
	unknownVenueRate = 0.01

	// defaultContractPrice is assumed when a bracketed schedule gets no
	// contract price.
	defaultContractPrice = 0.5
)

// FeeRegistry resolves venue fee schedules. Schedules are fixed at
// construction; unknown venues fall back to a conservative flat rate with
// a warning rather than an error.
type FeeRegistry struct {
	schedules map[domain.Venue]FeeSchedule
	logger    *slog.Logger

	warnOnce sync.Map // venue -> struct{}, so unknown venues warn once
}

// DefaultSchedules returns the built-in venue fee table: Polymarket takes
// 2% of winnings, Kalshi brackets by contract price (0.5% at the extremes,
// 1.5% in the middle), PNP charges a flat 1%.
func DefaultSchedules() map[domain.Venue]FeeSchedule {
	return map[domain.Venue]FeeSchedule{
		domain.VenuePolymarket: {FlatRate: 0.02, WinnerOnly: true},
		domain.VenueKalshi: {
			Bracketed: true,
			LowRate:   0.005,
			MidRate:   0.015,
			LowCut:    0.20,
			HighCut:   0.80,
		},
		domain.VenuePNP: {FlatRate: 0.01},
	}
}

// NewFeeRegistry creates a FeeRegistry from the given schedules. A nil map
// installs DefaultSchedules.
func NewFeeRegistry(schedules map[domain.Venue]FeeSchedule, logger *slog.Logger) *FeeRegistry {
	if schedules == nil {
		schedules = DefaultSchedules()
	}
	return &FeeRegistry{
		schedules: schedules,
		logger:    logger.With(slog.String("component", "fee_registry")),
	}
}

// PlatformFee computes the platform fee in USD for trading sizeUSD at the
// given venue. contractPrice may be nil when unknown; isWinner matters only
// for winner-fee venues (Polymarket charges on winnings, so a losing
// position pays nothing there). Monotonically non-decreasing in sizeUSD
// for every schedule.
func (r *FeeRegistry) PlatformFee(venue domain.Venue, sizeUSD float64, contractPrice *float64, isWinner bool) float64 {
	if sizeUSD <= 0 {
		return 0
	}

	sched, ok := r.schedules[venue]
	if !ok {
		if _, warned := r.warnOnce.LoadOrStore(venue, struct{}{}); !warned {
			r.logger.Warn("fee_registry: unknown venue, applying conservative flat fee",
				slog.String("venue", string(venue)),
				slog.Float64("rate", unknownVenueRate),
			)
		}
		return sizeUSD * unknownVenueRate
	}

	if sched.WinnerOnly && !isWinner {
		return 0
	}

	if sched.Bracketed {
		price := defaultContractPrice
		if contractPrice != nil {
			price = *contractPrice
		}
		rate := sched.MidRate
		if price < sched.LowCut || price > sched.HighCut {
			rate = sched.LowRate
		}
		return sizeUSD * rate
	}

	return sizeUSD * sched.FlatRate
}

// Known reports whether the venue has a registered schedule.
func (r *FeeRegistry) Known(venue domain.Venue) bool {
	_, ok := r.schedules[venue]
	return ok
}
