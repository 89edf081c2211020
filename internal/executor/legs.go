package executor

import (
	"fmt"

	"github.com/alanyoungcy/predarb/internal/domain"
)

// OrderedLegs builds the two legs for an opportunity, sequenced so that
// the leg with less visible depth goes first. The thin side is the one
// likely to time out; failing on it before the liquid side fills keeps
// the failure clean instead of unhedged.
func OrderedLegs(opp domain.Opportunity) (domain.Leg, domain.Leg, error) {
	switch opp.Kind {
	case domain.StrategyRebalancing:
		return rebalancingLegs(opp)
	case domain.StrategyCombinatorial:
		return combinatorialLegs(opp)
	}
	return domain.Leg{}, domain.Leg{}, fmt.Errorf("executor: kind %q: %w", opp.Kind, domain.ErrInvalidOpportunity)
}

func rebalancingLegs(opp domain.Opportunity) (domain.Leg, domain.Leg, error) {
	r := opp.Rebalancing
	if r == nil {
		return domain.Leg{}, domain.Leg{}, fmt.Errorf("executor: rebalancing variant missing: %w", domain.ErrInvalidOpportunity)
	}
	side := domain.OrderSideBuy
	if r.Side == domain.RebalancingSellBoth {
		side = domain.OrderSideSell
	}
	yes := domain.Leg{
		Venue:    r.Venue,
		MarketID: r.MarketID,
		Side:     side,
		Price:    r.YesPrice,
		SizeUSD:  opp.PositionSize,
		Status:   domain.LegPending,
	}
	no := yes
	no.Price = r.NoPrice

	// Same market, same book: depth is symmetric, so the dearer contract
	// goes first. It consumes more of the book per unit and is the
	// harder fill.
	if no.Price > yes.Price {
		return no, yes, nil
	}
	return yes, no, nil
}

func combinatorialLegs(opp domain.Opportunity) (domain.Leg, domain.Leg, error) {
	c := opp.Combinatorial
	if c == nil {
		return domain.Leg{}, domain.Leg{}, fmt.Errorf("executor: combinatorial variant missing: %w", domain.ErrInvalidOpportunity)
	}

	legA := domain.Leg{
		Venue:    c.VenueA,
		MarketID: c.MarketA,
		Side:     domain.OrderSideBuy,
		Price:    c.PriceA,
		SizeUSD:  opp.PositionSize,
		Status:   domain.LegPending,
	}
	if c.ShortMarket == c.MarketA {
		legA.Side = domain.OrderSideSell
	}
	legB := domain.Leg{
		Venue:    c.VenueB,
		MarketID: c.MarketB,
		Side:     domain.OrderSideBuy,
		Price:    c.PriceB,
		SizeUSD:  opp.PositionSize,
		Status:   domain.LegPending,
	}
	if c.ShortMarket == c.MarketB {
		legB.Side = domain.OrderSideSell
	}

	if legDepth(c.OrderBookA, legA.Side) > legDepth(c.OrderBookB, legB.Side) {
		return legB, legA, nil
	}
	return legA, legB, nil
}

// legDepth is the visible USD depth a leg would trade against. Unknown
// books count as zero depth, which sorts them first.
func legDepth(book *domain.OrderBookSnapshot, side domain.OrderSide) float64 {
	if book == nil {
		return 0
	}
	return book.Depth(side)
}
