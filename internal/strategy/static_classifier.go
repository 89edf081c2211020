package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/predarb/internal/domain"
)

// StaticClassifier serves relationship verdicts from a fixed table,
// typically declared in configuration. It stands in for the external
// classifier collaborator when pair relationships are known up front;
// verdicts seeded into the relation cache by a live collaborator take
// precedence because the scanner consults the cache first.
type StaticClassifier struct {
	signals map[string]domain.RelationshipSignal
}

// NewStaticClassifier creates a classifier over the given signals. Keys
// are normalized so lookup order does not matter.
func NewStaticClassifier(signals []domain.RelationshipSignal) *StaticClassifier {
	table := make(map[string]domain.RelationshipSignal, len(signals))
	for _, sig := range signals {
		table[pairKey(sig.MarketAID, sig.MarketBID)] = sig
	}
	return &StaticClassifier{signals: table}
}

// Classify returns the declared verdict for the pair, in the orientation
// the caller asked for. Unknown pairs return ErrNotFound; the scanner
// skips them rather than guessing a relationship.
func (c *StaticClassifier) Classify(_ context.Context, marketA, marketB string) (domain.RelationshipSignal, error) {
	sig, ok := c.signals[pairKey(marketA, marketB)]
	if !ok {
		return domain.RelationshipSignal{}, fmt.Errorf("classifier: pair (%s, %s): %w", marketA, marketB, domain.ErrNotFound)
	}

	if sig.MarketAID != marketA {
		sig = flipSignal(sig)
	}
	if sig.CreatedAt.IsZero() {
		sig.CreatedAt = time.Now().UTC()
	}
	return sig, nil
}

// flipSignal reorients a signal to the opposite market order. Entailment
// direction flips with the markets; symmetric kinds are unaffected.
func flipSignal(sig domain.RelationshipSignal) domain.RelationshipSignal {
	sig.MarketAID, sig.MarketBID = sig.MarketBID, sig.MarketAID
	switch sig.Direction {
	case domain.DirectionAImpliesB:
		sig.Direction = domain.DirectionBImpliesA
	case domain.DirectionBImpliesA:
		sig.Direction = domain.DirectionAImpliesB
	}
	return sig
}

// pairKey builds an order-insensitive map key.
func pairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

var _ domain.RelationshipClassifier = (*StaticClassifier)(nil)
