package domain

import "time"

// RelationKind describes the logical relationship between two markets.
type RelationKind string

const (
	RelationMutuallyExclusive RelationKind = "mutually_exclusive" // only one can resolve YES
	RelationComplementary     RelationKind = "complementary"      // one resolving fixes the other
	RelationEntailment        RelationKind = "entailment"         // one implies the other
	RelationIndependent       RelationKind = "independent"        // no logical connection
	RelationContradiction     RelationKind = "contradiction"      // cannot both resolve YES
)

// RelationDirection is the direction of a logical dependency.
type RelationDirection string

const (
	DirectionAImpliesB RelationDirection = "a_implies_b"
	DirectionBImpliesA RelationDirection = "b_implies_a"
	DirectionSymmetric RelationDirection = "symmetric"
	DirectionNone      RelationDirection = "none"
)

// RelationshipSignal is the classifier's verdict for a market pair.
// It is consumed read-only by the combinatorial detector.
type RelationshipSignal struct {
	MarketAID  string
	MarketBID  string
	Kind       RelationKind
	Direction  RelationDirection
	Confidence float64 // 0.0-1.0
	Reasoning  string
	CreatedAt  time.Time
}

// Arbitrageable reports whether the relationship kind can support a
// two-leg arbitrage position at all. Independent pairs never qualify;
// contradictions are excluded because both legs can resolve NO.
func (r RelationshipSignal) Arbitrageable() bool {
	switch r.Kind {
	case RelationMutuallyExclusive, RelationComplementary, RelationEntailment:
		return true
	default:
		return false
	}
}
