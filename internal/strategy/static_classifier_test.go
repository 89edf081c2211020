package strategy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/predarb/internal/domain"
)

func TestStaticClassifierReturnsDeclaredVerdict(t *testing.T) {
	c := NewStaticClassifier([]domain.RelationshipSignal{
		{
			MarketAID:  "mkt-a",
			MarketBID:  "mkt-b",
			Kind:       domain.RelationMutuallyExclusive,
			Direction:  domain.DirectionSymmetric,
			Confidence: 0.9,
		},
	})

	sig, err := c.Classify(context.Background(), "mkt-a", "mkt-b")
	require.NoError(t, err)
	assert.Equal(t, "mkt-a", sig.MarketAID)
	assert.Equal(t, "mkt-b", sig.MarketBID)
	assert.Equal(t, domain.RelationMutuallyExclusive, sig.Kind)
	assert.Equal(t, 0.9, sig.Confidence)
	assert.False(t, sig.CreatedAt.IsZero())
}

func TestStaticClassifierFlipsOrientation(t *testing.T) {
	c := NewStaticClassifier([]domain.RelationshipSignal{
		{
			MarketAID: "mkt-a",
			MarketBID: "mkt-b",
			Kind:      domain.RelationEntailment,
			Direction: domain.DirectionAImpliesB,
		},
	})

	// Asking in the reverse order flips the markets and the direction.
	sig, err := c.Classify(context.Background(), "mkt-b", "mkt-a")
	require.NoError(t, err)
	assert.Equal(t, "mkt-b", sig.MarketAID)
	assert.Equal(t, "mkt-a", sig.MarketBID)
	assert.Equal(t, domain.DirectionBImpliesA, sig.Direction)

	// Symmetric kinds keep their direction either way.
	c = NewStaticClassifier([]domain.RelationshipSignal{
		{
			MarketAID: "mkt-a",
			MarketBID: "mkt-b",
			Kind:      domain.RelationComplementary,
			Direction: domain.DirectionSymmetric,
		},
	})
	sig, err = c.Classify(context.Background(), "mkt-b", "mkt-a")
	require.NoError(t, err)
	assert.Equal(t, domain.DirectionSymmetric, sig.Direction)
}

func TestStaticClassifierUnknownPair(t *testing.T) {
	c := NewStaticClassifier(nil)

	_, err := c.Classify(context.Background(), "mkt-a", "mkt-b")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
