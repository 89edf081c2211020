package costmodel

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/predarb/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func floatPtr(v float64) *float64 { return &v }

func TestPlatformFee(t *testing.T) {
	reg := NewFeeRegistry(nil, testLogger())

	tests := []struct {
		name          string
		venue         domain.Venue
		sizeUSD       float64
		contractPrice *float64
		isWinner      bool
		want          float64
	}{
		{"polymarket winner pays 2%", domain.VenuePolymarket, 100, nil, true, 2.0},
		{"polymarket loser pays nothing", domain.VenuePolymarket, 100, nil, false, 0.0},
		{"kalshi midpoint pays 1.5%", domain.VenueKalshi, 100, floatPtr(0.50), true, 1.5},
		{"kalshi extreme low pays 0.5%", domain.VenueKalshi, 100, floatPtr(0.10), true, 0.5},
		{"kalshi extreme high pays 0.5%", domain.VenueKalshi, 100, floatPtr(0.90), true, 0.5},
		{"kalshi missing price assumes midpoint", domain.VenueKalshi, 200, nil, true, 3.0},
		{"pnp flat 1%", domain.VenuePNP, 100, nil, true, 1.0},
		{"unknown venue conservative 1%", domain.Venue("mystery"), 100, nil, true, 1.0},
		{"zero size pays nothing", domain.VenuePolymarket, 0, nil, true, 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := reg.PlatformFee(tt.venue, tt.sizeUSD, tt.contractPrice, tt.isWinner)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

// Fees must be monotonically non-decreasing in position size for every
// schedule, including the unknown-venue fallback.
func TestPlatformFeeMonotonic(t *testing.T) {
	reg := NewFeeRegistry(nil, testLogger())

	venues := []domain.Venue{
		domain.VenuePolymarket,
		domain.VenueKalshi,
		domain.VenuePNP,
		domain.Venue("unregistered"),
	}
	sizes := []float64{0, 1, 10, 50, 100, 500, 1000, 25000}

	for _, venue := range venues {
		prev := -1.0
		for _, size := range sizes {
			fee := reg.PlatformFee(venue, size, floatPtr(0.42), true)
			assert.GreaterOrEqual(t, fee, prev,
				"venue %s: fee decreased between sizes", venue)
			prev = fee
		}
	}
}

func TestFeeRegistryKnown(t *testing.T) {
	reg := NewFeeRegistry(nil, testLogger())
	assert.True(t, reg.Known(domain.VenueKalshi))
	assert.False(t, reg.Known(domain.Venue("nope")))
}
