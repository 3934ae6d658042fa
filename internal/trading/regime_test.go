package trading

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/funtechnologywith-source/skew-hunter/internal/config"
)

func standardBands() map[string]config.RegimeBand {
	return map[string]config.RegimeBand{
		"low":      {MaxVIX: 12, InitialSLPct: 0.25, TrailActivation: 0.20, TrailDistance: 0.25},
		"normal":   {MaxVIX: 15, InitialSLPct: 0.25, TrailActivation: 0.22, TrailDistance: 0.28},
		"elevated": {MaxVIX: 20, InitialSLPct: 0.25, TrailActivation: 0.25, TrailDistance: 0.32},
		"high":     {MaxVIX: 25, InitialSLPct: 0.25, TrailActivation: 0.28, TrailDistance: 0.38},
		"extreme":  {MaxVIX: 100, InitialSLPct: 0.25, TrailActivation: 0.32, TrailDistance: 0.42},
	}
}

func TestSelectRegime(t *testing.T) {
	bands := standardBands()

	tests := []struct {
		vix      float64
		want     string
		distance float64
	}{
		{9.5, "low", 0.25},
		{12, "low", 0.25},
		{12.01, "normal", 0.28},
		{14.9, "normal", 0.28},
		{18, "elevated", 0.32},
		{24, "high", 0.38},
		{40, "extreme", 0.42},
		// Off the top of every band, the widest one holds.
		{250, "extreme", 0.42},
	}

	for _, tt := range tests {
		got := SelectRegime(tt.vix, bands)
		assert.Equal(t, tt.want, got.Name, "vix %.2f", tt.vix)
		assert.Equal(t, tt.distance, got.TrailDistanceFrac, "vix %.2f", tt.vix)
	}
}

func TestSelectRegimeParamsFlowIntoTrade(t *testing.T) {
	params := SelectRegime(22, standardBands())
	tr := Open(OpenParams{
		TradeID: 1, Strike: 24500, LTP: 100, Qty: 65,
		Expiry: "2026-09-01", VIX: 22, Regime: params,
	})

	assert.Equal(t, "high", tr.Regime)
	assert.Equal(t, 0.28, tr.TrailActivationFrac)
	assert.Equal(t, 0.38, tr.TrailDistanceFrac)
	assert.Equal(t, 75.0, tr.CurrentStop)
}

func TestSelectRegimeDefaultsWhenUnconfigured(t *testing.T) {
	for _, bands := range []map[string]config.RegimeBand{nil, {}} {
		got := SelectRegime(14, bands)
		assert.Equal(t, "normal", got.Name)
		assert.Equal(t, 0.25, got.InitialStopFrac)
		assert.Equal(t, 0.22, got.TrailActivationFrac)
		assert.Equal(t, 0.28, got.TrailDistanceFrac)
	}
}
