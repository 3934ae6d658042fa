package trading

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/funtechnologywith-source/skew-hunter/internal/models"
)

func TestDetectReversalCall(t *testing.T) {
	tr := openTestTrade(t, 100)
	tr.Metrics.Alpha1 = 0.80

	// One warning alone is not a reversal.
	in := models.Indicators{
		RSI:        72,
		Alpha1Call: 0.78,
		Spot:       24500,
		Resistance: 25000,
	}
	reversal, warnings := DetectReversal(in, tr)
	assert.False(t, reversal)
	assert.Len(t, warnings, 1)

	// Overbought RSI plus alpha decay crosses the line.
	in.Alpha1Call = 0.50
	reversal, warnings = DetectReversal(in, tr)
	assert.True(t, reversal)
	assert.Len(t, warnings, 2)
}

func TestDetectReversalPut(t *testing.T) {
	tr := openTestTrade(t, 100)
	tr.Side = models.SidePut
	tr.Metrics.Alpha1 = 0.80

	in := models.Indicators{
		RSI:        25,
		Alpha1Put:  0.82,
		Spot:       24510,
		Support:    24500,
		VWAP:       models.VWAPAbove,
		CEOIChange: 100,
		PEOIChange: 8000,
	}
	reversal, warnings := DetectReversal(in, tr)
	assert.True(t, reversal)
	// RSI oversold, near support, crossed above VWAP.
	assert.Len(t, warnings, 3)
}

func TestDetectReversalQuietMarket(t *testing.T) {
	tr := openTestTrade(t, 100)
	tr.Metrics.Alpha1 = 0.80

	in := models.Indicators{
		RSI:        55,
		Alpha1Call: 0.80,
		Spot:       24500,
		Resistance: 25000,
		Support:    24000,
	}
	reversal, warnings := DetectReversal(in, tr)
	assert.False(t, reversal)
	assert.Empty(t, warnings)
}
