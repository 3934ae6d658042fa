package trading

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/funtechnologywith-source/skew-hunter/internal/models"
)

func normalRegime() models.RegimeParams {
	return models.RegimeParams{
		Name:                "normal",
		InitialStopFrac:     0.25,
		TrailActivationFrac: 0.22,
		TrailDistanceFrac:   0.28,
	}
}

func openTestTrade(t *testing.T, entry float64) *models.Trade {
	t.Helper()
	tr := Open(OpenParams{
		TradeID: 1,
		Side:    models.SideCall,
		Strike:  24500,
		LTP:     entry,
		Qty:     65,
		Expiry:  "2026-09-01",
		VIX:     14.2,
		Regime:  normalRegime(),
		Now:     time.Date(2026, 8, 28, 10, 30, 0, 0, time.UTC),
	})
	require.NotNil(t, tr)
	return tr
}

func TestOpen(t *testing.T) {
	tr := openTestTrade(t, 100)

	assert.Equal(t, "NIFTY 20260901 24500 CE", tr.Instrument)
	assert.Equal(t, 100.0, tr.EntryPrice)
	assert.Equal(t, 100.0, tr.HighestPremium)
	assert.Equal(t, 75.0, tr.CurrentStop)
	assert.False(t, tr.TrailingActive)
	assert.True(t, tr.IsOpen())
	assert.Equal(t, "normal", tr.Regime)
}

func TestOpenPutInstrument(t *testing.T) {
	tr := Open(OpenParams{
		TradeID: 2,
		Side:    models.SidePut,
		Strike:  24400,
		LTP:     80,
		Qty:     65,
		Expiry:  "2026-09-01",
		Regime:  normalRegime(),
		Now:     time.Now(),
	})
	assert.Equal(t, "NIFTY 20260901 24400 PE", tr.Instrument)
}

func TestAdvanceWalk(t *testing.T) {
	tr := openTestTrade(t, 100)

	// Below activation nothing moves.
	Advance(tr, 110)
	assert.False(t, tr.TrailingActive)
	assert.Equal(t, 75.0, tr.CurrentStop)

	// 30% profit arms the trail: 130 * (1 - 0.28) = 93.60.
	Advance(tr, 130)
	assert.True(t, tr.TrailingActive)
	assert.InDelta(t, 93.60, tr.CurrentStop, 1e-9)
	assert.Equal(t, 130.0, tr.HighestPremium)

	// A dip leaves peak and stop untouched.
	Advance(tr, 120)
	assert.InDelta(t, 93.60, tr.CurrentStop, 1e-9)
	assert.Equal(t, 130.0, tr.HighestPremium)
	assert.Equal(t, 120.0, tr.CurrentLTP)

	// A new peak ratchets the stop up.
	Advance(tr, 150)
	assert.InDelta(t, 108.0, tr.CurrentStop, 1e-9)
	assert.Equal(t, 150.0, tr.HighestPremium)
}

func TestAdvanceLatchIsOneWay(t *testing.T) {
	tr := openTestTrade(t, 100)

	Advance(tr, 130)
	require.True(t, tr.TrailingActive)

	// Profit falls back under the activation threshold; the latch and
	// the trailing stop survive.
	Advance(tr, 105)
	assert.True(t, tr.TrailingActive)
	assert.InDelta(t, 93.60, tr.CurrentStop, 1e-9)
}

func TestAdvanceTracksExcursions(t *testing.T) {
	tr := openTestTrade(t, 100)

	Advance(tr, 95)
	Advance(tr, 112)
	Advance(tr, 104)

	assert.Equal(t, 112.0, tr.HighestPrice)
	assert.Equal(t, 95.0, tr.LowestPrice)
	assert.InDelta(t, 12.0, tr.MFEPercent(), 1e-9)
	assert.InDelta(t, 5.0, tr.MAEPercent(), 1e-9)
}

func TestCloseIsIdempotent(t *testing.T) {
	tr := openTestTrade(t, 100)
	at := time.Date(2026, 8, 28, 14, 0, 0, 0, time.UTC)

	Close(tr, 118, models.ExitProfitTarget, at)
	require.False(t, tr.IsOpen())
	assert.Equal(t, 118.0, tr.Closure.Price)
	assert.Equal(t, models.ExitProfitTarget, tr.Closure.Reason)

	Close(tr, 50, models.ExitManual, at.Add(time.Minute))
	assert.Equal(t, 118.0, tr.Closure.Price)
	assert.Equal(t, models.ExitProfitTarget, tr.Closure.Reason)
}
