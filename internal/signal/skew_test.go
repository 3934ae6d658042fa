package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/funtechnologywith-source/skew-hunter/internal/config"
	"github.com/funtechnologywith-source/skew-hunter/internal/models"
)

func relaxedMode() config.ModeConfig {
	return config.ModeConfig{
		Alpha1Call: 0.65, Alpha1Put: 0.65,
		Alpha2Call: 0.68, Alpha2Put: 0.68,
		MinConfidence:        65,
		MinQualityScore:      65,
		MinConfluence:        2,
		VolumeRatioThreshold: 1.5,
		OIChangeVelocity:     5,
	}
}

func defaultFilters() config.FilterConfig {
	return config.FilterConfig{
		MinOptionPrice:     20,
		MaxOptionPrice:     150,
		MinVolume:          25000,
		MaxSpreadPct:       2.5,
		MinVIX:             10,
		MinOIChangeWriting: 400000,
	}
}

// callBuyingInput passes every CALL buying gate. VIX 14 puts the
// traded strike one hundred points above the money.
func callBuyingInput() Input {
	atm := 24500
	chain := models.OptionChain{
		atm + 100: {CE: &models.OptionQuote{
			LTP:    85,
			Volume: 60000,
			Bid:    84.5,
			Ask:    85.5,
		}},
	}
	return Input{
		Indicators: models.Indicators{
			Alpha1Call:      0.80,
			Alpha2Call:      0.75,
			QualityCall:     78,
			PCR:             0.85,
			VolumeRatioCall: 2.0,
			ConfluenceCall:  3,
			Trend:           "UPTREND",
			TrendScore:      0.7,
			RSI:             60,
		},
		Chain:     chain,
		ATMStrike: atm,
		VIX:       14,
		DTE:       3,
	}
}

func TestGenerateCallBuying(t *testing.T) {
	s := NewSkew(relaxedMode(), defaultFilters())

	d := s.Generate(callBuyingInput())
	require.NotNil(t, d)
	assert.Equal(t, models.SideCall, d.Side)
	assert.Equal(t, 24600, d.Strike)
	assert.Equal(t, 85.0, d.PriceHint)
	assert.Equal(t, PathBuying, d.Path)
	assert.Greater(t, d.Confidence, 0.0)
}

func TestGenerateMinVIXGate(t *testing.T) {
	s := NewSkew(relaxedMode(), defaultFilters())
	in := callBuyingInput()
	in.VIX = 9.5
	assert.Nil(t, s.Generate(in))
}

func TestGenerateNoChainNoSignal(t *testing.T) {
	s := NewSkew(relaxedMode(), defaultFilters())
	in := callBuyingInput()
	in.Chain = nil
	assert.Nil(t, s.Generate(in))
}

func TestGeneratePriceFilters(t *testing.T) {
	s := NewSkew(relaxedMode(), defaultFilters())

	in := callBuyingInput()
	in.Chain[24600].CE.LTP = 12 // under the floor
	assert.Nil(t, s.Generate(in))

	in = callBuyingInput()
	in.Chain[24600].CE.LTP = 200 // over the cap
	assert.Nil(t, s.Generate(in))

	in = callBuyingInput()
	in.Chain[24600].CE.Volume = 1000 // illiquid
	assert.Nil(t, s.Generate(in))
}

func TestGenerateSpreadFilter(t *testing.T) {
	s := NewSkew(relaxedMode(), defaultFilters())
	in := callBuyingInput()
	in.Chain[24600].CE.Bid = 80
	in.Chain[24600].CE.Ask = 90 // ~11.8% spread
	assert.Nil(t, s.Generate(in))
}

func TestGeneratePutWriting(t *testing.T) {
	s := NewSkew(relaxedMode(), defaultFilters())

	atm := 24500
	in := Input{
		Indicators: models.Indicators{
			// No buying path on either side.
			Alpha1Call: 0.3, Alpha1Put: 0.55,
			Alpha2Call: 0.3, Alpha2Put: 0.3,
			QualityCall: 40, QualityPut: 72,
			// Heavy CE writing builds resistance overhead.
			CEOIChange: 900000,
			PEOIChange: 100000,
			OIVelocity: 100,
			PCR:        0.92,
			RSI:        45,
		},
		Chain: models.OptionChain{
			atm - 100: {PE: &models.OptionQuote{
				LTP:    70,
				Volume: 50000,
				Bid:    69.5,
				Ask:    70.5,
			}},
		},
		ATMStrike: atm,
		VIX:       14,
		DTE:       3,
	}

	d := s.Generate(in)
	require.NotNil(t, d)
	assert.Equal(t, models.SidePut, d.Side)
	assert.Equal(t, PathWriting, d.Path)
	assert.Equal(t, 24400, d.Strike)
}

func TestOptimalStrike(t *testing.T) {
	tests := []struct {
		side models.OptionSide
		vix  float64
		dte  int
		want int
	}{
		{models.SideCall, 14, 0, 24500}, // expiry day goes ATM
		{models.SideCall, 12, 3, 24550},
		{models.SideCall, 14, 3, 24600},
		{models.SideCall, 22, 3, 24550},
		{models.SidePut, 14, 3, 24400},
		{models.SidePut, 22, 3, 24450},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, OptimalStrike(24500, tt.side, tt.vix, tt.dte),
			"side %s vix %.0f dte %d", tt.side, tt.vix, tt.dte)
	}
}

func TestSpreadAcceptable(t *testing.T) {
	assert.True(t, SpreadAcceptable(&models.OptionQuote{Bid: 99, Ask: 101}, 2.5))
	assert.False(t, SpreadAcceptable(&models.OptionQuote{Bid: 95, Ask: 105}, 2.5))
	assert.False(t, SpreadAcceptable(&models.OptionQuote{Bid: 0, Ask: 101}, 2.5))
}

func TestNoneGeneratorNeverSignals(t *testing.T) {
	assert.Nil(t, None.Generate(callBuyingInput()))
}
