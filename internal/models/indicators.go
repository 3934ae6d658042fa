package models

// VWAPPosition marks where the spot trades relative to VWAP.
type VWAPPosition string

const (
	VWAPAbove VWAPPosition = "ABOVE"
	VWAPBelow VWAPPosition = "BELOW"
)

// Indicators is one computed snapshot of the market, the input to both
// entry signal generation and reversal detection.
type Indicators struct {
	Spot       float64
	VIX        float64
	ATR14      float64
	RSI        float64
	PCR        float64
	Trend      string
	TrendScore float64
	VWAP       VWAPPosition

	Alpha1Call float64
	Alpha1Put  float64
	Alpha2Call float64
	Alpha2Put  float64

	QualityCall float64
	QualityPut  float64

	VolumeRatioCall float64
	VolumeRatioPut  float64
	ConfluenceCall  int
	ConfluencePut   int

	CEOIChange float64
	PEOIChange float64
	OIVelocity float64

	Support    float64
	Resistance float64
}

// Alpha1 returns the primary alpha for the given side.
func (in Indicators) Alpha1(side OptionSide) float64 {
	if side == SideCall {
		return in.Alpha1Call
	}
	return in.Alpha1Put
}

// Alpha2 returns the confirming alpha for the given side.
func (in Indicators) Alpha2(side OptionSide) float64 {
	if side == SideCall {
		return in.Alpha2Call
	}
	return in.Alpha2Put
}

// Quality returns the quality score for the given side.
func (in Indicators) Quality(side OptionSide) float64 {
	if side == SideCall {
		return in.QualityCall
	}
	return in.QualityPut
}
