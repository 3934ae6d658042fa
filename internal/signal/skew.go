package signal

import (
	"math"

	"github.com/funtechnologywith-source/skew-hunter/internal/config"
	"github.com/funtechnologywith-source/skew-hunter/internal/models"
)

const (
	// Signal paths.
	PathBuying  = "BUYING"
	PathWriting = "WRITING"
)

// Skew is the production generator. Each side has two independent
// trigger paths: the buying path (alpha, volume and quality thresholds
// all met with a supporting trend) and the writing path (heavy option
// writing on the opposite side building support or resistance).
type Skew struct {
	mode    config.ModeConfig
	filters config.FilterConfig
}

// NewSkew creates the generator for the active mode.
func NewSkew(mode config.ModeConfig, filters config.FilterConfig) *Skew {
	return &Skew{mode: mode, filters: filters}
}

// Generate evaluates calls before puts; the first side that passes all
// gates wins the cycle.
func (s *Skew) Generate(in Input) *Decision {
	if s.filters.MinVIX > 0 && in.VIX < s.filters.MinVIX {
		return nil
	}
	if in.ATMStrike == 0 || in.Chain == nil {
		return nil
	}

	if d := s.evaluate(in, models.SideCall); d != nil {
		return d
	}
	return s.evaluate(in, models.SidePut)
}

func (s *Skew) evaluate(in Input, side models.OptionSide) *Decision {
	ind := in.Indicators
	path := ""

	if s.buyingTriggered(ind, side) {
		path = PathBuying
	} else if s.writingTriggered(ind, side) {
		path = PathWriting
	}
	if path == "" {
		return nil
	}

	strike := OptimalStrike(in.ATMStrike, side, in.VIX, in.DTE)
	quote := in.Chain.Quote(strike, side)
	if quote == nil {
		return nil
	}
	if quote.LTP < s.filters.MinOptionPrice || quote.LTP > s.filters.MaxOptionPrice {
		return nil
	}
	if quote.Volume < s.filters.MinVolume {
		return nil
	}
	if !SpreadAcceptable(quote, s.filters.MaxSpreadPct) {
		return nil
	}

	return &Decision{
		Side:       side,
		Strike:     strike,
		PriceHint:  quote.LTP,
		Confidence: s.confidence(ind, side, path),
		Path:       path,
	}
}

func (s *Skew) buyingTriggered(ind models.Indicators, side models.OptionSide) bool {
	if ind.Alpha1(side) < s.alpha1(side) || ind.Alpha2(side) < s.alpha2(side) {
		return false
	}
	if ind.Quality(side) < s.mode.MinQualityScore {
		return false
	}

	if side == models.SideCall {
		// Call buying pushes PCR down.
		if ind.PCR >= 0.95 {
			return false
		}
		if ind.VolumeRatioCall < s.mode.VolumeRatioThreshold {
			return false
		}
		if ind.ConfluenceCall < s.mode.MinConfluence {
			return false
		}
		if ind.Trend == "DOWNTREND" {
			return false
		}
		return ind.RSI < 75
	}

	// Put buying pushes PCR up.
	if ind.PCR <= 1.05 {
		return false
	}
	if ind.VolumeRatioPut < s.mode.VolumeRatioThreshold {
		return false
	}
	if ind.ConfluencePut < s.mode.MinConfluence {
		return false
	}
	if ind.Trend == "UPTREND" {
		return false
	}
	return ind.RSI > 25
}

func (s *Skew) writingTriggered(ind models.Indicators, side models.OptionSide) bool {
	ratio := oiFlowRatio(ind.CEOIChange, ind.PEOIChange)
	if ind.OIVelocity < s.mode.OIChangeVelocity {
		return false
	}
	if ind.Alpha1(side) < 0.50 || ind.Quality(side) < 70 {
		return false
	}

	if side == models.SideCall {
		// Dominant PE writing builds support under the market.
		return ratio < -0.35 &&
			ind.PCR > 1.0 &&
			ind.PEOIChange > s.filters.MinOIChangeWriting &&
			ind.RSI < 75
	}

	// Dominant CE writing builds resistance overhead.
	return ratio > 0.35 &&
		ind.PCR < 1.0 &&
		ind.CEOIChange > s.filters.MinOIChangeWriting &&
		ind.RSI > 25
}

func (s *Skew) confidence(ind models.Indicators, side models.OptionSide, path string) float64 {
	var conf float64
	if path == PathBuying {
		trendTerm := math.Min(ind.TrendScore, 1)
		if side == models.SidePut {
			trendTerm = math.Min(1-ind.TrendScore, 1)
		}
		conf = ind.Alpha1(side)*50 + ind.Alpha2(side)*30 + trendTerm*20
	} else {
		ratio := oiFlowRatio(ind.CEOIChange, ind.PEOIChange)
		conf = math.Abs(ratio)*40 +
			math.Min(ind.OIVelocity/100, 1)*35 +
			math.Min(ind.Quality(side)/100, 1)*25
	}
	return math.Min(conf, 100)
}

func (s *Skew) alpha1(side models.OptionSide) float64 {
	if side == models.SideCall {
		return s.mode.Alpha1Call
	}
	return s.mode.Alpha1Put
}

func (s *Skew) alpha2(side models.OptionSide) float64 {
	if side == models.SideCall {
		return s.mode.Alpha2Call
	}
	return s.mode.Alpha2Put
}

// oiFlowRatio normalizes relative CE vs PE open-interest change into
// [-1, 1]. Negative means PE writing dominates.
func oiFlowRatio(ceChange, peChange float64) float64 {
	total := math.Abs(ceChange) + math.Abs(peChange)
	if total == 0 {
		return 0
	}
	return (ceChange - peChange) / total
}

// OptimalStrike selects the traded strike relative to ATM. On expiry
// day gamma is concentrated at the money; in calm or stormy VIX the
// closer strike's delta pays better than the standard one-step OTM.
func OptimalStrike(atm int, side models.OptionSide, vix float64, dte int) int {
	var offset int
	switch {
	case dte <= 1:
		offset = 0
	case vix < 13:
		offset = 50
	case vix < 18:
		offset = 100
	default:
		offset = 50
	}
	if side == models.SideCall {
		return atm + offset
	}
	return atm - offset
}

// SpreadAcceptable rejects quotes whose bid-ask spread exceeds the
// limit. Missing bid or ask counts as unacceptable.
func SpreadAcceptable(q *models.OptionQuote, maxSpreadPct float64) bool {
	if q.Bid <= 0 || q.Ask <= 0 {
		return false
	}
	mid := (q.Bid + q.Ask) / 2
	if mid <= 0 {
		return false
	}
	return (q.Ask-q.Bid)/mid*100 <= maxSpreadPct
}
