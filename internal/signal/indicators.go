package signal

import (
	"math"
	"sort"

	"github.com/funtechnologywith-source/skew-hunter/internal/config"
	"github.com/funtechnologywith-source/skew-hunter/internal/models"
)

const (
	rsiPeriod   = 14
	atrPeriod   = 14
	trendPeriod = 20
	strikeStep  = 50
)

// MarketView is the raw material for one indicator computation.
type MarketView struct {
	Chain        models.OptionChain
	ATMStrike    int
	Spot         float64
	VIX          float64
	PriceHistory []float64
	Candles      []models.Candle
}

// ComputeIndicators derives the full indicator snapshot from a market
// view. It is pure; all history lives in the view.
func ComputeIndicators(v MarketView, mode config.ModeConfig) models.Indicators {
	ind := models.Indicators{
		Spot: v.Spot,
		VIX:  v.VIX,
		RSI:  50,
		PCR:  1.0,
	}
	if v.Chain == nil || v.ATMStrike == 0 {
		return ind
	}
	atm := v.ATMStrike

	ind.Alpha1Call = alpha1(v.Chain, atm, models.SideCall)
	ind.Alpha1Put = alpha1(v.Chain, atm, models.SidePut)
	ind.Alpha2Call = alpha2(v.Chain, atm, models.SideCall)
	ind.Alpha2Put = alpha2(v.Chain, atm, models.SidePut)

	ind.PCR = WeightedPCR(v.Chain, atm)
	ind.CEOIChange, ind.PEOIChange = oiChanges(v.Chain, atm)

	totalOI := math.Abs(ind.CEOIChange) + math.Abs(ind.PEOIChange)
	if totalOI > 0 {
		ind.OIVelocity = totalOI / 10000
	}

	ind.VolumeRatioCall = volumeRatio(v.Chain, atm, models.SideCall)
	ind.VolumeRatioPut = volumeRatio(v.Chain, atm, models.SidePut)

	ind.RSI = RSI(v.PriceHistory, rsiPeriod)
	ind.ATR14 = ATRPercent(v.Candles, atrPeriod)

	ind.TrendScore = TrendStrength(v.PriceHistory, trendPeriod)
	switch {
	case ind.TrendScore > 0.6:
		ind.Trend = "UPTREND"
	case ind.TrendScore < 0.4:
		ind.Trend = "DOWNTREND"
	default:
		ind.Trend = "SIDEWAYS"
	}

	ind.VWAP = vwapPosition(v.Spot, v.PriceHistory)
	ind.Support, ind.Resistance = supportResistance(v.Chain, atm)

	ind.QualityCall = qualityScore(ind.Alpha1Call, ind.Alpha2Call, ind.VolumeRatioCall, ind.OIVelocity, ind.TrendScore)
	ind.QualityPut = qualityScore(ind.Alpha1Put, ind.Alpha2Put, ind.VolumeRatioPut, ind.OIVelocity, ind.TrendScore)

	ind.ConfluenceCall = confluence(ind, mode, models.SideCall)
	ind.ConfluencePut = confluence(ind, mode, models.SidePut)

	return ind
}

// WeightedPCR computes the put-call open interest ratio weighted
// toward the money. Strikes further from ATM contribute less.
func WeightedPCR(chain models.OptionChain, atm int) float64 {
	weights := []struct {
		offset int
		w      float64
	}{
		{0, 1.0},
		{strikeStep, 0.8}, {-strikeStep, 0.8},
		{2 * strikeStep, 0.6}, {-2 * strikeStep, 0.6},
		{3 * strikeStep, 0.4}, {-3 * strikeStep, 0.4},
		{4 * strikeStep, 0.2}, {-4 * strikeStep, 0.2},
	}

	var peOI, ceOI float64
	for _, e := range weights {
		sq, ok := chain[atm+e.offset]
		if !ok {
			continue
		}
		if sq.PE != nil {
			peOI += float64(sq.PE.OI) * e.w
		}
		if sq.CE != nil {
			ceOI += float64(sq.CE.OI) * e.w
		}
	}
	if ceOI == 0 {
		return 1.0
	}
	return peOI / ceOI
}

// RSI computes the relative strength index with Wilder's smoothing.
// Too little history yields the neutral 50.
func RSI(prices []float64, period int) float64 {
	if len(prices) < period+1 {
		return 50.0
	}

	gains := make([]float64, 0, len(prices)-1)
	losses := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		d := prices[i] - prices[i-1]
		if d > 0 {
			gains = append(gains, d)
			losses = append(losses, 0)
		} else {
			gains = append(gains, 0)
			losses = append(losses, -d)
		}
	}

	var avgGain, avgLoss float64
	for i := 0; i < period; i++ {
		avgGain += gains[i]
		avgLoss += losses[i]
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period; i < len(gains); i++ {
		avgGain = (avgGain*float64(period-1) + gains[i]) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + losses[i]) / float64(period)
	}

	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// ATRPercent computes the average true range as a percentage of the
// last close.
func ATRPercent(candles []models.Candle, period int) float64 {
	if len(candles) < period+1 {
		return 1.0
	}

	trs := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		tr := candles[i].High - candles[i].Low
		if hc := math.Abs(candles[i].High - candles[i-1].Close); hc > tr {
			tr = hc
		}
		if lc := math.Abs(candles[i].Low - candles[i-1].Close); lc > tr {
			tr = lc
		}
		trs = append(trs, tr)
	}

	var sum float64
	for _, tr := range trs[len(trs)-period:] {
		sum += tr
	}
	atr := sum / float64(period)

	lastClose := candles[len(candles)-1].Close
	if lastClose <= 0 {
		return 1.0
	}
	return atr / lastClose * 100
}

// TrendStrength maps the recent price slope into the (0, 1) range via
// a sigmoid. 0.5 is flat; above 0.6 trends up, below 0.4 trends down.
func TrendStrength(prices []float64, period int) float64 {
	if len(prices) < period {
		return 0.5
	}
	recent := prices[len(prices)-period:]

	// Least squares slope over index 0..n-1.
	n := float64(len(recent))
	var sumX, sumY, sumXY, sumXX float64
	for i, p := range recent {
		x := float64(i)
		sumX += x
		sumY += p
		sumXY += x * p
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0.5
	}
	slope := (n*sumXY - sumX*sumY) / denom

	mean := sumY / n
	if mean == 0 {
		return 0.5
	}
	normalized := slope / mean

	return 1 / (1 + math.Exp(-normalized*1000))
}

// vwapPosition classifies the spot relative to its recent average,
// with a dead band to suppress noise. The ratio threshold is 0.3%.
func vwapPosition(spot float64, prices []float64) models.VWAPPosition {
	if len(prices) < 5 || spot <= 0 {
		return ""
	}
	window := prices
	if len(window) > 20 {
		window = window[len(window)-20:]
	}
	var sum float64
	for _, p := range window {
		sum += p
	}
	sma := sum / float64(len(window))
	if sma <= 0 {
		return ""
	}
	diffPct := (spot - sma) / sma * 100
	switch {
	case diffPct > 0.3:
		return models.VWAPAbove
	case diffPct < -0.3:
		return models.VWAPBelow
	default:
		return ""
	}
}

// supportResistance finds the strikes with peak PE open interest below
// the money and peak CE open interest above it, scanning ATM plus or
// minus 500 points.
func supportResistance(chain models.OptionChain, atm int) (support, resistance float64) {
	support = float64(atm - 2*strikeStep)
	resistance = float64(atm + 2*strikeStep)

	strikes := make([]int, 0, len(chain))
	for s := range chain {
		if s >= atm-500 && s <= atm+500 {
			strikes = append(strikes, s)
		}
	}
	sort.Ints(strikes)

	var maxPE, maxCE int64
	for _, s := range strikes {
		sq := chain[s]
		if sq.PE != nil && s <= atm && sq.PE.OI > maxPE {
			maxPE = sq.PE.OI
			support = float64(s)
		}
		if sq.CE != nil && s >= atm && sq.CE.OI > maxCE {
			maxCE = sq.CE.OI
			resistance = float64(s)
		}
	}
	return support, resistance
}

// oiChanges sums open interest change over the five strikes nearest
// the money.
func oiChanges(chain models.OptionChain, atm int) (ce, pe float64) {
	for off := -2 * strikeStep; off <= 2*strikeStep; off += strikeStep {
		sq, ok := chain[atm+off]
		if !ok {
			continue
		}
		if sq.CE != nil {
			ce += float64(sq.CE.OIChange)
		}
		if sq.PE != nil {
			pe += float64(sq.PE.OIChange)
		}
	}
	return ce, pe
}

// volumeRatio compares OTM to ITM volume on the same option type. A
// high ratio means speculative flow is reaching away from the money.
func volumeRatio(chain models.OptionChain, atm int, side models.OptionSide) float64 {
	otm, itm := otmItmStrikes(atm, side)

	var otmVol, itmVol float64
	for _, s := range otm {
		if q := chain.Quote(s, side); q != nil {
			otmVol += float64(q.Volume)
		}
	}
	for _, s := range itm {
		if q := chain.Quote(s, side); q != nil {
			itmVol += float64(q.Volume)
		}
	}
	return otmVol / math.Max(itmVol, 1)
}

func otmItmStrikes(atm int, side models.OptionSide) (otm, itm []int) {
	above := []int{atm + strikeStep, atm + 2*strikeStep, atm + 3*strikeStep}
	below := []int{atm - strikeStep, atm - 2*strikeStep, atm - 3*strikeStep}
	if side == models.SideCall {
		return above, below
	}
	return below, above
}

// alpha1 scores directional volume and open interest flow into [0, 1].
//
// For calls: OTM CE volume against near-ATM average volume, plus
// bullish OI flow (CE buying above the money or PE writing below it).
// Puts mirror. Flow is normalized against 1% of ATM total OI with a
// 10k floor so quiet chains don't saturate the score.
func alpha1(chain models.OptionChain, atm int, side models.OptionSide) float64 {
	otm, _ := otmItmStrikes(atm, side)
	opposite := models.SidePut
	if side == models.SidePut {
		opposite = models.SideCall
	}
	oppOTM, _ := otmItmStrikes(atm, opposite)

	var otmVolume, otmFlow, oppFlow float64
	for _, s := range otm {
		if q := chain.Quote(s, side); q != nil {
			otmVolume += float64(q.Volume)
			otmFlow += float64(q.OIChange)
		}
	}
	for _, s := range oppOTM {
		if q := chain.Quote(s, opposite); q != nil {
			oppFlow += float64(q.OIChange)
		}
	}

	var atmTotalOI float64
	if sq, ok := chain[atm]; ok {
		if sq.CE != nil {
			atmTotalOI += float64(sq.CE.OI)
		}
		if sq.PE != nil {
			atmTotalOI += float64(sq.PE.OI)
		}
	}
	normFactor := math.Max(atmTotalOI*0.01, 10000)

	var avgVolume float64
	for _, s := range []int{atm - strikeStep, atm, atm + strikeStep} {
		if q := chain.Quote(s, side); q != nil {
			avgVolume += float64(q.Volume)
		}
	}
	avgVolume /= 3

	volumeScore := math.Min(otmVolume/math.Max(avgVolume, 1)/3.0, 1.0) * 0.5

	// Same-side buying plus opposite-side writing, fresh OI only.
	flow := math.Max(0, otmFlow) + math.Max(0, oppFlow)
	oiScore := math.Min(flow/normFactor, 1.0) * 0.5

	return clamp01(volumeScore + oiScore)
}

// alpha2 scores the IV skew between OTM calls and OTM puts. Calls
// score high when call IV leads; puts mirror. Sigmoid-squashed.
func alpha2(chain models.OptionChain, atm int, side models.OptionSide) float64 {
	callStrikes := []int{atm + strikeStep, atm + 2*strikeStep, atm + 3*strikeStep}
	putStrikes := []int{atm - strikeStep, atm - 2*strikeStep, atm - 3*strikeStep}

	callIV := meanIV(chain, callStrikes, models.SideCall)
	putIV := meanIV(chain, putStrikes, models.SidePut)

	atmIV := 15.0
	if q := chain.Quote(atm, side); q != nil && q.IV > 0 {
		atmIV = q.IV
	}
	if callIV <= 0 || putIV <= 0 || atmIV <= 0 {
		return 0.5
	}

	skew := (callIV - putIV) / atmIV
	if side == models.SidePut {
		skew = -skew
	}
	return 1 / (1 + math.Exp(-skew*10))
}

func meanIV(chain models.OptionChain, strikes []int, side models.OptionSide) float64 {
	var sum float64
	var n int
	for _, s := range strikes {
		if q := chain.Quote(s, side); q != nil && q.IV > 0 {
			sum += q.IV
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// qualityScore blends the alphas with participation and trend into a
// 0-100 score. Weights: 25/25/20/15/15.
func qualityScore(a1, a2, volRatio, oiVelocity, trendScore float64) float64 {
	score := a1*25 +
		a2*25 +
		math.Min(volRatio/3, 1)*20 +
		math.Min(oiVelocity/15, 1)*15 +
		trendScore*15
	return math.Min(100, math.Max(0, score))
}

// confluence counts how many independent conditions back a side.
func confluence(ind models.Indicators, mode config.ModeConfig, side models.OptionSide) int {
	count := 0

	if side == models.SideCall {
		if ind.Alpha1Call >= mode.Alpha1Call {
			count++
		}
		if ind.Alpha2Call >= mode.Alpha2Call {
			count++
		}
		// Contrarian: elevated PCR means fear already priced in.
		if ind.PCR > 1.1 {
			count++
		}
		if ind.VolumeRatioCall >= mode.VolumeRatioThreshold {
			count++
		}
		if ind.TrendScore >= 0.6 {
			count++
		}
		if ind.OIVelocity >= mode.OIChangeVelocity {
			count++
		}
		return count
	}

	if ind.Alpha1Put >= mode.Alpha1Put {
		count++
	}
	if ind.Alpha2Put >= mode.Alpha2Put {
		count++
	}
	// Bearish PCR, or CE writing outpacing PE writing.
	if ind.PCR < 0.9 {
		count++
	} else if ind.CEOIChange > ind.PEOIChange && ind.CEOIChange > 0 {
		count++
	}
	if ind.VolumeRatioPut >= mode.VolumeRatioThreshold {
		count++
	}
	if ind.TrendScore <= 0.4 {
		count++
	}
	if ind.OIVelocity >= mode.OIChangeVelocity {
		count++
	}
	return count
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
