package trading

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/funtechnologywith-source/skew-hunter/internal/models"
)

// OpenParams carries everything needed to open a position.
type OpenParams struct {
	TradeID    int
	Side       models.OptionSide
	Strike     int
	LTP        float64
	Qty        int
	Expiry     string // YYYY-MM-DD
	VIX        float64
	Regime     models.RegimeParams
	Metrics    models.EntryMetrics
	SignalPath string
	Channel    models.ExecutionChannel
	Now        time.Time
}

// Open creates a new trade with its regime risk parameters locked in.
// The initial stop sits initial_sl below entry; the trailing latch
// starts disarmed.
func Open(p OpenParams) *models.Trade {
	expiry := strings.ReplaceAll(p.Expiry, "-", "")
	instrument := fmt.Sprintf("NIFTY %s %d %s", expiry, p.Strike, p.Side.OptionType())

	return &models.Trade{
		ID:         p.TradeID,
		Instrument: instrument,
		Side:       p.Side,
		Strike:     p.Strike,
		EntryPrice: p.LTP,
		EntryTime:  p.Now,
		Qty:        p.Qty,

		CurrentLTP:   p.LTP,
		HighestPrice: p.LTP,
		LowestPrice:  p.LTP,

		EntryVIX:            p.VIX,
		Regime:              p.Regime.Name,
		InitialStopFrac:     p.Regime.InitialStopFrac,
		TrailActivationFrac: p.Regime.TrailActivationFrac,
		TrailDistanceFrac:   p.Regime.TrailDistanceFrac,

		HighestPremium: p.LTP,
		TrailingActive: false,
		CurrentStop:    p.LTP * (1 - p.Regime.InitialStopFrac),

		Metrics:    p.Metrics,
		SignalPath: p.SignalPath,
		Channel:    p.Channel,
	}
}

// Advance feeds a new premium mark into the trade's trailing-stop
// state.
//
// The stop only ratchets up, never down. While the trail is disarmed
// the candidate stop hangs off the entry price; once profit reaches
// the activation threshold the latch arms permanently and the
// candidate hangs off the highest premium seen. Either way the stop
// replaces the old one only when strictly greater.
//
// Example in the normal regime (22% activation, 28% distance):
// entry 100 stops at 75; a rise to 130 arms the trail and lifts the
// stop to 93.60; a dip to 120 leaves both peak and stop untouched; a
// further rise to 150 lifts the stop to 108.
func Advance(t *models.Trade, ltp float64) {
	t.CurrentLTP = ltp

	t.HighestPrice = math.Max(t.HighestPrice, ltp)
	t.LowestPrice = math.Min(t.LowestPrice, ltp)

	if ltp > t.HighestPremium {
		t.HighestPremium = ltp
	}

	var profitFrac float64
	if t.EntryPrice > 0 {
		profitFrac = (ltp - t.EntryPrice) / t.EntryPrice
	}

	// One-way latch.
	if profitFrac >= t.TrailActivationFrac {
		t.TrailingActive = true
	}

	var candidate float64
	if t.TrailingActive {
		candidate = t.HighestPremium * (1 - t.TrailDistanceFrac)
	} else {
		candidate = t.EntryPrice * (1 - t.InitialStopFrac)
	}

	if candidate > t.CurrentStop {
		t.CurrentStop = candidate
	}
}

// Close seals the trade. Closing twice is a programming error and
// returns the trade unchanged.
func Close(t *models.Trade, price float64, reason models.ExitReason, now time.Time) {
	if t.Closure != nil {
		return
	}
	t.CurrentLTP = price
	t.Closure = &models.Closure{
		Price:  price,
		Time:   now,
		Reason: reason,
	}
}
