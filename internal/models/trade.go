package models

import (
	"encoding/json"
	"math"
	"time"
)

// RegimeParams holds the volatility-regime risk parameters fixed at
// entry time. They are never re-derived for the life of the trade.
type RegimeParams struct {
	Name                string  `json:"regime_name"`
	InitialStopFrac     float64 `json:"initial_sl_pct"`
	TrailActivationFrac float64 `json:"trail_activation"`
	TrailDistanceFrac   float64 `json:"trail_distance"`
}

// EntryMetrics captures the indicator readings at entry, for journaling.
type EntryMetrics struct {
	Alpha1     float64 `json:"entry_alpha_1"`
	Alpha2     float64 `json:"entry_alpha_2"`
	PCR        float64 `json:"entry_pcr"`
	Confidence float64 `json:"entry_confidence"`
	Quality    float64 `json:"entry_quality"`
	Trend      string  `json:"entry_trend"`
}

// Closure holds the terminal state of a closed trade. All fields are
// set exactly once, together; a nil Closure means the trade is open.
type Closure struct {
	Price  float64    `json:"exit_price"`
	Time   time.Time  `json:"exit_time"`
	Reason ExitReason `json:"exit_reason"`
}

// Trade is the mutable record of one options position. The orchestrator
// owns the single live Trade exclusively; nothing else mutates it.
type Trade struct {
	ID         int        `json:"trade_id"`
	Instrument string     `json:"instrument"`
	Side       OptionSide `json:"trade_type"`
	Strike     int        `json:"strike"`
	EntryPrice float64    `json:"entry_price"`
	EntryTime  time.Time  `json:"entry_time"`
	Qty        int        `json:"qty"`

	CurrentLTP   float64 `json:"current_ltp"`
	HighestPrice float64 `json:"highest_price"`
	// LowestPrice starts at +Inf in memory and normalizes to the
	// 0 sentinel on serialization.
	LowestPrice float64 `json:"-"`

	// Regime risk parameters, fixed at entry.
	EntryVIX            float64 `json:"entry_vix"`
	Regime              string  `json:"vix_regime"`
	InitialStopFrac     float64 `json:"initial_sl_pct"`
	TrailActivationFrac float64 `json:"trail_activation_pct"`
	TrailDistanceFrac   float64 `json:"trail_distance_pct"`

	// Trailing-stop state. HighestPremium and CurrentStop only ratchet
	// up; TrailingActive is a one-way latch.
	HighestPremium float64 `json:"highest_premium"`
	TrailingActive bool    `json:"trailing_active"`
	CurrentStop    float64 `json:"current_stop"`

	Metrics    EntryMetrics `json:"entry_metrics"`
	SignalPath string       `json:"signal_path"`

	ReversalDetected bool `json:"reversal_detected"`

	// Broker execution state.
	BrokerOrderID   string           `json:"broker_order_id,omitempty"`
	InstrumentKey   string           `json:"instrument_key,omitempty"`
	ActualFillPrice float64          `json:"actual_fill_price,omitempty"`
	ActualFillQty   int              `json:"actual_fill_qty,omitempty"`
	Channel         ExecutionChannel `json:"execution_mode"`
	ExitOrderID     string           `json:"exit_order_id,omitempty"`
	ActualExitPrice float64          `json:"actual_exit_price,omitempty"`

	// Closure is nil while the trade is open. Setting it is the only
	// way to close a trade, which keeps the all-or-nothing invariant
	// structural rather than conventional.
	Closure *Closure `json:"closure,omitempty"`
}

// IsOpen reports whether the trade has not been closed.
func (t *Trade) IsOpen() bool {
	return t.Closure == nil
}

// EffectiveEntry returns the real fill price when one exists, otherwise
// the simulated entry price.
func (t *Trade) EffectiveEntry() float64 {
	if t.ActualFillPrice > 0 {
		return t.ActualFillPrice
	}
	return t.EntryPrice
}

// EffectiveQty returns the actually filled quantity, falling back to
// the requested quantity when no fill record exists.
func (t *Trade) EffectiveQty() int {
	if t.ActualFillQty > 0 {
		return t.ActualFillQty
	}
	return t.Qty
}

// effectiveExit returns the best-known exit or mark price.
func (t *Trade) effectiveExit() float64 {
	if t.ActualExitPrice > 0 {
		return t.ActualExitPrice
	}
	if t.Closure != nil && t.Closure.Price > 0 {
		return t.Closure.Price
	}
	return t.CurrentLTP
}

// PnL returns the rupee profit or loss at the current mark (or exit).
func (t *Trade) PnL() float64 {
	return (t.effectiveExit() - t.EffectiveEntry()) * float64(t.EffectiveQty())
}

// PnLPercent returns the percentage profit or loss at the current mark.
func (t *Trade) PnLPercent() float64 {
	entry := t.EffectiveEntry()
	if entry == 0 {
		return 0
	}
	return (t.effectiveExit() - entry) / entry * 100
}

// Duration returns how long the trade has been (or was) held.
func (t *Trade) Duration(now time.Time) time.Duration {
	end := now
	if t.Closure != nil {
		end = t.Closure.Time
	}
	return end.Sub(t.EntryTime)
}

// MFEPercent returns the maximum favorable excursion as a percentage.
func (t *Trade) MFEPercent() float64 {
	if t.EntryPrice == 0 {
		return 0
	}
	return (t.HighestPrice - t.EntryPrice) / t.EntryPrice * 100
}

// MAEPercent returns the maximum adverse excursion as a percentage.
func (t *Trade) MAEPercent() float64 {
	if t.EntryPrice == 0 || math.IsInf(t.LowestPrice, 1) {
		return 0
	}
	return (t.EntryPrice - t.LowestPrice) / t.EntryPrice * 100
}

// tradeJSON mirrors Trade for serialization, carrying the normalized
// lowest-price sentinel.
type tradeJSON struct {
	tradeAlias
	LowestPrice float64 `json:"lowest_price"`
}

type tradeAlias Trade

// MarshalJSON serializes the trade with LowestPrice +Inf normalized to
// the 0 sentinel so the snapshot is valid JSON.
func (t Trade) MarshalJSON() ([]byte, error) {
	out := tradeJSON{tradeAlias: tradeAlias(t)}
	if !math.IsInf(t.LowestPrice, 1) {
		out.LowestPrice = t.LowestPrice
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores a trade snapshot, mapping the 0 sentinel back
// to +Inf so MAE tracking keeps working after recovery.
func (t *Trade) UnmarshalJSON(data []byte) error {
	var in tradeJSON
	in.LowestPrice = 0
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*t = Trade(in.tradeAlias)
	if in.LowestPrice == 0 {
		t.LowestPrice = math.Inf(1)
	} else {
		t.LowestPrice = in.LowestPrice
	}
	return nil
}
