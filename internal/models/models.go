// Package models provides domain models for the options trading engine.
package models

import (
	"strings"
	"time"
)

// OptionSide represents the direction of an options trade.
type OptionSide string

const (
	SideCall OptionSide = "CALL"
	SidePut  OptionSide = "PUT"
)

// OptionType returns the exchange suffix for the side (CE/PE).
func (s OptionSide) OptionType() string {
	if s == SidePut {
		return "PE"
	}
	return "CE"
}

// OrderSide represents the transaction type of a broker order.
type OrderSide string

const (
	OrderBuy  OrderSide = "BUY"
	OrderSell OrderSide = "SELL"
)

// OrderType represents the pricing type of a broker order.
type OrderType string

const (
	OrderMarket OrderType = "MARKET"
	OrderLimit  OrderType = "LIMIT"
)

// OrderState is the canonical order status vocabulary. Broker-specific
// statuses are normalized to these four values before they reach the
// execution gateway.
type OrderState string

const (
	OrderComplete  OrderState = "complete"
	OrderPending   OrderState = "pending"
	OrderRejected  OrderState = "rejected"
	OrderCancelled OrderState = "cancelled"
)

// Terminal reports whether the state is final.
func (s OrderState) Terminal() bool {
	return s == OrderComplete || s == OrderRejected || s == OrderCancelled
}

// ExecutionChannel selects how orders are executed.
type ExecutionChannel string

const (
	ChannelOff   ExecutionChannel = "OFF"   // simulate only
	ChannelPaper ExecutionChannel = "PAPER" // record intent, no network call
	ChannelLive  ExecutionChannel = "LIVE"  // real broker orders
)

// ParseChannel maps a config channel string to its canonical form.
// Unknown values fall back to the off channel.
func ParseChannel(s string) ExecutionChannel {
	switch strings.ToLower(s) {
	case "paper":
		return ChannelPaper
	case "live":
		return ChannelLive
	default:
		return ChannelOff
	}
}

// ExitReason identifies why a trade was closed.
type ExitReason string

const (
	ExitTimeExit            ExitReason = "time_exit"
	ExitMTMMaxLoss          ExitReason = "mtm_max_loss"
	ExitMTMProfitProtection ExitReason = "mtm_profit_protection"
	ExitProfitTarget        ExitReason = "profit_target"
	ExitTrailingStop        ExitReason = "trailing_stop"
	ExitInitialStop         ExitReason = "initial_stop"
	ExitManual              ExitReason = "manual_exit"
	ExitEmergency           ExitReason = "emergency_stop"
	ExitEngineStop          ExitReason = "engine_stop"
	ExitOrphan              ExitReason = "orphan_exit"
)

// Candle represents OHLCV data for a time period.
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
}

// OptionQuote holds market data for one option contract.
type OptionQuote struct {
	LTP      float64
	Volume   int64
	OI       int64
	OIChange int64
	IV       float64
	Delta    float64
	Bid      float64
	Ask      float64
}

// StrikeQuotes holds the call and put quotes at one strike.
type StrikeQuotes struct {
	CE *OptionQuote
	PE *OptionQuote
}

// OptionChain maps strike price to its call/put quotes.
type OptionChain map[int]StrikeQuotes

// Quote returns the quote for the given side at a strike, or nil.
func (c OptionChain) Quote(strike int, side OptionSide) *OptionQuote {
	sq, ok := c[strike]
	if !ok {
		return nil
	}
	if side == SidePut {
		return sq.PE
	}
	return sq.CE
}

// Spot represents an index spot quote.
type Spot struct {
	Price     float64
	Change    float64
	ChangePct float64
	FetchedAt time.Time
}
