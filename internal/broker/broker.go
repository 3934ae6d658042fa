// Package broker defines the order-routing interface and its Upstox,
// Dhan and paper implementations.
package broker

import (
	"context"

	"github.com/funtechnologywith-source/skew-hunter/internal/models"
)

// OrderRequest describes an order to be placed.
type OrderRequest struct {
	InstrumentKey string
	Side          models.OrderSide
	Qty           int
	Type          models.OrderType
	Price         float64 // limit price, ignored for market orders
}

// OrderStatus is the normalized view of a broker order.
type OrderStatus struct {
	State           models.OrderState
	FilledQty       int
	AveragePrice    float64
	PendingQty      int
	RejectionReason string
}

// Position is one open position reported by the broker.
type Position struct {
	Instrument    string
	InstrumentKey string
	Qty           int
	AveragePrice  float64
	PnL           float64
}

// Broker is the order-routing surface. The engine selects one
// implementation at startup and never branches on broker identity
// afterwards.
type Broker interface {
	// Name identifies the broker in logs and alerts.
	Name() string

	// ResolveInstrument maps a strike, side and expiry (YYYY-MM-DD) to
	// the broker's tradable identifier.
	ResolveInstrument(ctx context.Context, strike int, side models.OptionSide, expiry string) (string, error)

	// PlaceOrder submits an order and returns the broker order ID.
	PlaceOrder(ctx context.Context, req OrderRequest) (string, error)

	// OrderStatus fetches the normalized state of an order.
	OrderStatus(ctx context.Context, orderID string) (*OrderStatus, error)

	// CancelOrder cancels a pending order.
	CancelOrder(ctx context.Context, orderID string) error

	// Positions lists the day's open positions, for fill verification
	// and orphan recovery.
	Positions(ctx context.Context) ([]Position, error)
}
