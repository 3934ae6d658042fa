package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	apperrors "github.com/funtechnologywith-source/skew-hunter/internal/errors"
	"github.com/funtechnologywith-source/skew-hunter/internal/models"
)

// Paper simulates a broker with immediate fills at the requested price.
// It backs the paper execution channel and tests.
type Paper struct {
	log zerolog.Logger

	mu        sync.Mutex
	nextID    int
	orders    map[string]*OrderStatus
	positions map[string]Position
}

// NewPaper creates a paper broker.
func NewPaper(log zerolog.Logger) *Paper {
	return &Paper{
		log:       log.With().Str("broker", "paper").Logger(),
		nextID:    1,
		orders:    make(map[string]*OrderStatus),
		positions: make(map[string]Position),
	}
}

func (p *Paper) Name() string { return "paper" }

// ResolveInstrument builds a synthetic key in the Upstox shape.
func (p *Paper) ResolveInstrument(_ context.Context, strike int, side models.OptionSide, expiry string) (string, error) {
	dt, err := time.Parse("2006-01-02", expiry)
	if err != nil {
		return "", apperrors.Wrapf(apperrors.ErrNoInstrument, "bad expiry %q", expiry)
	}
	return fmt.Sprintf("PAPER|NIFTY%s%d%s", dt.Format("06Jan"), strike, side.OptionType()), nil
}

// PlaceOrder records an immediately filled order.
func (p *Paper) PlaceOrder(_ context.Context, req OrderRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	orderID := fmt.Sprintf("P%06d", p.nextID)
	p.nextID++

	p.orders[orderID] = &OrderStatus{
		State:        models.OrderComplete,
		FilledQty:    req.Qty,
		AveragePrice: req.Price,
	}

	pos := p.positions[req.InstrumentKey]
	pos.InstrumentKey = req.InstrumentKey
	pos.Instrument = req.InstrumentKey
	if req.Side == models.OrderBuy {
		pos.Qty += req.Qty
		pos.AveragePrice = req.Price
	} else {
		pos.Qty -= req.Qty
	}
	if pos.Qty == 0 {
		delete(p.positions, req.InstrumentKey)
	} else {
		p.positions[req.InstrumentKey] = pos
	}

	p.log.Info().
		Str("order_id", orderID).
		Str("instrument", req.InstrumentKey).
		Str("side", string(req.Side)).
		Int("qty", req.Qty).
		Float64("price", req.Price).
		Msg("Paper order filled")

	return orderID, nil
}

// OrderStatus returns the recorded order state.
func (p *Paper) OrderStatus(_ context.Context, orderID string) (*OrderStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.orders[orderID]
	if !ok {
		return nil, apperrors.NewOrderError(orderID, "", "status", "unknown order", apperrors.ErrDataNotFound)
	}
	out := *st
	return &out, nil
}

// CancelOrder marks a pending order cancelled. Paper fills are
// immediate, so this only matters for orders seeded by tests.
func (p *Paper) CancelOrder(_ context.Context, orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.orders[orderID]
	if !ok {
		return apperrors.NewOrderError(orderID, "", "cancel", "unknown order", apperrors.ErrDataNotFound)
	}
	if st.State == models.OrderPending {
		st.State = models.OrderCancelled
	}
	return nil
}

// Positions lists simulated open positions.
func (p *Paper) Positions(_ context.Context) ([]Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Position, 0, len(p.positions))
	for _, pos := range p.positions {
		out = append(out, pos)
	}
	return out, nil
}
