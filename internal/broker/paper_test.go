package broker

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/funtechnologywith-source/skew-hunter/internal/models"
)

func TestPaperResolveInstrument(t *testing.T) {
	p := NewPaper(zerolog.Nop())

	key, err := p.ResolveInstrument(context.Background(), 24500, models.SideCall, "2026-09-01")
	require.NoError(t, err)
	assert.Equal(t, "PAPER|NIFTY26Sep24500CE", key)

	_, err = p.ResolveInstrument(context.Background(), 24500, models.SideCall, "next tuesday")
	require.Error(t, err)
}

func TestPaperOrderLifecycle(t *testing.T) {
	p := NewPaper(zerolog.Nop())
	ctx := context.Background()

	id, err := p.PlaceOrder(ctx, OrderRequest{
		InstrumentKey: "PAPER|NIFTY26Sep24500CE",
		Side:          models.OrderBuy,
		Type:          models.OrderLimit,
		Qty:           65,
		Price:         92.5,
	})
	require.NoError(t, err)
	assert.Equal(t, "P000001", id)

	st, err := p.OrderStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.OrderComplete, st.State)
	assert.Equal(t, 65, st.FilledQty)
	assert.InDelta(t, 92.5, st.AveragePrice, 1e-9)

	positions, err := p.Positions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, 65, positions[0].Qty)
	assert.InDelta(t, 92.5, positions[0].AveragePrice, 1e-9)

	// A full sell flattens the position.
	_, err = p.PlaceOrder(ctx, OrderRequest{
		InstrumentKey: "PAPER|NIFTY26Sep24500CE",
		Side:          models.OrderSell,
		Type:          models.OrderMarket,
		Qty:           65,
		Price:         101.0,
	})
	require.NoError(t, err)

	positions, err = p.Positions(ctx)
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestPaperUnknownOrder(t *testing.T) {
	p := NewPaper(zerolog.Nop())

	_, err := p.OrderStatus(context.Background(), "P999999")
	require.Error(t, err)
	require.Error(t, p.CancelOrder(context.Background(), "P999999"))
}

func TestPaperCancelOnlyFlipsPending(t *testing.T) {
	p := NewPaper(zerolog.Nop())
	ctx := context.Background()

	id, err := p.PlaceOrder(ctx, OrderRequest{
		InstrumentKey: "PAPER|NIFTY26Sep24500CE",
		Side:          models.OrderBuy,
		Qty:           65,
		Price:         92.5,
	})
	require.NoError(t, err)

	// Paper fills immediately, so cancel leaves the order complete.
	require.NoError(t, p.CancelOrder(ctx, id))
	st, err := p.OrderStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.OrderComplete, st.State)
}
