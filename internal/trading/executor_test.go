package trading

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/funtechnologywith-source/skew-hunter/internal/broker"
	"github.com/funtechnologywith-source/skew-hunter/internal/config"
	apperrors "github.com/funtechnologywith-source/skew-hunter/internal/errors"
	"github.com/funtechnologywith-source/skew-hunter/internal/models"
)

// stubBroker serves a scripted sequence of order statuses, repeating
// the last one forever.
type stubBroker struct {
	statuses  []broker.OrderStatus
	idx       int
	placed    []broker.OrderRequest
	cancelled []string
}

func (s *stubBroker) Name() string { return "stub" }

func (s *stubBroker) ResolveInstrument(_ context.Context, strike int, side models.OptionSide, _ string) (string, error) {
	return "STUB|KEY", nil
}

func (s *stubBroker) PlaceOrder(_ context.Context, req broker.OrderRequest) (string, error) {
	s.placed = append(s.placed, req)
	return "ORD-1", nil
}

func (s *stubBroker) OrderStatus(_ context.Context, _ string) (*broker.OrderStatus, error) {
	st := s.statuses[s.idx]
	if s.idx < len(s.statuses)-1 {
		s.idx++
	}
	return &st, nil
}

func (s *stubBroker) CancelOrder(_ context.Context, orderID string) error {
	s.cancelled = append(s.cancelled, orderID)
	return nil
}

func (s *stubBroker) Positions(_ context.Context) ([]broker.Position, error) {
	return nil, nil
}

func fastExecutor(b broker.Broker, channel models.ExecutionChannel) *Executor {
	e := NewExecutor(b, channel, config.ExecutionConfig{OrderType: "MARKET", OrderTimeoutSeconds: 30}, zerolog.Nop())
	e.fillTimeout = 50 * time.Millisecond
	e.pollInterval = 2 * time.Millisecond
	return e
}

func TestWaitForFillCompletes(t *testing.T) {
	b := &stubBroker{statuses: []broker.OrderStatus{
		{State: models.OrderPending},
		{State: models.OrderComplete, FilledQty: 65, AveragePrice: 101.5},
	}}
	e := fastExecutor(b, models.ChannelLive)

	fill, err := e.WaitForFill(context.Background(), "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, 101.5, fill.Price)
	assert.Equal(t, 65, fill.Qty)
}

func TestWaitForFillRejected(t *testing.T) {
	b := &stubBroker{statuses: []broker.OrderStatus{
		{State: models.OrderRejected, RejectionReason: "margin shortfall"},
	}}
	e := fastExecutor(b, models.ChannelLive)

	_, err := e.WaitForFill(context.Background(), "ORD-1")
	assert.True(t, apperrors.Is(err, apperrors.ErrOrderRejected))
}

func TestWaitForFillCancelled(t *testing.T) {
	b := &stubBroker{statuses: []broker.OrderStatus{
		{State: models.OrderCancelled},
	}}
	e := fastExecutor(b, models.ChannelLive)

	_, err := e.WaitForFill(context.Background(), "ORD-1")
	assert.True(t, apperrors.Is(err, apperrors.ErrOrderCancelled))
}

func TestWaitForFillTimesOutAfterDeadline(t *testing.T) {
	b := &stubBroker{statuses: []broker.OrderStatus{
		{State: models.OrderPending},
	}}
	e := fastExecutor(b, models.ChannelLive)

	start := time.Now()
	_, err := e.WaitForFill(context.Background(), "ORD-1")
	elapsed := time.Since(start)

	assert.True(t, apperrors.Is(err, apperrors.ErrOrderTimeout))
	assert.GreaterOrEqual(t, elapsed, e.fillTimeout)
}

func TestExecuteEntryOffChannelSkipsBroker(t *testing.T) {
	b := &stubBroker{}
	e := fastExecutor(b, models.ChannelOff)
	tr := openTestTrade(t, 100)

	require.NoError(t, e.ExecuteEntry(context.Background(), tr, "2026-09-01"))
	assert.Empty(t, b.placed)
	assert.Equal(t, models.ChannelOff, tr.Channel)
}

func TestExecuteEntryFillsTrade(t *testing.T) {
	b := &stubBroker{statuses: []broker.OrderStatus{
		{State: models.OrderComplete, FilledQty: 65, AveragePrice: 100.25},
	}}
	e := fastExecutor(b, models.ChannelLive)
	tr := openTestTrade(t, 100)

	require.NoError(t, e.ExecuteEntry(context.Background(), tr, "2026-09-01"))
	assert.Equal(t, "STUB|KEY", tr.InstrumentKey)
	assert.Equal(t, "ORD-1", tr.BrokerOrderID)
	assert.Equal(t, 100.25, tr.ActualFillPrice)
	assert.Equal(t, 65, tr.ActualFillQty)

	require.Len(t, b.placed, 1)
	assert.Equal(t, models.OrderBuy, b.placed[0].Side)
	assert.Equal(t, 65, b.placed[0].Qty)
}

func TestExecuteEntryCancelsUnfilledOrder(t *testing.T) {
	b := &stubBroker{statuses: []broker.OrderStatus{
		{State: models.OrderPending},
	}}
	e := fastExecutor(b, models.ChannelLive)
	tr := openTestTrade(t, 100)

	err := e.ExecuteEntry(context.Background(), tr, "2026-09-01")
	require.Error(t, err)
	assert.Equal(t, []string{"ORD-1"}, b.cancelled)
	assert.Zero(t, tr.ActualFillPrice)
}

func TestExecuteExitSellsEffectiveQty(t *testing.T) {
	b := &stubBroker{statuses: []broker.OrderStatus{
		{State: models.OrderComplete, FilledQty: 50, AveragePrice: 112.4},
	}}
	e := fastExecutor(b, models.ChannelLive)

	tr := openTestTrade(t, 100)
	tr.InstrumentKey = "STUB|KEY"
	tr.ActualFillQty = 50 // partial entry fill
	tr.CurrentLTP = 112

	require.NoError(t, e.ExecuteExit(context.Background(), tr))
	require.Len(t, b.placed, 1)
	assert.Equal(t, models.OrderSell, b.placed[0].Side)
	assert.Equal(t, models.OrderMarket, b.placed[0].Type)
	assert.Equal(t, 50, b.placed[0].Qty)
	assert.Equal(t, 112.4, tr.ActualExitPrice)
}

func TestExecuteExitRequiresInstrumentKey(t *testing.T) {
	e := fastExecutor(&stubBroker{}, models.ChannelLive)
	tr := openTestTrade(t, 100)

	err := e.ExecuteExit(context.Background(), tr)
	assert.True(t, apperrors.Is(err, apperrors.ErrNoInstrument))
}
