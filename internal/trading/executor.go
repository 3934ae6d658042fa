package trading

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/funtechnologywith-source/skew-hunter/internal/broker"
	"github.com/funtechnologywith-source/skew-hunter/internal/config"
	apperrors "github.com/funtechnologywith-source/skew-hunter/internal/errors"
	"github.com/funtechnologywith-source/skew-hunter/internal/models"
	"github.com/funtechnologywith-source/skew-hunter/pkg/utils"
)

const defaultPollInterval = time.Second

// Fill is the outcome of a completed order.
type Fill struct {
	Price float64
	Qty   int
}

// Executor routes entry and exit orders through the selected broker.
// The broker implementation is fixed at construction; the off channel
// is the only path that skips it.
type Executor struct {
	broker       broker.Broker
	channel      models.ExecutionChannel
	orderType    models.OrderType
	fillTimeout  time.Duration
	pollInterval time.Duration
	retry        utils.RetryConfig
	log          zerolog.Logger
}

// NewExecutor creates an executor for the given channel and broker.
func NewExecutor(b broker.Broker, channel models.ExecutionChannel, cfg config.ExecutionConfig, log zerolog.Logger) *Executor {
	timeout := time.Duration(cfg.OrderTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	orderType := models.OrderType(cfg.OrderType)
	if orderType != models.OrderLimit {
		orderType = models.OrderMarket
	}
	retry := utils.DefaultRetryConfig()
	if cfg.MaxRetryAttempts > 0 {
		retry.MaxAttempts = cfg.MaxRetryAttempts
	}
	return &Executor{
		broker:       b,
		channel:      channel,
		orderType:    orderType,
		fillTimeout:  timeout,
		pollInterval: defaultPollInterval,
		retry:        retry,
		log:          log.With().Str("component", "executor").Logger(),
	}
}

// Channel returns the execution channel this executor routes on.
func (e *Executor) Channel() models.ExecutionChannel {
	return e.channel
}

// ExecuteEntry places the entry order for a freshly opened trade. On
// the off channel the trade stays simulated and nothing is sent. On
// paper and live, the order must fill inside the timeout or it is
// cancelled and the entry fails.
func (e *Executor) ExecuteEntry(ctx context.Context, t *models.Trade, expiry string) error {
	t.Channel = e.channel
	if e.channel == models.ChannelOff {
		e.log.Info().Int("trade_id", t.ID).Str("instrument", t.Instrument).Msg("Execution off, simulated entry")
		return nil
	}

	key, err := e.broker.ResolveInstrument(ctx, t.Strike, t.Side, expiry)
	if err != nil {
		return apperrors.Wrap(err, "resolving entry instrument")
	}
	t.InstrumentKey = key

	orderID, err := e.broker.PlaceOrder(ctx, broker.OrderRequest{
		InstrumentKey: key,
		Side:          models.OrderBuy,
		Qty:           t.Qty,
		Type:          e.orderType,
		Price:         t.EntryPrice,
	})
	if err != nil {
		return apperrors.Wrap(err, "placing entry order")
	}
	t.BrokerOrderID = orderID
	e.log.Info().
		Str("broker", e.broker.Name()).
		Str("order_id", orderID).
		Str("instrument", key).
		Int("qty", t.Qty).
		Msg("Entry order placed")

	fill, err := e.WaitForFill(ctx, orderID)
	if err != nil {
		// An unfilled entry leaves no position behind.
		if cancelErr := e.broker.CancelOrder(ctx, orderID); cancelErr != nil {
			e.log.Warn().Str("order_id", orderID).Err(cancelErr).Msg("Cancel after failed fill also failed")
		}
		return apperrors.Wrap(err, "entry not filled")
	}

	t.ActualFillPrice = fill.Price
	t.ActualFillQty = fill.Qty
	e.log.Info().
		Str("order_id", orderID).
		Float64("fill_price", fill.Price).
		Int("fill_qty", fill.Qty).
		Msg("Entry filled")
	return nil
}

// ExecuteExit places the closing sell for a trade. Exits are always
// market orders sized to the actual filled quantity. A failure here
// means the position may still be live at the broker; the caller must
// treat it loudly.
func (e *Executor) ExecuteExit(ctx context.Context, t *models.Trade) error {
	if e.channel == models.ChannelOff {
		return nil
	}

	if t.InstrumentKey == "" {
		return apperrors.NewOrderError("", t.Instrument, "SELL", "no instrument key", apperrors.ErrNoInstrument)
	}

	// A closing order must reach the broker; placement retries on
	// transient failures. Nothing is retried past a returned order ID.
	orderID, err := utils.RetryWithResult(ctx, e.retry, func() (string, error) {
		return e.broker.PlaceOrder(ctx, broker.OrderRequest{
			InstrumentKey: t.InstrumentKey,
			Side:          models.OrderSell,
			Qty:           t.EffectiveQty(),
			Type:          models.OrderMarket,
			Price:         t.CurrentLTP,
		})
	})
	if err != nil {
		return apperrors.Wrap(err, "placing exit order")
	}
	t.ExitOrderID = orderID
	e.log.Info().
		Str("broker", e.broker.Name()).
		Str("order_id", orderID).
		Str("instrument", t.InstrumentKey).
		Int("qty", t.EffectiveQty()).
		Msg("Exit order placed")

	fill, err := e.WaitForFill(ctx, orderID)
	if err != nil {
		return apperrors.Wrap(err, "exit not filled, position may still be open")
	}

	t.ActualExitPrice = fill.Price
	e.log.Info().
		Str("order_id", orderID).
		Float64("fill_price", fill.Price).
		Msg("Exit filled")
	return nil
}

// WaitForFill polls the broker until the order completes, fails
// terminally, or the fill timeout elapses. Transient status errors do
// not abort the wait.
func (e *Executor) WaitForFill(ctx context.Context, orderID string) (*Fill, error) {
	deadline := time.Now().Add(e.fillTimeout)

	for {
		st, err := e.broker.OrderStatus(ctx, orderID)
		if err != nil {
			e.log.Debug().Str("order_id", orderID).Err(err).Msg("Order status check failed")
		} else {
			switch st.State {
			case models.OrderComplete:
				return &Fill{Price: st.AveragePrice, Qty: st.FilledQty}, nil
			case models.OrderRejected:
				e.log.Warn().Str("order_id", orderID).Str("reason", st.RejectionReason).Msg("Order rejected")
				return nil, apperrors.NewOrderError(orderID, "", "fill", st.RejectionReason, apperrors.ErrOrderRejected)
			case models.OrderCancelled:
				return nil, apperrors.NewOrderError(orderID, "", "fill", "cancelled before fill", apperrors.ErrOrderCancelled)
			}
		}

		if !time.Now().Before(deadline) {
			e.log.Warn().Str("order_id", orderID).Dur("timeout", e.fillTimeout).Msg("Order fill timed out")
			return nil, apperrors.ErrOrderTimeout
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(e.pollInterval):
		}
	}
}
