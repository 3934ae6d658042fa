// Package engine runs the trade lifecycle loop: fetch market data,
// compute indicators, manage the open position or scan for an entry,
// broadcast state and persist the session.
package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/funtechnologywith-source/skew-hunter/internal/config"
	apperrors "github.com/funtechnologywith-source/skew-hunter/internal/errors"
	"github.com/funtechnologywith-source/skew-hunter/internal/market"
	"github.com/funtechnologywith-source/skew-hunter/internal/models"
	"github.com/funtechnologywith-source/skew-hunter/internal/notify"
	"github.com/funtechnologywith-source/skew-hunter/internal/session"
	"github.com/funtechnologywith-source/skew-hunter/internal/signal"
	"github.com/funtechnologywith-source/skew-hunter/internal/store"
	"github.com/funtechnologywith-source/skew-hunter/internal/stream"
	"github.com/funtechnologywith-source/skew-hunter/internal/trading"
	"github.com/funtechnologywith-source/skew-hunter/pkg/utils"
)

const (
	errorBackoff   = 5 * time.Second
	candleInterval = time.Minute
)

// Options wires the engine's collaborators.
type Options struct {
	Config    *config.Config
	Market    *market.Context
	Generator signal.Generator
	Executor  *trading.Executor
	Sessions  *session.Store
	Hub       *stream.Hub
	Notifier  *notify.Multi
	Journal   *store.TradeJournal
	Log       zerolog.Logger
}

// Engine is the single-position lifecycle orchestrator. It owns the
// session state and the live trade exclusively; external callers
// interact through RequestExit and ResolveOrphan.
type Engine struct {
	cfg      *config.Config
	market   *market.Context
	gen      signal.Generator
	exec     *trading.Executor
	sessions *session.Store
	hub      *stream.Hub
	notifier *notify.Multi
	journal  *store.TradeJournal
	log      zerolog.Logger

	rules        *trading.ExitRules
	tradingStart utils.Clock
	lunchStart   utils.Clock
	lunchEnd     utils.Clock
	channel      models.ExecutionChannel

	expiry    string
	expiryDay time.Time

	mu            sync.Mutex
	state         *session.State
	running       bool
	stopRun       context.CancelFunc
	exitRequested models.ExitReason
	orphanPending bool
	indicators    models.Indicators
	warnings      []string
	lastCandles   time.Time
}

// New builds an engine and loads the persisted session. An open trade
// from a previous process is held as a pending orphan: it blocks new
// entries until ResolveOrphan decides its fate.
func New(opts Options) (*Engine, error) {
	rules, err := trading.NewExitRules(opts.Config.Exit)
	if err != nil {
		return nil, apperrors.Wrap(err, "compiling exit rules")
	}
	tradingStart, err := utils.ParseClock(opts.Config.Timing.TradingStart)
	if err != nil {
		return nil, apperrors.Wrap(err, "parsing trading_start")
	}
	lunchStart, err := utils.ParseClock(opts.Config.Timing.LunchAvoidStart)
	if err != nil {
		return nil, apperrors.Wrap(err, "parsing lunch_avoid_start")
	}
	lunchEnd, err := utils.ParseClock(opts.Config.Timing.LunchAvoidEnd)
	if err != nil {
		return nil, apperrors.Wrap(err, "parsing lunch_avoid_end")
	}

	e := &Engine{
		cfg:          opts.Config,
		market:       opts.Market,
		gen:          opts.Generator,
		exec:         opts.Executor,
		sessions:     opts.Sessions,
		hub:          opts.Hub,
		notifier:     opts.Notifier,
		journal:      opts.Journal,
		log:          opts.Log.With().Str("component", "engine").Logger(),
		rules:        rules,
		tradingStart: tradingStart,
		lunchStart:   lunchStart,
		lunchEnd:     lunchEnd,
		channel:      models.ParseChannel(opts.Config.Execution.Channel),
	}
	if e.gen == nil {
		e.gen = signal.None
	}

	e.state = e.sessions.Load(utils.NowIST())
	if e.state.HasOrphan() {
		e.orphanPending = true
		e.log.Warn().
			Int("trade_id", e.state.ActiveTrade.ID).
			Str("instrument", e.state.ActiveTrade.Instrument).
			Msg("Orphan trade found in session, entries blocked until resolved")
	}

	return e, nil
}

// Run drives cycles until the context is cancelled. The cadence
// depends on the execution channel; a failed cycle backs off before
// retrying.
func (e *Engine) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return apperrors.ErrEngineRunning
	}
	e.running = true
	e.stopRun = cancel
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.stopRun = nil
		e.mu.Unlock()
	}()

	e.expiry = e.market.DetectExpiry(ctx, e.cfg.Expiry)
	if day, err := time.ParseInLocation("2006-01-02", e.expiry, utils.IndiaLocation); err == nil {
		e.expiryDay = day
	}

	interval := e.cycleInterval()
	e.log.Info().
		Str("mode", e.cfg.ActiveMode).
		Str("channel", string(e.channel)).
		Str("expiry", e.expiry).
		Dur("interval", interval).
		Msg("Engine started")

	for {
		if err := e.cycle(ctx); err != nil {
			mtxCycleErrors.Inc()
			e.log.Error().Err(err).Msg("Cycle failed, backing off")
			select {
			case <-ctx.Done():
				return e.shutdown()
			case <-time.After(errorBackoff):
			}
			continue
		}
		mtxCycles.Inc()

		select {
		case <-ctx.Done():
			return e.shutdown()
		case <-time.After(interval):
		}
	}
}

func (e *Engine) cycleInterval() time.Duration {
	switch e.channel {
	case models.ChannelLive:
		return 300 * time.Millisecond
	case models.ChannelPaper:
		return time.Second
	default:
		return 1500 * time.Millisecond
	}
}

// cycle is one pass of the lifecycle loop. A panic anywhere inside is
// contained here and surfaces as a cycle error so the loop backs off
// and continues instead of unwinding the process mid-trade.
func (e *Engine) cycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("Cycle panicked")
			err = fmt.Errorf("cycle panic: %v", r)
		}
	}()

	now := utils.NowIST()

	if err := e.market.Refresh(ctx); err != nil {
		return err
	}
	if e.candlesDue(now) {
		// Candle failures are tolerable, indicators degrade gracefully.
		_ = e.market.RefreshCandles(ctx, "1minute")
	}

	state := e.step(ctx, now, e.market.Snapshot())

	if err := e.sessions.Save(state, now); err != nil {
		e.log.Warn().Err(err).Msg("Session save failed")
	}
	if err := e.market.SaveCache(); err != nil {
		e.log.Debug().Err(err).Msg("Market cache save failed")
	}
	return nil
}

func (e *Engine) candlesDue(now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if now.Sub(e.lastCandles) < candleInterval {
		return false
	}
	e.lastCandles = now
	return true
}

// step runs the locked middle of a cycle: indicators, trade
// management or entry scan, and the state broadcast.
func (e *Engine) step(ctx context.Context, now time.Time, snap market.Snapshot) *session.State {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.indicators = signal.ComputeIndicators(signal.MarketView{
		Chain:        snap.Chain,
		ATMStrike:    snap.ATMStrike,
		Spot:         spotPrice(snap),
		VIX:          snap.VIX,
		PriceHistory: snap.PriceHistory,
		Candles:      snap.Candles,
	}, e.cfg.ActiveModeConfig())
	mtxVIX.Set(snap.VIX)

	switch {
	case e.orphanPending:
		// Frozen until the operator decides.
	case e.state.ActiveTrade != nil && e.state.ActiveTrade.IsOpen():
		e.manageTrade(ctx, now, snap)
	default:
		e.seekEntry(ctx, now, snap)
	}

	e.broadcastLocked(now, snap)
	return e.state
}

// manageTrade advances the trailing stop, screens for reversal and
// walks the exit ladder. Caller holds the lock.
func (e *Engine) manageTrade(ctx context.Context, now time.Time, snap market.Snapshot) {
	t := e.state.ActiveTrade

	ltp := t.CurrentLTP
	if v, ok := e.market.LTP(t.Strike, t.Side); ok {
		ltp = v
	}
	trading.Advance(t, ltp)

	reversal, warnings := trading.DetectReversal(e.indicators, t)
	t.ReversalDetected = reversal
	e.warnings = warnings
	if reversal {
		e.log.Warn().Int("trade_id", t.ID).Strs("warnings", warnings).Msg("Reversal warning")
	}

	if e.exitRequested != "" {
		reason := e.exitRequested
		e.exitRequested = ""
		e.exitTrade(ctx, now, t, reason)
		return
	}

	sessionMTM := e.state.DailyPnL + t.PnL()
	if sessionMTM > e.state.PeakSessionMTM {
		e.state.PeakSessionMTM = sessionMTM
	}

	if hit, reason := e.rules.Evaluate(t, now, sessionMTM, e.state.PeakSessionMTM); hit {
		e.exitTrade(ctx, now, t, reason)
	}
}

// seekEntry walks the entry gates and asks the generator for a
// decision. Caller holds the lock.
func (e *Engine) seekEntry(ctx context.Context, now time.Time, snap market.Snapshot) {
	if e.state.TradesToday >= e.cfg.Risk.MaxTradesPerDay {
		if !e.state.MaxTradesReached {
			e.state.MaxTradesReached = true
			e.log.Info().Int("trades", e.state.TradesToday).Msg("Daily trade limit reached")
		}
		return
	}
	if e.state.DailyPnL <= e.cfg.Risk.DailyLossLimit() {
		return
	}
	if e.state.InCooldown(now) {
		return
	}
	if !utils.InWindow(now, e.tradingStart, e.rules.TimeExit) {
		return
	}
	if utils.InWindow(now, e.lunchStart, e.lunchEnd) {
		return
	}

	decision := e.gen.Generate(signal.Input{
		Indicators: e.indicators,
		Chain:      snap.Chain,
		ATMStrike:  snap.ATMStrike,
		VIX:        snap.VIX,
		DTE:        e.daysToExpiry(now),
	})
	if decision == nil {
		return
	}

	e.enterTrade(ctx, now, snap, decision)
}

// enterTrade opens and routes a new position. An entry that fails at
// the broker is discarded without touching the day's counters.
func (e *Engine) enterTrade(ctx context.Context, now time.Time, snap market.Snapshot, d *signal.Decision) {
	regime := trading.SelectRegime(snap.VIX, e.cfg.Exit.VIXRegimes)

	t := trading.Open(trading.OpenParams{
		TradeID: e.state.LastTradeID + 1,
		Side:    d.Side,
		Strike:  d.Strike,
		LTP:     d.PriceHint,
		Qty:     e.cfg.Risk.Quantity(),
		Expiry:  e.expiry,
		VIX:     snap.VIX,
		Regime:  regime,
		Metrics: models.EntryMetrics{
			Alpha1:     e.indicators.Alpha1(d.Side),
			Alpha2:     e.indicators.Alpha2(d.Side),
			PCR:        e.indicators.PCR,
			Confidence: d.Confidence,
			Quality:    e.indicators.Quality(d.Side),
			Trend:      e.indicators.Trend,
		},
		SignalPath: d.Path,
		Channel:    e.channel,
		Now:        now,
	})

	if err := e.exec.ExecuteEntry(ctx, t, e.expiry); err != nil {
		mtxOrderFailures.WithLabelValues("entry").Inc()
		e.log.Error().Err(err).
			Str("instrument", t.Instrument).
			Msg("Entry execution failed, trade discarded")
		if e.notifier != nil {
			e.notifier.SendError(ctx, "entry execution", err)
		}
		return
	}

	e.state.ActiveTrade = t
	e.state.TradesToday++
	e.state.LastTradeID = t.ID
	mtxEntries.WithLabelValues(d.Path, string(d.Side)).Inc()

	e.log.Info().
		Int("trade_id", t.ID).
		Str("instrument", t.Instrument).
		Float64("entry", t.EntryPrice).
		Float64("stop", t.CurrentStop).
		Str("regime", t.Regime).
		Str("path", d.Path).
		Float64("confidence", d.Confidence).
		Msg("ENTERED")
	if e.notifier != nil {
		e.notifier.SendEntry(ctx, t)
	}
}

// exitTrade seals the trade at the current mark, routes the closing
// order and settles the session. An exit order failure is loud: the
// position may still be live at the broker.
func (e *Engine) exitTrade(ctx context.Context, now time.Time, t *models.Trade, reason models.ExitReason) {
	trading.Close(t, t.CurrentLTP, reason, now)

	if err := e.exec.ExecuteExit(ctx, t); err != nil {
		mtxOrderFailures.WithLabelValues("exit").Inc()
		e.log.Error().Err(err).
			Int("trade_id", t.ID).
			Str("instrument", t.Instrument).
			Msg("EXIT ORDER FAILED, position may still be open at broker")
		if e.notifier != nil {
			e.notifier.SendError(ctx, "exit execution", err)
		}
	}

	pnl := t.PnL()
	e.state.DailyPnL += pnl
	if e.state.DailyPnL > e.state.PeakSessionMTM {
		e.state.PeakSessionMTM = e.state.DailyPnL
	}
	mtxDailyPnL.Set(e.state.DailyPnL)
	mtxExits.WithLabelValues(string(reason)).Inc()

	if pnl < 0 && e.cfg.Risk.CooldownMinutes > 0 {
		until := now.Add(time.Duration(e.cfg.Risk.CooldownMinutes) * time.Minute)
		e.state.CooldownUntil = &until
	}

	if e.journal != nil {
		if err := e.journal.Record(ctx, t); err != nil {
			e.log.Warn().Err(err).Int("trade_id", t.ID).Msg("Journal write failed")
		}
	}

	e.log.Info().
		Int("trade_id", t.ID).
		Str("instrument", t.Instrument).
		Str("reason", string(reason)).
		Float64("exit", t.Closure.Price).
		Float64("pnl", pnl).
		Float64("pnl_pct", t.PnLPercent()).
		Msg("EXITED")
	if e.notifier != nil {
		e.notifier.SendExit(ctx, t)
	}

	e.state.ActiveTrade = nil
	e.warnings = nil
}

// broadcastLocked publishes the cycle's observable state. Caller
// holds the lock.
func (e *Engine) broadcastLocked(now time.Time, snap market.Snapshot) {
	if e.hub == nil {
		return
	}

	u := stream.Update{
		At:         now,
		Mode:       e.cfg.ActiveMode,
		Channel:    string(e.channel),
		Spot:       snap.Spot,
		VIX:        snap.VIX,
		ATMStrike:  snap.ATMStrike,
		TradesDone: e.state.TradesToday,
		DailyPnL:   e.state.DailyPnL,
		SessionMTM: e.state.DailyPnL,
		PeakMTM:    e.state.PeakSessionMTM,
		Orphan:     e.orphanPending,
		Warnings:   e.warnings,
	}
	if t := e.state.ActiveTrade; t != nil && t.IsOpen() && !e.orphanPending {
		u.Trade = t
		u.MinHold = e.rules.WithinMinHold(t, now)
		u.SessionMTM = e.state.DailyPnL + t.PnL()
	}
	if n := e.hub.Publish(u); n > 0 {
		mtxBroadcastDrops.Add(float64(n))
	}
}

// shutdown closes any open trade with an engine_stop exit and saves
// the final session.
func (e *Engine) shutdown() error {
	// The run context is gone; give the closing order its own window.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	now := utils.NowIST()

	e.mu.Lock()
	if t := e.state.ActiveTrade; t != nil && t.IsOpen() && !e.orphanPending {
		e.exitTrade(ctx, now, t, models.ExitEngineStop)
	}
	state := e.state
	e.mu.Unlock()

	if err := e.sessions.Save(state, now); err != nil {
		e.log.Warn().Err(err).Msg("Final session save failed")
	}
	e.log.Info().Msg("Engine stopped")
	return nil
}

// RequestExit asks the loop to close the open trade on its next pass.
func (e *Engine) RequestExit(reason models.ExitReason) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.orphanPending {
		return apperrors.ErrOrphanPending
	}
	if e.state.ActiveTrade == nil || !e.state.ActiveTrade.IsOpen() {
		return apperrors.ErrNoActiveTrade
	}
	e.exitRequested = reason
	return nil
}

// Stop cancels a running loop. Shutdown is orderly: an open trade is
// closed with an engine_stop exit and the session is saved. Idle
// engines ignore the call.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.stopRun
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// CycleMode rotates the active risk-threshold mode
// STRICT -> BALANCED -> RELAXED -> STRICT and returns the new mode.
// The built-in generator is rebuilt against the new thresholds;
// external generators are left alone.
func (e *Engine) CycleMode() string {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.cfg.ActiveMode {
	case config.ModeStrict:
		e.cfg.ActiveMode = config.ModeBalanced
	case config.ModeBalanced:
		e.cfg.ActiveMode = config.ModeRelaxed
	default:
		e.cfg.ActiveMode = config.ModeStrict
	}

	if _, ok := e.gen.(*signal.Skew); ok {
		e.gen = signal.NewSkew(e.cfg.ActiveModeConfig(), e.cfg.Filters)
	}

	e.log.Info().Str("mode", e.cfg.ActiveMode).Msg("Mode switched")
	return e.cfg.ActiveMode
}

// State returns a copy of the current session numbers.
func (e *Engine) State() session.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return *e.state
}

func (e *Engine) daysToExpiry(now time.Time) int {
	if e.expiryDay.IsZero() {
		return 1
	}
	return utils.DaysToExpiry(now, e.expiryDay)
}

func spotPrice(snap market.Snapshot) float64 {
	if snap.Spot == nil {
		return 0
	}
	return snap.Spot.Price
}
