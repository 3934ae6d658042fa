package cli

import (
	"context"
	"fmt"
	"net/http"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/funtechnologywith-source/skew-hunter/internal/broker"
	"github.com/funtechnologywith-source/skew-hunter/internal/engine"
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

// runtime is the fully wired application.
type runtime struct {
	app     *App
	market  *market.Context
	engine  *engine.Engine
	hub     *stream.Hub
	journal *store.TradeJournal
}

func newRunCmd(app *App) *cobra.Command {
	var listen string
	var manageOnly bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the trading engine",
		Long: `Start the engine loop: market data refresh, signal scan, position
management and end-of-day square-off. State streams over WebSocket at
/ws and Prometheus metrics at /metrics on the listen address.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(app, manageOnly)
			if err != nil {
				return err
			}
			defer rt.close()

			ctx, stop := ossignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if now := utils.NowIST(); !utils.IsMarketHours(now) {
				app.Logger.Warn().
					Time("next_open", utils.NextMarketOpen(now)).
					Msg("Market is closed, engine will idle until data moves")
			}

			if orphan := rt.engine.Orphan(); orphan != nil {
				app.Logger.Warn().
					Int("trade_id", orphan.ID).
					Str("instrument", orphan.Instrument).
					Msg("Orphan trade pending, run 'skewhunter orphan' to resolve")
			}

			srv := rt.serve(listen)
			defer shutdownHTTP(srv)

			return rt.engine.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "127.0.0.1:8089", "address for the WebSocket and metrics server")
	cmd.Flags().BoolVar(&manageOnly, "manage-only", false, "manage the open trade but take no new entries")
	return cmd
}

// buildRuntime wires market data, broker, executor, persistence,
// streaming and notifications into an engine.
func buildRuntime(app *App, manageOnly bool) (*runtime, error) {
	cfg := app.Config
	log := app.Logger

	upstox := broker.NewUpstox(cfg.Broker.Upstox.AccessToken, cfg.Execution.ProductType, log)
	marketCtx := market.NewContext(upstox, cfg.Store.CacheFile, log)
	marketCtx.LoadCache()

	channel := models.ParseChannel(cfg.Execution.Channel)
	exeBroker, err := selectBroker(app, upstox, channel)
	if err != nil {
		return nil, err
	}
	exec := trading.NewExecutor(exeBroker, channel, cfg.Execution, log)

	if channel == models.ChannelLive {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if cfg.Execution.Broker == "upstox" {
			var user string
			err := utils.Retry(ctx, utils.DefaultRetryConfig(), func() error {
				var err error
				user, err = upstox.ValidateToken(ctx)
				return err
			})
			if err != nil {
				return nil, fmt.Errorf("upstox token check failed: %w", err)
			}
			log.Info().Str("user", user).Msg("Upstox token valid")
		}
	}

	var gen signal.Generator = signal.None
	if !manageOnly {
		gen = signal.NewSkew(cfg.ActiveModeConfig(), cfg.Filters)
	}

	journal, err := store.NewTradeJournal(cfg.Store.JournalDB)
	if err != nil {
		log.Warn().Err(err).Msg("Trade journal unavailable, continuing without it")
		journal = nil
	}

	channels := []notify.Notifier{notify.NewTerminalNotifier()}
	if cfg.Telegram.Enabled {
		channels = append(channels, notify.NewTelegramNotifier(cfg.Telegram))
	}

	hub := stream.NewHub()

	eng, err := engine.New(engine.Options{
		Config:    cfg,
		Market:    marketCtx,
		Generator: gen,
		Executor:  exec,
		Sessions:  session.NewStore(cfg.Store.SessionFile, log),
		Hub:       hub,
		Notifier:  notify.NewMulti(log, channels...),
		Journal:   journal,
		Log:       log,
	})
	if err != nil {
		return nil, err
	}

	return &runtime{
		app:     app,
		market:  marketCtx,
		engine:  eng,
		hub:     hub,
		journal: journal,
	}, nil
}

// selectBroker picks the order-routing broker for the channel. The
// off and paper channels both get the paper broker; off never calls
// it, paper fills instantly against the quoted price.
func selectBroker(app *App, upstox *broker.Upstox, channel models.ExecutionChannel) (broker.Broker, error) {
	if channel != models.ChannelLive {
		return broker.NewPaper(app.Logger), nil
	}
	switch app.Config.Execution.Broker {
	case "upstox":
		return upstox, nil
	case "dhan":
		creds := app.Config.Broker.Dhan
		return broker.NewDhan(creds.AccessToken, creds.ClientID, app.Logger), nil
	default:
		return nil, fmt.Errorf("unknown broker %q", app.Config.Execution.Broker)
	}
}

// serve starts the WebSocket and metrics listener in the background.
func (rt *runtime) serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/ws", stream.NewWSServer(rt.hub, rt.app.Logger))
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		rt.app.Logger.Info().Str("addr", addr).Msg("Serving /ws and /metrics")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			rt.app.Logger.Error().Err(err).Msg("HTTP server failed")
		}
	}()
	return srv
}

func shutdownHTTP(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

func (rt *runtime) close() {
	rt.hub.Close()
	if rt.journal != nil {
		_ = rt.journal.Close()
	}
}
