package engine

import "github.com/prometheus/client_golang/prometheus"

var (
	mtxCycles = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "skewhunter_cycles_total",
			Help: "Engine cycles completed",
		},
	)

	mtxCycleErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "skewhunter_cycle_errors_total",
			Help: "Engine cycles that failed and triggered the error backoff",
		},
	)

	mtxEntries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skewhunter_entries_total",
			Help: "Positions opened, split by signal path",
		},
		[]string{"path", "side"},
	)

	mtxExits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skewhunter_exits_total",
			Help: "Positions closed, split by exit reason",
		},
		[]string{"reason"},
	)

	mtxOrderFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skewhunter_order_failures_total",
			Help: "Broker order failures, split by action",
		},
		[]string{"action"},
	)

	mtxBroadcastDrops = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "skewhunter_broadcast_drops_total",
			Help: "State updates missed by slow observers",
		},
	)

	mtxDailyPnL = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "skewhunter_daily_pnl_rupees",
			Help: "Realized P&L for the current session",
		},
	)

	mtxVIX = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "skewhunter_india_vix",
			Help: "Last observed India VIX",
		},
	)
)

func init() {
	prometheus.MustRegister(mtxCycles, mtxCycleErrors)
	prometheus.MustRegister(mtxEntries, mtxExits, mtxOrderFailures, mtxBroadcastDrops)
	prometheus.MustRegister(mtxDailyPnL, mtxVIX)
}
