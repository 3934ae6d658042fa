package trading

import (
	"time"

	"github.com/funtechnologywith-source/skew-hunter/internal/config"
	"github.com/funtechnologywith-source/skew-hunter/internal/models"
	"github.com/funtechnologywith-source/skew-hunter/pkg/utils"
)

// ExitRules is the compiled form of the exit configuration. It is pure
// and safe to share.
type ExitRules struct {
	ProfitTargetPct   float64
	TimeExit          utils.Clock
	MTMMaxLoss        float64
	MTMProtectTrigger float64
	MTMProtectPct     float64
	MinHold           time.Duration
}

// NewExitRules compiles the exit configuration.
func NewExitRules(cfg config.ExitConfig) (*ExitRules, error) {
	timeExit, err := utils.ParseClock(cfg.TimeExit)
	if err != nil {
		return nil, err
	}
	return &ExitRules{
		ProfitTargetPct:   cfg.ProfitTargetPct,
		TimeExit:          timeExit,
		MTMMaxLoss:        cfg.MTMMaxLoss,
		MTMProtectTrigger: cfg.MTMProtectTrigger,
		MTMProtectPct:     cfg.MTMProtectPct,
		MinHold:           time.Duration(cfg.MinHoldSeconds) * time.Second,
	}, nil
}

// Evaluate runs the exit ladder against an open trade. The first rule
// that fires wins; lower-priority rules are never consulted.
//
// Priority order:
//  1. mandatory time exit
//  2. session MTM max loss
//  3. session MTM profit protection
//  4. per-trade profit target
//  5. premium stop (trailing or initial, by latch state)
//
// The minimum hold window never vetoes a stop; it only marks how long
// the position has been protected from discretionary exits.
func (r *ExitRules) Evaluate(t *models.Trade, now time.Time, sessionMTM, peakSessionMTM float64) (bool, models.ExitReason) {
	if utils.ClockOf(now) >= r.TimeExit {
		return true, models.ExitTimeExit
	}

	if sessionMTM <= r.MTMMaxLoss {
		return true, models.ExitMTMMaxLoss
	}

	if peakSessionMTM >= r.MTMProtectTrigger {
		floor := peakSessionMTM * r.MTMProtectPct
		if sessionMTM <= floor {
			return true, models.ExitMTMProfitProtection
		}
	}

	if t.PnLPercent() >= r.ProfitTargetPct {
		return true, models.ExitProfitTarget
	}

	if t.CurrentLTP <= t.CurrentStop {
		if t.TrailingActive {
			return true, models.ExitTrailingStop
		}
		return true, models.ExitInitialStop
	}

	return false, ""
}

// WithinMinHold reports whether the trade is still inside its minimum
// hold window. Informational only.
func (r *ExitRules) WithinMinHold(t *models.Trade, now time.Time) bool {
	return now.Sub(t.EntryTime) < r.MinHold
}
