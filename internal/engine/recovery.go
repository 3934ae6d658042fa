package engine

import (
	"context"

	apperrors "github.com/funtechnologywith-source/skew-hunter/internal/errors"
	"github.com/funtechnologywith-source/skew-hunter/internal/models"
	"github.com/funtechnologywith-source/skew-hunter/pkg/utils"
)

// OrphanAction is an operator decision about a trade recovered from a
// crashed session.
type OrphanAction string

const (
	// OrphanResume adopts the trade back into the loop with its
	// trailing-stop state intact.
	OrphanResume OrphanAction = "resume"
	// OrphanLiquidate closes the trade immediately at the current mark.
	OrphanLiquidate OrphanAction = "liquidate"
	// OrphanDiscard drops the record without touching the broker. Any
	// real position stays live and becomes the operator's problem.
	OrphanDiscard OrphanAction = "discard"
)

// Orphan returns a copy of the pending orphan trade, or nil.
func (e *Engine) Orphan() *models.Trade {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.orphanPending || e.state.ActiveTrade == nil {
		return nil
	}
	t := *e.state.ActiveTrade
	return &t
}

// ResolveOrphan applies the operator's decision and unblocks entries.
func (e *Engine) ResolveOrphan(ctx context.Context, action OrphanAction) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.orphanPending {
		return apperrors.ErrNoActiveTrade
	}
	t := e.state.ActiveTrade
	now := utils.NowIST()

	switch action {
	case OrphanResume:
		e.orphanPending = false
		e.log.Info().
			Int("trade_id", t.ID).
			Str("instrument", t.Instrument).
			Float64("stop", t.CurrentStop).
			Msg("Orphan resumed, loop takes over")

	case OrphanLiquidate:
		if ltp, ok := e.market.LTP(t.Strike, t.Side); ok {
			t.CurrentLTP = ltp
		}
		e.orphanPending = false
		e.exitTrade(ctx, now, t, models.ExitOrphan)

	case OrphanDiscard:
		e.log.Warn().
			Int("trade_id", t.ID).
			Str("instrument", t.Instrument).
			Msg("Orphan discarded, any broker position is untouched")
		e.orphanPending = false
		e.state.ActiveTrade = nil

	default:
		return apperrors.Wrapf(apperrors.ErrConfigInvalid, "unknown orphan action %q", action)
	}

	return e.sessions.Save(e.state, now)
}
