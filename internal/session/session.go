// Package session persists daily trading state across restarts: trade
// counters, realized P&L, the cooldown window and the active trade
// snapshot used for crash recovery.
package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/funtechnologywith-source/skew-hunter/internal/models"
	"github.com/funtechnologywith-source/skew-hunter/pkg/utils"
)

// State is the persisted daily session record.
type State struct {
	TradesToday      int           `json:"trades_today"`
	DailyPnL         float64       `json:"daily_pnl"`
	PeakSessionMTM   float64       `json:"peak_session_mtm"`
	MaxTradesReached bool          `json:"max_trades_reached"`
	LastTradeID      int           `json:"last_trade_id"`
	Date             string        `json:"date"` // YYYY-MM-DD, IST
	ActiveTrade      *models.Trade `json:"active_trade"`
	CooldownUntil    *time.Time    `json:"cooldown_until"`
}

// NewState returns an empty session for the given day.
func NewState(now time.Time) *State {
	return &State{Date: now.In(utils.IndiaLocation).Format("2006-01-02")}
}

// HasOrphan reports whether the session carries an open trade from a
// previous process, pending recovery.
func (s *State) HasOrphan() bool {
	return s.ActiveTrade != nil && s.ActiveTrade.IsOpen()
}

// InCooldown reports whether entries are paused after a losing exit.
func (s *State) InCooldown(now time.Time) bool {
	return s.CooldownUntil != nil && now.Before(*s.CooldownUntil)
}

// Store reads and writes the session file.
type Store struct {
	path string
	log  zerolog.Logger
}

// NewStore creates a session store at the given path.
func NewStore(path string, log zerolog.Logger) *Store {
	return &Store{
		path: path,
		log:  log.With().Str("component", "session").Logger(),
	}
}

// Load reads the session for the current day. A missing or unreadable
// file yields a fresh session. A file from an earlier day resets the
// counters but keeps the active trade: an open position does not stop
// existing at midnight, and recovery must still see it.
func (s *Store) Load(now time.Time) *State {
	fresh := NewState(now)

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn().Err(err).Str("path", s.path).Msg("Session file unreadable, starting fresh")
		}
		return fresh
	}

	var state State
	if err := json.Unmarshal(raw, &state); err != nil {
		s.log.Warn().Err(err).Str("path", s.path).Msg("Session file corrupt, starting fresh")
		return fresh
	}

	if state.Date != fresh.Date {
		s.log.Info().
			Str("stored_date", state.Date).
			Str("today", fresh.Date).
			Msg("New trading day, resetting session counters")
		fresh.ActiveTrade = state.ActiveTrade
		fresh.LastTradeID = state.LastTradeID
		return fresh
	}

	return &state
}

// Save writes the session atomically. The day stamp is refreshed on
// every write.
func (s *Store) Save(state *State, now time.Time) error {
	state.Date = now.In(utils.IndiaLocation).Format("2006-01-02")

	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Clear removes the session file.
func (s *Store) Clear() error {
	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
