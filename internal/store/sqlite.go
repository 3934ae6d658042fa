// Package store provides the SQLite trade journal.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/funtechnologywith-source/skew-hunter/internal/models"
)

// TradeJournal records closed trades for later review.
type TradeJournal struct {
	db *sql.DB
}

// NewTradeJournal opens (or creates) the journal database.
func NewTradeJournal(dbPath string) (*TradeJournal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	j := &TradeJournal{db: db}
	if err := j.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return j, nil
}

func (j *TradeJournal) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		trade_id INTEGER NOT NULL,
		trade_date TEXT NOT NULL,
		instrument TEXT NOT NULL,
		side TEXT NOT NULL,
		strike INTEGER NOT NULL,
		qty INTEGER NOT NULL,
		entry_price REAL NOT NULL,
		entry_time DATETIME NOT NULL,
		exit_price REAL NOT NULL,
		exit_time DATETIME NOT NULL,
		exit_reason TEXT NOT NULL,
		pnl REAL NOT NULL,
		pnl_percent REAL NOT NULL,
		hold_seconds INTEGER NOT NULL,
		mfe_percent REAL NOT NULL,
		mae_percent REAL NOT NULL,
		entry_vix REAL NOT NULL,
		vix_regime TEXT NOT NULL,
		trailing_active INTEGER NOT NULL,
		signal_path TEXT NOT NULL,
		execution_mode TEXT NOT NULL,
		broker_order_id TEXT,
		actual_fill_price REAL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_trades_date ON trades(trade_date);
	CREATE INDEX IF NOT EXISTS idx_trades_reason ON trades(exit_reason);
	`
	_, err := j.db.Exec(schema)
	return err
}

// Record appends a closed trade to the journal. Open trades are a
// caller error.
func (j *TradeJournal) Record(ctx context.Context, t *models.Trade) error {
	if t.Closure == nil {
		return fmt.Errorf("trade %d is still open", t.ID)
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO trades (
			trade_id, trade_date, instrument, side, strike, qty,
			entry_price, entry_time, exit_price, exit_time, exit_reason,
			pnl, pnl_percent, hold_seconds, mfe_percent, mae_percent,
			entry_vix, vix_regime, trailing_active, signal_path,
			execution_mode, broker_order_id, actual_fill_price
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID,
		t.Closure.Time.Format("2006-01-02"),
		t.Instrument,
		string(t.Side),
		t.Strike,
		t.EffectiveQty(),
		t.EntryPrice,
		t.EntryTime,
		t.Closure.Price,
		t.Closure.Time,
		string(t.Closure.Reason),
		t.PnL(),
		t.PnLPercent(),
		int(t.Duration(t.Closure.Time).Seconds()),
		t.MFEPercent(),
		t.MAEPercent(),
		t.EntryVIX,
		t.Regime,
		boolToInt(t.TrailingActive),
		t.SignalPath,
		string(t.Channel),
		t.BrokerOrderID,
		t.ActualFillPrice,
	)
	return err
}

// DayStats summarizes one trading day.
type DayStats struct {
	Date     string
	Trades   int
	Wins     int
	TotalPnL float64
}

// StatsByDay aggregates journal entries per day, newest first.
func (j *TradeJournal) StatsByDay(ctx context.Context, limit int) ([]DayStats, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT trade_date, COUNT(*), SUM(CASE WHEN pnl > 0 THEN 1 ELSE 0 END), SUM(pnl)
		FROM trades
		GROUP BY trade_date
		ORDER BY trade_date DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DayStats
	for rows.Next() {
		var s DayStats
		if err := rows.Scan(&s.Date, &s.Trades, &s.Wins, &s.TotalPnL); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// TradesForDay lists the journal rows for one day, in entry order.
func (j *TradeJournal) TradesForDay(ctx context.Context, date string) ([]JournalRow, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT trade_id, instrument, side, qty, entry_price, exit_price,
		       exit_reason, pnl, pnl_percent, hold_seconds, vix_regime, execution_mode
		FROM trades
		WHERE trade_date = ?
		ORDER BY entry_time`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []JournalRow
	for rows.Next() {
		var r JournalRow
		if err := rows.Scan(
			&r.TradeID, &r.Instrument, &r.Side, &r.Qty, &r.EntryPrice,
			&r.ExitPrice, &r.ExitReason, &r.PnL, &r.PnLPercent,
			&r.HoldSeconds, &r.Regime, &r.ExecutionMode,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// JournalRow is one recorded trade, as read back from the journal.
type JournalRow struct {
	TradeID       int
	Instrument    string
	Side          string
	Qty           int
	EntryPrice    float64
	ExitPrice     float64
	ExitReason    string
	PnL           float64
	PnLPercent    float64
	HoldSeconds   int
	Regime        string
	ExecutionMode string
}

// Close closes the underlying database.
func (j *TradeJournal) Close() error {
	return j.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
