// Package storage implements the ports.TradeStore durability layer over
// SQLite (pure Go, no cgo), grounded on the teacher's single-writer
// connection settings and upsert-by-primary-key shape.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/iljae-kwon/korbit-engine/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS trades (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    market           TEXT     NOT NULL,
    entry_price      REAL     NOT NULL,
    exit_price       REAL     NOT NULL,
    quantity         REAL     NOT NULL,
    profit_loss      REAL     NOT NULL,
    profit_loss_pct  REAL     NOT NULL,
    fee_paid         REAL     NOT NULL DEFAULT 0,
    entry_time       DATETIME NOT NULL,
    exit_time        DATETIME NOT NULL,
    strategy_name    TEXT     NOT NULL,
    exit_reason      TEXT     NOT NULL,
    signal_regime    TEXT     NOT NULL DEFAULT '',
    signal_strength  REAL     NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_trades_exit_time ON trades(exit_time DESC);
CREATE INDEX IF NOT EXISTS idx_trades_market    ON trades(market);

CREATE TABLE IF NOT EXISTS positions (
    market            TEXT PRIMARY KEY,
    entry_price       REAL     NOT NULL,
    quantity          REAL     NOT NULL,
    invested_amount   REAL     NOT NULL,
    entry_time        DATETIME NOT NULL,
    stop_loss         REAL     NOT NULL,
    take_profit_1     REAL     NOT NULL,
    take_profit_2     REAL     NOT NULL,
    half_closed       INTEGER  NOT NULL DEFAULT 0,
    highest_price     REAL     NOT NULL DEFAULT 0,
    breakeven_trigger REAL     NOT NULL DEFAULT 0,
    trailing_start    REAL     NOT NULL DEFAULT 0,
    strategy_name     TEXT     NOT NULL,
    signal_regime     TEXT     NOT NULL DEFAULT '',
    signal_strength   REAL     NOT NULL DEFAULT 0
);
`

// SQLiteStore implements ports.TradeStore.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (or creates) the database file at path. It does not apply the
// schema — callers must call ApplySchema before using the store.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)
	return &SQLiteStore{db: db}, nil
}

// ApplySchema creates the trades/positions tables if they don't exist.
func (s *SQLiteStore) ApplySchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("storage: apply schema: %w", err)
	}
	return nil
}

// SaveTrade appends one closed (or partially-closed) trade record.
func (s *SQLiteStore) SaveTrade(ctx context.Context, trade domain.TradeHistory) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trades
			(market, entry_price, exit_price, quantity, profit_loss, profit_loss_pct,
			 fee_paid, entry_time, exit_time, strategy_name, exit_reason,
			 signal_regime, signal_strength)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		trade.Market, trade.EntryPrice, trade.ExitPrice, trade.Quantity,
		trade.ProfitLoss, trade.ProfitLossPct, trade.FeePaid,
		trade.EntryTime.UTC(), trade.ExitTime.UTC(), trade.StrategyName, trade.ExitReason,
		string(trade.Signal.Regime), trade.Signal.Strength,
	)
	if err != nil {
		return fmt.Errorf("storage: save trade: %w", err)
	}
	return nil
}

// GetTrades returns every trade whose exit_time falls within [from, to],
// most recent first.
func (s *SQLiteStore) GetTrades(ctx context.Context, from, to time.Time) ([]domain.TradeHistory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT market, entry_price, exit_price, quantity, profit_loss, profit_loss_pct,
		       fee_paid, entry_time, exit_time, strategy_name, exit_reason,
		       signal_regime, signal_strength
		FROM trades
		WHERE exit_time BETWEEN ? AND ?
		ORDER BY exit_time DESC`,
		from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("storage: get trades: %w", err)
	}
	defer rows.Close()

	var out []domain.TradeHistory
	for rows.Next() {
		var t domain.TradeHistory
		var regime string
		if err := rows.Scan(
			&t.Market, &t.EntryPrice, &t.ExitPrice, &t.Quantity, &t.ProfitLoss, &t.ProfitLossPct,
			&t.FeePaid, &t.EntryTime, &t.ExitTime, &t.StrategyName, &t.ExitReason,
			&regime, &t.Signal.Strength,
		); err != nil {
			return nil, fmt.Errorf("storage: scan trade row: %w", err)
		}
		t.Signal.Regime = domain.MarketRegime(regime)
		out = append(out, t)
	}
	return out, rows.Err()
}

// SavePosition upserts the open-position row for pos.Market.
func (s *SQLiteStore) SavePosition(ctx context.Context, pos domain.Position) error {
	halfClosed := 0
	if pos.HalfClosed {
		halfClosed = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO positions
			(market, entry_price, quantity, invested_amount, entry_time, stop_loss,
			 take_profit_1, take_profit_2, half_closed, highest_price,
			 breakeven_trigger, trailing_start, strategy_name, signal_regime, signal_strength)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(market) DO UPDATE SET
			entry_price       = excluded.entry_price,
			quantity          = excluded.quantity,
			invested_amount   = excluded.invested_amount,
			stop_loss         = excluded.stop_loss,
			take_profit_1     = excluded.take_profit_1,
			take_profit_2     = excluded.take_profit_2,
			half_closed       = excluded.half_closed,
			highest_price     = excluded.highest_price,
			breakeven_trigger = excluded.breakeven_trigger,
			trailing_start    = excluded.trailing_start`,
		pos.Market, pos.EntryPrice, pos.Quantity, pos.InvestedAmount, pos.EntryTime.UTC(),
		pos.StopLoss, pos.TakeProfit1, pos.TakeProfit2, halfClosed, pos.HighestPrice,
		pos.BreakevenTrigger, pos.TrailingStart, pos.StrategyName,
		string(pos.Signal.Regime), pos.Signal.Strength,
	)
	if err != nil {
		return fmt.Errorf("storage: save position: %w", err)
	}
	return nil
}

// DeletePosition removes the open-position row for market, e.g. on exit.
func (s *SQLiteStore) DeletePosition(ctx context.Context, market string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM positions WHERE market = ?`, market); err != nil {
		return fmt.Errorf("storage: delete position: %w", err)
	}
	return nil
}

// GetOpenPositions returns every row in the positions table, used to
// recover state after a restart.
func (s *SQLiteStore) GetOpenPositions(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT market, entry_price, quantity, invested_amount, entry_time, stop_loss,
		       take_profit_1, take_profit_2, half_closed, highest_price,
		       breakeven_trigger, trailing_start, strategy_name, signal_regime, signal_strength
		FROM positions`,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: get open positions: %w", err)
	}
	defer rows.Close()

	var out []domain.Position
	for rows.Next() {
		var p domain.Position
		var halfClosed int
		var regime string
		if err := rows.Scan(
			&p.Market, &p.EntryPrice, &p.Quantity, &p.InvestedAmount, &p.EntryTime, &p.StopLoss,
			&p.TakeProfit1, &p.TakeProfit2, &halfClosed, &p.HighestPrice,
			&p.BreakevenTrigger, &p.TrailingStart, &p.StrategyName, &regime, &p.Signal.Strength,
		); err != nil {
			return nil, fmt.Errorf("storage: scan position row: %w", err)
		}
		p.HalfClosed = halfClosed == 1
		p.Signal.Regime = domain.MarketRegime(regime)
		out = append(out, p)
	}
	return out, rows.Err()
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
