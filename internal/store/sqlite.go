package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"bibo/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var _ OrderStore = (*SQLiteStore)(nil)
var _ RunStore = (*SQLiteStore)(nil)

// SQLiteStore implements OrderStore and RunStore backed by a SQLite
// database.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id              TEXT PRIMARY KEY,
	created_at      INTEGER NOT NULL,
	strategy        TEXT NOT NULL,
	start_date      TEXT NOT NULL,
	end_date        TEXT NOT NULL,
	symbols         TEXT NOT NULL,
	stop_multiple   REAL NOT NULL,
	target_multiple REAL NOT NULL,
	risk_fraction   REAL NOT NULL,
	total_pnl       REAL NOT NULL,
	pct_change      REAL NOT NULL,
	max_drawdown    REAL NOT NULL,
	num_trades      INTEGER NOT NULL,
	summary         TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS trades (
	run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	seq         INTEGER NOT NULL,
	symbol      TEXT NOT NULL,
	entry_date  TEXT NOT NULL,
	entry_price REAL NOT NULL,
	stop_loss   REAL NOT NULL,
	take_profit REAL NOT NULL,
	quantity    REAL NOT NULL,
	exit_date   TEXT NOT NULL,
	exit_price  REAL NOT NULL,
	outcome     TEXT NOT NULL,
	pnl         REAL NOT NULL,
	bars_held   INTEGER NOT NULL,
	PRIMARY KEY (run_id, seq)
);
CREATE TABLE IF NOT EXISTS orders (
	id              TEXT PRIMARY KEY,
	client_order_id TEXT NOT NULL,
	symbol          TEXT NOT NULL,
	side            TEXT NOT NULL,
	quantity        REAL NOT NULL,
	limit_price     REAL NOT NULL,
	stop_loss       REAL NOT NULL,
	take_profit     REAL NOT NULL,
	time_in_force   TEXT NOT NULL,
	status          TEXT NOT NULL,
	capital         REAL NOT NULL,
	total_risk      REAL NOT NULL,
	submitted_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS orders_submitted_at ON orders(submitted_at);
`

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, creates the
// schema if needed and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// RunStore implementation
// ---------------------------------------------------------------------------

// SaveRun inserts a run and its trades in one transaction.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *domain.Run) error {
	summary, err := json.Marshal(run.Summary)
	if err != nil {
		return fmt.Errorf("encoding summary: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	p := run.Params
	_, err = tx.ExecContext(ctx, `INSERT INTO runs
		(id, created_at, strategy, start_date, end_date, symbols, stop_multiple, target_multiple,
		 risk_fraction, total_pnl, pct_change, max_drawdown, num_trades, summary)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.CreatedAt.UnixMilli(), p.Strategy,
		p.Start.Format(domain.DateLayout), p.End.Format(domain.DateLayout),
		strings.Join(p.Symbols, ","), p.StopMultiple, p.TargetMultiple, p.RiskFraction,
		run.Summary.TotalPnL, run.Summary.PctChange, run.Summary.MaxDrawdownPct,
		run.Summary.NumTrades, string(summary),
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO trades
		(run_id, seq, symbol, entry_date, entry_price, stop_loss, take_profit, quantity,
		 exit_date, exit_price, outcome, pnl, bars_held)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, t := range run.Trades {
		_, err := stmt.ExecContext(ctx, run.ID, i, t.Symbol,
			t.EntryDate.Format(domain.DateLayout), t.EntryPrice, t.StopLoss, t.TakeProfit, t.Quantity,
			t.ExitDate.Format(domain.DateLayout), t.ExitPrice, t.Outcome.String(), t.PnL, t.BarsHeld)
		if err != nil {
			return fmt.Errorf("inserting trade %d of run %s: %w", i, run.ID, err)
		}
	}
	return tx.Commit()
}

// GetRun retrieves a run and its trades.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	row := s.db.QueryRowContext(ctx, runColumns+` WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT symbol, entry_date, entry_price, stop_loss,
		take_profit, quantity, exit_date, exit_price, outcome, pnl, bars_held
		FROM trades WHERE run_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			t                 domain.TradeRecord
			entry, exit, outc string
		)
		if err := rows.Scan(&t.Symbol, &entry, &t.EntryPrice, &t.StopLoss, &t.TakeProfit,
			&t.Quantity, &exit, &t.ExitPrice, &outc, &t.PnL, &t.BarsHeld); err != nil {
			return nil, err
		}
		if t.EntryDate, err = time.Parse(domain.DateLayout, entry); err != nil {
			return nil, err
		}
		if t.ExitDate, err = time.Parse(domain.DateLayout, exit); err != nil {
			return nil, err
		}
		if t.Outcome, err = domain.ParsePositionStatus(outc); err != nil {
			return nil, err
		}
		run.Trades = append(run.Trades, t)
	}
	return run, rows.Err()
}

// ListRuns returns the newest runs first, without trades.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]domain.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, runColumns+` ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *run)
	}
	return out, rows.Err()
}

const runColumns = `SELECT id, created_at, strategy, start_date, end_date, symbols,
	stop_multiple, target_multiple, risk_fraction, summary FROM runs`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*domain.Run, error) {
	var (
		run                 domain.Run
		created             int64
		start, end, symbols string
		summary             string
	)
	err := sc.Scan(&run.ID, &created, &run.Params.Strategy, &start, &end, &symbols,
		&run.Params.StopMultiple, &run.Params.TargetMultiple, &run.Params.RiskFraction, &summary)
	if err != nil {
		return nil, err
	}
	run.CreatedAt = time.UnixMilli(created).UTC()
	if run.Params.Start, err = time.Parse(domain.DateLayout, start); err != nil {
		return nil, err
	}
	if run.Params.End, err = time.Parse(domain.DateLayout, end); err != nil {
		return nil, err
	}
	if symbols != "" {
		run.Params.Symbols = strings.Split(symbols, ",")
	}
	if err := json.Unmarshal([]byte(summary), &run.Summary); err != nil {
		return nil, fmt.Errorf("decoding summary of run %s: %w", run.ID, err)
	}
	return &run, nil
}

// ---------------------------------------------------------------------------
// OrderStore implementation
// ---------------------------------------------------------------------------

// SaveOrder inserts a submitted order.
func (s *SQLiteStore) SaveOrder(ctx context.Context, o *domain.Order) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO orders
		(id, client_order_id, symbol, side, quantity, limit_price, stop_loss, take_profit,
		 time_in_force, status, capital, total_risk, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.ClientOrderID, o.Symbol, string(o.Side), o.Quantity, o.LimitPrice, o.StopLoss,
		o.TakeProfit, o.TimeInForce, string(o.Status), o.Capital, o.Risk(), o.SubmittedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("inserting order %s: %w", o.ID, err)
	}
	return nil
}

const orderColumns = `SELECT id, client_order_id, symbol, side, quantity, limit_price, stop_loss,
	take_profit, time_in_force, status, capital, submitted_at FROM orders`

func scanOrder(sc scanner) (*domain.Order, error) {
	var (
		o            domain.Order
		side, status string
		submitted    int64
	)
	err := sc.Scan(&o.ID, &o.ClientOrderID, &o.Symbol, &side, &o.Quantity, &o.LimitPrice,
		&o.StopLoss, &o.TakeProfit, &o.TimeInForce, &status, &o.Capital, &submitted)
	if err != nil {
		return nil, err
	}
	o.Side = domain.OrderSide(side)
	o.Status = domain.OrderStatus(status)
	o.SubmittedAt = time.UnixMilli(submitted).UTC()
	return &o, nil
}

// GetOrder retrieves a single order by its ID.
func (s *SQLiteStore) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	o, err := scanOrder(s.db.QueryRowContext(ctx, orderColumns+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	return o, err
}

// ListOrders returns orders submitted at or after since, newest first.
func (s *SQLiteStore) ListOrders(ctx context.Context, since time.Time) ([]domain.Order, error) {
	rows, err := s.db.QueryContext(ctx, orderColumns+` WHERE submitted_at >= ? ORDER BY submitted_at DESC`, since.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

// UpdateOrderStatus changes the status of an existing order.
func (s *SQLiteStore) UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE orders SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	return nil
}
