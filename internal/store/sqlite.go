package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"options-dashboard/internal/errors"
	"options-dashboard/internal/models"
)

// SQLiteStore implements TradeStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-based trade store. ":memory:" opens a
// private in-memory database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
	if dbPath == ":memory:" {
		dsn = ":memory:?_foreign_keys=on"
	} else if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("%w: create database dir: %v", errors.ErrDatabaseError, err)
		}
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %v", errors.ErrDatabaseError, err)
	}

	// SQLite serialises writers; a single connection also keeps an
	// in-memory database alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to initialize schema: %v", errors.ErrDatabaseError, err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS positions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		strategy_name TEXT NOT NULL DEFAULT '',
		instrument TEXT NOT NULL,
		start_time DATETIME NOT NULL,
		end_time DATETIME,
		status TEXT NOT NULL DEFAULT 'OPEN',
		total_pnl REAL,
		UNIQUE(user_id, instrument)
	);

	CREATE TABLE IF NOT EXISTS trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		position_id INTEGER NOT NULL REFERENCES positions(id),
		user_id TEXT NOT NULL,
		order_id TEXT NOT NULL,
		side TEXT NOT NULL,
		trading_symbol TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		entry_price REAL NOT NULL,
		exit_price REAL,
		entry_time DATETIME NOT NULL,
		exit_time DATETIME,
		pnl REAL,
		status TEXT NOT NULL DEFAULT 'OPEN'
	);

	CREATE INDEX IF NOT EXISTS idx_positions_user_status ON positions(user_id, status);
	CREATE INDEX IF NOT EXISTS idx_trades_user_status ON trades(user_id, status);
	CREATE INDEX IF NOT EXISTS idx_trades_position ON trades(position_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ============================================================================
// Positions Methods
// ============================================================================

// OpenPosition returns the user's position for instrument, creating it or
// reopening a closed one. A reopened position starts a fresh P&L.
func (s *SQLiteStore) OpenPosition(ctx context.Context, userID, instrument, strategy string, at time.Time) (*models.PositionRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to begin transaction: %v", errors.ErrDatabaseError, err)
	}
	defer tx.Rollback()

	var id int64
	var status string
	err = tx.QueryRowContext(ctx, `
		SELECT id, status FROM positions WHERE user_id = ? AND instrument = ?
	`, userID, instrument).Scan(&id, &status)

	switch {
	case err == sql.ErrNoRows:
		res, err := tx.ExecContext(ctx, `
			INSERT INTO positions (user_id, strategy_name, instrument, start_time, status)
			VALUES (?, ?, ?, ?, ?)
		`, userID, strategy, instrument, at, models.StatusOpen)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to create position: %v", errors.ErrDatabaseError, err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return nil, fmt.Errorf("%w: %v", errors.ErrDatabaseError, err)
		}
	case err != nil:
		return nil, fmt.Errorf("%w: failed to query position: %v", errors.ErrDatabaseError, err)
	case status != models.StatusOpen:
		_, err := tx.ExecContext(ctx, `
			UPDATE positions SET status = ?, start_time = ?, end_time = NULL, total_pnl = NULL
			WHERE id = ?
		`, models.StatusOpen, at, id)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to reopen position: %v", errors.ErrDatabaseError, err)
		}
	}

	pos, err := scanPosition(tx.QueryRowContext(ctx, positionSelect+" WHERE id = ?", id))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: failed to commit transaction: %v", errors.ErrDatabaseError, err)
	}
	return pos, nil
}

const positionSelect = `SELECT id, user_id, strategy_name, instrument, start_time, end_time, status, total_pnl FROM positions`

// GetPosition retrieves a position by id.
func (s *SQLiteStore) GetPosition(ctx context.Context, id int64) (*models.PositionRecord, error) {
	return scanPosition(s.db.QueryRowContext(ctx, positionSelect+" WHERE id = ?", id))
}

func scanPosition(row *sql.Row) (*models.PositionRecord, error) {
	var p models.PositionRecord
	var end sql.NullTime
	var pnl sql.NullFloat64
	err := row.Scan(&p.ID, &p.UserID, &p.StrategyName, &p.Instrument, &p.StartTime, &end, &p.Status, &pnl)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: position not found", errors.ErrDatabaseError)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to scan position: %v", errors.ErrDatabaseError, err)
	}
	if end.Valid {
		p.EndTime = &end.Time
	}
	p.TotalPnL = pnl.Float64
	return &p, nil
}

// SettlePosition closes the position once none of its trades is open and
// records the sum of their P&L. It reports whether the position was closed.
func (s *SQLiteStore) SettlePosition(ctx context.Context, positionID int64, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE positions
		SET status = ?, end_time = ?,
			total_pnl = (SELECT COALESCE(SUM(pnl), 0) FROM trades WHERE position_id = ?)
		WHERE id = ? AND status = ?
		  AND NOT EXISTS (SELECT 1 FROM trades WHERE position_id = ? AND status = ?)
	`, models.StatusClosed, at, positionID, positionID, models.StatusOpen, positionID, models.StatusOpen)
	if err != nil {
		return false, fmt.Errorf("%w: failed to settle position: %v", errors.ErrDatabaseError, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: %v", errors.ErrDatabaseError, err)
	}
	return n > 0, nil
}

// ============================================================================
// Trades Methods
// ============================================================================

// InsertTrade saves a new trade and sets its ID.
func (s *SQLiteStore) InsertTrade(ctx context.Context, t *models.TradeRecord) error {
	if t.Status == "" {
		t.Status = models.StatusOpen
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO trades (position_id, user_id, order_id, side, trading_symbol, quantity, entry_price, entry_time, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.PositionID, t.UserID, t.OrderID, string(t.Side), t.TradingSymbol, t.Quantity, t.EntryPrice, t.EntryTime, t.Status)
	if err != nil {
		return fmt.Errorf("%w: failed to insert trade: %v", errors.ErrDatabaseError, err)
	}
	t.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrDatabaseError, err)
	}
	return nil
}

const tradeSelect = `SELECT id, position_id, user_id, order_id, side, trading_symbol, quantity, entry_price, exit_price, entry_time, exit_time, pnl, status FROM trades`

// GetTrade retrieves a trade by id.
func (s *SQLiteStore) GetTrade(ctx context.Context, id int64) (*models.TradeRecord, error) {
	trades, err := s.GetTrades(ctx, TradeFilter{IDs: []int64{id}})
	if err != nil {
		return nil, err
	}
	if len(trades) == 0 {
		return nil, fmt.Errorf("%w: %d", errors.ErrTradeNotFound, id)
	}
	return &trades[0], nil
}

// GetTrades retrieves trades matching filter, oldest first.
func (s *SQLiteStore) GetTrades(ctx context.Context, filter TradeFilter) ([]models.TradeRecord, error) {
	query := tradeSelect + " WHERE 1=1"
	args := []interface{}{}

	if filter.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, filter.UserID)
	}
	if filter.PositionID != 0 {
		query += " AND position_id = ?"
		args = append(args, filter.PositionID)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}
	if len(filter.IDs) > 0 {
		query += " AND id IN (?" + strings.Repeat(",?", len(filter.IDs)-1) + ")"
		for _, id := range filter.IDs {
			args = append(args, id)
		}
	}

	query += " ORDER BY id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query trades: %v", errors.ErrDatabaseError, err)
	}
	defer rows.Close()

	var trades []models.TradeRecord
	for rows.Next() {
		var t models.TradeRecord
		var side string
		var exitPrice, pnl sql.NullFloat64
		var exitTime sql.NullTime

		if err := rows.Scan(&t.ID, &t.PositionID, &t.UserID, &t.OrderID, &side, &t.TradingSymbol, &t.Quantity,
			&t.EntryPrice, &exitPrice, &t.EntryTime, &exitTime, &pnl, &t.Status); err != nil {
			return nil, fmt.Errorf("%w: failed to scan trade: %v", errors.ErrDatabaseError, err)
		}

		t.Side = models.OrderSide(side)
		if exitPrice.Valid {
			t.ExitPrice = &exitPrice.Float64
		}
		if exitTime.Valid {
			t.ExitTime = &exitTime.Time
		}
		if pnl.Valid {
			t.PnL = &pnl.Float64
		}
		trades = append(trades, t)
	}

	return trades, rows.Err()
}

// CloseTrade marks an open trade closed with its exit price and P&L.
func (s *SQLiteStore) CloseTrade(ctx context.Context, id int64, exitPrice, pnl float64, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE trades SET status = ?, exit_price = ?, pnl = ?, exit_time = ?
		WHERE id = ? AND status = ?
	`, models.StatusClosed, exitPrice, pnl, at, id, models.StatusOpen)
	if err != nil {
		return fmt.Errorf("%w: failed to close trade: %v", errors.ErrDatabaseError, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrDatabaseError, err)
	}
	if n == 0 {
		if _, err := s.GetTrade(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("%w: %d", errors.ErrTradeClosed, id)
	}
	return nil
}

// ============================================================================
// P&L Methods
// ============================================================================

// RealizedPnL sums the P&L of closed trades that belong to the user's
// still-open positions.
func (s *SQLiteStore) RealizedPnL(ctx context.Context, userID string) (float64, error) {
	var total sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT SUM(t.pnl) FROM trades t
		JOIN positions p ON p.id = t.position_id
		WHERE t.user_id = ? AND t.status = ? AND p.status = ?
	`, userID, models.StatusClosed, models.StatusOpen).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to sum realized pnl: %v", errors.ErrDatabaseError, err)
	}
	return total.Float64, nil
}

var _ TradeStore = (*SQLiteStore)(nil)
