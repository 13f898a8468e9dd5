package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	apperrors "regime-trader/internal/errors"
	"regime-trader/internal/models"
	"regime-trader/internal/performance"
	"regime-trader/internal/trading"
	"regime-trader/pkg/utils"
)

// insertBatchSize is the number of rows written per multi-row INSERT.
const insertBatchSize = 200

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db    *sql.DB
	retry utils.RetryConfig
}

// NewSQLiteStore creates a new SQLite-based data store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	retry := utils.DefaultRetryConfig()
	retry.Retryable = isBusy

	store := &SQLiteStore{
		db:    db,
		retry: retry,
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// isBusy reports whether err is a transient lock conflict.
func isBusy(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Candles table for historical OHLCV data
	CREATE TABLE IF NOT EXISTS candles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ticker TEXT NOT NULL,
		timeframe TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume REAL NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(ticker, timeframe, timestamp)
	);

	-- One row per completed backtest
	CREATE TABLE IF NOT EXISTS backtest_runs (
		id TEXT PRIMARY KEY,
		ticker TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		duration_ns INTEGER NOT NULL,
		fee_rate REAL NOT NULL,
		total_return_pct REAL NOT NULL,
		sharpe_ratio REAL NOT NULL,
		total_trades INTEGER NOT NULL,
		config TEXT NOT NULL,
		metrics TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Fills recorded during a backtest
	CREATE TABLE IF NOT EXISTS backtest_trades (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		position_id TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		type TEXT NOT NULL,
		price REAL NOT NULL,
		quantity REAL NOT NULL,
		fee REAL NOT NULL,
		pnl REAL NOT NULL,
		pnl_percent REAL NOT NULL,
		note TEXT,
		FOREIGN KEY (run_id) REFERENCES backtest_runs(id) ON DELETE CASCADE
	);

	-- Per-bar classification log
	CREATE TABLE IF NOT EXISTS market_states (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		regime INTEGER NOT NULL,
		stage TEXT NOT NULL,
		rsi REAL NOT NULL,
		volume_rel REAL NOT NULL,
		outcome TEXT NOT NULL,
		FOREIGN KEY (run_id) REFERENCES backtest_runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_candles_lookup ON candles(ticker, timeframe, timestamp);
	CREATE INDEX IF NOT EXISTS idx_runs_ticker ON backtest_runs(ticker, started_at);
	CREATE INDEX IF NOT EXISTS idx_trades_run ON backtest_trades(run_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_states_run ON market_states(run_id, timestamp);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// withTx runs fn in a transaction, retrying the whole transaction while the
// database is busy.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return utils.Retry(ctx, s.retry, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback()

		if err := fn(tx); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil
	})
}

// batchInsert returns a processor that writes rows with one multi-row
// INSERT per batch. prefix ends with VALUES and placeholder is the tuple for
// one row.
func batchInsert[T any](ctx context.Context, tx *sql.Tx, prefix, placeholder string, args func(T) []interface{}) *performance.BatchProcessor[T] {
	return performance.NewBatchProcessor(insertBatchSize, func(rows []T) error {
		query := prefix
		values := make([]interface{}, 0, len(rows)*8)
		for i, row := range rows {
			if i > 0 {
				query += ","
			}
			query += placeholder
			values = append(values, args(row)...)
		}
		_, err := tx.ExecContext(ctx, query, values...)
		return err
	})
}

// ============================================================================
// Candles Methods
// ============================================================================

// SaveCandles saves candles to the database, replacing bars with the same
// timestamp.
func (s *SQLiteStore) SaveCandles(ctx context.Context, ticker, timeframe string, candles []models.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		batch := batchInsert(ctx, tx,
			`INSERT OR REPLACE INTO candles (ticker, timeframe, timestamp, open, high, low, close, volume) VALUES `,
			"(?, ?, ?, ?, ?, ?, ?, ?)",
			func(c models.Candle) []interface{} {
				return []interface{}{ticker, timeframe, c.Timestamp.UTC(), c.Open, c.High, c.Low, c.Close, c.Volume}
			})
		for _, c := range candles {
			if err := batch.Add(c); err != nil {
				return err
			}
		}
		return batch.Flush()
	})
	if err != nil {
		return fmt.Errorf("failed to save candles: %w: %w", apperrors.ErrDatabaseError, err)
	}
	return nil
}

// GetCandles retrieves candles from the database.
func (s *SQLiteStore) GetCandles(ctx context.Context, ticker, timeframe string, from, to time.Time) ([]models.Candle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, open, high, low, close, volume
		FROM candles
		WHERE ticker = ? AND timeframe = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC
	`, ticker, timeframe, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query candles: %w", err)
	}
	defer rows.Close()

	var candles []models.Candle
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan candle: %w", err)
		}
		candles = append(candles, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating candles: %w", err)
	}

	return candles, nil
}

// GetCandlesFreshness returns the timestamp of the most recent candle, or
// the zero time when none are stored.
func (s *SQLiteStore) GetCandlesFreshness(ctx context.Context, ticker, timeframe string) (time.Time, error) {
	var latest sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(timestamp) FROM candles WHERE ticker = ? AND timeframe = ?
	`, ticker, timeframe).Scan(&latest)
	if err != nil && err != sql.ErrNoRows {
		return time.Time{}, fmt.Errorf("failed to get candles freshness: %w", err)
	}
	if !latest.Valid {
		return time.Time{}, nil
	}
	for _, layout := range sqlite3.SQLiteTimestampFormats {
		if t, err := time.ParseInLocation(layout, latest.String, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("failed to parse candle timestamp %q", latest.String)
}

// ============================================================================
// Backtest Methods
// ============================================================================

// SaveBacktest stores a run with every trade and market state in one
// transaction.
func (s *SQLiteStore) SaveBacktest(ctx context.Context, result *trading.BacktestResult) error {
	cfgJSON, err := json.Marshal(result.Config)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	metricsJSON, err := json.Marshal(result.Metrics)
	if err != nil {
		return fmt.Errorf("failed to encode metrics: %w", err)
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO backtest_runs (id, ticker, started_at, duration_ns, fee_rate, total_return_pct, sharpe_ratio, total_trades, config, metrics)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, result.RunID, result.Config.Ticker, result.StartedAt.UTC(), result.Duration.Nanoseconds(),
			result.Config.FeeRate, result.Metrics.TotalReturnPct, result.Metrics.SharpeRatio,
			result.Metrics.TotalTrades, string(cfgJSON), string(metricsJSON))
		if err != nil {
			return err
		}

		trades := batchInsert(ctx, tx,
			`INSERT INTO backtest_trades (id, run_id, position_id, timestamp, type, price, quantity, fee, pnl, pnl_percent, note) VALUES `,
			"(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
			func(t models.Trade) []interface{} {
				return []interface{}{t.ID, result.RunID, t.PositionID, t.Time.UTC(), string(t.Type), t.Price, t.Quantity, t.Fee, t.PnL, t.PnLPercent, t.Note}
			})
		for _, t := range result.Trades {
			if err := trades.Add(t); err != nil {
				return err
			}
		}
		if err := trades.Flush(); err != nil {
			return err
		}

		states := batchInsert(ctx, tx,
			`INSERT INTO market_states (run_id, timestamp, regime, stage, rsi, volume_rel, outcome) VALUES `,
			"(?, ?, ?, ?, ?, ?, ?)",
			func(m trading.MarketState) []interface{} {
				return []interface{}{result.RunID, m.Time.UTC(), m.Index, m.Stage, m.RSI, m.VolumeRel, m.Outcome}
			})
		for _, m := range result.MarketStates {
			if err := states.Add(m); err != nil {
				return err
			}
		}
		return states.Flush()
	})
	if err != nil {
		return fmt.Errorf("failed to save backtest %s: %w: %w", result.RunID, apperrors.ErrDatabaseError, err)
	}
	return nil
}

const runColumns = "id, ticker, started_at, duration_ns, config, metrics"

func scanRun(scan func(dest ...interface{}) error) (*RunSummary, error) {
	var r RunSummary
	var durationNs int64
	var cfgJSON, metricsJSON string
	if err := scan(&r.ID, &r.Ticker, &r.StartedAt, &durationNs, &cfgJSON, &metricsJSON); err != nil {
		return nil, err
	}
	r.Duration = time.Duration(durationNs)
	if err := json.Unmarshal([]byte(cfgJSON), &r.Config); err != nil {
		return nil, fmt.Errorf("failed to decode config of run %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(metricsJSON), &r.Metrics); err != nil {
		return nil, fmt.Errorf("failed to decode metrics of run %s: %w", r.ID, err)
	}
	return &r, nil
}

// ListRuns returns stored runs, most recent first.
func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]RunSummary, error) {
	query := "SELECT " + runColumns + " FROM backtest_runs WHERE 1=1"
	args := []interface{}{}

	if filter.Ticker != "" {
		query += " AND ticker = ?"
		args = append(args, filter.Ticker)
	}
	if !filter.StartDate.IsZero() {
		query += " AND started_at >= ?"
		args = append(args, filter.StartDate.UTC())
	}
	if !filter.EndDate.IsZero() {
		query += " AND started_at <= ?"
		args = append(args, filter.EndDate.UTC())
	}

	query += " ORDER BY started_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		r, err := scanRun(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// GetRun returns one stored run.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*RunSummary, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM backtest_runs WHERE id = ?", id)
	r, err := scanRun(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.Wrapf(apperrors.ErrDataNotFound, "run %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return r, nil
}

// GetRunTrades returns the fills of a run in time order.
func (s *SQLiteStore) GetRunTrades(ctx context.Context, runID string) ([]models.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, position_id, timestamp, type, price, quantity, fee, pnl, pnl_percent, note
		FROM backtest_trades
		WHERE run_id = ?
		ORDER BY timestamp ASC, rowid ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []models.Trade
	for rows.Next() {
		var t models.Trade
		var note sql.NullString
		if err := rows.Scan(&t.ID, &t.PositionID, &t.Time, &t.Type, &t.Price, &t.Quantity, &t.Fee, &t.PnL, &t.PnLPercent, &note); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		t.Note = note.String
		trades = append(trades, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trades: %w", err)
	}
	return trades, nil
}

// GetMarketStates returns the per-bar classification log of a run.
func (s *SQLiteStore) GetMarketStates(ctx context.Context, runID string) ([]trading.MarketState, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, regime, stage, rsi, volume_rel, outcome
		FROM market_states
		WHERE run_id = ?
		ORDER BY timestamp ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query market states: %w", err)
	}
	defer rows.Close()

	var states []trading.MarketState
	for rows.Next() {
		var m trading.MarketState
		if err := rows.Scan(&m.Time, &m.Index, &m.Stage, &m.RSI, &m.VolumeRel, &m.Outcome); err != nil {
			return nil, fmt.Errorf("failed to scan market state: %w", err)
		}
		states = append(states, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating market states: %w", err)
	}
	return states, nil
}

// DeleteRun removes a run and, through the foreign keys, its trades and
// states.
func (s *SQLiteStore) DeleteRun(ctx context.Context, id string) error {
	var affected int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM backtest_runs WHERE id = ?", id)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if affected == 0 {
		return apperrors.Wrapf(apperrors.ErrDataNotFound, "run %s", id)
	}
	return nil
}

var _ DataStore = (*SQLiteStore)(nil)
