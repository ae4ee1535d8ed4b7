// Package store provides data persistence implementations.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	_ "github.com/mattn/go-sqlite3"

	apperrors "options-signals/internal/errors"
	"options-signals/internal/models"
)

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db        *sql.DB
	mu        sync.RWMutex
	syncTimes map[string]time.Time
}

// NewSQLiteStore creates a new SQLite-based data store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", apperrors.ErrDatabaseError, dbPath, err)
	}

	// Configure connection pool for concurrent access
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{
		db:        db,
		syncTimes: make(map[string]time.Time),
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: initialize schema: %v", apperrors.ErrDatabaseError, err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes. Dates are stored as
// YYYY-MM-DD text and strikes as integer thousandths.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Contract series
	CREATE TABLE IF NOT EXISTS expirations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		expiration TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(symbol, expiration)
	);

	-- Daily contract snapshots
	CREATE TABLE IF NOT EXISTS option_observations (
		expiration_id INTEGER NOT NULL,
		data_date TEXT NOT NULL,
		option_type TEXT NOT NULL,
		strike_milli INTEGER NOT NULL,
		open_interest INTEGER NOT NULL DEFAULT 0,
		volume INTEGER NOT NULL DEFAULT 0,
		iv REAL,
		delta REAL,
		gamma REAL,
		vega REAL,
		underlying_price REAL,
		bid REAL,
		ask REAL,
		last REAL,
		mark REAL,
		mid REAL,
		close REAL,
		PRIMARY KEY (expiration_id, data_date, option_type, strike_milli),
		FOREIGN KEY (expiration_id) REFERENCES expirations(id)
	);

	-- Underlying daily bars
	CREATE TABLE IF NOT EXISTS daily_closes (
		symbol TEXT NOT NULL,
		trade_date TEXT NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		PRIMARY KEY (symbol, trade_date)
	);

	-- Gamma exposure payloads
	CREATE TABLE IF NOT EXISTS gex_results (
		symbol TEXT NOT NULL,
		timeframe TEXT NOT NULL,
		data_date TEXT NOT NULL,
		hvl REAL NOT NULL,
		regime_strength REAL,
		gamma_sign INTEGER NOT NULL,
		payload TEXT NOT NULL,
		computed_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (symbol, timeframe, data_date)
	);

	-- Dealer delta exposure per expiration
	CREATE TABLE IF NOT EXISTS dex_by_expiry (
		symbol TEXT NOT NULL,
		data_date TEXT NOT NULL,
		expiration TEXT NOT NULL,
		observed_date TEXT NOT NULL,
		dex REAL NOT NULL,
		PRIMARY KEY (symbol, data_date, expiration)
	);

	-- Unusual activity flags
	CREATE TABLE IF NOT EXISTS unusual_activity (
		symbol TEXT NOT NULL,
		data_date TEXT NOT NULL,
		exp_date TEXT NOT NULL,
		strike_milli INTEGER NOT NULL,
		total_volume INTEGER NOT NULL,
		open_interest INTEGER NOT NULL,
		z_score REAL NOT NULL,
		vol_oi REAL,
		meta TEXT NOT NULL,
		PRIMARY KEY (symbol, data_date, exp_date, strike_milli)
	);

	-- Pin risk per expiration
	CREATE TABLE IF NOT EXISTS expiry_pressure (
		symbol TEXT NOT NULL,
		data_date TEXT NOT NULL,
		exp_date TEXT NOT NULL,
		observed_date TEXT NOT NULL,
		spot REAL NOT NULL,
		pin_score INTEGER NOT NULL,
		max_pain REAL,
		clusters TEXT NOT NULL,
		PRIMARY KEY (symbol, data_date, exp_date)
	);

	-- Gamma corridors per expiration
	CREATE TABLE IF NOT EXISTS blind_spots (
		symbol TEXT NOT NULL,
		data_date TEXT NOT NULL,
		exp_date TEXT NOT NULL,
		observed_date TEXT NOT NULL,
		corridors TEXT NOT NULL,
		PRIMARY KEY (symbol, data_date, exp_date)
	);

	-- Seasonality
	CREATE TABLE IF NOT EXISTS seasonality (
		symbol TEXT NOT NULL,
		data_date TEXT NOT NULL,
		cum5 REAL,
		z_score REAL,
		anchors INTEGER NOT NULL,
		reason TEXT,
		payload TEXT NOT NULL,
		PRIMARY KEY (symbol, data_date)
	);

	-- Term structure and variance risk premium
	CREATE TABLE IF NOT EXISTS vol_metrics (
		symbol TEXT NOT NULL,
		data_date TEXT NOT NULL,
		iv_1m REAL,
		rv_20 REAL,
		vrp REAL,
		vrp_z REAL,
		reason TEXT,
		term_structure TEXT NOT NULL,
		PRIMARY KEY (symbol, data_date)
	);

	-- Sync status table
	CREATE TABLE IF NOT EXISTS sync_status (
		data_type TEXT PRIMARY KEY,
		last_sync DATETIME NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Create indexes for performance
	CREATE INDEX IF NOT EXISTS idx_observations_date ON option_observations(data_date);
	CREATE INDEX IF NOT EXISTS idx_observations_series_date ON option_observations(expiration_id, data_date);
	CREATE INDEX IF NOT EXISTS idx_expirations_symbol ON expirations(symbol);
	CREATE INDEX IF NOT EXISTS idx_gex_symbol_date ON gex_results(symbol, data_date);
	CREATE INDEX IF NOT EXISTS idx_vol_metrics_symbol_date ON vol_metrics(symbol, data_date);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ============================================================================
// Raw Inputs
// ============================================================================

// UpsertObservations saves contract snapshots, creating expiration series on
// first sight. Rows with an existing identity are replaced.
func (s *SQLiteStore) UpsertObservations(ctx context.Context, symbol string, rows []models.ContractObservation) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	seriesStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO expirations (symbol, expiration) VALUES (?, ?)
		ON CONFLICT(symbol, expiration) DO UPDATE SET symbol = excluded.symbol
		RETURNING id
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer seriesStmt.Close()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO option_observations (
			expiration_id, data_date, option_type, strike_milli, open_interest, volume,
			iv, delta, gamma, vega, underlying_price, bid, ask, last, mark, mid, close
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	seriesIDs := make(map[string]int64)
	for _, o := range rows {
		exp := formatDate(o.Expiration)
		id, ok := seriesIDs[exp]
		if !ok {
			if err := seriesStmt.QueryRowContext(ctx, symbol, exp).Scan(&id); err != nil {
				return fmt.Errorf("failed to upsert expiration %s: %w", exp, err)
			}
			seriesIDs[exp] = id
		}

		q := o.Quote
		_, err := stmt.ExecContext(ctx,
			id, formatDate(o.DataDate), string(o.Type), int64(o.Strike), o.OpenInterest, o.Volume,
			o.IV, o.Delta, o.Gamma, o.Vega, o.UnderlyingPrice,
			q.Bid, q.Ask, q.Last, q.Mark, q.Mid, q.Close,
		)
		if err != nil {
			return fmt.Errorf("failed to insert observation: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// UpsertDailyCloses saves daily bars, replacing existing dates.
func (s *SQLiteStore) UpsertDailyCloses(ctx context.Context, symbol string, closes []models.DailyClose) error {
	if len(closes) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO daily_closes (symbol, trade_date, open, high, low, close)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, c := range closes {
		_, err := stmt.ExecContext(ctx, symbol, formatDate(c.TradeDate), c.Open, c.High, c.Low, c.Close)
		if err != nil {
			return fmt.Errorf("failed to insert close: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Symbols lists every symbol with at least one expiration series.
func (s *SQLiteStore) Symbols(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT symbol FROM expirations ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("failed to query symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		symbols = append(symbols, sym)
	}
	return symbols, rows.Err()
}

// Expirations lists a symbol's expiration series in date order.
func (s *SQLiteStore) Expirations(ctx context.Context, symbol string) ([]models.ExpirationKey, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, expiration FROM expirations WHERE symbol = ? ORDER BY expiration
	`, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to query expirations: %w", err)
	}
	defer rows.Close()

	var keys []models.ExpirationKey
	for rows.Next() {
		k := models.ExpirationKey{Symbol: symbol}
		var exp string
		if err := rows.Scan(&k.ID, &exp); err != nil {
			return nil, fmt.Errorf("failed to scan expiration: %w", err)
		}
		if k.Expiration, err = models.ParseDate(exp); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// ============================================================================
// Chain Reads
// ============================================================================

// LatestChain returns, for every live expiration of symbol, the rows of its
// latest data date on or before asOf. An expiration is live when it is not
// before the most recent data date on or before asOf.
func (s *SQLiteStore) LatestChain(ctx context.Context, symbol string, asOf time.Time) ([]models.ContractObservation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.expiration, o.data_date, o.option_type, o.strike_milli, o.open_interest, o.volume,
			o.iv, o.delta, o.gamma, o.vega, o.underlying_price, o.bid, o.ask, o.last, o.mark, o.mid, o.close
		FROM option_observations o
		JOIN expirations e ON e.id = o.expiration_id
		JOIN (
			SELECT oo.expiration_id, MAX(oo.data_date) AS latest
			FROM option_observations oo
			JOIN expirations ee ON ee.id = oo.expiration_id
			WHERE ee.symbol = ? AND oo.data_date <= ?
			GROUP BY oo.expiration_id
		) m ON m.expiration_id = o.expiration_id AND m.latest = o.data_date
		WHERE e.symbol = ? AND e.expiration >= (
			SELECT MAX(so.data_date)
			FROM option_observations so
			JOIN expirations se ON se.id = so.expiration_id
			WHERE se.symbol = ? AND so.data_date <= ?
		)
		ORDER BY e.expiration, o.strike_milli, o.option_type
	`, symbol, formatDate(asOf), symbol, symbol, formatDate(asOf))
	if err != nil {
		return nil, fmt.Errorf("failed to query chain: %w", err)
	}
	defer rows.Close()

	var out []models.ContractObservation
	for rows.Next() {
		o := models.ContractObservation{Symbol: symbol}
		var exp, date, typ string
		var strike int64
		var iv, delta, gamma, vega, under, bid, ask, last, mark, mid, cls sql.NullFloat64
		if err := rows.Scan(&exp, &date, &typ, &strike, &o.OpenInterest, &o.Volume,
			&iv, &delta, &gamma, &vega, &under, &bid, &ask, &last, &mark, &mid, &cls); err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}
		if o.Expiration, err = models.ParseDate(exp); err != nil {
			return nil, err
		}
		if o.DataDate, err = models.ParseDate(date); err != nil {
			return nil, err
		}
		if o.Type, err = models.ParseOptionType(typ); err != nil {
			return nil, err
		}
		o.Strike = models.Strike(strike)
		o.IV, o.Delta, o.Gamma, o.Vega, o.UnderlyingPrice = nullable(iv), nullable(delta), nullable(gamma), nullable(vega), nullable(under)
		o.Quote = models.Quote{
			Bid: nullable(bid), Ask: nullable(ask), Last: nullable(last),
			Mark: nullable(mark), Mid: nullable(mid), Close: nullable(cls),
		}
		out = append(out, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chain: %w", err)
	}
	return out, nil
}

// StrikeVolumeHistory returns the total daily volume per (expiration, strike)
// for data dates in [from, to).
func (s *SQLiteStore) StrikeVolumeHistory(ctx context.Context, symbol string, from, to time.Time) ([]models.StrikeVolume, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.expiration, o.strike_milli, o.data_date, SUM(o.volume)
		FROM option_observations o
		JOIN expirations e ON e.id = o.expiration_id
		WHERE e.symbol = ? AND o.data_date >= ? AND o.data_date < ?
		GROUP BY e.expiration, o.strike_milli, o.data_date
		ORDER BY e.expiration, o.strike_milli, o.data_date
	`, symbol, formatDate(from), formatDate(to))
	if err != nil {
		return nil, fmt.Errorf("failed to query volume history: %w", err)
	}
	defer rows.Close()

	var out []models.StrikeVolume
	for rows.Next() {
		var exp, date string
		var strike int64
		var sv models.StrikeVolume
		if err := rows.Scan(&exp, &strike, &date, &sv.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan volume history: %w", err)
		}
		if sv.Expiration, err = models.ParseDate(exp); err != nil {
			return nil, err
		}
		if sv.DataDate, err = models.ParseDate(date); err != nil {
			return nil, err
		}
		sv.Strike = models.Strike(strike)
		out = append(out, sv)
	}
	return out, rows.Err()
}

// ChainFingerprint identifies the state of a symbol's chain as of a date:
// the latest data date, the row count and a hash over column totals of every
// row up to it. Corrected values on an already imported date change it.
func (s *SQLiteStore) ChainFingerprint(ctx context.Context, symbol string, asOf time.Time) (string, error) {
	var latest sql.NullString
	var count, oi, volume, strikes int64
	var iv, delta, gamma, vega, under, bid, ask, last, mark, mid, cls float64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(o.data_date), COUNT(*),
			COALESCE(SUM(o.open_interest), 0), COALESCE(SUM(o.volume), 0), COALESCE(SUM(o.strike_milli), 0),
			TOTAL(o.iv), TOTAL(o.delta), TOTAL(o.gamma), TOTAL(o.vega), TOTAL(o.underlying_price),
			TOTAL(o.bid), TOTAL(o.ask), TOTAL(o.last), TOTAL(o.mark), TOTAL(o.mid), TOTAL(o.close)
		FROM option_observations o
		JOIN expirations e ON e.id = o.expiration_id
		WHERE e.symbol = ? AND o.data_date <= ?
	`, symbol, formatDate(asOf)).Scan(&latest, &count, &oi, &volume, &strikes,
		&iv, &delta, &gamma, &vega, &under, &bid, &ask, &last, &mark, &mid, &cls)
	if err != nil {
		return "", fmt.Errorf("failed to fingerprint chain: %w", err)
	}
	if !latest.Valid {
		return "", apperrors.NewDataError("chain", symbol, "no observations", apperrors.ErrDataNotFound)
	}

	totals := fmt.Sprintf("%d|%d|%d|%g|%g|%g|%g|%g|%g|%g|%g|%g|%g|%g",
		oi, volume, strikes, iv, delta, gamma, vega, under, bid, ask, last, mark, mid, cls)
	return fmt.Sprintf("%s/%d/%016x", latest.String, count, xxhash.Sum64String(totals)), nil
}

// ============================================================================
// Price History
// ============================================================================

// DailyCloses returns up to limit bars on or before to, oldest first.
// A non-positive limit returns every bar.
func (s *SQLiteStore) DailyCloses(ctx context.Context, symbol string, to time.Time, limit int) ([]models.DailyClose, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT trade_date, open, high, low, close
		FROM daily_closes
		WHERE symbol = ? AND trade_date <= ?
		ORDER BY trade_date DESC
		LIMIT ?
	`, symbol, formatDate(to), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query closes: %w", err)
	}
	defer rows.Close()

	var closes []models.DailyClose
	for rows.Next() {
		c := models.DailyClose{Symbol: symbol}
		var date string
		if err := rows.Scan(&date, &c.Open, &c.High, &c.Low, &c.Close); err != nil {
			return nil, fmt.Errorf("failed to scan close: %w", err)
		}
		if c.TradeDate, err = models.ParseDate(date); err != nil {
			return nil, err
		}
		closes = append(closes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating closes: %w", err)
	}

	for i, j := 0, len(closes)-1; i < j; i, j = i+1, j-1 {
		closes[i], closes[j] = closes[j], closes[i]
	}
	return closes, nil
}

// VRPHistory returns up to limit stored VRP values dated before before,
// oldest first.
func (s *SQLiteStore) VRPHistory(ctx context.Context, symbol string, before time.Time, limit int) ([]float64, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT vrp FROM vol_metrics
		WHERE symbol = ? AND data_date < ? AND vrp IS NOT NULL
		ORDER BY data_date DESC
		LIMIT ?
	`, symbol, formatDate(before), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query vrp history: %w", err)
	}
	defer rows.Close()

	var values []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan vrp: %w", err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(values)-1; i < j; i, j = i+1, j-1 {
		values[i], values[j] = values[j], values[i]
	}
	return values, nil
}

// ============================================================================
// Sync Methods
// ============================================================================

// GetLastSync returns the last sync time for a data type.
func (s *SQLiteStore) GetLastSync(dataType string) time.Time {
	s.mu.RLock()
	if t, ok := s.syncTimes[dataType]; ok {
		s.mu.RUnlock()
		return t
	}
	s.mu.RUnlock()

	var lastSync time.Time
	err := s.db.QueryRow(`
		SELECT last_sync FROM sync_status WHERE data_type = ?
	`, dataType).Scan(&lastSync)
	if err != nil {
		return time.Time{}
	}

	s.mu.Lock()
	s.syncTimes[dataType] = lastSync
	s.mu.Unlock()

	return lastSync
}

// SetLastSync sets the last sync time for a data type.
func (s *SQLiteStore) SetLastSync(dataType string, t time.Time) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO sync_status (data_type, last_sync, updated_at)
		VALUES (?, ?, ?)
	`, dataType, t, time.Now())
	if err != nil {
		return fmt.Errorf("failed to set last sync: %w", err)
	}

	s.mu.Lock()
	s.syncTimes[dataType] = t
	s.mu.Unlock()

	return nil
}

func formatDate(t time.Time) string {
	return t.Format(models.DateLayout)
}

func nullable(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func notFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
