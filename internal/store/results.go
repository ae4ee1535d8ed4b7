package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	apperrors "options-signals/internal/errors"
	"options-signals/internal/models"
)

// derivedTables are replaced as a unit for a (symbol, data_date) scope.
var derivedTables = []string{
	"gex_results",
	"dex_by_expiry",
	"unusual_activity",
	"expiry_pressure",
	"blind_spots",
	"seasonality",
	"vol_metrics",
}

// SaveSymbolResults replaces every derived record of the (symbol, data date)
// scope in one transaction, so readers never observe a partial recompute.
func (s *SQLiteStore) SaveSymbolResults(ctx context.Context, r *models.SymbolResults) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	date := formatDate(r.DataDate)
	for _, table := range derivedTables {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE symbol = ? AND data_date = ?`, r.Symbol, date); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	for _, g := range r.GammaExposure {
		payload, err := json.Marshal(g)
		if err != nil {
			return fmt.Errorf("failed to encode gex payload: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO gex_results (symbol, timeframe, data_date, hvl, regime_strength, gamma_sign, payload)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, r.Symbol, g.Timeframe, date, g.HVL, g.RegimeStrength, g.GammaSign, string(payload)); err != nil {
			return fmt.Errorf("failed to insert gex result: %w", err)
		}
	}

	for _, d := range r.DeltaExposure {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO dex_by_expiry (symbol, data_date, expiration, observed_date, dex)
			VALUES (?, ?, ?, ?, ?)
		`, r.Symbol, date, formatDate(d.Expiration), formatDate(d.DataDate), d.DEX); err != nil {
			return fmt.Errorf("failed to insert dex: %w", err)
		}
	}

	for _, f := range r.UnusualFlags {
		meta, err := json.Marshal(f.Meta)
		if err != nil {
			return fmt.Errorf("failed to encode flag meta: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO unusual_activity (symbol, data_date, exp_date, strike_milli, total_volume, open_interest, z_score, vol_oi, meta)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, r.Symbol, date, formatDate(f.Expiration), int64(f.Strike), f.TotalVolume, f.OpenInterest, f.ZScore, f.VolOI, string(meta)); err != nil {
			return fmt.Errorf("failed to insert unusual flag: %w", err)
		}
	}

	for _, p := range r.ExpiryPressure {
		clusters, err := json.Marshal(p.Clusters)
		if err != nil {
			return fmt.Errorf("failed to encode clusters: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO expiry_pressure (symbol, data_date, exp_date, observed_date, spot, pin_score, max_pain, clusters)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, r.Symbol, date, formatDate(p.Expiration), formatDate(p.DataDate), p.Spot, p.PinScore, p.MaxPain, string(clusters)); err != nil {
			return fmt.Errorf("failed to insert expiry pressure: %w", err)
		}
	}

	for _, b := range r.BlindSpots {
		corridors, err := json.Marshal(b.Corridors)
		if err != nil {
			return fmt.Errorf("failed to encode corridors: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO blind_spots (symbol, data_date, exp_date, observed_date, corridors)
			VALUES (?, ?, ?, ?, ?)
		`, r.Symbol, date, formatDate(b.Expiration), formatDate(b.DataDate), string(corridors)); err != nil {
			return fmt.Errorf("failed to insert blind spots: %w", err)
		}
	}

	if sr := r.Seasonality; sr != nil {
		payload, err := json.Marshal(sr)
		if err != nil {
			return fmt.Errorf("failed to encode seasonality: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO seasonality (symbol, data_date, cum5, z_score, anchors, reason, payload)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, r.Symbol, date, sr.Cum5, sr.ZScore, sr.Anchors, sr.Reason, string(payload)); err != nil {
			return fmt.Errorf("failed to insert seasonality: %w", err)
		}
	}

	if vm := r.VolMetrics; vm != nil {
		term, err := json.Marshal(vm.TermStructure)
		if err != nil {
			return fmt.Errorf("failed to encode term structure: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO vol_metrics (symbol, data_date, iv_1m, rv_20, vrp, vrp_z, reason, term_structure)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, r.Symbol, date, vm.IV1M, vm.RV20, vm.VRP, vm.VRPZScore, vm.Reason, string(term)); err != nil {
			return fmt.Errorf("failed to insert vol metrics: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// resolveDate returns date formatted, or the latest data date of symbol in
// table when date is zero.
func (s *SQLiteStore) resolveDate(ctx context.Context, table, symbol string, date time.Time) (string, error) {
	if !date.IsZero() {
		return formatDate(date), nil
	}
	var latest sql.NullString
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(data_date) FROM `+table+` WHERE symbol = ?`, symbol).Scan(&latest); err != nil {
		return "", fmt.Errorf("failed to query latest %s date: %w", table, err)
	}
	if !latest.Valid {
		return "", apperrors.NewDataError(table, symbol, "no records", apperrors.ErrDataNotFound)
	}
	return latest.String, nil
}

// GammaExposure returns the stored GEX payload. A zero date selects the
// latest stored date.
func (s *SQLiteStore) GammaExposure(ctx context.Context, symbol, timeframe string, date time.Time) (*models.GammaExposureResult, error) {
	day, err := s.resolveDate(ctx, "gex_results", symbol, date)
	if err != nil {
		return nil, err
	}

	var payload string
	err = s.db.QueryRowContext(ctx, `
		SELECT payload FROM gex_results WHERE symbol = ? AND timeframe = ? AND data_date = ?
	`, symbol, timeframe, day).Scan(&payload)
	if notFound(err) {
		return nil, apperrors.NewDataError("gex_results", symbol, timeframe+" on "+day, apperrors.ErrDataNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query gex result: %w", err)
	}

	var r models.GammaExposureResult
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return nil, fmt.Errorf("failed to decode gex payload: %w", err)
	}
	return &r, nil
}

// DeltaExposure returns the stored per-expiration DEX rows.
func (s *SQLiteStore) DeltaExposure(ctx context.Context, symbol string, date time.Time) ([]models.ExpiryDeltaExposure, error) {
	day, err := s.resolveDate(ctx, "dex_by_expiry", symbol, date)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT expiration, observed_date, dex FROM dex_by_expiry
		WHERE symbol = ? AND data_date = ? ORDER BY expiration
	`, symbol, day)
	if err != nil {
		return nil, fmt.Errorf("failed to query dex: %w", err)
	}
	defer rows.Close()

	var out []models.ExpiryDeltaExposure
	for rows.Next() {
		d := models.ExpiryDeltaExposure{Symbol: symbol}
		var exp, observed string
		if err := rows.Scan(&exp, &observed, &d.DEX); err != nil {
			return nil, fmt.Errorf("failed to scan dex: %w", err)
		}
		if d.Expiration, err = models.ParseDate(exp); err != nil {
			return nil, err
		}
		if d.DataDate, err = models.ParseDate(observed); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// UnusualActivity returns the stored flags, ordered by expiration and strike.
func (s *SQLiteStore) UnusualActivity(ctx context.Context, symbol string, date time.Time) ([]models.UnusualActivityFlag, error) {
	day, err := s.resolveDate(ctx, "unusual_activity", symbol, date)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT data_date, exp_date, strike_milli, total_volume, open_interest, z_score, vol_oi, meta
		FROM unusual_activity
		WHERE symbol = ? AND data_date = ?
		ORDER BY exp_date, strike_milli
	`, symbol, day)
	if err != nil {
		return nil, fmt.Errorf("failed to query unusual activity: %w", err)
	}
	defer rows.Close()

	var out []models.UnusualActivityFlag
	for rows.Next() {
		f := models.UnusualActivityFlag{Symbol: symbol}
		var dataDate, exp, meta string
		var strike int64
		var volOI sql.NullFloat64
		if err := rows.Scan(&dataDate, &exp, &strike, &f.TotalVolume, &f.OpenInterest, &f.ZScore, &volOI, &meta); err != nil {
			return nil, fmt.Errorf("failed to scan unusual flag: %w", err)
		}
		if f.DataDate, err = models.ParseDate(dataDate); err != nil {
			return nil, err
		}
		if f.Expiration, err = models.ParseDate(exp); err != nil {
			return nil, err
		}
		f.Strike = models.Strike(strike)
		f.VolOI = nullable(volOI)
		if err := json.Unmarshal([]byte(meta), &f.Meta); err != nil {
			return nil, fmt.Errorf("failed to decode flag meta: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// ExpiryPressure returns the stored pin-risk records.
func (s *SQLiteStore) ExpiryPressure(ctx context.Context, symbol string, date time.Time) ([]models.ExpiryPressureRecord, error) {
	day, err := s.resolveDate(ctx, "expiry_pressure", symbol, date)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT exp_date, observed_date, spot, pin_score, max_pain, clusters
		FROM expiry_pressure
		WHERE symbol = ? AND data_date = ?
		ORDER BY exp_date
	`, symbol, day)
	if err != nil {
		return nil, fmt.Errorf("failed to query expiry pressure: %w", err)
	}
	defer rows.Close()

	var out []models.ExpiryPressureRecord
	for rows.Next() {
		p := models.ExpiryPressureRecord{Symbol: symbol}
		var exp, observed, clusters string
		var maxPain sql.NullFloat64
		if err := rows.Scan(&exp, &observed, &p.Spot, &p.PinScore, &maxPain, &clusters); err != nil {
			return nil, fmt.Errorf("failed to scan expiry pressure: %w", err)
		}
		if p.Expiration, err = models.ParseDate(exp); err != nil {
			return nil, err
		}
		if p.DataDate, err = models.ParseDate(observed); err != nil {
			return nil, err
		}
		p.MaxPain = nullable(maxPain)
		if err := json.Unmarshal([]byte(clusters), &p.Clusters); err != nil {
			return nil, fmt.Errorf("failed to decode clusters: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// BlindSpots returns the stored corridor records.
func (s *SQLiteStore) BlindSpots(ctx context.Context, symbol string, date time.Time) ([]models.BlindSpotRecord, error) {
	day, err := s.resolveDate(ctx, "blind_spots", symbol, date)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT exp_date, observed_date, corridors FROM blind_spots
		WHERE symbol = ? AND data_date = ? ORDER BY exp_date
	`, symbol, day)
	if err != nil {
		return nil, fmt.Errorf("failed to query blind spots: %w", err)
	}
	defer rows.Close()

	var out []models.BlindSpotRecord
	for rows.Next() {
		b := models.BlindSpotRecord{Symbol: symbol}
		var exp, observed, corridors string
		if err := rows.Scan(&exp, &observed, &corridors); err != nil {
			return nil, fmt.Errorf("failed to scan blind spots: %w", err)
		}
		if b.Expiration, err = models.ParseDate(exp); err != nil {
			return nil, err
		}
		if b.DataDate, err = models.ParseDate(observed); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(corridors), &b.Corridors); err != nil {
			return nil, fmt.Errorf("failed to decode corridors: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Seasonality returns the stored seasonality record.
func (s *SQLiteStore) Seasonality(ctx context.Context, symbol string, date time.Time) (*models.SeasonalityRecord, error) {
	day, err := s.resolveDate(ctx, "seasonality", symbol, date)
	if err != nil {
		return nil, err
	}
	var payload string
	err = s.db.QueryRowContext(ctx, `
		SELECT payload FROM seasonality WHERE symbol = ? AND data_date = ?
	`, symbol, day).Scan(&payload)
	if notFound(err) {
		return nil, apperrors.NewDataError("seasonality", symbol, day, apperrors.ErrDataNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query seasonality: %w", err)
	}

	var r models.SeasonalityRecord
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return nil, fmt.Errorf("failed to decode seasonality: %w", err)
	}
	return &r, nil
}

// VolMetrics returns the stored term structure and VRP record.
func (s *SQLiteStore) VolMetrics(ctx context.Context, symbol string, date time.Time) (*models.VolMetricsRecord, error) {
	day, err := s.resolveDate(ctx, "vol_metrics", symbol, date)
	if err != nil {
		return nil, err
	}
	r := models.VolMetricsRecord{Symbol: symbol}
	var iv1m, rv20, vrp, vrpZ sql.NullFloat64
	var reason sql.NullString
	var term string
	err = s.db.QueryRowContext(ctx, `
		SELECT iv_1m, rv_20, vrp, vrp_z, reason, term_structure
		FROM vol_metrics WHERE symbol = ? AND data_date = ?
	`, symbol, day).Scan(&iv1m, &rv20, &vrp, &vrpZ, &reason, &term)
	if notFound(err) {
		return nil, apperrors.NewDataError("vol_metrics", symbol, day, apperrors.ErrDataNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query vol metrics: %w", err)
	}

	if r.DataDate, err = models.ParseDate(day); err != nil {
		return nil, err
	}
	r.IV1M, r.RV20, r.VRP, r.VRPZScore = nullable(iv1m), nullable(rv20), nullable(vrp), nullable(vrpZ)
	r.Reason = reason.String
	if err := json.Unmarshal([]byte(term), &r.TermStructure); err != nil {
		return nil, fmt.Errorf("failed to decode term structure: %w", err)
	}
	return &r, nil
}
