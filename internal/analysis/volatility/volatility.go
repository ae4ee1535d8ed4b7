// Package volatility builds the ATM implied volatility term structure and
// the variance risk premium.
package volatility

import (
	"math"
	"sort"

	"options-signals/internal/analysis/chain"
	"options-signals/internal/analysis/stats"
	"options-signals/internal/calendar"
	apperrors "options-signals/internal/errors"
	"options-signals/internal/models"
)

// ATM IV sources.
const (
	SourceATM    = "atm"
	SourceCall   = "call_only"
	SourcePut    = "put_only"
	SourceOTMVol = "otm_volume_weighted"
)

// Config holds the volatility metric parameters.
type Config struct {
	IV1MDays          int `mapstructure:"target_days" validate:"min=1"`
	RVWindow          int `mapstructure:"rv_window" validate:"min=2"`
	AnnualizationDays int `mapstructure:"annualization_days" validate:"min=1"`
	VRPLookback       int `mapstructure:"vrp_history" validate:"min=1"`
	VRPMinHistory     int `mapstructure:"vrp_min_history" validate:"min=2"`
}

// DefaultConfig returns the standard parameters.
func DefaultConfig() Config {
	return Config{
		IV1MDays:          21,
		RVWindow:          20,
		AnnualizationDays: 252,
		VRPLookback:       252,
		VRPMinHistory:     30,
	}
}

// Engine builds VolMetricsRecords.
type Engine struct {
	cfg Config
}

// NewEngine creates an engine.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Compute builds the record for the chain's data date. closes must be
// ordered oldest first; vrpHistory holds prior daily VRP values, oldest first.
// Missing inputs leave the dependent fields nil and set Reason.
func (e *Engine) Compute(c *chain.Chain, closes []models.DailyClose, vrpHistory []float64) models.VolMetricsRecord {
	rec := models.VolMetricsRecord{Symbol: c.Symbol, DataDate: c.DataDate}

	if c.Spot > 0 {
		rec.TermStructure = TermStructure(c)
		rec.IV1M = OneMonthIV(rec.TermStructure, e.cfg.IV1MDays)
	}

	prices := make([]float64, 0, len(closes))
	for _, cl := range closes {
		if cl.TradeDate.After(c.DataDate) {
			continue
		}
		prices = append(prices, cl.Close)
	}
	rec.RV20 = RealizedVol(prices, e.cfg.RVWindow, e.cfg.AnnualizationDays)

	if rec.IV1M != nil && rec.RV20 != nil {
		vrp := *rec.IV1M - *rec.RV20
		rec.VRP = &vrp
		rec.VRPZScore = ZScore(vrp, vrpHistory, e.cfg.VRPLookback, e.cfg.VRPMinHistory)
	}

	switch {
	case c.Spot <= 0:
		rec.Reason = apperrors.ReasonMissingSpot
	case len(rec.TermStructure) == 0:
		rec.Reason = apperrors.ReasonNoData
	case rec.RV20 == nil || (rec.VRP != nil && rec.VRPZScore == nil):
		rec.Reason = apperrors.ReasonInsufficientHistory
	}
	return rec
}

// TermStructure returns the ATM IV of every unexpired expiration, ordered by
// expiration. Expirations without usable IV are left out.
func TermStructure(c *chain.Chain) []models.TermPoint {
	var points []models.TermPoint
	for _, exp := range c.Expirations {
		if exp.Date.Before(c.DataDate) {
			continue
		}
		iv, source, ok := ATMIV(exp.Contracts, c.Spot)
		if !ok {
			continue
		}
		points = append(points, models.TermPoint{
			Expiration: exp.Date,
			DTE:        calendar.CalendarDaysBetween(c.DataDate, exp.Date),
			ATMIV:      iv,
			Source:     source,
		})
	}
	sort.SliceStable(points, func(i, j int) bool { return points[i].Expiration.Before(points[j].Expiration) })
	return points
}

// ATMIV resolves the at-the-money IV of one expiration: the mean of call and
// put IV at the strike nearest spot, either side alone, or the
// volume-weighted IV of out-of-the-money contracts.
func ATMIV(contracts []models.ContractObservation, spot float64) (float64, string, bool) {
	var nearest models.Strike
	best := math.Inf(1)
	for _, o := range contracts {
		if d := math.Abs(o.Strike.Float64() - spot); d < best || (d == best && o.Strike < nearest) {
			best, nearest = d, o.Strike
		}
	}

	var callIV, putIV *float64
	for _, o := range contracts {
		if o.Strike != nearest || models.Value(o.IV) <= 0 {
			continue
		}
		if o.Type.IsCall() {
			callIV = o.IV
		} else {
			putIV = o.IV
		}
	}
	switch {
	case callIV != nil && putIV != nil:
		return (*callIV + *putIV) / 2, SourceATM, true
	case callIV != nil:
		return *callIV, SourceCall, true
	case putIV != nil:
		return *putIV, SourcePut, true
	}

	var weighted, volume float64
	for _, o := range contracts {
		iv := models.Value(o.IV)
		if iv <= 0 || o.Volume <= 0 {
			continue
		}
		k := o.Strike.Float64()
		otm := (o.Type.IsCall() && k > spot) || (!o.Type.IsCall() && k < spot)
		if !otm {
			continue
		}
		weighted += iv * float64(o.Volume)
		volume += float64(o.Volume)
	}
	if volume == 0 {
		return 0, "", false
	}
	return weighted / volume, SourceOTMVol, true
}

// OneMonthIV returns the ATM IV of the point whose DTE is closest to days.
// Ties go to the earlier expiration.
func OneMonthIV(points []models.TermPoint, days int) *float64 {
	var best *models.TermPoint
	for i := range points {
		p := &points[i]
		if best == nil || abs(p.DTE-days) < abs(best.DTE-days) {
			best = p
		}
	}
	if best == nil {
		return nil
	}
	return models.Ptr(best.ATMIV)
}

// RealizedVol is the annualised sample standard deviation of the last window
// log returns. It needs window+1 prices.
func RealizedVol(prices []float64, window, annualization int) *float64 {
	if len(prices) < window+1 {
		return nil
	}
	returns := stats.LogReturns(prices[len(prices)-window-1:])
	if len(returns) < window {
		return nil
	}
	rv := stats.SampleStdDev(returns) * math.Sqrt(float64(annualization))
	return &rv
}

// ZScore standardises v against the last lookback history values. It is nil
// with fewer than minHistory values or zero dispersion.
func ZScore(v float64, history []float64, lookback, minHistory int) *float64 {
	if len(history) > lookback {
		history = history[len(history)-lookback:]
	}
	if len(history) < minHistory {
		return nil
	}
	std := stats.SampleStdDev(history)
	if std == 0 {
		return nil
	}
	z := (v - stats.Mean(history)) / std
	return &z
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
