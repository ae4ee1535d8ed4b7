// Package seasonality measures how the underlying has moved over the five
// trading days following the same calendar date in prior years.
package seasonality

import (
	"sort"
	"time"

	"options-signals/internal/analysis/stats"
	apperrors "options-signals/internal/errors"
	"options-signals/internal/models"
)

// Config holds the seasonality parameters.
type Config struct {
	MinCloses   int     `mapstructure:"min_rows" validate:"min=1"`
	Years       int     `mapstructure:"years" validate:"min=1"`
	WindowDays  int     `mapstructure:"window_days" validate:"min=0"`
	ForwardDays int     `mapstructure:"forward_days" validate:"min=1,max=5"`
	MinBaseline int     `mapstructure:"min_baseline" validate:"min=2"`
	ZClamp      float64 `mapstructure:"z_clamp" validate:"gt=0"`
}

// DefaultConfig returns the standard parameters.
func DefaultConfig() Config {
	return Config{
		MinCloses:   120,
		Years:       15,
		WindowDays:  2,
		ForwardDays: 5,
		MinBaseline: 60,
		ZClamp:      3,
	}
}

// Engine builds SeasonalityRecords.
type Engine struct {
	cfg Config
}

// NewEngine creates an engine.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Compute builds the record for dataDate from daily closes on or before it.
// Short histories produce a neutral record with a reason code.
func (e *Engine) Compute(symbol string, dataDate time.Time, closes []models.DailyClose) models.SeasonalityRecord {
	rec := models.SeasonalityRecord{Symbol: symbol, DataDate: dataDate}

	history := make([]models.DailyClose, 0, len(closes))
	for _, c := range closes {
		if !c.TradeDate.After(dataDate) && c.Close > 0 {
			history = append(history, c)
		}
	}
	sort.SliceStable(history, func(i, j int) bool { return history[i].TradeDate.Before(history[j].TradeDate) })

	if len(history) < e.cfg.MinCloses {
		rec.Reason = apperrors.ReasonInsufficientHistory
		return rec
	}

	fwd := e.cfg.ForwardDays
	sums := make([]float64, fwd)
	var cumSum float64
	for y := 1; y <= e.cfg.Years; y++ {
		idx := FindAnchor(history, dataDate.AddDate(-y, 0, 0), e.cfg.WindowDays)
		if idx < 0 || idx+fwd >= len(history) {
			continue
		}
		for i := 1; i <= fwd; i++ {
			sums[i-1] += history[idx+i].Close/history[idx+i-1].Close - 1
		}
		cumSum += history[idx+fwd].Close/history[idx].Close - 1
		rec.Anchors++
	}
	if rec.Anchors == 0 {
		rec.Reason = apperrors.ReasonNoAnchors
		return rec
	}

	n := float64(rec.Anchors)
	days := []**float64{&rec.D1, &rec.D2, &rec.D3, &rec.D4, &rec.D5}
	for i := 0; i < fwd; i++ {
		*days[i] = models.Ptr(sums[i] / n)
	}
	cum := cumSum / n
	rec.Cum5 = &cum

	baseline := Baseline(history, fwd)
	rec.BaselineSamples = len(baseline)
	if len(baseline) < e.cfg.MinBaseline {
		rec.Reason = apperrors.ReasonNoBaseline
		return rec
	}
	mean, std := stats.Mean(baseline), stats.SampleStdDev(baseline)
	rec.BaselineMean = &mean
	rec.BaselineStd = &std
	if std == 0 {
		rec.Reason = apperrors.ReasonNoBaseline
		return rec
	}
	z := stats.Clamp((cum-mean)/std, -e.cfg.ZClamp, e.cfg.ZClamp)
	rec.ZScore = &z
	return rec
}

// FindAnchor returns the index of the close nearest target within window
// calendar days, preferring the earlier date on a tie, or -1.
func FindAnchor(closes []models.DailyClose, target time.Time, window int) int {
	best, bestDist := -1, window+1
	for i, c := range closes {
		dist := int(c.TradeDate.Sub(target).Hours() / 24)
		if dist < 0 {
			dist = -dist
		}
		if dist < bestDist {
			best, bestDist = i, dist
		}
	}
	return best
}

// Baseline returns every rolling n-day simple return of the series.
func Baseline(closes []models.DailyClose, n int) []float64 {
	if len(closes) <= n {
		return nil
	}
	out := make([]float64, 0, len(closes)-n)
	for i := 0; i+n < len(closes); i++ {
		out = append(out, closes[i+n].Close/closes[i].Close-1)
	}
	return out
}
