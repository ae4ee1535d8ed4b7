// Package unusual flags strikes whose traded volume is far above their
// own recent history.
package unusual

import (
	"sort"
	"time"

	"options-signals/internal/analysis/chain"
	"options-signals/internal/analysis/stats"
	"options-signals/internal/models"
)

// Config holds the detector thresholds.
type Config struct {
	LookbackDays int     `mapstructure:"lookback_days" validate:"min=1"`
	MinHistory   int     `mapstructure:"min_history" validate:"min=2"`
	TrimFraction float64 `mapstructure:"winsor_pct" validate:"gte=0,lt=0.5"`
	StdFloor     float64 `mapstructure:"std_floor" validate:"gt=0"`
	VolMin       int64   `mapstructure:"vol_min" validate:"min=0"`
	ZMin         float64 `mapstructure:"z_min"`
	VolOIMin     float64 `mapstructure:"vol_oi_min" validate:"gte=0"`
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		LookbackDays: 30,
		MinHistory:   5,
		TrimFraction: 0.05,
		StdFloor:     1.0,
		VolMin:       50,
		ZMin:         3.0,
		VolOIMin:     0.50,
	}
}

// HistoryPoint is the total volume of one strike on one past date.
type HistoryPoint = models.StrikeVolume

type seriesKey struct {
	expiration int64
	strike     models.Strike
}

type strikeDay struct {
	callVol, putVol int64
	oi              int64
	callPrem        *float64
	putPrem         *float64
}

// Detector scores strike volume against a winsorized baseline.
type Detector struct {
	cfg Config
}

// NewDetector creates a detector.
func NewDetector(cfg Config) *Detector {
	return &Detector{cfg: cfg}
}

// Config returns the detector thresholds.
func (d *Detector) Config() Config {
	return d.cfg
}

// HistoryWindow returns the [from, to) date range of history used for dataDate.
func (d *Detector) HistoryWindow(dataDate time.Time) (time.Time, time.Time) {
	return dataDate.AddDate(0, 0, -d.cfg.LookbackDays), dataDate
}

// Detect returns the flags for every expiration observed at the chain's
// data date. Strikes with fewer than MinHistory history points are skipped.
func (d *Detector) Detect(c *chain.Chain, history []HistoryPoint) []models.UnusualActivityFlag {
	from, to := d.HistoryWindow(c.DataDate)
	series := make(map[seriesKey][]float64)
	for _, h := range history {
		if h.DataDate.Before(from) || !h.DataDate.Before(to) {
			continue
		}
		k := seriesKey{expiration: h.Expiration.Unix(), strike: h.Strike}
		series[k] = append(series[k], float64(h.Volume))
	}

	var flags []models.UnusualActivityFlag
	for _, e := range c.Expirations {
		if !e.DataDate.Equal(c.DataDate) {
			continue
		}
		days := aggregate(e.Contracts)

		strikes := make([]models.Strike, 0, len(days))
		for s := range days {
			strikes = append(strikes, s)
		}
		sort.Slice(strikes, func(i, j int) bool { return strikes[i] < strikes[j] })

		for _, strike := range strikes {
			day := days[strike]
			hist := series[seriesKey{expiration: e.Date.Unix(), strike: strike}]
			if len(hist) < d.cfg.MinHistory {
				continue
			}
			if flag, ok := d.score(c.Symbol, e, strike, day, hist); ok {
				flags = append(flags, flag)
			}
		}
	}
	return flags
}

func (d *Detector) score(symbol string, e chain.Expiration, strike models.Strike, day *strikeDay, hist []float64) (models.UnusualActivityFlag, bool) {
	total := day.callVol + day.putVol
	base := stats.WinsorizedStats(hist, d.cfg.TrimFraction, d.cfg.StdFloor)
	z := (float64(total) - base.Mean) / base.Std

	var volOI *float64
	if day.oi > 0 {
		volOI = models.Ptr(float64(total) / float64(day.oi))
	}

	if total < d.cfg.VolMin {
		return models.UnusualActivityFlag{}, false
	}
	if z < d.cfg.ZMin && (volOI == nil || *volOI < d.cfg.VolOIMin) {
		return models.UnusualActivityFlag{}, false
	}

	meta := models.UnusualActivityMeta{
		CallVolume:    day.callVol,
		PutVolume:     day.putVol,
		CallPremium:   day.callPrem,
		PutPremium:    day.putPrem,
		BaselineMean:  base.Mean,
		BaselineStd:   base.Std,
		HistoryPoints: len(hist),
	}
	if day.callPrem != nil || day.putPrem != nil {
		meta.TotalPremium = models.Ptr(models.Value(day.callPrem) + models.Value(day.putPrem))
	}

	return models.UnusualActivityFlag{
		Symbol:       symbol,
		DataDate:     e.DataDate,
		Expiration:   e.Date,
		Strike:       strike,
		TotalVolume:  total,
		OpenInterest: day.oi,
		ZScore:       z,
		VolOI:        volOI,
		Meta:         meta,
	}, true
}

func aggregate(contracts []models.ContractObservation) map[models.Strike]*strikeDay {
	days := make(map[models.Strike]*strikeDay)
	for _, o := range contracts {
		day, ok := days[o.Strike]
		if !ok {
			day = &strikeDay{}
			days[o.Strike] = day
		}
		day.oi += o.OpenInterest
		premium, priced := chain.Premium(o)
		if o.Type.IsCall() {
			day.callVol += o.Volume
			if priced {
				day.callPrem = models.Ptr(models.Value(day.callPrem) + premium)
			}
		} else {
			day.putVol += o.Volume
			if priced {
				day.putPrem = models.Ptr(models.Value(day.putPrem) + premium)
			}
		}
	}
	return days
}

