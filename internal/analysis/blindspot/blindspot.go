// Package blindspot finds strike corridors with little dealer gamma, where
// hedging flows offer the underlying no support.
package blindspot

import (
	"fmt"
	"math"
	"sort"

	"options-signals/internal/analysis/chain"
	"options-signals/internal/analysis/stats"
	"options-signals/internal/models"
)

// Mode selects how call and put gamma combine at a strike.
type Mode string

const (
	// ModeNet subtracts put gamma notional from call gamma notional.
	ModeNet Mode = "net"
	// ModeGross adds them.
	ModeGross Mode = "gross"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeNet, ModeGross:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown blind spot mode %q", s)
}

// Config holds the corridor detection parameters.
type Config struct {
	Mode                Mode    `mapstructure:"mode" validate:"oneof=net gross"`
	BandPct             float64 `mapstructure:"band_pct" validate:"gt=0,lt=1"`
	OIPercentile        float64 `mapstructure:"oi_percentile" validate:"gte=0,lte=100"`
	SmoothWindow        int     `mapstructure:"smooth_window" validate:"min=1"`
	ThresholdPercentile float64 `mapstructure:"threshold_percentile" validate:"gt=0,lte=100"`
	MinWidth            int     `mapstructure:"min_strikes" validate:"min=1"`
	MinStrength         float64 `mapstructure:"min_strength" validate:"gte=0,lte=1"`
	MergeGapPct         float64 `mapstructure:"merge_gap_pct" validate:"gte=0"`
}

// DefaultConfig returns the standard parameters.
func DefaultConfig() Config {
	return Config{
		Mode:                ModeNet,
		BandPct:             0.18,
		OIPercentile:        30,
		SmoothWindow:        5,
		ThresholdPercentile: 25,
		MinWidth:            3,
		MinStrength:         0.25,
		MergeGapPct:         0.005,
	}
}

// Detector builds BlindSpotRecords.
type Detector struct {
	cfg Config
}

// NewDetector creates a detector.
func NewDetector(cfg Config) *Detector {
	return &Detector{cfg: cfg}
}

type strikeGamma struct {
	strike   float64
	oi       float64
	notional float64
}

// Compute returns a record for every unexpired expiration that has at least
// one corridor. Nothing is produced without a spot price.
func (d *Detector) Compute(c *chain.Chain) []models.BlindSpotRecord {
	if c.Spot <= 0 {
		return nil
	}
	var out []models.BlindSpotRecord
	for _, exp := range c.Expirations {
		if exp.Date.Before(c.DataDate) {
			continue
		}
		corridors := d.Corridors(exp.Contracts, c.Spot)
		if len(corridors) == 0 {
			continue
		}
		out = append(out, models.BlindSpotRecord{
			Symbol:     c.Symbol,
			DataDate:   exp.DataDate,
			Expiration: exp.Date,
			Corridors:  corridors,
		})
	}
	return out
}

// Corridors returns the merged low-gamma corridors of one expiration.
func (d *Detector) Corridors(contracts []models.ContractObservation, spot float64) []models.Corridor {
	series := d.series(contracts, spot)
	if len(series) == 0 {
		return nil
	}

	values := make([]float64, len(series))
	for i, s := range series {
		values[i] = s.notional
	}
	smoothed := stats.CenteredMovingAverage(values, d.cfg.SmoothWindow)

	abs := make([]float64, len(smoothed))
	var nonZero []float64
	for i, v := range smoothed {
		abs[i] = math.Abs(v)
		if abs[i] > 0 {
			nonZero = append(nonZero, abs[i])
		}
	}
	if len(nonZero) == 0 {
		return nil
	}
	threshold := stats.Percentile(nonZero, d.cfg.ThresholdPercentile)
	if threshold <= 0 {
		return nil
	}

	var corridors []models.Corridor
	for i := 0; i < len(abs); {
		if abs[i] >= threshold {
			i++
			continue
		}
		j := i
		var ratio float64
		for j < len(abs) && abs[j] < threshold {
			ratio += abs[j] / threshold
			j++
		}
		width := j - i
		strength := stats.Clamp(1-ratio/float64(width), 0, 1)
		if width >= d.cfg.MinWidth && strength >= d.cfg.MinStrength {
			corridors = append(corridors, models.Corridor{
				From:     series[i].strike,
				To:       series[j-1].strike,
				WidthN:   width,
				Strength: strength,
			})
		}
		i = j
	}
	return MergeCorridors(corridors, d.cfg.MergeGapPct*spot)
}

// series returns the per-strike gamma notional inside the spot band,
// restricted to strikes with OI at or above the configured percentile.
func (d *Detector) series(contracts []models.ContractObservation, spot float64) []strikeGamma {
	lo, hi := spot*(1-d.cfg.BandPct), spot*(1+d.cfg.BandPct)
	byStrike := make(map[models.Strike]*strikeGamma)
	for _, o := range contracts {
		k := o.Strike.Float64()
		if k < lo || k > hi {
			continue
		}
		sg, ok := byStrike[o.Strike]
		if !ok {
			sg = &strikeGamma{strike: k}
			byStrike[o.Strike] = sg
		}
		oi := float64(o.OpenInterest)
		sg.oi += oi
		notional := models.Value(o.Gamma) * oi * models.ContractMultiplier * spot
		if d.cfg.Mode != ModeGross && !o.Type.IsCall() {
			notional = -notional
		}
		sg.notional += notional
	}
	if len(byStrike) == 0 {
		return nil
	}

	ois := make([]float64, 0, len(byStrike))
	for _, sg := range byStrike {
		ois = append(ois, sg.oi)
	}
	minOI := stats.Percentile(ois, d.cfg.OIPercentile)

	out := make([]strikeGamma, 0, len(byStrike))
	for _, sg := range byStrike {
		if sg.oi >= minOI {
			out = append(out, *sg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].strike < out[j].strike })
	return out
}

// MergeCorridors joins corridors that overlap or are separated by at most
// gap. The merged corridor spans the union and keeps the larger strength.
func MergeCorridors(corridors []models.Corridor, gap float64) []models.Corridor {
	if len(corridors) < 2 {
		return corridors
	}
	sorted := append([]models.Corridor(nil), corridors...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].From < sorted[j].From })

	out := []models.Corridor{sorted[0]}
	for _, c := range sorted[1:] {
		last := &out[len(out)-1]
		if c.From-last.To > gap {
			out = append(out, c)
			continue
		}
		if c.To > last.To {
			last.To = c.To
		}
		last.WidthN += c.WidthN
		last.Strength = math.Max(last.Strength, c.Strength)
	}
	return out
}
