// Package expiry scores pin risk and max pain for expirations close to
// settlement.
package expiry

import (
	"math"
	"sort"

	"options-signals/internal/analysis/chain"
	"options-signals/internal/analysis/stats"
	"options-signals/internal/calendar"
	"options-signals/internal/models"
)

// Config holds the pin-risk parameters.
type Config struct {
	WithinTradingDays int     `mapstructure:"max_trading_days" validate:"min=0"`
	BandPct           float64 `mapstructure:"band_pct" validate:"gt=0,lt=1"`
	ProximityScale    float64 `mapstructure:"proximity_scale" validate:"gt=0"`
	MaxClusters       int     `mapstructure:"max_clusters" validate:"min=1"`
}

// DefaultConfig returns the standard parameters.
func DefaultConfig() Config {
	return Config{
		WithinTradingDays: 3,
		BandPct:           0.10,
		ProximityScale:    0.005,
		MaxClusters:       6,
	}
}

// Engine builds ExpiryPressureRecords.
type Engine struct {
	cfg Config
	cal *calendar.Calendar
}

// NewEngine creates an engine using cal for trading-day distances.
func NewEngine(cfg Config, cal *calendar.Calendar) *Engine {
	if cal == nil {
		cal = calendar.Default()
	}
	return &Engine{cfg: cfg, cal: cal}
}

// Compute returns one record per unexpired expiration within the configured
// number of trading days of the chain's data date.
func (e *Engine) Compute(c *chain.Chain) []models.ExpiryPressureRecord {
	var out []models.ExpiryPressureRecord
	for _, exp := range c.Expirations {
		if exp.Date.Before(c.DataDate) {
			continue
		}
		if e.cal.TradingDaysBetween(c.DataDate, exp.Date) > e.cfg.WithinTradingDays {
			continue
		}
		out = append(out, e.Record(c.Symbol, exp, c.Spot))
	}
	return out
}

// Record scores a single expiration.
func (e *Engine) Record(symbol string, exp chain.Expiration, spot float64) models.ExpiryPressureRecord {
	all := chain.AggregateStrikes(exp.Contracts)
	band := inBand(all, spot, e.cfg.BandPct)
	clusters := Clusters(band, spot, e.cfg.ProximityScale, e.cfg.MaxClusters)

	candidates := make([]models.Strike, len(band))
	for i, s := range band {
		candidates[i] = s.Strike
	}

	return models.ExpiryPressureRecord{
		Symbol:     symbol,
		DataDate:   exp.DataDate,
		Expiration: exp.Date,
		Spot:       spot,
		PinScore:   PinScore(clusters),
		Clusters:   clusters,
		MaxPain:    MaxPain(candidates, all),
	}
}

func inBand(strikes []chain.StrikeAggregate, spot, pct float64) []chain.StrikeAggregate {
	if spot <= 0 {
		return strikes
	}
	lo, hi := spot*(1-pct), spot*(1+pct)
	var out []chain.StrikeAggregate
	for _, s := range strikes {
		k := s.Strike.Float64()
		if k >= lo && k <= hi {
			out = append(out, s)
		}
	}
	return out
}

// SmoothingWindow returns clamp(odd(floor(n/12)), 3, 5).
func SmoothingWindow(n int) int {
	w := n / 12
	if w%2 == 0 {
		w++
	}
	if w < 3 {
		return 3
	}
	if w > 5 {
		return 5
	}
	return w
}

// Clusters smooths the OI histogram with a centered rolling sum and scores
// each strike by relative density times proximity to spot. Candidates within
// max(0.2, 0.2% of spot) of a better cluster are suppressed. The result is
// sorted by descending score.
func Clusters(strikes []chain.StrikeAggregate, spot, proximityScale float64, maxClusters int) []models.PinCluster {
	if len(strikes) == 0 {
		return nil
	}
	oi := make([]float64, len(strikes))
	for i, s := range strikes {
		oi[i] = float64(s.TotalOI())
	}
	density := stats.CenteredRollingSum(oi, SmoothingWindow(len(strikes)))

	maxDensity := 0.0
	for _, d := range density {
		maxDensity = math.Max(maxDensity, d)
	}
	if maxDensity <= 0 {
		return nil
	}

	candidates := make([]models.PinCluster, len(strikes))
	for i, s := range strikes {
		k := s.Strike.Float64()
		proximity, distance := 1.0, 0.0
		if spot > 0 {
			distance = math.Abs(k-spot) / spot
			proximity = math.Exp(-distance / proximityScale)
		}
		candidates[i] = models.PinCluster{
			Strike:           s.Strike,
			Density:          density[i],
			DistanceFromSpot: distance,
			Score:            stats.Clamp(density[i]/maxDensity*proximity, 0, 1),
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })

	minGap := math.Max(0.2, 0.002*spot)
	var kept []models.PinCluster
	for _, cand := range candidates {
		if len(kept) == maxClusters {
			break
		}
		suppressed := false
		for _, k := range kept {
			if math.Abs(cand.Strike.Float64()-k.Strike.Float64()) <= minGap {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, cand)
		}
	}
	return kept
}

// PinScore is round(100 * top score) clamped to [0, 100].
func PinScore(clusters []models.PinCluster) int {
	if len(clusters) == 0 {
		return 0
	}
	score := math.Round(100 * clusters[0].Score)
	if math.IsNaN(score) {
		return 0
	}
	return int(stats.Clamp(score, 0, 100))
}

// PayoutAt returns the total intrinsic value paid to option holders if the
// underlying settles at price.
func PayoutAt(price float64, strikes []chain.StrikeAggregate) float64 {
	var cost float64
	for _, s := range strikes {
		k := s.Strike.Float64()
		cost += math.Max(0, price-k) * float64(s.CallOI) * models.ContractMultiplier
		cost += math.Max(0, k-price) * float64(s.PutOI) * models.ContractMultiplier
	}
	return cost
}

// MaxPain returns the candidate settlement price minimising PayoutAt. Ties go
// to the lowest candidate. It is nil when there are no candidates.
func MaxPain(candidates []models.Strike, strikes []chain.StrikeAggregate) *float64 {
	if len(candidates) == 0 {
		return nil
	}
	sorted := append([]models.Strike(nil), candidates...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	best := sorted[0].Float64()
	bestCost := PayoutAt(best, strikes)
	for _, k := range sorted[1:] {
		if cost := PayoutAt(k.Float64(), strikes); cost < bestCost {
			best, bestCost = k.Float64(), cost
		}
	}
	return &best
}
