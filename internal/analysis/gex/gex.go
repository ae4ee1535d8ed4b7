// Package gex computes dealer gamma and delta exposure from an option chain.
package gex

import (
	"fmt"
	"math"
	"sort"
	"time"

	"options-signals/internal/analysis/chain"
	"options-signals/internal/calendar"
	apperrors "options-signals/internal/errors"
	"options-signals/internal/models"
)

// wallCount is the number of call and put walls reported.
const wallCount = 3

// Timeframe is a named expiration lookahead window. Days == 0 means every
// unexpired expiration.
type Timeframe struct {
	Name string
	Days int
}

// DefaultTimeframes are the windows computed by a batch run.
var DefaultTimeframes = []Timeframe{
	{Name: "7d", Days: 7},
	{Name: "14d", Days: 14},
	{Name: "30d", Days: 30},
	{Name: "60d", Days: 60},
	{Name: "90d", Days: 90},
	{Name: "all", Days: 0},
}

// ParseTimeframe resolves a timeframe name.
func ParseTimeframe(name string) (Timeframe, error) {
	for _, tf := range DefaultTimeframes {
		if tf.Name == name {
			return tf, nil
		}
	}
	return Timeframe{}, fmt.Errorf("unknown timeframe %q", name)
}

// Contains reports whether an expiration falls inside the window.
func (tf Timeframe) Contains(dataDate, expiration time.Time) bool {
	if expiration.Before(dataDate) {
		return false
	}
	return tf.Days == 0 || !expiration.After(dataDate.AddDate(0, 0, tf.Days))
}

// Snapshots are the chains a GEX computation compares. PrevDay and PrevWeek
// may be nil when no earlier data exists.
type Snapshots struct {
	Current  *chain.Chain
	PrevDay  *chain.Chain
	PrevWeek *chain.Chain
}

// StrikeGEX is the net gamma exposure at one strike.
type StrikeGEX struct {
	Strike models.Strike
	NetGEX float64
}

// Engine computes GammaExposureResults.
type Engine struct {
	timeframes []Timeframe
}

// NewEngine creates a new engine for the given timeframes.
func NewEngine(timeframes []Timeframe) *Engine {
	if len(timeframes) == 0 {
		timeframes = DefaultTimeframes
	}
	return &Engine{timeframes: timeframes}
}

// Timeframes returns the configured timeframes.
func (e *Engine) Timeframes() []Timeframe {
	return e.timeframes
}

// ComputeAll computes every configured timeframe that has data. Timeframes
// without expirations are skipped.
func (e *Engine) ComputeAll(snap Snapshots, asOf time.Time) []models.GammaExposureResult {
	results := make([]models.GammaExposureResult, 0, len(e.timeframes))
	for _, tf := range e.timeframes {
		r, err := e.Compute(snap, tf, asOf)
		if err != nil {
			continue
		}
		results = append(results, *r)
	}
	return results
}

// Compute builds the GEX payload for one timeframe from scratch.
func (e *Engine) Compute(snap Snapshots, tf Timeframe, asOf time.Time) (*models.GammaExposureResult, error) {
	if snap.Current == nil {
		return nil, apperrors.ErrMissingData
	}
	dataDate := snap.Current.DataDate
	inWindow := func(exp time.Time) bool { return tf.Contains(dataDate, exp) }

	cur := snap.Current.Restrict(inWindow)
	if len(cur.Strikes) == 0 {
		return nil, apperrors.NewDataError("gex", cur.Symbol, "no expirations in "+tf.Name, apperrors.ErrMissingData)
	}

	levels := NetGEXByStrike(cur.Contracts)
	ageDays := calendar.CalendarDaysBetween(dataDate, asOf)
	if ageDays < 0 {
		ageDays = 0
	}

	r := &models.GammaExposureResult{
		Symbol:      cur.Symbol,
		Timeframe:   tf.Name,
		DataDate:    dataDate,
		DataAgeDays: ageDays,
		HVL:         FindHVL(levels),
	}

	calls := TopWalls(levels, true, wallCount)
	puts := TopWalls(levels, false, wallCount)
	r.CallResistance, r.CallWall2, r.CallWall3 = wallAt(calls, 0), wallAt(calls, 1), wallAt(calls, 2)
	r.PutSupport, r.PutWall2, r.PutWall3 = wallAt(puts, 0), wallAt(puts, 1), wallAt(puts, 2)

	for _, s := range cur.Strikes {
		r.CallOITotal += s.CallOI
		r.PutOITotal += s.PutOI
		r.CallVolumeTotal += s.CallVolume
		r.PutVolumeTotal += s.PutVolume
	}
	if total := r.CallOITotal + r.PutOITotal; total > 0 {
		r.CallInterestPct = float64(r.CallOITotal) / float64(total) * 100
		r.PutInterestPct = float64(r.PutOITotal) / float64(total) * 100
	}
	if r.CallVolumeTotal > 0 {
		r.PCRVolume = models.Ptr(float64(r.PutVolumeTotal) / float64(r.CallVolumeTotal))
	}

	var prevDay, prevWeek map[models.Strike]chain.StrikeAggregate
	if snap.PrevDay != nil {
		prev := snap.PrevDay.Restrict(inWindow)
		prevDay = prev.StrikeMap()
		var prevOI, prevVol int64
		for _, s := range prev.Strikes {
			prevOI += s.TotalOI()
			prevVol += s.TotalVolume()
		}
		r.TotalOIDelta = r.CallOITotal + r.PutOITotal - prevOI
		r.TotalVolumeDelta = r.CallVolumeTotal + r.PutVolumeTotal - prevVol
	}
	if snap.PrevWeek != nil {
		prevWeek = snap.PrevWeek.Restrict(inWindow).StrikeMap()
	}

	netByStrike := make(map[models.Strike]float64, len(levels))
	for _, l := range levels {
		netByStrike[l.Strike] = l.NetGEX
	}
	r.StrikeData = make([]models.StrikeExposure, 0, len(cur.Strikes))
	for _, s := range cur.Strikes {
		row := models.StrikeExposure{Strike: s.Strike, NetGEX: netByStrike[s.Strike]}
		if prevDay != nil {
			p := prevDay[s.Strike]
			row.CallOIDelta, row.CallOIDeltaPct = change(s.CallOI, p.CallOI)
			row.PutOIDelta, row.PutOIDeltaPct = change(s.PutOI, p.PutOI)
			row.CallVolDelta, row.CallVolDeltaPct = change(s.CallVolume, p.CallVolume)
			row.PutVolDelta, row.PutVolDeltaPct = change(s.PutVolume, p.PutVolume)
		}
		if prevWeek != nil {
			p := prevWeek[s.Strike]
			row.CallOIWoW = s.CallOI - p.CallOI
			row.PutOIWoW = s.PutOI - p.PutOI
			row.CallVolWoW = s.CallVolume - p.CallVolume
			row.PutVolWoW = s.PutVolume - p.PutVolume
		}
		r.StrikeData = append(r.StrikeData, row)
	}

	r.RegimeStrength, r.GammaSign = Regime(cur.Contracts, cur.Spot)
	return r, nil
}

// NetGEXByStrike returns sum(gamma*OI*100) over calls minus puts per strike,
// ascending by strike.
func NetGEXByStrike(contracts []models.ContractObservation) []StrikeGEX {
	byStrike := make(map[models.Strike]float64)
	for _, o := range contracts {
		v := models.Value(o.Gamma) * float64(o.OpenInterest) * models.ContractMultiplier
		if o.Type.IsCall() {
			byStrike[o.Strike] += v
		} else {
			byStrike[o.Strike] -= v
		}
	}

	out := make([]StrikeGEX, 0, len(byStrike))
	for k, v := range byStrike {
		out = append(out, StrikeGEX{Strike: k, NetGEX: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Strike < out[j].Strike })
	return out
}

// FindHVL returns the first strike (ascending) where net GEX turns from
// negative to non-negative, or the lowest strike when there is no flip.
func FindHVL(levels []StrikeGEX) float64 {
	if len(levels) == 0 {
		return 0
	}
	for i := 1; i < len(levels); i++ {
		if levels[i-1].NetGEX < 0 && levels[i].NetGEX >= 0 {
			return levels[i].Strike.Float64()
		}
	}
	return levels[0].Strike.Float64()
}

// TopWalls returns up to n strikes ranked by net GEX magnitude among strictly
// positive (positive=true) or strictly negative values.
func TopWalls(levels []StrikeGEX, positive bool, n int) []StrikeGEX {
	var walls []StrikeGEX
	for _, l := range levels {
		if (positive && l.NetGEX > 0) || (!positive && l.NetGEX < 0) {
			walls = append(walls, l)
		}
	}
	sort.SliceStable(walls, func(i, j int) bool {
		return math.Abs(walls[i].NetGEX) > math.Abs(walls[j].NetGEX)
	})
	if len(walls) > n {
		walls = walls[:n]
	}
	return walls
}

// Regime returns |sum signed gamma notional| / sum |gamma notional| in [0,1]
// and the sign of the numerator. Strength is nil when spot <= 0 or no
// contract carries both gamma and open interest.
func Regime(contracts []models.ContractObservation, spot float64) (*float64, int) {
	if spot <= 0 {
		return nil, 1
	}
	var signed, gross float64
	for _, o := range contracts {
		g := models.Value(o.Gamma)
		if g == 0 || o.OpenInterest == 0 {
			continue
		}
		v := g * spot * spot * float64(o.OpenInterest) * models.ContractMultiplier
		if o.Type.IsCall() {
			signed += v
		} else {
			signed -= v
		}
		gross += math.Abs(v)
	}

	sign := 1
	if signed < 0 {
		sign = -1
	}
	if gross == 0 {
		return nil, sign
	}
	strength := math.Min(math.Max(math.Abs(signed)/gross, 0), 1)
	return &strength, sign
}

// DeltaExposure returns sum(delta*OI*100) per live expiration. Put deltas
// are expected to be negative already.
func DeltaExposure(c *chain.Chain) []models.ExpiryDeltaExposure {
	out := make([]models.ExpiryDeltaExposure, 0, len(c.Expirations))
	for _, e := range c.Expirations {
		if e.Date.Before(c.DataDate) {
			continue
		}
		var dex float64
		for _, o := range e.Contracts {
			dex += models.Value(o.Delta) * float64(o.OpenInterest) * models.ContractMultiplier
		}
		out = append(out, models.ExpiryDeltaExposure{
			Symbol:     c.Symbol,
			DataDate:   e.DataDate,
			Expiration: e.Date,
			DEX:        dex,
		})
	}
	return out
}

func wallAt(walls []StrikeGEX, i int) *float64 {
	if i >= len(walls) {
		return nil
	}
	return models.Ptr(walls[i].Strike.Float64())
}

func change(cur, prev int64) (int64, *float64) {
	delta := cur - prev
	if prev == 0 {
		return delta, nil
	}
	return delta, models.Ptr(float64(delta) / float64(prev) * 100)
}
