// Package chain groups raw contract observations into a per-strike option chain.
package chain

import (
	"sort"
	"time"

	apperrors "options-signals/internal/errors"
	"options-signals/internal/models"
)

// Spot price sources.
const (
	SpotFromUnderlying = "underlying_price"
	SpotFromOIMedian   = "oi_weighted_median"
	SpotUnavailable    = "none"
)

// StrikeAggregate holds summed open interest and volume at one strike.
type StrikeAggregate struct {
	Strike     models.Strike
	CallOI     int64
	PutOI      int64
	CallVolume int64
	PutVolume  int64
}

// TotalOI returns call plus put open interest.
func (a StrikeAggregate) TotalOI() int64 {
	return a.CallOI + a.PutOI
}

// TotalVolume returns call plus put volume.
func (a StrikeAggregate) TotalVolume() int64 {
	return a.CallVolume + a.PutVolume
}

// Expiration is the slice of a chain belonging to one expiration date.
type Expiration struct {
	Date      time.Time
	DataDate  time.Time
	Contracts []models.ContractObservation
}

// Chain is a symbol's option chain at the latest available date of each expiration.
type Chain struct {
	Symbol      string
	DataDate    time.Time
	Spot        float64
	SpotSource  string
	Contracts   []models.ContractObservation
	Strikes     []StrikeAggregate
	Expirations []Expiration
}

// Aggregate builds a chain from the latest rows of each expiration. Rows may
// carry different data dates when an expiration lags. It fails with
// ErrMissingData when there are no rows at all.
func Aggregate(symbol string, rows []models.ContractObservation) (*Chain, error) {
	if len(rows) == 0 {
		return nil, apperrors.NewDataError("chain", symbol, "no observations for any expiration", apperrors.ErrMissingData)
	}

	contracts := append([]models.ContractObservation(nil), rows...)
	sortContracts(contracts)

	c := &Chain{Symbol: symbol, Contracts: contracts}
	for _, o := range contracts {
		if o.DataDate.After(c.DataDate) {
			c.DataDate = o.DataDate
		}
	}
	c.Strikes = aggregateStrikes(contracts)
	c.Expirations = groupExpirations(contracts)
	c.Spot, c.SpotSource = resolveSpot(contracts, c.DataDate, c.Strikes)
	return c, nil
}

// Restrict returns a chain holding only the expirations accepted by keep.
// Strike aggregates are rebuilt; spot is carried over unchanged.
func (c *Chain) Restrict(keep func(expiration time.Time) bool) *Chain {
	out := &Chain{
		Symbol:     c.Symbol,
		DataDate:   c.DataDate,
		Spot:       c.Spot,
		SpotSource: c.SpotSource,
	}
	for _, e := range c.Expirations {
		if !keep(e.Date) {
			continue
		}
		out.Expirations = append(out.Expirations, e)
		out.Contracts = append(out.Contracts, e.Contracts...)
	}
	out.Strikes = aggregateStrikes(out.Contracts)
	return out
}

// StrikeMap indexes the strike aggregates by strike.
func (c *Chain) StrikeMap() map[models.Strike]StrikeAggregate {
	m := make(map[models.Strike]StrikeAggregate, len(c.Strikes))
	for _, s := range c.Strikes {
		m[s.Strike] = s
	}
	return m
}

// AggregateStrikes sums open interest and volume by strike, ascending.
func AggregateStrikes(contracts []models.ContractObservation) []StrikeAggregate {
	return aggregateStrikes(contracts)
}

func aggregateStrikes(contracts []models.ContractObservation) []StrikeAggregate {
	byStrike := make(map[models.Strike]*StrikeAggregate)
	for _, o := range contracts {
		agg, ok := byStrike[o.Strike]
		if !ok {
			agg = &StrikeAggregate{Strike: o.Strike}
			byStrike[o.Strike] = agg
		}
		if o.Type.IsCall() {
			agg.CallOI += o.OpenInterest
			agg.CallVolume += o.Volume
		} else {
			agg.PutOI += o.OpenInterest
			agg.PutVolume += o.Volume
		}
	}

	out := make([]StrikeAggregate, 0, len(byStrike))
	for _, agg := range byStrike {
		out = append(out, *agg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Strike < out[j].Strike })
	return out
}

func groupExpirations(contracts []models.ContractObservation) []Expiration {
	var out []Expiration
	for _, o := range contracts {
		n := len(out)
		if n == 0 || !out[n-1].Date.Equal(o.Expiration) {
			out = append(out, Expiration{Date: o.Expiration, DataDate: o.DataDate})
			n++
		}
		if o.DataDate.After(out[n-1].DataDate) {
			out[n-1].DataDate = o.DataDate
		}
		out[n-1].Contracts = append(out[n-1].Contracts, o)
	}
	return out
}

// resolveSpot averages underlying_price over rows at the chain's data date,
// falling back to the OI-weighted median strike.
func resolveSpot(contracts []models.ContractObservation, dataDate time.Time, strikes []StrikeAggregate) (float64, string) {
	var total float64
	var n int
	for _, o := range contracts {
		if !o.DataDate.Equal(dataDate) || o.UnderlyingPrice == nil || *o.UnderlyingPrice <= 0 {
			continue
		}
		total += *o.UnderlyingPrice
		n++
	}
	if n > 0 {
		return total / float64(n), SpotFromUnderlying
	}

	var totalOI int64
	for _, s := range strikes {
		totalOI += s.TotalOI()
	}
	if totalOI == 0 {
		return 0, SpotUnavailable
	}
	var cum int64
	for _, s := range strikes {
		cum += s.TotalOI()
		if 2*cum >= totalOI {
			return s.Strike.Float64(), SpotFromOIMedian
		}
	}
	return strikes[len(strikes)-1].Strike.Float64(), SpotFromOIMedian
}

func sortContracts(contracts []models.ContractObservation) {
	sort.SliceStable(contracts, func(i, j int) bool {
		a, b := contracts[i], contracts[j]
		if !a.Expiration.Equal(b.Expiration) {
			return a.Expiration.Before(b.Expiration)
		}
		if a.Strike != b.Strike {
			return a.Strike < b.Strike
		}
		return a.Type < b.Type
	})
}
