package unusual

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"options-signals/internal/analysis/chain"
	"options-signals/internal/models"
	ts "options-signals/internal/testsupport"
)

func history(exp, dataDate time.Time, strike float64, volume int64, days ...int) []HistoryPoint {
	out := make([]HistoryPoint, 0, len(days))
	for _, back := range days {
		out = append(out, HistoryPoint{
			Expiration: exp,
			Strike:     models.NewStrike(strike),
			DataDate:   dataDate.AddDate(0, 0, -back),
			Volume:     volume,
		})
	}
	return out
}

func span(from, to int) []int {
	var out []int
	for i := from; i <= to; i++ {
		out = append(out, i)
	}
	return out
}

func TestDetect(t *testing.T) {
	d := ts.Date(t, "2024-03-15")
	exp := ts.Date(t, "2024-04-19")

	rows := []models.ContractObservation{
		ts.Obs("AAPL", exp, d, models.OptionCall, 100, 600, 80, ts.WithMid(2.0)),
		ts.Obs("AAPL", exp, d, models.OptionPut, 100, 400, 20),
		ts.Obs("AAPL", exp, d, models.OptionCall, 105, 100, 60),
		ts.Obs("AAPL", exp, d, models.OptionCall, 110, 10, 5000),
		ts.Obs("AAPL", exp, d, models.OptionCall, 95, 0, 40),
		ts.Obs("AAPL", exp, d, models.OptionCall, 90, 0, 60),
	}
	c, err := chain.Aggregate("AAPL", rows)
	require.NoError(t, err)

	var hist []HistoryPoint
	hist = append(hist, history(exp, d, 100, 10, span(1, 10)...)...)
	hist = append(hist, history(exp, d, 105, 100, span(1, 10)...)...)
	hist = append(hist, history(exp, d, 110, 1, 1, 2, 3)...)
	hist = append(hist, history(exp, d, 110, 1, 40, 41, 42, 43, 44)...)
	hist = append(hist, history(exp, d, 95, 1, span(1, 10)...)...)
	hist = append(hist, history(exp, d, 90, 60, span(1, 10)...)...)

	flags := NewDetector(DefaultConfig()).Detect(c, hist)
	require.Len(t, flags, 2)

	byZ := flags[0]
	assert.Equal(t, 100.0, byZ.Strike.Float64())
	assert.Equal(t, int64(100), byZ.TotalVolume)
	assert.Equal(t, int64(1000), byZ.OpenInterest)
	assert.InDelta(t, 90.0, byZ.ZScore, 1e-9)
	require.NotNil(t, byZ.VolOI)
	assert.InDelta(t, 0.1, *byZ.VolOI, 1e-12)
	assert.Equal(t, 10, byZ.Meta.HistoryPoints)
	assert.Equal(t, 1.0, byZ.Meta.BaselineStd)
	require.NotNil(t, byZ.Meta.CallPremium)
	assert.InDelta(t, 16000, *byZ.Meta.CallPremium, 1e-9)
	assert.Nil(t, byZ.Meta.PutPremium)
	require.NotNil(t, byZ.Meta.TotalPremium)
	assert.InDelta(t, 16000, *byZ.Meta.TotalPremium, 1e-9)

	byRatio := flags[1]
	assert.Equal(t, 105.0, byRatio.Strike.Float64())
	assert.InDelta(t, -40.0, byRatio.ZScore, 1e-9)
	require.NotNil(t, byRatio.VolOI)
	assert.InDelta(t, 0.6, *byRatio.VolOI, 1e-12)
}

func TestDetectIgnoresLaggingExpirations(t *testing.T) {
	d := ts.Date(t, "2024-03-15")
	stale := ts.Date(t, "2024-03-14")
	exp := ts.Date(t, "2024-06-21")
	rows := []models.ContractObservation{
		ts.Obs("AAPL", exp, stale, models.OptionCall, 100, 10, 500),
		ts.Obs("AAPL", exp.AddDate(0, 1, 0), d, models.OptionCall, 100, 10, 1),
	}
	c, err := chain.Aggregate("AAPL", rows)
	require.NoError(t, err)

	flags := NewDetector(DefaultConfig()).Detect(c, history(exp, d, 100, 1, span(2, 12)...))
	assert.Empty(t, flags)
}

