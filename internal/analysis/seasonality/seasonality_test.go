package seasonality

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "options-signals/internal/errors"
	"options-signals/internal/models"
	ts "options-signals/internal/testsupport"
)

func cyclicPrices(n int) []float64 {
	prices := []float64{100}
	for i := 1; i < n; i++ {
		r := 0.001 * float64(i%7-3)
		prices = append(prices, prices[i-1]*(1+r))
	}
	return prices
}

func TestFindAnchor(t *testing.T) {
	closes := []models.DailyClose{
		{TradeDate: ts.Date(t, "2023-06-12")}, // Mon
		{TradeDate: ts.Date(t, "2023-06-13")},
		{TradeDate: ts.Date(t, "2023-06-15")}, // Wed missing
		{TradeDate: ts.Date(t, "2023-06-16")}, // Fri
		{TradeDate: ts.Date(t, "2023-06-19")}, // Mon
	}

	assert.Equal(t, 1, FindAnchor(closes, ts.Date(t, "2023-06-14"), 2), "tie takes the earlier day")
	assert.Equal(t, 3, FindAnchor(closes, ts.Date(t, "2023-06-17"), 2))
	assert.Equal(t, 4, FindAnchor(closes, ts.Date(t, "2023-06-18"), 2))
	assert.Equal(t, -1, FindAnchor(closes, ts.Date(t, "2023-06-25"), 2))
}

func TestBaseline(t *testing.T) {
	closes := ts.Closes("X", ts.Date(t, "2024-01-05"), []float64{100, 101, 102, 103, 104, 110, 99})
	b := Baseline(closes, 5)
	require.Len(t, b, 2)
	assert.InDelta(t, 0.10, b[0], 1e-12)
	assert.InDelta(t, 99.0/101-1, b[1], 1e-12)
	assert.Nil(t, Baseline(closes[:5], 5))
}

func TestComputeInsufficientHistory(t *testing.T) {
	end := ts.Date(t, "2024-06-14")
	rec := NewEngine(DefaultConfig()).Compute("X", end, ts.Closes("X", end, cyclicPrices(119)))
	assert.Equal(t, apperrors.ReasonInsufficientHistory, rec.Reason)
	assert.Zero(t, rec.Anchors)
	assert.Nil(t, rec.Cum5)
	assert.Nil(t, rec.ZScore)
}

func TestComputeNoAnchors(t *testing.T) {
	end := ts.Date(t, "2024-06-14")
	rec := NewEngine(DefaultConfig()).Compute("X", end, ts.Closes("X", end, cyclicPrices(200)))
	assert.Equal(t, apperrors.ReasonNoAnchors, rec.Reason)
	assert.Nil(t, rec.D1)
}

func TestCompute(t *testing.T) {
	end := ts.Date(t, "2024-06-14")
	closes := ts.Closes("X", end, cyclicPrices(600))
	rec := NewEngine(DefaultConfig()).Compute("X", end, closes)

	require.Equal(t, 2, rec.Anchors)
	assert.Empty(t, rec.Reason)
	assert.Equal(t, 595, rec.BaselineSamples)

	var wantCum, wantD1 float64
	for _, y := range []int{1, 2} {
		idx := FindAnchor(closes, end.AddDate(-y, 0, 0), 2)
		require.GreaterOrEqual(t, idx, 0)
		wantD1 += closes[idx+1].Close/closes[idx].Close - 1
		wantCum += closes[idx+5].Close/closes[idx].Close - 1
	}
	require.NotNil(t, rec.D1)
	require.NotNil(t, rec.D5)
	require.NotNil(t, rec.Cum5)
	assert.InDelta(t, wantD1/2, *rec.D1, 1e-12)
	assert.InDelta(t, wantCum/2, *rec.Cum5, 1e-12)

	require.NotNil(t, rec.BaselineMean)
	require.NotNil(t, rec.BaselineStd)
	require.NotNil(t, rec.ZScore)
	want := math.Max(-3, math.Min(3, (*rec.Cum5-*rec.BaselineMean) / *rec.BaselineStd))
	assert.InDelta(t, want, *rec.ZScore, 1e-12)
}

func TestComputeIgnoresFutureCloses(t *testing.T) {
	end := ts.Date(t, "2024-06-14")
	closes := ts.Closes("X", end.AddDate(0, 0, 60), cyclicPrices(600))
	a := NewEngine(DefaultConfig()).Compute("X", end, closes)

	var trimmed []models.DailyClose
	for _, c := range closes {
		if !c.TradeDate.After(end) {
			trimmed = append(trimmed, c)
		}
	}
	b := NewEngine(DefaultConfig()).Compute("X", end, trimmed)
	assert.Equal(t, a, b)
}
