package stats

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestTrimBoundsSmallSampleKeepsEverything(t *testing.T) {
	lo, hi := TrimBounds(10, 0.05)
	assert.Equal(t, 0, lo)
	assert.Equal(t, 9, hi)
}

func TestTrimBoundsTwentyTrimsOneEachSide(t *testing.T) {
	lo, hi := TrimBounds(20, 0.05)
	assert.Equal(t, 1, lo)
	assert.Equal(t, 18, hi)
}

func TestWinsorizedStatsNoTrimAtTen(t *testing.T) {
	history := []float64{10, 10, 10, 10, 10, 100, 10, 10, 10, 10}

	w := WinsorizedStats(history, 0.05, 1.0)

	// mean = (9*10 + 100) / 10; sample variance = (9*81 + 81*81) / 9 = 810
	assert.Equal(t, 10, w.Kept)
	assert.InDelta(t, 19.0, w.Mean, 1e-12)
	assert.InDelta(t, math.Sqrt(810), w.Std, 1e-9)
}

func TestWinsorizedStatsTwentyDropsExtremes(t *testing.T) {
	history := make([]float64, 20)
	for i := range history {
		history[19-i] = float64(i + 1) // 20..1, unsorted on purpose
	}

	w := WinsorizedStats(history, 0.05, 1.0)

	// 2..19 remain: mean 10.5, sample variance of 18 consecutive integers = 18*19/12
	assert.Equal(t, 18, w.Kept)
	assert.InDelta(t, 10.5, w.Mean, 1e-12)
	assert.InDelta(t, math.Sqrt(28.5), w.Std, 1e-9)
}

func TestWinsorizedStatsFloorsSigma(t *testing.T) {
	w := WinsorizedStats([]float64{5, 5, 5, 5, 5}, 0.05, 1.0)
	assert.Equal(t, 5.0, w.Mean)
	assert.Equal(t, 1.0, w.Std)
}

func TestPercentileInterpolates(t *testing.T) {
	values := []float64{40, 10, 30, 20}
	assert.InDelta(t, 10, Percentile(values, 0), 1e-12)
	assert.InDelta(t, 40, Percentile(values, 100), 1e-12)
	assert.InDelta(t, 25, Percentile(values, 50), 1e-12)
	assert.InDelta(t, 19, Percentile(values, 30), 1e-12)
	assert.Equal(t, 0.0, Percentile(nil, 50))
}

func TestCenteredWindows(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}
	assert.Equal(t, []float64{3, 6, 9, 12, 9}, CenteredRollingSum(values, 3))
	assert.Equal(t, []float64{1.5, 2, 3, 4, 4.5}, CenteredMovingAverage(values, 3))
}

func TestLogReturnsSkipsNonPositive(t *testing.T) {
	r := LogReturns([]float64{100, 110, 0, 121})
	assert.Len(t, r, 1)
	assert.InDelta(t, math.Log(1.1), r[0], 1e-12)
}

// Property: the winsorized standard deviation never falls below its floor
// and the mean lies within the sample range.
func TestProperty_WinsorizedBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("sigma >= floor and min <= mean <= max", prop.ForAll(
		func(values []float64) bool {
			if len(values) == 0 {
				return true
			}
			w := WinsorizedStats(values, 0.05, 1.0)
			lo, hi := values[0], values[0]
			for _, v := range values {
				lo = math.Min(lo, v)
				hi = math.Max(hi, v)
			}
			return w.Std >= 1.0 && w.Mean >= lo-1e-9 && w.Mean <= hi+1e-9
		},
		gen.SliceOf(gen.Float64Range(0, 1e6)),
	))

	properties.TestingRun(t)
}
