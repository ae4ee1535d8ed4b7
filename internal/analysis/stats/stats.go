// Package stats provides the small numeric helpers shared by the signal engines.
package stats

import (
	"math"
	"sort"
)

// trimEpsilon absorbs float error in p*n before flooring or ceiling.
const trimEpsilon = 1e-9

// Sum calculates the sum of a slice of float64.
func Sum(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}

// Mean calculates the arithmetic mean. It is zero for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return Sum(values) / float64(len(values))
}

// SampleStdDev calculates the standard deviation with an n-1 denominator.
// It is zero when fewer than two values are given.
func SampleStdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := Mean(values)
	var variance float64
	for _, v := range values {
		diff := v - m
		variance += diff * diff
	}
	variance /= float64(len(values) - 1)
	return math.Sqrt(variance)
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// TrimBounds returns the inclusive index range kept after trimming a fraction p
// of a sorted sample of size n from each tail: [floor(p*n), ceil((1-p)*n)-1].
func TrimBounds(n int, p float64) (lo, hi int) {
	if n == 0 {
		return 0, -1
	}
	lo = int(math.Floor(p*float64(n) + trimEpsilon))
	hi = int(math.Ceil((1-p)*float64(n)-trimEpsilon)) - 1
	if lo < 0 {
		lo = 0
	}
	if hi > n-1 {
		hi = n - 1
	}
	if hi < lo {
		// Degenerate trim: keep the middle element
		mid := (n - 1) / 2
		return mid, mid
	}
	return lo, hi
}

// Winsorized summarises a sample after trimming both tails.
type Winsorized struct {
	Mean float64
	Std  float64
	Kept int
}

// WinsorizedStats sorts a copy of values, trims fraction p from each tail and
// returns the mean and sample standard deviation of the rest. The standard
// deviation is floored at stdFloor.
func WinsorizedStats(values []float64, p, stdFloor float64) Winsorized {
	if len(values) == 0 {
		return Winsorized{Std: stdFloor}
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	lo, hi := TrimBounds(len(sorted), p)
	kept := sorted[lo : hi+1]

	std := SampleStdDev(kept)
	if std < stdFloor {
		std = stdFloor
	}
	return Winsorized{
		Mean: Mean(kept),
		Std:  std,
		Kept: len(kept),
	}
}

// Percentile returns the p-th percentile (0..100) using linear interpolation
// between closest ranks. It is zero for an empty slice.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := Clamp(p, 0, 100) / 100 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	frac := rank - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*frac
}

// CenteredMovingAverage averages each point with its window/2 neighbours on
// either side. The window shrinks at the edges.
func CenteredMovingAverage(values []float64, window int) []float64 {
	return centered(values, window, true)
}

// CenteredRollingSum sums each point with its window/2 neighbours on either side.
func CenteredRollingSum(values []float64, window int) []float64 {
	return centered(values, window, false)
}

func centered(values []float64, window int, average bool) []float64 {
	out := make([]float64, len(values))
	if window < 1 {
		window = 1
	}
	half := window / 2
	for i := range values {
		from := i - half
		if from < 0 {
			from = 0
		}
		to := i + half
		if to > len(values)-1 {
			to = len(values) - 1
		}
		total := Sum(values[from : to+1])
		if average {
			total /= float64(to - from + 1)
		}
		out[i] = total
	}
	return out
}

// LogReturns returns ln(p[i]/p[i-1]) for consecutive positive prices.
func LogReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] <= 0 || prices[i] <= 0 {
			continue
		}
		out = append(out, math.Log(prices[i]/prices[i-1]))
	}
	return out
}
