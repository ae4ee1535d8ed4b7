package pricing

import (
	"math"

	apperrors "options-signals/internal/errors"
)

// Bisection bracket and stopping rules for ImpliedVol.
const (
	VolLow        = 0.01
	VolHigh       = 5.0
	maxIterations = 60
	priceTol      = 1e-6
)

// ImpliedVol finds the volatility that reproduces the observed price by
// bisection over [VolLow, VolHigh]. in.Vol is ignored. Prices outside the
// bracket clamp to the nearest bound. A non-positive price has no solution.
func ImpliedVol(observed float64, in Inputs) (float64, error) {
	if observed <= 0 || math.IsNaN(observed) {
		return 0, apperrors.ErrNoIVSolution
	}

	lo, hi := VolLow, VolHigh
	in.Vol = lo
	if observed <= Price(in) {
		return lo, nil
	}
	in.Vol = hi
	if observed >= Price(in) {
		return hi, nil
	}

	for i := 0; i < maxIterations; i++ {
		mid := 0.5 * (lo + hi)
		in.Vol = mid
		diff := Price(in) - observed
		if math.Abs(diff) < priceTol {
			return mid, nil
		}
		// Price is increasing in volatility for calls and puts alike
		if diff < 0 {
			lo = mid
		} else {
			hi = mid
		}
	}
	return 0.5 * (lo + hi), nil
}
