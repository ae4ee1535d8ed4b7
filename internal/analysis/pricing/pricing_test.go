package pricing

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "options-signals/internal/errors"
	"options-signals/internal/models"
)

func TestPriceMatchesReferenceValues(t *testing.T) {
	call := PriceAndGreeks(Inputs{Type: models.OptionCall, Spot: 100, Strike: 100, T: 1, Vol: 0.2, Rate: 0.05})
	put := PriceAndGreeks(Inputs{Type: models.OptionPut, Spot: 100, Strike: 100, T: 1, Vol: 0.2, Rate: 0.05})

	assert.InDelta(t, 10.4506, call.Price, 1e-4)
	assert.InDelta(t, 5.5735, put.Price, 1e-4)
	assert.InDelta(t, 0.6368, call.Delta, 1e-4)
	assert.InDelta(t, -0.3632, put.Delta, 1e-4)
	assert.InDelta(t, 0.018762, call.Gamma, 1e-6)
	assert.Equal(t, call.Gamma, put.Gamma)
	// vega per vol point, theta per day
	assert.InDelta(t, 0.37524, call.Vega, 1e-4)
	assert.InDelta(t, -6.414/365, call.Theta, 1e-4)
	assert.InDelta(t, 0.5323, call.Rho, 1e-4)
}

func TestNormCDFAccuracy(t *testing.T) {
	for x := -6.0; x <= 6.0; x += 0.05 {
		exact := 0.5 * (1 + math.Erf(x/math.Sqrt2))
		assert.InDelta(t, exact, normCDF(x), 1e-7, "x=%v", x)
	}
}

func TestDegenerateInputsAreClamped(t *testing.T) {
	v := PriceAndGreeks(Inputs{Type: models.OptionCall, Spot: 0, Strike: -5, T: 0, Vol: 0})
	assert.False(t, math.IsNaN(v.Price))
	assert.False(t, math.IsNaN(v.Gamma))
	assert.GreaterOrEqual(t, v.Gamma, 0.0)
}

func TestImpliedVolNoSolution(t *testing.T) {
	in := Inputs{Type: models.OptionCall, Spot: 100, Strike: 100, T: 0.5, Rate: 0.03}

	_, err := ImpliedVol(0, in)
	assert.ErrorIs(t, err, apperrors.ErrNoIVSolution)

	_, err = ImpliedVol(-1.5, in)
	assert.ErrorIs(t, err, apperrors.ErrNoIVSolution)
}

func TestImpliedVolClampsOutsideBracket(t *testing.T) {
	in := Inputs{Type: models.OptionCall, Spot: 100, Strike: 100, T: 0.5, Rate: 0.03}

	// Above the price at 500% volatility
	iv, err := ImpliedVol(99.9, in)
	require.NoError(t, err)
	assert.Equal(t, VolHigh, iv)

	// Below the price at 1% volatility (under intrinsic-ish)
	iv, err = ImpliedVol(0.0001, Inputs{Type: models.OptionCall, Spot: 120, Strike: 100, T: 0.5, Rate: 0.03})
	require.NoError(t, err)
	assert.Equal(t, VolLow, iv)
}

func TestImpliedVolRoundTripPut(t *testing.T) {
	in := Inputs{Type: models.OptionPut, Spot: 450, Strike: 440, T: 30.0 / 365, Vol: 0.18, Rate: 0.05, Dividend: 0.013}
	price := Price(in)

	iv, err := ImpliedVol(price, in)
	require.NoError(t, err)
	assert.InDelta(t, 0.18, iv, 1e-4)
}

func optionTypeGen() gopter.Gen {
	return gen.OneConstOf(models.OptionCall, models.OptionPut)
}

// Property: put-call parity holds for every valid input.
func TestProperty_PutCallParity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("C - P = S e^-qT - K e^-rT", prop.ForAll(
		func(s, k, tt, vol, r, q float64) bool {
			base := Inputs{Spot: s, Strike: k, T: tt, Vol: vol, Rate: r, Dividend: q}
			call, put := base, base
			call.Type = models.OptionCall
			put.Type = models.OptionPut

			lhs := Price(call) - Price(put)
			rhs := s*math.Exp(-q*tt) - k*math.Exp(-r*tt)
			return math.Abs(lhs-rhs) < 1e-6
		},
		gen.Float64Range(1, 1000),
		gen.Float64Range(1, 1000),
		gen.Float64Range(0.001, 3),
		gen.Float64Range(0.01, 2),
		gen.Float64Range(-0.02, 0.1),
		gen.Float64Range(0, 0.05),
	))

	properties.TestingRun(t)
}

// Property: gamma is never negative and equal for calls and puts.
func TestProperty_GammaNonNegative(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("gamma >= 0", prop.ForAll(
		func(typ models.OptionType, s, k, tt, vol, r float64) bool {
			v := PriceAndGreeks(Inputs{Type: typ, Spot: s, Strike: k, T: tt, Vol: vol, Rate: r})
			return v.Gamma >= 0 && !math.IsNaN(v.Gamma)
		},
		optionTypeGen(),
		gen.Float64Range(0.01, 5000),
		gen.Float64Range(0.01, 5000),
		gen.Float64Range(0, 5),
		gen.Float64Range(0, 5),
		gen.Float64Range(-0.05, 0.2),
	))

	properties.TestingRun(t)
}

// Property: the solver recovers the volatility that generated a price.
func TestProperty_ImpliedVolRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	properties.Property("IV(price(sigma)) ~ sigma", prop.ForAll(
		func(typ models.OptionType, moneyness, tt, vol, r float64) bool {
			in := Inputs{Type: typ, Spot: 100, Strike: 100 * moneyness, T: tt, Vol: vol, Rate: r}
			iv, err := ImpliedVol(Price(in), in)
			return err == nil && math.Abs(iv-vol) < 1e-4
		},
		optionTypeGen(),
		gen.Float64Range(0.85, 1.15),
		gen.Float64Range(0.25, 2),
		gen.Float64Range(0.1, 1.5),
		gen.Float64Range(0, 0.08),
	))

	properties.TestingRun(t)
}
