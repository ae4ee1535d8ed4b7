// Package pricing implements Black-Scholes valuation with a continuous
// dividend yield and an implied volatility solver.
package pricing

import (
	"math"

	"options-signals/internal/models"
)

// minInput is the floor applied to spot, strike, time and volatility.
const minInput = 1e-9

// Inputs are the model inputs of a single European option.
// T is in years; Vol, Rate and Dividend are annualised decimals.
type Inputs struct {
	Type     models.OptionType
	Spot     float64
	Strike   float64
	T        float64
	Vol      float64
	Rate     float64
	Dividend float64
}

// Valuation is a theoretical price plus Greeks in reporting units.
type Valuation struct {
	Price float64 `json:"price"`
	models.OptionGreeks
}

// normPDF is the standard normal density.
func normPDF(x float64) float64 {
	return math.Exp(-0.5*x*x) / math.Sqrt(2*math.Pi)
}

// normCDF is the Abramowitz-Stegun 26.2.17 approximation of the standard
// normal distribution (absolute error below 7.5e-8). N(-x) = 1 - N(x) holds
// exactly by construction.
func normCDF(x float64) float64 {
	const (
		p  = 0.2316419
		b1 = 0.319381530
		b2 = -0.356563782
		b3 = 1.781477937
		b4 = -1.821255978
		b5 = 1.330274429
	)
	ax := math.Abs(x)
	t := 1 / (1 + p*ax)
	poly := t * (b1 + t*(b2+t*(b3+t*(b4+t*b5))))
	cdf := 1 - normPDF(ax)*poly
	if x < 0 {
		return 1 - cdf
	}
	return cdf
}

func (in Inputs) clamped() Inputs {
	in.Spot = math.Max(in.Spot, minInput)
	in.Strike = math.Max(in.Strike, minInput)
	in.T = math.Max(in.T, minInput)
	in.Vol = math.Max(in.Vol, minInput)
	return in
}

func d1d2(in Inputs) (float64, float64) {
	volSqrtT := in.Vol * math.Sqrt(in.T)
	d1 := (math.Log(in.Spot/in.Strike) + (in.Rate-in.Dividend+0.5*in.Vol*in.Vol)*in.T) / volSqrtT
	return d1, d1 - volSqrtT
}

// Price returns the theoretical option price.
func Price(in Inputs) float64 {
	in = in.clamped()
	d1, d2 := d1d2(in)
	dfq := math.Exp(-in.Dividend * in.T)
	dfr := math.Exp(-in.Rate * in.T)
	if in.Type.IsCall() {
		return in.Spot*dfq*normCDF(d1) - in.Strike*dfr*normCDF(d2)
	}
	return in.Strike*dfr*normCDF(-d2) - in.Spot*dfq*normCDF(-d1)
}

// PriceAndGreeks returns the price and Greeks. Theta is per calendar day,
// vega and rho per one percentage point.
func PriceAndGreeks(in Inputs) Valuation {
	in = in.clamped()
	d1, d2 := d1d2(in)
	sqrtT := math.Sqrt(in.T)
	dfq := math.Exp(-in.Dividend * in.T)
	dfr := math.Exp(-in.Rate * in.T)
	pdf := normPDF(d1)

	v := Valuation{}
	v.Gamma = dfq * pdf / (in.Spot * in.Vol * sqrtT)
	v.Vega = in.Spot * dfq * pdf * sqrtT / 100

	decay := -in.Spot * dfq * pdf * in.Vol / (2 * sqrtT)
	if in.Type.IsCall() {
		v.Price = in.Spot*dfq*normCDF(d1) - in.Strike*dfr*normCDF(d2)
		v.Delta = dfq * normCDF(d1)
		v.Theta = (decay - in.Rate*in.Strike*dfr*normCDF(d2) + in.Dividend*in.Spot*dfq*normCDF(d1)) / 365
		v.Rho = in.Strike * in.T * dfr * normCDF(d2) / 100
	} else {
		v.Price = in.Strike*dfr*normCDF(-d2) - in.Spot*dfq*normCDF(-d1)
		v.Delta = -dfq * normCDF(-d1)
		v.Theta = (decay + in.Rate*in.Strike*dfr*normCDF(-d2) - in.Dividend*in.Spot*dfq*normCDF(-d1)) / 365
		v.Rho = -in.Strike * in.T * dfr * normCDF(-d2) / 100
	}
	return v
}
