// Package position prices multi-leg option positions: aggregate Greeks,
// an expiry-agnostic payoff curve and a spot/IV/time scenario grid.
package position

import (
	"errors"
	"math"
	"time"

	"options-signals/internal/analysis/pricing"
	"options-signals/internal/calendar"
	apperrors "options-signals/internal/errors"
	"options-signals/internal/models"
)

const (
	minIV         = 0.01
	payoffLow     = 0.6
	payoffHigh    = 1.4
	payoffStep    = 0.01
	daysPerYear   = 365.0
	secondsPerDay = 24 * 60 * 60
)

// IV sources reported per leg.
const (
	IVFromLeg     = "leg"
	IVFromPrice   = "implied"
	IVFromDefault = "default"
)

// Defaults fill request fields the caller leaves out.
type Defaults struct {
	Rate      float64 `mapstructure:"risk_free_rate" validate:"gte=-0.1,lte=1"`
	Dividend  float64 `mapstructure:"dividend_yield" validate:"gte=0,lte=1"`
	DefaultIV float64 `mapstructure:"default_iv" validate:"gt=0.01,lte=5"`
}

// DefaultDefaults returns the standard pricing defaults.
func DefaultDefaults() Defaults {
	return Defaults{Rate: 0.045, Dividend: 0, DefaultIV: 0.30}
}

// Now is the aggregate position value and Greeks at the current spot.
type Now struct {
	Price float64 `json:"price"`
	models.OptionGreeks
}

// PayoffPoint is the position P&L at one hypothetical spot.
type PayoffPoint struct {
	Spot float64 `json:"S"`
	PnL  float64 `json:"pnl"`
}

// Scenario is one cell of the scenario grid.
type Scenario struct {
	DaysForward int                 `json:"d_days"`
	SpotPct     float64             `json:"d_spot"`
	IVPts       float64             `json:"d_iv"`
	PnL         float64             `json:"pnl"`
	Greeks      models.OptionGreeks `json:"greeks"`
}

// LegResult reports how a leg was priced.
type LegResult struct {
	Type       models.OptionType `json:"type"`
	Side       models.Side       `json:"side"`
	Qty        int               `json:"qty"`
	Strike     float64           `json:"strike"`
	Expiry     string            `json:"expiry"`
	T          float64           `json:"t"`
	IV         float64           `json:"iv"`
	IVSource   string            `json:"iv_source"`
	EntryPrice float64           `json:"entry_price"`
	Theo       pricing.Valuation `json:"theo"`
}

// Result is the analyzer response.
type Result struct {
	Symbol    string        `json:"symbol"`
	Spot      float64       `json:"spot"`
	Now       Now           `json:"now"`
	Payoff    []PayoffPoint `json:"payoff"`
	Scenarios []Scenario    `json:"scenarios"`
	Legs      []LegResult   `json:"legs"`
}

// Analyzer evaluates position requests. It holds no per-request state.
type Analyzer struct {
	defaults Defaults
	cal      *calendar.Calendar
	now      func() time.Time
}

// NewAnalyzer creates an analyzer. now defaults to time.Now.
func NewAnalyzer(defaults Defaults, cal *calendar.Calendar, now func() time.Time) *Analyzer {
	if cal == nil {
		cal = calendar.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &Analyzer{defaults: defaults, cal: cal, now: now}
}

type pricedLeg struct {
	leg   models.Leg
	t     float64
	iv    float64
	src   string
	entry float64
	scale float64
}

// Analyze validates the request and evaluates it. Validation failures are
// returned as apperrors.ValidationErrors before any pricing happens.
func (a *Analyzer) Analyze(req *Request) (*Result, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	legs, err := req.ModelLegs()
	if err != nil {
		return nil, err
	}

	rate := a.defaults.Rate
	if req.Rate != nil {
		rate = *req.Rate
	}
	div := a.defaults.Dividend
	if req.Dividend != nil {
		div = *req.Dividend
	}
	defaultIV := a.defaults.DefaultIV
	if req.DefaultIV != nil {
		defaultIV = *req.DefaultIV
	}
	spot := req.Underlying.Price
	now := a.now()

	priced := make([]pricedLeg, len(legs))
	for i, leg := range legs {
		priced[i] = a.priceLeg(leg, spot, rate, div, defaultIV, now)
	}

	res := &Result{Symbol: req.Underlying.Symbol, Spot: spot}
	for _, p := range priced {
		v := pricing.PriceAndGreeks(p.inputs(spot, p.t, p.iv, rate, div))
		res.Now.Price += v.Price * p.scale
		res.Now.OptionGreeks.Add(v.OptionGreeks, p.scale)
		res.Legs = append(res.Legs, LegResult{
			Type:       p.leg.Type,
			Side:       p.leg.Side,
			Qty:        p.leg.Quantity,
			Strike:     p.leg.Strike,
			Expiry:     p.leg.Expiry.Format(models.DateLayout),
			T:          p.t,
			IV:         p.iv,
			IVSource:   p.src,
			EntryPrice: p.entry,
			Theo:       v,
		})
	}

	res.Payoff = payoff(priced, spot, rate, div)

	grid := DefaultScenarios()
	if req.Scenarios != nil {
		grid = *req.Scenarios
	}
	res.Scenarios = scenarios(priced, grid, spot, rate, div)
	return res, nil
}

func (a *Analyzer) priceLeg(leg models.Leg, spot, rate, div, defaultIV float64, now time.Time) pricedLeg {
	remaining := a.cal.ExpiryInstant(leg.Expiry).Sub(now).Seconds()
	t := math.Max(remaining/secondsPerDay/daysPerYear, 0)

	p := pricedLeg{
		leg:   leg,
		t:     t,
		scale: leg.Side.Sign() * float64(leg.Quantity) * models.ContractMultiplier,
	}

	switch {
	case leg.IV != nil:
		p.iv, p.src = *leg.IV, IVFromLeg
	case leg.EntryPrice != nil:
		iv, err := pricing.ImpliedVol(*leg.EntryPrice, p.inputs(spot, t, 0, rate, div))
		if errors.Is(err, apperrors.ErrNoIVSolution) {
			p.iv, p.src = defaultIV, IVFromDefault
		} else {
			p.iv, p.src = iv, IVFromPrice
		}
	default:
		p.iv, p.src = defaultIV, IVFromDefault
	}
	p.iv = math.Max(p.iv, minIV)

	if leg.EntryPrice != nil {
		p.entry = *leg.EntryPrice
	} else {
		p.entry = pricing.Price(p.inputs(spot, t, p.iv, rate, div))
	}
	return p
}

func (p pricedLeg) inputs(spot, t, iv, rate, div float64) pricing.Inputs {
	return pricing.Inputs{
		Type:     p.leg.Type,
		Spot:     spot,
		Strike:   p.leg.Strike,
		T:        t,
		Vol:      iv,
		Rate:     rate,
		Dividend: div,
	}
}

// payoff values every leg at its current time to expiry across
// [0.6 S, 1.4 S] in 1% steps.
func payoff(legs []pricedLeg, spot, rate, div float64) []PayoffPoint {
	steps := int(math.Round((payoffHigh - payoffLow) / payoffStep))
	out := make([]PayoffPoint, 0, steps+1)
	for i := 0; i <= steps; i++ {
		s := spot * (payoffLow + float64(i)*payoffStep)
		var pnl float64
		for _, p := range legs {
			pnl += (pricing.Price(p.inputs(s, p.t, p.iv, rate, div)) - p.entry) * p.scale
		}
		out = append(out, PayoffPoint{Spot: s, PnL: pnl})
	}
	return out
}

func scenarios(legs []pricedLeg, grid Scenarios, spot, rate, div float64) []Scenario {
	days, spots, ivs := grid.Days, grid.SpotPct, grid.IVPts
	if len(days) == 0 {
		days = []int{0}
	}
	if len(spots) == 0 {
		spots = []float64{0}
	}
	if len(ivs) == 0 {
		ivs = []float64{0}
	}

	out := make([]Scenario, 0, len(days)*len(spots)*len(ivs))
	for _, d := range days {
		for _, sp := range spots {
			for _, ivPts := range ivs {
				sc := Scenario{DaysForward: d, SpotPct: sp, IVPts: ivPts}
				s := spot * (1 + sp/100)
				for _, p := range legs {
					t := math.Max(p.t-float64(d)/daysPerYear, 0)
					iv := math.Max(p.iv+ivPts/100, minIV)
					v := pricing.PriceAndGreeks(p.inputs(s, t, iv, rate, div))
					sc.PnL += (v.Price - p.entry) * p.scale
					sc.Greeks.Add(v.OptionGreeks, p.scale)
				}
				out = append(out, sc)
			}
		}
	}
	return out
}
