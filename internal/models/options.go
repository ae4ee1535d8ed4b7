package models

import "time"

// Side represents the direction of a position leg.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Sign returns +1 for long legs and -1 for short legs.
func (s Side) Sign() float64 {
	if s == SideShort {
		return -1
	}
	return 1
}

// Leg is a single option leg of a user-defined position.
type Leg struct {
	Type       OptionType
	Side       Side
	Quantity   int
	Strike     float64
	Expiry     time.Time
	IV         *float64
	EntryPrice *float64
}

// OptionGreeks represents option Greeks in reporting units:
// theta per calendar day, vega and rho per one percentage point.
type OptionGreeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
	Rho   float64 `json:"rho"`
}

// Add accumulates other scaled by factor.
func (g *OptionGreeks) Add(other OptionGreeks, factor float64) {
	g.Delta += other.Delta * factor
	g.Gamma += other.Gamma * factor
	g.Theta += other.Theta * factor
	g.Vega += other.Vega * factor
	g.Rho += other.Rho * factor
}
