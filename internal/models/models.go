// Package models provides domain models for the options signal engines.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the layout used for every date column and date-valued payload field.
const DateLayout = "2006-01-02"

// ContractMultiplier is the number of shares controlled by one listed option contract.
const ContractMultiplier = 100.0

// OptionType represents the right of an option contract.
type OptionType string

const (
	OptionCall OptionType = "call"
	OptionPut  OptionType = "put"
)

// ParseOptionType accepts the common spellings used by data vendors.
func ParseOptionType(s string) (OptionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "call", "c", "ce":
		return OptionCall, nil
	case "put", "p", "pe":
		return OptionPut, nil
	default:
		return "", fmt.Errorf("unknown option type %q", s)
	}
}

// IsCall reports whether the type is a call.
func (t OptionType) IsCall() bool {
	return t == OptionCall
}

// strikeScale is the number of decimal places kept in a Strike.
const strikeScale = 3

// Strike is a strike price stored as a fixed-point integer in thousandths.
// It is safe to use as a map key.
type Strike int64

// NewStrike converts a float price into a Strike, rounding to three decimals.
func NewStrike(v float64) Strike {
	return Strike(decimal.NewFromFloat(v).Shift(strikeScale).Round(0).IntPart())
}

// Decimal returns the strike as a decimal value.
func (s Strike) Decimal() decimal.Decimal {
	return decimal.New(int64(s), -strikeScale)
}

// Float64 returns the strike as a float price.
func (s Strike) Float64() float64 {
	f, _ := s.Decimal().Float64()
	return f
}

func (s Strike) String() string {
	return s.Decimal().String()
}

// MarshalJSON encodes the strike as a JSON number.
func (s Strike) MarshalJSON() ([]byte, error) {
	return []byte(s.Decimal().String()), nil
}

// UnmarshalJSON decodes a JSON number or numeric string.
func (s *Strike) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("invalid strike %s: %w", raw, err)
	}
	*s = Strike(d.Shift(strikeScale).Round(0).IntPart())
	return nil
}

// Quote holds the optional price fields a vendor may provide for a contract.
type Quote struct {
	Bid   *float64 `json:"bid,omitempty"`
	Ask   *float64 `json:"ask,omitempty"`
	Last  *float64 `json:"last,omitempty"`
	Mark  *float64 `json:"mark,omitempty"`
	Mid   *float64 `json:"mid,omitempty"`
	Close *float64 `json:"close,omitempty"`
}

// ContractObservation is one daily snapshot of a listed option contract.
// Identity is (expiration, data date, type, strike).
type ContractObservation struct {
	Symbol          string
	Expiration      time.Time
	DataDate        time.Time
	Type            OptionType
	Strike          Strike
	OpenInterest    int64
	Volume          int64
	IV              *float64
	Delta           *float64
	Gamma           *float64
	Vega            *float64
	UnderlyingPrice *float64
	Quote           Quote
}

// ExpirationKey identifies a contract series.
type ExpirationKey struct {
	ID         int64
	Symbol     string
	Expiration time.Time
}

// StrikeVolume is the total (call+put) volume traded at one strike of an
// expiration on one date.
type StrikeVolume struct {
	Expiration time.Time
	Strike     Strike
	DataDate   time.Time
	Volume     int64
}

// DailyClose represents one daily OHLC bar of the underlying.
type DailyClose struct {
	Symbol    string
	TradeDate time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
}

// Value dereferences an optional float, returning zero for nil.
func Value(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

// Ptr returns a pointer to v.
func Ptr(v float64) *float64 {
	return &v
}

// DateOnly truncates t to midnight UTC of its calendar date.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date as midnight UTC.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.UTC)
}
