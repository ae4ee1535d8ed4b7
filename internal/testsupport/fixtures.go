// Package testsupport provides fixture builders shared by package tests.
package testsupport

import (
	"testing"
	"time"

	"options-signals/internal/models"
)

// Date parses a YYYY-MM-DD date or fails the test.
func Date(t testing.TB, s string) time.Time {
	t.Helper()
	d, err := models.ParseDate(s)
	if err != nil {
		t.Fatalf("bad fixture date %q: %v", s, err)
	}
	return d
}

// ObsOption customises a fixture observation.
type ObsOption func(*models.ContractObservation)

// WithGamma sets the contract gamma.
func WithGamma(g float64) ObsOption {
	return func(o *models.ContractObservation) { o.Gamma = models.Ptr(g) }
}

// WithDelta sets the contract delta.
func WithDelta(d float64) ObsOption {
	return func(o *models.ContractObservation) { o.Delta = models.Ptr(d) }
}

// WithIV sets the contract implied volatility.
func WithIV(iv float64) ObsOption {
	return func(o *models.ContractObservation) { o.IV = models.Ptr(iv) }
}

// WithUnderlying sets the underlying price.
func WithUnderlying(p float64) ObsOption {
	return func(o *models.ContractObservation) { o.UnderlyingPrice = models.Ptr(p) }
}

// WithMid sets the mid quote.
func WithMid(p float64) ObsOption {
	return func(o *models.ContractObservation) { o.Quote.Mid = models.Ptr(p) }
}

// WithBidAsk sets bid and ask quotes.
func WithBidAsk(bid, ask float64) ObsOption {
	return func(o *models.ContractObservation) {
		o.Quote.Bid = models.Ptr(bid)
		o.Quote.Ask = models.Ptr(ask)
	}
}

// Obs builds a contract observation.
func Obs(symbol string, exp, dataDate time.Time, typ models.OptionType, strike float64, oi, volume int64, opts ...ObsOption) models.ContractObservation {
	o := models.ContractObservation{
		Symbol:       symbol,
		Expiration:   exp,
		DataDate:     dataDate,
		Type:         typ,
		Strike:       models.NewStrike(strike),
		OpenInterest: oi,
		Volume:       volume,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Closes builds consecutive weekday closes ending at end, oldest first.
func Closes(symbol string, end time.Time, prices []float64) []models.DailyClose {
	dates := make([]time.Time, 0, len(prices))
	d := end
	for len(dates) < len(prices) {
		if d.Weekday() != time.Saturday && d.Weekday() != time.Sunday {
			dates = append(dates, d)
		}
		d = d.AddDate(0, 0, -1)
	}

	out := make([]models.DailyClose, len(prices))
	for i, p := range prices {
		date := dates[len(prices)-1-i]
		out[i] = models.DailyClose{Symbol: symbol, TradeDate: date, Open: p, High: p, Low: p, Close: p}
	}
	return out
}
