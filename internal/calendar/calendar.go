// Package calendar resolves exchange trading days.
//
// Dates are represented as midnight UTC of the calendar date. Nothing in this
// package reads the wall clock: every function takes the instant it works on.
package calendar

import (
	"fmt"
	"time"
	_ "time/tzdata"
)

const dateLayout = "2006-01-02"

// Calendar describes an exchange's timezone, holidays and closing time.
type Calendar struct {
	Location    *time.Location
	Holidays    map[string]bool
	CloseHour   int
	CloseMinute int
}

// New creates a calendar for the given IANA timezone and YYYY-MM-DD holidays.
func New(timezone string, holidays []string) (*Calendar, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", timezone, err)
	}

	cal := &Calendar{
		Location:  loc,
		Holidays:  make(map[string]bool, len(holidays)),
		CloseHour: 16,
	}
	for _, h := range holidays {
		d, err := time.Parse(dateLayout, h)
		if err != nil {
			return nil, fmt.Errorf("invalid holiday %q: %w", h, err)
		}
		cal.Holidays[d.Format(dateLayout)] = true
	}
	return cal, nil
}

// Default returns a US equity options calendar without holidays.
func Default() *Calendar {
	cal, err := New("America/New_York", nil)
	if err != nil {
		// Fallback to UTC-5 when tzdata is unavailable
		return &Calendar{
			Location:  time.FixedZone("EST", -5*60*60),
			Holidays:  map[string]bool{},
			CloseHour: 16,
		}
	}
	return cal
}

// Date truncates t to its calendar date as midnight UTC.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// IsTradingDay reports whether the date is a weekday that is not a holiday.
func (c *Calendar) IsTradingDay(date time.Time) bool {
	date = Date(date)
	if date.Weekday() == time.Saturday || date.Weekday() == time.Sunday {
		return false
	}
	return !c.Holidays[date.Format(dateLayout)]
}

// TradingDay maps an instant to the exchange trading day it belongs to.
// Instants on weekends or holidays roll back to the previous trading day.
func TradingDay(instant time.Time, cal *Calendar) time.Time {
	local := instant.In(cal.Location)
	date := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
	for !cal.IsTradingDay(date) {
		date = date.AddDate(0, 0, -1)
	}
	return date
}

// AddTradingDays moves n trading days forward (or backward when n < 0).
func (c *Calendar) AddTradingDays(date time.Time, n int) time.Time {
	date = Date(date)
	step := 1
	if n < 0 {
		step = -1
		n = -n
	}
	for n > 0 {
		date = date.AddDate(0, 0, step)
		if c.IsTradingDay(date) {
			n--
		}
	}
	return date
}

// TradingDaysBetween counts trading days in (from, to]. It is zero when to <= from.
func (c *Calendar) TradingDaysBetween(from, to time.Time) int {
	from, to = Date(from), Date(to)
	count := 0
	for d := from.AddDate(0, 0, 1); !d.After(to); d = d.AddDate(0, 0, 1) {
		if c.IsTradingDay(d) {
			count++
		}
	}
	return count
}

// ExpiryInstant returns the closing instant of an expiration date.
func (c *Calendar) ExpiryInstant(date time.Time) time.Time {
	date = Date(date)
	return time.Date(date.Year(), date.Month(), date.Day(), c.CloseHour, c.CloseMinute, 0, 0, c.Location)
}

// CalendarDaysBetween returns whole calendar days from a to b.
func CalendarDaysBetween(a, b time.Time) int {
	return int(Date(b).Sub(Date(a)).Hours() / 24)
}
