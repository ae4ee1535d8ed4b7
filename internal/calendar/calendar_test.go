package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	d, _ := time.Parse(dateLayout, s)
	return d
}

func TestTradingDayRollsBackOverWeekendAndHoliday(t *testing.T) {
	cal, err := New("America/New_York", []string{"2024-07-04"})
	require.NoError(t, err)

	// Saturday afternoon in New York
	sat := time.Date(2024, 7, 6, 15, 0, 0, 0, cal.Location)
	assert.Equal(t, day("2024-07-05"), TradingDay(sat, cal))

	// Independence Day rolls back to the 3rd
	hol := time.Date(2024, 7, 4, 12, 0, 0, 0, cal.Location)
	assert.Equal(t, day("2024-07-03"), TradingDay(hol, cal))
}

func TestTradingDayUsesExchangeTimezone(t *testing.T) {
	cal := Default()
	// 02:00 UTC on Tuesday is still Monday evening in New York
	instant := time.Date(2024, 3, 12, 2, 0, 0, 0, time.UTC)
	assert.Equal(t, day("2024-03-11"), TradingDay(instant, cal))
}

func TestTradingDayArithmetic(t *testing.T) {
	cal, err := New("America/New_York", []string{"2024-01-15"})
	require.NoError(t, err)

	// Fri 12th + 1 trading day skips the weekend and MLK day
	assert.Equal(t, day("2024-01-16"), cal.AddTradingDays(day("2024-01-12"), 1))
	assert.Equal(t, day("2024-01-12"), cal.AddTradingDays(day("2024-01-16"), -1))

	assert.Equal(t, 1, cal.TradingDaysBetween(day("2024-01-12"), day("2024-01-16")))
	assert.Equal(t, 0, cal.TradingDaysBetween(day("2024-01-16"), day("2024-01-12")))
	assert.Equal(t, 4, CalendarDaysBetween(day("2024-01-12"), day("2024-01-16")))
}

func TestNewRejectsBadHoliday(t *testing.T) {
	_, err := New("America/New_York", []string{"07/04/2024"})
	assert.Error(t, err)
}
