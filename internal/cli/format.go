package cli

import (
	"fmt"
	"math"
	"time"

	"github.com/dustin/go-humanize"

	"options-signals/internal/models"
)

// FormatCurrency formats a dollar amount with thousands separators and two
// decimals.
func FormatCurrency(amount float64) string {
	if amount < 0 {
		return "-$" + humanize.FormatFloat("#,###.##", -amount)
	}
	return "$" + humanize.FormatFloat("#,###.##", amount)
}

// FormatPnL formats P&L with sign.
func FormatPnL(pnl float64) string {
	formatted := FormatCurrency(pnl)
	if pnl > 0 {
		return "+" + formatted
	}
	return formatted
}

// FormatCount formats open interest or volume with thousands separators.
func FormatCount(n int64) string {
	return humanize.Comma(n)
}

// FormatNotional formats a large signed notional compactly (K, M, B).
func FormatNotional(v float64) string {
	abs := math.Abs(v)
	sign := ""
	if v < 0 {
		sign = "-"
	}
	switch {
	case abs >= 1e9:
		return sign + humanize.FormatFloat("#,###.##", abs/1e9) + "B"
	case abs >= 1e6:
		return sign + humanize.FormatFloat("#,###.##", abs/1e6) + "M"
	case abs >= 1e3:
		return sign + humanize.FormatFloat("#,###.##", abs/1e3) + "K"
	}
	return sign + humanize.FormatFloat("#,###.##", abs)
}

// FormatPercent formats a percentage with sign.
func FormatPercent(value float64) string {
	sign := ""
	if value > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.2f%%", sign, value)
}

// FormatIV formats a volatility fraction as a percentage.
func FormatIV(iv float64) string {
	return fmt.Sprintf("%.1f%%", iv*100)
}

// FormatPrice formats a price or strike.
func FormatPrice(price float64) string {
	return humanize.FormatFloat("#,###.##", price)
}

// FormatStrike formats a fixed-point strike without trailing zeros.
func FormatStrike(s models.Strike) string {
	return s.String()
}

// FormatOptional formats p with f, or "-" when p is nil.
func FormatOptional(p *float64, f func(float64) string) string {
	if p == nil {
		return "-"
	}
	return f(*p)
}

// FormatDate formats a date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(models.DateLayout)
}

// FormatAge describes how long ago t was, relative to now.
func FormatAge(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

// FormatDuration formats a duration in a human-readable way.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
