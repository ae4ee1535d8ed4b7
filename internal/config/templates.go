package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Options Signals Configuration

[store]
# SQLite database file (default: signals.db next to this file)
# path = "/var/lib/options-signals/signals.db"

[cache]
# Cache backend: "memory" or "redis"
backend = "memory"
redis_addr = "localhost:6379"
redis_password = ""
redis_db = 0
prefix = "signals"
# Lifetime of cached GEX lookups
ttl = "15m"

[pipeline]
# Concurrent symbols per batch (1-64)
workers = 8
# GEX lookahead windows
timeframes = ["7d", "14d", "30d", "60d", "90d", "all"]

[calendar]
timezone = "America/New_York"
# Exchange holidays as YYYY-MM-DD
holidays = []

[pricing]
risk_free_rate = 0.045
dividend_yield = 0.0
# Used when a position leg has neither IV nor entry price
default_iv = 0.30

[unusual]
# Calendar days of volume history per strike
lookback_days = 30
min_history = 5
vol_min = 50
z_min = 3.0
vol_oi_min = 0.5
# Fraction trimmed from each tail of the history
winsor_pct = 0.05

[expiry]
# Expirations within this many trading days are scored
max_trading_days = 3
band_pct = 0.10
max_clusters = 6

[blindspot]
# "net" or "gross" gamma notional
mode = "net"
band_pct = 0.18
oi_percentile = 30.0
smooth_window = 5
threshold_percentile = 25.0
min_strikes = 3
min_strength = 0.25

[seasonality]
years = 15
window_days = 2
min_rows = 120
min_baseline = 60

[volatility]
rv_window = 20
vrp_history = 252
vrp_min_history = 30
# Target days for the one-month IV
target_days = 21

[logging]
# trace, debug, info, warn, error
level = "info"
# Rotating log file; empty logs to the console only
file = ""
`

func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return nil
}
