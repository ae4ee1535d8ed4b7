// Package config provides configuration management for the signals service.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"options-signals/internal/analysis/blindspot"
	"options-signals/internal/analysis/expiry"
	"options-signals/internal/analysis/gex"
	"options-signals/internal/analysis/position"
	"options-signals/internal/analysis/seasonality"
	"options-signals/internal/analysis/unusual"
	"options-signals/internal/analysis/volatility"
	"options-signals/internal/calendar"
	apperrors "options-signals/internal/errors"
)

// Config holds all application configuration.
type Config struct {
	Store       StoreConfig        `mapstructure:"store"`
	Cache       CacheConfig        `mapstructure:"cache"`
	Pipeline    PipelineConfig     `mapstructure:"pipeline"`
	Calendar    CalendarConfig     `mapstructure:"calendar"`
	Pricing     position.Defaults  `mapstructure:"pricing"`
	Unusual     unusual.Config     `mapstructure:"unusual"`
	Expiry      expiry.Config      `mapstructure:"expiry"`
	BlindSpot   blindspot.Config   `mapstructure:"blindspot"`
	Seasonality seasonality.Config `mapstructure:"seasonality"`
	Volatility  volatility.Config  `mapstructure:"volatility"`
	Logging     LoggingConfig      `mapstructure:"logging"`
}

// StoreConfig holds persistence configuration.
type StoreConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// CacheConfig holds read-side cache configuration.
type CacheConfig struct {
	Backend       string        `mapstructure:"backend" validate:"oneof=memory redis"`
	RedisAddr     string        `mapstructure:"redis_addr" validate:"required_if=Backend redis"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db" validate:"gte=0"`
	Prefix        string        `mapstructure:"prefix"`
	TTL           time.Duration `mapstructure:"ttl" validate:"gt=0"`
}

// PipelineConfig holds batch run configuration.
type PipelineConfig struct {
	Workers    int      `mapstructure:"workers" validate:"min=1,max=64"`
	Timeframes []string `mapstructure:"timeframes" validate:"min=1"`
}

// CalendarConfig holds the exchange calendar.
type CalendarConfig struct {
	Timezone string   `mapstructure:"timezone" validate:"required"`
	Holidays []string `mapstructure:"holidays" validate:"dive,datetime=2006-01-02"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `mapstructure:"level" validate:"oneof=trace debug info warn error"`
	File  string `mapstructure:"file"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/options-signals"
	}
	return filepath.Join(home, ".config", "options-signals")
}

// ConfigPath returns the path of the config file in configDir.
func ConfigPath(configDir string) string {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	return filepath.Join(configDir, "config.toml")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. A missing
// config file is created from the template and defaults apply.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v, configDir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config.toml: %w", err)
		}
		if err := createTemplateConfig(configDir); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration used when no file overrides anything.
func Default(configDir string) *Config {
	v := viper.New()
	setDefaults(v, configDir)
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		panic(fmt.Sprintf("config defaults do not decode: %v", err))
	}
	return cfg
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("store.path", filepath.Join(configDir, "signals.db"))

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.prefix", "signals")
	v.SetDefault("cache.ttl", "15m")

	v.SetDefault("pipeline.workers", 8)
	names := make([]string, 0, len(gex.DefaultTimeframes))
	for _, tf := range gex.DefaultTimeframes {
		names = append(names, tf.Name)
	}
	v.SetDefault("pipeline.timeframes", names)

	v.SetDefault("calendar.timezone", "America/New_York")
	v.SetDefault("calendar.holidays", []string{})

	p := position.DefaultDefaults()
	v.SetDefault("pricing.risk_free_rate", p.Rate)
	v.SetDefault("pricing.dividend_yield", p.Dividend)
	v.SetDefault("pricing.default_iv", p.DefaultIV)

	u := unusual.DefaultConfig()
	v.SetDefault("unusual.lookback_days", u.LookbackDays)
	v.SetDefault("unusual.min_history", u.MinHistory)
	v.SetDefault("unusual.winsor_pct", u.TrimFraction)
	v.SetDefault("unusual.std_floor", u.StdFloor)
	v.SetDefault("unusual.vol_min", u.VolMin)
	v.SetDefault("unusual.z_min", u.ZMin)
	v.SetDefault("unusual.vol_oi_min", u.VolOIMin)

	e := expiry.DefaultConfig()
	v.SetDefault("expiry.max_trading_days", e.WithinTradingDays)
	v.SetDefault("expiry.band_pct", e.BandPct)
	v.SetDefault("expiry.proximity_scale", e.ProximityScale)
	v.SetDefault("expiry.max_clusters", e.MaxClusters)

	b := blindspot.DefaultConfig()
	v.SetDefault("blindspot.mode", string(b.Mode))
	v.SetDefault("blindspot.band_pct", b.BandPct)
	v.SetDefault("blindspot.oi_percentile", b.OIPercentile)
	v.SetDefault("blindspot.smooth_window", b.SmoothWindow)
	v.SetDefault("blindspot.threshold_percentile", b.ThresholdPercentile)
	v.SetDefault("blindspot.min_strikes", b.MinWidth)
	v.SetDefault("blindspot.min_strength", b.MinStrength)
	v.SetDefault("blindspot.merge_gap_pct", b.MergeGapPct)

	s := seasonality.DefaultConfig()
	v.SetDefault("seasonality.min_rows", s.MinCloses)
	v.SetDefault("seasonality.years", s.Years)
	v.SetDefault("seasonality.window_days", s.WindowDays)
	v.SetDefault("seasonality.forward_days", s.ForwardDays)
	v.SetDefault("seasonality.min_baseline", s.MinBaseline)
	v.SetDefault("seasonality.z_clamp", s.ZClamp)

	vol := volatility.DefaultConfig()
	v.SetDefault("volatility.target_days", vol.IV1MDays)
	v.SetDefault("volatility.rv_window", vol.RVWindow)
	v.SetDefault("volatility.annualization_days", vol.AnnualizationDays)
	v.SetDefault("volatility.vrp_history", vol.VRPLookback)
	v.SetDefault("volatility.vrp_min_history", vol.VRPMinHistory)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "")
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SIGNALS_DB_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("SIGNALS_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
		cfg.Cache.Backend = "redis"
	}
	if v := os.Getenv("SIGNALS_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.Workers = n
		}
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// Validate checks every section, reporting all offending keys in one error
// that wraps ErrConfigInvalid.
func (c *Config) Validate() error {
	var problems []string

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return apperrors.Wrap(apperrors.ErrConfigInvalid, err.Error())
		}
		for _, fe := range verrs {
			problems = append(problems, fmt.Sprintf("%s failed %s", configKey(fe.Namespace()), fe.Tag()))
		}
	}

	if _, err := c.GEXTimeframes(); err != nil {
		problems = append(problems, err.Error())
	}
	if _, err := calendar.New(c.Calendar.Timezone, c.Calendar.Holidays); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", apperrors.ErrConfigInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// configKey drops the root type from a validator namespace, leaving the
// config file key such as pipeline.workers.
func configKey(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

// GEXTimeframes resolves the configured timeframe names.
func (c *Config) GEXTimeframes() ([]gex.Timeframe, error) {
	out := make([]gex.Timeframe, 0, len(c.Pipeline.Timeframes))
	for _, name := range c.Pipeline.Timeframes {
		tf, err := gex.ParseTimeframe(name)
		if err != nil {
			return nil, err
		}
		out = append(out, tf)
	}
	return out, nil
}

// ExchangeCalendar builds the configured calendar.
func (c *Config) ExchangeCalendar() (*calendar.Calendar, error) {
	return calendar.New(c.Calendar.Timezone, c.Calendar.Holidays)
}
