package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"options-signals/internal/analysis/blindspot"
	apperrors "options-signals/internal/errors"
)

func TestLoadCreatesTemplate(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.FileExists(t, ConfigPath(dir))

	assert.Equal(t, filepath.Join(dir, "signals.db"), cfg.Store.Path)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, 15*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 8, cfg.Pipeline.Workers)
	assert.Equal(t, 30, cfg.Unusual.LookbackDays)
	assert.Equal(t, 0.05, cfg.Unusual.TrimFraction)
	assert.Equal(t, blindspot.ModeNet, cfg.BlindSpot.Mode)
	assert.Equal(t, 0.005, cfg.BlindSpot.MergeGapPct)
	assert.Equal(t, 0.045, cfg.Pricing.Rate)

	tfs, err := cfg.GEXTimeframes()
	require.NoError(t, err)
	assert.Len(t, tfs, 6)

	// the written template loads back with the same values
	again, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, cfg.Unusual, again.Unusual)
	assert.Equal(t, cfg.Pipeline, again.Pipeline)
	assert.Equal(t, cfg.Cache, again.Cache)
	assert.Equal(t, cfg.Store, again.Store)
}

func TestLoadReadsFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(ConfigPath(dir), []byte(`
[pipeline]
workers = 4
timeframes = ["30d"]

[blindspot]
mode = "gross"
`), 0644))
	t.Setenv("SIGNALS_WORKERS", "16")
	t.Setenv("SIGNALS_DB_PATH", "/tmp/other.db")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Pipeline.Workers)
	assert.Equal(t, []string{"30d"}, cfg.Pipeline.Timeframes)
	assert.Equal(t, blindspot.ModeGross, cfg.BlindSpot.Mode)
	assert.Equal(t, "/tmp/other.db", cfg.Store.Path)
	assert.Equal(t, 20, cfg.Volatility.RVWindow)
}

func TestValidateRejectsOutOfRange(t *testing.T) {
	cfg := Default(t.TempDir())
	require.NoError(t, cfg.Validate())

	cfg.Pipeline.Workers = 65
	cfg.Pipeline.Timeframes = []string{"3d"}
	cfg.Cache.Backend = "memcached"
	cfg.BlindSpot.Mode = "sideways"

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrConfigInvalid)
	assert.Contains(t, err.Error(), "pipeline.workers failed max")
	assert.Contains(t, err.Error(), "cache.backend failed oneof")
	assert.Contains(t, err.Error(), "blindspot.mode failed oneof")
	assert.Contains(t, err.Error(), `unknown timeframe "3d"`)
}

func TestValidateRequiresRedisAddr(t *testing.T) {
	cfg := Default(t.TempDir())
	cfg.Cache.Backend = "redis"
	cfg.Cache.RedisAddr = ""
	assert.ErrorIs(t, cfg.Validate(), apperrors.ErrConfigInvalid)
}
