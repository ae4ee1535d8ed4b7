package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "options-signals/internal/errors"
	"options-signals/internal/models"
	"options-signals/internal/store"
	ts "options-signals/internal/testsupport"
)

// panickyStore panics when asked for the chain of BOOM.
type panickyStore struct {
	*store.SQLiteStore
}

func (p panickyStore) LatestChain(ctx context.Context, symbol string, asOf time.Time) ([]models.ContractObservation, error) {
	if symbol == "BOOM" {
		panic("corrupt row")
	}
	return p.SQLiteStore.LatestChain(ctx, symbol, asOf)
}

func seedChain(t *testing.T, st store.DataStore, symbol string, dataDate time.Time, oiScale int64) {
	t.Helper()
	var rows []models.ContractObservation
	for _, exp := range []time.Time{ts.Date(t, "2024-03-15"), ts.Date(t, "2024-04-12")} {
		for k := 90.0; k <= 110; k += 5 {
			rows = append(rows,
				ts.Obs(symbol, exp, dataDate, models.OptionCall, k, 100*oiScale, 40,
					ts.WithGamma(0.02), ts.WithDelta(0.5), ts.WithIV(0.2), ts.WithUnderlying(100), ts.WithMid(2)),
				ts.Obs(symbol, exp, dataDate, models.OptionPut, k, 80*oiScale, 30,
					ts.WithGamma(0.02), ts.WithDelta(-0.5), ts.WithIV(0.22), ts.WithUnderlying(100), ts.WithMid(2)),
			)
		}
	}
	require.NoError(t, st.UpsertObservations(context.Background(), symbol, rows))
}

func newRunnerFixture(t *testing.T) (*store.SQLiteStore, *Runner, *Metrics) {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "signals.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	metrics := NewMetrics(prometheus.NewRegistry())
	cfg := DefaultConfig()
	cfg.Workers = 2
	return st, NewRunner(panickyStore{st}, cfg, WithMetrics(metrics)), metrics
}

func TestRunBatchClassifiesSymbols(t *testing.T) {
	ctx := context.Background()
	st, runner, metrics := newRunnerFixture(t)

	d := ts.Date(t, "2024-03-08")
	seedChain(t, st, "SPY", d.AddDate(0, 0, -1), 1)
	seedChain(t, st, "SPY", d, 2)

	report, err := runner.RunBatch(ctx, []string{"SPY", "EMPTY", "BOOM"}, d)
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, []string{"SPY"}, report.Computed)
	assert.Equal(t, map[string]string{"EMPTY": apperrors.ReasonNoData}, report.Skipped)
	require.Contains(t, report.Failed, "BOOM")

	var computeErr *apperrors.ComputeError
	require.True(t, errors.As(report.Failed["BOOM"], &computeErr))
	assert.Equal(t, "BOOM", computeErr.Symbol)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Symbols.WithLabelValues(StatusComputed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Symbols.WithLabelValues(StatusSkipped)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Symbols.WithLabelValues(StatusFailed)))
}

func TestProcessSymbolPersistsResults(t *testing.T) {
	ctx := context.Background()
	st, runner, _ := newRunnerFixture(t)

	d := ts.Date(t, "2024-03-08")
	seedChain(t, st, "SPY", d.AddDate(0, 0, -1), 1)
	seedChain(t, st, "SPY", d, 2)

	asOf := ts.Date(t, "2024-03-11")
	results, err := runner.ProcessSymbol(ctx, "SPY", asOf)
	require.NoError(t, err)
	assert.Equal(t, d, results.DataDate)
	assert.Len(t, results.GammaExposure, 6)
	assert.Len(t, results.DeltaExposure, 2)

	all, err := st.GammaExposure(ctx, "SPY", "all", d)
	require.NoError(t, err)
	assert.Equal(t, 3, all.DataAgeDays)
	// open interest doubled on every contract
	assert.Equal(t, int64(1800), all.TotalOIDelta)

	season, err := st.Seasonality(ctx, "SPY", d)
	require.NoError(t, err)
	assert.Equal(t, apperrors.ReasonInsufficientHistory, season.Reason)

	vm, err := st.VolMetrics(ctx, "SPY", d)
	require.NoError(t, err)
	require.NotEmpty(t, vm.TermStructure)
	assert.Nil(t, vm.RV20)

	// a rerun replaces rather than appends
	_, err = runner.ProcessSymbol(ctx, "SPY", asOf)
	require.NoError(t, err)
	dex, err := st.DeltaExposure(ctx, "SPY", d)
	require.NoError(t, err)
	assert.Len(t, dex, 2)
}

func TestProcessSymbolIgnoresExpiredSeries(t *testing.T) {
	ctx := context.Background()
	st, runner, _ := newRunnerFixture(t)

	expired := ts.Date(t, "2024-01-19")
	require.NoError(t, st.UpsertObservations(ctx, "SPY", []models.ContractObservation{
		ts.Obs("SPY", expired, ts.Date(t, "2024-01-18"), models.OptionCall, 100, 900, 10,
			ts.WithGamma(0.02), ts.WithDelta(0.5), ts.WithIV(0.2), ts.WithUnderlying(100)),
	}))
	d := ts.Date(t, "2024-03-08")
	seedChain(t, st, "SPY", d, 1)

	results, err := runner.ProcessSymbol(ctx, "SPY", d)
	require.NoError(t, err)
	require.Len(t, results.DeltaExposure, 2)
	for _, dex := range results.DeltaExposure {
		assert.False(t, dex.Expiration.Equal(expired))
	}

	stored, err := st.DeltaExposure(ctx, "SPY", d)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestProcessSymbolDiffsAgainstPreviousSession(t *testing.T) {
	ctx := context.Background()
	st, runner, _ := newRunnerFixture(t)

	friday, sunday, monday := ts.Date(t, "2024-03-08"), ts.Date(t, "2024-03-10"), ts.Date(t, "2024-03-11")
	seedChain(t, st, "SPY", friday, 1)
	seedChain(t, st, "SPY", sunday, 5)
	seedChain(t, st, "SPY", monday, 2)

	_, err := runner.ProcessSymbol(ctx, "SPY", monday)
	require.NoError(t, err)

	all, err := st.GammaExposure(ctx, "SPY", "all", monday)
	require.NoError(t, err)
	// the weekend snapshot is not a session
	assert.Equal(t, int64(1800), all.TotalOIDelta)
}

func TestRunBatchDefaultsToStoredSymbols(t *testing.T) {
	st, runner, _ := newRunnerFixture(t)
	d := ts.Date(t, "2024-03-08")
	seedChain(t, st, "QQQ", d, 1)
	seedChain(t, st, "SPY", d, 1)

	report, err := runner.RunBatch(context.Background(), nil, d)
	require.NoError(t, err)
	assert.Equal(t, []string{"QQQ", "SPY"}, report.Computed)
	assert.Empty(t, report.Failed)
}
