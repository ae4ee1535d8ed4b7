package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"options-signals/internal/analysis/blindspot"
	"options-signals/internal/analysis/chain"
	"options-signals/internal/analysis/expiry"
	"options-signals/internal/analysis/gex"
	"options-signals/internal/analysis/seasonality"
	"options-signals/internal/analysis/unusual"
	"options-signals/internal/analysis/volatility"
	"options-signals/internal/calendar"
	apperrors "options-signals/internal/errors"
	"options-signals/internal/logging"
	"options-signals/internal/models"
	"options-signals/internal/store"
)

// Config selects the engines' parameters and the batch parallelism.
type Config struct {
	Workers     int
	Timeframes  []gex.Timeframe
	Unusual     unusual.Config
	Expiry      expiry.Config
	BlindSpot   blindspot.Config
	Volatility  volatility.Config
	Seasonality seasonality.Config
	Calendar    *calendar.Calendar
}

// DefaultConfig returns the standard engine parameters with 8 workers.
func DefaultConfig() Config {
	return Config{
		Workers:     8,
		Timeframes:  gex.DefaultTimeframes,
		Unusual:     unusual.DefaultConfig(),
		Expiry:      expiry.DefaultConfig(),
		BlindSpot:   blindspot.DefaultConfig(),
		Volatility:  volatility.DefaultConfig(),
		Seasonality: seasonality.DefaultConfig(),
		Calendar:    calendar.Default(),
	}
}

// BatchReport summarises a batch run. Skipped maps a symbol to its reason
// code; Failed maps a symbol to its error.
type BatchReport struct {
	RunID    string
	AsOf     time.Time
	Computed []string
	Skipped  map[string]string
	Failed   map[string]error
	Duration time.Duration
}

func newBatchReport(runID string, asOf time.Time) *BatchReport {
	return &BatchReport{
		RunID:   runID,
		AsOf:    asOf,
		Skipped: make(map[string]string),
		Failed:  make(map[string]error),
	}
}

// MarshalJSON renders errors as messages.
func (b *BatchReport) MarshalJSON() ([]byte, error) {
	failed := make(map[string]string, len(b.Failed))
	for symbol, err := range b.Failed {
		failed[symbol] = err.Error()
	}
	return json.Marshal(struct {
		RunID    string            `json:"run_id"`
		AsOf     string            `json:"as_of"`
		Computed []string          `json:"computed"`
		Skipped  map[string]string `json:"skipped"`
		Failed   map[string]string `json:"failed"`
		Duration string            `json:"duration"`
	}{b.RunID, b.AsOf.Format(models.DateLayout), b.Computed, b.Skipped, failed, b.Duration.String()})
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the runner's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// WithMetrics sets the runner's metrics. The default is an unregistered set.
func WithMetrics(m *Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithSyncManager records the results sync time after each batch.
func WithSyncManager(sm *store.SyncManager) Option {
	return func(r *Runner) { r.sync = sm }
}

// Runner computes and persists every signal for a set of symbols.
type Runner struct {
	store   store.DataStore
	cfg     Config
	metrics *Metrics
	logger  zerolog.Logger
	sync    *store.SyncManager

	gex         *gex.Engine
	unusual     *unusual.Detector
	expiry      *expiry.Engine
	blindSpot   *blindspot.Detector
	volatility  *volatility.Engine
	seasonality *seasonality.Engine
}

// NewRunner creates a runner over st.
func NewRunner(st store.DataStore, cfg Config, opts ...Option) *Runner {
	if cfg.Calendar == nil {
		cfg.Calendar = calendar.Default()
	}
	if len(cfg.Timeframes) == 0 {
		cfg.Timeframes = gex.DefaultTimeframes
	}

	r := &Runner{
		store:       st,
		cfg:         cfg,
		logger:      zerolog.Nop(),
		gex:         gex.NewEngine(cfg.Timeframes),
		unusual:     unusual.NewDetector(cfg.Unusual),
		expiry:      expiry.NewEngine(cfg.Expiry, cfg.Calendar),
		blindSpot:   blindspot.NewDetector(cfg.BlindSpot),
		volatility:  volatility.NewEngine(cfg.Volatility),
		seasonality: seasonality.NewEngine(cfg.Seasonality),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = NewMetrics(nil)
	}
	return r
}

// RunBatch processes symbols in parallel. An empty list processes every
// stored symbol. One symbol's failure never stops the others.
func (r *Runner) RunBatch(ctx context.Context, symbols []string, asOf time.Time) (*BatchReport, error) {
	start := time.Now()
	runID := uuid.NewString()
	logger := logging.WithRunID(r.logger, runID)
	asOf = models.DateOnly(asOf)

	if len(symbols) == 0 {
		all, err := r.store.Symbols(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list symbols: %w", err)
		}
		symbols = all
	}

	report := newBatchReport(runID, asOf)
	pool := NewPool(r.cfg.Workers)
	pool.SetPanicHandler(func(recovered any) {
		logger.Error().Interface("panic", recovered).Msg("Worker task panicked")
	})
	pool.Start()

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, symbol := range symbols {
		wg.Add(1)
		err := pool.Submit(ctx, func() {
			defer wg.Done()
			_, err := r.safeProcess(logging.WithLogger(ctx, logger), symbol, asOf)
			mu.Lock()
			r.record(logger, report, symbol, err)
			mu.Unlock()
		})
		if err != nil {
			wg.Done()
			mu.Lock()
			r.record(logger, report, symbol, err)
			mu.Unlock()
		}
	}
	wg.Wait()
	pool.Stop()

	sort.Strings(report.Computed)
	report.Duration = time.Since(start)
	logging.LogBatch(logger, len(report.Computed), len(report.Skipped), len(report.Failed), report.Duration)

	if r.sync != nil && len(report.Computed) > 0 {
		if err := r.sync.MarkSynced(store.SyncTypeResults); err != nil {
			logger.Warn().Err(err).Msg("Failed to record results sync")
		}
	}
	return report, ctx.Err()
}

func (r *Runner) record(logger zerolog.Logger, report *BatchReport, symbol string, err error) {
	if err == nil {
		report.Computed = append(report.Computed, symbol)
		r.metrics.Symbols.WithLabelValues(StatusComputed).Inc()
		return
	}
	if reason, ok := apperrors.SkipReason(err); ok {
		report.Skipped[symbol] = reason
		r.metrics.Symbols.WithLabelValues(StatusSkipped).Inc()
		logging.LogSymbolSkipped(logger, symbol, "chain", reason)
		return
	}
	report.Failed[symbol] = err
	r.metrics.Symbols.WithLabelValues(StatusFailed).Inc()
	logger.Error().Err(err).Str("symbol", symbol).Msg("Symbol failed")
}

// safeProcess runs ProcessSymbol and turns a panic into a ComputeError.
func (r *Runner) safeProcess(ctx context.Context, symbol string, asOf time.Time) (results *models.SymbolResults, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			results = nil
			err = apperrors.NewComputeError("pipeline", symbol, fmt.Errorf("panic: %v", rec))
		}
	}()
	return r.ProcessSymbol(ctx, symbol, asOf)
}

// ProcessSymbol computes every signal for symbol from the chain as of asOf
// and replaces the stored results of the chain's data date. A symbol without
// observations fails with an error wrapping ErrMissingData.
func (r *Runner) ProcessSymbol(ctx context.Context, symbol string, asOf time.Time) (*models.SymbolResults, error) {
	start := time.Now()
	logger := logging.WithSymbol(r.loggerFrom(ctx), symbol)

	current, err := r.loadChain(ctx, symbol, asOf)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, apperrors.NewDataError("chain", symbol, "no observations", apperrors.ErrMissingData)
	}
	dataDate := current.DataDate

	results := &models.SymbolResults{Symbol: symbol, DataDate: dataDate}

	if err := r.computeExposure(ctx, results, current, asOf); err != nil {
		return nil, err
	}

	t := time.Now()
	from, to := r.unusual.HistoryWindow(dataDate)
	history, err := r.store.StrikeVolumeHistory(ctx, symbol, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load volume history: %w", err)
	}
	results.UnusualFlags = r.unusual.Detect(current, history)
	r.metrics.observeEngine("unusual", t)
	r.metrics.Flags.Add(float64(len(results.UnusualFlags)))

	t = time.Now()
	results.ExpiryPressure = r.expiry.Compute(current)
	r.metrics.observeEngine("expiry", t)

	t = time.Now()
	results.BlindSpots = r.blindSpot.Compute(current)
	r.metrics.observeEngine("blindspot", t)
	if current.Spot <= 0 {
		logging.LogSymbolSkipped(logger, symbol, "blindspot", apperrors.ReasonMissingSpot)
	}

	closes, err := r.store.DailyCloses(ctx, symbol, dataDate, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load closes: %w", err)
	}

	t = time.Now()
	vrpHistory, err := r.store.VRPHistory(ctx, symbol, dataDate, r.cfg.Volatility.VRPLookback)
	if err != nil {
		return nil, fmt.Errorf("failed to load vrp history: %w", err)
	}
	vm := r.volatility.Compute(current, closes, vrpHistory)
	results.VolMetrics = &vm
	r.metrics.observeEngine("volatility", t)
	if vm.Reason != "" {
		logging.LogSymbolSkipped(logger, symbol, "volatility", vm.Reason)
	}

	t = time.Now()
	season := r.seasonality.Compute(symbol, dataDate, closes)
	results.Seasonality = &season
	r.metrics.observeEngine("seasonality", t)
	if season.Reason != "" {
		logging.LogSymbolSkipped(logger, symbol, "seasonality", season.Reason)
	}

	if err := r.store.SaveSymbolResults(ctx, results); err != nil {
		return nil, fmt.Errorf("failed to save results: %w", err)
	}

	logging.LogSymbolComputed(logger, symbol, dataDate, countRecords(results), time.Since(start))
	return results, nil
}

func (r *Runner) computeExposure(ctx context.Context, results *models.SymbolResults, current *chain.Chain, asOf time.Time) error {
	symbol := current.Symbol
	prevDay, err := r.loadChain(ctx, symbol, r.cfg.Calendar.AddTradingDays(current.DataDate, -1))
	if err != nil {
		return err
	}
	prevWeek, err := r.loadChain(ctx, symbol, current.DataDate.AddDate(0, 0, -7))
	if err != nil {
		return err
	}

	t := time.Now()
	results.GammaExposure = r.gex.ComputeAll(gex.Snapshots{Current: current, PrevDay: prevDay, PrevWeek: prevWeek}, asOf)
	results.DeltaExposure = gex.DeltaExposure(current)
	r.metrics.observeEngine("gex", t)
	if len(results.GammaExposure) == 0 {
		logging.LogSymbolSkipped(r.loggerFrom(ctx), symbol, "gex", apperrors.ReasonNoData)
	}
	return nil
}

// loadChain returns the latest chain on or before asOf, or nil when there is
// none.
func (r *Runner) loadChain(ctx context.Context, symbol string, asOf time.Time) (*chain.Chain, error) {
	rows, err := r.store.LatestChain(ctx, symbol, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to load chain: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return chain.Aggregate(symbol, rows)
}

func (r *Runner) loggerFrom(ctx context.Context) zerolog.Logger {
	if logger, ok := ctx.Value(logging.LoggerKey).(zerolog.Logger); ok {
		return logger
	}
	return r.logger
}

func countRecords(r *models.SymbolResults) int {
	n := len(r.GammaExposure) + len(r.DeltaExposure) + len(r.UnusualFlags) + len(r.ExpiryPressure) + len(r.BlindSpots)
	if r.Seasonality != nil {
		n++
	}
	if r.VolMetrics != nil {
		n++
	}
	return n
}
