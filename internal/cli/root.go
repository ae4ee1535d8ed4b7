// Package cli provides the command-line interface for the signals service.
package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"options-signals/internal/analysis/position"
	"options-signals/internal/cache"
	"options-signals/internal/calendar"
	"options-signals/internal/config"
	"options-signals/internal/logging"
	"options-signals/internal/models"
	"options-signals/internal/pipeline"
	"options-signals/internal/service"
	"options-signals/internal/store"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2024-03-08"
)

// App holds the application dependencies. Store and cache are opened on
// first use.
type App struct {
	ConfigDir string
	Config    *config.Config
	Logger    zerolog.Logger
	Store     store.DataStore
	Cache     cache.Store
	Sync      *store.SyncManager
	Calendar  *calendar.Calendar

	now func() time.Time
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd() *cobra.Command {
	app := &App{Logger: zerolog.Nop(), now: time.Now}

	rootCmd := &cobra.Command{
		Use:   "signals",
		Short: "Options chain risk signals",
		Long: `signals computes dealer gamma exposure, unusual activity, expiry pin risk,
gamma blind spots, seasonality and volatility metrics from stored daily
option chain snapshots, and evaluates multi-leg option positions.

Use 'signals import' to load observations and closes, then 'signals compute'.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.init(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.Close()
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/options-signals)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newComputeCmd(app))
	rootCmd.AddCommand(newGEXCmd(app))
	rootCmd.AddCommand(newReportCmd(app))
	rootCmd.AddCommand(newPositionCmd(app))
	rootCmd.AddCommand(newImportCmd(app))
	rootCmd.AddCommand(newStatusCmd(app))

	return rootCmd
}

// Execute runs the CLI until it finishes or ctx is cancelled.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

// skipConfig marks commands that load configuration themselves.
const skipConfig = "skip_config"

func (a *App) init(cmd *cobra.Command) error {
	a.ConfigDir, _ = cmd.Flags().GetString("config")
	if a.ConfigDir == "" {
		a.ConfigDir = config.DefaultConfigDir()
	}
	if cmd.Annotations[skipConfig] == "true" {
		return nil
	}

	cfg, err := config.Load(a.ConfigDir)
	if err != nil {
		return err
	}
	a.Config = cfg

	logCfg := logging.DefaultLogConfig()
	logCfg.Level = cfg.Logging.Level
	if cfg.Logging.File != "" {
		logCfg.File = true
		logCfg.FilePath = cfg.Logging.File
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		logCfg.Level = "debug"
	}
	a.Logger = logging.NewLoggerWithConfig(logCfg)

	a.Calendar, err = cfg.ExchangeCalendar()
	return err
}

// Close releases the store and cache.
func (a *App) Close() error {
	var firstErr error
	if closer, ok := a.Cache.(interface{ Close() error }); ok {
		firstErr = closer.Close()
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		a.Store = nil
	}
	return firstErr
}

func (a *App) openStore() (store.DataStore, error) {
	if a.Store != nil {
		return a.Store, nil
	}
	st, err := store.NewSQLiteStore(a.Config.Store.Path)
	if err != nil {
		return nil, err
	}
	a.Store = st
	a.Sync = store.NewSyncManager(st, nil)
	a.Sync.SetStaleDataCallback(func(dataType store.SyncDataType, age time.Duration) {
		a.Logger.Warn().Str("data_type", string(dataType)).Dur("age", age).Msg("Stored data is stale")
	})
	a.Logger.Debug().Str("path", a.Config.Store.Path).Msg("SQLite store initialized")
	return st, nil
}

func (a *App) openCache(ctx context.Context) (cache.Store, error) {
	if a.Cache != nil {
		return a.Cache, nil
	}
	cc := a.Config.Cache
	if cc.Backend == "redis" {
		rs, err := cache.NewRedisStore(ctx, cache.RedisConfig{
			Addr:     cc.RedisAddr,
			Password: cc.RedisPassword,
			DB:       cc.RedisDB,
			Prefix:   cc.Prefix,
		})
		if err != nil {
			return nil, err
		}
		a.Cache = cache.NewBreakerStore(rs, cache.DefaultBreakerConfig())
	} else {
		a.Cache = cache.NewMemoryStore()
	}
	return a.Cache, nil
}

func (a *App) pipelineConfig() (pipeline.Config, error) {
	tfs, err := a.Config.GEXTimeframes()
	if err != nil {
		return pipeline.Config{}, err
	}
	return pipeline.Config{
		Workers:     a.Config.Pipeline.Workers,
		Timeframes:  tfs,
		Unusual:     a.Config.Unusual,
		Expiry:      a.Config.Expiry,
		BlindSpot:   a.Config.BlindSpot,
		Volatility:  a.Config.Volatility,
		Seasonality: a.Config.Seasonality,
		Calendar:    a.Calendar,
	}, nil
}

func (a *App) newRunner(reg prometheus.Registerer) (*pipeline.Runner, error) {
	st, err := a.openStore()
	if err != nil {
		return nil, err
	}
	cfg, err := a.pipelineConfig()
	if err != nil {
		return nil, err
	}
	return pipeline.NewRunner(st, cfg,
		pipeline.WithLogger(logging.WithOperation(a.Logger, "compute")),
		pipeline.WithMetrics(pipeline.NewMetrics(reg)),
		pipeline.WithSyncManager(a.Sync),
	), nil
}

func (a *App) newService(ctx context.Context) (*service.Service, error) {
	st, err := a.openStore()
	if err != nil {
		return nil, err
	}
	c, err := a.openCache(ctx)
	if err != nil {
		return nil, err
	}
	return service.New(st, c, a.analyzer(),
		service.WithTTL(a.Config.Cache.TTL),
		service.WithCalendar(a.Calendar),
		service.WithLogger(logging.WithOperation(a.Logger, "query")),
	), nil
}

func (a *App) analyzer() *position.Analyzer {
	return position.NewAnalyzer(a.Config.Pricing, a.Calendar, a.now)
}

// asOf reads the --date flag, defaulting to the current trading day.
func (a *App) asOf(cmd *cobra.Command) (time.Time, error) {
	raw, _ := cmd.Flags().GetString("date")
	if raw == "" {
		return calendar.TradingDay(a.now(), a.Calendar), nil
	}
	d, err := models.ParseDate(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --date %q: %w", raw, err)
	}
	return d, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version information",
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			}
			output.Printf("signals v%s\n", Version)
			output.Dim("Build date: %s", BuildDate)
			return nil
		},
	}
}
