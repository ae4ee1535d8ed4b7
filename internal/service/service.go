// Package service is the read-side entry point for signal lookups and
// position analysis.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"options-signals/internal/analysis/chain"
	"options-signals/internal/analysis/gex"
	"options-signals/internal/analysis/position"
	"options-signals/internal/cache"
	"options-signals/internal/calendar"
	apperrors "options-signals/internal/errors"
	"options-signals/internal/models"
	"options-signals/internal/store"
)

// DefaultTTL is how long a computed GEX payload stays cached.
const DefaultTTL = 15 * time.Minute

// Service answers GEX and position requests.
type Service struct {
	store    store.DataStore
	cache    cache.Store
	ttl      time.Duration
	gex      *gex.Engine
	analyzer *position.Analyzer
	calendar *calendar.Calendar
	logger   zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithTTL sets the GEX cache lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) { s.ttl = ttl }
}

// WithCalendar sets the exchange calendar used to find the previous session.
func WithCalendar(cal *calendar.Calendar) Option {
	return func(s *Service) { s.calendar = cal }
}

// WithLogger sets the service logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// New creates a service. A nil cache store falls back to an in-memory one.
func New(st store.DataStore, c cache.Store, analyzer *position.Analyzer, opts ...Option) *Service {
	if c == nil {
		c = cache.NewMemoryStore()
	}
	s := &Service{
		store:    st,
		cache:    c,
		ttl:      DefaultTTL,
		gex:      gex.NewEngine(gex.DefaultTimeframes),
		analyzer: analyzer,
		calendar: calendar.Default(),
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GammaExposure returns the GEX payload of symbol for the timeframe as of a
// date, computing it from stored observations on a cache miss. The cache key
// covers the chain fingerprint, so new observations invalidate it.
func (s *Service) GammaExposure(ctx context.Context, symbol, timeframe string, asOf time.Time) (*models.GammaExposureResult, error) {
	tf, err := gex.ParseTimeframe(timeframe)
	if err != nil {
		return nil, err
	}
	asOf = models.DateOnly(asOf)

	fingerprint, err := s.store.ChainFingerprint(ctx, symbol, asOf)
	if err != nil {
		return nil, err
	}

	key := cache.Key("gex", symbol, tf.Name, asOf.Format(models.DateLayout), fingerprint)
	return cache.Remember(ctx, s.cache, key, s.ttl, func(ctx context.Context) (*models.GammaExposureResult, error) {
		s.logger.Debug().Str("symbol", symbol).Str("timeframe", tf.Name).Msg("Computing GEX")
		return s.computeGEX(ctx, symbol, tf, asOf)
	})
}

func (s *Service) computeGEX(ctx context.Context, symbol string, tf gex.Timeframe, asOf time.Time) (*models.GammaExposureResult, error) {
	current, err := s.loadChain(ctx, symbol, asOf)
	if err != nil {
		return nil, err
	}
	prevDay, err := s.loadPrevious(ctx, symbol, s.calendar.AddTradingDays(current.DataDate, -1))
	if err != nil {
		return nil, err
	}
	prevWeek, err := s.loadPrevious(ctx, symbol, current.DataDate.AddDate(0, 0, -7))
	if err != nil {
		return nil, err
	}
	return s.gex.Compute(gex.Snapshots{Current: current, PrevDay: prevDay, PrevWeek: prevWeek}, tf, asOf)
}

func (s *Service) loadChain(ctx context.Context, symbol string, asOf time.Time) (*chain.Chain, error) {
	rows, err := s.store.LatestChain(ctx, symbol, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to load chain: %w", err)
	}
	return chain.Aggregate(symbol, rows)
}

// loadPrevious is loadChain that treats a missing chain as nil.
func (s *Service) loadPrevious(ctx context.Context, symbol string, asOf time.Time) (*chain.Chain, error) {
	c, err := s.loadChain(ctx, symbol, asOf)
	if apperrors.Is(err, apperrors.ErrMissingData) {
		return nil, nil
	}
	return c, err
}

// AnalyzePosition decodes, validates and evaluates a JSON position request.
// Validation failures are returned as apperrors.ValidationErrors.
func (s *Service) AnalyzePosition(data []byte) (*position.Result, error) {
	req, err := position.DecodeRequest(data)
	if err != nil {
		return nil, err
	}
	return s.analyzer.Analyze(req)
}
