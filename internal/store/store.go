// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"options-signals/internal/models"
)

// DataStore defines the interface for data persistence.
type DataStore interface {
	// Raw inputs
	UpsertObservations(ctx context.Context, symbol string, rows []models.ContractObservation) error
	UpsertDailyCloses(ctx context.Context, symbol string, closes []models.DailyClose) error
	Symbols(ctx context.Context) ([]string, error)
	Expirations(ctx context.Context, symbol string) ([]models.ExpirationKey, error)

	// Chain reads
	LatestChain(ctx context.Context, symbol string, asOf time.Time) ([]models.ContractObservation, error)
	StrikeVolumeHistory(ctx context.Context, symbol string, from, to time.Time) ([]models.StrikeVolume, error)
	ChainFingerprint(ctx context.Context, symbol string, asOf time.Time) (string, error)

	// Price history
	DailyCloses(ctx context.Context, symbol string, to time.Time, limit int) ([]models.DailyClose, error)
	VRPHistory(ctx context.Context, symbol string, before time.Time, limit int) ([]float64, error)

	// Derived results
	SaveSymbolResults(ctx context.Context, results *models.SymbolResults) error
	GammaExposure(ctx context.Context, symbol, timeframe string, date time.Time) (*models.GammaExposureResult, error)
	DeltaExposure(ctx context.Context, symbol string, date time.Time) ([]models.ExpiryDeltaExposure, error)
	UnusualActivity(ctx context.Context, symbol string, date time.Time) ([]models.UnusualActivityFlag, error)
	ExpiryPressure(ctx context.Context, symbol string, date time.Time) ([]models.ExpiryPressureRecord, error)
	BlindSpots(ctx context.Context, symbol string, date time.Time) ([]models.BlindSpotRecord, error)
	Seasonality(ctx context.Context, symbol string, date time.Time) (*models.SeasonalityRecord, error)
	VolMetrics(ctx context.Context, symbol string, date time.Time) (*models.VolMetricsRecord, error)

	// Sync
	GetLastSync(dataType string) time.Time
	SetLastSync(dataType string, t time.Time) error

	// Lifecycle
	Close() error
}
