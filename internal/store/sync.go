package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// SyncDataType names a kind of data whose last update time is tracked.
type SyncDataType string

const (
	SyncTypeObservations SyncDataType = "observations"
	SyncTypeCloses       SyncDataType = "closes"
	SyncTypeResults      SyncDataType = "results"
)

// SyncStatus represents the current sync status.
type SyncStatus struct {
	DataType SyncDataType
	LastSync time.Time
	IsStale  bool
	Age      time.Duration
}

// SyncConfig holds staleness thresholds per data type.
type SyncConfig struct {
	StaleThresholds map[SyncDataType]time.Duration
}

// DefaultSyncConfig returns default sync configuration.
// Inputs arrive once per trading day; a weekend gap is still fresh.
func DefaultSyncConfig() *SyncConfig {
	return &SyncConfig{
		StaleThresholds: map[SyncDataType]time.Duration{
			SyncTypeObservations: 72 * time.Hour,
			SyncTypeCloses:       72 * time.Hour,
			SyncTypeResults:      72 * time.Hour,
		},
	}
}

// SyncManager records when each data type was last written and reports
// whether it has gone stale.
type SyncManager struct {
	store  DataStore
	config *SyncConfig
	now    func() time.Time

	mu          sync.RWMutex
	onStaleData func(dataType SyncDataType, age time.Duration)
}

// NewSyncManager creates a new sync manager.
func NewSyncManager(store DataStore, config *SyncConfig) *SyncManager {
	if config == nil {
		config = DefaultSyncConfig()
	}
	return &SyncManager{store: store, config: config, now: time.Now}
}

// SetStaleDataCallback sets the callback invoked by WarnIfStale.
func (sm *SyncManager) SetStaleDataCallback(fn func(dataType SyncDataType, age time.Duration)) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.onStaleData = fn
}

// MarkSynced records that dataType was written now.
func (sm *SyncManager) MarkSynced(dataType SyncDataType) error {
	if err := sm.store.SetLastSync(string(dataType), sm.now()); err != nil {
		return fmt.Errorf("failed to mark %s as synced: %w", dataType, err)
	}
	return nil
}

// GetSyncStatus returns the sync status for a data type. A type that was
// never synced is stale.
func (sm *SyncManager) GetSyncStatus(dataType SyncDataType) *SyncStatus {
	lastSync := sm.store.GetLastSync(string(dataType))
	status := &SyncStatus{DataType: dataType, LastSync: lastSync, IsStale: true}
	if lastSync.IsZero() {
		return status
	}

	threshold, ok := sm.config.StaleThresholds[dataType]
	if !ok {
		threshold = 24 * time.Hour
	}
	status.Age = sm.now().Sub(lastSync)
	status.IsStale = status.Age > threshold
	return status
}

// GetAllSyncStatus returns sync status for every tracked data type.
func (sm *SyncManager) GetAllSyncStatus() []*SyncStatus {
	types := []SyncDataType{SyncTypeObservations, SyncTypeCloses, SyncTypeResults}
	statuses := make([]*SyncStatus, 0, len(types))
	for _, dataType := range types {
		statuses = append(statuses, sm.GetSyncStatus(dataType))
	}
	return statuses
}

// WarnIfStale reports whether dataType is stale and fires the stale
// callback if so.
func (sm *SyncManager) WarnIfStale(dataType SyncDataType) bool {
	status := sm.GetSyncStatus(dataType)
	if !status.IsStale {
		return false
	}

	sm.mu.RLock()
	callback := sm.onStaleData
	sm.mu.RUnlock()

	if callback != nil {
		callback(dataType, status.Age)
	}
	return true
}

// FormatSyncStatus returns a human-readable sync status string.
func FormatSyncStatus(status *SyncStatus) string {
	if status.LastSync.IsZero() {
		return fmt.Sprintf("%s: never synced", status.DataType)
	}

	ago := humanize.RelTime(status.LastSync, status.LastSync.Add(status.Age), "ago", "from now")
	if status.IsStale {
		return fmt.Sprintf("%s: stale (last sync %s)", status.DataType, ago)
	}
	return fmt.Sprintf("%s: fresh (last sync %s)", status.DataType, ago)
}
