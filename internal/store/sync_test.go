package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncManagerFreshness(t *testing.T) {
	s := newTestStore(t)
	sm := NewSyncManager(s, nil)

	now := time.Date(2024, 3, 8, 21, 0, 0, 0, time.UTC)
	sm.now = func() time.Time { return now }

	status := sm.GetSyncStatus(SyncTypeObservations)
	assert.True(t, status.IsStale)
	assert.Equal(t, "observations: never synced", FormatSyncStatus(status))

	require.NoError(t, sm.MarkSynced(SyncTypeObservations))

	now = now.Add(2 * time.Hour)
	status = sm.GetSyncStatus(SyncTypeObservations)
	assert.False(t, status.IsStale)
	assert.Equal(t, 2*time.Hour, status.Age)
	assert.Equal(t, "observations: fresh (last sync 2 hours ago)", FormatSyncStatus(status))

	var warned SyncDataType
	sm.SetStaleDataCallback(func(dataType SyncDataType, _ time.Duration) { warned = dataType })

	now = now.Add(4 * 24 * time.Hour)
	assert.True(t, sm.WarnIfStale(SyncTypeObservations))
	assert.Equal(t, SyncTypeObservations, warned)

	assert.Len(t, sm.GetAllSyncStatus(), 3)
}
