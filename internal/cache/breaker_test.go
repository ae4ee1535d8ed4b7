package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyStore struct {
	*MemoryStore
	fail  bool
	calls int
}

var errBackendDown = errors.New("connection refused")

func (f *flakyStore) GetBytes(ctx context.Context, key string) ([]byte, bool, error) {
	f.calls++
	if f.fail {
		return nil, false, errBackendDown
	}
	return f.MemoryStore.GetBytes(ctx, key)
}

func (f *flakyStore) SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	f.calls++
	if f.fail {
		return errBackendDown
	}
	return f.MemoryStore.SetBytes(ctx, key, value, ttl)
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	ctx := context.Background()
	backend := &flakyStore{MemoryStore: NewMemoryStore(), fail: true}
	breaker := NewBreakerStore(backend, BreakerConfig{FailureThreshold: 3, SuccessThreshold: 1, Cooldown: time.Minute})

	now := time.Date(2024, 3, 8, 16, 0, 0, 0, time.UTC)
	breaker.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		_, _, err := breaker.GetBytes(ctx, "k")
		assert.ErrorIs(t, err, errBackendDown)
	}
	assert.Equal(t, BreakerOpen, breaker.State())

	_, _, err := breaker.GetBytes(ctx, "k")
	assert.ErrorIs(t, err, ErrBreakerOpen)
	assert.Equal(t, 3, backend.calls)
	assert.Equal(t, int64(1), breaker.Rejected())

	// Cooldown elapsed and the backend recovered: one probe closes it.
	backend.fail = false
	now = now.Add(2 * time.Minute)
	require.NoError(t, breaker.SetBytes(ctx, "k", []byte("v"), 0))
	assert.Equal(t, BreakerClosed, breaker.State())

	value, found, err := breaker.GetBytes(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("v"), value)
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	ctx := context.Background()
	backend := &flakyStore{MemoryStore: NewMemoryStore(), fail: true}
	breaker := NewBreakerStore(backend, BreakerConfig{FailureThreshold: 1, Cooldown: time.Second})

	now := time.Date(2024, 3, 8, 16, 0, 0, 0, time.UTC)
	breaker.now = func() time.Time { return now }

	_, _, _ = breaker.GetBytes(ctx, "k")
	require.Equal(t, BreakerOpen, breaker.State())

	now = now.Add(2 * time.Second)
	_, _, err := breaker.GetBytes(ctx, "k")
	assert.ErrorIs(t, err, errBackendDown)
	assert.Equal(t, BreakerOpen, breaker.State())
}

func TestRememberThroughOpenBreaker(t *testing.T) {
	ctx := context.Background()
	backend := &flakyStore{MemoryStore: NewMemoryStore(), fail: true}
	breaker := NewBreakerStore(backend, BreakerConfig{FailureThreshold: 1, Cooldown: time.Hour})

	computed := 0
	compute := func(context.Context) (int, error) {
		computed++
		return 42, nil
	}

	for i := 0; i < 3; i++ {
		v, err := Remember(ctx, breaker, "answer", time.Minute, compute)
		require.NoError(t, err)
		assert.Equal(t, 42, v)
	}
	assert.Equal(t, 3, computed)
	assert.Equal(t, 1, backend.calls)
}
