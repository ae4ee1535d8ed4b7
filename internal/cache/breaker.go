package cache

import (
	"context"
	"errors"
	"sync"
	"time"
)

// BreakerState is the state of a BreakerStore.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// ErrBreakerOpen is returned while the backend is being skipped.
var ErrBreakerOpen = errors.New("cache circuit breaker is open")

// BreakerConfig holds circuit breaker thresholds.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the breaker.
	FailureThreshold int
	// SuccessThreshold is the number of half-open successes that closes it.
	SuccessThreshold int
	// Cooldown is how long the breaker stays open before probing.
	Cooldown time.Duration
}

// DefaultBreakerConfig returns the default thresholds.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 1,
		Cooldown:         30 * time.Second,
	}
}

// BreakerStore guards a remote Store. After repeated backend failures it
// fails fast with ErrBreakerOpen until the cooldown passes, so Remember
// falls through to computing instead of waiting on a dead backend.
type BreakerStore struct {
	next Store
	cfg  BreakerConfig
	now  func() time.Time

	mu        sync.Mutex
	state     BreakerState
	failures  int
	successes int
	openedAt  time.Time
	rejected  int64
}

// NewBreakerStore wraps next.
func NewBreakerStore(next Store, cfg BreakerConfig) *BreakerStore {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 1
	}
	return &BreakerStore{next: next, cfg: cfg, now: time.Now, state: BreakerClosed}
}

// GetBytes implements Store.
func (b *BreakerStore) GetBytes(ctx context.Context, key string) ([]byte, bool, error) {
	if err := b.allow(); err != nil {
		return nil, false, err
	}
	value, found, err := b.next.GetBytes(ctx, key)
	b.record(err)
	return value, found, err
}

// SetBytes implements Store.
func (b *BreakerStore) SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := b.allow(); err != nil {
		return err
	}
	err := b.next.SetBytes(ctx, key, value, ttl)
	b.record(err)
	return err
}

// Delete implements Store.
func (b *BreakerStore) Delete(ctx context.Context, keys ...string) error {
	if err := b.allow(); err != nil {
		return err
	}
	err := b.next.Delete(ctx, keys...)
	b.record(err)
	return err
}

// Close closes the wrapped store if it can be closed.
func (b *BreakerStore) Close() error {
	if c, ok := b.next.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// State returns the current breaker state.
func (b *BreakerStore) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Rejected returns how many calls were refused while open.
func (b *BreakerStore) Rejected() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rejected
}

func (b *BreakerStore) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerOpen {
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			b.rejected++
			return ErrBreakerOpen
		}
		b.transitionTo(BreakerHalfOpen)
	}
	return nil
}

func (b *BreakerStore) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Caller cancellation says nothing about backend health.
	if errors.Is(err, context.Canceled) {
		return
	}

	if err == nil {
		switch b.state {
		case BreakerHalfOpen:
			b.successes++
			if b.successes >= b.cfg.SuccessThreshold {
				b.transitionTo(BreakerClosed)
			}
		case BreakerClosed:
			b.failures = 0
		}
		return
	}

	switch b.state {
	case BreakerClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.transitionTo(BreakerOpen)
		}
	case BreakerHalfOpen:
		b.transitionTo(BreakerOpen)
	}
}

func (b *BreakerStore) transitionTo(state BreakerState) {
	b.state = state
	b.failures = 0
	b.successes = 0
	if state == BreakerOpen {
		b.openedAt = b.now()
	}
}
