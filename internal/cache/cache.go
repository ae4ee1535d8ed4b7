// Package cache provides a small key/value cache abstraction with Redis and
// in-memory backends.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	apperrors "options-signals/internal/errors"
	"options-signals/internal/logging"
)

// Store is a byte-oriented cache backend. GetBytes reports a miss with
// found=false and a nil error.
type Store interface {
	GetBytes(ctx context.Context, key string) (value []byte, found bool, err error)
	SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// Key derives a deterministic cache key from every input that affects the
// cached value.
func Key(namespace string, parts ...string) string {
	sum := xxhash.Sum64String(strings.Join(parts, "\x1f"))
	return fmt.Sprintf("%s:%016x", namespace, sum)
}

// Get decodes a cached JSON value. A miss returns ErrCacheMiss.
func Get[T any](ctx context.Context, store Store, key string) (T, error) {
	var out T
	data, found, err := store.GetBytes(ctx, key)
	if err != nil {
		return out, fmt.Errorf("cache get %s: %w", key, err)
	}
	if !found {
		return out, apperrors.ErrCacheMiss
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("cache decode %s: %w", key, err)
	}
	return out, nil
}

// Remember returns the cached value for key, or runs compute and caches its
// result for ttl. Compute errors are returned and nothing is cached. Backend
// failures degrade to computing without the cache.
func Remember[T any](ctx context.Context, store Store, key string, ttl time.Duration, compute func(context.Context) (T, error)) (T, error) {
	logger := logging.FromContext(ctx)

	cached, err := Get[T](ctx, store, key)
	if err == nil {
		logger.Debug().Str("key", key).Msg("cache hit")
		return cached, nil
	}
	if !apperrors.Is(err, apperrors.ErrCacheMiss) {
		logger.Warn().Err(err).Str("key", key).Msg("cache read failed")
	}

	value, err := compute(ctx)
	if err != nil {
		return value, err
	}

	data, err := json.Marshal(value)
	if err != nil {
		return value, fmt.Errorf("cache encode %s: %w", key, err)
	}
	if err := store.SetBytes(ctx, key, data, ttl); err != nil {
		logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
	return value, nil
}
