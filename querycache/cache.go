// Package querycache caches decoded server reads under string query keys.
//
// Backends store opaque bytes with a per-entry TTL. Fetch layers JSON
// encoding on top and guards against writes that race a session
// transition: a result fetched under one session epoch is never left in the
// cache once the epoch has moved on.
package querycache

import (
	"context"
	"encoding/json"
	"time"
)

// Cache is a byte cache keyed by query key.
type Cache interface {
	// Get returns the entry for key. A missing or expired entry is reported
	// as ok=false with a nil error; errors are reserved for backend failures.
	Get(ctx context.Context, key string) (data []byte, ok bool, err error)

	// Set stores data under key. A ttl of zero means no expiry.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Invalidate removes the given keys. Missing keys are ignored.
	Invalidate(ctx context.Context, keys ...string) error

	// Clear removes every entry owned by this cache.
	Clear(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// EpochSource reports a counter that changes whenever cached data may no
// longer belong to the current session. *session.Manager implements it.
type EpochSource interface {
	Epoch() uint64
}

// Fetch returns the cached value for key, or calls fn and caches its result.
//
// When c is nil, fn is called directly. Backend errors on the read path are
// treated as misses and errors on the write path are dropped; the caller
// always gets fn's result. If epochs reports a different value after fn
// returns than before it was called, the result is returned but not kept.
func Fetch[T any](ctx context.Context, c Cache, epochs EpochSource, key string, ttl time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if c == nil {
		return fn(ctx)
	}

	if data, ok, err := c.Get(ctx, key); err == nil && ok {
		var v T
		if err := json.Unmarshal(data, &v); err == nil {
			return v, nil
		}
		// Entry from an older shape of T.
		_ = c.Invalidate(ctx, key)
	}

	var before uint64
	if epochs != nil {
		before = epochs.Epoch()
	}

	v, err := fn(ctx)
	if err != nil {
		return v, err
	}

	if epochs != nil && epochs.Epoch() != before {
		return v, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return v, nil
	}
	if err := c.Set(ctx, key, data, ttl); err != nil {
		return v, nil
	}
	// A transition may have cleared the cache between the check above and
	// the Set; take the entry back out.
	if epochs != nil && epochs.Epoch() != before {
		_ = c.Invalidate(ctx, key)
	}
	return v, nil
}
