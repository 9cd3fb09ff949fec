// Package cache provides a generic key/value store with sliding expiration.
//
// Two interchangeable backends satisfy the Store contract: an in-process map
// (Memory) and a shared Redis keyspace (Redis). Callers pick a backend at
// construction time and stay agnostic afterwards.
package cache

import (
	"context"
	"time"
)

// Store is a key/value cache with sliding expiration, generic over the value
// type. A successful Get resets the entry's deadline to now plus the window
// it was stored with. A window of zero means the entry never expires and
// lives until removed.
type Store[V any] interface {
	// Get returns the value for key and extends its sliding window.
	// The second return is false when the key is missing or expired.
	Get(ctx context.Context, key string) (V, bool, error)

	// Set inserts or replaces the value for key. window <= 0 disables
	// expiration for the entry.
	Set(ctx context.Context, key string, value V, window time.Duration) error

	// Refresh extends the sliding window without reading the value. It
	// reports whether the key existed and was still live.
	Refresh(ctx context.Context, key string) (bool, error)

	// Remove deletes the entry immediately and reports whether it existed.
	Remove(ctx context.Context, key string) (bool, error)

	// Exists reports liveness without extending the sliding window.
	Exists(ctx context.Context, key string) (bool, error)

	// Clear removes every entry owned by this store.
	Clear(ctx context.Context) error

	// Stats returns observability counters. They never affect correctness.
	Stats(ctx context.Context) (Stats, error)
}

// Stats describes the state of a Store for observability.
type Stats struct {
	Backend string
	Entries int64
	Hits    int64
	Misses  int64
}
