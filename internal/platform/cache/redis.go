package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a Store backed by a shared Redis keyspace. Values are stored as
// JSON under a namespaced key; sliding expiration is implemented with a
// companion meta key holding the window so that reads can re-arm the TTL.
// Per-key operations are atomic on the Redis side; hit/miss counters are
// process-local observability.
type Redis[V any] struct {
	client    *redis.Client
	namespace string
	hits      atomic.Int64
	misses    atomic.Int64
}

// NewRedis constructs a Redis store. All keys live under the given
// namespace so Clear only touches entries owned by this store.
func NewRedis[V any](client *redis.Client, namespace string) *Redis[V] {
	if namespace == "" {
		namespace = "cache"
	}
	return &Redis[V]{client: client, namespace: namespace}
}

func (r *Redis[V]) dataKey(key string) string {
	return r.namespace + ":" + key
}

func (r *Redis[V]) metaKey(key string) string {
	return r.namespace + ":meta:" + key
}

// Get implements Store.
func (r *Redis[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var zero V
	payload, err := r.client.Get(ctx, r.dataKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		r.misses.Add(1)
		return zero, false, nil
	}
	if err != nil {
		return zero, false, fmt.Errorf("cache: redis get: %w", err)
	}
	if err := r.slideExpiry(ctx, key); err != nil {
		return zero, false, err
	}
	var value V
	if err := json.Unmarshal(payload, &value); err != nil {
		return zero, false, fmt.Errorf("cache: redis decode %q: %w", key, err)
	}
	r.hits.Add(1)
	return value, true, nil
}

// Set implements Store.
func (r *Redis[V]) Set(ctx context.Context, key string, value V, window time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: redis encode %q: %w", key, err)
	}
	pipe := r.client.TxPipeline()
	if window > 0 {
		pipe.Set(ctx, r.dataKey(key), payload, window)
		pipe.Set(ctx, r.metaKey(key), strconv.FormatInt(window.Milliseconds(), 10), window)
	} else {
		pipe.Set(ctx, r.dataKey(key), payload, 0)
		pipe.Del(ctx, r.metaKey(key))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache: redis set: %w", err)
	}
	return nil
}

// Refresh implements Store.
func (r *Redis[V]) Refresh(ctx context.Context, key string) (bool, error) {
	window, hasWindow, err := r.window(ctx, key)
	if err != nil {
		return false, err
	}
	if !hasWindow {
		// No sliding window recorded: the entry either never expires or
		// is gone. Either way there is nothing to re-arm.
		n, err := r.client.Exists(ctx, r.dataKey(key)).Result()
		if err != nil {
			return false, fmt.Errorf("cache: redis exists: %w", err)
		}
		return n > 0, nil
	}
	ok, err := r.client.Expire(ctx, r.dataKey(key), window).Result()
	if err != nil {
		return false, fmt.Errorf("cache: redis expire: %w", err)
	}
	if ok {
		if err := r.client.Expire(ctx, r.metaKey(key), window).Err(); err != nil {
			return false, fmt.Errorf("cache: redis expire meta: %w", err)
		}
	}
	return ok, nil
}

// Remove implements Store.
func (r *Redis[V]) Remove(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Del(ctx, r.dataKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("cache: redis del: %w", err)
	}
	if err := r.client.Del(ctx, r.metaKey(key)).Err(); err != nil {
		return false, fmt.Errorf("cache: redis del meta: %w", err)
	}
	return n > 0, nil
}

// Exists implements Store. Redis EXISTS does not touch the TTL, so the
// sliding window is left alone.
func (r *Redis[V]) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, r.dataKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("cache: redis exists: %w", err)
	}
	return n > 0, nil
}

// Clear implements Store. Only keys under this store's namespace are removed.
func (r *Redis[V]) Clear(ctx context.Context) error {
	var cursor uint64
	pattern := r.namespace + ":*"
	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("cache: redis scan: %w", err)
		}
		if len(keys) > 0 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("cache: redis del: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Stats implements Store.
func (r *Redis[V]) Stats(ctx context.Context) (Stats, error) {
	var (
		cursor  uint64
		entries int64
	)
	pattern := r.namespace + ":*"
	metaPrefix := r.namespace + ":meta:"
	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return Stats{}, fmt.Errorf("cache: redis scan: %w", err)
		}
		for _, key := range keys {
			if !strings.HasPrefix(key, metaPrefix) {
				entries++
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return Stats{
		Backend: "redis",
		Entries: entries,
		Hits:    r.hits.Load(),
		Misses:  r.misses.Load(),
	}, nil
}

func (r *Redis[V]) slideExpiry(ctx context.Context, key string) error {
	window, hasWindow, err := r.window(ctx, key)
	if err != nil || !hasWindow {
		return err
	}
	pipe := r.client.TxPipeline()
	pipe.Expire(ctx, r.dataKey(key), window)
	pipe.Expire(ctx, r.metaKey(key), window)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache: redis expire: %w", err)
	}
	return nil
}

func (r *Redis[V]) window(ctx context.Context, key string) (time.Duration, bool, error) {
	raw, err := r.client.Get(ctx, r.metaKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("cache: redis get meta: %w", err)
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ms <= 0 {
		return 0, false, nil
	}
	return time.Duration(ms) * time.Millisecond, true, nil
}
