package cache

import (
	"context"
	"sync"
	"time"
)

const defaultSweepInterval = time.Minute

type memoryEntry[V any] struct {
	value     V
	window    time.Duration
	expiresAt time.Time
}

func (e *memoryEntry[V]) expired(now time.Time) bool {
	return e.window > 0 && now.After(e.expiresAt)
}

// Memory is an in-process Store backed by a map and a single mutex. The lock
// is held only for map access; loading values happens outside the store.
// Expired entries are dropped lazily on access and by a periodic sweep that
// bounds memory growth under low-traffic keys.
type Memory[V any] struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry[V]
	hits    int64
	misses  int64

	now  func() time.Time
	stop chan struct{}
	once sync.Once
}

// NewMemory constructs a Memory store and starts its sweep loop. Call Close
// to stop the sweeper.
func NewMemory[V any]() *Memory[V] {
	m := &Memory[V]{
		entries: make(map[string]*memoryEntry[V]),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go m.sweepLoop(defaultSweepInterval)
	return m
}

// Close stops the background sweeper. The store remains usable.
func (m *Memory[V]) Close() {
	m.once.Do(func() { close(m.stop) })
}

func (m *Memory[V]) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *Memory[V]) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for key, entry := range m.entries {
		if entry.expired(now) {
			delete(m.entries, key)
		}
	}
}

// Get implements Store.
func (m *Memory[V]) Get(_ context.Context, key string) (V, bool, error) {
	var zero V
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		m.misses++
		return zero, false, nil
	}
	now := m.now()
	if entry.expired(now) {
		delete(m.entries, key)
		m.misses++
		return zero, false, nil
	}
	if entry.window > 0 {
		entry.expiresAt = now.Add(entry.window)
	}
	m.hits++
	return entry.value, true, nil
}

// Set implements Store.
func (m *Memory[V]) Set(_ context.Context, key string, value V, window time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := &memoryEntry[V]{value: value, window: window}
	if window > 0 {
		entry.expiresAt = m.now().Add(window)
	}
	m.entries[key] = entry
	return nil
}

// Refresh implements Store.
func (m *Memory[V]) Refresh(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return false, nil
	}
	now := m.now()
	if entry.expired(now) {
		delete(m.entries, key)
		return false, nil
	}
	if entry.window > 0 {
		entry.expiresAt = now.Add(entry.window)
	}
	return true, nil
}

// Remove implements Store.
func (m *Memory[V]) Remove(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[key]; !ok {
		return false, nil
	}
	delete(m.entries, key)
	return true, nil
}

// Exists implements Store.
func (m *Memory[V]) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return false, nil
	}
	if entry.expired(m.now()) {
		delete(m.entries, key)
		return false, nil
	}
	return true, nil
}

// Clear implements Store.
func (m *Memory[V]) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]*memoryEntry[V])
	return nil
}

// Stats implements Store.
func (m *Memory[V]) Stats(_ context.Context) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var live int64
	for _, entry := range m.entries {
		if !entry.expired(now) {
			live++
		}
	}
	return Stats{
		Backend: "memory",
		Entries: live,
		Hits:    m.hits,
		Misses:  m.misses,
	}, nil
}
