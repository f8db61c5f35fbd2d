package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryProvider is an in-process Provider with per-entry TTL and a bounded entry count.
type MemoryProvider struct {
	mu         sync.Mutex
	data       map[string]entry
	maxEntries int
	now        func() time.Time
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryProvider creates a MemoryProvider holding at most maxEntries values.
func NewMemoryProvider(maxEntries int) *MemoryProvider {
	if maxEntries <= 0 {
		maxEntries = 128
	}
	return &MemoryProvider{
		data:       make(map[string]entry),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Get returns a copy of the cached value if present and not expired.
func (m *MemoryProvider) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.data[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	if !it.expiresAt.IsZero() && m.now().After(it.expiresAt) {
		delete(m.data, key)
		return nil, ErrCacheMiss
	}
	return append([]byte(nil), it.value...), nil
}

// Set stores a copy of value; ttl <= 0 keeps it until evicted.
func (m *MemoryProvider) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expires time.Time
	if ttl > 0 {
		expires = m.now().Add(ttl)
	}
	if _, exists := m.data[key]; !exists && len(m.data) >= m.maxEntries {
		m.evictLocked()
	}
	m.data[key] = entry{value: append([]byte(nil), value...), expiresAt: expires}
	return nil
}

// Del removes an entry.
func (m *MemoryProvider) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Close drops every entry.
func (m *MemoryProvider) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string]entry)
	return nil
}

// evictLocked drops expired entries, or the entry closest to expiry when none have expired.
func (m *MemoryProvider) evictLocked() {
	now := m.now()
	var (
		victim   string
		earliest time.Time
	)
	for key, it := range m.data {
		if !it.expiresAt.IsZero() && now.After(it.expiresAt) {
			delete(m.data, key)
			continue
		}
		if victim == "" || (!it.expiresAt.IsZero() && (earliest.IsZero() || it.expiresAt.Before(earliest))) {
			victim, earliest = key, it.expiresAt
		}
	}
	if len(m.data) >= m.maxEntries && victim != "" {
		delete(m.data, victim)
	}
}
