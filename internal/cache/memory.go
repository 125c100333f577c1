package cache

import (
	"context"
	"sync"

	"rental_dashboard/internal/clock"
	"rental_dashboard/internal/querykeys"
)

const DefaultMaxObjectBytes int64 = 5 * 1024 * 1024

const (
	EvictReasonExpired  = "expired"
	EvictReasonCapacity = "capacity"
)

type MemoryConfig struct {
	// MaxEntries caps the number of entries with LRU eviction. Zero leaves
	// the store unbounded.
	MaxEntries     int
	MaxObjectBytes int64
	Clock          clock.Clock
	OnEvict        func(reason string, count int)
}

type MemoryStore struct {
	mu             sync.Mutex
	entries        map[string]Entry
	recency        *lru
	maxEntries     int
	maxObjectBytes int64
	clock          clock.Clock
	onEvict        func(reason string, count int)
}

func NewMemoryStore(cfg MemoryConfig) *MemoryStore {
	maxObjectBytes := cfg.MaxObjectBytes
	if maxObjectBytes <= 0 {
		maxObjectBytes = DefaultMaxObjectBytes
	}
	store := &MemoryStore{
		entries:        make(map[string]Entry),
		maxEntries:     cfg.MaxEntries,
		maxObjectBytes: maxObjectBytes,
		clock:          clock.OrReal(cfg.Clock),
		onEvict:        cfg.OnEvict,
	}
	if cfg.MaxEntries > 0 {
		store.recency = newLRU()
	}
	return store
}

func (m *MemoryStore) Get(_ context.Context, key string) (Entry, bool, error) {
	if m == nil {
		return Entry{}, false, ErrNotInitialized
	}

	now := m.clock.Now()
	m.mu.Lock()
	entry, ok := m.entries[key]
	if !ok {
		m.mu.Unlock()
		return Entry{}, false, nil
	}
	if entry.Expired(now) {
		m.deleteLocked(key)
		m.mu.Unlock()
		m.evicted(EvictReasonExpired, 1)
		return Entry{}, false, nil
	}
	if m.recency != nil {
		m.recency.touch(key)
	}
	m.mu.Unlock()
	return entry.Clone(), true, nil
}

func (m *MemoryStore) Set(_ context.Context, entry Entry) error {
	if m == nil {
		return ErrNotInitialized
	}
	if m.maxObjectBytes > 0 && int64(len(entry.Body)) > m.maxObjectBytes {
		return ErrEntryTooLarge
	}
	if entry.StoredAt.IsZero() {
		entry.StoredAt = m.clock.Now()
	}
	stored := entry.Clone()

	evicted := 0
	m.mu.Lock()
	m.entries[entry.Key] = stored
	if m.recency != nil {
		m.recency.touch(entry.Key)
		for m.recency.len() > m.maxEntries {
			victim, ok := m.recency.evict()
			if !ok {
				break
			}
			delete(m.entries, victim)
			evicted++
		}
	}
	m.mu.Unlock()
	if evicted > 0 {
		m.evicted(EvictReasonCapacity, evicted)
	}
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	if m == nil {
		return ErrNotInitialized
	}
	m.mu.Lock()
	m.deleteLocked(key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) DeleteMatching(_ context.Context, prefixes []string) (int, error) {
	if m == nil {
		return 0, ErrNotInitialized
	}
	if len(prefixes) == 0 {
		return 0, nil
	}
	removed := 0
	m.mu.Lock()
	for key, entry := range m.entries {
		if querykeys.MatchesAny(entry.Path, prefixes) {
			m.deleteLocked(key)
			removed++
		}
	}
	m.mu.Unlock()
	return removed, nil
}

func (m *MemoryStore) Sweep(_ context.Context) (int, error) {
	if m == nil {
		return 0, ErrNotInitialized
	}
	now := m.clock.Now()
	removed := 0
	m.mu.Lock()
	for key, entry := range m.entries {
		if entry.Expired(now) {
			m.deleteLocked(key)
			removed++
		}
	}
	m.mu.Unlock()
	if removed > 0 {
		m.evicted(EvictReasonExpired, removed)
	}
	return removed, nil
}

func (m *MemoryStore) Purge(_ context.Context) error {
	if m == nil {
		return ErrNotInitialized
	}
	m.mu.Lock()
	m.entries = make(map[string]Entry)
	if m.recency != nil {
		m.recency = newLRU()
	}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Len(_ context.Context) (int, error) {
	if m == nil {
		return 0, ErrNotInitialized
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries), nil
}

func (m *MemoryStore) deleteLocked(key string) {
	delete(m.entries, key)
	if m.recency != nil {
		m.recency.remove(key)
	}
}

func (m *MemoryStore) evicted(reason string, count int) {
	if m.onEvict != nil {
		m.onEvict(reason, count)
	}
}
