// Package session is the client-side cache of endpoint payloads for one
// authenticated session. Entries carry two clocks: an expiry TTL after which
// Get reports them absent, and a shorter freshness window after which they
// are still served but flagged stale so callers revalidate.
package session

import (
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"rental_dashboard/internal/clock"
	"rental_dashboard/internal/querykeys"
)

const (
	DefaultTTL      = 10 * time.Minute
	DefaultFreshFor = 2 * time.Minute
)

var ErrInvalidJSON = errors.New("session cache: value is not valid JSON")

type Config struct {
	TTL      time.Duration
	FreshFor time.Duration
	Clock    clock.Clock
}

type Entry struct {
	Key      string
	Value    json.RawMessage
	StoredAt time.Time
	TTL      time.Duration
}

func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.StoredAt)
}

func (e Entry) Expired(now time.Time) bool {
	return e.TTL > 0 && e.Age(now) > e.TTL
}

type Stats struct {
	Active  int `json:"active"`
	Stale   int `json:"stale"`
	Expired int `json:"expired"`
	Total   int `json:"total"`
}

type Store struct {
	mu      sync.RWMutex
	entries map[string]Entry
	// generation advances on every explicit removal so fetches that began
	// before an invalidation can be refused.
	generation uint64
	ttl        time.Duration
	freshFor   time.Duration
	clock      clock.Clock
}

func NewStore(cfg Config) *Store {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	freshFor := cfg.FreshFor
	if freshFor <= 0 {
		freshFor = DefaultFreshFor
	}
	return &Store{
		entries:  make(map[string]Entry),
		ttl:      ttl,
		freshFor: freshFor,
		clock:    clock.OrReal(cfg.Clock),
	}
}

// Get returns a copy of the value for key. Expired entries are removed and
// reported absent; stale but unexpired entries are returned.
func (s *Store) Get(key string) (json.RawMessage, bool) {
	entry, ok := s.lookup(key)
	if !ok {
		return nil, false
	}
	return cloneRaw(entry.Value), true
}

// Peek returns the full entry for key, or false when missing or expired.
func (s *Store) Peek(key string) (Entry, bool) {
	entry, ok := s.lookup(key)
	if !ok {
		return Entry{}, false
	}
	entry.Value = cloneRaw(entry.Value)
	return entry, true
}

func (s *Store) Set(key string, value json.RawMessage) error {
	return s.SetWithTTL(key, value, 0)
}

// SetWithTTL stores value under key. A non-positive ttl uses the store TTL.
func (s *Store) SetWithTTL(key string, value json.RawMessage, ttl time.Duration) error {
	if !json.Valid(value) {
		return ErrInvalidJSON
	}
	if ttl <= 0 {
		ttl = s.ttl
	}
	s.mu.Lock()
	s.entries[key] = s.newEntry(key, value, ttl)
	s.mu.Unlock()
	return nil
}

// Generation returns the removal counter. Read it before fetching a value
// that will be stored with SetIfGeneration.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// SetIfGeneration stores value only if neither Clear nor DeleteMatching ran
// since generation was read. It reports whether the value was stored.
func (s *Store) SetIfGeneration(key string, value json.RawMessage, generation uint64) (bool, error) {
	if !json.Valid(value) {
		return false, ErrInvalidJSON
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != generation {
		return false, nil
	}
	s.entries[key] = s.newEntry(key, value, s.ttl)
	return true, nil
}

func (s *Store) newEntry(key string, value json.RawMessage, ttl time.Duration) Entry {
	return Entry{
		Key:      key,
		Value:    cloneRaw(value),
		StoredAt: s.clock.Now(),
		TTL:      ttl,
	}
}

// Clear removes the given keys, or every entry when called without keys.
func (s *Store) Clear(keys ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	if len(keys) == 0 {
		s.entries = make(map[string]Entry)
		return
	}
	for _, key := range keys {
		delete(s.entries, key)
	}
}

// DeleteMatching removes every key under one of prefixes and returns the
// removed keys in sorted order.
func (s *Store) DeleteMatching(prefixes []string) []string {
	s.mu.Lock()
	s.generation++
	removed := make([]string, 0)
	for key := range s.entries {
		if querykeys.MatchesAny(key, prefixes) {
			delete(s.entries, key)
			removed = append(removed, key)
		}
	}
	s.mu.Unlock()
	sort.Strings(removed)
	return removed
}

// IsStale reports whether key is missing or older than the freshness window.
func (s *Store) IsStale(key string) bool {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return true
	}
	return entry.Age(s.clock.Now()) > s.freshFor
}

func (s *Store) Stats() Stats {
	now := s.clock.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := Stats{Total: len(s.entries)}
	for _, entry := range s.entries {
		switch {
		case entry.Expired(now):
			stats.Expired++
		case entry.Age(now) > s.freshFor:
			stats.Active++
			stats.Stale++
		default:
			stats.Active++
		}
	}
	return stats
}

func (s *Store) Keys() []string {
	s.mu.RLock()
	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		keys = append(keys, key)
	}
	s.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

func (s *Store) FreshFor() time.Duration {
	return s.freshFor
}

func (s *Store) lookup(key string) (Entry, bool) {
	now := s.clock.Now()
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return Entry{}, false
	}
	if entry.Expired(now) {
		s.mu.Lock()
		if current, exists := s.entries[key]; exists && current.StoredAt.Equal(entry.StoredAt) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return Entry{}, false
	}
	return entry, true
}

func cloneRaw(value json.RawMessage) json.RawMessage {
	if value == nil {
		return nil
	}
	return append(json.RawMessage(nil), value...)
}
