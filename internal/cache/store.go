package cache

import (
	"context"
	"errors"
	"net/http"
	"time"
)

var (
	ErrNotInitialized = errors.New("cache store not initialized")
	ErrEntryTooLarge  = errors.New("cache entry exceeds max object bytes")
)

// Entry is one cached response. It is replaced wholesale on update and
// never mutated after Set returns.
type Entry struct {
	Key      string        `json:"key"`
	Path     string        `json:"path"`
	Status   int           `json:"status"`
	Header   http.Header   `json:"header,omitempty"`
	Body     []byte        `json:"body"`
	StoredAt time.Time     `json:"stored_at"`
	TTL      time.Duration `json:"ttl"`
}

func (e Entry) ExpiresAt() time.Time {
	if e.TTL <= 0 {
		return time.Time{}
	}
	return e.StoredAt.Add(e.TTL)
}

// Expired reports whether the entry's age exceeds its TTL at now. Entries
// without a TTL never expire.
func (e Entry) Expired(now time.Time) bool {
	if e.TTL <= 0 {
		return false
	}
	return now.Sub(e.StoredAt) > e.TTL
}

func (e Entry) Clone() Entry {
	clone := e
	if e.Header != nil {
		clone.Header = e.Header.Clone()
	}
	if e.Body != nil {
		clone.Body = append([]byte(nil), e.Body...)
	}
	return clone
}

type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, entry Entry) error
	Delete(ctx context.Context, key string) error
	// DeleteMatching removes every entry whose path falls under one of the
	// given prefixes and returns the number removed.
	DeleteMatching(ctx context.Context, prefixes []string) (int, error)
	// Sweep removes expired entries and returns the number removed.
	Sweep(ctx context.Context) (int, error)
	Purge(ctx context.Context) error
	Len(ctx context.Context) (int, error)
}
