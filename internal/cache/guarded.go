package cache

import (
	"context"
	"errors"

	"rental_dashboard/internal/breaker"
)

// ErrUnavailable is returned while the breaker is open.
var ErrUnavailable = errors.New("cache store unavailable")

// GuardedStore puts a breaker in front of the lookup path of a remote store
// so that a dead backend costs requests nothing but a miss. Removals always
// reach the backend: skipping them could leave purged data behind.
type GuardedStore struct {
	Store
	breaker *breaker.Breaker
}

func NewGuardedStore(store Store, b *breaker.Breaker) *GuardedStore {
	return &GuardedStore{Store: store, breaker: b}
}

func (g *GuardedStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	if !g.breaker.Allow() {
		return Entry{}, false, ErrUnavailable
	}
	entry, ok, err := g.Store.Get(ctx, key)
	g.breaker.Report(err == nil)
	return entry, ok, err
}

func (g *GuardedStore) Set(ctx context.Context, entry Entry) error {
	if !g.breaker.Allow() {
		return ErrUnavailable
	}
	err := g.Store.Set(ctx, entry)
	// An oversized entry says nothing about backend health.
	g.breaker.Report(err == nil || errors.Is(err, ErrEntryTooLarge))
	return err
}

func (g *GuardedStore) DeleteMatching(ctx context.Context, prefixes []string) (int, error) {
	removed, err := g.Store.DeleteMatching(ctx, prefixes)
	g.breaker.Report(err == nil)
	return removed, err
}

func (g *GuardedStore) Purge(ctx context.Context) error {
	err := g.Store.Purge(ctx)
	g.breaker.Report(err == nil)
	return err
}
