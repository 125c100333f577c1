package cache

import (
	"context"
	"fmt"
)

// Purger evicts server entries for a set of invalidation prefixes across
// every principal partition.
type Purger struct {
	Store Store
	Epoch *Epoch
}

func NewPurger(store Store) *Purger {
	return &Purger{Store: store, Epoch: &Epoch{}}
}

func (p *Purger) PurgePrefixes(ctx context.Context, prefixes []string) (int, error) {
	if p == nil || p.Store == nil {
		return 0, nil
	}
	removed := 0
	err := p.Epoch.Purge(func() error {
		var err error
		removed, err = p.Store.DeleteMatching(ctx, prefixes)
		return err
	})
	if err != nil {
		return removed, fmt.Errorf("purge %v: %w", prefixes, err)
	}
	return removed, nil
}

func (p *Purger) PurgeAll(ctx context.Context) error {
	if p == nil || p.Store == nil {
		return nil
	}
	return p.Epoch.Purge(func() error {
		return p.Store.Purge(ctx)
	})
}
