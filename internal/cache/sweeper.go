package cache

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
)

const DefaultSweepInterval = 10 * time.Minute

// Sweeper periodically removes expired entries. Reads already skip expired
// entries, so the sweep only bounds memory held by keys nobody reads again.
type Sweeper struct {
	Store    Store
	Interval time.Duration
	Logger   *log.Logger
	OnSweep  func(removed int, err error)
}

// Run blocks until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	if s == nil || s.Store == nil {
		return
	}
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

func (s *Sweeper) SweepOnce(ctx context.Context) int {
	removed, err := s.Store.Sweep(ctx)
	if err != nil && s.Logger != nil {
		s.Logger.Warn("cache sweep failed", "err", err)
	} else if removed > 0 && s.Logger != nil {
		s.Logger.Debug("cache sweep", "removed", removed)
	}
	if s.OnSweep != nil {
		s.OnSweep(removed, err)
	}
	return removed
}
