package admin

import (
	"context"
	"sync"
	"time"

	"rental_dashboard/internal/cache"
	"rental_dashboard/internal/clock"
	"rental_dashboard/internal/invalidation"
	"rental_dashboard/internal/obs"
)

type Stats struct {
	Backend     string           `json:"backend"`
	Entries     int              `json:"entries"`
	MaxEntries  int              `json:"max_entries"`
	TTLSeconds  float64          `json:"ttl_seconds"`
	Cache       obs.CacheSummary `json:"cache"`
	Groups      []string         `json:"groups"`
	Mutations   int              `json:"mutations"`
	LastSweep   *SweepInfo       `json:"last_sweep,omitempty"`
	Coalescing  *CoalesceInfo    `json:"coalescing,omitempty"`
	GeneratedAt time.Time        `json:"generated_at"`
}

type SweepInfo struct {
	At      time.Time `json:"at"`
	Removed int       `json:"removed"`
	Error   string    `json:"error,omitempty"`
}

type CoalesceInfo struct {
	InFlight      int     `json:"in_flight"`
	OldestSeconds float64 `json:"oldest_seconds"`
}

type StatsConfig struct {
	Store      cache.Store
	Backend    string
	MaxEntries int
	TTL        time.Duration
	Graph      *invalidation.Graph
	Coalescer  *cache.Coalescer
	Metrics    *obs.Metrics
	Clock      clock.Clock
}

// StatsSource assembles Stats from the live store, the metrics registry and
// the sweeper's most recent run.
type StatsSource struct {
	cfg   StatsConfig
	clock clock.Clock

	mu        sync.Mutex
	lastSweep *SweepInfo
}

func NewStatsSource(cfg StatsConfig) *StatsSource {
	return &StatsSource{cfg: cfg, clock: clock.OrReal(cfg.Clock)}
}

// ObserveSweep matches cache.Sweeper.OnSweep.
func (s *StatsSource) ObserveSweep(removed int, err error) {
	if s == nil {
		return
	}
	info := &SweepInfo{At: s.clock.Now(), Removed: removed}
	if err != nil {
		info.Error = err.Error()
	}
	s.mu.Lock()
	s.lastSweep = info
	s.mu.Unlock()
	if err == nil && s.cfg.Store != nil {
		if n, lenErr := s.cfg.Store.Len(context.Background()); lenErr == nil {
			s.cfg.Metrics.SetCacheEntries(obs.LayerServer, n)
		}
	}
}

func (s *StatsSource) Collect(ctx context.Context) (Stats, error) {
	stats := Stats{
		Backend:     s.cfg.Backend,
		MaxEntries:  s.cfg.MaxEntries,
		TTLSeconds:  s.cfg.TTL.Seconds(),
		GeneratedAt: s.clock.Now(),
	}
	if s.cfg.Store != nil {
		n, err := s.cfg.Store.Len(ctx)
		if err != nil {
			return Stats{}, err
		}
		stats.Entries = n
	}
	summary, err := s.cfg.Metrics.CacheSummary(obs.LayerServer)
	if err != nil {
		return Stats{}, err
	}
	stats.Cache = summary
	if s.cfg.Graph != nil {
		stats.Groups = s.cfg.Graph.GroupNames()
		stats.Mutations = len(s.cfg.Graph.Mutations())
	}
	if s.cfg.Coalescer != nil {
		flights := s.cfg.Coalescer.Stats()
		stats.Coalescing = &CoalesceInfo{InFlight: flights.InFlight, OldestSeconds: flights.OldestAge.Seconds()}
	}
	s.mu.Lock()
	if s.lastSweep != nil {
		sweep := *s.lastSweep
		stats.LastSweep = &sweep
	}
	s.mu.Unlock()
	return stats, nil
}

// PurgeRequest selects what to drop: one mutation's groups, one prefix, or
// everything when both are empty.
type PurgeRequest struct {
	Mutation string `json:"mutation,omitempty"`
	Prefix   string `json:"prefix,omitempty"`
}

type PurgeResult struct {
	Scope   string `json:"scope"`
	Removed int    `json:"removed"`
}

type operations struct {
	purger      *cache.Purger
	invalidator *invalidation.ServerInvalidator
}

func (o *operations) purge(ctx context.Context, req PurgeRequest) (PurgeResult, error) {
	switch {
	case req.Mutation != "":
		removed, err := o.invalidator.Invalidate(ctx, invalidation.Mutation(req.Mutation))
		return PurgeResult{Scope: "mutation:" + req.Mutation, Removed: removed}, err
	case req.Prefix != "":
		removed, err := o.purger.PurgePrefixes(ctx, []string{req.Prefix})
		return PurgeResult{Scope: "prefix:" + req.Prefix, Removed: removed}, err
	default:
		return PurgeResult{Scope: "all", Removed: -1}, o.purger.PurgeAll(ctx)
	}
}
