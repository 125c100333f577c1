package invalidation

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"rental_dashboard/internal/obs"
	"rental_dashboard/internal/session"
)

const DefaultRefreshConcurrency = 4

// Refresher re-fetches one key into the client cache.
type Refresher interface {
	Refresh(ctx context.Context, key string) error
}

type RefresherFunc func(ctx context.Context, key string) error

func (f RefresherFunc) Refresh(ctx context.Context, key string) error {
	return f(ctx, key)
}

// Report summarizes one invalidation. Refresh failures are counted per key;
// one failing key never stops the others.
type Report struct {
	Mutation  Mutation
	Evicted   []string
	Succeeded int
	Failed    int
	Errors    map[string]error
}

type Config struct {
	Graph       *Graph
	Cache       *session.Store
	Refresher   Refresher
	Concurrency int
	Metrics     *obs.Metrics
	Logger      *log.Logger
}

// Invalidator evicts client cache entries affected by a mutation and then
// refreshes the evicted keys.
type Invalidator struct {
	graph       *Graph
	cache       *session.Store
	refresher   Refresher
	concurrency int
	metrics     *obs.Metrics
	logger      *log.Logger
}

func NewInvalidator(cfg Config) *Invalidator {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultRefreshConcurrency
	}
	return &Invalidator{
		graph:       cfg.Graph,
		cache:       cfg.Cache,
		refresher:   cfg.Refresher,
		concurrency: concurrency,
		metrics:     cfg.Metrics,
		logger:      obs.OrDiscard(cfg.Logger),
	}
}

// SetRefresher replaces the refresher, for wiring cycles between the
// invalidator and the query client.
func (i *Invalidator) SetRefresher(refresher Refresher) {
	i.refresher = refresher
}

// Invalidate evicts every key the mutation affects before returning, then
// refreshes them. Only an unknown mutation is an error.
func (i *Invalidator) Invalidate(ctx context.Context, mutation Mutation) (Report, error) {
	if i == nil || i.graph == nil || i.cache == nil {
		return Report{Mutation: mutation}, nil
	}
	prefixes, err := i.graph.Targets(mutation)
	if err != nil {
		return Report{Mutation: mutation}, err
	}
	report := i.InvalidatePrefixes(ctx, prefixes)
	report.Mutation = mutation
	i.metrics.RecordInvalidation(obs.LayerClient, string(mutation), len(report.Evicted))
	i.logger.Debug("client cache invalidated", "mutation", mutation, "evicted", len(report.Evicted),
		"refreshed", report.Succeeded, "failed", report.Failed)
	return report, nil
}

func (i *Invalidator) InvalidatePrefixes(ctx context.Context, prefixes []string) Report {
	report := Report{}
	if i == nil || i.cache == nil {
		return report
	}
	report.Evicted = i.cache.DeleteMatching(prefixes)
	if i.refresher == nil || len(report.Evicted) == 0 {
		return report
	}

	var (
		mu     sync.Mutex
		errs   = make(map[string]error)
		okKeys int
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(i.concurrency)
	for _, key := range report.Evicted {
		group.Go(func() error {
			err := i.refresh(groupCtx, key)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs[key] = err
				return nil
			}
			okKeys++
			return nil
		})
	}
	_ = group.Wait()

	report.Succeeded = okKeys
	report.Failed = len(errs)
	if len(errs) > 0 {
		report.Errors = errs
	}
	i.metrics.RecordRefresh(report.Succeeded, report.Failed)
	return report
}

func (i *Invalidator) refresh(ctx context.Context, key string) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("refresh %s panicked: %v", key, recovered)
		}
	}()
	return i.refresher.Refresh(ctx, key)
}
