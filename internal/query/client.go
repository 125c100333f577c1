// Package query is the client data layer: it answers reads from the session
// cache, goes to the network on miss or staleness, and runs invalidation
// after every successful mutation before reporting it done.
package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"rental_dashboard/internal/clock"
	"rental_dashboard/internal/invalidation"
	"rental_dashboard/internal/obs"
	"rental_dashboard/internal/session"
)

const (
	SourceCache   = "cache"
	SourceNetwork = "network"

	DefaultRevalidateTimeout = 10 * time.Second
)

var ErrUnknownMutation = errors.New("cannot derive mutation for request")

type Result struct {
	Key         string
	Data        json.RawMessage
	Source      string
	Stale       bool
	Age         time.Duration
	ServerCache string
}

type MutationRequest struct {
	Method string
	Path   string
	Body   any
	// Mutation defaults to the one derived from Method and Path.
	Mutation invalidation.Mutation
}

type MutationResult struct {
	Status int
	Body   json.RawMessage
	Report invalidation.Report
}

type Config struct {
	Cache             *session.Store
	Transport         Transport
	Graph             *invalidation.Graph
	Concurrency       int
	RevalidateTimeout time.Duration
	Clock             clock.Clock
	Metrics           *obs.Metrics
	Logger            *log.Logger
}

type Client struct {
	cache             *session.Store
	transport         Transport
	invalidator       *invalidation.Invalidator
	revalidateTimeout time.Duration
	clock             clock.Clock
	metrics           *obs.Metrics
	logger            *log.Logger

	flights    singleflight.Group
	background sync.WaitGroup
}

func NewClient(cfg Config) *Client {
	store := cfg.Cache
	if store == nil {
		store = session.NewStore(session.Config{Clock: cfg.Clock})
	}
	timeout := cfg.RevalidateTimeout
	if timeout <= 0 {
		timeout = DefaultRevalidateTimeout
	}
	c := &Client{
		cache:             store,
		transport:         cfg.Transport,
		revalidateTimeout: timeout,
		clock:             clock.OrReal(cfg.Clock),
		metrics:           cfg.Metrics,
		logger:            obs.OrDiscard(cfg.Logger),
	}
	c.invalidator = invalidation.NewInvalidator(invalidation.Config{
		Graph:       cfg.Graph,
		Cache:       store,
		Refresher:   c,
		Concurrency: cfg.Concurrency,
		Metrics:     cfg.Metrics,
		Logger:      cfg.Logger,
	})
	return c
}

func (c *Client) Cache() *session.Store {
	return c.cache
}

// Get returns the payload for key. A fresh entry is returned as is; a stale
// one is returned flagged and refreshed in the background; otherwise the
// network is asked and the reply cached. Fetch failures leave the cache
// untouched.
func (c *Client) Get(ctx context.Context, key string) (Result, error) {
	if entry, ok := c.cache.Peek(key); ok {
		age := entry.Age(c.clock.Now())
		stale := age > c.cache.FreshFor()
		if stale {
			c.metrics.RecordCacheRequest(obs.LayerClient, obs.CacheStale)
			c.revalidate(key)
		} else {
			c.metrics.RecordCacheRequest(obs.LayerClient, obs.CacheHit)
		}
		return Result{Key: key, Data: entry.Value, Source: SourceCache, Stale: stale, Age: age}, nil
	}
	c.metrics.RecordCacheRequest(obs.LayerClient, obs.CacheMiss)
	return c.load(ctx, key)
}

// Refresh refetches key into the cache. It never joins a fetch that was
// already in flight, since that one may predate the invalidation.
func (c *Client) Refresh(ctx context.Context, key string) error {
	c.flights.Forget(key)
	_, err := c.load(ctx, key)
	return err
}

// Mutate performs a write and, once the server has accepted it, invalidates
// and refreshes the affected cache entries before returning. A write that
// fails without a server reply is invalidated too, since it may have landed.
func (c *Client) Mutate(ctx context.Context, req MutationRequest) (MutationResult, error) {
	mutation := req.Mutation
	if mutation == "" {
		derived, ok := invalidation.FromRequest(req.Method, req.Path)
		if !ok {
			return MutationResult{}, fmt.Errorf("%w: %s %s", ErrUnknownMutation, req.Method, req.Path)
		}
		mutation = derived
	}
	resp, err := c.transport.Send(ctx, req.Method, req.Path, req.Body)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			return MutationResult{}, err
		}
		// No reply means the write may have been applied; evicting is
		// harmless either way.
		report, invErr := c.invalidator.Invalidate(ctx, mutation)
		if invErr != nil {
			c.logger.Warn("invalidation after failed write incomplete", "mutation", mutation, "err", invErr)
		}
		return MutationResult{Report: report}, err
	}
	result := MutationResult{Status: resp.Status, Body: resp.Body}
	report, err := c.invalidator.Invalidate(ctx, mutation)
	result.Report = report
	if err != nil {
		return result, err
	}
	if report.Failed > 0 {
		c.logger.Warn("refresh after mutation incomplete", "mutation", mutation,
			"succeeded", report.Succeeded, "failed", report.Failed)
	}
	return result, nil
}

// Invalidate runs the client side of a mutation that happened elsewhere.
func (c *Client) Invalidate(ctx context.Context, mutation invalidation.Mutation) (invalidation.Report, error) {
	return c.invalidator.Invalidate(ctx, mutation)
}

// Close waits for background revalidations to finish.
func (c *Client) Close() {
	c.background.Wait()
}

func (c *Client) load(ctx context.Context, key string) (Result, error) {
	if c.transport == nil {
		return Result{}, errors.New("query client has no transport")
	}
	value, err, _ := c.flights.Do(key, func() (any, error) {
		generation := c.cache.Generation()
		resp, err := c.transport.Fetch(ctx, key)
		if err != nil {
			return Response{}, err
		}
		stored, err := c.cache.SetIfGeneration(key, resp.Body, generation)
		if err != nil {
			c.metrics.RecordCacheStoreFail(obs.LayerClient, "set")
			c.logger.Warn("session cache store failed", "key", key, "err", err)
		} else if !stored {
			c.logger.Debug("fetch overtaken by invalidation, not cached", "key", key)
		}
		return resp, nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("fetch %s: %w", key, err)
	}
	resp := value.(Response)
	return Result{
		Key:         key,
		Data:        append(json.RawMessage(nil), resp.Body...),
		Source:      SourceNetwork,
		ServerCache: resp.CacheStatus,
	}, nil
}

func (c *Client) revalidate(key string) {
	c.background.Add(1)
	go func() {
		defer c.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.revalidateTimeout)
		defer cancel()
		if _, err := c.load(ctx, key); err != nil {
			c.logger.Debug("background revalidation failed", "key", key, "err", err)
		}
	}()
}
