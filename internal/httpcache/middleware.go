// Package httpcache is the server-side read-through response cache. It sits
// in front of the business handlers, keyed per principal, and stores each
// successful GET response for a TTL.
package httpcache

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"rental_dashboard/internal/auth"
	"rental_dashboard/internal/cache"
	"rental_dashboard/internal/clock"
	"rental_dashboard/internal/obs"
	"rental_dashboard/internal/querykeys"
)

const (
	HeaderCache = "X-Cache"

	StatusHit    = "HIT"
	StatusMiss   = "MISS"
	StatusBypass = "BYPASS"

	DefaultTTL          = 5 * time.Minute
	DefaultCoalesceWait = 2 * time.Second
)

// Headers that describe one delivery rather than the payload.
var uncachedHeaders = []string{"Set-Cookie", HeaderCache, "Age", obs.RequestIDHeader, "Date"}

type Config struct {
	Store cache.Store
	TTL   time.Duration
	// RouteTTL overrides TTL for paths under a prefix; the longest matching
	// prefix wins.
	RouteTTL     map[string]time.Duration
	Coalescer    *cache.Coalescer
	CoalesceWait time.Duration
	// Epoch is shared with the Purger so fills racing a purge are dropped.
	Epoch   *cache.Epoch
	Clock   clock.Clock
	Metrics *obs.Metrics
	Logger  *log.Logger
	Tracer  trace.Tracer
}

type Middleware struct {
	store        cache.Store
	ttl          time.Duration
	routeTTL     map[string]time.Duration
	coalescer    *cache.Coalescer
	coalesceWait time.Duration
	epoch        *cache.Epoch
	clock        clock.Clock
	metrics      *obs.Metrics
	logger       *log.Logger
	tracer       trace.Tracer
}

func New(cfg Config) *Middleware {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	wait := cfg.CoalesceWait
	if wait <= 0 {
		wait = DefaultCoalesceWait
	}
	return &Middleware{
		store:        cfg.Store,
		ttl:          ttl,
		routeTTL:     cfg.RouteTTL,
		coalescer:    cfg.Coalescer,
		coalesceWait: wait,
		epoch:        cfg.Epoch,
		clock:        clock.OrReal(cfg.Clock),
		metrics:      cfg.Metrics,
		logger:       obs.OrDiscard(cfg.Logger),
		tracer:       cfg.Tracer,
	}
}

func (m *Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m == nil || m.store == nil || !cacheable(r) {
			w.Header().Set(HeaderCache, StatusBypass)
			m.record(obs.CacheBypass)
			next.ServeHTTP(w, r)
			return
		}

		principal := auth.PrincipalFromContext(r.Context())
		key := cache.BuildKey(r, principal.ID)

		ctx, span := obs.StartSpan(r.Context(), m.tracer, "httpcache.lookup", attribute.String("cache.path", cache.RequestPath(r)))
		entry, ok := m.lookup(ctx, key)
		if ok {
			span.SetAttributes(attribute.String("cache.status", obs.CacheHit))
			span.End()
			m.record(obs.CacheHit)
			m.serve(w, entry)
			return
		}

		flight, leader := m.coalescer.Start(key)
		if flight != nil && !leader {
			if shared, ok := m.coalescer.Wait(flight, m.coalesceWait); ok {
				span.SetAttributes(attribute.String("cache.status", obs.CacheCoalesced))
				span.End()
				m.record(obs.CacheCoalesced)
				m.serve(w, shared)
				return
			}
		}
		span.SetAttributes(attribute.String("cache.status", obs.CacheMiss))
		span.End()
		m.record(obs.CacheMiss)

		finished := false
		if leader {
			defer func() {
				if !finished {
					m.coalescer.Finish(key, flight, cache.Entry{}, false)
				}
			}()
		}
		buffered := newBufferedWriter()
		entry, stored := m.runAndStore(r, buffered, next, key)
		if leader {
			m.coalescer.Finish(key, flight, entry, stored)
			finished = true
		}
		status := StatusMiss
		if !stored {
			status = StatusBypass
		}
		w.Header().Set(HeaderCache, status)
		if err := buffered.flush(w); err != nil {
			m.logger.Debug("response write failed", "path", r.URL.Path, "err", err)
		}
	})
}

// runAndStore invokes next and stores the captured response. Storage
// failures are logged and counted, never surfaced to the client.
func (m *Middleware) runAndStore(r *http.Request, buffered *bufferedWriter, next http.Handler, key string) (cache.Entry, bool) {
	since := m.epoch.Current()
	next.ServeHTTP(buffered, r)
	if !storable(buffered) {
		return cache.Entry{}, false
	}
	path := cache.RequestPath(r)
	entry := cache.Entry{
		Key:      key,
		Path:     path,
		Status:   buffered.Status(),
		Header:   payloadHeader(buffered.Header()),
		Body:     append([]byte(nil), buffered.Body()...),
		StoredAt: m.clock.Now(),
		TTL:      m.ttlFor(path),
	}
	filled, err := m.epoch.Fill(since, func() error {
		return m.save(r.Context(), entry)
	})
	if err != nil {
		m.metrics.RecordCacheStoreFail(obs.LayerServer, "set")
		m.logger.Warn("cache store failed", "path", path, "err", err)
		return entry, false
	}
	if !filled {
		m.logger.Debug("cache fill dropped after purge", "path", path)
	}
	return entry, filled
}

func (m *Middleware) lookup(ctx context.Context, key string) (entry cache.Entry, ok bool) {
	defer func() {
		if recovered := recover(); recovered != nil {
			m.metrics.RecordCacheStoreFail(obs.LayerServer, "get")
			m.logger.Warn("cache lookup panicked", "panic", recovered)
			entry, ok = cache.Entry{}, false
		}
	}()
	entry, ok, err := m.store.Get(ctx, key)
	if err != nil {
		m.metrics.RecordCacheStoreFail(obs.LayerServer, "get")
		m.logger.Warn("cache lookup failed", "err", err)
		return cache.Entry{}, false
	}
	if ok && entry.Expired(m.clock.Now()) {
		return cache.Entry{}, false
	}
	return entry, ok
}

func (m *Middleware) save(ctx context.Context, entry cache.Entry) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("cache set panicked: %v", recovered)
		}
	}()
	return m.store.Set(ctx, entry)
}

func (m *Middleware) serve(w http.ResponseWriter, entry cache.Entry) {
	dst := w.Header()
	for name, values := range entry.Header {
		dst[name] = append([]string(nil), values...)
	}
	age := m.clock.Now().Sub(entry.StoredAt)
	if age < 0 {
		age = 0
	}
	dst.Set("Age", strconv.Itoa(int(age.Seconds())))
	dst.Set("Content-Length", strconv.Itoa(len(entry.Body)))
	dst.Set(HeaderCache, StatusHit)
	w.WriteHeader(entry.Status)
	_, _ = w.Write(entry.Body)
}

func (m *Middleware) ttlFor(path string) time.Duration {
	best := -1
	ttl := m.ttl
	for prefix, override := range m.routeTTL {
		if override > 0 && querykeys.Matches(path, prefix) && len(prefix) > best {
			best = len(prefix)
			ttl = override
		}
	}
	return ttl
}

func (m *Middleware) record(status string) {
	if m == nil {
		return
	}
	m.metrics.RecordCacheRequest(obs.LayerServer, status)
}

func cacheable(r *http.Request) bool {
	if r.Method != http.MethodGet {
		return false
	}
	for _, directive := range strings.Split(r.Header.Get("Cache-Control"), ",") {
		switch strings.ToLower(strings.TrimSpace(directive)) {
		case "no-store", "no-cache":
			return false
		}
	}
	return true
}

func storable(b *bufferedWriter) bool {
	if b.Status() != http.StatusOK {
		return false
	}
	if b.Header().Get("Set-Cookie") != "" {
		return false
	}
	return !strings.Contains(strings.ToLower(b.Header().Get("Cache-Control")), "no-store")
}

func payloadHeader(header http.Header) http.Header {
	clone := header.Clone()
	for _, name := range uncachedHeaders {
		clone.Del(name)
	}
	return clone
}
