package admin

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"rental_dashboard/internal/cache"
	"rental_dashboard/internal/clock"
	"rental_dashboard/internal/invalidation"
	"rental_dashboard/internal/obs"
)

const testToken = "admin-secret"

type adminFixture struct {
	store     *cache.MemoryStore
	stats     *StatsSource
	handler   http.Handler
	purger    *cache.Purger
	inv       *invalidation.ServerInvalidator
	coalescer *cache.Coalescer
	clock     *clock.Fake
}

func newAdminFixture(t *testing.T, limiter *RateLimiter) *adminFixture {
	t.Helper()
	clk := clock.NewFake(time.Time{})
	memory := cache.NewMemoryStore(cache.MemoryConfig{Clock: clk, MaxEntries: 100})
	graph, err := invalidation.Default()
	require.NoError(t, err)
	metrics := obs.NewMetrics()
	authenticator, err := NewAuthenticator(AuthConfig{Token: testToken})
	require.NoError(t, err)

	purger := cache.NewPurger(memory)
	inv := &invalidation.ServerInvalidator{Graph: graph, Purger: purger, Metrics: metrics}
	coalescer := cache.NewCoalescer(0, clk)
	stats := NewStatsSource(StatsConfig{
		Store: memory, Backend: "memory", MaxEntries: 100, TTL: 5 * time.Minute,
		Graph: graph, Coalescer: coalescer, Metrics: metrics, Clock: clk,
	})
	metrics.RecordCacheRequest(obs.LayerServer, obs.CacheHit)
	metrics.RecordCacheRequest(obs.LayerServer, obs.CacheMiss)

	seed := func(path string) {
		require.NoError(t, memory.Set(context.Background(), cache.Entry{
			Key: cache.ComposeKey(http.MethodGet, path, "u1"), Path: path, Status: 200, TTL: time.Minute,
		}))
	}
	seed("/api/bookings")
	seed("/api/dashboard/summary")
	seed("/api/properties")

	handler := NewHandler(HandlerConfig{
		Auth: authenticator, RateLimiter: limiter, Stats: stats, Purger: purger, Invalidator: inv,
	})
	return &adminFixture{store: memory, stats: stats, handler: handler, purger: purger, inv: inv, coalescer: coalescer, clock: clk}
}

func (f *adminFixture) do(method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestStatsRequiresToken(t *testing.T) {
	f := newAdminFixture(t, nil)

	missing := f.do(http.MethodGet, "/admin/cache/stats", "", "")
	assert.Equal(t, http.StatusUnauthorized, missing.Code)
	assert.Equal(t, "token required", gjson.Get(missing.Body.String(), "error").String())

	wrong := f.do(http.MethodGet, "/admin/cache/stats", "nope", "")
	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.NotEmpty(t, wrong.Header().Get(obs.RequestIDHeader))
}

func TestStats(t *testing.T) {
	f := newAdminFixture(t, nil)
	f.stats.ObserveSweep(2, nil)

	rec := f.do(http.MethodGet, "/admin/cache/stats", testToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Equal(t, "memory", gjson.Get(body, "backend").String())
	assert.Equal(t, int64(3), gjson.Get(body, "entries").Int())
	assert.Equal(t, int64(100), gjson.Get(body, "max_entries").Int())
	assert.Equal(t, 300.0, gjson.Get(body, "ttl_seconds").Float())
	assert.InDelta(t, 0.5, gjson.Get(body, "cache.hit_ratio").Float(), 0.0001)
	assert.Equal(t, int64(21), gjson.Get(body, "mutations").Int())
	assert.Equal(t, int64(2), gjson.Get(body, "last_sweep.removed").Int())
	assert.Contains(t, gjson.Get(body, "groups").String(), "dashboard")

	assert.Equal(t, http.StatusMethodNotAllowed, f.do(http.MethodPost, "/admin/cache/stats", testToken, "").Code)
}

func TestStatsReportSharedMisses(t *testing.T) {
	f := newAdminFixture(t, nil)

	idle := f.do(http.MethodGet, "/admin/cache/stats", testToken, "").Body.String()
	assert.Equal(t, int64(0), gjson.Get(idle, "coalescing.in_flight").Int())

	flight, leader := f.coalescer.Start(cache.ComposeKey(http.MethodGet, "/api/finance", "u1"))
	require.True(t, leader)
	f.clock.Advance(4 * time.Second)

	busy := f.do(http.MethodGet, "/admin/cache/stats", testToken, "").Body.String()
	assert.Equal(t, int64(1), gjson.Get(busy, "coalescing.in_flight").Int())
	assert.Equal(t, 4.0, gjson.Get(busy, "coalescing.oldest_seconds").Float())

	f.coalescer.Finish(cache.ComposeKey(http.MethodGet, "/api/finance", "u1"), flight, cache.Entry{}, false)
	done := f.do(http.MethodGet, "/admin/cache/stats", testToken, "").Body.String()
	assert.Equal(t, int64(0), gjson.Get(done, "coalescing.in_flight").Int())
}

func TestPurgeByMutation(t *testing.T) {
	f := newAdminFixture(t, nil)

	rec := f.do(http.MethodPost, "/admin/cache/purge", testToken, `{"mutation":"booking.updated"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "mutation:booking.updated", gjson.Get(rec.Body.String(), "scope").String())
	assert.Equal(t, int64(2), gjson.Get(rec.Body.String(), "removed").Int())

	n, err := f.store.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	bad := f.do(http.MethodPost, "/admin/cache/purge", testToken, `{"mutation":"booking.archived"}`)
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestPurgeByPrefixAndAll(t *testing.T) {
	f := newAdminFixture(t, nil)

	rec := f.do(http.MethodPost, "/admin/cache/purge", testToken, `{"prefix":"/api/properties"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), gjson.Get(rec.Body.String(), "removed").Int())

	both := f.do(http.MethodPost, "/admin/cache/purge", testToken, `{"prefix":"/api","mutation":"task.created"}`)
	assert.Equal(t, http.StatusBadRequest, both.Code)

	all := f.do(http.MethodPost, "/admin/cache/purge", testToken, "")
	require.Equal(t, http.StatusOK, all.Code)
	assert.Equal(t, "all", gjson.Get(all.Body.String(), "scope").String())
	n, err := f.store.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRepeatedAuthFailuresBlockClient(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{RPS: 100, Burst: 100, MaxFailures: 3, BlockDuration: time.Minute})
	f := newAdminFixture(t, limiter)

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/admin/cache/stats", "bad", "").Code)
	}
	blocked := f.do(http.MethodGet, "/admin/cache/stats", testToken, "")
	assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
}
