package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"

	"rental_dashboard/internal/admin"
	"rental_dashboard/internal/api"
	"rental_dashboard/internal/auth"
	"rental_dashboard/internal/cache"
	"rental_dashboard/internal/httpcache"
	"rental_dashboard/internal/invalidation"
	"rental_dashboard/internal/limits"
	"rental_dashboard/internal/obs"
	"rental_dashboard/internal/server"
	"rental_dashboard/internal/store"
)

const adminToken = "admin-secret"

var accounts = []auth.Account{
	{Principal: auth.Principal{ID: "u-manager", Name: "Manager", Role: auth.RoleManager}, Username: "manager", Password: "pw", Token: "manager-token"},
	{Principal: auth.Principal{ID: "u-owner", Name: "Owner", Role: auth.RoleOwner}, Username: "owner", Password: "pw", Token: "owner-token"},
	{Principal: auth.Principal{ID: "u-staff1", Name: "Staff One", Role: auth.RoleStaff}, Username: "staff1", Password: "pw", Token: "staff1-token"},
	{Principal: auth.Principal{ID: "u-staff2", Name: "Staff Two", Role: auth.RoleStaff}, Username: "staff2", Password: "pw", Token: "staff2-token"},
}

type stackOptions struct {
	Cache        cache.Store
	Repos        *store.Repositories
	MaxBodyBytes int64
	LogLevel     log.Level
}

type stack struct {
	t        *testing.T
	apiURL   string
	adminURL string
	cache    cache.Store
	logs     *syncBuffer
	client   *http.Client
}

// syncBuffer lets the server goroutines log while the test reads.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func startStack(t *testing.T, opts stackOptions) *stack {
	t.Helper()

	logs := &syncBuffer{}
	logger := log.NewWithOptions(logs, log.Options{Level: opts.LogLevel, Formatter: log.LogfmtFormatter})
	metrics := obs.NewMetrics()

	cacheStore := opts.Cache
	if cacheStore == nil {
		cacheStore = cache.NewMemoryStore(cache.MemoryConfig{})
	}
	repos := store.NewMemoryRepositories()
	if opts.Repos != nil {
		repos = *opts.Repos
	}

	graph, err := invalidation.Default()
	require.NoError(t, err)
	purger := cache.NewPurger(cacheStore)
	invalidator := &invalidation.ServerInvalidator{Graph: graph, Purger: purger, Metrics: metrics, Logger: logger}

	authenticator, err := auth.NewAuthenticator(accounts)
	require.NoError(t, err)
	apiServer := api.New(api.Config{
		Repos:       repos,
		Auth:        authenticator,
		Cache:       httpcache.New(httpcache.Config{Store: cacheStore, TTL: time.Minute, Epoch: purger.Epoch, Metrics: metrics, Logger: logger}),
		Invalidator: invalidator,
		Metrics:     metrics,
		Logger:      logger,
	})

	adminAuth, err := admin.NewAuthenticator(admin.AuthConfig{Token: adminToken})
	require.NoError(t, err)
	adminHandler := admin.NewHandler(admin.HandlerConfig{
		Auth:        adminAuth,
		RateLimiter: admin.NewRateLimiter(admin.RateLimitConfig{RPS: 100, Burst: 100}),
		Stats:       admin.NewStatsSource(admin.StatsConfig{Store: cacheStore, Backend: "memory", Graph: graph, Metrics: metrics}),
		Purger:      purger,
		Invalidator: invalidator,
		Logger:      logger,
	})

	lim := limits.Default()
	if opts.MaxBodyBytes > 0 {
		lim.MaxBodyBytes = opts.MaxBodyBytes
	}
	srv, err := server.Start([]server.Listener{
		{Name: "api", Addr: "127.0.0.1:0", Handler: apiServer.Handler()},
		{Name: "admin", Addr: "127.0.0.1:0", Handler: adminHandler},
	}, server.Options{Limits: lim, Logger: logger})
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })

	return &stack{
		t:        t,
		apiURL:   "http://" + srv.Addr("api"),
		adminURL: "http://" + srv.Addr("admin"),
		cache:    cacheStore,
		logs:     logs,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

type result struct {
	Status int
	Header http.Header
	Body   []byte
}

func (r result) decode(t *testing.T, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(r.Body, dst), string(r.Body))
}

func (s *stack) do(method string, url string, token string, body any) result {
	s.t.Helper()
	var reader io.Reader
	switch v := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(v)
	default:
		data, err := json.Marshal(v)
		require.NoError(s.t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(s.t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.client.Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(s.t, err)
	return result{Status: resp.StatusCode, Header: resp.Header, Body: data}
}

func (s *stack) get(path string, token string) result {
	s.t.Helper()
	return s.do(http.MethodGet, s.apiURL+path, token, nil)
}

func (s *stack) post(path string, token string, body any) result {
	s.t.Helper()
	return s.do(http.MethodPost, s.apiURL+path, token, body)
}
