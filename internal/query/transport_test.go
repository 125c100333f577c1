package query

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rental_dashboard/internal/retry"
)

func TestHTTPFetcherRetriesReadsOnly(t *testing.T) {
	var gets, posts atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			posts.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if gets.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("X-Cache", "MISS")
		_, _ = w.Write([]byte(`[{"id":"b1"}]`))
	}))
	defer ts.Close()

	policy := retry.DefaultPolicy()
	policy.Backoff = time.Millisecond
	policy.Jitter = 0
	fetcher := NewHTTPFetcher(ts.URL, "tok", ts.Client())
	fetcher.Retry = policy

	resp, err := fetcher.Fetch(context.Background(), "/api/bookings")
	require.NoError(t, err)
	assert.Equal(t, int32(3), gets.Load())
	assert.Equal(t, "MISS", resp.CacheStatus)
	assert.JSONEq(t, `[{"id":"b1"}]`, string(resp.Body))

	_, err = fetcher.Send(context.Background(), http.MethodPost, "/api/bookings", map[string]string{"guestName": "x"})
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.Status)
	assert.Equal(t, int32(1), posts.Load())
}

func TestHTTPFetcherGivesUpAfterMaxAttempts(t *testing.T) {
	var gets atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		gets.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	fetcher := NewHTTPFetcher(ts.URL, "", ts.Client())
	fetcher.Retry = retry.Policy{MaxAttempts: 2, RetryOnStatus: map[int]bool{http.StatusBadGateway: true}}

	_, err := fetcher.Fetch(context.Background(), "/api/tasks")
	assert.Error(t, err)
	assert.Equal(t, int32(2), gets.Load())
}

func TestHTTPFetcherSendsWritesOnce(t *testing.T) {
	var puts atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		puts.Add(1)
		conn, _, err := w.(http.Hijacker).Hijack()
		if err == nil {
			_ = conn.Close()
		}
	}))
	defer ts.Close()

	fetcher := NewHTTPFetcher(ts.URL, "tok", ts.Client())
	fetcher.Retry = retry.DefaultPolicy()
	fetcher.Retry.Backoff = time.Millisecond

	_, err := fetcher.Send(context.Background(), http.MethodPut, "/api/bookings/b1", map[string]string{"guestName": "x"})
	require.Error(t, err)
	var statusErr *StatusError
	assert.False(t, errors.As(err, &statusErr))
	assert.Equal(t, int32(1), puts.Load())
}

func TestHTTPFetcherRetriesTruncatedBody(t *testing.T) {
	var gets atomic.Int32
	var reasons []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if gets.Add(1) == 1 {
			w.Header().Set("Content-Length", "64")
			_, _ = w.Write([]byte(`[{"id":`))
			return
		}
		_, _ = w.Write([]byte(`[{"id":"b1"}]`))
	}))
	defer ts.Close()

	fetcher := NewHTTPFetcher(ts.URL, "", ts.Client())
	fetcher.Retry = retry.Policy{MaxAttempts: 3, Backoff: time.Millisecond, OnRetry: func(_ int, reason string) {
		reasons = append(reasons, reason)
	}}

	resp, err := fetcher.Fetch(context.Background(), "/api/bookings")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"b1"}]`, string(resp.Body))
	assert.Equal(t, []string{retry.ReasonTruncatedBody}, reasons)
}
