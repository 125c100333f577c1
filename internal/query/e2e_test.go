package query

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"rental_dashboard/internal/api"
	"rental_dashboard/internal/auth"
	"rental_dashboard/internal/cache"
	"rental_dashboard/internal/clock"
	"rental_dashboard/internal/httpcache"
	"rental_dashboard/internal/invalidation"
	"rental_dashboard/internal/querykeys"
	"rental_dashboard/internal/session"
	"rental_dashboard/internal/store"
)

// Both cache layers against a live API: a read after an acknowledged
// mutation must reflect it.
func TestEndToEndReadAfterMutation(t *testing.T) {
	clk := clock.NewFake(time.Time{})
	graph, err := invalidation.Default()
	require.NoError(t, err)
	authenticator, err := auth.NewAuthenticator([]auth.Account{{
		Principal: auth.Principal{ID: "u1", Name: "Mia", Role: auth.RoleManager},
		Token:     "tok",
	}})
	require.NoError(t, err)

	memory := cache.NewMemoryStore(cache.MemoryConfig{Clock: clk})
	srv := api.New(api.Config{
		Repos:       store.NewMemoryRepositories(),
		Auth:        authenticator,
		Cache:       httpcache.New(httpcache.Config{Store: memory, Clock: clk}),
		Invalidator: &invalidation.ServerInvalidator{Graph: graph, Purger: cache.NewPurger(memory)},
		Clock:       clk,
	})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	client := NewClient(Config{
		Cache:     session.NewStore(session.Config{Clock: clk}),
		Transport: NewHTTPFetcher(ts.URL, "tok", ts.Client()),
		Graph:     graph,
		Clock:     clk,
	})
	defer client.Close()
	ctx := context.Background()

	before, err := client.Get(ctx, querykeys.DashboardSummary())
	require.NoError(t, err)
	assert.Equal(t, httpcache.StatusMiss, before.ServerCache)
	assert.Equal(t, int64(0), gjson.GetBytes(before.Data, "properties").Int())

	created, err := client.Mutate(ctx, MutationRequest{
		Method: http.MethodPost,
		Path:   querykeys.Properties.All(),
		Body:   map[string]any{"name": "Lake House", "bedrooms": 2},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, created.Status)
	assert.Equal(t, 1, created.Report.Succeeded)

	after, err := client.Get(ctx, querykeys.DashboardSummary())
	require.NoError(t, err)
	assert.Equal(t, SourceCache, after.Source)
	assert.Equal(t, int64(1), gjson.GetBytes(after.Data, "properties").Int())

	_, err = NewHTTPFetcher(ts.URL, "bad", ts.Client()).Fetch(ctx, querykeys.Bookings.All())
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.Status)
}
