package invalidation

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rental_dashboard/internal/clock"
	"rental_dashboard/internal/obs"
	"rental_dashboard/internal/querykeys"
	"rental_dashboard/internal/session"
)

func newTestInvalidator(t *testing.T, refresher Refresher) (*Invalidator, *session.Store) {
	t.Helper()
	graph, err := Default()
	require.NoError(t, err)
	store := session.NewStore(session.Config{Clock: clock.NewFake(time.Time{})})
	inv := NewInvalidator(Config{Graph: graph, Cache: store, Refresher: refresher, Metrics: obs.NewMetrics()})
	return inv, store
}

func seed(t *testing.T, store *session.Store, keys ...string) {
	t.Helper()
	for _, key := range keys {
		require.NoError(t, store.Set(key, json.RawMessage(`[]`)))
	}
}

func TestBookingMutationEvictsDerivedEntries(t *testing.T) {
	inv, store := newTestInvalidator(t, nil)

	affected := []string{
		querykeys.Bookings.All(),
		querykeys.Bookings.ByProperty("p1"),
		querykeys.Bookings.ByProperty("p2"),
		querykeys.Finance.All(),
		querykeys.DashboardSummary(),
	}
	untouched := []string{querykeys.Tasks.All(), querykeys.Documents.All()}
	seed(t, store, affected...)
	seed(t, store, untouched...)

	report, err := inv.Invalidate(context.Background(), BookingCreated)
	require.NoError(t, err)
	assert.Equal(t, BookingCreated, report.Mutation)
	assert.ElementsMatch(t, affected, report.Evicted)

	for _, key := range affected {
		_, ok := store.Get(key)
		assert.False(t, ok, "%s should be evicted", key)
		assert.True(t, store.IsStale(key))
	}
	for _, key := range untouched {
		_, ok := store.Get(key)
		assert.True(t, ok, "%s should survive", key)
	}
}

func TestRefreshFailuresAreCountedIndependently(t *testing.T) {
	var mu sync.Mutex
	var refreshed []string
	refresher := RefresherFunc(func(_ context.Context, key string) error {
		mu.Lock()
		refreshed = append(refreshed, key)
		mu.Unlock()
		if key == querykeys.Finance.All() {
			return errors.New("finance backend down")
		}
		if key == querykeys.DashboardSummary() {
			panic("boom")
		}
		return nil
	})
	inv, store := newTestInvalidator(t, refresher)
	seed(t, store, querykeys.Bookings.All(), querykeys.Bookings.ByProperty("p1"), querykeys.Finance.All(), querykeys.DashboardSummary())

	report, err := inv.Invalidate(context.Background(), BookingUpdated)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 2, report.Failed)
	assert.Contains(t, report.Errors, querykeys.Finance.All())
	assert.Contains(t, report.Errors, querykeys.DashboardSummary())
	assert.Len(t, refreshed, 4)
}

func TestInvalidateUnknownMutation(t *testing.T) {
	inv, _ := newTestInvalidator(t, nil)
	_, err := inv.Invalidate(context.Background(), "booking.vanished")
	assert.ErrorIs(t, err, ErrUnknownMutation)
}

func TestNothingToRefresh(t *testing.T) {
	called := false
	inv, _ := newTestInvalidator(t, RefresherFunc(func(context.Context, string) error {
		called = true
		return nil
	}))
	report, err := inv.Invalidate(context.Background(), TaskCreated)
	require.NoError(t, err)
	assert.Empty(t, report.Evicted)
	assert.False(t, called)
}

type recordingPurger struct {
	prefixes []string
	err      error
}

func (p *recordingPurger) PurgePrefixes(_ context.Context, prefixes []string) (int, error) {
	p.prefixes = append(p.prefixes, prefixes...)
	return len(prefixes), p.err
}

func TestServerInvalidator(t *testing.T) {
	graph, err := Default()
	require.NoError(t, err)
	purger := &recordingPurger{}
	inv := &ServerInvalidator{Graph: graph, Purger: purger}

	removed, err := inv.Invalidate(context.Background(), DocumentCreated)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)
	assert.ElementsMatch(t, []string{"/api/documents", "/api/documents/expiring", "/api/dashboard/summary"}, purger.prefixes)

	purger.err = errors.New("redis down")
	_, err = inv.Invalidate(context.Background(), DocumentCreated)
	assert.Error(t, err)
}

type fallbackPurger struct {
	recordingPurger
	purgedAll bool
}

func (p *fallbackPurger) PurgeAll(context.Context) error {
	p.purgedAll = true
	return nil
}

func TestServerInvalidatorFallsBackToFullPurge(t *testing.T) {
	graph, err := Default()
	require.NoError(t, err)
	purger := &fallbackPurger{recordingPurger: recordingPurger{err: errors.New("scan failed")}}
	inv := &ServerInvalidator{Graph: graph, Purger: purger}

	_, err = inv.Invalidate(context.Background(), BookingUpdated)
	require.NoError(t, err)
	assert.True(t, purger.purgedAll)

	_, err = inv.Invalidate(context.Background(), Mutation("booking.archived"))
	assert.ErrorIs(t, err, ErrUnknownMutation)
}
