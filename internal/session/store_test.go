package session

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rental_dashboard/internal/clock"
)

func newTestStore() (*Store, *clock.Fake) {
	clk := clock.NewFake(time.Time{})
	return NewStore(Config{TTL: 10 * time.Minute, FreshFor: 2 * time.Minute, Clock: clk}), clk
}

func TestGetMissingKey(t *testing.T) {
	store, _ := newTestStore()
	for _, key := range []string{"/api/tasks", "", "/api/bookings?propertyId=p1"} {
		_, ok := store.Get(key)
		assert.False(t, ok, key)
	}
}

func TestSetThenGet(t *testing.T) {
	store, _ := newTestStore()
	require.NoError(t, store.Set("/api/tasks", json.RawMessage(`[{"id":"t1"}]`)))

	value, ok := store.Get("/api/tasks")
	require.True(t, ok)
	assert.JSONEq(t, `[{"id":"t1"}]`, string(value))
}

func TestValuesAreNotShared(t *testing.T) {
	store, _ := newTestStore()
	raw := json.RawMessage(`{"n":1}`)
	require.NoError(t, store.Set("/k", raw))
	raw[5] = '9'

	value, _ := store.Get("/k")
	value[5] = '8'

	again, _ := store.Get("/k")
	assert.Equal(t, `{"n":1}`, string(again))
}

func TestSetRejectsInvalidJSON(t *testing.T) {
	store, _ := newTestStore()
	assert.ErrorIs(t, store.Set("/k", json.RawMessage(`{nope`)), ErrInvalidJSON)
}

func TestExpiryWithoutSweep(t *testing.T) {
	store, clk := newTestStore()
	require.NoError(t, store.Set("/api/tasks", json.RawMessage(`[1,2,3]`)))

	clk.Advance(11 * time.Minute)
	_, ok := store.Get("/api/tasks")
	assert.False(t, ok)
	assert.Equal(t, 0, store.Stats().Total, "expired entry dropped on read")
}

func TestPerEntryTTL(t *testing.T) {
	store, clk := newTestStore()
	require.NoError(t, store.SetWithTTL("/short", json.RawMessage(`1`), time.Minute))
	require.NoError(t, store.Set("/long", json.RawMessage(`2`)))

	clk.Advance(90 * time.Second)
	_, shortOK := store.Get("/short")
	_, longOK := store.Get("/long")
	assert.False(t, shortOK)
	assert.True(t, longOK)
}

func TestStaleIsServedButFlagged(t *testing.T) {
	store, clk := newTestStore()
	require.NoError(t, store.Set("/api/tasks", json.RawMessage(`[]`)))
	assert.False(t, store.IsStale("/api/tasks"))

	clk.Advance(3 * time.Minute)
	assert.True(t, store.IsStale("/api/tasks"))
	_, ok := store.Get("/api/tasks")
	assert.True(t, ok, "stale entries remain readable until the ttl")

	assert.True(t, store.IsStale("/missing"))
}

func TestClear(t *testing.T) {
	store, _ := newTestStore()
	keys := []string{"/api/a", "/api/b", "/api/c"}
	for _, key := range keys {
		require.NoError(t, store.Set(key, json.RawMessage(`true`)))
	}

	store.Clear("/api/a")
	_, ok := store.Get("/api/a")
	assert.False(t, ok)
	_, ok = store.Get("/api/b")
	assert.True(t, ok)

	store.Clear()
	for _, key := range keys {
		_, ok := store.Get(key)
		assert.False(t, ok, key)
	}
}

func TestStats(t *testing.T) {
	store, clk := newTestStore()
	require.NoError(t, store.Set("/old", json.RawMessage(`1`)))
	clk.Advance(3 * time.Minute)
	require.NoError(t, store.Set("/new", json.RawMessage(`2`)))
	require.NoError(t, store.SetWithTTL("/gone", json.RawMessage(`3`), time.Second))
	clk.Advance(2 * time.Second)

	assert.Equal(t, Stats{Active: 2, Stale: 1, Expired: 1, Total: 3}, store.Stats())
}

func TestDeleteMatching(t *testing.T) {
	store, _ := newTestStore()
	for _, key := range []string{"/api/bookings", "/api/bookings?propertyId=p1", "/api/tasks"} {
		require.NoError(t, store.Set(key, json.RawMessage(`[]`)))
	}
	removed := store.DeleteMatching([]string{"/api/bookings"})
	assert.Equal(t, []string{"/api/bookings", "/api/bookings?propertyId=p1"}, removed)
	assert.Equal(t, []string{"/api/tasks"}, store.Keys())
}

func TestSetIfGenerationRefusesAfterRemoval(t *testing.T) {
	store, _ := newTestStore()
	before := store.Generation()

	store.DeleteMatching([]string{"/api/bookings"})
	stored, err := store.SetIfGeneration("/api/bookings", json.RawMessage(`[]`), before)
	require.NoError(t, err)
	assert.False(t, stored)
	_, ok := store.Get("/api/bookings")
	assert.False(t, ok)

	current := store.Generation()
	stored, err = store.SetIfGeneration("/api/bookings", json.RawMessage(`[]`), current)
	require.NoError(t, err)
	assert.True(t, stored)

	store.Clear("/api/tasks")
	assert.NotEqual(t, current, store.Generation())

	_, err = store.SetIfGeneration("/api/tasks", json.RawMessage(`{`), store.Generation())
	assert.ErrorIs(t, err, ErrInvalidJSON)
}
