package cache

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rental_dashboard/internal/clock"
)

func newTestStore(maxEntries int) (*MemoryStore, *clock.Fake) {
	clk := clock.NewFake(time.Time{})
	return NewMemoryStore(MemoryConfig{MaxEntries: maxEntries, Clock: clk}), clk
}

func testEntry(key string, path string, body string, ttl time.Duration) Entry {
	return Entry{
		Key:    key,
		Path:   path,
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": []string{"application/json"}},
		Body:   []byte(body),
		TTL:    ttl,
	}
}

func TestMemoryStoreMissingKey(t *testing.T) {
	store, _ := newTestStore(0)
	_, ok, err := store.Get(context.Background(), "never-set")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStoreSetThenGet(t *testing.T) {
	store, clk := newTestStore(0)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, testEntry("k1", "/api/tasks", `[1,2,3]`, time.Minute)))
	entry, ok, err := store.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `[1,2,3]`, string(entry.Body))
	assert.Equal(t, clk.Now(), entry.StoredAt)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store, _ := newTestStore(0)
	ctx := context.Background()

	original := testEntry("k1", "/api/tasks", `{"a":1}`, time.Minute)
	require.NoError(t, store.Set(ctx, original))
	original.Body[0] = 'X'

	first, _, _ := store.Get(ctx, "k1")
	first.Body[0] = 'Y'
	first.Header.Set("Content-Type", "text/plain")

	second, ok, _ := store.Get(ctx, "k1")
	require.True(t, ok)
	assert.Equal(t, `{"a":1}`, string(second.Body))
	assert.Equal(t, "application/json", second.Header.Get("Content-Type"))
}

func TestMemoryStoreLazyExpiry(t *testing.T) {
	store, clk := newTestStore(0)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, testEntry("k1", "/api/tasks", `[]`, 10*time.Minute)))
	clk.Advance(10 * time.Minute)
	_, ok, _ := store.Get(ctx, "k1")
	assert.True(t, ok, "entry at exactly its ttl is still live")

	clk.Advance(time.Second)
	_, ok, _ = store.Get(ctx, "k1")
	assert.False(t, ok)

	n, _ := store.Len(ctx)
	assert.Equal(t, 0, n, "expired entry removed on read")
}

func TestMemoryStoreSweep(t *testing.T) {
	var expired int
	clk := clock.NewFake(time.Time{})
	store := NewMemoryStore(MemoryConfig{Clock: clk, OnEvict: func(reason string, count int) {
		if reason == EvictReasonExpired {
			expired += count
		}
	}})
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, testEntry("short", "/api/tasks", `[]`, time.Minute)))
	require.NoError(t, store.Set(ctx, testEntry("long", "/api/tasks", `[]`, time.Hour)))
	clk.Advance(2 * time.Minute)

	removed, err := store.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, expired)

	n, _ := store.Len(ctx)
	assert.Equal(t, 1, n)
}

func TestMemoryStoreDeleteMatching(t *testing.T) {
	store, _ := newTestStore(0)
	ctx := context.Background()

	seed := map[string]string{
		"a": "/api/bookings",
		"b": "/api/bookings?propertyId=p1",
		"c": "/api/bookings/b-1",
		"d": "/api/bookingsarchive",
		"e": "/api/tasks",
	}
	for key, path := range seed {
		require.NoError(t, store.Set(ctx, testEntry(key, path, `[]`, time.Minute)))
	}

	removed, err := store.DeleteMatching(ctx, []string{"/api/bookings"})
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	for _, key := range []string{"d", "e"} {
		_, ok, _ := store.Get(ctx, key)
		assert.True(t, ok, key)
	}
}

func TestMemoryStoreLRUCapacity(t *testing.T) {
	store, _ := newTestStore(2)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, testEntry("a", "/a", `1`, time.Minute)))
	require.NoError(t, store.Set(ctx, testEntry("b", "/b", `2`, time.Minute)))
	_, _, _ = store.Get(ctx, "a")
	require.NoError(t, store.Set(ctx, testEntry("c", "/c", `3`, time.Minute)))

	_, okA, _ := store.Get(ctx, "a")
	_, okB, _ := store.Get(ctx, "b")
	_, okC, _ := store.Get(ctx, "c")
	assert.True(t, okA)
	assert.False(t, okB, "least recently used entry evicted")
	assert.True(t, okC)
}

func TestMemoryStoreRejectsOversizedEntry(t *testing.T) {
	store := NewMemoryStore(MemoryConfig{MaxObjectBytes: 4})
	err := store.Set(context.Background(), testEntry("k", "/k", `12345`, time.Minute))
	assert.ErrorIs(t, err, ErrEntryTooLarge)
}

func TestMemoryStorePurge(t *testing.T) {
	store, _ := newTestStore(4)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, testEntry("a", "/a", `1`, time.Minute)))
	require.NoError(t, store.Purge(ctx))
	n, _ := store.Len(ctx)
	assert.Equal(t, 0, n)
}

func TestNilMemoryStore(t *testing.T) {
	var store *MemoryStore
	_, ok, err := store.Get(context.Background(), "k")
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestEpochDropsFillsAcrossPurge(t *testing.T) {
	epoch := &Epoch{}
	since := epoch.Current()
	require.NoError(t, epoch.Purge(func() error { return nil }))

	ran := false
	filled, err := epoch.Fill(since, func() error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.False(t, filled)
	assert.False(t, ran)

	filled, err = epoch.Fill(epoch.Current(), func() error { return nil })
	require.NoError(t, err)
	assert.True(t, filled)

	var nilEpoch *Epoch
	filled, err = nilEpoch.Fill(7, func() error { return nil })
	require.NoError(t, err)
	assert.True(t, filled)
}
