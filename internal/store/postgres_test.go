package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rental_dashboard/internal/domain"
)

func newTestPostgres(t *testing.T) *Postgres {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p, err := NewPostgres(ctx, dsn)
	if err != nil {
		t.Skipf("Postgres not available, skipping: %v", err)
	}
	t.Cleanup(p.Close)
	return p
}

func TestPostgresCollection(t *testing.T) {
	p := newTestPostgres(t)
	ctx := context.Background()
	// A unique kind keeps runs from seeing each other's rows.
	kind := "booking-test-" + uuid.NewString()
	coll := NewPostgresCollection[domain.Booking](p.pool, kind)
	t.Cleanup(func() {
		_, _ = p.pool.Exec(context.Background(), `DELETE FROM records WHERE kind = $1`, kind)
	})

	require.NoError(t, coll.Create(ctx, booking("b1", "p1")))
	require.NoError(t, coll.Create(ctx, booking("b2", "p2")))
	assert.ErrorIs(t, coll.Create(ctx, booking("b1", "p1")), ErrConflict)

	list, err := coll.List(ctx, Filter{PropertyID: "p2"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "b2", list[0].ID)

	got, err := coll.Get(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "Guest b1", got.GuestName)
	assert.True(t, got.CheckOut.After(got.CheckIn))

	require.NoError(t, coll.Delete(ctx, "b1"))
	_, err = coll.Get(ctx, "b1")
	assert.ErrorIs(t, err, ErrNotFound)
}
