package invalidation

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromRequest(t *testing.T) {
	cases := []struct {
		method string
		path   string
		want   Mutation
		ok     bool
	}{
		{http.MethodPost, "/api/bookings", BookingCreated, true},
		{http.MethodPut, "/api/bookings/b1", BookingUpdated, true},
		{http.MethodPatch, "/api/tasks/t1", TaskUpdated, true},
		{http.MethodDelete, "/api/documents/d1", DocumentDeleted, true},
		{http.MethodPost, "/api/finance", TransactionCreated, true},
		{http.MethodGet, "/api/bookings", "", false},
		{http.MethodPost, "/api/login", "", false},
		{http.MethodPost, "/admin/cache/purge", "", false},
	}
	for _, tc := range cases {
		got, ok := FromRequest(tc.method, tc.path)
		assert.Equal(t, tc.ok, ok, "%s %s", tc.method, tc.path)
		assert.Equal(t, tc.want, got, "%s %s", tc.method, tc.path)
	}
	for _, m := range Known {
		assert.Contains(t, []string{"created", "updated", "deleted"}, string(m[len(m)-7:]), "mutation %s", m)
	}
}
