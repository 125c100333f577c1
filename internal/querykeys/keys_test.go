package querykeys

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuilders(t *testing.T) {
	assert.Equal(t, "/api/bookings", Bookings.All())
	assert.Equal(t, "/api/bookings?propertyId=p+1", Bookings.ByProperty("p 1"))
	assert.Equal(t, "/api/properties/abc", Properties.ByID("abc"))
	assert.Equal(t, "/api/tasks?assigneeId=u1", TasksByAssignee("u1"))
	assert.Equal(t, "/api/dashboard/summary", DashboardSummary())
	assert.Equal(t, "/api/finance/analytics?propertyId=p1", FinanceAnalyticsByProperty("p1"))
	assert.Equal(t, "/api/documents/expiring", ExpiringDocuments())
}

func TestBuildDropsEmptyParams(t *testing.T) {
	assert.Equal(t, "/api/tasks", Build("/api/tasks", map[string]string{"propertyId": ""}))
	assert.Equal(t, "/api/tasks?a=1&b=2", Build("/api/tasks", map[string]string{"b": "2", "a": "1"}))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "/", Normalize("", ""))
	assert.Equal(t, "/api/tasks?a=1&b=2", Normalize("/api/tasks", "b=2&a=1"))
	assert.Equal(t, "/api/tasks?%zz", Normalize("/api/tasks", "%zz"))
}

func TestMatches(t *testing.T) {
	tests := []struct {
		key    string
		prefix string
		want   bool
	}{
		{"/api/bookings", "/api/bookings", true},
		{"/api/bookings?propertyId=p1", "/api/bookings", true},
		{"/api/bookings/b1", "/api/bookings", true},
		{"/api/bookingsarchive", "/api/bookings", false},
		{"/api/tasks", "/api/bookings", false},
		{"/api/anything", "/api/", true},
		{"/api/bookings", "", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Matches(tt.key, tt.prefix), "%s under %s", tt.key, tt.prefix)
	}
}
