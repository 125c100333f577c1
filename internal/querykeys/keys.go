// Package querykeys builds the canonical cache keys for every dashboard
// endpoint. Client cache keys are the endpoint path plus a sorted query
// string; server keys embed the same path, so one prefix vocabulary drives
// invalidation on both sides.
package querykeys

import (
	"net/url"
	"sort"
	"strings"
)

const apiRoot = "/api"

// Domain names an entity family with its own list endpoint.
type Domain string

const (
	Properties Domain = "properties"
	Bookings   Domain = "bookings"
	Finance    Domain = "finance"
	Tasks      Domain = "tasks"
	Utilities  Domain = "utilities"
	Documents  Domain = "documents"
	Users      Domain = "users"
	Dashboard  Domain = "dashboard"
)

// Domains lists every entity domain in display order.
var Domains = []Domain{Properties, Bookings, Finance, Tasks, Utilities, Documents, Users, Dashboard}

const (
	PropertyIDParam = "propertyId"
	AssigneeParam   = "assigneeId"
)

func (d Domain) All() string {
	return apiRoot + "/" + string(d)
}

func (d Domain) ByID(id string) string {
	return d.All() + "/" + url.PathEscape(id)
}

func (d Domain) ByProperty(propertyID string) string {
	return Build(d.All(), map[string]string{PropertyIDParam: propertyID})
}

func TasksByAssignee(userID string) string {
	return Build(Tasks.All(), map[string]string{AssigneeParam: userID})
}

func DashboardSummary() string {
	return Dashboard.All() + "/summary"
}

func FinanceAnalytics() string {
	return Finance.All() + "/analytics"
}

func FinanceAnalyticsByProperty(propertyID string) string {
	return Build(FinanceAnalytics(), map[string]string{PropertyIDParam: propertyID})
}

func ExpiringDocuments() string {
	return Documents.All() + "/expiring"
}

// Build joins path and params into a key with a deterministic query order.
// Empty param values are dropped.
func Build(path string, params map[string]string) string {
	if len(params) == 0 {
		return path
	}
	names := make([]string, 0, len(params))
	for name, value := range params {
		if value == "" {
			continue
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return path
	}
	sort.Strings(names)
	values := url.Values{}
	for _, name := range names {
		values.Set(name, params[name])
	}
	return path + "?" + values.Encode()
}

// Normalize rewrites a request path and raw query into key form.
func Normalize(path string, rawQuery string) string {
	if path == "" {
		path = "/"
	}
	if rawQuery == "" {
		return path
	}
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return path + "?" + rawQuery
	}
	return path + "?" + values.Encode()
}

// Matches reports whether key falls under prefix: the prefix itself, a
// sub-path of it, or the prefix with a query string.
func Matches(key string, prefix string) bool {
	if prefix == "" {
		return false
	}
	if !strings.HasPrefix(key, prefix) {
		return false
	}
	if len(key) == len(prefix) {
		return true
	}
	switch key[len(prefix)] {
	case '/', '?':
		return true
	}
	return strings.HasSuffix(prefix, "/")
}

// MatchesAny reports whether key falls under any of prefixes.
func MatchesAny(key string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if Matches(key, prefix) {
			return true
		}
	}
	return false
}
