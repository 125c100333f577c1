package obs

import "time"

// RequestContext carries the per-request facts written to the access log.
type RequestContext struct {
	RequestID   string
	Method      string
	Path        string
	Route       string
	Principal   string
	Status      int
	Duration    time.Duration
	BytesOut    int64
	CacheStatus string
	UserAgent   string
	RemoteAddr  string
}
