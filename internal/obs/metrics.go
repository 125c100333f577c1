package obs

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	LayerServer = "server"
	LayerClient = "client"
)

const (
	CacheHit       = "hit"
	CacheMiss      = "miss"
	CacheStale     = "stale"
	CacheBypass    = "bypass"
	CacheCoalesced = "coalesced"
)

type Metrics struct {
	registry           *prometheus.Registry
	requests           *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	cacheRequests      *prometheus.CounterVec
	cacheStoreFail     *prometheus.CounterVec
	cacheEvictions     *prometheus.CounterVec
	cacheInvalidations *prometheus.CounterVec
	cacheInvalidated   *prometheus.CounterVec
	cacheRefresh       *prometheus.CounterVec
	cacheEntries       *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_http_requests_total",
		Help: "Total API requests",
	}, []string{"route", "status_class"})

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dashboard_http_request_duration_seconds",
		Help:    "API request duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	cacheRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_cache_requests_total",
		Help: "Total cache lookups by layer and outcome",
	}, []string{"layer", "status"})

	cacheStoreFail := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_cache_store_fail_total",
		Help: "Total swallowed cache failures",
	}, []string{"layer", "op"})

	cacheEvictions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_cache_evictions_total",
		Help: "Total entries evicted by expiry or capacity",
	}, []string{"layer", "reason"})

	cacheInvalidations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_cache_invalidations_total",
		Help: "Total invalidation runs by mutation type",
	}, []string{"layer", "mutation"})

	cacheInvalidated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_cache_invalidated_entries_total",
		Help: "Total entries removed by invalidation",
	}, []string{"layer"})

	cacheRefresh := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_cache_refresh_total",
		Help: "Total post-invalidation refreshes by result",
	}, []string{"result"})

	cacheEntries := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dashboard_cache_entries",
		Help: "Entries held after the last sweep",
	}, []string{"layer"})

	registry.MustRegister(requests, requestDuration, cacheRequests, cacheStoreFail, cacheEvictions, cacheInvalidations, cacheInvalidated, cacheRefresh, cacheEntries)

	return &Metrics{
		registry:           registry,
		requests:           requests,
		requestDuration:    requestDuration,
		cacheRequests:      cacheRequests,
		cacheStoreFail:     cacheStoreFail,
		cacheEvictions:     cacheEvictions,
		cacheInvalidations: cacheInvalidations,
		cacheInvalidated:   cacheInvalidated,
		cacheRefresh:       cacheRefresh,
		cacheEntries:       cacheEntries,
	}
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveRequest(route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	defer func() {
		_ = recover()
	}()

	route = defaultString(route, "unmatched")
	m.requests.WithLabelValues(route, statusClass(status)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

func (m *Metrics) RecordCacheRequest(layer string, status string) {
	if m == nil {
		return
	}
	defer func() {
		_ = recover()
	}()

	m.cacheRequests.WithLabelValues(layer, defaultString(status, "unknown")).Inc()
}

func (m *Metrics) RecordCacheStoreFail(layer string, op string) {
	if m == nil {
		return
	}
	defer func() {
		_ = recover()
	}()

	m.cacheStoreFail.WithLabelValues(layer, defaultString(op, "unknown")).Inc()
}

func (m *Metrics) RecordEviction(layer string, reason string, count int) {
	if m == nil || count <= 0 {
		return
	}
	defer func() {
		_ = recover()
	}()

	m.cacheEvictions.WithLabelValues(layer, defaultString(reason, "unknown")).Add(float64(count))
}

func (m *Metrics) RecordInvalidation(layer string, mutation string, removed int) {
	if m == nil {
		return
	}
	defer func() {
		_ = recover()
	}()

	m.cacheInvalidations.WithLabelValues(layer, defaultString(mutation, "manual")).Inc()
	if removed > 0 {
		m.cacheInvalidated.WithLabelValues(layer).Add(float64(removed))
	}
}

func (m *Metrics) RecordRefresh(succeeded int, failed int) {
	if m == nil {
		return
	}
	defer func() {
		_ = recover()
	}()

	if succeeded > 0 {
		m.cacheRefresh.WithLabelValues("ok").Add(float64(succeeded))
	}
	if failed > 0 {
		m.cacheRefresh.WithLabelValues("error").Add(float64(failed))
	}
}

func (m *Metrics) SetCacheEntries(layer string, count int) {
	if m == nil {
		return
	}
	defer func() {
		_ = recover()
	}()

	m.cacheEntries.WithLabelValues(layer).Set(float64(count))
}

func statusClass(status int) string {
	if status <= 0 {
		return "unknown"
	}
	class := status / 100
	return fmt.Sprintf("%dxx", class)
}
