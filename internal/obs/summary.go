package obs

// CacheSummary is a point-in-time read of the cache counters for one layer.
type CacheSummary struct {
	Requests      map[string]float64 `json:"requests"`
	HitRatio      float64            `json:"hit_ratio"`
	Evictions     float64            `json:"evictions"`
	Invalidated   float64            `json:"invalidated"`
	StoreFailures float64            `json:"store_failures"`
}

// CacheSummary gathers the registry and folds the cache series for layer.
func (m *Metrics) CacheSummary(layer string) (CacheSummary, error) {
	summary := CacheSummary{Requests: make(map[string]float64)}
	if m == nil {
		return summary, nil
	}
	families, err := m.registry.Gather()
	if err != nil {
		return summary, err
	}
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			labels := make(map[string]string, len(metric.GetLabel()))
			for _, pair := range metric.GetLabel() {
				labels[pair.GetName()] = pair.GetValue()
			}
			if labels["layer"] != layer {
				continue
			}
			value := metric.GetCounter().GetValue()
			switch family.GetName() {
			case "dashboard_cache_requests_total":
				summary.Requests[labels["status"]] += value
			case "dashboard_cache_evictions_total":
				summary.Evictions += value
			case "dashboard_cache_invalidated_entries_total":
				summary.Invalidated += value
			case "dashboard_cache_store_fail_total":
				summary.StoreFailures += value
			}
		}
	}
	hits := summary.Requests[CacheHit] + summary.Requests[CacheCoalesced]
	if lookups := hits + summary.Requests[CacheMiss]; lookups > 0 {
		summary.HitRatio = hits / lookups
	}
	return summary, nil
}
