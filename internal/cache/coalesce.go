package cache

import (
	"sync"
	"time"

	"rental_dashboard/internal/clock"
)

const DefaultMaxFlights = 10000

// Flight is one in-progress downstream call for a key. Followers wait on it
// instead of invoking the handler themselves.
type Flight struct {
	done      chan struct{}
	result    Entry
	ok        bool
	startedAt time.Time
}

type Coalescer struct {
	mu         sync.Mutex
	flights    map[string]*Flight
	maxFlights int
	clock      clock.Clock
}

// FlightStats describes the misses currently being shared.
type FlightStats struct {
	InFlight  int
	OldestAge time.Duration
}

func NewCoalescer(maxFlights int, clk clock.Clock) *Coalescer {
	if maxFlights <= 0 {
		maxFlights = DefaultMaxFlights
	}
	return &Coalescer{flights: make(map[string]*Flight), maxFlights: maxFlights, clock: clock.OrReal(clk)}
}

// Start returns the flight for key and whether the caller leads it. A nil
// flight means coalescing is unavailable and the caller should proceed alone.
func (c *Coalescer) Start(key string) (*Flight, bool) {
	if c == nil || key == "" {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.flights[key]; ok {
		return existing, false
	}
	if c.maxFlights > 0 && len(c.flights) >= c.maxFlights {
		return nil, false
	}
	flight := &Flight{done: make(chan struct{}), startedAt: c.clock.Now()}
	c.flights[key] = flight
	return flight, true
}

func (c *Coalescer) Finish(key string, flight *Flight, entry Entry, ok bool) {
	if c == nil || flight == nil {
		return
	}
	c.mu.Lock()
	if current, exists := c.flights[key]; exists && current == flight {
		delete(c.flights, key)
	}
	c.mu.Unlock()
	flight.result = entry
	flight.ok = ok
	close(flight.done)
}

// Wait blocks until the leader finishes or timeout elapses. The boolean
// reports whether a cacheable result was produced in time.
func (c *Coalescer) Wait(flight *Flight, timeout time.Duration) (Entry, bool) {
	if flight == nil || timeout <= 0 {
		return Entry{}, false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-flight.done:
		if !flight.ok {
			return Entry{}, false
		}
		return flight.result.Clone(), true
	case <-timer.C:
		return Entry{}, false
	}
}

// Stats reports how many misses are in flight and how long the oldest has
// been running. A growing age points at a stuck handler.
func (c *Coalescer) Stats() FlightStats {
	if c == nil {
		return FlightStats{}
	}
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	stats := FlightStats{InFlight: len(c.flights)}
	for _, flight := range c.flights {
		if age := now.Sub(flight.startedAt); age > stats.OldestAge {
			stats.OldestAge = age
		}
	}
	return stats
}
