// Package breaker trips after a failure rate is exceeded so callers can skip
// a backend that is down instead of waiting on it every time.
package breaker

import (
	"sync"
	"time"

	"rental_dashboard/internal/clock"
)

type State int32

const (
	StateClosed State = iota + 1
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

const (
	defaultWindow   = 10 * time.Second
	defaultOpenFor  = 5 * time.Second
	defaultMinimum  = 5
	defaultRatePct  = 50
	defaultMaxProbe = 1
)

type Config struct {
	FailureRatePercent int
	MinimumRequests    int
	Window             time.Duration
	OpenFor            time.Duration
	HalfOpenProbes     int
	Clock              clock.Clock
	// OnStateChange is called outside the lock after every transition.
	OnStateChange func(from State, to State)
}

type Breaker struct {
	mu sync.Mutex

	cfg   Config
	clock clock.Clock

	state          State
	windowStart    time.Time
	requests       int
	failures       int
	openUntil      time.Time
	probesInFlight int
	probeSuccess   int
}

func New(cfg Config) *Breaker {
	if cfg.FailureRatePercent <= 0 {
		cfg.FailureRatePercent = defaultRatePct
	}
	if cfg.MinimumRequests <= 0 {
		cfg.MinimumRequests = defaultMinimum
	}
	if cfg.Window <= 0 {
		cfg.Window = defaultWindow
	}
	if cfg.OpenFor <= 0 {
		cfg.OpenFor = defaultOpenFor
	}
	if cfg.HalfOpenProbes <= 0 {
		cfg.HalfOpenProbes = defaultMaxProbe
	}
	clk := clock.OrReal(cfg.Clock)
	return &Breaker{cfg: cfg, clock: clk, state: StateClosed, windowStart: clk.Now()}
}

func (b *Breaker) State() State {
	if b == nil {
		return StateClosed
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a call may proceed. Every allowed call must be
// followed by exactly one Report.
func (b *Breaker) Allow() bool {
	if b == nil {
		return true
	}
	b.mu.Lock()
	from := b.state
	now := b.clock.Now()
	if b.state == StateOpen {
		if now.Before(b.openUntil) {
			b.mu.Unlock()
			return false
		}
		b.state = StateHalfOpen
		b.probesInFlight = 0
		b.probeSuccess = 0
	}
	allowed := true
	if b.state == StateHalfOpen {
		if b.probesInFlight >= b.cfg.HalfOpenProbes {
			allowed = false
		} else {
			b.probesInFlight++
		}
	}
	to := b.state
	b.mu.Unlock()
	b.notify(from, to)
	return allowed
}

func (b *Breaker) Report(success bool) {
	if b == nil {
		return
	}
	b.mu.Lock()
	from := b.state
	now := b.clock.Now()
	switch b.state {
	case StateClosed:
		if now.Sub(b.windowStart) > b.cfg.Window {
			b.windowStart = now
			b.requests = 0
			b.failures = 0
		}
		b.requests++
		if !success {
			b.failures++
		}
		if b.requests >= b.cfg.MinimumRequests && b.failures*100/b.requests >= b.cfg.FailureRatePercent {
			b.open(now)
		}
	case StateHalfOpen:
		if b.probesInFlight > 0 {
			b.probesInFlight--
		}
		if !success {
			b.open(now)
			break
		}
		b.probeSuccess++
		if b.probeSuccess >= b.cfg.HalfOpenProbes {
			b.state = StateClosed
			b.windowStart = now
			b.requests = 0
			b.failures = 0
		}
	}
	to := b.state
	b.mu.Unlock()
	b.notify(from, to)
}

func (b *Breaker) open(now time.Time) {
	b.state = StateOpen
	b.openUntil = now.Add(b.cfg.OpenFor)
}

func (b *Breaker) notify(from State, to State) {
	if from != to && b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(from, to)
	}
}
