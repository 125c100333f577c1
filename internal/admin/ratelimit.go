package admin

import (
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultRateLimitRPS   = 5
	defaultRateLimitBurst = 10
	defaultMaxFailures    = 20
	defaultBlockDuration  = 10 * time.Minute
)

type RateLimitConfig struct {
	RPS           int
	Burst         int
	MaxFailures   int
	BlockDuration time.Duration
	Now           func() time.Time
}

// RateLimiter keeps a token bucket per client IP and blocks an IP for a
// while after repeated authentication failures.
type RateLimiter struct {
	mu          sync.Mutex
	limiters    map[string]*rate.Limiter
	failures    map[string]*failureState
	rate        rate.Limit
	burst       int
	maxFailures int
	blockFor    time.Duration
	now         func() time.Time
}

type failureState struct {
	count       int
	blockedTill time.Time
}

func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	rps := cfg.RPS
	if rps <= 0 {
		rps = defaultRateLimitRPS
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = defaultRateLimitBurst
	}
	maxFailures := cfg.MaxFailures
	if maxFailures <= 0 {
		maxFailures = defaultMaxFailures
	}
	blockFor := cfg.BlockDuration
	if blockFor <= 0 {
		blockFor = defaultBlockDuration
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &RateLimiter{
		limiters:    make(map[string]*rate.Limiter),
		failures:    make(map[string]*failureState),
		rate:        rate.Limit(rps),
		burst:       burst,
		maxFailures: maxFailures,
		blockFor:    blockFor,
		now:         now,
	}
}

func (l *RateLimiter) Allow(addr string) bool {
	if l == nil {
		return true
	}
	ip := clientIP(addr)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if state := l.failures[ip]; state != nil && now.Before(state.blockedTill) {
		return false
	}
	limiter := l.limiters[ip]
	if limiter == nil {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[ip] = limiter
	}
	return limiter.AllowN(now, 1)
}

func (l *RateLimiter) RecordFailure(addr string) {
	if l == nil {
		return
	}
	ip := clientIP(addr)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	state := l.failures[ip]
	if state == nil {
		state = &failureState{}
		l.failures[ip] = state
	}
	if now.Before(state.blockedTill) {
		return
	}
	state.count++
	if state.count >= l.maxFailures {
		state.blockedTill = now.Add(l.blockFor)
		state.count = 0
	}
}

func (l *RateLimiter) ResetFailures(addr string) {
	if l == nil {
		return
	}
	ip := clientIP(addr)

	l.mu.Lock()
	defer l.mu.Unlock()

	if state := l.failures[ip]; state != nil {
		state.count = 0
	}
}

func clientIP(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
