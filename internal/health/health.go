// Package health runs dependency checks for the liveness and readiness
// endpoints and watches them in the background.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

const DefaultTimeout = 2 * time.Second

// Check reports whether one dependency is usable.
type Check func(ctx context.Context) error

// Result is the outcome of one round of checks.
type Result struct {
	Healthy bool              `json:"healthy"`
	Checks  map[string]string `json:"checks"`
}

type Checker struct {
	timeout time.Duration

	mu     sync.Mutex
	checks map[string]Check
}

func NewChecker(timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Checker{timeout: timeout, checks: make(map[string]Check)}
}

func (c *Checker) Add(name string, check Check) {
	c.mu.Lock()
	c.checks[name] = check
	c.mu.Unlock()
}

// Run executes every check concurrently, each under the checker timeout.
// A panicking check counts as failed.
func (c *Checker) Run(ctx context.Context) Result {
	c.mu.Lock()
	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	checks := make(map[string]Check, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.Unlock()
	sort.Strings(names)

	results := make([]string, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = c.runOne(ctx, checks[name])
		}()
	}
	wg.Wait()

	out := Result{Healthy: true, Checks: make(map[string]string, len(names))}
	for i, name := range names {
		out.Checks[name] = results[i]
		if results[i] != "ok" {
			out.Healthy = false
		}
	}
	return out
}

func (c *Checker) runOne(ctx context.Context, check Check) (status string) {
	defer func() {
		if recover() != nil {
			status = "panic"
		}
	}()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := check(ctx); err != nil {
		return err.Error()
	}
	return "ok"
}

// LiveHandler answers 200 while the process is serving.
func LiveHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeResult(w, http.StatusOK, Result{Healthy: true, Checks: map[string]string{}})
	})
}

// ReadyHandler answers 503 when any check fails.
func (c *Checker) ReadyHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		result := c.Run(r.Context())
		status := http.StatusOK
		if !result.Healthy {
			status = http.StatusServiceUnavailable
		}
		writeResult(w, status, result)
	})
}

func writeResult(w http.ResponseWriter, status int, result Result) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(result)
}
