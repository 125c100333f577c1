// Package testutil holds helpers shared by package tests.
package testutil

import (
	"testing"
	"time"
)

// Eventually polls fn until it returns nil or timeout passes.
func Eventually(t *testing.T, timeout time.Duration, interval time.Duration, fn func() error) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	var lastErr error
	for {
		lastErr = fn()
		if lastErr == nil {
			return
		}
		if !time.Now().Before(deadline) {
			break
		}
		time.Sleep(interval)
	}
	t.Fatalf("condition not met within %s: %v", timeout, lastErr)
}
