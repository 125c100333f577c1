package retry

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fastPolicy() Policy {
	p := DefaultPolicy()
	p.Backoff = time.Millisecond
	p.Jitter = 0
	return p
}

func TestRetriesTransientStatus(t *testing.T) {
	statuses := []int{http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusOK}
	var reasons []string
	p := fastPolicy()
	p.OnRetry = func(_ int, reason string) { reasons = append(reasons, reason) }

	calls := 0
	attempts, err := Do(context.Background(), p, func(context.Context) (int, error) {
		status := statuses[calls]
		calls++
		return status, nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []string{"status_503", "status_502"}, reasons)
}

func TestStopsAtMaxAttempts(t *testing.T) {
	dialErr := &net.OpError{Op: "dial", Err: errors.New("refused")}
	attempts, err := Do(context.Background(), fastPolicy(), func(context.Context) (int, error) {
		return 0, fmt.Errorf("GET /api/bookings: %w", dialErr)
	})
	assert.Equal(t, 3, attempts)
	assert.ErrorIs(t, err, dialErr)
}

func TestPermanentFailuresAreNotRetried(t *testing.T) {
	attempts, err := Do(context.Background(), fastPolicy(), func(context.Context) (int, error) {
		return 0, errors.New("bad request body")
	})
	assert.Equal(t, 1, attempts)
	assert.Error(t, err)

	attempts, err = Do(context.Background(), fastPolicy(), func(context.Context) (int, error) {
		return http.StatusNotFound, nil
	})
	assert.Equal(t, 1, attempts)
	assert.NoError(t, err)
}

func TestZeroPolicyRunsOnce(t *testing.T) {
	attempts, _ := Do(context.Background(), Policy{}, func(context.Context) (int, error) {
		return http.StatusServiceUnavailable, nil
	})
	assert.Equal(t, 1, attempts)
}

func TestCancelledContextStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := fastPolicy()
	p.Backoff = time.Hour
	attempts, err := Do(ctx, p, func(context.Context) (int, error) {
		cancel()
		return http.StatusServiceUnavailable, nil
	})
	assert.Equal(t, 1, attempts)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClassifyError(t *testing.T) {
	dnsMissing := &net.DNSError{Err: "no such host", Name: "api.invalid", IsNotFound: true}
	dnsFlaky := &net.DNSError{Err: "server misbehaving", Name: "api.local", IsTemporary: true}
	tests := []struct {
		name      string
		err       error
		reason    string
		retryable bool
	}{
		{name: "nil", err: nil},
		{name: "cancelled", err: fmt.Errorf("GET /api/tasks: %w", context.Canceled)},
		{name: "dial", err: &net.OpError{Op: "dial", Err: errors.New("refused")}, reason: ReasonConnect, retryable: true},
		{name: "refused", err: fmt.Errorf("GET: %w", syscall.ECONNREFUSED), reason: ReasonConnect, retryable: true},
		{name: "unknown host", err: dnsMissing, reason: ReasonConnect},
		{name: "flaky dns", err: dnsFlaky, reason: ReasonConnect, retryable: true},
		{name: "deadline", err: fmt.Errorf("GET: %w", context.DeadlineExceeded), reason: ReasonTimeout, retryable: true},
		{name: "closed keep-alive", err: fmt.Errorf("GET: %w", io.EOF), reason: ReasonConnClosed, retryable: true},
		{name: "reset before reply", err: fmt.Errorf("GET: %w", syscall.ECONNRESET), reason: ReasonConnClosed, retryable: true},
		{name: "truncated body", err: &ReadError{Err: io.ErrUnexpectedEOF}, reason: ReasonTruncatedBody, retryable: true},
		{name: "body too large", err: &ReadError{Err: errors.New("http: request body too large")}},
		{name: "untrusted certificate", err: fmt.Errorf("GET: %w", x509.UnknownAuthorityError{})},
		{name: "other", err: errors.New("bad request body")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason, retryable := ClassifyError(tt.err)
			assert.Equal(t, tt.reason, reason)
			assert.Equal(t, tt.retryable, retryable)
		})
	}
}
