package retry

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

// Reasons reported to Policy.OnRetry.
const (
	ReasonConnect       = "connect"
	ReasonTimeout       = "timeout"
	ReasonConnClosed    = "conn_closed"
	ReasonTruncatedBody = "truncated_body"
)

// ReadError marks a failure while reading a response body, after the server
// already answered. Callers wrap body read errors with it so the classifier
// can tell a truncated reply from a request that never got one.
type ReadError struct {
	Err error
}

func (e *ReadError) Error() string {
	return "read response body: " + e.Err.Error()
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// ClassifyError reports whether err from one API call is worth another
// attempt. Certificate problems, DNS names that do not exist and caller
// cancellation are final.
func ClassifyError(err error) (string, bool) {
	if err == nil || errors.Is(err, context.Canceled) {
		return "", false
	}
	var readErr *ReadError
	if errors.As(err, &readErr) {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, syscall.ECONNRESET) || isTimeout(err) {
			return ReasonTruncatedBody, true
		}
		return "", false
	}
	if isCertificateError(err) {
		return "", false
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ReasonConnect, !dnsErr.IsNotFound
	}
	var opErr *net.OpError
	if (errors.As(err, &opErr) && opErr.Op == "dial") || errors.Is(err, syscall.ECONNREFUSED) {
		return ReasonConnect, true
	}
	if isTimeout(err) {
		return ReasonTimeout, true
	}
	// A pooled keep-alive connection the server already closed fails with a
	// reset or a bare EOF before any response bytes arrive.
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ReasonConnClosed, true
	}
	return "", false
}

func ClassifyStatus(status int, policy Policy) (string, bool) {
	if !policy.RetryOnStatus[status] {
		return "", false
	}
	return fmt.Sprintf("status_%d", status), true
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isCertificateError(err error) bool {
	var unknownAuthority x509.UnknownAuthorityError
	var hostname x509.HostnameError
	var invalid x509.CertificateInvalidError
	return errors.As(err, &unknownAuthority) || errors.As(err, &hostname) || errors.As(err, &invalid)
}
