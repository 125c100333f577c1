// Package limits holds the listener and request size limits shared by the
// API and admin servers.
package limits

import (
	"fmt"
	"net/http"
	"time"

	"rental_dashboard/internal/config"
)

const (
	defaultMaxHeaderBytes    = 64 * 1024
	defaultMaxBodyBytes      = 1 << 20
	defaultReadHeaderTimeout = 2 * time.Second
	defaultIdleTimeout       = 30 * time.Second
)

type Limits struct {
	MaxHeaderBytes    int
	MaxBodyBytes      int64
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
}

func Default() Limits {
	return Limits{
		MaxHeaderBytes:    defaultMaxHeaderBytes,
		MaxBodyBytes:      defaultMaxBodyBytes,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		IdleTimeout:       defaultIdleTimeout,
	}
}

func FromConfig(cfg config.ServerConfig) (Limits, error) {
	limits := Default()
	if cfg.MaxHeaderBytes > 0 {
		limits.MaxHeaderBytes = cfg.MaxHeaderBytes
	}
	if cfg.MaxBodyBytes > 0 {
		limits.MaxBodyBytes = cfg.MaxBodyBytes
	} else if cfg.MaxBodyBytes < 0 {
		return Limits{}, fmt.Errorf("max_body_bytes must be non-negative")
	}
	if cfg.ReadHeaderTimeout > 0 {
		limits.ReadHeaderTimeout = cfg.ReadHeaderTimeout
	} else if cfg.ReadHeaderTimeout < 0 {
		return Limits{}, fmt.Errorf("read_header_timeout must be positive")
	}
	limits.ReadTimeout = nonNegative(cfg.ReadTimeout)
	limits.WriteTimeout = nonNegative(cfg.WriteTimeout)
	if cfg.IdleTimeout > 0 {
		limits.IdleTimeout = cfg.IdleTimeout
	}
	return limits, nil
}

// Apply copies the listener limits onto srv.
func (l Limits) Apply(srv *http.Server) {
	srv.MaxHeaderBytes = l.MaxHeaderBytes
	srv.ReadHeaderTimeout = l.ReadHeaderTimeout
	srv.ReadTimeout = l.ReadTimeout
	srv.WriteTimeout = l.WriteTimeout
	srv.IdleTimeout = l.IdleTimeout
}

// LimitBody caps request bodies at MaxBodyBytes. Oversized declared bodies
// are rejected before the handler runs.
func (l Limits) LimitBody(next http.Handler) http.Handler {
	if l.MaxBodyBytes <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > l.MaxBodyBytes {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, l.MaxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
