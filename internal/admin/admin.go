// Package admin exposes cache statistics and manual purges over HTTP and
// gRPC. Both surfaces use the same bearer token.
package admin

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net/http"
	"os"

	"github.com/charmbracelet/log"

	"rental_dashboard/internal/cache"
	"rental_dashboard/internal/invalidation"
	"rental_dashboard/internal/obs"
)

type HandlerConfig struct {
	Auth        *Authenticator
	RateLimiter *RateLimiter
	Stats       *StatsSource
	Purger      *cache.Purger
	Invalidator *invalidation.ServerInvalidator
	Logger      *log.Logger
}

func NewHandler(cfg HandlerConfig) http.Handler {
	h := &handler{
		auth:        cfg.Auth,
		rateLimiter: cfg.RateLimiter,
		stats:       cfg.Stats,
		ops:         &operations{purger: cfg.Purger, invalidator: cfg.Invalidator},
		logger:      obs.OrDiscard(cfg.Logger),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/admin/cache/stats", h.handleStats)
	mux.HandleFunc("/admin/cache/purge", h.handlePurge)
	h.mux = mux
	return h
}

// TLSConfig builds the admin listener TLS settings. With a client CA file,
// clients are asked for certificates that Authenticate then verifies.
func TLSConfig(certFile string, keyFile string, clientCAFile string) (*tls.Config, error) {
	if certFile == "" || keyFile == "" {
		return nil, errors.New("admin cert and key are required")
	}
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, err
	}
	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
		NextProtos:   []string{"http/1.1"},
	}
	if clientCAFile != "" {
		pool, err := loadCertPool(clientCAFile)
		if err != nil {
			return nil, err
		}
		cfg.ClientCAs = pool
		cfg.ClientAuth = tls.RequestClientCert
	}
	return cfg, nil
}

func loadCertPool(file string) (*x509.CertPool, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, errors.New("failed to parse client CA")
	}
	return pool, nil
}
