package admin

import (
	"crypto/subtle"
	"crypto/x509"
	"errors"
	"net/http"
	"strings"

	"rental_dashboard/internal/auth"
)

type AuthConfig struct {
	Token        string
	ClientCAFile string
}

type Authenticator struct {
	token     string
	clientCAs *x509.CertPool
}

type AuthError struct {
	Status  int
	Message string
}

func (e *AuthError) Error() string {
	if e == nil {
		return "auth error"
	}
	return e.Message
}

func NewAuthenticator(cfg AuthConfig) (*Authenticator, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("admin token is required")
	}
	a := &Authenticator{token: token}
	if cfg.ClientCAFile != "" {
		pool, err := loadCertPool(cfg.ClientCAFile)
		if err != nil {
			return nil, err
		}
		a.clientCAs = pool
	}
	return a, nil
}

// Authenticate checks the bearer token and, when a client CA is configured,
// the verified client certificate.
func (a *Authenticator) Authenticate(r *http.Request) error {
	if a == nil {
		return &AuthError{Status: http.StatusUnauthorized, Message: "auth unavailable"}
	}
	if a.clientCAs != nil {
		if r.TLS == nil || len(r.TLS.PeerCertificates) == 0 {
			return &AuthError{Status: http.StatusForbidden, Message: "client certificate required"}
		}
		cert := r.TLS.PeerCertificates[0]
		intermediates := x509.NewCertPool()
		for _, chainCert := range r.TLS.PeerCertificates[1:] {
			intermediates.AddCert(chainCert)
		}
		if _, err := cert.Verify(x509.VerifyOptions{
			Roots:         a.clientCAs,
			Intermediates: intermediates,
			KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
		}); err != nil {
			return &AuthError{Status: http.StatusForbidden, Message: "client certificate invalid"}
		}
	}
	return a.CheckToken(r.Header.Get("Authorization"))
}

// CheckToken validates an Authorization header value.
func (a *Authenticator) CheckToken(header string) error {
	if a == nil {
		return &AuthError{Status: http.StatusUnauthorized, Message: "auth unavailable"}
	}
	token, ok := auth.BearerToken(header)
	if !ok || token == "" {
		return &AuthError{Status: http.StatusUnauthorized, Message: "token required"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(a.token)) != 1 {
		return &AuthError{Status: http.StatusUnauthorized, Message: "token invalid"}
	}
	return nil
}
