// Package auth resolves request principals from bearer tokens issued by the
// demo login. Credentials come from configuration; this is not a hardened
// identity system.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleOwner   Role = "owner"
	RoleStaff   Role = "staff"
)

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type Principal struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role Role   `json:"role"`
}

func (p Principal) Anonymous() bool {
	return p.ID == ""
}

func (p Principal) HasRole(roles ...Role) bool {
	for _, role := range roles {
		if p.Role == role {
			return true
		}
	}
	return false
}

// Account is one configured demo login.
type Account struct {
	Principal
	Username string
	Password string
	Token    string
}

type Authenticator struct {
	byToken    map[string]Principal
	byUsername map[string]Account
}

func NewAuthenticator(accounts []Account) (*Authenticator, error) {
	a := &Authenticator{
		byToken:    make(map[string]Principal, len(accounts)),
		byUsername: make(map[string]Account, len(accounts)),
	}
	for _, account := range accounts {
		token := strings.TrimSpace(account.Token)
		if account.ID == "" || token == "" {
			return nil, errors.New("account id and token are required")
		}
		if _, dup := a.byToken[token]; dup {
			return nil, errors.New("duplicate account token")
		}
		a.byToken[token] = account.Principal
		if account.Username != "" {
			a.byUsername[strings.ToLower(account.Username)] = account
		}
	}
	return a, nil
}

// Resolve returns the principal for a request. Requests without an
// Authorization header are anonymous; a header with an unknown token is
// ErrUnauthorized.
func (a *Authenticator) Resolve(r *http.Request) (Principal, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return Principal{}, nil
	}
	token, ok := bearerToken(header)
	if !ok || a == nil {
		return Principal{}, ErrUnauthorized
	}
	principal, ok := a.byToken[token]
	if !ok {
		return Principal{}, ErrUnauthorized
	}
	return principal, nil
}

// Login checks demo credentials and returns the account's token.
func (a *Authenticator) Login(username string, password string) (string, Principal, error) {
	if a == nil {
		return "", Principal{}, ErrInvalidCredentials
	}
	account, ok := a.byUsername[strings.ToLower(strings.TrimSpace(username))]
	if !ok || subtle.ConstantTimeCompare([]byte(account.Password), []byte(password)) != 1 {
		return "", Principal{}, ErrInvalidCredentials
	}
	return account.Token, account.Principal, nil
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, principal)
}

func PrincipalFromContext(ctx context.Context) Principal {
	principal, _ := ctx.Value(principalKey{}).(Principal)
	return principal
}

func bearerToken(header string) (string, bool) {
	if header == "" {
		return "", false
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return "", false
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	return bearerToken(header)
}
