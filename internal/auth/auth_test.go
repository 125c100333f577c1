package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAccounts() []Account {
	return []Account{
		{Principal: Principal{ID: "u-admin", Name: "Ada", Role: RoleAdmin}, Username: "ada", Password: "secret", Token: "tok-admin"},
		{Principal: Principal{ID: "u-staff", Name: "Sam", Role: RoleStaff}, Username: "sam", Password: "pw", Token: "tok-staff"},
	}
}

func TestResolve(t *testing.T) {
	a, err := NewAuthenticator(testAccounts())
	require.NoError(t, err)

	tests := []struct {
		name    string
		header  string
		wantID  string
		wantErr error
	}{
		{name: "anonymous", header: "", wantID: ""},
		{name: "valid", header: "Bearer tok-admin", wantID: "u-admin"},
		{name: "case insensitive scheme", header: "bearer tok-staff", wantID: "u-staff"},
		{name: "unknown token", header: "Bearer nope", wantErr: ErrUnauthorized},
		{name: "malformed", header: "Basic abc def", wantErr: ErrUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			principal, err := a.Resolve(req)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, principal.ID)
		})
	}
}

func TestLogin(t *testing.T) {
	a, err := NewAuthenticator(testAccounts())
	require.NoError(t, err)

	token, principal, err := a.Login("ADA", "secret")
	require.NoError(t, err)
	assert.Equal(t, "tok-admin", token)
	assert.Equal(t, RoleAdmin, principal.Role)

	_, _, err = a.Login("ada", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = a.Login("nobody", "secret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestNewAuthenticatorRejectsDuplicates(t *testing.T) {
	accounts := testAccounts()
	accounts[1].Token = accounts[0].Token
	_, err := NewAuthenticator(accounts)
	assert.Error(t, err)
}

func TestMiddlewareAndRequire(t *testing.T) {
	a, err := NewAuthenticator(testAccounts())
	require.NoError(t, err)

	handler := Middleware(a)(Require(RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(PrincipalFromContext(r.Context()).ID))
	})))

	tests := []struct {
		header string
		status int
	}{
		{"", http.StatusUnauthorized},
		{"Bearer nope", http.StatusUnauthorized},
		{"Bearer tok-staff", http.StatusForbidden},
		{"Bearer tok-admin", http.StatusOK},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, tt.status, rec.Code, tt.header)
	}
}
