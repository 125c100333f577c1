package auth

import (
	"encoding/json"
	"net/http"
)

// Middleware attaches the resolved principal to the request context and
// rejects requests carrying an unknown token.
func Middleware(a *Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := a.Resolve(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "token invalid")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

// Require allows authenticated principals holding any of roles. With no
// roles, any authenticated principal passes.
func Require(roles ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := PrincipalFromContext(r.Context())
			if principal.Anonymous() {
				writeError(w, http.StatusUnauthorized, "token required")
				return
			}
			if len(roles) > 0 && !principal.HasRole(roles...) {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
