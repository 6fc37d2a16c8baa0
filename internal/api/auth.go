package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// BearerAuth requires a matching bearer token on every request. An empty
// token disables the check entirely: a single-user local install runs open
// unless one is configured.
func BearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !tokenMatches(r, token) {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// tokenMatches compares the request's bearer token against want in constant
// time.
func tokenMatches(r *http.Request, want string) bool {
	header := r.Header.Get("Authorization")
	got, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
