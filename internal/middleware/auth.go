package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/harrierlabs/harrier/internal/httputil"
)

// BearerAuth rejects requests whose Authorization header does not carry the
// expected bearer token. An empty expected token disables the check, which is
// only sensible for local development.
func BearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			presented, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				httputil.WriteError(w, http.StatusUnauthorized, "invalid or missing bearer token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
