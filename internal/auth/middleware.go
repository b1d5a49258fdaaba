package auth

import (
	"net/http"
	"strings"
)

// AppTokenMiddleware copies the x-app-token header into the request context
func AppTokenMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimSpace(r.Header.Get(AppTokenHeader))
		if token == "" {
			// Handlers decide whether a token is required
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithAppToken(r.Context(), token)))
	})
}
