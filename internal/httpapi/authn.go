package httpapi

import (
	"net/http"
	"strings"

	"amanat.org/internal/auth"
)

const authHeader = "Authorization"

// withAuth attaches the bearer identity to the request context. Requests
// without a token pass through anonymously; the engine rejects anonymous
// writes.
func (a *API) withAuth(next http.Handler) http.Handler {
	if a == nil || a.auth == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get(authHeader))
		if r.Method == http.MethodOptions || header == "" {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := auth.BearerToken(header)
		if !ok {
			writeError(w, r, http.StatusUnauthorized, "invalid authorization scheme")
			return
		}
		identity, err := a.auth.Identity(token)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := auth.ContextWithUser(r.Context(), identity)
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
