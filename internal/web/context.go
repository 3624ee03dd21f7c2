package web

import (
	"net/http"

	"github.com/JonMunkholm/reconcile/internal/core"
)

// requestMetadata adds the client address and User-Agent to the request
// context for audit events. It runs after TrustedRealIP, so RemoteAddr is
// already the client's address.
func requestMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := core.ContextWithClientIP(r.Context(), r.RemoteAddr)
		ctx = core.ContextWithUserAgent(ctx, r.UserAgent())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
