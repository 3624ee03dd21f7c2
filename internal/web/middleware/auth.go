package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/JonMunkholm/reconcile/internal/config"
	"github.com/JonMunkholm/reconcile/internal/logging"
)

// APIKeyAuth rejects requests whose X-API-Key header does not match one of
// the configured keys. It passes everything through when keys are not
// required.
func APIKeyAuth(cfg config.SecurityConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.RequireAPIKey {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get("X-API-Key")
			status, code := 0, ""
			switch {
			case key == "":
				status, code = http.StatusUnauthorized, "AUTH_MISSING_KEY"
			case !validAPIKey(key, cfg.APIKeys):
				status, code = http.StatusForbidden, "AUTH_INVALID_KEY"
			}
			if status != 0 {
				logging.FromContext(r.Context()).Warn("auth: request rejected",
					"path", r.URL.Path,
					"method", r.Method,
					"code", code,
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(status)
				w.Write([]byte(`{"error":"api key rejected","code":"` + code + `"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// validAPIKey compares key against every configured key in constant time,
// so timing does not reveal which key (if any) matched.
func validAPIKey(key string, keys []string) bool {
	valid := 0
	for _, k := range keys {
		valid |= subtle.ConstantTimeCompare([]byte(key), []byte(k))
	}
	return valid == 1
}
