package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/JonMunkholm/archive/internal/config"
)

// APIKeyAuth returns middleware that checks the X-API-Key header, or a
// Bearer token, against the configured keys. When RequireAPIKey is false
// every request passes. When it is true and no keys are configured every
// request is rejected.
func APIKeyAuth(cfg *config.SecurityConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.RequireAPIKey {
				next.ServeHTTP(w, r)
				return
			}

			key := requestKey(r)
			switch {
			case key == "":
				slog.Warn("auth: missing API key", "path", r.URL.Path, "method", r.Method, "ip", ClientIP(r))
				deny(w, http.StatusUnauthorized, "missing API key", "AUTH_MISSING_KEY")
				return
			case !isValidAPIKey(key, cfg.APIKeys):
				slog.Warn("auth: invalid API key", "path", r.URL.Path, "method", r.Method, "ip", ClientIP(r))
				deny(w, http.StatusForbidden, "invalid API key", "AUTH_INVALID_KEY")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func requestKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

func deny(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + message + `","code":"` + code + `"}`))
}

// isValidAPIKey compares key against every configured key in constant time,
// whichever matches.
func isValidAPIKey(key string, validKeys []string) bool {
	valid := 0
	for _, validKey := range validKeys {
		valid |= subtle.ConstantTimeCompare([]byte(key), []byte(validKey))
	}
	return valid == 1
}
