package mw

import (
	"net/http"
	"strings"

	"github.com/promptd/promptd/internal/logger"
)

// Permission levels of the static token table.
const (
	PermRead  = "read"
	PermWrite = "write"
)

// Auth is a bearer-token gate over a static token -> permission table.
// Write permission implies read. Unknown or missing tokens get 401,
// a known token short of the required permission gets 403.
func Auth(tokens map[string]string, required string, log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				w.Header().Set("WWW-Authenticate", "Bearer")
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}

			perm, ok := tokens[token]
			if !ok {
				log.Warn("rejected unknown token",
					logger.String("path", r.URL.Path))
				w.Header().Set("WWW-Authenticate", "Bearer")
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			if required == PermWrite && perm != PermWrite {
				log.Warn("rejected insufficient permission",
					logger.String("path", r.URL.Path),
					logger.String("permission", perm))
				http.Error(w, "write permission required", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return ""
}
