package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/promptd/promptd/internal/httpserver/deps"
	"github.com/promptd/promptd/internal/logger"
)

// Readyz reports readiness: the process is up and the store answers.
func Readyz(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")

		if d.StorePing != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			err := d.StorePing(ctx)
			cancel()
			if err != nil {
				d.Logger.Warn("readiness probe failed", logger.Error(err))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "store unreachable"})
				return
			}
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
