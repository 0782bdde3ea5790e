package handlers

import (
	"net/http"

	"github.com/promptd/promptd/internal/httpserver/deps"
	"github.com/promptd/promptd/internal/logger"
)

// ReloadSeed triggers an immediate reload of the prompt seed file.
func ReloadSeed(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.SeedReloadTrigger == nil {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "no seed file configured"})
			return
		}

		select {
		case d.SeedReloadTrigger <- struct{}{}:
			d.Logger.Info("manual seed reload triggered",
				logger.String("remote_ip", r.RemoteAddr))
			writeJSON(w, http.StatusAccepted, map[string]string{"status": "reload triggered"})
		default:
			d.Logger.Warn("seed reload already in progress",
				logger.String("remote_ip", r.RemoteAddr))
			writeJSON(w, http.StatusConflict, errorResponse{Error: "reload already in progress"})
		}
	}
}
