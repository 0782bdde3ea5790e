package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/promptd/promptd/internal/httpserver/deps"
	"github.com/promptd/promptd/internal/logger"
)

// GetDefaultPrompt handles GET /api/prompts/default?namespace=ns.
// Without a namespace it falls back to a capped full scan.
func GetDefaultPrompt(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := d.Resolver.GetDefault(r.Context(), r.URL.Query().Get("namespace"))
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// SetDefaultPrompt handles POST /api/prompts/{id}/default.
func SetDefaultPrompt(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		p, err := d.Resolver.SetDefault(r.Context(), id, r.URL.Query().Get("namespace"))
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// VisionDefaultPrompt handles GET /api/prompts/vision-default: the fixed
// runtime fallback used when an inbound request names no prompt.
func VisionDefaultPrompt(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := d.Resolver.FindDefaultVisionPrompt(r.Context())
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// SyncNamespaceDefaults handles POST /api/prompts/sync/{namespace}.
func SyncNamespaceDefaults(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ns := chi.URLParam(r, "namespace")
		res, err := d.Resolver.SyncNamespace(r.Context(), ns)
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		d.Logger.Info("namespace sync requested",
			logger.String("namespace", ns),
			logger.Int("demoted", len(res.Demoted)))
		writeJSON(w, http.StatusOK, res)
	}
}

// SyncAllDefaults handles POST /api/prompts/sync.
func SyncAllDefaults(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results, err := d.Resolver.SyncAll(r.Context())
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		d.Logger.Info("full default sync requested",
			logger.Int("namespaces", len(results)))
		writeJSON(w, http.StatusOK, results)
	}
}
