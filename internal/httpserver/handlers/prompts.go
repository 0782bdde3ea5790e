package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/promptd/promptd/internal/domain"
	"github.com/promptd/promptd/internal/httpserver/deps"
	"github.com/promptd/promptd/internal/logger"
	"github.com/promptd/promptd/internal/utils"
)

// CreatePrompt handles POST /api/prompts.
func CreatePrompt(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer utils.Close(r.Body)

		var in domain.PromptInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeError(w, d.Logger, &domain.ValidationError{Field: "body", Message: "invalid JSON"})
			return
		}

		p, err := d.Repo.Create(r.Context(), in)
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, p)
	}
}

// GetPrompt handles GET /api/prompts/{id}.
func GetPrompt(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := d.Repo.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// UpdatePrompt handles PATCH /api/prompts/{id}.
func UpdatePrompt(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer utils.Close(r.Body)

		var patch domain.PromptPatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			writeError(w, d.Logger, &domain.ValidationError{Field: "body", Message: "invalid JSON"})
			return
		}
		if patch.Empty() {
			writeError(w, d.Logger, &domain.ValidationError{Field: "body", Message: "patch touches no field"})
			return
		}

		p, err := d.Repo.Update(r.Context(), chi.URLParam(r, "id"), patch)
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// DeletePrompt handles DELETE /api/prompts/{id}.
func DeletePrompt(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		deleted, err := d.Repo.Delete(r.Context(), id)
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
	}
}

// ListPrompts handles GET /api/prompts.
func ListPrompts(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		f := domain.ListFilter{
			Namespace: q.Get("namespace"),
			Name:      q.Get("name"),
			Tag:       q.Get("tag"),
			Cursor:    q.Get("cursor"),
			SortBy:    q.Get("sortBy"),
			SortOrder: q.Get("sortOrder"),
		}
		if v := q.Get("isActive"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				writeError(w, d.Logger, &domain.ValidationError{Field: "isActive", Message: "must be a boolean"})
				return
			}
			f.IsActive = &b
		}
		if v := q.Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				writeError(w, d.Logger, &domain.ValidationError{Field: "limit", Message: "must be an integer"})
				return
			}
			f.Limit = n
		}

		page, err := d.Repo.List(r.Context(), f)
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
	}
}

// ResolvePrompt handles GET /api/prompts/resolve: best-match resolution for
// a set of soft criteria passed as query parameters.
func ResolvePrompt(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		c := domain.Criteria{
			Namespace: q.Get("namespace"),
			Name:      q.Get("name"),
			Lang:      q.Get("lang"),
		}
		if v := q.Get("version"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				writeError(w, d.Logger, &domain.ValidationError{Field: "version", Message: "must be an integer >= 1"})
				return
			}
			c.Version = n
		}
		if v := q.Get("tags"); v != "" {
			for _, tag := range strings.Split(v, ",") {
				if tag = strings.TrimSpace(tag); tag != "" {
					c.Tags = append(c.Tags, tag)
				}
			}
		}
		if v := q.Get("priority"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				writeError(w, d.Logger, &domain.ValidationError{Field: "priority", Message: "must be an integer"})
				return
			}
			c.Priority = &n
		}

		p, err := d.Resolver.FindByCriteria(r.Context(), c)
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}

		d.Logger.Debug("criteria resolved",
			logger.String("namespace", c.Namespace),
			logger.String("id", p.ID))
		writeJSON(w, http.StatusOK, p)
	}
}
