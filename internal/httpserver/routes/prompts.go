package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/promptd/promptd/internal/httpserver/deps"
	"github.com/promptd/promptd/internal/httpserver/handlers"
	"github.com/promptd/promptd/internal/httpserver/mw"
)

func init() { Register(registerPrompts) }

// registerPrompts mounts the prompt API. Reads require a known token,
// mutations require one with write permission.
func registerPrompts(r chi.Router, d deps.Deps) {
	r.Route("/api/prompts", func(r chi.Router) {
		read := mw.Auth(d.Tokens, mw.PermRead, d.Logger)
		write := mw.Auth(d.Tokens, mw.PermWrite, d.Logger)

		r.Group(func(r chi.Router) {
			r.Use(read)
			r.Get("/", handlers.ListPrompts(d))
			r.Get("/default", handlers.GetDefaultPrompt(d))
			r.Get("/vision-default", handlers.VisionDefaultPrompt(d))
			r.Get("/resolve", handlers.ResolvePrompt(d))
			r.Get("/{id}", handlers.GetPrompt(d))
		})

		r.Group(func(r chi.Router) {
			r.Use(write)
			r.Post("/", handlers.CreatePrompt(d))
			r.Patch("/{id}", handlers.UpdatePrompt(d))
			r.Delete("/{id}", handlers.DeletePrompt(d))
			r.Post("/{id}/default", handlers.SetDefaultPrompt(d))
			r.Post("/sync", handlers.SyncAllDefaults(d))
			r.Post("/sync/{namespace}", handlers.SyncNamespaceDefaults(d))
			r.Post("/seed/reload", handlers.ReloadSeed(d))
		})
	})
}
