// Package api implements the Auralis REST API using chi.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authMW resolves the request owner and guards every route.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(h *Handler, authMW func(http.Handler) http.Handler, sseHandler http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(Metrics)
	r.Use(authMW)

	// Note list.
	r.Get("/notes", h.ListNotes)
	r.Post("/notes", h.CreateNote)
	r.Post("/notes/reload", h.ReloadNotes)
	r.Route("/notes/{id}", func(r chi.Router) {
		r.Get("/", h.GetNote)
		r.Patch("/", h.UpdateNote)
		r.Delete("/", h.DeleteNote)
		r.Post("/summarize", h.SummarizeNote)
		r.Post("/pin", h.TogglePin)
		r.Post("/favorite", h.ToggleFavorite)
		r.Put("/drawing", h.SaveDrawing)
		r.Get("/export.md", h.ExportNote)
	})

	// Search and insights.
	r.Get("/search", h.Search)
	r.Get("/insights", h.Insights)

	// Stateless AI proxies.
	r.Post("/summarize", h.Summarize)
	r.Post("/insights", h.Categorize)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
