package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/starford/othala/internal/mirror"
	"github.com/starford/othala/internal/sse"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// broker, if non-nil, serves SSE at GET /events inside the auth group and
// receives sync lifecycle events.
func NewRouter(svc *mirror.Service, authEnabled bool, token string, broker *sse.Broker) chi.Router {
	h := NewHandler(svc, broker)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Cache store.
	r.Post("/cache/init", h.InitCache)
	r.Delete("/cache", h.DeleteCache)
	r.Get("/stats", h.Stats)
	r.Get("/metadata", h.Metadata)
	r.Get("/pages/{pageID}", h.GetPage)
	r.Post("/cleanup", h.Cleanup)

	// Search.
	r.Get("/search", h.Search)
	r.Post("/rebuild", h.Rebuild)

	// Sync.
	r.Get("/changes", h.Changes)
	r.Post("/sync", h.Sync)
	r.Get("/conflicts", h.Conflicts)
	r.Post("/conflicts/resolve", h.ResolveConflict)

	// Bulk indexing.
	r.Post("/index", h.StartIndex)
	r.Get("/index/status", h.IndexStatus)
	r.Post("/index/pause", h.PauseIndex)
	r.Post("/index/resume", h.ResumeIndex)
	r.Post("/index/cancel", h.CancelIndex)

	// SSE endpoint (protected by same auth middleware).
	if broker != nil {
		r.Get("/events", broker.ServeHTTP)
	}

	return r
}
