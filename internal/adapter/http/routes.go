package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Get("/health", h.Health)

	// Dashboard fan-out (WebSocket upgrade, optional ?workflow_id= scope)
	r.Get("/ws", h.Hub.HandleWS)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Workflow observation lifecycle
		r.Get("/workflows", h.ListWorkflows)
		r.Post("/workflows/{id}/connect", h.Connect)
		r.Post("/workflows/{id}/disconnect", h.Disconnect)
		r.Delete("/workflows/{id}", h.DiscardWorkflow)

		// Snapshot queries
		r.Get("/workflows/{id}/snapshot", h.GetSnapshot)
		r.Get("/workflows/{id}/agents", h.GetAgents)
		r.Get("/workflows/{id}/log", h.GetLog)
		r.Get("/workflows/{id}/partial-results", h.GetPartialResults)

		// Archive
		r.Get("/archive/workflows", h.ListArchivedWorkflows)
		r.Get("/workflows/{id}/replay", h.Replay)
	})
}
