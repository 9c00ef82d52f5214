/*
server.go - HTTP router and middleware configuration.

PURPOSE:
  Configures the chi router, middleware stack and route definitions. This
  is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     request logging
  2. Recoverer:  panic recovery (500 instead of crash)
  3. RequestID:  unique ID per request for tracing
  4. CORS:       cross-origin requests for the admin frontend

SECURITY NOTE:
  No authentication middleware. Authorization sits in front of this
  service.

SEE ALSO:
  - handlers.go: handler implementations
  - cmd/server/main.go: server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// Anomaly routes
		r.Route("/anomalies", func(r chi.Router) {
			r.Get("/", h.ListAnomalies)
			r.Get("/stats", h.GetStats)
			r.Get("/bilan-journalier/{employeId}/{date}", h.GetBilanJournalier)
			r.Put("/{id}/traiter", h.Traiter)
			r.Post("/sync", h.SyncAnomalies)
		})

		// Off-books payment routes
		r.Route("/paiements-extras", func(r chi.Router) {
			r.Get("/", h.ListPaiements)
			r.Put("/{id}/payer", h.PayerPaiement)
		})

		// Directory routes
		r.Route("/employes", func(r chi.Router) {
			r.Get("/", h.ListEmployes)
			r.Post("/", h.CreateEmploye)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Get("/stats", h.GetAdminStats)
		})
	})

	return r
}
