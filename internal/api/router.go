package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)       // Basic request logging
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", apiHandler.HealthHandler)

		r.Post("/chat", apiHandler.ChatHandler)
		r.Post("/chat/stream", apiHandler.ChatStreamHandler)

		r.Route("/analytics", func(r chi.Router) {
			r.Get("/kpis", apiHandler.KPIsHandler)
			r.Get("/top-questions", apiHandler.TopQuestionsHandler)
			r.Get("/hourly", apiHandler.HourlyStatsHandler)
			r.Get("/models", apiHandler.ModelUsageHandler)
			r.Get("/categories", apiHandler.CategoriesHandler)
			r.Get("/fallbacks", apiHandler.FallbackReasonsHandler)
			r.Get("/sessions/{sessionID}", apiHandler.SessionHandler)
			r.Get("/events", apiHandler.EventsHandler)
			r.Get("/export", apiHandler.ExportHandler)
		})
	})

	return r
}
