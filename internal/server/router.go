package server

import (
	"net/http"

	"github.com/cloo-solutions/quotedesk/internal/api"
	"github.com/cloo-solutions/quotedesk/internal/api/handlers"
	"github.com/cloo-solutions/quotedesk/internal/api/middleware"
	"github.com/go-chi/chi/v5"
)

type RouterConfig struct {
	CarrierAssistantHandler *handlers.CarrierAssistantHandler
	// IndexHandler is nil when the pgvector backend serves search.
	IndexHandler *handlers.IndexHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 1 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/carrier-assistant", cfg.CarrierAssistantHandler.Ask)
		if cfg.IndexHandler != nil {
			r.Get("/index/status", cfg.IndexHandler.Status)
		}
	})

	return r
}
