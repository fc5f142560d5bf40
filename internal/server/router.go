package server

import (
	"net/http"

	"github.com/cloo-solutions/converso/internal/api"
	"github.com/cloo-solutions/converso/internal/api/handlers"
	"github.com/cloo-solutions/converso/internal/api/middleware"
	"github.com/go-chi/chi/v5"
)

type RouterConfig struct {
	AdminToken           string
	WebhookHandler       *handlers.WebhookHandler
	KnowledgeHandler     *handlers.KnowledgeHandler
	MessageHandler       *handlers.MessageHandler
	CorrespondentHandler *handlers.CorrespondentHandler
	ProcessHandler       *handlers.ProcessHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 5 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/webhook", cfg.WebhookHandler.Verify)
	r.Post("/webhook", cfg.WebhookHandler.Receive)

	r.Group(func(r chi.Router) {
		r.Use(middleware.AdminAuth(cfg.AdminToken))

		r.Route("/kb", func(r chi.Router) {
			r.Post("/", cfg.KnowledgeHandler.Create)
			r.Get("/", cfg.KnowledgeHandler.List)
			r.Post("/ingest", cfg.KnowledgeHandler.Ingest)
			r.Post("/search", cfg.KnowledgeHandler.Search)
			r.Post("/embed-missing", cfg.KnowledgeHandler.EmbedMissing)
			r.Get("/{id}", cfg.KnowledgeHandler.Get)
			r.Put("/{id}", cfg.KnowledgeHandler.Update)
			r.Delete("/{id}", cfg.KnowledgeHandler.Delete)
			r.Post("/{id}/embed", cfg.KnowledgeHandler.Embed)
		})

		r.Route("/messages", func(r chi.Router) {
			r.Get("/", cfg.MessageHandler.List)
			r.Get("/stats", cfg.MessageHandler.Stats)
			r.Get("/{id}", cfg.MessageHandler.Get)
			r.Post("/process", cfg.ProcessHandler.Process)
		})

		r.Route("/correspondents", func(r chi.Router) {
			r.Get("/", cfg.CorrespondentHandler.List)
			r.Get("/{id}", cfg.CorrespondentHandler.Get)
		})
	})

	return r
}
