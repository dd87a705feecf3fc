package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/harborlight/henry/backend/internal/handler/chat"
	middlewarePkg "github.com/harborlight/henry/backend/internal/middleware"
	"github.com/harborlight/henry/backend/internal/service/session"
)

// NewRouter wires HTTP routes to the conversation engine.
func NewRouter(manager *session.Manager, factory *session.Factory) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	chatHandler := chat.New(manager, factory)
	wsHandler := chat.NewWebSocketHandler(chatHandler)

	r.Route("/api", func(api chi.Router) {
		chatHandler.RegisterRoutes(api)
		wsHandler.RegisterWebSocketRoutes(api)
	})

	return r
}
