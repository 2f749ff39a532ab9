package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"founder-llm-backend/internal/handlers"
	"founder-llm-backend/internal/middleware"
	"founder-llm-backend/internal/websocket"
)

type Deps struct {
	JWTAuth        *middleware.JWTAuth
	MessageLimiter *middleware.RateLimiter
	AdminKeyHash   string
	AllowedOrigins []string

	Health *handlers.HealthHandler
	Chat   *handlers.ChatHandler
	File   *handlers.FileHandler
	Admin  *handlers.AdminHandler
	WSHub  *websocket.Hub
}

func New(d Deps) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Admin-Key", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", d.Health.Root)
	r.Get("/health", d.Health.Health)

	r.Route("/v1", func(r chi.Router) {
		// Websocket authenticates with ?token= since browsers cannot set headers.
		r.Get("/ws", d.WSHub.HandleWebSocket)

		// ──── Chat Routes ────
		r.Route("/chats", func(r chi.Router) {
			r.Use(d.JWTAuth.Middleware)
			r.Post("/", d.Chat.Create)
			r.Get("/", d.Chat.List)
			r.Get("/{id}", d.Chat.Get)
			r.Delete("/{id}", d.Chat.Delete)
			r.Get("/{id}/messages", d.Chat.Messages)
			r.With(d.MessageLimiter.Middleware).Post("/{id}/message", d.Chat.SendMessage)
		})

		// ──── File Routes ────
		r.Route("/files", func(r chi.Router) {
			r.Use(d.JWTAuth.Middleware)
			r.Post("/", d.File.Upload)
			r.Get("/", d.File.List)
			r.Get("/{id}", d.File.Get)
			r.Get("/{id}/chunks", d.File.Chunks)
			r.Post("/{id}/ingest", d.File.Ingest)
		})

		// ──── Admin Routes ────
		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.AdminKey(d.AdminKeyHash))
			r.Get("/overview", d.Admin.Overview)
			r.Get("/users", d.Admin.Users)
			r.Get("/users/{id}/chats", d.Admin.UserChats)
			r.Get("/users/{id}/files", d.Admin.UserFiles)
			r.Get("/chats", d.Admin.Chats)
			r.Get("/chats/{id}/messages", d.Admin.ChatMessages)
		})
	})

	return r
}
