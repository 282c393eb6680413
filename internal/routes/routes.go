package routes

import (
	"encoding/json"
	"net/http"

	"github.com/AnshRaj112/campus-chat-backend/internal/handlers"
	"github.com/AnshRaj112/campus-chat-backend/internal/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// Deps are the pieces the router needs beyond the handler.
type Deps struct {
	Handler        *handlers.Handler
	Sessions       middleware.SessionValidator
	SendLimiter    *middleware.SendLimiter
	AllowedOrigins []string
	Middlewares    []func(http.Handler) http.Handler
	SessionCount   func() int
	Log            *zap.SugaredLogger
}

func SetupRoutes(r *chi.Mux, d Deps) {
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	for _, mw := range d.Middlewares {
		r.Use(mw)
	}

	// Health check (no auth)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		body := map[string]interface{}{"status": "ok"}
		if d.SessionCount != nil {
			body["sessions"] = d.SessionCount()
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(body)
	})

	h := d.Handler
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireSession(d.Sessions, d.Log))
		if d.SendLimiter != nil {
			r.Use(d.SendLimiter.Middleware)
		}

		// Conversation directory
		r.Post("/api/conversations/group", h.CreateGroupConversation)
		r.Post("/api/conversations/individual", h.CreateOrGetIndividualConversation)
		r.Get("/api/conversations", h.ListConversations)
		r.Get("/api/conversations/{id}", h.GetConversation)
		r.Post("/api/conversations/{id}/members", h.AddMembers)
		r.Delete("/api/conversations/{id}/members", h.RemoveMembers)
		r.Put("/api/conversations/{id}/status", h.SetConversationStatus)

		// Message lifecycle
		r.Post("/api/conversations/{id}/messages", h.SendMessage)
		r.Get("/api/conversations/{id}/messages", h.GetHistory)
		r.Get("/api/messages/{id}", h.GetMessage)
		r.Delete("/api/messages/{id}", h.DeleteMessage)
		r.Post("/api/messages/{id}/read", h.MarkRead)

		// Notifications for the delivery collaborator and clients
		r.Get("/api/notifications", h.ListNotifications)
		r.Put("/api/notifications/{id}/read", h.MarkNotificationRead)

		// WebSocket endpoint for live conversation events
		r.Get("/ws/chat", h.ChatWebSocket)
	})
}
