package router

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	hrest "collab-realtime/internal/handler/http"
	wshandler "collab-realtime/internal/handler/ws"
	"collab-realtime/internal/middleware"
)

// SetupRoutes configures the HTTP routes for the realtime service
func SetupRoutes(
	r chi.Router,
	nh *hrest.NotificationHandler,
	ph *hrest.PresenceHandler,
	wsHandler *wshandler.WSHandler,
) chi.Router {
	// ---- Global Middleware ----
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"X-User-ID",
		},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequireUser)

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", nh.ListNotifications)
			r.Post("/", nh.CreateNotification)
			r.Post("/read-all", nh.MarkAllAsRead)
			r.Patch("/{id}/read", nh.MarkAsRead)
			r.Delete("/{id}", nh.DeleteNotification)
		})

		r.Route("/presence/settings", func(r chi.Router) {
			r.Get("/", ph.ListSettings)
			r.Get("/me", ph.GetSettings)
			r.Put("/", ph.UpsertSettings)
		})

		// WebSocket endpoint
		r.Get("/ws", wsHandler.HandleRealtime)
	})
	return r
}
