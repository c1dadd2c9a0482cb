package routes

import (
	"tutorhub/notify"
	"tutorhub/server/handlers"
	"tutorhub/server/websocket"
	"tutorhub/services/admin"
	"tutorhub/services/challenges"
	"tutorhub/services/content"
	"tutorhub/services/sessions"
	"tutorhub/services/settings"
	"tutorhub/services/tickets"
	"tutorhub/store"

	"github.com/gofiber/fiber/v2"
)

// Deps are the services the routes are served from
type Deps struct {
	Store      *store.Store
	Notifier   *notify.Notifier
	Sessions   *sessions.SessionManager
	Settings   *settings.Registry
	Tickets    *tickets.Mailbox
	Content    *content.Service
	Admin      *admin.Console
	Challenges *challenges.Service
	WebSockets *websocket.Manager

	AdminToken     string
	AllowedOrigins []string

	// AuthLimiter guards login and register; nil disables it
	AuthLimiter fiber.Handler
}

// RegisterRoutes mounts health, the versioned API and the change streams
func RegisterRoutes(app *fiber.App, deps Deps) {
	health := handlers.NewHealthCheckHandler(deps.Store, deps.Notifier)
	app.Get("/health", health.HandleHealthCheck())
	app.Get("/health/live", health.HandleLivenessCheck())

	NewAPIRoutes(deps).Register(app)

	if deps.WebSockets != nil {
		app.Use("/ws", handlers.HandleWebSocketUpgrade(deps.AllowedOrigins))
		app.Get("/ws/events", handlers.HandleWebSocket(deps.WebSockets))
	}
}
