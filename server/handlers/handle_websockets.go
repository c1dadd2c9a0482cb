package handlers

import (
	_websocket "tutorhub/server/websocket"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

// HandleWebSocketUpgrade admits upgrade requests from allowed origins
func HandleWebSocketUpgrade(allowedOrigins []string) fiber.Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}

	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		if origin := c.Get("Origin"); origin != "" && !allowed[origin] {
			return fiber.ErrForbidden
		}
		return c.Next()
	}
}

// HandleWebSocket streams change messages to the connection
func HandleWebSocket(wsManager *_websocket.Manager) fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		wsManager.Serve(conn)
	})
}
