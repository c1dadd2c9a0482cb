package auth

import (
	"crypto/subtle"

	"tutorhub/apperrors"
	"tutorhub/db"
	"tutorhub/services/sessions"

	"github.com/gofiber/fiber/v2"
)

// New requires a signed-in, unblocked user. The session is resolved
// against storage on every request, so a user blocked or removed from
// another context is signed out here before the handler runs.
func New(config ...Config) fiber.Handler {
	cfg := configDefault(config...)

	return func(c *fiber.Ctx) error {
		if cfg.Next != nil && cfg.Next(c) {
			return c.Next()
		}

		state, err := cfg.SessionManager.ResolveSession(c.UserContext())
		if err != nil {
			return err
		}
		if state != sessions.Authenticated {
			return apperrors.NewNotAuthenticated()
		}

		user, found, err := cfg.SessionManager.CurrentUser(c.UserContext())
		if err != nil {
			return err
		}
		if !found {
			return apperrors.NewNotAuthenticated()
		}

		c.Locals(contextUser, user)
		return c.Next()
	}
}

// UserFromContext returns the user stored by New
func UserFromContext(c *fiber.Ctx) (db.UserRecord, bool) {
	user, ok := c.Locals(contextUser).(db.UserRecord)
	return user, ok
}

// Admin guards the administrator API with a shared token
func Admin(config AdminConfig) fiber.Handler {
	cfg := adminConfigDefault(config)

	return func(c *fiber.Ctx) error {
		if cfg.Token == "" {
			return apperrors.NewForbidden("admin API disabled")
		}

		presented := c.Get(cfg.Header)
		if subtle.ConstantTimeCompare([]byte(presented), []byte(cfg.Token)) != 1 {
			return apperrors.NewForbidden("admin")
		}
		return c.Next()
	}
}
