package handlers

import (
	"tutorhub/apperrors"
	"tutorhub/db"
	"tutorhub/server/middleware/auth"

	"github.com/gofiber/fiber/v2"
)

// parseBody decodes the JSON request body into v
func parseBody(c *fiber.Ctx, v any) error {
	if err := c.BodyParser(v); err != nil {
		return apperrors.NewBadRequest("Invalid request body").WithInternal(err)
	}
	return nil
}

// currentUser returns the user set by the session middleware
func currentUser(c *fiber.Ctx) (db.UserRecord, error) {
	user, ok := auth.UserFromContext(c)
	if !ok {
		return db.UserRecord{}, apperrors.NewNotAuthenticated()
	}
	return user, nil
}
