package handlers

import (
	"tutorhub/db"
	"tutorhub/services/admin"
	"tutorhub/services/settings"

	"github.com/gofiber/fiber/v2"
)

func HandleDashboard(console *admin.Console) fiber.Handler {
	return func(c *fiber.Ctx) error {
		d, err := console.Dashboard(c.UserContext())
		if err != nil {
			return err
		}
		return c.JSON(d)
	}
}

func HandleUpdateSettings(console *admin.Console) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var patch settings.Patch
		if err := parseBody(c, &patch); err != nil {
			return err
		}

		s, err := console.UpdateSettings(c.UserContext(), patch)
		if err != nil {
			return err
		}
		return c.JSON(s)
	}
}

type saveUsersRequest struct {
	Users []db.UserRecord `json:"users"`
}

func HandleSaveUsers(console *admin.Console) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req saveUsersRequest
		if err := parseBody(c, &req); err != nil {
			return err
		}

		users, err := console.SaveAllUsers(c.UserContext(), req.Users)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"users": users})
	}
}

type blockRequest struct {
	Blocked bool `json:"blocked"`
}

func HandleSetBlocked(console *admin.Console) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req blockRequest
		if err := parseBody(c, &req); err != nil {
			return err
		}

		user, err := console.SetBlocked(c.UserContext(), c.Params("id"), req.Blocked)
		if err != nil {
			return err
		}
		return c.JSON(user)
	}
}

func HandleUpdateIDCard(console *admin.Console) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var card db.IDCard
		if err := parseBody(c, &card); err != nil {
			return err
		}

		user, err := console.UpdateIDCard(c.UserContext(), c.Params("id"), card)
		if err != nil {
			return err
		}
		return c.JSON(user)
	}
}

func HandleRemoveUser(console *admin.Console) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := console.RemoveUser(c.UserContext(), c.Params("id")); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
