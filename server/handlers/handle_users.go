package handlers

import (
	"tutorhub/services/challenges"
	"tutorhub/services/sessions"

	"github.com/gofiber/fiber/v2"
)

type registerRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Password    string `json:"password"`
	Email       string `json:"email"`
	Institution string `json:"institution"`
	Grade       string `json:"grade"`
}

func HandleRegister(sm *sessions.SessionManager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req registerRequest
		if err := parseBody(c, &req); err != nil {
			return err
		}

		user, err := sm.Register(c.UserContext(), sessions.RegisterParams{
			ID:          req.ID,
			Name:        req.Name,
			Password:    req.Password,
			Email:       req.Email,
			Institution: req.Institution,
			Grade:       req.Grade,
		})
		if err != nil {
			return err
		}

		return c.Status(fiber.StatusCreated).JSON(user.Public())
	}
}

type loginRequest struct {
	ID       string `json:"id"`
	Password string `json:"password"`
}

func HandleLogin(sm *sessions.SessionManager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req loginRequest
		if err := parseBody(c, &req); err != nil {
			return err
		}

		user, err := sm.Login(c.UserContext(), req.ID, req.Password)
		if err != nil {
			return err
		}
		return c.JSON(user.Public())
	}
}

func HandleLogout(sm *sessions.SessionManager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := sm.Logout(c.UserContext()); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// HandleSession reports the resolved session state without requiring one
func HandleSession(sm *sessions.SessionManager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		state, err := sm.ResolveSession(c.UserContext())
		if err != nil {
			return err
		}

		body := fiber.Map{"state": state.String()}
		if state == sessions.Authenticated {
			user, found, err := sm.CurrentUser(c.UserContext())
			if err != nil {
				return err
			}
			if found {
				body["user"] = user.Public()
			}
		}
		return c.JSON(body)
	}
}

func HandleMe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := currentUser(c)
		if err != nil {
			return err
		}
		return c.JSON(user.Public())
	}
}

func HandleUpdateProfile(sm *sessions.SessionManager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var patch sessions.ProfilePatch
		if err := parseBody(c, &patch); err != nil {
			return err
		}

		user, _, err := sm.UpdateProfile(c.UserContext(), patch)
		if err != nil {
			return err
		}
		return c.JSON(user.Public())
	}
}

type changePasswordRequest struct {
	Current string `json:"current"`
	Next    string `json:"next"`
}

func HandleChangePassword(sm *sessions.SessionManager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req changePasswordRequest
		if err := parseBody(c, &req); err != nil {
			return err
		}
		if err := sm.ChangePassword(c.UserContext(), req.Current, req.Next); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

type pointsRequest struct {
	Amount int `json:"amount"`
}

func HandleAddPoints(sm *sessions.SessionManager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req pointsRequest
		if err := parseBody(c, &req); err != nil {
			return err
		}

		user, err := sm.AddPoints(c.UserContext(), req.Amount)
		if err != nil {
			return err
		}
		return c.JSON(user.Public())
	}
}

func HandleClaimDailyReward(cs *challenges.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, reward, err := cs.ClaimDailyReward(c.UserContext())
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"reward": reward, "user": user})
	}
}
