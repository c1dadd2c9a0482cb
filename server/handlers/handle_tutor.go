package handlers

import (
	"tutorhub/services/challenges"

	"github.com/gofiber/fiber/v2"
)

type submitRequest struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Reward   int    `json:"reward"`
}

func HandleSubmitChallenge(cs *challenges.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req submitRequest
		if err := parseBody(c, &req); err != nil {
			return err
		}

		res, err := cs.Submit(c.UserContext(), req.Question, req.Answer, req.Reward)
		if err != nil {
			return err
		}
		return c.JSON(res)
	}
}

type tutorRequest struct {
	Text     string            `json:"text"`
	Language string            `json:"language,omitempty"`
	History  []challenges.Turn `json:"history,omitempty"`
}

// HandleTutor serves the single-shot assistant operations selected by
// the :op route parameter
func HandleTutor(cs *challenges.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req tutorRequest
		if err := parseBody(c, &req); err != nil {
			return err
		}

		var (
			reply string
			err   error
		)
		switch c.Params("op") {
		case "explain":
			reply, err = cs.Explain(c.UserContext(), req.Text)
		case "translate":
			reply, err = cs.Translate(c.UserContext(), req.Text, req.Language)
		case "spelling":
			reply, err = cs.CorrectSpelling(c.UserContext(), req.Text)
		case "chat":
			reply, err = cs.Chat(c.UserContext(), req.History, req.Text)
		default:
			return fiber.ErrNotFound
		}
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"reply": reply})
	}
}
