package handlers

import (
	"tutorhub/apperrors"
	"tutorhub/db"
	"tutorhub/services/admin"
	"tutorhub/services/tickets"

	"github.com/gofiber/fiber/v2"
)

type messageRequest struct {
	Text string `json:"text"`
}

// HandleGetSupport returns the signed-in user's conversation. Reading
// does not move the watermark; the client calls /support/read once the
// messages are on screen.
func HandleGetSupport(mb *tickets.Mailbox) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := currentUser(c)
		if err != nil {
			return err
		}

		messages, err := mb.Messages(c.UserContext(), user.ID)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"messages": messages})
	}
}

func HandleSendSupport(mb *tickets.Mailbox) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := currentUser(c)
		if err != nil {
			return err
		}

		var req messageRequest
		if err := parseBody(c, &req); err != nil {
			return err
		}

		ticket, err := mb.AppendMessage(c.UserContext(), user.ID, user.Name, db.SenderUser, req.Text)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(ticket)
	}
}

func HandleMarkRead(mb *tickets.Mailbox) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := currentUser(c)
		if err != nil {
			return err
		}
		if err := mb.MarkRead(c.UserContext(), user.ID); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

func HandleUnread(mb *tickets.Mailbox) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := currentUser(c)
		if err != nil {
			return err
		}

		unread, err := mb.HasUnread(c.UserContext(), user.ID)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"unread": unread})
	}
}

// Admin side. Administrators never have a watermark, so none of these
// call MarkRead.

func HandleListTickets(mb *tickets.Mailbox) fiber.Handler {
	return func(c *fiber.Ctx) error {
		list, err := mb.Tickets(c.UserContext())
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"tickets": tickets.SortedByLastUpdate(list)})
	}
}

func HandleGetTicket(mb *tickets.Mailbox) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		ticket, found, err := mb.Ticket(c.UserContext(), id)
		if err != nil {
			return err
		}
		if !found {
			return apperrors.NewNotFound("ticket", id)
		}
		return c.JSON(ticket)
	}
}

func HandleReplyTicket(console *admin.Console) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req messageRequest
		if err := parseBody(c, &req); err != nil {
			return err
		}

		ticket, err := console.Reply(c.UserContext(), c.Params("id"), req.Text)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(ticket)
	}
}

func HandleDeleteTicket(mb *tickets.Mailbox) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := mb.DeleteTicket(c.UserContext(), c.Params("id")); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

func HandleRebuildTicketIndex(mb *tickets.Mailbox) fiber.Handler {
	return func(c *fiber.Ctx) error {
		n, err := mb.RebuildIndex(c.UserContext())
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"tickets": n})
	}
}
