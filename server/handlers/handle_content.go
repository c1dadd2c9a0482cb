package handlers

import (
	"context"

	"tutorhub/apperrors"
	"tutorhub/services/content"
	"tutorhub/services/settings"

	"github.com/gofiber/fiber/v2"
)

func HandleGetSettings(reg *settings.Registry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := reg.Read(c.UserContext())
		if err != nil {
			return err
		}
		return c.JSON(s)
	}
}

// board adapts one typed content board to the kind-addressed routes
type board struct {
	list   func(ctx context.Context) (any, error)
	create func(c *fiber.Ctx) (any, error)
	update func(c *fiber.Ctx, id string) (any, error)
	remove func(ctx context.Context, id string) error
}

func boardFor[T any](b *content.Board[T]) board {
	decode := func(c *fiber.Ctx) (T, error) {
		var item T
		err := parseBody(c, &item)
		return item, err
	}

	return board{
		list: func(ctx context.Context) (any, error) {
			return b.List(ctx)
		},
		create: func(c *fiber.Ctx) (any, error) {
			item, err := decode(c)
			if err != nil {
				return nil, err
			}
			return b.Create(c.UserContext(), item)
		},
		update: func(c *fiber.Ctx, id string) (any, error) {
			item, err := decode(c)
			if err != nil {
				return nil, err
			}
			return b.Update(c.UserContext(), id, item)
		},
		remove: b.Delete,
	}
}

// ContentBoards resolves the :kind route parameter
type ContentBoards map[content.Kind]board

func NewContentBoards(svc *content.Service) ContentBoards {
	return ContentBoards{
		content.KindBanners: boardFor(svc.Banners),
		content.KindLinks:   boardFor(svc.Links),
		content.KindNotices: boardFor(svc.Notices),
	}
}

func (cb ContentBoards) lookup(c *fiber.Ctx) (board, error) {
	kind, ok := content.ParseKind(c.Params("kind"))
	if !ok {
		return board{}, apperrors.NewNotFound("content kind", c.Params("kind"))
	}
	return cb[kind], nil
}

func (cb ContentBoards) HandleList() fiber.Handler {
	return func(c *fiber.Ctx) error {
		b, err := cb.lookup(c)
		if err != nil {
			return err
		}
		items, err := b.list(c.UserContext())
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"items": items})
	}
}

func (cb ContentBoards) HandleCreate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		b, err := cb.lookup(c)
		if err != nil {
			return err
		}
		item, err := b.create(c)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(item)
	}
}

func (cb ContentBoards) HandleUpdate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		b, err := cb.lookup(c)
		if err != nil {
			return err
		}
		item, err := b.update(c, c.Params("id"))
		if err != nil {
			return err
		}
		return c.JSON(item)
	}
}

func (cb ContentBoards) HandleDelete() fiber.Handler {
	return func(c *fiber.Ctx) error {
		b, err := cb.lookup(c)
		if err != nil {
			return err
		}
		if err := b.remove(c.UserContext(), c.Params("id")); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
