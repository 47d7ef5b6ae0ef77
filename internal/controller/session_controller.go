package controller

import (
	"github.com/gofiber/fiber/v2"

	"compliance-rag-be/internal/dto"
	"compliance-rag-be/internal/pkg/serverutils"
	"compliance-rag-be/internal/service"
)

type ISessionController interface {
	RegisterRoutes(r fiber.Router)
	Create(ctx *fiber.Ctx) error
	List(ctx *fiber.Ctx) error
	Show(ctx *fiber.Ctx) error
	Rename(ctx *fiber.Ctx) error
	Delete(ctx *fiber.Ctx) error
	ClearMessages(ctx *fiber.Ctx) error
}

type sessionController struct {
	service service.ISessionService
}

func NewSessionController(service service.ISessionService) ISessionController {
	return &sessionController{service: service}
}

func (c *sessionController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/sessions")
	h.Post("/", c.Create)
	h.Get("/", c.List)
	h.Get("/:id", c.Show)
	h.Patch("/:id/rename", c.Rename)
	h.Delete("/:id/messages", c.ClearMessages)
	h.Delete("/:id", c.Delete)
}

func (c *sessionController) Create(ctx *fiber.Ctx) error {
	var req dto.CreateSessionRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.Create(ctx.Context(), &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success create session", res))
}

func (c *sessionController) List(ctx *fiber.Ctx) error {
	userId := ctx.Query("user_id")
	if userId == "" {
		return fiber.NewError(fiber.StatusBadRequest, "user_id is required")
	}

	res, err := c.service.List(ctx.Context(), userId)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get all sessions", res))
}

func (c *sessionController) Show(ctx *fiber.Ctx) error {
	userId := ctx.Query("user_id")
	if userId == "" {
		return fiber.NewError(fiber.StatusBadRequest, "user_id is required")
	}
	includeMessages := ctx.QueryBool("include_messages", false)

	res, err := c.service.Get(ctx.Context(), userId, ctx.Params("id"), includeMessages)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success show session", res))
}

func (c *sessionController) Rename(ctx *fiber.Ctx) error {
	var req dto.RenameSessionRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	if err := c.service.Rename(ctx.Context(), ctx.Params("id"), &req); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse[any]("Success rename session", nil))
}

func (c *sessionController) Delete(ctx *fiber.Ctx) error {
	userId := ctx.Query("user_id")
	if userId == "" {
		return fiber.NewError(fiber.StatusBadRequest, "user_id is required")
	}

	if err := c.service.Delete(ctx.Context(), userId, ctx.Params("id")); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse[any]("Success delete session", nil))
}

func (c *sessionController) ClearMessages(ctx *fiber.Ctx) error {
	userId := ctx.Query("user_id")
	if userId == "" {
		return fiber.NewError(fiber.StatusBadRequest, "user_id is required")
	}

	if err := c.service.ClearMessages(ctx.Context(), userId, ctx.Params("id")); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse[any]("Success clear session messages", nil))
}
