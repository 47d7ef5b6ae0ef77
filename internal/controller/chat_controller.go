package controller

import (
	"bufio"
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"compliance-rag-be/internal/dto"
	"compliance-rag-be/internal/pkg/logger"
	"compliance-rag-be/internal/pkg/serverutils"
	"compliance-rag-be/internal/service"
	"compliance-rag-be/pkg/rag/frame"
)

type IChatController interface {
	RegisterRoutes(r fiber.Router)
	Stream(ctx *fiber.Ctx) error
	Chat(ctx *fiber.Ctx) error
}

type chatController struct {
	service service.IChatService
	log     logger.ILogger
}

func NewChatController(service service.IChatService, log logger.ILogger) IChatController {
	return &chatController{service: service, log: log}
}

func (c *chatController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/chat")
	h.Post("/stream", c.Stream)
	h.Post("/", c.Chat)
}

// Stream writes SSE-style records over a chunked text/plain response.
// The stream context is detached from the fiber request context, which
// is recycled once this handler returns; write failures cancel it so
// the pipelines stop when the client disconnects.
func (c *chatController) Stream(ctx *fiber.Ctx) error {
	userId := ctx.Query("user_id")
	sessionId := ctx.Query("session_id")
	scene := ctx.QueryInt("scene_id", service.SceneHybrid)

	var req dto.ChatStreamRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	question := req.Question()
	if userId == "" || sessionId == "" || question == "" {
		return fiber.NewError(fiber.StatusBadRequest, "user_id, session_id and content are required")
	}

	ctx.Set(fiber.HeaderContentType, "text/plain; charset=utf-8")
	ctx.Set(fiber.HeaderCacheControl, "no-cache")

	ctx.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		streamCtx, cancel := context.WithCancel(context.Background())
		defer cancel()

		emit := func(f frame.Frame) error {
			if _, err := w.Write(f.Encode()); err != nil {
				cancel()
				return err
			}
			if err := w.Flush(); err != nil {
				cancel()
				return err
			}
			return nil
		}

		if err := c.service.StreamChat(streamCtx, userId, sessionId, scene, question, emit); err != nil {
			c.log.Warn("ChatController", "stream ended early", map[string]interface{}{
				"session_id": sessionId,
				"error":      err.Error(),
			})
		}
	}))
	return nil
}

func (c *chatController) Chat(ctx *fiber.Ctx) error {
	var req dto.ChatRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.Chat(ctx.Context(), &req)
	if err != nil {
		return err
	}
	return ctx.JSON(res)
}
