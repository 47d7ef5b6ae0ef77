package controller

import (
	"github.com/gofiber/fiber/v2"

	"compliance-rag-be/internal/service"
)

type IHealthController interface {
	RegisterRoutes(r fiber.Router)
	Check(ctx *fiber.Ctx) error
	Detailed(ctx *fiber.Ctx) error
}

type healthController struct {
	service service.IHealthService
}

func NewHealthController(service service.IHealthService) IHealthController {
	return &healthController{service: service}
}

func (c *healthController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/health")
	h.Get("/", c.Check)
	h.Get("/detailed", c.Detailed)
}

func (c *healthController) Check(ctx *fiber.Ctx) error {
	return ctx.JSON(c.service.Check())
}

func (c *healthController) Detailed(ctx *fiber.Ctx) error {
	return ctx.JSON(c.service.Detailed(ctx.Context()))
}
