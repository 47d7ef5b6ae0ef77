package serverutils

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"compliance-rag-be/internal/pkg/apperror"
)

type Response[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    T      `json:"data,omitempty"`
}

type ErrorBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func SuccessResponse[T any](message string, data T) Response[T] {
	return Response[T]{
		Success: true,
		Message: message,
		Data:    data,
	}
}

func ErrorResponse(message string) ErrorBody {
	return ErrorBody{
		Success: false,
		Message: message,
	}
}

var validate = validator.New()

// ValidateRequest checks struct tags and turns the first failure into a
// fiber 400 so the error handler can pass it through as-is.
func ValidateRequest(req interface{}) error {
	if err := validate.Struct(req); err != nil {
		var invalid validator.ValidationErrors
		if errors.As(err, &invalid) && len(invalid) > 0 {
			field := invalid[0]
			return fiber.NewError(fiber.StatusBadRequest,
				fmt.Sprintf("field '%s' failed on '%s' validation", strings.ToLower(field.Field()), field.Tag()))
		}
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return nil
}

// ErrorHandlerMiddleware converts errors bubbling out of handlers into
// a consistent JSON envelope. Storage-layer kinds map to 503 since they
// indicate an unavailable backing service rather than a bad request.
func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}

		status := fiber.StatusInternalServerError
		message := err.Error()

		var fiberErr *fiber.Error
		var appErr *apperror.Error
		switch {
		case errors.As(err, &fiberErr):
			status = fiberErr.Code
			message = fiberErr.Message
		case errors.As(err, &appErr):
			status = statusForKind(appErr.Kind)
		}

		return ctx.Status(status).JSON(ErrorResponse(message))
	}
}

func statusForKind(kind apperror.Kind) int {
	switch kind {
	case apperror.KindCache, apperror.KindRowStore, apperror.KindTextIndex, apperror.KindGraphEngine:
		return fiber.StatusServiceUnavailable
	case apperror.KindIntentParse:
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}
