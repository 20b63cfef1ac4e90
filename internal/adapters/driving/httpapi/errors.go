package httpapi

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/custodia-labs/fleetsync/internal/core/domain"
	"github.com/custodia-labs/fleetsync/internal/logger"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// statusFor maps the domain taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrUnsupportedType),
		errors.Is(err, domain.ErrTenantScopeRequired),
		errors.Is(err, domain.ErrConnectionRequired):
		return fiber.StatusBadRequest
	case errors.Is(err, domain.ErrSyncInProgress),
		errors.Is(err, domain.ErrAlreadyExists),
		errors.Is(err, domain.ErrDuplicateConnection),
		errors.Is(err, domain.ErrConnectionInactive),
		errors.Is(err, domain.ErrConnectionSuspended):
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

// errorHandler renders handler errors as JSON.
func errorHandler(c *fiber.Ctx, err error) error {
	code := statusFor(err)
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}

	msg := err.Error()
	if code == fiber.StatusInternalServerError {
		logger.Error("http request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
		msg = "internal error"
	}
	return c.Status(code).JSON(ErrorResponse{Error: msg})
}

func badRequest(msg string) error {
	return fiber.NewError(fiber.StatusBadRequest, msg)
}

func notConfigured(feature string) error {
	return fiber.NewError(fiber.StatusNotImplemented, feature+" is not configured")
}
