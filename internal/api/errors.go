package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/toolbay/trade-service/internal/domain"
)

// fail maps the domain error taxonomy onto HTTP. Conflicts use 412 so
// clients can tell "refetch and redo" (revision race) apart from 409
// "stop, the record is settled" (illegal state).
func fail(c *fiber.Ctx, err error) error {
	var ve *domain.ValidationError
	var ae *domain.AuthorizationError
	var se *domain.StateError
	var ce *domain.ConflictError
	var te *domain.TransientError

	switch {
	case errors.As(err, &ve):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ve.Error()})
	case errors.As(err, &ae):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "not a party to this record"})
	case errors.As(err, &se):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "no longer actionable", "detail": se.Error()})
	case errors.As(err, &ce):
		return c.Status(fiber.StatusPreconditionFailed).JSON(fiber.Map{
			"error":            "revision conflict",
			"expected":         ce.Expected,
			"current_revision": ce.Actual,
		})
	case errors.Is(err, domain.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not found"})
	case errors.Is(err, domain.ErrPermissionDenied):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "permission denied"})
	case errors.As(err, &te):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "store unavailable", "retryable": true})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
}
