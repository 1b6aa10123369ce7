package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/citewatch/tracker/internal/provideradapter"
	"github.com/citewatch/tracker/internal/store"
)

// respondErr translates a domain error into an HTTP response, per spec
// §9's redesign flag that API error mapping must distinguish
// client-caused (400/404) from provider/store-caused (502/500) failures
// rather than collapsing everything to a bare 500.
func respondErr(c *fiber.Ctx, err error) error {
	if err == nil {
		return nil
	}

	var perr *provideradapter.Error
	if errors.As(err, &perr) {
		status := fiber.StatusBadGateway
		if !perr.Retriable {
			status = fiber.StatusUnprocessableEntity
		}
		return c.Status(status).JSON(fiber.Map{"error": perr.Error()})
	}

	if errors.Is(err, store.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}

	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
}
