package serverutils

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandler converts returned errors into the JSON envelope. Fiber
// errors keep their status code; everything else is a 500.
func ErrorHandler(ctx *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
		message = fiberErr.Message
	}

	return ctx.Status(code).JSON(ErrorResponse(message, nil))
}
