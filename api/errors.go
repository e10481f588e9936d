package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/textgen/pkg/generation"
)

// statusFor maps a generation error kind to its HTTP status.
func statusFor(kind generation.Kind) int {
	switch kind {
	case generation.KindInvalidArgument, generation.KindDeviceUnavailable:
		return fiber.StatusBadRequest
	case generation.KindOverloaded:
		return fiber.StatusServiceUnavailable
	case generation.KindTimeout:
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusInternalServerError
	}
}

// writeGenerationError renders err as {"detail": ...}. Unclassified errors
// get the generic engine failure detail.
func writeGenerationError(c *fiber.Ctx, err error) error {
	var genErr *generation.Error
	if !errors.As(err, &genErr) {
		genErr = generation.EngineFailure(err)
	}

	return c.Status(statusFor(genErr.Kind)).JSON(ErrorResponse{Detail: genErr.Detail})
}

// errorHandler renders fiber routing errors (404, 405, oversized bodies)
// in the same shape as generation errors.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	detail := "Internal server error."

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		detail = fe.Message
	}

	return c.Status(code).JSON(ErrorResponse{Detail: detail})
}
