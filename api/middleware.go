package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// requestID returns the id assigned by the requestid middleware.
func requestID(c *fiber.Ctx) string {
	id, _ := c.Locals("requestid").(string)
	return id
}

// accessLog logs one line per request once the response status is known.
func (s *Server) accessLog(c *fiber.Ctx) error {
	start := time.Now()

	if err := c.Next(); err != nil {
		if herr := c.App().ErrorHandler(c, err); herr != nil {
			_ = c.SendStatus(fiber.StatusInternalServerError)
		}
	}

	s.logger.Info("request",
		"method", c.Method(),
		"path", c.Path(),
		"status", c.Response().StatusCode(),
		"duration", time.Since(start),
		"request_id", requestID(c),
	)

	return nil
}

// rateLimit rejects requests beyond the configured token bucket.
func (s *Server) rateLimit(c *fiber.Ctx) error {
	if s.limiter == nil || s.limiter.Allow() {
		return c.Next()
	}

	s.metrics.RateLimited.Inc()
	return c.Status(fiber.StatusTooManyRequests).JSON(ErrorResponse{Detail: "Rate limit exceeded."})
}
