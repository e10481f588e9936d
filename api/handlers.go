package api

import (
	"bytes"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/textgen/pkg/generation"
	"github.com/papercomputeco/textgen/pkg/metrics"
)

// handleRoot handles GET /.
func (s *Server) handleRoot(c *fiber.Ctx) error {
	return c.JSON(MessageResponse{Message: "Hello, World!"})
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handlePredict handles POST /predict.
func (s *Server) handlePredict(c *fiber.Ctx) error {
	req, err := decodePredict(c)
	if err != nil {
		s.metrics.ObserveRequest(sourceHTTP, metrics.DeviceNone, generation.KindOf(err).String(), 0)
		return writeGenerationError(c, err)
	}

	result, err := s.generate(c.UserContext(), sourceHTTP, requestID(c), req)
	if err != nil {
		return writeGenerationError(c, err)
	}

	return c.JSON(PredictResponse{GeneratedText: result.Text})
}

// decodePredict parses the /predict body with the app's JSON decoder. A
// request without a Content-Type is still read as JSON.
func decodePredict(c *fiber.Ctx) (*generation.Request, error) {
	if len(bytes.TrimSpace(c.Body())) == 0 {
		return nil, generation.InvalidArgument("Request body must be a JSON object.")
	}

	if len(c.Request().Header.ContentType()) == 0 {
		return generation.DecodeRequest(c.Body())
	}

	if !c.Is("json") {
		return nil, generation.InvalidArgument("Content-Type must be application/json.")
	}

	req := &generation.Request{}
	if err := c.BodyParser(req); err != nil {
		return nil, generation.DecodeError(err)
	}

	return req, nil
}
