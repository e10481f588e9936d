package api

import (
	"context"
	"time"

	"github.com/papercomputeco/textgen/pkg/eventstream"
	"github.com/papercomputeco/textgen/pkg/generation"
	"github.com/papercomputeco/textgen/pkg/metrics"
)

const (
	serviceName = "textgen"

	sourceHTTP = "http"
	sourceMCP  = "mcp"
)

// generate runs req through the generator and records metrics and the
// completion event. Publishing failures are logged and never fail the
// request.
func (s *Server) generate(ctx context.Context, source, requestID string, req *generation.Request) (*generation.Result, error) {
	start := time.Now()

	result, err := s.generator.Generate(ctx, req)
	if err != nil {
		s.metrics.ObserveRequest(source, deviceLabel(req, err), generation.KindOf(err).String(), time.Since(start))
		return nil, err
	}

	device := result.Device.String()
	s.metrics.ObserveRequest(source, device, metrics.OutcomeOK, time.Since(start))
	s.metrics.ObserveTokens(device, result.PromptTokens, result.OutputTokens-result.PromptTokens)

	s.publish(ctx, source, requestID, result)

	return result, nil
}

func (s *Server) publish(ctx context.Context, source, requestID string, result *generation.Result) {
	if s.config.Publisher == nil {
		return
	}

	event := eventstream.NewGenerationCompletedEvent(
		eventstream.EventSource{
			Service:   serviceName,
			Surface:   source,
			RequestID: requestID,
		},
		eventstream.GenerationMeta{
			Device:       result.Device.String(),
			MaxLength:    result.Params.MaxLength,
			Temperature:  result.Params.Temperature,
			TopK:         result.Params.TopK,
			TopP:         result.Params.TopP,
			DoSample:     result.Params.DoSample,
			PromptTokens: result.PromptTokens,
			OutputTokens: result.OutputTokens,
			DurationMs:   result.Duration.Milliseconds(),
		},
	)

	if err := s.config.Publisher.PublishGeneration(context.WithoutCancel(ctx), event); err != nil {
		s.logger.Warn("failed to publish generation event",
			"event_id", event.EventID,
			"error", err,
		)
	}
}

// deviceLabel names the device a failed request targeted, or DeviceNone
// when the request never got as far as choosing one.
func deviceLabel(req *generation.Request, err error) string {
	if req == nil || generation.KindOf(err) == generation.KindInvalidArgument {
		return metrics.DeviceNone
	}
	if req.Device == nil {
		return generation.DeviceCPU.String()
	}

	d, parseErr := generation.ParseDevice(*req.Device)
	if parseErr != nil {
		return metrics.DeviceNone
	}
	return d.String()
}
