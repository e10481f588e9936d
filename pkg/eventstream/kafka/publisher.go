// Package kafka publishes generation events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/textgen/pkg/eventstream"
)

const (
	// DefaultTopic is the topic used when none is configured.
	DefaultTopic = "textgen.generations"

	headerEventType     = "event_type"
	headerSchemaVersion = "schema_version"

	defaultBatchTimeout = 50 * time.Millisecond
)

// Config holds configuration for the Kafka publisher.
type Config struct {
	// Brokers is the list of bootstrap broker addresses. Required.
	Brokers []string

	// Topic defaults to DefaultTopic.
	Topic string

	// Async makes PublishGeneration return before the broker acknowledges.
	// Delivery errors are then only logged.
	Async bool

	// Logger is required.
	Logger *slog.Logger
}

// messageWriter is the subset of *kafkago.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher writes each event as one JSON message keyed by device.
type Publisher struct {
	writer messageWriter
	topic  string
	logger *slog.Logger
}

// NewPublisher creates a Kafka-backed publisher.
func NewPublisher(c Config) (*Publisher, error) {
	if len(c.Brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if c.Logger == nil {
		return nil, errors.New("logger is required")
	}

	topic := c.Topic
	if topic == "" {
		topic = DefaultTopic
	}

	logger := c.Logger.With("topic", topic)

	writer := &kafkago.Writer{
		Addr:                   kafkago.TCP(c.Brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireOne,
		BatchTimeout:           defaultBatchTimeout,
		AllowAutoTopicCreation: true,
		Async:                  c.Async,
		Completion: func(messages []kafkago.Message, err error) {
			if err != nil {
				logger.Warn("failed to deliver generation events",
					"count", len(messages),
					"error", err,
				)
			}
		},
	}

	return newPublisher(writer, topic, logger), nil
}

func newPublisher(w messageWriter, topic string, logger *slog.Logger) *Publisher {
	return &Publisher{
		writer: w,
		topic:  topic,
		logger: logger,
	}
}

// PublishGeneration marshals event and writes it to the topic.
func (p *Publisher) PublishGeneration(ctx context.Context, event *eventstream.GenerationCompletedEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	msg := kafkago.Message{
		Key:   []byte(event.Generation.Device),
		Value: payload,
		Time:  event.EmittedAt,
		Headers: []kafkago.Header{
			{Key: headerEventType, Value: []byte(event.EventType)},
			{Key: headerSchemaVersion, Value: []byte(fmt.Sprint(event.SchemaVersion))},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("writing to %s: %w", p.topic, err)
	}

	p.logger.Debug("published generation event", "event_id", event.EventID)
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

var _ eventstream.Publisher = (*Publisher)(nil)
