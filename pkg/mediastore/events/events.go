// Package events provides EventSink implementations for asset lifecycle
// notifications. Delivery is fire-and-forget: the service logs publish
// failures and never fails the primary request over them.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/harborlab/mediastore/pkg/mediastore"
)

// KafkaSink publishes lifecycle events to a Kafka topic.
type KafkaSink struct {
	writer *kafka.Writer
}

// NewKafkaSink creates a sink writing to the given brokers and topic.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		WriteTimeout: 5 * time.Second,
	}
	return &KafkaSink{writer: w}
}

func (s *KafkaSink) Publish(ctx context.Context, event mediastore.Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return err
	}

	// Keyed by asset so consumers see one asset's events in order.
	msg := kafka.Message{
		Key:   []byte(event.AssetID.String()),
		Value: value,
		Time:  event.At,
	}
	return s.writer.WriteMessages(ctx, msg)
}

// Close flushes and closes the underlying writer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

// LogSink writes events to the structured log. Used in development and as a
// fallback when no broker is configured.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink that logs each event at info level.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Publish(ctx context.Context, event mediastore.Event) error {
	s.logger.InfoContext(ctx, "media event",
		"type", event.Type,
		"asset_id", event.AssetID,
		"owner_id", event.OwnerID,
		"mime_type", event.MimeType,
		"size_bytes", event.SizeBytes)
	return nil
}

// NoopSink discards events. Useful in tests.
type NoopSink struct{}

// NewNoopSink creates a sink that drops every event.
func NewNoopSink() *NoopSink { return &NoopSink{} }

func (s *NoopSink) Publish(ctx context.Context, event mediastore.Event) error { return nil }
