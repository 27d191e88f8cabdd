package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/Mathew005/aura-agent/internal/config"
	"github.com/Mathew005/aura-agent/internal/correlate"
	kafkago "github.com/segmentio/kafka-go"
)

// IncidentEvent is published for every consolidation.
type IncidentEvent struct {
	correlate.Outcome
	ReportCount int       `json:"report_count"`
	PublishedAt time.Time `json:"published_at"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer produces consolidation events to a Kafka topic.
// It implements pipeline.Sink.
type Writer struct {
	writer messageWriter
	logger *slog.Logger
	now    func() time.Time
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger, now: time.Now}
}

// Publish writes one event keyed by incident id, so every update of an
// incident lands on the same partition in order.
func (w *Writer) Publish(ctx context.Context, outcome correlate.Outcome) error {
	msg, err := serializeToMessage(outcome, w.now())
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish incident %d: %w", outcome.IncidentID, err)
	}
	w.logger.Debug("incident event published", "incident_id", outcome.IncidentID, "action", outcome.Action)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals an outcome into a Kafka message.
func serializeToMessage(outcome correlate.Outcome, now time.Time) (kafkago.Message, error) {
	event := IncidentEvent{
		Outcome:     outcome,
		ReportCount: len(outcome.Incident.Reports),
		PublishedAt: now.UTC(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize incident event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(strconv.FormatInt(outcome.IncidentID, 10)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "action", Value: []byte(outcome.Action)},
			{Key: "incident_type", Value: []byte(outcome.Incident.Type)},
			{Key: "published_at", Value: []byte(event.PublishedAt.Format(time.RFC3339))},
		},
	}, nil
}
