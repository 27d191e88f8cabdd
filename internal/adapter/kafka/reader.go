package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Mathew005/aura-agent/internal/config"
	"github.com/Mathew005/aura-agent/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// DefaultPollTimeout bounds how long Next waits for a message before
// reporting the feed as empty.
const DefaultPollTimeout = 250 * time.Millisecond

// ReportMessage is the JSON shape of a raw report on the source topic.
// Messages that are not JSON objects are taken as plain report text.
type ReportMessage struct {
	Text   string `json:"text"`
	Source string `json:"source,omitempty"`
}

// Reader consumes raw reports from a Kafka topic. It implements the
// pipeline feed contract.
type Reader struct {
	reader      *kafkago.Reader
	pollTimeout time.Duration
	logger      *slog.Logger
}

// NewReader creates a consumer-group reader for the configured source topic.
func NewReader(cfg *config.Config, logger *slog.Logger) *Reader {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  cfg.KafkaBrokers,
		Topic:    cfg.KafkaSourceTopic,
		GroupID:  cfg.KafkaGroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Reader{reader: r, pollTimeout: DefaultPollTimeout, logger: logger}
}

// Next fetches one message and commits it once decoded. Undecodable
// messages are committed and skipped so they cannot wedge the partition.
func (r *Reader) Next(ctx context.Context) (domain.Item, bool, error) {
	pollCtx, cancel := context.WithTimeout(ctx, r.pollTimeout)
	defer cancel()

	msg, err := r.reader.FetchMessage(pollCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return domain.Item{}, false, nil
		}
		return domain.Item{}, false, fmt.Errorf("fetch message: %w", err)
	}

	item, decodeErr := mapMessageToItem(msg)
	if err := r.reader.CommitMessages(ctx, msg); err != nil {
		r.logger.Warn("commit offset failed", "error", err,
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)
	}
	if decodeErr != nil {
		r.logger.Warn("skipping undecodable report", "error", decodeErr,
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)
		return domain.Item{}, false, nil
	}
	return item, true, nil
}

// Close closes the underlying reader.
func (r *Reader) Close() error {
	return r.reader.Close()
}

// mapMessageToItem decodes a report message. The source header, when set,
// overrides the source field of the payload.
func mapMessageToItem(msg kafkago.Message) (domain.Item, error) {
	item := domain.Item{Source: "Kafka (" + msg.Topic + ")", ReceivedAt: msg.Time}

	body := strings.TrimSpace(string(msg.Value))
	if strings.HasPrefix(body, "{") {
		var rm ReportMessage
		if err := json.Unmarshal(msg.Value, &rm); err != nil {
			return domain.Item{}, fmt.Errorf("decode report message: %w", err)
		}
		body = strings.TrimSpace(rm.Text)
		if rm.Source != "" {
			item.Source = rm.Source
		}
	}
	if body == "" {
		return domain.Item{}, errors.New("report message has no text")
	}
	item.Text = body

	for _, h := range msg.Headers {
		if h.Key == "source" && len(h.Value) > 0 {
			item.Source = string(h.Value)
		}
	}
	return item, nil
}
