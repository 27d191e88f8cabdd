//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/Mathew005/aura-agent/internal/adapter/kafka"
	"github.com/Mathew005/aura-agent/internal/config"
	"github.com/Mathew005/aura-agent/internal/correlate"
	"github.com/Mathew005/aura-agent/internal/extract"
	"github.com/Mathew005/aura-agent/internal/observability"
	"github.com/Mathew005/aura-agent/internal/pipeline"
	"github.com/Mathew005/aura-agent/internal/scout"
	"github.com/Mathew005/aura-agent/internal/verify"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

const (
	testSourceTopic = "test-source"
	testSinkTopic   = "test-sink"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("aura-test"))
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err, "start kafka container")

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	cc, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer cc.Close()

	require.NoError(t, cc.CreateTopics(kafkago.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1}))
}

func testConfig(broker, group string) *config.Config {
	return &config.Config{
		KafkaBrokers:     []string{broker},
		KafkaSourceTopic: testSourceTopic,
		KafkaSinkTopic:   testSinkTopic,
		KafkaGroupID:     fmt.Sprintf("%s-%d", group, time.Now().UnixNano()),
	}
}

func produce(ctx context.Context, t *testing.T, broker string, msgs ...kafkago.Message) {
	t.Helper()
	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testSourceTopic}
	t.Cleanup(func() { _ = producer.Close() })
	require.NoError(t, producer.WriteMessages(ctx, msgs...))
}

func reportMessage(t *testing.T, text, source string) kafkago.Message {
	t.Helper()
	payload, err := json.Marshal(kafka.ReportMessage{Text: text, Source: source})
	require.NoError(t, err)
	return kafkago.Message{Value: payload}
}

// publishedEvent holds a deserialized message read from the sink topic.
type publishedEvent struct {
	Event   kafka.IncidentEvent
	Key     string
	Headers map[string]string
}

func readEvent(ctx context.Context, t *testing.T, consumer *kafkago.Reader) publishedEvent {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from sink topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var event kafka.IncidentEvent
	require.NoError(t, json.Unmarshal(msg.Value, &event), "unmarshal sink message")
	return publishedEvent{Event: event, Key: string(msg.Key), Headers: headers}
}

func sinkConsumer(t *testing.T, broker string) *kafkago.Reader {
	t.Helper()
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		GroupID:     fmt.Sprintf("test-sink-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })
	return consumer
}

func newOrchestrator(reader *kafka.Reader, writer *kafka.Writer) *pipeline.Orchestrator {
	metrics := observability.NewMetricsForTesting()
	return pipeline.New(pipeline.Deps{
		Feed:       reader,
		Extractor:  extract.Stub{},
		Strategist: scout.TemplateStrategist{},
		Gatherer:   scout.StubGatherer{},
		Verifier:   verify.New(nil, nil, nil, verify.DefaultThreshold, discardLogger(), metrics),
		Store:      correlate.New(correlate.WithMetrics(metrics)),
		Sink:       writer,
	}, pipeline.Config{IdleThreshold: time.Hour}, discardLogger(), metrics)
}

// TestKafkaReaderWriter verifies the adapter layer: kafka.Reader yields items
// from the source topic and kafka.Writer publishes consolidation events.
func TestKafkaReaderWriter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)
	cfg := testConfig(broker, "test-reader")

	msg := reportMessage(t, "Fire at the depot", "Local News")
	msg.Headers = []kafkago.Header{{Key: "source", Value: []byte("Dispatch")}}
	produce(ctx, t, broker, msg)

	// Retry because the consumer group may need time to rebalance before
	// partitions are assigned and messages become available.
	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	var text, source string
	for {
		item, ok, err := reader.Next(ctx)
		require.NoError(t, err)
		if ok {
			text, source = item.Text, item.Source
			break
		}
		if ctx.Err() != nil {
			t.Fatal("timed out waiting for message from source topic")
		}
	}
	assert.Equal(t, "Fire at the depot", text)
	assert.Equal(t, "Dispatch", source)

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })
	require.NoError(t, writer.Publish(ctx, correlate.Outcome{
		Action:     correlate.ActionCreated,
		IncidentID: 7,
	}))

	ev := readEvent(ctx, t, sinkConsumer(t, broker))
	assert.Equal(t, "7", ev.Key)
	assert.Equal(t, "created", ev.Headers["action"])
	_, err := time.Parse(time.RFC3339, ev.Headers["published_at"])
	assert.NoError(t, err, "published_at should be valid RFC3339")
}

// TestPipelineEndToEnd wires reader, orchestrator, and writer with real Kafka
// and checks that related reports consolidate into one incident.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)
	cfg := testConfig(broker, "test-pipeline")

	produce(ctx, t, broker,
		reportMessage(t, "Massive fire at the warehouse near the station", "Local News"),
		kafkago.Message{Value: []byte(`{"text": 42}`)},
		reportMessage(t, "Huge fire at the warehouse near the station, smoke everywhere", "Local News"),
		reportMessage(t, "Rising water flooding the underpass", "Local News"),
	)

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	orch := newOrchestrator(reader, writer)
	runCtx, runCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() {
		errCh <- orch.Run(runCtx, pipeline.RunConfig{Interval: 50 * time.Millisecond})
	}()

	consumer := sinkConsumer(t, broker)
	var events []publishedEvent
	for len(events) < 3 {
		events = append(events, readEvent(ctx, t, consumer))
	}

	runCancel()
	require.NoError(t, <-errCh)

	assert.Equal(t, correlate.ActionCreated, events[0].Event.Action)
	assert.Equal(t, "Fire", events[0].Headers["incident_type"])
	assert.Equal(t, correlate.ActionMerged, events[1].Event.Action)
	assert.Equal(t, events[0].Key, events[1].Key, "merge keeps the incident key")
	assert.Equal(t, 2, events[1].Event.ReportCount)
	assert.Equal(t, correlate.ActionCreated, events[2].Event.Action)
	assert.Equal(t, "Flood", events[2].Headers["incident_type"])
	assert.NotEqual(t, events[0].Key, events[2].Key)

	assert.Equal(t, 2, orch.Incidents())
	assert.Equal(t, int64(3), orch.Processed())

	// The undecodable message was skipped, so nothing else arrives.
	readCtx, readCancel := context.WithTimeout(ctx, 5*time.Second)
	_, err := consumer.ReadMessage(readCtx)
	readCancel()
	assert.Error(t, err, "expected no further message on sink topic")
}
