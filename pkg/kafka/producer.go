package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/Adithya-Monish-Kumar-K/termvec/pkg/config"
	"github.com/segmentio/kafka-go"
)

// Header names set on every produced message.
const (
	HeaderEventType     = "event-type"
	HeaderContentType   = "content-type"
	HeaderSchemaVersion = "schema-version"
)

// Event is the unit of data published to Kafka. Key is used for partition
// hashing and Value is JSON-serialised.
type Event struct {
	Key     string
	Type    string
	Value   any
	Headers map[string]string
}

// Producer publishes JSON-encoded events to a Kafka topic.
type Producer struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewProducer creates a Producer for the given topic. Each Publish call is
// written and acknowledged on its own.
func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              1,
		MaxAttempts:            3,
		WriteTimeout:           cfg.WriteTimeout,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: cfg.AutoCreateTopics,
	}
	return &Producer{
		writer: w,
		logger: slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

// Publish serialises a single event and writes it to Kafka synchronously.
func (p *Producer) Publish(ctx context.Context, event Event) error {
	msg, err := encode(event)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("failed to publish message",
			"key", event.Key,
			"event_type", event.Type,
			"error", err,
		)
		return fmt.Errorf("publishing to kafka: %w", err)
	}
	p.logger.Debug("message published",
		"key", event.Key,
		"event_type", event.Type,
		"value_size", len(msg.Value),
	)
	return nil
}

func encode(event Event) (kafka.Message, error) {
	value, err := json.Marshal(event.Value)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshaling event value: %w", err)
	}
	headers := []kafka.Header{{Key: HeaderContentType, Value: []byte("application/json")}}
	if event.Type != "" {
		headers = append(headers, kafka.Header{Key: HeaderEventType, Value: []byte(event.Type)})
	}
	for _, k := range slices.Sorted(maps.Keys(event.Headers)) {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(event.Headers[k])})
	}
	return kafka.Message{
		Key:     []byte(event.Key),
		Value:   value,
		Headers: headers,
	}, nil
}

// Close flushes pending writes and closes the underlying Kafka writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
