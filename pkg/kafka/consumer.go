// Package kafka provides Kafka producer and consumer clients backed by
// segmentio/kafka-go. Events travel as JSON with typed headers; consumed
// messages are handed to a MessageHandler and committed once handled.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/termvec/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/termvec/pkg/resilience"
	"github.com/segmentio/kafka-go"
)

// ErrSkip marks a message that can never be processed. The consumer commits
// past it without retrying.
var ErrSkip = errors.New("skip message")

// MessageHandler is a callback invoked for each Kafka message.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// Consumer reads messages from a Kafka topic and dispatches them to a
// MessageHandler. A handler error other than ErrSkip is retried with
// backoff; after the last attempt the message is logged and committed, since
// the reader has already moved past it.
type Consumer struct {
	reader       *kafka.Reader
	logger       *slog.Logger
	handler      MessageHandler
	retry        resilience.RetryConfig
	fetchBackoff time.Duration
}

// NewConsumer creates a Consumer for the given topic and handler. A new
// consumer group starts from the oldest retained document.
func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})

	return &Consumer{
		reader:       r,
		logger:       slog.Default().With("component", "kafka-consumer", "topic", topic),
		handler:      handler,
		retry:        resilience.RetryConfig{MaxAttempts: cfg.HandlerAttempts, InitialDelay: 200 * time.Millisecond, MaxDelay: 5 * time.Second},
		fetchBackoff: time.Second,
	}
}

// Start enters the consume loop, fetching and processing messages until ctx
// is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "reason", ctx.Err())
				return nil
			}
			c.logger.Error("failed to fetch message", "error", err, "backoff", c.fetchBackoff)
			select {
			case <-time.After(c.fetchBackoff):
			case <-ctx.Done():
				return nil
			}
			continue
		}
		c.logger.Debug("message received",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", string(msg.Key),
			"value_size", len(msg.Value),
			"event_type", header(msg, HeaderEventType),
		)
		c.process(ctx, msg)
		if ctx.Err() != nil {
			c.logger.Info("consumer stopping", "reason", ctx.Err(), "uncommitted_offset", msg.Offset)
			return nil
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("failed to commit message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) {
	err := resilience.Retry(ctx, "handle message", c.retry, func() error {
		err := c.handler(ctx, msg.Key, msg.Value)
		if errors.Is(err, ErrSkip) {
			return resilience.Permanent(err)
		}
		return err
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrSkip):
		c.logger.Warn("skipping message",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
	default:
		c.logger.Error("failed to process message, giving up",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
	}
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// Close closes the underlying Kafka reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// DecodeJSON is a generic helper that unmarshals a Kafka message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
