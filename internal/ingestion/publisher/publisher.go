// Package publisher announces indexed documents on the document-vectorized
// Kafka topic. Writes go through a circuit breaker so a broker outage does
// not stall indexing.
package publisher

import (
	"context"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/termvec/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/termvec/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/termvec/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/termvec/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/termvec/pkg/resilience"
)

// EventWriter is satisfied by *kafka.Producer.
type EventWriter interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Publisher produces VectorizedEvents.
type Publisher struct {
	writer  EventWriter
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
}

// New creates a Publisher. cfg.CallTimeout bounds each write. m may be nil;
// otherwise the breaker state is exported as
// circuit_breaker_state{name="kafka-vectorized"}.
func New(writer EventWriter, cfg resilience.CircuitBreakerConfig, m *metrics.Metrics) *Publisher {
	const name = "kafka-vectorized"
	if m != nil {
		cfg.OnStateChange = func(name string, _, to resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		}
		m.CircuitBreakerState.WithLabelValues(name).Set(float64(resilience.StateClosed))
	}
	return &Publisher{
		writer:  writer,
		breaker: resilience.NewCircuitBreaker(name, cfg),
		logger:  slog.Default().With("component", "publisher"),
	}
}

// PublishVectorized announces doc. The returned error is informational; the
// document stays indexed either way.
func (p *Publisher) PublishVectorized(ctx context.Context, doc *corpus.Document) error {
	event := kafka.Event{
		Key:     doc.ID,
		Type:    ingestion.EventDocumentVectorized,
		Headers: map[string]string{kafka.HeaderSchemaVersion: ingestion.SchemaVersion},
		Value: ingestion.VectorizedEvent{
			DocumentID: doc.ID,
			Tag:        doc.Tag,
			Tokens:     doc.Tokens,
			Counts:     doc.Counts.Map(),
			IndexedAt:  doc.IndexedAt,
		},
	}
	err := p.breaker.Execute(ctx, func(ctx context.Context) error {
		return p.writer.Publish(ctx, event)
	})
	if err != nil {
		p.logger.Warn("vectorized event not published",
			"doc_id", doc.ID,
			"breaker_state", p.breaker.GetState().String(),
			"error", err,
		)
	}
	return err
}

// State reports the breaker state.
func (p *Publisher) State() resilience.State {
	return p.breaker.GetState()
}
