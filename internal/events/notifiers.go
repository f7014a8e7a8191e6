package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"

	"github.com/noah-isme/liff-store/internal/db"
	"github.com/noah-isme/liff-store/internal/resilience"
)

// LogNotifier writes every event to the structured log.
type LogNotifier struct {
	Logger zerolog.Logger
}

func (LogNotifier) Name() string { return "log" }

func (n LogNotifier) Notify(_ context.Context, ev db.DomainEvent) error {
	n.Logger.Info().
		Str("event_id", ev.ID.String()).
		Str("topic", ev.Topic).
		Str("aggregate_id", ev.AggregateID).
		RawJSON("payload", ev.Payload).
		Msg("domain event")
	return nil
}

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher streams events to one Kafka topic, keyed by aggregate id so that all events of
// one order or member stay in a single partition.
type KafkaPublisher struct {
	Writer  MessageWriter
	Timeout time.Duration
}

// NewKafkaWriter builds a synchronous writer for brokers and topic.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
}

func (KafkaPublisher) Name() string { return "kafka" }

type envelope struct {
	ID          string          `json:"id"`
	Topic       string          `json:"topic"`
	AggregateID string          `json:"aggregateId"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   time.Time       `json:"createdAt"`
}

func (p KafkaPublisher) Notify(ctx context.Context, ev db.DomainEvent) error {
	if p.Writer == nil {
		return errors.New("kafka writer not configured")
	}
	value, err := json.Marshal(envelope{
		ID:          ev.ID.String(),
		Topic:       ev.Topic,
		AggregateID: ev.AggregateID,
		Payload:     ev.Payload,
		CreatedAt:   ev.CreatedAt,
	})
	if err != nil {
		return err
	}
	headers := headerCarrier{{Key: "event-topic", Value: []byte(ev.Topic)}}
	otel.GetTextMapPropagator().Inject(ctx, &headers)

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.Writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(ev.AggregateID),
		Value:   value,
		Headers: []kafka.Header(headers),
		Time:    ev.CreatedAt,
	})
}

// Close flushes and closes the writer.
func (p KafkaPublisher) Close() error {
	if p.Writer == nil {
		return nil
	}
	return p.Writer.Close()
}

// headerCarrier adapts Kafka headers to the OpenTelemetry propagation carrier.
type headerCarrier []kafka.Header

func (c *headerCarrier) Get(key string) string {
	for _, h := range *c {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *headerCarrier) Set(key, value string) {
	for i, h := range *c {
		if h.Key == key {
			(*c)[i].Value = []byte(value)
			return
		}
	}
	*c = append(*c, kafka.Header{Key: key, Value: []byte(value)})
}

func (c *headerCarrier) Keys() []string {
	out := make([]string, 0, len(*c))
	for _, h := range *c {
		out = append(out, h.Key)
	}
	return out
}

// Guarded wraps a notifier with a circuit breaker so an unreachable broker fails fast instead
// of adding its timeout to every request that emits an event.
type Guarded struct {
	Notifier Notifier
	Breaker  *resilience.Breaker
}

func (g Guarded) Name() string { return g.Notifier.Name() }

func (g Guarded) Notify(ctx context.Context, ev db.DomainEvent) error {
	if g.Breaker == nil {
		return g.Notifier.Notify(ctx, ev)
	}
	return g.Breaker.Do(ctx, func(ctx context.Context) error {
		return g.Notifier.Notify(ctx, ev)
	})
}
