// Package redpanda publishes evaluation events to a Redpanda/Kafka topic.
package redpanda

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"
	"go.opentelemetry.io/otel"

	"github.com/miporis/compliance-evaluator/internal/adapter/observability"
	"github.com/miporis/compliance-evaluator/internal/domain"
)

// EventTypeEvaluationCompleted is sent in the event_type header.
const EventTypeEvaluationCompleted = "evaluation.completed"

// producer is the subset of *kgo.Client the publisher needs.
type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// Publisher implements domain.EventPublisher.
type Publisher struct {
	client producer
	topic  string
	ping   func(context.Context) error
}

// NewPublisher connects to brokers, makes sure topic exists and returns a
// Publisher for it. Topic creation failures are logged, not fatal.
func NewPublisher(ctx context.Context, brokers []string, topic string) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("op=redpanda.NewPublisher: no seed brokers provided")
	}
	kotelService := kotel.NewKotel(kotel.WithTracer(kotel.NewTracer(kotel.TracerProvider(otel.GetTracerProvider()))))
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.WithHooks(kotelService.Hooks()...),
		kgo.RequestRetries(10),
		kgo.ProducerLinger(5*time.Millisecond),
		kgo.ProducerBatchMaxBytes(1_000_000),
		kgo.DialTimeout(10*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("op=redpanda.NewPublisher: %w", err)
	}
	if err := createTopicIfNotExists(ctx, client, topic, 3, 1); err != nil {
		slog.Warn("failed to create topic, it may already exist", slog.String("topic", topic), slog.Any("error", err))
	}
	slog.Info("redpanda publisher created", slog.Any("brokers", brokers), slog.String("topic", topic))
	return &Publisher{client: client, topic: topic, ping: client.Ping}, nil
}

// PublishEvaluation produces ev keyed by control so that events for one
// control stay ordered within a partition.
func (p *Publisher) PublishEvaluation(ctx domain.Context, ev domain.EvaluationCompleted) error {
	b, err := json.Marshal(ev)
	if err != nil {
		observability.EventsPublishedTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("op=redpanda.publish: marshal: %w", err)
	}
	rec := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(domain.ControlKey{ControlID: ev.ControlID, UserID: ev.UserID}.String()),
		Value: b,
		Headers: []kgo.RecordHeader{
			{Key: "event_id", Value: []byte(ev.EventID)},
			{Key: "event_type", Value: []byte(EventTypeEvaluationCompleted)},
			{Key: "control_type", Value: []byte(ev.ControlType)},
		},
	}
	if err := p.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		observability.EventsPublishedTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("op=redpanda.publish event_id=%s: %w", ev.EventID, err)
	}
	observability.EventsPublishedTotal.WithLabelValues("ok").Inc()
	return nil
}

// Ping checks broker connectivity.
func (p *Publisher) Ping(ctx context.Context) error {
	if p.ping == nil {
		return nil
	}
	return p.ping(ctx)
}

// Close flushes and closes the client.
func (p *Publisher) Close() error {
	if p.client != nil {
		p.client.Close()
	}
	return nil
}
