// Package kafka mirrors audit log entries to a Kafka topic so operational
// tooling outside the process can tail the stream. Publishing is
// fire-and-forget: a broker outage must never block a verification.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"verigate/internal/auditlog"
)

// DefaultTopic is the audit stream topic.
const DefaultTopic = "verigate.audit-log"

// Publisher implements auditlog.Mirror over a Kafka producer.
type Publisher struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithTopic(topic string) Option {
	return func(p *Publisher) {
		if topic != "" {
			p.topic = topic
		}
	}
}

// NewPublisher connects a producer to the given brokers.
func NewPublisher(brokers []string, opts ...Option) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}

	p := &Publisher{topic: DefaultTopic}
	for _, opt := range opts {
		opt(p)
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(p.topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	p.client = client
	return p, nil
}

// EnsureTopic creates the audit topic if it does not exist yet.
func (p *Publisher) EnsureTopic(ctx context.Context) error {
	admin := kadm.NewClient(p.client)
	_, err := admin.CreateTopic(ctx, 1, -1, nil, p.topic)
	if err != nil && !errors.Is(err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", p.topic, err)
	}
	return nil
}

// Publish sends one entry as a JSON record keyed by service. Delivery
// failures are logged, not surfaced; the in-process ring buffer remains the
// source of truth for queries.
func (p *Publisher) Publish(entry auditlog.Entry) {
	value, err := json.Marshal(entry)
	if err != nil {
		if p.logger != nil {
			p.logger.Error("failed to encode audit entry", "entry_id", entry.ID, "error", err)
		}
		return
	}

	record := &kgo.Record{Key: []byte(entry.Service), Value: value}
	p.client.Produce(context.Background(), record, func(_ *kgo.Record, err error) {
		if err != nil && p.logger != nil {
			p.logger.Error("failed to publish audit entry", "entry_id", entry.ID, "error", err)
		}
	})
}

// Health checks broker reachability.
func (p *Publisher) Health(ctx context.Context) error {
	return p.client.Ping(ctx)
}

// Close flushes pending records and releases the producer.
func (p *Publisher) Close(ctx context.Context) error {
	if err := p.client.Flush(ctx); err != nil {
		p.client.Close()
		return fmt.Errorf("flush audit publisher: %w", err)
	}
	p.client.Close()
	return nil
}
