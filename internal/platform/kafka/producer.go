// Package kafka wraps franz-go behind the small producer/consumer surface
// the pipeline needs: publish a payload verbatim, and route consumed records
// to per-topic handlers.
package kafka

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"registrar/internal/platform/config"
)

// Producer publishes bulk request payloads to the broker. Publishing is
// synchronous: the accept path must not acknowledge a batch that is not
// durably queued.
type Producer struct {
	client *kgo.Client
	logger *slog.Logger
}

// NewProducer connects a producer to the configured brokers.
func NewProducer(cfg config.KafkaConfig, logger *slog.Logger) (*Producer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	return &Producer{client: client, logger: logger}, nil
}

// Publish sends one record and waits for broker acknowledgment. The key
// keeps records for one tenant on one partition, preserving per-tenant
// ordering.
func (p *Producer) Publish(ctx context.Context, topic, key string, payload []byte) error {
	record := &kgo.Record{
		Topic: topic,
		Key:   []byte(key),
		Value: payload,
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce to %s: %w", topic, err)
	}
	return nil
}

// Close flushes and releases the client.
func (p *Producer) Close() {
	p.client.Close()
}
