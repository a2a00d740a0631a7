package kafka

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	"registrar/internal/platform/config"
	"registrar/internal/platform/metrics"
)

// Message is one consumed record.
type Message struct {
	Topic string
	Key   []byte
	Value []byte
}

// TopicHandler handles messages from a specific topic.
type TopicHandler interface {
	Handle(ctx context.Context, msg *Message) error
}

// Consumer pulls from the broker as one consumer group and dispatches each
// record to its topic handler. Records are committed only after the handler
// returns nil, giving at-least-once delivery; handlers must be idempotent.
type Consumer struct {
	client   *kgo.Client
	handlers map[string]TopicHandler
	workers  int
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewConsumer joins the configured group subscribed to every topic that has
// a handler.
func NewConsumer(cfg config.KafkaConfig, handlers map[string]TopicHandler, logger *slog.Logger, m *metrics.Metrics) (*Consumer, error) {
	topics := make([]string, 0, len(handlers))
	for topic := range handlers {
		topics = append(topics, topic)
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.ConsumerGroup),
		kgo.ConsumeTopics(topics...),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer client: %w", err)
	}

	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	return &Consumer{
		client:   client,
		handlers: handlers,
		workers:  workers,
		logger:   logger,
		metrics:  m,
	}, nil
}

// Run polls until the context is cancelled. Each poll's records are handled
// by a bounded worker pool; only successfully handled records are committed,
// failed ones are redelivered later.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.client.Close()

	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.Error("fetch error", "topic", topic, "partition", partition, "error", err)
		})

		var records []*kgo.Record
		fetches.EachRecord(func(record *kgo.Record) {
			records = append(records, record)
		})
		if len(records) == 0 {
			continue
		}

		handled := make([]*kgo.Record, len(records))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(c.workers)
		for i, record := range records {
			i, record := i, record
			g.Go(func() error {
				if err := c.handle(gctx, record); err != nil {
					c.metrics.ConsumerHandleErr.WithLabelValues(record.Topic).Inc()
					c.logger.Error("handler failed, record will be redelivered",
						"topic", record.Topic,
						"partition", record.Partition,
						"offset", record.Offset,
						"error", err,
					)
					return nil
				}
				handled[i] = record
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		commits := make([]*kgo.Record, 0, len(handled))
		for _, record := range handled {
			if record != nil {
				commits = append(commits, record)
			}
		}
		if len(commits) == 0 {
			continue
		}
		if err := c.client.CommitRecords(ctx, commits...); err != nil {
			c.logger.Error("commit failed", "error", err)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, record *kgo.Record) error {
	handler, ok := c.handlers[record.Topic]
	if !ok {
		// No handler means a subscription bug; skip and commit so the
		// partition does not wedge.
		c.logger.Warn("no handler for topic, skipping message",
			"topic", record.Topic,
			"key", string(record.Key),
		)
		return nil
	}
	return handler.Handle(ctx, &Message{
		Topic: record.Topic,
		Key:   record.Key,
		Value: record.Value,
	})
}
