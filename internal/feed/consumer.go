package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"credence/internal/platform/metrics"
)

// Consumer reads content triples from the dissemination topic and feeds them
// into the cache. Malformed or hash-mismatched records are logged and skipped;
// the group offset still advances so one bad record cannot wedge the feed.
type Consumer struct {
	client  *kgo.Client
	service *Service
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// ConsumerOption configures the Consumer.
type ConsumerOption func(*Consumer)

func WithConsumerLogger(logger *slog.Logger) ConsumerOption {
	return func(c *Consumer) {
		c.logger = logger
	}
}

func WithConsumerMetrics(m *metrics.Metrics) ConsumerOption {
	return func(c *Consumer) {
		c.metrics = m
	}
}

// NewConsumer joins the given consumer group on the content topic.
func NewConsumer(brokers []string, group, topic string, service *Service, opts ...ConsumerOption) (*Consumer, error) {
	if service == nil {
		return nil, fmt.Errorf("feed service is required")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(group),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}

	c := &Consumer{
		client:  client,
		service: service,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Run polls until the context is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.client.Close()
	for {
		fetches := c.client.PollFetches(ctx)
		if err := ctx.Err(); err != nil {
			return err
		}
		if errs := fetches.Errors(); len(errs) > 0 {
			for _, fe := range errs {
				c.logger.ErrorContext(ctx, "fetch error",
					"topic", fe.Topic, "partition", fe.Partition, "error", fe.Err)
			}
		}
		fetches.EachRecord(func(record *kgo.Record) {
			c.handle(ctx, record)
		})
	}
}

func (c *Consumer) handle(ctx context.Context, record *kgo.Record) {
	var item ContentItem
	if err := json.Unmarshal(record.Value, &item); err != nil {
		c.logger.WarnContext(ctx, "skipping malformed content record",
			"offset", record.Offset, "error", err)
		return
	}
	if err := c.service.Ingest(ctx, item); err != nil {
		c.logger.WarnContext(ctx, "skipping rejected content record",
			"offset", record.Offset, "item", item.Hash, "error", err)
		return
	}
	if c.metrics != nil {
		c.metrics.ContentIngested.Inc()
	}
}
