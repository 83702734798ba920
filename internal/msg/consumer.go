package msg

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

const commitTimeout = 5 * time.Second

// Handler processes one record. A returned error is logged and the record
// is still committed; signals are never redelivered.
type Handler func(context.Context, Record) error

// Consumer wraps a Kafka consumer
type Consumer struct {
	client     *kgo.Client
	logger     *zap.Logger
	topics     []string
	group      string
	running    int32
	handled    int64
	errorCount int64
	done       chan struct{}
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(cfg *Config, logger *zap.Logger) (*Consumer, error) {
	topics := []string{cfg.SignalTopic}
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.ConsumerGroup(cfg.Group),
		kgo.ConsumeTopics(topics...),
		kgo.DisableAutoCommit(),
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	c := &Consumer{
		client: client,
		logger: logger,
		topics: topics,
		group:  cfg.Group,
		done:   make(chan struct{}),
	}

	logger.Info("consumer initialized",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("group", cfg.Group),
		zap.Strings("topics", topics),
	)

	go c.logStats()

	return c, nil
}

// Run consumes records until ctx is done, calling handler for each one. No
// handler call starts after ctx is done, so callers may drain downstream
// work once Run has returned.
func (c *Consumer) Run(ctx context.Context, handler Handler) error {
	c.logger.Info("starting consumer",
		zap.String("group", c.group),
		zap.Strings("topics", c.topics),
	)

	atomic.StoreInt32(&c.running, 1)
	defer atomic.StoreInt32(&c.running, 0)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("consumer stopping", zap.String("group", c.group))
			return ctx.Err()
		default:
			fetches := c.client.PollFetches(ctx)
			if fetches.IsClientClosed() {
				return fmt.Errorf("kafka client closed")
			}
			fetches.EachError(func(topic string, partition int32, err error) {
				if ctx.Err() == nil {
					c.logger.Warn("fetch error",
						zap.String("topic", topic),
						zap.Int32("partition", partition),
						zap.Error(err),
					)
				}
			})

			handled := c.handleBatch(ctx, fetches.Records(), handler)
			c.commit(ctx, handled)
		}
	}
}

// handleBatch runs handler over records in order and returns the ones it
// handled. It stops as soon as ctx is done; the rest stay uncommitted and
// are delivered again after a restart.
func (c *Consumer) handleBatch(ctx context.Context, records []*kgo.Record, handler Handler) []*kgo.Record {
	handled := make([]*kgo.Record, 0, len(records))
	for _, record := range records {
		if ctx.Err() != nil {
			c.logger.Info("stopping mid-batch",
				zap.Int("handled", len(handled)),
				zap.Int("left", len(records)-len(handled)),
			)
			break
		}
		c.process(ctx, toRecord(record), handler)
		handled = append(handled, record)
	}
	return handled
}

// commit marks handled records done. It outlives ctx so records handled
// just before shutdown are not redelivered.
func (c *Consumer) commit(ctx context.Context, records []*kgo.Record) {
	if len(records) == 0 {
		return
	}
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()

	if err := c.client.CommitRecords(commitCtx, records...); err != nil {
		last := records[len(records)-1]
		c.logger.Error("commit failed",
			zap.String("topic", last.Topic),
			zap.Int64("offset", last.Offset),
			zap.Int("records", len(records)),
			zap.Error(err),
		)
	}
}

// process runs handler once. Failures are counted and logged, never retried.
func (c *Consumer) process(ctx context.Context, rec Record, handler Handler) {
	if err := handler(ctx, rec); err != nil {
		atomic.AddInt64(&c.errorCount, 1)
		c.logger.Warn("dropping record",
			zap.String("topic", rec.Topic),
			zap.String("key", rec.Key),
			zap.Int64("offset", rec.Offset),
			zap.Error(err),
		)
		return
	}
	atomic.AddInt64(&c.handled, 1)
}

func toRecord(r *kgo.Record) Record {
	return Record{
		Topic:     r.Topic,
		Key:       string(r.Key),
		Value:     r.Value,
		Partition: r.Partition,
		Offset:    r.Offset,
		Timestamp: r.Timestamp.UnixMilli(),
	}
}

// Close closes the consumer
func (c *Consumer) Close() {
	if c.done != nil {
		close(c.done)
	}
	if c.client != nil {
		c.client.Close()
	}
}

// IsRunning returns whether the consumer is running
func (c *Consumer) IsRunning() bool {
	return atomic.LoadInt32(&c.running) == 1
}

func (c *Consumer) logStats() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.logger.Info("consumer stats",
				zap.String("group", c.group),
				zap.Int64("handled", atomic.LoadInt64(&c.handled)),
				zap.Int64("errors", atomic.LoadInt64(&c.errorCount)),
			)
		}
	}
}
