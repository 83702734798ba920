package msg

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

// Producer wraps a Kafka producer
type Producer struct {
	client       *kgo.Client
	logger       *zap.Logger
	produceCount int64
	errorCount   int64
	done         chan struct{}
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg *Config, logger *zap.Logger) (*Producer, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	p := &Producer{
		client: client,
		logger: logger,
		done:   make(chan struct{}),
	}

	logger.Info("producer initialized",
		zap.Strings("brokers", cfg.Brokers),
	)

	go p.logStats()

	return p, nil
}

// ProduceJSONAsync buffers a JSON message and returns at once. onErr is
// called from the client's goroutine if the produce fails.
func (p *Producer) ProduceJSONAsync(ctx context.Context, topic string, key string, v any, onErr func(error)) error {
	record, err := p.record(topic, key, v)
	if err != nil {
		return err
	}

	p.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			atomic.AddInt64(&p.errorCount, 1)
			if onErr != nil {
				onErr(fmt.Errorf("failed to produce message: %w", err))
			}
			return
		}
		atomic.AddInt64(&p.produceCount, 1)
	})
	return nil
}

func (p *Producer) record(topic, key string, v any) (*kgo.Record, error) {
	data, err := json.Marshal(v)
	if err != nil {
		atomic.AddInt64(&p.errorCount, 1)
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	return &kgo.Record{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
	}, nil
}

// Close flushes buffered records and closes the producer.
func (p *Producer) Close(ctx context.Context) {
	if p.done != nil {
		close(p.done)
	}
	if p.client == nil {
		return
	}
	if err := p.client.Flush(ctx); err != nil {
		p.logger.Warn("producer flush incomplete", zap.Error(err))
	}
	p.client.Close()
}

func (p *Producer) logStats() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			p.logger.Info("producer stats",
				zap.Int64("produced", atomic.LoadInt64(&p.produceCount)),
				zap.Int64("errors", atomic.LoadInt64(&p.errorCount)),
			)
		}
	}
}
