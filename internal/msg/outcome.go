package msg

import (
	"context"

	"go.uber.org/zap"

	"github.com/geoffp/tradeproxy/internal/relay"
)

// OutcomeEvent is published once per dispatched command.
type OutcomeEvent struct {
	SignalID     string `json:"signal_id"`
	Signal       string `json:"signal"`
	DealAction   string `json:"deal_action"`
	BotRole      string `json:"bot_role"`
	BotID        uint64 `json:"bot_id"`
	Success      bool   `json:"success"`
	StatusCode   int    `json:"status_code,omitempty"`
	Error        string `json:"error,omitempty"`
	DurationMs   int64  `json:"duration_ms"`
	TsUnixMillis int64  `json:"ts_unix_millis"`
}

// NewOutcomeEvent flattens a relay record into its wire form.
func NewOutcomeEvent(rec relay.Record) OutcomeEvent {
	return OutcomeEvent{
		SignalID:     rec.SignalID,
		Signal:       rec.Signal,
		DealAction:   rec.DealAction,
		BotRole:      rec.BotRole,
		BotID:        rec.BotID,
		Success:      rec.Success,
		StatusCode:   rec.StatusCode,
		Error:        rec.Error,
		DurationMs:   rec.Duration().Milliseconds(),
		TsUnixMillis: rec.FinishedAt.UnixMilli(),
	}
}

type asyncProducer interface {
	ProduceJSONAsync(ctx context.Context, topic string, key string, v any, onErr func(error)) error
}

// OutcomePublisher is a relay.Sink that streams outcomes to Kafka. It never
// blocks the dispatch of the next command.
type OutcomePublisher struct {
	producer asyncProducer
	topic    string
	logger   *zap.Logger
}

// NewOutcomePublisher creates a publisher writing to topic.
func NewOutcomePublisher(producer asyncProducer, topic string, logger *zap.Logger) *OutcomePublisher {
	return &OutcomePublisher{producer: producer, topic: topic, logger: logger}
}

// RecordOutcome implements relay.Sink.
func (p *OutcomePublisher) RecordOutcome(ctx context.Context, rec relay.Record) {
	event := NewOutcomeEvent(rec)
	logFailure := func(err error) {
		p.logger.Warn("failed to publish outcome",
			zap.String("signal_id", rec.SignalID),
			zap.String("topic", p.topic),
			zap.Error(err),
		)
	}
	if err := p.producer.ProduceJSONAsync(ctx, p.topic, rec.SignalID, event, logFailure); err != nil {
		logFailure(err)
	}
}
