package relay

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Record is the flattened summary of one outcome handed to sinks.
type Record struct {
	SignalID   string
	Signal     string
	DealAction string
	BotRole    string
	BotID      uint64
	Success    bool
	StatusCode int
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration is how long the attempt took.
func (r Record) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Sink receives every outcome after it has been logged.
type Sink interface {
	RecordOutcome(ctx context.Context, rec Record)
}

// Reporter classifies outcomes and logs them.
type Reporter struct {
	logger *zap.Logger
	sinks  []Sink
}

// NewReporter creates a reporter that also forwards records to sinks.
func NewReporter(logger *zap.Logger, sinks ...Sink) *Reporter {
	return &Reporter{logger: logger, sinks: sinks}
}

// Report logs the outcome and forwards it to every sink.
func (r *Reporter) Report(ctx context.Context, signalID, signal string, o Outcome) Record {
	rec := newRecord(signalID, signal, o)

	fields := []zap.Field{
		zap.String("signal_id", signalID),
		zap.String("deal_action", rec.DealAction),
		zap.String("bot_role", rec.BotRole),
		zap.Uint64("bot_id", rec.BotID),
		zap.Duration("duration", o.Duration()),
	}

	if rec.Success {
		r.logger.Info("deal request successful",
			append(fields, zap.Int("status", o.StatusCode))...,
		)
	} else {
		if o.Err != nil {
			fields = append(fields, zap.Error(o.Err))
		} else {
			fields = append(fields, zap.Int("status", o.StatusCode))
		}
		r.logger.Warn("deal request failed", fields...)
		r.logger.Debug("deal request result content",
			zap.String("signal_id", signalID),
			zap.String("url", o.URL),
			zap.ByteString("body", o.Body),
		)
	}

	for _, s := range r.sinks {
		s.RecordOutcome(ctx, rec)
	}
	return rec
}

func newRecord(signalID, signal string, o Outcome) Record {
	rec := Record{
		SignalID:   signalID,
		Signal:     signal,
		DealAction: o.Command.Deal.String(),
		BotRole:    o.Command.Role.String(),
		BotID:      o.Command.BotID,
		Success:    o.Success(),
		StatusCode: o.StatusCode,
		StartedAt:  o.StartedAt,
		FinishedAt: o.FinishedAt,
	}
	if o.Err != nil {
		rec.Error = o.Err.Error()
	}
	return rec
}
