package msg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/geoffp/tradeproxy/internal/config"
	"github.com/geoffp/tradeproxy/internal/relay"
	"github.com/geoffp/tradeproxy/internal/trade"
)

func TestConfigFromSettings(t *testing.T) {
	s := config.Default()
	assert.Nil(t, ConfigFromSettings(s))

	s.KafkaBrokers = "k1:9092, k2:9092"
	cfg := ConfigFromSettings(s)
	require.NotNil(t, cfg)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Brokers)
	assert.Equal(t, "tradeproxy.signals", cfg.SignalTopic)
	assert.Equal(t, "tradeproxy.outcomes", cfg.OutcomeTopic)
	assert.Equal(t, "tradeproxy-v1", cfg.Group)
}

func TestDecodeSignal(t *testing.T) {
	sig, err := DecodeSignal(Record{Value: []byte(`{"action":"sell","contracts":"2.5","ticker":"BTCUSD"}`)})
	require.NoError(t, err)
	assert.Equal(t, trade.Sell, sig.Action)
	assert.Equal(t, "2.5", sig.ContractsString())

	sig, err = DecodeSignal(Record{Value: []byte(`{"action":"BUY"}`)})
	require.NoError(t, err)
	assert.Equal(t, trade.Buy, sig.Action)

	rejects := []string{
		`not json`,
		`{"wrong":"json"}`,
		`{"action":"hold"}`,
		`{"action":1}`,
	}
	for _, v := range rejects {
		_, err := DecodeSignal(Record{Topic: "tradeproxy.signals", Value: []byte(v)})
		assert.Error(t, err, v)
	}
}

func TestConsumerProcess(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	c := &Consumer{logger: zap.New(core)}

	var seen []trade.Signal
	handler := func(_ context.Context, rec Record) error {
		sig, err := DecodeSignal(rec)
		if err != nil {
			return err
		}
		seen = append(seen, sig.Action)
		return nil
	}

	c.process(context.Background(), Record{Value: []byte(`{"action":"buy"}`)}, handler)
	c.process(context.Background(), Record{Key: "bad", Value: []byte(`{}`)}, handler)
	c.process(context.Background(), Record{Value: []byte(`{"action":"sell"}`)}, handler)

	assert.Equal(t, []trade.Signal{trade.Buy, trade.Sell}, seen)
	assert.Equal(t, int64(2), c.handled)
	assert.Equal(t, int64(1), c.errorCount)

	dropped := logs.FilterMessage("dropping record").All()
	require.Len(t, dropped, 1)
	assert.Equal(t, "bad", dropped[0].ContextMap()["key"])
}

func batch(values ...string) []*kgo.Record {
	records := make([]*kgo.Record, len(values))
	for i, v := range values {
		records[i] = &kgo.Record{Topic: "tradeproxy.signals", Offset: int64(i), Value: []byte(v)}
	}
	return records
}

func TestConsumerHandleBatch_StopsWhenCancelled(t *testing.T) {
	c := &Consumer{logger: zap.NewNop()}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var offsets []int64
	handler := func(_ context.Context, rec Record) error {
		offsets = append(offsets, rec.Offset)
		if rec.Offset == 1 {
			cancel()
		}
		return nil
	}

	handled := c.handleBatch(ctx, batch(`{"action":"buy"}`, `{"action":"sell"}`, `{"action":"buy"}`, `{"action":"sell"}`), handler)

	assert.Equal(t, []int64{0, 1}, offsets, "no handler call after cancellation")
	require.Len(t, handled, 2)
	assert.Equal(t, int64(1), handled[1].Offset, "record handled before cancel is still committed")
}

func TestConsumerHandleBatch_AlreadyCancelled(t *testing.T) {
	c := &Consumer{logger: zap.NewNop()}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	handled := c.handleBatch(ctx, batch(`{"action":"buy"}`), func(context.Context, Record) error {
		calls++
		return nil
	})

	assert.Zero(t, calls)
	assert.Empty(t, handled)
}

func TestConsumerHandleBatch_FailedRecordsAreCommitted(t *testing.T) {
	c := &Consumer{logger: zap.NewNop()}

	handled := c.handleBatch(context.Background(), batch(`{}`, `{"action":"buy"}`), func(_ context.Context, rec Record) error {
		_, err := DecodeSignal(rec)
		return err
	})

	assert.Len(t, handled, 2)
	assert.Equal(t, int64(1), c.errorCount)
	assert.Equal(t, int64(1), c.handled)
}

type fakeProducer struct {
	topic  string
	key    string
	value  any
	err    error
	asyncE error
}

func (f *fakeProducer) ProduceJSONAsync(_ context.Context, topic string, key string, v any, onErr func(error)) error {
	if f.err != nil {
		return f.err
	}
	f.topic, f.key, f.value = topic, key, v
	if f.asyncE != nil {
		onErr(f.asyncE)
	}
	return nil
}

func TestOutcomePublisher(t *testing.T) {
	start := time.UnixMilli(1_700_000_000_000)
	rec := relay.Record{
		SignalID:   "sig-1",
		Signal:     "buy",
		DealAction: "close",
		BotRole:    "short",
		BotID:      7654321,
		Success:    false,
		StatusCode: 501,
		StartedAt:  start,
		FinishedAt: start.Add(120 * time.Millisecond),
	}

	fp := &fakeProducer{}
	NewOutcomePublisher(fp, "tradeproxy.outcomes", zap.NewNop()).RecordOutcome(context.Background(), rec)

	assert.Equal(t, "tradeproxy.outcomes", fp.topic)
	assert.Equal(t, "sig-1", fp.key)
	assert.Equal(t, OutcomeEvent{
		SignalID:     "sig-1",
		Signal:       "buy",
		DealAction:   "close",
		BotRole:      "short",
		BotID:        7654321,
		StatusCode:   501,
		DurationMs:   120,
		TsUnixMillis: 1_700_000_000_120,
	}, fp.value)
}

func TestOutcomePublisher_LogsFailures(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	logger := zap.New(core)

	NewOutcomePublisher(&fakeProducer{err: errors.New("marshal")}, "t", logger).
		RecordOutcome(context.Background(), relay.Record{SignalID: "a"})
	NewOutcomePublisher(&fakeProducer{asyncE: errors.New("broker down")}, "t", logger).
		RecordOutcome(context.Background(), relay.Record{SignalID: "b"})

	assert.Equal(t, 2, logs.FilterMessage("failed to publish outcome").Len())
}
