package msg

import (
	"encoding/json"
	"fmt"

	"github.com/geoffp/tradeproxy/internal/trade"
)

// Record represents a consumed Kafka record
type Record struct {
	Topic     string
	Key       string
	Value     []byte
	Partition int32
	Offset    int64
	Timestamp int64
}

// DecodeSignal parses a record value carrying the same JSON body that
// POST /trade accepts.
func DecodeSignal(rec Record) (trade.IncomingSignal, error) {
	var sig trade.IncomingSignal
	if err := json.Unmarshal(rec.Value, &sig); err != nil {
		return trade.IncomingSignal{}, fmt.Errorf("failed to decode signal at %s/%d/%d: %w", rec.Topic, rec.Partition, rec.Offset, err)
	}
	if err := sig.Validate(); err != nil {
		return trade.IncomingSignal{}, fmt.Errorf("invalid signal at %s/%d/%d: %w", rec.Topic, rec.Partition, rec.Offset, err)
	}
	return sig, nil
}
