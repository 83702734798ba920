package msg

import (
	"github.com/geoffp/tradeproxy/internal/config"
)

// ClientID identifies this service to the brokers.
const ClientID = config.ServiceName

// Config holds Kafka configuration
type Config struct {
	Brokers      []string
	ClientID     string
	Group        string
	SignalTopic  string
	OutcomeTopic string
}

// ConfigFromSettings returns the Kafka configuration, or nil when no
// brokers are configured.
func ConfigFromSettings(s config.Settings) *Config {
	brokers := s.Brokers()
	if len(brokers) == 0 {
		return nil
	}
	return &Config{
		Brokers:      brokers,
		ClientID:     ClientID,
		Group:        s.ConsumerGroup,
		SignalTopic:  s.SignalTopic,
		OutcomeTopic: s.OutcomeTopic,
	}
}
