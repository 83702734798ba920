package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServiceName is the name used in logs and health reporting.
const ServiceName = "tradeproxy"

// EnvPrefix prefixes every environment override, e.g. TP_LONG_BOT_ID.
const EnvPrefix = "TP_"

// Settings holds configuration for the relay service
type Settings struct {
	// Inbound listener port for POST /trade
	ListenPort int `yaml:"listen_port" validate:"min=1,max=65535"`

	// 3Commas bot addressed for long exposure
	LongBotID uint64 `yaml:"long_bot_id" validate:"required"`

	// 3Commas bot addressed for short exposure
	ShortBotID uint64 `yaml:"short_bot_id" validate:"required"`

	// Token sent as email_token with every command
	EmailToken string `yaml:"email_token" validate:"required"`

	// Remote API base URL and path
	RequestServer string `yaml:"request_server" validate:"required,url"`
	RequestPath   string `yaml:"request_path" validate:"required,startswith=/"`

	// Source addresses TradingView sends alerts from
	TradingViewIPs []string `yaml:"tradingview_api_ips" validate:"dive,ip"`

	// Reject requests from addresses outside TradingViewIPs
	EnforceAllowList bool `yaml:"enforce_allow_list"`

	// Log level: debug, info, warn, error
	LogLevel string `yaml:"log_level" validate:"oneof=debug info warn error"`

	// Directory for the log file; empty logs to stderr only
	LogPath string `yaml:"log_path"`

	// Health server ports
	HTTPPort int `yaml:"http_port" validate:"min=1,max=65535"`
	GRPCPort int `yaml:"grpc_port" validate:"min=1,max=65535"`

	// Kafka brokers (comma-separated); empty disables Kafka
	KafkaBrokers  string `yaml:"kafka_brokers"`
	SignalTopic   string `yaml:"signal_topic" validate:"required_with=KafkaBrokers"`
	OutcomeTopic  string `yaml:"outcome_topic" validate:"required_with=KafkaBrokers"`
	ConsumerGroup string `yaml:"consumer_group" validate:"required_with=KafkaBrokers"`
}

// Default returns the settings used when no file or environment overrides them.
func Default() Settings {
	return Settings{
		ListenPort:    3137,
		LongBotID:     1234567,
		ShortBotID:    7654321,
		EmailToken:    "89abcdef-789a-bcde-f012-456789abcdef",
		RequestServer: "https://3commas.io",
		RequestPath:   "/trade_signal/trading_view",
		TradingViewIPs: []string{
			"52.89.214.238",
			"34.212.75.30",
			"54.218.53.128",
			"52.32.178.7",
		},
		LogLevel:      "info",
		HTTPPort:      8080,
		GRPCPort:      50051,
		SignalTopic:   "tradeproxy.signals",
		OutcomeTopic:  "tradeproxy.outcomes",
		ConsumerGroup: "tradeproxy-v1",
	}
}

// Options controls where Load looks for configuration.
type Options struct {
	// Files merged in order if they exist
	OptionalFiles []string

	// File that must exist when set (TP_CONFIG_FILE)
	RequiredFile string

	// .env file loaded before environment overrides
	DotEnvFile string
}

// DefaultOptions returns the standard lookup locations.
func DefaultOptions() Options {
	opts := Options{
		OptionalFiles: []string{filepath.Join("config", "default.yaml")},
		RequiredFile:  os.Getenv(EnvPrefix + "CONFIG_FILE"),
		DotEnvFile:    ".env",
	}
	if dir, err := os.UserConfigDir(); err == nil {
		opts.OptionalFiles = append(opts.OptionalFiles, filepath.Join(dir, ServiceName, "config.yaml"))
	}
	return opts
}

// Load builds Settings from defaults, YAML files, .env and TP_* variables,
// then validates the result.
func Load(opts Options) (Settings, error) {
	s := Default()

	for _, path := range opts.OptionalFiles {
		if err := mergeFile(&s, path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return Settings{}, err
		}
	}

	if opts.RequiredFile != "" {
		if err := mergeFile(&s, opts.RequiredFile); err != nil {
			return Settings{}, err
		}
	}

	if opts.DotEnvFile != "" {
		// godotenv never overrides variables already set in the process
		if err := godotenv.Load(opts.DotEnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Settings{}, fmt.Errorf("failed to load %s: %w", opts.DotEnvFile, err)
		}
	}

	if err := applyEnv(&s); err != nil {
		return Settings{}, err
	}

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func mergeFile(s *Settings, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(s); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to decode config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(s *Settings) error {
	var err error
	s.ListenPort, err = getEnvAsInt("LISTEN_PORT", s.ListenPort)
	if err != nil {
		return err
	}
	s.LongBotID, err = getEnvAsUint("LONG_BOT_ID", s.LongBotID)
	if err != nil {
		return err
	}
	s.ShortBotID, err = getEnvAsUint("SHORT_BOT_ID", s.ShortBotID)
	if err != nil {
		return err
	}
	s.HTTPPort, err = getEnvAsInt("HTTP_PORT", s.HTTPPort)
	if err != nil {
		return err
	}
	s.GRPCPort, err = getEnvAsInt("GRPC_PORT", s.GRPCPort)
	if err != nil {
		return err
	}
	s.EnforceAllowList, err = getEnvAsBool("ENFORCE_ALLOW_LIST", s.EnforceAllowList)
	if err != nil {
		return err
	}

	s.EmailToken = getEnvAsString("EMAIL_TOKEN", s.EmailToken)
	s.RequestServer = getEnvAsString("REQUEST_SERVER", s.RequestServer)
	s.RequestPath = getEnvAsString("REQUEST_PATH", s.RequestPath)
	s.LogLevel = strings.ToLower(getEnvAsString("LOG_LEVEL", s.LogLevel))
	s.LogPath = getEnvAsString("LOG_PATH", s.LogPath)
	s.KafkaBrokers = getEnvAsString("KAFKA_BROKERS", s.KafkaBrokers)
	s.SignalTopic = getEnvAsString("SIGNAL_TOPIC", s.SignalTopic)
	s.OutcomeTopic = getEnvAsString("OUTCOME_TOPIC", s.OutcomeTopic)
	s.ConsumerGroup = getEnvAsString("CONSUMER_GROUP", s.ConsumerGroup)

	if ips := os.Getenv(EnvPrefix + "TRADINGVIEW_API_IPS"); ips != "" {
		s.TradingViewIPs = splitList(ips)
	}
	return nil
}

// Validate checks the settings for values the relay cannot run with.
func (s Settings) Validate() error {
	if err := validator.New().Struct(s); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	return nil
}

// ListenAddr returns the inbound listener address
func (s Settings) ListenAddr() string {
	return fmt.Sprintf(":%d", s.ListenPort)
}

// HTTPAddr returns the health HTTP server address
func (s Settings) HTTPAddr() string {
	return fmt.Sprintf(":%d", s.HTTPPort)
}

// GRPCAddr returns the gRPC health server address
func (s Settings) GRPCAddr() string {
	return fmt.Sprintf(":%d", s.GRPCPort)
}

// Brokers returns the Kafka broker list, or nil when Kafka is disabled.
func (s Settings) Brokers() []string {
	if strings.TrimSpace(s.KafkaBrokers) == "" {
		return nil
	}
	return splitList(s.KafkaBrokers)
}

// IsTradingViewIP reports whether ip is one of the configured alert sources.
func (s Settings) IsTradingViewIP(ip string) bool {
	for _, known := range s.TradingViewIPs {
		if known == ip {
			return true
		}
	}
	return false
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvAsString(key, defaultValue string) string {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(EnvPrefix + key)
	if value == "" {
		return defaultValue, nil
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err)
	}
	return intValue, nil
}

func getEnvAsUint(key string, defaultValue uint64) (uint64, error) {
	value := os.Getenv(EnvPrefix + key)
	if value == "" {
		return defaultValue, nil
	}
	uintValue, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err)
	}
	return uintValue, nil
}

func getEnvAsBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(EnvPrefix + key)
	if value == "" {
		return defaultValue, nil
	}
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err)
	}
	return boolValue, nil
}
