package logging

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogFileName is the file written under the configured log directory.
const LogFileName = "tradeproxy.log"

// Log files roll over at MaxSizeMB and keep MaxBackups old files.
const (
	MaxSizeMB  = 1
	MaxBackups = 8
)

const rotateScheme = "rotate"

var (
	registerOnce sync.Once
	registerErr  error
)

type rotatingFile struct {
	*lumberjack.Logger
}

func (rotatingFile) Sync() error { return nil }

func registerRotatingSink() error {
	registerOnce.Do(func() {
		registerErr = zap.RegisterSink(rotateScheme, func(u *url.URL) (zap.Sink, error) {
			return rotatingFile{&lumberjack.Logger{
				Filename:   filepath.FromSlash(u.Path),
				MaxSize:    MaxSizeMB,
				MaxBackups: MaxBackups,
			}}, nil
		})
	})
	return registerErr
}

// NewLogger creates a JSON logger tagged with the service name.
// Any extra output paths are written in addition to stderr; plain file
// paths are rotated by size.
func NewLogger(serviceName, level string, outputPaths ...string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	outputs := []string{"stderr"}
	for _, p := range outputPaths {
		if p == "stdout" || p == "stderr" || strings.Contains(p, "://") {
			outputs = append(outputs, p)
			continue
		}
		if err := registerRotatingSink(); err != nil {
			return nil, fmt.Errorf("failed to register log sink: %w", err)
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve log file %s: %w", p, err)
		}
		outputs = append(outputs, rotateScheme+"://"+filepath.ToSlash(abs))
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.OutputPaths = outputs
	cfg.InitialFields = map[string]interface{}{
		"service": serviceName,
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

// FilePath returns the log file location inside dir, or "" when dir is empty.
func FilePath(dir string) string {
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, LogFileName)
}
