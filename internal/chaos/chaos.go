package chaos

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrDropped is returned for requests the injector discarded.
var ErrDropped = errors.New("chaos: request dropped")

// Chaos provides deterministic failure injection
type Chaos struct {
	cfg      *Config
	logger   *zap.Logger
	rng      *rand.Rand
	mu       sync.Mutex
	start    time.Time
	injected int
}

// New creates a new Chaos instance
func New(cfg *Config, logger *zap.Logger) *Chaos {
	c := &Chaos{
		cfg:    cfg,
		logger: logger,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		start:  time.Now(),
	}

	if cfg.Profile != "" {
		p, err := ParseProfile(cfg.Profile)
		if err != nil {
			logger.Warn("failed to parse chaos profile", zap.Error(err))
		} else {
			cfg.apply(p)
		}
	}

	if cfg.Enabled {
		logger.Warn("chaos injection enabled for outbound requests",
			zap.String("target_host", cfg.TargetHost),
			zap.Int("drop_pct", cfg.DropPct),
			zap.Int("delay_ms_min", cfg.DelayMsMin),
			zap.Int("delay_ms_max", cfg.DelayMsMax),
			zap.Int("budget", cfg.Budget),
		)
	}

	return c
}

// EnabledFor checks if chaos is enabled for a specific target host
func (c *Chaos) EnabledFor(host string) bool {
	if !c.cfg.Enabled {
		return false
	}

	if c.cfg.WindowMs > 0 {
		elapsed := time.Since(c.start).Milliseconds()
		if elapsed > int64(c.cfg.WindowMs) {
			return false
		}
	}

	if c.cfg.TargetHost != "" && c.cfg.TargetHost != host {
		return false
	}

	return true
}

// takeBudget consumes one fault from the budget; caller holds c.mu.
func (c *Chaos) takeBudget() bool {
	if c.cfg.Budget > 0 && c.injected >= c.cfg.Budget {
		return false
	}
	c.injected++
	return true
}

// MaybeDelay injects a random delay if chaos is enabled
func (c *Chaos) MaybeDelay(ctx context.Context, host, op string) error {
	if !c.EnabledFor(host) {
		return nil
	}

	if c.cfg.DelayMsMin == 0 && c.cfg.DelayMsMax == 0 {
		return nil
	}

	c.mu.Lock()
	if !c.takeBudget() {
		c.mu.Unlock()
		return nil
	}
	var delayMs int
	if c.cfg.DelayMsMin == c.cfg.DelayMsMax {
		delayMs = c.cfg.DelayMsMin
	} else {
		delayMs = c.cfg.DelayMsMin + c.rng.Intn(c.cfg.DelayMsMax-c.cfg.DelayMsMin+1)
	}
	c.mu.Unlock()

	if delayMs > 0 {
		c.logger.Info("chaos delay injected",
			zap.String("host", host),
			zap.String("op", op),
			zap.Int("delay_ms", delayMs),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(delayMs) * time.Millisecond):
			return nil
		}
	}

	return nil
}

// MaybeDrop returns true if the request should be dropped
func (c *Chaos) MaybeDrop(host, op string) bool {
	if !c.EnabledFor(host) {
		return false
	}

	if c.cfg.DropPct == 0 {
		return false
	}

	c.mu.Lock()
	drop := c.rng.Intn(100) < c.cfg.DropPct && c.takeBudget()
	c.mu.Unlock()

	if drop {
		c.logger.Info("chaos drop injected",
			zap.String("host", host),
			zap.String("op", op),
			zap.Bool("dropped", true),
		)
	}

	return drop
}

// Injected returns how many faults have been injected so far.
func (c *Chaos) Injected() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.injected
}
