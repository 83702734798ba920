package chaos

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds fault injection settings for outbound requests
type Config struct {
	Enabled bool
	// Profile is a shorthand such as "drop-pct=30,delay=50-250,budget=1"
	Profile    string
	TargetHost string
	DropPct    int
	DelayMsMin int
	DelayMsMax int
	Seed       int64
	WindowMs   int
	// Budget caps the number of injected faults; 0 means unlimited
	Budget int
}

// Profile is the parsed form of Config.Profile.
type Profile struct {
	DropPct  int
	DelayMin int
	DelayMax int
	Budget   int
}

// LoadConfig reads CHAOS_* environment variables.
func LoadConfig() *Config {
	return &Config{
		Enabled:    envBool("CHAOS_ENABLED"),
		Profile:    os.Getenv("CHAOS_PROFILE"),
		TargetHost: os.Getenv("CHAOS_TARGET_HOST"),
		DropPct:    envInt("CHAOS_DROP_PCT", 0),
		DelayMsMin: envInt("CHAOS_DELAY_MS_MIN", 0),
		DelayMsMax: envInt("CHAOS_DELAY_MS_MAX", 0),
		Seed:       int64(envInt("CHAOS_SEED", 1)),
		WindowMs:   envInt("CHAOS_WINDOW_MS", 0),
		Budget:     envInt("CHAOS_BUDGET", 0),
	}
}

// ParseProfile parses a comma-separated profile. Unknown keys are errors.
func ParseProfile(profile string) (Profile, error) {
	var p Profile
	if strings.TrimSpace(profile) == "" {
		return p, nil
	}

	for _, part := range strings.Split(profile, ",") {
		key, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return Profile{}, fmt.Errorf("invalid profile entry %q", part)
		}

		var err error
		switch key {
		case "drop-pct":
			p.DropPct, err = strconv.Atoi(val)
			if err == nil && (p.DropPct < 0 || p.DropPct > 100) {
				err = fmt.Errorf("out of range")
			}
		case "delay":
			lo, hi, found := strings.Cut(val, "-")
			if !found {
				hi = lo
			}
			if p.DelayMin, err = strconv.Atoi(lo); err == nil {
				p.DelayMax, err = strconv.Atoi(hi)
			}
			if err == nil && p.DelayMax < p.DelayMin {
				err = fmt.Errorf("max below min")
			}
		case "budget":
			p.Budget, err = strconv.Atoi(val)
		default:
			err = fmt.Errorf("unknown key")
		}
		if err != nil {
			return Profile{}, fmt.Errorf("invalid %s: %w", key, err)
		}
	}

	return p, nil
}

// apply overlays non-zero profile values onto c.
func (c *Config) apply(p Profile) {
	if p.DropPct > 0 {
		c.DropPct = p.DropPct
	}
	if p.DelayMin > 0 || p.DelayMax > 0 {
		c.DelayMsMin = p.DelayMin
		c.DelayMsMax = p.DelayMax
	}
	if p.Budget > 0 {
		c.Budget = p.Budget
	}
}

func envInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func envBool(key string) bool {
	b, _ := strconv.ParseBool(os.Getenv(key))
	return b
}
