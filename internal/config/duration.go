package config

import (
	"fmt"
	"strings"
	"time"
)

// ParseDurationField parses a non-negative duration; empty means zero.
// Errors carry the config path.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// mustDuration is for values already checked by Validate.
func mustDuration(raw string, def time.Duration) time.Duration {
	d, err := ParseDurationField("", raw)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func (c ManagerConfig) CancelDelayOr(def time.Duration) time.Duration {
	return mustDuration(c.CancelDelay, def)
}

func (c ManagerConfig) UpdateYieldOr(def time.Duration) time.Duration {
	return mustDuration(c.UpdateYield, def)
}

func (c SchedulerConfig) TimeoutOr(def time.Duration) time.Duration {
	return mustDuration(c.Timeout, def)
}

func (c NotifierConfig) HookTimeoutOr(def time.Duration) time.Duration {
	return mustDuration(c.HookTimeout, def)
}

func (c ReservesConfig) BusyTimeoutOr(def time.Duration) time.Duration {
	return mustDuration(c.BusyTimeout, def)
}
