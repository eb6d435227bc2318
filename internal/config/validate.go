package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"recsched/internal/tuner"
	logx "recsched/pkg/logx"
)

// Validate checks every field that would otherwise fail at apply time.
// Errors name the offending config path.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if lvl := strings.TrimSpace(c.Logging.Level); lvl != "" && !logx.ValidLevel(lvl) {
		add(fmt.Errorf("logging.level: unknown level %q", lvl))
	}

	switch strings.ToLower(strings.TrimSpace(c.Reserves.Driver)) {
	case "", "file", "json", "sqlite", "sqlite3":
	default:
		add(fmt.Errorf("reserves.driver: unknown driver %q", c.Reserves.Driver))
	}
	_, err := ParseDurationField("reserves.busy_timeout", c.Reserves.BusyTimeout)
	add(err)

	switch strings.ToLower(strings.TrimSpace(c.Catalog.Driver)) {
	case "", "sqlite", "sqlite3":
	case "postgres", "postgresql", "pgx":
		if strings.TrimSpace(c.Catalog.DSN) == "" {
			add(errors.New("catalog.dsn: required for postgres"))
		}
	default:
		add(fmt.Errorf("catalog.driver: unknown driver %q", c.Catalog.Driver))
	}
	if tz := strings.TrimSpace(c.Catalog.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			add(fmt.Errorf("catalog.timezone: %w", err))
		}
	}

	seen := map[string]bool{}
	for i, t := range c.Tuners {
		path := fmt.Sprintf("tuners[%d]", i)
		if strings.TrimSpace(t.Name) == "" {
			add(fmt.Errorf("%s.name: required", path))
		} else if seen[t.Name] {
			add(fmt.Errorf("%s.name: duplicate tuner %q", path, t.Name))
		}
		seen[t.Name] = true
		if len(t.Types) == 0 {
			add(fmt.Errorf("%s.types: at least one channel type required", path))
		}
		if _, err := tuner.ParseTypes(t.Types); err != nil {
			add(fmt.Errorf("%s.types: %w", path, err))
		}
	}

	_, err = ParseDurationField("manager.cancel_delay", c.Manager.CancelDelay)
	add(err)
	_, err = ParseDurationField("manager.update_yield", c.Manager.UpdateYield)
	add(err)
	if c.Manager.EncoderCount < 0 {
		add(errors.New("manager.encoder_count: must be >= 0"))
	}

	if tz := strings.TrimSpace(c.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			add(fmt.Errorf("scheduler.timezone: %w", err))
		}
	}
	_, err = ParseDurationField("scheduler.timeout", c.Scheduler.Timeout)
	add(err)

	if c.Notifier.RatePerSec < 0 {
		add(errors.New("notifier.rate_per_sec: must be >= 0"))
	}
	if c.Notifier.Burst < 0 {
		add(errors.New("notifier.burst: must be >= 0"))
	}
	_, err = ParseDurationField("notifier.hook_timeout", c.Notifier.HookTimeout)
	add(err)

	return errors.Join(errs...)
}
