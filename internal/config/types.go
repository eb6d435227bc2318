package config

// Config is the on-disk configuration, JSON or YAML.
//
// All durations are Go duration strings (e.g. "100ms", "10s", "1h").
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Reserves  ReservesConfig  `json:"reserves"`
	Catalog   CatalogConfig   `json:"catalog"`
	Tuners    []TunerConfig   `json:"tuners"`
	Manager   ManagerConfig   `json:"manager"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Notifier  NotifierConfig  `json:"notifier"`
	Debug     DebugConfig     `json:"debug,omitempty"`
}

type LoggingConfig struct {
	Level   string        `json:"level"`
	Console bool          `json:"console"`
	File    LogFileConfig `json:"file"`
}

type LogFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// ReservesConfig locates the persisted reservation set.
//
// Driver is "file" (default, JSON document) or "sqlite".
type ReservesConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// CatalogConfig selects the program and rule database.
//
// Driver is "sqlite" (default) or "postgres". Timezone drives weekday and
// hour matching of rules; empty means local time.
type CatalogConfig struct {
	Driver   string `json:"driver,omitempty"`
	DSN      string `json:"dsn"`
	Timezone string `json:"timezone,omitempty"`
}

type TunerConfig struct {
	Name  string   `json:"name"`
	Types []string `json:"types"`
}

type ManagerConfig struct {
	CancelDelay  string `json:"cancel_delay,omitempty"`
	UpdateYield  string `json:"update_yield,omitempty"`
	EncoderCount int    `json:"encoder_count,omitempty"`
}

// SchedulerConfig drives the periodic maintenance jobs. Schedules accept
// cron expressions, "@every" descriptors, durations or HH:MM intervals.
type SchedulerConfig struct {
	Enabled   bool   `json:"enabled"`
	Timezone  string `json:"timezone,omitempty"`
	UpdateAll string `json:"update_all,omitempty"`
	Clean     string `json:"clean,omitempty"`
	Timeout   string `json:"timeout,omitempty"`
}

type NotifierConfig struct {
	Enabled     bool    `json:"enabled"`
	RatePerSec  float64 `json:"rate_per_sec,omitempty"`
	Burst       int     `json:"burst,omitempty"`
	HookCommand string  `json:"hook_command,omitempty"`
	HookTimeout string  `json:"hook_timeout,omitempty"`
}

// DebugConfig controls the health/metrics/pprof listener.
//
// Security: a non-loopback Addr requires Token or AllowInsecure.
type DebugConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Metrics       bool   `json:"metrics,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`
}

const (
	DefaultReservesPath = "./data/reserves.json"
	DefaultCatalogDSN   = "./data/catalog.db"
	DefaultUpdateAll    = "@every 1h"
	DefaultClean        = "@every 1m"
)

// WithDefaults returns a copy with empty paths and schedules filled in.
func (c Config) WithDefaults() Config {
	if c.Reserves.Path == "" {
		c.Reserves.Path = DefaultReservesPath
	}
	if c.Catalog.Driver == "" {
		c.Catalog.Driver = "sqlite"
	}
	if c.Catalog.DSN == "" && c.Catalog.Driver == "sqlite" {
		c.Catalog.DSN = DefaultCatalogDSN
	}
	if c.Scheduler.UpdateAll == "" {
		c.Scheduler.UpdateAll = DefaultUpdateAll
	}
	if c.Scheduler.Clean == "" {
		c.Scheduler.Clean = DefaultClean
	}
	if c.Manager.EncoderCount <= 0 {
		c.Manager.EncoderCount = 1
	}
	return c
}
