package notifier

import "time"

// Config controls the relay.
type Config struct {
	Enabled     bool
	RatePerSec  float64
	Burst       int
	HookCommand string
	HookTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.RatePerSec <= 0 {
		c.RatePerSec = 1
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	if c.HookTimeout <= 0 {
		c.HookTimeout = 10 * time.Second
	}
	return c
}

// Delivery is one coalesced notification handed to every sink.
type Delivery struct {
	Type string
	At   time.Time
	// Merged counts the bus events folded into this delivery.
	Merged  int
	Summary string
}

type HistoryItem struct {
	At     time.Time `json:"at"`
	Type   string    `json:"type"`
	Merged int       `json:"merged"`
	Error  string    `json:"error,omitempty"`
}

// Stats are cumulative relay counters.
type Stats struct {
	Received  uint64
	Delivered uint64
	Failed    uint64
}
