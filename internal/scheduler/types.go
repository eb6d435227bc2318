package scheduler

import (
	"context"
	"time"
)

const (
	JobUpdateAll = "reservation.update_all"
	JobClean     = "reservation.clean"
)

// Config controls the scheduler service.
type Config struct {
	Enabled  bool
	Timezone string // IANA name, empty means local
	// Timeout bounds jobs registered without their own timeout.
	Timeout time.Duration
}

// Job is one named periodic task.
type Job struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

type JobInfo struct {
	Name        string        `json:"name"`
	Spec        string        `json:"spec"`
	Next        time.Time     `json:"next,omitempty"`
	Prev        time.Time     `json:"prev,omitempty"`
	Runs        uint64        `json:"runs"`
	Skipped     uint64        `json:"skipped"`
	Failures    uint64        `json:"failures"`
	Running     bool          `json:"running"`
	LastError   string        `json:"last_error,omitempty"`
	LastElapsed time.Duration `json:"last_elapsed"`
}
