// Package scheduler triggers named maintenance jobs on cron or interval
// schedules.
//
// A job that is still running when its next trigger fires is skipped, and
// every run is bounded by a timeout.
package scheduler
