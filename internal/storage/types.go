package storage

import (
	"context"
	"errors"
	"time"

	"recsched/internal/reservation"
)

// ErrPersistCorrupted is returned by Load when stored data cannot be decoded.
var ErrPersistCorrupted = errors.New("persisted reservations are corrupted")

// Config configures the reservation store.
//
// Driver values:
//   - "file" (default): JSON array at Path
//   - "sqlite": SQLite database file at Path
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the persistence API used by the reservation manager.
type Store interface {
	// Load returns the persisted set. A missing store yields an empty set.
	Load(ctx context.Context) ([]reservation.Reservation, error)
	// Save replaces the persisted set with items.
	Save(ctx context.Context, items []reservation.Reservation) error
	Close() error
}
