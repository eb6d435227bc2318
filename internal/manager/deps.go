package manager

import (
	"context"

	"recsched/internal/reservation"
	"recsched/internal/rule"
)

// ProgramCatalog is the program guide. Both lookups return nil/empty
// without error when nothing matches.
type ProgramCatalog interface {
	FindByID(ctx context.Context, id int64, includePast bool) (*reservation.Program, error)
	FindByRule(ctx context.Context, c rule.SearchCriteria) ([]reservation.Program, error)
}

type RuleStore interface {
	FindByID(ctx context.Context, id int64) (*rule.Rule, error)
	ListIDs(ctx context.Context) ([]int64, error)
}

// RecordingChecker reports programs that are being recorded right now.
type RecordingChecker interface {
	IsRecording(programID int64) bool
}

// Notifier receives a fire-and-forget "reservations changed" signal.
type Notifier interface {
	Notify()
}

// Recorder receives operation outcomes and set sizes for metrics.
type Recorder interface {
	Operation(op string, err error)
	Reservations(active, conflicts, skips int)
}

type nopNotifier struct{}

func (nopNotifier) Notify() {}

type nopRecorder struct{}

func (nopRecorder) Operation(string, error)    {}
func (nopRecorder) Reservations(int, int, int) {}
