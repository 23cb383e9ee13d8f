package jobs

import (
	"log/slog"

	"github.com/smazurov/procstream/internal/events"
	"github.com/smazurov/procstream/internal/process"
)

// DefaultHistoryLines is how many output lines a job keeps for Info.Recent.
const DefaultHistoryLines = 100

// StateChangeCallback is called on every job state transition.
// newState is empty when a job is removed.
type StateChangeCallback func(id string, oldState, newState State)

// ManagerOptions configures a new Manager.
type ManagerOptions struct {
	// Runner executes job pipelines. If nil, a runner named "jobs" is created.
	Runner *process.Runner

	// Bus receives job state and completion events (optional).
	Bus *events.Bus

	// OnStateChange is called when a job changes state (optional).
	OnStateChange StateChangeCallback

	// HistoryLines bounds Info.Recent. Zero means DefaultHistoryLines, negative keeps none.
	HistoryLines int

	// Logger for manager operations. If nil, uses the "jobs" module logger.
	Logger *slog.Logger
}
