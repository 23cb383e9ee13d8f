package jobs

import (
	"time"

	"github.com/smazurov/procstream/internal/config"
)

// State represents the current state of a job.
type State string

// Job states.
const (
	StateStarting  State = "starting"  // Submitted, pipeline not yet running
	StateRunning   State = "running"   // Pipeline started
	StateStopping  State = "stopping"  // Kill requested
	StateSucceeded State = "succeeded" // Finished successfully
	StateFailed    State = "failed"    // Finished with an error
	StateStopped   State = "stopped"   // Finished after a kill
)

// Active reports whether a job in state s still owns a pipeline.
func (s State) Active() bool {
	return s == StateStarting || s == StateRunning || s == StateStopping
}

// Info is a snapshot of one job.
type Info struct {
	ID         string         `json:"id" example:"listing" doc:"Job identifier"`
	State      State          `json:"state" enum:"starting,running,stopping,succeeded,failed,stopped" doc:"Current state"`
	Spec       config.JobSpec `json:"spec" doc:"Job definition"`
	PIDs       []int          `json:"pids,omitempty" doc:"Process ids of the pipeline stages"`
	Lines      uint64         `json:"lines" doc:"Output lines seen so far"`
	Recent     []string       `json:"recent,omitempty" doc:"Most recent output lines, oldest first"`
	Matched    []string       `json:"matched,omitempty" doc:"Line that matched exit_on, if any"`
	StartedAt  time.Time      `json:"started_at" doc:"Submission time"`
	FinishedAt *time.Time     `json:"finished_at,omitempty" doc:"Completion time"`
	ShouldExit bool           `json:"should_exit" doc:"Whether termination was requested"`
	Error      string         `json:"error,omitempty" doc:"Failure detail"`
}
