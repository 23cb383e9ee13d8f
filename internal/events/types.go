package events

// Event type constants for kelindar/event.
const (
	TypeProcess uint32 = iota + 1
	TypeJobStateChanged
	TypeJobFinished
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// ProcessEvent mirrors one life-cycle event of a running request.
type ProcessEvent struct {
	Runner     string `json:"runner" example:"serve" doc:"Name of the runner that executed the request"`
	RequestID  string `json:"request_id" example:"listing" doc:"Correlation identifier of the request"`
	Kind       string `json:"kind" example:"IOData" doc:"Event kind: Starting, StartError, Started, IOData, IOEof, ExitRequested, Exited"`
	Line       string `json:"line,omitempty" example:"total 42" doc:"Output line for IOData, detail text otherwise"`
	LineNumber uint64 `json:"line_number,omitempty" example:"1" doc:"1-based line number, IOData only"`
	PIDs       []int  `json:"pids,omitempty" doc:"Process ids of the pipeline stages"`
	Timestamp  string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ProcessEvent.
func (e ProcessEvent) Type() uint32 { return TypeProcess }

// JobStateChangedEvent is published on every job state transition.
type JobStateChangedEvent struct {
	JobID     string `json:"job_id" example:"listing" doc:"Job identifier"`
	OldState  string `json:"old_state" example:"starting" doc:"Previous state"`
	NewState  string `json:"new_state" example:"running" doc:"New state"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for JobStateChangedEvent.
func (e JobStateChangedEvent) Type() uint32 { return TypeJobStateChanged }

// JobFinishedEvent carries the final result of a job.
type JobFinishedEvent struct {
	JobID      string  `json:"job_id" example:"listing" doc:"Job identifier"`
	Success    bool    `json:"success" doc:"Whether the run succeeded"`
	Error      string  `json:"error,omitempty" example:"stage 0: exit status 1" doc:"Failure detail"`
	ShouldExit bool    `json:"should_exit" doc:"Whether termination was requested"`
	Lines      uint64  `json:"lines" example:"12" doc:"Number of output lines delivered"`
	Duration   float64 `json:"duration_seconds" example:"1.5" doc:"Run duration in seconds"`
	Timestamp  string  `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for JobFinishedEvent.
func (e JobFinishedEvent) Type() uint32 { return TypeJobFinished }
