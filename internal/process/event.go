package process

import "fmt"

// Event is a life-cycle marker of a single request.
type Event int

// Life-cycle events, in the order they can occur.
const (
	EventStarting      Event = iota // About to spawn
	EventStartError                 // Spawn failed (terminal)
	EventStarted                    // Spawned, child PIDs known
	EventIOData                     // One line of combined output
	EventIOEof                      // Output exhausted
	EventExitRequested              // Early termination requested
	EventExited                     // Every stage has exited (terminal)
)

// String returns the event name.
func (e Event) String() string {
	switch e {
	case EventStarting:
		return "Starting"
	case EventStartError:
		return "StartError"
	case EventStarted:
		return "Started"
	case EventIOData:
		return "IOData"
	case EventIOEof:
		return "IOEof"
	case EventExitRequested:
		return "ExitRequested"
	case EventExited:
		return "Exited"
	default:
		return fmt.Sprintf("Event(%d)", int(e))
	}
}

// Terminal reports whether no further event can follow e.
func (e Event) Terminal() bool {
	return e == EventStartError || e == EventExited
}
