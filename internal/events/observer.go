package events

import (
	"slices"
	"time"

	"github.com/smazurov/procstream/internal/process"
)

// NewProcessObserver returns a process.Observer that publishes every event of
// the runner named runner as a ProcessEvent.
func NewProcessObserver(bus *Bus, runner string) process.Observer {
	return process.ObserverFunc(func(ev process.Event, data *process.Data) {
		bus.Publish(ProcessEvent{
			Runner:     runner,
			RequestID:  data.RequestID,
			Kind:       ev.String(),
			Line:       data.Line,
			LineNumber: data.LineNumber,
			PIDs:       slices.Clone(data.PIDs),
			Timestamp:  time.Now().Format(time.RFC3339Nano),
		})
	})
}
