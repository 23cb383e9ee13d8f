// Package events carries process and job notifications between components
// over a kelindar/event dispatcher.
package events

import (
	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting.
// Each subscriber receives events on its own goroutine, in publish order.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers.
// Usage: bus.Publish(JobFinishedEvent{...})
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case ProcessEvent:
		event.Publish(b.dispatcher, e)
	case JobStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case JobFinishedEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe registers handler for the event type named by its parameter and
// returns an unsubscribe function. Unknown handler types get a no-op.
// Usage: unsub := bus.Subscribe(func(e ProcessEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(ProcessEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(JobStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(JobFinishedEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}

// SubscribeToChannel forwards events of type T to ch, dropping them when ch is full.
// SSE handlers use it to select over several event types.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
		}
	})
}
