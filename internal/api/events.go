package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/procstream/internal/events"
)

// registerSSERoutes registers the event stream.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time process events, job state changes and job results",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"process":      events.ProcessEvent{},
		"job-state":    events.JobStateChangedEvent{},
		"job-finished": events.JobFinishedEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 64)

		unsubscribers := []func(){
			events.SubscribeToChannel[events.ProcessEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.JobStateChangedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.JobFinishedEvent](s.eventBus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
