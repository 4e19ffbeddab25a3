package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/castnode/internal/events"
)

// registerSSERoutes registers the pipeline event stream.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Lifecycle changes, branch attach and detach, source swaps, sink errors, reconnects and remote availability",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"state-changed":       events.GraphStateChangedEvent{},
		"branch-attached":     events.BranchAttachedEvent{},
		"branch-detached":     events.BranchDetachedEvent{},
		"source-swapped":      events.SourceSwappedEvent{},
		"swap-failed":         events.SwapFailedEvent{},
		"sink-error":          events.SinkErrorEvent{},
		"branch-reconnect":    events.BranchReconnectEvent{},
		"remote-availability": events.RemoteAvailabilityEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 32)
		unsubscribers := []func(){
			events.SubscribeToChannel[events.GraphStateChangedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.BranchAttachedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.BranchDetachedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.SourceSwappedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.SwapFailedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.SinkErrorEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.BranchReconnectEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.RemoteAvailabilityEvent](s.eventBus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		// current state first so a client never starts blind
		state := string(s.pipeline.State())
		if err := send.Data(events.GraphStateChangedEvent{From: state, To: state, Timestamp: events.Now()}); err != nil {
			return
		}

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
