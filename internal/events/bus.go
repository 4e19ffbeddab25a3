package events

import (
	"time"

	"github.com/kelindar/event"
)

// Bus wraps a kelindar/event dispatcher. Delivery is asynchronous and in
// order per subscriber.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Now formats the current time the way event timestamps are written.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// Publish publishes an event to all subscribers of its concrete type.
// A nil bus drops the event.
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	switch e := ev.(type) {
	case GraphStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case BranchAttachedEvent:
		event.Publish(b.dispatcher, e)
	case BranchDetachedEvent:
		event.Publish(b.dispatcher, e)
	case SourceSwappedEvent:
		event.Publish(b.dispatcher, e)
	case SwapFailedEvent:
		event.Publish(b.dispatcher, e)
	case SinkErrorEvent:
		event.Publish(b.dispatcher, e)
	case BranchReconnectEvent:
		event.Publish(b.dispatcher, e)
	case RemoteAvailabilityEvent:
		event.Publish(b.dispatcher, e)
	case LogEntryEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe registers handler for the event type of its argument and returns
// an unsubscribe function. Unknown handler types get a no-op.
//
//	unsub := bus.Subscribe(func(e SinkErrorEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(GraphStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(BranchAttachedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(BranchDetachedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SourceSwappedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SwapFailedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SinkErrorEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(BranchReconnectEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(RemoteAvailabilityEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(LogEntryEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}
