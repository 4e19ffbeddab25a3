package metrics

import (
	"strconv"
	"time"

	"github.com/smazurov/castnode/internal/events"
)

// Attach feeds bus events into the metrics above. The returned function
// detaches every subscription.
func Attach(bus *events.Bus) func() {
	unsubs := []func(){
		bus.Subscribe(func(e events.GraphStateChangedEvent) {
			SetGraphState(e.To)
		}),
		bus.Subscribe(func(e events.SourceSwappedEvent) {
			ObserveSwap(true, time.Duration(e.Seconds*float64(time.Second)))
		}),
		bus.Subscribe(func(events.SwapFailedEvent) {
			ObserveSwap(false, 0)
		}),
		bus.Subscribe(func(e events.BranchAttachedEvent) {
			BranchAttached(e.Category, e.Kind, 1)
		}),
		bus.Subscribe(func(e events.BranchDetachedEvent) {
			BranchAttached(e.Category, e.Kind, -1)
		}),
		bus.Subscribe(func(e events.BranchReconnectEvent) {
			Reconnect(e.BranchID, e.Phase)
		}),
		bus.Subscribe(func(e events.SinkErrorEvent) {
			SinkError(e.BranchID)
		}),
		bus.Subscribe(func(e events.RemoteAvailabilityEvent) {
			SetRemote(e.Host, strconv.Itoa(e.Port), e.Available,
				time.Duration(e.Latency*float64(time.Second)))
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
