package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/smazurov/castnode/internal/events"
)

func TestSetGraphStateIsExclusive(t *testing.T) {
	SetGraphState("preview")
	SetGraphState("playing")

	for _, s := range GraphStates {
		want := 0.0
		if s == "playing" {
			want = 1
		}
		if got := testutil.ToFloat64(graphState.WithLabelValues(s)); got != want {
			t.Errorf("state %s = %v, want %v", s, got, want)
		}
	}
}

func TestObserveSwap(t *testing.T) {
	okBefore := testutil.ToFloat64(swapsTotal.WithLabelValues("ok"))
	failBefore := testutil.ToFloat64(swapsTotal.WithLabelValues("failed"))

	ObserveSwap(true, 40*time.Millisecond)
	ObserveSwap(false, time.Hour)

	if got := testutil.ToFloat64(swapsTotal.WithLabelValues("ok")) - okBefore; got != 1 {
		t.Errorf("ok delta = %v", got)
	}
	if got := testutil.ToFloat64(swapsTotal.WithLabelValues("failed")) - failBefore; got != 1 {
		t.Errorf("failed delta = %v", got)
	}
}

func TestRemoteSeries(t *testing.T) {
	SetRemote("10.1.1.1", "8000", true, 20*time.Millisecond)
	if got := testutil.ToFloat64(remoteAvailable.WithLabelValues("10.1.1.1", "8000")); got != 1 {
		t.Errorf("available = %v", got)
	}
	if got := testutil.ToFloat64(remoteLatency.WithLabelValues("10.1.1.1", "8000")); got != 0.02 {
		t.Errorf("latency = %v", got)
	}

	DeleteRemote("10.1.1.1", "8000")
	if n := testutil.CollectAndCount(remoteAvailable); n != 0 {
		t.Errorf("remote series left: %d", n)
	}
}

func TestAttachFollowsBus(t *testing.T) {
	bus := events.New()
	detach := Attach(bus)
	defer detach()

	gauge := outputBranches.WithLabelValues("audio", "store")
	before := testutil.ToFloat64(gauge)

	bus.Publish(events.BranchAttachedEvent{Category: "audio", Kind: "store"})
	bus.Publish(events.BranchAttachedEvent{Category: "audio", Kind: "store"})
	bus.Publish(events.BranchDetachedEvent{Category: "audio", Kind: "store"})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if testutil.ToFloat64(gauge)-before == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Errorf("attached gauge delta = %v, want 1", testutil.ToFloat64(gauge)-before)
}
