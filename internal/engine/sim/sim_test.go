package sim

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smazurov/castnode/internal/engine"
)

func build(t *testing.T, eng *Engine, kinds ...string) (engine.Container, []engine.Element) {
	t.Helper()
	c, err := eng.NewContainer("test")
	if err != nil {
		t.Fatal(err)
	}
	var els []engine.Element
	for i, k := range kinds {
		el, err := eng.NewElement(k, k+string(rune('0'+i)))
		if err != nil {
			t.Fatal(err)
		}
		if err := c.Add(el); err != nil {
			t.Fatal(err)
		}
		els = append(els, el)
	}
	return c, els
}

func TestUnknownAndFailingKinds(t *testing.T) {
	eng := New(FailKinds("vp8enc"))
	if _, err := eng.NewElement("warp-drive", ""); !errors.Is(err, ErrNoFactory) {
		t.Errorf("unknown kind error = %v", err)
	}
	if _, err := eng.NewElement("vp8enc", "enc"); !errors.Is(err, ErrNoFactory) {
		t.Errorf("failing kind error = %v", err)
	}
	el, err := eng.NewElement("queue", "")
	if err != nil || el.Name() != "queue" {
		t.Errorf("default name: %v %v", el, err)
	}
}

func TestLinkRules(t *testing.T) {
	eng := New()
	c, els := build(t, eng, "audiotestsrc", "queue", "fakesink")
	src, q, sink := els[0], els[1], els[2]

	if err := sink.Link(q); err == nil {
		t.Error("sink has no src pad, link must fail")
	}
	if err := src.Link(q); err != nil {
		t.Fatal(err)
	}
	other, _ := eng.NewElement("queue", "q2")
	if err := src.Link(other); err == nil {
		t.Error("linking outside the container must fail")
	}
	if err := c.Add(other); err != nil {
		t.Fatal(err)
	}
	if err := src.Link(other); err == nil {
		t.Error("static src pad already linked, link must fail")
	}
	if err := c.Add(other); err == nil {
		t.Error("adding twice must fail")
	}
	if err := q.Link(sink); err != nil {
		t.Fatal(err)
	}
}

func TestTeeRequestPadsReleasedOnUnlink(t *testing.T) {
	eng := New()
	_, els := build(t, eng, "tee", "fakesink", "fakesink")
	tee, a, b := els[0], els[1], els[2]

	if err := tee.Link(a); err != nil {
		t.Fatal(err)
	}
	if err := tee.Link(b); err != nil {
		t.Fatal(err)
	}
	if n := len(tee.Pads()); n != 3 {
		t.Fatalf("tee pads = %d, want sink + 2 requests", n)
	}

	tee.Unlink(a)
	pads := tee.Pads()
	if len(pads) != 2 || pads[1].Name() != "src_1" {
		t.Errorf("after unlink pads = %v", pads)
	}
	if a.StaticPad("sink").Peer() != nil {
		t.Error("sink pad still has a peer")
	}
}

func TestRemoveUnlinks(t *testing.T) {
	eng := New()
	c, els := build(t, eng, "audiotestsrc", "volume", "fakesink")
	els[0].Link(els[1])
	els[1].Link(els[2])

	if err := c.Remove(els[1]); err != nil {
		t.Fatal(err)
	}
	if els[0].StaticPad("src").Peer() != nil || els[2].StaticPad("sink").Peer() != nil {
		t.Error("neighbours still linked after remove")
	}
	if c.ByName(els[1].Name()) != nil {
		t.Error("removed element still found")
	}
	if err := c.Remove(els[1]); err == nil {
		t.Error("removing twice must fail")
	}
}

func TestStreamingAndBlockProbe(t *testing.T) {
	eng := New(WithTick(time.Millisecond))
	c, els := build(t, eng, "audiotestsrc", "volume", "fakesink")
	src, vol, sink := els[0], els[1], els[2]
	src.Link(vol)
	vol.Link(sink)

	c.SetState(engine.StatePlaying)
	defer c.SetState(engine.StateNull)

	if !WaitBuffers(sink, 3, time.Second) {
		t.Fatal("no data reached the sink")
	}

	var fired atomic.Int32
	blockedAt := make(chan uint64, 1)
	id, err := src.StaticPad("src").AddProbe(engine.ProbeBlockDownstream, func(_ engine.Pad, info engine.ProbeInfo) engine.ProbeReturn {
		fired.Add(1)
		blockedAt <- info.ID
		return engine.ProbeOK
	})
	if err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-blockedAt:
		if got != id {
			t.Errorf("probe id = %d, want %d", got, id)
		}
	case <-time.After(time.Second):
		t.Fatal("block probe never fired")
	}

	before := BufferCount(sink)
	time.Sleep(20 * time.Millisecond)
	if BufferCount(sink) != before {
		t.Error("data passed a blocked pad")
	}
	if fired.Load() != 1 {
		t.Errorf("block callback ran %d times, want 1", fired.Load())
	}

	src.StaticPad("src").RemoveProbe(id)
	if !WaitBuffers(sink, before, time.Second) {
		t.Error("flow did not resume after removing the probe")
	}
}

func TestIdleProbeFiresWithoutData(t *testing.T) {
	eng := New(WithTick(time.Millisecond))
	c, els := build(t, eng, "audiotestsrc", "tee", "queue", "fakesink")
	src, tee, q, sink := els[0], els[1], els[2], els[3]
	tee.Link(q)
	q.Link(sink)

	c.SetState(engine.StatePlaying)
	defer c.SetState(engine.StateNull)

	// the tee has no source, so no buffer ever reaches its src pad
	pad := q.StaticPad("sink").Peer()
	fired := make(chan struct{}, 1)
	id, err := pad.AddProbe(engine.ProbeIdle, func(engine.Pad, engine.ProbeInfo) engine.ProbeReturn {
		fired <- struct{}{}
		return engine.ProbeOK
	})
	if err != nil {
		t.Fatal(err)
	}
	select {
	case <-fired:
	default:
		t.Fatal("idle probe did not fire before AddProbe returned")
	}

	src.Link(tee)
	time.Sleep(10 * time.Millisecond)
	if BufferCount(sink) != 0 {
		t.Error("data passed an idle-blocked pad")
	}
	pad.RemoveProbe(id)
	if !WaitBuffers(sink, 2, time.Second) {
		t.Error("flow did not resume after removing the probe")
	}
}

func TestElementsNotPlayingDoNotReceive(t *testing.T) {
	eng := New(WithTick(time.Millisecond))
	c, els := build(t, eng, "audiotestsrc", "fakesink")
	els[0].Link(els[1])
	c.SetState(engine.StatePlaying)
	defer c.SetState(engine.StateNull)

	late, _ := eng.NewElement("fakesink", "late")
	c.Add(late)
	time.Sleep(10 * time.Millisecond)
	if BufferCount(late) != 0 {
		t.Error("unlinked null element received data")
	}
}

func TestEOSThroughMuxerAndProbes(t *testing.T) {
	eng := New()
	_, els := build(t, eng, "audiotestsrc", "videotestsrc", "webmmux", "fakesink")
	a, v, mux, sink := els[0], els[1], els[2], els[3]
	a.Link(mux)
	v.Link(mux)
	mux.Link(sink)

	var seen atomic.Int32
	mux.StaticPad("src").AddProbe(engine.ProbeEventDownstream, func(_ engine.Pad, info engine.ProbeInfo) engine.ProbeReturn {
		if info.EOS {
			seen.Add(1)
		}
		return engine.ProbeOK
	})

	a.SendEOS()
	if seen.Load() != 0 || ReceivedEOS(sink) {
		t.Fatal("muxer forwarded EOS before all inputs ended")
	}
	v.SendEOS()
	if seen.Load() != 1 || !ReceivedEOS(sink) {
		t.Errorf("EOS not forwarded: probe=%d sink=%v", seen.Load(), ReceivedEOS(sink))
	}
}

func TestStallEOS(t *testing.T) {
	eng := New(StallEOS("videotestsrc"))
	_, els := build(t, eng, "videotestsrc", "fakesink")
	els[0].Link(els[1])

	if !els[0].SendEOS() {
		t.Fatal("stalled element must accept end-of-stream")
	}
	if ReceivedEOS(els[1]) {
		t.Error("stalled element forwarded end-of-stream")
	}
}

func TestEventProbeDropStopsEOS(t *testing.T) {
	eng := New()
	_, els := build(t, eng, "queue", "fakesink")
	q, sink := els[0], els[1]
	q.Link(sink)

	q.StaticPad("src").AddProbe(engine.ProbeEventDownstream, func(engine.Pad, engine.ProbeInfo) engine.ProbeReturn {
		return engine.ProbeDrop
	})
	q.StaticPad("sink").SendEOS()

	if !ReceivedEOS(q) {
		t.Error("queue should have drained")
	}
	if ReceivedEOS(sink) {
		t.Error("dropped EOS reached the sink")
	}

	q.SetState(engine.StateNull)
	if ReceivedEOS(q) {
		t.Error("null state must reset EOS")
	}
}

func TestPropertiesAndBus(t *testing.T) {
	eng := New()
	c, els := build(t, eng, "textoverlay")
	el := els[0]

	el.SetProperty("text", "hello")
	if v, err := el.Property("text"); err != nil || v != "hello" {
		t.Errorf("Property = %v, %v", v, err)
	}
	if _, err := el.Property("font-desc"); !errors.Is(err, ErrNoProperty) {
		t.Errorf("unset property error = %v", err)
	}

	if !Post(c, engine.Message{Type: engine.MessageError, Source: "shout", Text: "connection refused"}) {
		t.Fatal("Post failed")
	}
	m := c.PopMessage(100 * time.Millisecond)
	if m == nil || m.Type != engine.MessageError || m.Source != "shout" {
		t.Errorf("PopMessage = %+v", m)
	}
	if m := c.PopMessage(5 * time.Millisecond); m != nil {
		t.Errorf("unexpected message %+v", m)
	}
}

func TestRejectAdd(t *testing.T) {
	eng := New(RejectAdd("bad"))
	c, _ := eng.NewContainer("")
	el, _ := eng.NewElement("queue", "bad")
	if err := c.Add(el); err == nil {
		t.Error("expected rejection")
	}
}
