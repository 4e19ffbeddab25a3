package engine_test

import (
	"errors"
	"testing"

	"github.com/smazurov/castnode/internal/engine"
	"github.com/smazurov/castnode/internal/engine/sim"
)

func TestOpenRegisteredBackends(t *testing.T) {
	eng, err := engine.Open(sim.Name)
	if err != nil {
		t.Fatalf("Open(sim): %v", err)
	}
	if eng.Name() != sim.Name {
		t.Errorf("Name = %q", eng.Name())
	}

	if _, err := engine.Open("nope"); !errors.Is(err, engine.ErrUnknownEngine) {
		t.Errorf("Open(nope) error = %v, want ErrUnknownEngine", err)
	}
}

func TestNeighbourHelpers(t *testing.T) {
	eng := sim.New()
	c, _ := eng.NewContainer("p")
	src, _ := eng.NewElement("audiotestsrc", "src")
	tee, _ := eng.NewElement("tee", "t")
	a, _ := eng.NewElement("fakesink", "a")
	b, _ := eng.NewElement("fakesink", "b")
	for _, el := range []engine.Element{src, tee, a, b} {
		if err := c.Add(el); err != nil {
			t.Fatal(err)
		}
	}
	for _, l := range [][2]engine.Element{{src, tee}, {tee, a}, {tee, b}} {
		if err := l[0].Link(l[1]); err != nil {
			t.Fatal(err)
		}
	}

	if up := engine.UpstreamElement(tee); up == nil || up.Name() != "src" {
		t.Errorf("UpstreamElement(tee) = %v", up)
	}
	if down := engine.DownstreamElement(src); down == nil || down.Name() != "t" {
		t.Errorf("DownstreamElement(src) = %v", down)
	}
	if got := engine.Downstream(tee); len(got) != 2 || got[0].Name() != "a" || got[1].Name() != "b" {
		t.Errorf("Downstream(tee) = %v", got)
	}
	if got := engine.Upstream(a); len(got) != 1 || got[0].Name() != "t" {
		t.Errorf("Upstream(a) = %v", got)
	}
	if engine.UpstreamElement(src) != nil {
		t.Error("source has no upstream")
	}

	padA := tee.Pads()[1]
	again := engine.DownstreamElement(src).Pads()[1]
	if !engine.SamePad(padA, again) {
		t.Error("SamePad should match the same tee pad")
	}
	if engine.SamePad(padA, tee.Pads()[2]) {
		t.Error("SamePad matched different pads")
	}
}

func TestStateString(t *testing.T) {
	if engine.StatePlaying.String() != "playing" || engine.StateNull.String() != "null" {
		t.Error("unexpected state names")
	}
}
