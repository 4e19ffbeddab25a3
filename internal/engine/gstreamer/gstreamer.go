//go:build gstreamer

package gstreamer

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tinyzimmer/go-gst/gst"

	"github.com/smazurov/castnode/internal/engine"
)

// Name is the registry name of this back-end.
const Name = "gstreamer"

func init() {
	engine.Register(Name, open)
}

var initOnce sync.Once

func open() (engine.Engine, error) {
	initOnce.Do(func() { gst.Init(nil) })
	return &Engine{kinds: make(map[string]string)}, nil
}

// Engine creates GStreamer pipelines and elements.
type Engine struct {
	mu    sync.Mutex
	kinds map[string]string // element name -> factory name
}

// Name implements engine.Engine.
func (e *Engine) Name() string { return Name }

// NewContainer implements engine.Engine.
func (e *Engine) NewContainer(name string) (engine.Container, error) {
	p, err := gst.NewPipeline(name)
	if err != nil {
		return nil, fmt.Errorf("gstreamer: create pipeline: %w", err)
	}
	return &container{element: element{eng: e, el: p.Element, kind: "pipeline"}, pipeline: p}, nil
}

// NewElement implements engine.Engine.
func (e *Engine) NewElement(kind, name string) (engine.Element, error) {
	el, err := gst.NewElementWithName(kind, name)
	if err != nil {
		return nil, fmt.Errorf("gstreamer: create %s: %w", kind, err)
	}
	e.mu.Lock()
	e.kinds[el.GetName()] = kind
	e.mu.Unlock()
	return &element{eng: e, el: el, kind: kind}, nil
}

func (e *Engine) wrap(el *gst.Element) engine.Element {
	if el == nil {
		return nil
	}
	e.mu.Lock()
	kind := e.kinds[el.GetName()]
	e.mu.Unlock()
	return &element{eng: e, el: el, kind: kind}
}

type element struct {
	eng  *Engine
	el   *gst.Element
	kind string
}

func (e *element) Name() string { return e.el.GetName() }
func (e *element) Kind() string { return e.kind }

func (e *element) StaticPad(name string) engine.Pad {
	p := e.el.GetStaticPad(name)
	if p == nil {
		return nil
	}
	return &pad{eng: e.eng, p: p}
}

func (e *element) Pads() []engine.Pad {
	pads, err := e.el.GetPads()
	if err != nil {
		return nil
	}
	out := make([]engine.Pad, 0, len(pads))
	for _, p := range pads {
		out = append(out, &pad{eng: e.eng, p: p})
	}
	return out
}

func (e *element) Link(dst engine.Element) error {
	d, ok := dst.(*element)
	if !ok {
		return fmt.Errorf("gstreamer: cannot link to %T", dst)
	}
	linkErr := e.el.Link(d.el)
	if linkErr == nil || e.el.GetStaticPad("src") != nil {
		return linkErr
	}
	// Sources such as rtspsrc expose their pads only once streaming
	// starts. Link them when they appear.
	_, err := e.el.Connect("pad-added", func(_ *gst.Element, p *gst.Pad) {
		if sink := d.el.GetStaticPad("sink"); sink != nil && !sink.IsLinked() {
			p.Link(sink)
		}
	})
	return err
}

func (e *element) Unlink(dst engine.Element) {
	if d, ok := dst.(*element); ok {
		e.el.Unlink(d.el)
	}
}

func (e *element) SetState(s engine.State) error {
	return e.el.SetState(toGst(s))
}

func (e *element) State() engine.State {
	return fromGst(e.el.GetCurrentState())
}

// SetProperty sets a GObject property. Caps may be given as a caps string.
func (e *element) SetProperty(name string, value any) error {
	if str, ok := value.(string); ok && name == "caps" {
		return e.el.SetProperty(name, gst.NewCapsFromString(str))
	}
	return e.el.SetProperty(name, value)
}

func (e *element) Property(name string) (any, error) {
	return e.el.GetProperty(name)
}

func (e *element) SendEOS() bool {
	return e.el.SendEvent(gst.NewEOSEvent())
}

type pad struct {
	eng *Engine
	p   *gst.Pad
}

func (p *pad) Name() string { return p.p.GetName() }

func (p *pad) Direction() engine.PadDirection {
	if p.p.GetDirection() == gst.PadDirectionSink {
		return engine.PadSink
	}
	return engine.PadSrc
}

func (p *pad) Parent() engine.Element { return p.eng.wrap(p.p.GetParentElement()) }

func (p *pad) Peer() engine.Pad {
	peer := p.p.GetPeer()
	if peer == nil {
		return nil
	}
	return &pad{eng: p.eng, p: peer}
}

func (p *pad) AddProbe(kind engine.ProbeKind, fn engine.ProbeFunc) (uint64, error) {
	mask := gst.PadProbeTypeBlockDownstream
	switch kind {
	case engine.ProbeEventDownstream:
		mask = gst.PadProbeTypeEventDownstream
	case engine.ProbeIdle:
		mask = gst.PadProbeTypeIdle
	}
	var id uint64
	id = p.p.AddProbe(mask, func(gp *gst.Pad, info *gst.PadProbeInfo) gst.PadProbeReturn {
		pi := engine.ProbeInfo{ID: id}
		if ev := info.GetEvent(); ev != nil {
			if kind == engine.ProbeEventDownstream && ev.Type() != gst.EventTypeEOS {
				return gst.PadProbePass
			}
			pi.EOS = ev.Type() == gst.EventTypeEOS
		}
		return toGstReturn(fn(&pad{eng: p.eng, p: gp}, pi))
	})
	if id == 0 {
		return 0, errors.New("gstreamer: probe rejected")
	}
	return id, nil
}

func (p *pad) RemoveProbe(id uint64) { p.p.RemoveProbe(id) }

func (p *pad) SendEOS() bool { return p.p.SendEvent(gst.NewEOSEvent()) }

type container struct {
	element
	pipeline *gst.Pipeline
}

func (c *container) Add(el engine.Element) error {
	e, ok := el.(*element)
	if !ok {
		return fmt.Errorf("gstreamer: cannot add %T", el)
	}
	return c.pipeline.Add(e.el)
}

func (c *container) Remove(el engine.Element) error {
	e, ok := el.(*element)
	if !ok {
		return fmt.Errorf("gstreamer: cannot remove %T", el)
	}
	return c.pipeline.Remove(e.el)
}

func (c *container) ByName(name string) engine.Element {
	el, err := c.pipeline.GetElementByName(name)
	if err != nil || el == nil {
		return nil
	}
	return c.eng.wrap(el)
}

func (c *container) Elements() []engine.Element {
	els, err := c.pipeline.GetElements()
	if err != nil {
		return nil
	}
	out := make([]engine.Element, 0, len(els))
	for _, el := range els {
		out = append(out, c.eng.wrap(el))
	}
	return out
}

func (c *container) PopMessage(timeout time.Duration) *engine.Message {
	msg := c.pipeline.GetPipelineBus().TimedPop(timeout)
	if msg == nil {
		return nil
	}
	out := &engine.Message{Source: msg.Source()}
	switch msg.Type() {
	case gst.MessageError:
		gerr := msg.ParseError()
		out.Type, out.Text, out.Debug = engine.MessageError, gerr.Error(), gerr.DebugString()
	case gst.MessageWarning:
		gerr := msg.ParseWarning()
		out.Type, out.Text, out.Debug = engine.MessageWarning, gerr.Error(), gerr.DebugString()
	case gst.MessageEOS:
		out.Type = engine.MessageEOS
	case gst.MessageStateChanged:
		_, newState := msg.ParseStateChanged()
		out.Type, out.Text = engine.MessageStateChanged, fromGst(newState).String()
	default:
		return nil
	}
	return out
}

func toGst(s engine.State) gst.State {
	switch s {
	case engine.StateReady:
		return gst.StateReady
	case engine.StatePaused:
		return gst.StatePaused
	case engine.StatePlaying:
		return gst.StatePlaying
	}
	return gst.StateNull
}

func fromGst(s gst.State) engine.State {
	switch s {
	case gst.StateReady:
		return engine.StateReady
	case gst.StatePaused:
		return engine.StatePaused
	case gst.StatePlaying:
		return engine.StatePlaying
	}
	return engine.StateNull
}

func toGstReturn(r engine.ProbeReturn) gst.PadProbeReturn {
	switch r {
	case engine.ProbeDrop:
		return gst.PadProbeDrop
	case engine.ProbeRemove:
		return gst.PadProbeRemove
	case engine.ProbePass:
		return gst.PadProbePass
	}
	return gst.PadProbeOK
}
