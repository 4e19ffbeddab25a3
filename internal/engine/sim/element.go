package sim

import (
	"errors"
	"fmt"
	"slices"

	"github.com/smazurov/castnode/internal/engine"
)

type element struct {
	eng   *Engine
	self  engine.Element
	name  string
	kind  string
	class Class
	state engine.State
	props map[string]any
	pads  []*pad
	reqs  int
	bin   *container

	buffers  uint64
	eos      bool
	eosSinks map[*pad]bool
}

type probe struct {
	id      uint64
	kind    engine.ProbeKind
	fn      engine.ProbeFunc
	holding bool
}

type pad struct {
	name     string
	dir      engine.PadDirection
	el       *element
	peer     *pad
	request  bool
	released bool
	probes   []*probe
}

func (e *element) Name() string { return e.name }
func (e *element) Kind() string { return e.kind }

func (e *element) StaticPad(name string) engine.Pad {
	e.eng.mu.Lock()
	defer e.eng.mu.Unlock()
	for _, p := range e.pads {
		if p.name == name && !p.request {
			return p
		}
	}
	return nil
}

func (e *element) Pads() []engine.Pad {
	e.eng.mu.Lock()
	defer e.eng.mu.Unlock()
	out := make([]engine.Pad, 0, len(e.pads))
	for _, p := range e.pads {
		out = append(out, p)
	}
	return out
}

// freePad returns an unlinked pad of dir, creating a request pad when the
// class allows it. Caller holds the engine lock.
func (e *element) freePad(dir engine.PadDirection) *pad {
	for _, p := range e.pads {
		if p.dir == dir && p.peer == nil && !p.request {
			return p
		}
	}
	var prefix string
	switch {
	case dir == engine.PadSrc && e.class == ClassTee:
		prefix = "src_"
	case dir == engine.PadSink && e.class == ClassMuxer:
		prefix = "sink_"
	default:
		return nil
	}
	p := &pad{name: fmt.Sprintf("%s%d", prefix, e.reqs), dir: dir, el: e, request: true}
	e.reqs++
	e.pads = append(e.pads, p)
	return p
}

func (e *element) Link(dst engine.Element) error {
	d, ok := unwrap(dst)
	if !ok {
		return fmt.Errorf("sim: cannot link %s to foreign element %T", e.name, dst)
	}
	e.eng.mu.Lock()
	defer e.eng.mu.Unlock()

	if e.bin == nil || e.bin != d.bin {
		return fmt.Errorf("sim: %s and %s are not in the same container", e.name, d.name)
	}
	src := e.freePad(engine.PadSrc)
	if src == nil {
		return fmt.Errorf("sim: %s has no free src pad", e.name)
	}
	sink := d.freePad(engine.PadSink)
	if sink == nil {
		e.releaseIfRequest(src)
		return fmt.Errorf("sim: %s has no free sink pad", d.name)
	}
	src.peer = sink
	sink.peer = src
	return nil
}

func (e *element) Unlink(dst engine.Element) {
	d, ok := unwrap(dst)
	if !ok {
		return
	}
	e.eng.mu.Lock()
	defer e.eng.mu.Unlock()
	for _, p := range slices.Clone(e.pads) {
		if p.dir != engine.PadSrc || p.peer == nil || p.peer.el != d {
			continue
		}
		unlinkPads(p, p.peer)
	}
}

// unlinkPads breaks the link between a src and a sink pad and releases
// request pads. Caller holds the engine lock.
func unlinkPads(src, sink *pad) {
	src.peer = nil
	sink.peer = nil
	src.el.releaseIfRequest(src)
	sink.el.releaseIfRequest(sink)
}

func (e *element) releaseIfRequest(p *pad) {
	if !p.request {
		return
	}
	p.released = true
	p.probes = nil
	e.pads = slices.DeleteFunc(e.pads, func(q *pad) bool { return q == p })
	delete(e.eosSinks, p)
}

func (e *element) SetState(s engine.State) error {
	e.eng.mu.Lock()
	defer e.eng.mu.Unlock()
	e.setStateLocked(s)
	return nil
}

func (e *element) setStateLocked(s engine.State) {
	e.state = s
	if s <= engine.StateReady {
		e.eos = false
		e.eosSinks = nil
		for _, p := range e.pads {
			for _, pr := range p.probes {
				pr.holding = false
			}
		}
	}
}

func (e *element) State() engine.State {
	e.eng.mu.Lock()
	defer e.eng.mu.Unlock()
	return e.state
}

func (e *element) SetProperty(name string, value any) error {
	e.eng.mu.Lock()
	defer e.eng.mu.Unlock()
	e.props[name] = value
	return nil
}

// ErrNoProperty is returned for properties that were never set.
var ErrNoProperty = errors.New("sim: property not set")

func (e *element) Property(name string) (any, error) {
	e.eng.mu.Lock()
	defer e.eng.mu.Unlock()
	v, ok := e.props[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrNoProperty, e.name, name)
	}
	return v, nil
}

func (e *element) SendEOS() bool {
	e.eng.mu.Lock()
	if e.eng.stallEOS[e.kind] {
		e.eng.mu.Unlock()
		return true
	}
	if e.class == ClassSource {
		e.eos = true
		srcs := e.padsOf(engine.PadSrc)
		e.eng.mu.Unlock()
		for _, p := range srcs {
			pushEOS(p)
		}
		return true
	}
	sinks := e.padsOf(engine.PadSink)
	e.eng.mu.Unlock()
	if len(sinks) == 0 {
		return false
	}
	receiveEOS(sinks[0])
	return true
}

func (e *element) padsOf(dir engine.PadDirection) []*pad {
	var out []*pad
	for _, p := range e.pads {
		if p.dir == dir {
			out = append(out, p)
		}
	}
	return out
}

func (p *pad) Name() string                   { return p.name }
func (p *pad) Direction() engine.PadDirection { return p.dir }
func (p *pad) Parent() engine.Element         { return p.el.self }

func (p *pad) Peer() engine.Pad {
	p.el.eng.mu.Lock()
	defer p.el.eng.mu.Unlock()
	if p.peer == nil {
		return nil
	}
	return p.peer
}

func (p *pad) AddProbe(kind engine.ProbeKind, fn engine.ProbeFunc) (uint64, error) {
	eng := p.el.eng
	eng.mu.Lock()
	if p.released {
		eng.mu.Unlock()
		return 0, fmt.Errorf("sim: pad %s.%s was released", p.el.name, p.name)
	}
	id := eng.nextProbeID()
	// Buffers only move under the engine lock, so a pad is always idle here.
	pr := &probe{id: id, kind: kind, fn: fn, holding: kind == engine.ProbeIdle}
	p.probes = append(p.probes, pr)
	eng.mu.Unlock()

	if kind == engine.ProbeIdle {
		ret := fn(p, engine.ProbeInfo{ID: id})
		eng.mu.Lock()
		switch ret {
		case engine.ProbeRemove:
			p.removeProbeLocked(id)
		case engine.ProbeOK:
		default:
			pr.holding = false
		}
		eng.mu.Unlock()
	}
	return id, nil
}

func (p *pad) RemoveProbe(id uint64) {
	p.el.eng.mu.Lock()
	defer p.el.eng.mu.Unlock()
	p.removeProbeLocked(id)
}

func (p *pad) removeProbeLocked(id uint64) {
	p.probes = slices.DeleteFunc(p.probes, func(pr *probe) bool { return pr.id == id })
}

func (p *pad) SendEOS() bool {
	if p.dir == engine.PadSink {
		receiveEOS(p)
	} else {
		pushEOS(p)
	}
	return true
}

// runEventProbes calls the event probes of p for an EOS and reports whether
// the event may continue.
func runEventProbes(p *pad) bool {
	eng := p.el.eng
	eng.mu.Lock()
	var probes []*probe
	for _, pr := range p.probes {
		if pr.kind == engine.ProbeEventDownstream {
			probes = append(probes, pr)
		}
	}
	eng.mu.Unlock()

	pass := true
	for _, pr := range probes {
		switch pr.fn(p, engine.ProbeInfo{ID: pr.id, EOS: true}) {
		case engine.ProbeDrop:
			pass = false
		case engine.ProbeRemove:
			p.RemoveProbe(pr.id)
		}
	}
	return pass
}

// pushEOS sends end-of-stream out of a src pad to its peer.
func pushEOS(p *pad) {
	if !runEventProbes(p) {
		return
	}
	p.el.eng.mu.Lock()
	peer := p.peer
	p.el.eng.mu.Unlock()
	if peer != nil {
		receiveEOS(peer)
	}
}

// receiveEOS delivers end-of-stream to a sink pad and lets the element
// forward it.
func receiveEOS(p *pad) {
	if !runEventProbes(p) {
		return
	}
	el := p.el
	eng := el.eng
	eng.mu.Lock()
	if el.class == ClassMuxer {
		if el.eosSinks == nil {
			el.eosSinks = make(map[*pad]bool)
		}
		el.eosSinks[p] = true
		for _, sp := range el.padsOf(engine.PadSink) {
			if sp.peer != nil && !el.eosSinks[sp] {
				eng.mu.Unlock()
				return
			}
		}
	}
	el.eos = true
	srcs := el.padsOf(engine.PadSrc)
	eng.mu.Unlock()

	for _, sp := range srcs {
		pushEOS(sp)
	}
}
