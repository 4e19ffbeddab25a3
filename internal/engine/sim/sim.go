// Package sim is an in-memory media engine.
//
// Elements carry static and request pads, links, properties and run states.
// A playing container runs a streaming goroutine that pushes one buffer per
// tick from every playing source through every linked, playing element.
// Blocking probes hold that data and fire their callback once on the
// streaming goroutine. Idle probes hold it too but fire on the goroutine
// that adds them, since no buffer is ever in flight outside the engine
// lock. End-of-stream events travel synchronously through
// pads and event probes. Events are not held by blocking probes.
package sim

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/smazurov/castnode/internal/engine"
)

// Name is the registry name of this back-end.
const Name = "sim"

const defaultTick = 2 * time.Millisecond

func init() {
	engine.Register(Name, func() (engine.Engine, error) { return New(), nil })
}

// Class decides the pad layout of an element kind.
type Class int

const (
	ClassFilter Class = iota
	ClassSource
	ClassSink
	// ClassTee has one sink pad and request src pads.
	ClassTee
	// ClassMuxer has request sink pads and one src pad. It forwards
	// end-of-stream once every linked sink pad has received it.
	ClassMuxer
)

var defaultKinds = map[string]Class{
	"audiotestsrc": ClassSource,
	"videotestsrc": ClassSource,
	"pulsesrc":     ClassSource,
	"v4l2src":      ClassSource,
	"rtspsrc":      ClassSource,
	"filesrc":      ClassSource,
	"appsrc":       ClassSource,

	"fakesink":      ClassSink,
	"filesink":      ClassSink,
	"shout2send":    ClassSink,
	"pulsesink":     ClassSink,
	"xvimagesink":   ClassSink,
	"autovideosink": ClassSink,
	"autoaudiosink": ClassSink,
	"appsink":       ClassSink,
	"tcpclientsink": ClassSink,

	"tee": ClassTee,

	"oggmux":      ClassMuxer,
	"matroskamux": ClassMuxer,
	"webmmux":     ClassMuxer,
	"mp4mux":      ClassMuxer,
	"funnel":      ClassMuxer,
	"audiomixer":  ClassMuxer,

	"queue":            ClassFilter,
	"volume":           ClassFilter,
	"level":            ClassFilter,
	"audioconvert":     ClassFilter,
	"audioresample":    ClassFilter,
	"vorbisenc":        ClassFilter,
	"opusenc":          ClassFilter,
	"vp8enc":           ClassFilter,
	"x264enc":          ClassFilter,
	"videorate":        ClassFilter,
	"videoconvert":     ClassFilter,
	"videoscale":       ClassFilter,
	"capsfilter":       ClassFilter,
	"gdkpixbufoverlay": ClassFilter,
	"textoverlay":      ClassFilter,
	"identity":         ClassFilter,
	"rtph264depay":     ClassFilter,
	"avdec_h264":       ClassFilter,
}

// Engine is the simulated engine. All elements created by one Engine share
// its lock.
type Engine struct {
	mu         sync.Mutex
	kinds      map[string]Class
	failKinds  map[string]bool
	rejectAdds map[string]bool
	stallEOS   map[string]bool
	tick       time.Duration
	probeSeq   uint64
}

// Option configures an Engine.
type Option func(*Engine)

// WithTick sets the streaming interval of playing containers.
func WithTick(d time.Duration) Option {
	return func(e *Engine) { e.tick = d }
}

// WithKind registers an extra element kind.
func WithKind(kind string, class Class) Option {
	return func(e *Engine) { e.kinds[kind] = class }
}

// FailKinds makes element creation fail for the given kinds.
func FailKinds(kinds ...string) Option {
	return func(e *Engine) {
		for _, k := range kinds {
			e.failKinds[k] = true
		}
	}
}

// RejectAdd makes containers refuse elements with the given names.
func RejectAdd(names ...string) Option {
	return func(e *Engine) {
		for _, n := range names {
			e.rejectAdds[n] = true
		}
	}
}

// StallEOS makes elements of the given kinds accept end-of-stream sent to
// them but never forward it.
func StallEOS(kinds ...string) Option {
	return func(e *Engine) {
		for _, k := range kinds {
			e.stallEOS[k] = true
		}
	}
}

// New creates a simulated engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		kinds:      make(map[string]Class, len(defaultKinds)),
		failKinds:  make(map[string]bool),
		rejectAdds: make(map[string]bool),
		stallEOS:   make(map[string]bool),
		tick:       defaultTick,
	}
	for k, c := range defaultKinds {
		e.kinds[k] = c
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements engine.Engine.
func (e *Engine) Name() string { return Name }

// ErrNoFactory is returned for unknown or failing element kinds.
var ErrNoFactory = errors.New("sim: no element factory")

// NewElement implements engine.Engine.
func (e *Engine) NewElement(kind, name string) (engine.Element, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	class, ok := e.kinds[kind]
	if !ok || e.failKinds[kind] {
		return nil, fmt.Errorf("%w for %q", ErrNoFactory, kind)
	}
	if name == "" {
		name = kind
	}
	el := &element{
		eng:   e,
		name:  name,
		kind:  kind,
		class: class,
		props: make(map[string]any),
	}
	if class != ClassMuxer && class != ClassSource {
		el.pads = append(el.pads, &pad{name: "sink", dir: engine.PadSink, el: el})
	}
	if class != ClassTee && class != ClassSink {
		el.pads = append(el.pads, &pad{name: "src", dir: engine.PadSrc, el: el})
	}
	el.self = el
	return el, nil
}

// NewContainer implements engine.Engine.
func (e *Engine) NewContainer(name string) (engine.Container, error) {
	if name == "" {
		name = "pipeline"
	}
	c := &container{
		messages: make(chan *engine.Message, 256),
	}
	c.element = element{
		eng:   e,
		name:  name,
		kind:  "pipeline",
		class: ClassFilter,
		props: make(map[string]any),
	}
	c.self = c
	return c, nil
}

func (e *Engine) nextProbeID() uint64 {
	e.probeSeq++
	return e.probeSeq
}

// BufferCount returns how many buffers el has received or produced.
func BufferCount(el engine.Element) uint64 {
	se, ok := unwrap(el)
	if !ok {
		return 0
	}
	se.eng.mu.Lock()
	defer se.eng.mu.Unlock()
	return se.buffers
}

// ReceivedEOS reports whether el has handled end-of-stream since it last
// left the null state.
func ReceivedEOS(el engine.Element) bool {
	se, ok := unwrap(el)
	if !ok {
		return false
	}
	se.eng.mu.Lock()
	defer se.eng.mu.Unlock()
	return se.eos
}

// Post puts a message on the bus of c as if an element had posted it.
func Post(c engine.Container, msg engine.Message) bool {
	sc, ok := c.(*container)
	if !ok {
		return false
	}
	select {
	case sc.messages <- &msg:
		return true
	default:
		return false
	}
}

func unwrap(el engine.Element) (*element, bool) {
	switch v := el.(type) {
	case *element:
		return v, true
	case *container:
		return &v.element, true
	}
	return nil, false
}

// waitFor polls cond until it holds or d passes. Used by tests of dependent
// packages through WaitBuffers.
func waitFor(d time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(d)
	for {
		if cond() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
}

// WaitBuffers blocks until el has seen more than n buffers or d passes.
func WaitBuffers(el engine.Element, n uint64, d time.Duration) bool {
	return waitFor(d, func() bool { return BufferCount(el) > n })
}
