// Package engine defines the contract between the graph core and the media
// engine that owns elements, pads, scheduling and buffers.
//
// Implementations live in sub-packages and register themselves by name:
// sim is an in-memory engine with simulated streaming threads, gstreamer
// wraps GStreamer and is only compiled with the gstreamer build tag.
package engine

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// State is the run state of an element or container.
type State int

const (
	StateNull State = iota
	StateReady
	StatePaused
	StatePlaying
)

func (s State) String() string {
	switch s {
	case StateNull:
		return "null"
	case StateReady:
		return "ready"
	case StatePaused:
		return "paused"
	case StatePlaying:
		return "playing"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// PadDirection tells whether a pad produces or consumes data.
type PadDirection int

const (
	PadSrc PadDirection = iota
	PadSink
)

// ProbeKind selects what a pad probe intercepts.
type ProbeKind int

const (
	// ProbeBlockDownstream holds downstream data at the pad. The callback
	// runs once, on the streaming thread, when the pad becomes blocked, and
	// the pad stays blocked until the probe is removed.
	ProbeBlockDownstream ProbeKind = iota
	// ProbeEventDownstream sees every downstream event passing the pad.
	ProbeEventDownstream
	// ProbeIdle holds the pad like ProbeBlockDownstream but fires as soon
	// as nothing is being pushed through it. On a pad that is already idle
	// the callback runs on the goroutine adding the probe, before AddProbe
	// returns, so it works on branches no data reaches.
	ProbeIdle
)

// ProbeReturn tells the engine what to do with the probed item.
type ProbeReturn int

const (
	ProbeOK ProbeReturn = iota
	ProbeDrop
	ProbeRemove
	ProbePass
)

// ProbeInfo describes the item a probe fired for.
type ProbeInfo struct {
	ID  uint64
	EOS bool
}

// ProbeFunc runs on an engine streaming thread. It must not change element
// states or touch graph bookkeeping.
type ProbeFunc func(pad Pad, info ProbeInfo) ProbeReturn

// Pad is a connection point of an element.
type Pad interface {
	Name() string
	Direction() PadDirection
	Parent() Element
	// Peer returns the linked pad, or nil.
	Peer() Pad
	AddProbe(kind ProbeKind, fn ProbeFunc) (uint64, error)
	RemoveProbe(id uint64)
	// SendEOS pushes an end-of-stream event through the pad.
	SendEOS() bool
}

// Element is one processing unit owned by the engine.
type Element interface {
	Name() string
	Kind() string
	// StaticPad returns the always-present pad called name ("src" or
	// "sink"), or nil.
	StaticPad(name string) Pad
	// Pads returns every current pad, request pads included.
	Pads() []Pad
	// Link connects this element's output to dst's input, requesting pads
	// where needed.
	Link(dst Element) error
	// Unlink breaks every link to dst and releases request pads used by it.
	Unlink(dst Element)
	SetState(State) error
	State() State
	SetProperty(name string, value any) error
	Property(name string) (any, error)
	// SendEOS injects end-of-stream at the element itself.
	SendEOS() bool
}

// MessageType classifies bus messages.
type MessageType int

const (
	MessageError MessageType = iota
	MessageWarning
	MessageEOS
	MessageStateChanged
)

// Message is one bus message posted by an element.
type Message struct {
	Type   MessageType
	Source string
	Text   string
	Debug  string
}

// Container is a bin of elements sharing a clock and a message bus.
type Container interface {
	Element
	Add(el Element) error
	Remove(el Element) error
	// ByName returns the child called name, or nil.
	ByName(name string) Element
	Elements() []Element
	// PopMessage waits up to timeout for the next bus message. It returns
	// nil on timeout.
	PopMessage(timeout time.Duration) *Message
}

// Engine creates containers and elements.
type Engine interface {
	Name() string
	NewContainer(name string) (Container, error)
	NewElement(kind, name string) (Element, error)
}

// Factory opens an engine back-end.
type Factory func() (Engine, error)

// ErrUnknownEngine is returned by Open for unregistered back-ends.
var ErrUnknownEngine = errors.New("engine: unknown back-end")

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a back-end available under name. It panics on duplicates.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic("engine: Register called twice for " + name)
	}
	registry[name] = f
}

// Open returns a new instance of the named back-end.
func Open(name string) (Engine, error) {
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q (available: %v)", ErrUnknownEngine, name, Available())
	}
	return f()
}

// Available lists registered back-ends.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SamePad reports whether a and b denote the same pad. Engines may hand out
// distinct wrappers for one pad, so pads are compared by owner and name.
func SamePad(a, b Pad) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	pa, pb := a.Parent(), b.Parent()
	if pa == nil || pb == nil {
		return false
	}
	return a.Name() == b.Name() && pa.Name() == pb.Name()
}

// UpstreamElement returns the element linked to el's sink pad, or nil.
func UpstreamElement(el Element) Element {
	return peerParent(el.StaticPad("sink"))
}

// DownstreamElement returns the element linked to el's src pad, or nil.
func DownstreamElement(el Element) Element {
	return peerParent(el.StaticPad("src"))
}

func peerParent(p Pad) Element {
	if p == nil {
		return nil
	}
	peer := p.Peer()
	if peer == nil {
		return nil
	}
	return peer.Parent()
}

// Downstream returns every element fed by el, in pad order.
func Downstream(el Element) []Element {
	var out []Element
	for _, p := range el.Pads() {
		if p.Direction() != PadSrc {
			continue
		}
		if parent := peerParent(p); parent != nil {
			out = append(out, parent)
		}
	}
	return out
}

// Upstream returns every element feeding el, in pad order.
func Upstream(el Element) []Element {
	var out []Element
	for _, p := range el.Pads() {
		if p.Direction() != PadSink {
			continue
		}
		if parent := peerParent(p); parent != nil {
			out = append(out, parent)
		}
	}
	return out
}
