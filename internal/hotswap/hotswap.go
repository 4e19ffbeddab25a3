// Package hotswap replaces one element of a flowing container with another.
//
// A swap runs as an explicit state machine:
//
//	Idle -> Blocking -> Draining -> Swapped -> Released
//
// Blocking installs an idle probe upstream of the element being replaced,
// which holds data and fires at once when nothing is in flight, so elements
// that see no buffers can still be swapped. Draining pushes end-of-stream
// through it and waits for the marker to come out the other side. Swapped
// re-links the neighbours around the new element, and Released resumes
// flow. Probe callbacks run on engine streaming threads and only post
// "blocked" or "drained" into the machine. Every transition after Blocking
// goes through a Runner, so the owner of the container applies it on its
// own goroutine and stays free while the swap waits.
package hotswap

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smazurov/castnode/internal/engine"
	"github.com/smazurov/castnode/internal/events"
	"github.com/smazurov/castnode/internal/graph"
	"github.com/smazurov/castnode/internal/logging"
)

// DefaultTimeout bounds a whole swap when no other timeout is configured.
const DefaultTimeout = 10 * time.Second

// State is the phase of one swap.
type State int

const (
	StateIdle State = iota
	StateBlocking
	StateDraining
	StateSwapped
	StateReleased
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBlocking:
		return "blocking"
	case StateDraining:
		return "draining"
	case StateSwapped:
		return "swapped"
	case StateReleased:
		return "released"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type signal int

const (
	signalBlocked signal = iota
	signalDrained
)

// Reconfigurator runs swaps against one container.
type Reconfigurator struct {
	container engine.Container
	timeout   time.Duration
	bus       *events.Bus
	logger    *slog.Logger
	serve     <-chan func()
}

// Option configures a Reconfigurator.
type Option func(*Reconfigurator)

// WithTimeout bounds each swap. Zero or negative keeps the default.
func WithTimeout(d time.Duration) Option {
	return func(r *Reconfigurator) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithBus publishes swap outcomes on bus.
func WithBus(bus *events.Bus) Option {
	return func(r *Reconfigurator) { r.bus = bus }
}

// WithServe makes Swap run the functions received on ch while it waits, so
// the goroutine calling Swap keeps answering other requests.
func WithServe(ch <-chan func()) Option {
	return func(r *Reconfigurator) { r.serve = ch }
}

// WithLogger overrides the module logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconfigurator) { r.logger = l }
}

// New creates a Reconfigurator for container.
func New(container engine.Container, opts ...Option) *Reconfigurator {
	r := &Reconfigurator{
		container: container,
		timeout:   DefaultTimeout,
		logger:    logging.GetLogger("hotswap"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Result describes a finished swap.
type Result struct {
	ID       string
	State    State
	Before   engine.Element
	After    engine.Element
	Duration time.Duration
}

// Runner runs fn on the goroutine that owns the container. It reports false
// when that goroutine is gone and fn will never run.
type Runner func(fn func()) bool

// Swap replaces current with requested at the same position and waits for
// the outcome. Every transition runs on the calling goroutine. requested is added to the container unless it is already
// there, in which case any links it has downstream are kept.
//
// When the container is not playing nothing flows, so the elements are
// exchanged directly. Otherwise the probe protocol runs until the swap is
// released, the timeout passes or ctx is done. A swap that times out or is
// cancelled removes its probes and leaves current in place.
func (r *Reconfigurator) Swap(ctx context.Context, current, requested engine.Element) (Result, error) {
	type outcome struct {
		res Result
		err error
	}
	out := make(chan outcome, 1)
	steps := make(chan func(), 1)
	returned := make(chan struct{})
	defer close(returned)
	queue := func(fn func()) bool {
		select {
		case steps <- fn:
			return true
		case <-returned:
			return false
		}
	}
	r.Start(ctx, current, requested, queue, func(res Result, err error) {
		out <- outcome{res, err}
	})
	for {
		select {
		case o := <-out:
			return o.res, o.err
		case fn := <-steps:
			fn()
		case fn := <-r.serve:
			fn()
		}
	}
}

// Start is Swap without the wait. The Blocking phase runs before Start
// returns; later transitions are handed to run, and done is called exactly
// once with the outcome, through run as well. If run refuses a step the
// swap fails and done is called on the watching goroutine instead. When the
// container is not playing, or the swap cannot begin, done is called before
// Start returns.
func (r *Reconfigurator) Start(ctx context.Context, current, requested engine.Element, run Runner, done func(Result, error)) {
	sw := &swap{
		r:         r,
		id:        uuid.NewString(),
		current:   current,
		requested: requested,
		signals:   make(chan signal, 4),
		started:   time.Now(),
	}
	sw.logger = r.logger.With("swap_id", sw.id, "from", current.Name(), "to", requested.Name())

	if r.container.State() != engine.StatePlaying {
		done(sw.finish(sw.offline()))
		return
	}
	if err := ctx.Err(); err != nil {
		done(sw.finish(sw.fail(graph.NewError(graph.CodeSwapCancelled, current.Name(), "", err))))
		return
	}
	if err := sw.block(); err != nil {
		done(sw.finish(sw.fail(err)))
		return
	}
	go sw.watch(ctx, run, done)
}

// finish logs and publishes the outcome of sw.
func (sw *swap) finish(err error) (Result, error) {
	r := sw.r
	res := Result{
		ID:       sw.id,
		State:    sw.state,
		Before:   sw.before,
		After:    sw.after,
		Duration: time.Since(sw.started),
	}
	if err != nil {
		sw.logger.Warn("Swap failed", "state", sw.failedIn, "error", err)
		r.bus.Publish(events.SwapFailedEvent{
			SwapID:    sw.id,
			From:      sw.current.Name(),
			To:        sw.requested.Name(),
			State:     sw.failedIn.String(),
			Error:     err.Error(),
			Timestamp: events.Now(),
		})
		return res, err
	}
	sw.logger.Info("Swap released", "duration", res.Duration)
	r.bus.Publish(events.SourceSwappedEvent{
		SwapID:    sw.id,
		From:      sw.current.Name(),
		To:        sw.requested.Name(),
		Seconds:   res.Duration.Seconds(),
		Timestamp: events.Now(),
	})
	return res, nil
}

// Block holds downstream data at pad and returns once the pad is blocked.
// A pad no data reaches is blocked straight away. The returned release
// removes the probe. When the container is not playing nothing flows, so
// Block returns without a probe.
func (r *Reconfigurator) Block(ctx context.Context, pad engine.Pad) (release func(), err error) {
	if r.container.State() != engine.StatePlaying {
		return func() {}, nil
	}
	blocked := make(chan struct{}, 1)
	id, err := pad.AddProbe(engine.ProbeIdle, func(engine.Pad, engine.ProbeInfo) engine.ProbeReturn {
		select {
		case blocked <- struct{}{}:
		default:
		}
		return engine.ProbeOK
	})
	if err != nil {
		return nil, graph.NewError(graph.CodeEngine, padName(pad), "installing block probe", err)
	}
	release = func() { pad.RemoveProbe(id) }

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()
	for {
		select {
		case <-blocked:
			return release, nil
		case fn := <-r.serve:
			fn()
		case <-timer.C:
			release()
			return nil, graph.NewError(graph.CodeSwapTimeout, padName(pad),
				fmt.Sprintf("pad not blocked after %s", r.timeout), nil)
		case <-ctx.Done():
			release()
			return nil, graph.NewError(graph.CodeSwapCancelled, padName(pad), "", ctx.Err())
		}
	}
}

func padName(p engine.Pad) string {
	if parent := p.Parent(); parent != nil {
		return parent.Name() + "." + p.Name()
	}
	return p.Name()
}

type swap struct {
	r         *Reconfigurator
	id        string
	logger    *slog.Logger
	current   engine.Element
	requested engine.Element
	started   time.Time

	state    State
	failedIn State
	signals  chan signal

	blockPad   engine.Pad
	blockProbe uint64
	drainPad   engine.Pad
	drainProbe uint64

	before engine.Element
	after  engine.Element
}

// post forwards a probe notification without ever blocking the streaming
// thread.
func (sw *swap) post(s signal) {
	select {
	case sw.signals <- s:
	default:
	}
}

// watch turns probe signals, the timeout and ctx into steps for run until
// the swap ends. Steps queued behind the final one are dropped.
func (sw *swap) watch(ctx context.Context, run Runner, done func(Result, error)) {
	timer := time.NewTimer(sw.r.timeout)
	defer timer.Stop()

	ended := make(chan struct{})
	var end sync.Once
	finish := func(err error) {
		end.Do(func() {
			close(ended)
			done(sw.finish(err))
		})
	}

	for {
		select {
		case <-ended:
			return
		default:
		}
		var step func() error
		select {
		case s := <-sw.signals:
			step = func() error { return sw.dispatch(s) }
		case <-timer.C:
			step = func() error {
				return graph.NewError(graph.CodeSwapTimeout, sw.current.Name(),
					fmt.Sprintf("no progress after %s", sw.r.timeout), nil)
			}
		case <-ctx.Done():
			step = func() error {
				return graph.NewError(graph.CodeSwapCancelled, sw.current.Name(), "", ctx.Err())
			}
		case <-ended:
			return
		}

		ok := run(func() {
			select {
			case <-ended:
				return
			default:
			}
			if err := step(); err != nil {
				finish(sw.fail(err))
			} else if sw.state == StateReleased {
				finish(nil)
			}
		})
		if !ok {
			finish(sw.fail(graph.NewError(graph.CodeSwapCancelled, sw.current.Name(), "owner stopped", nil)))
			return
		}
	}
}

// dispatch is the single transition function of the machine.
func (sw *swap) dispatch(s signal) error {
	switch {
	case sw.state == StateBlocking && s == signalBlocked:
		return sw.drain()
	case sw.state == StateDraining && s == signalDrained:
		if err := sw.relink(); err != nil {
			return err
		}
		return sw.release()
	}
	sw.logger.Debug("Ignoring late probe signal", "state", sw.state, "signal", s)
	return nil
}

// Idle -> Blocking. The block goes on the pad feeding current, or on
// current's own output when nothing feeds it.
func (sw *swap) block() error {
	sink := sw.current.StaticPad("sink")
	src := sw.current.StaticPad("src")
	if sink != nil {
		sw.blockPad = sink.Peer()
	}
	if sw.blockPad == nil {
		sw.blockPad = src
	}
	if sw.blockPad == nil {
		return graph.NewError(graph.CodeLinking, sw.current.Name(), "no pad to block", nil)
	}
	sw.drainPad = src
	if sw.drainPad == nil {
		sw.drainPad = sink
	}

	id, err := sw.blockPad.AddProbe(engine.ProbeIdle, func(engine.Pad, engine.ProbeInfo) engine.ProbeReturn {
		sw.post(signalBlocked)
		return engine.ProbeOK
	})
	if err != nil {
		return graph.NewError(graph.CodeEngine, sw.current.Name(), "installing block probe", err)
	}
	sw.blockProbe = id
	sw.state = StateBlocking
	sw.logger.Debug("Blocking", "pad", padName(sw.blockPad))
	return nil
}

// Blocking -> Draining.
func (sw *swap) drain() error {
	id, err := sw.drainPad.AddProbe(engine.ProbeEventDownstream, func(_ engine.Pad, info engine.ProbeInfo) engine.ProbeReturn {
		if !info.EOS {
			return engine.ProbePass
		}
		sw.post(signalDrained)
		return engine.ProbeDrop
	})
	if err != nil {
		return graph.NewError(graph.CodeEngine, sw.current.Name(), "installing drain probe", err)
	}
	sw.drainProbe = id
	sw.state = StateDraining

	// A source has only its own output to block, and a blocked pad would
	// hold the end-of-stream too.
	if engine.SamePad(sw.blockPad, sw.drainPad) {
		sw.blockPad.RemoveProbe(sw.blockProbe)
		sw.blockProbe = 0
	}

	var sent bool
	if sink := sw.current.StaticPad("sink"); sink != nil {
		sent = sink.SendEOS()
	} else {
		sent = sw.current.SendEOS()
	}
	if !sent {
		return graph.NewError(graph.CodeEngine, sw.current.Name(), "end-of-stream rejected", nil)
	}
	sw.logger.Debug("Draining")
	return nil
}

// Draining -> Swapped.
func (sw *swap) relink() error {
	if p := sw.blockPad.Parent(); p != nil && p.Name() != sw.current.Name() {
		sw.before = p
	}
	sw.after = engine.DownstreamElement(sw.current)

	sw.drainPad.RemoveProbe(sw.drainProbe)
	sw.drainProbe = 0
	if err := sw.replace(); err != nil {
		return err
	}
	sw.state = StateSwapped
	return nil
}

// Swapped -> Released.
func (sw *swap) release() error {
	if err := sw.requested.SetState(engine.StatePaused); err != nil {
		return graph.NewError(graph.CodeEngine, sw.requested.Name(), "pausing", err)
	}
	if err := sw.requested.SetState(engine.StatePlaying); err != nil {
		return graph.NewError(graph.CodeEngine, sw.requested.Name(), "playing", err)
	}
	if sw.blockProbe != 0 {
		sw.blockPad.RemoveProbe(sw.blockProbe)
		sw.blockProbe = 0
	}
	sw.state = StateReleased
	return nil
}

// replace unlinks current from its neighbours, takes it out and links
// requested in its place.
func (sw *swap) replace() error {
	c := sw.r.container
	if sw.before != nil {
		sw.before.Unlink(sw.current)
	}
	if sw.after != nil {
		sw.current.Unlink(sw.after)
	}
	if err := c.Remove(sw.current); err != nil {
		return graph.NewError(graph.CodeEngine, sw.current.Name(), "removing", err)
	}
	if err := sw.current.SetState(engine.StateNull); err != nil {
		sw.logger.Warn("Replaced element did not reach null", "error", err)
	}

	if c.ByName(sw.requested.Name()) == nil {
		if err := c.Add(sw.requested); err != nil {
			return graph.NewError(graph.CodeAddingElement, sw.requested.Name(), "", err)
		}
	}
	if sw.before != nil {
		if err := sw.before.Link(sw.requested); err != nil {
			return graph.NewError(graph.CodeLinking, sw.before.Name(), "to "+sw.requested.Name(), err)
		}
	}
	if sw.after != nil {
		if err := sw.requested.Link(sw.after); err != nil {
			return graph.NewError(graph.CodeLinking, sw.requested.Name(), "to "+sw.after.Name(), err)
		}
	}
	return nil
}

// offline exchanges the elements of a container that is not flowing.
func (sw *swap) offline() error {
	sw.before = engine.UpstreamElement(sw.current)
	sw.after = engine.DownstreamElement(sw.current)
	if err := sw.replace(); err != nil {
		return sw.fail(err)
	}
	if err := sw.requested.SetState(sw.r.container.State()); err != nil {
		return sw.fail(graph.NewError(graph.CodeEngine, sw.requested.Name(), "syncing state", err))
	}
	sw.state = StateReleased
	return nil
}

// fail removes any probe still installed and moves to Failed.
func (sw *swap) fail(err error) error {
	if sw.blockProbe != 0 {
		sw.blockPad.RemoveProbe(sw.blockProbe)
		sw.blockProbe = 0
	}
	if sw.drainProbe != 0 {
		sw.drainPad.RemoveProbe(sw.drainProbe)
		sw.drainProbe = 0
	}
	sw.failedIn = sw.state
	sw.state = StateFailed
	return err
}
