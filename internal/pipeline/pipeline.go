// Package pipeline owns the media graph and its lifecycle.
//
// All graph, registry and lifecycle mutations run on one control goroutine.
// Public methods hand a closure to that goroutine and wait for its result,
// so callers may use a Pipeline from any goroutine. Read-only queries go on
// a separate queue that the goroutine also serves while a hot-swap waits on
// the streaming threads; mutations queue behind the swap. Engine probe callbacks
// and the bus monitor never touch bookkeeping directly; they post work to
// the control goroutine as well.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smazurov/castnode/internal/engine"
	"github.com/smazurov/castnode/internal/events"
	"github.com/smazurov/castnode/internal/graph"
	"github.com/smazurov/castnode/internal/hotswap"
	"github.com/smazurov/castnode/internal/logging"
	"github.com/smazurov/castnode/internal/outputs"
)

// State is the lifecycle state of a pipeline.
type State string

const (
	StateIdle    State = "idle"
	StatePreview State = "preview"
	StatePlaying State = "playing"
	StatePaused  State = "paused"
	StateStopped State = "stopped"
	StateClosed  State = "closed"
)

// Defaults for Config fields left zero.
const (
	DefaultReconnectInterval = 5 * time.Second
	DefaultSpeakerSink       = "pulsesink"
	DefaultScreenSink        = "xvimagesink"
)

// Config holds construction parameters.
type Config struct {
	Name              string
	SwapTimeout       time.Duration
	ReconnectInterval time.Duration
	// PreviewCategory is the default source category used when Stop falls
	// back to preview and no category was requested before.
	PreviewCategory graph.Category
	OverlayImage    string
	SpeakerDevice   string
	SpeakerSink     string
	ScreenSink      string
}

func (c *Config) setDefaults() {
	if c.Name == "" {
		c.Name = "castnode"
	}
	if c.SwapTimeout <= 0 {
		c.SwapTimeout = hotswap.DefaultTimeout
	}
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = DefaultReconnectInterval
	}
	if c.PreviewCategory == "" {
		c.PreviewCategory = graph.CategoryVideo
	}
	if c.SpeakerSink == "" {
		c.SpeakerSink = DefaultSpeakerSink
	}
	if c.ScreenSink == "" {
		c.ScreenSink = DefaultScreenSink
	}
}

// Pipeline is the media graph with its lifecycle.
type Pipeline struct {
	cfg     Config
	g       *graph.Graph
	chains  *chains
	reg     *outputs.Registry
	swapper *hotswap.Reconfigurator
	bus     *events.Bus
	logger  *slog.Logger

	// owned by the control goroutine
	state      State
	sources    map[graph.Category]*graph.Stage
	overlay    Overlay
	inputMuted bool
	speaker    Speaker
	reconnects map[string]*reconnect
	attempts   map[string]int
	lastSwap   *SwapInfo

	// published copy of state for lock-free reads
	current atomic.Value

	ops    chan func()
	reads  chan func()
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithBus publishes lifecycle, branch, swap and reconnect events on bus.
func WithBus(bus *events.Bus) Option {
	return func(p *Pipeline) { p.bus = bus }
}

// WithLogger overrides the module logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New builds the processing chains on eng and starts the control goroutine
// and the bus monitor. The graph stays idle until EnterPreview or Play.
func New(eng engine.Engine, cfg Config, opts ...Option) (*Pipeline, error) {
	cfg.setDefaults()
	p := &Pipeline{
		cfg:        cfg,
		logger:     logging.GetLogger("pipeline"),
		state:      StateIdle,
		sources:    make(map[graph.Category]*graph.Stage),
		reconnects: make(map[string]*reconnect),
		attempts:   make(map[string]int),
		overlay:    Overlay{HAlignment: "left", VAlignment: "top", OffsetX: -6, OffsetY: 6, Image: cfg.OverlayImage},
		speaker:    Speaker{Device: cfg.SpeakerDevice, Muted: true},
		ops:        make(chan func()),
		reads:      make(chan func()),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.current.Store(StateIdle)

	g, err := graph.New(eng, cfg.Name, p.logger.With("component", "graph"))
	if err != nil {
		return nil, err
	}
	p.g = g
	if p.chains, err = buildChains(g, cfg); err != nil {
		return nil, fmt.Errorf("building processing chains: %w", err)
	}

	p.swapper = hotswap.New(g.Container(),
		hotswap.WithTimeout(cfg.SwapTimeout),
		hotswap.WithBus(p.bus),
		hotswap.WithServe(p.reads),
		hotswap.WithLogger(logging.GetLogger("hotswap")))
	p.reg = outputs.New(g,
		outputs.WithSwapper(p.swapper),
		outputs.WithBus(p.bus),
		outputs.WithLogger(logging.GetLogger("outputs")))
	for cat, j := range p.chains.outputs {
		if err := p.reg.SetJunction(cat, j); err != nil {
			return nil, err
		}
	}

	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.wg.Add(2)
	go p.loop()
	go p.monitor()

	p.logger.Info("Pipeline ready", "engine", eng.Name(), "stages", len(g.Stages()))
	return p, nil
}

func (p *Pipeline) loop() {
	defer p.wg.Done()
	defer close(p.done)
	for {
		select {
		case op := <-p.ops:
			op()
		case op := <-p.reads:
			op()
		case <-p.ctx.Done():
			return
		}
	}
}

// do runs fn on the control goroutine and returns its error.
func (p *Pipeline) do(ctx context.Context, fn func() error) error {
	return p.submit(ctx, p.ops, fn)
}

// read runs fn on the control goroutine like do. fn must not change any
// state; it may run while another operation waits for a swap.
func (p *Pipeline) read(ctx context.Context, fn func() error) error {
	return p.submit(ctx, p.reads, fn)
}

func (p *Pipeline) submit(ctx context.Context, queue chan<- func(), fn func() error) error {
	res := make(chan error, 1)
	select {
	case queue <- func() { res <- fn() }:
	case <-p.done:
		return graph.ErrPipelineClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-res:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post queues fn on the control goroutine without waiting. It reports
// false once the pipeline is closed.
func (p *Pipeline) post(fn func()) bool {
	select {
	case p.ops <- fn:
		return true
	case <-p.done:
		return false
	}
}

// State returns the current lifecycle state.
func (p *Pipeline) State() State {
	return p.current.Load().(State)
}

// Graph exposes the underlying graph for read-only inspection in tests and
// tooling. It must not be mutated outside the control goroutine.
func (p *Pipeline) Graph() *graph.Graph {
	return p.g
}

func (p *Pipeline) setState(s State) {
	if p.state == s {
		return
	}
	from := p.state
	p.state = s
	p.current.Store(s)
	p.logger.Info("Pipeline state changed", "from", from, "to", s)
	p.bus.Publish(events.GraphStateChangedEvent{
		From:      string(from),
		To:        string(s),
		Timestamp: events.Now(),
	})
}

func (p *Pipeline) setEngineState(s engine.State) error {
	if err := p.g.Container().SetState(s); err != nil {
		return graph.NewError(graph.CodeEngine, p.cfg.Name, "setting "+s.String(), err)
	}
	return nil
}

func (p *Pipeline) checkOpen() error {
	if p.state == StateClosed {
		return graph.ErrPipelineClosed
	}
	return nil
}

// EnterPreview makes sure a source of cat exists, synthesizing a default
// one if needed, and lets the graph flow without any output branch. It is
// valid from idle, stopped and preview; a playing or paused graph must be
// stopped first so its branches are detached.
func (p *Pipeline) EnterPreview(ctx context.Context, cat graph.Category) error {
	return p.do(ctx, func() error {
		if err := p.checkOpen(); err != nil {
			return err
		}
		switch p.state {
		case StateIdle, StateStopped, StatePreview:
		default:
			return graph.NewError(graph.CodeInvalidState, "", fmt.Sprintf("cannot preview from %s", p.state), nil)
		}
		return p.enterPreview(ctx, cat)
	})
}

func (p *Pipeline) enterPreview(ctx context.Context, cat graph.Category) error {
	if cat != graph.CategoryAudio && cat != graph.CategoryVideo {
		return graph.NewError(graph.CodeInvalidCategory, "", fmt.Sprintf("no default source for %q", cat), nil)
	}
	p.cfg.PreviewCategory = cat
	if p.sources[cat] == nil {
		if err := p.setDefaultSource(ctx, cat); err != nil {
			return err
		}
	}
	if err := p.setEngineState(engine.StatePlaying); err != nil {
		return err
	}
	p.setState(StatePreview)
	return nil
}

// Play attaches every pending output branch and lets the graph flow. From
// preview the graph is reset first; from paused it simply resumes.
func (p *Pipeline) Play(ctx context.Context) error {
	return p.do(ctx, func() error {
		if err := p.checkOpen(); err != nil {
			return err
		}
		switch p.state {
		case StatePlaying:
			return nil
		case StatePaused:
			if err := p.reg.AttachAll(ctx); err != nil {
				return err
			}
			if err := p.setEngineState(engine.StatePlaying); err != nil {
				return err
			}
			p.setState(StatePlaying)
			return nil
		case StatePreview:
			if err := p.setEngineState(engine.StateNull); err != nil {
				return err
			}
		}
		if err := p.reg.AttachAll(ctx); err != nil {
			return err
		}
		if err := p.setEngineState(engine.StatePlaying); err != nil {
			return err
		}
		p.setState(StatePlaying)
		return nil
	})
}

// Pause holds the graph without detaching any branch.
func (p *Pipeline) Pause(ctx context.Context) error {
	return p.do(ctx, func() error {
		if err := p.checkOpen(); err != nil {
			return err
		}
		switch p.state {
		case StatePaused:
			return nil
		case StatePlaying:
		default:
			return graph.NewError(graph.CodeInvalidState, "", fmt.Sprintf("cannot pause from %s", p.state), nil)
		}
		if err := p.setEngineState(engine.StatePaused); err != nil {
			return err
		}
		p.setState(StatePaused)
		return nil
	})
}

// Stop detaches every output branch back to placeholders, resets the graph
// and falls back to preview.
func (p *Pipeline) Stop(ctx context.Context) error {
	return p.do(ctx, func() error {
		if err := p.checkOpen(); err != nil {
			return err
		}
		if p.state != StatePlaying && p.state != StatePaused {
			return graph.NewError(graph.CodeInvalidState, "", fmt.Sprintf("cannot stop from %s", p.state), nil)
		}
		p.cancelReconnects()
		if err := p.reg.DetachAll(ctx); err != nil {
			return err
		}
		if err := p.setEngineState(engine.StateNull); err != nil {
			return err
		}
		p.setState(StateStopped)
		return p.enterPreview(ctx, p.cfg.PreviewCategory)
	})
}

// Close sets the graph to null and releases it. Every later call returns
// ErrPipelineClosed.
func (p *Pipeline) Close(ctx context.Context) error {
	err := p.do(ctx, func() error {
		if p.state == StateClosed {
			return nil
		}
		p.cancelReconnects()
		err := p.setEngineState(engine.StateNull)
		p.setState(StateClosed)
		p.cancel()
		return err
	})
	if errors.Is(err, graph.ErrPipelineClosed) {
		return nil
	}
	if err == nil {
		p.wg.Wait()
	}
	return err
}

// Done is closed once the control goroutine has exited.
func (p *Pipeline) Done() <-chan struct{} {
	return p.done
}
