// Package watch checks the availability of remote servers, such as the
// Icecast hosts stream branches send to, at a fixed interval.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/smazurov/castnode/internal/events"
	"github.com/smazurov/castnode/internal/logging"
	"github.com/smazurov/castnode/internal/metrics"
)

const (
	DefaultInterval = 5 * time.Second
	DefaultTimeout  = 500 * time.Millisecond
)

// Dialer opens the probe connection. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// State is the last known availability of a remote.
type State struct {
	Host             string     `json:"host"`
	Port             int        `json:"port"`
	Available        bool       `json:"available"`
	UnavailableSince *time.Time `json:"unavailable_since,omitempty"`
	UnknownState     bool       `json:"unknown_state" doc:"Last check timed out"`
	HostRunning      bool       `json:"host_running"`
	PortOpen         bool       `json:"port_open"`
	Latency          float64    `json:"latency" doc:"Connect latency in seconds, -1 when unknown"`
	CheckedAt        *time.Time `json:"checked_at,omitempty"`
}

// Remote is one watched host and port.
type Remote struct {
	mu    sync.Mutex
	state State
}

// State returns a copy of the last known state.
func (r *Remote) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Remote) address() string {
	return net.JoinHostPort(r.state.Host, strconv.Itoa(r.state.Port))
}

// Watcher pings every added remote once per interval while started.
type Watcher struct {
	interval time.Duration
	timeout  time.Duration
	dialer   Dialer
	bus      *events.Bus
	logger   *slog.Logger

	mu      sync.Mutex
	remotes map[string]*Remote
	cancel  context.CancelFunc
	done    chan struct{}
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithInterval sets the time between two check waves.
func WithInterval(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithTimeout sets how long one check waits for a reply.
func WithTimeout(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.timeout = d
		}
	}
}

// WithDialer replaces the TCP dialer.
func WithDialer(d Dialer) Option {
	return func(w *Watcher) { w.dialer = d }
}

// WithBus publishes a RemoteAvailabilityEvent after every check.
func WithBus(bus *events.Bus) Option {
	return func(w *Watcher) { w.bus = bus }
}

// WithLogger overrides the module logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// New creates a stopped watcher without remotes.
func New(opts ...Option) *Watcher {
	w := &Watcher{
		interval: DefaultInterval,
		timeout:  DefaultTimeout,
		dialer:   &net.Dialer{},
		logger:   logging.GetLogger("watch"),
		remotes:  make(map[string]*Remote),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Add starts watching host:port. Adding an address twice returns the
// existing remote.
func (w *Watcher) Add(host string, port int) *Remote {
	r := &Remote{state: State{Host: host, Port: port, Latency: -1}}
	key := r.address()

	w.mu.Lock()
	defer w.mu.Unlock()
	if existing, ok := w.remotes[key]; ok {
		return existing
	}
	w.remotes[key] = r
	w.logger.Debug("Watching remote", "address", key)
	return r
}

// Remove stops watching host:port and returns the remote, or nil if it was
// not watched.
func (w *Watcher) Remove(host string, port int) *Remote {
	key := net.JoinHostPort(host, strconv.Itoa(port))
	w.mu.Lock()
	r, ok := w.remotes[key]
	delete(w.remotes, key)
	w.mu.Unlock()
	if !ok {
		return nil
	}
	metrics.DeleteRemote(host, strconv.Itoa(port))
	w.logger.Debug("Stopped watching remote", "address", key)
	return r
}

// Remotes returns the state of every watched remote ordered by address.
func (w *Watcher) Remotes() []State {
	w.mu.Lock()
	list := make([]*Remote, 0, len(w.remotes))
	for _, r := range w.remotes {
		list = append(list, r)
	}
	w.mu.Unlock()

	out := make([]State, 0, len(list))
	for _, r := range list {
		out = append(out, r.State())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Host != out[j].Host {
			return out[i].Host < out[j].Host
		}
		return out[i].Port < out[j].Port
	})
	return out
}

// Start runs check waves until Stop or ctx is done. Starting a running
// watcher does nothing. Remotes are kept across Stop and Start.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	go w.run(ctx, w.done)
	w.logger.Info("Remote watcher started", "interval", w.interval, "timeout", w.timeout)
}

// Stop ends the check loop and waits for the running wave.
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	w.logger.Info("Remote watcher stopped")
}

// Running reports whether the check loop is active.
func (w *Watcher) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cancel != nil
}

func (w *Watcher) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		if err := w.Check(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Warn("Remote check wave failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Check pings every remote once, concurrently.
func (w *Watcher) Check(ctx context.Context) error {
	w.mu.Lock()
	list := make([]*Remote, 0, len(w.remotes))
	for _, r := range w.remotes {
		list = append(list, r)
	}
	w.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, r := range list {
		g.Go(func() error {
			w.ping(ctx, r)
			return ctx.Err()
		})
	}
	return g.Wait()
}

// ping connects to the remote. A refused connection means the host is up
// with the port closed; a timeout leaves the state unknown.
func (w *Watcher) ping(ctx context.Context, r *Remote) {
	r.mu.Lock()
	addr := r.address()
	r.mu.Unlock()

	dctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	start := time.Now()
	conn, err := w.dialer.DialContext(dctx, "tcp", addr)
	latency := time.Since(start)

	switch {
	case err == nil:
		_ = conn.Close()
		w.update(r, true, true, latency.Seconds())
	case errors.Is(err, syscall.ECONNREFUSED):
		w.update(r, true, false, latency.Seconds())
	case ctx.Err() != nil:
		return
	case isTimeout(err):
		w.logger.Debug("Remote did not reply in time", "address", addr, "timeout", w.timeout)
		r.mu.Lock()
		r.state.UnknownState = true
		r.mu.Unlock()
	default:
		w.update(r, false, false, -1)
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func (w *Watcher) update(r *Remote, hostRunning, portOpen bool, latency float64) {
	now := time.Now()
	r.mu.Lock()
	s := &r.state
	s.UnknownState = false
	s.HostRunning = hostRunning
	s.PortOpen = portOpen
	s.Latency = latency
	s.CheckedAt = &now
	s.Available = hostRunning && portOpen
	if s.Available {
		if s.UnavailableSince != nil {
			w.logger.Info("Remote available again", "address", r.address(),
				"unavailable_for", fmt.Sprintf("%.1fs", now.Sub(*s.UnavailableSince).Seconds()))
		}
		s.UnavailableSince = nil
	} else if s.UnavailableSince == nil {
		s.UnavailableSince = &now
		w.logger.Warn("Remote not available", "address", r.address(),
			"host_running", hostRunning, "port_open", portOpen)
	}
	ev := events.RemoteAvailabilityEvent{
		Host:        s.Host,
		Port:        s.Port,
		Available:   s.Available,
		HostRunning: hostRunning,
		PortOpen:    portOpen,
		Latency:     latency,
		Timestamp:   events.Now(),
	}
	r.mu.Unlock()
	w.bus.Publish(ev)
}
