// Package outputs keeps the stream and store branches of each feed category
// and attaches them to the category's endpoint junction while the graph
// plays.
//
// A Registry is not safe for concurrent use; the pipeline calls it from its
// control goroutine only.
package outputs

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"

	"github.com/smazurov/castnode/internal/engine"
	"github.com/smazurov/castnode/internal/events"
	"github.com/smazurov/castnode/internal/graph"
	"github.com/smazurov/castnode/internal/hotswap"
	"github.com/smazurov/castnode/internal/logging"
)

// Kind tells stream branches from store branches.
type Kind string

const (
	KindStream Kind = "stream"
	KindStore  Kind = "store"
)

// StreamParams locates an Icecast mount point.
type StreamParams struct {
	IP       string
	Port     int
	Mount    string
	Password string
}

// Branch is one sink branch: a queue drawing from the endpoint junction and
// the sink behind it.
type Branch struct {
	ID       string
	Name     string
	Category graph.Category
	Kind     Kind
	Queue    *graph.Stage
	Sink     *graph.Stage
}

// Stages returns the branch in link order.
func (b *Branch) Stages() graph.Branch {
	return graph.Branch{b.Queue, b.Sink}
}

// Registry manages output branches per feed category.
type Registry struct {
	g         *graph.Graph
	swapper   *hotswap.Reconfigurator
	bus       *events.Bus
	logger    *slog.Logger
	junctions map[graph.Category]*graph.Stage
	branches  map[graph.Category][]*Branch
	seq       map[string]int
}

// Option configures a Registry.
type Option func(*Registry)

// WithBus publishes attach and detach events on bus.
func WithBus(bus *events.Bus) Option {
	return func(r *Registry) { r.bus = bus }
}

// WithSwapper sets the reconfigurator used to change outputs of a playing
// graph.
func WithSwapper(s *hotswap.Reconfigurator) Option {
	return func(r *Registry) { r.swapper = s }
}

// WithLogger overrides the module logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// New creates an empty registry over g.
func New(g *graph.Graph, opts ...Option) *Registry {
	r := &Registry{
		g:         g,
		logger:    logging.GetLogger("outputs"),
		junctions: make(map[graph.Category]*graph.Stage),
		branches:  make(map[graph.Category][]*Branch),
		seq:       make(map[string]int),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.swapper == nil {
		r.swapper = hotswap.New(g.Container(), hotswap.WithLogger(r.logger))
	}
	return r
}

// SetJunction registers the endpoint junction branches of cat attach to.
func (r *Registry) SetJunction(cat graph.Category, j *graph.Stage) error {
	if !j.IsJunction() || !j.Junction.Endpoint {
		return graph.NewError(graph.CodeNotJunctionIO, j.Name, "not an endpoint junction", nil)
	}
	r.junctions[cat] = j
	return nil
}

// Junction returns the endpoint junction of cat, or nil.
func (r *Registry) Junction(cat graph.Category) *graph.Stage {
	return r.junctions[cat]
}

func (r *Registry) junction(cat graph.Category) (*graph.Stage, error) {
	j := r.junctions[cat]
	if j == nil {
		return nil, graph.NewError(graph.CodeInvalidCategory, "", fmt.Sprintf("no output junction for %q", cat), nil)
	}
	return j, nil
}

// CreateStreamBranch adds a pending Icecast branch to cat. The live graph
// is not touched.
func (r *Registry) CreateStreamBranch(cat graph.Category, name string, p StreamParams) (*Branch, error) {
	if p.IP == "" || p.Port <= 0 || p.Mount == "" {
		return nil, graph.NewError(graph.CodeStreamInfo, name, "ip, port and mount are required", nil)
	}
	role := graph.StreamSink{Category: cat, IP: p.IP, Port: p.Port, Mount: p.Mount, Password: p.Password}
	props := []graph.StageOption{
		graph.WithRole(role),
		graph.WithProperty("ip", p.IP),
		graph.WithProperty("port", p.Port),
		graph.WithProperty("mount", p.Mount),
		graph.WithProperty("sync", false),
	}
	if p.Password != "" {
		props = append(props, graph.WithProperty("password", p.Password))
	}
	return r.create(cat, KindStream, name, "streamsink", "shout2send", props,
		graph.WithProperty("leaky", 2), graph.WithProperty("flush-on-eos", true))
}

// CreateStoreBranch adds a pending file branch to cat.
func (r *Registry) CreateStoreBranch(cat graph.Category, name, path string) (*Branch, error) {
	if path == "" {
		return nil, graph.NewError(graph.CodeLocationMissing, name, "file path is required", nil)
	}
	props := []graph.StageOption{
		graph.WithRole(graph.StoreSink{Category: cat, Path: path}),
		graph.WithProperty("location", path),
		graph.WithProperty("sync", false),
	}
	return r.create(cat, KindStore, name, "filesink", "filesink", props)
}

func (r *Registry) create(cat graph.Category, kind Kind, name, tag, sinkKind string,
	sinkOpts []graph.StageOption, queueOpts ...graph.StageOption) (*Branch, error) {
	j, err := r.junction(cat)
	if err != nil {
		return nil, err
	}
	key := string(cat) + "/" + string(kind)
	n := r.seq[key]
	r.seq[key] = n + 1
	id := strconv.Itoa(n)

	qName := r.g.UniqueName("queue_" + string(cat) + "_" + tag + "_" + id)
	q, err := r.g.NewStage("queue", qName, append(queueOpts, graph.DrawsFrom(j))...)
	if err != nil {
		return nil, err
	}
	sink, err := r.g.NewStage(sinkKind, r.g.UniqueName(name+"_"+id), sinkOpts...)
	if err != nil {
		_ = r.g.Destroy(q)
		return nil, err
	}

	b := &Branch{
		ID:       uuid.NewString(),
		Name:     name,
		Category: cat,
		Kind:     kind,
		Queue:    q,
		Sink:     sink,
	}
	r.branches[cat] = append(r.branches[cat], b)
	r.logger.Info("Output branch created", "branch_id", b.ID, "category", cat, "kind", kind, "sink", sink.Name)
	return b, nil
}

// Get returns the branch with id, or nil.
func (r *Registry) Get(id string) *Branch {
	for _, cat := range graph.Categories {
		for _, b := range r.branches[cat] {
			if b.ID == id {
				return b
			}
		}
	}
	return nil
}

// ByElement returns the branch owning the element called name, or nil.
func (r *Registry) ByElement(name string) *Branch {
	for _, cat := range graph.Categories {
		for _, b := range r.branches[cat] {
			if b.Queue.Name == name || b.Sink.Name == name {
				return b
			}
		}
	}
	return nil
}

// Branches returns the branches of cat in creation order.
func (r *Registry) Branches(cat graph.Category) []*Branch {
	return append([]*Branch(nil), r.branches[cat]...)
}

// All returns every branch, audio first, then video, then combined.
func (r *Registry) All() []*Branch {
	var out []*Branch
	for _, cat := range graph.Categories {
		out = append(out, r.branches[cat]...)
	}
	return out
}

// Attached reports whether b is part of the live graph.
func (r *Registry) Attached(b *Branch) bool {
	return r.g.InGraph(b.Queue)
}

// Pending returns the branches of cat not yet attached.
func (r *Registry) Pending(cat graph.Category) []*Branch {
	var out []*Branch
	for _, b := range r.branches[cat] {
		if !r.Attached(b) {
			out = append(out, b)
		}
	}
	return out
}

// AttachAll links every pending branch to its junction, taking the
// placeholder out of categories that gain their first branch. Branches
// already attached are left alone.
func (r *Registry) AttachAll(ctx context.Context) error {
	for _, cat := range graph.Categories {
		pending := r.Pending(cat)
		if len(pending) == 0 {
			continue
		}
		j, err := r.junction(cat)
		if err != nil {
			return err
		}
		for _, b := range pending {
			if err := r.attach(ctx, j, b); err != nil {
				return err
			}
		}
	}
	return nil
}

// Attach links one pending branch to its junction. A failed attach leaves
// the branch pending and the junction as it was.
func (r *Registry) Attach(ctx context.Context, b *Branch) error {
	if r.Attached(b) {
		return nil
	}
	j, err := r.junction(b.Category)
	if err != nil {
		return err
	}
	return r.attach(ctx, j, b)
}

func (r *Registry) attach(ctx context.Context, j *graph.Stage, b *Branch) error {
	fail := func(err error) error {
		_ = r.g.Detach(b.Queue)
		_ = r.g.Detach(b.Sink)
		return err
	}
	if err := r.g.AddElements(b.Stages()); err != nil {
		return fail(err)
	}
	if err := r.g.Link(b.Queue, b.Sink); err != nil {
		return fail(err)
	}
	state := r.g.Container().State()
	if err := syncState(state, b.Sink); err != nil {
		return fail(err)
	}

	ph := r.g.Stage(j.Junction.Placeholder)
	if ph != nil && r.g.InGraph(ph) {
		// The placeholder hands its junction pad over to the queue.
		if _, err := r.swapper.Swap(ctx, ph.Element, b.Queue.Element); err != nil {
			return fail(err)
		}
		if err := r.g.Detach(ph); err != nil {
			r.logger.Warn("Placeholder detach failed", "placeholder", ph.Name, "error", err)
		}
	} else {
		if err := r.g.Link(j, b.Queue); err != nil {
			return fail(err)
		}
		if err := syncState(state, b.Queue); err != nil {
			return fail(err)
		}
	}

	r.logger.Info("Output branch attached", "branch_id", b.ID, "junction", j.Name, "sink", b.Sink.Name)
	r.bus.Publish(events.BranchAttachedEvent{
		BranchID:  b.ID,
		Category:  string(b.Category),
		Kind:      string(b.Kind),
		Name:      b.Name,
		Timestamp: events.Now(),
	})
	return nil
}

// DetachAll takes every attached branch out of the live graph, sets its
// elements to null and puts each endpoint junction's placeholder back.
func (r *Registry) DetachAll(ctx context.Context) error {
	for _, cat := range graph.Categories {
		j := r.junctions[cat]
		if j == nil {
			continue
		}
		for _, b := range r.branches[cat] {
			if !r.Attached(b) {
				continue
			}
			if err := r.unlink(ctx, j, b); err != nil {
				return err
			}
			r.detached(b, false)
		}
		if err := r.restorePlaceholder(j); err != nil {
			return err
		}
	}
	return nil
}

// unlink blocks the junction pad feeding b, breaks the link and takes the
// branch out of the container. The block holds at once when no data
// reaches the junction.
func (r *Registry) unlink(ctx context.Context, j *graph.Stage, b *Branch) error {
	if pad := b.Queue.Element.StaticPad("sink").Peer(); pad != nil {
		release, err := r.swapper.Block(ctx, pad)
		if err != nil {
			return err
		}
		r.g.Unlink(j, b.Queue)
		release()
	}
	if err := r.g.Detach(b.Queue); err != nil {
		return err
	}
	return r.g.Detach(b.Sink)
}

func (r *Registry) restorePlaceholder(j *graph.Stage) error {
	ph := r.g.Stage(j.Junction.Placeholder)
	if ph == nil || r.g.InGraph(ph) {
		return nil
	}
	for _, b := range r.branches[r.categoryOf(j)] {
		if r.Attached(b) {
			return nil
		}
	}
	if err := r.g.AddElements(graph.Branch{ph}); err != nil {
		return err
	}
	if err := r.g.Link(j, ph); err != nil {
		return err
	}
	r.logger.Debug("Placeholder restored", "junction", j.Name, "placeholder", ph.Name)
	return syncState(r.g.Container().State(), ph)
}

func (r *Registry) categoryOf(j *graph.Stage) graph.Category {
	for cat, cj := range r.junctions {
		if cj == j {
			return cat
		}
	}
	return ""
}

// Remove deletes the branch with id, detaching it first when it is live.
// The placeholder comes back when its category has no attached branch left.
func (r *Registry) Remove(ctx context.Context, id string) error {
	b := r.Get(id)
	if b == nil {
		return graph.NewError(graph.CodeUnknownOutput, "", id, nil)
	}
	j := r.junctions[b.Category]
	live := r.Attached(b)
	if live {
		if err := r.unlink(ctx, j, b); err != nil {
			return err
		}
	}
	if err := r.g.Destroy(b.Queue); err != nil {
		return err
	}
	if err := r.g.Destroy(b.Sink); err != nil {
		return err
	}

	list := r.branches[b.Category]
	for i, other := range list {
		if other == b {
			r.branches[b.Category] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if err := r.restorePlaceholder(j); err != nil {
		return err
	}
	if live {
		r.detached(b, true)
	} else {
		r.logger.Info("Pending output branch removed", "branch_id", b.ID, "sink", b.Sink.Name)
	}
	return nil
}

func (r *Registry) detached(b *Branch, removed bool) {
	r.logger.Info("Output branch detached", "branch_id", b.ID, "sink", b.Sink.Name, "removed", removed)
	r.bus.Publish(events.BranchDetachedEvent{
		BranchID:  b.ID,
		Category:  string(b.Category),
		Kind:      string(b.Kind),
		Name:      b.Name,
		Removed:   removed,
		Timestamp: events.Now(),
	})
}

// Park cuts an attached branch off its junction and sets its elements to
// null, keeping them in the container for Resume.
func (r *Registry) Park(ctx context.Context, b *Branch) error {
	j := r.junctions[b.Category]
	if !r.Attached(b) {
		return graph.NewError(graph.CodeUnknownOutput, b.Sink.Name, "branch is not attached", nil)
	}
	if pad := b.Queue.Element.StaticPad("sink").Peer(); pad != nil {
		release, err := r.swapper.Block(ctx, pad)
		if err != nil {
			return err
		}
		r.g.Unlink(j, b.Queue)
		release()
	}
	for _, s := range b.Stages() {
		if err := s.Element.SetState(engine.StateNull); err != nil {
			return graph.NewError(graph.CodeEngine, s.Name, "setting null", err)
		}
	}
	return nil
}

// Resume re-links a parked branch and brings it back to the container's
// state.
func (r *Registry) Resume(b *Branch) error {
	if !r.Attached(b) {
		return graph.NewError(graph.CodeUnknownOutput, b.Sink.Name, "branch is not attached", nil)
	}
	j := r.junctions[b.Category]
	if engine.UpstreamElement(b.Queue.Element) == nil {
		if err := r.g.Link(j, b.Queue); err != nil {
			return err
		}
	}
	state := r.g.Container().State()
	if err := syncState(state, b.Sink); err != nil {
		return err
	}
	return syncState(state, b.Queue)
}

// Parked reports whether b sits in the container without a junction link.
func (r *Registry) Parked(b *Branch) bool {
	return r.Attached(b) && engine.UpstreamElement(b.Queue.Element) == nil
}

func syncState(state engine.State, s *graph.Stage) error {
	if state == engine.StateNull {
		return nil
	}
	if err := s.Element.SetState(state); err != nil {
		return graph.NewError(graph.CodeEngine, s.Name, "setting "+state.String(), err)
	}
	return nil
}
