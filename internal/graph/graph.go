// Package graph holds the stage arena and the builder that turns lists of
// stages into a linked engine graph.
//
// A Graph is not safe for concurrent use. The pipeline owns one graph and
// serialises every mutation on its control goroutine.
package graph

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/smazurov/castnode/internal/engine"
	"github.com/smazurov/castnode/internal/logging"
)

// Graph is an arena of stages backed by one engine container.
type Graph struct {
	eng       engine.Engine
	container engine.Container
	logger    *slog.Logger

	// stages[i] holds StageID i+1; freed slots are nil.
	stages []*Stage
	byName map[string]StageID
	free   []StageID

	placeholders int
}

// New creates an empty graph and its engine container.
func New(eng engine.Engine, name string, logger *slog.Logger) (*Graph, error) {
	if logger == nil {
		logger = logging.GetLogger("graph")
	}
	c, err := eng.NewContainer(name)
	if err != nil {
		return nil, NewError(CodeEngine, name, "creating container", err)
	}
	return &Graph{
		eng:       eng,
		container: c,
		logger:    logger,
		byName:    make(map[string]StageID),
	}, nil
}

// Container returns the engine container owning the live elements.
func (g *Graph) Container() engine.Container {
	return g.container
}

// Engine returns the engine the graph creates elements with.
func (g *Graph) Engine() engine.Engine {
	return g.eng
}

// NewStage creates an engine element of kind and registers it in the arena.
// An empty name defaults to the kind.
func (g *Graph) NewStage(kind, name string, opts ...StageOption) (*Stage, error) {
	var cfg stageConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if name == "" {
		name = kind
	}
	if _, taken := g.byName[name]; taken {
		return nil, NewError(CodeElementInit, name, "name already used in graph", nil)
	}

	el, err := g.eng.NewElement(kind, name)
	if err != nil {
		return nil, NewError(CodeElementInit, name, "creating "+kind, err)
	}
	for _, p := range cfg.props {
		if err := el.SetProperty(p.name, p.value); err != nil {
			return nil, NewError(CodeElementInit, name, "setting "+p.name, err)
		}
	}

	s := &Stage{
		Kind:           kind,
		Name:           name,
		Element:        el,
		Role:           cfg.role,
		JunctionInput:  cfg.junctionInput,
		JunctionOutput: cfg.junctionOutput,
	}
	if kind == KindJunction {
		s.Junction = &Junction{Endpoint: cfg.endpoint}
	}
	g.register(s)

	if cfg.inputJunction != nil {
		if err := g.SetInputJunction(s, cfg.inputJunction); err != nil {
			g.release(s)
			return nil, err
		}
	}
	if cfg.outputJunction != nil {
		if err := g.SetOutputJunction(s, cfg.outputJunction); err != nil {
			g.release(s)
			return nil, err
		}
	}
	for _, p := range cfg.parents {
		s.Parents = append(s.Parents, p.ID)
	}

	if s.IsJunction() && s.Junction.Endpoint {
		if err := g.newPlaceholder(s); err != nil {
			g.release(s)
			return nil, err
		}
	}
	return s, nil
}

// NewJunction creates a fan-out stage. Endpoint junctions get a placeholder
// terminator that is added to the container straight away.
func (g *Graph) NewJunction(name string, endpoint bool, opts ...StageOption) (*Stage, error) {
	if endpoint {
		opts = append(opts, AsEndpoint())
	}
	return g.NewStage(KindJunction, name, opts...)
}

func (g *Graph) newPlaceholder(j *Stage) error {
	g.placeholders++
	name := fmt.Sprintf("fakesink_%d", g.placeholders)
	for g.byName[name] != NoStage {
		g.placeholders++
		name = fmt.Sprintf("fakesink_%d", g.placeholders)
	}
	ph, err := g.NewStage("fakesink", name, WithProperty("sync", false), AsJunctionOutput())
	if err != nil {
		return err
	}
	if err := g.container.Add(ph.Element); err != nil {
		g.release(ph)
		return NewError(CodeAddingElement, name, "adding placeholder", err)
	}
	// placeholders are not counted as real outputs
	ph.OutputJunction = j.ID
	j.Junction.Placeholder = ph.ID
	return nil
}

func (g *Graph) register(s *Stage) {
	if n := len(g.free); n > 0 {
		s.ID = g.free[n-1]
		g.free = g.free[:n-1]
		g.stages[s.ID-1] = s
	} else {
		g.stages = append(g.stages, s)
		s.ID = StageID(len(g.stages))
	}
	g.byName[s.Name] = s.ID
}

func (g *Graph) release(s *Stage) {
	if g.Stage(s.ID) != s {
		return
	}
	g.stages[s.ID-1] = nil
	delete(g.byName, s.Name)
	g.free = append(g.free, s.ID)
}

// Stage returns the stage with id, or nil.
func (g *Graph) Stage(id StageID) *Stage {
	if id == NoStage || int(id) > len(g.stages) {
		return nil
	}
	return g.stages[id-1]
}

// ByName returns the stage called name, or nil.
func (g *Graph) ByName(name string) *Stage {
	return g.Stage(g.byName[name])
}

// Stages returns every registered stage in id order.
func (g *Graph) Stages() []*Stage {
	out := make([]*Stage, 0, len(g.stages))
	for _, s := range g.stages {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// UniqueName returns base, or base with the smallest numeric suffix that is
// free in the arena.
func (g *Graph) UniqueName(base string) string {
	if g.byName[base] == NoStage {
		return base
	}
	for i := 1; ; i++ {
		name := fmt.Sprintf("%s_%d", base, i)
		if g.byName[name] == NoStage {
			return name
		}
	}
}

// SetInputJunction records j as the junction s feeds.
func (g *Graph) SetInputJunction(s, j *Stage) error {
	if !s.JunctionInput {
		return NewError(CodeNotJunctionIO, s.Name, "stage is not flagged as junction input", nil)
	}
	if !j.IsJunction() {
		return NewError(CodeNotJunctionIO, j.Name, "target is not a junction", nil)
	}
	s.InputJunction = j.ID
	j.Junction.Input = s.ID
	return nil
}

// SetOutputJunction records j as the junction s draws from.
func (g *Graph) SetOutputJunction(s, j *Stage) error {
	if !s.JunctionOutput {
		return NewError(CodeNotJunctionIO, s.Name, "stage is not flagged as junction output", nil)
	}
	if !j.IsJunction() {
		return NewError(CodeNotJunctionIO, j.Name, "target is not a junction", nil)
	}
	s.OutputJunction = j.ID
	if j.Junction.Placeholder != s.ID && !j.Junction.HasOutput(s.ID) {
		j.Junction.Outputs = append(j.Junction.Outputs, s.ID)
	}
	return nil
}

// DropOutput forgets s as an output of its junction.
func (g *Graph) DropOutput(s *Stage) {
	if j := g.Stage(s.OutputJunction); j != nil && j.IsJunction() {
		j.Junction.removeOutput(s.ID)
	}
}

// MarkConnected flags a junction as linked. It does nothing for other stages.
func (g *Graph) MarkConnected(j *Stage) {
	if j.IsJunction() {
		j.Junction.Connected = true
	}
}

// Link connects a's output to b's input.
func (g *Graph) Link(a, b *Stage) error {
	if err := a.Element.Link(b.Element); err != nil {
		return NewError(CodeLinking, a.Name, "to "+b.Name, err)
	}
	g.logger.Debug("Linked stages", "from", a.Name, "to", b.Name)
	return nil
}

// Unlink breaks the link between a and b.
func (g *Graph) Unlink(a, b *Stage) {
	a.Element.Unlink(b.Element)
}

// InGraph reports whether s is currently part of the container.
func (g *Graph) InGraph(s *Stage) bool {
	return g.container.ByName(s.Name) != nil
}

// Detach takes s out of the container and sets its element to null. The
// stage stays in the arena.
func (g *Graph) Detach(s *Stage) error {
	if g.InGraph(s) {
		if err := g.container.Remove(s.Element); err != nil {
			return NewError(CodeEngine, s.Name, "removing from container", err)
		}
	}
	if err := s.Element.SetState(engine.StateNull); err != nil {
		return NewError(CodeEngine, s.Name, "setting null", err)
	}
	return nil
}

// Destroy detaches s and frees its arena slot. Junction relations pointing
// at s are cleared.
func (g *Graph) Destroy(s *Stage) error {
	err := g.Detach(s)
	g.DropOutput(s)
	if j := g.Stage(s.InputJunction); j != nil && j.IsJunction() && j.Junction.Input == s.ID {
		j.Junction.Input = NoStage
	}
	g.release(s)
	return err
}

// Replace swaps the arena entry of old for repl, which takes over old's id
// and junction relations. Both must already be registered.
func (g *Graph) Replace(old, repl *Stage) {
	if g.Stage(old.ID) != old || g.Stage(repl.ID) != repl {
		return
	}
	id := old.ID
	g.release(repl)

	repl.ID = id
	repl.JunctionInput, repl.InputJunction = old.JunctionInput, old.InputJunction
	repl.JunctionOutput, repl.OutputJunction = old.JunctionOutput, old.OutputJunction
	repl.Parents = old.Parents
	g.stages[id-1] = repl
	delete(g.byName, old.Name)
	g.byName[repl.Name] = id
}

// Neighbors returns the registered stages linked upstream and downstream
// of s.
func (g *Graph) Neighbors(s *Stage) (up, down []*Stage) {
	for _, el := range engine.Upstream(s.Element) {
		if n := g.ByName(el.Name()); n != nil {
			up = append(up, n)
		}
	}
	for _, el := range engine.Downstream(s.Element) {
		if n := g.ByName(el.Name()); n != nil {
			down = append(down, n)
		}
	}
	return up, down
}

// Edge is one link in the live graph.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Node is one live element.
type Node struct {
	Name  string `json:"name"`
	Kind  string `json:"kind"`
	State string `json:"state"`
	Role  string `json:"role,omitempty"`
}

// Topology is a snapshot of the live graph.
type Topology struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Topology snapshots every element in the container and its links.
func (g *Graph) Topology() Topology {
	var t Topology
	for _, el := range g.container.Elements() {
		n := Node{Name: el.Name(), Kind: el.Kind(), State: el.State().String()}
		if s := g.ByName(el.Name()); s != nil && s.Role != nil {
			n.Role = roleName(s.Role)
		}
		t.Nodes = append(t.Nodes, n)
		for _, d := range engine.Downstream(el) {
			t.Edges = append(t.Edges, Edge{From: el.Name(), To: d.Name()})
		}
	}
	sort.Slice(t.Nodes, func(i, j int) bool { return t.Nodes[i].Name < t.Nodes[j].Name })
	sort.Slice(t.Edges, func(i, j int) bool {
		if t.Edges[i].From != t.Edges[j].From {
			return t.Edges[i].From < t.Edges[j].From
		}
		return t.Edges[i].To < t.Edges[j].To
	})
	return t
}

// String renders the topology as one "from -> to" line per edge.
func (t Topology) String() string {
	var b strings.Builder
	for _, e := range t.Edges {
		fmt.Fprintf(&b, "%s -> %s\n", e.From, e.To)
	}
	return b.String()
}

func roleName(r Role) string {
	switch r.(type) {
	case AudioSource:
		return "audio_source"
	case VideoSource:
		return "video_source"
	case StreamSink:
		return "stream_sink"
	case StoreSink:
		return "store_sink"
	}
	return ""
}
