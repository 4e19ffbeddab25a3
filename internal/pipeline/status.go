package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/smazurov/castnode/internal/graph"
	"github.com/smazurov/castnode/internal/outputs"
)

// Configurable units addressed by Properties and SetProperties. Output
// branches are addressed as "output:<id>".
const (
	UnitVideoSource = "video_source"
	UnitAudioSource = "audio_source"
	UnitOverlay     = "overlay"
	UnitSpeaker     = "speaker"
	unitOutput      = "output:"
)

// OutputUnit returns the unit name of the output branch id.
func OutputUnit(id string) string {
	return unitOutput + id
}

// Output states reported by Status.
const (
	OutputAttached = "attached"
	OutputPending  = "pending"
	OutputParked   = "parked"
)

// SwapInfo is the outcome of the most recent source swap.
type SwapInfo struct {
	ID      string  `json:"id"`
	From    string  `json:"from"`
	To      string  `json:"to"`
	State   string  `json:"state" example:"released"`
	Error   string  `json:"error,omitempty"`
	Seconds float64 `json:"seconds"`
}

// SourceInfo describes the active source of a category.
type SourceInfo struct {
	Category string         `json:"category"`
	Stage    string         `json:"stage"`
	Attached bool           `json:"attached"`
	Props    map[string]any `json:"properties"`
}

// OutputInfo describes one output branch.
type OutputInfo struct {
	ID       string         `json:"id" format:"uuid"`
	Name     string         `json:"name"`
	Category string         `json:"category" enum:"audio,video,audiovideo"`
	Kind     string         `json:"kind" enum:"stream,store"`
	Sink     string         `json:"sink"`
	State    string         `json:"state" enum:"attached,pending,parked"`
	Props    map[string]any `json:"properties"`
}

// JunctionInfo describes an endpoint junction.
type JunctionInfo struct {
	Name        string `json:"name"`
	Category    string `json:"category"`
	Connected   bool   `json:"connected"`
	Outputs     int    `json:"outputs"`
	Placeholder bool   `json:"placeholder" doc:"Placeholder terminator is linked"`
}

// Status is a point-in-time snapshot of the pipeline.
type Status struct {
	State      string         `json:"state"`
	Sources    []SourceInfo   `json:"sources"`
	Outputs    []OutputInfo   `json:"outputs"`
	Junctions  []JunctionInfo `json:"junctions"`
	Reconnects int            `json:"reconnects" doc:"Stream branches waiting to reconnect"`
	LastSwap   *SwapInfo      `json:"last_swap,omitempty"`
}

// Status returns a snapshot of state, sources, outputs and junctions.
func (p *Pipeline) Status(ctx context.Context) (Status, error) {
	var st Status
	err := p.read(ctx, func() error {
		st = p.status()
		return nil
	})
	return st, err
}

func (p *Pipeline) status() Status {
	st := Status{
		State:      string(p.state),
		Sources:    []SourceInfo{},
		Outputs:    p.outputs(),
		Reconnects: len(p.reconnects),
	}
	for _, cat := range []graph.Category{graph.CategoryAudio, graph.CategoryVideo} {
		s := p.sources[cat]
		if s == nil {
			continue
		}
		st.Sources = append(st.Sources, SourceInfo{
			Category: string(cat),
			Stage:    s.Name,
			Attached: p.g.InGraph(s),
			Props:    sourceProperties(s.Role),
		})
	}
	for _, cat := range graph.Categories {
		j := p.reg.Junction(cat)
		if j == nil {
			continue
		}
		ph := p.g.Stage(j.Junction.Placeholder)
		st.Junctions = append(st.Junctions, JunctionInfo{
			Name:        j.Name,
			Category:    string(cat),
			Connected:   j.Junction.Connected,
			Outputs:     len(j.Junction.Outputs),
			Placeholder: ph != nil && p.g.InGraph(ph),
		})
	}
	if p.lastSwap != nil {
		s := *p.lastSwap
		st.LastSwap = &s
	}
	return st
}

func (p *Pipeline) outputs() []OutputInfo {
	out := []OutputInfo{}
	for _, b := range p.reg.All() {
		out = append(out, p.outputInfo(b))
	}
	return out
}

func (p *Pipeline) outputInfo(b *outputs.Branch) OutputInfo {
	state := OutputPending
	switch {
	case p.reg.Parked(b):
		state = OutputParked
	case p.reg.Attached(b):
		state = OutputAttached
	}
	return OutputInfo{
		ID:       b.ID,
		Name:     b.Name,
		Category: string(b.Category),
		Kind:     string(b.Kind),
		Sink:     b.Sink.Name,
		State:    state,
		Props:    b.Properties(),
	}
}

// Outputs lists every output branch.
func (p *Pipeline) Outputs(ctx context.Context) ([]OutputInfo, error) {
	var out []OutputInfo
	err := p.read(ctx, func() error {
		out = p.outputs()
		return nil
	})
	return out, err
}

// Topology returns the current links of the graph.
func (p *Pipeline) Topology(ctx context.Context) (graph.Topology, error) {
	var t graph.Topology
	err := p.read(ctx, func() error {
		t = p.g.Topology()
		return nil
	})
	return t, err
}

// CreateStreamBranch adds an Icecast branch to cat. While playing it is
// attached right away, otherwise it stays pending until Play.
func (p *Pipeline) CreateStreamBranch(ctx context.Context, cat graph.Category, name string, params outputs.StreamParams) (OutputInfo, error) {
	return p.createOutput(ctx, func() (*outputs.Branch, error) {
		return p.reg.CreateStreamBranch(cat, name, params)
	})
}

// CreateStoreBranch adds a file branch to cat. While playing it is attached
// right away, otherwise it stays pending until Play.
func (p *Pipeline) CreateStoreBranch(ctx context.Context, cat graph.Category, name, path string) (OutputInfo, error) {
	return p.createOutput(ctx, func() (*outputs.Branch, error) {
		return p.reg.CreateStoreBranch(cat, name, path)
	})
}

// CreateOutput builds a branch from a property map as returned by
// Properties for an output unit.
func (p *Pipeline) CreateOutput(ctx context.Context, props map[string]any) (OutputInfo, error) {
	cat, err := graph.ParseCategory(str(props["category"]))
	if err != nil {
		return OutputInfo{}, err
	}
	name := str(props["name"])
	switch outputs.Kind(str(props["kind"])) {
	case outputs.KindStream:
		port, err := intValue(props["port"])
		if err != nil {
			return OutputInfo{}, graph.NewError(graph.CodeStreamInfo, name, "port", err)
		}
		return p.CreateStreamBranch(ctx, cat, name, outputs.StreamParams{
			IP:       str(props["ip"]),
			Port:     port,
			Mount:    str(props["mount"]),
			Password: str(props["password"]),
		})
	case outputs.KindStore:
		return p.CreateStoreBranch(ctx, cat, name, str(props["location"]))
	}
	return OutputInfo{}, graph.NewError(graph.CodeNotStoreStreamSink, name,
		fmt.Sprintf("unknown output kind %q", props["kind"]), nil)
}

func (p *Pipeline) createOutput(ctx context.Context, create func() (*outputs.Branch, error)) (OutputInfo, error) {
	var info OutputInfo
	err := p.do(ctx, func() error {
		if err := p.checkOpen(); err != nil {
			return err
		}
		b, err := create()
		if err != nil {
			return err
		}
		if p.state == StatePlaying {
			if err := p.reg.Attach(ctx, b); err != nil {
				if rmErr := p.reg.Remove(ctx, b.ID); rmErr != nil {
					p.logger.Warn("Dropping unattached output failed", "branch_id", b.ID, "error", rmErr)
				}
				return err
			}
		}
		info = p.outputInfo(b)
		return nil
	})
	return info, err
}

// RemoveOutput deletes the branch with id, live when the graph plays.
func (p *Pipeline) RemoveOutput(ctx context.Context, id string) error {
	return p.do(ctx, func() error {
		if err := p.checkOpen(); err != nil {
			return err
		}
		if rc := p.reconnects[id]; rc != nil {
			if rc.timer != nil {
				rc.timer.Stop()
			}
			delete(p.reconnects, id)
		}
		delete(p.attempts, id)
		return p.reg.Remove(ctx, id)
	})
}

// Units lists every configurable unit in a stable order.
func (p *Pipeline) Units(ctx context.Context) ([]string, error) {
	var units []string
	err := p.read(ctx, func() error {
		units = []string{UnitVideoSource, UnitAudioSource, UnitOverlay, UnitSpeaker}
		var ids []string
		for _, b := range p.reg.All() {
			ids = append(ids, OutputUnit(b.ID))
		}
		sort.Strings(ids)
		units = append(units, ids...)
		return nil
	})
	return units, err
}

// Properties returns the flat property map of unit.
func (p *Pipeline) Properties(ctx context.Context, unit string) (map[string]any, error) {
	var props map[string]any
	err := p.read(ctx, func() error {
		var err error
		props, err = p.properties(unit)
		return err
	})
	return props, err
}

func (p *Pipeline) properties(unit string) (map[string]any, error) {
	switch unit {
	case UnitVideoSource:
		props := sourceProperties(graph.VideoSource{Default: true, Transport: graph.VideoTest})
		if s := p.sources[graph.CategoryVideo]; s != nil {
			props = sourceProperties(s.Role)
		}
		return props, nil
	case UnitAudioSource:
		props := sourceProperties(graph.AudioSource{Default: true})
		if s := p.sources[graph.CategoryAudio]; s != nil {
			props = sourceProperties(s.Role)
		}
		props["mute"] = p.inputMuted
		return props, nil
	case UnitOverlay:
		o := p.overlay
		return map[string]any{
			"text":       o.Text,
			"halignment": o.HAlignment,
			"valignment": o.VAlignment,
			"image":      o.Image,
			"offset_x":   o.OffsetX,
			"offset_y":   o.OffsetY,
			"alpha":      o.Alpha,
		}, nil
	case UnitSpeaker:
		return map[string]any{"device": p.speaker.Device, "mute": p.speaker.Muted}, nil
	}
	if id, ok := strings.CutPrefix(unit, unitOutput); ok {
		b := p.reg.Get(id)
		if b == nil {
			return nil, graph.NewError(graph.CodeUnknownOutput, "", id, nil)
		}
		return b.Properties(), nil
	}
	return nil, graph.NewError(graph.CodeUnknownStage, "", fmt.Sprintf("unknown unit %q", unit), nil)
}

func sourceProperties(role graph.Role) map[string]any {
	switch r := role.(type) {
	case graph.AudioSource:
		return map[string]any{"default": r.Default, "device": r.Device}
	case graph.VideoSource:
		return map[string]any{"default": r.Default, "transport": string(r.Transport), "location": r.Location}
	}
	return map[string]any{}
}

// SetProperties applies props to unit. Keys missing from props keep their
// current value. For source units the resulting selection becomes the
// active input source.
func (p *Pipeline) SetProperties(ctx context.Context, unit string, props map[string]any) error {
	return p.do(ctx, func() error {
		if err := p.checkOpen(); err != nil {
			return err
		}
		return p.setProperties(ctx, unit, props)
	})
}

func (p *Pipeline) setProperties(ctx context.Context, unit string, props map[string]any) error {
	cur, err := p.properties(unit)
	if err != nil {
		return err
	}
	merged := make(map[string]any, len(cur)+len(props))
	for k, v := range cur {
		merged[k] = v
	}
	for k, v := range props {
		merged[k] = v
	}

	switch unit {
	case UnitVideoSource:
		role := graph.VideoSource{
			Transport: graph.VideoTransport(str(merged["transport"])),
			Location:  str(merged["location"]),
		}
		if _, ok := props["default"]; ok {
			role.Default = boolValue(props["default"])
		}
		if role.Default || role.Transport == "" || role.Transport == graph.VideoTest {
			role = graph.VideoSource{Default: true, Transport: graph.VideoTest}
		}
		if p.activeRole(graph.CategoryVideo) == role {
			return nil
		}
		if role.Default {
			return p.setDefaultSource(ctx, graph.CategoryVideo)
		}
		return p.setInputSource(ctx, role)
	case UnitAudioSource:
		if hasAny(props, "default", "device") {
			role := graph.AudioSource{Device: str(merged["device"])}
			if _, ok := props["default"]; ok {
				role.Default = boolValue(props["default"])
			}
			if role.Default || role.Device == "" {
				role = graph.AudioSource{Default: true}
			}
			if p.activeRole(graph.CategoryAudio) != role {
				if err := p.setInputSource(ctx, role); err != nil {
					return err
				}
			}
		}
		if _, ok := props["mute"]; ok {
			return p.muteInput(boolValue(props["mute"]))
		}
		return nil
	case UnitOverlay:
		if hasAny(props, "text", "halignment", "valignment") {
			if err := p.setTextOverlay(str(merged["text"]), str(merged["halignment"]), str(merged["valignment"])); err != nil {
				return err
			}
		}
		img := ImageOverlay{Location: str(props["image"])}
		if _, ok := props["offset_x"]; ok {
			if img.OffsetX, err = intValue(props["offset_x"]); err != nil {
				return graph.NewError(graph.CodeInvalidArgument, "image_overlay", "offset_x", err)
			}
		}
		if _, ok := props["offset_y"]; ok {
			if img.OffsetY, err = intValue(props["offset_y"]); err != nil {
				return graph.NewError(graph.CodeInvalidArgument, "image_overlay", "offset_y", err)
			}
		}
		if v, ok := props["alpha"]; ok {
			if img.Alpha, err = floatValue(v); err != nil {
				return graph.NewError(graph.CodeInvalidArgument, "image_overlay", "alpha", err)
			}
		}
		return p.setImageOverlay(img)
	case UnitSpeaker:
		if d := str(props["device"]); d != "" && d != p.speaker.Device {
			if err := p.setSpeakerDevice(d); err != nil {
				return err
			}
		}
		if _, ok := props["mute"]; ok {
			return p.muteSpeaker(boolValue(props["mute"]))
		}
		return nil
	}

	id := strings.TrimPrefix(unit, unitOutput)
	return p.reg.SetProperties(p.reg.Get(id), props)
}

func (p *Pipeline) activeRole(cat graph.Category) graph.Role {
	if s := p.sources[cat]; s != nil {
		return s.Role
	}
	return nil
}

func hasAny(m map[string]any, keys ...string) bool {
	for _, k := range keys {
		if _, ok := m[k]; ok {
			return true
		}
	}
	return false
}

func str(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func boolValue(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		ok, _ := strconv.ParseBool(b)
		return ok
	}
	return false
}

func intValue(v any) (int, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case string:
		return strconv.Atoi(n)
	}
	return 0, fmt.Errorf("unsupported value %T", v)
}

func floatValue(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case string:
		return strconv.ParseFloat(n, 64)
	}
	return 0, fmt.Errorf("unsupported value %T", v)
}
