package sim

import (
	"fmt"
	"slices"
	"time"

	"github.com/smazurov/castnode/internal/engine"
)

type container struct {
	element
	children []*element
	messages chan *engine.Message
	stop     chan struct{}
}

func (c *container) Add(el engine.Element) error {
	se, ok := unwrap(el)
	if !ok {
		return fmt.Errorf("sim: cannot add foreign element %T", el)
	}
	c.eng.mu.Lock()
	defer c.eng.mu.Unlock()

	if c.eng.rejectAdds[se.name] {
		return fmt.Errorf("sim: %s refused %s", c.name, se.name)
	}
	if se.bin != nil {
		return fmt.Errorf("sim: %s already has a parent (%s)", se.name, se.bin.name)
	}
	for _, ch := range c.children {
		if ch.name == se.name {
			return fmt.Errorf("sim: name %q already used in %s", se.name, c.name)
		}
	}
	se.bin = c
	c.children = append(c.children, se)
	return nil
}

// Remove unlinks el and takes it out of the container. The element keeps
// its state.
func (c *container) Remove(el engine.Element) error {
	se, ok := unwrap(el)
	if !ok {
		return fmt.Errorf("sim: cannot remove foreign element %T", el)
	}
	c.eng.mu.Lock()
	defer c.eng.mu.Unlock()

	if se.bin != c {
		return fmt.Errorf("sim: %s is not in %s", se.name, c.name)
	}
	for _, p := range slices.Clone(se.pads) {
		if p.peer == nil {
			continue
		}
		if p.dir == engine.PadSrc {
			unlinkPads(p, p.peer)
		} else {
			unlinkPads(p.peer, p)
		}
	}
	se.bin = nil
	c.children = slices.DeleteFunc(c.children, func(ch *element) bool { return ch == se })
	return nil
}

func (c *container) ByName(name string) engine.Element {
	c.eng.mu.Lock()
	defer c.eng.mu.Unlock()
	for _, ch := range c.children {
		if ch.name == name {
			return ch.self
		}
	}
	return nil
}

func (c *container) Elements() []engine.Element {
	c.eng.mu.Lock()
	defer c.eng.mu.Unlock()
	out := make([]engine.Element, 0, len(c.children))
	for _, ch := range c.children {
		out = append(out, ch.self)
	}
	return out
}

func (c *container) PopMessage(timeout time.Duration) *engine.Message {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case m := <-c.messages:
		return m
	case <-t.C:
		return nil
	}
}

// SetState changes the container and every child, and starts or stops the
// streaming goroutine.
func (c *container) SetState(s engine.State) error {
	c.eng.mu.Lock()
	defer c.eng.mu.Unlock()

	c.setStateLocked(s)
	for _, ch := range c.children {
		ch.setStateLocked(s)
	}

	switch {
	case s == engine.StatePlaying && c.stop == nil:
		c.stop = make(chan struct{})
		go c.stream(c.stop, c.eng.tick)
	case s != engine.StatePlaying && c.stop != nil:
		close(c.stop)
		c.stop = nil
	}

	select {
	case c.messages <- &engine.Message{Type: engine.MessageStateChanged, Source: c.name, Text: s.String()}:
	default:
	}
	return nil
}

func (c *container) stream(stop <-chan struct{}, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.pushBuffers()
		}
	}
}

type blockFire struct {
	pad   *pad
	probe *probe
}

// pushBuffers moves one buffer from every playing source as far downstream
// as links, states and blocking probes allow.
func (c *container) pushBuffers() {
	c.eng.mu.Lock()
	if c.state != engine.StatePlaying {
		c.eng.mu.Unlock()
		return
	}

	var fires []blockFire
	visited := make(map[*element]bool)

	// held reports whether p holds data, collecting block probes that see
	// their first buffer. Idle probes fire when added.
	held := func(p *pad) bool {
		blocked := false
		for _, pr := range p.probes {
			if pr.kind != engine.ProbeBlockDownstream && pr.kind != engine.ProbeIdle {
				continue
			}
			blocked = true
			if !pr.holding {
				pr.holding = true
				fires = append(fires, blockFire{pad: p, probe: pr})
			}
		}
		return blocked
	}

	var visit func(el *element)
	visit = func(el *element) {
		visited[el] = true
		el.buffers++
		for _, p := range el.pads {
			if p.dir != engine.PadSrc || held(p) || p.peer == nil {
				continue
			}
			next := p.peer.el
			if next.state != engine.StatePlaying || next.eos || visited[next] || held(p.peer) {
				continue
			}
			visit(next)
		}
	}

	for _, ch := range c.children {
		if ch.class == ClassSource && ch.state == engine.StatePlaying && !ch.eos && !visited[ch] {
			visit(ch)
		}
	}
	c.eng.mu.Unlock()

	for _, f := range fires {
		ret := f.probe.fn(f.pad, engine.ProbeInfo{ID: f.probe.id})
		c.eng.mu.Lock()
		switch ret {
		case engine.ProbeRemove:
			f.pad.removeProbeLocked(f.probe.id)
		case engine.ProbeOK:
		default:
			// pass or drop: let this buffer through and block on the next
			f.probe.holding = false
		}
		c.eng.mu.Unlock()
	}
}
