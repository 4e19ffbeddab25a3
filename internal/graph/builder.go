package graph

import "fmt"

// Branch is an ordered run of stages between junctions, sources and sinks.
type Branch []*Stage

// Build adds every stage of branches to the container, links each junction
// to its input and outputs, then links the remaining adjacencies in branch
// order. A failure aborts the build and leaves the graph partially built.
func (g *Graph) Build(branches ...Branch) error {
	if err := g.AddElements(branches...); err != nil {
		return err
	}
	if err := g.buildJunctionConnections(branches); err != nil {
		return err
	}
	return g.linkSequential(branches)
}

// AddElements adds every stage to the container. A stage already present is
// an ErrElementAlreadyAdded error.
func (g *Graph) AddElements(branches ...Branch) error {
	for _, b := range branches {
		for _, s := range b {
			if g.InGraph(s) {
				return NewError(CodeElementAlreadyAdded, s.Name, "", nil)
			}
			if err := g.container.Add(s.Element); err != nil {
				return NewError(CodeAddingElement, s.Name, "", err)
			}
			g.logger.Debug("Stage added", "stage", s.Name, "kind", s.Kind)
		}
	}
	return nil
}

func (g *Graph) buildJunctionConnections(branches []Branch) error {
	var junctions, inputs, outputs []*Stage
	for _, b := range branches {
		for _, s := range b {
			if s.IsJunction() {
				junctions = append(junctions, s)
				continue
			}
			// a stage may be both
			if s.JunctionInput && s.InputJunction != NoStage {
				inputs = append(inputs, s)
			}
			if s.JunctionOutput && s.OutputJunction != NoStage {
				outputs = append(outputs, s)
			}
		}
	}

	for _, j := range junctions {
		var in *Stage
		for _, s := range inputs {
			if s.InputJunction != j.ID {
				continue
			}
			if in != nil {
				return NewError(CodeJunctionPatching, j.Name,
					fmt.Sprintf("inputs %s and %s both feed the junction", in.Name, s.Name), nil)
			}
			in = s
		}
		var outs []*Stage
		for _, s := range outputs {
			if s.OutputJunction == j.ID {
				outs = append(outs, s)
			}
		}
		if j.Junction.Endpoint && len(outs) == 0 {
			ph := g.Stage(j.Junction.Placeholder)
			if ph != nil {
				if !g.InGraph(ph) {
					if err := g.container.Add(ph.Element); err != nil {
						return NewError(CodeAddingElement, ph.Name, "adding placeholder", err)
					}
				}
				outs = append(outs, ph)
			}
		}
		if in == nil || len(outs) == 0 {
			return NewError(CodeJunctionPatching, j.Name,
				"junction needs one input and at least one output", nil)
		}
		if err := g.connectJunction(j, in, outs); err != nil {
			return err
		}
	}
	return nil
}

func (g *Graph) connectJunction(j, in *Stage, outs []*Stage) error {
	if err := g.Link(in, j); err != nil {
		return err
	}
	j.Junction.Input = in.ID
	for _, o := range outs {
		if err := g.Link(j, o); err != nil {
			return err
		}
		if o.ID != j.Junction.Placeholder && !j.Junction.HasOutput(o.ID) {
			j.Junction.Outputs = append(j.Junction.Outputs, o.ID)
		}
	}
	g.MarkConnected(j)
	return nil
}

func (g *Graph) linkSequential(branches []Branch) error {
	for _, b := range branches {
		var prev *Stage
		for _, s := range b {
			if s.IsJunction() {
				prev = nil
				continue
			}
			if len(s.Parents) > 0 {
				for _, pid := range s.Parents {
					p := g.Stage(pid)
					if p == nil {
						return NewError(CodeUnknownStage, s.Name, "parent is not registered", nil)
					}
					if err := g.Link(p, s); err != nil {
						return err
					}
				}
				prev = s
				continue
			}
			// junction outputs are already fed by their junction
			if prev != nil && !s.JunctionOutput {
				if err := g.Link(prev, s); err != nil {
					return err
				}
			}
			prev = s
		}
	}
	return nil
}
