package graph

import "github.com/smazurov/castnode/internal/engine"

// KindJunction is the engine kind of fan-out stages.
const KindJunction = "tee"

// StageID indexes a stage in its graph's arena. Zero means none.
type StageID uint32

// NoStage is the zero StageID.
const NoStage StageID = 0

// Stage is one processing unit wrapping one engine element.
type Stage struct {
	ID      StageID
	Kind    string
	Name    string
	Element engine.Element
	Role    Role

	// JunctionInput marks a stage that feeds a junction; InputJunction is
	// that junction once related.
	JunctionInput bool
	InputJunction StageID
	// JunctionOutput marks a stage that draws from a junction;
	// OutputJunction is that junction once related.
	JunctionOutput bool
	OutputJunction StageID

	// Parents feed a multi-input stage such as a muxer, in link order.
	Parents []StageID

	// Junction is set for stages of KindJunction only.
	Junction *Junction
}

// IsJunction reports whether s is a fan-out stage.
func (s *Stage) IsJunction() bool {
	return s.Junction != nil
}

// Junction is the fan-out state of a junction stage.
type Junction struct {
	Connected bool
	// Endpoint junctions feed external sinks and own a placeholder
	// terminator linked whenever no real sink is attached.
	Endpoint    bool
	Input       StageID
	Outputs     []StageID
	Placeholder StageID
}

// HasOutput reports whether id is a registered output.
func (j *Junction) HasOutput(id StageID) bool {
	for _, o := range j.Outputs {
		if o == id {
			return true
		}
	}
	return false
}

func (j *Junction) removeOutput(id StageID) {
	for i, o := range j.Outputs {
		if o == id {
			j.Outputs = append(j.Outputs[:i], j.Outputs[i+1:]...)
			return
		}
	}
}

// StageOption configures a stage at creation.
type StageOption func(*stageConfig)

type stageConfig struct {
	junctionInput  bool
	junctionOutput bool
	inputJunction  *Stage
	outputJunction *Stage
	parents        []*Stage
	role           Role
	props          []property
	endpoint       bool
}

type property struct {
	name  string
	value any
}

// AsJunctionInput flags the stage as a junction input. The junction itself
// is recorded later with SetInputJunction.
func AsJunctionInput() StageOption {
	return func(c *stageConfig) { c.junctionInput = true }
}

// AsJunctionOutput flags the stage as a junction output. The junction
// itself is recorded later with SetOutputJunction.
func AsJunctionOutput() StageOption {
	return func(c *stageConfig) { c.junctionOutput = true }
}

// FeedsJunction flags the stage as the input of j.
func FeedsJunction(j *Stage) StageOption {
	return func(c *stageConfig) {
		c.junctionInput = true
		c.inputJunction = j
	}
}

// DrawsFrom flags the stage as an output of j.
func DrawsFrom(j *Stage) StageOption {
	return func(c *stageConfig) {
		c.junctionOutput = true
		c.outputJunction = j
	}
}

// WithParents declares the upstream stages of a multi-input stage.
func WithParents(parents ...*Stage) StageOption {
	return func(c *stageConfig) { c.parents = append(c.parents, parents...) }
}

// WithRole attaches a user-facing role.
func WithRole(r Role) StageOption {
	return func(c *stageConfig) { c.role = r }
}

// WithProperty sets an element property right after creation. Properties
// are applied in option order.
func WithProperty(name string, value any) StageOption {
	return func(c *stageConfig) { c.props = append(c.props, property{name, value}) }
}

// AsEndpoint marks a junction as an endpoint junction.
func AsEndpoint() StageOption {
	return func(c *stageConfig) { c.endpoint = true }
}
