// Package plan defines the compiler's sole output: the immutable
// SimulationPlan and the SimulationState it produces at run time (spec §3,
// §4.7). Grounded on the teacher's ExecutionPlan (planner.go) — a
// read-only, fully-resolved description of work to run, built once and
// shared across runs — generalized from execution waves over workflow
// nodes to state-vector slots over simulation objects.
package plan

import (
	"github.com/expr-lang/expr/vm"
	"github.com/smilemakc/stockflow/internal/graph"
)

// ValueType is the closed set of scalar kinds a state slot may hold (spec
// §3, StateVariable.value_type).
type ValueType string

const (
	ValueDouble ValueType = "double"
	ValueInt    ValueType = "int"
	ValueBool   ValueType = "bool"
)

// BuiltinKind identifies a reserved, pre-declared state slot (spec §4.2).
type BuiltinKind string

const (
	BuiltinTime            BuiltinKind = "time"
	BuiltinTimeDelta       BuiltinKind = "time_delta"
	BuiltinSimulationStep  BuiltinKind = "simulation_step"
)

// ContentKind discriminates a StateVariable's content tag (spec §3:
// "content ∈ {builtin(kind), object(id), internal(owner_id, purpose)}").
type ContentKind int

const (
	ContentBuiltin ContentKind = iota
	ContentObject
	ContentInternal
)

// StateVariable describes one slot in the per-step numeric state vector.
type StateVariable struct {
	Name          string
	ValueType     ValueType
	Content       ContentKind
	Builtin       BuiltinKind    // meaningful iff Content == ContentBuiltin
	ObjectID      graph.ObjectID // meaningful iff Content == ContentObject
	OwnerID       graph.ObjectID // meaningful iff Content == ContentInternal
	Purpose       string         // meaningful iff Content == ContentInternal
}

// NameBinding resolves one free name in a formula to the variable_index it
// reads from at evaluation time (spec §4.7: "Bind each AST name reference to
// its resolved variable_index via the name lookup").
type NameBinding struct {
	Name          string
	VariableIndex int
}

// BoundFormula is a compiled expr program plus the variable_index each of
// its free names resolves to. The simulator builds a small name->value
// environment from these bindings and the current state vector before
// running the program (grounded on the teacher's conditions.go, which
// compiles once with expr.Compile and runs many times against a
// caller-supplied map).
type BoundFormula struct {
	Source   string
	Program  *vm.Program
	Bindings []NameBinding
}

// InterpolationMethod is a GraphicalFunction's sampling mode (spec §3).
type InterpolationMethod string

const (
	InterpolationStep        InterpolationMethod = "step"
	InterpolationNearestStep InterpolationMethod = "nearestStep"
	InterpolationLinear      InterpolationMethod = "linear"
	InterpolationCubic       InterpolationMethod = "cubic"
)

// Computation is the tagged variant a SimulationObject carries (spec §3).
// Exactly one of the typed payloads is meaningful, selected by Kind —
// mirrors the closed-sum-type idiom used throughout this module
// (domain.DomainError, graph.Attribute) rather than an interface hierarchy.
type ComputationKind int

const (
	ComputationFormula ComputationKind = iota
	ComputationGraphicalFunction
	ComputationDelay
	ComputationSmooth
)

type Computation struct {
	Kind ComputationKind

	Formula *BoundFormula // ComputationFormula

	// ComputationGraphicalFunction
	Interpolation InterpolationMethod
	Points        []graph.Point
	InputIndex    int

	// ComputationDelay
	DelayDuration  int
	QueueBaseIndex int
	InitialValue   float64

	// ComputationSmooth
	WindowTime float64
	StateIndex int
}

// SimulationObject is one compiled computed node (spec §3).
type SimulationObject struct {
	ObjectID      graph.ObjectID
	Name          string
	VariableIndex int
	Computation   Computation
}

// BoundStock is a compiled Stock with its resolved inflow/outflow sets
// (spec §3).
type BoundStock struct {
	ObjectID           graph.ObjectID
	VariableIndex      int
	AllowsNegative     bool
	DelayedInflow      bool
	InflowFlowIndices  []int // indices into Flows, not variable indices
	OutflowFlowIndices []int
}

// BoundFlow is a compiled FlowRate with its resolved topology (spec §3).
// DrainsStock/FillsStock are -1 when the corresponding side is the Cloud
// sentinel.
type BoundFlow struct {
	ObjectID      graph.ObjectID
	VariableIndex int
	Priority      int
	DrainsStock   int // index into Stocks, or -1
	FillsStock    int // index into Stocks, or -1
}

// BoundBuiltins maps each builtin kind to its variable_index (spec §3).
type BoundBuiltins struct {
	Time            int
	TimeDelta       int
	SimulationStep  int
}

// FlowScaling selects the non-negativity adjustment discipline used during
// simulation (spec §4.9).
type FlowScaling int

const (
	OutflowFirst FlowScaling = iota
	InflowFirst
)

// ValueBinding links a ValueBinding node to the variable_index it exposes for
// interactive adjustment (spec §6: "value_bindings — ordered list of
// {control_id, variable_index, min, max, step}"). ControlID holds the
// ValueBinding node's own object ID; no separate Control node is resolved.
// UI/metadata pass-through, never read by the simulator itself.
type ValueBinding struct {
	ControlID     graph.ObjectID
	VariableIndex int
	Min           float64
	Max           float64
	Step          float64
}

// ChartSeries is one plotted variable within a Chart (spec §6: "charts —
// list of {chart_id, series: [{node_id, color?}]}"). Color is "" when the
// diagram declared none.
type ChartSeries struct {
	VariableIndex int
	Color         string
}

// Chart is a UI/metadata pass-through carried by the plan for consumers
// (spec §3, §6), never read by the simulator itself.
type Chart struct {
	ChartID graph.ObjectID
	Series  []ChartSeries
}

// SimulationParameters carries the optional Simulation node's declared
// defaults (spec §3).
type SimulationParameters struct {
	InitialTime float64
	TimeDelta   float64
	EndTime     float64
	Steps       int
}

// SimulationPlan is the compiler's sole, immutable output (spec §3: "a pure
// function from (Frame, Metamodel) to either a SimulationPlan or a
// CompilerError"). Once built it never changes and may be shared freely
// across concurrently running simulators (spec §5).
type SimulationPlan struct {
	Objects        []SimulationObject // evaluation order
	StateVariables []StateVariable
	Builtins       BoundBuiltins
	Stocks         []BoundStock // stock-order
	Flows          []BoundFlow  // flow-order
	ValueBindings  []ValueBinding
	Charts         []Chart
	Parameters     *SimulationParameters // nil if the frame declared none
	Scaling        FlowScaling
}

// VariableIndex returns the state-vector slot for a named simulation object,
// or -1 if no object with that name exists. O(n); intended for debug/inspect
// tooling, not the simulation hot path (spec §6).
func (p *SimulationPlan) VariableIndex(name string) int {
	for _, o := range p.Objects {
		if o.Name == name {
			return o.VariableIndex
		}
	}
	return -1
}

// Variable returns the StateVariable descriptor at a given index.
func (p *SimulationPlan) Variable(index int) (StateVariable, bool) {
	if index < 0 || index >= len(p.StateVariables) {
		return StateVariable{}, false
	}
	return p.StateVariables[index], true
}

// StockIndex returns the position of a stock, by object ID, within
// p.Stocks, or -1 if absent. O(n); debug/inspect only (spec §6).
func (p *SimulationPlan) StockIndex(id graph.ObjectID) int {
	for i, s := range p.Stocks {
		if s.ObjectID == id {
			return i
		}
	}
	return -1
}

// FlowIndex returns the position of a flow, by object ID, within p.Flows,
// or -1 if absent. O(n); debug/inspect only (spec §6).
func (p *SimulationPlan) FlowIndex(id graph.ObjectID) int {
	for i, fl := range p.Flows {
		if fl.ObjectID == id {
			return i
		}
	}
	return -1
}

// SimulationState is a fixed-length numeric vector plus the simulation
// clock (spec §3). Conceptually immutable: Advance returns a new state
// rather than mutating the receiver.
type SimulationState struct {
	Values    []float64
	Time      float64
	TimeDelta float64
	Step      int
}

// Advance returns a new state with an incremented step and updated time,
// sharing no backing array with the receiver (spec §3: "advance(time)
// returns a new state with an incremented step and updated time").
func (s SimulationState) Advance(time float64) SimulationState {
	values := make([]float64, len(s.Values))
	copy(values, s.Values)
	return SimulationState{
		Values:    values,
		Time:      time,
		TimeDelta: s.TimeDelta,
		Step:      s.Step + 1,
	}
}

// Clone returns a deep copy of the state, used by the simulator to build
// s' from s without aliasing (spec §4.9).
func (s SimulationState) Clone() SimulationState {
	values := make([]float64, len(s.Values))
	copy(values, s.Values)
	return SimulationState{Values: values, Time: s.Time, TimeDelta: s.TimeDelta, Step: s.Step}
}
