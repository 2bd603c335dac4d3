// Package binder implements the binder / plan builder (spec §4.7, component
// H): state-vector slot allocation, AST-to-slot binding, and SimulationPlan
// emission. Grounded on the teacher's planner.go ExecutionPlanner, which
// turns a validated graph plus a computed order into one immutable
// ExecutionPlan of waves; this package turns a validated frame plus a
// computed order into one immutable SimulationPlan of state-vector slots.
package binder

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/smilemakc/stockflow/internal/compiler/expression"
	"github.com/smilemakc/stockflow/internal/compiler/parameters"
	"github.com/smilemakc/stockflow/internal/compiler/topology"
	"github.com/smilemakc/stockflow/internal/domain"
	"github.com/smilemakc/stockflow/internal/graph"
	"github.com/smilemakc/stockflow/internal/plan"
)

// ParsedObject is everything the earlier phases resolved about one computed
// object, ready to be bound to slots.
type ParsedObject struct {
	ObjectID graph.ObjectID
	Name     string
	Type     graph.ObjectType

	// Formula-bearing objects (Stock, FlowRate, Auxiliary).
	Expr     *expression.Expression
	Bindings []parameters.Binding

	// GraphicalFunction
	Interpolation plan.InterpolationMethod
	Points        []graph.Point

	// Delay
	DelayDuration int
	InitialValue  float64

	// Smooth
	WindowTime float64

	// Stock
	AllowsNegative bool
}

// ValueBindingSpec is a ValueBinding node resolved down to its target
// object's ID, ready for the binder to translate into a variable_index.
type ValueBindingSpec struct {
	ControlID  graph.ObjectID
	VariableID graph.ObjectID
	Min        float64
	Max        float64
	Step       float64
}

// ChartSeriesSpec is a ChartSeries node resolved down to its target
// object's ID.
type ChartSeriesSpec struct {
	VariableID graph.ObjectID
	Color      string
}

// ChartSpec is a Chart node with its resolved series.
type ChartSpec struct {
	ChartID graph.ObjectID
	Series  []ChartSeriesSpec
}

// Input bundles everything Bind needs beyond the computation order itself.
type Input struct {
	Order         []graph.ObjectID // computation order, from internal/compiler/order
	Objects       map[graph.ObjectID]ParsedObject
	Flows         map[graph.ObjectID]topology.Flow
	Stocks        map[graph.ObjectID]topology.Stock
	StockIDs      []graph.ObjectID // stock-order
	FlowIDs       []graph.ObjectID // flow-order
	Delayed       map[graph.ObjectID]bool
	Scaling       plan.FlowScaling
	ValueBindings []ValueBindingSpec
	Charts        []ChartSpec
}

// Bind allocates state-vector slots in the order spec §4.7 requires
// (builtins, then one slot per object in computation order, then internal
// slots for stateful nodes) and binds every formula's free names to the
// resulting indices.
func Bind(in Input, report *domain.IssueReport) (*plan.SimulationPlan, error) {
	var stateVars []plan.StateVariable

	builtins := plan.BoundBuiltins{}
	builtins.Time = len(stateVars)
	stateVars = append(stateVars, plan.StateVariable{Name: "time", ValueType: plan.ValueDouble, Content: plan.ContentBuiltin, Builtin: plan.BuiltinTime})
	builtins.TimeDelta = len(stateVars)
	stateVars = append(stateVars, plan.StateVariable{Name: "time_delta", ValueType: plan.ValueDouble, Content: plan.ContentBuiltin, Builtin: plan.BuiltinTimeDelta})
	builtins.SimulationStep = len(stateVars)
	stateVars = append(stateVars, plan.StateVariable{Name: "simulation_step", ValueType: plan.ValueInt, Content: plan.ContentBuiltin, Builtin: plan.BuiltinSimulationStep})

	nameToIndex := map[string]int{
		"time":            builtins.Time,
		"time_delta":      builtins.TimeDelta,
		"simulation_step": builtins.SimulationStep,
	}
	objectIndex := make(map[graph.ObjectID]int, len(in.Order))

	for _, id := range in.Order {
		obj, ok := in.Objects[id]
		if !ok {
			continue
		}
		idx := len(stateVars)
		stateVars = append(stateVars, plan.StateVariable{
			Name:      obj.Name,
			ValueType: plan.ValueDouble,
			Content:   plan.ContentObject,
			ObjectID:  id,
		})
		objectIndex[id] = idx
		if obj.Name != "" {
			nameToIndex[obj.Name] = idx
		}
	}

	// Internal slots for stateful nodes: Delay allocates duration+1 slots
	// (ring buffer), Smooth allocates 1 (running average) — spec §4.7.
	delayQueueBase := make(map[graph.ObjectID]int, 0)
	smoothStateIndex := make(map[graph.ObjectID]int, 0)
	for _, id := range in.Order {
		obj, ok := in.Objects[id]
		if !ok {
			continue
		}
		switch obj.Type {
		case graph.TypeDelay:
			base := len(stateVars)
			delayQueueBase[id] = base
			for i := 0; i <= obj.DelayDuration; i++ {
				stateVars = append(stateVars, plan.StateVariable{
					Name:      fmt.Sprintf("%s.queue[%d]", obj.Name, i),
					ValueType: plan.ValueDouble,
					Content:   plan.ContentInternal,
					OwnerID:   id,
					Purpose:   "delay_queue",
				})
			}
		case graph.TypeSmooth:
			idx := len(stateVars)
			smoothStateIndex[id] = idx
			stateVars = append(stateVars, plan.StateVariable{
				Name:      obj.Name + ".average",
				ValueType: plan.ValueDouble,
				Content:   plan.ContentInternal,
				OwnerID:   id,
				Purpose:   "smooth_average",
			})
		}
	}

	var objects []plan.SimulationObject
	for _, id := range in.Order {
		obj, ok := in.Objects[id]
		if !ok {
			continue
		}
		so := plan.SimulationObject{ObjectID: id, Name: obj.Name, VariableIndex: objectIndex[id]}

		switch obj.Type {
		case graph.TypeGraphicalFunction:
			inputIdx := -1
			if len(obj.Bindings) == 1 {
				inputIdx = resolveIndex(obj.Bindings[0].SourceID, objectIndex, nameToIndex)
			}
			so.Computation = plan.Computation{
				Kind:          plan.ComputationGraphicalFunction,
				Interpolation: obj.Interpolation,
				Points:        obj.Points,
				InputIndex:    inputIdx,
			}
		case graph.TypeDelay:
			inputIdx := -1
			if len(obj.Bindings) == 1 {
				inputIdx = resolveIndex(obj.Bindings[0].SourceID, objectIndex, nameToIndex)
			}
			so.Computation = plan.Computation{
				Kind:           plan.ComputationDelay,
				DelayDuration:  obj.DelayDuration,
				InputIndex:     inputIdx,
				QueueBaseIndex: delayQueueBase[id],
				InitialValue:   obj.InitialValue,
			}
		case graph.TypeSmooth:
			inputIdx := -1
			if len(obj.Bindings) == 1 {
				inputIdx = resolveIndex(obj.Bindings[0].SourceID, objectIndex, nameToIndex)
			}
			so.Computation = plan.Computation{
				Kind:       plan.ComputationSmooth,
				WindowTime: obj.WindowTime,
				InputIndex: inputIdx,
				StateIndex: smoothStateIndex[id],
			}
		default:
			bound, err := bindFormula(obj, objectIndex, nameToIndex, report)
			if err != nil {
				return nil, err
			}
			so.Computation = plan.Computation{Kind: plan.ComputationFormula, Formula: bound}
		}

		objects = append(objects, so)
	}

	var stocks []plan.BoundStock
	stockPos := make(map[graph.ObjectID]int, len(in.StockIDs))
	for i, id := range in.StockIDs {
		stockPos[id] = i
	}
	for _, id := range in.StockIDs {
		t := in.Stocks[id]
		obj := in.Objects[id]
		stocks = append(stocks, plan.BoundStock{
			ObjectID:           id,
			VariableIndex:      objectIndex[id],
			AllowsNegative:     obj.AllowsNegative,
			DelayedInflow:      in.Delayed[id],
			InflowFlowIndices:  flowIndices(t.Inflows, in.FlowIDs),
			OutflowFlowIndices: flowIndices(t.Outflows, in.FlowIDs),
		})
	}

	var flows []plan.BoundFlow
	for _, id := range in.FlowIDs {
		fl := in.Flows[id]
		drains, fills := -1, -1
		if fl.Drains != nil {
			if pos, ok := stockPos[*fl.Drains]; ok {
				drains = pos
			}
		}
		if fl.Fills != nil {
			if pos, ok := stockPos[*fl.Fills]; ok {
				fills = pos
			}
		}
		flows = append(flows, plan.BoundFlow{
			ObjectID:      id,
			VariableIndex: objectIndex[id],
			Priority:      fl.Priority,
			DrainsStock:   drains,
			FillsStock:    fills,
		})
	}

	valueBindings := bindValueBindings(in.ValueBindings, objectIndex)
	charts := bindCharts(in.Charts, objectIndex)

	return &plan.SimulationPlan{
		Objects:        objects,
		StateVariables: stateVars,
		Builtins:       builtins,
		Stocks:         stocks,
		Flows:          flows,
		ValueBindings:  valueBindings,
		Charts:         charts,
		Scaling:        in.Scaling,
	}, nil
}

// bindValueBindings translates each ValueBindingSpec's target object ID into
// its state-vector slot (spec §6: "value_bindings"). A binding whose target
// was excluded by an earlier phase (and so never reached objectIndex) is
// dropped rather than reported again — the exclusion already produced its
// own diagnostic (spec §7, "excludes it from later phases that would
// cascade").
func bindValueBindings(specs []ValueBindingSpec, objectIndex map[graph.ObjectID]int) []plan.ValueBinding {
	var out []plan.ValueBinding
	for _, vb := range specs {
		idx, ok := objectIndex[vb.VariableID]
		if !ok {
			continue
		}
		out = append(out, plan.ValueBinding{
			ControlID:     vb.ControlID,
			VariableIndex: idx,
			Min:           vb.Min,
			Max:           vb.Max,
			Step:          vb.Step,
		})
	}
	return out
}

// bindCharts translates each ChartSpec's series into state-vector slots
// (spec §6: "charts").
func bindCharts(specs []ChartSpec, objectIndex map[graph.ObjectID]int) []plan.Chart {
	var out []plan.Chart
	for _, c := range specs {
		var series []plan.ChartSeries
		for _, s := range c.Series {
			idx, ok := objectIndex[s.VariableID]
			if !ok {
				continue
			}
			series = append(series, plan.ChartSeries{VariableIndex: idx, Color: s.Color})
		}
		out = append(out, plan.Chart{ChartID: c.ChartID, Series: series})
	}
	return out
}

func resolveIndex(id graph.ObjectID, objectIndex map[graph.ObjectID]int, nameToIndex map[string]int) int {
	if idx, ok := objectIndex[id]; ok {
		return idx
	}
	return -1
}

func bindFormula(obj ParsedObject, objectIndex map[graph.ObjectID]int, nameToIndex map[string]int, report *domain.IssueReport) (*plan.BoundFormula, error) {
	if obj.Expr == nil {
		return nil, nil
	}

	bySourceName := make(map[string]graph.ObjectID, len(obj.Bindings))
	for _, b := range obj.Bindings {
		bySourceName[b.Name] = b.SourceID
	}

	var bindings []plan.NameBinding
	for _, name := range obj.Expr.Free {
		var idx int
		var known bool
		if name == "time" || name == "time_delta" || name == "simulation_step" {
			idx, known = nameToIndex[name], true
		} else if srcID, ok := bySourceName[name]; ok {
			idx, known = objectIndex[srcID], true
		}
		if !known {
			// A free name with no resolved binding at this point is a
			// compiler bug: the parameter resolver must have already
			// reported unknown_parameter and excluded this object.
			return nil, domain.NewDomainError(domain.ErrCodeInternal,
				fmt.Sprintf("unresolved free name %q in object %s reached the binder", name, obj.ObjectID), nil)
		}
		bindings = append(bindings, plan.NameBinding{Name: name, VariableIndex: idx})
	}

	envType := make(map[string]float64, len(bindings))
	for _, b := range bindings {
		envType[b.Name] = 0
	}
	program, err := expr.Compile(obj.Expr.Source, expr.Env(envType))
	if err != nil {
		report.Add(obj.ObjectID, domain.Issue{
			Identifier: obj.ObjectID.String(),
			Severity:   domain.SeverityError,
			Error:      domain.IssueKind{Code: domain.ErrCodeSyntaxError, Name: err.Error()},
		})
		return nil, nil
	}

	return &plan.BoundFormula{Source: obj.Expr.Source, Program: program, Bindings: bindings}, nil
}

func flowIndices(ids []graph.ObjectID, flowOrder []graph.ObjectID) []int {
	pos := make(map[graph.ObjectID]int, len(flowOrder))
	for i, id := range flowOrder {
		pos[id] = i
	}
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		out = append(out, pos[id])
	}
	return out
}
