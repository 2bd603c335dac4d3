// Package compiler orchestrates phases A-H into the single pure function
// spec §3 describes: "(Frame, Metamodel) -> SimulationPlan | CompilerError".
// Grounded on the teacher's ExecutionPlanner.CreatePlan, which runs
// validation, binding, and wave-building as one sequential pipeline over a
// WorkflowGraph and returns either a plan or an error.
package compiler

import (
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/smilemakc/stockflow/internal/compiler/binder"
	"github.com/smilemakc/stockflow/internal/compiler/constraints"
	"github.com/smilemakc/stockflow/internal/compiler/expression"
	"github.com/smilemakc/stockflow/internal/compiler/names"
	"github.com/smilemakc/stockflow/internal/compiler/order"
	"github.com/smilemakc/stockflow/internal/compiler/parameters"
	"github.com/smilemakc/stockflow/internal/compiler/topology"
	"github.com/smilemakc/stockflow/internal/domain"
	"github.com/smilemakc/stockflow/internal/graph"
	"github.com/smilemakc/stockflow/internal/metamodel"
	"github.com/smilemakc/stockflow/internal/plan"
)

// Options configures a single Compile call.
type Options struct {
	Scaling plan.FlowScaling
}

// Compile runs a frame through every phase and returns either a
// SimulationPlan or a CompilerError carrying per-object diagnostics (spec
// §3, §7). Compilation never panics on malformed input; every failure path
// is represented in the returned error.
func Compile(f graph.Frame, mm *metamodel.Metamodel, opts Options) (*plan.SimulationPlan, *domain.CompilerError) {
	report := domain.NewIssueReport()

	constraints.Check(f, mm, report)

	nameLookup := names.Resolve(f, report)

	var stockIDs, flowRateIDs, computedIDs []graph.ObjectID
	nodeType := make(map[graph.ObjectID]graph.ObjectType)
	for _, n := range f.Nodes() {
		nodeType[n.ID] = n.Type
		if !n.Type.IsComputed() {
			continue
		}
		if report.Excluded(n.ID) {
			continue
		}
		computedIDs = append(computedIDs, n.ID)
		switch n.Type {
		case graph.TypeStock:
			stockIDs = append(stockIDs, n.ID)
		case graph.TypeFlowRate:
			flowRateIDs = append(flowRateIDs, n.ID)
		}
	}

	parsed := make(map[graph.ObjectID]binder.ParsedObject, len(computedIDs))
	for _, id := range computedIDs {
		obj := binder.ParsedObject{
			ObjectID: id,
			Name:     names.NameOf(f, id),
			Type:     nodeType[id],
		}

		switch nodeType[id] {
		case graph.TypeGraphicalFunction:
			obj.Interpolation = plan.InterpolationMethod(graph.StringAttr(f, id, "interpolation_method", string(plan.InterpolationStep)))
			obj.Points = graph.PointsAttr(f, id, "points")
			obj.Bindings = parameters.Resolve(f, mm, id, nodeType[id], nil, nameLookup, report)
		case graph.TypeDelay:
			obj.DelayDuration = graph.IntAttr(f, id, "delay_duration", 0)
			obj.InitialValue = graph.DoubleAttr(f, id, "initial_value", 0)
			obj.Bindings = parameters.Resolve(f, mm, id, nodeType[id], nil, nameLookup, report)
		case graph.TypeSmooth:
			obj.WindowTime = graph.DoubleAttr(f, id, "window_time", 1)
			obj.Bindings = parameters.Resolve(f, mm, id, nodeType[id], nil, nameLookup, report)
		default:
			formula := graph.StringAttr(f, id, "formula", "")
			expr, ok := expression.Parse(id, formula, report)
			if !ok {
				continue
			}
			obj.Expr = expr
			obj.Bindings = parameters.Resolve(f, mm, id, nodeType[id], expr.Free, nameLookup, report)
			if nodeType[id] == graph.TypeStock {
				obj.AllowsNegative = graph.BoolAttr(f, id, "allows_negative", false)
			}
		}

		if report.Excluded(id) {
			continue
		}
		parsed[id] = obj
	}

	flows, stocks := topology.Build(f, flowRateIDs, stockIDs, report)

	valueBindings := resolveValueBindings(f, nameLookup, report)
	charts := resolveCharts(f, nameLookup, report)

	delayed := make(map[graph.ObjectID]bool, len(stockIDs))
	for _, id := range stockIDs {
		delayed[id] = graph.BoolAttr(f, id, "delayed_inflow", false)
	}

	var flowEdges []order.FlowEdge
	for _, fl := range flows {
		if fl.Drains != nil && fl.Fills != nil {
			flowEdges = append(flowEdges, order.FlowEdge{Drains: *fl.Drains, Fills: *fl.Fills})
		}
	}
	order.CheckFlowCycles(stockIDs, flowEdges, delayed, report)

	var orderNodes []order.Node
	edges := make(map[graph.ObjectID][]graph.ObjectID)
	for _, id := range computedIDs {
		if report.Excluded(id) {
			continue
		}
		orderNodes = append(orderNodes, order.Node{ObjectID: id, Kind: kindOf(nodeType[id])})
	}
	for _, obj := range parsed {
		for _, b := range obj.Bindings {
			if _, ok := parsed[b.SourceID]; ok {
				edges[b.SourceID] = append(edges[b.SourceID], obj.ObjectID)
			}
		}
	}

	computationOrder, ok := order.Sort(orderNodes, edges, report)
	if !ok {
		log.Warn().Int("objects", len(orderNodes)).Msg("compile: dependency sort found an uncomputable cycle")
		return nil, &domain.CompilerError{Issues: report}
	}
	log.Debug().Int("objects", len(computationOrder)).Msg("compile: dependency sort complete")

	if report.HasErrors() {
		return nil, &domain.CompilerError{Issues: report}
	}

	stockIDsSorted := append([]graph.ObjectID(nil), stockIDs...)
	sort.Slice(stockIDsSorted, func(i, j int) bool { return stockIDsSorted[i].String() < stockIDsSorted[j].String() })
	flowIDsSorted := append([]graph.ObjectID(nil), flowRateIDs...)
	sort.Slice(flowIDsSorted, func(i, j int) bool { return flowIDsSorted[i].String() < flowIDsSorted[j].String() })

	built, err := binder.Bind(binder.Input{
		Order:         computationOrder,
		Objects:       parsed,
		Flows:         flows,
		Stocks:        stocks,
		StockIDs:      stockIDsSorted,
		FlowIDs:       flowIDsSorted,
		Delayed:       delayed,
		Scaling:       opts.Scaling,
		ValueBindings: valueBindings,
		Charts:        charts,
	}, report)
	if err != nil {
		if de, ok := err.(*domain.DomainError); ok {
			return nil, &domain.CompilerError{Internal: de}
		}
		return nil, &domain.CompilerError{Internal: domain.NewDomainError(domain.ErrCodeInternal, err.Error(), err)}
	}

	for _, n := range f.Nodes() {
		if n.Type != graph.TypeSimulation {
			continue
		}
		built.Parameters = &plan.SimulationParameters{
			InitialTime: graph.DoubleAttr(f, n.ID, "initial_time", 0),
			TimeDelta:   graph.DoubleAttr(f, n.ID, "time_delta", 0),
			EndTime:     graph.DoubleAttr(f, n.ID, "end_time", 0),
			Steps:       graph.IntAttr(f, n.ID, "steps", 0),
		}
		break
	}

	if report.HasErrors() {
		return nil, &domain.CompilerError{Issues: report}
	}

	if !report.IsEmpty() {
		log.Warn().Int("issues", len(report.All())).Msg("compile: succeeded with warnings")
	}
	log.Debug().Int("state_variables", len(built.StateVariables)).Int("stocks", len(built.Stocks)).
		Int("flows", len(built.Flows)).Msg("compile: plan built")

	return built, nil
}

func kindOf(t graph.ObjectType) order.Kind {
	switch t {
	case graph.TypeStock:
		return order.KindStock
	case graph.TypeFlowRate:
		return order.KindFlowRate
	default:
		return order.KindOther
	}
}

// resolveValueBindings walks every ValueBinding node, resolving its
// "variable" attribute against nameLookup into the target object's ID (spec
// §3 "UI/metadata"; §6 "value_bindings"). A binding naming an unknown
// variable is reported and dropped rather than silently ignored, since
// unlike an excluded object's cascading issues this points at a typo the
// diagram author can fix.
func resolveValueBindings(f graph.Frame, nameLookup map[string]graph.ObjectID, report *domain.IssueReport) []binder.ValueBindingSpec {
	var out []binder.ValueBindingSpec
	for _, n := range f.Nodes() {
		if n.Type != graph.TypeValueBinding {
			continue
		}
		varName := graph.StringAttr(f, n.ID, "variable", "")
		varID, ok := nameLookup[varName]
		if !ok {
			report.Add(n.ID, domain.Issue{
				Identifier: n.ID.String(),
				Severity:   domain.SeverityError,
				Error:      domain.IssueKind{Code: domain.ErrCodeUnknownVariable, Name: varName},
			})
			continue
		}
		out = append(out, binder.ValueBindingSpec{
			ControlID:  n.ID,
			VariableID: varID,
			Min:        graph.DoubleAttr(f, n.ID, "min", 0),
			Max:        graph.DoubleAttr(f, n.ID, "max", 0),
			Step:       graph.DoubleAttr(f, n.ID, "step", 0),
		})
	}
	return out
}

// resolveCharts walks every Chart node and the ChartSeries nodes that
// reference it by name (a ChartSeries's "chart" attribute matching the
// Chart's own "name"), resolving each series' "variable" attribute the same
// way resolveValueBindings does (spec §6 "charts").
func resolveCharts(f graph.Frame, nameLookup map[string]graph.ObjectID, report *domain.IssueReport) []binder.ChartSpec {
	var chartIDs []graph.ObjectID
	chartName := make(map[graph.ObjectID]string)
	for _, n := range f.Nodes() {
		if n.Type != graph.TypeChart {
			continue
		}
		chartIDs = append(chartIDs, n.ID)
		chartName[n.ID] = names.NameOf(f, n.ID)
	}

	seriesByChart := make(map[string][]binder.ChartSeriesSpec)
	for _, n := range f.Nodes() {
		if n.Type != graph.TypeChartSeries {
			continue
		}
		chartRef := graph.StringAttr(f, n.ID, "chart", "")
		varName := graph.StringAttr(f, n.ID, "variable", "")
		varID, ok := nameLookup[varName]
		if !ok {
			report.Add(n.ID, domain.Issue{
				Identifier: n.ID.String(),
				Severity:   domain.SeverityError,
				Error:      domain.IssueKind{Code: domain.ErrCodeUnknownVariable, Name: varName},
			})
			continue
		}
		seriesByChart[chartRef] = append(seriesByChart[chartRef], binder.ChartSeriesSpec{
			VariableID: varID,
			Color:      graph.StringAttr(f, n.ID, "color", ""),
		})
	}

	var out []binder.ChartSpec
	for _, id := range chartIDs {
		out = append(out, binder.ChartSpec{ChartID: id, Series: seriesByChart[chartName[id]]})
	}
	return out
}
