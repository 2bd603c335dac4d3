package compiler_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/stockflow/internal/compiler"
	"github.com/smilemakc/stockflow/internal/domain"
	"github.com/smilemakc/stockflow/internal/graph"
	"github.com/smilemakc/stockflow/internal/metamodel"
	"github.com/smilemakc/stockflow/internal/plan"
	"github.com/smilemakc/stockflow/internal/simulator"
)

func strAttr(v string) graph.Attribute    { return graph.Attribute{Type: graph.AttrString, String: v} }
func boolAttr(v bool) graph.Attribute     { return graph.Attribute{Type: graph.AttrBool, Bool: v} }
func intAttr(v int) graph.Attribute       { return graph.Attribute{Type: graph.AttrInt, Int: v} }
func doubleAttr(v float64) graph.Attribute { return graph.Attribute{Type: graph.AttrDouble, Double: v} }

// kettleToCup builds end-to-end scenario 1 (spec §8): a kettle stock
// draining into a cup stock at a constant rate.
func kettleToCup(t *testing.T) (*plan.SimulationPlan, error) {
	t.Helper()
	f := graph.NewMemoryFrame()

	kettle := f.AddNode(graph.NilID, graph.TypeStock, map[string]graph.Attribute{"formula": strAttr("1000")})
	cup := f.AddNode(graph.NilID, graph.TypeStock, map[string]graph.Attribute{"formula": strAttr("0")})
	pour := f.AddNode(graph.NilID, graph.TypeFlowRate, map[string]graph.Attribute{"formula": strAttr("100")})

	f.AddEdge(graph.NilID, graph.TypeFlow, kettle, pour, nil)
	f.AddEdge(graph.NilID, graph.TypeFlow, pour, cup, nil)

	p, cerr := compiler.Compile(f, metamodel.Default(), compiler.Options{Scaling: plan.OutflowFirst})
	if cerr != nil {
		return nil, cerr
	}
	return p, nil
}

func TestKettleToCup(t *testing.T) {
	p, err := kettleToCup(t)
	require.NoError(t, err)
	require.Len(t, p.Stocks, 2)

	sim := simulator.New(p)
	state, err := sim.Init(0, 1, nil)
	require.NoError(t, err)

	// Stocks carry no "name" attribute in this build, so identify kettle
	// vs. cup by their distinct initial values instead.
	var kettleVar, cupVar int
	for _, s := range p.Stocks {
		if state.Values[s.VariableIndex] == 1000 {
			kettleVar = s.VariableIndex
		}
		if state.Values[s.VariableIndex] == 0 {
			cupVar = s.VariableIndex
		}
	}

	state, err = sim.Step(state)
	require.NoError(t, err)
	assert.Equal(t, 900.0, state.Values[kettleVar])
	assert.Equal(t, 100.0, state.Values[cupVar])

	state, err = sim.Step(state)
	require.NoError(t, err)
	assert.Equal(t, 800.0, state.Values[kettleVar])
	assert.Equal(t, 200.0, state.Values[cupVar])
}

func TestNonNegativeDrain(t *testing.T) {
	f := graph.NewMemoryFrame()
	s := f.AddNode(graph.NilID, graph.TypeStock, map[string]graph.Attribute{
		"formula":         strAttr("5"),
		"allows_negative": boolAttr(false),
	})
	flow := f.AddNode(graph.NilID, graph.TypeFlowRate, map[string]graph.Attribute{"formula": strAttr("10")})
	f.AddEdge(graph.NilID, graph.TypeFlow, s, flow, nil)

	p, cerr := compiler.Compile(f, metamodel.Default(), compiler.Options{Scaling: plan.OutflowFirst})
	require.Nil(t, cerr)

	sim := simulator.New(p)
	state, err := sim.Init(0, 1, nil)
	require.NoError(t, err)
	state, err = sim.Step(state)
	require.NoError(t, err)
	assert.Equal(t, 0.0, state.Values[p.Stocks[0].VariableIndex])
}

func TestPrioritizedOutflow(t *testing.T) {
	f := graph.NewMemoryFrame()
	source := f.AddNode(graph.NilID, graph.TypeStock, map[string]graph.Attribute{
		"formula":         strAttr("12"),
		"allows_negative": boolAttr(false),
	})
	sinkA := f.AddNode(graph.NilID, graph.TypeStock, map[string]graph.Attribute{"formula": strAttr("0")})
	sinkB := f.AddNode(graph.NilID, graph.TypeStock, map[string]graph.Attribute{"formula": strAttr("0")})
	rateA := f.AddNode(graph.NilID, graph.TypeFlowRate, map[string]graph.Attribute{"formula": strAttr("10"), "priority": intAttr(1)})
	rateB := f.AddNode(graph.NilID, graph.TypeFlowRate, map[string]graph.Attribute{"formula": strAttr("20"), "priority": intAttr(2)})

	f.AddEdge(graph.NilID, graph.TypeFlow, source, rateA, nil)
	f.AddEdge(graph.NilID, graph.TypeFlow, rateA, sinkA, nil)
	f.AddEdge(graph.NilID, graph.TypeFlow, source, rateB, nil)
	f.AddEdge(graph.NilID, graph.TypeFlow, rateB, sinkB, nil)

	p, cerr := compiler.Compile(f, metamodel.Default(), compiler.Options{Scaling: plan.OutflowFirst})
	require.Nil(t, cerr)

	sim := simulator.New(p)
	state, err := sim.Init(0, 1, nil)
	require.NoError(t, err)
	state, err = sim.Step(state)
	require.NoError(t, err)

	var sourceIdx, aIdx, bIdx int
	for _, s := range p.Stocks {
		switch s.ObjectID {
		case source:
			sourceIdx = s.VariableIndex
		case sinkA:
			aIdx = s.VariableIndex
		case sinkB:
			bIdx = s.VariableIndex
		}
	}

	assert.InDelta(t, 0.0, state.Values[sourceIdx], 1e-9)
	assert.InDelta(t, 4.0, state.Values[aIdx], 1e-9)
	assert.InDelta(t, 8.0, state.Values[bIdx], 1e-9)
}

func TestFlowCycleBrokenByDelayedInflow(t *testing.T) {
	build := func(delayed bool) *domain.CompilerError {
		f := graph.NewMemoryFrame()
		attrsA := map[string]graph.Attribute{"formula": strAttr("0")}
		if delayed {
			attrsA["delayed_inflow"] = boolAttr(true)
		}
		a := f.AddNode(graph.NilID, graph.TypeStock, attrsA)
		b := f.AddNode(graph.NilID, graph.TypeStock, map[string]graph.Attribute{"formula": strAttr("10")})
		ab := f.AddNode(graph.NilID, graph.TypeFlowRate, map[string]graph.Attribute{"formula": strAttr("1")})
		ba := f.AddNode(graph.NilID, graph.TypeFlowRate, map[string]graph.Attribute{"formula": strAttr("1")})

		f.AddEdge(graph.NilID, graph.TypeFlow, a, ab, nil)
		f.AddEdge(graph.NilID, graph.TypeFlow, ab, b, nil)
		f.AddEdge(graph.NilID, graph.TypeFlow, b, ba, nil)
		f.AddEdge(graph.NilID, graph.TypeFlow, ba, a, nil)

		_, cerr := compiler.Compile(f, metamodel.Default(), compiler.Options{Scaling: plan.OutflowFirst})
		return cerr
	}

	cerr := build(false)
	require.NotNil(t, cerr)
	require.NotNil(t, cerr.Issues)
	foundFlowCycle := false
	for _, issues := range cerr.Issues.All() {
		for _, i := range issues {
			if i.Error.Code == domain.ErrCodeFlowCycle {
				foundFlowCycle = true
			}
		}
	}
	assert.True(t, foundFlowCycle)

	cerr = build(true)
	assert.Nil(t, cerr)
}

func TestComputationCycle(t *testing.T) {
	f := graph.NewMemoryFrame()
	a := f.AddNode(graph.NilID, graph.TypeAuxiliary, map[string]graph.Attribute{"name": strAttr("a"), "formula": strAttr("b")})
	b := f.AddNode(graph.NilID, graph.TypeAuxiliary, map[string]graph.Attribute{"name": strAttr("b"), "formula": strAttr("a")})
	f.AddEdge(graph.NilID, graph.TypeParameter, b, a, nil)
	f.AddEdge(graph.NilID, graph.TypeParameter, a, b, nil)

	_, cerr := compiler.Compile(f, metamodel.Default(), compiler.Options{Scaling: plan.OutflowFirst})
	require.NotNil(t, cerr)
	require.NotNil(t, cerr.Issues)

	found := 0
	for _, issues := range cerr.Issues.All() {
		for _, i := range issues {
			if i.Error.Code == domain.ErrCodeComputationCycle {
				found++
			}
		}
	}
	assert.Equal(t, 2, found)
}

func TestDeterminism(t *testing.T) {
	p, err := kettleToCup(t)
	require.NoError(t, err)

	sim1 := simulator.New(p)
	s1, err := sim1.Init(0, 1, nil)
	require.NoError(t, err)
	s1, err = sim1.Step(s1)
	require.NoError(t, err)
	s1, err = sim1.Step(s1)
	require.NoError(t, err)

	sim2 := simulator.New(p)
	s2, err := sim2.Init(0, 1, nil)
	require.NoError(t, err)
	s2, err = sim2.Step(s2)
	require.NoError(t, err)
	s2, err = sim2.Step(s2)
	require.NoError(t, err)

	if diff := cmp.Diff(s1.Values, s2.Values); diff != "" {
		t.Errorf("two Simulators over the same plan diverged (-first +second):\n%s", diff)
	}
}

// TestParameterPathOrdering verifies P1 (total order, spec §8): if a
// parameter path a -> ... -> b exists, a's variable index precedes b's.
func TestParameterPathOrdering(t *testing.T) {
	f := graph.NewMemoryFrame()
	a := f.AddNode(graph.NilID, graph.TypeAuxiliary, map[string]graph.Attribute{"name": strAttr("a"), "formula": strAttr("1")})
	b := f.AddNode(graph.NilID, graph.TypeAuxiliary, map[string]graph.Attribute{"name": strAttr("b"), "formula": strAttr("a * 2")})
	c := f.AddNode(graph.NilID, graph.TypeAuxiliary, map[string]graph.Attribute{"name": strAttr("c"), "formula": strAttr("b + 1")})
	f.AddEdge(graph.NilID, graph.TypeParameter, a, b, nil)
	f.AddEdge(graph.NilID, graph.TypeParameter, b, c, nil)

	p, cerr := compiler.Compile(f, metamodel.Default(), compiler.Options{Scaling: plan.OutflowFirst})
	require.Nil(t, cerr)

	indexOf := func(id graph.ObjectID) int {
		for _, o := range p.Objects {
			if o.ObjectID == id {
				return o.VariableIndex
			}
		}
		t.Fatalf("object %s not found in plan", id)
		return -1
	}

	assert.Less(t, indexOf(a), indexOf(b))
	assert.Less(t, indexOf(b), indexOf(c))
}

// TestVariableIndexBijection verifies P2 (index bijection, spec §8):
// variable_index is a bijection between simulation objects and a prefix of
// state-variable slots immediately after the three builtin slots.
func TestVariableIndexBijection(t *testing.T) {
	p, err := kettleToCup(t)
	require.NoError(t, err)

	seen := make(map[int]bool, len(p.Objects))
	for _, o := range p.Objects {
		assert.False(t, seen[o.VariableIndex], "variable_index %d reused", o.VariableIndex)
		seen[o.VariableIndex] = true
		assert.GreaterOrEqual(t, o.VariableIndex, 3, "object slots must follow the three builtin slots")
	}
	for i := 3; i < 3+len(p.Objects); i++ {
		assert.True(t, seen[i], "index %d in the expected prefix has no owning object", i)
	}
}

// TestConservationOfClosedStockSystem verifies P3 (conservation, spec §8):
// for a closed system of stocks with no clouds, the sum of all stocks
// changes by exactly zero per step while no non-negativity clamp fires.
func TestConservationOfClosedStockSystem(t *testing.T) {
	p, err := kettleToCup(t)
	require.NoError(t, err)

	sim := simulator.New(p)
	state, err := sim.Init(0, 1, nil)
	require.NoError(t, err)

	total := func(s plan.SimulationState) float64 {
		var sum float64
		for _, st := range p.Stocks {
			sum += s.Values[st.VariableIndex]
		}
		return sum
	}

	before := total(state)
	for i := 0; i < 5; i++ {
		state, err = sim.Step(state)
		require.NoError(t, err)
		after := total(state)
		assert.InDelta(t, before, after, 1e-9)
		before = after
	}
}

// TestFlowClampMonotonicity verifies P5 (flow clamp monotonicity, spec §8):
// each adjusted outflow stays within [0, raw_outflow] when a stock's budget
// is insufficient to cover its unscaled outflows.
func TestFlowClampMonotonicity(t *testing.T) {
	f := graph.NewMemoryFrame()
	source := f.AddNode(graph.NilID, graph.TypeStock, map[string]graph.Attribute{
		"formula":         strAttr("1"),
		"allows_negative": boolAttr(false),
	})
	sink := f.AddNode(graph.NilID, graph.TypeStock, map[string]graph.Attribute{"formula": strAttr("0")})
	rate := f.AddNode(graph.NilID, graph.TypeFlowRate, map[string]graph.Attribute{"formula": strAttr("50")})
	f.AddEdge(graph.NilID, graph.TypeFlow, source, rate, nil)
	f.AddEdge(graph.NilID, graph.TypeFlow, rate, sink, nil)

	p, cerr := compiler.Compile(f, metamodel.Default(), compiler.Options{Scaling: plan.OutflowFirst})
	require.Nil(t, cerr)

	sim := simulator.New(p)
	state, err := sim.Init(0, 1, nil)
	require.NoError(t, err)
	state, err = sim.Step(state)
	require.NoError(t, err)

	adjusted := state.Values[p.Flows[0].VariableIndex]
	assert.GreaterOrEqual(t, adjusted, 0.0)
	assert.LessOrEqual(t, adjusted, 50.0)
	assert.InDelta(t, 1.0, adjusted, 1e-9) // the whole stock, since outflow alone exceeds the budget
}

// TestValueBindingsAndChartsResolveByName verifies spec §6: a ValueBinding
// and a Chart/ChartSeries linked purely by name (no structural edge) are
// carried through into the plan, with their target resolved all the way
// down to a variable_index.
func TestValueBindingsAndChartsResolveByName(t *testing.T) {
	f := graph.NewMemoryFrame()
	x := f.AddNode(graph.NilID, graph.TypeAuxiliary, map[string]graph.Attribute{"name": strAttr("x"), "formula": strAttr("5")})

	vb := f.AddNode(graph.NilID, graph.TypeValueBinding, map[string]graph.Attribute{
		"variable": strAttr("x"),
		"min":      doubleAttr(0),
		"max":      doubleAttr(10),
		"step":     doubleAttr(1),
	})

	chart := f.AddNode(graph.NilID, graph.TypeChart, map[string]graph.Attribute{"name": strAttr("dashboard")})
	f.AddNode(graph.NilID, graph.TypeChartSeries, map[string]graph.Attribute{
		"chart":    strAttr("dashboard"),
		"variable": strAttr("x"),
		"color":    strAttr("#ff0000"),
	})

	p, cerr := compiler.Compile(f, metamodel.Default(), compiler.Options{Scaling: plan.OutflowFirst})
	require.Nil(t, cerr)

	xIdx := -1
	for _, o := range p.Objects {
		if o.ObjectID == x {
			xIdx = o.VariableIndex
		}
	}
	require.NotEqual(t, -1, xIdx)

	require.Len(t, p.ValueBindings, 1)
	assert.Equal(t, vb, p.ValueBindings[0].ControlID)
	assert.Equal(t, xIdx, p.ValueBindings[0].VariableIndex)
	assert.Equal(t, 0.0, p.ValueBindings[0].Min)
	assert.Equal(t, 10.0, p.ValueBindings[0].Max)
	assert.Equal(t, 1.0, p.ValueBindings[0].Step)

	require.Len(t, p.Charts, 1)
	assert.Equal(t, chart, p.Charts[0].ChartID)
	require.Len(t, p.Charts[0].Series, 1)
	assert.Equal(t, xIdx, p.Charts[0].Series[0].VariableIndex)
	assert.Equal(t, "#ff0000", p.Charts[0].Series[0].Color)
}

// TestValueBindingUnknownVariableReported verifies that a ValueBinding
// naming a nonexistent variable is reported, not silently dropped.
func TestValueBindingUnknownVariableReported(t *testing.T) {
	f := graph.NewMemoryFrame()
	f.AddNode(graph.NilID, graph.TypeValueBinding, map[string]graph.Attribute{
		"variable": strAttr("does_not_exist"),
	})

	_, cerr := compiler.Compile(f, metamodel.Default(), compiler.Options{Scaling: plan.OutflowFirst})
	require.NotNil(t, cerr)
	require.NotNil(t, cerr.Issues)

	found := false
	for _, issues := range cerr.Issues.All() {
		for _, i := range issues {
			if i.Error.Code == domain.ErrCodeUnknownVariable {
				found = true
			}
		}
	}
	assert.True(t, found)
}

// TestFlowDrainingCloudHasNoStockIndex verifies that a flow whose source or
// sink is the Cloud sentinel (rather than a Stock) binds to -1, not the
// zero-value stock index that a missed map lookup would produce.
func TestFlowDrainingCloudHasNoStockIndex(t *testing.T) {
	f := graph.NewMemoryFrame()
	sink := f.AddNode(graph.NilID, graph.TypeStock, map[string]graph.Attribute{"formula": strAttr("0")})
	inflow := f.AddNode(graph.NilID, graph.TypeFlowRate, map[string]graph.Attribute{"formula": strAttr("5")})

	// inflow has no incoming Flow edge at all, i.e. it drains the Cloud
	// (topology.buildFlow leaves Drains nil in exactly this case), and fills
	// sink.
	f.AddEdge(graph.NilID, graph.TypeFlow, inflow, sink, nil)

	p, cerr := compiler.Compile(f, metamodel.Default(), compiler.Options{Scaling: plan.OutflowFirst})
	require.Nil(t, cerr)
	require.Len(t, p.Flows, 1)
	assert.Equal(t, -1, p.Flows[0].DrainsStock)
	assert.NotEqual(t, -1, p.Flows[0].FillsStock)
}
