package stockflow_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/stockflow/pkg/stockflow"
)

func TestDocumentToFrameBuildsAndCompiles(t *testing.T) {
	doc := stockflow.Document{
		Name: "kettle to cup",
		Nodes: []stockflow.NodeDoc{
			{ID: "kettle", Type: "Stock", Name: "kettle", Formula: "1000"},
			{ID: "cup", Type: "Stock", Name: "cup", Formula: "0"},
			{ID: "pour", Type: "FlowRate", Name: "pour", Formula: "100"},
		},
		Edges: []stockflow.EdgeDoc{
			{Type: "Flow", From: "kettle", To: "pour"},
			{Type: "Flow", From: "pour", To: "cup"},
		},
	}

	f, err := doc.ToFrame()
	require.NoError(t, err)

	p, cerr := stockflow.Compile(f, stockflow.OutflowFirst)
	require.Nil(t, cerr)
	require.Len(t, p.Stocks, 2)
	require.Len(t, p.Flows, 1)

	sim := stockflow.NewSimulator(p)
	state, err := sim.Init(0, 1, nil)
	require.NoError(t, err)

	next, err := sim.Step(state)
	require.NoError(t, err)
	assert.Equal(t, 1, next.Step)
}

func TestDocumentToFrameTreatsUndeclaredEndpointAsCloud(t *testing.T) {
	doc := stockflow.Document{
		Nodes: []stockflow.NodeDoc{
			{ID: "source", Type: "FlowRate", Name: "source", Formula: "5"},
			{ID: "tank", Type: "Stock", Name: "tank", Formula: "0"},
		},
		Edges: []stockflow.EdgeDoc{
			{Type: "Flow", From: "", To: "source"},
			{Type: "Flow", From: "source", To: "tank"},
		},
	}

	f, err := doc.ToFrame()
	require.NoError(t, err)

	p, cerr := stockflow.Compile(f, stockflow.OutflowFirst)
	require.Nil(t, cerr)
	require.Len(t, p.Flows, 1)
}

func TestDocumentToFrameRejectsUnknownNodeType(t *testing.T) {
	doc := stockflow.Document{
		Nodes: []stockflow.NodeDoc{{ID: "x", Type: "Bogus"}},
	}
	_, err := doc.ToFrame()
	assert.Error(t, err)
}

// TestDocumentFromJSONPreservesIntegerAttributes round-trips a diagram
// through encoding/json (as the CLI does), rather than constructing a
// Document by hand, since encoding/json decodes every JSON number into
// float64 and only ToFrame's attribute-name table recovers which of those
// were meant to be int (delay_duration, priority).
func TestDocumentFromJSONPreservesIntegerAttributes(t *testing.T) {
	raw := []byte(`{
		"name": "priority and delay",
		"nodes": [
			{"id": "source", "type": "Stock", "name": "source", "formula": "12", "attributes": {"allows_negative": false}},
			{"id": "sinkA", "type": "Stock", "name": "sinkA", "formula": "0"},
			{"id": "sinkB", "type": "Stock", "name": "sinkB", "formula": "0"},
			{"id": "rateB", "type": "FlowRate", "formula": "20", "attributes": {"priority": 2}},
			{"id": "rateA", "type": "FlowRate", "formula": "10", "attributes": {"priority": 1}},
			{"id": "src", "type": "Auxiliary", "name": "src", "formula": "7"},
			{"id": "delayed", "type": "Delay", "name": "delayed", "attributes": {"delay_duration": 3, "initial_value": 0}}
		],
		"edges": [
			{"type": "Flow", "from": "source", "to": "rateB"},
			{"type": "Flow", "from": "rateB", "to": "sinkB"},
			{"type": "Flow", "from": "source", "to": "rateA"},
			{"type": "Flow", "from": "rateA", "to": "sinkA"},
			{"type": "Parameter", "from": "src", "to": "delayed"}
		]
	}`)

	var doc stockflow.Document
	require.NoError(t, json.Unmarshal(raw, &doc))

	f, err := doc.ToFrame()
	require.NoError(t, err)

	p, cerr := stockflow.Compile(f, stockflow.OutflowFirst)
	require.Nil(t, cerr)

	// priority: despite rateB (priority 2) being declared first, rateA
	// (priority 1) must sort first in the source stock's outflow order —
	// the ordering a misread priority (collapsed to 0 for both, tie-broken
	// by object ID) would not reliably produce.
	aIdx, bIdx := -1, -1
	for i, fl := range p.Flows {
		switch fl.Priority {
		case 1:
			aIdx = i
		case 2:
			bIdx = i
		}
	}
	require.NotEqual(t, -1, aIdx)
	require.NotEqual(t, -1, bIdx)

	var sourceOutflows []int
	for _, st := range p.Stocks {
		sv, _ := p.Variable(st.VariableIndex)
		if sv.Name == "source" {
			sourceOutflows = st.OutflowFlowIndices
		}
	}
	require.Len(t, sourceOutflows, 2)
	assert.Equal(t, aIdx, sourceOutflows[0], "priority-1 flow must sort before priority-2")
	assert.Equal(t, bIdx, sourceOutflows[1])

	// delay_duration: a duration collapsed to 0 would immediately emit the
	// input at step 1; a preserved duration of 3 still emits the initial
	// value for steps [1..3] (P7, spec §8 scenario 7).
	var delayedIdx int
	for _, o := range p.Objects {
		if o.Name == "delayed" {
			delayedIdx = o.VariableIndex
		}
	}
	sim := stockflow.NewSimulator(p)
	state, err := sim.Init(0, 1, nil)
	require.NoError(t, err)
	state, err = sim.Step(state)
	require.NoError(t, err)
	assert.Equal(t, 0.0, state.Values[delayedIdx])
}
