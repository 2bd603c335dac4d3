// Package stockflow is the public facade: a JSON diagram document schema
// for the CLI plus re-exports of the compiler/simulator entry points, so
// callers outside this module never need to import internal/* directly.
// Grounded on the teacher's pkg/workflow/types.go JSON/YAML-tagged
// Definition (Name/Version/Nodes/Edges), adapted from a workflow-graph
// document to a stock-and-flow diagram document.
package stockflow

import (
	"fmt"

	"github.com/smilemakc/stockflow/internal/compiler"
	"github.com/smilemakc/stockflow/internal/domain"
	"github.com/smilemakc/stockflow/internal/graph"
	"github.com/smilemakc/stockflow/internal/metamodel"
	"github.com/smilemakc/stockflow/internal/plan"
	"github.com/smilemakc/stockflow/internal/simulator"
)

// Re-exports so external callers only need this one package.
type (
	Frame           = graph.Frame
	SimulationPlan  = plan.SimulationPlan
	SimulationState = plan.SimulationState
	CompilerError   = domain.CompilerError
	FlowScaling     = plan.FlowScaling
	Simulator       = simulator.Simulator
)

const (
	OutflowFirst = plan.OutflowFirst
	InflowFirst  = plan.InflowFirst
)

// NodeDoc is one node in a JSON diagram document.
type NodeDoc struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Name       string         `json:"name,omitempty"`
	Formula    string         `json:"formula,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// EdgeDoc is one structural edge (Flow or Parameter) in a diagram document.
type EdgeDoc struct {
	ID     string `json:"id,omitempty"`
	Type   string `json:"type"`
	From   string `json:"from"`
	To     string `json:"to"`
}

// Document is the JSON shape the CLI reads diagrams from — a flat node/edge
// list, the same level of structure as the teacher's workflow Definition.
type Document struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Nodes       []NodeDoc `json:"nodes"`
	Edges       []EdgeDoc `json:"edges"`
}

// ToFrame builds an in-memory Frame from a Document, minting a fresh
// ObjectID for every node (document IDs are just local references used to
// wire up edges within the file).
func (d *Document) ToFrame() (graph.Frame, error) {
	f := graph.NewMemoryFrame()
	ids := make(map[string]graph.ObjectID, len(d.Nodes))

	for _, n := range d.Nodes {
		typ, err := parseObjectType(n.Type)
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", n.ID, err)
		}
		attrs := map[string]graph.Attribute{}
		if n.Name != "" {
			attrs["name"] = graph.Attribute{Type: graph.AttrString, String: n.Name}
		}
		if n.Formula != "" {
			attrs["formula"] = graph.Attribute{Type: graph.AttrString, String: n.Formula}
		}
		for k, v := range n.Attributes {
			a, err := toAttribute(k, v)
			if err != nil {
				return nil, fmt.Errorf("node %q attribute %q: %w", n.ID, k, err)
			}
			attrs[k] = a
		}
		id := f.AddNode(graph.NilID, typ, attrs)
		ids[n.ID] = id
	}

	for _, e := range d.Edges {
		typ, err := parseObjectType(e.Type)
		if err != nil {
			return nil, fmt.Errorf("edge %q->%q: %w", e.From, e.To, err)
		}
		origin := resolveCloud(ids, e.From)
		target := resolveCloud(ids, e.To)
		f.AddEdge(graph.NilID, typ, origin, target, nil)
	}

	return f, nil
}

// resolveCloud treats a reference that names no declared node as the Cloud
// sentinel (spec §3: "the flow is valid only if it connects to a Cloud").
func resolveCloud(ids map[string]graph.ObjectID, ref string) graph.ObjectID {
	if ref == "" || ref == "cloud" {
		return graph.NilID
	}
	if id, ok := ids[ref]; ok {
		return id
	}
	return graph.NilID
}

func parseObjectType(raw string) (graph.ObjectType, error) {
	switch graph.ObjectType(raw) {
	case graph.TypeStock, graph.TypeFlowRate, graph.TypeAuxiliary, graph.TypeGraphicalFunction,
		graph.TypeDelay, graph.TypeSmooth, graph.TypeFlow, graph.TypeParameter,
		graph.TypeControl, graph.TypeChart, graph.TypeChartSeries, graph.TypeValueBinding,
		graph.TypeNote, graph.TypeComment, graph.TypeCloud, graph.TypeSimulation:
		return graph.ObjectType(raw), nil
	default:
		return "", fmt.Errorf("unknown object type %q", raw)
	}
}

// intAttributeNames are the attributes the compiler reads with graph.IntAttr
// (compiler.go:75, topology.go:77) plus "steps" (plan.SimulationParameters).
// encoding/json decodes every JSON number into float64 even for an `any`
// map, so without this table every one of these would silently become an
// AttrDouble that graph.IntAttr's strict type check never returns (spec §8
// scenario 3's flow priority and P7's delay duration both depend on it).
var intAttributeNames = map[string]bool{
	"delay_duration": true,
	"priority":       true,
	"steps":          true,
}

func toAttribute(key string, v any) (graph.Attribute, error) {
	switch val := v.(type) {
	case string:
		return graph.Attribute{Type: graph.AttrString, String: val}, nil
	case bool:
		return graph.Attribute{Type: graph.AttrBool, Bool: val}, nil
	case float64:
		if intAttributeNames[key] {
			return graph.Attribute{Type: graph.AttrInt, Int: int(val)}, nil
		}
		return graph.Attribute{Type: graph.AttrDouble, Double: val}, nil
	case int:
		return graph.Attribute{Type: graph.AttrInt, Int: val}, nil
	case []any:
		points := make([]graph.Point, 0, len(val))
		for _, raw := range val {
			pair, ok := raw.([]any)
			if !ok || len(pair) != 2 {
				return graph.Attribute{}, fmt.Errorf("expected [x, y] pair, got %v", raw)
			}
			x, xok := pair[0].(float64)
			y, yok := pair[1].(float64)
			if !xok || !yok {
				return graph.Attribute{}, fmt.Errorf("expected numeric [x, y] pair, got %v", raw)
			}
			points = append(points, graph.Point{X: x, Y: y})
		}
		return graph.Attribute{Type: graph.AttrPoints, Points: points}, nil
	default:
		return graph.Attribute{}, fmt.Errorf("unsupported attribute value %v (%T)", val, val)
	}
}

// Compile runs the full compiler pipeline against the default metamodel.
func Compile(f graph.Frame, scaling FlowScaling) (*SimulationPlan, *CompilerError) {
	return compiler.Compile(f, metamodel.Default(), compiler.Options{Scaling: scaling})
}

// NewSimulator builds a Simulator for a compiled plan.
func NewSimulator(p *SimulationPlan) *Simulator {
	return simulator.New(p)
}
