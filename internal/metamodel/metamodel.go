// Package metamodel declares object types, traits, and edge rules as data
// (spec §9, "Metamodel as data: the metamodel is a value, not a compiled-in
// type hierarchy"). A new object type plugs in by contributing a trait set
// and edge rules here, never by touching compiler control flow.
//
// The original tool this spec was distilled from carried two coexisting,
// partially-overlapping metamodel definitions with a TODO about merging
// them (spec §9, Open Question). This package picks one canonical
// metamodel — see DESIGN.md for the resolution — rather than reproducing
// the duplication.
package metamodel

import "github.com/smilemakc/stockflow/internal/graph"

// Cardinality bounds the number of edges of one type, in one direction, at
// one endpoint (spec §4.1).
type Cardinality int

const (
	CardinalityOne  Cardinality = 1
	CardinalityMany Cardinality = -1
)

// Allows reports whether count edges satisfy this cardinality bound.
func (c Cardinality) Allows(count int) bool {
	if c == CardinalityMany {
		return true
	}
	return count <= int(c)
}

// Predicate is a boolean composition over object types and traits (spec
// §4.1: "a boolean composition (is_type, has_trait, or, and)").
type Predicate interface {
	Matches(typ graph.ObjectType, traits map[string]bool) bool
}

type isType struct{ t graph.ObjectType }

func (p isType) Matches(typ graph.ObjectType, _ map[string]bool) bool { return typ == p.t }

// IsType builds a predicate matching a single object type.
func IsType(t graph.ObjectType) Predicate { return isType{t} }

type hasTrait struct{ name string }

func (p hasTrait) Matches(_ graph.ObjectType, traits map[string]bool) bool { return traits[p.name] }

// HasTrait builds a predicate matching any object carrying the named trait.
func HasTrait(name string) Predicate { return hasTrait{name} }

type orPredicate struct{ ps []Predicate }

func (p orPredicate) Matches(typ graph.ObjectType, traits map[string]bool) bool {
	for _, sub := range p.ps {
		if sub.Matches(typ, traits) {
			return true
		}
	}
	return false
}

// Or builds a predicate matching if any of ps match.
func Or(ps ...Predicate) Predicate { return orPredicate{ps} }

type andPredicate struct{ ps []Predicate }

func (p andPredicate) Matches(typ graph.ObjectType, traits map[string]bool) bool {
	for _, sub := range p.ps {
		if !sub.Matches(typ, traits) {
			return false
		}
	}
	return true
}

// And builds a predicate matching only if every one of ps matches.
func And(ps ...Predicate) Predicate { return andPredicate{ps} }

// Direction identifies which endpoint of an edge a cardinality rule bounds.
type Direction string

const (
	DirectionOutgoing Direction = "outgoing"
	DirectionIncoming Direction = "incoming"
)

// EdgeRule is one admissible shape for an edge type (spec §4.1): an origin
// predicate, a target predicate, and outgoing/incoming cardinality bounds.
type EdgeRule struct {
	EdgeType        graph.ObjectType
	OriginPredicate Predicate
	TargetPredicate Predicate
	// OutCardinality bounds, per origin node, how many edges of EdgeType
	// may originate from it under this rule.
	OutCardinality Cardinality
	// InCardinality bounds, per target node, how many edges of EdgeType
	// may terminate at it under this rule.
	InCardinality Cardinality
}

// Trait names recognized by the binder (spec §3).
const (
	TraitFormula           = "Formula"
	TraitStock             = "Stock"
	TraitFlowRate          = "FlowRate"
	TraitGraphicalFunction = "GraphicalFunction"
	TraitDelay             = "Delay"
	TraitSmooth            = "Smooth"
	TraitSimulation        = "Simulation"
	TraitNamed             = "Named"
)

// typeTraits is the fixed association between an object type and the set of
// traits every instance of that type carries. This is the "attribute
// schema" half of spec §4.1; edge rules are the other half.
var typeTraits = map[graph.ObjectType][]string{
	graph.TypeStock:             {TraitNamed, TraitFormula, TraitStock},
	graph.TypeFlowRate:          {TraitNamed, TraitFormula, TraitFlowRate},
	graph.TypeAuxiliary:         {TraitNamed, TraitFormula},
	graph.TypeGraphicalFunction: {TraitNamed, TraitGraphicalFunction},
	graph.TypeDelay:             {TraitNamed, TraitDelay},
	graph.TypeSmooth:            {TraitNamed, TraitSmooth},
	graph.TypeSimulation:        {TraitSimulation},
}

// Metamodel is the closed, versioned declaration of object types, traits,
// and edge rules consulted by the constraint checker, name resolver, and
// binder. It is process-wide read-only configuration (spec §5): build one
// with Default() before any Compile call and never mutate it afterward.
type Metamodel struct {
	EdgeRules []EdgeRule
}

// Traits returns the trait set for a given object type.
func (m *Metamodel) Traits(typ graph.ObjectType) map[string]bool {
	out := make(map[string]bool)
	for _, t := range typeTraits[typ] {
		out[t] = true
	}
	return out
}

// HasTrait reports whether typ carries the named trait.
func (m *Metamodel) HasTrait(typ graph.ObjectType, trait string) bool {
	for _, t := range typeTraits[typ] {
		if t == trait {
			return true
		}
	}
	return false
}

// RulesFor returns the edge rules declared for a given edge type.
func (m *Metamodel) RulesFor(edgeType graph.ObjectType) []EdgeRule {
	var out []EdgeRule
	for _, r := range m.EdgeRules {
		if r.EdgeType == edgeType {
			out = append(out, r)
		}
	}
	return out
}

// computedOrCloud matches anything the Flow edge may touch at its drain or
// fill endpoint: a Stock, or the Cloud sentinel for an unbounded source/sink
// (spec §3 invariants, "the flow is valid only if it connects to a Cloud").
func computedOrCloud() Predicate {
	return Or(IsType(graph.TypeStock), IsType(graph.TypeCloud))
}

// parameterSource matches anything a Parameter edge may originate from: any
// computed object, or a Simulation node exposing time/time_delta-derived
// constants.
func parameterSource() Predicate {
	return Or(
		HasTrait(TraitFormula),
		IsType(graph.TypeStock),
		IsType(graph.TypeGraphicalFunction),
		IsType(graph.TypeDelay),
		IsType(graph.TypeSmooth),
		IsType(graph.TypeSimulation),
	)
}

// parameterTarget matches anything a Parameter edge may terminate at: any
// computed object (formula-bearing, or one of the three special unnamed-
// parameter kinds).
func parameterTarget() Predicate {
	return Or(
		HasTrait(TraitFormula),
		IsType(graph.TypeGraphicalFunction),
		IsType(graph.TypeDelay),
		IsType(graph.TypeSmooth),
	)
}

// Default builds the single canonical metamodel used throughout this
// module (see DESIGN.md's resolution of spec §9's Open Question about two
// coexisting metamodel variants).
func Default() *Metamodel {
	return &Metamodel{
		EdgeRules: []EdgeRule{
			{
				// drains: a Stock/Cloud may feed many flows; a FlowRate
				// accepts at most one drain edge (spec §4.5).
				EdgeType:        graph.TypeFlow,
				OriginPredicate: computedOrCloud(),
				TargetPredicate: IsType(graph.TypeFlowRate),
				OutCardinality:  CardinalityMany,
				InCardinality:   CardinalityOne,
			},
			{
				// fills: a FlowRate fills at most one Stock/Cloud; a
				// Stock/Cloud may be filled by many flows (spec §4.5).
				EdgeType:        graph.TypeFlow,
				OriginPredicate: IsType(graph.TypeFlowRate),
				TargetPredicate: computedOrCloud(),
				OutCardinality:  CardinalityOne,
				InCardinality:   CardinalityMany,
			},
			{
				EdgeType:        graph.TypeParameter,
				OriginPredicate: parameterSource(),
				TargetPredicate: parameterTarget(),
				OutCardinality:  CardinalityMany,
				InCardinality:   CardinalityMany,
			},
		},
	}
}
