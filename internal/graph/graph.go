// Package graph declares the read-only frame contract the compiler consumes
// (spec §6, "Graph Provider contract (consumed)") and ships one concrete,
// in-memory implementation for tests and the CLI. The generic graph/object
// store itself — frames, snapshots, transient vs. accepted frames — is out
// of scope (spec §1); this package only needs to let the compiler read one.
package graph

import "github.com/google/uuid"

// ObjectID is the opaque, stable identifier for a node or edge. The frame
// provider mints these; the compiler never does (spec §3, "produced by the
// graph provider, never by the core").
type ObjectID = uuid.UUID

// NilID is the zero ObjectID, used as the Cloud sentinel endpoint (spec §3
// invariants: "a flow is valid only if it connects to a Cloud").
var NilID ObjectID

// ObjectType is the closed set of node/edge types the metamodel reasons
// about (spec §3).
type ObjectType string

const (
	TypeStock            ObjectType = "Stock"
	TypeFlowRate         ObjectType = "FlowRate"
	TypeAuxiliary        ObjectType = "Auxiliary"
	TypeGraphicalFunction ObjectType = "GraphicalFunction"
	TypeDelay            ObjectType = "Delay"
	TypeSmooth           ObjectType = "Smooth"

	TypeFlow      ObjectType = "Flow"
	TypeParameter ObjectType = "Parameter"

	TypeControl      ObjectType = "Control"
	TypeChart        ObjectType = "Chart"
	TypeChartSeries  ObjectType = "ChartSeries"
	TypeValueBinding ObjectType = "ValueBinding"
	TypeNote         ObjectType = "Note"
	TypeComment      ObjectType = "Comment"
	TypeCloud        ObjectType = "Cloud"
	TypeSimulation   ObjectType = "Simulation"
)

// IsComputed reports whether objects of this type carry a runtime value
// computed by the simulator (spec §3, "Computed" object types).
func (t ObjectType) IsComputed() bool {
	switch t {
	case TypeStock, TypeFlowRate, TypeAuxiliary, TypeGraphicalFunction, TypeDelay, TypeSmooth:
		return true
	default:
		return false
	}
}

// IsStructuralEdge reports whether this type connects two other objects
// rather than describing a standalone node.
func (t ObjectType) IsStructuralEdge() bool {
	return t == TypeFlow || t == TypeParameter
}

// AttributeType is the closed set of attribute value kinds a frame provider
// may report (spec §6).
type AttributeType string

const (
	AttrDouble AttributeType = "double"
	AttrInt    AttributeType = "int"
	AttrBool   AttributeType = "bool"
	AttrString AttributeType = "string"
	AttrPoints AttributeType = "points"
)

// Point is a single (x, y) sample of a GraphicalFunction (spec §3).
type Point struct {
	X, Y float64
}

// Attribute is a typed value attached to a node or edge. Exactly one of the
// fields is meaningful, selected by Type — mirrors the closed-sum-type idiom
// the teacher uses for its own tagged variants (domain.DomainError, the
// computation field in spec §9) rather than an `any` grab-bag.
type Attribute struct {
	Type   AttributeType
	Double float64
	Int    int
	Bool   bool
	String string
	Points []Point
}

// NodeRecord is one node as reported by a frame (spec §6 "nodes()").
type NodeRecord struct {
	ID         ObjectID
	Type       ObjectType
	Attributes map[string]Attribute
}

// EdgeRecord is one edge as reported by a frame (spec §6 "edges()").
type EdgeRecord struct {
	ID         ObjectID
	Type       ObjectType
	OriginID   ObjectID
	TargetID   ObjectID
	Attributes map[string]Attribute
}

// Frame is the read-only graph provider contract the compiler consumes
// (spec §6). The generic object/graph store itself is out of scope; only
// this read interface is part of the core's surface.
type Frame interface {
	Nodes() []NodeRecord
	Edges() []EdgeRecord
	Incoming(id ObjectID) []EdgeRecord
	Outgoing(id ObjectID) []EdgeRecord
	Attribute(id ObjectID, name string) (Attribute, bool)
}

// StringAttr fetches a string attribute, returning def when absent or of a
// different type.
func StringAttr(f Frame, id ObjectID, name, def string) string {
	a, ok := f.Attribute(id, name)
	if !ok || a.Type != AttrString {
		return def
	}
	return a.String
}

// DoubleAttr fetches a double attribute, returning def when absent or of a
// different type.
func DoubleAttr(f Frame, id ObjectID, name string, def float64) float64 {
	a, ok := f.Attribute(id, name)
	if !ok || a.Type != AttrDouble {
		return def
	}
	return a.Double
}

// IntAttr fetches an int attribute, returning def when absent or of a
// different type.
func IntAttr(f Frame, id ObjectID, name string, def int) int {
	a, ok := f.Attribute(id, name)
	if !ok || a.Type != AttrInt {
		return def
	}
	return a.Int
}

// BoolAttr fetches a bool attribute, returning def when absent or of a
// different type.
func BoolAttr(f Frame, id ObjectID, name string, def bool) bool {
	a, ok := f.Attribute(id, name)
	if !ok || a.Type != AttrBool {
		return def
	}
	return a.Bool
}

// PointsAttr fetches a points attribute, returning nil when absent or of a
// different type.
func PointsAttr(f Frame, id ObjectID, name string) []Point {
	a, ok := f.Attribute(id, name)
	if !ok || a.Type != AttrPoints {
		return nil
	}
	return a.Points
}
