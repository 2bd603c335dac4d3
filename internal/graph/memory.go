package graph

import "github.com/google/uuid"

// MemoryFrame is a minimal in-memory Frame, used by the CLI and by compiler
// tests so the core is exercisable without a real external graph store
// (spec §1, "treated as an external graph provider"). Grounded on the
// teacher's arena-of-maps-by-UUID aggregate (workflow holding
// map[uuid.UUID]*node / map[uuid.UUID]*edge): the frame owns the storage,
// every other component resolves through ObjectID (spec §9, "Ordered graphs
// without cycles in stateless data").
type MemoryFrame struct {
	nodes map[ObjectID]NodeRecord
	edges map[ObjectID]EdgeRecord

	order      []ObjectID // node insertion order, for deterministic Nodes()
	edgeOrder  []ObjectID
	incoming   map[ObjectID][]ObjectID
	outgoing   map[ObjectID][]ObjectID
}

// NewMemoryFrame creates an empty frame.
func NewMemoryFrame() *MemoryFrame {
	return &MemoryFrame{
		nodes:    make(map[ObjectID]NodeRecord),
		edges:    make(map[ObjectID]EdgeRecord),
		incoming: make(map[ObjectID][]ObjectID),
		outgoing: make(map[ObjectID][]ObjectID),
	}
}

// AddNode inserts a node, minting a new ObjectID if id is the nil UUID.
func (f *MemoryFrame) AddNode(id ObjectID, typ ObjectType, attrs map[string]Attribute) ObjectID {
	if id == NilID {
		id = uuid.New()
	}
	if attrs == nil {
		attrs = map[string]Attribute{}
	}
	if _, exists := f.nodes[id]; !exists {
		f.order = append(f.order, id)
	}
	f.nodes[id] = NodeRecord{ID: id, Type: typ, Attributes: attrs}
	return id
}

// AddEdge inserts an edge, minting a new ObjectID if id is the nil UUID.
func (f *MemoryFrame) AddEdge(id ObjectID, typ ObjectType, originID, targetID ObjectID, attrs map[string]Attribute) ObjectID {
	if id == NilID {
		id = uuid.New()
	}
	if attrs == nil {
		attrs = map[string]Attribute{}
	}
	if _, exists := f.edges[id]; !exists {
		f.edgeOrder = append(f.edgeOrder, id)
	}
	f.edges[id] = EdgeRecord{ID: id, Type: typ, OriginID: originID, TargetID: targetID, Attributes: attrs}
	f.outgoing[originID] = append(f.outgoing[originID], id)
	f.incoming[targetID] = append(f.incoming[targetID], id)
	return id
}

// Nodes returns all nodes in insertion order.
func (f *MemoryFrame) Nodes() []NodeRecord {
	out := make([]NodeRecord, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, f.nodes[id])
	}
	return out
}

// Edges returns all edges in insertion order.
func (f *MemoryFrame) Edges() []EdgeRecord {
	out := make([]EdgeRecord, 0, len(f.edgeOrder))
	for _, id := range f.edgeOrder {
		out = append(out, f.edges[id])
	}
	return out
}

// Incoming returns edges terminating at id, in insertion order.
func (f *MemoryFrame) Incoming(id ObjectID) []EdgeRecord {
	ids := f.incoming[id]
	out := make([]EdgeRecord, 0, len(ids))
	for _, eid := range ids {
		out = append(out, f.edges[eid])
	}
	return out
}

// Outgoing returns edges originating at id, in insertion order.
func (f *MemoryFrame) Outgoing(id ObjectID) []EdgeRecord {
	ids := f.outgoing[id]
	out := make([]EdgeRecord, 0, len(ids))
	for _, eid := range ids {
		out = append(out, f.edges[eid])
	}
	return out
}

// Attribute looks up a named attribute on a node or edge.
func (f *MemoryFrame) Attribute(id ObjectID, name string) (Attribute, bool) {
	if n, ok := f.nodes[id]; ok {
		a, ok := n.Attributes[name]
		return a, ok
	}
	if e, ok := f.edges[id]; ok {
		a, ok := e.Attributes[name]
		return a, ok
	}
	return Attribute{}, false
}

// Node returns the node record for id, if any.
func (f *MemoryFrame) Node(id ObjectID) (NodeRecord, bool) {
	n, ok := f.nodes[id]
	return n, ok
}
