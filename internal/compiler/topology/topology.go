// Package topology implements the flow/stock topology builder (spec §4.5,
// component F): per-flow drain/fill links and per-stock inflow/outflow
// sets. Grounded on the teacher's graph.go WorkflowGraph, which builds
// forward/reverse adjacency maps once from a flat edge list and answers
// GetNextNodes/GetPreviousNodes from them; this package builds the same
// shape of adjacency but keyed by Flow-edge direction (drains vs. fills)
// instead of generic successor/predecessor.
package topology

import (
	"sort"

	"github.com/smilemakc/stockflow/internal/domain"
	"github.com/smilemakc/stockflow/internal/graph"
)

// Flow is one FlowRate node's resolved drain/fill topology (spec §4.5:
// "the drains link is the source of an incoming Flow edge... the fills link
// is the target of an outgoing Flow edge"). A nil Drains/Fills means the
// flow connects to the Cloud sentinel on that side.
type Flow struct {
	ObjectID graph.ObjectID
	Priority int
	Drains   *graph.ObjectID
	Fills    *graph.ObjectID
}

// Stock is one Stock node's resolved inflow/outflow sets, with outflows
// ordered per spec §4.5: "(priority ascending, object_id as tiebreak) — this
// is binding for the non-negativity adjustment in §4.9".
type Stock struct {
	ObjectID  graph.ObjectID
	Inflows   []graph.ObjectID // FlowRate IDs that fill this stock
	Outflows  []graph.ObjectID // FlowRate IDs that drain this stock, priority-ordered
}

// Build computes the Flow and Stock topology for every FlowRate/Stock node
// in the frame.
func Build(f graph.Frame, flowRateIDs, stockIDs []graph.ObjectID, report *domain.IssueReport) (map[graph.ObjectID]Flow, map[graph.ObjectID]Stock) {
	flows := make(map[graph.ObjectID]Flow, len(flowRateIDs))
	for _, id := range flowRateIDs {
		flows[id] = buildFlow(f, id)
	}

	stocks := make(map[graph.ObjectID]Stock, len(stockIDs))
	for _, sid := range stockIDs {
		stocks[sid] = Stock{ObjectID: sid}
	}

	for fid, fl := range flows {
		if fl.Fills != nil {
			if s, ok := stocks[*fl.Fills]; ok {
				s.Inflows = append(s.Inflows, fid)
				stocks[*fl.Fills] = s
			}
		}
		if fl.Drains != nil {
			if s, ok := stocks[*fl.Drains]; ok {
				s.Outflows = append(s.Outflows, fid)
				stocks[*fl.Drains] = s
			}
		}
	}

	for sid, s := range stocks {
		sortByPriority(s.Outflows, flows)
		sortByPriority(s.Inflows, flows)
		stocks[sid] = s
	}

	return flows, stocks
}

func buildFlow(f graph.Frame, id graph.ObjectID) Flow {
	fl := Flow{
		ObjectID: id,
		Priority: graph.IntAttr(f, id, "priority", 0),
	}
	for _, e := range f.Incoming(id) {
		if e.Type != graph.TypeFlow {
			continue
		}
		origin := e.OriginID
		fl.Drains = &origin
	}
	for _, e := range f.Outgoing(id) {
		if e.Type != graph.TypeFlow {
			continue
		}
		target := e.TargetID
		fl.Fills = &target
	}
	return fl
}

// sortByPriority orders a slice of FlowRate IDs by (priority ascending,
// object_id as tiebreak), mutating it in place (spec §4.5).
func sortByPriority(ids []graph.ObjectID, flows map[graph.ObjectID]Flow) {
	sort.Slice(ids, func(i, j int) bool {
		a, b := flows[ids[i]], flows[ids[j]]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return a.ObjectID.String() < b.ObjectID.String()
	})
}
