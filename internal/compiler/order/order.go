// Package order implements the dependency sorter (spec §4.6, component G):
// a topological sort of the computation graph with a deterministic
// tie-break, plus cycle detection over both the computation graph and the
// stock-flow graph. Grounded on the teacher's graph.go TopologicalSort
// (Kahn's algorithm over in-degree counts) and hasCyclesDFS (recursion-stack
// DFS); Kahn's FIFO queue is replaced with a priority queue ordered by the
// spec's tie-break so the result is reproducible instead of map-iteration
// order, and hasCyclesDFS's boolean result is generalized to also report
// which nodes participate in the cycle.
package order

import (
	"sort"

	"github.com/smilemakc/stockflow/internal/domain"
	"github.com/smilemakc/stockflow/internal/graph"
)

// Kind ranks an object for the tie-break: stocks sort first, then flow
// rates, then everything else (spec §4.6: "stocks sort first, then flow
// rates, then auxiliaries/delays/smooths/graphical functions").
type Kind int

const (
	KindStock Kind = iota
	KindFlowRate
	KindOther
)

// Node is one computed object as seen by the sorter.
type Node struct {
	ObjectID graph.ObjectID
	Kind     Kind
}

// Sort performs a Kahn's-algorithm topological sort over the computation
// graph (edges p -> q meaning "p must be computed before q"), breaking ties
// with (kind, object_id) as required by spec §4.6. Remaining unscheduled
// nodes when the queue empties form one or more cycles; every one of them is
// reported with computation_cycle and the function returns ok=false.
func Sort(nodes []Node, edges map[graph.ObjectID][]graph.ObjectID, report *domain.IssueReport) ([]graph.ObjectID, bool) {
	inDegree := make(map[graph.ObjectID]int, len(nodes))
	byID := make(map[graph.ObjectID]Node, len(nodes))
	for _, n := range nodes {
		inDegree[n.ObjectID] = 0
		byID[n.ObjectID] = n
	}
	for _, targets := range edges {
		for _, t := range targets {
			if _, ok := inDegree[t]; ok {
				inDegree[t]++
			}
		}
	}

	ready := make([]graph.ObjectID, 0, len(nodes))
	for id, deg := range inDegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	sortByTieBreak(ready, byID)

	var result []graph.ObjectID
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		result = append(result, id)

		var freed []graph.ObjectID
		for _, t := range edges[id] {
			if _, ok := inDegree[t]; !ok {
				continue
			}
			inDegree[t]--
			if inDegree[t] == 0 {
				freed = append(freed, t)
			}
		}
		if len(freed) > 0 {
			sortByTieBreak(freed, byID)
			ready = mergeSorted(ready, freed, byID)
		}
	}

	if len(result) == len(nodes) {
		return result, true
	}

	scheduled := make(map[graph.ObjectID]bool, len(result))
	for _, id := range result {
		scheduled[id] = true
	}
	for _, n := range nodes {
		if scheduled[n.ObjectID] {
			continue
		}
		report.Add(n.ObjectID, domain.Issue{
			Identifier: n.ObjectID.String(),
			Severity:   domain.SeverityError,
			Error:      domain.IssueKind{Code: domain.ErrCodeComputationCycle},
		})
	}
	return result, false
}

func sortByTieBreak(ids []graph.ObjectID, byID map[graph.ObjectID]Node) {
	sort.Slice(ids, func(i, j int) bool {
		a, b := byID[ids[i]], byID[ids[j]]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.ObjectID.String() < b.ObjectID.String()
	})
}

// mergeSorted merges two already tie-break-sorted slices, keeping the queue
// sorted without re-sorting it from scratch on every pop.
func mergeSorted(a, b []graph.ObjectID, byID map[graph.ObjectID]Node) []graph.ObjectID {
	if len(a) == 0 {
		return b
	}
	if len(b) == 0 {
		return a
	}
	out := make([]graph.ObjectID, 0, len(a)+len(b))
	i, j := 0, 0
	less := func(x, y graph.ObjectID) bool {
		nx, ny := byID[x], byID[y]
		if nx.Kind != ny.Kind {
			return nx.Kind < ny.Kind
		}
		return nx.ObjectID.String() < ny.ObjectID.String()
	}
	for i < len(a) && j < len(b) {
		if less(a[i], b[j]) {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}

// FlowEdge is one FlowRate's drain/fill pair, used to build the stock-flow
// graph (spec §4.6: "nodes are stocks, edges are flow rates with
// drains -> fills").
type FlowEdge struct {
	Drains graph.ObjectID
	Fills  graph.ObjectID
}

// CheckFlowCycles detects cycles in the stock-flow graph and reports
// flow_cycle on every participating stock, unless the cycle is broken by a
// stock carrying delayed_inflow = true (spec §4.6).
func CheckFlowCycles(stockIDs []graph.ObjectID, flowEdges []FlowEdge, delayedInflow map[graph.ObjectID]bool, report *domain.IssueReport) {
	adj := make(map[graph.ObjectID][]graph.ObjectID, len(stockIDs))
	for _, id := range stockIDs {
		adj[id] = nil
	}
	for _, e := range flowEdges {
		if delayedInflow[e.Fills] {
			// This stock treats its previous-step value as the input to
			// flows into it; the dependency is broken here.
			continue
		}
		adj[e.Drains] = append(adj[e.Drains], e.Fills)
	}

	visited := make(map[graph.ObjectID]bool, len(stockIDs))
	onStack := make(map[graph.ObjectID]bool, len(stockIDs))
	var stack []graph.ObjectID

	var cycles [][]graph.ObjectID
	var walk func(id graph.ObjectID)
	walk = func(id graph.ObjectID) {
		visited[id] = true
		onStack[id] = true
		stack = append(stack, id)

		for _, next := range adj[id] {
			if !visited[next] {
				walk(next)
			} else if onStack[next] {
				cycles = append(cycles, extractCycle(stack, next))
			}
		}

		onStack[id] = false
		stack = stack[:len(stack)-1]
	}

	for _, id := range stockIDs {
		if !visited[id] {
			walk(id)
		}
	}

	for _, cycle := range cycles {
		for _, id := range cycle {
			report.Add(id, domain.Issue{
				Identifier: id.String(),
				Severity:   domain.SeverityError,
				Error:      domain.IssueKind{Code: domain.ErrCodeFlowCycle},
			})
		}
	}
}

func extractCycle(stack []graph.ObjectID, start graph.ObjectID) []graph.ObjectID {
	for i, id := range stack {
		if id == start {
			out := make([]graph.ObjectID, len(stack)-i)
			copy(out, stack[i:])
			return out
		}
	}
	return nil
}
