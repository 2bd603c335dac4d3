// Package constraints implements the constraint checker (spec §4.1 B):
// validating a frame against the metamodel's edge rules and cardinality
// bounds. Grounded on the teacher's closed-enum validation style
// (domain.EdgeType.IsValid) generalized to data-driven rules instead of a
// switch statement, per spec §9 "Metamodel as data".
package constraints

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/smilemakc/stockflow/internal/domain"
	"github.com/smilemakc/stockflow/internal/graph"
	"github.com/smilemakc/stockflow/internal/metamodel"
)

// Check validates every edge in the frame against the metamodel and reports
// one issue per violating edge, attached to the edge's own object ID (spec
// §4.1: "no_rule_satisfied, cardinality_violation(rule, direction),
// edge_not_allowed").
func Check(f graph.Frame, mm *metamodel.Metamodel, report *domain.IssueReport) {
	nodeType := make(map[uuid.UUID]graph.ObjectType)
	for _, n := range f.Nodes() {
		nodeType[n.ID] = n.Type
	}
	// An edge endpoint of graph.NilID is the Cloud sentinel.
	nodeType[graph.NilID] = graph.TypeCloud

	// outCount/inCount track, per (edgeType, endpointID, direction), how
	// many edges of that type touch that endpoint — the per-endpoint
	// cardinality the spec requires (§4.1: "computed per-endpoint as the
	// count of edges of the same type in the same direction").
	outCount := make(map[string]int)
	inCount := make(map[string]int)
	for _, e := range f.Edges() {
		outCount[cardinalityKey(e.Type, e.OriginID)]++
		inCount[cardinalityKey(e.Type, e.TargetID)]++
	}

	for _, e := range f.Edges() {
		rules := mm.RulesFor(e.Type)
		if len(rules) == 0 {
			report.Add(e.ID, domain.Issue{
				Identifier: e.ID.String(),
				Severity:   domain.SeverityError,
				Error: domain.IssueKind{
					Code: domain.ErrCodeEdgeRuleViolation,
					Rule: "edge_not_allowed",
				},
			})
			continue
		}

		originTraits := mm.Traits(nodeType[e.OriginID])
		targetTraits := mm.Traits(nodeType[e.TargetID])

		var satisfied bool
		var cardinalityFailure *domain.Issue
		for _, rule := range rules {
			if !rule.OriginPredicate.Matches(nodeType[e.OriginID], originTraits) {
				continue
			}
			if !rule.TargetPredicate.Matches(nodeType[e.TargetID], targetTraits) {
				continue
			}
			// Structure matches; check cardinality at both endpoints.
			out := outCount[cardinalityKey(e.Type, e.OriginID)]
			in := inCount[cardinalityKey(e.Type, e.TargetID)]
			if !rule.OutCardinality.Allows(out) {
				cardinalityFailure = &domain.Issue{
					Identifier: e.ID.String(),
					Severity:   domain.SeverityError,
					Error: domain.IssueKind{
						Code: domain.ErrCodeEdgeRuleViolation,
						Rule: "cardinality_violation:" + string(metamodel.DirectionOutgoing),
					},
				}
				continue
			}
			if !rule.InCardinality.Allows(in) {
				cardinalityFailure = &domain.Issue{
					Identifier: e.ID.String(),
					Severity:   domain.SeverityError,
					Error: domain.IssueKind{
						Code: domain.ErrCodeEdgeRuleViolation,
						Rule: "cardinality_violation:" + string(metamodel.DirectionIncoming),
					},
				}
				continue
			}
			satisfied = true
			break
		}

		if satisfied {
			continue
		}
		if cardinalityFailure != nil {
			report.Add(e.ID, *cardinalityFailure)
			continue
		}
		report.Add(e.ID, domain.Issue{
			Identifier: e.ID.String(),
			Severity:   domain.SeverityError,
			Error: domain.IssueKind{
				Code: domain.ErrCodeEdgeRuleViolation,
				Rule: "no_rule_satisfied",
			},
		})
	}
}

func cardinalityKey(edgeType graph.ObjectType, endpoint uuid.UUID) string {
	return fmt.Sprintf("%s:%s", edgeType, endpoint)
}
