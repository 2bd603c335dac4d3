// Package parameters implements the parameter resolver (spec §4.4,
// component E): matching each formula's free variable names against its
// incoming Parameter edges. Grounded on the teacher's variable_binder.go,
// which resolves a node's required inputs against what its parents actually
// provide (resolveSourcePath, getAdditionalSources) and reports a
// NotFound/missing-binding error per unmatched name; this package keeps that
// required-vs-provided matching but resolves against Parameter edges
// instead of a runtime VariableSet.
package parameters

import (
	"github.com/google/uuid"
	"github.com/smilemakc/stockflow/internal/compiler/names"
	"github.com/smilemakc/stockflow/internal/domain"
	"github.com/smilemakc/stockflow/internal/graph"
	"github.com/smilemakc/stockflow/internal/metamodel"
)

// Binding is the resolved source object for one free name in a formula.
type Binding struct {
	Name     string
	SourceID graph.ObjectID
}

// Resolve matches ownerID's free names against the objects reachable via its
// incoming Parameter edges, using nameLookup (from the name resolver) to
// turn each edge's source into a name. GraphicalFunction, Delay, and Smooth
// objects take a single unnamed parameter — the one incoming Parameter edge
// with no corresponding free name — per spec §4.4's "unnamed-parameter
// special case".
func Resolve(
	f graph.Frame,
	mm *metamodel.Metamodel,
	ownerID graph.ObjectID,
	ownerType graph.ObjectType,
	free []string,
	nameLookup map[string]graph.ObjectID,
	report *domain.IssueReport,
) []Binding {
	idByName := make(map[graph.ObjectID]string, len(nameLookup))
	for name, id := range nameLookup {
		idByName[id] = name
	}

	incoming := f.Incoming(ownerID)
	var paramEdges []graph.EdgeRecord
	for _, e := range incoming {
		if e.Type == graph.TypeParameter {
			paramEdges = append(paramEdges, e)
		}
	}

	if mm.HasTrait(ownerType, metamodel.TraitGraphicalFunction) ||
		mm.HasTrait(ownerType, metamodel.TraitDelay) ||
		mm.HasTrait(ownerType, metamodel.TraitSmooth) {
		return resolveUnnamed(ownerID, paramEdges, report)
	}

	provided := make(map[string]graph.ObjectID, len(paramEdges))
	for _, e := range paramEdges {
		if name, ok := idByName[e.OriginID]; ok {
			provided[name] = e.OriginID
		}
	}

	required := make(map[string]bool, len(free))
	for _, n := range free {
		if n == "time" || n == "time_delta" || n == "simulation_step" {
			continue
		}
		required[n] = true
	}

	var bindings []Binding
	for name := range required {
		srcID, ok := provided[name]
		if !ok {
			report.Add(ownerID, domain.Issue{
				Identifier: ownerID.String(),
				Severity:   domain.SeverityError,
				Error:      domain.IssueKind{Code: domain.ErrCodeUnknownParameter, Name: name},
			})
			continue
		}
		bindings = append(bindings, Binding{Name: name, SourceID: srcID})
	}

	for name := range provided {
		if !required[name] {
			report.Add(ownerID, domain.Issue{
				Identifier: ownerID.String(),
				Severity:   domain.SeverityWarning,
				Error:      domain.IssueKind{Code: domain.ErrCodeUnusedInput, Name: name},
			})
		}
	}

	return bindings
}

// resolveUnnamed handles the GraphicalFunction/Delay/Smooth special case: a
// single incoming Parameter edge supplies the object's sole input, with no
// name matching required (spec §4.4).
func resolveUnnamed(ownerID graph.ObjectID, paramEdges []graph.EdgeRecord, report *domain.IssueReport) []Binding {
	switch len(paramEdges) {
	case 0:
		report.Add(ownerID, domain.Issue{
			Identifier: ownerID.String(),
			Severity:   domain.SeverityError,
			Error:      domain.IssueKind{Code: domain.ErrCodeMissingParameter},
		})
		return nil
	case 1:
		return []Binding{{Name: "", SourceID: paramEdges[0].OriginID}}
	default:
		report.Add(ownerID, domain.Issue{
			Identifier: ownerID.String(),
			Severity:   domain.SeverityError,
			Error:      domain.IssueKind{Code: domain.ErrCodeTooManyParameters},
		})
		return nil
	}
}

// NameOf is re-exported for callers building idByName tables elsewhere
// without importing the names package directly.
func NameOf(f graph.Frame, id uuid.UUID) string {
	return names.NameOf(f, id)
}
