// Package names implements the name resolver (spec §4.2): collecting named
// objects, trimming whitespace, rejecting empty or duplicate names, and
// reserving the built-in names. Grounded on the teacher's collision-
// grouping idiom (variable_binder.go's mergeMultipleParents /
// CollisionStrategyCollect, which buckets same-key outputs before deciding
// how to resolve the collision) generalized from map-merge to name
// uniqueness.
package names

import (
	"strings"

	"github.com/google/uuid"
	"github.com/smilemakc/stockflow/internal/domain"
	"github.com/smilemakc/stockflow/internal/graph"
)

// Builtins are the reserved, pre-declared names (spec §4.2, §4.7).
var Builtins = []string{"time", "time_delta", "simulation_step"}

func isBuiltin(name string) bool {
	for _, b := range Builtins {
		if b == name {
			return true
		}
	}
	return false
}

// Resolve walks every node carrying a "name" attribute, trims whitespace,
// and returns a lookup from trimmed name to object ID. Objects with an
// empty name or a name colliding with another object (or a builtin) are
// reported and excluded from the lookup (spec §4.2).
func Resolve(f graph.Frame, report *domain.IssueReport) map[string]graph.ObjectID {
	groups := make(map[string][]graph.ObjectID)

	for _, n := range f.Nodes() {
		raw, ok := f.Attribute(n.ID, "name")
		if !ok || raw.Type != graph.AttrString {
			continue
		}
		trimmed := strings.TrimSpace(raw.String)
		if trimmed == "" {
			report.Add(n.ID, domain.Issue{
				Identifier: n.ID.String(),
				Severity:   domain.SeverityError,
				Error:      domain.IssueKind{Code: domain.ErrCodeEmptyName},
			})
			continue
		}
		groups[trimmed] = append(groups[trimmed], n.ID)
	}

	lookup := make(map[string]graph.ObjectID, len(groups))
	for name, ids := range groups {
		if isBuiltin(name) || len(ids) > 1 {
			for _, id := range ids {
				report.Add(id, domain.Issue{
					Identifier: id.String(),
					Severity:   domain.SeverityError,
					Error:      domain.IssueKind{Code: domain.ErrCodeDuplicateName, Name: name},
				})
			}
			continue
		}
		lookup[name] = ids[0]
	}

	return lookup
}

// NameOf returns the trimmed name attribute of an object, or "" if absent.
func NameOf(f graph.Frame, id uuid.UUID) string {
	raw, ok := f.Attribute(id, "name")
	if !ok || raw.Type != graph.AttrString {
		return ""
	}
	return strings.TrimSpace(raw.String)
}
