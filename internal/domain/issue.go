package domain

import "github.com/google/uuid"

// Severity classifies an Issue (spec §6, §7).
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// SourceRange locates a syntax issue inside a formula string (spec §4.3,
// §6: "offset, and line").
type SourceRange struct {
	Offset int
	Line   int
}

// IssueKind is the closed taxonomy of diagnoses the compiler can attach to
// an object (spec §6, "IssueKind taxonomy (closed set)"). Fields that carry
// a payload (a name, a message) are plain strings rather than a parsed sum
// type — the kind itself already discriminates, matching the teacher's flat
// string-enum style (domain.EdgeType, domain.NodeStatus) instead of a
// polymorphic hierarchy.
type IssueKind struct {
	Code string // one of the ErrCode* constants in errors.go
	Name string // the relevant name, for duplicate_name/unknown_parameter/unused_input/unknown_function/unknown_variable
	Rule string // the relevant rule or direction, for cardinality_violation/edge_rule_violation
	Want string // expected type, for type_mismatch
	Got  string // actual type, for type_mismatch
}

// Issue is one diagnostic attached to an object (spec §6).
type Issue struct {
	Identifier string
	Severity   Severity
	Error      IssueKind
	Location   *SourceRange
}

// IssueReport accumulates diagnostics per object across every compiler
// phase (spec §7: "accumulates diagnostics across all phases rather than
// aborting at the first failure").
type IssueReport struct {
	byObject map[uuid.UUID][]Issue
	order    []uuid.UUID
}

// NewIssueReport creates an empty report.
func NewIssueReport() *IssueReport {
	return &IssueReport{byObject: make(map[uuid.UUID][]Issue)}
}

// Add attaches an issue to an object.
func (r *IssueReport) Add(objectID uuid.UUID, issue Issue) {
	if _, ok := r.byObject[objectID]; !ok {
		r.order = append(r.order, objectID)
	}
	r.byObject[objectID] = append(r.byObject[objectID], issue)
}

// For returns the issues attached to an object, if any.
func (r *IssueReport) For(objectID uuid.UUID) []Issue {
	return r.byObject[objectID]
}

// HasErrors reports whether any attached issue has error severity (spec §7:
// "returns success only if issues is empty... any error kind... prevents
// plan emission; warning kinds... do not").
func (r *IssueReport) HasErrors() bool {
	for _, issues := range r.byObject {
		for _, i := range issues {
			if i.Severity == SeverityError {
				return true
			}
		}
	}
	return false
}

// IsEmpty reports whether the report carries no issues at all.
func (r *IssueReport) IsEmpty() bool {
	return len(r.byObject) == 0
}

// All returns a copy of the issues keyed by every object ID that carries at
// least one; as a map, it does not preserve the order issues were attached.
func (r *IssueReport) All() map[uuid.UUID][]Issue {
	out := make(map[uuid.UUID][]Issue, len(r.byObject))
	for _, id := range r.order {
		out[id] = r.byObject[id]
	}
	return out
}

// Excluded reports whether objectID carries an error-severity issue and
// should therefore be excluded from later phases that would cascade (spec
// §7: "excludes it from later phases that would cascade").
func (r *IssueReport) Excluded(objectID uuid.UUID) bool {
	for _, i := range r.byObject[objectID] {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// CompilerError is the outward result of a failed Compile call (spec §6:
// "CompilerError = internal_error(message) | issues(...)"). Exactly one of
// Internal / Issues is non-nil.
type CompilerError struct {
	Internal *DomainError
	Issues   *IssueReport
}

func (e *CompilerError) Error() string {
	if e.Internal != nil {
		return e.Internal.Error()
	}
	return "compilation failed with diagnostics"
}

func (e *CompilerError) Unwrap() error {
	if e.Internal != nil {
		return e.Internal
	}
	return nil
}
