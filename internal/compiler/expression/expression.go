// Package expression adapts formula strings to an executable representation
// via github.com/expr-lang/expr (spec §4.3, component D). Grounded on the
// teacher's conditions.go ConditionEvaluator, which compiles expr programs
// into a *vm.Program and caches them by source text; this package keeps that
// compile-once idiom but, instead of running the program against a
// string-keyed variable map at call time (conditions.go's Evaluate), hands
// the compiled AST to the parameter resolver and binder so every free name
// is bound to a state-vector slot ahead of time (spec §4.3: "the parser
// performs no name resolution of its own").
package expression

import (
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
	"github.com/expr-lang/expr/vm"
	"github.com/google/uuid"
	"github.com/smilemakc/stockflow/internal/domain"
)

// Expression is a parsed formula: its source text, compiled AST, and the set
// of free variable names it references (spec §4.3: "the set of free
// variable names appearing in the formula").
type Expression struct {
	Source string
	Tree   *ast.Node
	Free   []string
}

// Parse compiles a formula string into an Expression, extracting its free
// variable names without attempting to resolve them (spec §4.3). A syntax
// error is reported as a syntax_error issue attached to ownerID.
func Parse(ownerID uuid.UUID, source string, report *domain.IssueReport) (*Expression, bool) {
	tree, err := parser.Parse(source)
	if err != nil {
		report.Add(ownerID, domain.Issue{
			Identifier: ownerID.String(),
			Severity:   domain.SeverityError,
			Error:      domain.IssueKind{Code: domain.ErrCodeSyntaxError, Name: err.Error()},
		})
		return nil, false
	}

	free := freeNames(tree.Node)
	return &Expression{Source: source, Tree: &tree.Node, Free: free}, true
}

// freeNames walks the AST collecting every identifier that is not a
// function call target and not a builtin expr keyword, mirroring
// conditions.go's normalizeVariables pass but over the parsed tree instead
// of a runtime map.
func freeNames(node ast.Node) []string {
	seen := make(map[string]bool)
	var out []string
	var walk func(ast.Node)
	walk = func(n ast.Node) {
		if n == nil {
			return
		}
		switch v := n.(type) {
		case *ast.IdentifierNode:
			name := v.Value
			if !seen[name] && !isReservedIdentifier(name) {
				seen[name] = true
				out = append(out, name)
			}
		case *ast.BinaryNode:
			walk(v.Left)
			walk(v.Right)
		case *ast.UnaryNode:
			walk(v.Node)
		case *ast.CallNode:
			for _, a := range v.Arguments {
				walk(a)
			}
		case *ast.BuiltinNode:
			for _, a := range v.Arguments {
				walk(a)
			}
		case *ast.ConditionalNode:
			walk(v.Cond)
			walk(v.Exp1)
			walk(v.Exp2)
		case *ast.ChainNode:
			walk(v.Node)
		case *ast.MemberNode:
			walk(v.Node)
		case *ast.ArrayNode:
			for _, e := range v.Nodes {
				walk(e)
			}
		case *ast.PairNode:
			walk(v.Key)
			walk(v.Value)
		case *ast.MapNode:
			for _, p := range v.Pairs {
				walk(p)
			}
		}
	}
	walk(node)
	return out
}

func isReservedIdentifier(name string) bool {
	switch strings.ToLower(name) {
	case "true", "false", "nil":
		return true
	default:
		return false
	}
}

// Compile produces a runnable program from source against the given
// expr.Option environment (used by the binder once every free name has a
// resolved value). Kept separate from Parse so syntax checking (phase D)
// never depends on having an environment ready (phase E/H do).
func Compile(source string, options ...expr.Option) (*vm.Program, error) {
	return expr.Compile(source, options...)
}

// Run executes a compiled program against an environment, the same call
// conditions.go's Evaluate makes against its *vm.Program cache entries.
func Run(program *vm.Program, env any) (any, error) {
	return expr.Run(program, env)
}
