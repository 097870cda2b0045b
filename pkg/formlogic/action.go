package formlogic

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
	"github.com/expr-lang/expr/vm"
)

// ActionKind is the closed set of conditional-logic actions.
type ActionKind string

const (
	ActionShow     ActionKind = "show"
	ActionHide     ActionKind = "hide"
	ActionRequire  ActionKind = "require"
	ActionOptional ActionKind = "optional"
	ActionSetValue ActionKind = "set_value"
)

// Action is one effect applied to the owning field when its condition holds.
type Action struct {
	Kind  ActionKind
	Value Value  // literal for set_value
	Expr  string // expression source for set_value, when computed

	program *vm.Program
	reads   []string // identifiers the expression reads
}

func Show() Action { return Action{Kind: ActionShow} }
func Hide() Action { return Action{Kind: ActionHide} }
func Require() Action { return Action{Kind: ActionRequire} }
func Optional() Action { return Action{Kind: ActionOptional} }
func SetValue(v Value) Action { return Action{Kind: ActionSetValue, Value: v} }

// SetValueExpr compiles an expr-lang expression evaluated against the current
// view of field values, keyed by field id.
func SetValueExpr(source string) (Action, error) {
	program, err := expr.Compile(source, expr.AllowUndefinedVariables())
	if err != nil {
		return Action{}, fmt.Errorf("set_value expression: %w", err)
	}
	tree, err := parser.Parse(source)
	if err != nil {
		return Action{}, fmt.Errorf("set_value expression: %w", err)
	}
	var idents identifiers
	ast.Walk(&tree.Node, &idents)
	return Action{Kind: ActionSetValue, Expr: source, program: program, reads: idents}, nil
}

// identifiers collects the names an expression reads.
type identifiers []string

func (ids *identifiers) Visit(node *ast.Node) {
	if n, ok := (*node).(*ast.IdentifierNode); ok {
		*ids = append(*ids, n.Value)
	}
}

// computed resolves a set_value action against env.
func (a Action) computed(env map[string]any) (Value, error) {
	if a.Expr == "" {
		return a.Value, nil
	}
	program := a.program
	if program == nil {
		var err error
		if program, err = expr.Compile(a.Expr, expr.AllowUndefinedVariables()); err != nil {
			return Value{}, err
		}
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return Value{}, err
	}
	return ValueOf(out), nil
}

// ConditionalLogic pairs a condition with the actions applied when it holds.
// A field's conditional_logic and each of its standalone rules compile to one.
type ConditionalLogic struct {
	Condition Condition
	Actions   []Action
}
