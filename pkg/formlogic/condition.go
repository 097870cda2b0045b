package formlogic

import (
	"regexp"
)

// Operator is a leaf comparison operator.
type Operator string

const (
	OpEq         Operator = "eq"
	OpNeq        Operator = "neq"
	OpGt         Operator = "gt"
	OpGte        Operator = "gte"
	OpLt         Operator = "lt"
	OpLte        Operator = "lte"
	OpIn         Operator = "in"
	OpNotIn      Operator = "not_in"
	OpRegex      Operator = "regex"
	OpIsEmpty    Operator = "is_empty"
	OpIsNotEmpty Operator = "is_not_empty"
)

func (op Operator) valid() bool {
	switch op {
	case OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte, OpIn, OpNotIn, OpRegex, OpIsEmpty, OpIsNotEmpty:
		return true
	}
	return false
}

// unary operators ignore the literal.
func (op Operator) unary() bool { return op == OpIsEmpty || op == OpIsNotEmpty }

// Condition is a boolean expression over submitted values: a *Leaf, All or Any.
type Condition interface {
	eval(values Values) bool
	// Fields appends the ids referenced by the expression.
	Fields(dst []string) []string
}

// Leaf compares one field's value against a literal.
type Leaf struct {
	Field string
	Op    Operator
	Value Value

	re *regexp.Regexp
}

// All is true iff every child is true. An empty All is true.
type All []Condition

// Any is true iff at least one child is true. An empty Any is false.
type Any []Condition

// NewLeaf builds a leaf, compiling regex literals.
func NewLeaf(field string, op Operator, value Value) (*Leaf, error) {
	l := &Leaf{Field: field, Op: op, Value: value}
	if !op.valid() {
		return nil, &unknownOperatorError{op: string(op)}
	}
	if op == OpRegex {
		pattern, ok := value.Text()
		if !ok {
			return nil, &literalError{op: op, want: "a pattern"}
		}
		re, err := compileAnchored(pattern)
		if err != nil {
			return nil, err
		}
		l.re = re
	}
	return l, nil
}

// Evaluate computes cond against values. It never fails: absent fields read as
// empty and type-incompatible comparisons are false. A nil condition is false.
func Evaluate(cond Condition, values Values) bool {
	if cond == nil {
		return false
	}
	return cond.eval(values)
}

func (l *Leaf) eval(values Values) bool {
	v := values.Get(l.Field)

	switch l.Op {
	case OpIsEmpty:
		return v.IsEmpty()
	case OpIsNotEmpty:
		return !v.IsEmpty()
	case OpEq:
		return v.Equal(l.Value)
	case OpNeq:
		return !v.Equal(l.Value)
	case OpGt:
		return compareNumeric(v, l.Value, func(a, b float64) bool { return a > b })
	case OpGte:
		return compareNumeric(v, l.Value, func(a, b float64) bool { return a >= b })
	case OpLt:
		return compareNumeric(v, l.Value, func(a, b float64) bool { return a < b })
	case OpLte:
		return compareNumeric(v, l.Value, func(a, b float64) bool { return a <= b })
	case OpIn:
		return valueIn(v, l.Value)
	case OpNotIn:
		if l.Value.Kind() != KindList {
			return false
		}
		return !valueIn(v, l.Value)
	case OpRegex:
		text, ok := v.Text()
		if !ok {
			return false
		}
		re := l.re
		if re == nil {
			pattern, ok := l.Value.Text()
			if !ok {
				return false
			}
			var err error
			if re, err = compileAnchored(pattern); err != nil {
				return false
			}
		}
		return re.MatchString(text)
	default:
		return false
	}
}

func (l *Leaf) Fields(dst []string) []string { return append(dst, l.Field) }

func (a All) eval(values Values) bool {
	for _, c := range a {
		if !Evaluate(c, values) {
			return false
		}
	}
	return true
}

func (a All) Fields(dst []string) []string {
	for _, c := range a {
		if c != nil {
			dst = c.Fields(dst)
		}
	}
	return dst
}

func (a Any) eval(values Values) bool {
	for _, c := range a {
		if Evaluate(c, values) {
			return true
		}
	}
	return false
}

func (a Any) Fields(dst []string) []string {
	for _, c := range a {
		if c != nil {
			dst = c.Fields(dst)
		}
	}
	return dst
}

// compareNumeric is false unless both sides coerce to numbers.
func compareNumeric(a, b Value, cmp func(float64, float64) bool) bool {
	x, ok := a.Number()
	if !ok {
		return false
	}
	y, ok := b.Number()
	if !ok {
		return false
	}
	return cmp(x, y)
}

// valueIn checks membership of v in a list literal. A list value is a member
// if any of its elements is.
func valueIn(v, haystack Value) bool {
	items, ok := haystack.List()
	if !ok || v.IsEmpty() {
		return false
	}
	set := ChoicesCheck{Allowed: items}
	if elems, ok := v.List(); ok {
		for _, e := range elems {
			if set.allows(StringValue(e)) {
				return true
			}
		}
		return false
	}
	return set.allows(v)
}

type unknownOperatorError struct{ op string }

func (e *unknownOperatorError) Error() string { return "unknown operator '" + e.op + "'" }

type literalError struct {
	op   Operator
	want string
}

func (e *literalError) Error() string { return "operator " + string(e.op) + " needs " + e.want }
