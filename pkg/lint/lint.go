// Package lint provides static analysis for form documents.
// It detects configuration problems and suspicious logic without evaluating
// any submission.
package lint

import (
	"fmt"
	"strings"

	"github.com/dlovans/formlogic/pkg/formlogic"
)

// Issue represents a problem found during static analysis.
type Issue struct {
	Severity string `json:"severity"` // "error", "warning"
	Field    string `json:"field,omitempty"`
	Rule     string `json:"rule,omitempty"`
	Message  string `json:"message"`
}

// Result contains all issues found by the linter.
type Result struct {
	Valid  bool    `json:"valid"`
	Issues []Issue `json:"issues"`
}

// Run decodes and compiles a form document (JSON or YAML) and analyses it.
// Only an undecodable document is an error; everything else is an issue.
func Run(data []byte, reg *formlogic.Registry) (*Result, error) {
	doc, err := formlogic.DecodeDocument(data)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}

	result := &Result{
		Valid:  true,
		Issues: make([]Issue, 0),
	}
	form, err := formlogic.Compile(doc, reg)
	if err != nil {
		result.addError("", "", err.Error())
		return result, nil
	}
	result.merge(Check(form))
	return result, nil
}

// Check analyses a compiled form.
func Check(form *formlogic.Form) *Result {
	result := &Result{
		Valid:  true,
		Issues: make([]Issue, 0),
	}

	// Check 1: configuration errors recorded while compiling
	for _, ce := range form.ConfigErrors() {
		result.addError(ce.Field, ce.Source, ce.Message)
	}

	// Check 2: acceptance window
	if err := form.CheckWindow(); err != nil {
		result.addError("", "", err.Error())
	}

	defined := make(map[string]bool, len(form.Fields))
	for _, f := range form.Fields {
		defined[f.ID] = true
	}

	shown := make(map[string]bool)
	for _, f := range form.Fields {
		if f.Type == "" {
			result.addWarning(f.ID, "", fmt.Sprintf("field '%s' has no type specified", f.ID))
		}

		for _, b := range blocks(f) {
			var refs []string
			if b.logic.Condition != nil {
				refs = b.logic.Condition.Fields(nil)
			}

			// Check 3: references to fields the form does not define
			for _, ref := range unique(refs) {
				switch {
				case !defined[ref]:
					result.addError(f.ID, b.name, fmt.Sprintf("undefined field '%s' in condition", ref))
				case ref == f.ID:
					// Check 4: a field whose own value drives its state
					result.addWarning(f.ID, b.name, fmt.Sprintf(
						"field '%s' conditions on its own value and may oscillate", f.ID))
				}
			}

			// Check 5: actions in one list that undo each other
			for _, msg := range contradictions(b.logic.Actions) {
				result.addWarning(f.ID, b.name, msg)
			}

			for _, a := range b.logic.Actions {
				if a.Kind == formlogic.ActionShow {
					shown[f.ID] = true
				}
			}
		}
	}

	// Check 6: fields hidden by default that nothing ever shows
	for _, f := range form.Fields {
		if f.Hidden && !shown[f.ID] {
			result.addWarning(f.ID, "", fmt.Sprintf("field '%s' is hidden and no rule shows it", f.ID))
		}
	}

	// Check 7: cross-field dependency cycles
	for _, cycle := range findCycles(form.Fields) {
		result.addWarning(cycle[0], "", fmt.Sprintf(
			"conditional logic cycle %s may not settle", strings.Join(cycle, " -> ")))
	}

	return result
}

type block struct {
	name  string
	logic formlogic.ConditionalLogic
}

// blocks names each piece of a field's logic the way config errors do.
func blocks(f *formlogic.FieldDefinition) []block {
	var out []block
	if f.Logic != nil {
		out = append(out, block{name: "conditional_logic", logic: *f.Logic})
	}
	for i, r := range f.Rules {
		out = append(out, block{name: fmt.Sprintf("rules[%d]", i), logic: r})
	}
	return out
}

func contradictions(actions []formlogic.Action) []string {
	seen := make(map[formlogic.ActionKind]bool, len(actions))
	setValues := 0
	for _, a := range actions {
		seen[a.Kind] = true
		if a.Kind == formlogic.ActionSetValue {
			setValues++
		}
	}

	var out []string
	if seen[formlogic.ActionShow] && seen[formlogic.ActionHide] {
		out = append(out, "actions both show and hide the field; the last one wins")
	}
	if seen[formlogic.ActionRequire] && seen[formlogic.ActionOptional] {
		out = append(out, "actions both require and make the field optional; the last one wins")
	}
	if setValues > 1 {
		out = append(out, fmt.Sprintf("%d set_value actions; only the last one takes effect", setValues))
	}
	return out
}

// findCycles returns each dependency cycle between distinct fields once, as a
// path that starts and ends at the same field. Self references are excluded.
func findCycles(fields []*formlogic.FieldDefinition) [][]string {
	deps := make(map[string][]string, len(fields))
	for _, f := range fields {
		deps[f.ID] = f.References()
	}

	const (
		unvisited = iota
		active
		done
	)
	state := make(map[string]int, len(fields))
	var (
		stack  []string
		cycles [][]string
		visit  func(id string)
	)
	visit = func(id string) {
		state[id] = active
		stack = append(stack, id)
		for _, dep := range deps[id] {
			if dep == id {
				continue
			}
			if _, ok := deps[dep]; !ok {
				continue
			}
			switch state[dep] {
			case unvisited:
				visit(dep)
			case active:
				start := len(stack) - 1
				for stack[start] != dep {
					start--
				}
				cycle := append([]string(nil), stack[start:]...)
				cycles = append(cycles, append(cycle, dep))
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = done
	}

	for _, f := range fields {
		if state[f.ID] == unvisited {
			visit(f.ID)
		}
	}
	return cycles
}

func unique(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func (r *Result) merge(o *Result) {
	r.Valid = r.Valid && o.Valid
	r.Issues = append(r.Issues, o.Issues...)
}

func (r *Result) addError(field, rule, message string) {
	r.Valid = false
	r.Issues = append(r.Issues, Issue{
		Severity: "error",
		Field:    field,
		Rule:     rule,
		Message:  message,
	})
}

func (r *Result) addWarning(field, rule, message string) {
	r.Issues = append(r.Issues, Issue{
		Severity: "warning",
		Field:    field,
		Rule:     rule,
		Message:  message,
	})
}
