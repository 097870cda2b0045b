package formlogic

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// DefaultMaxIterations bounds the resolver's passes when no cap is configured.
const DefaultMaxIterations = 10

// DerivedState is a field's runtime state after conditional logic.
type DerivedState struct {
	Visible  bool
	Required bool
	// Effective is the value assigned by set_value, nil when none applies.
	Effective *Value
}

func (s DerivedState) equal(o DerivedState) bool {
	if s.Visible != o.Visible || s.Required != o.Required {
		return false
	}
	if s.Effective == nil || o.Effective == nil {
		return s.Effective == nil && o.Effective == nil
	}
	return s.Effective.Kind() == o.Effective.Kind() && s.Effective.Equal(*o.Effective)
}

// Resolution is the outcome of resolving conditional logic for one submission.
type Resolution struct {
	States     map[string]DerivedState
	Iterations int
	Converged  bool
	// Warnings holds cycle and expression warnings per field id.
	Warnings map[string][]Violation
}

// State returns the derived state of id. Unknown ids read as visible and optional.
func (r Resolution) State(id string) DerivedState {
	if s, ok := r.States[id]; ok {
		return s
	}
	return DerivedState{Visible: true}
}

// Resolve computes every field's derived state by repeated passes until the
// state map stops changing or maxIterations passes have run (maxIterations < 1
// means DefaultMaxIterations).
//
// Each pass starts every field from its initial state and applies, in declared
// order, the actions of every condition that holds; the last action wins.
// Fields are resolved dependencies first, and a resolved field's state is
// visible to the fields after it in the same pass: its set_value override is
// substituted and, when hidden, its value is masked to empty. Fields on a
// dependency cycle read each other's state from the previous pass, so an
// acyclic form settles in two passes and only a cycle can reach the cap.
func Resolve(fields []*FieldDefinition, values Values, maxIterations int) Resolution {
	if maxIterations < 1 {
		maxIterations = DefaultMaxIterations
	}

	order := dependencyOrder(fields)
	prev := initialStates(fields)
	res := Resolution{Warnings: make(map[string][]Violation)}

	var exprWarnings map[string][]Violation
	for res.Iterations < maxIterations {
		res.Iterations++
		next, warnings := resolvePass(fields, order, values, prev)
		exprWarnings = warnings
		if statesEqual(prev, next) {
			res.Converged = true
			prev = next
			break
		}
		if res.Iterations == maxIterations {
			for _, f := range fields {
				if !prev[f.ID].equal(next[f.ID]) {
					res.Warnings[f.ID] = append(res.Warnings[f.ID], cycleWarning(maxIterations))
				}
			}
		}
		prev = next
	}

	for _, f := range fields {
		if ws := exprWarnings[f.ID]; len(ws) > 0 {
			res.Warnings[f.ID] = append(ws, res.Warnings[f.ID]...)
		}
	}
	res.States = prev
	return res
}

func initialStates(fields []*FieldDefinition) map[string]DerivedState {
	states := make(map[string]DerivedState, len(fields))
	for _, f := range fields {
		states[f.ID] = DerivedState{Visible: !f.Hidden, Required: f.Validation.Required()}
	}
	return states
}

// buildView is the value map conditions see at the start of a pass.
func buildView(fields []*FieldDefinition, values Values, states map[string]DerivedState) Values {
	view := values.Clone()
	for _, f := range fields {
		expose(view, values, f.ID, states[f.ID])
	}
	return view
}

// expose writes one field's derived state into view.
func expose(view, values Values, id string, s DerivedState) {
	switch {
	case !s.Visible:
		delete(view, id)
	case s.Effective != nil:
		view[id] = *s.Effective
	default:
		if v, ok := values[id]; ok {
			view[id] = v
		} else {
			delete(view, id)
		}
	}
}

func resolvePass(fields []*FieldDefinition, order [][]*FieldDefinition, values Values, prev map[string]DerivedState) (map[string]DerivedState, map[string][]Violation) {
	view := buildView(fields, values, prev)
	states := initialStates(fields)
	var warnings map[string][]Violation

	for _, group := range order {
		// Members of one group read the view as it stood when the group began.
		var env map[string]any
		for _, f := range group {
			s := states[f.ID]
			for _, cl := range f.logic() {
				if !Evaluate(cl.Condition, view) {
					continue
				}
				for _, a := range cl.Actions {
					switch a.Kind {
					case ActionShow:
						s.Visible = true
					case ActionHide:
						s.Visible = false
					case ActionRequire:
						s.Required = true
					case ActionOptional:
						s.Required = false
					case ActionSetValue:
						if a.Expr != "" && env == nil {
							env = expressionEnv(view)
						}
						v, err := a.computed(env)
						if err != nil {
							if warnings == nil {
								warnings = make(map[string][]Violation)
							}
							warnings[f.ID] = append(warnings[f.ID], Violation{
								Code:    CodeExpressionError,
								Message: fmt.Sprintf("set_value expression failed: %v", err),
								Params:  map[string]any{"expr": a.Expr},
							})
							continue
						}
						s.Effective = &v
					}
				}
			}
			states[f.ID] = s
		}
		for _, f := range group {
			expose(view, values, f.ID, states[f.ID])
		}
	}
	return states, warnings
}

// dependencyOrder groups fields into the strongly connected components of the
// graph "field reads field", dependencies before dependents. Members of a
// group keep their declared order.
func dependencyOrder(fields []*FieldDefinition) [][]*FieldDefinition {
	pos := make(map[string]int64, len(fields))
	g := simple.NewDirectedGraph()
	for i, f := range fields {
		if _, dup := pos[f.ID]; dup {
			continue
		}
		pos[f.ID] = int64(i)
		g.AddNode(simple.Node(i))
	}
	for _, f := range fields {
		from := pos[f.ID]
		for _, ref := range f.References() {
			to, known := pos[ref]
			if !known || to == from {
				continue
			}
			g.SetEdge(simple.Edge{F: simple.Node(from), T: simple.Node(to)})
		}
	}

	// Components come back in reverse topological order: everything a
	// component reads precedes it.
	sccs := topo.TarjanSCC(g)
	groups := make([][]*FieldDefinition, len(sccs))
	for i, scc := range sccs {
		sort.Slice(scc, func(a, b int) bool { return scc[a].ID() < scc[b].ID() })
		group := make([]*FieldDefinition, len(scc))
		for j, n := range scc {
			group[j] = fields[n.ID()]
		}
		groups[i] = group
	}
	return groups
}

// expressionEnv exposes the view to set_value expressions keyed by field id.
func expressionEnv(view Values) map[string]any {
	env := make(map[string]any, len(view))
	for id, v := range view {
		env[id] = v.Interface()
	}
	return env
}

func statesEqual(a, b map[string]DerivedState) bool {
	if len(a) != len(b) {
		return false
	}
	for id, s := range a {
		o, ok := b[id]
		if !ok || !s.equal(o) {
			return false
		}
	}
	return true
}

func cycleWarning(iterations int) Violation {
	return Violation{
		Code:    CodeConditionalLogicCycle,
		Message: fmt.Sprintf("Conditional logic did not settle after %d passes; the last computed state is used.", iterations),
		Params:  map[string]any{"iterations": iterations},
	}
}
