// Package formlogic evaluates form submissions: per-field validation checks and
// cross-field conditional logic (visibility, requiredness, assigned values).
//
// Forms are compiled once from their stored JSON/YAML representation; each
// submission is then evaluated by a pure, re-entrant call that returns a Report.
package formlogic

import "time"

// FieldDefinition is one field's static configuration. It is read-only during
// an evaluation.
type FieldDefinition struct {
	ID       string
	Type     string // field-type key: "text", "email", "select", ...
	Label    string
	HelpText string
	// Hidden is the field's visibility before any conditional logic applies.
	Hidden     bool
	Choices    []string
	Validation ValidationSpec
	Logic      *ConditionalLogic
	// Rules are standalone condition/action pairs, applied after Logic.
	Rules []ConditionalLogic
	// ConfigErrors holds problems found while compiling the field's stored
	// configuration. They are reported as violations on the field.
	ConfigErrors []ConfigError
}

// logic returns the field's conditional logic followed by its rules.
func (f *FieldDefinition) logic() []ConditionalLogic {
	if f.Logic == nil {
		return f.Rules
	}
	out := make([]ConditionalLogic, 0, len(f.Rules)+1)
	out = append(out, *f.Logic)
	return append(out, f.Rules...)
}

// References lists the field ids this field's conditions and set_value
// expressions read, in order of appearance, without duplicates.
func (f *FieldDefinition) References() []string {
	var refs []string
	for _, cl := range f.logic() {
		if cl.Condition != nil {
			refs = cl.Condition.Fields(refs)
		}
	}
	for _, cl := range f.logic() {
		for _, a := range cl.Actions {
			refs = append(refs, a.reads...)
		}
	}
	seen := make(map[string]bool, len(refs))
	out := refs[:0]
	for _, r := range refs {
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	return out
}

// Form is a compiled form: an ordered field list plus its acceptance window.
type Form struct {
	ID        string
	Title     string
	ValidFrom *time.Time
	ExpiresAt *time.Time
	Fields    []*FieldDefinition
}

// Field returns the field with the given id.
func (f *Form) Field(id string) (*FieldDefinition, bool) {
	for _, fd := range f.Fields {
		if fd.ID == id {
			return fd, true
		}
	}
	return nil, false
}

// ConfigErrors collects the configuration problems of every field.
func (f *Form) ConfigErrors() ConfigErrors {
	var errs ConfigErrors
	for _, fd := range f.Fields {
		errs = append(errs, fd.ConfigErrors...)
	}
	return errs
}
