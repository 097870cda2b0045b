package formlogic

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// CheckKind is the closed set of validation checks, in report order.
type CheckKind int

const (
	CheckRequired CheckKind = iota
	CheckMinLength
	CheckMaxLength
	CheckRegex
	CheckChoices
	CheckMin
	CheckMax
	CheckAllowedDomains
	CheckCustom
)

var checkKeys = [...]string{
	CheckRequired:       "required",
	CheckMinLength:      "min_length",
	CheckMaxLength:      "max_length",
	CheckRegex:          "regex",
	CheckChoices:        "choices",
	CheckMin:            "min",
	CheckMax:            "max",
	CheckAllowedDomains: "allowed_domains",
	CheckCustom:         "custom",
}

func (k CheckKind) String() string {
	if k < 0 || int(k) >= len(checkKeys) {
		return fmt.Sprintf("check(%d)", int(k))
	}
	return checkKeys[k]
}

// Code is the violation code a failing check reports.
func (k CheckKind) Code() Code { return Code(k.String()) }

// checkKindOf maps a stored key to its kind. Unknown keys sort last.
func checkKindOf(key string) CheckKind {
	for i, k := range checkKeys {
		if k == key {
			return CheckKind(i)
		}
	}
	return CheckKind(len(checkKeys))
}

// Check is one declared validation. The implementations below are the only ones.
type Check interface {
	Kind() CheckKind
	// apply evaluates the check against a non-empty value.
	apply(v Value, vt *ValidationType) []Violation
}

type RequiredCheck struct{}

type MinLengthCheck struct{ Length int }

type MaxLengthCheck struct{ Length int }

type RegexCheck struct {
	Pattern string
	re      *regexp.Regexp
}

type ChoicesCheck struct{ Allowed []string }

type MinCheck struct{ Bound float64 }

type MaxCheck struct{ Bound float64 }

type AllowedDomainsCheck struct{ Domains []string }

// CustomOperator is the closed set of operators accepted by the custom check.
type CustomOperator string

const (
	CustomIn    CustomOperator = "$in"
	CustomRegex CustomOperator = "$regex"
	CustomGt    CustomOperator = "$gt"
	CustomLt    CustomOperator = "$lt"
)

func (op CustomOperator) valid() bool {
	switch op {
	case CustomIn, CustomRegex, CustomGt, CustomLt:
		return true
	}
	return false
}

type CustomCheck struct {
	Operator CustomOperator
	Operand  Value
	re       *regexp.Regexp
}

// NewRegexCheck compiles pattern with full-match anchoring.
func NewRegexCheck(pattern string) (RegexCheck, error) {
	re, err := compileAnchored(pattern)
	if err != nil {
		return RegexCheck{}, err
	}
	return RegexCheck{Pattern: pattern, re: re}, nil
}

// NewCustomCheck builds a custom check, rejecting unknown operators and
// operands of the wrong shape.
func NewCustomCheck(op CustomOperator, operand Value) (CustomCheck, error) {
	c := CustomCheck{Operator: op, Operand: operand}
	switch op {
	case CustomIn:
		if operand.Kind() != KindList {
			return c, fmt.Errorf("operator %s needs a list operand", op)
		}
	case CustomRegex:
		pattern, ok := operand.Text()
		if !ok {
			return c, fmt.Errorf("operator %s needs a pattern operand", op)
		}
		re, err := compileAnchored(pattern)
		if err != nil {
			return c, err
		}
		c.re = re
	case CustomGt, CustomLt:
		if _, ok := operand.Number(); !ok {
			return c, fmt.Errorf("operator %s needs a numeric operand", op)
		}
	default:
		return c, fmt.Errorf("unknown custom operator '%s'", op)
	}
	return c, nil
}

func (RequiredCheck) Kind() CheckKind { return CheckRequired }
func (MinLengthCheck) Kind() CheckKind { return CheckMinLength }
func (MaxLengthCheck) Kind() CheckKind { return CheckMaxLength }
func (RegexCheck) Kind() CheckKind { return CheckRegex }
func (ChoicesCheck) Kind() CheckKind { return CheckChoices }
func (MinCheck) Kind() CheckKind { return CheckMin }
func (MaxCheck) Kind() CheckKind { return CheckMax }
func (AllowedDomainsCheck) Kind() CheckKind { return CheckAllowedDomains }
func (CustomCheck) Kind() CheckKind { return CheckCustom }

func (RequiredCheck) apply(Value, *ValidationType) []Violation { return nil }

func (c MinLengthCheck) apply(v Value, vt *ValidationType) []Violation {
	text, ok := v.Text()
	if !ok {
		return []Violation{typeMismatch(CheckMinLength, v)}
	}
	n := utf8.RuneCountInString(text)
	if n < c.Length {
		return []Violation{failed(vt, CheckMinLength, map[string]any{"min_length": c.Length, "got": n})}
	}
	return nil
}

func (c MaxLengthCheck) apply(v Value, vt *ValidationType) []Violation {
	text, ok := v.Text()
	if !ok {
		return []Violation{typeMismatch(CheckMaxLength, v)}
	}
	n := utf8.RuneCountInString(text)
	if n > c.Length {
		return []Violation{failed(vt, CheckMaxLength, map[string]any{"max_length": c.Length, "got": n})}
	}
	return nil
}

func (c RegexCheck) apply(v Value, vt *ValidationType) []Violation {
	text, ok := v.Text()
	if !ok {
		return []Violation{typeMismatch(CheckRegex, v)}
	}
	re := c.re
	if re == nil {
		var err error
		if re, err = compileAnchored(c.Pattern); err != nil {
			return []Violation{configViolation(ConfigError{Source: "validations.regex", Message: err.Error()})}
		}
	}
	if !re.MatchString(text) {
		return []Violation{failed(vt, CheckRegex, map[string]any{"regex": c.Pattern})}
	}
	return nil
}

func (c ChoicesCheck) apply(v Value, vt *ValidationType) []Violation {
	if v.Kind() == KindBool {
		return []Violation{typeMismatch(CheckChoices, v)}
	}
	if items, ok := v.List(); ok {
		for _, item := range items {
			if !c.allows(StringValue(item)) {
				return []Violation{failed(vt, CheckChoices, map[string]any{"value": item, "choices": c.Allowed})}
			}
		}
		return nil
	}
	if !c.allows(v) {
		return []Violation{failed(vt, CheckChoices, map[string]any{"value": v.String(), "choices": c.Allowed})}
	}
	return nil
}

func (c ChoicesCheck) allows(v Value) bool {
	for _, a := range c.Allowed {
		if StringValue(a).Equal(v) {
			return true
		}
	}
	return false
}

func (c MinCheck) apply(v Value, vt *ValidationType) []Violation {
	n, ok := v.Number()
	if !ok {
		return []Violation{typeMismatch(CheckMin, v)}
	}
	if n < c.Bound {
		return []Violation{failed(vt, CheckMin, map[string]any{"min": c.Bound, "got": n})}
	}
	return nil
}

func (c MaxCheck) apply(v Value, vt *ValidationType) []Violation {
	n, ok := v.Number()
	if !ok {
		return []Violation{typeMismatch(CheckMax, v)}
	}
	if n > c.Bound {
		return []Violation{failed(vt, CheckMax, map[string]any{"max": c.Bound, "got": n})}
	}
	return nil
}

func (c AllowedDomainsCheck) apply(v Value, vt *ValidationType) []Violation {
	text, ok := v.Text()
	if !ok || v.Kind() != KindString {
		return []Violation{typeMismatch(CheckAllowedDomains, v)}
	}
	params := map[string]any{"allowed_domains": c.Domains, "value": text}
	at := strings.LastIndex(text, "@")
	if at <= 0 || at == len(text)-1 {
		return []Violation{failed(vt, CheckAllowedDomains, params)}
	}
	domain := strings.ToLower(text[at+1:])
	for _, d := range c.Domains {
		d = strings.ToLower(strings.TrimLeft(d, "@."))
		if domain == d || strings.HasSuffix(domain, "."+d) {
			return nil
		}
	}
	return []Violation{failed(vt, CheckAllowedDomains, params)}
}

func (c CustomCheck) apply(v Value, vt *ValidationType) []Violation {
	params := map[string]any{"operator": string(c.Operator), "operand": c.Operand.String()}
	switch c.Operator {
	case CustomIn:
		allowed, _ := c.Operand.List()
		set := ChoicesCheck{Allowed: allowed}
		if items, ok := v.List(); ok {
			for _, item := range items {
				if !set.allows(StringValue(item)) {
					return []Violation{failed(vt, CheckCustom, params)}
				}
			}
			return nil
		}
		if !set.allows(v) {
			return []Violation{failed(vt, CheckCustom, params)}
		}
	case CustomRegex:
		text, ok := v.Text()
		if !ok {
			return []Violation{typeMismatch(CheckCustom, v)}
		}
		re := c.re
		if re == nil {
			pattern, _ := c.Operand.Text()
			var err error
			if re, err = compileAnchored(pattern); err != nil {
				return []Violation{configViolation(ConfigError{Source: "validations.custom", Message: err.Error()})}
			}
		}
		if !re.MatchString(text) {
			return []Violation{failed(vt, CheckCustom, params)}
		}
	case CustomGt, CustomLt:
		n, ok := v.Number()
		if !ok {
			return []Violation{typeMismatch(CheckCustom, v)}
		}
		bound, _ := c.Operand.Number()
		if (c.Operator == CustomGt && !(n > bound)) || (c.Operator == CustomLt && !(n < bound)) {
			return []Violation{failed(vt, CheckCustom, params)}
		}
	default:
		return []Violation{configViolation(ConfigError{
			Source:  "validations.custom",
			Message: fmt.Sprintf("unknown custom operator '%s'", c.Operator),
		})}
	}
	return nil
}

func failed(vt *ValidationType, kind CheckKind, params map[string]any) Violation {
	msg := ""
	if vt != nil {
		msg = vt.message(params)
	}
	return Violation{Code: kind.Code(), Message: msg, Params: params}
}

func typeMismatch(kind CheckKind, v Value) Violation {
	return Violation{
		Code:    CodeTypeMismatch,
		Check:   kind.String(),
		Message: fmt.Sprintf("A %s value cannot be checked by %s.", v.Kind(), kind),
		Params:  map[string]any{"kind": v.Kind().String()},
	}
}

func configViolation(ce ConfigError) Violation {
	msg := ce.Message
	if ce.Source != "" {
		msg = ce.Source + ": " + ce.Message
	}
	return Violation{Code: CodeConfiguration, Message: msg}
}

// ValidationSpec is a field's compiled set of checks, held in report order.
type ValidationSpec struct {
	checks   []Check
	registry *Registry
}

// NewValidationSpec builds a spec from checks. Later checks of the same kind
// replace earlier ones.
func NewValidationSpec(checks ...Check) ValidationSpec {
	byKind := make(map[CheckKind]Check, len(checks))
	for _, c := range checks {
		if c != nil {
			byKind[c.Kind()] = c
		}
	}
	out := make([]Check, 0, len(byKind))
	for _, c := range byKind {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind() < out[j].Kind() })
	return ValidationSpec{checks: out}
}

// WithRegistry returns a copy that renders messages from r.
func (s ValidationSpec) WithRegistry(r *Registry) ValidationSpec {
	s.registry = r
	return s
}

// Checks returns the checks in report order.
func (s ValidationSpec) Checks() []Check {
	out := make([]Check, len(s.checks))
	copy(out, s.checks)
	return out
}

// Required reports whether required: true is declared.
func (s ValidationSpec) Required() bool {
	_, ok := s.find(CheckRequired)
	return ok
}

// Has reports whether a check of kind k is declared.
func (s ValidationSpec) Has(k CheckKind) bool {
	_, ok := s.find(k)
	return ok
}

func (s ValidationSpec) find(k CheckKind) (Check, bool) {
	for _, c := range s.checks {
		if c.Kind() == k {
			return c, true
		}
	}
	return nil, false
}

// WithRequired returns a copy whose required check is set to required.
func (s ValidationSpec) WithRequired(required bool) ValidationSpec {
	if s.Required() == required {
		return s
	}
	out := make([]Check, 0, len(s.checks)+1)
	if required {
		out = append(out, RequiredCheck{})
	}
	for _, c := range s.checks {
		if c.Kind() != CheckRequired {
			out = append(out, c)
		}
	}
	s.checks = out
	return s
}

// Validate evaluates every declared check against value. An empty value skips
// every check that presupposes presence; required alone can fire on it.
func Validate(spec ValidationSpec, value Value) []Violation {
	reg := spec.registry
	if reg == nil {
		reg = defaultRegistry
	}
	out := make([]Violation, 0)
	if value.IsEmpty() {
		if spec.Required() {
			vt, _ := reg.Lookup(CheckRequired.String())
			out = append(out, failed(vt, CheckRequired, nil))
		}
		return out
	}
	for _, c := range spec.checks {
		vt, _ := reg.Lookup(c.Kind().String())
		out = append(out, c.apply(value, vt)...)
	}
	return out
}

// compileAnchored compiles a pattern for full-match semantics. Anchors the
// pattern already carries are kept; the wrap makes one-sided ones full.
func compileAnchored(pattern string) (*regexp.Regexp, error) {
	p := "^(?:" + pattern + ")$"
	re, err := regexp.Compile(p)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern '%s': %w", pattern, err)
	}
	return re, nil
}
