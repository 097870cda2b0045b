package formlogic

// Code identifies the kind of a violation or warning.
type Code string

const (
	CodeRequired       Code = "required"
	CodeMinLength      Code = "min_length"
	CodeMaxLength      Code = "max_length"
	CodeRegex          Code = "regex"
	CodeChoices        Code = "choices"
	CodeMin            Code = "min"
	CodeMax            Code = "max"
	CodeAllowedDomains Code = "allowed_domains"
	CodeCustom         Code = "custom"

	CodeTypeMismatch  Code = "type_mismatch"
	CodeConfiguration Code = "configuration_error"

	// Warnings. Never blocking.
	CodeConditionalLogicCycle Code = "conditional_logic_cycle"
	CodeExpressionError       Code = "expression_error"
)

// Violation is one reported validation failure.
type Violation struct {
	Code       Code           `json:"code"`
	Check      string         `json:"check,omitempty"` // originating check for type mismatches
	Message    string         `json:"message"`
	Params     map[string]any `json:"params,omitempty"`
	Suppressed bool           `json:"suppressed,omitempty"`
}

// Status summarises a report.
type Status string

const (
	StatusReady      Status = "READY"      // no blocking violations
	StatusIncomplete Status = "INCOMPLETE" // only missing required values block
	StatusInvalid    Status = "INVALID"    // at least one non-required violation blocks
	StatusClosed     Status = "CLOSED"     // submitted outside the form's acceptance window
)

// FieldResult is the evaluated state of one field.
type FieldResult struct {
	ID             string      `json:"id"`
	Type           string      `json:"type,omitempty"`
	Visible        bool        `json:"visible"`
	Required       bool        `json:"required"`
	Value          Value       `json:"value"`
	EffectiveValue *Value      `json:"effective_value,omitempty"`
	Violations     []Violation `json:"violations"`
	Warnings       []Violation `json:"warnings,omitempty"`
}

// Blocking returns the violations that prevent the submission from being accepted.
func (f *FieldResult) Blocking() []Violation {
	var out []Violation
	for _, v := range f.Violations {
		if !v.Suppressed {
			out = append(out, v)
		}
	}
	return out
}

// Codes lists violation codes in report order.
func (f *FieldResult) Codes() []Code {
	codes := make([]Code, len(f.Violations))
	for i, v := range f.Violations {
		codes[i] = v.Code
	}
	return codes
}

// Report is the result of evaluating one submission against one form.
type Report struct {
	Status        Status        `json:"status"`
	Valid         bool          `json:"valid"`
	Iterations    int           `json:"iterations"`
	Converged     bool          `json:"converged"`
	EffectiveDate string        `json:"effective_date,omitempty"`
	Fields        []FieldResult `json:"fields"`
}

// Field looks up a field result by id.
func (r *Report) Field(id string) (*FieldResult, bool) {
	for i := range r.Fields {
		if r.Fields[i].ID == id {
			return &r.Fields[i], true
		}
	}
	return nil, false
}

// Warnings collects every warning in field order.
func (r *Report) Warnings() []Violation {
	var out []Violation
	for _, f := range r.Fields {
		out = append(out, f.Warnings...)
	}
	return out
}

// determineStatus derives the status from the blocking violations.
func (r *Report) determineStatus() Status {
	missingRequired := false
	for i := range r.Fields {
		for _, v := range r.Fields[i].Blocking() {
			if v.Code != CodeRequired {
				return StatusInvalid
			}
			missingRequired = true
		}
	}
	if missingRequired {
		return StatusIncomplete
	}
	return StatusReady
}
