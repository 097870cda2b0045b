package formlogic

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const signupJSON = `{
	"id": "signup",
	"title": "Signup",
	"valid_from": "2025-01-01",
	"expires_at": "2025-12-31T23:59:59Z",
	"presets": {
		"work_email": {
			"field_type": "email",
			"default_label": "Work email",
			"default_validations": {"required": true, "allowed_domains": ["co.com"]}
		}
	},
	"fields": [
		{
			"id": "state", "type": "text", "order": 3, "hidden": true,
			"validations": {"required": true},
			"conditional_logic": {
				"condition": {"field": "country", "operator": "eq", "value": "US"},
				"actions": ["show"]
			}
		},
		{"id": "email", "preset": "work_email", "order": 1, "validations": {"allowed_domains": ["example.org"]}},
		{"id": "country", "type": "select", "order": 2, "choices": ["US", "CA"]},
		{"id": "age", "type": "number", "order": 4, "validations": {"max": 65, "min": 18}},
		{
			"id": "discount", "type": "number", "order": 5,
			"rules": [{
				"condition": {"all": [
					{"field": "age", "operator": "gte", "value": 60},
					{"field": "country", "operator": "in", "value": ["US", "CA"]}
				]},
				"action": {"set_value": {"expr": "age > 64 ? 20 : 10"}}
			}]
		}
	]
}`

const signupYAML = `
id: signup
title: Signup
valid_from: "2025-01-01"
expires_at: "2025-12-31T23:59:59Z"
presets:
  work_email:
    field_type: email
    default_label: Work email
    default_validations:
      required: true
      allowed_domains: [co.com]
fields:
  - id: state
    type: text
    order: 3
    hidden: true
    validations:
      required: true
    conditional_logic:
      condition: {field: country, operator: eq, value: US}
      actions: [show]
  - id: email
    preset: work_email
    order: 1
    validations:
      allowed_domains: [example.org]
  - id: country
    type: select
    order: 2
    choices: [US, CA]
  - id: age
    type: number
    order: 4
    validations:
      max: 65
      min: 18
  - id: discount
    type: number
    order: 5
    rules:
      - condition:
          all:
            - {field: age, operator: gte, value: 60}
            - {field: country, operator: in, value: [US, CA]}
        action:
          set_value:
            expr: "age > 64 ? 20 : 10"
`

func fieldIDs(form *Form) []string {
	ids := make([]string, len(form.Fields))
	for i, f := range form.Fields {
		ids[i] = f.ID
	}
	return ids
}

func TestLoadFormJSONAndYAMLAgree(t *testing.T) {
	for name, doc := range map[string]string{"json": signupJSON, "yaml": signupYAML} {
		t.Run(name, func(t *testing.T) {
			form, err := LoadForm([]byte(doc), nil)
			require.NoError(t, err)

			assert.Equal(t, "signup", form.ID)
			assert.Equal(t, []string{"email", "country", "state", "age", "discount"}, fieldIDs(form))
			assert.Empty(t, form.ConfigErrors())

			require.NotNil(t, form.ValidFrom)
			assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), *form.ValidFrom)
			require.NotNil(t, form.ExpiresAt)

			email, _ := form.Field("email")
			assert.Equal(t, "email", email.Type, "type falls back to the preset")
			assert.Equal(t, "Work email", email.Label)
			assert.True(t, email.Validation.Required(), "preset default kept")
			got := Validate(email.Validation, StringValue("ada@co.com"))
			assert.Equal(t, []Code{CodeAllowedDomains}, codes(got), "field override replaces preset domains")

			country, _ := form.Field("country")
			assert.True(t, country.Validation.Has(CheckChoices), "choices imply a choices check")

			age, _ := form.Field("age")
			checks := age.Validation.Checks()
			require.Len(t, checks, 2)
			assert.Equal(t, CheckMin, checks[0].Kind())
			assert.Equal(t, CheckMax, checks[1].Kind())

			state, _ := form.Field("state")
			assert.True(t, state.Hidden)
			require.NotNil(t, state.Logic)
			assert.Equal(t, []string{"country"}, state.References())

			discount, _ := form.Field("discount")
			require.Len(t, discount.Rules, 1)
			assert.Equal(t, []string{"age", "country"}, discount.References())
		})
	}
}

func TestCompiledFormEvaluates(t *testing.T) {
	form, err := LoadForm([]byte(signupJSON), nil)
	require.NoError(t, err)

	report, err := NewEngine().EvaluateForm(form, Values{
		"email":   StringValue("ada@example.org"),
		"country": StringValue("CA"),
		"age":     NumberValue(65),
	})
	require.NoError(t, err)
	assert.Equal(t, StatusReady, report.Status)

	discount, _ := report.Field("discount")
	require.NotNil(t, discount.EffectiveValue)
	assert.True(t, discount.EffectiveValue.Equal(NumberValue(20)))

	state, _ := report.Field("state")
	assert.False(t, state.Visible)
}

func TestCompileFieldConfigErrors(t *testing.T) {
	doc := `{"fields": [
		{"id": "a", "type": "text", "validations": {"min_length": -1, "regex": "(", "colour": "red"}},
		{"id": "b", "type": "text", "validations": {"custom": {"operator": "$between", "value": 1}}},
		{"id": "c", "conditional_logic": {"condition": {"field": "a", "operator": "contains", "value": "x"}, "actions": ["show"]}},
		{"id": "d", "conditional_logic": {"condition": {"field": "a", "operator": "in", "value": "x"}, "actions": ["show"]}},
		{"id": "e", "conditional_logic": {"condition": {"field": "a", "operator": "eq", "value": "x"}, "actions": ["explode"]}},
		{"id": "f", "preset": "missing"},
		{"id": "g", "rules": [{"condition": {"any": [{"field": "a", "op": "eq"}]}, "action": "hide"}]},
		{"id": "h", "validations": {"required": true, "max": "ten"}}
	]}`
	form, err := LoadForm([]byte(doc), nil)
	require.NoError(t, err, "per-field problems do not fail the document")

	sources := func(id string) []string {
		f, ok := form.Field(id)
		require.True(t, ok, id)
		out := make([]string, len(f.ConfigErrors))
		for i, ce := range f.ConfigErrors {
			out[i] = ce.Source
		}
		return out
	}

	assert.Equal(t, []string{"validations.min_length", "validations.regex", "validations.colour"}, sources("a"))
	assert.Equal(t, []string{"validations.custom"}, sources("b"))
	assert.Equal(t, []string{"conditional_logic"}, sources("c"))
	assert.Equal(t, []string{"conditional_logic"}, sources("d"))
	assert.Equal(t, []string{"conditional_logic"}, sources("e"))
	assert.Equal(t, []string{"preset"}, sources("f"))
	assert.Equal(t, []string{"rules[0]"}, sources("g"))
	assert.Equal(t, []string{"validations.max"}, sources("h"))

	c, _ := form.Field("c")
	assert.Nil(t, c.Logic, "broken logic is dropped")
	h, _ := form.Field("h")
	assert.True(t, h.Validation.Required(), "valid checks survive")
	assert.Len(t, form.ConfigErrors(), 10)

	report, err := EvaluateSubmission(form.Fields, Values{})
	require.NoError(t, err)
	b, _ := report.Field("b")
	assert.Equal(t, []Code{CodeConfiguration}, b.Codes(), "reported once on the field")
	assert.Equal(t, StatusInvalid, report.Status)
}

func TestCompileNotApplicable(t *testing.T) {
	reg, err := LoadRegistry([]byte(`
- key: allowed_domains
  applicable_field_types: [email]
`))
	require.NoError(t, err)

	form, err := LoadForm([]byte(`{"fields": [
		{"id": "site", "type": "url", "validations": {"allowed_domains": ["co.com"]}},
		{"id": "mail", "type": "email", "validations": {"allowed_domains": ["co.com"]}}
	]}`), reg)
	require.NoError(t, err)

	site, _ := form.Field("site")
	require.Len(t, site.ConfigErrors, 1)
	assert.Equal(t, "not applicable to field type 'url'", site.ConfigErrors[0].Message)
	mail, _ := form.Field("mail")
	assert.Empty(t, mail.ConfigErrors)
	assert.True(t, mail.Validation.Has(CheckAllowedDomains))
}

func TestCompileRequiredFalseIsNoCheck(t *testing.T) {
	form, err := LoadForm([]byte(`{"fields": [{"id": "a", "validations": {"required": false}}]}`), nil)
	require.NoError(t, err)
	a, _ := form.Field("a")
	assert.Empty(t, a.ConfigErrors)
	assert.False(t, a.Validation.Required())
}

func TestCompileActions(t *testing.T) {
	actions, err := compileActions([]any{"hide", "require", map[string]any{"set_value": "n/a"}})
	require.NoError(t, err)
	require.Len(t, actions, 3)
	assert.Equal(t, ActionHide, actions[0].Kind)
	assert.Equal(t, ActionRequire, actions[1].Kind)
	assert.Equal(t, ActionSetValue, actions[2].Kind)
	assert.Equal(t, StringValue("n/a"), actions[2].Value)

	_, err = compileActions([]any{})
	assert.Error(t, err)
	_, err = compileActions("set_value")
	assert.Error(t, err)
	_, err = compileActions(map[string]any{"set_value": map[string]any{"expr": "1 +"}})
	assert.Error(t, err)
	_, err = compileActions(map[string]any{"toggle": true})
	assert.EqualError(t, err, "unknown action 'toggle'")
}

func TestCompileStructuralErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		err  error
	}{
		{"missing id", `{"fields": [{"type": "text"}]}`, ErrInvalidInput},
		{"null field", `{"fields": [null]}`, ErrInvalidInput},
		{"duplicate id", `{"fields": [{"id": "a"}, {"id": "a"}]}`, ErrDuplicateField},
		{"bad date", `{"valid_from": "soon", "fields": []}`, ErrInvalidInput},
		{"empty", ``, ErrInvalidInput},
		{"bad json", `{"fields": [`, ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadForm([]byte(tt.doc), nil)
			assert.ErrorIs(t, err, tt.err)
		})
	}

	_, err := Compile(nil, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRegistryOverrides(t *testing.T) {
	reg, err := LoadRegistry([]byte(`
- key: required
  default_error_message: "Please fill in this field."
- key: min
  default_error_message: "Must be at least {min}."
`))
	require.NoError(t, err)

	form, err := LoadForm([]byte(`{"fields": [
		{"id": "name", "validations": {"required": true}},
		{"id": "age", "validations": {"min": 18}}
	]}`), reg)
	require.NoError(t, err)

	report, err := EvaluateSubmission(form.Fields, Values{"age": NumberValue(3)})
	require.NoError(t, err)
	name, _ := report.Field("name")
	assert.Equal(t, "Please fill in this field.", name.Violations[0].Message)
	age, _ := report.Field("age")
	assert.Equal(t, "Must be at least 18.", age.Violations[0].Message)

	_, err = LoadRegistry([]byte(`[{key: between}]`))
	assert.ErrorIs(t, err, ErrInvalidInput)

	assert.Equal(t, []string{
		"required", "min_length", "max_length", "regex", "choices",
		"min", "max", "allowed_domains", "custom",
	}, DefaultRegistry().Keys())
}
