package formlogic

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// ValidationType describes one named check: which field types it applies to,
// the JSON Schema its parameter must satisfy, and its default message.
type ValidationType struct {
	Key                  string   `json:"key" yaml:"key"`
	Label                string   `json:"label,omitempty" yaml:"label,omitempty"`
	ApplicableFieldTypes []string `json:"applicable_field_types,omitempty" yaml:"applicable_field_types,omitempty"`
	// ParameterSchema is a JSON Schema, either as JSON text or as a decoded document.
	ParameterSchema     any    `json:"parameter_schema,omitempty" yaml:"parameter_schema,omitempty"`
	DefaultErrorMessage string `json:"default_error_message,omitempty" yaml:"default_error_message,omitempty"`

	schema *gojsonschema.Schema
}

// AppliesTo reports whether the check may be declared on a field of the given type.
// An empty applicability list means every type.
func (vt *ValidationType) AppliesTo(fieldType string) bool {
	if len(vt.ApplicableFieldTypes) == 0 || fieldType == "" {
		return true
	}
	for _, t := range vt.ApplicableFieldTypes {
		if t == fieldType {
			return true
		}
	}
	return false
}

// message renders the default message, substituting {name} placeholders.
func (vt *ValidationType) message(params map[string]any) string {
	if len(params) == 0 {
		return vt.DefaultErrorMessage
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		pairs = append(pairs, "{"+k+"}", formatParam(params[k]))
	}
	return strings.NewReplacer(pairs...).Replace(vt.DefaultErrorMessage)
}

func formatParam(p any) string {
	switch x := p.(type) {
	case []string:
		return strings.Join(x, ", ")
	case []any:
		parts := make([]string, len(x))
		for i, item := range x {
			parts[i] = formatParam(item)
		}
		return strings.Join(parts, ", ")
	case Value:
		return x.String()
	default:
		if t, ok := ValueOf(x).Text(); ok {
			return t
		}
		return fmt.Sprintf("%v", x)
	}
}

func (vt *ValidationType) compile() error {
	if vt.ParameterSchema == nil {
		vt.schema = nil
		return nil
	}
	var loader gojsonschema.JSONLoader
	if text, ok := vt.ParameterSchema.(string); ok {
		loader = gojsonschema.NewStringLoader(text)
	} else {
		loader = gojsonschema.NewGoLoader(vt.ParameterSchema)
	}
	schema, err := gojsonschema.NewSchema(loader)
	if err != nil {
		return fmt.Errorf("validation type '%s': parameter schema: %w", vt.Key, err)
	}
	vt.schema = schema
	return nil
}

// checkParams validates a declared parameter against the parameter schema.
func (vt *ValidationType) checkParams(param any) error {
	if vt.schema == nil {
		return nil
	}
	result, err := vt.schema.Validate(gojsonschema.NewGoLoader(param))
	if err != nil {
		return fmt.Errorf("parameter cannot be checked: %w", err)
	}
	if result.Valid() {
		return nil
	}
	descs := make([]string, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		descs = append(descs, re.String())
	}
	return fmt.Errorf("invalid parameter: %s", strings.Join(descs, "; "))
}

// Registry holds the known validation types. The set of keys is closed:
// overrides may change messages, schemas and applicability, not add checks.
type Registry struct {
	types map[string]*ValidationType
}

var builtinTypes = []ValidationType{
	{
		Key:                 "required",
		Label:               "Required",
		ParameterSchema:     `{"type": "boolean"}`,
		DefaultErrorMessage: "This field is required.",
	},
	{
		Key:                 "min_length",
		Label:               "Minimum length",
		ParameterSchema:     `{"type": "integer", "minimum": 0}`,
		DefaultErrorMessage: "Ensure this value has at least {min_length} characters.",
	},
	{
		Key:                 "max_length",
		Label:               "Maximum length",
		ParameterSchema:     `{"type": "integer", "minimum": 0}`,
		DefaultErrorMessage: "Ensure this value has at most {max_length} characters.",
	},
	{
		Key:                 "regex",
		Label:               "Pattern",
		ParameterSchema:     `{"type": "string", "minLength": 1}`,
		DefaultErrorMessage: "Enter a value matching the pattern {regex}.",
	},
	{
		Key:                 "choices",
		Label:               "Choices",
		ParameterSchema:     `{"type": "array", "items": {"type": ["string", "number", "boolean"]}}`,
		DefaultErrorMessage: "Select a valid choice. {value} is not one of the available choices.",
	},
	{
		Key:                 "min",
		Label:               "Minimum",
		ParameterSchema:     `{"type": "number"}`,
		DefaultErrorMessage: "Ensure this value is greater than or equal to {min}.",
	},
	{
		Key:                 "max",
		Label:               "Maximum",
		ParameterSchema:     `{"type": "number"}`,
		DefaultErrorMessage: "Ensure this value is less than or equal to {max}.",
	},
	{
		Key:   "allowed_domains",
		Label: "Allowed domains",
		ParameterSchema: `{
			"type": "array",
			"minItems": 1,
			"items": {"type": "string", "minLength": 1}
		}`,
		DefaultErrorMessage: "Enter an address in one of the allowed domains: {allowed_domains}.",
	},
	{
		Key:   "custom",
		Label: "Custom",
		ParameterSchema: `{
			"type": "object",
			"required": ["operator", "value"],
			"additionalProperties": false,
			"properties": {
				"operator": {"enum": ["$in", "$regex", "$gt", "$lt"]},
				"value": {}
			},
			"allOf": [
				{"if": {"properties": {"operator": {"const": "$in"}}}, "then": {"properties": {"value": {"type": "array"}}}},
				{"if": {"properties": {"operator": {"const": "$regex"}}}, "then": {"properties": {"value": {"type": "string"}}}},
				{"if": {"properties": {"operator": {"enum": ["$gt", "$lt"]}}}, "then": {"properties": {"value": {"type": "number"}}}}
			]
		}`,
		DefaultErrorMessage: "Value does not satisfy {operator} {operand}.",
	},
}

// NewRegistry builds a registry from the built-in checks with the given overrides applied.
func NewRegistry(overrides ...ValidationType) (*Registry, error) {
	r := &Registry{types: make(map[string]*ValidationType, len(builtinTypes))}
	for _, bt := range builtinTypes {
		vt := bt
		vt.ApplicableFieldTypes = append([]string(nil), bt.ApplicableFieldTypes...)
		r.types[vt.Key] = &vt
	}

	for _, o := range overrides {
		vt, ok := r.types[o.Key]
		if !ok {
			return nil, fmt.Errorf("%w: unknown validation type '%s'", ErrInvalidInput, o.Key)
		}
		if o.Label != "" {
			vt.Label = o.Label
		}
		if o.ApplicableFieldTypes != nil {
			vt.ApplicableFieldTypes = append([]string(nil), o.ApplicableFieldTypes...)
		}
		if o.ParameterSchema != nil {
			vt.ParameterSchema = o.ParameterSchema
		}
		if o.DefaultErrorMessage != "" {
			vt.DefaultErrorMessage = o.DefaultErrorMessage
		}
	}

	for _, vt := range r.types {
		if err := vt.compile(); err != nil {
			return nil, err
		}
	}
	return r, nil
}

var defaultRegistry = mustRegistry()

func mustRegistry() *Registry {
	r, err := NewRegistry()
	if err != nil {
		panic(err)
	}
	return r
}

// DefaultRegistry returns the registry of built-in checks.
func DefaultRegistry() *Registry { return defaultRegistry }

// LoadRegistry reads validation type overrides from YAML or JSON:
// a list of entries keyed by "key".
func LoadRegistry(data []byte) (*Registry, error) {
	var overrides []ValidationType
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("%w: validation types: %v", ErrInvalidInput, err)
	}
	return NewRegistry(overrides...)
}

// Lookup returns the validation type for key.
func (r *Registry) Lookup(key string) (*ValidationType, bool) {
	if r == nil {
		r = defaultRegistry
	}
	vt, ok := r.types[key]
	return vt, ok
}

// Keys returns the registered keys in check order.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.types))
	for k := range r.types {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return checkKindOf(keys[i]) < checkKindOf(keys[j])
	})
	return keys
}
