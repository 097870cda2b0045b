package formlogic

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// FormDocument is the stored representation of a form, as the form builder
// persists it. Validation and logic blocks are kept untyped until Compile.
type FormDocument struct {
	ID        string                     `json:"id,omitempty" yaml:"id,omitempty"`
	Title     string                     `json:"title,omitempty" yaml:"title,omitempty"`
	ValidFrom string                     `json:"valid_from,omitempty" yaml:"valid_from,omitempty"`
	ExpiresAt string                     `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
	Presets   map[string]*PresetDocument `json:"presets,omitempty" yaml:"presets,omitempty"`
	Fields    []*FieldDocument           `json:"fields" yaml:"fields"`
}

// PresetDocument is a reusable field template whose validations act as
// defaults for every field built from it.
type PresetDocument struct {
	Description        string         `json:"description,omitempty" yaml:"description,omitempty"`
	FieldType          string         `json:"field_type" yaml:"field_type"`
	DefaultLabel       string         `json:"default_label,omitempty" yaml:"default_label,omitempty"`
	DefaultHelpText    string         `json:"default_help_text,omitempty" yaml:"default_help_text,omitempty"`
	DefaultValidations map[string]any `json:"default_validations,omitempty" yaml:"default_validations,omitempty"`
}

// FieldDocument is one stored field. Validations override the preset's defaults.
type FieldDocument struct {
	ID               string          `json:"id" yaml:"id"`
	Type             string          `json:"type,omitempty" yaml:"type,omitempty"`
	Label            string          `json:"label,omitempty" yaml:"label,omitempty"`
	HelpText         string          `json:"help_text,omitempty" yaml:"help_text,omitempty"`
	Preset           string          `json:"preset,omitempty" yaml:"preset,omitempty"`
	Order            int             `json:"order,omitempty" yaml:"order,omitempty"`
	Hidden           bool            `json:"hidden,omitempty" yaml:"hidden,omitempty"`
	Choices          []any           `json:"choices,omitempty" yaml:"choices,omitempty"`
	Validations      map[string]any  `json:"validations,omitempty" yaml:"validations,omitempty"`
	ConditionalLogic map[string]any  `json:"conditional_logic,omitempty" yaml:"conditional_logic,omitempty"`
	Rules            []*RuleDocument `json:"rules,omitempty" yaml:"rules,omitempty"`
}

// RuleDocument is a standalone condition/action rule attached to a field.
type RuleDocument struct {
	Condition any `json:"condition" yaml:"condition"`
	Action    any `json:"action" yaml:"action"`
}

// DecodeDocument reads a form document from JSON or YAML.
func DecodeDocument(data []byte) (*FormDocument, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty form document", ErrInvalidInput)
	}

	var doc FormDocument
	if trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil, fmt.Errorf("%w: form document: %v", ErrInvalidInput, err)
		}
		return &doc, nil
	}
	if err := yaml.Unmarshal(trimmed, &doc); err != nil {
		return nil, fmt.Errorf("%w: form document: %v", ErrInvalidInput, err)
	}
	return &doc, nil
}

// LoadForm decodes and compiles a form document with the given registry
// (nil means the built-in checks).
func LoadForm(data []byte, reg *Registry) (*Form, error) {
	doc, err := DecodeDocument(data)
	if err != nil {
		return nil, err
	}
	return Compile(doc, reg)
}
