package formlogic

import (
	"errors"
	"fmt"
)

var (
	// ErrNilFields is returned when the caller passes no field list at all.
	ErrNilFields = errors.New("formlogic: nil field list")
	// ErrNilField is returned for a nil entry in the field list.
	ErrNilField = errors.New("formlogic: nil field definition")
	// ErrDuplicateField is returned when two fields share an identifier.
	ErrDuplicateField = errors.New("formlogic: duplicate field id")
	// ErrInvalidInput wraps structurally malformed documents and responses.
	ErrInvalidInput = errors.New("formlogic: invalid input")
)

// ConfigError describes a malformed piece of a field's stored configuration.
// Config errors are attached to the field and reported as violations; they
// never abort evaluation of other fields.
type ConfigError struct {
	Field   string `json:"field"`
	Source  string `json:"source"` // "validations.regex", "conditional_logic", "rules[0].action"
	Message string `json:"message"`
}

func (e ConfigError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("field '%s' %s: %s", e.Field, e.Source, e.Message)
}

// ConfigErrors joins a list of config errors into one error value.
type ConfigErrors []ConfigError

func (errs ConfigErrors) Error() string {
	switch len(errs) {
	case 0:
		return ""
	case 1:
		return errs[0].Error()
	}
	return fmt.Sprintf("%s (and %d more)", errs[0].Error(), len(errs)-1)
}
