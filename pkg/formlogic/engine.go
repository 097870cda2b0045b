package formlogic

import (
	"fmt"
	"runtime"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Engine evaluates submissions. It holds configuration only, so one Engine is
// safe for concurrent use by any number of goroutines.
type Engine struct {
	maxIterations int
	parallelism   int
	registry      *Registry
	logger        zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxIterations caps the resolver's passes.
func WithMaxIterations(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxIterations = n
		}
	}
}

// WithParallelism limits how many fields are validated concurrently.
// 1 validates sequentially.
func WithParallelism(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.parallelism = n
		}
	}
}

// WithRegistry sets the validation types used when the engine compiles documents.
func WithRegistry(r *Registry) Option {
	return func(e *Engine) {
		if r != nil {
			e.registry = r
		}
	}
}

// WithLogger sets the logger for cycle and expression warnings.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine returns an engine with defaults overridden by opts.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		maxIterations: DefaultMaxIterations,
		parallelism:   runtime.GOMAXPROCS(0),
		registry:      defaultRegistry,
		logger:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var defaultEngine = NewEngine()

// Registry returns the validation types the engine compiles documents with.
func (e *Engine) Registry() *Registry { return e.registry }

// Compile compiles a form document with the engine's registry.
func (e *Engine) Compile(doc *FormDocument) (*Form, error) { return Compile(doc, e.registry) }

// EvaluateSubmission evaluates values against fields with the default engine.
func EvaluateSubmission(fields []*FieldDefinition, values Values) (*Report, error) {
	return defaultEngine.Evaluate(fields, values)
}

// EvaluateForm evaluates values against a compiled form.
func (e *Engine) EvaluateForm(form *Form, values Values) (*Report, error) {
	if form == nil {
		return nil, ErrNilFields
	}
	return e.Evaluate(form.Fields, values)
}

// Evaluate resolves conditional logic, substitutes assigned values and
// validates every field against its derived state. Malformed configuration
// and data are reported in the returned Report; only a nil field list, a nil
// entry or duplicate ids produce an error.
func (e *Engine) Evaluate(fields []*FieldDefinition, values Values) (*Report, error) {
	if fields == nil {
		return nil, ErrNilFields
	}
	seen := make(map[string]bool, len(fields))
	for i, f := range fields {
		if f == nil {
			return nil, fmt.Errorf("%w at index %d", ErrNilField, i)
		}
		if seen[f.ID] {
			return nil, fmt.Errorf("%w: '%s'", ErrDuplicateField, f.ID)
		}
		seen[f.ID] = true
	}

	res := Resolve(fields, values, e.maxIterations)
	effective := values.Clone()
	for _, f := range fields {
		if s := res.State(f.ID); s.Effective != nil {
			effective[f.ID] = *s.Effective
		}
	}

	results := make([]FieldResult, len(fields))
	var g errgroup.Group
	g.SetLimit(e.parallelism)
	for i, f := range fields {
		g.Go(func() error {
			results[i] = evaluateField(f, res.State(f.ID), values.Get(f.ID), effective.Get(f.ID), res.Warnings[f.ID])
			return nil
		})
	}
	_ = g.Wait()

	report := &Report{
		Iterations: res.Iterations,
		Converged:  res.Converged,
		Fields:     results,
	}
	report.Status = report.determineStatus()
	report.Valid = report.Status == StatusReady

	e.logWarnings(report)
	e.logger.Debug().
		Int("fields", len(fields)).
		Int("iterations", report.Iterations).
		Bool("converged", report.Converged).
		Str("status", string(report.Status)).
		Msg("submission evaluated")
	return report, nil
}

// evaluateField builds one field's result. It reads only its arguments.
func evaluateField(f *FieldDefinition, state DerivedState, submitted, value Value, warnings []Violation) FieldResult {
	violations := make([]Violation, 0, len(f.ConfigErrors))
	for _, ce := range f.ConfigErrors {
		violations = append(violations, configViolation(ce))
	}
	violations = append(violations, Validate(f.Validation.WithRequired(state.Required), value)...)
	if !state.Visible {
		for i := range violations {
			violations[i].Suppressed = true
		}
	}

	return FieldResult{
		ID:             f.ID,
		Type:           f.Type,
		Visible:        state.Visible,
		Required:       state.Required,
		Value:          submitted,
		EffectiveValue: state.Effective,
		Violations:     violations,
		Warnings:       warnings,
	}
}

func (e *Engine) logWarnings(r *Report) {
	for _, f := range r.Fields {
		for _, w := range f.Warnings {
			e.logger.Warn().
				Str("field", f.ID).
				Str("code", string(w.Code)).
				Msg(w.Message)
		}
	}
}
