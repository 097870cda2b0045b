// Package postgres loads form snapshots and submitted responses from the
// form-builder database. It never writes.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dlovans/formlogic/pkg/formlogic"
)

// ErrNotFound is returned when a form or response does not exist.
var ErrNotFound = errors.New("postgres: not found")

// Store reads the forms_* tables.
type Store struct {
	pool *pgxpool.Pool
}

// Response is one stored submission.
type Response struct {
	ID        int64
	FormID    int64
	CreatedAt time.Time
	// Values is a JSON object of field id to submitted value.
	Values []byte
}

// New connects to the database at connStr and verifies the connection.
func New(ctx context.Context, connStr string) (*Store, error) {
	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	config.MaxConns = 10
	config.MinConns = 1
	config.MaxConnLifetime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

const (
	formQuery = `SELECT id, title, expiration_date FROM forms_form WHERE id = $1`

	fieldsQuery = `
SELECT f.id, f.preset_id, f.label, f.help_text, f.validations_override, f."order", f.conditional_logic
FROM forms_formfield f
WHERE f.form_id = $1
ORDER BY f."order", f.id`

	presetsQuery = `
SELECT p.id, p.name, p.description, t.key, p.default_label, p.default_help_text, p.default_validations
FROM forms_fieldpreset p
JOIN forms_fieldtype t ON t.id = p.field_type_id
WHERE p.id IN (SELECT preset_id FROM forms_formfield WHERE form_id = $1)
ORDER BY p.id`

	rulesQuery = `
SELECT r.field_id, r.condition, r.action
FROM forms_formfieldrule r
JOIN forms_formfield f ON f.id = r.field_id
WHERE f.form_id = $1
ORDER BY r.field_id, r.id`

	responseQuery = `SELECT id, form_id, created_at FROM forms_formresponse WHERE id = $1`

	responseValuesQuery = `
SELECT field_id, value
FROM forms_formfieldresponse
WHERE response_id = $1
ORDER BY field_id, id`

	validationTypesQuery = `
SELECT v.id, v.key, v.label, v.parameter_schema, v.default_error_message,
       COALESCE(array_agg(t.key ORDER BY t.key) FILTER (WHERE t.key IS NOT NULL), '{}')
FROM forms_validationtype v
LEFT JOIN forms_validationtype_applicable_field_types a ON a.validationtype_id = v.id
LEFT JOIN forms_fieldtype t ON t.id = a.fieldtype_id
GROUP BY v.id
ORDER BY v.key`
)

// LoadForm reads a form with its fields, presets and rules as a document
// ready for formlogic.Compile.
func (s *Store) LoadForm(ctx context.Context, formID int64) (*formlogic.FormDocument, error) {
	var form formRow
	err := s.pool.QueryRow(ctx, formQuery, formID).Scan(&form.ID, &form.Title, &form.ExpirationDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: form %d", ErrNotFound, formID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load form %d: %w", formID, err)
	}

	fields, err := collect(ctx, s.pool, fieldsQuery, formID, func(rows pgx.Rows) (fieldRow, error) {
		var f fieldRow
		err := rows.Scan(&f.ID, &f.PresetID, &f.Label, &f.HelpText, &f.ValidationsOverride, &f.Order, &f.ConditionalLogic)
		return f, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load fields of form %d: %w", formID, err)
	}

	presets, err := collect(ctx, s.pool, presetsQuery, formID, func(rows pgx.Rows) (presetRow, error) {
		var p presetRow
		err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.FieldType, &p.DefaultLabel, &p.DefaultHelpText, &p.DefaultValidations)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load presets of form %d: %w", formID, err)
	}

	rules, err := collect(ctx, s.pool, rulesQuery, formID, func(rows pgx.Rows) (ruleRow, error) {
		var r ruleRow
		err := rows.Scan(&r.FieldID, &r.Condition, &r.Action)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load rules of form %d: %w", formID, err)
	}

	return assembleForm(form, fields, presets, rules)
}

// LoadResponse reads one response and its field values.
func (s *Store) LoadResponse(ctx context.Context, responseID int64) (*Response, error) {
	var resp Response
	err := s.pool.QueryRow(ctx, responseQuery, responseID).Scan(&resp.ID, &resp.FormID, &resp.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: response %d", ErrNotFound, responseID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load response %d: %w", responseID, err)
	}

	values, err := collect(ctx, s.pool, responseValuesQuery, responseID, func(rows pgx.Rows) (valueRow, error) {
		var v valueRow
		err := rows.Scan(&v.FieldID, &v.Value)
		return v, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load values of response %d: %w", responseID, err)
	}

	resp.Values, err = assembleResponse(values)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// LoadValidationTypes reads the validation type table as registry overrides.
func (s *Store) LoadValidationTypes(ctx context.Context) ([]formlogic.ValidationType, error) {
	rows, err := s.pool.Query(ctx, validationTypesQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to load validation types: %w", err)
	}
	typeRows, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (validationTypeRow, error) {
		var v validationTypeRow
		err := row.Scan(&v.ID, &v.Key, &v.Label, &v.ParameterSchema, &v.DefaultErrorMessage, &v.FieldTypes)
		return v, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load validation types: %w", err)
	}
	return assembleValidationTypes(typeRows)
}

// collect runs a query with one id argument and scans every row.
func collect[T any](ctx context.Context, pool *pgxpool.Pool, query string, id int64, scan func(pgx.Rows) (T, error)) ([]T, error) {
	rows, err := pool.Query(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}
