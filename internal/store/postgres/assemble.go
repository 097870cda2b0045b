package postgres

import (
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/dlovans/formlogic/pkg/formlogic"
)

type formRow struct {
	ID             int64
	Title          string
	ExpirationDate time.Time
}

type fieldRow struct {
	ID                  int64
	PresetID            int64
	Label               string
	HelpText            string
	ValidationsOverride []byte
	Order               int
	ConditionalLogic    []byte
}

type presetRow struct {
	ID                 int64
	Name               string
	Description        string
	FieldType          string
	DefaultLabel       string
	DefaultHelpText    string
	DefaultValidations []byte
}

type ruleRow struct {
	FieldID   int64
	Condition []byte
	Action    []byte
}

type valueRow struct {
	FieldID int64
	Value   []byte
}

type validationTypeRow struct {
	ID                  int64
	Key                 string
	Label               string
	ParameterSchema     []byte
	DefaultErrorMessage string
	FieldTypes          []string
}

// fieldKey is the id a stored field has in documents, conditions and responses.
func fieldKey(id int64) string { return strconv.FormatInt(id, 10) }

// assembleForm builds a form document from table rows. Presets are keyed by
// their primary key; rules attach to their field in row order.
func assembleForm(form formRow, fields []fieldRow, presets []presetRow, rules []ruleRow) (*formlogic.FormDocument, error) {
	doc := &formlogic.FormDocument{
		ID:      fieldKey(form.ID),
		Title:   form.Title,
		Presets: make(map[string]*formlogic.PresetDocument, len(presets)),
		Fields:  make([]*formlogic.FieldDocument, 0, len(fields)),
	}
	if !form.ExpirationDate.IsZero() {
		doc.ExpiresAt = form.ExpirationDate.UTC().Format(time.RFC3339)
	}

	for _, p := range presets {
		defaults, err := decodeObject(p.DefaultValidations)
		if err != nil {
			return nil, fmt.Errorf("preset %d default_validations: %w", p.ID, err)
		}
		doc.Presets[fieldKey(p.ID)] = &formlogic.PresetDocument{
			Description:        p.Description,
			FieldType:          p.FieldType,
			DefaultLabel:       p.DefaultLabel,
			DefaultHelpText:    p.DefaultHelpText,
			DefaultValidations: defaults,
		}
	}

	byID := make(map[int64]*formlogic.FieldDocument, len(fields))
	for _, f := range fields {
		overrides, err := decodeObject(f.ValidationsOverride)
		if err != nil {
			return nil, fmt.Errorf("field %d validations_override: %w", f.ID, err)
		}
		logic, err := decodeObject(f.ConditionalLogic)
		if err != nil {
			return nil, fmt.Errorf("field %d conditional_logic: %w", f.ID, err)
		}
		fd := &formlogic.FieldDocument{
			ID:               fieldKey(f.ID),
			Label:            f.Label,
			HelpText:         f.HelpText,
			Preset:           fieldKey(f.PresetID),
			Order:            f.Order,
			Validations:      overrides,
			ConditionalLogic: logic,
		}
		byID[f.ID] = fd
		doc.Fields = append(doc.Fields, fd)
	}

	for _, r := range rules {
		fd, ok := byID[r.FieldID]
		if !ok {
			continue
		}
		var rd formlogic.RuleDocument
		if err := json.Unmarshal(r.Condition, &rd.Condition); err != nil {
			return nil, fmt.Errorf("rule on field %d condition: %w", r.FieldID, err)
		}
		if err := json.Unmarshal(r.Action, &rd.Action); err != nil {
			return nil, fmt.Errorf("rule on field %d action: %w", r.FieldID, err)
		}
		fd.Rules = append(fd.Rules, &rd)
	}
	return doc, nil
}

// assembleResponse joins stored field values into one JSON object keyed by field id.
func assembleResponse(values []valueRow) ([]byte, error) {
	obj := make(map[string]json.RawMessage, len(values))
	for _, v := range values {
		raw := v.Value
		if len(raw) == 0 {
			raw = []byte("null")
		}
		if !json.Valid(raw) {
			return nil, fmt.Errorf("value of field %d is not JSON", v.FieldID)
		}
		obj[fieldKey(v.FieldID)] = json.RawMessage(raw)
	}
	return json.Marshal(obj)
}

func assembleValidationTypes(rows []validationTypeRow) ([]formlogic.ValidationType, error) {
	out := make([]formlogic.ValidationType, 0, len(rows))
	for _, r := range rows {
		vt := formlogic.ValidationType{
			Key:                  r.Key,
			Label:                r.Label,
			ApplicableFieldTypes: r.FieldTypes,
			DefaultErrorMessage:  r.DefaultErrorMessage,
		}
		if len(r.ParameterSchema) > 0 && string(r.ParameterSchema) != "null" {
			if !json.Valid(r.ParameterSchema) {
				return nil, fmt.Errorf("validation type %q parameter_schema is not JSON", r.Key)
			}
			vt.ParameterSchema = string(r.ParameterSchema)
		}
		out = append(out, vt)
	}
	return out, nil
}

// decodeObject reads a JSON object column. Empty and null columns decode to nil.
func decodeObject(raw []byte) (map[string]any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, nil
	}
	return m, nil
}
