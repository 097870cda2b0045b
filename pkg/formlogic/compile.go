package formlogic

import (
	"fmt"
	"sort"
	"strings"
)

// Compile turns a stored form document into a Form. Problems inside one
// field's validations or logic are recorded on that field; only structural
// problems (missing or duplicate ids, bad dates) fail the whole document.
func Compile(doc *FormDocument, reg *Registry) (*Form, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: nil form document", ErrInvalidInput)
	}
	if reg == nil {
		reg = defaultRegistry
	}

	form := &Form{ID: doc.ID, Title: doc.Title}
	if doc.ValidFrom != "" {
		t, ok := parseDate(doc.ValidFrom)
		if !ok {
			return nil, fmt.Errorf("%w: valid_from '%s' is not a date", ErrInvalidInput, doc.ValidFrom)
		}
		form.ValidFrom = &t
	}
	if doc.ExpiresAt != "" {
		t, ok := parseDate(doc.ExpiresAt)
		if !ok {
			return nil, fmt.Errorf("%w: expires_at '%s' is not a date", ErrInvalidInput, doc.ExpiresAt)
		}
		form.ExpiresAt = &t
	}

	docs := make([]*FieldDocument, 0, len(doc.Fields))
	seen := make(map[string]bool, len(doc.Fields))
	for i, fd := range doc.Fields {
		if fd == nil {
			return nil, fmt.Errorf("%w: field %d is null", ErrInvalidInput, i)
		}
		if fd.ID == "" {
			return nil, fmt.Errorf("%w: field %d has no id", ErrInvalidInput, i)
		}
		if seen[fd.ID] {
			return nil, fmt.Errorf("%w: '%s'", ErrDuplicateField, fd.ID)
		}
		seen[fd.ID] = true
		docs = append(docs, fd)
	}
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].Order < docs[j].Order })

	form.Fields = make([]*FieldDefinition, 0, len(docs))
	for _, fd := range docs {
		form.Fields = append(form.Fields, compileField(fd, doc.Presets, reg))
	}
	return form, nil
}

func compileField(fd *FieldDocument, presets map[string]*PresetDocument, reg *Registry) *FieldDefinition {
	def := &FieldDefinition{
		ID:       fd.ID,
		Type:     fd.Type,
		Label:    fd.Label,
		HelpText: fd.HelpText,
		Hidden:   fd.Hidden,
	}
	addErr := func(source, format string, args ...any) {
		def.ConfigErrors = append(def.ConfigErrors, ConfigError{
			Field:   fd.ID,
			Source:  source,
			Message: fmt.Sprintf(format, args...),
		})
	}

	validations := fd.Validations
	if fd.Preset != "" {
		preset, ok := presets[fd.Preset]
		if !ok || preset == nil {
			addErr("preset", "unknown preset '%s'", fd.Preset)
		} else {
			if def.Type == "" {
				def.Type = preset.FieldType
			}
			if def.Label == "" {
				def.Label = preset.DefaultLabel
			}
			if def.HelpText == "" {
				def.HelpText = preset.DefaultHelpText
			}
			validations = mergeValidations(preset.DefaultValidations, fd.Validations)
		}
	}

	for _, c := range fd.Choices {
		def.Choices = append(def.Choices, elementText(c))
	}

	spec, errs := compileValidations(fd.ID, def.Type, validations, reg)
	def.ConfigErrors = append(def.ConfigErrors, errs...)
	if len(def.Choices) > 0 && !spec.Has(CheckChoices) {
		spec = NewValidationSpec(append(spec.Checks(), ChoicesCheck{Allowed: def.Choices})...).WithRegistry(reg)
	}
	def.Validation = spec

	if len(fd.ConditionalLogic) > 0 {
		cl, err := compileLogic(fd.ConditionalLogic)
		if err != nil {
			addErr("conditional_logic", "%v", err)
		} else {
			def.Logic = cl
		}
	}

	for i, rd := range fd.Rules {
		source := fmt.Sprintf("rules[%d]", i)
		if rd == nil {
			addErr(source, "rule is null")
			continue
		}
		cond, err := compileCondition(rd.Condition, "condition")
		if err != nil {
			addErr(source, "%v", err)
			continue
		}
		actions, err := compileActions(rd.Action)
		if err != nil {
			addErr(source+".action", "%v", err)
			continue
		}
		def.Rules = append(def.Rules, ConditionalLogic{Condition: cond, Actions: actions})
	}
	return def
}

// mergeValidations overlays a field's overrides on its preset's defaults.
func mergeValidations(defaults, overrides map[string]any) map[string]any {
	out := make(map[string]any, len(defaults)+len(overrides))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

// compileValidations checks each declared parameter against its validation
// type before building the typed check.
func compileValidations(fieldID, fieldType string, raw map[string]any, reg *Registry) (ValidationSpec, []ConfigError) {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ki, kj := checkKindOf(keys[i]), checkKindOf(keys[j])
		if ki != kj {
			return ki < kj
		}
		return keys[i] < keys[j]
	})

	var (
		checks []Check
		errs   []ConfigError
	)
	for _, key := range keys {
		param := raw[key]
		source := "validations." + key
		fail := func(format string, args ...any) {
			errs = append(errs, ConfigError{Field: fieldID, Source: source, Message: fmt.Sprintf(format, args...)})
		}

		vt, ok := reg.Lookup(key)
		if !ok {
			fail("unknown validation '%s'", key)
			continue
		}
		if !vt.AppliesTo(fieldType) {
			fail("not applicable to field type '%s'", fieldType)
			continue
		}
		if err := vt.checkParams(param); err != nil {
			fail("%v", err)
			continue
		}
		check, err := buildCheck(checkKindOf(key), param)
		if err != nil {
			fail("%v", err)
			continue
		}
		if check != nil {
			checks = append(checks, check)
		}
	}
	return NewValidationSpec(checks...).WithRegistry(reg), errs
}

// buildCheck constructs the typed check for an already schema-checked parameter.
// A nil check with a nil error means the declaration is a no-op (required: false).
func buildCheck(kind CheckKind, param any) (Check, error) {
	switch kind {
	case CheckRequired:
		b, ok := param.(bool)
		if !ok {
			return nil, fmt.Errorf("required must be a boolean")
		}
		if !b {
			return nil, nil
		}
		return RequiredCheck{}, nil
	case CheckMinLength, CheckMaxLength:
		n, ok := ValueOf(param).Number()
		if !ok || n < 0 || n != float64(int(n)) {
			return nil, fmt.Errorf("%s must be a non-negative integer", kind)
		}
		if kind == CheckMinLength {
			return MinLengthCheck{Length: int(n)}, nil
		}
		return MaxLengthCheck{Length: int(n)}, nil
	case CheckRegex:
		pattern, ok := param.(string)
		if !ok {
			return nil, fmt.Errorf("regex must be a string")
		}
		return NewRegexCheck(pattern)
	case CheckChoices:
		items, ok := param.([]any)
		if !ok {
			return nil, fmt.Errorf("choices must be a list")
		}
		allowed := make([]string, len(items))
		for i, item := range items {
			allowed[i] = elementText(item)
		}
		return ChoicesCheck{Allowed: allowed}, nil
	case CheckMin, CheckMax:
		v := ValueOf(param)
		if v.Kind() != KindNumber {
			return nil, fmt.Errorf("%s must be a number", kind)
		}
		n, _ := v.Number()
		if kind == CheckMin {
			return MinCheck{Bound: n}, nil
		}
		return MaxCheck{Bound: n}, nil
	case CheckAllowedDomains:
		items, ok := param.([]any)
		if !ok || len(items) == 0 {
			return nil, fmt.Errorf("allowed_domains must be a non-empty list")
		}
		domains := make([]string, len(items))
		for i, item := range items {
			s, ok := item.(string)
			if !ok || s == "" {
				return nil, fmt.Errorf("allowed_domains entries must be non-empty strings")
			}
			domains[i] = s
		}
		return AllowedDomainsCheck{Domains: domains}, nil
	case CheckCustom:
		m, ok := asMap(param)
		if !ok {
			return nil, fmt.Errorf("custom must be an object with operator and value")
		}
		op, _ := m["operator"].(string)
		if !CustomOperator(op).valid() {
			return nil, fmt.Errorf("unknown custom operator '%s'", op)
		}
		return NewCustomCheck(CustomOperator(op), ValueOf(m["value"]))
	}
	return nil, fmt.Errorf("unknown validation '%s'", kind)
}

// compileLogic parses a stored conditional_logic block:
// {"condition": <expr>, "actions": [...]}; "action" is accepted for a single action.
func compileLogic(raw map[string]any) (*ConditionalLogic, error) {
	for k := range raw {
		switch k {
		case "condition", "actions", "action":
		default:
			return nil, fmt.Errorf("unknown key '%s'", k)
		}
	}
	condRaw, ok := raw["condition"]
	if !ok {
		return nil, fmt.Errorf("missing condition")
	}
	cond, err := compileCondition(condRaw, "condition")
	if err != nil {
		return nil, err
	}

	actionsRaw, ok := raw["actions"]
	if !ok {
		actionsRaw, ok = raw["action"]
	}
	if !ok {
		return nil, fmt.Errorf("missing actions")
	}
	actions, err := compileActions(actionsRaw)
	if err != nil {
		return nil, err
	}
	return &ConditionalLogic{Condition: cond, Actions: actions}, nil
}

// compileCondition parses a condition tree: a leaf {field, operator, value} or
// a compound {all: [...]} / {any: [...]}.
func compileCondition(raw any, path string) (Condition, error) {
	m, ok := asMap(raw)
	if !ok {
		return nil, fmt.Errorf("%s: must be an object", path)
	}

	if len(m) == 1 {
		for key, children := range m {
			if key != "all" && key != "any" {
				break
			}
			list, ok := children.([]any)
			if !ok {
				return nil, fmt.Errorf("%s.%s: must be a list", path, key)
			}
			conds := make([]Condition, 0, len(list))
			for i, child := range list {
				c, err := compileCondition(child, fmt.Sprintf("%s.%s[%d]", path, key, i))
				if err != nil {
					return nil, err
				}
				conds = append(conds, c)
			}
			if key == "all" {
				return All(conds), nil
			}
			return Any(conds), nil
		}
	}

	for k := range m {
		switch k {
		case "field", "operator", "value":
		default:
			return nil, fmt.Errorf("%s: unknown key '%s'", path, k)
		}
	}
	field, _ := m["field"].(string)
	if field == "" {
		return nil, fmt.Errorf("%s: field must be a non-empty string", path)
	}
	opName, _ := m["operator"].(string)
	op := Operator(opName)
	value := ValueOf(m["value"])
	if (op == OpIn || op == OpNotIn) && value.Kind() != KindList {
		return nil, fmt.Errorf("%s: %v", path, &literalError{op: op, want: "a list value"})
	}
	leaf, err := NewLeaf(field, op, value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return leaf, nil
}

// compileActions parses one action or a list of actions. An action is one of
// "show", "hide", "require", "optional", or {"set_value": <literal>} /
// {"set_value": {"expr": "<expression>"}}.
func compileActions(raw any) ([]Action, error) {
	if list, ok := raw.([]any); ok {
		if len(list) == 0 {
			return nil, fmt.Errorf("no actions")
		}
		out := make([]Action, 0, len(list))
		for i, item := range list {
			a, err := compileAction(item)
			if err != nil {
				return nil, fmt.Errorf("actions[%d]: %w", i, err)
			}
			out = append(out, a)
		}
		return out, nil
	}
	a, err := compileAction(raw)
	if err != nil {
		return nil, err
	}
	return []Action{a}, nil
}

func compileAction(raw any) (Action, error) {
	if name, ok := raw.(string); ok {
		switch ActionKind(strings.TrimSpace(name)) {
		case ActionShow:
			return Show(), nil
		case ActionHide:
			return Hide(), nil
		case ActionRequire:
			return Require(), nil
		case ActionOptional:
			return Optional(), nil
		case ActionSetValue:
			return Action{}, fmt.Errorf("set_value needs a value")
		}
		return Action{}, fmt.Errorf("unknown action '%s'", name)
	}

	m, ok := asMap(raw)
	if !ok || len(m) != 1 {
		return Action{}, fmt.Errorf("action must be a name or {\"set_value\": value}")
	}
	v, ok := m[string(ActionSetValue)]
	if !ok {
		for k := range m {
			return Action{}, fmt.Errorf("unknown action '%s'", k)
		}
	}
	if em, ok := asMap(v); ok {
		source, _ := em["expr"].(string)
		if len(em) != 1 || source == "" {
			return Action{}, fmt.Errorf("set_value object must be {\"expr\": \"...\"}")
		}
		return SetValueExpr(source)
	}
	return SetValue(ValueOf(v)), nil
}

// asMap accepts both decoded JSON objects and YAML mappings.
func asMap(raw any) (map[string]any, bool) {
	switch m := raw.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[fmt.Sprintf("%v", k)] = v
		}
		return out, true
	}
	return nil, false
}
