package domain

// Template is a named, department-owned schema of fields used to collect one
// structured documentation submission. Templates are immutable and supplied by
// the catalog; a template belongs to exactly one department.
type Template struct {
	ID         string
	Department Department
	Name       string
	Fields     []FieldSchema
}

// Values maps field ids to candidate submission values.
type Values map[string]any

// ValidateSection decides accept/reject for a candidate value map against a
// template. Every required field must be present (booleans count once set,
// including explicit false). Missing fields fail with a ValidationError listing
// field labels in template order. Present number values that cannot parse as a
// finite number fail with a TypeError. Pure function, no side effects.
func ValidateSection(tmpl Template, values Values) error {
	var missing []string
	for _, field := range tmpl.Fields {
		value, ok := values[field.ID]
		present := field.valuePresent(value, ok)
		if field.Required && !present {
			missing = append(missing, field.Label)
			continue
		}
		if !present {
			continue
		}
		if err := field.checkValueType(value); err != nil {
			return err
		}
	}
	if len(missing) > 0 {
		return &ValidationError{TemplateID: tmpl.ID, MissingLabels: missing}
	}
	return nil
}
