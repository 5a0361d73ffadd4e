package domain

import (
	"math"
	"strconv"
	"strings"
)

// FieldType enumerates the tagged field variants a template may declare.
type FieldType string

// FieldType values supported by documentation templates.
const (
	FieldText     FieldType = "text"
	FieldTextarea FieldType = "textarea"
	FieldNumber   FieldType = "number"
	FieldBoolean  FieldType = "boolean"
	FieldSelect   FieldType = "select"
	FieldDate     FieldType = "date"
)

var validFieldTypes = []FieldType{FieldText, FieldTextarea, FieldNumber, FieldBoolean, FieldSelect, FieldDate}

// IsValidFieldType reports whether t names a supported field variant.
func IsValidFieldType(t FieldType) bool {
	for _, candidate := range validFieldTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// FieldSchema describes one input of a documentation template. Options carry a
// payload only for the select variant. Schemas are immutable configuration.
type FieldSchema struct {
	ID       string
	Label    string
	Type     FieldType
	Required bool
	Options  []string
}

// valuePresent reports whether a submitted value counts as present for this
// field. Empty strings and nils are absent; booleans are present once set,
// including explicit false.
func (f FieldSchema) valuePresent(value any, ok bool) bool {
	if !ok || value == nil {
		return false
	}
	if f.Type == FieldBoolean {
		if _, isBool := value.(bool); isBool {
			return true
		}
	}
	if text, isText := value.(string); isText {
		return strings.TrimSpace(text) != ""
	}
	return true
}

// checkValueType verifies a present value against the field's declared type.
// Only the number variant is checked: the rendering layer owns emitting
// parseable input, so a non-finite or unparseable number is a TypeError, not a
// validation failure. Select values are intentionally not checked against
// Options.
func (f FieldSchema) checkValueType(value any) error {
	if f.Type != FieldNumber {
		return nil
	}
	if _, err := toFiniteNumber(value); err != nil {
		return &TypeError{FieldID: f.ID, Label: f.Label, Value: value}
	}
	return nil
}

// toFiniteNumber coerces a submitted value into a finite float64.
func toFiniteNumber(value any) (float64, error) {
	var parsed float64
	switch v := value.(type) {
	case float64:
		parsed = v
	case float32:
		parsed = float64(v)
	case int:
		parsed = float64(v)
	case int32:
		parsed = float64(v)
	case int64:
		parsed = float64(v)
	case string:
		var err error
		parsed, err = strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, err
		}
	case bool:
		return 0, strconv.ErrSyntax
	default:
		return 0, strconv.ErrSyntax
	}
	if math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return 0, strconv.ErrRange
	}
	return parsed, nil
}
