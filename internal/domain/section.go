package domain

import "time"

// CompletedSection is one locked, timestamped submission against a template.
// It is created exactly once and never mutated or deleted afterward; Locked is
// true from creation for the life of the record.
type CompletedSection struct {
	ID                string
	TemplateID        string
	Department        Department
	CompletedByUserID string
	CompletedByName   string
	CompletedAt       time.Time
	Values            Values
	Locked            bool
}

// newCompletedSection locks one validated submission into an immutable record.
// The section is attributed to the department that owns the template, not the
// acting department.
func newCompletedSection(id string, tmpl Template, values Values, actor Actor, now time.Time) CompletedSection {
	return CompletedSection{
		ID:                id,
		TemplateID:        tmpl.ID,
		Department:        tmpl.Department,
		CompletedByUserID: actor.UserID,
		CompletedByName:   actor.Name,
		CompletedAt:       now.UTC(),
		Values:            cloneValues(values),
		Locked:            true,
	}
}

// cloneValues copies a value map so locked sections never alias caller state.
func cloneValues(values Values) Values {
	out := make(Values, len(values))
	for key, value := range values {
		out[key] = value
	}
	return out
}

// Actor carries trusted caller identity for engine operations. The engine
// performs no authentication; identity is supplied by the caller's context.
type Actor struct {
	Department Department
	UserID     string
	Name       string
}
