package domain

import (
	"strings"
	"time"
)

// Workflow is the aggregate exchanged with external storage: static case
// metadata plus the documentation ledger and routing state for one case. Engine
// operations never mutate a Workflow in place; each returns a fresh value so
// callers can apply optimistic concurrency at the storage boundary.
type Workflow struct {
	CaseID               string
	Title                string
	Reference            string
	OpenedByUserID       string
	OpenedByName         string
	OpenedAt             time.Time
	CurrentDepartment    Department
	CompletedDepartments []Department
	Sections             []CompletedSection
	RoutingHistory       []RoutingEntry
}

// WorkflowInput holds input values for opening a case into the workflow.
type WorkflowInput struct {
	CaseID         string
	Title          string
	Reference      string
	OpenedByUserID string
	OpenedByName   string
	Originating    Department
}

// NewWorkflow opens a case: current department set to the originating
// department and all collections empty.
func NewWorkflow(in WorkflowInput, now time.Time) (Workflow, error) {
	in.CaseID = strings.TrimSpace(in.CaseID)
	in.Title = strings.TrimSpace(in.Title)
	in.Reference = strings.TrimSpace(in.Reference)
	in.OpenedByName = strings.TrimSpace(in.OpenedByName)

	if in.CaseID == "" {
		return Workflow{}, ErrInvalidCaseID
	}
	if in.Originating == DepartmentNone {
		return Workflow{}, ErrInvalidDepartment
	}

	return Workflow{
		CaseID:               in.CaseID,
		Title:                in.Title,
		Reference:            in.Reference,
		OpenedByUserID:       strings.TrimSpace(in.OpenedByUserID),
		OpenedByName:         in.OpenedByName,
		OpenedAt:             now.UTC(),
		CurrentDepartment:    in.Originating,
		CompletedDepartments: []Department{},
		Sections:             []CompletedSection{},
		RoutingHistory:       []RoutingEntry{},
	}, nil
}

// AppendSection validates a submission and locks it into the documentation
// ledger, returning the new aggregate plus the created section. The acting
// department is not required to match the current holder here; that policy
// belongs to the calling surface. The input workflow is left untouched.
func (w Workflow) AppendSection(tmpl Template, values Values, actor Actor, sectionID string, now time.Time) (Workflow, CompletedSection, error) {
	sectionID = strings.TrimSpace(sectionID)
	if sectionID == "" {
		return w, CompletedSection{}, ErrInvalidCaseID
	}
	if strings.TrimSpace(actor.Name) == "" {
		return w, CompletedSection{}, ErrInvalidActor
	}
	if err := ValidateSection(tmpl, values); err != nil {
		return w, CompletedSection{}, err
	}

	section := newCompletedSection(sectionID, tmpl, values, actor, now)
	next := w.clone()
	next.Sections = append(next.Sections, section)
	return next, section, nil
}

// SendTo hands the case off to another department. The acting department must
// be the current holder or the call fails with an AuthorizationError and the
// workflow is returned unchanged. A successful hand-off marks the acting
// department complete (idempotently), appends one routing-history entry, and
// moves the case. Sending to an already-completed department is legal and
// simply makes it the holder again; its locked sections are untouched.
func (w Workflow) SendTo(to Department, sentByName, notes string, acting Department, now time.Time) (Workflow, error) {
	if to == DepartmentNone {
		return w, ErrInvalidDepartment
	}
	if strings.TrimSpace(sentByName) == "" {
		return w, ErrInvalidActor
	}
	if acting != w.CurrentDepartment {
		return w, &AuthorizationError{Acting: acting, Current: w.CurrentDepartment}
	}

	next := w.clone()
	if !containsDepartment(next.CompletedDepartments, acting) {
		next.CompletedDepartments = append(next.CompletedDepartments, acting)
	}
	next.RoutingHistory = append(next.RoutingHistory, RoutingEntry{
		Department: to,
		SentByName: strings.TrimSpace(sentByName),
		SentAt:     now.UTC(),
		Notes:      strings.TrimSpace(notes),
	})
	next.CurrentDepartment = to
	return next, nil
}

// SectionsForDepartment returns the department's locked sections in append
// order.
func (w Workflow) SectionsForDepartment(dept Department) []CompletedSection {
	out := make([]CompletedSection, 0)
	for _, section := range w.Sections {
		if section.Department == dept {
			out = append(out, section)
		}
	}
	return out
}

// IsDepartmentComplete reports whether the department has completed its work
// on the case at least once.
func (w Workflow) IsDepartmentComplete(dept Department) bool {
	return containsDepartment(w.CompletedDepartments, dept)
}

// IsFullyRouted reports whether every required department has completed the
// case. Pure set containment; the current holder is not consulted.
func (w Workflow) IsFullyRouted(required []Department) bool {
	for _, dept := range required {
		if !containsDepartment(w.CompletedDepartments, dept) {
			return false
		}
	}
	return true
}

// LastRouted returns the most recent routing-history entry, if any.
func (w Workflow) LastRouted() (RoutingEntry, bool) {
	if len(w.RoutingHistory) == 0 {
		return RoutingEntry{}, false
	}
	return w.RoutingHistory[len(w.RoutingHistory)-1], true
}

// clone copies the aggregate with fresh collection backing so appends on the
// copy can never reach the original.
func (w Workflow) clone() Workflow {
	next := w
	next.CompletedDepartments = append([]Department(nil), w.CompletedDepartments...)
	next.Sections = append([]CompletedSection(nil), w.Sections...)
	next.RoutingHistory = append([]RoutingEntry(nil), w.RoutingHistory...)
	return next
}
