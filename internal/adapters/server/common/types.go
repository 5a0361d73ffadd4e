// Package common provides transport-agnostic server contracts used by HTTP and MCP adapters.
package common

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidRequest reports malformed transport input.
var ErrInvalidRequest = errors.New("invalid request")

// ErrNotFound reports missing transport-visible resources.
var ErrNotFound = errors.New("not found")

// ErrConflict reports a write lost to concurrent case activity.
var ErrConflict = errors.New("conflict")

// ErrNotCurrentHolder reports an action attempted by a department that does not
// hold the case.
var ErrNotCurrentHolder = errors.New("department is not the current holder")

// ActorInput identifies the person and department behind one request.
type ActorInput struct {
	Department string `json:"department"`
	UserID     string `json:"user_id,omitempty"`
	Name       string `json:"name"`
}

// OpenCaseRequest captures input for opening a new case.
type OpenCaseRequest struct {
	Title       string     `json:"title,omitempty"`
	Reference   string     `json:"reference,omitempty"`
	Originating string     `json:"originating_department"`
	Actor       ActorInput `json:"actor"`
}

// SubmitSectionRequest captures one documentation submission.
type SubmitSectionRequest struct {
	CaseID     string         `json:"case_id"`
	TemplateID string         `json:"template_id"`
	Values     map[string]any `json:"values"`
	Actor      ActorInput     `json:"actor"`
}

// SendCaseRequest captures one hand-off to another department.
type SendCaseRequest struct {
	CaseID string     `json:"case_id"`
	To     string     `json:"to_department"`
	Notes  string     `json:"notes,omitempty"`
	Actor  ActorInput `json:"actor"`
}

// SectionView represents one locked ledger entry surfaced by transport adapters.
type SectionView struct {
	ID                string         `json:"id"`
	TemplateID        string         `json:"template_id"`
	Department        string         `json:"department"`
	CompletedByUserID string         `json:"completed_by_user_id,omitempty"`
	CompletedByName   string         `json:"completed_by_name"`
	CompletedAt       time.Time      `json:"completed_at"`
	Values            map[string]any `json:"values"`
	Locked            bool           `json:"locked"`
}

// RoutingView represents one routing-history entry.
type RoutingView struct {
	Department string    `json:"department"`
	SentByName string    `json:"sent_by_name"`
	SentAt     time.Time `json:"sent_at"`
	Notes      string    `json:"notes,omitempty"`
}

// CaseView is the full aggregate view returned to HTTP and MCP callers.
type CaseView struct {
	CaseID               string        `json:"case_id"`
	Title                string        `json:"title,omitempty"`
	Reference            string        `json:"reference,omitempty"`
	OpenedByUserID       string        `json:"opened_by_user_id,omitempty"`
	OpenedByName         string        `json:"opened_by_name,omitempty"`
	OpenedAt             time.Time     `json:"opened_at"`
	CurrentDepartment    string        `json:"current_department"`
	CompletedDepartments []string      `json:"completed_departments"`
	FullyRouted          bool          `json:"fully_routed"`
	Sections             []SectionView `json:"sections"`
	RoutingHistory       []RoutingView `json:"routing_history"`
}

// FieldView describes one template field for client-side form rendering.
type FieldView struct {
	ID       string   `json:"id"`
	Label    string   `json:"label"`
	Type     string   `json:"type"`
	Required bool     `json:"required"`
	Options  []string `json:"options,omitempty"`
}

// TemplateView describes one section template.
type TemplateView struct {
	ID         string      `json:"id"`
	Department string      `json:"department"`
	Name       string      `json:"name"`
	Fields     []FieldView `json:"fields"`
}

// DepartmentView pairs a department id with its display name.
type DepartmentView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ValidationFailure carries user-displayable detail for a rejected submission.
type ValidationFailure struct {
	TemplateID    string   `json:"template_id,omitempty"`
	MissingLabels []string `json:"missing_labels,omitempty"`
	FieldID       string   `json:"field_id,omitempty"`
	FieldLabel    string   `json:"field_label,omitempty"`
}

// CaseService captures the case operations exposed by app services to transports.
type CaseService interface {
	OpenCase(context.Context, OpenCaseRequest) (CaseView, error)
	GetCase(context.Context, string) (CaseView, error)
	SubmitSection(context.Context, SubmitSectionRequest) (SectionView, error)
	SendCase(context.Context, SendCaseRequest) (CaseView, error)
	SectionsForDepartment(context.Context, string, string) ([]SectionView, error)
	RoutingHistory(context.Context, string) ([]RoutingView, error)
	ListTemplates(context.Context, string) ([]TemplateView, error)
	ListDepartments(context.Context) ([]DepartmentView, error)
}
