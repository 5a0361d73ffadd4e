package app

import (
	"context"

	"github.com/hylla/remiss/internal/domain"
)

// Repository persists workflow aggregates. SaveWorkflow must compare-and-swap
// on expectedVersion and return ErrConflict when the stored version moved, so
// the service can re-read, recompute, and retry. Writes to a single case are
// serialized by the store.
type Repository interface {
	CreateWorkflow(ctx context.Context, wf domain.Workflow) error
	LoadWorkflow(ctx context.Context, caseID string) (domain.Workflow, int64, error)
	SaveWorkflow(ctx context.Context, wf domain.Workflow, expectedVersion int64) error
}

// Catalog supplies the closed department set and the documentation templates
// each department owns. Read-only to the engine.
type Catalog interface {
	Departments() []domain.Department
	DepartmentName(dept domain.Department) string
	IsKnownDepartment(dept domain.Department) bool
	TemplatesForDepartment(dept domain.Department) []domain.Template
	TemplateByID(id string) (domain.Template, bool)
}
