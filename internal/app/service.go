package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hylla/remiss/internal/domain"
)

// maxSaveAttempts bounds the load, compute, save retry loop on a lost
// optimistic-concurrency race.
const maxSaveAttempts = 3

// IDGenerator returns unique identifiers for new cases and sections.
type IDGenerator func() string

// Clock returns the current time.
type Clock func() time.Time

// ServiceConfig holds configuration for the application service.
type ServiceConfig struct {
	RequiredDepartments []domain.Department
}

// Service orchestrates the routing engine: it loads aggregates from the
// repository, applies the pure domain operations, and writes the result back
// under optimistic concurrency.
type Service struct {
	repo     Repository
	catalog  Catalog
	idGen    IDGenerator
	clock    Clock
	required []domain.Department
}

// NewService constructs the application service.
func NewService(repo Repository, catalog Catalog, idGen IDGenerator, clock Clock, cfg ServiceConfig) *Service {
	if idGen == nil {
		idGen = func() string { return "" }
	}
	if clock == nil {
		clock = time.Now
	}
	required := make([]domain.Department, 0, len(cfg.RequiredDepartments))
	for _, raw := range cfg.RequiredDepartments {
		dept := domain.NormalizeDepartment(string(raw))
		if dept == domain.DepartmentNone || containsDept(required, dept) {
			continue
		}
		required = append(required, dept)
	}
	return &Service{
		repo:     repo,
		catalog:  catalog,
		idGen:    idGen,
		clock:    clock,
		required: required,
	}
}

// OpenCaseInput holds input values for opening a case.
type OpenCaseInput struct {
	Title       string
	Reference   string
	Originating domain.Department
	Actor       domain.Actor
}

// OpenCase creates the workflow aggregate for a new case, holding at the
// originating department with empty collections.
func (s *Service) OpenCase(ctx context.Context, in OpenCaseInput) (domain.Workflow, error) {
	in.Actor = resolveActor(ctx, in.Actor)
	originating := domain.NormalizeDepartment(string(in.Originating))
	if !s.catalog.IsKnownDepartment(originating) {
		return domain.Workflow{}, fmt.Errorf("originating department %q: %w", in.Originating, ErrNotFound)
	}
	wf, err := domain.NewWorkflow(domain.WorkflowInput{
		CaseID:         s.idGen(),
		Title:          in.Title,
		Reference:      in.Reference,
		OpenedByUserID: in.Actor.UserID,
		OpenedByName:   in.Actor.Name,
		Originating:    originating,
	}, s.clock())
	if err != nil {
		return domain.Workflow{}, err
	}
	if err := s.repo.CreateWorkflow(ctx, wf); err != nil {
		return domain.Workflow{}, err
	}
	return wf, nil
}

// GetCase loads one workflow aggregate.
func (s *Service) GetCase(ctx context.Context, caseID string) (domain.Workflow, error) {
	wf, _, err := s.repo.LoadWorkflow(ctx, caseID)
	return wf, err
}

// SubmitSectionInput holds input values for a documentation submission.
type SubmitSectionInput struct {
	CaseID     string
	TemplateID string
	Values     domain.Values
	Actor      domain.Actor
}

// SubmitSection validates a submission against its template and locks it into
// the case's documentation ledger. On a storage conflict the submission is
// recomputed against the fresh aggregate with a fresh section id, bounded to a
// small retry count. ValidationError and TypeError are terminal and propagate
// unchanged.
func (s *Service) SubmitSection(ctx context.Context, in SubmitSectionInput) (domain.Workflow, domain.CompletedSection, error) {
	in.Actor = resolveActor(ctx, in.Actor)
	tmpl, ok := s.catalog.TemplateByID(in.TemplateID)
	if !ok {
		return domain.Workflow{}, domain.CompletedSection{}, fmt.Errorf("template %q: %w", in.TemplateID, ErrNotFound)
	}

	var lastErr error
	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		wf, version, err := s.repo.LoadWorkflow(ctx, in.CaseID)
		if err != nil {
			return domain.Workflow{}, domain.CompletedSection{}, err
		}
		next, section, err := wf.AppendSection(tmpl, in.Values, in.Actor, s.idGen(), s.clock())
		if err != nil {
			return domain.Workflow{}, domain.CompletedSection{}, err
		}
		if err := s.repo.SaveWorkflow(ctx, next, version); err != nil {
			if errors.Is(err, ErrConflict) {
				lastErr = err
				continue
			}
			return domain.Workflow{}, domain.CompletedSection{}, err
		}
		return next, section, nil
	}
	return domain.Workflow{}, domain.CompletedSection{}, fmt.Errorf("submit section after %d attempts: %w", maxSaveAttempts, lastErr)
}

// SendCaseInput holds input values for a hand-off.
type SendCaseInput struct {
	CaseID string
	To     domain.Department
	Notes  string
	Actor  domain.Actor
}

// SendCase hands the case off to another department. AuthorizationError is
// terminal and must never be retried with a substituted actor; only storage
// conflicts are retried, recomputing against the latest aggregate.
func (s *Service) SendCase(ctx context.Context, in SendCaseInput) (domain.Workflow, error) {
	in.Actor = resolveActor(ctx, in.Actor)
	to := domain.NormalizeDepartment(string(in.To))
	if !s.catalog.IsKnownDepartment(to) {
		return domain.Workflow{}, fmt.Errorf("destination department %q: %w", in.To, ErrNotFound)
	}

	var lastErr error
	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		wf, version, err := s.repo.LoadWorkflow(ctx, in.CaseID)
		if err != nil {
			return domain.Workflow{}, err
		}
		next, err := wf.SendTo(to, in.Actor.Name, in.Notes, in.Actor.Department, s.clock())
		if err != nil {
			return domain.Workflow{}, err
		}
		if err := s.repo.SaveWorkflow(ctx, next, version); err != nil {
			if errors.Is(err, ErrConflict) {
				lastErr = err
				continue
			}
			return domain.Workflow{}, err
		}
		return next, nil
	}
	return domain.Workflow{}, fmt.Errorf("send case after %d attempts: %w", maxSaveAttempts, lastErr)
}

// SectionsForDepartment returns a case's locked sections for one department in
// append order.
func (s *Service) SectionsForDepartment(ctx context.Context, caseID string, dept domain.Department) ([]domain.CompletedSection, error) {
	wf, _, err := s.repo.LoadWorkflow(ctx, caseID)
	if err != nil {
		return nil, err
	}
	return wf.SectionsForDepartment(domain.NormalizeDepartment(string(dept))), nil
}

// TemplatesForDepartment returns the catalog templates owned by a department.
func (s *Service) TemplatesForDepartment(dept domain.Department) ([]domain.Template, error) {
	normalized := domain.NormalizeDepartment(string(dept))
	if !s.catalog.IsKnownDepartment(normalized) {
		return nil, fmt.Errorf("department %q: %w", dept, ErrNotFound)
	}
	return s.catalog.TemplatesForDepartment(normalized), nil
}

// Departments returns the closed department set from the catalog.
func (s *Service) Departments() []domain.Department {
	return s.catalog.Departments()
}

// DepartmentName resolves a department's display name.
func (s *Service) DepartmentName(dept domain.Department) string {
	return s.catalog.DepartmentName(dept)
}

// RequiredDepartments returns the configured completion set.
func (s *Service) RequiredDepartments() []domain.Department {
	return append([]domain.Department(nil), s.required...)
}

// IsFullyRouted reports whether every configured required department has
// completed the case.
func (s *Service) IsFullyRouted(wf domain.Workflow) bool {
	return wf.IsFullyRouted(s.required)
}

// resolveActor prefers the explicit actor and falls back to context identity.
func resolveActor(ctx context.Context, actor domain.Actor) domain.Actor {
	actor = normalizeActor(actor)
	if actor.Name != "" || actor.Department != domain.DepartmentNone {
		return actor
	}
	if fromCtx, ok := ActorFromContext(ctx); ok {
		return fromCtx
	}
	return actor
}

// containsDept reports whether dept is present in the list.
func containsDept(list []domain.Department, dept domain.Department) bool {
	for _, d := range list {
		if d == dept {
			return true
		}
	}
	return false
}
