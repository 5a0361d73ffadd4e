package common

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hylla/remiss/internal/app"
	"github.com/hylla/remiss/internal/domain"
)

// AppServiceAdapter maps transport contracts onto app.Service case APIs. It
// also enforces the submission-surface policy that only the current holding
// department may submit documentation or send the case onward.
type AppServiceAdapter struct {
	service *app.Service
}

// NewAppServiceAdapter builds one common adapter over an app.Service instance.
func NewAppServiceAdapter(service *app.Service) *AppServiceAdapter {
	return &AppServiceAdapter{service: service}
}

// OpenCase opens a new case at its originating department.
func (a *AppServiceAdapter) OpenCase(ctx context.Context, in OpenCaseRequest) (CaseView, error) {
	if a == nil || a.service == nil {
		return CaseView{}, fmt.Errorf("app service adapter is not configured: %w", ErrInvalidRequest)
	}
	actor, err := normalizeActorInput(in.Actor)
	if err != nil {
		return CaseView{}, err
	}
	if strings.TrimSpace(in.Originating) == "" {
		return CaseView{}, fmt.Errorf("originating_department is required: %w", ErrInvalidRequest)
	}
	ctx = app.WithActor(ctx, actor)
	wf, err := a.service.OpenCase(ctx, app.OpenCaseInput{
		Title:       in.Title,
		Reference:   in.Reference,
		Originating: domain.Department(in.Originating),
		Actor:       actor,
	})
	if err != nil {
		return CaseView{}, mapAppError("open case", err)
	}
	return a.caseView(wf), nil
}

// GetCase loads one case aggregate view.
func (a *AppServiceAdapter) GetCase(ctx context.Context, caseID string) (CaseView, error) {
	if a == nil || a.service == nil {
		return CaseView{}, fmt.Errorf("app service adapter is not configured: %w", ErrInvalidRequest)
	}
	caseID = strings.TrimSpace(caseID)
	if caseID == "" {
		return CaseView{}, fmt.Errorf("case_id is required: %w", ErrInvalidRequest)
	}
	wf, err := a.service.GetCase(ctx, caseID)
	if err != nil {
		return CaseView{}, mapAppError("get case", err)
	}
	return a.caseView(wf), nil
}

// SubmitSection validates and locks one documentation submission. The acting
// department must hold the case at submission time.
func (a *AppServiceAdapter) SubmitSection(ctx context.Context, in SubmitSectionRequest) (SectionView, error) {
	if a == nil || a.service == nil {
		return SectionView{}, fmt.Errorf("app service adapter is not configured: %w", ErrInvalidRequest)
	}
	actor, err := normalizeActorInput(in.Actor)
	if err != nil {
		return SectionView{}, err
	}
	caseID := strings.TrimSpace(in.CaseID)
	if caseID == "" {
		return SectionView{}, fmt.Errorf("case_id is required: %w", ErrInvalidRequest)
	}
	if strings.TrimSpace(in.TemplateID) == "" {
		return SectionView{}, fmt.Errorf("template_id is required: %w", ErrInvalidRequest)
	}

	wf, err := a.service.GetCase(ctx, caseID)
	if err != nil {
		return SectionView{}, mapAppError("submit section", err)
	}
	if actor.Department != wf.CurrentDepartment {
		return SectionView{}, fmt.Errorf("department %q cannot submit while case is with %q: %w",
			actor.Department, wf.CurrentDepartment, ErrNotCurrentHolder)
	}

	ctx = app.WithActor(ctx, actor)
	_, section, err := a.service.SubmitSection(ctx, app.SubmitSectionInput{
		CaseID:     caseID,
		TemplateID: strings.TrimSpace(in.TemplateID),
		Values:     domain.Values(in.Values),
		Actor:      actor,
	})
	if err != nil {
		return SectionView{}, mapAppError("submit section", err)
	}
	return sectionView(section), nil
}

// SendCase hands the case off to another department.
func (a *AppServiceAdapter) SendCase(ctx context.Context, in SendCaseRequest) (CaseView, error) {
	if a == nil || a.service == nil {
		return CaseView{}, fmt.Errorf("app service adapter is not configured: %w", ErrInvalidRequest)
	}
	actor, err := normalizeActorInput(in.Actor)
	if err != nil {
		return CaseView{}, err
	}
	caseID := strings.TrimSpace(in.CaseID)
	if caseID == "" {
		return CaseView{}, fmt.Errorf("case_id is required: %w", ErrInvalidRequest)
	}
	if strings.TrimSpace(in.To) == "" {
		return CaseView{}, fmt.Errorf("to_department is required: %w", ErrInvalidRequest)
	}
	ctx = app.WithActor(ctx, actor)
	wf, err := a.service.SendCase(ctx, app.SendCaseInput{
		CaseID: caseID,
		To:     domain.Department(in.To),
		Notes:  in.Notes,
		Actor:  actor,
	})
	if err != nil {
		return CaseView{}, mapAppError("send case", err)
	}
	return a.caseView(wf), nil
}

// SectionsForDepartment returns one department's locked sections in append order.
func (a *AppServiceAdapter) SectionsForDepartment(ctx context.Context, caseID, department string) ([]SectionView, error) {
	if a == nil || a.service == nil {
		return nil, fmt.Errorf("app service adapter is not configured: %w", ErrInvalidRequest)
	}
	caseID = strings.TrimSpace(caseID)
	if caseID == "" {
		return nil, fmt.Errorf("case_id is required: %w", ErrInvalidRequest)
	}
	if strings.TrimSpace(department) == "" {
		return nil, fmt.Errorf("department is required: %w", ErrInvalidRequest)
	}
	sections, err := a.service.SectionsForDepartment(ctx, caseID, domain.Department(department))
	if err != nil {
		return nil, mapAppError("list sections", err)
	}
	out := make([]SectionView, 0, len(sections))
	for _, section := range sections {
		out = append(out, sectionView(section))
	}
	return out, nil
}

// RoutingHistory returns one case's routing entries in call order.
func (a *AppServiceAdapter) RoutingHistory(ctx context.Context, caseID string) ([]RoutingView, error) {
	if a == nil || a.service == nil {
		return nil, fmt.Errorf("app service adapter is not configured: %w", ErrInvalidRequest)
	}
	caseID = strings.TrimSpace(caseID)
	if caseID == "" {
		return nil, fmt.Errorf("case_id is required: %w", ErrInvalidRequest)
	}
	wf, err := a.service.GetCase(ctx, caseID)
	if err != nil {
		return nil, mapAppError("routing history", err)
	}
	out := make([]RoutingView, 0, len(wf.RoutingHistory))
	for _, entry := range wf.RoutingHistory {
		out = append(out, RoutingView{
			Department: string(entry.Department),
			SentByName: entry.SentByName,
			SentAt:     entry.SentAt,
			Notes:      entry.Notes,
		})
	}
	return out, nil
}

// ListTemplates returns the section templates available to one department.
func (a *AppServiceAdapter) ListTemplates(ctx context.Context, department string) ([]TemplateView, error) {
	if a == nil || a.service == nil {
		return nil, fmt.Errorf("app service adapter is not configured: %w", ErrInvalidRequest)
	}
	if strings.TrimSpace(department) == "" {
		return nil, fmt.Errorf("department is required: %w", ErrInvalidRequest)
	}
	templates, err := a.service.TemplatesForDepartment(domain.Department(department))
	if err != nil {
		return nil, mapAppError("list templates", err)
	}
	out := make([]TemplateView, 0, len(templates))
	for _, tmpl := range templates {
		out = append(out, templateView(tmpl))
	}
	return out, nil
}

// ListDepartments returns every routable department with its display name.
func (a *AppServiceAdapter) ListDepartments(_ context.Context) ([]DepartmentView, error) {
	if a == nil || a.service == nil {
		return nil, fmt.Errorf("app service adapter is not configured: %w", ErrInvalidRequest)
	}
	depts := a.service.Departments()
	out := make([]DepartmentView, 0, len(depts))
	for _, dept := range depts {
		out = append(out, DepartmentView{
			ID:   string(dept),
			Name: a.service.DepartmentName(dept),
		})
	}
	return out, nil
}

// caseView converts one domain aggregate into its transport shape.
func (a *AppServiceAdapter) caseView(wf domain.Workflow) CaseView {
	completed := make([]string, 0, len(wf.CompletedDepartments))
	for _, dept := range wf.CompletedDepartments {
		completed = append(completed, string(dept))
	}
	sections := make([]SectionView, 0, len(wf.Sections))
	for _, section := range wf.Sections {
		sections = append(sections, sectionView(section))
	}
	routing := make([]RoutingView, 0, len(wf.RoutingHistory))
	for _, entry := range wf.RoutingHistory {
		routing = append(routing, RoutingView{
			Department: string(entry.Department),
			SentByName: entry.SentByName,
			SentAt:     entry.SentAt,
			Notes:      entry.Notes,
		})
	}
	return CaseView{
		CaseID:               wf.CaseID,
		Title:                wf.Title,
		Reference:            wf.Reference,
		OpenedByUserID:       wf.OpenedByUserID,
		OpenedByName:         wf.OpenedByName,
		OpenedAt:             wf.OpenedAt,
		CurrentDepartment:    string(wf.CurrentDepartment),
		CompletedDepartments: completed,
		FullyRouted:          a.service.IsFullyRouted(wf),
		Sections:             sections,
		RoutingHistory:       routing,
	}
}

// sectionView converts one locked section into its transport shape.
func sectionView(section domain.CompletedSection) SectionView {
	return SectionView{
		ID:                section.ID,
		TemplateID:        section.TemplateID,
		Department:        string(section.Department),
		CompletedByUserID: section.CompletedByUserID,
		CompletedByName:   section.CompletedByName,
		CompletedAt:       section.CompletedAt,
		Values:            map[string]any(section.Values),
		Locked:            section.Locked,
	}
}

// templateView converts one template into its transport shape.
func templateView(tmpl domain.Template) TemplateView {
	fields := make([]FieldView, 0, len(tmpl.Fields))
	for _, field := range tmpl.Fields {
		fields = append(fields, FieldView{
			ID:       field.ID,
			Label:    field.Label,
			Type:     string(field.Type),
			Required: field.Required,
			Options:  append([]string(nil), field.Options...),
		})
	}
	return TemplateView{
		ID:         tmpl.ID,
		Department: string(tmpl.Department),
		Name:       tmpl.Name,
		Fields:     fields,
	}
}

// normalizeActorInput validates and trims the transport actor shape.
func normalizeActorInput(in ActorInput) (domain.Actor, error) {
	actor := domain.Actor{
		Department: domain.NormalizeDepartment(in.Department),
		UserID:     strings.TrimSpace(in.UserID),
		Name:       strings.TrimSpace(in.Name),
	}
	if actor.Department == domain.DepartmentNone {
		return domain.Actor{}, fmt.Errorf("actor.department is required: %w", ErrInvalidRequest)
	}
	if actor.Name == "" {
		return domain.Actor{}, fmt.Errorf("actor.name is required: %w", ErrInvalidRequest)
	}
	return actor, nil
}

// mapAppError translates app and domain failures into transport sentinels while
// preserving the original error for detail extraction.
func mapAppError(op string, err error) error {
	var validationErr *domain.ValidationError
	var typeErr *domain.TypeError
	var authErr *domain.AuthorizationError
	switch {
	case errors.Is(err, app.ErrNotFound):
		return fmt.Errorf("%s: %w", op, errors.Join(ErrNotFound, err))
	case errors.Is(err, app.ErrConflict):
		return fmt.Errorf("%s: %w", op, errors.Join(ErrConflict, err))
	case errors.As(err, &authErr):
		return fmt.Errorf("%s: %w", op, errors.Join(ErrNotCurrentHolder, err))
	case errors.As(err, &validationErr), errors.As(err, &typeErr):
		return fmt.Errorf("%s: %w", op, errors.Join(ErrInvalidRequest, err))
	case errors.Is(err, domain.ErrInvalidCaseID),
		errors.Is(err, domain.ErrInvalidDepartment),
		errors.Is(err, domain.ErrInvalidTemplate),
		errors.Is(err, domain.ErrInvalidActor):
		return fmt.Errorf("%s: %w", op, errors.Join(ErrInvalidRequest, err))
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// ValidationFailureFrom extracts user-displayable validation detail, if any.
func ValidationFailureFrom(err error) (ValidationFailure, bool) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		return ValidationFailure{
			TemplateID:    validationErr.TemplateID,
			MissingLabels: append([]string(nil), validationErr.MissingLabels...),
		}, true
	}
	var typeErr *domain.TypeError
	if errors.As(err, &typeErr) {
		return ValidationFailure{
			FieldID:    typeErr.FieldID,
			FieldLabel: typeErr.Label,
		}, true
	}
	return ValidationFailure{}, false
}
