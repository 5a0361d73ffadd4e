package app

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/hylla/remiss/internal/domain"
)

var testNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

type storedWorkflow struct {
	wf      domain.Workflow
	version int64
}

// fakeRepo keeps aggregates in memory and can inject save conflicts.
type fakeRepo struct {
	cases         map[string]storedWorkflow
	conflictsLeft int
	saveCalls     int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{cases: map[string]storedWorkflow{}}
}

func (f *fakeRepo) CreateWorkflow(_ context.Context, wf domain.Workflow) error {
	if _, exists := f.cases[wf.CaseID]; exists {
		return errors.New("case already exists")
	}
	f.cases[wf.CaseID] = storedWorkflow{wf: wf, version: 1}
	return nil
}

func (f *fakeRepo) LoadWorkflow(_ context.Context, caseID string) (domain.Workflow, int64, error) {
	stored, ok := f.cases[caseID]
	if !ok {
		return domain.Workflow{}, 0, ErrNotFound
	}
	return stored.wf, stored.version, nil
}

func (f *fakeRepo) SaveWorkflow(_ context.Context, wf domain.Workflow, expectedVersion int64) error {
	f.saveCalls++
	if f.conflictsLeft > 0 {
		f.conflictsLeft--
		return ErrConflict
	}
	stored, ok := f.cases[wf.CaseID]
	if !ok {
		return ErrNotFound
	}
	if stored.version != expectedVersion {
		return ErrConflict
	}
	f.cases[wf.CaseID] = storedWorkflow{wf: wf, version: expectedVersion + 1}
	return nil
}

// fakeCatalog serves a fixed two-department catalog.
type fakeCatalog struct{}

func (fakeCatalog) Departments() []domain.Department {
	return []domain.Department{"maintenance", "safety"}
}

func (fakeCatalog) DepartmentName(dept domain.Department) string {
	switch dept {
	case "maintenance":
		return "Maintenance"
	case "safety":
		return "Safety"
	default:
		return ""
	}
}

func (fakeCatalog) IsKnownDepartment(dept domain.Department) bool {
	return dept == "maintenance" || dept == "safety"
}

func (fakeCatalog) TemplatesForDepartment(dept domain.Department) []domain.Template {
	if dept != "maintenance" {
		return nil
	}
	return []domain.Template{testTemplate()}
}

func (fakeCatalog) TemplateByID(id string) (domain.Template, bool) {
	if id != "pre-op-checklist" {
		return domain.Template{}, false
	}
	return testTemplate(), true
}

func testTemplate() domain.Template {
	return domain.Template{
		ID:         "pre-op-checklist",
		Department: "maintenance",
		Name:       "Pre-Operation Checklist",
		Fields: []domain.FieldSchema{
			{ID: "operator_name", Label: "Operator name", Type: domain.FieldText, Required: true},
			{ID: "guards_in_place", Label: "Guards in place", Type: domain.FieldBoolean, Required: true},
		},
	}
}

func newTestService(repo *fakeRepo) *Service {
	seq := 0
	idGen := func() string {
		seq++
		return fmt.Sprintf("id-%d", seq)
	}
	return NewService(repo, fakeCatalog{}, idGen, func() time.Time { return testNow }, ServiceConfig{
		RequiredDepartments: []domain.Department{"maintenance", "safety"},
	})
}

func openTestCase(t *testing.T, svc *Service) domain.Workflow {
	t.Helper()
	wf, err := svc.OpenCase(context.Background(), OpenCaseInput{
		Title:       "Hydraulic press overhaul",
		Reference:   "MX-2041",
		Originating: "maintenance",
		Actor:       domain.Actor{Department: "maintenance", UserID: "u-1", Name: "J. Doe"},
	})
	if err != nil {
		t.Fatalf("OpenCase() error = %v", err)
	}
	return wf
}

func TestOpenCase(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	wf := openTestCase(t, svc)

	if wf.CurrentDepartment != "maintenance" {
		t.Fatalf("CurrentDepartment = %q", wf.CurrentDepartment)
	}
	if wf.CaseID == "" {
		t.Fatalf("case id must be generated")
	}
	stored, _, err := repo.LoadWorkflow(context.Background(), wf.CaseID)
	if err != nil {
		t.Fatalf("LoadWorkflow() error = %v", err)
	}
	if !reflect.DeepEqual(stored, wf) {
		t.Fatalf("stored workflow differs from returned one")
	}
}

func TestOpenCaseUnknownDepartment(t *testing.T) {
	svc := newTestService(newFakeRepo())
	_, err := svc.OpenCase(context.Background(), OpenCaseInput{
		Title:       "X",
		Originating: "finance",
		Actor:       domain.Actor{Name: "J. Doe"},
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("OpenCase() error = %v, want ErrNotFound", err)
	}
}

func TestSubmitSection(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	wf := openTestCase(t, svc)

	next, section, err := svc.SubmitSection(context.Background(), SubmitSectionInput{
		CaseID:     wf.CaseID,
		TemplateID: "pre-op-checklist",
		Values:     domain.Values{"operator_name": "J. Doe", "guards_in_place": true},
		Actor:      domain.Actor{Department: "maintenance", UserID: "u-1", Name: "J. Doe"},
	})
	if err != nil {
		t.Fatalf("SubmitSection() error = %v", err)
	}
	if len(next.Sections) != 1 || !section.Locked {
		t.Fatalf("section not locked into ledger: %+v", section)
	}
	stored, version, err := repo.LoadWorkflow(context.Background(), wf.CaseID)
	if err != nil {
		t.Fatalf("LoadWorkflow() error = %v", err)
	}
	if version != 2 {
		t.Fatalf("version = %d, want 2", version)
	}
	if len(stored.Sections) != 1 {
		t.Fatalf("stored sections = %d, want 1", len(stored.Sections))
	}
}

func TestSubmitSectionUnknownTemplate(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	wf := openTestCase(t, svc)

	_, _, err := svc.SubmitSection(context.Background(), SubmitSectionInput{
		CaseID:     wf.CaseID,
		TemplateID: "missing",
		Actor:      domain.Actor{Department: "maintenance", Name: "J. Doe"},
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("SubmitSection() error = %v, want ErrNotFound", err)
	}
}

func TestSubmitSectionValidationErrorIsTerminal(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	wf := openTestCase(t, svc)
	repo.saveCalls = 0

	_, _, err := svc.SubmitSection(context.Background(), SubmitSectionInput{
		CaseID:     wf.CaseID,
		TemplateID: "pre-op-checklist",
		Values:     domain.Values{"operator_name": "J. Doe"},
		Actor:      domain.Actor{Department: "maintenance", Name: "J. Doe"},
	})
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("SubmitSection() error = %v, want *ValidationError", err)
	}
	if repo.saveCalls != 0 {
		t.Fatalf("validation failures must not reach the store, saveCalls = %d", repo.saveCalls)
	}
}

func TestSubmitSectionRetriesOnConflict(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	wf := openTestCase(t, svc)
	repo.conflictsLeft = 2

	next, section, err := svc.SubmitSection(context.Background(), SubmitSectionInput{
		CaseID:     wf.CaseID,
		TemplateID: "pre-op-checklist",
		Values:     domain.Values{"operator_name": "J. Doe", "guards_in_place": true},
		Actor:      domain.Actor{Department: "maintenance", Name: "J. Doe"},
	})
	if err != nil {
		t.Fatalf("SubmitSection() after conflicts error = %v", err)
	}
	if len(next.Sections) != 1 {
		t.Fatalf("len(Sections) = %d, want 1", len(next.Sections))
	}
	// The retried attempt must mint a fresh section id, not reuse the first.
	if section.ID == "id-2" {
		t.Fatalf("retry reused the first attempt's section id")
	}
}

func TestSubmitSectionConflictRetriesExhausted(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	wf := openTestCase(t, svc)
	repo.conflictsLeft = maxSaveAttempts

	_, _, err := svc.SubmitSection(context.Background(), SubmitSectionInput{
		CaseID:     wf.CaseID,
		TemplateID: "pre-op-checklist",
		Values:     domain.Values{"operator_name": "J. Doe", "guards_in_place": true},
		Actor:      domain.Actor{Department: "maintenance", Name: "J. Doe"},
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("SubmitSection() error = %v, want wrapped ErrConflict", err)
	}
}

func TestSendCase(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	wf := openTestCase(t, svc)

	next, err := svc.SendCase(context.Background(), SendCaseInput{
		CaseID: wf.CaseID,
		To:     "safety",
		Actor:  domain.Actor{Department: "maintenance", Name: "J. Doe"},
	})
	if err != nil {
		t.Fatalf("SendCase() error = %v", err)
	}
	if next.CurrentDepartment != "safety" {
		t.Fatalf("CurrentDepartment = %q, want safety", next.CurrentDepartment)
	}
	if len(next.RoutingHistory) != 1 {
		t.Fatalf("len(RoutingHistory) = %d, want 1", len(next.RoutingHistory))
	}
	if svc.IsFullyRouted(next) {
		t.Fatalf("IsFullyRouted = true with safety outstanding")
	}

	final, err := svc.SendCase(context.Background(), SendCaseInput{
		CaseID: wf.CaseID,
		To:     "maintenance",
		Actor:  domain.Actor{Department: "safety", Name: "S. Lee"},
	})
	if err != nil {
		t.Fatalf("SendCase() second hop error = %v", err)
	}
	if !svc.IsFullyRouted(final) {
		t.Fatalf("IsFullyRouted = false after both departments completed")
	}
}

func TestSendCaseAuthorizationErrorIsTerminal(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	wf := openTestCase(t, svc)
	repo.saveCalls = 0

	_, err := svc.SendCase(context.Background(), SendCaseInput{
		CaseID: wf.CaseID,
		To:     "safety",
		Actor:  domain.Actor{Department: "safety", Name: "X"},
	})
	var aerr *domain.AuthorizationError
	if !errors.As(err, &aerr) {
		t.Fatalf("SendCase() error = %v, want *AuthorizationError", err)
	}
	if repo.saveCalls != 0 {
		t.Fatalf("authorization failures must not be retried, saveCalls = %d", repo.saveCalls)
	}
	stored, _, _ := repo.LoadWorkflow(context.Background(), wf.CaseID)
	if !reflect.DeepEqual(stored, wf) {
		t.Fatalf("workflow changed on rejected hand-off")
	}
}

func TestSendCaseUnknownDestination(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	wf := openTestCase(t, svc)

	_, err := svc.SendCase(context.Background(), SendCaseInput{
		CaseID: wf.CaseID,
		To:     "finance",
		Actor:  domain.Actor{Department: "maintenance", Name: "J. Doe"},
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("SendCase() error = %v, want ErrNotFound", err)
	}
}

func TestSendCaseRetriesOnConflict(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	wf := openTestCase(t, svc)
	repo.conflictsLeft = 1

	next, err := svc.SendCase(context.Background(), SendCaseInput{
		CaseID: wf.CaseID,
		To:     "safety",
		Actor:  domain.Actor{Department: "maintenance", Name: "J. Doe"},
	})
	if err != nil {
		t.Fatalf("SendCase() after conflict error = %v", err)
	}
	if len(next.RoutingHistory) != 1 {
		t.Fatalf("retry must not duplicate history entries: %d", len(next.RoutingHistory))
	}
}

func TestSectionsForDepartment(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	wf := openTestCase(t, svc)

	_, _, err := svc.SubmitSection(context.Background(), SubmitSectionInput{
		CaseID:     wf.CaseID,
		TemplateID: "pre-op-checklist",
		Values:     domain.Values{"operator_name": "J. Doe", "guards_in_place": false},
		Actor:      domain.Actor{Department: "maintenance", Name: "J. Doe"},
	})
	if err != nil {
		t.Fatalf("SubmitSection() error = %v", err)
	}

	sections, err := svc.SectionsForDepartment(context.Background(), wf.CaseID, "maintenance")
	if err != nil {
		t.Fatalf("SectionsForDepartment() error = %v", err)
	}
	if len(sections) != 1 {
		t.Fatalf("len(sections) = %d, want 1", len(sections))
	}
	if got, _ := svc.SectionsForDepartment(context.Background(), wf.CaseID, "safety"); len(got) != 0 {
		t.Fatalf("safety sections = %d, want 0", len(got))
	}
}

func TestTemplatesForDepartment(t *testing.T) {
	svc := newTestService(newFakeRepo())
	templates, err := svc.TemplatesForDepartment("maintenance")
	if err != nil {
		t.Fatalf("TemplatesForDepartment() error = %v", err)
	}
	if len(templates) != 1 || templates[0].ID != "pre-op-checklist" {
		t.Fatalf("templates = %+v", templates)
	}
	if _, err := svc.TemplatesForDepartment("finance"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown department error = %v, want ErrNotFound", err)
	}
}

func TestActorContextRoundTrip(t *testing.T) {
	actor := domain.Actor{Department: " Maintenance ", UserID: " u-1 ", Name: " J. Doe "}
	ctx := WithActor(context.Background(), actor)
	got, ok := ActorFromContext(ctx)
	if !ok {
		t.Fatalf("ActorFromContext() not found")
	}
	want := domain.Actor{Department: "maintenance", UserID: "u-1", Name: "J. Doe"}
	if got != want {
		t.Fatalf("actor = %+v, want %+v", got, want)
	}
	if _, ok := ActorFromContext(context.Background()); ok {
		t.Fatalf("ActorFromContext() on empty context must report absence")
	}
}

func TestSubmitSectionFallsBackToContextActor(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	wf := openTestCase(t, svc)

	ctx := WithActor(context.Background(), domain.Actor{Department: "maintenance", UserID: "u-1", Name: "J. Doe"})
	_, section, err := svc.SubmitSection(ctx, SubmitSectionInput{
		CaseID:     wf.CaseID,
		TemplateID: "pre-op-checklist",
		Values:     domain.Values{"operator_name": "J. Doe", "guards_in_place": true},
	})
	if err != nil {
		t.Fatalf("SubmitSection() error = %v", err)
	}
	if section.CompletedByName != "J. Doe" || section.CompletedByUserID != "u-1" {
		t.Fatalf("context actor not applied: %+v", section)
	}
}
