package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hylla/remiss/internal/domain"
)

const sampleCatalogTOML = `
[[departments]]
id = "maintenance"
name = "Maintenance"

[[departments]]
id = "safety"
name = "Safety"

[[templates]]
id = "pre-op-checklist"
department = "maintenance"
name = "Pre-Operation Checklist"

[[templates.fields]]
id = "operator_name"
label = "Operator name"
type = "text"
required = true

[[templates.fields]]
id = "guards_in_place"
label = "Guards in place"
type = "boolean"
required = true

[[templates.fields]]
id = "shift"
label = "Shift"
type = "select"
options = ["day", "night"]

[[templates]]
id = "lockout-verification"
department = "safety"
name = "Lockout Verification"

[[templates.fields]]
id = "verified"
label = "Verified"
type = "boolean"
required = true
`

func writeCatalogFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write catalog file: %v", err)
	}
	return path
}

func TestLoadParsesCatalog(t *testing.T) {
	cat, err := Load(writeCatalogFile(t, sampleCatalogTOML))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	depts := cat.Departments()
	if len(depts) != 2 || depts[0] != "maintenance" || depts[1] != "safety" {
		t.Fatalf("Departments() = %v", depts)
	}
	if !cat.IsKnownDepartment("safety") || cat.IsKnownDepartment("finance") {
		t.Fatalf("IsKnownDepartment mismatch")
	}
	if got := cat.DepartmentName("maintenance"); got != "Maintenance" {
		t.Fatalf("DepartmentName = %q", got)
	}

	tmpl, ok := cat.TemplateByID("pre-op-checklist")
	if !ok {
		t.Fatalf("TemplateByID() not found")
	}
	if tmpl.Department != "maintenance" || len(tmpl.Fields) != 3 {
		t.Fatalf("template = %+v", tmpl)
	}
	if tmpl.Fields[2].Type != domain.FieldSelect || len(tmpl.Fields[2].Options) != 2 {
		t.Fatalf("select field = %+v", tmpl.Fields[2])
	}

	maint := cat.TemplatesForDepartment("maintenance")
	if len(maint) != 1 || maint[0].ID != "pre-op-checklist" {
		t.Fatalf("TemplatesForDepartment(maintenance) = %+v", maint)
	}
	if got := cat.TemplatesForDepartment("finance"); len(got) != 0 {
		t.Fatalf("TemplatesForDepartment(finance) = %+v", got)
	}
}

func TestNewRejectsInvalidCatalogs(t *testing.T) {
	base := func() File {
		return File{
			Departments: []DepartmentConfig{{ID: "maintenance"}},
			Templates: []TemplateConfig{{
				ID:         "t1",
				Department: "maintenance",
				Name:       "T1",
				Fields:     []FieldConfig{{ID: "f1", Label: "F1", Type: "text"}},
			}},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*File)
		wantErr string
	}{
		{
			name:    "no departments",
			mutate:  func(f *File) { f.Departments = nil },
			wantErr: "at least one department",
		},
		{
			name:    "duplicate department",
			mutate:  func(f *File) { f.Departments = append(f.Departments, DepartmentConfig{ID: "Maintenance"}) },
			wantErr: "duplicated",
		},
		{
			name:    "template with undeclared department",
			mutate:  func(f *File) { f.Templates[0].Department = "finance" },
			wantErr: "not declared",
		},
		{
			name: "duplicate template id",
			mutate: func(f *File) {
				f.Templates = append(f.Templates, f.Templates[0])
			},
			wantErr: "duplicated",
		},
		{
			name:    "unsupported field type",
			mutate:  func(f *File) { f.Templates[0].Fields[0].Type = "signature" },
			wantErr: "not supported",
		},
		{
			name:    "select without options",
			mutate:  func(f *File) { f.Templates[0].Fields[0].Type = "select" },
			wantErr: "must declare options",
		},
		{
			name:    "options on non-select",
			mutate:  func(f *File) { f.Templates[0].Fields[0].Options = []string{"a"} },
			wantErr: "not a select",
		},
		{
			name:    "duplicate field id",
			mutate:  func(f *File) { f.Templates[0].Fields = append(f.Templates[0].Fields, f.Templates[0].Fields[0]) },
			wantErr: "duplicated",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			file := base()
			tc.mutate(&file)
			_, err := New(file)
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("New() error = %v, want containing %q", err, tc.wantErr)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("Load() on missing file must fail")
	}
}

func TestNormalizeDepartmentIDs(t *testing.T) {
	cat, err := New(File{
		Departments: []DepartmentConfig{{ID: "  Quality  "}},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if !cat.IsKnownDepartment("quality") {
		t.Fatalf("department id must be normalized to lowercase")
	}
}
