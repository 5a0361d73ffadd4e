// Package catalog loads the static department and template configuration the
// routing engine validates submissions against. The catalog is read once at
// startup and immutable afterward.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/hylla/remiss/internal/domain"
)

// ErrUnknownTemplate and related errors describe catalog lookup failures.
var (
	ErrUnknownTemplate   = errors.New("unknown template")
	ErrUnknownDepartment = errors.New("unknown department")
)

// File models the on-disk TOML catalog shape.
type File struct {
	Departments []DepartmentConfig `toml:"departments"`
	Templates   []TemplateConfig   `toml:"templates"`
}

// DepartmentConfig declares one department in the closed routing set.
type DepartmentConfig struct {
	ID   string `toml:"id"`
	Name string `toml:"name"`
}

// TemplateConfig declares one department-owned documentation template.
type TemplateConfig struct {
	ID         string        `toml:"id"`
	Department string        `toml:"department"`
	Name       string        `toml:"name"`
	Fields     []FieldConfig `toml:"fields"`
}

// FieldConfig declares one template field.
type FieldConfig struct {
	ID       string   `toml:"id"`
	Label    string   `toml:"label"`
	Type     string   `toml:"type"`
	Required bool     `toml:"required"`
	Options  []string `toml:"options"`
}

// Catalog serves departments and templates from validated in-memory state.
type Catalog struct {
	departments []domain.Department
	names       map[domain.Department]string
	byDept      map[domain.Department][]domain.Template
	byID        map[string]domain.Template
}

// Load reads and validates a TOML catalog file.
func Load(path string) (*Catalog, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var file File
	if err := toml.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("decode catalog toml: %w", err)
	}
	return New(file)
}

// New validates a catalog definition and builds the immutable lookup state.
func New(file File) (*Catalog, error) {
	if len(file.Departments) == 0 {
		return nil, errors.New("catalog must declare at least one department")
	}

	cat := &Catalog{
		names:  map[domain.Department]string{},
		byDept: map[domain.Department][]domain.Template{},
		byID:   map[string]domain.Template{},
	}
	for idx, dc := range file.Departments {
		dept := domain.NormalizeDepartment(dc.ID)
		if dept == domain.DepartmentNone {
			return nil, fmt.Errorf("departments[%d].id is required", idx)
		}
		if _, dup := cat.names[dept]; dup {
			return nil, fmt.Errorf("departments[%d].id is duplicated: %s", idx, dept)
		}
		name := strings.TrimSpace(dc.Name)
		if name == "" {
			name = string(dept)
		}
		cat.departments = append(cat.departments, dept)
		cat.names[dept] = name
	}

	for idx, tc := range file.Templates {
		tmpl, err := buildTemplate(tc, cat.names)
		if err != nil {
			return nil, fmt.Errorf("templates[%d]: %w", idx, err)
		}
		if _, dup := cat.byID[tmpl.ID]; dup {
			return nil, fmt.Errorf("templates[%d].id is duplicated: %s", idx, tmpl.ID)
		}
		cat.byID[tmpl.ID] = tmpl
		cat.byDept[tmpl.Department] = append(cat.byDept[tmpl.Department], tmpl)
	}
	return cat, nil
}

// buildTemplate validates one template definition.
func buildTemplate(tc TemplateConfig, known map[domain.Department]string) (domain.Template, error) {
	id := strings.TrimSpace(tc.ID)
	if id == "" {
		return domain.Template{}, errors.New("id is required")
	}
	dept := domain.NormalizeDepartment(tc.Department)
	if _, ok := known[dept]; !ok {
		return domain.Template{}, fmt.Errorf("department %q is not declared", tc.Department)
	}
	name := strings.TrimSpace(tc.Name)
	if name == "" {
		return domain.Template{}, errors.New("name is required")
	}

	fields := make([]domain.FieldSchema, 0, len(tc.Fields))
	seen := map[string]struct{}{}
	for idx, fc := range tc.Fields {
		fieldID := strings.TrimSpace(fc.ID)
		if fieldID == "" {
			return domain.Template{}, fmt.Errorf("fields[%d].id is required", idx)
		}
		if _, dup := seen[fieldID]; dup {
			return domain.Template{}, fmt.Errorf("fields[%d].id is duplicated: %s", idx, fieldID)
		}
		seen[fieldID] = struct{}{}
		label := strings.TrimSpace(fc.Label)
		if label == "" {
			return domain.Template{}, fmt.Errorf("fields[%d].label is required", idx)
		}
		fieldType := domain.FieldType(strings.TrimSpace(strings.ToLower(fc.Type)))
		if !domain.IsValidFieldType(fieldType) {
			return domain.Template{}, fmt.Errorf("fields[%d].type %q is not supported", idx, fc.Type)
		}
		options := normalizeOptions(fc.Options)
		if fieldType == domain.FieldSelect && len(options) == 0 {
			return domain.Template{}, fmt.Errorf("fields[%d] is a select and must declare options", idx)
		}
		if fieldType != domain.FieldSelect && len(options) > 0 {
			return domain.Template{}, fmt.Errorf("fields[%d] declares options but is not a select", idx)
		}
		fields = append(fields, domain.FieldSchema{
			ID:       fieldID,
			Label:    label,
			Type:     fieldType,
			Required: fc.Required,
			Options:  options,
		})
	}

	return domain.Template{
		ID:         id,
		Department: dept,
		Name:       name,
		Fields:     fields,
	}, nil
}

// normalizeOptions trims and drops empty select options.
func normalizeOptions(in []string) []string {
	out := make([]string, 0, len(in))
	for _, raw := range in {
		option := strings.TrimSpace(raw)
		if option == "" {
			continue
		}
		out = append(out, option)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Departments returns the declared department set in declaration order.
func (c *Catalog) Departments() []domain.Department {
	return slices.Clone(c.departments)
}

// DepartmentName returns the display name for a department.
func (c *Catalog) DepartmentName(dept domain.Department) string {
	return c.names[dept]
}

// IsKnownDepartment reports whether dept is in the declared set.
func (c *Catalog) IsKnownDepartment(dept domain.Department) bool {
	_, ok := c.names[dept]
	return ok
}

// TemplatesForDepartment returns the department's templates in declaration
// order.
func (c *Catalog) TemplatesForDepartment(dept domain.Department) []domain.Template {
	return slices.Clone(c.byDept[dept])
}

// TemplateByID resolves one template by id.
func (c *Catalog) TemplateByID(id string) (domain.Template, bool) {
	tmpl, ok := c.byID[strings.TrimSpace(id)]
	return tmpl, ok
}
