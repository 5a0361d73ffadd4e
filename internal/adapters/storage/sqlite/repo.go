// Package sqlite persists workflow aggregates with optimistic concurrency.
// Completed sections and routing entries live in append-only child tables; the
// case row carries the version token the compare-and-swap write keys on.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hylla/remiss/internal/app"
	"github.com/hylla/remiss/internal/domain"
)

// driverName defines a package constant value.
const driverName = "sqlite"

// Repository represents repository data used by this package.
type Repository struct {
	db *sql.DB
}

// Open opens (and migrates) the sqlite database at path.
func Open(path string) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// OpenInMemory opens an in-memory database for tests.
func OpenInMemory() (*Repository, error) {
	db, err := sql.Open(driverName, "file::memory:?cache=shared")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Close closes the underlying database.
func (r *Repository) Close() error {
	return r.db.Close()
}

// migrate applies the schema.
func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS cases (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			reference TEXT NOT NULL DEFAULT '',
			opened_by_user_id TEXT NOT NULL DEFAULT '',
			opened_by_name TEXT NOT NULL DEFAULT '',
			opened_at TEXT NOT NULL,
			current_department TEXT NOT NULL DEFAULT '',
			completed_departments_json TEXT NOT NULL DEFAULT '[]',
			version INTEGER NOT NULL DEFAULT 1
		);`,
		`CREATE TABLE IF NOT EXISTS case_sections (
			id TEXT PRIMARY KEY,
			case_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			template_id TEXT NOT NULL,
			department TEXT NOT NULL,
			completed_by_user_id TEXT NOT NULL DEFAULT '',
			completed_by_name TEXT NOT NULL DEFAULT '',
			completed_at TEXT NOT NULL,
			values_json TEXT NOT NULL DEFAULT '{}',
			FOREIGN KEY(case_id) REFERENCES cases(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS case_routing (
			case_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			department TEXT NOT NULL,
			sent_by_name TEXT NOT NULL,
			sent_at TEXT NOT NULL,
			notes TEXT NOT NULL DEFAULT '',
			PRIMARY KEY(case_id, position),
			FOREIGN KEY(case_id) REFERENCES cases(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_case_sections_case_position ON case_sections(case_id, position);`,
		`CREATE INDEX IF NOT EXISTS idx_case_sections_case_department ON case_sections(case_id, department);`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

// CreateWorkflow inserts a freshly opened case at version 1.
func (r *Repository) CreateWorkflow(ctx context.Context, wf domain.Workflow) error {
	completedJSON, err := json.Marshal(wf.CompletedDepartments)
	if err != nil {
		return fmt.Errorf("encode completed departments: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO cases(id, title, reference, opened_by_user_id, opened_by_name, opened_at, current_department, completed_departments_json, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1)
	`, wf.CaseID, wf.Title, wf.Reference, wf.OpenedByUserID, wf.OpenedByName, ts(wf.OpenedAt), string(wf.CurrentDepartment), string(completedJSON))
	if err != nil {
		return err
	}
	// A freshly opened case has no sections or routing yet; persist any that
	// were supplied anyway so the aggregate round-trips faithfully.
	if len(wf.Sections) > 0 || len(wf.RoutingHistory) > 0 {
		return r.SaveWorkflow(ctx, wf, 1)
	}
	return nil
}

// LoadWorkflow reads one aggregate plus its version token.
func (r *Repository) LoadWorkflow(ctx context.Context, caseID string) (domain.Workflow, int64, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, title, reference, opened_by_user_id, opened_by_name, opened_at, current_department, completed_departments_json, version
		FROM cases
		WHERE id = ?
	`, caseID)

	var (
		wf            domain.Workflow
		openedRaw     string
		currentRaw    string
		completedRaw  string
		version       int64
	)
	if err := row.Scan(&wf.CaseID, &wf.Title, &wf.Reference, &wf.OpenedByUserID, &wf.OpenedByName, &openedRaw, &currentRaw, &completedRaw, &version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Workflow{}, 0, app.ErrNotFound
		}
		return domain.Workflow{}, 0, err
	}
	wf.OpenedAt = parseTS(openedRaw)
	wf.CurrentDepartment = domain.Department(currentRaw)
	if strings.TrimSpace(completedRaw) == "" {
		completedRaw = "[]"
	}
	if err := json.Unmarshal([]byte(completedRaw), &wf.CompletedDepartments); err != nil {
		return domain.Workflow{}, 0, fmt.Errorf("decode completed_departments_json: %w", err)
	}
	if wf.CompletedDepartments == nil {
		wf.CompletedDepartments = []domain.Department{}
	}

	sections, err := r.loadSections(ctx, caseID)
	if err != nil {
		return domain.Workflow{}, 0, err
	}
	wf.Sections = sections

	routing, err := r.loadRouting(ctx, caseID)
	if err != nil {
		return domain.Workflow{}, 0, err
	}
	wf.RoutingHistory = routing

	return wf, version, nil
}

// SaveWorkflow writes the aggregate back conditioned on expectedVersion. A
// moved version returns app.ErrConflict with no partial effects. Sections and
// routing entries beyond the stored count are appended; existing rows are
// never updated or deleted.
func (r *Repository) SaveWorkflow(ctx context.Context, wf domain.Workflow, expectedVersion int64) error {
	completedJSON, err := json.Marshal(wf.CompletedDepartments)
	if err != nil {
		return fmt.Errorf("encode completed departments: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE cases
		SET current_department = ?, completed_departments_json = ?, version = version + 1
		WHERE id = ? AND version = ?
	`, string(wf.CurrentDepartment), string(completedJSON), wf.CaseID, expectedVersion)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM cases WHERE id = ?`, wf.CaseID).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return app.ErrNotFound
		}
		return fmt.Errorf("case %s at version %d: %w", wf.CaseID, expectedVersion, app.ErrConflict)
	}

	if err := appendSections(ctx, tx, wf); err != nil {
		return err
	}
	if err := appendRouting(ctx, tx, wf); err != nil {
		return err
	}
	return tx.Commit()
}

// appendSections inserts ledger entries past the stored tail.
func appendSections(ctx context.Context, tx *sql.Tx, wf domain.Workflow) error {
	var stored int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM case_sections WHERE case_id = ?`, wf.CaseID).Scan(&stored); err != nil {
		return err
	}
	for position := stored; position < len(wf.Sections); position++ {
		section := wf.Sections[position]
		valuesJSON, err := json.Marshal(section.Values)
		if err != nil {
			return fmt.Errorf("encode section values: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO case_sections(id, case_id, position, template_id, department, completed_by_user_id, completed_by_name, completed_at, values_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, section.ID, wf.CaseID, position, section.TemplateID, string(section.Department), section.CompletedByUserID, section.CompletedByName, ts(section.CompletedAt), string(valuesJSON))
		if err != nil {
			return err
		}
	}
	return nil
}

// appendRouting inserts history entries past the stored tail.
func appendRouting(ctx context.Context, tx *sql.Tx, wf domain.Workflow) error {
	var stored int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM case_routing WHERE case_id = ?`, wf.CaseID).Scan(&stored); err != nil {
		return err
	}
	for position := stored; position < len(wf.RoutingHistory); position++ {
		entry := wf.RoutingHistory[position]
		_, err := tx.ExecContext(ctx, `
			INSERT INTO case_routing(case_id, position, department, sent_by_name, sent_at, notes)
			VALUES (?, ?, ?, ?, ?, ?)
		`, wf.CaseID, position, string(entry.Department), entry.SentByName, ts(entry.SentAt), entry.Notes)
		if err != nil {
			return err
		}
	}
	return nil
}

// loadSections reads a case's ledger in append order.
func (r *Repository) loadSections(ctx context.Context, caseID string) ([]domain.CompletedSection, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, template_id, department, completed_by_user_id, completed_by_name, completed_at, values_json
		FROM case_sections
		WHERE case_id = ?
		ORDER BY position ASC
	`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.CompletedSection{}
	for rows.Next() {
		var (
			section      domain.CompletedSection
			deptRaw      string
			completedRaw string
			valuesRaw    string
		)
		if err := rows.Scan(&section.ID, &section.TemplateID, &deptRaw, &section.CompletedByUserID, &section.CompletedByName, &completedRaw, &valuesRaw); err != nil {
			return nil, err
		}
		section.Department = domain.Department(deptRaw)
		section.CompletedAt = parseTS(completedRaw)
		if strings.TrimSpace(valuesRaw) == "" {
			valuesRaw = "{}"
		}
		if err := json.Unmarshal([]byte(valuesRaw), &section.Values); err != nil {
			return nil, fmt.Errorf("decode values_json: %w", err)
		}
		section.Locked = true
		out = append(out, section)
	}
	return out, rows.Err()
}

// loadRouting reads a case's routing history in call order.
func (r *Repository) loadRouting(ctx context.Context, caseID string) ([]domain.RoutingEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT department, sent_by_name, sent_at, notes
		FROM case_routing
		WHERE case_id = ?
		ORDER BY position ASC
	`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.RoutingEntry{}
	for rows.Next() {
		var (
			entry   domain.RoutingEntry
			deptRaw string
			sentRaw string
		)
		if err := rows.Scan(&deptRaw, &entry.SentByName, &sentRaw, &entry.Notes); err != nil {
			return nil, err
		}
		entry.Department = domain.Department(deptRaw)
		entry.SentAt = parseTS(sentRaw)
		out = append(out, entry)
	}
	return out, rows.Err()
}

// ts formats timestamps for storage.
func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTS parses stored timestamps.
func parseTS(v string) time.Time {
	parsed, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return parsed.UTC()
}
