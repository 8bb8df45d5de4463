package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/sonarpanel/internal/domain/model"
	"github.com/ericfisherdev/sonarpanel/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ProjectStore = (*ProjectRepo)(nil)

const projectColumns = `id, path, project_key, name, language, sources_path, tests_path,
	coverage_report_path, host_url, visibility, qualifier, credential_id, created_at, updated_at`

// projectFieldColumns maps updatable fields to their column names. Column
// names are never taken from caller input directly.
var projectFieldColumns = map[model.ProjectField]string{
	model.ProjectFieldName:               "name",
	model.ProjectFieldLanguage:           "language",
	model.ProjectFieldSourcesPath:        "sources_path",
	model.ProjectFieldTestsPath:          "tests_path",
	model.ProjectFieldCoverageReportPath: "coverage_report_path",
	model.ProjectFieldCredentialID:       "credential_id",
}

// ProjectRepo is the SQLite implementation of the ProjectStore port interface.
type ProjectRepo struct {
	db *DB
}

// NewProjectRepo creates a new ProjectRepo backed by the given DB.
func NewProjectRepo(db *DB) *ProjectRepo {
	return &ProjectRepo{db: db}
}

// Insert stores a new project. Returns ErrProjectAlreadyExists if the path
// or project key is already taken.
func (r *ProjectRepo) Insert(ctx context.Context, p model.Project) (*model.Project, error) {
	const query = `INSERT INTO projects (path, project_key, name, language, sources_path, tests_path,
		coverage_report_path, host_url, visibility, qualifier, credential_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	result, err := r.db.Writer.ExecContext(ctx, query,
		p.Path, p.Key, p.Name, p.Language, p.SourcesPath, p.TestsPath,
		p.CoverageReportPath, p.HostURL, string(p.Visibility), p.Qualifier, p.CredentialID,
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("insert project %s: %w", p.Path, driven.ErrProjectAlreadyExists)
		}
		return nil, fmt.Errorf("insert project %s: %w", p.Path, err)
	}

	p.ID, err = result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get project id: %w", err)
	}

	return &p, nil
}

// FindByPath returns the project stored under path, or nil, nil.
func (r *ProjectRepo) FindByPath(ctx context.Context, path string) (*model.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE path = ?`

	p, err := scanProject(r.db.Reader.QueryRowContext(ctx, query, path))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find project by path %s: %w", path, err)
	}
	return p, nil
}

// FindByKey returns the project with the given remote key, or nil, nil.
func (r *ProjectRepo) FindByKey(ctx context.Context, key string) (*model.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE project_key = ?`

	p, err := scanProject(r.db.Reader.QueryRowContext(ctx, query, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find project by key %s: %w", key, err)
	}
	return p, nil
}

// ListAll returns all projects ordered by path.
func (r *ProjectRepo) ListAll(ctx context.Context) ([]model.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects ORDER BY path`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	projects := []model.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}

	return projects, nil
}

// UpdateField sets a single mutable column and bumps updated_at.
func (r *ProjectRepo) UpdateField(ctx context.Context, id int64, field model.ProjectField, value string) error {
	column, ok := projectFieldColumns[field]
	if !ok {
		return fmt.Errorf("update project %d: unsupported field %q", id, field)
	}

	query := `UPDATE projects SET ` + column + ` = ?, updated_at = ? WHERE id = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, value, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("update project %d %s: %w", id, field, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("update project %d: %w", id, driven.ErrProjectNotFound)
	}

	return nil
}

// DeleteByPath removes the project stored under path and returns it, or
// nil, nil if there is none. Lookup and delete share one transaction.
func (r *ProjectRepo) DeleteByPath(ctx context.Context, path string) (*model.Project, error) {
	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `SELECT ` + projectColumns + ` FROM projects WHERE path = ?`
	p, err := scanProject(tx.QueryRowContext(ctx, query, path))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find project by path %s: %w", path, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, p.ID); err != nil {
		return nil, fmt.Errorf("delete project %s: %w", path, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit delete project %s: %w", path, err)
	}

	return p, nil
}

func scanProject(s scanner) (*model.Project, error) {
	var p model.Project
	var visibility, createdAt, updatedAt string

	err := s.Scan(
		&p.ID, &p.Path, &p.Key, &p.Name, &p.Language, &p.SourcesPath, &p.TestsPath,
		&p.CoverageReportPath, &p.HostURL, &visibility, &p.Qualifier, &p.CredentialID,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Visibility = model.Visibility(visibility)

	p.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	p.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &p, nil
}
