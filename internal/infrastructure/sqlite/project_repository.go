package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ncruces/go-sqlite3"

	"github.com/NaruseNia/progest/internal/project/domain"
)

// projectColumns is the list of columns to select for project queries.
const projectColumns = `id, name, description, root_path, template_name, template_path, template_digest,
	variables, tags, status, created_at, updated_at`

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// projectRepository implements domain.Repository using SQLite.
type projectRepository struct {
	db *sql.DB
}

// newProjectRepository creates a new projectRepository instance.
func newProjectRepository(db *sql.DB) *projectRepository {
	return &projectRepository{db: db}
}

// Ensure projectRepository implements domain.Repository.
var _ domain.Repository = (*projectRepository)(nil)

// scanProject scans a row into a ProjectModel.
func scanProject(scanner interface{ Scan(...any) error }) (*ProjectModel, error) {
	var model ProjectModel
	err := scanner.Scan(
		&model.ID, &model.Name, &model.Description, &model.RootPath,
		&model.TemplateName, &model.TemplatePath, &model.TemplateDigest,
		&model.Variables, &model.Tags, &model.Status,
		&model.CreatedAt, &model.UpdatedAt,
	)
	return &model, err
}

// Load returns every committed record, oldest first.
func (r *projectRepository) Load(ctx context.Context) ([]*domain.Project, error) {
	return loadAll(ctx, r.db)
}

// Update runs fn inside an immediate transaction, which holds the database
// write lock until commit or rollback.
func (r *projectRepository) Update(ctx context.Context, fn func(tx domain.Tx) error) error {
	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(&projectTx{tx: sqlTx}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Close is a no-op; the connection is owned by DB.
func (r *projectRepository) Close() error {
	return nil
}

// projectTx implements domain.Tx over a *sql.Tx.
type projectTx struct {
	tx *sql.Tx
}

func (t *projectTx) All(ctx context.Context) ([]*domain.Project, error) {
	return loadAll(ctx, t.tx)
}

func (t *projectTx) Insert(ctx context.Context, p *domain.Project) error {
	model, err := toProjectModel(p)
	if err != nil {
		return err
	}

	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO projects (`+projectColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		model.ID, model.Name, model.Description, model.RootPath,
		model.TemplateName, model.TemplatePath, model.TemplateDigest,
		model.Variables, model.Tags, model.Status,
		model.CreatedAt, model.UpdatedAt,
	)
	if err != nil {
		return t.mapConstraint(ctx, err, p)
	}
	return nil
}

func (t *projectTx) Save(ctx context.Context, p *domain.Project) error {
	model, err := toProjectModel(p)
	if err != nil {
		return err
	}

	result, err := t.tx.ExecContext(ctx,
		`UPDATE projects SET
			name = ?, description = ?, root_path = ?, template_name = ?, template_path = ?,
			template_digest = ?, variables = ?, tags = ?, status = ?, updated_at = ?
		WHERE id = ?`,
		model.Name, model.Description, model.RootPath, model.TemplateName, model.TemplatePath,
		model.TemplateDigest, model.Variables, model.Tags, model.Status, model.UpdatedAt,
		model.ID,
	)
	if err != nil {
		return t.mapConstraint(ctx, err, p)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return &domain.NotFoundError{ID: p.ID()}
	}
	return nil
}

func (t *projectTx) Delete(ctx context.Context, id string) error {
	result, err := t.tx.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return &domain.NotFoundError{ID: id}
	}
	return nil
}

// mapConstraint turns a violation of the root path index into a
// DuplicatePathError naming the record that holds the path.
func (t *projectTx) mapConstraint(ctx context.Context, err error, p *domain.Project) error {
	if !errors.Is(err, sqlite3.CONSTRAINT_UNIQUE) {
		return fmt.Errorf("failed to write project: %w", err)
	}

	var existing string
	lookupErr := t.tx.QueryRowContext(ctx,
		`SELECT id FROM projects WHERE root_path = ? AND status != 'missing' AND id != ?`,
		p.RootPath(), p.ID(),
	).Scan(&existing)
	if lookupErr != nil && !errors.Is(lookupErr, sql.ErrNoRows) {
		return fmt.Errorf("failed to write project: %w", err)
	}
	if existing == "" {
		return fmt.Errorf("failed to write project: %w", err)
	}
	return &domain.DuplicatePathError{Path: p.RootPath(), ExistingID: existing}
}

func loadAll(ctx context.Context, q queryer) ([]*domain.Project, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var projects []*domain.Project
	for rows.Next() {
		model, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		p, err := model.toDomain()
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return projects, nil
}
