// Package memory provides an in-memory project repository for tests and
// for running the library without a database.
package memory

import (
	"context"
	"sync"

	"github.com/NaruseNia/progest/internal/project/domain"
)

// ProjectRepository keeps records in a map. Update is serialized by a mutex
// and works on a copy that replaces the committed state only on success.
type ProjectRepository struct {
	mu       sync.Mutex
	projects map[string]*domain.Project
}

var _ domain.Repository = (*ProjectRepository)(nil)

// NewProjectRepository creates an empty repository.
func NewProjectRepository() *ProjectRepository {
	return &ProjectRepository{projects: make(map[string]*domain.Project)}
}

// Load returns copies of every committed record.
func (r *ProjectRepository) Load(ctx context.Context) ([]*domain.Project, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneAll(r.projects), nil
}

// Update runs fn against a working copy and commits it when fn succeeds.
func (r *ProjectRepository) Update(ctx context.Context, fn func(tx domain.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	tx := &tx{projects: make(map[string]*domain.Project, len(r.projects))}
	for id, p := range r.projects {
		tx.projects[id] = p.Clone()
	}
	if err := fn(tx); err != nil {
		return err
	}
	r.projects = tx.projects
	return nil
}

// Close is a no-op.
func (r *ProjectRepository) Close() error {
	return nil
}

type tx struct {
	projects map[string]*domain.Project
}

func (t *tx) All(_ context.Context) ([]*domain.Project, error) {
	return cloneAll(t.projects), nil
}

func (t *tx) Insert(_ context.Context, p *domain.Project) error {
	if holder := t.holder(p); holder != nil {
		return &domain.DuplicatePathError{Path: p.RootPath(), ExistingID: holder.ID()}
	}
	t.projects[p.ID()] = p.Clone()
	return nil
}

func (t *tx) Save(_ context.Context, p *domain.Project) error {
	if _, ok := t.projects[p.ID()]; !ok {
		return &domain.NotFoundError{ID: p.ID()}
	}
	if holder := t.holder(p); holder != nil {
		return &domain.DuplicatePathError{Path: p.RootPath(), ExistingID: holder.ID()}
	}
	t.projects[p.ID()] = p.Clone()
	return nil
}

func (t *tx) Delete(_ context.Context, id string) error {
	if _, ok := t.projects[id]; !ok {
		return &domain.NotFoundError{ID: id}
	}
	delete(t.projects, id)
	return nil
}

// holder mirrors the partial unique index of the SQLite schema.
func (t *tx) holder(p *domain.Project) *domain.Project {
	if !p.Status().HoldsPath() {
		return nil
	}
	for id, other := range t.projects {
		if id != p.ID() && other.Status().HoldsPath() && other.RootPath() == p.RootPath() {
			return other
		}
	}
	return nil
}

func cloneAll(m map[string]*domain.Project) []*domain.Project {
	out := make([]*domain.Project, 0, len(m))
	for _, p := range m {
		out = append(out, p.Clone())
	}
	domain.SortProjects(out)
	return out
}
