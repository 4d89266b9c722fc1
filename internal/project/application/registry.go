// Package application implements the project registry: durable project
// records, single-writer mutations and reconciliation against the disk.
package application

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/NaruseNia/progest/internal/log"
	"github.com/NaruseNia/progest/internal/project/domain"
	"github.com/NaruseNia/progest/internal/pubsub"
)

// DefaultPendingTimeout is how long a pending record may exist before
// reconciliation treats its creation as abandoned.
const DefaultPendingTimeout = time.Hour

// Change is one status transition made by Reconcile.
type Change struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	RootPath string        `json:"root_path"`
	Old      domain.Status `json:"old_status"`
	New      domain.Status `json:"new_status"`
}

// PathProbe reports whether path exists on disk.
type PathProbe func(path string) (bool, error)

// OSPathProbe checks the real filesystem.
func OSPathProbe(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Registry owns every project record. Each mutation holds an in-process
// mutex and the repository's exclusive write scope for its whole
// read-modify-persist cycle.
type Registry struct {
	repo           domain.Repository
	mu             sync.Mutex
	now            func() time.Time
	newID          func() string
	exists         PathProbe
	pendingTimeout time.Duration
	broker         *pubsub.Broker[*domain.Project]
}

// Option configures the Registry.
type Option func(*Registry)

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// WithIDGenerator sets how record ids are generated.
func WithIDGenerator(newID func() string) Option {
	return func(r *Registry) {
		r.newID = newID
	}
}

// WithPathProbe sets how root paths are checked for existence.
func WithPathProbe(probe PathProbe) Option {
	return func(r *Registry) {
		r.exists = probe
	}
}

// WithPendingTimeout sets the age after which pending records are
// abandoned. Zero disables the check.
func WithPendingTimeout(d time.Duration) Option {
	return func(r *Registry) {
		r.pendingTimeout = d
	}
}

// WithBroker sets the broker record changes are published on.
func WithBroker(b *pubsub.Broker[*domain.Project]) Option {
	return func(r *Registry) {
		r.broker = b
	}
}

// NewRegistry creates a registry over repo.
func NewRegistry(repo domain.Repository, opts ...Option) *Registry {
	r := &Registry{
		repo:           repo,
		now:            time.Now,
		newID:          uuid.NewString,
		exists:         OSPathProbe,
		pendingTimeout: DefaultPendingTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.broker == nil {
		r.broker = pubsub.NewBroker[*domain.Project]()
	}
	return r
}

// Subscribe streams every committed record change.
func (r *Registry) Subscribe(ctx context.Context) <-chan pubsub.Event[*domain.Project] {
	return r.broker.Subscribe(ctx)
}

// Close stops notifications. The repository is owned by the caller.
func (r *Registry) Close() {
	r.broker.Close()
}

// Register stores a new record. The root path must not be held by another
// record that is not missing.
func (r *Registry) Register(ctx context.Context, draft domain.Draft) (*domain.Project, error) {
	root, err := filepath.Abs(draft.RootPath)
	if err != nil {
		return nil, fmt.Errorf("resolve root path: %w", err)
	}
	draft.RootPath = root

	var created *domain.Project
	err = r.update(ctx, func(tx domain.Tx, all []*domain.Project) error {
		if holder := pathHolder(all, root, ""); holder != nil {
			return &domain.DuplicatePathError{Path: root, ExistingID: holder.ID()}
		}
		p, err := domain.NewProject(r.newID(), draft, r.now())
		if err != nil {
			return err
		}
		if err := tx.Insert(ctx, p); err != nil {
			return err
		}
		created = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info(log.CatRegistry, "Registered project", "id", created.ID(), "root", created.RootPath(), "status", created.Status())
	r.broker.Publish(pubsub.CreatedEvent, created.Clone())
	return created, nil
}

// Get returns the record with the given id.
func (r *Registry) Get(ctx context.Context, id string) (*domain.Project, error) {
	all, err := r.repo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load projects: %w", err)
	}
	if p := find(all, id); p != nil {
		return p, nil
	}
	return nil, &domain.NotFoundError{ID: id}
}

// List returns the records matching filter, oldest first with ties broken by id.
func (r *Registry) List(ctx context.Context, filter domain.ListFilter) ([]*domain.Project, error) {
	all, err := r.repo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load projects: %w", err)
	}
	out := make([]*domain.Project, 0, len(all))
	for _, p := range all {
		if filter.Matches(p) {
			out = append(out, p)
		}
	}
	domain.SortProjects(out)
	return out, nil
}

// UpdateStatus moves a record to status. Leaving missing re-checks that the
// root path is still free.
func (r *Registry) UpdateStatus(ctx context.Context, id string, status domain.Status) (*domain.Project, error) {
	return r.mutate(ctx, id, func(all []*domain.Project, p *domain.Project) (bool, error) {
		if p.Status() == status {
			return false, nil
		}
		if !p.Status().HoldsPath() && status.HoldsPath() {
			if holder := pathHolder(all, p.RootPath(), p.ID()); holder != nil {
				return false, &domain.DuplicatePathError{Path: p.RootPath(), ExistingID: holder.ID()}
			}
		}
		old := p.Status()
		if err := p.TransitionTo(status, r.now()); err != nil {
			return false, err
		}
		log.Info(log.CatRegistry, "Project status changed", "id", id, "from", old, "to", status)
		return true, nil
	})
}

// Reconcile marks every active record whose root is gone as missing, and
// every pending record older than the pending timeout as missing. Records
// are never deleted.
func (r *Registry) Reconcile(ctx context.Context) ([]Change, error) {
	var changes []Change
	var updated []*domain.Project

	err := r.update(ctx, func(tx domain.Tx, all []*domain.Project) error {
		changes, updated = nil, nil
		now := r.now()
		domain.SortProjects(all)

		for _, p := range all {
			if err := ctx.Err(); err != nil {
				return err
			}

			var stale bool
			switch p.Status() {
			case domain.StatusActive:
				ok, err := r.exists(p.RootPath())
				if err != nil {
					log.Warn(log.CatRegistry, "Cannot check project root, leaving as is", "id", p.ID(), "root", p.RootPath(), "error", err)
					continue
				}
				stale = !ok
			case domain.StatusPending:
				stale = r.pendingTimeout > 0 && now.Sub(p.CreatedAt()) > r.pendingTimeout
			}
			if !stale {
				continue
			}

			change := Change{ID: p.ID(), Name: p.Name(), RootPath: p.RootPath(), Old: p.Status(), New: domain.StatusMissing}
			if err := p.TransitionTo(domain.StatusMissing, now); err != nil {
				return err
			}
			if err := tx.Save(ctx, p); err != nil {
				return err
			}
			changes = append(changes, change)
			updated = append(updated, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info(log.CatRegistry, "Reconciled projects", "changes", len(changes))
	for _, p := range updated {
		r.broker.Publish(pubsub.UpdatedEvent, p.Clone())
	}
	return changes, nil
}

// Relocate points a record at a moved project and marks it active. The new
// root must exist and must not be held by another record.
func (r *Registry) Relocate(ctx context.Context, id, root string) (*domain.Project, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root path: %w", err)
	}
	ok, err := r.exists(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to check %s: %w", abs, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s does not exist", domain.ErrInvalidProject, abs)
	}

	return r.mutate(ctx, id, func(all []*domain.Project, p *domain.Project) (bool, error) {
		if holder := pathHolder(all, abs, p.ID()); holder != nil {
			return false, &domain.DuplicatePathError{Path: abs, ExistingID: holder.ID()}
		}
		if err := p.Relocate(abs, r.now()); err != nil {
			return false, err
		}
		log.Info(log.CatRegistry, "Relocated project", "id", id, "root", abs)
		return true, nil
	})
}

// Forget removes a missing or archived record. Nothing on disk is touched.
func (r *Registry) Forget(ctx context.Context, id string) error {
	return r.remove(ctx, id, func(p *domain.Project) error {
		if s := p.Status(); s != domain.StatusMissing && s != domain.StatusArchived {
			return &domain.InvalidTransitionError{ID: id, From: s, To: "forgotten"}
		}
		return nil
	})
}

// Discard removes a pending record whose creation failed.
func (r *Registry) Discard(ctx context.Context, id string) error {
	return r.remove(ctx, id, func(p *domain.Project) error {
		if p.Status() != domain.StatusPending {
			return &domain.InvalidTransitionError{ID: id, From: p.Status(), To: "discarded"}
		}
		return nil
	})
}

// Tag adds tags to a record.
func (r *Registry) Tag(ctx context.Context, id string, tags ...string) (*domain.Project, error) {
	return r.mutate(ctx, id, func(_ []*domain.Project, p *domain.Project) (bool, error) {
		return p.AddTags(tags, r.now()), nil
	})
}

// Untag removes tags from a record.
func (r *Registry) Untag(ctx context.Context, id string, tags ...string) (*domain.Project, error) {
	return r.mutate(ctx, id, func(_ []*domain.Project, p *domain.Project) (bool, error) {
		return p.RemoveTags(tags, r.now()), nil
	})
}

// SetDescription replaces a record's description.
func (r *Registry) SetDescription(ctx context.Context, id, description string) (*domain.Project, error) {
	return r.mutate(ctx, id, func(_ []*domain.Project, p *domain.Project) (bool, error) {
		before := p.Description()
		p.SetDescription(description, r.now())
		return before != description, nil
	})
}

// update runs fn under both the process mutex and the store's write scope.
func (r *Registry) update(ctx context.Context, fn func(tx domain.Tx, all []*domain.Project) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.repo.Update(ctx, func(tx domain.Tx) error {
		all, err := tx.All(ctx)
		if err != nil {
			return fmt.Errorf("failed to load projects: %w", err)
		}
		return fn(tx, all)
	})
}

// mutate applies fn to the record with the given id and saves it when fn
// reports a change.
func (r *Registry) mutate(ctx context.Context, id string, fn func(all []*domain.Project, p *domain.Project) (bool, error)) (*domain.Project, error) {
	var result *domain.Project
	var changed bool
	err := r.update(ctx, func(tx domain.Tx, all []*domain.Project) error {
		p := find(all, id)
		if p == nil {
			return &domain.NotFoundError{ID: id}
		}
		var err error
		changed, err = fn(all, p)
		if err != nil {
			return err
		}
		result = p
		if !changed {
			return nil
		}
		return tx.Save(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	if changed {
		r.broker.Publish(pubsub.UpdatedEvent, result.Clone())
	}
	return result, nil
}

func (r *Registry) remove(ctx context.Context, id string, check func(p *domain.Project) error) error {
	var removed *domain.Project
	err := r.update(ctx, func(tx domain.Tx, all []*domain.Project) error {
		p := find(all, id)
		if p == nil {
			return &domain.NotFoundError{ID: id}
		}
		if err := check(p); err != nil {
			return err
		}
		removed = p
		return tx.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	log.Info(log.CatRegistry, "Removed project record", "id", id, "status", removed.Status())
	r.broker.Publish(pubsub.DeletedEvent, removed.Clone())
	return nil
}

func find(all []*domain.Project, id string) *domain.Project {
	for _, p := range all {
		if p.ID() == id {
			return p
		}
	}
	return nil
}

// pathHolder returns the record other than exceptID reserving root.
func pathHolder(all []*domain.Project, root, exceptID string) *domain.Project {
	root = filepath.Clean(root)
	for _, p := range all {
		if p.ID() != exceptID && p.Status().HoldsPath() && p.RootPath() == root {
			return p
		}
	}
	return nil
}
