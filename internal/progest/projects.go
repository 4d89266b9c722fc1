package progest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	projectapp "github.com/NaruseNia/progest/internal/project/application"
	"github.com/NaruseNia/progest/internal/project/domain"
	"github.com/NaruseNia/progest/internal/pubsub"
	"github.com/NaruseNia/progest/internal/tracing"
)

// ErrAmbiguousReference is returned when a project reference matches more
// than one record.
var ErrAmbiguousReference = errors.New("ambiguous project reference")

// AmbiguousReferenceError lists the records a reference matched.
type AmbiguousReferenceError struct {
	Ref     string
	Matches []string
}

func (e *AmbiguousReferenceError) Error() string {
	return fmt.Sprintf("project reference %q matches %d projects: %s", e.Ref, len(e.Matches), strings.Join(e.Matches, ", "))
}

// Is reports whether target is ErrAmbiguousReference.
func (e *AmbiguousReferenceError) Is(target error) bool {
	return target == ErrAmbiguousReference
}

// ListProjects returns the records passing filter, oldest first.
func (l *Library) ListProjects(ctx context.Context, filter domain.ListFilter) ([]*domain.Project, error) {
	return l.registry.List(ctx, filter)
}

// GetProject returns the record ref refers to. A reference is a full id, a
// unique id prefix or a unique project name.
func (l *Library) GetProject(ctx context.Context, ref string) (*domain.Project, error) {
	if p, err := l.registry.Get(ctx, ref); err == nil {
		return p, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	all, err := l.registry.List(ctx, domain.ListFilter{})
	if err != nil {
		return nil, err
	}
	if p, err := pick(ref, all, func(p *domain.Project) bool { return strings.HasPrefix(p.ID(), ref) }); p != nil || err != nil {
		return p, err
	}
	if p, err := pick(ref, all, func(p *domain.Project) bool { return p.Name() == ref }); p != nil || err != nil {
		return p, err
	}
	return nil, &domain.NotFoundError{ID: ref}
}

// pick returns the single record matching, nil when none does, or an
// AmbiguousReferenceError.
func pick(ref string, all []*domain.Project, match func(*domain.Project) bool) (*domain.Project, error) {
	if ref == "" {
		return nil, nil
	}
	var found []*domain.Project
	for _, p := range all {
		if match(p) {
			found = append(found, p)
		}
	}
	switch len(found) {
	case 0:
		return nil, nil
	case 1:
		return found[0], nil
	}
	ids := make([]string, len(found))
	for i, p := range found {
		ids[i] = p.ID()
	}
	return nil, &AmbiguousReferenceError{Ref: ref, Matches: ids}
}

// ArchiveProject marks a project archived.
func (l *Library) ArchiveProject(ctx context.Context, ref string) (*domain.Project, error) {
	return l.setStatus(ctx, ref, domain.StatusArchived)
}

// UnarchiveProject marks an archived or missing project active again.
func (l *Library) UnarchiveProject(ctx context.Context, ref string) (*domain.Project, error) {
	return l.setStatus(ctx, ref, domain.StatusActive)
}

func (l *Library) setStatus(ctx context.Context, ref string, status domain.Status) (*domain.Project, error) {
	p, err := l.GetProject(ctx, ref)
	if err != nil {
		return nil, err
	}
	return l.registry.UpdateStatus(ctx, p.ID(), status)
}

// ReconcileProjects marks projects whose roots are gone, and abandoned
// pending creations, as missing.
func (l *Library) ReconcileProjects(ctx context.Context) ([]projectapp.Change, error) {
	var changes []projectapp.Change
	err := tracing.Run(ctx, l.tracer, tracing.SpanReconcileProjects, func(ctx context.Context, span trace.Span) error {
		var err error
		changes, err = l.registry.Reconcile(ctx)
		if err != nil {
			return err
		}
		span.SetAttributes(attribute.Int(tracing.AttrReconcileChanges, len(changes)))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return changes, nil
}

// RelocateProject points a project at the directory it was moved to.
func (l *Library) RelocateProject(ctx context.Context, ref, root string) (*domain.Project, error) {
	p, err := l.GetProject(ctx, ref)
	if err != nil {
		return nil, err
	}
	abs, err := expandTarget(root)
	if err != nil {
		return nil, err
	}
	return l.registry.Relocate(ctx, p.ID(), abs)
}

// ForgetProject removes a missing or archived record. Files are never touched.
func (l *Library) ForgetProject(ctx context.Context, ref string) (*domain.Project, error) {
	p, err := l.GetProject(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := l.registry.Forget(ctx, p.ID()); err != nil {
		return nil, err
	}
	return p, nil
}

// TagProject adds tags to a project.
func (l *Library) TagProject(ctx context.Context, ref string, tags ...string) (*domain.Project, error) {
	p, err := l.GetProject(ctx, ref)
	if err != nil {
		return nil, err
	}
	return l.registry.Tag(ctx, p.ID(), tags...)
}

// UntagProject removes tags from a project.
func (l *Library) UntagProject(ctx context.Context, ref string, tags ...string) (*domain.Project, error) {
	p, err := l.GetProject(ctx, ref)
	if err != nil {
		return nil, err
	}
	return l.registry.Untag(ctx, p.ID(), tags...)
}

// DescribeProject replaces a project's description.
func (l *Library) DescribeProject(ctx context.Context, ref, description string) (*domain.Project, error) {
	p, err := l.GetProject(ctx, ref)
	if err != nil {
		return nil, err
	}
	return l.registry.SetDescription(ctx, p.ID(), description)
}

// Subscribe streams every committed record change.
func (l *Library) Subscribe(ctx context.Context) <-chan pubsub.Event[*domain.Project] {
	return l.registry.Subscribe(ctx)
}
