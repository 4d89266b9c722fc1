package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is checks against the typed errors below.
var (
	ErrNotFound          = errors.New("project not found")
	ErrDuplicatePath     = errors.New("duplicate project path")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidProject    = errors.New("invalid project")
)

// NotFoundError is returned when no record has the given id.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("project not found: %s", e.ID)
}

// Is reports whether target is ErrNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// DuplicatePathError is returned when a root path is already held by a
// record that is not missing.
type DuplicatePathError struct {
	Path       string
	ExistingID string
}

func (e *DuplicatePathError) Error() string {
	return fmt.Sprintf("path %s is already registered to project %s", e.Path, e.ExistingID)
}

// Is reports whether target is ErrDuplicatePath.
func (e *DuplicatePathError) Is(target error) bool {
	return target == ErrDuplicatePath
}

// InvalidTransitionError is returned when a status change is not allowed.
type InvalidTransitionError struct {
	ID   string
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("project %s cannot move from %s to %s", e.ID, e.From, e.To)
}

// Is reports whether target is ErrInvalidTransition.
func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

func invalidProject(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidProject, fmt.Sprintf(format, args...))
}
