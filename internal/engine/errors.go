package engine

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is checks against the typed errors below.
var (
	ErrDestinationExists     = errors.New("destination exists")
	ErrUnresolvedPlaceholder = errors.New("unresolved placeholder")
	ErrPathConflict          = errors.New("path conflict")
	ErrInstantiationIO       = errors.New("instantiation failed")
)

// DestinationExistsError is returned by the dry run when a destination is
// already present on disk. Nothing has been written.
type DestinationExistsError struct {
	Path string
}

func (e *DestinationExistsError) Error() string {
	return fmt.Sprintf("destination exists: %s", e.Path)
}

// Is reports whether target is ErrDestinationExists.
func (e *DestinationExistsError) Is(target error) bool {
	return target == ErrDestinationExists
}

// UnresolvedPlaceholderError means a placeholder had no value in the context.
// It indicates a template and context that do not belong together.
type UnresolvedPlaceholderError struct {
	Path string
	Name string
}

func (e *UnresolvedPlaceholderError) Error() string {
	return fmt.Sprintf("unresolved placeholder %q in %s", e.Name, e.Path)
}

// Is reports whether target is ErrUnresolvedPlaceholder.
func (e *UnresolvedPlaceholderError) Is(target error) bool {
	return target == ErrUnresolvedPlaceholder
}

// PathConflictError is returned when rendered paths collide or a rendered
// segment would escape its directory.
type PathConflictError struct {
	Path   string
	Reason string
}

func (e *PathConflictError) Error() string {
	return fmt.Sprintf("path conflict at %s: %s", e.Path, e.Reason)
}

// Is reports whether target is ErrPathConflict.
func (e *PathConflictError) Is(target error) bool {
	return target == ErrPathConflict
}

// InstantiationIOError wraps the failure that aborted materialization.
// Everything created by the call has been removed when it is returned.
type InstantiationIOError struct {
	Path  string
	Cause error
}

func (e *InstantiationIOError) Error() string {
	return fmt.Sprintf("instantiation failed at %s: %v", e.Path, e.Cause)
}

// Is reports whether target is ErrInstantiationIO.
func (e *InstantiationIOError) Is(target error) bool {
	return target == ErrInstantiationIO
}

func (e *InstantiationIOError) Unwrap() error {
	return e.Cause
}
