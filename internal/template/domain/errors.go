package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is checks against the typed errors below.
var (
	ErrTemplateNotFound = errors.New("template not found")
	ErrTemplateInvalid  = errors.New("template invalid")
)

// TemplateNotFoundError is returned when no template matches an identity.
type TemplateNotFoundError struct {
	Identity string
}

func (e *TemplateNotFoundError) Error() string {
	return fmt.Sprintf("template not found: %s", e.Identity)
}

// Is reports whether target is ErrTemplateNotFound.
func (e *TemplateNotFoundError) Is(target error) bool {
	return target == ErrTemplateNotFound
}

// InvalidReason classifies why a template failed validation.
type InvalidReason string

const (
	ReasonUndeclaredPlaceholder InvalidReason = "placeholder referenced but undeclared"
	ReasonManifestMalformed     InvalidReason = "manifest malformed"
	ReasonDuplicateVariable     InvalidReason = "duplicate variable name"
	ReasonUnknownFilter         InvalidReason = "unknown filter"
	ReasonInvalidVariable       InvalidReason = "invalid variable definition"
	ReasonInvalidRule           InvalidReason = "invalid rule"
	ReasonInvalidDelimiters     InvalidReason = "invalid delimiters"
)

// TemplateInvalidError describes a template that cannot be instantiated.
type TemplateInvalidError struct {
	Template string
	Reason   InvalidReason
	Detail   string
	Err      error
}

func (e *TemplateInvalidError) Error() string {
	msg := fmt.Sprintf("template %s invalid: %s", e.Template, e.Reason)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is reports whether target is ErrTemplateInvalid.
func (e *TemplateInvalidError) Is(target error) bool {
	return target == ErrTemplateInvalid
}

func (e *TemplateInvalidError) Unwrap() error {
	return e.Err
}

func invalid(template string, reason InvalidReason, format string, args ...any) error {
	return &TemplateInvalidError{
		Template: template,
		Reason:   reason,
		Detail:   fmt.Sprintf(format, args...),
	}
}
