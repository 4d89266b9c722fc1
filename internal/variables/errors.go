package variables

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for errors.Is checks against the typed errors below.
var (
	ErrMissingVariable      = errors.New("missing variable")
	ErrUnknownVariable      = errors.New("unknown variable")
	ErrInvalidVariableValue = errors.New("invalid variable value")
)

// MissingVariableError is returned when a required variable has no value.
type MissingVariableError struct {
	Name string
}

func (e *MissingVariableError) Error() string {
	return fmt.Sprintf("missing variable: %s", e.Name)
}

// Is reports whether target is ErrMissingVariable.
func (e *MissingVariableError) Is(target error) bool {
	return target == ErrMissingVariable
}

// UnknownVariableError is returned when a supplied key is not declared.
type UnknownVariableError struct {
	Name string
}

func (e *UnknownVariableError) Error() string {
	return fmt.Sprintf("unknown variable: %s", e.Name)
}

// Is reports whether target is ErrUnknownVariable.
func (e *UnknownVariableError) Is(target error) bool {
	return target == ErrUnknownVariable
}

// InvalidVariableValueError is returned when a supplied value breaks the
// variable's type or rule.
type InvalidVariableValueError struct {
	Name   string
	Value  string
	Reason string
}

func (e *InvalidVariableValueError) Error() string {
	return fmt.Sprintf("invalid value %q for variable %s: %s", e.Value, e.Name, e.Reason)
}

// Is reports whether target is ErrInvalidVariableValue.
func (e *InvalidVariableValueError) Is(target error) bool {
	return target == ErrInvalidVariableValue
}

// ResolutionError collects every problem found while resolving.
type ResolutionError struct {
	Problems []error
}

func (e *ResolutionError) Error() string {
	if len(e.Problems) == 1 {
		return e.Problems[0].Error()
	}
	msgs := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		msgs[i] = p.Error()
	}
	return fmt.Sprintf("%d variable problems: %s", len(e.Problems), strings.Join(msgs, "; "))
}

// Unwrap exposes each problem to errors.Is and errors.As.
func (e *ResolutionError) Unwrap() []error {
	return e.Problems
}
