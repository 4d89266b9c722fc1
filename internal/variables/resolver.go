// Package variables validates supplied values against a template manifest
// and builds the substitution context used by the engine.
package variables

import (
	"fmt"
	"sort"
	"strings"

	"github.com/NaruseNia/progest/internal/naming"
	"github.com/NaruseNia/progest/internal/template/domain"
)

// Context maps every declared variable to its concrete value.
type Context map[string]string

// Clone returns an independent copy.
func (c Context) Clone() Context {
	out := make(Context, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Resolve builds the substitution context for manifest from supplied.
// Supplied values are validated, defaults fill the gaps, and every problem
// is reported together in a *ResolutionError.
func Resolve(manifest domain.Manifest, supplied map[string]string) (Context, error) {
	var problems []error
	ctx := make(Context, len(manifest.Variables))

	for _, v := range manifest.Variables {
		value, ok := supplied[v.Name]
		if !ok {
			if v.Default == nil {
				problems = append(problems, &MissingVariableError{Name: v.Name})
				continue
			}
			ctx[v.Name] = *v.Default
			continue
		}

		canonical, err := Validate(v, value)
		if err != nil {
			problems = append(problems, err)
			continue
		}
		ctx[v.Name] = canonical
	}

	for _, name := range sortedKeys(supplied) {
		if _, declared := manifest.Variable(name); !declared {
			problems = append(problems, &UnknownVariableError{Name: name})
		}
	}

	if len(problems) > 0 {
		return nil, &ResolutionError{Problems: problems}
	}
	return ctx, nil
}

// Validate checks value against v and returns its canonical form.
func Validate(v domain.Variable, value string) (string, error) {
	invalid := func(format string, args ...any) error {
		return &InvalidVariableValueError{Name: v.Name, Value: value, Reason: fmt.Sprintf(format, args...)}
	}

	switch v.Type {
	case domain.TypeBoolean:
		switch value {
		case "true", "false":
			return value, nil
		default:
			return "", invalid("must be true or false")
		}
	case domain.TypeEnum:
		if !v.Allows(value) {
			return "", invalid("must be one of %s", strings.Join(v.Options, ", "))
		}
		return value, nil
	default:
		if v.Pattern != nil && !v.Pattern.MatchString(value) {
			return "", invalid("must match %s", v.Pattern.String())
		}
		if v.Convention != "" && !naming.Satisfies(value, v.Convention) {
			return "", invalid("must be %s case (e.g. %q)", v.Convention, naming.Convert(value, v.Convention))
		}
		return value, nil
	}
}

// Missing lists, in declaration order, the required variables that have no
// supplied value.
func Missing(manifest domain.Manifest, supplied map[string]string) []domain.Variable {
	var out []domain.Variable
	for _, v := range manifest.Variables {
		if _, ok := supplied[v.Name]; !ok && v.Required() {
			out = append(out, v)
		}
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
