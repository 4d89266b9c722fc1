package domain

import (
	"regexp"

	"github.com/NaruseNia/progest/internal/naming"
)

// ManifestFile is the name of the manifest at the root of every template directory.
const ManifestFile = "template.yaml"

// VarType is the declared type of a template variable.
type VarType string

const (
	TypeString  VarType = "string"
	TypeEnum    VarType = "enum"
	TypeBoolean VarType = "boolean"
)

// IsValid returns true if the type is a recognized variable type.
func (t VarType) IsValid() bool {
	switch t {
	case TypeString, TypeEnum, TypeBoolean:
		return true
	default:
		return false
	}
}

// Variable is a manifest variable declaration.
type Variable struct {
	Name        string
	Description string
	Type        VarType
	// Default is nil when the variable has no default; such variables are required.
	Default    *string
	Options    []string
	Pattern    *regexp.Regexp
	Convention naming.Convention
}

// Required reports whether a value must be supplied.
func (v Variable) Required() bool {
	return v.Default == nil
}

// Allows reports whether value is one of the enum options.
func (v Variable) Allows(value string) bool {
	for _, o := range v.Options {
		if o == value {
			return true
		}
	}
	return false
}

// Rule includes the entries matching Path only when the boolean variable
// named by When is true, or false when Negate is set.
type Rule struct {
	Path   string
	When   string
	Negate bool
}

// Holds evaluates the rule condition against a boolean variable value.
func (r Rule) Holds(value string) bool {
	return (value == "true") != r.Negate
}

// Delimiters are the placeholder open and close tokens.
type Delimiters struct {
	Open  string
	Close string
}

// DefaultDelimiters are used when a manifest does not override them.
var DefaultDelimiters = Delimiters{Open: "{{", Close: "}}"}

// Manifest describes a template: its variables, conditional rules and
// placeholder syntax.
type Manifest struct {
	Name        string
	Description string
	Version     string
	Delimiters  Delimiters
	Variables   []Variable
	Rules       []Rule
	Raw         []string
	Exclude     []string
}

// Variable returns the declaration with the given name.
func (m Manifest) Variable(name string) (Variable, bool) {
	for _, v := range m.Variables {
		if v.Name == name {
			return v, true
		}
	}
	return Variable{}, false
}

// VariableNames lists declared variable names in declaration order.
func (m Manifest) VariableNames() []string {
	names := make([]string, len(m.Variables))
	for i, v := range m.Variables {
		names[i] = v.Name
	}
	return names
}
