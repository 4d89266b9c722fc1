// Package domain holds the template model: manifests, variable declarations,
// placeholder syntax and validation. It performs no I/O; templates are built
// by the application layer from an fs.FS and are read-only afterwards.
package domain

import (
	"bytes"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/NaruseNia/progest/internal/naming"
)

// binarySniffLen is how many leading bytes are inspected for NUL when
// deciding whether a file is binary.
const binarySniffLen = 8000

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Entry is a directory or file of the template tree.
// Path is slash-separated and relative to the template root.
type Entry struct {
	Path    string
	IsDir   bool
	Mode    fs.FileMode
	Content []byte
	// Raw entries have their content copied verbatim; their paths are still expanded.
	Raw bool
}

// Binary reports whether the content looks binary. Binary files are copied verbatim.
func (e Entry) Binary() bool {
	if e.IsDir {
		return false
	}
	sniff := e.Content
	if len(sniff) > binarySniffLen {
		sniff = sniff[:binarySniffLen]
	}
	return bytes.IndexByte(sniff, 0) >= 0
}

// Substitutes reports whether placeholders in the content are expanded.
func (e Entry) Substitutes() bool {
	return !e.IsDir && !e.Raw && !e.Binary()
}

// Template is a loaded folder template.
type Template struct {
	source   string
	builtin  bool
	manifest Manifest
	entries  []Entry
	digest   string
	syntax   *Syntax
}

// NewTemplate assembles a template. Entries are sorted by path.
// Call Validate before handing the template to the engine.
func NewTemplate(source string, builtin bool, manifest Manifest, entries []Entry, digest string) *Template {
	if manifest.Delimiters.Open == "" && manifest.Delimiters.Close == "" {
		manifest.Delimiters = DefaultDelimiters
	}
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	return &Template{
		source:   source,
		builtin:  builtin,
		manifest: manifest,
		entries:  sorted,
		digest:   digest,
	}
}

// Name returns the template name.
func (t *Template) Name() string { return t.manifest.Name }

// Description returns the manifest description.
func (t *Template) Description() string { return t.manifest.Description }

// Version returns the manifest version.
func (t *Template) Version() string { return t.manifest.Version }

// Source returns the absolute directory of the template, or builtin:<name>.
func (t *Template) Source() string { return t.source }

// Builtin reports whether the template is embedded in the binary.
func (t *Template) Builtin() bool { return t.builtin }

// Manifest returns the parsed manifest.
func (t *Template) Manifest() Manifest { return t.manifest }

// Entries returns the template tree sorted by path. Callers must not modify it.
func (t *Template) Entries() []Entry { return t.entries }

// Digest returns the content hash of the template tree.
func (t *Template) Digest() string { return t.digest }

// Syntax returns the compiled placeholder syntax. Valid only after Validate succeeds.
func (t *Template) Syntax() *Syntax { return t.syntax }

// Validate checks the manifest and every placeholder in the tree.
// It never modifies anything on disk.
func (t *Template) Validate() error {
	name := t.manifest.Name

	syntax, err := NewSyntax(t.manifest.Delimiters)
	if err != nil {
		return &TemplateInvalidError{Template: name, Reason: ReasonInvalidDelimiters, Err: err}
	}

	declared, err := validateVariables(name, t.manifest.Variables)
	if err != nil {
		return err
	}

	for i, rule := range t.manifest.Rules {
		if err := ValidateGlob(rule.Path); err != nil {
			return invalid(name, ReasonInvalidRule, "rule %d: bad path pattern %q", i, rule.Path)
		}
		v, ok := declared[rule.When]
		if !ok {
			return invalid(name, ReasonInvalidRule, "rule %d: condition references undeclared variable %q", i, rule.When)
		}
		if v.Type != TypeBoolean {
			return invalid(name, ReasonInvalidRule, "rule %d: condition variable %q must be boolean", i, rule.When)
		}
	}
	for _, pattern := range append(append([]string{}, t.manifest.Raw...), t.manifest.Exclude...) {
		if err := ValidateGlob(pattern); err != nil {
			return invalid(name, ReasonManifestMalformed, "bad pattern %q", pattern)
		}
	}

	check := func(where string, text string) error {
		for _, p := range syntax.Scan(text) {
			if _, ok := declared[p.Name]; !ok {
				return invalid(name, ReasonUndeclaredPlaceholder, "%s references %q", where, p.Name)
			}
			if _, ok := naming.Filter(p.Filter); !ok {
				return invalid(name, ReasonUnknownFilter, "%s uses filter %q (available: %s)",
					where, p.Filter, strings.Join(naming.FilterNames(), ", "))
			}
		}
		return nil
	}

	for _, e := range t.entries {
		for _, seg := range strings.Split(e.Path, "/") {
			if err := check("path "+e.Path, seg); err != nil {
				return err
			}
		}
		if e.Substitutes() {
			if err := check("file "+e.Path, string(e.Content)); err != nil {
				return err
			}
		}
	}

	t.syntax = syntax
	return nil
}

func validateVariables(template string, vars []Variable) (map[string]Variable, error) {
	declared := make(map[string]Variable, len(vars))
	for _, v := range vars {
		if !identifierRe.MatchString(v.Name) {
			return nil, invalid(template, ReasonInvalidVariable, "variable name %q is not an identifier", v.Name)
		}
		if _, dup := declared[v.Name]; dup {
			return nil, invalid(template, ReasonDuplicateVariable, "%q", v.Name)
		}
		if !v.Type.IsValid() {
			return nil, invalid(template, ReasonInvalidVariable, "variable %q has unknown type %q", v.Name, v.Type)
		}

		switch v.Type {
		case TypeEnum:
			if len(v.Options) == 0 {
				return nil, invalid(template, ReasonInvalidVariable, "enum variable %q declares no options", v.Name)
			}
			if v.Default != nil && !v.Allows(*v.Default) {
				return nil, invalid(template, ReasonInvalidVariable, "default %q of %q is not an option", *v.Default, v.Name)
			}
		case TypeBoolean:
			if v.Default != nil && *v.Default != "true" && *v.Default != "false" {
				return nil, invalid(template, ReasonInvalidVariable, "default of boolean %q must be true or false", v.Name)
			}
		case TypeString:
			if v.Default != nil && v.Pattern != nil && !v.Pattern.MatchString(*v.Default) {
				return nil, invalid(template, ReasonInvalidVariable, "default of %q does not match its pattern", v.Name)
			}
			if v.Default != nil && v.Convention != "" && !naming.Satisfies(*v.Default, v.Convention) {
				return nil, invalid(template, ReasonInvalidVariable, "default of %q is not %s case", v.Name, v.Convention)
			}
		}
		if v.Type != TypeString && (v.Pattern != nil || v.Convention != "") {
			return nil, invalid(template, ReasonInvalidVariable, "pattern and convention apply only to string variable %q", v.Name)
		}
		declared[v.Name] = v
	}
	return declared, nil
}

// Included reports whether entry p survives the conditional rules for the
// given variable values. A rule matching p or any of its parents whose
// condition does not hold removes p.
func (t *Template) Included(p string, values map[string]string) bool {
	for _, rule := range t.manifest.Rules {
		if MatchGlobOrAncestor(rule.Path, p) && !rule.Holds(values[rule.When]) {
			return false
		}
	}
	return true
}

// TopLevel returns the distinct first path segments of the tree.
func (t *Template) TopLevel() []string {
	seen := map[string]bool{}
	var out []string
	for _, e := range t.entries {
		first, _, _ := strings.Cut(e.Path, "/")
		if !seen[first] {
			seen[first] = true
			out = append(out, first)
		}
	}
	return out
}

// IsManifestPath reports whether p is the manifest itself.
func IsManifestPath(p string) bool {
	return path.Clean(p) == ManifestFile
}
