// Package application discovers and loads templates from search paths and
// the built-in set, and keeps loaded templates cached.
package application

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/NaruseNia/progest/internal/log"
	"github.com/NaruseNia/progest/internal/naming"
	"github.com/NaruseNia/progest/internal/template/domain"
)

// defaultExcludes are never copied out of a template directory.
var defaultExcludes = []string{"**/.git", "**/.DS_Store"}

// ManifestFile is the root structure for template.yaml.
type ManifestFile struct {
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	Version     string        `yaml:"version"`
	Delimiters  []string      `yaml:"delimiters"`
	Variables   []VariableDef `yaml:"variables"`
	Rules       []RuleDef     `yaml:"rules"`
	Raw         []string      `yaml:"raw"`
	Exclude     []string      `yaml:"exclude"`
}

// VariableDef defines a single variable in YAML.
type VariableDef struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Type        string   `yaml:"type"`     // "string" (default), "enum" or "boolean"
	Default     *string  `yaml:"default"`  // absent means required
	Required    *bool    `yaml:"required"` // false without a default means an empty default
	Options     []string `yaml:"options"`
	Pattern     string   `yaml:"pattern"`
	Convention  string   `yaml:"convention"`
}

// RuleDef defines a conditional inclusion rule in YAML.
type RuleDef struct {
	Path string `yaml:"path"`
	When string `yaml:"when"` // boolean variable name, "!" prefix negates
}

// LoadFromFS reads the template rooted at fsys. fallbackName names the
// template when the manifest does not. The returned template is validated.
func LoadFromFS(fsys fs.FS, source string, builtin bool, fallbackName string) (*domain.Template, error) {
	content, err := fs.ReadFile(fsys, domain.ManifestFile)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &domain.TemplateNotFoundError{Identity: source}
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", domain.ManifestFile, err)
	}

	manifest, err := parseManifest(content, fallbackName)
	if err != nil {
		return nil, err
	}

	entries, err := walkEntries(fsys, manifest)
	if err != nil {
		return nil, fmt.Errorf("scan template %s: %w", manifest.Name, err)
	}

	tmpl := domain.NewTemplate(source, builtin, manifest, entries, Digest(entries))
	if err := tmpl.Validate(); err != nil {
		return nil, err
	}

	log.Debug(log.CatTemplate, "Loaded template", "name", tmpl.Name(), "source", source, "entries", len(entries))
	return tmpl, nil
}

func parseManifest(content []byte, fallbackName string) (domain.Manifest, error) {
	malformed := func(err error) error {
		return &domain.TemplateInvalidError{Template: fallbackName, Reason: domain.ReasonManifestMalformed, Err: err}
	}

	var file ManifestFile
	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return domain.Manifest{}, malformed(err)
	}

	m := domain.Manifest{
		Name:        strings.TrimSpace(file.Name),
		Description: file.Description,
		Version:     file.Version,
		Delimiters:  domain.DefaultDelimiters,
		Raw:         file.Raw,
		Exclude:     append(append([]string{}, defaultExcludes...), file.Exclude...),
	}
	if m.Name == "" {
		m.Name = fallbackName
	}

	switch len(file.Delimiters) {
	case 0:
	case 2:
		m.Delimiters = domain.Delimiters{Open: file.Delimiters[0], Close: file.Delimiters[1]}
	default:
		return domain.Manifest{}, malformed(fmt.Errorf("delimiters must be a list of two strings, got %d", len(file.Delimiters)))
	}

	for i, def := range file.Variables {
		v, err := buildVariable(def)
		if err != nil {
			return domain.Manifest{}, &domain.TemplateInvalidError{
				Template: m.Name,
				Reason:   domain.ReasonInvalidVariable,
				Detail:   fmt.Sprintf("variable %d (%s)", i, def.Name),
				Err:      err,
			}
		}
		m.Variables = append(m.Variables, v)
	}

	for _, def := range file.Rules {
		when := strings.TrimSpace(def.When)
		rule := domain.Rule{Path: def.Path, When: strings.TrimPrefix(when, "!"), Negate: strings.HasPrefix(when, "!")}
		m.Rules = append(m.Rules, rule)
	}

	return m, nil
}

func buildVariable(def VariableDef) (domain.Variable, error) {
	v := domain.Variable{
		Name:        strings.TrimSpace(def.Name),
		Description: def.Description,
		Type:        domain.VarType(strings.ToLower(strings.TrimSpace(def.Type))),
		Default:     def.Default,
		Options:     def.Options,
	}
	if v.Type == "" {
		v.Type = domain.TypeString
		if len(def.Options) > 0 {
			v.Type = domain.TypeEnum
		}
	}

	if def.Required != nil {
		switch {
		case *def.Required && def.Default != nil:
			return v, fmt.Errorf("required variable must not declare a default")
		case !*def.Required && def.Default == nil:
			implicit := ""
			if v.Type == domain.TypeBoolean {
				implicit = "false"
			}
			if v.Type == domain.TypeEnum {
				return v, fmt.Errorf("optional enum variable needs a default")
			}
			v.Default = &implicit
		}
	}

	if def.Pattern != "" {
		re, err := regexp.Compile("^(?:" + def.Pattern + ")$")
		if err != nil {
			return v, fmt.Errorf("bad pattern: %w", err)
		}
		v.Pattern = re
	}
	if def.Convention != "" {
		c, err := naming.ParseConvention(def.Convention)
		if err != nil {
			return v, err
		}
		v.Convention = c
	}
	return v, nil
}

// walkEntries collects every entry except the manifest and excluded paths.
func walkEntries(fsys fs.FS, m domain.Manifest) ([]domain.Entry, error) {
	var entries []domain.Entry

	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == "." || domain.IsManifestPath(p) {
			return nil
		}
		if matchAny(m.Exclude, p) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		info, err := fs.Stat(fsys, p)
		if err != nil {
			return fmt.Errorf("stat %s: %w", p, err)
		}

		entry := domain.Entry{Path: p, IsDir: info.IsDir(), Mode: info.Mode()}
		if !entry.IsDir {
			entry.Content, err = fs.ReadFile(fsys, p)
			if err != nil {
				return fmt.Errorf("read %s: %w", p, err)
			}
			entry.Raw = matchAny(m.Raw, p)
		}
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func matchAny(patterns []string, p string) bool {
	for _, pattern := range patterns {
		if domain.MatchGlobOrAncestor(pattern, p) {
			return true
		}
	}
	return false
}
