package progest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aymanbagabas/go-udiff"
	"github.com/sergi/go-diff/diffmatchpatch"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/NaruseNia/progest/internal/engine"
	"github.com/NaruseNia/progest/internal/log"
	"github.com/NaruseNia/progest/internal/project/domain"
	tmplapp "github.com/NaruseNia/progest/internal/template/application"
	tmpldomain "github.com/NaruseNia/progest/internal/template/domain"
	"github.com/NaruseNia/progest/internal/tracing"
	"github.com/NaruseNia/progest/internal/variables"
)

// DriftKind classifies how a project file differs from its template.
type DriftKind string

const (
	// DriftMissing is a file the template produces that is gone from disk.
	DriftMissing DriftKind = "missing"
	// DriftModified is a file whose content no longer matches the template.
	DriftModified DriftKind = "modified"
	// DriftAdded is a file on disk the template does not produce.
	DriftAdded DriftKind = "added"
)

// FileDrift is one differing file. Path is slash-separated and relative to
// the project root.
type FileDrift struct {
	Path string
	Kind DriftKind
	// Diff is a unified diff from the rendered template to the file on
	// disk. It is set for modified files only.
	Diff string
	// Added and Removed count changed lines of a modified text file.
	Added   int
	Removed int
}

// Drift compares a project with a fresh rendering of its template.
type Drift struct {
	Project *domain.Project
	// TemplateDigest is the digest of the template as it is now.
	TemplateDigest string
	Files          []FileDrift
}

// TemplateChanged reports whether the template changed since the project
// was created.
func (d *Drift) TemplateChanged() bool {
	return d.Project.TemplateDigest() != "" && d.Project.TemplateDigest() != d.TemplateDigest
}

// Clean reports whether no file differs.
func (d *Drift) Clean() bool {
	return len(d.Files) == 0
}

// DiffProject renders the recorded template with the recorded variables and
// compares the result with the project directory.
func (l *Library) DiffProject(ctx context.Context, ref string) (*Drift, error) {
	p, err := l.GetProject(ctx, ref)
	if err != nil {
		return nil, err
	}

	var drift *Drift
	err = tracing.Run(ctx, l.tracer, tracing.SpanDiffProject, func(ctx context.Context, span trace.Span) error {
		tmpl, err := l.recordedTemplate(ctx, p)
		if err != nil {
			return err
		}
		span.SetAttributes(attribute.String(tracing.AttrTemplateSource, tmpl.Source()))

		rendered, exclude, err := l.renderFor(tmpl, p)
		if err != nil {
			return err
		}
		drift = &Drift{Project: p, TemplateDigest: tmpl.Digest()}
		drift.Files, err = compareTree(ctx, p.RootPath(), rendered, exclude)
		return err
	},
		attribute.String(tracing.AttrProjectID, p.ID()),
		attribute.String(tracing.AttrProjectRoot, p.RootPath()),
	)
	if err != nil {
		return nil, err
	}
	log.Debug(log.CatEngine, "Diffed project", "id", p.ID(), "files", len(drift.Files))
	return drift, nil
}

// recordedTemplate loads the template a project was created from.
func (l *Library) recordedTemplate(ctx context.Context, p *domain.Project) (*tmpldomain.Template, error) {
	source := p.TemplatePath()
	switch {
	case strings.HasPrefix(source, tmplapp.BuiltinPrefix):
		found, _, err := l.store.List(ctx)
		if err != nil {
			return nil, err
		}
		for _, t := range found {
			if t.Source() == source {
				return t, nil
			}
		}
		// Shadowed by a template of the same name in a search path.
		return l.store.Load(ctx, p.TemplateName())
	case source != "":
		return l.store.LoadDir(ctx, source)
	case p.TemplateName() != "":
		return l.store.Load(ctx, p.TemplateName())
	}
	return nil, &tmpldomain.TemplateNotFoundError{Identity: p.Name()}
}

// renderFor renders tmpl with the project's variables and returns every
// file keyed by its path relative to the project root, together with the
// exclusion patterns expressed relative to the same root.
func (l *Library) renderFor(tmpl *tmpldomain.Template, p *domain.Project) (map[string][]byte, func(string) bool, error) {
	vars, err := variables.Resolve(tmpl.Manifest(), knownVariables(tmpl, p.Variables()))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve recorded variables: %w", err)
	}

	root := p.RootPath()
	plan, err := l.engine.Preview(tmpl, vars, filepath.Dir(root))
	if err != nil {
		return nil, nil, err
	}
	if plan.Root != root {
		// The project root was the instantiation target itself.
		if plan, err = l.engine.Preview(tmpl, vars, root); err != nil {
			return nil, nil, err
		}
	}

	prefix, err := filepath.Rel(plan.Target, root)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to relate %s to %s: %w", root, plan.Target, err)
	}
	prefix = filepath.ToSlash(prefix)

	rel := func(actionPath string) (string, bool) {
		if prefix == "." {
			return actionPath, true
		}
		rest, ok := strings.CutPrefix(actionPath, prefix+"/")
		return rest, ok
	}

	files := make(map[string][]byte)
	for _, a := range plan.Actions {
		if a.IsDir {
			continue
		}
		if r, ok := rel(a.Path); ok {
			files[r] = a.Content
		}
	}

	excluded := func(relPath string) bool {
		full := relPath
		if prefix != "." {
			full = prefix + "/" + relPath
		}
		for _, pattern := range tmpl.Manifest().Exclude {
			if tmpldomain.MatchGlobOrAncestor(pattern, full) {
				return true
			}
		}
		return false
	}
	return files, excluded, nil
}

// knownVariables drops recorded values the template no longer declares, so
// that an upgraded template can still be compared.
func knownVariables(tmpl *tmpldomain.Template, recorded map[string]string) map[string]string {
	out := make(map[string]string, len(recorded))
	for k, v := range recorded {
		if _, ok := tmpl.Manifest().Variable(k); ok {
			out[k] = v
		}
	}
	return out
}

// compareTree reports rendered files that are missing or modified under
// root, and files under root the rendering does not contain.
func compareTree(ctx context.Context, root string, rendered map[string][]byte, excluded func(string) bool) ([]FileDrift, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to open project root: %w", err)
	}
	if !info.IsDir() {
		return nil, &engine.PathConflictError{Path: root, Reason: "project root is not a directory"}
	}

	var out []FileDrift
	fsys := os.DirFS(root)
	for _, p := range sortedPaths(rendered) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		got, err := fs.ReadFile(fsys, p)
		if errors.Is(err, fs.ErrNotExist) {
			out = append(out, FileDrift{Path: p, Kind: DriftMissing})
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", p, err)
		}
		if want := rendered[p]; !bytes.Equal(want, got) {
			added, removed := lineChanges(want, got)
			out = append(out, FileDrift{Path: p, Kind: DriftModified, Diff: UnifiedDiff(p, want, got), Added: added, Removed: removed})
		}
	}

	err = fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == "." {
			return nil
		}
		if d.IsDir() {
			if d.Name() == ".git" || excluded(p) {
				return fs.SkipDir
			}
			return nil
		}
		if _, ok := rendered[p]; ok || excluded(p) {
			return nil
		}
		out = append(out, FileDrift{Path: p, Kind: DriftAdded})
		return ctx.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func sortedPaths(m map[string][]byte) []string {
	out := make([]string, 0, len(m))
	for p := range m {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// UnifiedDiff renders a line-based unified diff from want to got with three
// lines of context.
func UnifiedDiff(name string, want, got []byte) string {
	if bytes.IndexByte(want, 0) >= 0 || bytes.IndexByte(got, 0) >= 0 {
		return fmt.Sprintf("Binary files template/%s and project/%s differ\n", name, name)
	}
	return udiff.Unified("template/"+name, "project/"+name, string(want), string(got))
}

// lineChanges counts the lines got adds and removes relative to want.
func lineChanges(want, got []byte) (added, removed int) {
	if bytes.IndexByte(want, 0) >= 0 || bytes.IndexByte(got, 0) >= 0 {
		return 0, 0
	}
	dmp := diffmatchpatch.New()
	a, b, lineArray := dmp.DiffLinesToChars(string(want), string(got))
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lineArray)
	for _, d := range diffs {
		n := strings.Count(d.Text, "\n")
		if !strings.HasSuffix(d.Text, "\n") && d.Text != "" {
			n++
		}
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			added += n
		case diffmatchpatch.DiffDelete:
			removed += n
		}
	}
	return added, removed
}
