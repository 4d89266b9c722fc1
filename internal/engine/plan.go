package engine

import (
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/NaruseNia/progest/internal/naming"
	"github.com/NaruseNia/progest/internal/template/domain"
	"github.com/NaruseNia/progest/internal/variables"
)

const (
	dirMode  fs.FileMode = 0o755
	fileMode fs.FileMode = 0o644
	execMode fs.FileMode = 0o755
)

// Action is one directory or file the engine will create.
type Action struct {
	// Path is slash-separated and relative to the plan target.
	Path    string
	IsDir   bool
	Mode    fs.FileMode
	Content []byte
	// Source is the template entry path the action was rendered from.
	Source string
}

// Plan is the outcome of the dry run: everything Instantiate would create,
// directories first (parents before children), then files.
type Plan struct {
	Target  string
	Root    string
	Actions []Action
}

// Dirs returns the number of directories in the plan.
func (p *Plan) Dirs() int {
	n := 0
	for _, a := range p.Actions {
		if a.IsDir {
			n++
		}
	}
	return n
}

// Files returns the number of files in the plan.
func (p *Plan) Files() int {
	return len(p.Actions) - p.Dirs()
}

// render expands every included entry of tmpl. It touches no filesystem.
func render(tmpl *domain.Template, vars variables.Context) ([]Action, error) {
	syntax := tmpl.Syntax()
	if syntax == nil {
		if err := tmpl.Validate(); err != nil {
			return nil, err
		}
		syntax = tmpl.Syntax()
	}

	lookupFor := func(where string) func(p domain.Placeholder) (string, error) {
		return func(p domain.Placeholder) (string, error) {
			value, ok := vars[p.Name]
			if !ok {
				return "", &UnresolvedPlaceholderError{Path: where, Name: p.Name}
			}
			filter, ok := naming.Filter(p.Filter)
			if !ok {
				return "", &UnresolvedPlaceholderError{Path: where, Name: p.Name + "|" + p.Filter}
			}
			return filter(value), nil
		}
	}

	values := map[string]string(vars)
	byPath := make(map[string]*Action)
	var actions []*Action

	for _, e := range tmpl.Entries() {
		if !tmpl.Included(e.Path, values) {
			continue
		}

		segments := strings.Split(e.Path, "/")
		for i, seg := range segments {
			out, err := syntax.Expand(seg, lookupFor(e.Path))
			if err != nil {
				return nil, err
			}
			if reason := badSegment(out); reason != "" {
				return nil, &PathConflictError{Path: e.Path, Reason: reason}
			}
			segments[i] = out
		}
		dest := strings.Join(segments, "/")

		a := &Action{Path: dest, IsDir: e.IsDir, Source: e.Path}
		if e.IsDir {
			a.Mode = dirMode
		} else {
			a.Mode = fileMode
			if e.Mode.Perm()&0o111 != 0 {
				a.Mode = execMode
			}
			a.Content = e.Content
			if e.Substitutes() {
				out, err := syntax.Expand(string(e.Content), lookupFor(e.Path))
				if err != nil {
					return nil, err
				}
				a.Content = []byte(out)
			}
		}

		if prev, dup := byPath[dest]; dup {
			if prev.IsDir && a.IsDir {
				continue
			}
			return nil, &PathConflictError{Path: dest, Reason: "rendered from both " + prev.Source + " and " + e.Path}
		}
		byPath[dest] = a
		actions = append(actions, a)
	}

	// Parents that no entry produced, for example when two directories
	// render to different names than their children expect.
	for _, a := range actions {
		for dir := path.Dir(a.Path); dir != "."; dir = path.Dir(dir) {
			parent, ok := byPath[dir]
			if !ok {
				parent = &Action{Path: dir, IsDir: true, Mode: dirMode, Source: dir}
				byPath[dir] = parent
				actions = append(actions, parent)
				continue
			}
			if !parent.IsDir {
				return nil, &PathConflictError{Path: dir, Reason: "file " + parent.Source + " is also a parent of " + a.Source}
			}
		}
	}

	out := make([]Action, len(actions))
	for i, a := range actions {
		out[i] = *a
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.IsDir != b.IsDir {
			return a.IsDir
		}
		if a.IsDir {
			da, db := strings.Count(a.Path, "/"), strings.Count(b.Path, "/")
			if da != db {
				return da < db
			}
		}
		return a.Path < b.Path
	})
	return out, nil
}

func badSegment(seg string) string {
	switch {
	case seg == "":
		return "segment renders empty"
	case seg == "." || seg == "..":
		return "segment renders to " + seg
	case strings.ContainsAny(seg, `/\`):
		return "segment contains a path separator"
	case strings.ContainsRune(seg, 0):
		return "segment contains NUL"
	}
	return ""
}

// projectRoot is the single top-level directory of actions, or target.
func projectRoot(target string, actions []Action) string {
	var top string
	for _, a := range actions {
		first, _, _ := strings.Cut(a.Path, "/")
		if top == "" {
			top = first
		} else if first != top {
			return target
		}
	}
	if top == "" {
		return target
	}
	for _, a := range actions {
		if a.Path == top && !a.IsDir {
			return target
		}
	}
	return filepath.Join(target, filepath.FromSlash(top))
}
