package engine

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	tmplapp "github.com/NaruseNia/progest/internal/template/application"
	"github.com/NaruseNia/progest/internal/template/domain"
	"github.com/NaruseNia/progest/internal/templates"
	"github.com/NaruseNia/progest/internal/variables"
)

func strPtr(s string) *string { return &s }

func newTemplate(t testing.TB, manifest domain.Manifest, entries ...domain.Entry) *domain.Template {
	t.Helper()
	tmpl := domain.NewTemplate("/templates/"+manifest.Name, false, manifest, entries, "")
	require.NoError(t, tmpl.Validate())
	return tmpl
}

func dir(p string) domain.Entry { return domain.Entry{Path: p, IsDir: true, Mode: fs.ModeDir | 0o755} }

func file(p, content string) domain.Entry {
	return domain.Entry{Path: p, Mode: 0o644, Content: []byte(content)}
}

// snapshot maps every path under root to its content ("/" for directories).
func snapshot(t require.TestingT, root string) map[string]string {
	out := map[string]string{}
	if _, err := os.Stat(root); errors.Is(err, fs.ErrNotExist) {
		return out
	}
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, p)
		if d.IsDir() {
			out[rel] = "/"
			return nil
		}
		b, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		info, _ := d.Info()
		out[rel] = info.Mode().Perm().String() + ":" + string(b)
		return nil
	})
	require.NoError(t, err)
	return out
}

func loadBuiltin(t *testing.T, name string) *domain.Template {
	t.Helper()
	sub, err := fs.Sub(templates.BuiltinFS(), name)
	require.NoError(t, err)
	tmpl, err := tmplapp.LoadFromFS(sub, tmplapp.BuiltinPrefix+name, true, name)
	require.NoError(t, err)
	return tmpl
}

func TestInstantiate_BasicApp(t *testing.T) {
	tmpl := loadBuiltin(t, "basic-app")
	vars, err := variables.Resolve(tmpl.Manifest(), map[string]string{"project_name": "Foo"})
	require.NoError(t, err)

	target := filepath.Join(t.TempDir(), "x")
	res, err := New().Instantiate(context.Background(), tmpl, vars, target)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(target, "Foo"), res.Root)

	content, err := os.ReadFile(filepath.Join(target, "Foo", "README.md"))
	require.NoError(t, err)
	require.Equal(t, "# Foo\n", string(content))

	_, err = os.Stat(filepath.Join(target, "Foo", "docs"))
	require.ErrorIs(t, err, fs.ErrNotExist, "docs is excluded unless with_docs is true")
	require.Contains(t, res.Created(), target, "target created by the call is recorded")
}

func TestInstantiate_RuleIncludesSubtree(t *testing.T) {
	tmpl := loadBuiltin(t, "basic-app")
	vars, err := variables.Resolve(tmpl.Manifest(), map[string]string{"project_name": "Foo", "with_docs": "true"})
	require.NoError(t, err)

	target := t.TempDir()
	_, err = New().Instantiate(context.Background(), tmpl, vars, target)
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(target, "Foo", "docs", "index.md"))
}

func TestInstantiate_FiltersAndModes(t *testing.T) {
	tmpl := newTemplate(t, domain.Manifest{
		Name:      "filters",
		Variables: []domain.Variable{{Name: "name", Type: domain.TypeString}},
	},
		dir("{{name|kebab}}"),
		file("{{name|kebab}}/{{name|snake}}.py", "class {{ name | pascal }}: pass # {{name|upper_snake}}"),
		domain.Entry{Path: "{{name|kebab}}/run.sh", Mode: 0o755, Content: []byte("#!/bin/sh\necho {{name}}")},
	)

	target := t.TempDir()
	res, err := New().Instantiate(context.Background(), tmpl, variables.Context{"name": "myApp"}, target)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(target, "my-app"), res.Root)

	snap := snapshot(t, target)
	require.Equal(t, map[string]string{
		".":                "/",
		"my-app":           "/",
		"my-app/my_app.py": "-rw-r--r--:class MyApp: pass # MY_APP",
		"my-app/run.sh":    "-rwxr-xr-x:#!/bin/sh\necho myApp",
	}, snap)
}

func TestInstantiate_RawAndBinaryCopiedVerbatim(t *testing.T) {
	binary := []byte{'{', '{', 'x', '}', '}', 0, 1}
	tmpl := newTemplate(t, domain.Manifest{
		Name:      "raw",
		Variables: []domain.Variable{{Name: "x", Type: domain.TypeString}},
	},
		domain.Entry{Path: "keep.tmpl", Mode: 0o644, Content: []byte("{{ghost}}"), Raw: true},
		domain.Entry{Path: "blob.bin", Mode: 0o644, Content: binary},
	)

	target := t.TempDir()
	_, err := New().Instantiate(context.Background(), tmpl, variables.Context{"x": "v"}, target)
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(target, "keep.tmpl"))
	require.NoError(t, err)
	require.Equal(t, "{{ghost}}", string(got))

	got, err = os.ReadFile(filepath.Join(target, "blob.bin"))
	require.NoError(t, err)
	require.Equal(t, binary, got)
}

func TestInstantiate_MultipleTopLevelRootIsTarget(t *testing.T) {
	tmpl := newTemplate(t, domain.Manifest{Name: "flat"}, file("a.txt", "a"), file("b.txt", "b"))

	target := t.TempDir()
	res, err := New().Instantiate(context.Background(), tmpl, nil, target)
	require.NoError(t, err)
	require.Equal(t, target, res.Root)
}

func TestPlan_DestinationExistsWritesNothing(t *testing.T) {
	tmpl := loadBuiltin(t, "basic-app")
	vars, err := variables.Resolve(tmpl.Manifest(), map[string]string{"project_name": "Foo"})
	require.NoError(t, err)

	target := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(target, "Foo"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(target, "Foo", "README.md"), []byte("mine"), 0o644))
	before := snapshot(t, target)

	_, err = New().Instantiate(context.Background(), tmpl, vars, target)
	require.ErrorIs(t, err, ErrDestinationExists)

	var exists *DestinationExistsError
	require.True(t, errors.As(err, &exists))
	require.Equal(t, filepath.Join(target, "Foo"), exists.Path)

	require.Equal(t, before, snapshot(t, target))
}

func TestPlan_PathConflicts(t *testing.T) {
	manifest := domain.Manifest{
		Name: "conflict",
		Variables: []domain.Variable{
			{Name: "a", Type: domain.TypeString},
			{Name: "b", Type: domain.TypeString},
		},
	}
	tmpl := newTemplate(t, manifest, file("{{a}}.txt", "1"), file("{{b}}.txt", "2"))

	tests := []struct {
		name string
		vars variables.Context
	}{
		{"same rendered path", variables.Context{"a": "x", "b": "x"}},
		{"separator in value", variables.Context{"a": "../evil", "b": "y"}},
		{"backslash in value", variables.Context{"a": `x\y`, "b": "y"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := t.TempDir()
			_, err := New().Plan(context.Background(), tmpl, tt.vars, target)
			require.ErrorIs(t, err, ErrPathConflict)
		})
	}

	bare := newTemplate(t, domain.Manifest{Name: "bare", Variables: manifest.Variables[:1]}, dir("{{a}}"))
	for _, value := range []string{"", ".", ".."} {
		_, err := New().Plan(context.Background(), bare, variables.Context{"a": value}, t.TempDir())
		require.ErrorIs(t, err, ErrPathConflict, "value %q", value)
	}
}

func TestPlan_UnresolvedPlaceholder(t *testing.T) {
	tmpl := newTemplate(t, domain.Manifest{
		Name:      "u",
		Variables: []domain.Variable{{Name: "a", Type: domain.TypeString}},
	}, file("f.txt", "{{a}}"))

	_, err := New().Plan(context.Background(), tmpl, variables.Context{}, t.TempDir())
	require.ErrorIs(t, err, ErrUnresolvedPlaceholder)

	var unresolved *UnresolvedPlaceholderError
	require.True(t, errors.As(err, &unresolved))
	require.Equal(t, "a", unresolved.Name)
}

func TestPlan_TargetIsFile(t *testing.T) {
	tmpl := newTemplate(t, domain.Manifest{Name: "f"}, file("a.txt", "a"))
	target := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(target, nil, 0o644))

	_, err := New().Plan(context.Background(), tmpl, nil, target)
	require.ErrorIs(t, err, ErrPathConflict)
}

func TestPlan_OrdersDirectoriesBeforeFiles(t *testing.T) {
	tmpl := newTemplate(t, domain.Manifest{Name: "order"},
		dir("a"), dir("a/b"), dir("a/b/c"), file("a/z.txt", ""), file("a/b/c/y.txt", ""), dir("d"),
	)
	plan, err := New().Plan(context.Background(), tmpl, nil, t.TempDir())
	require.NoError(t, err)

	var paths []string
	for _, a := range plan.Actions {
		paths = append(paths, a.Path)
	}
	require.Equal(t, []string{"a", "d", "a/b", "a/b/c", "a/b/c/y.txt", "a/z.txt"}, paths)
	require.Equal(t, 4, plan.Dirs())
	require.Equal(t, 2, plan.Files())
}

// failingFS fails the nth CreateFile call.
type failingFS struct {
	OSFileSystem
	failAt int
	calls  int
}

func (f *failingFS) CreateFile(path string, data []byte, perm fs.FileMode) error {
	f.calls++
	if f.calls == f.failAt {
		return errors.New("disk full")
	}
	return f.OSFileSystem.CreateFile(path, data, perm)
}

func TestInstantiate_RollsBackOnWriteFailure(t *testing.T) {
	tmpl := loadBuiltin(t, "basic-app")
	vars, err := variables.Resolve(tmpl.Manifest(), map[string]string{"project_name": "Foo"})
	require.NoError(t, err)

	parent := t.TempDir()
	before := snapshot(t, parent)
	target := filepath.Join(parent, "new", "nested")

	_, err = New(WithFileSystem(&failingFS{failAt: 2})).Instantiate(context.Background(), tmpl, vars, target)
	require.ErrorIs(t, err, ErrInstantiationIO)

	var ioErr *InstantiationIOError
	require.True(t, errors.As(err, &ioErr))
	require.Equal(t, "disk full", ioErr.Cause.Error())

	require.Equal(t, before, snapshot(t, parent), "target and its created parents are removed again")
}

func TestInstantiate_Cancelled(t *testing.T) {
	tmpl := loadBuiltin(t, "basic-app")
	vars, err := variables.Resolve(tmpl.Manifest(), map[string]string{"project_name": "Foo"})
	require.NoError(t, err)
	e := New()

	target := t.TempDir()
	plan, err := e.Plan(context.Background(), tmpl, vars, target)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Apply(ctx, plan)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, map[string]string{".": "/"}, snapshot(t, target))
}

func TestResult_Remove(t *testing.T) {
	tmpl := loadBuiltin(t, "basic-app")
	vars, err := variables.Resolve(tmpl.Manifest(), map[string]string{"project_name": "Foo"})
	require.NoError(t, err)

	target := t.TempDir()
	res, err := New().Instantiate(context.Background(), tmpl, vars, target)
	require.NoError(t, err)
	require.NoError(t, res.Remove())
	require.Equal(t, map[string]string{".": "/"}, snapshot(t, target))
}

func TestRender(t *testing.T) {
	tmpl := loadBuiltin(t, "basic-app")
	vars, err := variables.Resolve(tmpl.Manifest(), map[string]string{"project_name": "Foo", "author": "Ada"})
	require.NoError(t, err)

	files, err := New().Render(tmpl, vars)
	require.NoError(t, err)
	require.Equal(t, "# Foo\n", string(files["Foo/README.md"]))
	require.Contains(t, string(files["Foo/NOTES.md"]), "Started by Ada.")
	require.NotContains(t, files, "Foo/docs/index.md")
}

func TestPreview_IgnoresExistingDestinations(t *testing.T) {
	tmpl := loadBuiltin(t, "basic-app")
	vars, err := variables.Resolve(tmpl.Manifest(), map[string]string{"project_name": "Foo"})
	require.NoError(t, err)

	target := t.TempDir()
	_, err = New().Instantiate(context.Background(), tmpl, vars, target)
	require.NoError(t, err)

	_, err = New().Plan(context.Background(), tmpl, vars, target)
	require.ErrorIs(t, err, ErrDestinationExists)

	plan, err := New().Preview(tmpl, vars, target)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(target, "Foo"), plan.Root)
	require.Equal(t, 1, plan.Dirs())
	require.Equal(t, 2, plan.Files())
}

// Two instantiations of the same template and context into different empty
// targets produce identical trees.
func TestInstantiate_DeterministicProperty(t *testing.T) {
	tmpl := newTemplate(t, domain.Manifest{
		Name: "prop",
		Variables: []domain.Variable{
			{Name: "name", Type: domain.TypeString},
			{Name: "flag", Type: domain.TypeBoolean, Default: strPtr("false")},
		},
		Rules: []domain.Rule{{Path: "{{name}}/extra", When: "flag"}},
	},
		dir("{{name}}"),
		dir("{{name}}/extra"),
		file("{{name}}/extra/{{name|snake}}.txt", "{{name|camel}}"),
		file("{{name}}/main.txt", "hello {{name}} {{flag}}"),
	)
	base := t.TempDir()

	rapid.Check(t, func(rt *rapid.T) {
		vars := variables.Context{
			"name": rapid.StringMatching(`[A-Za-z][A-Za-z0-9 _-]{0,12}`).Draw(rt, "name"),
			"flag": rapid.SampledFrom([]string{"true", "false"}).Draw(rt, "flag"),
		}

		a, err := os.MkdirTemp(base, "a")
		require.NoError(rt, err)
		b, err := os.MkdirTemp(base, "b")
		require.NoError(rt, err)

		e := New()
		_, errA := e.Instantiate(context.Background(), tmpl, vars, a)
		_, errB := e.Instantiate(context.Background(), tmpl, vars, b)
		require.Equal(rt, errA == nil, errB == nil)
		require.Equal(rt, snapshot(rt, a), snapshot(rt, b))
	})
}

// A failed dry run leaves the filesystem untouched, whichever destination
// already exists.
func TestInstantiate_NoPartialWritesProperty(t *testing.T) {
	tmpl := newTemplate(t, domain.Manifest{Name: "tree"},
		dir("p"), dir("p/q"), file("p/a.txt", "a"), file("p/q/b.txt", "b"), file("p/q/c.txt", "c"),
	)
	existing := []string{"p", "p/q", "p/a.txt", "p/q/b.txt", "p/q/c.txt"}
	base := t.TempDir()

	rapid.Check(t, func(rt *rapid.T) {
		target, err := os.MkdirTemp(base, "t")
		require.NoError(rt, err)

		pick := rapid.SampledFrom(existing).Draw(rt, "existing")
		p := filepath.Join(target, filepath.FromSlash(pick))
		require.NoError(rt, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(rt, os.WriteFile(p, []byte("pre"), 0o644))
		before := snapshot(rt, target)

		_, err = New().Instantiate(context.Background(), tmpl, nil, target)
		require.ErrorIs(rt, err, ErrDestinationExists)
		require.Equal(rt, before, snapshot(rt, target))
	})
}
