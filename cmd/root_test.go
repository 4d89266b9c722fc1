package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NaruseNia/progest/internal/progest"
)

type testEnv struct {
	dir        string
	configPath string
	target     string
}

// newTestEnv writes a config whose registry and template path live in a
// temp directory.
func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	env := testEnv{
		dir:        dir,
		configPath: filepath.Join(dir, "config.yaml"),
		target:     filepath.Join(dir, "projects"),
	}
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "templates"), 0o755))
	require.NoError(t, os.MkdirAll(env.target, 0o755))

	content := "# test config\n" +
		"templates:\n" +
		"  paths:\n" +
		"    - " + filepath.Join(dir, "templates") + "\n" +
		"  builtin: true\n" +
		"registry:\n" +
		"  path: " + filepath.Join(dir, "registry.db") + "\n"
	require.NoError(t, os.WriteFile(env.configPath, []byte(content), 0o600))
	return env
}

// resetFlags restores every flag to its default so package-level flag
// variables do not leak between executions.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// run executes the root command with args against env's config.
func (env testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(append([]string{"--config", env.configPath}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func (env testEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := env.run(t, args...)
	require.NoError(t, err, "progest %s", strings.Join(args, " "))
	return out
}

func decodeJSON[T any](t *testing.T, out string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(out), &v), "output: %s", out)
	return v
}

func TestTemplateList(t *testing.T) {
	env := newTestEnv(t)

	list := decodeJSON[map[string]any](t, env.mustRun(t, "template:list"))

	templates, ok := list["templates"].([]any)
	require.True(t, ok)
	var names []string
	for _, tmpl := range templates {
		names = append(names, tmpl.(map[string]any)["name"].(string))
	}
	assert.Contains(t, names, "basic-app")
	assert.Contains(t, names, "web-app")
}

func TestTemplateShow(t *testing.T) {
	env := newTestEnv(t)

	detail := decodeJSON[map[string]any](t, env.mustRun(t, "template:show", "basic-app"))
	assert.Equal(t, "basic-app", detail["name"])
	assert.Equal(t, true, detail["builtin"])

	_, err := env.run(t, "template:show", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "template not found: nope")
}

func TestTemplatePathsAdd(t *testing.T) {
	env := newTestEnv(t)
	extra := filepath.Join(env.dir, "more-templates")
	require.NoError(t, os.MkdirAll(extra, 0o755))

	result := decodeJSON[map[string]any](t, env.mustRun(t, "template:paths:add", extra))
	assert.Equal(t, true, result["added"])

	data, err := os.ReadFile(env.configPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), extra)
	assert.Contains(t, string(data), "# test config", "expected comments to be preserved")

	result = decodeJSON[map[string]any](t, env.mustRun(t, "template:paths:add", extra))
	assert.Equal(t, false, result["added"], "expected the second add to be a no-op")

	_, err = env.run(t, "template:paths:add", filepath.Join(env.dir, "missing"))
	require.Error(t, err)
}

func TestProjectCreate_AndList(t *testing.T) {
	env := newTestEnv(t)

	created := decodeJSON[map[string]any](t, env.mustRun(t,
		"project:create", "basic-app",
		"--name", "Foo",
		"--target", env.target,
		"--tag", "Work",
		"--description", "first project",
	))
	root := filepath.Join(env.target, "Foo")
	assert.Equal(t, root, created["root_path"])
	assert.Equal(t, "active", created["status"])
	assert.Equal(t, "first project", created["description"])
	assert.Equal(t, []any{"work"}, created["tags"])

	readme, err := os.ReadFile(filepath.Join(root, "README.md"))
	require.NoError(t, err)
	assert.Equal(t, "# Foo\n", string(readme))
	_, err = os.Stat(filepath.Join(root, "docs"))
	assert.True(t, os.IsNotExist(err), "expected docs to be skipped by default")

	projects := decodeJSON[[]map[string]any](t, env.mustRun(t, "project:list"))
	require.Len(t, projects, 1)
	assert.Equal(t, "Foo", projects[0]["name"])

	assert.Empty(t, decodeJSON[[]map[string]any](t, env.mustRun(t, "project:list", "--status", "archived")))
	assert.Len(t, decodeJSON[[]map[string]any](t, env.mustRun(t, "project:list", "--tag", "work")), 1)

	_, err = env.run(t, "project:list", "--status", "bogus")
	require.Error(t, err)
}

func TestProjectCreate_Vars(t *testing.T) {
	env := newTestEnv(t)
	varsFile := filepath.Join(env.dir, "vars.yaml")
	require.NoError(t, os.WriteFile(varsFile, []byte("project_name: Bar\nwith_docs: true\n"), 0o600))

	created := decodeJSON[map[string]any](t, env.mustRun(t,
		"project:create", "basic-app",
		"--vars-file", varsFile,
		"--var", "author=Sam",
		"--target", env.target,
	))

	assert.Equal(t, "Bar", created["name"], "expected the name to default to project_name")
	vars := created["variables"].(map[string]any)
	assert.Equal(t, "true", vars["with_docs"])
	assert.Equal(t, "Sam", vars["author"])
	_, err := os.Stat(filepath.Join(env.target, "Bar", "docs", "index.md"))
	require.NoError(t, err)
}

func TestProjectCreate_Errors(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run(t, "project:create", "basic-app", "--target", env.target)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "project_name")

	_, err = env.run(t, "project:create", "basic-app", "--var", "novalue", "--target", env.target)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected key=value")

	env.mustRun(t, "project:create", "basic-app", "--name", "Foo", "--target", env.target)
	_, err = env.run(t, "project:create", "basic-app", "--name", "Foo", "--target", env.target)
	require.Error(t, err, "expected the second creation at the same path to fail")

	projects := decodeJSON[[]map[string]any](t, env.mustRun(t, "project:list"))
	assert.Len(t, projects, 1)
}

func TestProjectCreate_DryRun(t *testing.T) {
	env := newTestEnv(t)

	plan := decodeJSON[map[string]any](t, env.mustRun(t,
		"project:create", "basic-app", "--name", "Foo", "--target", env.target, "--dry-run",
	))

	assert.Equal(t, filepath.Join(env.target, "Foo"), plan["root"])
	assert.NotEmpty(t, plan["actions"])
	_, err := os.Stat(filepath.Join(env.target, "Foo"))
	assert.True(t, os.IsNotExist(err), "expected dry run to write nothing")
	assert.Empty(t, decodeJSON[[]map[string]any](t, env.mustRun(t, "project:list")))
}

func TestProjectLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.mustRun(t, "project:create", "basic-app", "--name", "Foo", "--target", env.target)

	archived := decodeJSON[map[string]any](t, env.mustRun(t, "project:archive", "Foo"))
	assert.Equal(t, "archived", archived["status"])

	active := decodeJSON[map[string]any](t, env.mustRun(t, "project:unarchive", "Foo"))
	assert.Equal(t, "active", active["status"])

	tagged := decodeJSON[map[string]any](t, env.mustRun(t, "project:tag", "Foo", "go", "cli"))
	assert.Equal(t, []any{"cli", "go"}, tagged["tags"])

	untagged := decodeJSON[map[string]any](t, env.mustRun(t, "project:untag", "Foo", "cli"))
	assert.Equal(t, []any{"go"}, untagged["tags"])

	described := decodeJSON[map[string]any](t, env.mustRun(t, "project:describe", "Foo", "my tool"))
	assert.Equal(t, "my tool", described["description"])

	shown := decodeJSON[map[string]any](t, env.mustRun(t, "project:show", active["id"].(string)[:8]))
	assert.Equal(t, "Foo", shown["name"])

	_, err := env.run(t, "project:forget", "Foo")
	require.Error(t, err, "expected active projects to be protected")

	env.mustRun(t, "project:archive", "Foo")
	forgot := decodeJSON[map[string]any](t, env.mustRun(t, "project:forget", "Foo"))
	assert.Contains(t, forgot, "forgotten")
	assert.Empty(t, decodeJSON[[]map[string]any](t, env.mustRun(t, "project:list")))

	_, err = os.Stat(filepath.Join(env.target, "Foo", "README.md"))
	require.NoError(t, err, "expected forget to leave files alone")
}

func TestProjectReconcileAndRelocate(t *testing.T) {
	env := newTestEnv(t)
	env.mustRun(t, "project:create", "basic-app", "--name", "Foo", "--target", env.target)

	assert.Empty(t, decodeJSON[[]map[string]any](t, env.mustRun(t, "project:reconcile")))

	moved := filepath.Join(env.dir, "moved")
	require.NoError(t, os.Rename(filepath.Join(env.target, "Foo"), moved))

	changes := decodeJSON[[]map[string]any](t, env.mustRun(t, "project:reconcile"))
	require.Len(t, changes, 1)
	assert.Equal(t, "active", changes[0]["old_status"])
	assert.Equal(t, "missing", changes[0]["new_status"])

	relocated := decodeJSON[map[string]any](t, env.mustRun(t, "project:relocate", "Foo", moved))
	assert.Equal(t, moved, relocated["root_path"])
	assert.Equal(t, "active", relocated["status"])
}

func TestProjectDiff(t *testing.T) {
	env := newTestEnv(t)
	env.mustRun(t, "project:create", "basic-app", "--name", "Foo", "--target", env.target)
	root := filepath.Join(env.target, "Foo")

	clean := decodeJSON[map[string]any](t, env.mustRun(t, "project:diff", "Foo"))
	assert.Equal(t, true, clean["clean"])

	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte("# Foo\n\nchanged\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "extra.txt"), []byte("x"), 0o644))

	out := env.mustRun(t, "project:diff", "Foo", "--format", "table")
	assert.Contains(t, out, "modified")
	assert.Contains(t, out, "extra.txt")
	assert.Contains(t, out, "+changed")
}

func TestProjectTree(t *testing.T) {
	env := newTestEnv(t)
	env.mustRun(t, "project:create", "basic-app", "--name", "Foo", "--target", env.target, "--var", "with_docs=true")

	out := env.mustRun(t, "project:tree", "Foo", "--format", "table")
	assert.True(t, strings.HasPrefix(out, "Foo/\n"), "output: %s", out)
	assert.Contains(t, out, "docs/")
	assert.Contains(t, out, "README.md")

	shallow := env.mustRun(t, "project:tree", "Foo", "--format", "table", "--depth", "1")
	assert.NotContains(t, shallow, "index.md")

	file := filepath.Join(env.dir, "tree.cbor")
	env.mustRun(t, "project:tree", "Foo", "--format", "cbor", "--output", file)
	data, err := os.ReadFile(file)
	require.NoError(t, err)
	var tree progest.TreeNode
	require.NoError(t, cbor.Unmarshal(data, &tree))
	assert.Equal(t, "Foo", tree.Name)
	assert.True(t, tree.IsDir)
	assert.NotEmpty(t, tree.Children)
}

func TestConfigInit(t *testing.T) {
	dir := t.TempDir()
	env := testEnv{dir: dir, configPath: filepath.Join(dir, "nested", "config.yaml")}

	env.mustRun(t, "config:init")
	data, err := os.ReadFile(env.configPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Progest Configuration")

	_, err = env.run(t, "config:init")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	env.mustRun(t, "config:init", "--force")
}

func TestProjectCreate_HelpExplainsSharedTarget(t *testing.T) {
	assert.Contains(t, projectCreateCmd.Long, "A target can be the root of only one project")
}

func TestMalformedConfigValue(t *testing.T) {
	env := newTestEnv(t)
	data, err := os.ReadFile(env.configPath)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(env.configPath, append(data, []byte("  pending_timeout: soon\n")...), 0o600))

	_, err = env.run(t, "project:list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode config "+env.configPath)
	assert.Contains(t, err.Error(), "soon")

	_, err = env.run(t, "template:paths:add", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode config")

	require.NoError(t, os.WriteFile(env.configPath, data, 0o600))
	env.mustRun(t, "project:list")
}

func TestUnknownFormat(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run(t, "project:list", "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output format")
}

func TestParseVars(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "vars.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"a": "file", "b": false, "n": 3, "f": 1.5}`), 0o600))

	vars, err := parseVars(file, []string{"a=flag", "c=x=y", "d="})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"a": "flag",
		"b": "false",
		"n": "3",
		"f": "1.5",
		"c": "x=y",
		"d": "",
	}, vars)

	_, err = parseVars("", []string{"=value"})
	require.Error(t, err)

	require.NoError(t, os.WriteFile(file, []byte("a: [1, 2]\n"), 0o600))
	_, err = parseVars(file, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be a scalar")
}
