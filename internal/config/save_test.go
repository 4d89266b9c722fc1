package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadPaths(t *testing.T, configPath string) []string {
	t.Helper()
	v := viper.New()
	v.SetConfigFile(configPath)
	require.NoError(t, v.ReadInConfig())
	return v.GetStringSlice("templates.paths")
}

func TestSaveTemplatePaths_CreatesNewFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	err := SaveTemplatePaths(configPath, []string{"~/templates", "/srv/templates"})
	require.NoError(t, err)

	data, err := os.ReadFile(configPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "templates:")
	assert.Contains(t, string(data), "- ~/templates")
	assert.Equal(t, []string{"~/templates", "/srv/templates"}, loadPaths(t, configPath))
}

func TestSaveTemplatePaths_PreservesOtherConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	initial := `# Progest Configuration

# Template discovery
templates:
  # search order matters
  paths:
    - ~/old
  builtin: false

registry:
  pending_timeout: 2h # abandoned after two hours
`
	require.NoError(t, os.WriteFile(configPath, []byte(initial), 0o644))

	require.NoError(t, SaveTemplatePaths(configPath, []string{"~/old", "~/new"}))

	data, err := os.ReadFile(configPath)
	require.NoError(t, err)
	content := string(data)

	assert.Contains(t, content, "# Progest Configuration")
	assert.Contains(t, content, "builtin: false")
	assert.Contains(t, content, "pending_timeout: 2h")
	assert.Contains(t, content, "# abandoned after two hours")
	assert.Equal(t, []string{"~/old", "~/new"}, loadPaths(t, configPath))
}

func TestSaveTemplatePaths_AddsMissingSection(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("output:\n  format: table\n"), 0o644))

	require.NoError(t, SaveTemplatePaths(configPath, []string{"/t"}))

	v := viper.New()
	v.SetConfigFile(configPath)
	require.NoError(t, v.ReadInConfig())
	assert.Equal(t, "table", v.GetString("output.format"))
	assert.Equal(t, []string{"/t"}, v.GetStringSlice("templates.paths"))
}

func TestSaveTemplatePaths_ReplacesNullSection(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("templates:\n"), 0o644))

	require.NoError(t, SaveTemplatePaths(configPath, []string{"/t"}))
	assert.Equal(t, []string{"/t"}, loadPaths(t, configPath))
}

func TestSaveTemplatePaths_RejectsNonMapping(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("- a\n- b\n"), 0o644))

	err := SaveTemplatePaths(configPath, []string{"/t"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "not a mapping")
}

func TestSaveTemplatePaths_AtomicWrite(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "config.yaml")

	require.NoError(t, SaveTemplatePaths(configPath, []string{"/first"}))
	require.NoError(t, SaveTemplatePaths(configPath, []string{"/second"}))

	entries, err := os.ReadDir(tempDir)
	require.NoError(t, err)
	for _, entry := range entries {
		assert.False(t, strings.Contains(entry.Name(), ".tmp."), "temp file left behind: %s", entry.Name())
	}
	assert.Equal(t, []string{"/second"}, loadPaths(t, configPath))
}

func TestSaveTemplatePaths_CreatesDirectory(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "subdir", "nested", "config.yaml")

	require.NoError(t, SaveTemplatePaths(configPath, []string{"/t"}))

	_, err := os.Stat(configPath)
	require.NoError(t, err)
}

func TestAddTemplatePath(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	existing := []string{"/a"}

	changed, err := AddTemplatePath(configPath, existing, "/b")
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, []string{"/a", "/b"}, loadPaths(t, configPath))
	require.Equal(t, []string{"/a"}, existing, "input slice is not modified")

	changed, err = AddTemplatePath(configPath, []string{"/a", "/b"}, "/a")
	require.NoError(t, err)
	require.False(t, changed)
}

func TestRemoveTemplatePath(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, SaveTemplatePaths(configPath, []string{"/a", "/b", "/c"}))

	changed, err := RemoveTemplatePath(configPath, []string{"/a", "/b", "/c"}, "/b")
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, []string{"/a", "/c"}, loadPaths(t, configPath))

	changed, err = RemoveTemplatePath(configPath, []string{"/a", "/c"}, "/zzz")
	require.NoError(t, err)
	require.False(t, changed)
}
