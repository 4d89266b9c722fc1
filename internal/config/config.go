// Package config provides configuration types and defaults for progest.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/NaruseNia/progest/internal/log"
)

// Config holds all configuration options for progest.
type Config struct {
	Templates TemplatesConfig `mapstructure:"templates"`
	Registry  RegistryConfig  `mapstructure:"registry"`
	Output    OutputConfig    `mapstructure:"output"`
	Log       LogConfig       `mapstructure:"log"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Flags     map[string]bool `mapstructure:"flags"`
}

// TemplatesConfig controls where templates are discovered.
type TemplatesConfig struct {
	// Paths are searched in order; each immediate child directory holding a
	// template.yaml is a template. A leading "~" expands to the home directory.
	Paths []string `mapstructure:"paths"`

	// Builtin enables the templates embedded in the binary. They are
	// discovered after every search path.
	Builtin bool `mapstructure:"builtin"`

	// CacheTTL bounds how long a loaded template stays cached.
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// RegistryConfig controls the project registry store.
type RegistryConfig struct {
	// Path is the SQLite database file.
	// Default: ~/.progest/registry.db
	Path string `mapstructure:"path"`

	// PendingTimeout is how old a pending record must be before
	// reconciliation treats the creation as abandoned.
	PendingTimeout time.Duration `mapstructure:"pending_timeout"`
}

// OutputConfig controls CLI rendering.
type OutputConfig struct {
	Format        string `mapstructure:"format"`         // "json" (default) or "table"
	MarkdownStyle string `mapstructure:"markdown_style"` // "dark" (default), "light" or "notty"
}

// LogConfig controls the debug log.
type LogConfig struct {
	// File receives log lines when debug logging is on.
	// Default: ~/.progest/debug.log
	File string `mapstructure:"file"`

	// Level is the minimum level written: debug, info, warn or error.
	Level string `mapstructure:"level"`
}

// TracingConfig holds distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether tracing is active.
	// Default: false
	Enabled bool `mapstructure:"enabled"`

	// Exporter selects the trace export backend.
	// Options: "none", "file", "stdout", "otlp"
	// Default: "file"
	Exporter string `mapstructure:"exporter"`

	// FilePath is the output file for "file" exporter.
	// Default: ~/.config/progest/traces/traces.jsonl
	FilePath string `mapstructure:"file_path"`

	// OTLPEndpoint is the collector endpoint for "otlp" exporter.
	// Default: "localhost:4317"
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`

	// SampleRate controls trace sampling (0.0 to 1.0).
	// Default: 1.0
	SampleRate float64 `mapstructure:"sample_rate"`
}

// DefaultPendingTimeout is the age after which a pending record is abandoned.
const DefaultPendingTimeout = time.Hour

// DefaultCacheTTL is how long loaded templates stay cached.
const DefaultCacheTTL = 5 * time.Minute

// DefaultConfigPath returns ~/.config/progest/config.yaml, or an empty
// string if the home directory is unavailable.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "progest", "config.yaml")
}

// DefaultTemplatesDir returns ~/.config/progest/templates.
func DefaultTemplatesDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "progest", "templates")
}

// DefaultRegistryPath returns ~/.progest/registry.db.
func DefaultRegistryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".progest", "registry.db")
}

// DefaultLogPath returns ~/.progest/debug.log.
func DefaultLogPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".progest", "debug.log")
}

// DefaultTracesFilePath returns ~/.config/progest/traces/traces.jsonl.
func DefaultTracesFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "progest", "traces", "traces.jsonl")
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		Templates: TemplatesConfig{
			Paths:    []string{DefaultTemplatesDir()},
			Builtin:  true,
			CacheTTL: DefaultCacheTTL,
		},
		Registry: RegistryConfig{
			Path:           DefaultRegistryPath(),
			PendingTimeout: DefaultPendingTimeout,
		},
		Output: OutputConfig{
			Format:        "json",
			MarkdownStyle: "dark",
		},
		Log: LogConfig{
			File:  DefaultLogPath(),
			Level: "debug",
		},
		Tracing: TracingConfig{
			Enabled:      false,
			Exporter:     "file",
			FilePath:     "", // Derived from config dir at runtime
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1.0,
		},
		Flags: map[string]bool{},
	}
}

// Validate checks the whole configuration and returns the first problem.
func Validate(cfg Config) error {
	if err := ValidateTemplates(cfg.Templates); err != nil {
		return err
	}
	if err := ValidateRegistry(cfg.Registry); err != nil {
		return err
	}
	if err := ValidateOutput(cfg.Output); err != nil {
		return err
	}
	if err := ValidateLog(cfg.Log); err != nil {
		return err
	}
	return ValidateTracing(cfg.Tracing)
}

// ValidateTemplates checks template discovery configuration for errors.
func ValidateTemplates(t TemplatesConfig) error {
	for i, p := range t.Paths {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("templates.paths[%d] must not be empty", i)
		}
	}
	if t.CacheTTL < 0 {
		return fmt.Errorf("templates.cache_ttl must not be negative, got %v", t.CacheTTL)
	}
	return nil
}

// ValidateRegistry checks registry configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func ValidateRegistry(r RegistryConfig) error {
	if r.PendingTimeout < 0 {
		return fmt.Errorf("registry.pending_timeout must not be negative, got %v", r.PendingTimeout)
	}
	if r.Path != "" && r.Path != ":memory:" {
		expanded, err := ExpandHome(r.Path)
		if err != nil {
			return fmt.Errorf("registry.path: %w", err)
		}
		if !filepath.IsAbs(expanded) {
			return fmt.Errorf("registry.path must be an absolute path, got %q", r.Path)
		}
	}
	return nil
}

// ValidateOutput checks output configuration for errors.
func ValidateOutput(o OutputConfig) error {
	switch o.Format {
	case "", "json", "table":
	default:
		return fmt.Errorf("output.format must be \"json\" or \"table\", got %q", o.Format)
	}
	switch o.MarkdownStyle {
	case "", "dark", "light", "notty":
	default:
		return fmt.Errorf("output.markdown_style must be \"dark\", \"light\", or \"notty\", got %q", o.MarkdownStyle)
	}
	return nil
}

// ValidateLog checks log configuration for errors.
func ValidateLog(l LogConfig) error {
	switch strings.ToLower(l.Level) {
	case "", "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("log.level must be \"debug\", \"info\", \"warn\", or \"error\", got %q", l.Level)
	}
}

// ValidateTracing checks tracing configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func ValidateTracing(tracing TracingConfig) error {
	if tracing.SampleRate < 0.0 || tracing.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", tracing.SampleRate)
	}

	if tracing.Exporter != "" {
		switch tracing.Exporter {
		case "none", "file", "stdout", "otlp":
			// Valid
		default:
			return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", tracing.Exporter)
		}
	}

	// Only validate path requirements when tracing is enabled
	if tracing.Enabled {
		if tracing.Exporter == "otlp" && tracing.OTLPEndpoint == "" {
			return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
		}
	}

	return nil
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") && !strings.HasPrefix(path, `~\`) {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, path[1:]), nil
}

// Resolved returns a copy of c with defaults filled in for empty values and
// every path expanded.
func (c Config) Resolved() (Config, error) {
	out := c
	defaults := Defaults()

	out.Templates.Paths = nil
	for _, p := range c.Templates.Paths {
		expanded, err := ExpandHome(p)
		if err != nil {
			return Config{}, err
		}
		out.Templates.Paths = append(out.Templates.Paths, expanded)
	}
	if out.Templates.CacheTTL == 0 {
		out.Templates.CacheTTL = defaults.Templates.CacheTTL
	}

	if out.Registry.Path == "" {
		out.Registry.Path = defaults.Registry.Path
	}
	expanded, err := ExpandHome(out.Registry.Path)
	if err != nil {
		return Config{}, err
	}
	out.Registry.Path = expanded
	if out.Registry.PendingTimeout == 0 {
		out.Registry.PendingTimeout = defaults.Registry.PendingTimeout
	}

	if out.Output.Format == "" {
		out.Output.Format = defaults.Output.Format
	}
	if out.Output.MarkdownStyle == "" {
		out.Output.MarkdownStyle = defaults.Output.MarkdownStyle
	}

	if out.Log.File == "" {
		out.Log.File = defaults.Log.File
	}
	if out.Log.File, err = ExpandHome(out.Log.File); err != nil {
		return Config{}, err
	}

	if out.Tracing.Exporter == "" {
		out.Tracing.Exporter = defaults.Tracing.Exporter
	}
	if out.Tracing.FilePath == "" {
		out.Tracing.FilePath = DefaultTracesFilePath()
	}
	if out.Tracing.FilePath, err = ExpandHome(out.Tracing.FilePath); err != nil {
		return Config{}, err
	}
	return out, nil
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# Progest Configuration

# Template discovery
templates:
  # Directories searched for templates, in order. Each immediate child
  # directory that holds a template.yaml is a template. When two templates
  # share a name, the first one found wins.
  paths:
    - ~/.config/progest/templates

  # Include the templates shipped with progest (searched last)
  builtin: true

  # How long a loaded template stays cached in long-running front-ends
  # cache_ttl: 5m

# Project registry
registry:
  # SQLite database holding every project progest created
  # path: ~/.progest/registry.db

  # A project stuck in "pending" for longer than this is marked missing
  # by project:reconcile
  pending_timeout: 1h

# Command output
output:
  format: json            # json (default) or table
  # markdown_style: dark  # Template README rendering: "dark" (default), "light" or "notty"

# Debug logging (enable with --debug or PROGEST_DEBUG=1)
# log:
#   file: ~/.progest/debug.log
#   level: debug          # debug, info, warn, error

# Distributed tracing configuration
# tracing:
#   enabled: false                 # Enable/disable tracing (default: false)
#   exporter: file                 # Export backend: none, file, stdout, otlp (default: file)
#   file_path: ~/.config/progest/traces/traces.jsonl  # Output file for file exporter
#   otlp_endpoint: localhost:4317  # OTLP collector endpoint (for otlp exporter)
#   sample_rate: 1.0               # Trace sampling rate 0.0-1.0 (default: 1.0)

# Feature flags
# flags:
#   provisional-records: true  # Reserve the project path with a pending record while creating
#   template-watch: false      # Reload templates when search paths change (desktop app)
`
}

// WriteDefaultConfig creates a config file at the given path with default settings and comments.
// Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
