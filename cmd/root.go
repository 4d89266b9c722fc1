package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/NaruseNia/progest/internal/config"
	"github.com/NaruseNia/progest/internal/flags"
	"github.com/NaruseNia/progest/internal/log"
	"github.com/NaruseNia/progest/internal/presentation"
	"github.com/NaruseNia/progest/internal/progest"
)

func init() {
	// Force lipgloss/termenv to query terminal background color BEFORE
	// any Bubble Tea program starts. This prevents the terminal's OSC 11
	// response from racing with Bubble Tea's input loop and appearing as
	// garbage text in input fields.
	//
	// See: https://github.com/charmbracelet/bubbletea/issues/1036
	_ = lipgloss.HasDarkBackground()
}

// localConfigPath is checked before the user config.
const localConfigPath = ".progest/config.yaml"

var (
	version      = "dev"
	cfgFile      string
	outputFormat string
	debug        bool
	cfg          config.Config
	configErr    error // decode failure of the loaded config
	closeLog     func()
)

var rootCmd = &cobra.Command{
	Use:   "progest",
	Short: "Create and track projects from folder templates",
	Long: `progest creates projects from folder templates and keeps a registry of
every project it created.

Templates are directories holding a template.yaml manifest next to the tree
to copy. Placeholders like {{project_name}} in paths and file contents are
replaced with variable values. Output is JSON unless --format table is given.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return startLogging()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if closeLog != nil {
			closeLog()
			closeLog = nil
		}
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: ~/.config/progest/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", "",
		"output format: json, table or cbor (default: output.format from config)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false,
		"write debug logs to log.file (also enabled by PROGEST_DEBUG)")
}

func initConfig() {
	viper.Reset()

	defaults := config.Defaults()
	viper.SetDefault("templates.paths", defaults.Templates.Paths)
	viper.SetDefault("templates.builtin", defaults.Templates.Builtin)
	viper.SetDefault("templates.cache_ttl", defaults.Templates.CacheTTL)
	viper.SetDefault("registry.path", defaults.Registry.Path)
	viper.SetDefault("registry.pending_timeout", defaults.Registry.PendingTimeout)
	viper.SetDefault("output.format", defaults.Output.Format)
	viper.SetDefault("output.markdown_style", defaults.Output.MarkdownStyle)
	viper.SetDefault("log.file", defaults.Log.File)
	viper.SetDefault("log.level", defaults.Log.Level)
	viper.SetDefault("tracing.enabled", defaults.Tracing.Enabled)
	viper.SetDefault("tracing.exporter", defaults.Tracing.Exporter)
	viper.SetDefault("tracing.otlp_endpoint", defaults.Tracing.OTLPEndpoint)
	viper.SetDefault("tracing.sample_rate", defaults.Tracing.SampleRate)
	for name, enabled := range flags.Defaults() {
		viper.SetDefault("flags."+name, enabled)
	}

	viper.SetEnvPrefix("progest")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .progest/config.yaml (current directory)
		// 2. ~/.config/progest/config.yaml (user config)
		if _, err := os.Stat(localConfigPath); err == nil {
			viper.SetConfigFile(localConfigPath)
		} else if path := config.DefaultConfigPath(); path != "" {
			viper.SetConfigFile(path)
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		// A missing file means defaults; anything else is reported once a
		// command runs.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "warning: failed to read config %s: %v\n", viper.ConfigFileUsed(), err)
		}
	}

	cfg = config.Config{}
	configErr = nil
	if err := viper.Unmarshal(&cfg); err != nil {
		configErr = fmt.Errorf("failed to decode config %s: %w", viper.ConfigFileUsed(), err)
		fmt.Fprintf(os.Stderr, "warning: %v\n", configErr)
	}
}

// configFilePath returns the file config edits are written to.
func configFilePath() string {
	if path := viper.ConfigFileUsed(); path != "" {
		return path
	}
	return config.DefaultConfigPath()
}

func startLogging() error {
	if !debug && os.Getenv("PROGEST_DEBUG") == "" {
		return nil
	}
	path, err := config.ExpandHome(cfg.Log.File)
	if err != nil {
		return err
	}
	if path == "" {
		path = config.DefaultLogPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	cleanup, err := log.Init(path)
	if err != nil {
		return fmt.Errorf("failed to open debug log: %w", err)
	}
	log.SetMinLevel(log.ParseLevel(cfg.Log.Level))
	closeLog = cleanup
	log.Info(log.CatCLI, "Starting", "version", version, "config", viper.ConfigFileUsed())
	return nil
}

// openLibrary builds the library from the loaded config. Callers close it.
func openLibrary(cmd *cobra.Command) (*progest.Library, error) {
	if configErr != nil {
		return nil, configErr
	}
	lib, err := progest.New(cmd.Context(), cfg)
	if err != nil {
		return nil, err
	}
	log.Debug(log.CatCLI, "Opened library", "command", cmd.Name(), "registry", lib.Config().Registry.Path)
	return lib, nil
}

// newFormatter writes to the command's output in the selected format.
func newFormatter(cmd *cobra.Command) (*presentation.Formatter, error) {
	return newFormatterTo(cmd.OutOrStdout())
}

func newFormatterTo(w io.Writer) (*presentation.Formatter, error) {
	format := outputFormat
	if format == "" {
		format = cfg.Output.Format
	}
	switch format {
	case "":
		format = presentation.FormatJSON
	case presentation.FormatJSON, presentation.FormatTable, presentation.FormatCBOR:
	default:
		return nil, fmt.Errorf("unknown output format %q (want json, table or cbor)", format)
	}
	style := cfg.Output.MarkdownStyle
	if style == "" {
		style = "dark"
	}
	return presentation.NewFormatter(w,
		presentation.WithFormat(format),
		presentation.WithMarkdownStyle(style),
	), nil
}

// Execute runs the root command and prints failures as "Error: <msg>".
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		log.ErrorErr(log.CatCLI, "Command failed", err)
		fmt.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
	}
	return err
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
