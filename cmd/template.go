package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/NaruseNia/progest/internal/config"
	"github.com/NaruseNia/progest/internal/log"
	"github.com/NaruseNia/progest/internal/presentation"
)

var templateListCmd = &cobra.Command{
	Use:   "template:list",
	Short: "List the templates found on the search paths",
	Long: `List every template found on the configured search paths, followed by the
built-in templates. When two templates share a name the first one found wins
and the others are reported as warnings.

Examples:
  progest template:list
  progest template:list --format table
  progest template:list | jq '.templates[].name'`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		formatter, err := newFormatter(cmd)
		if err != nil {
			return err
		}
		lib, err := openLibrary(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = lib.Close() }()

		summaries, warnings, err := lib.ListTemplates(cmd.Context())
		if err != nil {
			return err
		}
		return formatter.FormatTemplates(presentation.FromTemplateList(summaries, warnings))
	},
}

var templateShowCmd = &cobra.Command{
	Use:   "template:show <name|path>",
	Short: "Show a template's manifest and files",
	Long: `Show a template's variables, rules and files. The argument is a template
name or a path to a template directory. With --format table the template is
rendered as markdown.

Examples:
  progest template:show basic-app
  progest template:show ./my-template --format table`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		formatter, err := newFormatter(cmd)
		if err != nil {
			return err
		}
		lib, err := openLibrary(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = lib.Close() }()

		tmpl, err := lib.ShowTemplate(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return formatter.FormatTemplate(presentation.FromTemplate(tmpl))
	},
}

var templatePathsAddCmd = &cobra.Command{
	Use:   "template:paths:add <dir>",
	Short: "Add a directory to the template search paths",
	Long: `Append a directory to templates.paths in the config file. Comments and
formatting elsewhere in the file are preserved.

Examples:
  progest template:paths:add ~/work/templates`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		formatter, err := newFormatter(cmd)
		if err != nil {
			return err
		}
		dir, err := config.ExpandHome(args[0])
		if err != nil {
			return err
		}
		dir, err = filepath.Abs(dir)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", args[0], err)
		}
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("failed to add template path: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("failed to add template path: %s is not a directory", dir)
		}

		if configErr != nil {
			return configErr
		}
		path := configFilePath()
		added, err := config.AddTemplatePath(path, cfg.Templates.Paths, dir)
		if err != nil {
			return err
		}
		log.Info(log.CatConfig, "Template path", "path", dir, "added", added, "config", path)

		message := fmt.Sprintf("Added %s to %s", dir, path)
		if !added {
			message = fmt.Sprintf("%s is already a template path", dir)
		}
		return formatter.FormatMessage(message, map[string]any{
			"path":   dir,
			"config": path,
			"added":  added,
		})
	},
}

func init() {
	rootCmd.AddCommand(templateListCmd)
	rootCmd.AddCommand(templateShowCmd)
	rootCmd.AddCommand(templatePathsAddCmd)
}
