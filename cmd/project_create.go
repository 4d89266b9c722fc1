package cmd

import (
	"maps"

	"github.com/spf13/cobra"

	"github.com/NaruseNia/progest/internal/log"
	"github.com/NaruseNia/progest/internal/presentation"
	"github.com/NaruseNia/progest/internal/progest"
	"github.com/NaruseNia/progest/internal/prompt"
)

var (
	createName        string
	createTarget      string
	createDescription string
	createTags        []string
	createVars        []string
	createVarsFile    string
	createInteractive bool
	createDryRun      bool
)

var projectCreateCmd = &cobra.Command{
	Use:   "project:create <template>",
	Short: "Create a project from a template",
	Long: `Create a project from a template and record it in the registry.

Variable values come from --vars-file and --var (which wins). Variables with
a default may be omitted. With --interactive, required variables that are
still missing are asked for. The variable project_name is filled from --name
when not given explicitly.

The project is created inside --target (default: the current directory). When
the template has a single top-level directory, that directory is the project
root; otherwise the target is. A target can be the root of only one project,
so a second such template cannot be created into the same target even when
no files collide; give each one its own --target.

Examples:
  progest project:create basic-app --var project_name=Foo --target ~/src
  progest project:create web-app --name Foo --var with_tests=false --tag work
  progest project:create basic-app --interactive
  progest project:create basic-app --name Foo --dry-run --format table`,
	Args: cobra.ExactArgs(1),
	RunE: runProjectCreate,
}

func runProjectCreate(cmd *cobra.Command, args []string) error {
	formatter, err := newFormatter(cmd)
	if err != nil {
		return err
	}
	supplied, err := parseVars(createVarsFile, createVars)
	if err != nil {
		return err
	}

	lib, err := openLibrary(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = lib.Close() }()

	req := progest.CreateRequest{
		Template:    args[0],
		Name:        createName,
		Target:      createTarget,
		Description: createDescription,
		Tags:        createTags,
		Variables:   supplied,
	}

	if createInteractive {
		_, missing, err := lib.MissingVariables(cmd.Context(), req)
		if err != nil {
			return err
		}
		if len(missing) > 0 {
			log.Debug(log.CatCLI, "Prompting for variables", "count", len(missing))
			answers, err := prompt.Run(cmd.Context(), missing, cmd.InOrStdin(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			maps.Copy(req.Variables, answers)
		}
	}

	if createDryRun {
		plan, err := lib.PlanProject(cmd.Context(), req)
		if err != nil {
			return err
		}
		return formatter.FormatPlan(presentation.FromPlan(plan))
	}

	project, err := lib.CreateProject(cmd.Context(), req)
	if err != nil {
		return err
	}
	return formatter.FormatProject(presentation.FromProject(project))
}

func init() {
	projectCreateCmd.Flags().StringVarP(&createName, "name", "n", "", "Project name (default: project_name or the root directory name)")
	projectCreateCmd.Flags().StringVarP(&createTarget, "target", "t", "", "Directory to create the project in (default: current directory)")
	projectCreateCmd.Flags().StringVarP(&createDescription, "description", "d", "", "Project description")
	projectCreateCmd.Flags().StringArrayVar(&createTags, "tag", nil, "Tag the project (can be repeated)")
	projectCreateCmd.Flags().StringArrayVar(&createVars, "var", nil, "Variable value as key=value (can be repeated)")
	projectCreateCmd.Flags().StringVar(&createVarsFile, "vars-file", "", "YAML or JSON file of variable values")
	projectCreateCmd.Flags().BoolVarP(&createInteractive, "interactive", "i", false, "Prompt for missing required variables")
	projectCreateCmd.Flags().BoolVar(&createDryRun, "dry-run", false, "Show what would be created without writing anything")
	rootCmd.AddCommand(projectCreateCmd)
}
