package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/NaruseNia/progest/internal/presentation"
	"github.com/NaruseNia/progest/internal/progest"
	"github.com/NaruseNia/progest/internal/project/domain"
)

var (
	listStatus string
	listTag    string
	treeDepth  int
	treeOutput string
)

// projectAction runs fn against a library opened for the command and prints
// the record it returns.
func projectAction(fn func(ctx context.Context, lib *progest.Library, args []string) (*domain.Project, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		formatter, err := newFormatter(cmd)
		if err != nil {
			return err
		}
		lib, err := openLibrary(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = lib.Close() }()

		p, err := fn(cmd.Context(), lib, args)
		if err != nil {
			return err
		}
		return formatter.FormatProject(presentation.FromProject(p))
	}
}

var projectListCmd = &cobra.Command{
	Use:   "project:list",
	Short: "List registered projects",
	Long: `List every project in the registry, oldest first.

Examples:
  progest project:list
  progest project:list --status active --tag work --format table
  progest project:list | jq '.[].root_path'`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		formatter, err := newFormatter(cmd)
		if err != nil {
			return err
		}
		var filter domain.ListFilter
		if listStatus != "" {
			status, err := domain.ParseStatus(listStatus)
			if err != nil {
				return err
			}
			filter.Status = status
		}
		filter.Tag = listTag

		lib, err := openLibrary(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = lib.Close() }()

		projects, err := lib.ListProjects(cmd.Context(), filter)
		if err != nil {
			return err
		}
		return formatter.FormatProjects(presentation.FromProjects(projects))
	},
}

var projectShowCmd = &cobra.Command{
	Use:   "project:show <id|name>",
	Short: "Show a project record",
	Long: `Show a project record. The argument is an id, a unique id prefix or a
unique project name.`,
	Args: cobra.ExactArgs(1),
	RunE: projectAction(func(ctx context.Context, lib *progest.Library, args []string) (*domain.Project, error) {
		return lib.GetProject(ctx, args[0])
	}),
}

var projectArchiveCmd = &cobra.Command{
	Use:   "project:archive <id|name>",
	Short: "Mark a project as archived",
	Args:  cobra.ExactArgs(1),
	RunE: projectAction(func(ctx context.Context, lib *progest.Library, args []string) (*domain.Project, error) {
		return lib.ArchiveProject(ctx, args[0])
	}),
}

var projectUnarchiveCmd = &cobra.Command{
	Use:   "project:unarchive <id|name>",
	Short: "Mark an archived or missing project as active again",
	Args:  cobra.ExactArgs(1),
	RunE: projectAction(func(ctx context.Context, lib *progest.Library, args []string) (*domain.Project, error) {
		return lib.UnarchiveProject(ctx, args[0])
	}),
}

var projectRelocateCmd = &cobra.Command{
	Use:   "project:relocate <id|name> <new-root>",
	Short: "Point a project at the directory it was moved to",
	Long: `Point a project at the directory it was moved to and mark it active. The
new root must exist and must not belong to another project.

Examples:
  progest project:relocate Foo ~/src/archive/Foo`,
	Args: cobra.ExactArgs(2),
	RunE: projectAction(func(ctx context.Context, lib *progest.Library, args []string) (*domain.Project, error) {
		return lib.RelocateProject(ctx, args[0], args[1])
	}),
}

var projectForgetCmd = &cobra.Command{
	Use:   "project:forget <id|name>",
	Short: "Remove a missing or archived project from the registry",
	Long: `Remove a missing or archived project from the registry. Files on disk are
never touched. Active projects must be archived first.`,
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

		p, err := lib.ForgetProject(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return formatter.FormatMessage(fmt.Sprintf("Forgot %s (%s)", p.Name(), p.RootPath()), map[string]any{
			"forgotten": presentation.FromProject(p),
		})
	},
}

var projectTagCmd = &cobra.Command{
	Use:   "project:tag <id|name> <tag>...",
	Short: "Add tags to a project",
	Args:  cobra.MinimumNArgs(2),
	RunE: projectAction(func(ctx context.Context, lib *progest.Library, args []string) (*domain.Project, error) {
		return lib.TagProject(ctx, args[0], args[1:]...)
	}),
}

var projectUntagCmd = &cobra.Command{
	Use:   "project:untag <id|name> <tag>...",
	Short: "Remove tags from a project",
	Args:  cobra.MinimumNArgs(2),
	RunE: projectAction(func(ctx context.Context, lib *progest.Library, args []string) (*domain.Project, error) {
		return lib.UntagProject(ctx, args[0], args[1:]...)
	}),
}

var projectDescribeCmd = &cobra.Command{
	Use:   "project:describe <id|name> <description>",
	Short: "Replace a project's description",
	Args:  cobra.ExactArgs(2),
	RunE: projectAction(func(ctx context.Context, lib *progest.Library, args []string) (*domain.Project, error) {
		return lib.DescribeProject(ctx, args[0], args[1])
	}),
}

var projectReconcileCmd = &cobra.Command{
	Use:   "project:reconcile",
	Short: "Mark projects whose directories are gone as missing",
	Long: `Compare the registry with the filesystem. Active projects whose root no
longer exists, and creations left pending past registry.pending_timeout, are
marked missing. Records are never deleted.`,
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

		changes, err := lib.ReconcileProjects(cmd.Context())
		if err != nil {
			return err
		}
		return formatter.FormatChanges(presentation.FromChanges(changes))
	},
}

var projectDiffCmd = &cobra.Command{
	Use:   "project:diff <id|name>",
	Short: "Compare a project with a fresh rendering of its template",
	Long: `Render the template a project was created from with the variables
recorded at creation, and report files that are missing, modified or added
in the project. Modified files come with a unified diff.

Examples:
  progest project:diff Foo --format table`,
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

		drift, err := lib.DiffProject(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return formatter.FormatDrift(presentation.FromDrift(drift))
	},
}

var projectTreeCmd = &cobra.Command{
	Use:   "project:tree <id|name>",
	Short: "Print a project's directory structure",
	Long: `Scan a project's directory structure. JSON and CBOR output carry the
size and mode of every entry; table output draws the tree.

Examples:
  progest project:tree Foo --format table --depth 2
  progest project:tree Foo --format cbor --output foo.cbor`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if treeOutput != "" {
			f, err := os.Create(treeOutput) //nolint:gosec // G304: output path is supplied by the user
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			defer func() { _ = f.Close() }()
			out = f
		}
		formatter, err := newFormatterTo(out)
		if err != nil {
			return err
		}
		lib, err := openLibrary(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = lib.Close() }()

		tree, err := lib.ProjectTree(cmd.Context(), args[0], treeDepth)
		if err != nil {
			return err
		}
		return formatter.FormatTree(tree)
	},
}

func init() {
	projectListCmd.Flags().StringVar(&listStatus, "status", "", "Filter by status (pending, active, archived, missing)")
	projectListCmd.Flags().StringVar(&listTag, "tag", "", "Filter by tag")
	projectTreeCmd.Flags().IntVar(&treeDepth, "depth", 0, "Maximum depth to scan (0 for unlimited)")
	projectTreeCmd.Flags().StringVarP(&treeOutput, "output", "o", "", "Write the tree to a file instead of stdout")

	rootCmd.AddCommand(projectListCmd)
	rootCmd.AddCommand(projectShowCmd)
	rootCmd.AddCommand(projectArchiveCmd)
	rootCmd.AddCommand(projectUnarchiveCmd)
	rootCmd.AddCommand(projectRelocateCmd)
	rootCmd.AddCommand(projectForgetCmd)
	rootCmd.AddCommand(projectTagCmd)
	rootCmd.AddCommand(projectUntagCmd)
	rootCmd.AddCommand(projectDescribeCmd)
	rootCmd.AddCommand(projectReconcileCmd)
	rootCmd.AddCommand(projectDiffCmd)
	rootCmd.AddCommand(projectTreeCmd)
}
