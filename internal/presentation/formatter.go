package presentation

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/NaruseNia/progest/internal/progest"
)

// Output formats.
const (
	FormatJSON  = "json"
	FormatTable = "table"
	FormatCBOR  = "cbor"
)

// Formatter handles output formatting
type Formatter struct {
	writer        io.Writer
	format        string
	markdownStyle string
	width         int
	renderer      *lipgloss.Renderer
}

// FormatterOption configures a Formatter.
type FormatterOption func(*Formatter)

// WithFormat selects json, table or cbor output.
func WithFormat(format string) FormatterOption {
	return func(f *Formatter) {
		f.format = format
	}
}

// WithMarkdownStyle selects the glamour style used for rendered markdown.
func WithMarkdownStyle(style string) FormatterOption {
	return func(f *Formatter) {
		f.markdownStyle = style
	}
}

// WithWidth sets the wrap width for markdown and the table cell limit.
func WithWidth(width int) FormatterOption {
	return func(f *Formatter) {
		f.width = width
	}
}

// NewFormatter creates a new formatter writing JSON unless configured otherwise
func NewFormatter(writer io.Writer, opts ...FormatterOption) *Formatter {
	f := &Formatter{
		writer:        writer,
		format:        FormatJSON,
		markdownStyle: "dark",
		width:         100,
	}
	for _, opt := range opts {
		opt(f)
	}
	f.renderer = lipgloss.NewRenderer(writer)
	return f
}

// Format returns the selected output format.
func (f *Formatter) Format() string {
	return f.format
}

// FormatTemplates formats a template listing
func (f *Formatter) FormatTemplates(list TemplateListDTO) error {
	switch f.format {
	case FormatTable:
		rows := make([][]string, len(list.Templates))
		for i, t := range list.Templates {
			rows[i] = []string{t.Name, t.Version, t.Description, strings.Join(t.Variables, ", "), t.Source}
		}
		if err := f.table([]string{"NAME", "VERSION", "DESCRIPTION", "VARIABLES", "SOURCE"}, rows); err != nil {
			return err
		}
		for _, w := range list.Warnings {
			if _, err := fmt.Fprintf(f.writer, "warning: %s: %s\n", w.Source, w.Message); err != nil {
				return err
			}
		}
		return nil
	default:
		return f.encode(list)
	}
}

// FormatTemplate formats one template. The table format renders it as
// markdown.
func (f *Formatter) FormatTemplate(detail TemplateDetailDTO) error {
	if f.format != FormatTable {
		return f.encode(detail)
	}
	out, err := f.markdown(TemplateMarkdown(detail))
	if err != nil {
		return err
	}
	_, err = io.WriteString(f.writer, out)
	return err
}

// FormatProjects formats a list of project records
func (f *Formatter) FormatProjects(projects []ProjectDTO) error {
	if f.format != FormatTable {
		return f.encode(projects)
	}
	rows := make([][]string, len(projects))
	for i, p := range projects {
		rows[i] = []string{shortID(p.ID), p.Name, p.Status, p.TemplateName, strings.Join(p.Tags, ","), p.RootPath}
	}
	return f.table([]string{"ID", "NAME", "STATUS", "TEMPLATE", "TAGS", "ROOT"}, rows)
}

// FormatProject formats a single project record
func (f *Formatter) FormatProject(p ProjectDTO) error {
	if f.format != FormatTable {
		return f.encode(p)
	}
	rows := [][]string{
		{"id", p.ID},
		{"name", p.Name},
		{"status", p.Status},
		{"root", p.RootPath},
		{"template", p.TemplateName},
		{"source", p.TemplatePath},
		{"description", p.Description},
		{"tags", strings.Join(p.Tags, ", ")},
		{"created", p.CreatedAt.Format("2006-01-02 15:04:05")},
		{"updated", p.UpdatedAt.Format("2006-01-02 15:04:05")},
	}
	for _, k := range sortedKeys(p.Variables) {
		rows = append(rows, []string{"var." + k, p.Variables[k]})
	}
	return f.table([]string{"FIELD", "VALUE"}, rows)
}

// FormatChanges formats the transitions made by reconciliation
func (f *Formatter) FormatChanges(changes []ChangeDTO) error {
	if f.format != FormatTable {
		return f.encode(changes)
	}
	if len(changes) == 0 {
		_, err := fmt.Fprintln(f.writer, "All projects are in sync.")
		return err
	}
	rows := make([][]string, len(changes))
	for i, c := range changes {
		rows[i] = []string{shortID(c.ID), c.Name, c.OldStatus + " → " + c.NewStatus, c.RootPath}
	}
	return f.table([]string{"ID", "NAME", "CHANGE", "ROOT"}, rows)
}

// FormatPlan formats a dry run
func (f *Formatter) FormatPlan(plan PlanDTO) error {
	if f.format != FormatTable {
		return f.encode(plan)
	}
	if _, err := fmt.Fprintf(f.writer, "Would create %s from %s at %s\n", plan.Name, plan.Template, plan.Root); err != nil {
		return err
	}
	rows := make([][]string, len(plan.Actions))
	for i, a := range plan.Actions {
		kind, size := "file", fmt.Sprintf("%d", a.Size)
		if a.IsDir {
			kind, size = "dir", ""
		}
		rows[i] = []string{kind, a.Mode, size, a.Path}
	}
	return f.table([]string{"KIND", "MODE", "SIZE", "PATH"}, rows)
}

// FormatDrift formats a drift report. The table format prints a summary
// followed by the unified diffs.
func (f *Formatter) FormatDrift(drift DriftDTO) error {
	if f.format != FormatTable {
		return f.encode(drift)
	}
	var sb strings.Builder
	if drift.TemplateChanged {
		sb.WriteString("The template changed since this project was created.\n")
	}
	if drift.Clean {
		fmt.Fprintf(&sb, "%s matches its template.\n", drift.Name)
		_, err := io.WriteString(f.writer, sb.String())
		return err
	}
	if _, err := io.WriteString(f.writer, sb.String()); err != nil {
		return err
	}

	rows := make([][]string, len(drift.Files))
	for i, file := range drift.Files {
		var lines string
		if file.Added > 0 || file.Removed > 0 {
			lines = fmt.Sprintf("+%d -%d", file.Added, file.Removed)
		}
		rows[i] = []string{file.Kind, file.Path, lines}
	}
	if err := f.table([]string{"KIND", "PATH", "LINES"}, rows); err != nil {
		return err
	}
	for _, file := range drift.Files {
		if file.Diff == "" {
			continue
		}
		if _, err := fmt.Fprintf(f.writer, "\n%s", file.Diff); err != nil {
			return err
		}
	}
	return nil
}

// FormatTree formats a scanned directory structure. Table output draws the
// tree; cbor output uses deterministic encoding.
func (f *Formatter) FormatTree(tree *progest.TreeNode) error {
	switch f.format {
	case FormatTable:
		var sb strings.Builder
		writeTree(&sb, tree)
		_, err := io.WriteString(f.writer, sb.String())
		return err
	default:
		return f.encode(tree)
	}
}

// FormatResult formats any value as JSON or CBOR
func (f *Formatter) FormatResult(result any) error {
	return f.encode(result)
}

// FormatMessage prints a single line for table output and a JSON object
// otherwise.
func (f *Formatter) FormatMessage(message string, result any) error {
	if f.format == FormatTable {
		_, err := fmt.Fprintln(f.writer, message)
		return err
	}
	return f.encode(result)
}

func (f *Formatter) encode(v any) error {
	if f.format == FormatCBOR {
		data, err := MarshalCBOR(v)
		if err != nil {
			return fmt.Errorf("failed to encode cbor: %w", err)
		}
		_, err = f.writer.Write(data)
		return err
	}
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func writeTree(sb *strings.Builder, n *progest.TreeNode) {
	sb.WriteString(nodeLabel(n))
	sb.WriteString("\n")
	writeChildren(sb, n.Children, "")
}

func writeChildren(sb *strings.Builder, children []*progest.TreeNode, prefix string) {
	for i, c := range children {
		branch, next := "├── ", "│   "
		if i == len(children)-1 {
			branch, next = "└── ", "    "
		}
		sb.WriteString(prefix + branch + nodeLabel(c) + "\n")
		writeChildren(sb, c.Children, prefix+next)
	}
}

func nodeLabel(n *progest.TreeNode) string {
	if n.IsDir {
		return n.Name + "/"
	}
	return n.Name
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
