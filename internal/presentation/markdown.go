package presentation

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
)

// noMarginStyle is a JSON style that removes document margins.
const noMarginStyle = `{
	"document": {
		"margin": 0,
		"block_prefix": "",
		"block_suffix": ""
	}
}`

// markdown renders md for the terminal in the configured style.
// Use an explicit style instead of WithAutoStyle() so output written to a
// pipe does not depend on terminal queries.
func (f *Formatter) markdown(md string) (string, error) {
	style := f.markdownStyle
	if style == "" {
		style = "dark"
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStylePath(style),
		glamour.WithStylesFromJSONBytes([]byte(noMarginStyle)),
		glamour.WithWordWrap(f.width),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	return r.Render(md)
}

// TemplateMarkdown describes a template as a markdown document.
func TemplateMarkdown(t TemplateDetailDTO) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# %s\n\n", t.Name)
	if t.Description != "" {
		fmt.Fprintf(&sb, "%s\n\n", t.Description)
	}
	if t.Version != "" {
		fmt.Fprintf(&sb, "- **Version:** %s\n", t.Version)
	}
	fmt.Fprintf(&sb, "- **Source:** `%s`\n", t.Source)
	fmt.Fprintf(&sb, "- **Placeholders:** `%sname%s`\n", t.Delimiters[0], t.Delimiters[1])
	if t.Digest != "" {
		fmt.Fprintf(&sb, "- **Digest:** `%s`\n", shortDigest(t.Digest))
	}

	if len(t.Variables) > 0 {
		sb.WriteString("\n## Variables\n\n")
		sb.WriteString("| Name | Type | Default | Description |\n")
		sb.WriteString("|------|------|---------|-------------|\n")
		for _, v := range t.Variables {
			def := "*required*"
			if v.Default != nil {
				def = "`" + *v.Default + "`"
			}
			typ := v.Type
			switch {
			case len(v.Options) > 0:
				typ += " (" + strings.Join(v.Options, ", ") + ")"
			case v.Convention != "":
				typ += " (" + v.Convention + ")"
			case v.Pattern != "":
				typ += " (`" + v.Pattern + "`)"
			}
			fmt.Fprintf(&sb, "| %s | %s | %s | %s |\n", v.Name, escapeCell(typ), escapeCell(def), escapeCell(v.Description))
		}
	}

	if len(t.Rules) > 0 {
		sb.WriteString("\n## Rules\n\n")
		for _, r := range t.Rules {
			fmt.Fprintf(&sb, "- `%s` when `%s`\n", r.Path, r.When)
		}
	}

	if len(t.Entries) > 0 {
		sb.WriteString("\n## Files\n\n```\n")
		for _, e := range t.Entries {
			sb.WriteString(e)
			sb.WriteString("\n")
		}
		sb.WriteString("```\n")
	}
	return sb.String()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

func shortDigest(d string) string {
	if len(d) > 16 {
		return d[:16]
	}
	return d
}
