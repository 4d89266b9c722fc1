// Package prompt asks for template variable values in the terminal.
package prompt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/NaruseNia/progest/internal/template/domain"
	"github.com/NaruseNia/progest/internal/variables"
)

// ErrCancelled is returned by Run when the user aborts the form.
var ErrCancelled = errors.New("prompt cancelled")

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	hintStyle  = lipgloss.NewStyle().Faint(true)
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

type field struct {
	variable domain.Variable
	input    textinput.Model
}

// Model is a form with one text input per variable. Enter validates the
// focused value and moves to the next field; the form quits after the last.
type Model struct {
	fields    []field
	focus     int
	values    map[string]string
	err       string
	done      bool
	cancelled bool
}

// New creates a form for vars. The first field is focused.
func New(vars []domain.Variable) Model {
	fields := make([]field, len(vars))
	for i, v := range vars {
		ti := textinput.New()
		ti.Prompt = ""
		ti.Width = 40
		ti.Placeholder = v.Description
		fields[i] = field{variable: v, input: ti}
	}
	if len(fields) > 0 {
		fields[0].input.Focus()
	}
	return Model{fields: fields, values: make(map[string]string, len(vars))}
}

// Init starts the cursor blink.
func (m Model) Init() tea.Cmd {
	if len(m.fields) == 0 {
		return tea.Quit
	}
	return textinput.Blink
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if len(m.fields) == 0 {
		m.done = true
		return m, tea.Quit
	}

	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "ctrl+c", "esc":
			m.cancelled = true
			return m, tea.Quit

		case "up", "shift+tab":
			if m.focus > 0 {
				m = m.focusField(m.focus - 1)
			}
			return m, nil

		case "down":
			if m.focus < len(m.fields)-1 {
				m = m.focusField(m.focus + 1)
			}
			return m, nil

		case "tab":
			// Cycle through the choices of enum and boolean variables.
			if choices := choicesFor(m.fields[m.focus].variable); len(choices) > 0 {
				m.fields[m.focus].input.SetValue(nextChoice(choices, m.fields[m.focus].input.Value()))
				m.fields[m.focus].input.CursorEnd()
			}
			return m, nil

		case "enter":
			f := m.fields[m.focus]
			value, err := variables.Validate(f.variable, strings.TrimSpace(f.input.Value()))
			if err != nil {
				m.err = err.Error()
				return m, nil
			}
			m.err = ""
			m.values[f.variable.Name] = value
			if next := m.firstUnanswered(); next >= 0 {
				m = m.focusField(next)
				return m, nil
			}
			m.done = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.fields[m.focus].input, cmd = m.fields[m.focus].input.Update(msg)
	return m, cmd
}

// View renders the form.
func (m Model) View() string {
	if m.done || m.cancelled {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Template variables"))
	sb.WriteString("\n\n")
	for i, f := range m.fields {
		prefix := "  "
		if i == m.focus {
			prefix = "> "
		}
		label := f.variable.Name
		if hint := hintFor(f.variable); hint != "" {
			label += " " + hintStyle.Render("("+hint+")")
		}
		fmt.Fprintf(&sb, "%s%s: %s\n", prefix, label, f.input.View())
	}
	if m.err != "" {
		sb.WriteString("\n")
		sb.WriteString(errorStyle.Render(m.err))
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	sb.WriteString(hintStyle.Render("enter confirm • tab next choice • esc cancel"))
	sb.WriteString("\n")
	return sb.String()
}

// Values returns the validated values entered so far.
func (m Model) Values() map[string]string {
	out := make(map[string]string, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out
}

// Done reports whether every field holds a valid value.
func (m Model) Done() bool { return m.done }

// Cancelled reports whether the user aborted the form.
func (m Model) Cancelled() bool { return m.cancelled }

// Err returns the last validation message, empty when the focused value is valid.
func (m Model) Err() string { return m.err }

func (m Model) focusField(i int) Model {
	m.fields[m.focus].input.Blur()
	m.focus = i
	m.fields[m.focus].input.Focus()
	return m
}

// firstUnanswered returns the index of the first field without a validated
// value, or -1.
func (m Model) firstUnanswered() int {
	for i, f := range m.fields {
		if _, ok := m.values[f.variable.Name]; !ok {
			return i
		}
	}
	return -1
}

func choicesFor(v domain.Variable) []string {
	switch v.Type {
	case domain.TypeBoolean:
		return []string{"true", "false"}
	case domain.TypeEnum:
		return v.Options
	default:
		return nil
	}
}

func nextChoice(choices []string, current string) string {
	for i, c := range choices {
		if c == current {
			return choices[(i+1)%len(choices)]
		}
	}
	return choices[0]
}

func hintFor(v domain.Variable) string {
	switch {
	case len(choicesFor(v)) > 0:
		return strings.Join(choicesFor(v), "/")
	case v.Convention != "":
		return string(v.Convention)
	case v.Pattern != nil:
		return v.Pattern.String()
	default:
		return ""
	}
}

// Run shows the form on out, reading keys from in, and returns the entered
// values. It returns ErrCancelled when the user aborts.
func Run(ctx context.Context, vars []domain.Variable, in io.Reader, out io.Writer) (map[string]string, error) {
	if len(vars) == 0 {
		return map[string]string{}, nil
	}
	p := tea.NewProgram(New(vars), tea.WithContext(ctx), tea.WithInput(in), tea.WithOutput(out))
	final, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to run prompt: %w", err)
	}
	m, ok := final.(Model)
	if !ok || m.Cancelled() || !m.Done() {
		return nil, ErrCancelled
	}
	return m.Values(), nil
}
