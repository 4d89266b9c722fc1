package prompt

import (
	"regexp"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/exp/teatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NaruseNia/progest/internal/naming"
	"github.com/NaruseNia/progest/internal/template/domain"
)

func testVariables() []domain.Variable {
	return []domain.Variable{
		{Name: "project_name", Type: domain.TypeString, Convention: naming.Pascal},
		{Name: "license", Type: domain.TypeEnum, Options: []string{"mit", "apache"}},
		{Name: "with_docs", Type: domain.TypeBoolean},
	}
}

func enter() tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyEnter} }

func TestPrompt_New(t *testing.T) {
	m := New(testVariables())

	require.Len(t, m.fields, 3)
	assert.Equal(t, 0, m.focus, "expected first field focused")
	assert.True(t, m.fields[0].input.Focused())
	assert.False(t, m.fields[1].input.Focused())
	assert.Empty(t, m.Values())
}

func TestPrompt_EnterValidatesAndAdvances(t *testing.T) {
	m := New(testVariables())
	m.fields[0].input.SetValue("Foo")

	model, _ := m.Update(enter())
	m = model.(Model)

	assert.Equal(t, 1, m.focus, "expected focus to move to the next field")
	assert.Equal(t, "Foo", m.Values()["project_name"])
	assert.Empty(t, m.Err())
}

func TestPrompt_InvalidValueStays(t *testing.T) {
	m := New(testVariables())
	m.fields[0].input.SetValue("my app")

	model, cmd := m.Update(enter())
	m = model.(Model)

	assert.Nil(t, cmd)
	assert.Equal(t, 0, m.focus, "expected focus to stay on the invalid field")
	assert.Contains(t, m.Err(), "project_name")
	assert.NotContains(t, m.Values(), "project_name")
	assert.Contains(t, m.View(), "must be pascal case")
}

func TestPrompt_TabCyclesChoices(t *testing.T) {
	m := New(testVariables())
	m = m.focusField(1)

	model, _ := m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m = model.(Model)
	assert.Equal(t, "mit", m.fields[1].input.Value())

	model, _ = m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m = model.(Model)
	assert.Equal(t, "apache", m.fields[1].input.Value())

	model, _ = m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m = model.(Model)
	assert.Equal(t, "mit", m.fields[1].input.Value(), "expected choices to wrap")
}

func TestPrompt_TabIgnoredForStrings(t *testing.T) {
	m := New(testVariables())
	m.fields[0].input.SetValue("Foo")

	model, _ := m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m = model.(Model)

	assert.Equal(t, "Foo", m.fields[0].input.Value())
	assert.Equal(t, 0, m.focus)
}

func TestPrompt_Navigation(t *testing.T) {
	m := New(testVariables())

	model, _ := m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = model.(Model)
	assert.Equal(t, 1, m.focus)
	assert.True(t, m.fields[1].input.Focused())
	assert.False(t, m.fields[0].input.Focused())

	model, _ = m.Update(tea.KeyMsg{Type: tea.KeyUp})
	m = model.(Model)
	assert.Equal(t, 0, m.focus)

	model, _ = m.Update(tea.KeyMsg{Type: tea.KeyUp})
	m = model.(Model)
	assert.Equal(t, 0, m.focus, "expected focus to stop at the first field")
}

func TestPrompt_EnterSkipsAnsweredFields(t *testing.T) {
	m := New(testVariables())
	m = m.focusField(2)
	m.fields[2].input.SetValue("true")

	model, _ := m.Update(enter())
	m = model.(Model)

	assert.Equal(t, 0, m.focus, "expected focus to wrap to the first unanswered field")
	assert.False(t, m.Done())
}

func TestPrompt_View(t *testing.T) {
	view := New(testVariables()).View()

	assert.Contains(t, view, "Template variables")
	assert.Contains(t, view, "> project_name")
	assert.Contains(t, view, "  license")
	assert.Contains(t, view, "mit/apache")
	assert.Contains(t, view, "true/false")
	assert.Contains(t, view, "pascal")
}

func TestPrompt_Program_CompletesForm(t *testing.T) {
	tm := teatest.NewTestModel(t, New(testVariables()), teatest.WithInitialTermSize(80, 24))

	tm.Type("Foo")
	tm.Send(enter())
	tm.Send(tea.KeyMsg{Type: tea.KeyTab})
	tm.Send(tea.KeyMsg{Type: tea.KeyTab})
	tm.Send(enter())
	tm.Type("false")
	tm.Send(enter())

	final := tm.FinalModel(t, teatest.WithFinalTimeout(3*time.Second)).(Model)
	require.True(t, final.Done())
	assert.False(t, final.Cancelled())
	assert.Equal(t, map[string]string{
		"project_name": "Foo",
		"license":      "apache",
		"with_docs":    "false",
	}, final.Values())
}

func TestPrompt_Program_Cancel(t *testing.T) {
	tm := teatest.NewTestModel(t, New(testVariables()), teatest.WithInitialTermSize(80, 24))

	tm.Type("Foo")
	tm.Send(enter())
	tm.Send(tea.KeyMsg{Type: tea.KeyEsc})

	final := tm.FinalModel(t, teatest.WithFinalTimeout(3*time.Second)).(Model)
	assert.True(t, final.Cancelled())
	assert.False(t, final.Done())
	assert.Equal(t, map[string]string{"project_name": "Foo"}, final.Values())
}

func TestPrompt_PatternHint(t *testing.T) {
	v := domain.Variable{Name: "port", Type: domain.TypeString, Pattern: regexp.MustCompile(`^[0-9]+$`)}

	assert.Equal(t, "^[0-9]+$", hintFor(v))
	assert.Contains(t, New([]domain.Variable{v}).View(), "^[0-9]+$")
}

func TestPrompt_NoVariables(t *testing.T) {
	m := New(nil)

	model, cmd := m.Update(enter())
	require.NotNil(t, cmd)
	assert.True(t, model.(Model).Done())
}
