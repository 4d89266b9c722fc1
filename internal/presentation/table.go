package presentation

import (
	"fmt"
	"sort"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-runewidth"
)

// minCellWidth keeps truncated cells readable on narrow widths.
const minCellWidth = 12

// table writes rows under headers with a rounded border. Cells wider than
// the formatter width are truncated with an ellipsis.
func (f *Formatter) table(headers []string, rows [][]string) error {
	limit := max(f.width/2, minCellWidth)
	cells := make([][]string, len(rows))
	for i, row := range rows {
		cells[i] = make([]string, len(row))
		for j, cell := range row {
			cells[i][j] = truncateCell(cell, limit)
		}
	}

	headerStyle := f.renderer.NewStyle().Bold(true).Padding(0, 1)
	cellStyle := f.renderer.NewStyle().Padding(0, 1)

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(f.renderer.NewStyle().Faint(true)).
		Headers(headers...).
		Rows(cells...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})

	_, err := fmt.Fprintln(f.writer, t.String())
	return err
}

// truncateCell shortens s to at most width terminal columns.
func truncateCell(s string, width int) string {
	if runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
