package app

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/robertguss/sprintboard-go/internal/theme"
)

const (
	minColumnWidth = 18
	maxColumnWidth = 36
)

// renderBoard lays out every container side by side
func (m Model) renderBoard() string {
	n := m.columnCount()
	width := minColumnWidth
	if n > 0 && m.width > 0 {
		width = min(max(m.width/n-2, minColumnWidth), maxColumnWidth)
	}
	height := max(m.height-6, 3)

	columns := make([]string, 0, n)
	for c := range n {
		columns = append(columns, m.renderColumn(c, width, height))
	}

	board := lipgloss.JoinHorizontal(lipgloss.Top, columns...)
	return lipgloss.NewStyle().Width(m.width).Render(board)
}

func (m Model) renderColumn(col, width, height int) string {
	style := m.styles.Column
	switch {
	case m.picking && col == m.target:
		style = m.styles.ColumnTarget
	case col == m.col:
		style = m.styles.ColumnFocused
	case m.columnClosed(col):
		style = m.styles.ColumnClosed
	}

	inner := width - 4
	lines := []string{m.styles.Title.Render(truncate(m.columnTitle(col), inner))}
	if col > 0 {
		lines = append(lines, theme.LifecycleBadge(m.board.Sprints[col-1].State))
	} else {
		lines = append(lines, m.styles.Muted.Render("no lifecycle"))
	}
	lines = append(lines, "")

	items := m.columnItems(col)
	if len(items) == 0 {
		lines = append(lines, m.styles.Muted.Render("empty"))
	}
	for r, it := range items {
		title := truncate(it.Title(), inner)
		if col == m.col && r == m.row {
			title = m.styles.Selected.Render(title)
		}
		lines = append(lines, title, "  "+theme.StatusBadge(it.DisplayStatus))
	}

	return style.
		Width(width).
		Height(height).
		Render(strings.Join(lines, "\n"))
}

func truncate(s string, n int) string {
	if n <= 0 || lipgloss.Width(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
