package header

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/robertguss/sprintboard-go/internal/theme"
)

// Model represents the header component
type Model struct {
	width   int
	project string
	state   string
	idle    bool
}

// New creates a new header model
func New() Model {
	return Model{idle: true, state: "idle"}
}

// SetWidth sets the header width
func (m *Model) SetWidth(width int) {
	m.width = width
}

// SetProject sets the project name shown next to the title
func (m *Model) SetProject(project string) {
	m.project = project
}

// SetState sets the orchestrator state indicator
func (m *Model) SetState(state string, idle bool) {
	m.state = state
	m.idle = idle
}

// View renders the header
func (m Model) View() string {
	t := theme.Current

	title := lipgloss.NewStyle().
		Foreground(t.Primary).
		Bold(true).
		Render("Sprintboard")

	project := ""
	if m.project != "" {
		project = lipgloss.NewStyle().
			Foreground(t.Subtle).
			Render("  " + m.project)
	}

	stateColor := t.Success
	if !m.idle {
		stateColor = t.Warning
	}
	state := lipgloss.NewStyle().
		Foreground(stateColor).
		Bold(true).
		Render("● " + m.state)

	left := title + project
	spacing := "  "
	if gap := m.width - lipgloss.Width(left) - lipgloss.Width(state) - 4; gap > 2 {
		spacing = strings.Repeat(" ", gap)
	}

	header := lipgloss.NewStyle().
		Background(t.HeaderBg).
		Foreground(t.Foreground).
		Width(m.width).
		Padding(0, 2).
		Render(left + spacing + state)

	border := lipgloss.NewStyle().
		Foreground(t.Border).
		Width(m.width).
		Render(strings.Repeat("─", m.width))

	return lipgloss.JoinVertical(lipgloss.Left, header, border)
}
