package statusbar

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/robertguss/sprintboard-go/internal/notify"
	"github.com/robertguss/sprintboard-go/internal/theme"
)

// Model represents the status bar component
type Model struct {
	width       int
	mode        string
	itemCount   int
	sprintCount int
	toast       notify.Toast
	help        string
}

// New creates a new status bar model
func New() Model {
	return Model{mode: "local"}
}

// SetWidth sets the status bar width
func (m *Model) SetWidth(width int) {
	m.width = width
}

// SetMode sets the connection mode label (local or remote)
func (m *Model) SetMode(mode string) {
	m.mode = mode
}

// SetCounts sets the item and sprint counts
func (m *Model) SetCounts(items, sprints int) {
	m.itemCount = items
	m.sprintCount = sprints
}

// SetHelp sets the key hint shown when no toast is displayed
func (m *Model) SetHelp(help string) {
	m.help = help
}

// SetToast shows a toast until it is cleared or replaced
func (m *Model) SetToast(t notify.Toast) {
	m.toast = t
}

// SetMessage shows a plain warning message
func (m *Model) SetMessage(msg string) {
	m.toast = notify.Toast{Level: notify.LevelWarning, Message: msg}
}

// ClearMessage clears the toast
func (m *Model) ClearMessage() {
	m.toast = notify.Toast{}
}

// Message returns the current toast text
func (m Model) Message() string {
	return m.toast.Message
}

// View renders the status bar
func (m Model) View() string {
	t := theme.Current

	border := lipgloss.NewStyle().
		Foreground(t.Border).
		Width(m.width).
		Render(strings.Repeat("─", m.width))

	mode := fmt.Sprintf("Mode: %s",
		lipgloss.NewStyle().Foreground(t.Info).Render(m.mode),
	)

	counts := fmt.Sprintf("Items: %s | Sprints: %s",
		lipgloss.NewStyle().Foreground(t.Foreground).Bold(true).Render(fmt.Sprintf("%d", m.itemCount)),
		lipgloss.NewStyle().Foreground(t.Foreground).Bold(true).Render(fmt.Sprintf("%d", m.sprintCount)),
	)

	var right string
	if m.toast.Message != "" {
		color := t.Warning
		switch m.toast.Level {
		case notify.LevelSuccess:
			color = t.Success
		case notify.LevelError:
			color = t.Error
		}
		right = lipgloss.NewStyle().Foreground(color).Render(m.toast.Message)
	} else {
		help := m.help
		if help == "" {
			help = "m move | r refresh | q quit"
		}
		right = lipgloss.NewStyle().Foreground(t.Subtle).Render(help)
	}

	total := lipgloss.Width(mode) + lipgloss.Width(counts) + lipgloss.Width(right)

	var content string
	if m.width > total+4 {
		gap := (m.width - total - 4) / 2
		content = mode + strings.Repeat(" ", gap) + counts + strings.Repeat(" ", gap) + right
	} else {
		content = mode + "  " + right
	}

	bar := lipgloss.NewStyle().
		Background(t.StatusBar).
		Foreground(t.Subtle).
		Width(m.width).
		Padding(0, 2).
		Render(content)

	return lipgloss.JoinVertical(lipgloss.Left, border, bar)
}
