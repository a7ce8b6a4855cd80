package theme

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/robertguss/sprintboard-go/internal/domain"
)

// Theme defines the color palette and styles for the application
type Theme struct {
	Name string

	// Base colors
	Background lipgloss.Color
	Foreground lipgloss.Color
	Subtle     lipgloss.Color
	Highlight  lipgloss.Color

	// Status colors
	Success lipgloss.Color
	Warning lipgloss.Color
	Error   lipgloss.Color
	Info    lipgloss.Color

	// Accent colors
	Primary   lipgloss.Color
	Secondary lipgloss.Color
	Accent    lipgloss.Color

	// UI element colors
	Border    lipgloss.Color
	Selection lipgloss.Color
	StatusBar lipgloss.Color
	HeaderBg  lipgloss.Color
}

// Catppuccin Mocha theme (default)
var Catppuccin = Theme{
	Name: "Catppuccin Mocha",

	// Base colors
	Background: lipgloss.Color("#1e1e2e"),
	Foreground: lipgloss.Color("#cdd6f4"),
	Subtle:     lipgloss.Color("#6c7086"),
	Highlight:  lipgloss.Color("#f5e0dc"),

	// Status colors
	Success: lipgloss.Color("#a6e3a1"),
	Warning: lipgloss.Color("#f9e2af"),
	Error:   lipgloss.Color("#f38ba8"),
	Info:    lipgloss.Color("#89b4fa"),

	// Accent colors
	Primary:   lipgloss.Color("#cba6f7"),
	Secondary: lipgloss.Color("#f5c2e7"),
	Accent:    lipgloss.Color("#94e2d5"),

	// UI element colors
	Border:    lipgloss.Color("#313244"),
	Selection: lipgloss.Color("#45475a"),
	StatusBar: lipgloss.Color("#181825"),
	HeaderBg:  lipgloss.Color("#181825"),
}

// Dracula theme
var Dracula = Theme{
	Name: "Dracula",

	// Base colors
	Background: lipgloss.Color("#282a36"),
	Foreground: lipgloss.Color("#f8f8f2"),
	Subtle:     lipgloss.Color("#6272a4"),
	Highlight:  lipgloss.Color("#f1fa8c"),

	// Status colors
	Success: lipgloss.Color("#50fa7b"),
	Warning: lipgloss.Color("#ffb86c"),
	Error:   lipgloss.Color("#ff5555"),
	Info:    lipgloss.Color("#8be9fd"),

	// Accent colors
	Primary:   lipgloss.Color("#bd93f9"),
	Secondary: lipgloss.Color("#ff79c6"),
	Accent:    lipgloss.Color("#8be9fd"),

	// UI element colors
	Border:    lipgloss.Color("#44475a"),
	Selection: lipgloss.Color("#44475a"),
	StatusBar: lipgloss.Color("#21222c"),
	HeaderBg:  lipgloss.Color("#21222c"),
}

// Latte is a light palette for bright terminals
var Latte = Theme{
	Name: "Catppuccin Latte",

	Background: lipgloss.Color("#eff1f5"),
	Foreground: lipgloss.Color("#4c4f69"),
	Subtle:     lipgloss.Color("#8c8fa1"),
	Highlight:  lipgloss.Color("#dc8a78"),

	Success: lipgloss.Color("#40a02b"),
	Warning: lipgloss.Color("#df8e1d"),
	Error:   lipgloss.Color("#d20f39"),
	Info:    lipgloss.Color("#1e66f5"),

	Primary:   lipgloss.Color("#8839ef"),
	Secondary: lipgloss.Color("#ea76cb"),
	Accent:    lipgloss.Color("#179299"),

	Border:    lipgloss.Color("#ccd0da"),
	Selection: lipgloss.Color("#bcc0cc"),
	StatusBar: lipgloss.Color("#e6e9ef"),
	HeaderBg:  lipgloss.Color("#e6e9ef"),
}

// Current is the active theme
var Current = Catppuccin

// AvailableThemes returns a list of built-in theme names
func AvailableThemes() []string {
	return []string{"catppuccin", "dracula", "latte"}
}

// Apply selects a built-in theme by name, or loads a theme file when name
// ends in .yaml or .yml
func Apply(name string) error {
	if strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml") {
		return LoadThemeFromYAML(name)
	}
	switch name {
	case "dracula":
		Current = Dracula
	case "latte":
		Current = Latte
	case "catppuccin", "":
		Current = Catppuccin
	default:
		return fmt.Errorf("unknown theme %q", name)
	}
	return nil
}

// ThemeYAML represents a theme file. Unset colors keep the default palette.
type ThemeYAML struct {
	Name       string `yaml:"name"`
	Background string `yaml:"background"`
	Foreground string `yaml:"foreground"`
	Subtle     string `yaml:"subtle"`
	Highlight  string `yaml:"highlight"`
	Success    string `yaml:"success"`
	Warning    string `yaml:"warning"`
	Error      string `yaml:"error"`
	Info       string `yaml:"info"`
	Primary    string `yaml:"primary"`
	Secondary  string `yaml:"secondary"`
	Accent     string `yaml:"accent"`
	Border     string `yaml:"border"`
	Selection  string `yaml:"selection"`
	StatusBar  string `yaml:"status_bar"`
	HeaderBg   string `yaml:"header_bg"`
}

// LoadThemeFromYAML loads a custom theme from a YAML file
func LoadThemeFromYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var ty ThemeYAML
	if err := yaml.Unmarshal(data, &ty); err != nil {
		return fmt.Errorf("parse theme: %w", err)
	}

	t := Catppuccin
	t.Name = ty.Name
	set := func(dst *lipgloss.Color, v string) {
		if v != "" {
			*dst = lipgloss.Color(v)
		}
	}
	set(&t.Background, ty.Background)
	set(&t.Foreground, ty.Foreground)
	set(&t.Subtle, ty.Subtle)
	set(&t.Highlight, ty.Highlight)
	set(&t.Success, ty.Success)
	set(&t.Warning, ty.Warning)
	set(&t.Error, ty.Error)
	set(&t.Info, ty.Info)
	set(&t.Primary, ty.Primary)
	set(&t.Secondary, ty.Secondary)
	set(&t.Accent, ty.Accent)
	set(&t.Border, ty.Border)
	set(&t.Selection, ty.Selection)
	set(&t.StatusBar, ty.StatusBar)
	set(&t.HeaderBg, ty.HeaderBg)

	Current = t
	return nil
}

// Styles contains pre-built lipgloss styles using the current theme
type Styles struct {
	Title    lipgloss.Style
	Muted    lipgloss.Style
	Success  lipgloss.Style
	Warning  lipgloss.Style
	Error    lipgloss.Style
	Selected lipgloss.Style
	Shortcut lipgloss.Style

	// Board columns
	Column        lipgloss.Style
	ColumnFocused lipgloss.Style
	ColumnTarget  lipgloss.Style
	ColumnClosed  lipgloss.Style
}

// NewStyles creates styles based on the current theme
func NewStyles() Styles {
	t := Current

	column := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.Border).
		Padding(0, 1)

	return Styles{
		Title:    lipgloss.NewStyle().Foreground(t.Primary).Bold(true),
		Muted:    lipgloss.NewStyle().Foreground(t.Subtle),
		Success:  lipgloss.NewStyle().Foreground(t.Success),
		Warning:  lipgloss.NewStyle().Foreground(t.Warning),
		Error:    lipgloss.NewStyle().Foreground(t.Error),
		Shortcut: lipgloss.NewStyle().Foreground(t.Accent).Bold(true),
		Selected: lipgloss.NewStyle().
			Background(t.Selection).
			Foreground(t.Foreground).
			Bold(true),

		Column:        column,
		ColumnFocused: column.BorderForeground(t.Primary),
		ColumnTarget:  column.BorderForeground(t.Accent).BorderStyle(lipgloss.DoubleBorder()),
		ColumnClosed:  column.BorderForeground(t.Subtle).Foreground(t.Subtle),
	}
}

// StatusBadge renders an item's display status
func StatusBadge(status string) string {
	t := Current
	bg := t.Info
	switch status {
	case domain.StatusBacklog:
		bg = t.Subtle
	case domain.StatusTodo:
		bg = t.Success
	case "in-progress", "in_progress":
		bg = t.Warning
	}
	return lipgloss.NewStyle().
		Foreground(t.Background).
		Background(bg).
		Padding(0, 1).
		Render(status)
}

// LifecycleBadge renders a sprint's lifecycle state
func LifecycleBadge(state domain.LifecycleState) string {
	t := Current
	fg := t.Subtle
	switch state {
	case domain.SprintActive:
		fg = t.Success
	case domain.SprintPlanning:
		fg = t.Info
	case domain.SprintCancelled:
		fg = t.Error
	}
	return lipgloss.NewStyle().Foreground(fg).Italic(true).Render(string(state))
}
