// Package app implements the terminal board: one column for the Backlog and
// one per sprint, with a menu-driven "move to" flow.
package app

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/robertguss/sprintboard-go/internal/components/header"
	"github.com/robertguss/sprintboard-go/internal/components/statusbar"
	"github.com/robertguss/sprintboard-go/internal/domain"
	"github.com/robertguss/sprintboard-go/internal/messages"
	"github.com/robertguss/sprintboard-go/internal/orchestrator"
	"github.com/robertguss/sprintboard-go/internal/store"
	"github.com/robertguss/sprintboard-go/internal/theme"
)

// DefaultToastTTL is how long a move toast stays in the status bar
const DefaultToastTTL = 4 * time.Second

// Mover submits moves and reports whether a new one may start
type Mover interface {
	SubmitMove(ctx context.Context, req domain.MoveRequest) domain.MoveOutcome
	Idle() bool
}

// Refresher requests a background reconciliation
type Refresher interface {
	Trigger()
}

// Notifier shows some outcomes outside the board. Outcomes it handles get
// no toast unless delivery fails.
type Notifier interface {
	Handles(domain.MoveOutcome) bool
	NotifyMoveOutcome(domain.MoveOutcome) error
}

// Options configures the board model
type Options struct {
	Board       domain.BoardState
	ProjectName string
	Mode        string // "local" or "remote"
	Mover       Mover
	Refresher   Refresher
	Notifier    Notifier
	ToastTTL    time.Duration
}

// Model is the main application model
type Model struct {
	// Dimensions
	width  int
	height int
	ready  bool

	// Data
	board domain.BoardState

	// Cursor: column 0 is the Backlog, column i is Sprints[i-1]
	col int
	row int

	// Move picking
	picking bool
	target  int

	// Collaborators
	mover     Mover
	refresher Refresher
	notifier  Notifier

	// Orchestrator state as last reported
	state string
	idle  bool

	toastSeq int
	toastTTL time.Duration

	// Components
	header    header.Model
	statusbar statusbar.Model

	// Styles
	styles theme.Styles
}

// New creates a new application model
func New(opts Options) Model {
	ttl := opts.ToastTTL
	if ttl <= 0 {
		ttl = DefaultToastTTL
	}

	m := Model{
		board:     opts.Board.Clone(),
		mover:     opts.Mover,
		refresher: opts.Refresher,
		notifier:  opts.Notifier,
		state:     string(orchestrator.StateIdle),
		idle:      true,
		toastTTL:  ttl,
		header:    header.New(),
		statusbar: statusbar.New(),
		styles:    theme.NewStyles(),
	}

	project := opts.ProjectName
	if project == "" {
		project = opts.Board.ProjectID
	}
	m.header.SetProject(project)
	if opts.Mode != "" {
		m.statusbar.SetMode(opts.Mode)
	}
	m.updateCounts()
	return m
}

// Connect forwards store changes and orchestrator state changes to the
// program. The returned function stops the store subscription.
func Connect(p *tea.Program, st *store.Store, o *orchestrator.Orchestrator) func() {
	o.OnStateChange(func(s orchestrator.State) {
		p.Send(messages.StateChangedMsg{State: string(s), Idle: s == orchestrator.StateIdle})
	})
	return st.Subscribe(func(b domain.BoardState) {
		p.Send(messages.BoardUpdatedMsg{Board: b})
	})
}

// Init initializes the application
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles all messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.header.SetWidth(msg.Width)
		m.statusbar.SetWidth(msg.Width)
		return m, nil

	case messages.BoardUpdatedMsg:
		m.board = msg.Board
		m.clampCursor()
		m.updateCounts()
		return m, nil

	case messages.StateChangedMsg:
		m.state = msg.State
		m.idle = msg.Idle
		m.header.SetState(msg.State, msg.Idle)
		return m, nil

	case messages.MoveOutcomeMsg:
		return m.handleOutcome(msg.Outcome)

	case messages.NotifyFailedMsg:
		return m.showToast(msg.Outcome)

	case messages.ClearToastMsg:
		if msg.Seq == m.toastSeq {
			m.statusbar.ClearMessage()
		}
		return m, nil
	}

	return m, nil
}

// View renders the application
func (m Model) View() string {
	if !m.ready {
		return "\n  Loading board..."
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.header.View(),
		m.renderBoard(),
		m.statusbar.View(),
	)
}

// Board returns the board as currently displayed
func (m Model) Board() domain.BoardState {
	return m.board
}

// Picking reports whether a destination is being chosen
func (m Model) Picking() bool {
	return m.picking
}

// Cursor returns the focused column and row
func (m Model) Cursor() (col, row int) {
	return m.col, m.row
}

// Target returns the destination column while picking
func (m Model) Target() int {
	return m.target
}

// StatusMessage returns the status bar toast text
func (m Model) StatusMessage() string {
	return m.statusbar.Message()
}

func (m *Model) updateCounts() {
	m.statusbar.SetCounts(m.board.ItemCount(), len(m.board.Sprints))
}

// canMove reports whether a new move may be started
func (m Model) canMove() bool {
	if m.mover == nil {
		return false
	}
	return m.idle && m.mover.Idle()
}
