package app

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/robertguss/sprintboard-go/internal/domain"
	"github.com/robertguss/sprintboard-go/internal/messages"
	"github.com/robertguss/sprintboard-go/internal/notify"
)

const pickHelp = "←/→ destination | enter move | esc cancel"

// handleKeyMsg handles keyboard input messages
func (m Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}

	if m.picking {
		return m.handlePickKeys(msg)
	}

	switch msg.String() {
	case "q":
		return m, tea.Quit

	case "left", "h":
		if m.col > 0 {
			m.col--
			m.clampCursor()
		}

	case "right", "l":
		if m.col < m.columnCount()-1 {
			m.col++
			m.clampCursor()
		}

	case "up", "k":
		if m.row > 0 {
			m.row--
		}

	case "down", "j":
		if m.row < len(m.columnItems(m.col))-1 {
			m.row++
		}

	case "m":
		if _, ok := m.selectedItem(); !ok {
			return m, nil
		}
		if !m.canMove() {
			m.statusbar.SetMessage(domain.ReasonBusy)
			return m, nil
		}
		m.picking = true
		m.target = (m.col + 1) % m.columnCount()
		m.statusbar.SetHelp(pickHelp)

	case "r":
		if m.refresher != nil {
			m.refresher.Trigger()
			m.statusbar.SetMessage("Refreshing board")
		}
	}

	return m, nil
}

// handlePickKeys handles keys while a destination is being chosen
func (m Model) handlePickKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "q":
		m.stopPicking()

	case "left", "h":
		m.target = (m.target - 1 + m.columnCount()) % m.columnCount()

	case "right", "l":
		m.target = (m.target + 1) % m.columnCount()

	case "enter":
		item, ok := m.selectedItem()
		if !ok {
			m.stopPicking()
			return m, nil
		}
		if !m.canMove() {
			m.statusbar.SetMessage(domain.ReasonBusy)
			return m, nil
		}
		req := domain.MoveRequest{
			Item: item,
			From: m.columnRef(m.col),
			To:   m.columnRef(m.target),
		}
		m.stopPicking()
		return m, m.submitMove(req)
	}

	return m, nil
}

func (m *Model) stopPicking() {
	m.picking = false
	m.statusbar.SetHelp("")
}

// submitMove hands the request to the orchestrator off the UI goroutine
func (m Model) submitMove(req domain.MoveRequest) tea.Cmd {
	mover := m.mover
	return func() tea.Msg {
		return messages.MoveOutcomeMsg{Outcome: mover.SubmitMove(context.Background(), req)}
	}
}

// handleOutcome reports the outcome once: through the notifier when it
// takes the outcome, otherwise as a toast
func (m Model) handleOutcome(o domain.MoveOutcome) (tea.Model, tea.Cmd) {
	if m.notifier != nil && m.notifier.Handles(o) {
		n := m.notifier
		return m, func() tea.Msg {
			if err := n.NotifyMoveOutcome(o); err != nil {
				return messages.NotifyFailedMsg{Outcome: o, Err: err}
			}
			return nil
		}
	}
	return m.showToast(o)
}

// showToast shows the outcome's toast and schedules its removal
func (m Model) showToast(o domain.MoveOutcome) (tea.Model, tea.Cmd) {
	toast, ok := notify.ToastFor(o)
	if !ok {
		return m, nil
	}

	m.toastSeq++
	m.statusbar.SetToast(toast)

	if o.Succeeded() {
		m.follow(o.Request.Item.ID)
	}

	seq := m.toastSeq
	return m, tea.Tick(m.toastTTL, func(time.Time) tea.Msg {
		return messages.ClearToastMsg{Seq: seq}
	})
}

// follow moves the cursor to the item if it is on the board
func (m *Model) follow(itemID string) {
	ref, ok := m.board.FindContainerOf(itemID)
	if !ok {
		return
	}
	for c := range m.columnCount() {
		if m.columnRef(c) != ref {
			continue
		}
		for r, it := range m.columnItems(c) {
			if it.ID == itemID {
				m.col, m.row = c, r
				return
			}
		}
	}
}

func (m Model) columnCount() int {
	return len(m.board.Sprints) + 1
}

func (m Model) columnRef(col int) domain.ContainerRef {
	if col == 0 || col > len(m.board.Sprints) {
		return domain.BacklogRef
	}
	return domain.SprintRef(m.board.Sprints[col-1].ID)
}

func (m Model) columnItems(col int) []domain.WorkItem {
	if col == 0 {
		return m.board.Backlog.Items
	}
	if col > len(m.board.Sprints) {
		return nil
	}
	return m.board.Sprints[col-1].Items
}

func (m Model) columnTitle(col int) string {
	if col == 0 {
		return fmt.Sprintf("Backlog (%d)", len(m.board.Backlog.Items))
	}
	s := m.board.Sprints[col-1]
	return fmt.Sprintf("%s (%d)", s.Name, len(s.Items))
}

func (m Model) columnClosed(col int) bool {
	if col == 0 || col > len(m.board.Sprints) {
		return false
	}
	return m.board.Sprints[col-1].State.IsClosed()
}

func (m Model) selectedItem() (domain.WorkItem, bool) {
	items := m.columnItems(m.col)
	if m.row < 0 || m.row >= len(items) {
		return domain.WorkItem{}, false
	}
	return items[m.row], true
}

// clampCursor keeps the cursor and pick target on the current board
func (m *Model) clampCursor() {
	if m.col >= m.columnCount() {
		m.col = m.columnCount() - 1
	}
	if n := len(m.columnItems(m.col)); m.row >= n {
		m.row = max(n-1, 0)
	}
	if m.target >= m.columnCount() {
		m.target = 0
	}
	if m.picking {
		if _, ok := m.selectedItem(); !ok {
			m.stopPicking()
		}
	}
}
