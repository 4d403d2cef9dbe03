package tui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"kanban-cli/internal/board"
	"kanban-cli/internal/model"
	"kanban-cli/internal/optimistic"
	"kanban-cli/internal/reorder"
)

type viewMode int

const (
	modeBoard viewMode = iota
	modePrompt
	modeConfirm
	modeDetail
)

type promptKind int

const (
	promptAddTask promptKind = iota
	promptAddColumn
	promptRenameColumn
	promptEditTask
)

// boardMsg carries the latest board after any change, local or remote.
type boardMsg struct{ board model.Board }

// syncErrMsg reports a background write that was rolled back.
type syncErrMsg struct{ err *optimistic.SyncError }

type appModel struct {
	ctrl *optimistic.Controller

	keys   keyMap
	help   help.Model
	input  textinput.Model
	detail viewport.Model

	board model.Board
	sel   selection

	width  int
	height int

	mode         viewMode
	prompt       promptKind
	promptTarget string

	confirmText   string
	confirmAction func() error

	status    string
	statusErr bool
}

func newModel(ctrl *optimistic.Controller) appModel {
	in := textinput.New()
	in.CharLimit = 200
	in.Width = 40

	m := appModel{
		ctrl:   ctrl,
		keys:   defaultKeys(),
		help:   help.New(),
		input:  in,
		detail: viewport.New(0, 0),
	}
	m.refresh()
	return m
}

func (m appModel) Init() tea.Cmd { return nil }

func (m *appModel) refresh() {
	m.board = m.ctrl.State().Snapshot()
	m.reselect()
}

// reselect re-anchors the selection on the current board, following a task whose
// temporary id was swapped for its durable one.
func (m *appModel) reselect() {
	if m.sel.TaskID != "" {
		if _, _, ok := m.board.FindTask(m.sel.TaskID); !ok {
			m.sel.TaskID = m.ctrl.DurableID(m.sel.TaskID)
		}
	}
	if m.sel.ColumnID != "" && m.board.ColumnIndex(m.sel.ColumnID) < 0 {
		m.sel.ColumnID = m.ctrl.DurableID(m.sel.ColumnID)
	}
	m.sel = clampSelection(m.board, m.sel)
}

func (m *appModel) setStatus(s string) {
	m.status = s
	m.statusErr = false
}

// queued drops the write handle. Rollbacks reach the board through the sync error feed.
func queued(_ *optimistic.Pending, err error) error { return err }

func (m *appModel) setErr(err error) {
	if err == nil {
		return
	}
	var nf board.NotFoundError
	if errors.As(err, &nf) {
		// The target vanished under us (remote delete); just redraw.
		m.status = ""
		m.statusErr = false
		return
	}
	m.status = err.Error()
	m.statusErr = true
}

func (m appModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.detail.Width = msg.Width
		m.detail.Height = max(1, msg.Height-2)
		return m, nil

	case boardMsg:
		m.board = msg.board
		m.reselect()
		return m, nil

	case syncErrMsg:
		if msg.err != nil {
			m.status = "sync failed, change undone: " + msg.err.Error()
			m.statusErr = true
		}
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch m.mode {
		case modePrompt:
			return m.updatePrompt(msg)
		case modeConfirm:
			return m.updateConfirm(msg)
		case modeDetail:
			return m.updateDetail(msg)
		default:
			return m.updateBoard(msg)
		}
	}
	return m, nil
}

func (m appModel) updateBoard(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	k := m.keys
	col, hasCol := selectedColumn(m.board, m.sel)
	task, hasTask := selectedTask(m.board, m.sel)

	switch {
	case key.Matches(msg, k.Quit):
		return m, tea.Quit

	case key.Matches(msg, k.Help):
		m.help.ShowAll = !m.help.ShowAll

	case key.Matches(msg, k.Left), key.Matches(msg, k.Right):
		d := -1
		if key.Matches(msg, k.Right) {
			d = 1
		}
		m.sel = clampSelection(m.board, selection{Col: m.sel.Col + d, Task: m.sel.Task})

	case key.Matches(msg, k.Up), key.Matches(msg, k.Down):
		d := -1
		if key.Matches(msg, k.Down) {
			d = 1
		}
		m.sel = clampSelection(m.board, selection{Col: m.sel.Col, ColumnID: col.ID, Task: m.sel.Task + d})

	case key.Matches(msg, k.TaskLeft), key.Matches(msg, k.TaskRight):
		if !hasTask {
			break
		}
		d := -1
		if key.Matches(msg, k.TaskRight) {
			d = 1
		}
		dest := m.sel.Col + d
		if dest < 0 || dest >= len(m.board.Columns) {
			break
		}
		// Dropping on a column body appends, same as a pointer drop.
		m.ctrl.Drag(reorder.DragEnd{
			Active: reorder.Active{ID: task.ID, Kind: reorder.KindTask, ContainerID: col.ID, Index: m.sel.Task},
			Over:   &reorder.Over{ID: m.board.Columns[dest].ID},
		})
		m.refresh()

	case key.Matches(msg, k.TaskUp), key.Matches(msg, k.TaskDown):
		if !hasTask {
			break
		}
		d := -1
		if key.Matches(msg, k.TaskDown) {
			d = 1
		}
		dest := m.sel.Task + d
		if dest < 0 || dest >= len(col.Tasks) {
			break
		}
		m.ctrl.MoveTask(col.ID, m.sel.Task, col.ID, dest)
		m.refresh()

	case key.Matches(msg, k.ColumnLeft), key.Matches(msg, k.ColumnRight):
		if !hasCol {
			break
		}
		d := -1
		if key.Matches(msg, k.ColumnRight) {
			d = 1
		}
		dest := m.sel.Col + d
		if dest < 0 || dest >= len(m.board.Columns) {
			break
		}
		m.ctrl.MoveColumn(m.sel.Col, dest)
		m.refresh()

	case key.Matches(msg, k.Toggle):
		if hasTask {
			m.setErr(queued(m.ctrl.ToggleTask(task.ID)))
			m.refresh()
		}

	case key.Matches(msg, k.Priority):
		if hasTask {
			m.setErr(queued(m.ctrl.UpdateTask(task.ID, model.TaskPatch{Priority: model.Ptr(nextPriority(task.Priority))})))
			m.refresh()
		}

	case key.Matches(msg, k.AddTask):
		if hasCol {
			return m.openPrompt(promptAddTask, col.ID, "New task in "+col.Title+": ", "")
		}
		m.setStatus("add a column first (c)")

	case key.Matches(msg, k.AddColumn):
		return m.openPrompt(promptAddColumn, "", "New column: ", "")

	case key.Matches(msg, k.EditTask):
		if hasTask {
			return m.openPrompt(promptEditTask, task.ID, "Title: ", task.Title)
		}

	case key.Matches(msg, k.RenameColumn):
		if hasCol {
			return m.openPrompt(promptRenameColumn, col.ID, "Column title: ", col.Title)
		}

	case key.Matches(msg, k.DeleteTask):
		if hasTask {
			id := task.ID
			m.openConfirm(fmt.Sprintf("Delete task %q?", task.Title), func() error { return queued(m.ctrl.DeleteTask(id)) })
		}

	case key.Matches(msg, k.DeleteColumn):
		if hasCol {
			id := col.ID
			m.openConfirm(fmt.Sprintf("Delete column %q and its %d task(s)?", col.Title, len(col.Tasks)),
				func() error { return queued(m.ctrl.DeleteColumn(id)) })
		}

	case key.Matches(msg, k.Open):
		if hasTask {
			m.mode = modeDetail
			m.detail.SetContent(renderDetail(task, m.width))
			m.detail.GotoTop()
		}
	}
	return m, nil
}

func nextPriority(p model.Priority) model.Priority {
	switch p {
	case model.PriorityLow:
		return model.PriorityMedium
	case model.PriorityMedium:
		return model.PriorityHigh
	default:
		return model.PriorityLow
	}
}

func (m appModel) openPrompt(kind promptKind, target, label, value string) (tea.Model, tea.Cmd) {
	m.mode = modePrompt
	m.prompt = kind
	m.promptTarget = target
	m.input.Prompt = label
	m.input.SetValue(value)
	m.input.CursorEnd()
	m.status = ""
	return m, m.input.Focus()
}

func (m *appModel) openConfirm(text string, action func() error) {
	m.mode = modeConfirm
	m.confirmText = text
	m.confirmAction = action
}

func (m appModel) updatePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.mode = modeBoard
		m.input.Blur()
		return m, nil
	case "enter":
		val := strings.TrimSpace(m.input.Value())
		m.mode = modeBoard
		m.input.Blur()
		m.submitPrompt(val)
		m.refresh()
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *appModel) submitPrompt(val string) {
	switch m.prompt {
	case promptAddTask:
		t, _, err := m.ctrl.CreateTask(model.NewTask{Title: val, ColumnID: m.promptTarget})
		if err != nil {
			m.setErr(err)
			return
		}
		m.sel.TaskID = t.ID
	case promptAddColumn:
		c, _, err := m.ctrl.CreateColumn(val)
		if err != nil {
			m.setErr(err)
			return
		}
		m.sel = selection{ColumnID: c.ID}
	case promptRenameColumn:
		m.setErr(queued(m.ctrl.RenameColumn(m.promptTarget, val)))
	case promptEditTask:
		m.setErr(queued(m.ctrl.UpdateTask(m.promptTarget, model.TaskPatch{Title: model.Ptr(val)})))
	}
}

func (m appModel) updateConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "enter":
		if m.confirmAction != nil {
			m.setErr(m.confirmAction())
		}
	case "n", "esc", "q":
	default:
		return m, nil
	}
	m.mode = modeBoard
	m.confirmAction = nil
	m.confirmText = ""
	m.refresh()
	return m, nil
}

func (m appModel) updateDetail(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Back), key.Matches(msg, m.keys.Open), msg.String() == "q":
		m.mode = modeBoard
		return m, nil
	}
	var cmd tea.Cmd
	m.detail, cmd = m.detail.Update(msg)
	return m, cmd
}

func renderDetail(t model.Task, width int) string {
	if width <= 0 {
		width = 80
	}
	head := lipgloss.NewStyle().Bold(true).Render(t.Title)
	meta := []string{priorityStyle(t.Priority).Render(string(t.Priority))}
	if t.Completed {
		meta = append(meta, "done")
	}
	if lbl := t.Schedule.Label(); lbl != "" {
		meta = append(meta, lbl)
	}
	if t.Assignee != nil && t.Assignee.Name != "" {
		meta = append(meta, "@"+t.Assignee.Name)
	}
	lines := []string{head, styleMuted().Render(strings.Join(meta, "  ") + "  (" + t.ID + ")"), ""}
	if body := renderMarkdown(t.Description, width-2); body != "" {
		lines = append(lines, body)
	} else {
		lines = append(lines, styleMuted().Render("No description."))
	}
	return strings.Join(lines, "\n")
}

func (m appModel) View() string {
	if m.mode == modeDetail {
		footer := styleMuted().Render("esc: back  ↑/↓: scroll")
		return lipgloss.JoinVertical(lipgloss.Left, m.detail.View(), footer)
	}

	title := lipgloss.NewStyle().Bold(true).Render("Kanban")
	counts := styleMuted().Render(fmt.Sprintf("  %d columns, %d tasks", len(m.board.Columns), m.board.TaskCount()))
	header := title + counts

	var bottom string
	switch m.mode {
	case modePrompt:
		bottom = m.input.View()
	case modeConfirm:
		bottom = m.confirmText + styleMuted().Render("  (y/n)")
	default:
		switch {
		case m.status != "" && m.statusErr:
			bottom = lipgloss.NewStyle().Foreground(colorError).Render(m.status)
		case m.status != "":
			bottom = m.status
		default:
			bottom = m.help.View(m.keys)
		}
	}

	boardH := m.height - 2 - lipgloss.Height(bottom)
	if boardH < 0 {
		boardH = 0
	}
	width := m.width
	if width <= 0 {
		width = 80
	}
	body := renderBoard(m.board, m.sel, width, boardH)
	return lipgloss.JoinVertical(lipgloss.Left, header, "", body, bottom)
}
