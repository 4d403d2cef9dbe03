package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"kanban-cli/internal/board"
	"kanban-cli/internal/gateway/memgw"
	"kanban-cli/internal/model"
	"kanban-cli/internal/optimistic"
)

func useANSI256(t *testing.T) {
	t.Helper()
	prev := lipgloss.ColorProfile()
	lipgloss.SetColorProfile(termenv.ANSI256)
	t.Cleanup(func() { lipgloss.SetColorProfile(prev) })
}

func seedBoard() model.Board {
	return model.Board{Columns: []model.Column{
		{ID: "A", Title: "Todo", Order: 0, Tasks: []model.Task{
			{ID: "t1", Title: "write docs", ColumnID: "A", Order: 0, Priority: model.PriorityLow, Description: "some **bold** words"},
			{ID: "t2", Title: "ship it", ColumnID: "A", Order: 1, Priority: model.PriorityHigh},
		}},
		{ID: "B", Title: "Done", Order: 1, Tasks: []model.Task{}},
	}}
}

func newTestModel(t *testing.T) (appModel, *memgw.Gateway, *optimistic.Controller) {
	t.Helper()
	useANSI256(t)
	gw := memgw.New(seedBoard())
	ctrl := optimistic.New(board.New(model.Board{}), gw, optimistic.Options{})
	if err := ctrl.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	m := newModel(ctrl)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return next.(appModel), gw, ctrl
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(t *testing.T, m appModel, keys ...tea.KeyMsg) appModel {
	t.Helper()
	for _, k := range keys {
		next, _ := m.Update(k)
		m = next.(appModel)
	}
	return m
}

func typeText(s string) []tea.KeyMsg {
	var out []tea.KeyMsg
	for _, r := range s {
		out = append(out, runes(string(r)))
	}
	return out
}

func TestRenderBoard_ColumnsAndCards(t *testing.T) {
	useANSI256(t)
	out := renderBoard(seedBoard(), selection{}, 80, 12)
	for _, want := range []string{"Todo (2)", "Done (0)", "write docs", "ship it", "(empty)", "high"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in board output, got=%q", want, out)
		}
	}
	if got := lipgloss.Height(out); got != 12 {
		t.Fatalf("expected board to fill 12 lines, got %d", got)
	}
}

func TestRenderBoard_Empty(t *testing.T) {
	useANSI256(t)
	out := renderBoard(model.Board{}, selection{}, 60, 3)
	if !strings.Contains(out, "No columns yet") {
		t.Fatalf("expected empty-board hint, got=%q", out)
	}
}

func TestClampSelection_PrefersTaskID(t *testing.T) {
	b := seedBoard()
	sel := clampSelection(b, selection{Col: 1, Task: 0, TaskID: "t2"})
	if sel.Col != 0 || sel.Task != 1 || sel.ColumnID != "A" {
		t.Fatalf("expected selection on t2 in A, got %+v", sel)
	}

	sel = clampSelection(b, selection{Col: 0, Task: 5, TaskID: "gone", ColumnID: "B"})
	if sel.Col != 1 || sel.Task != -1 || sel.TaskID != "" {
		t.Fatalf("expected fallback to empty column B, got %+v", sel)
	}

	sel = clampSelection(b, selection{Col: 9, Task: 9})
	if sel.Col != 1 {
		t.Fatalf("expected column index clamped, got %+v", sel)
	}
}

func TestModel_NavigateAndToggle(t *testing.T) {
	m, _, ctrl := newTestModel(t)

	m = press(t, m, runes("j"))
	if m.sel.TaskID != "t2" {
		t.Fatalf("expected t2 selected after j, got %+v", m.sel)
	}
	m = press(t, m, runes("x"))
	if err := ctrl.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if got, _ := ctrl.State().Task("t2"); !got.Completed {
		t.Fatalf("expected t2 completed")
	}

	m = press(t, m, runes("l"))
	if m.sel.Col != 1 || m.sel.Task != -1 {
		t.Fatalf("expected empty column B focused, got %+v", m.sel)
	}
}

func TestModel_MoveTaskAcrossAndWithinColumns(t *testing.T) {
	m, gw, ctrl := newTestModel(t)

	m = press(t, m, runes("J"))
	if got := m.board.Columns[0].Tasks[1].ID; got != "t1" {
		t.Fatalf("expected t1 moved down, got %s", got)
	}
	if m.sel.TaskID != "t1" || m.sel.Task != 1 {
		t.Fatalf("expected selection to follow t1, got %+v", m.sel)
	}

	m = press(t, m, runes("L"))
	if m.sel.Col != 1 || m.sel.TaskID != "t1" {
		t.Fatalf("expected selection to follow t1 into Done, got %+v", m.sel)
	}
	if err := ctrl.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	b, err := gw.LoadBoard(context.Background())
	if err != nil {
		t.Fatalf("LoadBoard: %v", err)
	}
	if col, _ := b.FindColumn("B"); len(col.Tasks) != 1 || col.Tasks[0].ID != "t1" {
		t.Fatalf("expected t1 persisted in B, got %+v", col)
	}

	m = press(t, m, runes("<"))
	if m.board.Columns[0].ID != "B" || m.sel.Col != 0 {
		t.Fatalf("expected Done moved first with selection, got cols=%v sel=%+v", m.board.Columns, m.sel)
	}
}

func TestModel_AddTaskAndColumnViaPrompt(t *testing.T) {
	m, _, ctrl := newTestModel(t)

	m = press(t, m, runes("a"))
	if m.mode != modePrompt {
		t.Fatalf("expected prompt mode")
	}
	m = press(t, m, typeText("review")...)
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.mode != modeBoard {
		t.Fatalf("expected board mode after enter")
	}
	tmp := m.sel.TaskID
	if got, ok := ctrl.State().Task(tmp); !ok || got.Title != "review" {
		t.Fatalf("expected new task selected, got %+v ok=%v", got, ok)
	}

	if err := ctrl.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	next, _ := m.Update(boardMsg{board: ctrl.State().Snapshot()})
	m = next.(appModel)
	if m.sel.TaskID != ctrl.DurableID(tmp) {
		t.Fatalf("expected selection on durable id %q, got %+v", ctrl.DurableID(tmp), m.sel)
	}

	m = press(t, m, runes("c"))
	m = press(t, m, typeText("Later")...)
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if n := len(m.board.Columns); n != 3 || m.board.Columns[2].Title != "Later" {
		t.Fatalf("expected Later appended, got %+v", m.board.Columns)
	}
	if m.sel.Col != 2 {
		t.Fatalf("expected new column focused, got %+v", m.sel)
	}
}

func TestModel_PromptRejectsEmptyTitle(t *testing.T) {
	m, gw, _ := newTestModel(t)
	m = press(t, m, runes("c"), tea.KeyMsg{Type: tea.KeyEnter})
	if !m.statusErr || !strings.Contains(m.status, "title") {
		t.Fatalf("expected validation status, got %q", m.status)
	}
	if n := len(gw.Calls()); n != 0 {
		t.Fatalf("expected no gateway calls, got %d", n)
	}
}

func TestModel_DeleteColumnNeedsConfirm(t *testing.T) {
	m, _, ctrl := newTestModel(t)

	m = press(t, m, runes("D"), runes("n"))
	if len(m.board.Columns) != 2 {
		t.Fatalf("expected cancel to keep the column")
	}

	m = press(t, m, runes("D"))
	if !strings.Contains(m.View(), "Delete column") {
		t.Fatalf("expected confirm prompt in view")
	}
	m = press(t, m, runes("y"))
	if err := ctrl.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if len(m.board.Columns) != 1 || m.board.Columns[0].ID != "B" {
		t.Fatalf("expected Todo deleted, got %+v", m.board.Columns)
	}
	if _, ok := ctrl.State().Task("t1"); ok {
		t.Fatalf("expected tasks of deleted column gone")
	}
}

func TestModel_SyncErrorShowsStatusAndRollsBack(t *testing.T) {
	m, gw, ctrl := newTestModel(t)
	gw.FailOn(memgw.OpUpdateTask, errors.New("backend down"))

	m = press(t, m, runes("p"))
	err := ctrl.Wait()
	var se *optimistic.SyncError
	if !errors.As(err, &se) {
		t.Fatalf("expected SyncError, got %v", err)
	}

	next, _ := m.Update(syncErrMsg{err: se})
	m = next.(appModel)
	if !strings.Contains(m.View(), "sync failed") {
		t.Fatalf("expected sync failure in status line, got=%q", m.View())
	}
	if got, _ := ctrl.State().Task("t1"); got.Priority != model.PriorityLow {
		t.Fatalf("expected priority rolled back to low, got %s", got.Priority)
	}
}

func TestModel_DetailRendersDescription(t *testing.T) {
	t.Setenv("KANBAN_TUI_THEME", "dark")
	m, _, _ := newTestModel(t)

	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.mode != modeDetail {
		t.Fatalf("expected detail mode")
	}
	v := m.View()
	if !strings.Contains(v, "bold") || strings.Contains(v, "**bold**") {
		t.Fatalf("expected rendered markdown, got=%q", v)
	}
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.mode != modeBoard {
		t.Fatalf("expected esc to return to board")
	}
}

func TestNextPriority_Cycles(t *testing.T) {
	p := model.PriorityLow
	for _, want := range []model.Priority{model.PriorityMedium, model.PriorityHigh, model.PriorityLow} {
		p = nextPriority(p)
		if p != want {
			t.Fatalf("expected %s, got %s", want, p)
		}
	}
}
